package device

import (
	"bufio"
	"context"
	"os"
	"path/filepath"
	"strings"

	apperrors "github.com/GriffinCanCode/tradein-diagnostics/platform/internal/errors"
)

// LinuxPlatform reads identity from a Linux host: machine-id, DMI and
// os-release.
type LinuxPlatform struct {
	sysRoot  string
	etcRoot  string
	hostname func() (string, error)
}

// NewLinuxPlatform creates a platform reading DMI under sysRoot (normally
// /sys) and configuration files under etcRoot (normally /etc).
func NewLinuxPlatform(sysRoot, etcRoot string) *LinuxPlatform {
	return &LinuxPlatform{sysRoot: sysRoot, etcRoot: etcRoot, hostname: os.Hostname}
}

func (p *LinuxPlatform) dmi(name string) (string, error) {
	return readTrimmed(filepath.Join(p.sysRoot, "class", "dmi", "id", name))
}

// Lookup implements Platform.
func (p *LinuxPlatform) Lookup(ctx context.Context, f Field) (string, error) {
	switch f {
	case FieldDeviceID:
		return readTrimmed(filepath.Join(p.etcRoot, "machine-id"))
	case FieldManufacturer:
		return p.dmi("sys_vendor")
	case FieldModel:
		return p.dmi("product_name")
	case FieldOSVersion:
		rel, err := parseOSRelease(filepath.Join(p.etcRoot, "os-release"))
		if err != nil {
			return "", err
		}
		if v := rel["VERSION_ID"]; v != "" {
			return v, nil
		}
		return rel["PRETTY_NAME"], nil
	case FieldDeviceName:
		if v, err := readTrimmed(filepath.Join(p.etcRoot, "hostname")); err == nil && v != "" {
			return v, nil
		}
		return p.hostname()
	case FieldSerial:
		return p.dmi("product_serial")
	default:
		return "", apperrors.Newf(apperrors.CodeNotFound, "field %s not available on linux", f)
	}
}

// Property maps the handful of Android marketing properties that have a DMI
// counterpart.
func (p *LinuxPlatform) Property(ctx context.Context, name string) (string, error) {
	switch name {
	case "ro.product.marketname":
		return p.dmi("product_version")
	case "ro.product.name":
		return p.dmi("product_family")
	default:
		return "", apperrors.Newf(apperrors.CodeNotFound, "property %s not available on linux", name)
	}
}

func readTrimmed(path string) (string, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(string(b)), nil
}

func parseOSRelease(path string) (map[string]string, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	out := make(map[string]string)
	sc := bufio.NewScanner(f)
	for sc.Scan() {
		line := strings.TrimSpace(sc.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		k, v, ok := strings.Cut(line, "=")
		if !ok {
			continue
		}
		out[k] = strings.Trim(v, `"'`)
	}
	return out, sc.Err()
}
