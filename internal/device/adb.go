package device

import (
	"context"
	"fmt"
	"io/fs"
	"strings"

	"github.com/GriffinCanCode/tradein-diagnostics/platform/internal/adb"
	apperrors "github.com/GriffinCanCode/tradein-diagnostics/platform/internal/errors"
)

// ADBPlatform reads identity from an attached Android device.
type ADBPlatform struct {
	shell adb.Shell
}

// NewADBPlatform creates a platform over shell.
func NewADBPlatform(shell adb.Shell) *ADBPlatform {
	return &ADBPlatform{shell: shell}
}

var propFields = map[Field]string{
	FieldManufacturer: "ro.product.manufacturer",
	FieldModel:        "ro.product.model",
	FieldOSVersion:    "ro.build.version.release",
}

// Lookup implements Platform.
func (p *ADBPlatform) Lookup(ctx context.Context, f Field) (string, error) {
	if prop, ok := propFields[f]; ok {
		return p.Property(ctx, prop)
	}
	switch f {
	case FieldDeviceID:
		return p.setting(ctx, "secure", "android_id")
	case FieldDeviceName:
		return p.setting(ctx, "global", "device_name")
	case FieldBluetoothName:
		return p.setting(ctx, "secure", "bluetooth_name")
	case FieldSerial:
		return p.serial(ctx)
	default:
		return "", apperrors.Newf(apperrors.CodeNotFound, "unknown field %s", f)
	}
}

// Property reads one system property from the full property dump.
func (p *ADBPlatform) Property(ctx context.Context, name string) (string, error) {
	out, err := p.shell.Run(ctx, "getprop")
	if err != nil {
		return "", err
	}
	v, ok := adb.ParseProps(out)[name]
	if !ok || v == "" {
		return "", apperrors.Newf(apperrors.CodeNotFound, "property %s not set", name)
	}
	return v, nil
}

// setting reads a settings provider value; "null" means unset.
func (p *ADBPlatform) setting(ctx context.Context, namespace, key string) (string, error) {
	out, err := p.shell.Run(ctx, "settings", "get", namespace, key)
	if err != nil {
		return "", err
	}
	if out == "" || out == "null" {
		return "", apperrors.Newf(apperrors.CodeNotFound, "setting %s/%s not set", namespace, key)
	}
	return out, nil
}

func (p *ADBPlatform) serial(ctx context.Context) (string, error) {
	for _, prop := range []string{"ro.serialno", "ro.boot.serialno"} {
		v, err := p.Property(ctx, prop)
		if err == nil {
			return v, nil
		}
		if strings.Contains(strings.ToLower(err.Error()), "permission denied") {
			return "", fmt.Errorf("read %s: %w", prop, fs.ErrPermission)
		}
	}
	return "", apperrors.New(apperrors.CodeNotFound, "serial number not exposed")
}
