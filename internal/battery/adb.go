package battery

import (
	"bufio"
	"context"
	"strconv"
	"strings"

	"github.com/GriffinCanCode/tradein-diagnostics/platform/internal/adb"
	apperrors "github.com/GriffinCanCode/tradein-diagnostics/platform/internal/errors"
)

const adbSupplyDir = "/sys/class/power_supply/battery/"

// ADBSource reads battery state from an attached Android device through
// `dumpsys battery`, topped up with power_supply attributes where readable.
type ADBSource struct {
	shell adb.Shell
}

// NewADBSource creates a source over shell.
func NewADBSource(shell adb.Shell) *ADBSource {
	return &ADBSource{shell: shell}
}

// Snapshot parses the battery service dump.
func (s *ADBSource) Snapshot(ctx context.Context) (Info, error) {
	out, err := s.shell.Run(ctx, "dumpsys", "battery")
	if err != nil {
		return Info{}, apperrors.Wrap(err, apperrors.CodeBatteryError, "dumpsys battery failed")
	}
	info, err := ParseDumpsys(out)
	if err != nil {
		return Info{}, err
	}

	info.CycleCount = s.attr(ctx, "cycle_count", -1)
	info.DesignCapacity = normalizeCapacity(s.attr(ctx, "charge_full_design", -1))
	info.CurrentCapacity = normalizeCapacity(s.attr(ctx, "charge_full", -1))
	info.CurrentNow = s.attr(ctx, "current_now", 0)
	info.CurrentAverage = s.attr(ctx, "current_avg", 0)
	if info.ChargeCounter < 0 {
		info.ChargeCounter = s.attr(ctx, "charge_counter", -1)
	}
	return info, nil
}

// attr reads one integer power_supply attribute, returning def when the
// file is missing or unreadable without root.
func (s *ADBSource) attr(ctx context.Context, name string, def int) int {
	out, err := s.shell.Run(ctx, "cat", adbSupplyDir+name)
	if err != nil {
		return def
	}
	v, err := strconv.Atoi(strings.TrimSpace(out))
	if err != nil {
		return def
	}
	return v
}

// Level reads only the charge percentage.
func (s *ADBSource) Level(ctx context.Context) (int, error) {
	if v := s.attr(ctx, "capacity", -1); v >= 0 {
		return v, nil
	}
	out, err := s.shell.Run(ctx, "dumpsys", "battery")
	if err != nil {
		return 0, apperrors.Wrap(err, apperrors.CodeBatteryError, "battery level unavailable")
	}
	info, err := ParseDumpsys(out)
	if err != nil {
		return 0, err
	}
	return info.Level, nil
}

// ParseDumpsys parses `dumpsys battery` output.
func ParseDumpsys(out string) (Info, error) {
	fields := make(map[string]string)
	sc := bufio.NewScanner(strings.NewReader(out))
	for sc.Scan() {
		k, v, ok := strings.Cut(sc.Text(), ":")
		if !ok {
			continue
		}
		fields[strings.ToLower(strings.TrimSpace(k))] = strings.TrimSpace(v)
	}

	num := func(key string, def int) int {
		v, err := strconv.Atoi(fields[key])
		if err != nil {
			return def
		}
		return v
	}

	info := NewInfo()
	level := num("level", -1)
	if level < 0 {
		return Info{}, apperrors.New(apperrors.CodeBatteryError, "battery level missing from dumpsys output")
	}
	info.Level = level
	info.Scale = num("scale", 100)
	info.Voltage = num("voltage", 0)
	info.Temperature = num("temperature", 0)
	info.Health = HealthFromAndroid(num("health", 1))
	info.Status = StatusFromAndroid(num("status", 1))
	if t := fields["technology"]; t != "" {
		info.Technology = t
	}
	info.ChargeCounter = num("charge counter", -1)

	plugged := 0
	if fields["ac powered"] == "true" {
		plugged |= PluggedAC
	}
	if fields["usb powered"] == "true" {
		plugged |= PluggedUSB
	}
	if fields["wireless powered"] == "true" {
		plugged |= PluggedWireless
	}
	info.PowerSource = PowerSourceFromPlugged(plugged)
	return info, nil
}
