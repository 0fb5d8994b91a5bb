package battery

import (
	"bufio"
	"context"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"

	apperrors "github.com/GriffinCanCode/tradein-diagnostics/platform/internal/errors"
)

// SysfsSource reads the kernel power_supply class.
type SysfsSource struct {
	root string
}

// NewSysfsSource creates a source under root, normally /sys.
func NewSysfsSource(root string) *SysfsSource {
	return &SysfsSource{root: root}
}

type supply struct {
	name  string
	props map[string]string
}

func (s supply) str(key string) string { return s.props["POWER_SUPPLY_"+key] }

func (s supply) num(key string) (int, bool) {
	v, err := strconv.Atoi(strings.TrimSpace(s.str(key)))
	return v, err == nil
}

func (s supply) numOr(key string, def int) int {
	if v, ok := s.num(key); ok {
		return v
	}
	return def
}

func (s *SysfsSource) supplies() ([]supply, error) {
	dir := filepath.Join(s.root, "class", "power_supply")
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, apperrors.Wrap(err, apperrors.CodeBatteryError, "power_supply class not readable")
	}
	var out []supply
	for _, e := range entries {
		props, err := readUevent(filepath.Join(dir, e.Name(), "uevent"))
		if err != nil {
			continue
		}
		out = append(out, supply{name: e.Name(), props: props})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].name < out[j].name })
	return out, nil
}

func readUevent(path string) (map[string]string, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	props := make(map[string]string)
	sc := bufio.NewScanner(f)
	for sc.Scan() {
		k, v, ok := strings.Cut(sc.Text(), "=")
		if ok {
			props[k] = v
		}
	}
	return props, sc.Err()
}

// pickBattery picks the supply named "battery" if present, else the first of
// type Battery.
func pickBattery(all []supply) (supply, bool) {
	var found *supply
	for i := range all {
		if all[i].str("TYPE") != "Battery" {
			continue
		}
		if all[i].name == "battery" {
			return all[i], true
		}
		if found == nil {
			found = &all[i]
		}
	}
	if found == nil {
		return supply{}, false
	}
	return *found, true
}

func pluggedMask(all []supply) int {
	mask := 0
	for _, s := range all {
		if s.str("ONLINE") != "1" {
			continue
		}
		switch s.str("TYPE") {
		case "Mains":
			mask |= PluggedAC
		case "USB", "USB_C", "USB_PD", "USB_DCP", "USB_CDP":
			mask |= PluggedUSB
		case "Wireless":
			mask |= PluggedWireless
		}
	}
	return mask
}

// Snapshot reads the battery uevent and derives the power source from the
// other supplies.
func (s *SysfsSource) Snapshot(ctx context.Context) (Info, error) {
	all, err := s.supplies()
	if err != nil {
		return Info{}, err
	}
	bat, ok := pickBattery(all)
	if !ok {
		return Info{}, apperrors.New(apperrors.CodeBatteryError, "no battery present")
	}

	info := NewInfo()
	level, ok := bat.num("CAPACITY")
	if !ok {
		return Info{}, apperrors.New(apperrors.CodeBatteryError, "battery capacity not reported").
			WithMetadata("supply", bat.name)
	}
	info.Level = level

	if uv, ok := bat.num("VOLTAGE_NOW"); ok {
		info.Voltage = uv / 1000
	}
	info.Temperature = bat.numOr("TEMP", 0)
	info.Health = healthFromSysfs(bat.str("HEALTH"))
	info.Status = statusFromSysfs(bat.str("STATUS"))
	info.PowerSource = PowerSourceFromPlugged(pluggedMask(all))
	if tech := bat.str("TECHNOLOGY"); tech != "" {
		info.Technology = tech
	}
	info.CycleCount = bat.numOr("CYCLE_COUNT", -1)

	info.DesignCapacity = normalizeCapacity(bat.numOr("CHARGE_FULL_DESIGN", -1))
	if info.DesignCapacity < 0 {
		info.DesignCapacity = normalizeCapacity(bat.numOr("ENERGY_FULL_DESIGN", -1))
	}
	info.CurrentCapacity = normalizeCapacity(bat.numOr("CHARGE_FULL", -1))

	info.CurrentNow = bat.numOr("CURRENT_NOW", 0)
	info.CurrentAverage = bat.numOr("CURRENT_AVG", 0)
	info.ChargeCounter = bat.numOr("CHARGE_COUNTER", bat.numOr("CHARGE_NOW", -1))
	if uwh, ok := bat.num("ENERGY_NOW"); ok {
		info.EnergyCounter = uwh * 1000
	}
	return info, nil
}

// Level reads only the capacity attribute.
func (s *SysfsSource) Level(ctx context.Context) (int, error) {
	all, err := s.supplies()
	if err != nil {
		return 0, err
	}
	bat, ok := pickBattery(all)
	if !ok {
		return 0, apperrors.New(apperrors.CodeBatteryError, "no battery present")
	}
	v, ok := bat.num("CAPACITY")
	if !ok {
		return 0, apperrors.New(apperrors.CodeBatteryError, "battery capacity not reported")
	}
	return v, nil
}

func healthFromSysfs(v string) string {
	switch strings.ToLower(strings.TrimSpace(v)) {
	case "good":
		return HealthGood
	case "overheat", "hot":
		return HealthOverheat
	case "dead":
		return HealthDead
	case "over voltage", "overvoltage":
		return HealthOverVoltage
	case "unspecified failure", "failure":
		return HealthFailure
	case "cold", "cool":
		return HealthCold
	default:
		return HealthUnknown
	}
}

func statusFromSysfs(v string) string {
	switch strings.ToLower(strings.TrimSpace(v)) {
	case "charging":
		return StatusCharging
	case "discharging":
		return StatusDischarging
	case "full":
		return StatusFull
	case "not charging":
		return StatusNotCharging
	default:
		return StatusUnknown
	}
}
