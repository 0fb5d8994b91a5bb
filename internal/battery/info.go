// Package battery collects battery telemetry and derives a health assessment
// and maintenance recommendations from it.
package battery

// Health strings.
const (
	HealthCold        = "Cold"
	HealthDead        = "Dead"
	HealthGood        = "Good"
	HealthOverheat    = "Overheat"
	HealthOverVoltage = "Over Voltage"
	HealthUnknown     = "Unknown"
	HealthFailure     = "Failure"
)

// Status strings.
const (
	StatusCharging    = "Charging"
	StatusDischarging = "Discharging"
	StatusFull        = "Full"
	StatusNotCharging = "Not Charging"
	StatusUnknown     = "Unknown"
)

// Power source strings.
const (
	SourceAC       = "AC"
	SourceUSB      = "USB"
	SourceWireless = "Wireless"
	SourceBattery  = "Battery"
)

// Info is one battery snapshot. Unknown counters and capacities are -1,
// unknown currents are 0.
type Info struct {
	Level           int    `json:"level"`
	Scale           int    `json:"scale"`
	Voltage         int    `json:"voltage"`     // mV
	Temperature     int    `json:"temperature"` // tenths of a degree Celsius
	Health          string `json:"health"`
	Status          string `json:"status"`
	PowerSource     string `json:"powerSource"`
	Technology      string `json:"technology"`
	CycleCount      int    `json:"cycleCount"`
	DesignCapacity  int    `json:"designCapacity"`  // mAh
	CurrentCapacity int    `json:"currentCapacity"` // mAh
	CurrentNow      int    `json:"currentNow"`      // µA
	CurrentAverage  int    `json:"currentAverage"`  // µA
	ChargeCounter   int    `json:"chargeCounter"`   // µAh
	EnergyCounter   int    `json:"energyCounter"`   // nWh
}

// NewInfo returns a snapshot with every field at its "unknown" value.
func NewInfo() Info {
	return Info{
		Scale:           100,
		Health:          HealthUnknown,
		Status:          StatusUnknown,
		PowerSource:     SourceBattery,
		Technology:      "Unknown",
		CycleCount:      -1,
		DesignCapacity:  -1,
		CurrentCapacity: -1,
		ChargeCounter:   -1,
		EnergyCounter:   -1,
	}
}

// fallbackInfo is the nominal record reported when nothing can be read.
func fallbackInfo(level int) Info {
	info := NewInfo()
	info.Level = level
	info.Voltage = 3700
	info.Temperature = 250
	info.Health = HealthGood
	info.Status = StatusDischarging
	info.Technology = "Li-ion"
	return info
}

// HealthPercentage is current/design capacity as 0..100, or -1 if either is
// unknown.
func (i Info) HealthPercentage() int {
	if i.DesignCapacity <= 0 || i.CurrentCapacity <= 0 {
		return -1
	}
	return min(max(i.CurrentCapacity*100/i.DesignCapacity, 0), 100)
}

func (i Info) VoltageInVolts() float64 { return float64(i.Voltage) / 1000 }

func (i Info) TemperatureInCelsius() float64 { return float64(i.Temperature) / 10 }

func (i Info) TemperatureInFahrenheit() float64 { return i.TemperatureInCelsius()*9/5 + 32 }

// IsCharging is true while charging, full, or on external power.
func (i Info) IsCharging() bool {
	return i.Status == StatusCharging || i.Status == StatusFull || i.PowerSource != SourceBattery
}

func (i Info) CurrentInMa() float64 { return float64(i.CurrentNow) / 1000 }

func (i Info) AverageCurrentInMa() float64 { return float64(i.CurrentAverage) / 1000 }

func (i Info) CapacityInMah() int {
	if i.CurrentCapacity > 0 {
		return i.CurrentCapacity
	}
	return -1
}

func (i Info) DesignCapacityInMah() int {
	if i.DesignCapacity > 0 {
		return i.DesignCapacity
	}
	return -1
}

// ToMap exports raw and derived fields under their wire names.
func (i Info) ToMap() map[string]any {
	return map[string]any{
		"level":                   i.Level,
		"scale":                   i.Scale,
		"voltage":                 i.Voltage,
		"temperature":             i.Temperature,
		"health":                  i.Health,
		"status":                  i.Status,
		"powerSource":             i.PowerSource,
		"technology":              i.Technology,
		"cycleCount":              i.CycleCount,
		"designCapacity":          i.DesignCapacity,
		"currentCapacity":         i.CurrentCapacity,
		"currentNow":              i.CurrentNow,
		"currentAverage":          i.CurrentAverage,
		"chargeCounter":           i.ChargeCounter,
		"energyCounter":           i.EnergyCounter,
		"healthPercentage":        i.HealthPercentage(),
		"voltageInVolts":          i.VoltageInVolts(),
		"temperatureInCelsius":    i.TemperatureInCelsius(),
		"temperatureInFahrenheit": i.TemperatureInFahrenheit(),
		"isCharging":              i.IsCharging(),
		"currentInMa":             i.CurrentInMa(),
		"averageCurrentInMa":      i.AverageCurrentInMa(),
		"capacityInMah":           i.CapacityInMah(),
		"designCapacityInMah":     i.DesignCapacityInMah(),
	}
}

// HealthFromAndroid maps BatteryManager.BATTERY_HEALTH_* codes.
func HealthFromAndroid(code int) string {
	switch code {
	case 7:
		return HealthCold
	case 4:
		return HealthDead
	case 2:
		return HealthGood
	case 3:
		return HealthOverheat
	case 5:
		return HealthOverVoltage
	case 6:
		return HealthFailure
	default:
		return HealthUnknown
	}
}

// StatusFromAndroid maps BatteryManager.BATTERY_STATUS_* codes.
func StatusFromAndroid(code int) string {
	switch code {
	case 2:
		return StatusCharging
	case 3:
		return StatusDischarging
	case 5:
		return StatusFull
	case 4:
		return StatusNotCharging
	default:
		return StatusUnknown
	}
}

// Plug bits as in BatteryManager.BATTERY_PLUGGED_*.
const (
	PluggedAC       = 1
	PluggedUSB      = 2
	PluggedWireless = 4
)

// PowerSourceFromPlugged picks the source from a plug bitmask, preferring
// AC over USB over wireless.
func PowerSourceFromPlugged(plugged int) string {
	switch {
	case plugged&PluggedAC != 0:
		return SourceAC
	case plugged&PluggedUSB != 0:
		return SourceUSB
	case plugged&PluggedWireless != 0:
		return SourceWireless
	default:
		return SourceBattery
	}
}

// normalizeCapacity converts a design or full capacity to mAh. Kernel
// drivers report µAh; anything above 100000 is taken to be µAh.
func normalizeCapacity(v int) int {
	if v <= 0 {
		return -1
	}
	if v > 100000 {
		return v / 1000
	}
	return v
}
