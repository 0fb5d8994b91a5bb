package battery

// Assessment grades the health percentage.
func Assessment(i Info) string {
	hp := i.HealthPercentage()
	switch {
	case hp > 80:
		return "Excellent"
	case hp > 60:
		return "Good"
	case hp > 40:
		return "Fair"
	case hp > 20:
		return "Poor"
	case hp >= 0:
		return "Critical"
	default:
		return "Unknown"
	}
}

// Recommendations lists maintenance advice for a snapshot. An unknown health
// percentage (-1) falls in the critical bucket.
func Recommendations(i Info) []string {
	recs := []string{}

	switch hp := i.HealthPercentage(); {
	case hp < 20:
		recs = append(recs,
			"Battery health is critical - consider replacement soon",
			"Battery may not hold charge effectively")
	case hp < 40:
		recs = append(recs,
			"Battery health is poor - monitor performance",
			"Consider battery replacement if experiencing short battery life")
	case hp < 60:
		recs = append(recs,
			"Battery health is fair - monitor degradation",
			"Avoid deep discharges when possible")
	}

	switch i.Health {
	case HealthOverheat:
		recs = append(recs,
			"Battery temperature is high - allow to cool down",
			"Avoid using device while charging if overheating persists")
	case HealthOverVoltage:
		recs = append(recs,
			"Battery voltage is abnormal - check charging equipment",
			"Use original charger if available")
	case HealthCold:
		recs = append(recs,
			"Battery temperature is low - warm up before use",
			"Battery performance may be reduced in cold temperatures")
	}

	if i.CycleCount > 500 {
		recs = append(recs, "Battery has high cycle count - normal degradation expected")
	}
	if i.TemperatureInCelsius() > 35 {
		recs = append(recs, "Battery temperature is elevated - avoid intensive use")
	}
	return recs
}
