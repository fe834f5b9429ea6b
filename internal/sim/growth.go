package sim

import (
	"math"

	"batchcore/pkg/domain"
)

// GrowthStep advances average weight by one day using the thermal-growth-
// coefficient model: w' = (cbrt(w) + tgc * tempC / 1000)^3, clamped to the
// stage's maximum plausible weight.
func GrowthStep(weightG, tgc, tempC, maxWeightG float64) float64 {
	next := math.Pow(math.Cbrt(weightG)+tgc*tempC/1000.0, 3)
	if maxWeightG > 0 && next > maxWeightG {
		next = maxWeightG
	}
	return next
}

// TemperatureModel produces a deterministic daily ambient temperature. Sea
// areas follow a seasonal sinusoid; freshwater halls sit near a controlled
// setpoint with a shallow seasonal swing.
type TemperatureModel struct {
	SeaMeanC       float64 `yaml:"sea_mean_c" json:"sea_mean_c"`
	SeaAmplitudeC  float64 `yaml:"sea_amplitude_c" json:"sea_amplitude_c"`
	HallMeanC      float64 `yaml:"hall_mean_c" json:"hall_mean_c"`
	HallAmplitudeC float64 `yaml:"hall_amplitude_c" json:"hall_amplitude_c"`
}

// DefaultTemperatureModel mirrors a North Atlantic grow-out profile.
func DefaultTemperatureModel() TemperatureModel {
	return TemperatureModel{
		SeaMeanC:       10.0,
		SeaAmplitudeC:  4.0,
		HallMeanC:      12.0,
		HallAmplitudeC: 1.0,
	}
}

// At returns the ambient temperature for a resource kind on the given day
// since the plan epoch. The curve is a pure function of its inputs.
func (m TemperatureModel) At(kind domain.ResourceKind, day int) float64 {
	// Day 0 sits at the coldest point of the cycle so spring smolt transfers
	// land on a rising curve.
	phase := 2 * math.Pi * float64(day%365) / 365.0
	switch kind {
	case domain.KindSeaArea:
		return m.SeaMeanC - m.SeaAmplitudeC*math.Cos(phase)
	default:
		return m.HallMeanC - m.HallAmplitudeC*math.Cos(phase)
	}
}
