package meterutils

import "math"

// Vattenfall conversion of heat energy to an equivalent volume of natural gas.
const GasEquivalentM3PerGJ = 32.68

// Round to a fixed number of decimal places.
func Round(v float64, places int) float64 {
	p := math.Pow10(places)
	return math.Round(v*p) / p
}

func GasEquivalentM3(gj float64) float64 {
	return Round(gj*GasEquivalentM3PerGJ, 3)
}

// Convert GJ to MJ for storage - No negative values
func GJToMJ(gj float64) uint32 {
	if gj < 0 {
		return 0
	}
	return uint32(math.Round(gj * 1000))
}

func MJToGJ(mj uint32) float64 {
	return float64(mj) / 1000
}

// Convert m3 to dm3 for storage - No negative values
func M3ToDM3(m3 float64) uint32 {
	if m3 < 0 {
		return 0
	}
	return uint32(math.Round(m3 * 1000)) // 1 m³ = 1000 dm³
}

func DM3ToM3(dm3 uint32) float64 {
	return float64(dm3) / 1000
}

// Temperatures may be negative, stored as hundredths of a degree.
func CelsiusToCenti(c float64) int32 {
	return int32(math.Round(c * 100))
}

func CentiToCelsius(centi int32) float64 {
	return float64(centi) / 100
}

// No negative values
func KwToW(kw float64) uint32 {
	if kw < 0 {
		return 0
	}
	return uint32(math.Round(kw * 1000))
}

func WToKw(w uint32) float64 {
	return float64(w) / 1000
}
