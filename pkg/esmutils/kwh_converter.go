package esmutils

import "math"

// Kilo-prefixed meter units (kW, kWh, kV) are folded into their base unit.
func KiloToBase(kilo float64) float64 {
	return kilo * 1000
}

func BaseToKilo(base float64) float64 {
	return base / 1000
}

// ApplyScaler returns value * 10^scaler, the true reading of a raw SML integer.
func ApplyScaler(value float64, scaler int8) float64 {
	if scaler == 0 {
		return value
	}
	return value * math.Pow10(int(scaler))
}

// Round to a fixed number of decimals to hide float noise from scaler math.
func RoundTo(value float64, decimals int) float64 {
	p := math.Pow10(decimals)
	return math.Round(value*p) / p
}
