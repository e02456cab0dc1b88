package audioengine

import "math"

// ApplyQuickGain melakukan normalisasi volume secara streaming tanpa buffer besar
func ApplyQuickGain(samples []int16, factor float64) {
	if factor == 1 {
		return
	}
	for i := range samples {
		val := float64(samples[i]) * factor
		if val > 32767 {
			val = 32767
		} else if val < -32768 {
			val = -32768
		}
		samples[i] = int16(val)
	}
}

// DBToFactor converts a gain in dB to a linear amplitude factor.
func DBToFactor(db float64) float64 {
	return math.Pow(10, db/20)
}
