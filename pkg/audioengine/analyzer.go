package audioengine

import "math"

// Peak mengembalikan amplitudo absolut terbesar, 0..1
func Peak(chunk []int16) float64 {
	var max int
	for _, v := range chunk {
		a := int(v)
		if a < 0 {
			a = -a
		}
		if a > max {
			max = a
		}
	}
	return float64(max) / 32768.0
}

// RMS energi rata-rata blok, 0..1
func RMS(chunk []int16) float64 {
	if len(chunk) == 0 {
		return 0
	}
	var sum float64
	for _, v := range chunk {
		f := float64(v)
		sum += f * f
	}
	return math.Sqrt(sum/float64(len(chunk))) / 32768.0
}

// CollectWaveformPoints mengambil sampel puncak setiap blok untuk UI
func CollectWaveformPoints(chunk []int16, points []byte) []byte {
	if len(chunk) == 0 {
		return points
	}
	return append(points, uint8(math.Min(Peak(chunk)*255.0, 255.0)))
}
