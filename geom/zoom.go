package geom

import "math"

// Zoom factor 1.0 renders one pixel per point (72 DPI).

// ClampZoom constrains a zoom factor to [min, max]. Non-finite and
// non-positive inputs clamp to min.
func ClampZoom(z, min, max float64) float64 {
	if math.IsNaN(z) || math.IsInf(z, 0) || z <= 0 {
		return min
	}
	if z < min {
		return min
	}
	if z > max {
		return max
	}
	return z
}

// QuantizeZoom rounds a zoom factor to two decimals so that visually
// indistinguishable factors share cache entries.
func QuantizeZoom(z float64) float64 {
	return math.Round(z*100) / 100
}

// Centizoom returns the quantized zoom as an integer count of hundredths,
// the exact form used in cache keys.
func Centizoom(z float64) int {
	return int(math.Round(z * 100))
}
