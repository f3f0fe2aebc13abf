package sdf

// SmoothUnion is the polynomial smooth minimum. k = 0 gives min(d1, d2).
func SmoothUnion(d1, d2, k float32) float32 {
	if k <= 0 {
		return min(d1, d2)
	}
	h := clamp01(0.5 + 0.5*(d2-d1)/k)
	return mix(d2, d1, h) - k*h*(1-h)
}

// SmoothSubtraction removes d2 from d1. k = 0 gives max(d1, -d2).
func SmoothSubtraction(d1, d2, k float32) float32 {
	if k <= 0 {
		return max(d1, -d2)
	}
	return -SmoothUnion(-d1, d2, k)
}

// SmoothIntersection is the polynomial smooth maximum. k = 0 gives max(d1, d2).
func SmoothIntersection(d1, d2, k float32) float32 {
	if k <= 0 {
		return max(d1, d2)
	}
	return -SmoothUnion(-d1, -d2, k)
}

func clamp01(x float32) float32 {
	return min(max(x, 0), 1)
}

func mix(a, b, t float32) float32 {
	return a + (b-a)*t
}
