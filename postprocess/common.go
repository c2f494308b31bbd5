package postprocess

// IoU calculates the Intersection over Union value of two boxes.  The
// result is symmetric, bounded to [0,1] and exactly 1 for identical boxes.
func IoU(a, b BoxRect) float32 {

	x1 := maxi(a.Left, b.Left)
	y1 := maxi(a.Top, b.Top)
	x2 := mini(a.Right, b.Right)
	y2 := mini(a.Bottom, b.Bottom)

	intersection := maxi(0, x2-x1) * maxi(0, y2-y1)

	union := a.Area() + b.Area() - intersection

	if union <= 0 {
		return 0
	}

	return float32(intersection) / float32(union)
}

// clampi restricts the value x to be within the range min and max
func clampi(x, min, max int) int {

	if x < min {
		return min
	}

	if x > max {
		return max
	}

	return x
}

func mini(a, b int) int {
	if a < b {
		return a
	}
	return b
}

func maxi(a, b int) int {
	if a > b {
		return a
	}
	return b
}
