package analytics

import "math"

// Growth is the percentage change from previous to current, rounded to one
// decimal. It is 0 when previous is not positive.
func Growth(current, previous int64) float64 {
	if previous <= 0 {
		return 0
	}
	return RoundTo(float64(current-previous)/float64(previous)*100, 1)
}

// Percentage is part/whole*100 rounded to one decimal, or 0 for an empty whole.
func Percentage(part, whole int64) float64 {
	if whole <= 0 {
		return 0
	}
	return RoundTo(float64(part)/float64(whole)*100, 1)
}

// RoundTo rounds v half away from zero to places decimals.
func RoundTo(v float64, places int) float64 {
	p := math.Pow(10, float64(places))
	return math.Round(v*p) / p
}
