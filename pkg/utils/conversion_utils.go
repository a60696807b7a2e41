package utils

import (
	"math"
	"strconv"
	"time"
)

// StrToInt64 converts a string to an int64.
func StrToInt64(s string) (int64, error) {
	return strconv.ParseInt(s, 10, 64)
}

// IsHalfHourMultiple reports whether h is a positive multiple of 0.5.
func IsHalfHourMultiple(h float64) bool {
	if h <= 0 || math.IsNaN(h) || math.IsInf(h, 0) {
		return false
	}
	doubled := h * 2
	return doubled == math.Trunc(doubled)
}

// HoursToDuration converts fractional hours into a time.Duration without
// float drift on half-hour steps.
func HoursToDuration(hours float64) time.Duration {
	return time.Duration(math.Round(hours * float64(time.Hour)))
}
