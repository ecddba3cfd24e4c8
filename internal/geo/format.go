package geo

import (
	"fmt"
	"math"
)

// FormatDistance renders km for display: meters below 1 km, one decimal
// below 10 km, whole kilometers above.
func FormatDistance(km float64) string {
	switch {
	case km < 1:
		return fmt.Sprintf("%dm", int(math.Round(km*1000)))
	case km < 10:
		return fmt.Sprintf("%.1fkm", km)
	default:
		return fmt.Sprintf("%dkm", int(math.Round(km)))
	}
}

// FormatDrivingTime renders a duration given in minutes.
func FormatDrivingTime(minutes float64) string {
	if minutes < 1 {
		return "less than a minute"
	}
	if minutes < 60 {
		return fmt.Sprintf("%d min", int(math.Round(minutes)))
	}
	hours := int(minutes / 60)
	rest := int(math.Round(minutes - float64(hours)*60))
	if rest == 60 {
		hours++
		rest = 0
	}
	if rest == 0 {
		return fmt.Sprintf("%dh", hours)
	}
	return fmt.Sprintf("%dh %dm", hours, rest)
}
