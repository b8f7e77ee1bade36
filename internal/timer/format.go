package timer

import "fmt"

// Format renders a duration in seconds as "H:MM". Hours are unbounded and
// partial minutes are dropped.
func Format(seconds float64) string {
	total := int64(seconds)
	if total < 0 {
		total = 0
	}
	h := total / 3600
	m := (total % 3600) / 60
	return fmt.Sprintf("%d:%02d", h, m)
}
