package util

import "time"

// SampleRate returns count/elapsed in Hz, or 0 before any time has passed.
func SampleRate(count uint64, elapsed time.Duration) float64 {
	if elapsed <= 0 {
		return 0
	}
	return float64(count) / elapsed.Seconds()
}
