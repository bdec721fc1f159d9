package ceremony

import (
	"math"
	"time"
)

// Decay relaxes a 0..1 exposure value exponentially toward zero over
// elapsed time at rate k (per day). K=0 is a no-op, elapsed=0 returns the
// input unchanged, and the result is always within [0, current].
func Decay(current float64, elapsed time.Duration, k float64) float64 {
	if k <= 0 || elapsed <= 0 || current <= 0 {
		return current
	}
	days := elapsed.Hours() / 24
	v := current * math.Exp(-k*days)
	if v < 0 {
		return 0
	}
	return v
}
