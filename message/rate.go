package message

import "math"

// Blink interval floors, in units of 1/60 second. Blink intervals below the
// floor are clamped up, never rejected; hardware misbehaves below ~1/2s.
const (
	MinimumBlinkInterval          = 30
	UnlimitedMinimumBlinkInterval = 1
)

// rateSeconds maps UPB rate codes 0-15 to transition times in seconds.
// Code 0 is "snap" (no fade).
var rateSeconds = [16]float64{
	0, 0.8, 1.6, 3.3, 5.0, 6.6, 10, 20, 30, 60, 120, 300, 600, 900, 1800, 3600,
}

// RateToSeconds returns the transition time in seconds for a rate code.
// Codes outside 0-15 are clamped into range.
func RateToSeconds(code int) float64 {
	if code < 0 {
		code = 0
	}
	if code > len(rateSeconds)-1 {
		code = len(rateSeconds) - 1
	}
	return rateSeconds[code]
}

// SecondsToRate converts a transition time in seconds to the rate code whose
// table value is nearest to it. On an exact tie between two codes the lower
// code wins. Negative input means "device default" and is passed through
// unchanged so encoders can omit the rate byte.
//
// When raw is true the input is treated as already being a rate code and is
// clamped to 0-15 (negative still passes through).
func SecondsToRate(seconds float64, raw bool) int {
	if seconds < 0 {
		return -1
	}
	if raw {
		code := int(seconds)
		if code > len(rateSeconds)-1 {
			code = len(rateSeconds) - 1
		}
		return code
	}

	best := 0
	bestDiff := math.Inf(1)
	for code, secs := range rateSeconds {
		diff := math.Abs(seconds - secs)
		if diff < bestDiff {
			best = code
			bestDiff = diff
		}
	}
	return best
}

// ClampBlinkInterval enforces the blink interval floor. The floor is
// MinimumBlinkInterval unless unlimited is set, which lowers it to
// UnlimitedMinimumBlinkInterval.
func ClampBlinkInterval(interval int, unlimited bool) int {
	floor := MinimumBlinkInterval
	if unlimited {
		floor = UnlimitedMinimumBlinkInterval
	}
	if interval < floor {
		return floor
	}
	return interval
}
