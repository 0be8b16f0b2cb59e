// Package gesture turns decoded accelerometer samples into the features the
// ring controller acts on: net g-force, angular position around the finger
// axis, wrap-aware rotation deltas, and the tap/scroll predicates.
package gesture

import "math"

// WrapDelta returns the signed angular step from p to c, both in [-π, π],
// choosing the direction that preserves the sign of the physical motion.
// The result lies in (-π, π]: a rotation crossing the ±π seam is unwrapped
// instead of jumping by nearly 2π.
func WrapDelta(c, p float64) float64 {
	switch {
	case c <= 0 && p >= 0:
		if p-c < math.Pi {
			return c - p
		}
		return 2*math.Pi + (c - p)
	case c >= 0 && p <= 0:
		// <= keeps the exact half-turn at +π rather than -π.
		if c-p <= math.Pi {
			return c - p
		}
		return (c - p) - 2*math.Pi
	default:
		return c - p
	}
}
