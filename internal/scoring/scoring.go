// Package scoring maps recording duration to points.
package scoring

// BaseThresholds are the unscaled duration thresholds in seconds.
var BaseThresholds = [4]float64{30, 45, 60, 90}

// Scale bounds and default for the star-timing calibration factor.
const (
	MinScale     = 0.5
	MaxScale     = 2.0
	DefaultScale = 1.0
)

// ClampScale bounds a calibration factor to [MinScale, MaxScale].
func ClampScale(scale float64) float64 {
	if scale < MinScale {
		return MinScale
	}
	if scale > MaxScale {
		return MaxScale
	}
	return scale
}

// PointsForDuration converts an elapsed recording duration to points in [0,5].
// scale < 1 means stars come sooner; scale > 1 means they take longer.
// The last threshold is inclusive while the earlier ones are exclusive, so a
// recording of exactly t4 seconds earns 4 points, not 5.
func PointsForDuration(sec, scale float64) int {
	if sec <= 0 {
		return 0
	}
	t1 := BaseThresholds[0] * scale
	t2 := BaseThresholds[1] * scale
	t3 := BaseThresholds[2] * scale
	t4 := BaseThresholds[3] * scale
	switch {
	case sec < t1:
		return 1
	case sec < t2:
		return 2
	case sec < t3:
		return 3
	case sec <= t4:
		return 4
	default:
		return 5
	}
}

// StarsReached is the presentation-layer alias: the star count shown for a
// duration equals its point value.
func StarsReached(sec, scale float64) int {
	return PointsForDuration(sec, scale)
}
