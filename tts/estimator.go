package tts

import (
	"math"
	"time"
)

// Estimator computes the expected synthesis duration for a task and drives
// the time-based progress curve while the engine call is in flight.
//
// Online engines get per-engine segmented heuristics because a short preview
// tells us nothing about server-side queueing; everything else extrapolates
// linearly from the timed preview call.
type Estimator struct{}

// NewEstimator returns an Estimator.
func NewEstimator() *Estimator {
	return &Estimator{}
}

// Engine ids with dedicated heuristics.
const (
	engineOnlineVoice = "online_voice"
	engineEmotionAPI  = "emotion_api"
)

// EstimateDuration returns the expected duration in seconds of synthesizing
// fullText on the given engine, calibrated by a preview call that took
// tPreview for previewText.
func (e *Estimator) EstimateDuration(engineID, previewText string, tPreview time.Duration, fullText string) float64 {
	n := len([]rune(fullText))
	switch engineID {
	case engineOnlineVoice:
		base := 10.0
		if n > 500 {
			base = 10.0 + 8.0*math.Ceil(float64(n-500)/500.0)
		}
		return clampF(base+3.0, 10, 300)
	case engineEmotionAPI:
		segments := math.Ceil(float64(n) / 200.0)
		if segments < 1 {
			segments = 1
		}
		return clampF(12.0*segments+5.0, 15, 600)
	default:
		p := len([]rune(previewText))
		if p == 0 {
			p = 1
		}
		perChar := tPreview.Seconds() / float64(p)
		return clampF(perChar*float64(n)+0.5, 10, 3600)
	}
}

// ProgressAt returns the time-based progress percentage at the given elapsed
// time for an estimate. The curve ramps from 20 and saturates at 95 even
// when the estimate is exceeded; actual completion overrides it.
func (e *Estimator) ProgressAt(elapsed time.Duration, estimated float64) int {
	if estimated <= 0 {
		return 20
	}
	p := 20.0 + 70.0*elapsed.Seconds()/estimated
	return int(clampF(p, 20, 95))
}

// RemainingAt returns the estimated remaining seconds at the given elapsed
// time, clamped to zero.
func (e *Estimator) RemainingAt(elapsed time.Duration, estimated float64) float64 {
	r := estimated - elapsed.Seconds()
	if r < 0 {
		return 0
	}
	return r
}

func clampF(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
