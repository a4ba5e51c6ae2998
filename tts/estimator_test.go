package tts

import (
	"strings"
	"testing"
	"time"
)

func TestEstimateDurationOnlineVoice(t *testing.T) {
	e := NewEstimator()
	tests := []struct {
		name string
		n    int
		want float64
	}{
		{"short text uses the base", 200, 13},
		{"boundary at 500", 500, 13},
		{"one extra segment", 501, 21},
		{"two segments", 1500, 29},
		{"clamped to ceiling", 500000, 300},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			text := strings.Repeat("a", tt.n)
			got := e.EstimateDuration("online_voice", "preview", time.Second, text)
			if got != tt.want {
				t.Errorf("estimate = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestEstimateDurationEmotionAPI(t *testing.T) {
	e := NewEstimator()
	tests := []struct {
		name string
		n    int
		want float64
	}{
		{"one segment floors at 15", 100, 17},
		{"two segments", 400, 29},
		{"minimum clamp", 1, 17},
		{"clamped to ceiling", 100000, 600},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			text := strings.Repeat("字", tt.n)
			got := e.EstimateDuration("emotion_api", "preview", time.Second, text)
			if got != tt.want {
				t.Errorf("estimate = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestEstimateDurationPreviewCalibrated(t *testing.T) {
	e := NewEstimator()
	// 10 preview chars in 2s extrapolates to 0.2s per char.
	preview := strings.Repeat("p", 10)
	full := strings.Repeat("f", 100)
	got := e.EstimateDuration("piper", preview, 2*time.Second, full)
	if got != 20.5 {
		t.Errorf("estimate = %v, want 20.5", got)
	}

	// Clamped into 10..3600.
	if got := e.EstimateDuration("piper", preview, time.Millisecond, "x"); got != 10 {
		t.Errorf("floor clamp = %v, want 10", got)
	}
	if got := e.EstimateDuration("piper", preview, time.Hour, strings.Repeat("x", 10000)); got != 3600 {
		t.Errorf("ceiling clamp = %v, want 3600", got)
	}
}

func TestProgressAt(t *testing.T) {
	e := NewEstimator()
	tests := []struct {
		name      string
		elapsed   time.Duration
		estimated float64
		want      int
	}{
		{"at start", 0, 100, 20},
		{"halfway", 50 * time.Second, 100, 55},
		{"saturates", 200 * time.Second, 100, 95},
		{"zero estimate", 10 * time.Second, 0, 20},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := e.ProgressAt(tt.elapsed, tt.estimated); got != tt.want {
				t.Errorf("ProgressAt = %d, want %d", got, tt.want)
			}
		})
	}
}

func TestRemainingAt(t *testing.T) {
	e := NewEstimator()
	if got := e.RemainingAt(30*time.Second, 100); got != 70 {
		t.Errorf("remaining = %v, want 70", got)
	}
	if got := e.RemainingAt(200*time.Second, 100); got != 0 {
		t.Errorf("overrun remaining = %v, want 0", got)
	}
}
