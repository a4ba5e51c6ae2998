// Package subtitle builds and serializes subtitle sidecar files in the
// formats the converter can emit (srt, lrc, vtt, ass, ssa).
package subtitle

import (
	"fmt"
	"strings"
	"time"
)

// Cue is a single timed subtitle entry.
type Cue struct {
	Index int
	Start time.Duration
	End   time.Duration
	Text  string
}

// Style carries the presentation hints applied to ASS/SSA output. Formats
// without styling ignore it.
type Style struct {
	FontName  string `json:"font_name,omitempty"`
	FontSize  int    `json:"font_size,omitempty"`
	Bold      bool   `json:"bold,omitempty"`
	Italic    bool   `json:"italic,omitempty"`
	PrimaryTo string `json:"primary_color,omitempty"`
}

// Shift moves every cue by offset, clamping start times at zero so a large
// negative offset never produces cues before the audio begins.
func Shift(cues []Cue, offset time.Duration) []Cue {
	out := make([]Cue, len(cues))
	for i, c := range cues {
		c.Start += offset
		c.End += offset
		if c.Start < 0 {
			c.Start = 0
		}
		if c.End < 0 {
			c.End = 0
		}
		out[i] = c
	}
	return out
}

// Renumber rewrites cue indices to a contiguous 1-based sequence.
func Renumber(cues []Cue) {
	for i := range cues {
		cues[i].Index = i + 1
	}
}

// formatSRTTime renders a duration as HH:MM:SS,mmm.
func formatSRTTime(d time.Duration) string {
	if d < 0 {
		d = 0
	}
	h := d / time.Hour
	d -= h * time.Hour
	m := d / time.Minute
	d -= m * time.Minute
	s := d / time.Second
	ms := (d - s*time.Second) / time.Millisecond
	return fmt.Sprintf("%02d:%02d:%02d,%03d", h, m, s, ms)
}

// formatVTTTime renders a duration as HH:MM:SS.mmm.
func formatVTTTime(d time.Duration) string {
	return strings.Replace(formatSRTTime(d), ",", ".", 1)
}

// formatASSTime renders a duration as H:MM:SS.cc (centiseconds).
func formatASSTime(d time.Duration) string {
	if d < 0 {
		d = 0
	}
	h := d / time.Hour
	d -= h * time.Hour
	m := d / time.Minute
	d -= m * time.Minute
	s := d / time.Second
	cs := (d - s*time.Second) / (10 * time.Millisecond)
	return fmt.Sprintf("%d:%02d:%02d.%02d", h, m, s, cs)
}

// formatLRCTime renders a duration as [mm:ss.xx].
func formatLRCTime(d time.Duration) string {
	if d < 0 {
		d = 0
	}
	m := d / time.Minute
	d -= m * time.Minute
	s := d / time.Second
	cs := (d - s*time.Second) / (10 * time.Millisecond)
	return fmt.Sprintf("[%02d:%02d.%02d]", m, s, cs)
}
