package subtitle

import (
	"fmt"
	"strings"
)

// RenderLRC serializes cues as LRC lyric lines. LRC carries start times
// only; end times are implied by the following line.
func RenderLRC(cues []Cue) string {
	var b strings.Builder
	for _, c := range cues {
		text := strings.ReplaceAll(c.Text, "\n", " ")
		fmt.Fprintf(&b, "%s%s\n", formatLRCTime(c.Start), text)
	}
	return b.String()
}

// RenderVTT serializes cues as WebVTT.
func RenderVTT(cues []Cue) string {
	var b strings.Builder
	b.WriteString("WEBVTT\n\n")
	for i, c := range cues {
		idx := c.Index
		if idx == 0 {
			idx = i + 1
		}
		fmt.Fprintf(&b, "%d\n%s --> %s\n%s\n\n",
			idx, formatVTTTime(c.Start), formatVTTTime(c.End), c.Text)
	}
	return b.String()
}

// RenderASS serializes cues as an Advanced SubStation Alpha script with a
// single default style derived from the configured subtitle style.
func RenderASS(cues []Cue, style Style) string {
	return formatSubstation(cues, style, "v4.00+", "[V4+ Styles]")
}

// RenderSSA serializes cues in the older SubStation Alpha dialect.
func RenderSSA(cues []Cue, style Style) string {
	return formatSubstation(cues, style, "v4.00", "[V4 Styles]")
}

func formatSubstation(cues []Cue, style Style, scriptType, styleSection string) string {
	font := style.FontName
	if font == "" {
		font = "Arial"
	}
	size := style.FontSize
	if size <= 0 {
		size = 20
	}
	bold, italic := 0, 0
	if style.Bold {
		bold = -1
	}
	if style.Italic {
		italic = -1
	}
	color := style.PrimaryTo
	if color == "" {
		color = "&H00FFFFFF"
	}

	var b strings.Builder
	fmt.Fprintf(&b, "[Script Info]\nScriptType: %s\nWrapStyle: 0\n\n", scriptType)
	b.WriteString(styleSection + "\n")
	b.WriteString("Format: Name, Fontname, Fontsize, PrimaryColour, Bold, Italic\n")
	fmt.Fprintf(&b, "Style: Default,%s,%d,%s,%d,%d\n\n", font, size, color, bold, italic)
	b.WriteString("[Events]\n")
	b.WriteString("Format: Layer, Start, End, Style, Text\n")
	for _, c := range cues {
		text := strings.ReplaceAll(c.Text, "\n", `\N`)
		fmt.Fprintf(&b, "Dialogue: 0,%s,%s,Default,%s\n",
			formatASSTime(c.Start), formatASSTime(c.End), text)
	}
	return b.String()
}
