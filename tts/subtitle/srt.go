package subtitle

import (
	"bufio"
	"fmt"
	"strconv"
	"strings"
	"time"
)

// ParseSRT reads SRT content into cues. Malformed blocks are skipped rather
// than failing the whole parse, since engine-produced SRT occasionally
// carries stray fragments.
func ParseSRT(content string) ([]Cue, error) {
	var cues []Cue
	sc := bufio.NewScanner(strings.NewReader(content))
	sc.Buffer(make([]byte, 64*1024), 1024*1024)

	var cur *Cue
	var textLines []string
	flush := func() {
		if cur != nil && len(textLines) > 0 {
			cur.Text = strings.Join(textLines, "\n")
			cues = append(cues, *cur)
		}
		cur = nil
		textLines = nil
	}

	for sc.Scan() {
		line := strings.TrimSpace(strings.TrimPrefix(sc.Text(), "\uFEFF"))
		switch {
		case line == "":
			flush()
		case cur == nil:
			idx, err := strconv.Atoi(line)
			if err != nil {
				continue
			}
			cur = &Cue{Index: idx}
		case cur.End == 0 && strings.Contains(line, "-->"):
			start, end, err := parseSRTTimeLine(line)
			if err != nil {
				cur = nil
				continue
			}
			cur.Start, cur.End = start, end
		default:
			textLines = append(textLines, line)
		}
	}
	flush()
	if err := sc.Err(); err != nil {
		return nil, fmt.Errorf("scanning srt: %w", err)
	}
	return cues, nil
}

func parseSRTTimeLine(line string) (time.Duration, time.Duration, error) {
	parts := strings.Split(line, "-->")
	if len(parts) != 2 {
		return 0, 0, fmt.Errorf("malformed time line %q", line)
	}
	start, err := parseSRTTime(strings.TrimSpace(parts[0]))
	if err != nil {
		return 0, 0, err
	}
	end, err := parseSRTTime(strings.TrimSpace(parts[1]))
	if err != nil {
		return 0, 0, err
	}
	return start, end, nil
}

func parseSRTTime(s string) (time.Duration, error) {
	s = strings.Replace(s, ".", ",", 1)
	var h, m, sec, ms int
	if _, err := fmt.Sscanf(s, "%d:%d:%d,%d", &h, &m, &sec, &ms); err != nil {
		return 0, fmt.Errorf("malformed timestamp %q: %w", s, err)
	}
	return time.Duration(h)*time.Hour +
		time.Duration(m)*time.Minute +
		time.Duration(sec)*time.Second +
		time.Duration(ms)*time.Millisecond, nil
}

// RenderSRT serializes cues as SRT.
func RenderSRT(cues []Cue) string {
	var b strings.Builder
	for i, c := range cues {
		idx := c.Index
		if idx == 0 {
			idx = i + 1
		}
		fmt.Fprintf(&b, "%d\n%s --> %s\n%s\n\n",
			idx, formatSRTTime(c.Start), formatSRTTime(c.End), c.Text)
	}
	return b.String()
}
