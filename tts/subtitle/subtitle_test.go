package subtitle

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

const sampleSRT = `1
00:00:00,000 --> 00:00:02,500
Hello there.

2
00:00:02,500 --> 00:00:05,120
Second line
continued.

`

func TestParseSRT(t *testing.T) {
	cues, err := ParseSRT(sampleSRT)
	if err != nil {
		t.Fatalf("ParseSRT: %v", err)
	}
	if len(cues) != 2 {
		t.Fatalf("expected 2 cues, got %d", len(cues))
	}
	if cues[0].Start != 0 || cues[0].End != 2500*time.Millisecond {
		t.Errorf("cue 0 times wrong: %v -> %v", cues[0].Start, cues[0].End)
	}
	if cues[1].Text != "Second line\ncontinued." {
		t.Errorf("cue 1 text wrong: %q", cues[1].Text)
	}
}

func TestParseSRTSkipsMalformedBlocks(t *testing.T) {
	content := "garbage\n\n1\n00:00:00,000 --> 00:00:01,000\nok\n\nnot-an-index\nbroken --> times\n\n"
	cues, err := ParseSRT(content)
	if err != nil {
		t.Fatalf("ParseSRT: %v", err)
	}
	if len(cues) != 1 || cues[0].Text != "ok" {
		t.Fatalf("expected single valid cue, got %v", cues)
	}
}

func TestRenderSRTRoundTrip(t *testing.T) {
	cues, err := ParseSRT(sampleSRT)
	if err != nil {
		t.Fatalf("ParseSRT: %v", err)
	}
	if got := RenderSRT(cues); got != sampleSRT {
		t.Errorf("round trip mismatch:\n%q\nwant\n%q", got, sampleSRT)
	}
}

func TestShiftClampsAtZero(t *testing.T) {
	cues := []Cue{{Start: time.Second, End: 2 * time.Second, Text: "x"}}
	shifted := Shift(cues, -3*time.Second)
	if shifted[0].Start != 0 || shifted[0].End != 0 {
		t.Errorf("expected clamped cue, got %v -> %v", shifted[0].Start, shifted[0].End)
	}
	// Original slice is untouched.
	if cues[0].Start != time.Second {
		t.Error("Shift mutated its input")
	}
}

func TestRenderFormats(t *testing.T) {
	cues := []Cue{
		{Index: 1, Start: 0, End: 1500 * time.Millisecond, Text: "first"},
		{Index: 2, Start: 61 * time.Second, End: 63 * time.Second, Text: "two\nlines"},
	}
	tests := []struct {
		format Format
		want   []string
	}{
		{FormatSRT, []string{"00:00:00,000 --> 00:00:01,500", "first"}},
		{FormatLRC, []string{"[00:00.00]first", "[01:01.00]two lines"}},
		{FormatVTT, []string{"WEBVTT", "00:01:01.000 --> 00:01:03.000"}},
		{FormatASS, []string{"ScriptType: v4.00+", `two\Nlines`, "Dialogue: 0,0:00:00.00,0:00:01.50,Default,first"}},
		{FormatSSA, []string{"ScriptType: v4.00", "[V4 Styles]"}},
	}
	for _, tt := range tests {
		t.Run(string(tt.format), func(t *testing.T) {
			out, err := Render(cues, tt.format, Style{})
			if err != nil {
				t.Fatalf("Render: %v", err)
			}
			for _, want := range tt.want {
				if !strings.Contains(out, want) {
					t.Errorf("output missing %q:\n%s", want, out)
				}
			}
		})
	}
}

func TestRenderUnknownFormat(t *testing.T) {
	if _, err := Render(nil, Format("sub"), Style{}); err == nil {
		t.Error("expected error for unknown format")
	}
}

func TestEncode(t *testing.T) {
	gbk, err := Encode("你好", "gbk")
	if err != nil {
		t.Fatalf("Encode gbk: %v", err)
	}
	if len(gbk) != 4 {
		t.Errorf("expected 4 GBK bytes for 你好, got %d", len(gbk))
	}

	sig, err := Encode("abc", "utf-8-sig")
	if err != nil {
		t.Fatalf("Encode utf-8-sig: %v", err)
	}
	if len(sig) != 6 || sig[0] != 0xEF {
		t.Errorf("expected BOM-prefixed output, got % x", sig)
	}

	if _, err := Encode("x", "ebcdic"); err == nil {
		t.Error("expected error for unsupported encoding")
	}
}

func TestWriteSidecar(t *testing.T) {
	dir := t.TempDir()
	audio := filepath.Join(dir, "01_chapter.mp3")
	cues := []Cue{{Start: time.Second, End: 2 * time.Second, Text: "hello"}}

	path, err := WriteSidecar(audio, cues, SidecarOptions{
		Format: FormatSRT,
		Offset: 500 * time.Millisecond,
	})
	if err != nil {
		t.Fatalf("WriteSidecar: %v", err)
	}
	if path != filepath.Join(dir, "01_chapter.srt") {
		t.Errorf("unexpected sidecar path %q", path)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("reading sidecar: %v", err)
	}
	if !strings.Contains(string(data), "00:00:01,500 --> 00:00:02,500") {
		t.Errorf("offset not applied:\n%s", data)
	}
}
