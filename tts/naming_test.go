package tts

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func TestBaseName(t *testing.T) {
	ch := ChapterInfo{Number: 3, Index: 7, Title: "The Journey Begins", OriginalFilename: "ch3_draft.txt"}
	tests := []struct {
		name string
		cfg  OutputConfig
		want string
	}{
		{"chapter number title", OutputConfig{NamingMode: NamingChapterNumberTitle}, "03_The Journey Begins"},
		{"number title", OutputConfig{NamingMode: NamingNumberTitle}, "07_The Journey Begins"},
		{"title only", OutputConfig{NamingMode: NamingTitleOnly}, "The Journey Begins"},
		{"number only", OutputConfig{NamingMode: NamingNumberOnly}, "03"},
		{"original filename", OutputConfig{NamingMode: NamingOriginalFilename}, "ch3_draft"},
		{"custom", OutputConfig{NamingMode: NamingCustom, CustomTemplate: "{chapter_num}-{title}"}, "03-The Journey Begins"},
		{"unknown mode falls back", OutputConfig{NamingMode: "bogus"}, "03_The Journey Begins"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := BaseName(tt.cfg, ch); got != tt.want {
				t.Errorf("BaseName = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestBaseNameNumberOnlyUsesIndexWithoutNumber(t *testing.T) {
	cfg := OutputConfig{NamingMode: NamingNumberOnly}
	got := BaseName(cfg, ChapterInfo{Index: 4})
	if got != "04" {
		t.Errorf("BaseName = %q, want 04", got)
	}
}

func TestBaseNameEmptyFallsBack(t *testing.T) {
	cfg := OutputConfig{NamingMode: NamingTitleOnly}
	got := BaseName(cfg, ChapterInfo{Index: 2})
	if got != "chapter_02" {
		t.Errorf("BaseName = %q, want chapter_02", got)
	}
}

func TestExpandTemplate(t *testing.T) {
	now := time.Date(2026, 3, 14, 15, 9, 26, 0, time.UTC)
	ch := ChapterInfo{Number: 5, Index: 1, Title: "风起"}
	got := expandTemplate("{date}_{chapter_num}_{title}", ch, now)
	if got != "2026-03-14_05_风起" {
		t.Errorf("expandTemplate = %q", got)
	}
}

func TestSanitizeName(t *testing.T) {
	tests := []struct {
		name  string
		in    string
		limit int
		want  string
	}{
		{"illegal chars", `a<b>c:d"e|f?g*h`, 0, "a_b_c_d_e_f_g_h"},
		{"path separators", `part/one\two`, 0, "part_one_two"},
		{"whitespace collapse", "a   b\t\tc", 0, "a b c"},
		{"trim dots and spaces", " .name. ", 0, "name"},
		{"truncate ascii", "abcdefghij", 5, "abcde"},
		{"truncate wide runes", "第一章风起云涌", 8, "第一章风"},
		{"truncation cannot end in space", "abc def", 4, "abc"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := SanitizeName(tt.in, tt.limit); got != tt.want {
				t.Errorf("SanitizeName(%q, %d) = %q, want %q", tt.in, tt.limit, got, tt.want)
			}
		})
	}
}

func TestUniquePath(t *testing.T) {
	dir := t.TempDir()
	first := UniquePath(dir, "chapter", "wav")
	if first != filepath.Join(dir, "chapter.wav") {
		t.Fatalf("first path = %q", first)
	}
	if err := os.WriteFile(first, nil, 0o644); err != nil {
		t.Fatal(err)
	}
	second := UniquePath(dir, "chapter", ".wav")
	if second != filepath.Join(dir, "chapter_01.wav") {
		t.Fatalf("second path = %q", second)
	}
	if err := os.WriteFile(second, nil, 0o644); err != nil {
		t.Fatal(err)
	}
	third := UniquePath(dir, "chapter", "wav")
	if !strings.HasSuffix(third, "chapter_02.wav") {
		t.Fatalf("third path = %q", third)
	}
}
