package tts

import (
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"time"

	"github.com/mattn/go-runewidth"
)

// Characters that must never appear in generated file names.
const illegalNameChars = `<>:"|?*`

var whitespaceRun = regexp.MustCompile(`\s+`)

// BaseName derives the output base name (without extension) for a chapter
// according to the configured naming mode. The result is sanitized and
// truncated to the configured length limit.
func BaseName(cfg OutputConfig, ch ChapterInfo) string {
	var base string
	switch cfg.NamingMode {
	case NamingChapterNumberTitle:
		base = fmt.Sprintf("%02d_%s", ch.Number, ch.Title)
	case NamingNumberTitle:
		base = fmt.Sprintf("%02d_%s", ch.Index, ch.Title)
	case NamingTitleOnly:
		base = ch.Title
	case NamingNumberOnly:
		if ch.Number > 0 {
			base = fmt.Sprintf("%02d", ch.Number)
		} else {
			base = fmt.Sprintf("%02d", ch.Index)
		}
	case NamingOriginalFilename:
		stem := filepath.Base(ch.OriginalFilename)
		base = strings.TrimSuffix(stem, filepath.Ext(stem))
	case NamingCustom:
		base = expandTemplate(cfg.CustomTemplate, ch, time.Now())
	default:
		base = fmt.Sprintf("%02d_%s", ch.Number, ch.Title)
	}
	if base == "" {
		base = fmt.Sprintf("chapter_%02d", ch.Index)
	}
	return SanitizeName(base, cfg.NameLengthLimit)
}

// expandTemplate substitutes the custom-template placeholders.
func expandTemplate(tmpl string, ch ChapterInfo, now time.Time) string {
	r := strings.NewReplacer(
		"{chapter_num}", fmt.Sprintf("%02d", ch.Number),
		"{title}", ch.Title,
		"{index}", fmt.Sprintf("%02d", ch.Index),
		"{timestamp}", fmt.Sprintf("%d", now.Unix()),
		"{date}", now.Format("2006-01-02"),
		"{time}", now.Format("150405"),
	)
	return r.Replace(tmpl)
}

// SanitizeName substitutes illegal filename characters with underscores,
// collapses whitespace runs, strips leading/trailing spaces and dots, and
// truncates to limit display cells. A non-positive limit means no limit.
func SanitizeName(name string, limit int) string {
	var b strings.Builder
	for _, r := range name {
		if strings.ContainsRune(illegalNameChars, r) || r == '/' || r == '\\' {
			b.WriteRune('_')
		} else {
			b.WriteRune(r)
		}
	}
	s := whitespaceRun.ReplaceAllString(b.String(), " ")
	s = strings.Trim(s, " .")
	if limit > 0 {
		// Width-aware truncation keeps CJK titles within the limit.
		s = runewidth.Truncate(s, limit, "")
		s = strings.Trim(s, " .")
	}
	return s
}

// UniquePath returns a path under dir for base+ext that does not collide
// with an existing file, appending the lowest unused _NN suffix (up to 999)
// when necessary.
func UniquePath(dir, base, ext string) string {
	if !strings.HasPrefix(ext, ".") && ext != "" {
		ext = "." + ext
	}
	candidate := filepath.Join(dir, base+ext)
	if _, err := os.Stat(candidate); os.IsNotExist(err) {
		return candidate
	}
	for i := 1; i <= 999; i++ {
		candidate = filepath.Join(dir, fmt.Sprintf("%s_%02d%s", base, i, ext))
		if _, err := os.Stat(candidate); os.IsNotExist(err) {
			return candidate
		}
	}
	// Everything up to 999 exists; fall back to a timestamped name.
	return filepath.Join(dir, fmt.Sprintf("%s_%d%s", base, time.Now().UnixNano(), ext))
}
