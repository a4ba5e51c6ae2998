// Package text loads chapter sources and prepares them for synthesis:
// markdown is flattened to prose, whitespace is normalized and long bodies
// can be split on sentence boundaries.
package text

import (
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"

	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/ast"
	gmtext "github.com/yuin/goldmark/text"
)

// Extract reads a source file and returns synthesizable plain text.
// Markdown files are rendered to prose through the AST; anything else is
// treated as plain text.
func Extract(path string) (string, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return "", fmt.Errorf("reading source: %w", err)
	}
	ext := strings.ToLower(filepath.Ext(path))
	if ext == ".md" || ext == ".markdown" {
		return markdownToProse(raw), nil
	}
	return Normalize(string(raw)), nil
}

// markdownToProse walks the markdown AST collecting text content, dropping
// code blocks and raw HTML which have no spoken form.
func markdownToProse(source []byte) string {
	md := goldmark.New()
	doc := md.Parser().Parse(gmtext.NewReader(source))

	var b strings.Builder
	ast.Walk(doc, func(n ast.Node, entering bool) (ast.WalkStatus, error) {
		if !entering {
			if isBlock(n) {
				b.WriteString("\n")
			}
			return ast.WalkContinue, nil
		}
		switch v := n.(type) {
		case *ast.FencedCodeBlock, *ast.CodeBlock, *ast.HTMLBlock, *ast.RawHTML:
			return ast.WalkSkipChildren, nil
		case *ast.Text:
			b.Write(v.Segment.Value(source))
			if v.SoftLineBreak() || v.HardLineBreak() {
				b.WriteString(" ")
			}
		case *ast.CodeSpan:
			// inline code is read out verbatim
		}
		return ast.WalkContinue, nil
	})
	return Normalize(b.String())
}

func isBlock(n ast.Node) bool {
	switch n.(type) {
	case *ast.Paragraph, *ast.Heading, *ast.ListItem, *ast.Blockquote:
		return true
	}
	return false
}

var blankRuns = regexp.MustCompile(`\n{3,}`)
var spaceRuns = regexp.MustCompile(`[ \t]+`)

// Normalize collapses whitespace runs and trims the text.
func Normalize(s string) string {
	s = strings.ReplaceAll(s, "\r\n", "\n")
	s = spaceRuns.ReplaceAllString(s, " ")
	s = blankRuns.ReplaceAllString(s, "\n\n")
	return strings.TrimSpace(s)
}

// sentenceEnd matches terminal punctuation in Latin and CJK scripts.
var sentenceEnd = regexp.MustCompile(`[.!?。！？…]+[”"')）】]*`)

// SplitSentences splits text into sentences, keeping the terminal
// punctuation attached. Text without terminal punctuation comes back as a
// single element.
func SplitSentences(s string) []string {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil
	}
	var out []string
	last := 0
	for _, loc := range sentenceEnd.FindAllStringIndex(s, -1) {
		sentence := strings.TrimSpace(s[last:loc[1]])
		if sentence != "" {
			out = append(out, sentence)
		}
		last = loc[1]
	}
	if rest := strings.TrimSpace(s[last:]); rest != "" {
		out = append(out, rest)
	}
	return out
}

// Preview returns the first n non-blank characters of s, used to calibrate
// duration estimates with a short synthesis call.
func Preview(s string, n int) string {
	var b strings.Builder
	count := 0
	for _, r := range s {
		if count >= n {
			break
		}
		if r == '\n' || r == '\r' || r == '\t' || r == ' ' {
			continue
		}
		b.WriteRune(r)
		count++
	}
	return b.String()
}

// chapterPatterns match chapter headings in filenames and first lines.
var chapterPatterns = []*regexp.Regexp{
	regexp.MustCompile(`第\s*([0-9零一二三四五六七八九十百千]+)\s*[章节回]\s*(.*)`),
	regexp.MustCompile(`(?i)chapter\s+(\d+)[.:\s-]*(.*)`),
	regexp.MustCompile(`^(\d+)[._\s-]+(.+)`),
}

// cjkDigits maps the common Chinese numerals used in chapter headings.
var cjkDigits = map[rune]int{
	'零': 0, '一': 1, '二': 2, '三': 3, '四': 4,
	'五': 5, '六': 6, '七': 7, '八': 8, '九': 9,
}

// ParseChapterHeading extracts a chapter number and title from a heading or
// filename stem. It returns 0 and the input when no pattern matches.
func ParseChapterHeading(s string) (int, string) {
	s = strings.TrimSpace(s)
	for _, re := range chapterPatterns {
		m := re.FindStringSubmatch(s)
		if m == nil {
			continue
		}
		num := parseChapterNumber(m[1])
		title := strings.TrimSpace(m[2])
		if title == "" {
			title = s
		}
		return num, title
	}
	return 0, s
}

func parseChapterNumber(s string) int {
	if n := parseDecimal(s); n > 0 {
		return n
	}
	// Chinese numerals: handle the additive forms used in headings,
	// e.g. 十二 = 12, 二十一 = 21, 一百零三 = 103.
	total, current := 0, 0
	for _, r := range s {
		switch r {
		case '十':
			if current == 0 {
				current = 1
			}
			total += current * 10
			current = 0
		case '百':
			if current == 0 {
				current = 1
			}
			total += current * 100
			current = 0
		case '千':
			if current == 0 {
				current = 1
			}
			total += current * 1000
			current = 0
		default:
			if d, ok := cjkDigits[r]; ok {
				current = current*10 + d
			}
		}
	}
	return total + current
}

func parseDecimal(s string) int {
	n := 0
	for _, r := range s {
		if r < '0' || r > '9' {
			return 0
		}
		n = n*10 + int(r-'0')
	}
	return n
}
