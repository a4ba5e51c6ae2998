package subtitle

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/charmbracelet/log"
	"golang.org/x/text/encoding"
	"golang.org/x/text/encoding/japanese"
	"golang.org/x/text/encoding/simplifiedchinese"
	"golang.org/x/text/encoding/traditionalchinese"
)

// Format names a supported subtitle serialization.
type Format string

const (
	FormatSRT Format = "srt"
	FormatLRC Format = "lrc"
	FormatVTT Format = "vtt"
	FormatASS Format = "ass"
	FormatSSA Format = "ssa"
)

// Render serializes cues in the given format.
func Render(cues []Cue, format Format, style Style) (string, error) {
	switch format {
	case FormatSRT:
		return RenderSRT(cues), nil
	case FormatLRC:
		return RenderLRC(cues), nil
	case FormatVTT:
		return RenderVTT(cues), nil
	case FormatASS:
		return RenderASS(cues, style), nil
	case FormatSSA:
		return RenderSSA(cues, style), nil
	default:
		return "", fmt.Errorf("unsupported subtitle format %q", format)
	}
}

// utf8BOM is prepended for the utf-8-sig encoding name, which some players
// on Windows require to detect the charset.
var utf8BOM = []byte{0xEF, 0xBB, 0xBF}

// Encode converts UTF-8 subtitle text to the named encoding.
func Encode(text, encodingName string) ([]byte, error) {
	var enc encoding.Encoding
	switch strings.ToLower(encodingName) {
	case "", "utf-8", "utf8":
		return []byte(text), nil
	case "utf-8-sig", "utf8-sig":
		return append(append([]byte{}, utf8BOM...), text...), nil
	case "gbk", "gb2312":
		enc = simplifiedchinese.GBK
	case "big5":
		enc = traditionalchinese.Big5
	case "shift-jis", "shift_jis", "sjis":
		enc = japanese.ShiftJIS
	default:
		return nil, fmt.Errorf("unsupported subtitle encoding %q", encodingName)
	}
	out, err := enc.NewEncoder().Bytes([]byte(text))
	if err != nil {
		return nil, fmt.Errorf("encoding subtitle as %s: %w", encodingName, err)
	}
	return out, nil
}

// SidecarOptions control how a subtitle sidecar is written next to the
// audio output.
type SidecarOptions struct {
	Format   Format
	Encoding string
	Offset   time.Duration
	Style    Style
}

// WriteSidecar applies the configured offset, renders and encodes the cues,
// and writes them next to audioPath with the format's extension. It returns
// the sidecar path.
func WriteSidecar(audioPath string, cues []Cue, opts SidecarOptions) (string, error) {
	if len(cues) == 0 {
		return "", fmt.Errorf("no cues to write")
	}
	shifted := Shift(cues, opts.Offset)
	Renumber(shifted)

	content, err := Render(shifted, opts.Format, opts.Style)
	if err != nil {
		return "", err
	}
	raw, err := Encode(content, opts.Encoding)
	if err != nil {
		return "", err
	}

	ext := filepath.Ext(audioPath)
	path := strings.TrimSuffix(audioPath, ext) + "." + string(opts.Format)
	if err := os.WriteFile(path, raw, 0o644); err != nil {
		return "", fmt.Errorf("writing subtitle sidecar: %w", err)
	}
	log.Debug("subtitle sidecar written", "path", path, "cues", len(shifted), "format", opts.Format)
	return path, nil
}
