// Package audio handles output-side audio concerns: container detection by
// magic bytes, transcoding through ffmpeg and final persistence.
package audio

import "bytes"

// Format is a detected audio container.
type Format string

const (
	FormatWAV     Format = "wav"
	FormatMP3     Format = "mp3"
	FormatOGG     Format = "ogg"
	FormatM4A     Format = "m4a"
	FormatFLAC    Format = "flac"
	FormatAAC     Format = "aac"
	FormatUnknown Format = "unknown"
)

// Detect inspects the leading bytes of an audio payload and reports its
// container. Engines lie about their output format often enough that the
// bytes are the only trustworthy source.
func Detect(data []byte) Format {
	if len(data) < 4 {
		return FormatUnknown
	}
	switch {
	case bytes.HasPrefix(data, []byte("ID3")):
		return FormatMP3
	case bytes.HasPrefix(data, []byte("RIFF")):
		return FormatWAV
	case bytes.HasPrefix(data, []byte("OggS")):
		return FormatOGG
	case bytes.HasPrefix(data, []byte("fLaC")):
		return FormatFLAC
	case len(data) >= 12 && bytes.Equal(data[4:8], []byte("ftyp")):
		return FormatM4A
	case data[0] == 0xFF && (data[1] == 0xF1 || data[1] == 0xF9):
		// ADTS AAC must be checked before the MPEG frame-sync match below.
		return FormatAAC
	case data[0] == 0xFF && data[1]&0xF0 == 0xF0:
		return FormatMP3
	default:
		return FormatUnknown
	}
}
