package audio

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/charmbracelet/log"
)

// PersistResult reports what Persist did with a synthesis payload.
type PersistResult struct {
	Path       string
	Detected   Format
	Transcoded bool
	SizeBytes  int64
}

// Persist writes raw synthesized audio to targetPath, transcoding first when
// the detected container does not match the target format. Normalization is
// applied as a second ffmpeg pass when requested.
//
// The detected container decides whether a transcode happens; the engine's
// own claim about its output format is ignored.
func Persist(ctx context.Context, t *Transcoder, data []byte, targetPath string, p TranscodeParams, normalize bool) (*PersistResult, error) {
	if len(data) == 0 {
		return nil, fmt.Errorf("empty audio payload")
	}
	if err := os.MkdirAll(filepath.Dir(targetPath), 0o755); err != nil {
		return nil, fmt.Errorf("creating output directory: %w", err)
	}

	detected := Detect(data)
	needsTranscode := detected != p.Format || detected == FormatUnknown

	if !needsTranscode && !normalize {
		if err := os.WriteFile(targetPath, data, 0o644); err != nil {
			return nil, fmt.Errorf("writing audio: %w", err)
		}
		return &PersistResult{Path: targetPath, Detected: detected, SizeBytes: int64(len(data))}, nil
	}

	// Stage the raw payload next to the target so the transcode stays on the
	// same filesystem.
	ext := string(detected)
	if detected == FormatUnknown {
		ext = "bin"
	}
	tmp := targetPath + ".raw." + ext
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return nil, fmt.Errorf("staging audio: %w", err)
	}
	defer os.Remove(tmp)

	src := tmp
	if normalize {
		normed := targetPath + ".norm." + string(p.Format)
		if err := t.Normalize(ctx, tmp, normed); err != nil {
			return nil, err
		}
		defer os.Remove(normed)
		src = normed
	}
	if needsTranscode || src == tmp {
		if err := t.Transcode(ctx, src, targetPath, p); err != nil {
			return nil, err
		}
	} else if err := os.Rename(src, targetPath); err != nil {
		return nil, fmt.Errorf("moving normalized audio: %w", err)
	}

	info, err := os.Stat(targetPath)
	if err != nil {
		return nil, fmt.Errorf("stat output: %w", err)
	}
	log.Debug("audio persisted",
		"path", targetPath, "detected", detected, "target", p.Format,
		"transcoded", needsTranscode, "bytes", info.Size())
	return &PersistResult{
		Path:       targetPath,
		Detected:   detected,
		Transcoded: needsTranscode,
		SizeBytes:  info.Size(),
	}, nil
}
