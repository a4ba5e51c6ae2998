package tts

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/charmbracelet/log"

	"github.com/yhl9/chaptervox/tts/audio"
)

// MergeCompleted concatenates the outputs of all completed tasks, in task
// order, into a single file named by the output config. When a chapter
// interval is configured a silent gap of that many seconds is inserted
// between chapters. Returns the merged file's path.
func (s *Scheduler) MergeCompleted(ctx context.Context, transcoder *audio.Transcoder, output *OutputConfig) (string, error) {
	if !output.MergeFiles {
		return "", fmt.Errorf("%w: merging is not enabled", ErrInvalidConfig)
	}

	var inputs []string
	for _, t := range s.Tasks() {
		if t.Status != StatusCompleted || t.Result == nil {
			continue
		}
		inputs = append(inputs, t.Result.Path)
	}
	if len(inputs) == 0 {
		return "", fmt.Errorf("%w: no completed tasks to merge", ErrInvalidState)
	}

	name := output.MergeFilename
	if name == "" {
		name = "merged"
	}
	name = SanitizeName(strings.TrimSuffix(name, filepath.Ext(name)), output.NameLengthLimit)
	mergedPath := UniquePath(output.OutputDir, name, string(output.Format))

	params := audio.TranscodeParams{
		Format:     audio.Format(output.Format),
		Bitrate:    output.Bitrate,
		SampleRate: output.SampleRate,
		Channels:   output.Channels,
	}

	if output.ChapterInterval > 0 {
		gapPath := filepath.Join(output.OutputDir, ".chapter_gap."+string(output.Format))
		if err := transcoder.Silence(ctx, gapPath, output.ChapterInterval, params); err != nil {
			return "", fmt.Errorf("generating chapter gap: %w", err)
		}
		defer os.Remove(gapPath)

		padded := make([]string, 0, len(inputs)*2-1)
		for i, in := range inputs {
			if i > 0 {
				padded = append(padded, gapPath)
			}
			padded = append(padded, in)
		}
		inputs = padded
	}

	if err := transcoder.Concat(ctx, inputs, mergedPath); err != nil {
		return "", fmt.Errorf("%w: %v", ErrTranscodeFailed, err)
	}
	log.Info("chapters merged", "output", mergedPath, "chapters", len(inputs))
	return mergedPath, nil
}
