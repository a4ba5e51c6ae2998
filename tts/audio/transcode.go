package audio

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/charmbracelet/log"
)

// TranscodeParams describe the target container and stream parameters for a
// transcode.
type TranscodeParams struct {
	Format     Format
	Bitrate    int // kbps, lossy codecs only
	SampleRate int // Hz
	Channels   int
}

// Transcoder shells out to ffmpeg for format conversion, concatenation and
// loudness normalization.
type Transcoder struct {
	ffmpegPath string
}

// NewTranscoder locates ffmpeg on the usual paths, falling back to PATH
// lookup at run time.
func NewTranscoder() *Transcoder {
	paths := []string{
		"/opt/homebrew/bin/ffmpeg",
		"/usr/local/bin/ffmpeg",
		"/usr/bin/ffmpeg",
		"ffmpeg",
	}
	path := "ffmpeg"
	for _, p := range paths {
		if _, err := os.Stat(p); err == nil {
			path = p
			break
		}
	}
	return &Transcoder{ffmpegPath: path}
}

// NewTranscoderWithPath uses a specific ffmpeg binary.
func NewTranscoderWithPath(path string) *Transcoder {
	return &Transcoder{ffmpegPath: path}
}

// CheckInstalled verifies ffmpeg can be executed.
func (t *Transcoder) CheckInstalled() error {
	if err := exec.Command(t.ffmpegPath, "-version").Run(); err != nil {
		return fmt.Errorf("ffmpeg not found at %s: %w", t.ffmpegPath, err)
	}
	return nil
}

// codecFor maps a target container to its ffmpeg codec argument.
func codecFor(f Format) (string, error) {
	switch f {
	case FormatWAV:
		return "pcm_s16le", nil
	case FormatMP3:
		return "libmp3lame", nil
	case FormatOGG:
		return "libvorbis", nil
	case FormatM4A, FormatAAC:
		return "aac", nil
	case FormatFLAC:
		return "flac", nil
	default:
		return "", fmt.Errorf("no codec for format %q", f)
	}
}

// Transcode converts inputPath to outputPath applying the target params.
func (t *Transcoder) Transcode(ctx context.Context, inputPath, outputPath string, p TranscodeParams) error {
	codec, err := codecFor(p.Format)
	if err != nil {
		return err
	}
	args := []string{"-i", inputPath, "-vn", "-acodec", codec}
	if p.Bitrate > 0 && p.Format != FormatWAV && p.Format != FormatFLAC {
		args = append(args, "-b:a", fmt.Sprintf("%dk", p.Bitrate))
	}
	if p.SampleRate > 0 {
		args = append(args, "-ar", strconv.Itoa(p.SampleRate))
	}
	if p.Channels > 0 {
		args = append(args, "-ac", strconv.Itoa(p.Channels))
	}
	args = append(args, "-y", outputPath)

	log.Debug("transcoding", "from", filepath.Base(inputPath), "to", filepath.Base(outputPath), "format", p.Format)
	return t.run(ctx, args, "transcode")
}

// Normalize applies EBU R128 loudness normalization in place of a plain
// copy, writing to outputPath.
func (t *Transcoder) Normalize(ctx context.Context, inputPath, outputPath string) error {
	args := []string{
		"-i", inputPath,
		"-filter:a", "loudnorm=I=-16:TP=-1.5:LRA=11",
		"-y", outputPath,
	}
	return t.run(ctx, args, "normalize")
}

// Concat merges the inputs into a single file using the concat demuxer. The
// inputs must already share a container and stream layout.
func (t *Transcoder) Concat(ctx context.Context, inputPaths []string, outputPath string) error {
	if len(inputPaths) == 0 {
		return fmt.Errorf("no input files to concatenate")
	}
	listPath := filepath.Join(filepath.Dir(outputPath), ".concat_list.txt")
	var list strings.Builder
	for _, p := range inputPaths {
		fmt.Fprintf(&list, "file '%s'\n", p)
	}
	if err := os.WriteFile(listPath, []byte(list.String()), 0o644); err != nil {
		return fmt.Errorf("writing concat list: %w", err)
	}
	defer os.Remove(listPath)

	args := []string{
		"-f", "concat",
		"-safe", "0",
		"-i", listPath,
		"-c", "copy",
		"-y", outputPath,
	}
	return t.run(ctx, args, "concat")
}

// Silence writes a silent clip of the given duration, used as inter-chapter
// padding when merging.
func (t *Transcoder) Silence(ctx context.Context, outputPath string, seconds float64, p TranscodeParams) error {
	codec, err := codecFor(p.Format)
	if err != nil {
		return err
	}
	layout := "mono"
	if p.Channels == 2 {
		layout = "stereo"
	}
	rate := p.SampleRate
	if rate <= 0 {
		rate = 22050
	}
	args := []string{
		"-f", "lavfi",
		"-i", fmt.Sprintf("anullsrc=r=%d:cl=%s", rate, layout),
		"-t", fmt.Sprintf("%.3f", seconds),
		"-acodec", codec,
	}
	if p.Bitrate > 0 && p.Format != FormatWAV && p.Format != FormatFLAC {
		args = append(args, "-b:a", fmt.Sprintf("%dk", p.Bitrate))
	}
	args = append(args, "-y", outputPath)
	return t.run(ctx, args, "silence")
}

// Duration probes a media file's duration in seconds via ffprobe.
func (t *Transcoder) Duration(ctx context.Context, path string) (float64, error) {
	probe := strings.Replace(t.ffmpegPath, "ffmpeg", "ffprobe", 1)
	cmd := exec.CommandContext(ctx, probe,
		"-v", "error",
		"-show_entries", "format=duration",
		"-of", "default=noprint_wrappers=1:nokey=1",
		path,
	)
	out, err := cmd.Output()
	if err != nil {
		return 0, fmt.Errorf("ffprobe failed for %s: %w", filepath.Base(path), err)
	}
	d, err := strconv.ParseFloat(strings.TrimSpace(string(out)), 64)
	if err != nil {
		return 0, fmt.Errorf("parsing ffprobe duration: %w", err)
	}
	return d, nil
}

func (t *Transcoder) run(ctx context.Context, args []string, operation string) error {
	cmd := exec.CommandContext(ctx, t.ffmpegPath, args...)
	output, err := cmd.CombinedOutput()
	if err != nil {
		return fmt.Errorf("ffmpeg %s failed: %w\noutput: %s", operation, err, string(output))
	}
	return nil
}
