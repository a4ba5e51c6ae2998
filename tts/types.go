// Package tts implements the batch text-to-speech conversion core: tasks,
// the scheduler, the synthesis pipeline and the engine abstraction.
//
// Engine adapters live in subpackages under tts/engines and plug into the
// Registry through the Engine interface defined here.
package tts

import (
	"context"
	"encoding/json"
	"fmt"
	"time"
)

// Format is an audio container format.
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

// KnownFormats lists the formats tasks may request as output.
var KnownFormats = []Format{FormatWAV, FormatMP3, FormatOGG, FormatM4A, FormatFLAC, FormatAAC}

// IsKnown reports whether f is a requestable output format.
func (f Format) IsKnown() bool {
	for _, k := range KnownFormats {
		if f == k {
			return true
		}
	}
	return false
}

// VoiceConfig selects the engine, voice and prosody for a synthesis call.
type VoiceConfig struct {
	EngineID     string            `json:"engine"`
	VoiceName    string            `json:"voice_name"`
	Rate         float64           `json:"rate"`   // 0.1 .. 3.0
	Pitch        float64           `json:"pitch"`  // -50 .. 50
	Volume       float64           `json:"volume"` // 0.0 .. 2.0
	Language     string            `json:"language,omitempty"`
	OutputFormat Format            `json:"output_format"`
	Emotion      string            `json:"emotion,omitempty"`
	Extra        map[string]string `json:"extra_params,omitempty"`
}

// DefaultVoiceConfig returns a neutral configuration for the given engine
// and voice.
func DefaultVoiceConfig(engineID, voice string) VoiceConfig {
	return VoiceConfig{
		EngineID:     engineID,
		VoiceName:    voice,
		Rate:         1.0,
		Pitch:        0,
		Volume:       1.0,
		OutputFormat: FormatWAV,
	}
}

// Validate checks the prosody ranges and the output format.
func (c VoiceConfig) Validate() error {
	if c.EngineID == "" {
		return fmt.Errorf("%w: engine id is empty", ErrInvalidConfig)
	}
	if c.VoiceName == "" {
		return fmt.Errorf("%w: voice name is empty", ErrInvalidConfig)
	}
	if c.Rate < 0.1 || c.Rate > 3.0 {
		return fmt.Errorf("%w: rate %.2f outside 0.1..3.0", ErrInvalidConfig, c.Rate)
	}
	if c.Pitch < -50 || c.Pitch > 50 {
		return fmt.Errorf("%w: pitch %.1f outside -50..50", ErrInvalidConfig, c.Pitch)
	}
	if c.Volume < 0.0 || c.Volume > 2.0 {
		return fmt.Errorf("%w: volume %.2f outside 0.0..2.0", ErrInvalidConfig, c.Volume)
	}
	if !c.OutputFormat.IsKnown() {
		return fmt.Errorf("%w: unknown output format %q", ErrInvalidConfig, c.OutputFormat)
	}
	return nil
}

// Clone returns a deep copy, so callers can mutate Extra safely.
func (c VoiceConfig) Clone() VoiceConfig {
	out := c
	if c.Extra != nil {
		out.Extra = make(map[string]string, len(c.Extra))
		for k, v := range c.Extra {
			out.Extra[k] = v
		}
	}
	return out
}

// NamingMode selects how output file names are derived.
type NamingMode string

const (
	NamingChapterNumberTitle NamingMode = "chapter_number_title"
	NamingNumberTitle        NamingMode = "number_title"
	NamingTitleOnly          NamingMode = "title_only"
	NamingNumberOnly         NamingMode = "number_only"
	NamingOriginalFilename   NamingMode = "original_filename"
	NamingCustom             NamingMode = "custom"
)

// SubtitleFormat selects the subtitle sidecar serialization.
type SubtitleFormat string

const (
	SubtitleSRT SubtitleFormat = "srt"
	SubtitleLRC SubtitleFormat = "lrc"
	SubtitleVTT SubtitleFormat = "vtt"
	SubtitleASS SubtitleFormat = "ass"
	SubtitleSSA SubtitleFormat = "ssa"
)

// OutputConfig controls where and how converted audio is written.
type OutputConfig struct {
	OutputDir  string `json:"output_dir"`
	Format     Format `json:"format"`
	Bitrate    int    `json:"bitrate"`     // kbps
	SampleRate int    `json:"sample_rate"` // Hz
	Channels   int    `json:"channels"`

	MergeFiles    bool   `json:"merge_files"`
	MergeFilename string `json:"merge_filename,omitempty"`

	Normalize       bool    `json:"normalize"`
	ChapterMarkers  bool    `json:"chapter_markers"`
	ChapterInterval float64 `json:"chapter_interval,omitempty"` // seconds

	NamingMode      NamingMode `json:"naming_mode"`
	CustomTemplate  string     `json:"custom_template,omitempty"`
	NameLengthLimit int        `json:"name_length_limit"`

	GenerateSubtitle bool            `json:"generate_subtitle"`
	SubtitleFormat   SubtitleFormat  `json:"subtitle_format"`
	SubtitleEncoding string          `json:"subtitle_encoding,omitempty"`
	SubtitleOffset   float64         `json:"subtitle_offset,omitempty"` // seconds
	SubtitleStyle    json.RawMessage `json:"subtitle_style,omitempty"`
}

// DefaultOutputConfig returns the defaults applied when a task carries no
// explicit output configuration.
func DefaultOutputConfig(dir string) *OutputConfig {
	return &OutputConfig{
		OutputDir:       dir,
		Format:          FormatWAV,
		Bitrate:         128,
		SampleRate:      22050,
		Channels:        1,
		NamingMode:      NamingChapterNumberTitle,
		NameLengthLimit: 80,
		SubtitleFormat:  SubtitleSRT,
	}
}

// ChapterInfo carries the source metadata used to name an output file.
type ChapterInfo struct {
	Number           int    `json:"number"` // chapter number parsed from the source
	Index            int    `json:"index"`  // 1-based position in the batch
	Title            string `json:"title"`
	OriginalFilename string `json:"original_filename,omitempty"`
}

// VoiceInfo describes one voice an engine offers.
type VoiceInfo struct {
	ID       string            `json:"id"`
	Name     string            `json:"name"`
	Language string            `json:"language"`
	Gender   string            `json:"gender,omitempty"`
	Quality  string            `json:"quality,omitempty"`
	Custom   map[string]string `json:"custom,omitempty"`
}

// ParamRule declares the type and constraints of one engine parameter.
type ParamRule struct {
	Type     string   `json:"type"` // string, number, bool
	Required bool     `json:"required,omitempty"`
	Default  string   `json:"default,omitempty"`
	Min      *float64 `json:"min,omitempty"`
	Max      *float64 `json:"max,omitempty"`
	Pattern  string   `json:"pattern,omitempty"`
	Options  []string `json:"options,omitempty"`
}

// ParameterSchema maps parameter names to their rules.
type ParameterSchema map[string]ParamRule

// EngineDescriptor is an engine's static self-description.
type EngineDescriptor struct {
	ID                 string          `json:"id"`
	DisplayName        string          `json:"display_name"`
	Version            string          `json:"version,omitempty"`
	SupportedLanguages []string        `json:"supported_languages,omitempty"`
	SupportedFormats   []Format        `json:"supported_formats,omitempty"`
	IsOnline           bool            `json:"is_online"`
	RequiresAuth       bool            `json:"requires_auth,omitempty"`
	Parameters         ParameterSchema `json:"parameters,omitempty"`
	DefaultVoiceID     string          `json:"default_voice_id,omitempty"`
	FallbackVoiceID    string          `json:"fallback_voice_id,omitempty"`
	EmitsFormat        Format          `json:"emits_format,omitempty"`
	ProvidesTimingData bool            `json:"provides_timing_data,omitempty"`
}

// EngineState is the coarse availability of an engine.
type EngineState int

const (
	EngineUnavailable EngineState = iota
	EngineAvailable
	EngineError
	EngineLoading
)

var engineStateNames = map[EngineState]string{
	EngineUnavailable: "unavailable",
	EngineAvailable:   "available",
	EngineError:       "error",
	EngineLoading:     "loading",
}

func (s EngineState) String() string {
	if name, ok := engineStateNames[s]; ok {
		return name
	}
	return "unknown"
}

// MarshalJSON renders the state as its lowercase name.
func (s EngineState) MarshalJSON() ([]byte, error) {
	return json.Marshal(s.String())
}

// UnmarshalJSON accepts the lowercase state names.
func (s *EngineState) UnmarshalJSON(data []byte) error {
	var name string
	if err := json.Unmarshal(data, &name); err != nil {
		return err
	}
	for state, n := range engineStateNames {
		if n == name {
			*s = state
			return nil
		}
	}
	return fmt.Errorf("unknown engine state %q", name)
}

// EngineStatus is an engine's live health record.
type EngineStatus struct {
	State        EngineState        `json:"state"`
	LastCheck    time.Time          `json:"last_check"`
	ErrorMessage string             `json:"error_message,omitempty"`
	Voices       int                `json:"voices,omitempty"`
	Metrics      map[string]float64 `json:"metrics,omitempty"`
}

// ResultMetadata carries optional artifacts an engine produced alongside
// the audio.
type ResultMetadata struct {
	SRTContent string `json:"-"`
	HasSRT     bool   `json:"has_srt,omitempty"`
}

// SynthesisResult is the outcome of one engine synthesis call.
type SynthesisResult struct {
	Success        bool           `json:"success"`
	Audio          []byte         `json:"-"`
	DetectedFormat Format         `json:"detected_format,omitempty"`
	Duration       float64        `json:"duration,omitempty"` // seconds
	SampleRate     int            `json:"sample_rate,omitempty"`
	BitDepth       int            `json:"bit_depth,omitempty"`
	Channels       int            `json:"channels,omitempty"`
	Metadata       ResultMetadata `json:"metadata,omitempty"`
	ErrorMessage   string         `json:"error_message,omitempty"`
}

// Engine is implemented by every synthesis backend.
type Engine interface {
	// Init prepares the engine for use. It is called once before any
	// synthesis and may be called again after a failed health probe.
	Init(ctx context.Context) error
	// ListVoices returns the engine's voice catalog.
	ListVoices(ctx context.Context) ([]VoiceInfo, error)
	// Validate normalizes and checks a voice configuration, remapping the
	// voice when the engine does not offer it.
	Validate(cfg VoiceConfig) (VoiceConfig, error)
	// Synthesize converts text to audio.
	Synthesize(ctx context.Context, text string, cfg VoiceConfig) (*SynthesisResult, error)
	// Describe returns the engine's static descriptor.
	Describe() EngineDescriptor
	// Status returns the engine's live status.
	Status() EngineStatus
	// Close releases engine resources.
	Close() error
}
