// Package engines hosts the shared plumbing used by every engine adapter:
// status tracking, parameter-schema validation and voice resolution through
// the cross-engine mapping tables.
package engines

import (
	"context"
	"fmt"
	"os"
	"regexp"
	"sort"
	"strconv"
	"sync"
	"time"

	"github.com/charmbracelet/log"

	"github.com/yhl9/chaptervox/internal/catalog"
	"github.com/yhl9/chaptervox/tts"
	"github.com/yhl9/chaptervox/tts/audio"
	"github.com/yhl9/chaptervox/tts/voicemap"
)

// StatusTracker is the concurrency-safe status record embedded by the
// adapters. The zero value reports EngineUnavailable.
type StatusTracker struct {
	mu      sync.RWMutex
	state   tts.EngineState
	lastErr string
	checked time.Time
	voices  int
}

// SetState records a state change with an optional error message.
func (s *StatusTracker) SetState(state tts.EngineState, errMsg string) {
	s.mu.Lock()
	s.state = state
	s.lastErr = errMsg
	s.checked = time.Now()
	s.mu.Unlock()
}

// SetVoiceCount records how many voices the last catalog fetch returned.
func (s *StatusTracker) SetVoiceCount(n int) {
	s.mu.Lock()
	s.voices = n
	s.mu.Unlock()
}

// Snapshot returns the current status.
func (s *StatusTracker) Snapshot() tts.EngineStatus {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return tts.EngineStatus{
		State:        s.state,
		LastCheck:    s.checked,
		ErrorMessage: s.lastErr,
		Voices:       s.voices,
	}
}

// ValidateParams checks cfg's extra parameters against an engine's declared
// schema, filling in declared defaults for absent keys. It returns the
// normalized parameter map.
func ValidateParams(schema tts.ParameterSchema, params map[string]string) (map[string]string, error) {
	out := make(map[string]string, len(params))
	for k, v := range params {
		out[k] = v
	}
	for name, rule := range schema {
		val, present := out[name]
		if !present {
			if rule.Required {
				return nil, fmt.Errorf("%w: missing required parameter %q", tts.ErrInvalidConfig, name)
			}
			if rule.Default != "" {
				out[name] = rule.Default
			}
			continue
		}
		if err := checkRule(name, val, rule); err != nil {
			return nil, err
		}
	}
	return out, nil
}

func checkRule(name, val string, rule tts.ParamRule) error {
	switch rule.Type {
	case "number":
		f, err := strconv.ParseFloat(val, 64)
		if err != nil {
			return fmt.Errorf("%w: parameter %q is not a number", tts.ErrInvalidConfig, name)
		}
		if rule.Min != nil && f < *rule.Min {
			return fmt.Errorf("%w: parameter %q below minimum %v", tts.ErrInvalidConfig, name, *rule.Min)
		}
		if rule.Max != nil && f > *rule.Max {
			return fmt.Errorf("%w: parameter %q above maximum %v", tts.ErrInvalidConfig, name, *rule.Max)
		}
	case "bool":
		if _, err := strconv.ParseBool(val); err != nil {
			return fmt.Errorf("%w: parameter %q is not a boolean", tts.ErrInvalidConfig, name)
		}
	case "string", "":
		if rule.Pattern != "" {
			re, err := regexp.Compile(rule.Pattern)
			if err != nil {
				return fmt.Errorf("%w: parameter %q has invalid pattern", tts.ErrInvalidConfig, name)
			}
			if !re.MatchString(val) {
				return fmt.Errorf("%w: parameter %q does not match %s", tts.ErrInvalidConfig, name, rule.Pattern)
			}
		}
	}
	if len(rule.Options) > 0 {
		ok := false
		for _, opt := range rule.Options {
			if val == opt {
				ok = true
				break
			}
		}
		if !ok {
			return fmt.Errorf("%w: parameter %q must be one of %v", tts.ErrInvalidConfig, name, rule.Options)
		}
	}
	return nil
}

// SniffFormat inspects synthesized bytes for their real container. The
// declared format is only trusted when the bytes are inconclusive.
func SniffFormat(data []byte, declared tts.Format) tts.Format {
	if f := audio.Detect(data); f != audio.FormatUnknown {
		return tts.Format(f)
	}
	return declared
}

// CatalogVoices loads a per-engine voice catalog file and converts its
// entries to the engine voice list, in stable id order. It reports false
// when no catalog file is configured or present.
func CatalogVoices(path string) ([]tts.VoiceInfo, bool) {
	if path == "" {
		return nil, false
	}
	if _, err := os.Stat(path); err != nil {
		return nil, false
	}
	return catalogToVoices(catalog.Load(path)), true
}

// BuiltinVoices returns the compiled-in default voice list, for adapters
// that can produce no list of their own.
func BuiltinVoices() []tts.VoiceInfo {
	return catalogToVoices(catalog.Builtin())
}

func catalogToVoices(cat *catalog.Catalog) []tts.VoiceInfo {
	ids := make([]string, 0, len(cat.Voices))
	for id := range cat.Voices {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	voices := make([]tts.VoiceInfo, 0, len(ids))
	for _, id := range ids {
		entry := cat.Voices[id]
		voices = append(voices, tts.VoiceInfo{
			ID:       id,
			Name:     entry.Name,
			Language: entry.Language,
			Gender:   entry.Gender,
		})
	}
	return voices
}

// ResolveVoice maps cfg's voice onto a voice the engine actually offers.
// When the configured voice is already in the catalog it is used verbatim;
// otherwise the cross-engine mapper picks a replacement. Resolution never
// fails outright, it degrades to the engine's default voice.
func ResolveVoice(ctx context.Context, e tts.Engine, cfg tts.VoiceConfig) (tts.VoiceConfig, error) {
	desc := e.Describe()
	voices, err := e.ListVoices(ctx)
	if err != nil {
		return cfg, fmt.Errorf("listing voices for %s: %w", desc.ID, err)
	}
	for _, v := range voices {
		if v.ID == cfg.VoiceName {
			return cfg, nil
		}
	}
	m := voicemap.Map(cfg.VoiceName, cfg.EngineID, desc.ID, voices)
	if m.TargetID != cfg.VoiceName {
		log.Warn("voice remapped",
			"engine", desc.ID, "from", cfg.VoiceName, "to", m.TargetID,
			"strategy", m.Strategy, "confidence", m.Confidence)
	}
	out := cfg.Clone()
	out.EngineID = desc.ID
	out.VoiceName = m.TargetID
	return out, nil
}
