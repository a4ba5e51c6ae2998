// Package voicemap translates voice identifiers between engines. Mapping is
// a pure function of its arguments and the static tables: an exact table
// lookup first, then a fuzzy language-based match, then the target engine's
// default voice as a last resort. It always succeeds.
package voicemap

import (
	"regexp"
	"strings"

	"github.com/sahilm/fuzzy"

	"github.com/yhl9/chaptervox/tts"
)

// Strategy names the tier that produced a mapping.
type Strategy string

const (
	// StrategyExact means the static cross-engine table had an entry.
	StrategyExact Strategy = "exact"
	// StrategyFuzzy means a language-compatible target voice was chosen.
	StrategyFuzzy Strategy = "fuzzy"
	// StrategyFallback means the target engine's default voice was used.
	StrategyFallback Strategy = "fallback"
)

// Mapping is the result of translating a voice id to a target engine.
type Mapping struct {
	SourceID   string
	TargetID   string
	Confidence float64
	Strategy   Strategy
}

// langPattern extracts a language-ish token such as "zh-CN", "en-US" or the
// "xx_YY" prefix some engines use.
var langPattern = regexp.MustCompile(`([a-z]{2})[-_]([A-Za-z]{2})`)

// LanguageOf extracts the language tag embedded in a voice id, normalized to
// the xx-YY form. It returns "" when the id carries no language hint.
func LanguageOf(voiceID string) string {
	m := langPattern.FindStringSubmatch(voiceID)
	if m == nil {
		return ""
	}
	return m[1] + "-" + strings.ToUpper(m[2])
}

// Map translates sourceID from sourceEngine to targetEngine, choosing among
// targetVoices. Identity mappings short-circuit to exact with confidence 1.
func Map(sourceID, sourceEngine, targetEngine string, targetVoices []tts.VoiceInfo) Mapping {
	if sourceEngine == targetEngine {
		return Mapping{SourceID: sourceID, TargetID: sourceID, Confidence: 1.0, Strategy: StrategyExact}
	}

	// Tier 1: static table.
	if table, ok := crossEngineTable[enginePair{sourceEngine, targetEngine}]; ok {
		if target, ok := table[sourceID]; ok && contains(targetVoices, target) {
			return Mapping{SourceID: sourceID, TargetID: target, Confidence: 1.0, Strategy: StrategyExact}
		}
	}

	// Tier 2: language-compatible target voice. Among candidates sharing the
	// source language, a fuzzy match on the id picks the most similar one.
	if lang := LanguageOf(sourceID); lang != "" {
		var sameLang []tts.VoiceInfo
		for _, v := range targetVoices {
			if strings.EqualFold(v.Language, lang) || strings.EqualFold(LanguageOf(v.ID), lang) {
				sameLang = append(sameLang, v)
			}
		}
		if len(sameLang) > 0 {
			target := sameLang[0].ID
			ids := make([]string, len(sameLang))
			for i, v := range sameLang {
				ids[i] = v.ID
			}
			if matches := fuzzy.Find(sourceID, ids); len(matches) > 0 {
				target = ids[matches[0].Index]
			}
			return Mapping{SourceID: sourceID, TargetID: target, Confidence: 0.8, Strategy: StrategyFuzzy}
		}
	}

	// Tier 3: per-engine default.
	return Mapping{
		SourceID:   sourceID,
		TargetID:   DefaultVoice(targetEngine),
		Confidence: 0.5,
		Strategy:   StrategyFallback,
	}
}

// DefaultVoice returns the fallback voice for an engine.
func DefaultVoice(engineID string) string {
	if v, ok := defaultVoices[engineID]; ok {
		return v
	}
	return "default"
}

func contains(voices []tts.VoiceInfo, id string) bool {
	for _, v := range voices {
		if v.ID == id {
			return true
		}
	}
	return false
}
