// Package catalog loads the curated voice catalog that augments what the
// engines report: display names, descriptions and recommendation flags used
// by the voice picker.
package catalog

import (
	"encoding/json"
	"fmt"
	"os"
	"sort"

	"github.com/charmbracelet/log"
)

// Entry is the curated description of one voice.
type Entry struct {
	Name          string   `json:"name"`
	Language      string   `json:"language"`
	Gender        string   `json:"gender,omitempty"`
	Description   string   `json:"description,omitempty"`
	Personalities []string `json:"personalities,omitempty"`
	IsPopular     bool     `json:"is_popular,omitempty"`
	IsRecommended bool     `json:"is_recommended,omitempty"`
}

// Metadata identifies the catalog revision.
type Metadata struct {
	Version string `json:"version"`
	Source  string `json:"source,omitempty"`
}

// Catalog is the full curated voice catalog.
type Catalog struct {
	Metadata Metadata         `json:"metadata"`
	Voices   map[string]Entry `json:"voices"`
}

// Load reads a catalog file, falling back to the builtin catalog when the
// file is missing or unreadable.
func Load(path string) *Catalog {
	data, err := os.ReadFile(path)
	if err != nil {
		if !os.IsNotExist(err) {
			log.Warn("voice catalog unreadable, using builtin", "path", path, "err", err)
		}
		return Builtin()
	}
	var c Catalog
	if err := json.Unmarshal(data, &c); err != nil {
		log.Warn("voice catalog malformed, using builtin", "path", path, "err", err)
		return Builtin()
	}
	if c.Voices == nil {
		c.Voices = make(map[string]Entry)
	}
	log.Debug("voice catalog loaded", "path", path, "version", c.Metadata.Version, "voices", len(c.Voices))
	return &c
}

// Save writes the catalog to path.
func (c *Catalog) Save(path string) error {
	data, err := json.MarshalIndent(c, "", "  ")
	if err != nil {
		return err
	}
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return fmt.Errorf("writing voice catalog: %w", err)
	}
	return os.Rename(tmp, path)
}

// Get returns the curated entry for a voice id.
func (c *Catalog) Get(id string) (Entry, bool) {
	e, ok := c.Voices[id]
	return e, ok
}

// Recommended returns the recommended voice ids in stable order.
func (c *Catalog) Recommended() []string {
	var ids []string
	for id, e := range c.Voices {
		if e.IsRecommended {
			ids = append(ids, id)
		}
	}
	sort.Strings(ids)
	return ids
}

// ByLanguage returns the voice ids for a language tag in stable order.
func (c *Catalog) ByLanguage(lang string) []string {
	var ids []string
	for id, e := range c.Voices {
		if e.Language == lang {
			ids = append(ids, id)
		}
	}
	sort.Strings(ids)
	return ids
}

// Builtin returns the catalog compiled into the binary, used when no
// catalog file is configured.
func Builtin() *Catalog {
	return &Catalog{
		Metadata: Metadata{Version: "1.0.0", Source: "builtin"},
		Voices: map[string]Entry{
			"en-US-AriaNeural": {
				Name: "Aria", Language: "en-US", Gender: "female",
				Description:   "Conversational narrator with a neutral accent",
				Personalities: []string{"warm", "clear"},
				IsPopular:     true, IsRecommended: true,
			},
			"en-US-GuyNeural": {
				Name: "Guy", Language: "en-US", Gender: "male",
				Description: "Steady male narrator", IsPopular: true,
			},
			"en-GB-SoniaNeural": {
				Name: "Sonia", Language: "en-GB", Gender: "female",
				Description: "British English narrator",
			},
			"zh-CN-XiaoxiaoNeural": {
				Name: "晓晓", Language: "zh-CN", Gender: "female",
				Description:   "多情感中文女声",
				Personalities: []string{"lively", "warm"},
				IsPopular:     true, IsRecommended: true,
			},
			"zh-CN-YunxiNeural": {
				Name: "云希", Language: "zh-CN", Gender: "male",
				Description: "阳光少年音",
			},
			"8051": {
				Name: "晓晓（情感）", Language: "zh-CN", Gender: "female",
				Description:   "情感合成专用音色",
				Personalities: []string{"happy", "sad", "angry"},
				IsRecommended: true,
			},
			"en_US-amy-medium": {
				Name: "Amy", Language: "en-US", Gender: "female",
				Description: "Offline neural voice, medium quality",
			},
		},
	}
}
