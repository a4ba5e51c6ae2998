package tts

import (
	"encoding/json"
	"errors"
	"testing"
)

func TestVoiceConfigValidate(t *testing.T) {
	valid := DefaultVoiceConfig("mock", "voice")
	tests := []struct {
		name   string
		mutate func(*VoiceConfig)
		ok     bool
	}{
		{"defaults are valid", func(*VoiceConfig) {}, true},
		{"empty engine", func(c *VoiceConfig) { c.EngineID = "" }, false},
		{"empty voice", func(c *VoiceConfig) { c.VoiceName = "" }, false},
		{"rate at floor", func(c *VoiceConfig) { c.Rate = 0.1 }, true},
		{"rate below floor", func(c *VoiceConfig) { c.Rate = 0.05 }, false},
		{"rate at ceiling", func(c *VoiceConfig) { c.Rate = 3.0 }, true},
		{"rate above ceiling", func(c *VoiceConfig) { c.Rate = 3.1 }, false},
		{"pitch at bounds", func(c *VoiceConfig) { c.Pitch = -50 }, true},
		{"pitch out of bounds", func(c *VoiceConfig) { c.Pitch = 51 }, false},
		{"volume at floor", func(c *VoiceConfig) { c.Volume = 0 }, true},
		{"volume above ceiling", func(c *VoiceConfig) { c.Volume = 2.5 }, false},
		{"unknown format", func(c *VoiceConfig) { c.OutputFormat = "flv" }, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := valid
			tt.mutate(&cfg)
			err := cfg.Validate()
			if tt.ok && err != nil {
				t.Errorf("unexpected error: %v", err)
			}
			if !tt.ok {
				if err == nil {
					t.Fatal("expected error")
				}
				if !errors.Is(err, ErrInvalidConfig) {
					t.Errorf("err = %v, want ErrInvalidConfig", err)
				}
			}
		})
	}
}

func TestVoiceConfigClone(t *testing.T) {
	cfg := DefaultVoiceConfig("mock", "voice")
	cfg.Extra = map[string]string{"style": "narration"}
	clone := cfg.Clone()
	clone.Extra["style"] = "mutated"
	if cfg.Extra["style"] != "narration" {
		t.Error("clone shares the extra map")
	}
}

func TestFormatIsKnown(t *testing.T) {
	for _, f := range KnownFormats {
		if !f.IsKnown() {
			t.Errorf("%s should be known", f)
		}
	}
	if Format("flv").IsKnown() {
		t.Error("flv should not be known")
	}
	if Format("").IsKnown() {
		t.Error("empty format should not be known")
	}
}

func TestEngineStateJSON(t *testing.T) {
	data, err := json.Marshal(EngineAvailable)
	if err != nil {
		t.Fatal(err)
	}
	if string(data) != `"available"` {
		t.Errorf("marshalled = %s", data)
	}
	var s EngineState
	if err := json.Unmarshal([]byte(`"error"`), &s); err != nil {
		t.Fatal(err)
	}
	if s != EngineError {
		t.Errorf("unmarshalled = %v", s)
	}
}

func TestDefaultOutputConfig(t *testing.T) {
	cfg := DefaultOutputConfig("/tmp/out")
	if cfg.Format != FormatWAV || cfg.SampleRate != 22050 || cfg.Channels != 1 {
		t.Errorf("unexpected defaults: %+v", cfg)
	}
	if cfg.NamingMode != NamingChapterNumberTitle {
		t.Errorf("naming mode = %s", cfg.NamingMode)
	}
	if cfg.NameLengthLimit != 80 {
		t.Errorf("name length limit = %d", cfg.NameLengthLimit)
	}
}
