package ui

// Config contains TUI-specific configuration.
type Config struct {
	HomeDir string `env:"HOME"`

	// MaxWidth caps the rendered dashboard width; zero means the full
	// terminal width.
	MaxWidth uint

	// ShowCompleted keeps finished tasks in the list instead of collapsing
	// them into the summary line.
	ShowCompleted bool `env:"CHAPTERVOX_SHOW_COMPLETED" envDefault:"true"`

	// For debugging the UI.
	NoColor bool `env:"CHAPTERVOX_NO_COLOR"`
}
