// Package main provides the entry point for the chaptervox CLI application.
package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/log"
	"github.com/dustin/go-humanize"
	gap "github.com/muesli/go-app-paths"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"golang.org/x/term"

	"github.com/yhl9/chaptervox/internal/cache"
	"github.com/yhl9/chaptervox/internal/config"
	"github.com/yhl9/chaptervox/internal/health"
	"github.com/yhl9/chaptervox/tts"
	"github.com/yhl9/chaptervox/tts/audio"
	"github.com/yhl9/chaptervox/ui"
)

var (
	// Version as provided by goreleaser.
	Version = ""
	// CommitSHA as provided by goreleaser.
	CommitSHA = ""

	configDir    string
	engineID     string
	voiceName    string
	rate         float64
	pitch        float64
	volume       float64
	outFormat    string
	outputDir    string
	namingMode   string
	customName   string
	subtitles    bool
	subFormat    string
	normalize    bool
	merge        bool
	mergeName    string
	chapterGap   float64
	workers      int
	tui          bool
	taskListPath string
	noCache      bool

	keyword = lipgloss.NewStyle().Foreground(lipgloss.Color("#5A56E0")).Render

	rootCmd = &cobra.Command{
		Use:   "chaptervox [FILES...]",
		Short: "Convert book chapters to audio, offline",
		Long: paragraph(fmt.Sprintf(
			"\nConvert text and markdown chapters to %s with subtitles, one audio file per chapter.",
			keyword("speech"))),
		SilenceErrors:    false,
		SilenceUsage:     true,
		TraverseChildren: true,
		Args:             cobra.ArbitraryArgs,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			return validateOptions(cmd)
		},
		RunE: execute,
	}
)

// paragraph wraps body text the way help output expects it.
func paragraph(s string) string {
	return lipgloss.NewStyle().Width(78).Padding(0, 0, 0, 2).Render(s)
}

func validateOptions(cmd *cobra.Command) error {
	engineID = viper.GetString("engine")
	voiceName = viper.GetString("voice")
	outFormat = viper.GetString("format")
	outputDir = viper.GetString("output")
	workers = viper.GetInt("workers")
	tui = viper.GetBool("tui")

	if rate != 0 && (rate < 0.1 || rate > 3.0) {
		return fmt.Errorf("rate must be between 0.1 and 3.0, got %.2f", rate)
	}
	if pitch < -50 || pitch > 50 {
		return fmt.Errorf("pitch must be between -50 and 50, got %.1f", pitch)
	}
	if volume < 0 || volume > 2.0 {
		return fmt.Errorf("volume must be between 0.0 and 2.0, got %.2f", volume)
	}
	if outFormat != "" && !tts.Format(outFormat).IsKnown() {
		return fmt.Errorf("unsupported output format %q", outFormat)
	}
	if workers < 0 || workers > 16 {
		return fmt.Errorf("workers must be between 1 and 16, got %d", workers)
	}

	// The dashboard needs a terminal; fall back to plain logging otherwise.
	if tui && !term.IsTerminal(int(os.Stdout.Fd())) {
		log.Debug("stdout is not a terminal, disabling the dashboard")
		tui = false
	}
	return nil
}

// openConfig loads the configuration tree, creating it on first run.
func openConfig() (*config.Registry, error) {
	dir := configDir
	if dir == "" {
		scope := gap.NewScope(gap.User, "chaptervox")
		dirs, err := scope.ConfigDirs()
		if err != nil || len(dirs) == 0 {
			return nil, fmt.Errorf("could not locate a configuration directory: %w", err)
		}
		dir = filepath.Join(dirs[0], "configs")
	}
	return config.NewRegistry(dir)
}

// buildVoiceConfig assembles the task voice config from flags layered over
// the stored preferences.
func buildVoiceConfig(app config.AppConfig) tts.VoiceConfig {
	prefs := app.Preferences
	cfg := tts.DefaultVoiceConfig(prefs.DefaultEngine, prefs.DefaultVoice)
	if prefs.DefaultRate > 0 {
		cfg.Rate = prefs.DefaultRate
	}
	if engineID != "" {
		cfg.EngineID = engineID
	}
	if voiceName != "" {
		cfg.VoiceName = voiceName
	}
	if rate != 0 {
		cfg.Rate = rate
	}
	cfg.Pitch = pitch
	if volume != 0 {
		cfg.Volume = volume
	}
	return cfg
}

// buildOutputConfig assembles the output config from flags layered over the
// stored preferences.
func buildOutputConfig(app config.AppConfig) *tts.OutputConfig {
	dir := outputDir
	if dir == "" {
		dir = app.Files.DefaultOutputDir
	}
	out := tts.DefaultOutputConfig(dir)
	if outFormat != "" {
		out.Format = tts.Format(outFormat)
	} else if app.Preferences.DefaultFormat != "" {
		out.Format = tts.Format(app.Preferences.DefaultFormat)
	}
	if namingMode != "" {
		out.NamingMode = tts.NamingMode(namingMode)
	}
	if customName != "" {
		out.NamingMode = tts.NamingCustom
		out.CustomTemplate = customName
	}
	out.GenerateSubtitle = subtitles || app.Preferences.GenerateSubtitle
	if subFormat != "" {
		out.SubtitleFormat = tts.SubtitleFormat(subFormat)
	} else if app.Preferences.SubtitleFormat != "" {
		out.SubtitleFormat = tts.SubtitleFormat(app.Preferences.SubtitleFormat)
	}
	out.Normalize = normalize
	out.MergeFiles = merge
	out.MergeFilename = mergeName
	out.ChapterInterval = chapterGap
	return out
}

// openCache creates the synthesis cache manager unless caching is disabled.
func openCache(reg *config.Registry) *cache.Manager {
	if noCache {
		return nil
	}
	app := reg.App()
	cfg := cache.DefaultConfig(filepath.Join(reg.BaseDir(), "..", "cache"))
	if ttl := app.Performance.CacheTTLSeconds; ttl > 0 {
		cfg.TTL = time.Duration(ttl) * time.Second
	}
	mgr, err := cache.NewManager(cfg)
	if err != nil {
		log.Warn("synthesis cache disabled", "err", err)
		return nil
	}
	return mgr
}

func execute(cmd *cobra.Command, args []string) error {
	if len(args) == 0 {
		return cmd.Help()
	}

	reg, err := openConfig()
	if err != nil {
		return err
	}
	app := reg.App()

	engines, err := buildEngineRegistry(cmd.Context(), reg)
	if err != nil {
		return err
	}
	defer engines.Close() //nolint:errcheck

	cacheMgr := openCache(reg)
	if cacheMgr != nil {
		defer cacheMgr.Close() //nolint:errcheck
	}

	transcoder := audio.NewTranscoder()
	output := buildOutputConfig(app)
	if output.Format != tts.FormatWAV {
		if err := transcoder.CheckInstalled(); err != nil {
			return fmt.Errorf("output format %s needs ffmpeg: %w", output.Format, err)
		}
	}

	if workers == 0 {
		workers = app.Performance.MaxConcurrentTasks
	}
	scheduler := tts.NewScheduler(tts.NewPipeline(engines, transcoder, cacheMgr), workers)
	defer scheduler.Close() //nolint:errcheck

	stopMonitor := startMonitor(cmd.Context(), engines, scheduler, output.OutputDir)
	defer stopMonitor()

	voice := buildVoiceConfig(app)
	for _, arg := range args {
		path, err := filepath.Abs(arg)
		if err != nil {
			return fmt.Errorf("unable to resolve %s: %w", arg, err)
		}
		if _, err := os.Stat(path); err != nil {
			return fmt.Errorf("unable to open file: %w", err)
		}
		if _, err := scheduler.AddTask(path, output.OutputDir, voice, output); err != nil {
			return err
		}
	}

	if tui {
		return runDashboard(scheduler, transcoder, output)
	}
	return runPlain(cmd.Context(), scheduler, transcoder, output)
}

// startMonitor runs periodic health sweeps for the duration of a batch.
// Failed tasks count toward the diagnostics error threshold and re-arm the
// engine probes so a dead backend gets an init retry on the next sweep.
func startMonitor(ctx context.Context, engines *tts.Registry, scheduler *tts.Scheduler, diskPath string) (stop func()) {
	monitor := health.NewMonitor(engines, diskPath)
	mctx, cancel := context.WithCancel(ctx)
	go monitor.Run(mctx) //nolint:errcheck
	scheduler.OnEvent(func(ev tts.Event) {
		if ev.Type == tts.EventTaskFailed {
			monitor.RecordError()
			monitor.ResetEngineHealthCheck()
		}
	})
	return cancel
}

// runPlain drives the batch without the dashboard, logging lifecycle events.
func runPlain(ctx context.Context, scheduler *tts.Scheduler, transcoder *audio.Transcoder, output *tts.OutputConfig) error {
	scheduler.OnEvent(func(ev tts.Event) {
		switch ev.Type {
		case tts.EventTaskStarted:
			log.Info("converting", "file", filepath.Base(ev.Task.FilePath))
		case tts.EventTaskCompleted:
			log.Info("done", "output", ev.Task.Result.Path,
				"size", humanize.Bytes(uint64(ev.Task.Result.SizeBytes)))
		case tts.EventTaskFailed:
			log.Error("conversion failed", "file", filepath.Base(ev.Task.FilePath), "err", ev.Error)
		}
	})

	if err := scheduler.StartProcessing(); err != nil {
		return err
	}
	scheduler.Wait()
	return finishBatch(ctx, scheduler, transcoder, output)
}

// runDashboard drives the batch under the interactive TUI.
func runDashboard(scheduler *tts.Scheduler, transcoder *audio.Transcoder, output *tts.OutputConfig) error {
	cfg, err := env.ParseAs[ui.Config]()
	if err != nil {
		return fmt.Errorf("error parsing config: %v", err)
	}
	w, _, err := term.GetSize(int(os.Stdout.Fd()))
	if err == nil && w > 120 {
		cfg.MaxWidth = 120
	}

	program := ui.NewProgram(cfg, scheduler)
	if err := scheduler.StartProcessing(); err != nil {
		return err
	}
	if _, err := program.Run(); err != nil {
		return fmt.Errorf("unable to run tui program: %w", err)
	}
	scheduler.Wait()
	return finishBatch(context.Background(), scheduler, transcoder, output)
}

// finishBatch merges, persists the task list and reports the outcome.
func finishBatch(ctx context.Context, scheduler *tts.Scheduler, transcoder *audio.Transcoder, output *tts.OutputConfig) error {
	var completed, failed int
	for _, t := range scheduler.Tasks() {
		switch t.Status {
		case tts.StatusCompleted:
			completed++
		case tts.StatusFailed:
			failed++
		}
	}

	if output.MergeFiles && completed > 0 {
		merged, err := scheduler.MergeCompleted(ctx, transcoder, output)
		if err != nil {
			log.Error("merging chapters", "err", err)
		} else {
			log.Info("merged", "output", merged)
		}
	}

	if taskListPath != "" {
		if err := scheduler.SaveTaskList(taskListPath); err != nil {
			log.Error("saving task list", "path", taskListPath, "err", err)
		}
	}

	log.Info("batch finished", "completed", completed, "failed", failed)
	if failed > 0 {
		return fmt.Errorf("%d of %d conversions failed", failed, completed+failed)
	}
	return nil
}

func setupLog(reg *config.Registry) {
	level := "info"
	if reg != nil {
		level = reg.App().Main.LogLevel
	}
	if env := os.Getenv("CHAPTERVOX_LOG_LEVEL"); env != "" {
		level = env
	}
	if parsed, err := log.ParseLevel(level); err == nil {
		log.SetLevel(parsed)
	}
	log.SetReportTimestamp(false)
}

func main() {
	reg, err := openConfig()
	if err != nil {
		// Config problems are reported but never fatal at startup.
		var pathErr *os.PathError
		if !errors.As(err, &pathErr) {
			fmt.Fprintln(os.Stderr, err)
		}
	}
	setupLog(reg)
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func init() {
	if len(CommitSHA) >= 7 {
		vt := rootCmd.VersionTemplate()
		rootCmd.SetVersionTemplate(vt[:len(vt)-1] + " (" + CommitSHA[0:7] + ")\n")
	}
	if Version == "" {
		Version = "unknown (built from source)"
	}
	rootCmd.Version = Version
	rootCmd.InitDefaultCompletionCmd()

	rootCmd.PersistentFlags().StringVar(&configDir, "config-dir", "", "configuration directory (default per-user config path)")
	rootCmd.Flags().StringVarP(&engineID, "engine", "e", "", "synthesis engine (piper/sapi/online_voice/emotion_api/mock)")
	rootCmd.Flags().StringVar(&voiceName, "voice", "", "voice name or id")
	rootCmd.Flags().Float64Var(&rate, "rate", 0, "speech rate multiplier (0.1-3.0)")
	rootCmd.Flags().Float64Var(&pitch, "pitch", 0, "pitch shift in semitone-like units (-50..50)")
	rootCmd.Flags().Float64Var(&volume, "volume", 0, "volume multiplier (0.0-2.0)")
	rootCmd.Flags().StringVarP(&outFormat, "format", "f", "", "output audio format (wav/mp3/ogg/m4a/flac/aac)")
	rootCmd.Flags().StringVarP(&outputDir, "output", "o", "", "output directory")
	rootCmd.Flags().StringVar(&namingMode, "naming", "", "file naming mode (chapter_number_title/number_title/title_only/number_only/original_filename)")
	rootCmd.Flags().StringVar(&customName, "name-template", "", "custom name template, e.g. \"{chapter_num}_{title}\"")
	rootCmd.Flags().BoolVar(&subtitles, "subtitles", false, "write subtitle sidecars next to the audio")
	rootCmd.Flags().StringVar(&subFormat, "subtitle-format", "", "subtitle format (srt/lrc/vtt/ass/ssa)")
	rootCmd.Flags().BoolVar(&normalize, "normalize", false, "apply loudness normalization (needs ffmpeg)")
	rootCmd.Flags().BoolVar(&merge, "merge", false, "merge all chapters into one file")
	rootCmd.Flags().StringVar(&mergeName, "merge-name", "", "merged output file name")
	rootCmd.Flags().Float64Var(&chapterGap, "chapter-gap", 0, "seconds of silence between merged chapters")
	rootCmd.Flags().IntVarP(&workers, "workers", "j", 0, "concurrent conversions (default from config)")
	rootCmd.Flags().BoolVarP(&tui, "tui", "t", true, "show the interactive dashboard")
	rootCmd.Flags().StringVar(&taskListPath, "save-tasks", "", "write the final task list as JSON to this path")
	rootCmd.Flags().BoolVar(&noCache, "no-cache", false, "disable the synthesis cache")

	_ = viper.BindPFlag("engine", rootCmd.Flags().Lookup("engine"))
	_ = viper.BindPFlag("voice", rootCmd.Flags().Lookup("voice"))
	_ = viper.BindPFlag("format", rootCmd.Flags().Lookup("format"))
	_ = viper.BindPFlag("output", rootCmd.Flags().Lookup("output"))
	_ = viper.BindPFlag("workers", rootCmd.Flags().Lookup("workers"))
	_ = viper.BindPFlag("tui", rootCmd.Flags().Lookup("tui"))

	viper.SetEnvPrefix("chaptervox")
	viper.AutomaticEnv()
	viper.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))

	rootCmd.AddCommand(configCmd, enginesCmd, voicesCmd, doctorCmd, tasksCmd)
}
