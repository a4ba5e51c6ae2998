package main

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/yhl9/chaptervox/tts"
	"github.com/yhl9/chaptervox/tts/audio"
)

var tasksCmd = &cobra.Command{
	Use:   "tasks",
	Short: "Inspect and resume saved task lists",
}

var tasksShowCmd = &cobra.Command{
	Use:   "show LIST",
	Short: "Print a saved task list",
	Args:  cobra.ExactArgs(1),
	RunE: func(_ *cobra.Command, args []string) error {
		data, err := os.ReadFile(args[0])
		if err != nil {
			return err
		}
		var list tts.TaskList
		if err := json.Unmarshal(data, &list); err != nil {
			return fmt.Errorf("malformed task list: %w", err)
		}
		fmt.Printf("exported %s, %d tasks\n\n", list.ExportedAt.Format("2006-01-02 15:04"), len(list.Tasks))
		for _, t := range list.Tasks {
			line := fmt.Sprintf("%-10s %3d%%  %s", t.Status, t.Progress, t.FilePath)
			if t.ErrorMessage != "" {
				line += "  (" + t.ErrorMessage + ")"
			}
			fmt.Println(line)
		}
		return nil
	},
}

var tasksResumeCmd = &cobra.Command{
	Use:   "resume LIST",
	Short: "Re-run the unfinished tasks of a saved list",
	Long: paragraph("\nLoads a saved task list and converts every pending, failed or cancelled entry again. Completed entries are skipped."),
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := openConfig()
		if err != nil {
			return err
		}
		engines, err := buildEngineRegistry(cmd.Context(), cfg)
		if err != nil {
			return err
		}
		defer engines.Close() //nolint:errcheck

		cacheMgr := openCache(cfg)
		if cacheMgr != nil {
			defer cacheMgr.Close() //nolint:errcheck
		}

		transcoder := audio.NewTranscoder()
		app := cfg.App()
		if workers == 0 {
			workers = app.Performance.MaxConcurrentTasks
		}
		scheduler := tts.NewScheduler(tts.NewPipeline(engines, transcoder, cacheMgr), workers)
		defer scheduler.Close() //nolint:errcheck

		n, err := scheduler.LoadTaskList(args[0])
		if err != nil {
			return err
		}
		if n == 0 {
			fmt.Println("nothing to resume")
			return nil
		}

		output := buildOutputConfig(app)
		stopMonitor := startMonitor(cmd.Context(), engines, scheduler, output.OutputDir)
		defer stopMonitor()

		if tui {
			return runDashboard(scheduler, transcoder, output)
		}
		return runPlain(cmd.Context(), scheduler, transcoder, output)
	},
}

func init() {
	tasksCmd.AddCommand(tasksShowCmd, tasksResumeCmd)
}
