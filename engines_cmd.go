package main

import (
	"fmt"
	"path/filepath"
	"sort"
	"strconv"
	"time"

	"github.com/spf13/cobra"

	"github.com/yhl9/chaptervox/internal/catalog"
	"github.com/yhl9/chaptervox/internal/config"
)

var enginesCmd = &cobra.Command{
	Use:   "engines",
	Short: "Manage synthesis engines",
}

var enginesListCmd = &cobra.Command{
	Use:   "list",
	Short: "List engines and their stored settings",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		cfg, err := openConfig()
		if err != nil {
			return err
		}
		registry, err := buildEngineRegistry(cmd.Context(), cfg)
		if err != nil {
			return err
		}
		defer registry.Close() //nolint:errcheck

		for _, id := range registry.IDs() {
			ec, err := registry.Config(id)
			if err != nil {
				continue
			}
			enabled := "enabled"
			if !ec.Enabled {
				enabled = "disabled"
			}
			fmt.Printf("%-14s %-11s priority %3d  %s\n",
				id, enabled, ec.Priority, ec.Status.State)
		}
		return nil
	},
}

var enginesEnableCmd = &cobra.Command{
	Use:   "enable ENGINE",
	Short: "Enable an engine",
	Args:  cobra.ExactArgs(1),
	RunE:  func(_ *cobra.Command, args []string) error { return setEngineEnabled(args[0], true) },
}

var enginesDisableCmd = &cobra.Command{
	Use:   "disable ENGINE",
	Short: "Disable an engine",
	Args:  cobra.ExactArgs(1),
	RunE:  func(_ *cobra.Command, args []string) error { return setEngineEnabled(args[0], false) },
}

var enginesPriorityCmd = &cobra.Command{
	Use:   "priority ENGINE VALUE",
	Short: "Set an engine's fallback priority (0-100)",
	Args:  cobra.ExactArgs(2),
	RunE: func(_ *cobra.Command, args []string) error {
		priority, err := strconv.Atoi(args[1])
		if err != nil {
			return fmt.Errorf("priority must be a number: %w", err)
		}
		return updateEngineRecord(args[0], func(rec *config.EngineRecord) {
			rec.Priority = priority
		})
	},
}

func setEngineEnabled(id string, enabled bool) error {
	return updateEngineRecord(id, func(rec *config.EngineRecord) {
		rec.Enabled = enabled
	})
}

func updateEngineRecord(id string, mutate func(*config.EngineRecord)) error {
	cfg, err := openConfig()
	if err != nil {
		return err
	}
	rec, ok := cfg.Engine(id)
	if !ok {
		rec = config.EngineRecord{
			ID:       id,
			Enabled:  true,
			Priority: defaultPriorities[id],
		}
	}
	mutate(&rec)
	rec.UpdatedAt = time.Now()
	if err := cfg.SetEngine(rec); err != nil {
		return err
	}
	fmt.Printf("%s: enabled=%v priority=%d\n", rec.ID, rec.Enabled, rec.Priority)
	return nil
}

var voicesLanguage string

var voicesCmd = &cobra.Command{
	Use:   "voices",
	Short: "List known voices",
	Args:  cobra.NoArgs,
	RunE: func(*cobra.Command, []string) error {
		cfg, err := openConfig()
		if err != nil {
			return err
		}
		cat := catalog.Load(filepath.Join(cfg.BaseDir(), "voices.json"))

		ids := sortedVoiceIDs(cat)
		if voicesLanguage != "" {
			ids = cat.ByLanguage(voicesLanguage)
		}
		for _, id := range ids {
			e, ok := cat.Get(id)
			if !ok {
				continue
			}
			marker := " "
			if e.IsRecommended {
				marker = "*"
			}
			fmt.Printf("%s %-24s %-20s %-8s %-8s %s\n", marker, id, e.Name, e.Language, e.Gender, e.Description)
		}
		return nil
	},
}

func sortedVoiceIDs(cat *catalog.Catalog) []string {
	ids := make([]string, 0, len(cat.Voices))
	for id := range cat.Voices {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

func init() {
	voicesCmd.Flags().StringVarP(&voicesLanguage, "language", "l", "", "filter by language, e.g. zh-CN")
	enginesCmd.AddCommand(enginesListCmd, enginesEnableCmd, enginesDisableCmd, enginesPriorityCmd)
}
