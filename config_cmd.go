package main

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/charmbracelet/x/editor"
	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"
)

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Inspect and edit the configuration",
	Long: paragraph(fmt.Sprintf(
		"\n%s the configuration tree. Sections live as separate JSON files; edits are validated and rejected when out of range.",
		keyword("Inspect and edit"))),
}

var configShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Print the effective configuration as JSON",
	Args:  cobra.NoArgs,
	RunE: func(*cobra.Command, []string) error {
		reg, err := openConfig()
		if err != nil {
			return err
		}
		data, err := json.MarshalIndent(reg.App(), "", "  ")
		if err != nil {
			return err
		}
		fmt.Println(string(data))
		fmt.Fprintln(os.Stderr, "config dir:", reg.BaseDir())
		return nil
	},
}

var configEditCmd = &cobra.Command{
	Use:       "edit [SECTION]",
	Short:     "Edit a configuration section with EDITOR",
	Example:   paragraph("chaptervox config edit preferences"),
	Args:      cobra.MaximumNArgs(1),
	ValidArgs: []string{"main", "ui", "files", "performance", "preferences"},
	RunE: func(_ *cobra.Command, args []string) error {
		reg, err := openConfig()
		if err != nil {
			return err
		}
		section := "preferences"
		if len(args) == 1 {
			section = args[0]
		}
		path := filepath.Join(reg.BaseDir(), "app", section+".json")
		if _, err := os.Stat(path); err != nil {
			return fmt.Errorf("unknown section %q: %w", section, err)
		}

		c, err := editor.Cmd("chaptervox", path)
		if err != nil {
			return fmt.Errorf("unable to set config file: %w", err)
		}
		c.Stdin = os.Stdin
		c.Stdout = os.Stdout
		c.Stderr = os.Stderr
		if err := c.Run(); err != nil {
			return fmt.Errorf("unable to run command: %w", err)
		}
		fmt.Println("Wrote config file to:", path)
		return nil
	},
}

var backupLabel string

var configBackupCmd = &cobra.Command{
	Use:   "backup",
	Short: "Snapshot the configuration tree",
	Args:  cobra.NoArgs,
	RunE: func(*cobra.Command, []string) error {
		reg, err := openConfig()
		if err != nil {
			return err
		}
		info, err := reg.CreateBackup(backupLabel)
		if err != nil {
			return err
		}
		fmt.Printf("created backup %s (%d files, %s)\n",
			info.ID, info.Files, humanize.Bytes(uint64(info.SizeBytes)))
		return nil
	},
}

var configBackupsCmd = &cobra.Command{
	Use:   "backups",
	Short: "List configuration backups",
	Args:  cobra.NoArgs,
	RunE: func(*cobra.Command, []string) error {
		reg, err := openConfig()
		if err != nil {
			return err
		}
		backups, err := reg.Backups()
		if err != nil {
			return err
		}
		if len(backups) == 0 {
			fmt.Println("no backups")
			return nil
		}
		for _, b := range backups {
			label := b.Label
			if label == "" {
				label = "-"
			}
			if b.Auto {
				label += " (auto)"
			}
			fmt.Printf("%s  %s  %-7s %-20s %s\n",
				b.ID, b.CreatedAt.Format(time.RFC3339), b.ConfigType, label,
				humanize.Bytes(uint64(b.SizeBytes)))
		}
		return nil
	},
}

var configRestoreCmd = &cobra.Command{
	Use:   "restore BACKUP_ID",
	Short: "Restore the configuration from a backup",
	Args:  cobra.ExactArgs(1),
	RunE: func(_ *cobra.Command, args []string) error {
		reg, err := openConfig()
		if err != nil {
			return err
		}
		if err := reg.RestoreBackup(args[0]); err != nil {
			return err
		}
		fmt.Println("configuration restored from", args[0])
		return nil
	},
}

var configTemplatesCmd = &cobra.Command{
	Use:   "templates",
	Short: "List stored configuration presets",
	Args:  cobra.NoArgs,
	RunE: func(*cobra.Command, []string) error {
		reg, err := openConfig()
		if err != nil {
			return err
		}
		names, err := reg.Templates()
		if err != nil {
			return err
		}
		if len(names) == 0 {
			fmt.Println("no templates")
			return nil
		}
		for _, name := range names {
			fmt.Println(name)
		}
		return nil
	},
}

var configApplyCmd = &cobra.Command{
	Use:   "apply TEMPLATE",
	Short: "Copy a preset's sections into the live configuration",
	Args:  cobra.ExactArgs(1),
	RunE: func(_ *cobra.Command, args []string) error {
		reg, err := openConfig()
		if err != nil {
			return err
		}
		if err := reg.ApplyTemplate(args[0]); err != nil {
			return err
		}
		fmt.Println("applied template", args[0])
		return nil
	},
}

func init() {
	configBackupCmd.Flags().StringVar(&backupLabel, "label", "", "label for the backup")
	configCmd.AddCommand(configShowCmd, configEditCmd, configBackupCmd, configBackupsCmd,
		configRestoreCmd, configTemplatesCmd, configApplyCmd)
}
