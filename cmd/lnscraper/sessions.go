package main

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/spf13/cobra"

	"lnscraper/pkg/checkpoint"
	"lnscraper/pkg/config"
	"lnscraper/pkg/logger"
	"lnscraper/pkg/ui"
)

// sessionsCmd groups checkpoint management subcommands
var sessionsCmd = &cobra.Command{
	Use:   "sessions",
	Short: "Manage checkpointed extraction sessions",
	Long: `List and clean up the session records left behind by interrupted
extractions. A resumable session is picked up automatically the next
time the same extract command runs.`,
}

var sessionsListCmd = &cobra.Command{
	Use:   "list",
	Short: "List stored session records",
	RunE: func(cmd *cobra.Command, args []string) error {
		store, err := openStore()
		if err != nil {
			return err
		}

		sessions, err := store.List()
		if err != nil {
			return err
		}

		if len(sessions) == 0 {
			ui.PrintInfo("Sessions", "none")
			return nil
		}

		for _, s := range sessions {
			fmt.Printf("%s  %-11s  %s\n", s.SessionID, s.Status, s.Target)
			fmt.Printf("  collected: %s  errors: %s  last checkpoint: %s\n",
				strconv.Itoa(s.CollectedCount),
				strconv.Itoa(s.ErrorCount),
				s.LastCheckpointAt.Local().Format(time.RFC822))
		}
		return nil
	},
}

var sessionsClearCmd = &cobra.Command{
	Use:   "clear [session-id]",
	Short: "Delete session records",
	Long: `Delete a specific session record by ID, or every record when no ID is
given. A cleared session cannot be resumed.`,
	Args: cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		store, err := openStore()
		if err != nil {
			return err
		}

		if len(args) == 1 {
			if err := store.Delete(args[0]); err != nil {
				return err
			}
			ui.PrintSuccess("Session record deleted")
			return nil
		}

		sessions, err := store.List()
		if err != nil {
			return err
		}
		for _, s := range sessions {
			if err := store.Delete(s.SessionID); err != nil {
				ui.PrintWarning("Failed to delete session", s.SessionID)
			}
		}
		ui.PrintSuccess(fmt.Sprintf("Deleted %d session record(s)", len(sessions)))
		return nil
	},
}

func openStore() (*checkpoint.Store, error) {
	cfg, err := config.Load(configFile, map[string]interface{}{})
	if err != nil {
		ui.PrintError("Failed to load configuration", err.Error())
		os.Exit(1)
	}
	if err := logger.Initialize(&cfg.Logging); err != nil {
		ui.PrintError("Failed to initialize logging", err.Error())
		os.Exit(1)
	}

	dir := cfg.Checkpoint.Directory
	if dir == "" {
		dir, err = checkpoint.DefaultDir()
		if err != nil {
			return nil, err
		}
	}
	return checkpoint.NewStore(dir)
}

func init() {
	rootCmd.AddCommand(sessionsCmd)
	sessionsCmd.AddCommand(sessionsListCmd)
	sessionsCmd.AddCommand(sessionsClearCmd)
}
