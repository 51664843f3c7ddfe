package commands

import (
	"fmt"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/jholhewres/omniclaw/pkg/omniclaw/automation"
	"github.com/jholhewres/omniclaw/pkg/omniclaw/config"
)

// newAutomationsCmd creates the `omniclaw automations` command listing the
// persisted automations without starting the daemon.
func newAutomationsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "automations",
		Short: "List persisted automations",
		RunE:  runAutomations,
	}
	cmd.Flags().String("chat", "", "only show automations for this chat")
	return cmd
}

func runAutomations(cmd *cobra.Command, _ []string) error {
	cfg, _, err := resolveConfig(cmd)
	if err != nil {
		return err
	}
	logger := newLogger(cmd, cfg)

	mgr := automation.NewManager(automation.Options{
		Path: filepath.Join(config.HomeDir(), "automations.json"),
	}, logger)
	defer mgr.Close()
	if err := mgr.Load(); err != nil {
		return fmt.Errorf("loading automations: %w", err)
	}

	chat, _ := cmd.Flags().GetString("chat")
	autos := mgr.List(chat)
	if len(autos) == 0 {
		fmt.Println("No automations.")
		return nil
	}

	for _, a := range autos {
		state := "enabled"
		if !a.Enabled {
			state = "paused"
		}
		fmt.Printf("%s  %-20s %s  [%s]\n", a.ID, a.Name, a.Schedule.Describe(), state)
		if a.Description != "" {
			fmt.Printf("    %s\n", a.Description)
		}
		if a.NextRun != nil {
			fmt.Printf("    next: %s  runs: %d\n", a.NextRun.Format("2006-01-02 15:04"), a.RunCount)
		}
		if a.LastError != "" {
			fmt.Printf("    last error: %s\n", a.LastError)
		}
	}
	return nil
}
