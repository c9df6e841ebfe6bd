package cmd

import (
	"fmt"
	"os"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/coreclaw/agentcore/internal/config"
	"github.com/coreclaw/agentcore/internal/sessions"
)

// sessionsCmd groups read/inspect/delete subcommands over the session
// store, operating directly on the on-disk file store (the same one
// "agentcore chat" uses) without starting the agent loop.
func sessionsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "sessions",
		Short: "Inspect or manage persisted sessions",
	}
	cmd.AddCommand(sessionsListCmd())
	cmd.AddCommand(sessionsShowCmd())
	cmd.AddCommand(sessionsDeleteCmd())
	return cmd
}

func openSessionManager() (*sessions.Manager, error) {
	cfg, err := config.Load(resolveConfigPath())
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	dir := config.ExpandHome(cfg.Sessions.Storage)
	return sessions.NewManager(dir)
}

func sessionsListCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List every known session",
		RunE: func(cmd *cobra.Command, args []string) error {
			mgr, err := openSessionManager()
			if err != nil {
				return err
			}
			infos := mgr.List()
			if len(infos) == 0 {
				fmt.Println("no sessions found")
				return nil
			}
			w := tabwriter.NewWriter(os.Stdout, 0, 2, 2, ' ', 0)
			fmt.Fprintln(w, "KEY\tMESSAGES\tISOLATED\tUPDATED")
			for _, info := range infos {
				fmt.Fprintf(w, "%s\t%d\t%v\t%s\n", info.Key, info.MessageCount, info.Isolated, info.UpdatedAt.Format(time.RFC3339))
			}
			return w.Flush()
		},
	}
}

func sessionsShowCmd() *cobra.Command {
	var limit int
	cmd := &cobra.Command{
		Use:   "show <key>",
		Short: "Print a session's message history",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			mgr, err := openSessionManager()
			if err != nil {
				return err
			}
			history := mgr.GetHistory(args[0])
			if len(history) == 0 {
				fmt.Printf("session %q not found or empty\n", args[0])
				return nil
			}
			if limit > 0 && len(history) > limit {
				history = history[len(history)-limit:]
			}
			for _, msg := range history {
				fmt.Printf("[%s] %s: %s\n", msg.Timestamp.Format(time.RFC3339), msg.Role, msg.Content.String())
			}
			return nil
		},
	}
	cmd.Flags().IntVarP(&limit, "limit", "n", 0, "show only the last N messages (0 = all)")
	return cmd
}

func sessionsDeleteCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "delete <key>",
		Short: "Delete a session from memory and disk",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			mgr, err := openSessionManager()
			if err != nil {
				return err
			}
			if err := mgr.Delete(args[0]); err != nil {
				return fmt.Errorf("delete session: %w", err)
			}
			fmt.Printf("deleted session %q\n", args[0])
			return nil
		},
	}
}
