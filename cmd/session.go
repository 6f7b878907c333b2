package cmd

import (
	"encoding/json"
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/bnema/agentmon/internal/adapters/socket"
	"github.com/bnema/agentmon/internal/application"
)

func newSetCmd(app *app) *cobra.Command {
	var status string
	var priority uint32
	var dir string

	cmd := &cobra.Command{
		Use:   "set <session-id>",
		Short: "Create or update a session",
		Long:  "Create or update a session. A new session needs --status; only the flags you pass are changed.",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			req := socket.Request{Cmd: string(application.CommandSet), SessionID: args[0]}
			if cmd.Flags().Changed("status") {
				req.Status = &status
			}
			if cmd.Flags().Changed("priority") {
				req.Priority = &priority
			}
			if cmd.Flags().Changed("dir") {
				req.WorkingDir = &dir
			}

			resp, err := app.client().Do(cmd.Context(), req)
			if err != nil {
				return err
			}
			return writeSessionLine(cmd.OutOrStdout(), resp.Session)
		},
	}

	cmd.Flags().StringVar(&status, "status", "", "Status: working, attention, question, or closed")
	cmd.Flags().Uint32Var(&priority, "priority", 0, "Priority (higher sorts first within a status group)")
	cmd.Flags().StringVar(&dir, "dir", "", "Working directory of the session")
	return cmd
}

func newCloseCmd(app *app) *cobra.Command {
	return &cobra.Command{
		Use:   "close <session-id>",
		Short: "Mark a session as closed",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			resp, err := app.client().Do(cmd.Context(), socket.Request{
				Cmd:       string(application.CommandClose),
				SessionID: args[0],
			})
			if err != nil {
				return err
			}
			return writeSessionLine(cmd.OutOrStdout(), resp.Session)
		},
	}
}

func newRemoveCmd(app *app) *cobra.Command {
	return &cobra.Command{
		Use:     "rm <session-id>",
		Aliases: []string{"remove"},
		Short:   "Forget a session",
		Args:    cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if _, err := app.client().Do(cmd.Context(), socket.Request{
				Cmd:       string(application.CommandRemove),
				SessionID: args[0],
			}); err != nil {
				return err
			}
			_, err := fmt.Fprintf(cmd.OutOrStdout(), "removed %s\n", args[0])
			return err
		},
	}
}

func newResurrectCmd(app *app) *cobra.Command {
	var asJSON bool

	cmd := &cobra.Command{
		Use:   "resurrect <session-id>",
		Short: "Print the command that resumes a session",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			resp, err := app.client().Do(cmd.Context(), socket.Request{
				Cmd:       string(application.CommandResurrect),
				SessionID: args[0],
			})
			if err != nil {
				return err
			}

			if asJSON {
				enc := json.NewEncoder(cmd.OutOrStdout())
				enc.SetIndent("", "  ")
				return enc.Encode(struct {
					SessionID  string  `json:"session_id"`
					WorkingDir *string `json:"working_dir"`
					Command    string  `json:"command"`
				}{resp.SessionID, resp.WorkingDir, resp.Command})
			}

			_, err = fmt.Fprintln(cmd.OutOrStdout(), resp.Command)
			return err
		},
	}

	cmd.Flags().BoolVar(&asJSON, "json", false, "Render JSON output")
	return cmd
}

func writeSessionLine(w io.Writer, snap *socket.Snapshot) error {
	if snap == nil {
		return nil
	}

	dir := "-"
	if snap.WorkingDir != nil {
		dir = *snap.WorkingDir
	}
	_, err := fmt.Fprintf(w, "%s %s priority=%d dir=%s\n", snap.SessionID, snap.Status, snap.Priority, dir)
	return err
}
