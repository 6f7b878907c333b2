package cmd

import (
	"context"
	"encoding/json"
	"errors"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/bnema/agentmon/internal/adapters/socket"
)

func newWatchCmd(app *app) *cobra.Command {
	return &cobra.Command{
		Use:   "watch",
		Short: "Stream the session snapshot and every later change as JSON lines",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			enc := json.NewEncoder(cmd.OutOrStdout())
			err := app.client().Subscribe(ctx,
				func(resp socket.Response) error {
					out := listOutput{Sessions: resp.Sessions, Usage: resp.Usage}
					if out.Sessions == nil {
						out.Sessions = []socket.Snapshot{}
					}
					return enc.Encode(out)
				},
				func(ev socket.EventMessage) error {
					return enc.Encode(ev)
				},
			)
			if errors.Is(err, context.Canceled) {
				return nil
			}
			return err
		},
	}
}
