package cmd

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/spf13/cobra"

	statusadapter "github.com/bnema/agentmon/internal/adapters/render/status"
	"github.com/bnema/agentmon/internal/adapters/socket"
	"github.com/bnema/agentmon/internal/application"
)

func newStatusCmd(app *app) *cobra.Command {
	var live bool

	cmd := &cobra.Command{
		Use:   "status",
		Short: "Show sessions and usage limits",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if live {
				return runLiveStatus(cmd, app)
			}

			resp, err := app.client().Do(cmd.Context(), socket.Request{Cmd: string(application.CommandList)})
			if err != nil {
				return err
			}
			return writeOverview(cmd, app, resp.Overview())
		},
	}

	cmd.Flags().BoolVarP(&live, "live", "l", false, "Keep the view open and update it as sessions change")
	return cmd
}

func writeOverview(cmd *cobra.Command, app *app, overview application.Overview) error {
	rendered, err := app.statusRenderer(overview, statusadapter.RenderOptions{
		Now:        app.now(),
		StaleAfter: 2 * app.cfg.Usage.Interval,
		Plain:      !isTerminal(cmd.OutOrStdout()),
	})
	if err != nil {
		return fmt.Errorf("render status: %w", err)
	}

	_, err = fmt.Fprintln(cmd.OutOrStdout(), rendered)
	return err
}

func runLiveStatus(cmd *cobra.Command, app *app) error {
	if !isTerminal(cmd.OutOrStdout()) {
		return errors.New("status --live needs a terminal; use `agentmon watch` for a JSON stream")
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	return statusadapter.RunLive(ctx, cmd.InOrStdin(), cmd.OutOrStdout(), statusadapter.LiveOptions{
		RenderOptions: statusadapter.RenderOptions{StaleAfter: 2 * app.cfg.Usage.Interval},
		InactiveAfter: app.cfg.Daemon.InactiveAfter,
		Clock:         app.now,
	}, subscriptionFeed(app.client()))
}

func subscriptionFeed(client *socket.Client) statusadapter.Feed {
	return func(ctx context.Context, send func(tea.Msg)) error {
		return client.Subscribe(ctx,
			func(resp socket.Response) error {
				send(statusadapter.SnapshotMsg{Overview: resp.Overview()})
				return nil
			},
			func(ev socket.EventMessage) error {
				if msg := eventMsg(ev); msg != nil {
					send(msg)
				}
				return nil
			},
		)
	}
}

func eventMsg(ev socket.EventMessage) tea.Msg {
	switch ev.Type {
	case socket.EventTypeSessionUpdate:
		if ev.Session != nil {
			return statusadapter.SessionMsg{View: ev.Session.View()}
		}
	case socket.EventTypeDelete:
		return statusadapter.DeleteMsg{SessionID: ev.SessionID}
	case socket.EventTypeUsageUpdate:
		if ev.Usage != nil {
			return statusadapter.UsageMsg{Usage: ev.Usage.Usage()}
		}
	case socket.EventTypeWarn:
		return statusadapter.WarnMsg{Message: ev.Message}
	case socket.EventTypeShutdown:
		return statusadapter.ShutdownMsg{Reason: ev.Reason}
	}
	return nil
}
