package cmd

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"github.com/bnema/agentmon/internal/adapters/process"
	"github.com/bnema/agentmon/internal/adapters/socket"
	"github.com/bnema/agentmon/internal/application"
)

func newStartCmd(app *app) *cobra.Command {
	return &cobra.Command{
		Use:   "start",
		Short: "Start the daemon in the background if it is not running",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if resp, err := app.client().Ping(cmd.Context()); err == nil {
				_, err = fmt.Fprintf(cmd.OutOrStdout(), "daemon already running (pid %d)\n", daemonPID(resp))
				return err
			}

			var result process.Result
			err := runWithSpinner(cmd.Context(), cmd.ErrOrStderr(), "Starting daemon...", func(ctx context.Context) error {
				result = app.spawnDaemon(ctx)
				return result.Err
			})
			if err != nil {
				if result.Outcome != "" {
					return fmt.Errorf("start daemon: %s", result)
				}
				return fmt.Errorf("start daemon: %w", err)
			}

			_, err = fmt.Fprintf(cmd.OutOrStdout(), "daemon started (pid %d) on %s\n", result.PID, app.cfg.Socket.Path)
			return err
		},
	}
}

func newStopCmd(app *app) *cobra.Command {
	var confirmed bool

	cmd := &cobra.Command{
		Use:   "stop",
		Short: "Stop the daemon",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			_, err := app.client().Do(cmd.Context(), socket.Request{
				Cmd:       string(application.CommandStop),
				Confirmed: confirmed,
			})
			if errors.Is(err, socket.ErrDaemonUnavailable) {
				_, err = fmt.Fprintln(cmd.OutOrStdout(), "daemon not running")
				return err
			}

			var remote *socket.RemoteError
			if errors.As(err, &remote) && remote.Code == application.CodeUnconfirmed {
				return fmt.Errorf("%d active session(s); rerun with --yes to stop anyway", remote.ActiveSessions)
			}
			if err != nil {
				return err
			}

			_, err = fmt.Fprintln(cmd.OutOrStdout(), "daemon stopping")
			return err
		},
	}

	cmd.Flags().BoolVarP(&confirmed, "yes", "y", false, "Stop even when sessions are active")
	return cmd
}

func newPingCmd(app *app) *cobra.Command {
	var wait time.Duration

	cmd := &cobra.Command{
		Use:   "ping",
		Short: "Check that the daemon is alive",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			client := app.client()
			if wait > 0 {
				ctx, cancel := context.WithTimeout(cmd.Context(), wait)
				defer cancel()
				if err := client.WaitReady(ctx); err != nil {
					return fmt.Errorf("daemon not ready within %s: %w", wait, err)
				}
			}

			resp, err := client.Ping(cmd.Context())
			if err != nil {
				return err
			}
			if resp.Daemon == nil {
				_, err = fmt.Fprintln(cmd.OutOrStdout(), "pong")
				return err
			}

			info := resp.Daemon
			started := app.now().Add(-time.Duration(info.UptimeSeconds) * time.Second)
			_, err = fmt.Fprintf(cmd.OutOrStdout(),
				"pong: pid %d, %s, started %s, sessions %d (active %d), subscribers %d\n",
				info.PID, info.State, humanize.Time(started), info.Sessions, info.ActiveSessions, info.Subscribers,
			)
			return err
		},
	}

	cmd.Flags().DurationVar(&wait, "wait", 0, "Keep retrying until the daemon answers or this long has passed")
	return cmd
}

func daemonPID(resp socket.Response) int {
	if resp.Daemon == nil {
		return 0
	}
	return resp.Daemon.PID
}
