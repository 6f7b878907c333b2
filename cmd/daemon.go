package cmd

import (
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/charmbracelet/log"
	"github.com/spf13/cobra"

	"github.com/bnema/agentmon/internal/adapters/socket"
	"github.com/bnema/agentmon/internal/config"
	"github.com/bnema/agentmon/internal/daemon"
	"github.com/bnema/agentmon/internal/ports"
)

func newDaemonCmd(app *app) *cobra.Command {
	return &cobra.Command{
		Use:   "daemon",
		Short: "Run the session daemon in the foreground",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runDaemon(cmd, app)
		},
	}
}

func runDaemon(cmd *cobra.Command, app *app) error {
	var fetcher ports.UsageFetcher
	if app.cfg.Usage.Enabled {
		usageFetcher, err := app.usageFetcher()
		if err != nil {
			return err
		}
		fetcher = usageFetcher
	}

	d := daemon.New(daemonConfig(app.cfg), daemon.Deps{
		Logger:  app.logger,
		Clock:   ports.SystemClock{},
		Fetcher: fetcher,
	})

	config.Watch(app.viper, app.logger, func(cfg config.Config) {
		level, err := log.ParseLevel(cfg.Log.Level)
		if err != nil {
			return
		}
		d.SetLogLevel(level)
	})

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := d.Run(ctx); err != nil {
		if errors.Is(err, socket.ErrAlreadyRunning) {
			return fmt.Errorf("daemon already running on %s", app.cfg.Socket.Path)
		}
		return err
	}
	return nil
}

func daemonConfig(cfg config.Config) daemon.Config {
	return daemon.Config{
		SocketPath:        cfg.Socket.Path,
		IdleCheckInterval: cfg.Daemon.IdleCheckInterval,
		IdleTimeout:       cfg.Daemon.IdleTimeout,
		InactiveAfter:     cfg.Daemon.InactiveAfter,
		HistorySize:       cfg.Daemon.HistorySize,
		SubscriberQueue:   cfg.Daemon.SubscriberQueue,
		CommandQueue:      cfg.Daemon.CommandQueue,
		MaxClosedSessions: cfg.Daemon.MaxClosedSessions,
		WriteTimeout:      cfg.Daemon.WriteTimeout,
		ShutdownTimeout:   cfg.Daemon.ShutdownTimeout,
		UsageInterval:     cfg.Usage.Interval,
		UsageTimeout:      cfg.Usage.Timeout,
		ResumeCommand:     cfg.Resurrect.Command,
	}
}
