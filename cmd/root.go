package cmd

import (
	"github.com/spf13/cobra"
)

func Execute() error {
	return newRootCmd().Execute()
}

func newRootCmd() *cobra.Command {
	return newRootCmdWithApp(wireApp())
}

func newRootCmdWithApp(app *app) *cobra.Command {
	rootCmd := &cobra.Command{
		Use:           "agentmon",
		Short:         "agentmon: track the status of running coding-agent sessions",
		Long:          "agentmon runs a small per-user daemon that tracks coding-agent sessions reported by hooks, and lets you list, watch, and resurrect them from the terminal.",
		SilenceUsage:  true,
		SilenceErrors: false,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			if cmd.Annotations[annotationConfig] == skipConfig {
				return nil
			}
			return app.configure(cmd)
		},
		PersistentPostRun: func(_ *cobra.Command, _ []string) {
			app.close()
		},
	}

	rootCmd.PersistentFlags().StringVar(&app.configPath, "config", "", "Config file (default: $XDG_CONFIG_HOME/agentmon/config.toml)")
	rootCmd.PersistentFlags().StringVar(&app.socketPath, "socket", "", "Daemon socket path (overrides socket.path)")

	rootCmd.AddCommand(
		newVersionCmd(),
		newConfigCmd(app),
		newDaemonCmd(app),
		newStartCmd(app),
		newStopCmd(app),
		newPingCmd(app),
		newSetCmd(app),
		newCloseCmd(app),
		newRemoveCmd(app),
		newListCmd(app),
		newStatusCmd(app),
		newWatchCmd(app),
		newResurrectCmd(app),
		newHookCmd(app),
		newUsageCmd(app),
	)

	return rootCmd
}
