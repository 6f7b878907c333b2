package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/bnema/agentmon/internal/config"
)

func newConfigCmd(app *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Manage the agentmon config file",
	}

	cmd.AddCommand(newConfigInitCmd(app), newConfigPathCmd(app))
	return cmd
}

func newConfigInitCmd(app *app) *cobra.Command {
	var force bool

	cmd := &cobra.Command{
		Use:         "init",
		Short:       "Write a config file populated with the defaults",
		Args:        cobra.NoArgs,
		Annotations: map[string]string{annotationConfig: skipConfig},
		RunE: func(cmd *cobra.Command, _ []string) error {
			path, err := configFilePath(app)
			if err != nil {
				return err
			}

			defaults, err := config.Defaults()
			if err != nil {
				return err
			}
			if err := config.WriteDefault(path, defaults, force); err != nil {
				return err
			}

			_, err = fmt.Fprintf(cmd.OutOrStdout(), "wrote %s\n", path)
			return err
		},
	}

	cmd.Flags().BoolVar(&force, "force", false, "Overwrite an existing config file")
	return cmd
}

func newConfigPathCmd(app *app) *cobra.Command {
	return &cobra.Command{
		Use:         "path",
		Short:       "Print the config file path",
		Args:        cobra.NoArgs,
		Annotations: map[string]string{annotationConfig: skipConfig},
		RunE: func(cmd *cobra.Command, _ []string) error {
			path, err := configFilePath(app)
			if err != nil {
				return err
			}
			_, err = fmt.Fprintln(cmd.OutOrStdout(), path)
			return err
		},
	}
}

func configFilePath(app *app) (string, error) {
	if app.configPath != "" {
		return app.configPath, nil
	}
	return config.Path()
}
