package cmd

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"

	"github.com/bnema/agentmon/internal/adapters/socket"
	usageadapter "github.com/bnema/agentmon/internal/adapters/usage"
	"github.com/bnema/agentmon/internal/application"
	"github.com/bnema/agentmon/internal/domain"
)

func newUsageCmd(app *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "usage",
		Short: "Fetch usage limits and manage the usage token",
	}

	cmd.AddCommand(newUsageFetchCmd(app), newUsageTokenCmd(app))
	return cmd
}

func newUsageFetchCmd(app *app) *cobra.Command {
	var asJSON bool

	cmd := &cobra.Command{
		Use:   "fetch",
		Short: "Fetch and display usage limits without going through the daemon",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			fetcher, err := app.usageFetcher()
			if err != nil {
				return err
			}

			var usage domain.Usage
			fetch := func(ctx context.Context) error {
				var fetchErr error
				usage, fetchErr = fetcher.Fetch(ctx)
				return fetchErr
			}
			if asJSON {
				err = fetch(cmd.Context())
			} else {
				err = runWithSpinner(cmd.Context(), cmd.ErrOrStderr(), "Fetching usage limits...", fetch)
			}
			if err != nil {
				if errors.Is(err, usageadapter.ErrSessionExpired) {
					return fmt.Errorf("usage token rejected, store a fresh one with `agentmon usage token set`: %w", err)
				}
				return fmt.Errorf("fetch usage: %w", err)
			}

			if asJSON {
				enc := json.NewEncoder(cmd.OutOrStdout())
				enc.SetIndent("", "  ")
				return enc.Encode(socket.NewUsageSnapshot(&usage))
			}
			return writeOverview(cmd, app, application.Overview{Usage: &usage})
		},
	}

	cmd.Flags().BoolVar(&asJSON, "json", false, "Render JSON output")
	return cmd
}

func newUsageTokenCmd(app *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "token",
		Short: "Store or delete the usage access token",
	}

	cmd.AddCommand(newUsageTokenSetCmd(app), newUsageTokenRemoveCmd(app))
	return cmd
}

func newUsageTokenSetCmd(app *app) *cobra.Command {
	var value string

	cmd := &cobra.Command{
		Use:   "set",
		Short: "Store the usage token (from --value or stdin)",
		Long: "Store the usage token. The value may be a bare access token or a JSON bundle " +
			`{"access_token": "...", "id_token": "..."}. Without --value it is read from stdin.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if !cmd.Flags().Changed("value") {
				data, err := io.ReadAll(io.LimitReader(cmd.InOrStdin(), socket.MaxLineBytes))
				if err != nil {
					return fmt.Errorf("read token from stdin: %w", err)
				}
				value = string(data)
			}
			value = strings.TrimSpace(value)
			if value == "" {
				return errors.New("usage token is empty")
			}

			store, err := app.secretStore()
			if err != nil {
				return err
			}
			if err := store.Put(cmd.Context(), app.cfg.Usage.SecretRef, value); err != nil {
				return fmt.Errorf("store usage token: %w", err)
			}

			_, err = fmt.Fprintf(cmd.OutOrStdout(), "stored usage token at %s\n", app.cfg.Usage.SecretRef)
			return err
		},
	}

	cmd.Flags().StringVar(&value, "value", "", "Token value (prefer stdin to keep it out of shell history)")
	return cmd
}

func newUsageTokenRemoveCmd(app *app) *cobra.Command {
	return &cobra.Command{
		Use:     "rm",
		Aliases: []string{"remove"},
		Short:   "Delete the stored usage token",
		Args:    cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			store, err := app.secretStore()
			if err != nil {
				return err
			}
			if err := store.Delete(cmd.Context(), app.cfg.Usage.SecretRef); err != nil {
				return fmt.Errorf("delete usage token: %w", err)
			}

			_, err = fmt.Fprintln(cmd.OutOrStdout(), "deleted usage token")
			return err
		},
	}
}
