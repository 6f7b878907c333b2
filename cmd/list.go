package cmd

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	statusadapter "github.com/bnema/agentmon/internal/adapters/render/status"
	"github.com/bnema/agentmon/internal/adapters/socket"
	"github.com/bnema/agentmon/internal/application"
)

const (
	formatTable = "table"
	formatJSON  = "json"
	formatYAML  = "yaml"
)

type listOutput struct {
	Sessions []socket.Snapshot    `json:"sessions" yaml:"sessions"`
	Usage    *socket.UsageSnapshot `json:"usage,omitempty" yaml:"usage,omitempty"`
}

func newListCmd(app *app) *cobra.Command {
	var format string

	cmd := &cobra.Command{
		Use:     "list",
		Aliases: []string{"ls"},
		Short:   "List sessions in display order",
		Args:    cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			resp, err := app.client().Do(cmd.Context(), socket.Request{Cmd: string(application.CommandList)})
			if err != nil {
				return err
			}

			out := listOutput{Sessions: resp.Sessions, Usage: resp.Usage}
			if out.Sessions == nil {
				out.Sessions = []socket.Snapshot{}
			}

			switch format {
			case formatJSON:
				enc := json.NewEncoder(cmd.OutOrStdout())
				enc.SetIndent("", "  ")
				return enc.Encode(out)
			case formatYAML:
				enc := yaml.NewEncoder(cmd.OutOrStdout())
				enc.SetIndent(2)
				if err := enc.Encode(out); err != nil {
					return err
				}
				return enc.Close()
			case formatTable:
				overview := resp.Overview()
				overview.Usage = nil
				rendered, err := app.statusRenderer(overview, statusadapter.RenderOptions{
					Now:   app.now(),
					Plain: true,
				})
				if err != nil {
					return fmt.Errorf("render sessions: %w", err)
				}
				_, err = fmt.Fprintln(cmd.OutOrStdout(), rendered)
				return err
			default:
				return fmt.Errorf("unsupported format %q (want table, json, or yaml)", format)
			}
		},
	}

	cmd.Flags().StringVarP(&format, "format", "f", formatTable, "Output format: table, json, or yaml")
	return cmd
}
