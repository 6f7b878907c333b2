package cmd

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/spf13/cobra"
	"github.com/tidwall/gjson"
	"golang.org/x/term"

	"github.com/bnema/agentmon/internal/adapters/socket"
	"github.com/bnema/agentmon/internal/application"
	"github.com/bnema/agentmon/internal/domain"
)

var hookStatuses = map[string]domain.Status{
	"SessionStart":     domain.StatusAttention,
	"UserPromptSubmit": domain.StatusWorking,
	"PreToolUse":       domain.StatusWorking,
	"PostToolUse":      domain.StatusWorking,
	"Notification":     domain.StatusQuestion,
	"Stop":             domain.StatusAttention,
	"SubagentStop":     domain.StatusAttention,
	"SessionEnd":       domain.StatusClosed,
}

type hookPayload struct {
	SessionID string
	Cwd       string
	Event     string
}

func newHookCmd(app *app) *cobra.Command {
	return &cobra.Command{
		Use:   "hook [event]",
		Short: "Report an agent hook event read from stdin",
		Long: "Reads the hook JSON payload (session_id, cwd, hook_event_name) from stdin and updates the " +
			"session accordingly, starting the daemon if needed. The event argument overrides hook_event_name. " +
			"Failures are logged but never fail the hook.",
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			payload, err := readHookPayload(cmd.InOrStdin())
			if err != nil {
				app.logger.Warn("hook payload ignored", "err", err)
				return nil
			}
			if len(args) == 1 {
				payload.Event = args[0]
			}

			req, ok := hookRequest(payload)
			if !ok {
				app.logger.Debug("hook event ignored", "event", payload.Event, "session_id", payload.SessionID)
				return nil
			}

			if _, err := app.doWithAutostart(cmd.Context(), req); err != nil {
				app.logger.Warn("hook not delivered", "event", payload.Event, "session_id", payload.SessionID, "err", err)
			}
			return nil
		},
	}
}

func readHookPayload(r io.Reader) (hookPayload, error) {
	if file, ok := r.(*os.File); ok && term.IsTerminal(int(file.Fd())) {
		return hookPayload{}, nil
	}

	data, err := io.ReadAll(io.LimitReader(r, socket.MaxLineBytes))
	if err != nil {
		return hookPayload{}, fmt.Errorf("read stdin: %w", err)
	}
	if len(strings.TrimSpace(string(data))) == 0 {
		return hookPayload{}, nil
	}
	if !gjson.ValidBytes(data) {
		return hookPayload{}, errors.New("stdin is not valid JSON")
	}

	fields := gjson.GetManyBytes(data, "session_id", "cwd", "hook_event_name")
	return hookPayload{
		SessionID: strings.TrimSpace(fields[0].String()),
		Cwd:       strings.TrimSpace(fields[1].String()),
		Event:     strings.TrimSpace(fields[2].String()),
	}, nil
}

func hookRequest(payload hookPayload) (socket.Request, bool) {
	status, ok := hookStatuses[payload.Event]
	if !ok || payload.SessionID == "" {
		return socket.Request{}, false
	}

	raw := string(status)
	req := socket.Request{
		Cmd:       string(application.CommandSet),
		SessionID: payload.SessionID,
		Status:    &raw,
	}
	if payload.Cwd != "" {
		cwd := payload.Cwd
		req.WorkingDir = &cwd
	}
	return req, true
}

func (a *app) doWithAutostart(ctx context.Context, req socket.Request) (socket.Response, error) {
	client := a.client()
	resp, err := client.Do(ctx, req)
	if !errors.Is(err, socket.ErrDaemonUnavailable) {
		return resp, err
	}

	result := a.spawnDaemon(ctx)
	if result.Err != nil {
		return socket.Response{}, fmt.Errorf("auto-start daemon: %s", result)
	}
	a.logger.Info("daemon auto-started", "pid", result.PID, "elapsed", result.Elapsed)
	return client.Do(ctx, req)
}
