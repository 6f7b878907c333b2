package cmd

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"os"
	"time"

	"github.com/charmbracelet/log"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/bnema/agentmon/internal/adapters/process"
	statusadapter "github.com/bnema/agentmon/internal/adapters/render/status"
	chainstore "github.com/bnema/agentmon/internal/adapters/secrets/chain"
	"github.com/bnema/agentmon/internal/adapters/socket"
	usageadapter "github.com/bnema/agentmon/internal/adapters/usage"
	"github.com/bnema/agentmon/internal/application"
	"github.com/bnema/agentmon/internal/config"
	"github.com/bnema/agentmon/internal/logging"
	"github.com/bnema/agentmon/internal/ports"
)

const (
	annotationConfig = "config"
	skipConfig       = "skip"

	spawnDeadline = 5 * time.Second
)

type app struct {
	viper      *viper.Viper
	configPath string
	socketPath string

	cfg        config.Config
	logger     *log.Logger
	closeLog   io.Closer
	configured bool

	statusRenderer func(application.Overview, statusadapter.RenderOptions) (string, error)
	newSecretStore func(root string) (ports.SecretStore, error)
	launch         func(context.Context, process.LaunchConfig) process.Result
	executable     func() (string, error)
	httpClient     *http.Client
	now            func() time.Time
}

func wireApp() *app {
	return &app{
		viper:          viper.New(),
		statusRenderer: statusadapter.Render,
		newSecretStore: func(root string) (ports.SecretStore, error) {
			return chainstore.NewPassFirstWithFileFallback(root)
		},
		launch:     process.Launch,
		executable: os.Executable,
		httpClient: http.DefaultClient,
		now:        time.Now,
	}
}

func (a *app) configure(cmd *cobra.Command) error {
	if a.configured {
		return nil
	}

	cfg, err := config.Load(a.viper, a.configPath)
	if err != nil {
		return err
	}
	if a.socketPath != "" {
		cfg.Socket.Path = a.socketPath
	}

	logger, closer, err := logging.New(cfg.Log, cmd.ErrOrStderr())
	if err != nil {
		return fmt.Errorf("wire logger: %w", err)
	}

	a.cfg = cfg
	a.logger = logger
	a.closeLog = closer
	a.configured = true
	return nil
}

func (a *app) close() {
	if a.closeLog != nil {
		_ = a.closeLog.Close()
	}
}

func (a *app) client() *socket.Client {
	return socket.NewClient(a.cfg.Socket.Path)
}

func (a *app) secretStore() (ports.SecretStore, error) {
	store, err := a.newSecretStore(a.cfg.Usage.SecretsDir)
	if err != nil {
		return nil, fmt.Errorf("wire secret store chain: %w", err)
	}
	return store, nil
}

func (a *app) usageFetcher() (ports.UsageFetcher, error) {
	store, err := a.secretStore()
	if err != nil {
		return nil, err
	}

	client := *a.httpClient
	client.Timeout = a.cfg.Usage.Timeout
	return usageadapter.NewFetcher(store, usageadapter.Options{
		BaseURL:    a.cfg.Usage.BaseURL,
		SecretRef:  a.cfg.Usage.SecretRef,
		HTTPClient: &client,
		Now:        a.now,
	}), nil
}

func (a *app) spawnDaemon(ctx context.Context) process.Result {
	exe, err := a.executable()
	if err != nil {
		return process.Result{Outcome: process.OutcomeFailed, Err: fmt.Errorf("resolve executable: %w", err)}
	}

	args := []string{"daemon", "--socket", a.cfg.Socket.Path}
	if a.configPath != "" {
		args = append(args, "--config", a.configPath)
	}

	client := a.client()
	return a.launch(ctx, process.LaunchConfig{
		Path:     exe,
		Args:     args,
		LogFile:  a.cfg.Log.File,
		Deadline: spawnDeadline,
		Ready: func(ctx context.Context) error {
			_, err := client.Ping(ctx)
			return err
		},
	})
}
