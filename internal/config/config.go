package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"time"

	"github.com/charmbracelet/log"
	"github.com/spf13/viper"
)

const (
	configName = "config"
	configType = "toml"
	appDirName = "agentmon"
	envPrefix  = "AGENTMON"

	currentSchemaVersion = 1
)

const (
	keyVersion = "version"

	KeySocketPath = "socket.path"

	KeyIdleCheckInterval = "daemon.idle_check_interval"
	KeyIdleTimeout       = "daemon.idle_timeout"
	KeyInactiveAfter     = "daemon.inactive_after"
	KeyHistorySize       = "daemon.history_size"
	KeySubscriberQueue   = "daemon.subscriber_queue"
	KeyCommandQueue      = "daemon.command_queue"
	KeyMaxClosed         = "daemon.max_closed_sessions"
	KeyWriteTimeout      = "daemon.write_timeout"
	KeyShutdownTimeout   = "daemon.shutdown_timeout"

	KeyUsageEnabled    = "usage.enabled"
	KeyUsageInterval   = "usage.interval"
	KeyUsageTimeout    = "usage.timeout"
	KeyUsageBaseURL    = "usage.base_url"
	KeyUsageSecretRef  = "usage.secret_ref"
	KeyUsageSecretsDir = "usage.secrets_dir"

	KeyResurrectCommand = "resurrect.command"

	KeyLogLevel  = "log.level"
	KeyLogFormat = "log.format"
	KeyLogFile   = "log.file"
)

const (
	DefaultUsageBaseURL     = "https://chatgpt.com/backend-api"
	DefaultUsageSecretRef   = "agentmon/usage/access_token"
	DefaultResurrectCommand = "claude --resume {session_id}"
)

type Config struct {
	Socket    SocketConfig    `mapstructure:"socket"`
	Daemon    DaemonConfig    `mapstructure:"daemon"`
	Usage     UsageConfig     `mapstructure:"usage"`
	Resurrect ResurrectConfig `mapstructure:"resurrect"`
	Log       LogConfig       `mapstructure:"log"`
}

type SocketConfig struct {
	Path string `mapstructure:"path"`
}

type DaemonConfig struct {
	IdleCheckInterval time.Duration `mapstructure:"idle_check_interval"`
	IdleTimeout       time.Duration `mapstructure:"idle_timeout"`
	InactiveAfter     time.Duration `mapstructure:"inactive_after"`
	HistorySize       int           `mapstructure:"history_size"`
	SubscriberQueue   int           `mapstructure:"subscriber_queue"`
	CommandQueue      int           `mapstructure:"command_queue"`
	MaxClosedSessions int           `mapstructure:"max_closed_sessions"`
	WriteTimeout      time.Duration `mapstructure:"write_timeout"`
	ShutdownTimeout   time.Duration `mapstructure:"shutdown_timeout"`
}

type UsageConfig struct {
	Enabled    bool          `mapstructure:"enabled"`
	Interval   time.Duration `mapstructure:"interval"`
	Timeout    time.Duration `mapstructure:"timeout"`
	BaseURL    string        `mapstructure:"base_url"`
	SecretRef  string        `mapstructure:"secret_ref"`
	SecretsDir string        `mapstructure:"secrets_dir"`
}

type ResurrectConfig struct {
	Command string `mapstructure:"command"`
}

type LogConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
	File   string `mapstructure:"file"`
}

func Dir() (string, error) {
	if xdg := strings.TrimSpace(os.Getenv("XDG_CONFIG_HOME")); xdg != "" {
		return filepath.Join(xdg, appDirName), nil
	}

	homeDir, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("resolve home directory: %w", err)
	}
	return filepath.Join(homeDir, ".config", appDirName), nil
}

func Path() (string, error) {
	dir, err := Dir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, configName+"."+configType), nil
}

func DefaultSocketPath() string {
	if runtimeDir := strings.TrimSpace(os.Getenv("XDG_RUNTIME_DIR")); runtimeDir != "" {
		return filepath.Join(runtimeDir, appDirName+".sock")
	}
	return filepath.Join(os.TempDir(), fmt.Sprintf("%s-%d.sock", appDirName, os.Getuid()))
}

func Load(v *viper.Viper, explicitPath string) (Config, error) {
	if v == nil {
		v = viper.New()
	}

	dir, err := Dir()
	if err != nil {
		return Config{}, err
	}

	if explicitPath != "" {
		v.SetConfigFile(explicitPath)
	} else {
		v.SetConfigName(configName)
		v.SetConfigType(configType)
		v.AddConfigPath(dir)
	}
	v.SetEnvPrefix(envPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	setDefaults(v, dir)

	if err := v.ReadInConfig(); err != nil {
		var configNotFound viper.ConfigFileNotFoundError
		if !errors.As(err, &configNotFound) {
			return Config{}, fmt.Errorf("read config file: %w", err)
		}
	}

	if version := v.GetInt(keyVersion); version > currentSchemaVersion {
		return Config{}, fmt.Errorf("unsupported config schema version %d (current %d)", version, currentSchemaVersion)
	}

	return decode(v)
}

func Defaults() (Config, error) {
	dir, err := Dir()
	if err != nil {
		return Config{}, err
	}

	v := viper.New()
	setDefaults(v, dir)
	return decode(v)
}

func decode(v *viper.Viper) (Config, error) {
	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("decode config: %w", err)
	}
	cfg.Socket.Path = expandHome(cfg.Socket.Path)
	cfg.Usage.SecretsDir = expandHome(cfg.Usage.SecretsDir)
	cfg.Log.File = expandHome(cfg.Log.File)

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func setDefaults(v *viper.Viper, dir string) {
	for key, value := range defaults(dir) {
		v.SetDefault(key, value)
	}
}

func defaults(dir string) map[string]any {
	return map[string]any{
		KeySocketPath:        DefaultSocketPath(),
		KeyIdleCheckInterval: 60 * time.Second,
		KeyIdleTimeout:       time.Hour,
		KeyInactiveAfter:     time.Hour,
		KeyHistorySize:       10,
		KeySubscriberQueue:   64,
		KeyCommandQueue:      256,
		KeyMaxClosed:         50,
		KeyWriteTimeout:      5 * time.Second,
		KeyShutdownTimeout:   5 * time.Second,
		KeyUsageEnabled:      false,
		KeyUsageInterval:     3 * time.Minute,
		KeyUsageTimeout:      15 * time.Second,
		KeyUsageBaseURL:      DefaultUsageBaseURL,
		KeyUsageSecretRef:    DefaultUsageSecretRef,
		KeyUsageSecretsDir:   filepath.Join(dir, "secrets"),
		KeyResurrectCommand:  DefaultResurrectCommand,
		KeyLogLevel:          "info",
		KeyLogFormat:         "text",
		KeyLogFile:           "",
	}
}

func (c Config) Validate() error {
	var errs []error

	if strings.TrimSpace(c.Socket.Path) == "" {
		errs = append(errs, errors.New("socket.path is empty"))
	}

	positive := map[string]time.Duration{
		KeyIdleCheckInterval: c.Daemon.IdleCheckInterval,
		KeyIdleTimeout:       c.Daemon.IdleTimeout,
		KeyInactiveAfter:     c.Daemon.InactiveAfter,
		KeyWriteTimeout:      c.Daemon.WriteTimeout,
		KeyShutdownTimeout:   c.Daemon.ShutdownTimeout,
		KeyUsageInterval:     c.Usage.Interval,
		KeyUsageTimeout:      c.Usage.Timeout,
	}
	for _, key := range sortedKeys(positive) {
		if positive[key] <= 0 {
			errs = append(errs, fmt.Errorf("%s must be positive", key))
		}
	}

	capacities := map[string]int{
		KeyHistorySize:     c.Daemon.HistorySize,
		KeySubscriberQueue: c.Daemon.SubscriberQueue,
		KeyCommandQueue:    c.Daemon.CommandQueue,
	}
	for _, key := range sortedKeys(capacities) {
		if capacities[key] <= 0 {
			errs = append(errs, fmt.Errorf("%s must be positive", key))
		}
	}
	if c.Daemon.MaxClosedSessions < 0 {
		errs = append(errs, fmt.Errorf("%s must not be negative", KeyMaxClosed))
	}

	if c.Usage.Enabled && strings.TrimSpace(c.Usage.BaseURL) == "" {
		errs = append(errs, fmt.Errorf("%s is required when usage is enabled", KeyUsageBaseURL))
	}
	if strings.TrimSpace(c.Resurrect.Command) == "" {
		errs = append(errs, fmt.Errorf("%s is empty", KeyResurrectCommand))
	}

	if _, err := log.ParseLevel(c.Log.Level); err != nil {
		errs = append(errs, fmt.Errorf("%s: %w", KeyLogLevel, err))
	}
	switch c.Log.Format {
	case "text", "json", "logfmt":
	default:
		errs = append(errs, fmt.Errorf("%s: unsupported format %q", KeyLogFormat, c.Log.Format))
	}

	if len(errs) > 0 {
		return fmt.Errorf("invalid config: %w", errors.Join(errs...))
	}
	return nil
}

func expandHome(path string) string {
	if path == "~" || strings.HasPrefix(path, "~/") {
		if homeDir, err := os.UserHomeDir(); err == nil {
			return filepath.Join(homeDir, strings.TrimPrefix(path, "~"))
		}
	}
	return path
}

// sortedKeys returns the keys of m in ascending order.
func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	slices.Sort(keys)
	return keys
}
