package config

import (
	"bytes"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/natefinch/atomic"
	toml "github.com/pelletier/go-toml/v2"
)

const (
	configFileMode = 0o600
	configDirMode  = 0o700
)

var ErrConfigExists = errors.New("config file already exists")

type fileSchema struct {
	Version   int             `toml:"version"`
	Socket    socketSchema    `toml:"socket"`
	Daemon    daemonSchema    `toml:"daemon"`
	Usage     usageSchema     `toml:"usage"`
	Resurrect resurrectSchema `toml:"resurrect"`
	Log       logSchema       `toml:"log"`
}

type socketSchema struct {
	Path string `toml:"path"`
}

type daemonSchema struct {
	IdleCheckInterval string `toml:"idle_check_interval"`
	IdleTimeout       string `toml:"idle_timeout"`
	InactiveAfter     string `toml:"inactive_after"`
	HistorySize       int    `toml:"history_size"`
	SubscriberQueue   int    `toml:"subscriber_queue"`
	CommandQueue      int    `toml:"command_queue"`
	MaxClosedSessions int    `toml:"max_closed_sessions"`
	WriteTimeout      string `toml:"write_timeout"`
	ShutdownTimeout   string `toml:"shutdown_timeout"`
}

type usageSchema struct {
	Enabled    bool   `toml:"enabled"`
	Interval   string `toml:"interval"`
	Timeout    string `toml:"timeout"`
	BaseURL    string `toml:"base_url"`
	SecretRef  string `toml:"secret_ref"`
	SecretsDir string `toml:"secrets_dir"`
}

type resurrectSchema struct {
	Command string `toml:"command"`
}

type logSchema struct {
	Level  string `toml:"level"`
	Format string `toml:"format"`
	File   string `toml:"file"`
}

func toSchema(cfg Config) fileSchema {
	return fileSchema{
		Version: currentSchemaVersion,
		Socket:  socketSchema{Path: cfg.Socket.Path},
		Daemon: daemonSchema{
			IdleCheckInterval: cfg.Daemon.IdleCheckInterval.String(),
			IdleTimeout:       cfg.Daemon.IdleTimeout.String(),
			InactiveAfter:     cfg.Daemon.InactiveAfter.String(),
			HistorySize:       cfg.Daemon.HistorySize,
			SubscriberQueue:   cfg.Daemon.SubscriberQueue,
			CommandQueue:      cfg.Daemon.CommandQueue,
			MaxClosedSessions: cfg.Daemon.MaxClosedSessions,
			WriteTimeout:      cfg.Daemon.WriteTimeout.String(),
			ShutdownTimeout:   cfg.Daemon.ShutdownTimeout.String(),
		},
		Usage: usageSchema{
			Enabled:    cfg.Usage.Enabled,
			Interval:   cfg.Usage.Interval.String(),
			Timeout:    cfg.Usage.Timeout.String(),
			BaseURL:    cfg.Usage.BaseURL,
			SecretRef:  cfg.Usage.SecretRef,
			SecretsDir: cfg.Usage.SecretsDir,
		},
		Resurrect: resurrectSchema{Command: cfg.Resurrect.Command},
		Log:       logSchema{Level: cfg.Log.Level, Format: cfg.Log.Format, File: cfg.Log.File},
	}
}

func Encode(cfg Config) ([]byte, error) {
	data, err := toml.Marshal(toSchema(cfg))
	if err != nil {
		return nil, fmt.Errorf("encode config: %w", err)
	}
	return data, nil
}

func WriteDefault(path string, cfg Config, force bool) error {
	if !force {
		if _, err := os.Stat(path); err == nil {
			return fmt.Errorf("%w: %s", ErrConfigExists, path)
		} else if !errors.Is(err, fs.ErrNotExist) {
			return fmt.Errorf("stat config file: %w", err)
		}
	}

	data, err := Encode(cfg)
	if err != nil {
		return err
	}

	if err := os.MkdirAll(filepath.Dir(path), configDirMode); err != nil {
		return fmt.Errorf("create config directory: %w", err)
	}
	if err := atomic.WriteFile(path, bytes.NewReader(data)); err != nil {
		return fmt.Errorf("write config file: %w", err)
	}
	if err := os.Chmod(path, configFileMode); err != nil {
		return fmt.Errorf("chmod config file: %w", err)
	}
	return nil
}
