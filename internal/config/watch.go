package config

import (
	"github.com/charmbracelet/log"
	"github.com/fsnotify/fsnotify"
	"github.com/spf13/viper"
)

func Watch(v *viper.Viper, logger *log.Logger, onChange func(Config)) bool {
	if v.ConfigFileUsed() == "" {
		return false
	}
	v.OnConfigChange(reloadHandler(v, logger, onChange))
	v.WatchConfig()
	return true
}

func reloadHandler(v *viper.Viper, logger *log.Logger, onChange func(Config)) func(fsnotify.Event) {
	return func(event fsnotify.Event) {
		if !event.Has(fsnotify.Write) && !event.Has(fsnotify.Create) {
			return
		}

		cfg, err := decode(v)
		if err != nil {
			logger.Warn("config reload rejected", "file", event.Name, "err", err)
			return
		}
		logger.Info("config reloaded", "file", event.Name)
		onChange(cfg)
	}
}
