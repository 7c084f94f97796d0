package config

import (
	"strings"

	"github.com/fsnotify/fsnotify"
	"github.com/spf13/viper"

	"danoo/internal/logger"
)

// Watch reloads path whenever it changes and hands the new config to fn.
// The log level is applied before fn runs. Invalid edits are logged and
// ignored.
func Watch(path string, fn func(*Config)) error {
	v := viper.New()
	v.SetConfigFile(path)
	if err := v.ReadInConfig(); err != nil {
		return err
	}
	v.OnConfigChange(func(evt fsnotify.Event) {
		if !evt.Has(fsnotify.Write) && !evt.Has(fsnotify.Create) {
			return
		}
		cfg, err := Load(path)
		if err != nil {
			logger.Warnf("[config] reload %s rejected: %v", evt.Name, err)
			return
		}
		ApplyLogging(cfg.App)
		logger.Infof("[config] reloaded %s (level %s)", evt.Name, logger.Level())
		if fn != nil {
			fn(cfg)
		}
	})
	v.WatchConfig()
	return nil
}

// ApplyLogging pushes the app log settings into the logger.
func ApplyLogging(app AppConfig) {
	logger.SetFormat(strings.TrimSpace(app.LogFormat))
	logger.SetLevel(strings.TrimSpace(app.LogLevel))
}
