package app

import (
	"strings"

	"github.com/charlesng35/keyward/pkg/logger"
)

// ConfigureLogging initialises the global logger, defaulting to info level and json output.
func ConfigureLogging(cfg LogConfig) error {
	level := strings.TrimSpace(cfg.Level)
	if level == "" {
		level = "info"
	}
	encoding := strings.TrimSpace(cfg.Encoding)
	if encoding == "" {
		encoding = "json"
	}
	return logger.Init(level, encoding)
}
