package bootstrap

import (
	"lease_engine/pkg/logging"
)

// InitLogger builds the zap logger described by the system section
func InitLogger(cfg *Config) (*logging.ZapLogger, error) {
	logger, err := logging.New(logging.Options{
		Level:  cfg.System.LogLevel,
		Format: cfg.System.LogFormat,
	})
	if err != nil {
		return nil, err
	}
	return logger, nil
}
