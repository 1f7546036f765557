package bootstrap

import (
	"errors"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"os"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"

	"github.com/dealshub/dealshub-go/config"
)

// InitLogger installs a JSON logger at info level on stdout. It is used until
// configuration is loaded and ConfigureLogger replaces it.
func InitLogger() *slog.Logger {
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelInfo}))
	slog.SetDefault(logger)
	return logger
}

// ConfigureLogger builds the process logger from LOG_LEVEL and LOG_FORMAT and
// makes it the slog default.
func ConfigureLogger(cfg config.LoggingConfig, w io.Writer) (*slog.Logger, error) {
	level, err := cfg.SlogLevel()
	if err != nil {
		return nil, err
	}
	opts := &slog.HandlerOptions{Level: level, AddSource: level <= slog.LevelDebug}

	var handler slog.Handler = slog.NewJSONHandler(w, opts)
	if cfg.Format == config.LogFormatText {
		handler = slog.NewTextHandler(w, opts)
	}
	logger := slog.New(handler)
	slog.SetDefault(logger)
	return logger, nil
}

// LoadConfig reads an optional .env file, then the process environment.
// Variables already set in the environment win over .env entries.
func LoadConfig() (config.AppConfig, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return config.AppConfig{}, fmt.Errorf("load .env file: %w", err)
	}

	cfg, err := env.ParseAs[config.AppConfig]()
	if err != nil {
		return cfg, fmt.Errorf("parse config: %w", err)
	}
	cfg.Sanitize()

	if err := cfg.Auth.Validate(); err != nil {
		return cfg, fmt.Errorf("invalid auth config: %w", err)
	}
	if _, err := cfg.Observability.Logging.SlogLevel(); err != nil {
		return cfg, fmt.Errorf("invalid logging config: %w", err)
	}
	return cfg, nil
}

// ValidateServiceConfig rejects a SERVICES value that enables nothing.
func ValidateServiceConfig(cfg *config.AppConfig) error {
	if cfg == nil {
		return errors.New("service config is required")
	}
	if _, err := cfg.EnabledServices(); err != nil {
		return fmt.Errorf("invalid service configuration: %w", err)
	}
	return nil
}

// GetEnabledServices lists enabled service names for startup logging. It is
// empty when SERVICES is invalid.
func GetEnabledServices(cfg *config.AppConfig) []string {
	if cfg == nil {
		return nil
	}
	set, err := cfg.EnabledServices()
	if err != nil {
		return nil
	}
	return set.Names()
}
