package bootstrap

import (
	"bytes"
	"encoding/json"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dealshub/dealshub-go/config"
)

func TestConfigureLogger(t *testing.T) {
	prev := slog.Default()
	t.Cleanup(func() { slog.SetDefault(prev) })

	var buf bytes.Buffer
	logger, err := ConfigureLogger(config.LoggingConfig{Level: "warn", Format: config.LogFormatJSON}, &buf)
	require.NoError(t, err)

	logger.Info("dropped")
	logger.Warn("kept", "session", "s-1")

	var line map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &line))
	assert.Equal(t, "kept", line["msg"])
	assert.Equal(t, "s-1", line["session"])
	assert.Same(t, logger, slog.Default())
}

func TestConfigureLogger_TextAndBadLevel(t *testing.T) {
	prev := slog.Default()
	t.Cleanup(func() { slog.SetDefault(prev) })

	var buf bytes.Buffer
	logger, err := ConfigureLogger(config.LoggingConfig{Level: "info", Format: config.LogFormatText}, &buf)
	require.NoError(t, err)
	logger.Info("hello")
	assert.Contains(t, buf.String(), "msg=hello")

	_, err = ConfigureLogger(config.LoggingConfig{Level: "loud"}, &buf)
	assert.Error(t, err)
}

func TestValidateServiceConfig(t *testing.T) {
	assert.Error(t, ValidateServiceConfig(nil))
	assert.Error(t, ValidateServiceConfig(&config.AppConfig{Services: " , "}))
	assert.NoError(t, ValidateServiceConfig(&config.AppConfig{Services: "http"}))
}

func TestGetEnabledServices(t *testing.T) {
	assert.Nil(t, GetEnabledServices(nil))
	assert.Nil(t, GetEnabledServices(&config.AppConfig{Services: "cron"}))
	assert.Equal(t,
		[]string{"http", "event-relay", "session-janitor"},
		GetEnabledServices(&config.AppConfig{Services: "session-janitor,http,event-relay"}))
}
