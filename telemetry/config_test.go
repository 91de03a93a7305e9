package telemetry

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseLogFormat(t *testing.T) {
	t.Parallel()

	assert.Equal(t, LogFormatJSON, ParseLogFormat("JSON"))
	assert.Equal(t, LogFormatPretty, ParseLogFormat("pretty"))
	assert.Equal(t, LogFormatUndefined, ParseLogFormat("xml"))
	assert.Equal(t, "json", LogFormatJSON.String())
}

func TestConfigValidate(t *testing.T) {
	t.Parallel()

	cfg := Config{LogLevel: "info", LogFormat: "json"}
	require.NoError(t, cfg.validate())

	cfg.LogLevel = "loud"
	require.Error(t, cfg.validate())

	cfg = Config{LogLevel: "debug", LogFormat: "json", Enabled: true, TraceSampleRate: 2}
	cfg.Endpoint = "collector:4317"
	require.Error(t, cfg.validate())
}

func TestNewUsesEnvironment(t *testing.T) {
	t.Setenv("LOG_LEVEL", "warn")
	t.Setenv("LOG_FORMAT", "json")
	t.Setenv("OTEL_ENABLED", "false")

	tel, err := New(Options{ServiceName: "tabletop"})
	require.NoError(t, err)
	assert.Equal(t, "warn", tel.Logger.GetLevel().String())
	require.NotNil(t, tel.Tracer)
	require.NoError(t, tel.Shutdown(t.Context()))
}

func TestNewRejectsMissingServiceName(t *testing.T) {
	t.Setenv("OTEL_ENABLED", "false")

	_, err := New(Options{})
	require.Error(t, err)
}
