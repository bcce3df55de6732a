package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	for _, key := range []string{
		"PORT", "PUBLIC_BASE_URL", "LLM_PROVIDER", "LLM_TEMPERATURE", "LLM_MAX_TOKENS",
		"TWILIO_VALIDATE_SIGNATURE", "TWILIO_AUTH_TOKEN", "CALL_LANGUAGE",
		"SESSION_IDLE_TIMEOUT", "SESSION_SWEEP_INTERVAL", "SESSION_FINALIZE_TIMEOUT",
		"TOOL_HTTP_TIMEOUT", "TOOL_HTTP_RATE", "TOOL_HTTP_BURST",
		"LOG_LEVEL", "LOG_FORMAT", "TRACE_STDOUT",
	} {
		t.Setenv(key, "")
	}

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, ":8080", cfg.Server.Addr)
	assert.Equal(t, ProviderArk, cfg.LLM.Provider)
	assert.Equal(t, float32(0.7), cfg.LLM.Temperature)
	assert.Equal(t, 500, cfg.LLM.MaxTokens)
	assert.Equal(t, "de-DE", cfg.Twilio.Language)
	assert.Equal(t, 10*time.Minute, cfg.Session.IdleTimeout)
	assert.Equal(t, time.Minute, cfg.Session.SweepInterval)
	assert.Equal(t, 3, cfg.Tools.Burst)
	assert.Equal(t, "json", cfg.Observability.LogFormat)
}

func TestLoadOverrides(t *testing.T) {
	t.Setenv("PORT", "127.0.0.1:9000")
	t.Setenv("PUBLIC_BASE_URL", "https://calls.example.com/")
	t.Setenv("LLM_PROVIDER", "Azure")
	t.Setenv("LLM_TEMPERATURE", "0.2")
	t.Setenv("SESSION_IDLE_TIMEOUT", "90s")
	t.Setenv("TOOL_HTTP_RATE", "2.5")
	t.Setenv("LOG_LEVEL", "debug")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, "127.0.0.1:9000", cfg.Server.Addr)
	assert.Equal(t, "https://calls.example.com", cfg.Server.PublicBaseURL)
	assert.Equal(t, ProviderAzure, cfg.LLM.Provider)
	assert.Equal(t, float32(0.2), cfg.LLM.Temperature)
	assert.Equal(t, 90*time.Second, cfg.Session.IdleTimeout)
	assert.Equal(t, 2.5, cfg.Tools.Rate)
	assert.Equal(t, "debug", cfg.Observability.LogLevel)
}

func TestLoadRejectsInvalidValues(t *testing.T) {
	cases := map[string][2]string{
		"port with space":  {"PORT", "80 80"},
		"bad provider":     {"LLM_PROVIDER", "gemini"},
		"bad duration":     {"SESSION_IDLE_TIMEOUT", "ten minutes"},
		"negative sweep":   {"SESSION_SWEEP_INTERVAL", "-1s"},
		"bad bool":         {"TRACE_STDOUT", "sometimes"},
		"bad log format":   {"LOG_FORMAT", "xml"},
		"bad temperature":  {"LLM_TEMPERATURE", "hot"},
		"signature no key": {"TWILIO_VALIDATE_SIGNATURE", "true"},
	}
	for name, kv := range cases {
		t.Run(name, func(t *testing.T) {
			t.Setenv("TWILIO_AUTH_TOKEN", "")
			t.Setenv(kv[0], kv[1])
			_, err := Load()
			assert.Error(t, err)
		})
	}
}

func TestLLMEnabled(t *testing.T) {
	assert.False(t, LLMConfig{Provider: ProviderArk}.Enabled())
	assert.True(t, LLMConfig{Provider: ProviderArk, Ark: ArkConfig{Model: "m", APIKey: "k"}}.Enabled())
	assert.True(t, LLMConfig{Provider: ProviderAzure, Azure: AzureConfig{Endpoint: "e", APIKey: "k", Deployment: "d"}}.Enabled())
	assert.False(t, LLMConfig{Provider: ProviderAzure, Azure: AzureConfig{Endpoint: "e"}}.Enabled())
}
