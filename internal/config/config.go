package config

import (
	"context"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/cloudwego/eino-ext/components/model/ark"
	"github.com/cloudwego/eino/components/model"
	"github.com/go-playground/validator/v10"
)

// Config aggregates the service configuration.
type Config struct {
	Server        ServerConfig
	LLM           LLMConfig
	Twilio        TwilioConfig
	Auth          AuthConfig
	Session       SessionConfig
	Tools         ToolsConfig
	Storage       StorageConfig
	Agents        AgentsConfig
	Observability ObservabilityConfig
}

// Load reads the configuration from the environment.
func Load() (*Config, error) {
	server, err := loadServerConfig()
	if err != nil {
		return nil, err
	}

	llm, err := loadLLMConfig()
	if err != nil {
		return nil, err
	}

	twilio, err := loadTwilioConfig()
	if err != nil {
		return nil, err
	}

	session, err := loadSessionConfig()
	if err != nil {
		return nil, err
	}

	tools, err := loadToolsConfig()
	if err != nil {
		return nil, err
	}

	traceStdout, err := parseBoolEnv("TRACE_STDOUT", false)
	if err != nil {
		return nil, err
	}

	cfg := &Config{
		Server:  server,
		LLM:     llm,
		Twilio:  twilio,
		Auth:    AuthConfig{JWTSecret: strings.TrimSpace(os.Getenv("JWT_SECRET_KEY"))},
		Session: session,
		Tools:   tools,
		Storage: StorageConfig{TranscriptDBPath: strings.TrimSpace(os.Getenv("TRANSCRIPT_DB_PATH"))},
		Agents:  AgentsConfig{File: strings.TrimSpace(os.Getenv("AGENTS_FILE"))},
		Observability: ObservabilityConfig{
			LogLevel:    getEnvOrDefault("LOG_LEVEL", "info"),
			LogFormat:   getEnvOrDefault("LOG_FORMAT", "json"),
			TraceStdout: traceStdout,
		},
	}

	if err := validate.Struct(cfg); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

var validate = validator.New(validator.WithRequiredStructEnabled())

// ServerConfig describes the HTTP listener.
type ServerConfig struct {
	Addr string `validate:"required"`
	// PublicBaseURL is the externally reachable origin used in TwiML action
	// URLs and for webhook signature checks.
	PublicBaseURL string `validate:"omitempty,url"`
}

func loadServerConfig() (ServerConfig, error) {
	port := strings.TrimSpace(os.Getenv("PORT"))
	if port == "" {
		port = "8080"
	}

	publicURL := strings.TrimRight(strings.TrimSpace(os.Getenv("PUBLIC_BASE_URL")), "/")

	if strings.Contains(port, ":") {
		// Accept ":8080" or "127.0.0.1:8080" as given.
		return ServerConfig{Addr: port, PublicBaseURL: publicURL}, nil
	}

	if strings.Contains(port, " ") {
		return ServerConfig{}, fmt.Errorf("invalid PORT value: %q", port)
	}

	return ServerConfig{Addr: ":" + port, PublicBaseURL: publicURL}, nil
}

// LLM providers.
const (
	ProviderArk   = "ark"
	ProviderAzure = "azure"
)

// LLMConfig describes the generation backend.
type LLMConfig struct {
	Provider    string  `validate:"oneof=ark azure"`
	Temperature float32 `validate:"gte=0,lte=2"`
	MaxTokens   int     `validate:"gte=0"`

	Ark   ArkConfig
	Azure AzureConfig
}

// ArkConfig holds Volcengine Ark credentials.
type ArkConfig struct {
	APIKey    string
	AccessKey string
	SecretKey string
	Model     string
	BaseURL   string
	Region    string
}

// AzureConfig holds Azure OpenAI credentials.
type AzureConfig struct {
	Endpoint   string
	APIKey     string
	Deployment string
	APIVersion string
}

// Enabled reports whether the selected provider has credentials.
func (c LLMConfig) Enabled() bool {
	switch c.Provider {
	case ProviderAzure:
		return c.Azure.Endpoint != "" && c.Azure.APIKey != "" && c.Azure.Deployment != ""
	default:
		return c.Ark.Model != "" && (c.Ark.APIKey != "" || (c.Ark.AccessKey != "" && c.Ark.SecretKey != ""))
	}
}

// NewChatModel creates the Ark chat model.
func (c LLMConfig) NewChatModel(ctx context.Context) (model.ToolCallingChatModel, error) {
	if c.Ark.Model == "" || (c.Ark.APIKey == "" && (c.Ark.AccessKey == "" || c.Ark.SecretKey == "")) {
		return nil, fmt.Errorf("ark credentials or model missing: set ARK_API_KEY and Model, or an AK/SK pair")
	}

	temperature := c.Temperature
	cfg := &ark.ChatModelConfig{
		BaseURL:     c.Ark.BaseURL,
		Region:      c.Ark.Region,
		APIKey:      c.Ark.APIKey,
		AccessKey:   c.Ark.AccessKey,
		SecretKey:   c.Ark.SecretKey,
		Model:       c.Ark.Model,
		Temperature: &temperature,
	}
	if c.MaxTokens > 0 {
		maxTokens := c.MaxTokens
		cfg.MaxTokens = &maxTokens
	}

	chatModel, err := ark.NewChatModel(ctx, cfg)
	if err != nil {
		return nil, err
	}
	return chatModel, nil
}

func loadLLMConfig() (LLMConfig, error) {
	temperature, err := parseOptionalFloat32Env("LLM_TEMPERATURE")
	if err != nil {
		return LLMConfig{}, err
	}
	temp := float32(0.7)
	if temperature != nil {
		temp = *temperature
	}

	maxTokens, err := parseOptionalIntEnv("LLM_MAX_TOKENS")
	if err != nil {
		return LLMConfig{}, err
	}
	tokens := 500
	if maxTokens != nil {
		tokens = *maxTokens
	}

	return LLMConfig{
		Provider:    strings.ToLower(getEnvOrDefault("LLM_PROVIDER", ProviderArk)),
		Temperature: temp,
		MaxTokens:   tokens,
		Ark: ArkConfig{
			APIKey:    strings.TrimSpace(os.Getenv("ARK_API_KEY")),
			AccessKey: strings.TrimSpace(os.Getenv("ARK_ACCESS_KEY")),
			SecretKey: strings.TrimSpace(os.Getenv("ARK_SECRET_KEY")),
			Model:     strings.TrimSpace(os.Getenv("Model")),
			BaseURL:   getEnvOrDefault("ARK_BASE_URL", "https://ark.cn-beijing.volces.com/api/v3"),
			Region:    getEnvOrDefault("ARK_REGION", "cn-beijing"),
		},
		Azure: AzureConfig{
			Endpoint:   strings.TrimSpace(os.Getenv("AZURE_OPENAI_ENDPOINT")),
			APIKey:     strings.TrimSpace(os.Getenv("AZURE_OPENAI_KEY")),
			Deployment: strings.TrimSpace(os.Getenv("AZURE_OPENAI_DEPLOYMENT")),
			APIVersion: getEnvOrDefault("AZURE_OPENAI_API_VERSION", "2024-06-01"),
		},
	}, nil
}

// TwilioConfig describes the telephony provider.
type TwilioConfig struct {
	AccountSID        string
	AuthToken         string
	PhoneNumber       string
	ValidateSignature bool
	// Language is used for speech recognition and synthesis in TwiML.
	Language string `validate:"required"`
}

// Enabled reports whether REST credentials are present.
func (c TwilioConfig) Enabled() bool {
	return c.AccountSID != "" && c.AuthToken != ""
}

func loadTwilioConfig() (TwilioConfig, error) {
	validateSig, err := parseBoolEnv("TWILIO_VALIDATE_SIGNATURE", false)
	if err != nil {
		return TwilioConfig{}, err
	}
	cfg := TwilioConfig{
		AccountSID:        strings.TrimSpace(os.Getenv("TWILIO_ACCOUNT_SID")),
		AuthToken:         strings.TrimSpace(os.Getenv("TWILIO_AUTH_TOKEN")),
		PhoneNumber:       strings.TrimSpace(os.Getenv("TWILIO_PHONE_NUMBER")),
		ValidateSignature: validateSig,
		Language:          getEnvOrDefault("CALL_LANGUAGE", "de-DE"),
	}
	if cfg.ValidateSignature && cfg.AuthToken == "" {
		return TwilioConfig{}, fmt.Errorf("TWILIO_VALIDATE_SIGNATURE requires TWILIO_AUTH_TOKEN")
	}
	return cfg, nil
}

// AuthConfig holds the shared secret for test-endpoint tokens.
type AuthConfig struct {
	JWTSecret string
}

// SessionConfig tunes session lifetime.
type SessionConfig struct {
	IdleTimeout     time.Duration `validate:"gt=0"`
	SweepInterval   time.Duration `validate:"gt=0"`
	FinalizeTimeout time.Duration `validate:"gt=0"`
}

func loadSessionConfig() (SessionConfig, error) {
	idle, err := parseDurationEnv("SESSION_IDLE_TIMEOUT", 10*time.Minute)
	if err != nil {
		return SessionConfig{}, err
	}
	sweep, err := parseDurationEnv("SESSION_SWEEP_INTERVAL", time.Minute)
	if err != nil {
		return SessionConfig{}, err
	}
	finalize, err := parseDurationEnv("SESSION_FINALIZE_TIMEOUT", 30*time.Second)
	if err != nil {
		return SessionConfig{}, err
	}
	return SessionConfig{IdleTimeout: idle, SweepInterval: sweep, FinalizeTimeout: finalize}, nil
}

// ToolsConfig tunes outbound tool requests.
type ToolsConfig struct {
	HTTPTimeout time.Duration `validate:"gt=0"`
	Rate        float64       `validate:"gt=0"`
	Burst       int           `validate:"gt=0"`
}

func loadToolsConfig() (ToolsConfig, error) {
	timeout, err := parseDurationEnv("TOOL_HTTP_TIMEOUT", 10*time.Second)
	if err != nil {
		return ToolsConfig{}, err
	}
	rate, err := parseOptionalFloatEnv("TOOL_HTTP_RATE")
	if err != nil {
		return ToolsConfig{}, err
	}
	burst, err := parseOptionalIntEnv("TOOL_HTTP_BURST")
	if err != nil {
		return ToolsConfig{}, err
	}

	cfg := ToolsConfig{HTTPTimeout: timeout, Rate: 1, Burst: 3}
	if rate != nil {
		cfg.Rate = *rate
	}
	if burst != nil {
		cfg.Burst = *burst
	}
	return cfg, nil
}

// StorageConfig locates the transcript database. Empty keeps records in
// memory.
type StorageConfig struct {
	TranscriptDBPath string
}

// AgentsConfig locates the agents file. Empty uses the built-in agent.
type AgentsConfig struct {
	File string
}

// ObservabilityConfig tunes logging and tracing.
type ObservabilityConfig struct {
	LogLevel    string `validate:"oneof=debug info warn error"`
	LogFormat   string `validate:"oneof=json console"`
	TraceStdout bool
}

func getEnvOrDefault(key, defaultValue string) string {
	if value := strings.TrimSpace(os.Getenv(key)); value != "" {
		return value
	}
	return defaultValue
}

func parseBoolEnv(key string, defaultValue bool) (bool, error) {
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		return defaultValue, nil
	}

	val, err := strconv.ParseBool(raw)
	if err != nil {
		return false, fmt.Errorf("invalid %s value %q: %w", key, raw, err)
	}
	return val, nil
}

func parseDurationEnv(key string, defaultValue time.Duration) (time.Duration, error) {
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		return defaultValue, nil
	}

	val, err := time.ParseDuration(raw)
	if err != nil {
		return 0, fmt.Errorf("invalid %s value %q: %w", key, raw, err)
	}
	return val, nil
}

func parseOptionalFloatEnv(key string) (*float64, error) {
	raw, ok := os.LookupEnv(key)
	if !ok {
		return nil, nil
	}

	value := strings.TrimSpace(raw)
	if value == "" {
		return nil, nil
	}

	val, err := strconv.ParseFloat(value, 64)
	if err != nil {
		return nil, fmt.Errorf("invalid %s value %q: %w", key, value, err)
	}
	return &val, nil
}

func parseOptionalIntEnv(key string) (*int, error) {
	raw, ok := os.LookupEnv(key)
	if !ok {
		return nil, nil
	}

	value := strings.TrimSpace(raw)
	if value == "" {
		return nil, nil
	}

	val, err := strconv.Atoi(value)
	if err != nil {
		return nil, fmt.Errorf("invalid %s value %q: %w", key, value, err)
	}
	return &val, nil
}

func parseOptionalFloat32Env(key string) (*float32, error) {
	raw, ok := os.LookupEnv(key)
	if !ok {
		return nil, nil
	}

	value := strings.TrimSpace(raw)
	if value == "" {
		return nil, nil
	}

	val, err := strconv.ParseFloat(value, 32)
	if err != nil {
		return nil, fmt.Errorf("invalid %s value %q: %w", key, value, err)
	}
	result := float32(val)
	return &result, nil
}
