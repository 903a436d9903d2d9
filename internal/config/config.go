package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/knadh/koanf/parsers/toml"
	"github.com/knadh/koanf/providers/confmap"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"
	"github.com/rs/zerolog/log"
)

// Config holds all configuration for the review relay
type Config struct {
	// Server settings
	Port int `koanf:"port"`

	// Podio credentials and endpoints
	PodioClientID     string `koanf:"podio_client_id"`
	PodioClientSecret string `koanf:"podio_client_secret"`
	PodioRefreshToken string `koanf:"podio_refresh_token"`
	PodioAccessToken  string `koanf:"podio_access_token"`
	PodioAPIURL       string `koanf:"podio_api_url"`
	PodioOAuthURL     string `koanf:"podio_oauth_url"`
	PodioWebhookID    int64  `koanf:"podio_webhook_id"`

	// Status gate
	ReadyStatusLabel    string `koanf:"ready_status_label"`
	ReadyStatusOptionID int64  `koanf:"ready_status_option_id"`
	StatusField         string `koanf:"status_field"`

	// Field external ids
	FieldTitle    string `koanf:"field_title"`
	FieldClient   string `koanf:"field_client"`
	FieldJobType  string `koanf:"field_job_type"`
	FieldBrief    string `koanf:"field_brief"`
	FieldAuthor   string `koanf:"field_author"`
	FieldTextLink string `koanf:"field_text_link"`

	// Completion API
	OpenAIAPIKey  string `koanf:"openai_api_key"`
	OpenAIModel   string `koanf:"openai_model"`
	OpenAIBaseURL string `koanf:"openai_base_url"`

	// Google Docs / Drive
	GoogleCredentialsJSON string `koanf:"google_credentials_json"`
	StyleGuideFolderID    string `koanf:"style_guide_folder_id"`

	// Inbound endpoints
	ForwardSecret   string `koanf:"forward_secret"`
	HandshakeHeader string `koanf:"handshake_header"`

	// Timeouts and background posting
	HTTPTimeoutSeconds       int `koanf:"http_timeout_seconds"`
	CompletionTimeoutSeconds int `koanf:"completion_timeout_seconds"`
	CommentWorkers           int `koanf:"comment_workers"`
	CommentQueueSize         int `koanf:"comment_queue_size"`
	DedupeTTLMinutes         int `koanf:"dedupe_ttl_minutes"`

	// Logging
	LogLevel  string `koanf:"log_level"`
	LogFormat string `koanf:"log_format"`
}

func defaults() map[string]interface{} {
	return map[string]interface{}{
		"port":                       3000,
		"podio_api_url":              "https://api.podio.com",
		"podio_oauth_url":            "https://podio.com/oauth/token",
		"ready_status_label":         "Pronto para revisão",
		"ready_status_option_id":     4,
		"status_field":               "status",
		"field_title":                "titulo-2",
		"field_client":               "cliente",
		"field_job_type":             "tipo-do-job",
		"field_brief":                "observacoes-e-links",
		"field_author":               "time-envolvido",
		"field_text_link":            "link-do-texto",
		"openai_model":               "gpt-4o",
		"handshake_header":           "X-Hook-Secret",
		"http_timeout_seconds":       10,
		"completion_timeout_seconds": 90,
		"comment_workers":            2,
		"comment_queue_size":         32,
		"dedupe_ttl_minutes":         60,
		"log_level":                  "info",
		"log_format":                 "console",
	}
}

// envKeys lists the environment variables read, beyond those with defaults.
var envKeys = []string{
	"podio_client_id",
	"podio_client_secret",
	"podio_refresh_token",
	"podio_access_token",
	"podio_webhook_id",
	"openai_api_key",
	"openai_base_url",
	"google_credentials_json",
	"style_guide_folder_id",
	"forward_secret",
}

// Load layers defaults, the optional TOML file at path and the environment,
// then validates the result.
func Load(path string) (*Config, error) {
	cfg, err := load(path)
	if err != nil {
		return nil, err
	}
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// LoadUnvalidated is Load without validation, for commands that need only
// part of the configuration.
func LoadUnvalidated(path string) (*Config, error) {
	cfg, err := load(path)
	if err != nil {
		return nil, err
	}
	cfg.applyDefaults()
	return cfg, nil
}

func load(path string) (*Config, error) {
	k := koanf.New(".")

	defaultValues := defaults()
	if err := k.Load(confmap.Provider(defaultValues, "."), nil); err != nil {
		return nil, fmt.Errorf("error loading defaults: %w", err)
	}

	if path != "" {
		if err := k.Load(file.Provider(path), toml.Parser()); err != nil {
			return nil, fmt.Errorf("error loading config file %s: %w", path, err)
		}
	}

	known := make(map[string]struct{}, len(defaultValues)+len(envKeys))
	for key := range defaultValues {
		known[key] = struct{}{}
	}
	for _, key := range envKeys {
		known[key] = struct{}{}
	}

	err := k.Load(env.ProviderWithValue("", ".", func(key, value string) (string, interface{}) {
		key = strings.ToLower(key)
		if _, ok := known[key]; !ok || strings.TrimSpace(value) == "" {
			return "", nil
		}
		return key, value
	}), nil)
	if err != nil {
		return nil, fmt.Errorf("error loading environment: %w", err)
	}

	var cfg Config
	if err := k.Unmarshal("", &cfg); err != nil {
		return nil, fmt.Errorf("error unmarshalling config: %w", err)
	}
	cfg.GoogleCredentialsJSON = normalizeCredentialsJSON(cfg.GoogleCredentialsJSON)
	return &cfg, nil
}

// normalizeCredentialsJSON strips the quotes some hosts keep around
// multi-line secrets.
func normalizeCredentialsJSON(value string) string {
	trimmed := strings.TrimSpace(value)
	if trimmed == "" {
		return ""
	}

	if strings.HasPrefix(trimmed, "'") && strings.HasSuffix(trimmed, "'") {
		trimmed = strings.TrimSuffix(strings.TrimPrefix(trimmed, "'"), "'")
	}
	if strings.HasPrefix(trimmed, "\"{") && strings.HasSuffix(trimmed, "}\"") {
		trimmed = strings.TrimSuffix(strings.TrimPrefix(trimmed, "\""), "\"")
	}
	return strings.TrimSpace(trimmed)
}

// validate checks that all required configuration is present
func (c *Config) validate() error {
	if err := c.validatePodioCredentials(); err != nil {
		return err
	}

	if c.OpenAIAPIKey == "" {
		return fmt.Errorf("OPENAI_API_KEY is required")
	}

	if strings.TrimSpace(c.ReadyStatusLabel) == "" && c.ReadyStatusOptionID == 0 {
		return fmt.Errorf("READY_STATUS_LABEL or READY_STATUS_OPTION_ID is required")
	}

	if c.PodioWebhookID == 0 {
		log.Warn().Msg("PODIO_WEBHOOK_ID not set, deliveries from any hook are accepted")
	}
	if c.StyleGuideFolderID != "" && c.GoogleCredentialsJSON == "" {
		log.Warn().Msg("STYLE_GUIDE_FOLDER_ID is set but GOOGLE_CREDENTIALS_JSON is not; style guides are disabled")
	}

	c.applyDefaults()
	return c.validateLimits()
}

func (c *Config) validatePodioCredentials() error {
	if c.PodioAccessToken != "" {
		return nil
	}
	if c.HasRefreshCredentials() {
		return nil
	}
	return fmt.Errorf("PODIO_ACCESS_TOKEN or PODIO_CLIENT_ID, PODIO_CLIENT_SECRET and PODIO_REFRESH_TOKEN are required")
}

// HasRefreshCredentials reports whether the OAuth refresh triple is complete.
func (c *Config) HasRefreshCredentials() bool {
	return c.PodioClientID != "" && c.PodioClientSecret != "" && c.PodioRefreshToken != ""
}

func (c *Config) applyDefaults() {
	if c.Port <= 0 {
		c.Port = 3000
	}
	if c.HTTPTimeoutSeconds <= 0 {
		c.HTTPTimeoutSeconds = 10
	}
	if c.CompletionTimeoutSeconds <= 0 {
		c.CompletionTimeoutSeconds = 90
	}
	if c.CommentWorkers <= 0 {
		c.CommentWorkers = 2
	}
	if c.CommentQueueSize <= 0 {
		c.CommentQueueSize = 32
	}
	if c.DedupeTTLMinutes <= 0 {
		c.DedupeTTLMinutes = 60
	}
	if c.StatusField == "" {
		c.StatusField = "status"
	}
}

func (c *Config) validateLimits() error {
	if c.Port > 65535 {
		return fmt.Errorf("PORT must be a valid TCP port")
	}
	if c.CommentQueueSize < c.CommentWorkers {
		return fmt.Errorf("COMMENT_QUEUE_SIZE must be >= COMMENT_WORKERS")
	}
	switch strings.ToLower(c.LogFormat) {
	case "", "console", "json":
	default:
		return fmt.Errorf("invalid LOG_FORMAT: %s (must be 'console' or 'json')", c.LogFormat)
	}
	return nil
}

// HTTPTimeout bounds every outbound Podio and Google call.
func (c *Config) HTTPTimeout() time.Duration {
	return time.Duration(c.HTTPTimeoutSeconds) * time.Second
}

// CompletionTimeout bounds the completion call.
func (c *Config) CompletionTimeout() time.Duration {
	return time.Duration(c.CompletionTimeoutSeconds) * time.Second
}

// DedupeTTL is how long a delivered revision is remembered.
func (c *Config) DedupeTTL() time.Duration {
	return time.Duration(c.DedupeTTLMinutes) * time.Minute
}
