package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

const (
	envPrefix              = "PORTFOLIO"
	defaultHTTPAddress     = "0.0.0.0:8080"
	defaultDatabasePath    = "portfolio.db"
	defaultLogLevel        = "info"
	defaultLogFormat       = "json"
	defaultTokenTTLMinutes = 60
	defaultMediaLocalDir   = "uploads"
	defaultMediaPublicURL  = "http://localhost:8080/media"
	defaultMaxUploadBytes  = 10 << 20
	defaultChatModel       = "gemini-2.5-flash"
	defaultChatEndpoint    = ""
	defaultAssistantName   = "Portfolio Assistant"
	defaultShutdownSeconds = 15
	defaultSessionIdleMins = 120
)

// AuthConfig describes the owner account and admin token signing.
type AuthConfig struct {
	SigningSecret     string
	OwnerUsername     string
	OwnerPasswordHash string
	TokenTTL          time.Duration
}

// MediaConfig selects where uploads are stored. S3 wins when a bucket is set.
type MediaConfig struct {
	LocalDir       string
	PublicBaseURL  string
	MaxUploadBytes int64
}

type S3Config struct {
	Bucket          string
	Region          string
	Endpoint        string
	AccessKeyID     string
	SecretAccessKey string
	PublicBaseURL   string
}

// Enabled reports whether uploads should go to S3.
func (c S3Config) Enabled() bool {
	return strings.TrimSpace(c.Bucket) != ""
}

type ChatConfig struct {
	APIKey        string
	Model         string
	Endpoint      string
	AssistantName string
}

// AppConfig captures runtime configuration for the API server.
type AppConfig struct {
	HTTPAddress        string
	DatabasePath       string
	LogLevel           string
	LogFormat          string
	ShutdownTimeout    time.Duration
	SessionIdleTimeout time.Duration
	CORSAllowedOrigins []string
	RabbitMQURL        string
	Auth               AuthConfig
	Media              MediaConfig
	S3                 S3Config
	Chat               ChatConfig
}

// NewViper returns a viper instance with defaults and env bindings configured.
func NewViper() *viper.Viper {
	configViper := viper.New()
	ApplyDefaults(configViper)
	return configViper
}

// ApplyDefaults configures defaults and env bindings on the provided viper instance.
func ApplyDefaults(configViper *viper.Viper) {
	configViper.SetEnvPrefix(envPrefix)
	configViper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	configViper.AutomaticEnv()

	configViper.SetDefault("http.address", defaultHTTPAddress)
	configViper.SetDefault("http.shutdown_timeout_seconds", defaultShutdownSeconds)
	configViper.SetDefault("database.path", defaultDatabasePath)
	configViper.SetDefault("editor.session_idle_minutes", defaultSessionIdleMins)
	configViper.SetDefault("log.level", defaultLogLevel)
	configViper.SetDefault("log.format", defaultLogFormat)
	configViper.SetDefault("auth.token_ttl_minutes", defaultTokenTTLMinutes)
	configViper.SetDefault("media.local_dir", defaultMediaLocalDir)
	configViper.SetDefault("media.public_base_url", defaultMediaPublicURL)
	configViper.SetDefault("media.max_upload_bytes", defaultMaxUploadBytes)
	configViper.SetDefault("chat.model", defaultChatModel)
	configViper.SetDefault("chat.endpoint", defaultChatEndpoint)
	configViper.SetDefault("chat.assistant_name", defaultAssistantName)
	configViper.SetDefault("cors.allowed_origins", []string{})

	for _, key := range []string{
		"auth.signing_secret", "auth.owner_username", "auth.owner_password_hash",
		"s3.bucket", "s3.region", "s3.endpoint", "s3.access_key_id", "s3.secret_access_key", "s3.public_base_url",
		"rabbitmq.url", "chat.api_key",
	} {
		_ = configViper.BindEnv(key)
	}
}

// Load parses runtime configuration from viper.
func Load(configViper *viper.Viper) (AppConfig, error) {
	cfg := AppConfig{
		HTTPAddress:        configViper.GetString("http.address"),
		DatabasePath:       configViper.GetString("database.path"),
		LogLevel:           configViper.GetString("log.level"),
		LogFormat:          configViper.GetString("log.format"),
		ShutdownTimeout:    time.Duration(configViper.GetInt("http.shutdown_timeout_seconds")) * time.Second,
		SessionIdleTimeout: time.Duration(configViper.GetInt("editor.session_idle_minutes")) * time.Minute,
		CORSAllowedOrigins: splitList(configViper.GetStringSlice("cors.allowed_origins")),
		RabbitMQURL:        configViper.GetString("rabbitmq.url"),
		Auth: AuthConfig{
			SigningSecret:     configViper.GetString("auth.signing_secret"),
			OwnerUsername:     configViper.GetString("auth.owner_username"),
			OwnerPasswordHash: configViper.GetString("auth.owner_password_hash"),
			TokenTTL:          time.Duration(configViper.GetInt("auth.token_ttl_minutes")) * time.Minute,
		},
		Media: MediaConfig{
			LocalDir:       configViper.GetString("media.local_dir"),
			PublicBaseURL:  configViper.GetString("media.public_base_url"),
			MaxUploadBytes: configViper.GetInt64("media.max_upload_bytes"),
		},
		S3: S3Config{
			Bucket:          configViper.GetString("s3.bucket"),
			Region:          configViper.GetString("s3.region"),
			Endpoint:        configViper.GetString("s3.endpoint"),
			AccessKeyID:     configViper.GetString("s3.access_key_id"),
			SecretAccessKey: configViper.GetString("s3.secret_access_key"),
			PublicBaseURL:   configViper.GetString("s3.public_base_url"),
		},
		Chat: ChatConfig{
			APIKey:        configViper.GetString("chat.api_key"),
			Model:         configViper.GetString("chat.model"),
			Endpoint:      configViper.GetString("chat.endpoint"),
			AssistantName: configViper.GetString("chat.assistant_name"),
		},
	}

	if err := cfg.validate(); err != nil {
		return AppConfig{}, err
	}

	return cfg, nil
}

func (c AppConfig) validate() error {
	if strings.TrimSpace(c.Auth.SigningSecret) == "" {
		return fmt.Errorf("auth.signing_secret is required")
	}
	if strings.TrimSpace(c.Auth.OwnerUsername) == "" {
		return fmt.Errorf("auth.owner_username is required")
	}
	if strings.TrimSpace(c.Auth.OwnerPasswordHash) == "" {
		return fmt.Errorf("auth.owner_password_hash is required")
	}
	if c.Auth.TokenTTL <= 0 {
		return fmt.Errorf("auth.token_ttl_minutes must be positive")
	}
	if strings.TrimSpace(c.DatabasePath) == "" {
		return fmt.Errorf("database.path is required")
	}
	if !c.S3.Enabled() && strings.TrimSpace(c.Media.LocalDir) == "" {
		return fmt.Errorf("media.local_dir is required when s3.bucket is not set")
	}
	if c.Media.MaxUploadBytes <= 0 {
		return fmt.Errorf("media.max_upload_bytes must be positive")
	}
	if c.SessionIdleTimeout <= 0 {
		return fmt.Errorf("editor.session_idle_minutes must be positive")
	}
	if c.ShutdownTimeout <= 0 {
		return fmt.Errorf("http.shutdown_timeout_seconds must be positive")
	}
	return nil
}

// splitList accepts both YAML lists and comma separated env values.
func splitList(values []string) []string {
	result := make([]string, 0, len(values))
	for _, value := range values {
		for _, part := range strings.Split(value, ",") {
			if trimmed := strings.TrimSpace(part); trimmed != "" {
				result = append(result, trimmed)
			}
		}
	}
	return result
}
