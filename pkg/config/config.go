package config

import (
	"errors"
	"io/fs"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

const (
	EnvDevelopment = "development"
	EnvProduction  = "production"
)

// Realtime drivers.
const (
	DriverMemory = "memory"
	DriverNATS   = "nats"
	DriverRedis  = "redis"
)

type Config struct {
	Env       string
	Port      int
	APIPrefix string

	Database   DatabaseConfig
	Redis      RedisConfig
	JWT        JWTConfig
	CORS       CORSConfig
	Log        LogConfig
	Chat       ChatConfig
	Realtime   RealtimeConfig
	Protocols  ProtocolConfig
	Biddings   BiddingConfig
	Storage    StorageConfig
	AssetCache AssetCacheConfig
}

type DatabaseConfig struct {
	Host         string
	Port         int
	User         string
	Password     string
	Name         string
	SSLMode      string
	MaxOpenConns int
	MaxIdleConns int
}

type RedisConfig struct {
	Host     string
	Port     int
	Password string
	DB       int
}

type JWTConfig struct {
	Secret string
	Issuer string
}

type CORSConfig struct {
	AllowedOrigins []string
}

type LogConfig struct {
	Level  string
	Format string
}

// ChatConfig tunes the realtime chat sessions.
type ChatConfig struct {
	UnreadPollInterval time.Duration
	HistoryLimit       int
	SendWorkers        int
	SendRetries        int
	SendRetryDelay     time.Duration
}

// RealtimeConfig selects the push-event broker and presence backends.
type RealtimeConfig struct {
	Driver          string
	NATSURL         string
	NATSName        string
	SubjectPrefix   string
	NotifyChannel   string
	Relay           bool
	PresenceDriver  string
	PresenceChannel string
	PresenceTTL     time.Duration
}

// ProtocolConfig bounds the protocol re-mint loop.
type ProtocolConfig struct {
	MaxAttempts int
}

// BiddingConfig toggles bidding process endpoints.
type BiddingConfig struct {
	Enabled bool
}

// StorageConfig controls attachment and export blob storage.
type StorageConfig struct {
	AttachmentsDir     string
	ExportsDir         string
	SignedURLSecret    string
	SignedURLTTL       time.Duration
	PublicBaseURL      string
	MaxAttachmentBytes int64
	AllowedMIMEs       []string
}

// AssetCacheConfig governs the rendered asset cache.
type AssetCacheConfig struct {
	Enabled bool
	TTL     time.Duration
}

func Load() (*Config, error) {
	_ = godotenv.Load()

	v := viper.New()
	v.SetConfigFile(".env")
	v.SetConfigType("env")
	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) && !errors.Is(err, fs.ErrNotExist) {
			return nil, err
		}
	}

	return fromViper(v), nil
}

func fromViper(v *viper.Viper) *Config {
	cfg := &Config{}

	cfg.Env = v.GetString("ENV")
	cfg.Port = v.GetInt("PORT")
	cfg.APIPrefix = v.GetString("API_PREFIX")

	cfg.Database = DatabaseConfig{
		Host:         v.GetString("DB_HOST"),
		Port:         v.GetInt("DB_PORT"),
		User:         v.GetString("DB_USER"),
		Password:     v.GetString("DB_PASSWORD"),
		Name:         v.GetString("DB_NAME"),
		SSLMode:      v.GetString("DB_SSL_MODE"),
		MaxOpenConns: v.GetInt("DB_MAX_OPEN_CONNS"),
		MaxIdleConns: v.GetInt("DB_MAX_IDLE_CONNS"),
	}

	cfg.Redis = RedisConfig{
		Host:     v.GetString("REDIS_HOST"),
		Port:     v.GetInt("REDIS_PORT"),
		Password: v.GetString("REDIS_PASSWORD"),
		DB:       v.GetInt("REDIS_DB"),
	}

	cfg.JWT = JWTConfig{
		Secret: v.GetString("JWT_SECRET"),
		Issuer: v.GetString("JWT_ISSUER"),
	}

	cfg.CORS = CORSConfig{AllowedOrigins: splitAndTrim(v.GetString("ALLOWED_ORIGINS"))}

	cfg.Log = LogConfig{
		Level:  v.GetString("LOG_LEVEL"),
		Format: v.GetString("LOG_FORMAT"),
	}

	cfg.Chat = ChatConfig{
		UnreadPollInterval: parseDuration(v.GetString("CHAT_UNREAD_POLL_INTERVAL"), 15*time.Second),
		HistoryLimit:       v.GetInt("CHAT_HISTORY_LIMIT"),
		SendWorkers:        v.GetInt("CHAT_SEND_WORKERS"),
		SendRetries:        v.GetInt("CHAT_SEND_RETRIES"),
		SendRetryDelay:     parseDuration(v.GetString("CHAT_SEND_RETRY_DELAY"), time.Second),
	}

	cfg.Realtime = RealtimeConfig{
		Driver:          strings.ToLower(v.GetString("REALTIME_DRIVER")),
		NATSURL:         v.GetString("NATS_URL"),
		NATSName:        v.GetString("NATS_NAME"),
		SubjectPrefix:   v.GetString("REALTIME_SUBJECT_PREFIX"),
		NotifyChannel:   v.GetString("PG_NOTIFY_CHANNEL"),
		Relay:           v.GetBool("REALTIME_RELAY"),
		PresenceDriver:  strings.ToLower(v.GetString("PRESENCE_DRIVER")),
		PresenceChannel: v.GetString("PRESENCE_CHANNEL"),
		PresenceTTL:     parseDuration(v.GetString("PRESENCE_TTL"), 30*time.Second),
	}

	maxAttempts := v.GetInt("PROTOCOL_MAX_ATTEMPTS")
	if maxAttempts <= 0 {
		maxAttempts = 3
	}
	cfg.Protocols = ProtocolConfig{MaxAttempts: maxAttempts}

	cfg.Biddings = BiddingConfig{Enabled: v.GetBool("ENABLE_BIDDINGS")}

	maxAttachment := v.GetInt64("ATTACHMENTS_MAX_FILE_SIZE")
	if maxAttachment <= 0 {
		maxAttachment = 10 * 1024 * 1024
	}
	cfg.Storage = StorageConfig{
		AttachmentsDir:     v.GetString("ATTACHMENTS_STORAGE_DIR"),
		ExportsDir:         v.GetString("EXPORTS_STORAGE_DIR"),
		SignedURLSecret:    v.GetString("STORAGE_SIGNED_URL_SECRET"),
		SignedURLTTL:       parseDuration(v.GetString("STORAGE_SIGNED_URL_TTL"), 24*time.Hour),
		PublicBaseURL:      strings.TrimRight(v.GetString("PUBLIC_BASE_URL"), "/"),
		MaxAttachmentBytes: maxAttachment,
		AllowedMIMEs:       splitAndTrim(v.GetString("ATTACHMENTS_ALLOWED_MIME_TYPES")),
	}

	cfg.AssetCache = AssetCacheConfig{
		Enabled: v.GetBool("ASSET_CACHE_ENABLED"),
		TTL:     parseDuration(v.GetString("ASSET_CACHE_TTL"), 12*time.Hour),
	}

	return cfg
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("ENV", EnvDevelopment)
	v.SetDefault("PORT", 8080)
	v.SetDefault("API_PREFIX", "/api/v1")

	v.SetDefault("DB_HOST", "localhost")
	v.SetDefault("DB_PORT", 5432)
	v.SetDefault("DB_USER", "postgres")
	v.SetDefault("DB_PASSWORD", "postgres")
	v.SetDefault("DB_NAME", "gestao_docs")
	v.SetDefault("DB_SSL_MODE", "disable")
	v.SetDefault("DB_MAX_OPEN_CONNS", 10)
	v.SetDefault("DB_MAX_IDLE_CONNS", 5)

	v.SetDefault("REDIS_HOST", "localhost")
	v.SetDefault("REDIS_PORT", 6379)
	v.SetDefault("REDIS_PASSWORD", "")
	v.SetDefault("REDIS_DB", 0)

	v.SetDefault("JWT_SECRET", "dev_secret")
	v.SetDefault("JWT_ISSUER", "")

	v.SetDefault("ALLOWED_ORIGINS", "")
	v.SetDefault("LOG_LEVEL", "info")
	v.SetDefault("LOG_FORMAT", "json")

	v.SetDefault("CHAT_UNREAD_POLL_INTERVAL", "15s")
	v.SetDefault("CHAT_HISTORY_LIMIT", 500)
	v.SetDefault("CHAT_SEND_WORKERS", 4)
	v.SetDefault("CHAT_SEND_RETRIES", 1)
	v.SetDefault("CHAT_SEND_RETRY_DELAY", "1s")

	v.SetDefault("REALTIME_DRIVER", DriverMemory)
	v.SetDefault("NATS_URL", "nats://127.0.0.1:4222")
	v.SetDefault("NATS_NAME", "gestao-docs-api")
	v.SetDefault("REALTIME_SUBJECT_PREFIX", "realtime")
	v.SetDefault("PG_NOTIFY_CHANNEL", "table_changes")
	v.SetDefault("REALTIME_RELAY", true)
	v.SetDefault("PRESENCE_DRIVER", DriverMemory)
	v.SetDefault("PRESENCE_CHANNEL", "online-users")
	v.SetDefault("PRESENCE_TTL", "30s")

	v.SetDefault("PROTOCOL_MAX_ATTEMPTS", 3)
	v.SetDefault("ENABLE_BIDDINGS", true)

	v.SetDefault("ATTACHMENTS_STORAGE_DIR", "./attachments")
	v.SetDefault("EXPORTS_STORAGE_DIR", "./exports")
	v.SetDefault("STORAGE_SIGNED_URL_SECRET", "dev_storage_secret")
	v.SetDefault("STORAGE_SIGNED_URL_TTL", "24h")
	v.SetDefault("PUBLIC_BASE_URL", "http://localhost:8080/api/v1")
	v.SetDefault("ATTACHMENTS_MAX_FILE_SIZE", 10*1024*1024)
	v.SetDefault("ATTACHMENTS_ALLOWED_MIME_TYPES", "application/pdf,image/png,image/jpeg,application/vnd.openxmlformats-officedocument.wordprocessingml.document,application/vnd.openxmlformats-officedocument.spreadsheetml.sheet")

	v.SetDefault("ASSET_CACHE_ENABLED", false)
	v.SetDefault("ASSET_CACHE_TTL", "12h")
}

func parseDuration(raw string, fallback time.Duration) time.Duration {
	if raw == "" {
		return fallback
	}

	d, err := time.ParseDuration(raw)
	if err != nil {
		return fallback
	}

	return d
}

func splitAndTrim(raw string) []string {
	if raw == "" {
		return nil
	}

	parts := strings.Split(raw, ",")
	result := make([]string, 0, len(parts))
	for _, part := range parts {
		trimmed := strings.TrimSpace(part)
		if trimmed != "" {
			result = append(result, trimmed)
		}
	}

	return result
}
