package config

import (
	"testing"
	"time"

	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
)

func TestDefaults(t *testing.T) {
	v := viper.New()
	setDefaults(v)
	cfg := fromViper(v)

	assert.Equal(t, EnvDevelopment, cfg.Env)
	assert.Equal(t, 15*time.Second, cfg.Chat.UnreadPollInterval)
	assert.Equal(t, 3, cfg.Protocols.MaxAttempts)
	assert.Equal(t, DriverMemory, cfg.Realtime.Driver)
	assert.Equal(t, "table_changes", cfg.Realtime.NotifyChannel)
	assert.True(t, cfg.Realtime.Relay)
	assert.Equal(t, 30*time.Second, cfg.Realtime.PresenceTTL)
	assert.Equal(t, int64(10*1024*1024), cfg.Storage.MaxAttachmentBytes)
	assert.Contains(t, cfg.Storage.AllowedMIMEs, "application/pdf")
}

func TestOverrides(t *testing.T) {
	v := viper.New()
	setDefaults(v)
	v.Set("CHAT_UNREAD_POLL_INTERVAL", "not-a-duration")
	v.Set("PROTOCOL_MAX_ATTEMPTS", 0)
	v.Set("REALTIME_DRIVER", "NATS")
	v.Set("ALLOWED_ORIGINS", " https://a.example , ,https://b.example")
	cfg := fromViper(v)

	assert.Equal(t, 15*time.Second, cfg.Chat.UnreadPollInterval)
	assert.Equal(t, 3, cfg.Protocols.MaxAttempts)
	assert.Equal(t, DriverNATS, cfg.Realtime.Driver)
	assert.Equal(t, []string{"https://a.example", "https://b.example"}, cfg.CORS.AllowedOrigins)
}
