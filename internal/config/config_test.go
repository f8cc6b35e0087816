package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadConfig_Defaults(t *testing.T) {
	t.Setenv("DISCORD_TOKEN", "token")

	cfg, err := LoadConfig()
	require.NoError(t, err)

	assert.Equal(t, "token", cfg.DiscordToken)
	assert.Equal(t, 10*time.Second, cfg.NetworkTimeout)
	assert.Equal(t, 3, cfg.RetryAttempts)
	assert.Equal(t, 5, cfg.CircuitBreakerThreshold)
	assert.Equal(t, 60*time.Second, cfg.CircuitBreakerTimeout)
	assert.Equal(t, 2700*time.Second, cfg.EmptyChannelTimeout)
	assert.Equal(t, 15*time.Second, cfg.HealthCheckInterval)
	assert.Equal(t, 3, cfg.HealthErrorThreshold)
	assert.Equal(t, 3, cfg.RecoveryMaxAttempts)
	assert.Equal(t, "ffmpeg", cfg.TranscoderBinary)
	assert.InDelta(t, 0.8, cfg.AudioVolume, 0.0001)
	assert.False(t, cfg.IdleCountBots)
}

func TestLoadConfig_Overrides(t *testing.T) {
	t.Setenv("DISCORD_TOKEN", "token")
	t.Setenv("RETRY_ATTEMPTS", "5")
	t.Setenv("CIRCUIT_BREAKER_TIMEOUT", "30s")
	t.Setenv("IDLE_COUNT_BOTS", "true")
	t.Setenv("AUDIO_FILTERS", "basic")

	cfg, err := LoadConfig()
	require.NoError(t, err)

	assert.Equal(t, 5, cfg.RetryAttempts)
	assert.Equal(t, 30*time.Second, cfg.CircuitBreakerTimeout)
	assert.True(t, cfg.IdleCountBots)
	assert.Equal(t, "basic", cfg.AudioFilters)
}

func TestConfig_Validate(t *testing.T) {
	valid := func() Config {
		return Config{
			DiscordToken:                   "token",
			NetworkTimeout:                 time.Second,
			MetadataTimeout:                time.Second,
			RetryAttempts:                  3,
			CircuitBreakerThreshold:        5,
			CircuitBreakerTimeout:          time.Minute,
			CircuitBreakerSuccessThreshold: 2,
			CircuitBreakerHalfOpenMaxCalls: 3,
			EmptyChannelTimeout:            time.Minute,
			HealthCheckInterval:            time.Second,
			HealthErrorThreshold:           3,
			RecoveryMaxAttempts:            3,
			TranscoderTerminateTimeout:     time.Second,
			AudioVolume:                    0.8,
			AudioFilters:                   "enhanced",
		}
	}

	tests := []struct {
		name   string
		mutate func(*Config)
		want   error
	}{
		{name: "valid", mutate: func(*Config) {}},
		{name: "missing token", mutate: func(c *Config) { c.DiscordToken = "" }, want: ErrDiscordTokenNotSet},
		{name: "zero retries", mutate: func(c *Config) { c.RetryAttempts = 0 }, want: ErrInvalidThreshold},
		{name: "zero interval", mutate: func(c *Config) { c.HealthCheckInterval = 0 }, want: ErrInvalidDuration},
		{name: "loud volume", mutate: func(c *Config) { c.AudioVolume = 3 }, want: ErrInvalidVolume},
		{name: "unknown filters", mutate: func(c *Config) { c.AudioFilters = "bass" }, want: ErrInvalidFilterMode},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := valid()
			tt.mutate(&cfg)
			err := cfg.Validate()
			if tt.want == nil {
				assert.NoError(t, err)
				return
			}
			assert.ErrorIs(t, err, tt.want)
		})
	}
}
