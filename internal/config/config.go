package config

import (
	"errors"
	"fmt"
	"time"

	"github.com/joho/godotenv"
	"go-simpler.org/env"
)

type Config struct {
	DiscordToken string `env:"DISCORD_TOKEN"`
	BotOwnerID   string `env:"BOT_OWNER_ID"`
	LogLevel     string `env:"LOG_LEVEL" default:"info"`
	LogFormat    string `env:"LOG_FORMAT" default:"json"`

	NetworkTimeout                 time.Duration `env:"NETWORK_TIMEOUT" default:"10s"`
	MetadataTimeout                time.Duration `env:"METADATA_TIMEOUT" default:"5s"`
	RetryAttempts                  int           `env:"RETRY_ATTEMPTS" default:"3"`
	CircuitBreakerThreshold        int           `env:"CIRCUIT_BREAKER_THRESHOLD" default:"5"`
	CircuitBreakerTimeout          time.Duration `env:"CIRCUIT_BREAKER_TIMEOUT" default:"60s"`
	CircuitBreakerSuccessThreshold int           `env:"CIRCUIT_BREAKER_SUCCESS_THRESHOLD" default:"2"`
	CircuitBreakerHalfOpenMaxCalls int           `env:"CIRCUIT_BREAKER_HALF_OPEN_MAX_CALLS" default:"3"`

	EmptyChannelTimeout  time.Duration `env:"EMPTY_CHANNEL_TIMEOUT" default:"2700s"`
	HealthCheckInterval  time.Duration `env:"HEALTH_CHECK_INTERVAL" default:"15s"`
	HealthErrorThreshold int           `env:"HEALTH_ERROR_THRESHOLD" default:"3"`
	IdleCountBots        bool          `env:"IDLE_COUNT_BOTS" default:"false"`
	RecoveryMaxAttempts  int           `env:"RECOVERY_MAX_ATTEMPTS" default:"3"`

	TranscoderBinary           string        `env:"TRANSCODER_BINARY" default:"ffmpeg"`
	TranscoderTerminateTimeout time.Duration `env:"TRANSCODER_TERMINATE_TIMEOUT" default:"3s"`
	AudioVolume                float64       `env:"AUDIO_VOLUME" default:"0.8"`
	AudioFilters               string        `env:"AUDIO_FILTERS" default:"enhanced"`

	DatabasePath         string `env:"DATABASE_PATH" default:"bunradio.db"`
	SnapshotSchedule     string `env:"SNAPSHOT_SCHEDULE" default:"0 */1 * * * *"`
	SongAnnounceSchedule string `env:"SONG_ANNOUNCE_SCHEDULE" default:"*/15 * * * * *"`
	PresenceSchedule     string `env:"PRESENCE_SCHEDULE" default:"0 */5 * * * *"`
	MetricsAddr          string `env:"METRICS_ADDR"`
}

var (
	ErrDiscordTokenNotSet = errors.New("DISCORD_TOKEN is required")
	ErrInvalidThreshold   = errors.New("threshold must be positive")
	ErrInvalidDuration    = errors.New("duration must be positive")
	ErrInvalidVolume      = errors.New("AUDIO_VOLUME must be between 0 and 2")
	ErrInvalidFilterMode  = errors.New("AUDIO_FILTERS must be enhanced, basic or none")
)

// LoadConfig reads an optional .env file and then the process environment.
func LoadConfig() (*Config, error) {
	// A missing .env is fine; the environment may already be populated.
	_ = godotenv.Load()

	var cfg Config
	if err := env.Load(&cfg, nil); err != nil {
		return nil, fmt.Errorf("failed to load environment variables: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate collects every invalid option into one error.
func (c *Config) Validate() error {
	var errs []error

	if c.DiscordToken == "" {
		errs = append(errs, ErrDiscordTokenNotSet)
	}

	positives := map[string]int{
		"RETRY_ATTEMPTS":                      c.RetryAttempts,
		"CIRCUIT_BREAKER_THRESHOLD":           c.CircuitBreakerThreshold,
		"CIRCUIT_BREAKER_SUCCESS_THRESHOLD":   c.CircuitBreakerSuccessThreshold,
		"CIRCUIT_BREAKER_HALF_OPEN_MAX_CALLS": c.CircuitBreakerHalfOpenMaxCalls,
		"HEALTH_ERROR_THRESHOLD":              c.HealthErrorThreshold,
		"RECOVERY_MAX_ATTEMPTS":               c.RecoveryMaxAttempts,
	}
	for name, v := range positives {
		if v <= 0 {
			errs = append(errs, fmt.Errorf("%s: %w", name, ErrInvalidThreshold))
		}
	}

	durations := map[string]time.Duration{
		"NETWORK_TIMEOUT":              c.NetworkTimeout,
		"METADATA_TIMEOUT":             c.MetadataTimeout,
		"CIRCUIT_BREAKER_TIMEOUT":      c.CircuitBreakerTimeout,
		"EMPTY_CHANNEL_TIMEOUT":        c.EmptyChannelTimeout,
		"HEALTH_CHECK_INTERVAL":        c.HealthCheckInterval,
		"TRANSCODER_TERMINATE_TIMEOUT": c.TranscoderTerminateTimeout,
	}
	for name, d := range durations {
		if d <= 0 {
			errs = append(errs, fmt.Errorf("%s: %w", name, ErrInvalidDuration))
		}
	}

	if c.AudioVolume < 0 || c.AudioVolume > 2 {
		errs = append(errs, ErrInvalidVolume)
	}

	switch c.AudioFilters {
	case "enhanced", "basic", "none":
	default:
		errs = append(errs, ErrInvalidFilterMode)
	}

	return errors.Join(errs...)
}
