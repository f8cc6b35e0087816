// Package presence keeps the bot's activity line in step with how many
// stations are playing.
package presence

import (
	"context"
	"fmt"
	"sync"

	"github.com/bwmarrin/discordgo"
	"github.com/rs/zerolog"
)

// StatusUpdater is satisfied by *discordgo.Session.
type StatusUpdater interface {
	UpdateStatusComplex(usd discordgo.UpdateStatusData) error
}

// Counter reports how many guilds are streaming.
type Counter interface {
	ActiveCount() int
}

// PresenceManager manages the bot's presence
type PresenceManager struct {
	session StatusUpdater
	counter Counter
	logger  zerolog.Logger

	mu      sync.Mutex
	current string
}

// NewPresenceManager creates a new presence manager
func NewPresenceManager(session StatusUpdater, counter Counter, logger zerolog.Logger) *PresenceManager {
	return &PresenceManager{
		session: session,
		counter: counter,
		logger:  logger,
	}
}

// Activity renders the activity line for n playing stations.
func Activity(n int) string {
	if n == 1 {
		return "1 station"
	}
	return fmt.Sprintf("%d stations", n)
}

// Update pushes the activity line when it changed since the last push.
func (pm *PresenceManager) Update(ctx context.Context) error {
	name := Activity(pm.counter.ActiveCount())

	pm.mu.Lock()
	defer pm.mu.Unlock()
	if name == pm.current {
		return nil
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	err := pm.session.UpdateStatusComplex(discordgo.UpdateStatusData{
		Status: string(discordgo.StatusOnline),
		Activities: []*discordgo.Activity{
			{Name: name, Type: discordgo.ActivityTypeListening},
		},
	})
	if err != nil {
		return fmt.Errorf("failed to update presence: %w", err)
	}

	pm.logger.Debug().Str("activity", name).Msg("presence updated")
	pm.current = name
	return nil
}

// Current returns the last activity line that was pushed.
func (pm *PresenceManager) Current() string {
	pm.mu.Lock()
	defer pm.mu.Unlock()
	return pm.current
}
