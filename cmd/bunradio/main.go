package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/bwmarrin/discordgo"
	"github.com/jonboulle/clockwork"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"

	"github.com/latoulicious/bunradio/internal/announcer"
	"github.com/latoulicious/bunradio/internal/commands"
	"github.com/latoulicious/bunradio/internal/config"
	"github.com/latoulicious/bunradio/internal/handlers"
	"github.com/latoulicious/bunradio/internal/health"
	"github.com/latoulicious/bunradio/internal/log"
	"github.com/latoulicious/bunradio/internal/presence"
	"github.com/latoulicious/bunradio/internal/recovery"
	"github.com/latoulicious/bunradio/internal/session"
	"github.com/latoulicious/bunradio/internal/stream"
	"github.com/latoulicious/bunradio/internal/voice"
	"github.com/latoulicious/bunradio/pkg/cron"
	"github.com/latoulicious/bunradio/pkg/database"
	"github.com/latoulicious/bunradio/pkg/network"
	"github.com/latoulicious/bunradio/pkg/station"
	"github.com/latoulicious/bunradio/pkg/transcoder"
)

const shutdownTimeout = 10 * time.Second

func main() {
	cfg, err := config.LoadConfig()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load config: %v\n", err)
		os.Exit(1)
	}
	log.Configure(log.Config{Level: cfg.LogLevel, Format: cfg.LogFormat})

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg); err != nil {
		logger := log.Base()
		logger.Fatal().Err(err).Msg("bot exited")
	}
}

func run(ctx context.Context, cfg *config.Config) error {
	logger := log.WithComponent("main")
	clock := clockwork.NewRealClock()

	if cfg.MetricsAddr != "" {
		srv := serveMetrics(cfg.MetricsAddr, logger)
		defer shutdownServer(srv, logger)
	}

	dg, err := discordgo.New("Bot " + cfg.DiscordToken)
	if err != nil {
		return fmt.Errorf("failed to create Discord session: %w", err)
	}
	dg.Identify.Intents = discordgo.IntentsGuilds | discordgo.IntentsGuildVoiceStates

	netCfg := network.DefaultConfig()
	netCfg.Timeout = cfg.NetworkTimeout
	netCfg.RetryAttempts = cfg.RetryAttempts
	netCfg.Breaker = network.BreakerConfig{
		FailureThreshold: uint(cfg.CircuitBreakerThreshold),
		Timeout:          cfg.CircuitBreakerTimeout,
		SuccessThreshold: uint(cfg.CircuitBreakerSuccessThreshold),
		HalfOpenMaxCalls: int32(cfg.CircuitBreakerHalfOpenMaxCalls),
	}
	client := network.NewClient(netCfg, clock, log.WithComponent("network"))
	defer client.Close()

	gateway := station.NewGateway(client, cfg.MetadataTimeout, clock, log.WithComponent("station"))
	store := session.NewStore()
	supervisor := transcoder.NewSupervisor(cfg.TranscoderBinary, log.WithComponent("transcoder"))
	platform := voice.NewPlatform(dg, clock, log.WithComponent("voice"))
	notifier := voice.NewNotifier(dg, log.WithComponent("notifier"))

	streamCfg := stream.DefaultConfig()
	streamCfg.Transcoder = transcoder.Options{Volume: cfg.AudioVolume, Filters: transcoder.FilterMode(cfg.AudioFilters)}
	streamCfg.TerminateTimeout = cfg.TranscoderTerminateTimeout
	controller := stream.NewController(ctx, streamCfg, store, platform, gateway, supervisor, notifier,
		clock, log.WithComponent("stream"))

	recoveryCfg := recovery.DefaultConfig()
	recoveryCfg.MaxAttempts = cfg.RecoveryMaxAttempts
	controller.SetRecoverer(recovery.NewController(recoveryCfg, controller, clock, log.WithComponent("recovery")))

	monitor := health.NewMonitor(health.Config{
		Interval:       cfg.HealthCheckInterval,
		ErrorThreshold: cfg.HealthErrorThreshold,
		IdleTimeout:    cfg.EmptyChannelTimeout,
		CountBots:      cfg.IdleCountBots,
	}, store, platform, gateway, controller, clock, log.WithComponent("health"))

	var db *database.DB
	if cfg.DatabasePath != "" {
		db, err = database.Open(ctx, cfg.DatabasePath, log.WithComponent("database"))
		if err != nil {
			return err
		}
		defer db.Close()
	}

	handler := commands.NewHandler(commands.Deps{
		Controller: controller,
		Store:      store,
		Voice:      platform,
		Songs:      gateway,
		Playlists:  client,
		Upstreams:  client,
		GuildCount: func() int { return guildCount(dg) },
		OwnerID:    cfg.BotOwnerID,
	}, log.WithComponent("commands"))
	slash := handlers.NewSlash(ctx, handler, log.WithComponent("handlers"))
	dg.AddHandler(slash.SlashCommandHandler)

	var register sync.Once
	dg.AddHandler(func(s *discordgo.Session, r *discordgo.Ready) {
		logger.Info().Str("user", r.User.Username).Int("guilds", len(r.Guilds)).Msg("connected to Discord")
		register.Do(func() {
			if err := commands.RegisterSlashCommands(s, log.WithComponent("commands")); err != nil {
				logger.Error().Err(err).Msg("failed to register slash commands")
			}
		})
	})

	if err := dg.Open(); err != nil {
		return fmt.Errorf("failed to open Discord session: %w", err)
	}
	defer dg.Close()

	if db != nil {
		records, err := db.LoadSnapshot(ctx)
		if err != nil {
			logger.Warn().Err(err).Msg("failed to load session snapshot")
		} else if n := controller.RestoreSessions(ctx, records); n > 0 {
			logger.Info().Int("sessions", n).Msg("restored sessions from snapshot")
		}
	}

	scheduler := cron.NewScheduler(ctx, log.WithComponent("cron"))
	if err := scheduleJobs(scheduler, cfg, db, store, clock, controller, gateway, notifier, dg); err != nil {
		return err
	}
	scheduler.Start()
	scheduler.RunNow("presence")

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		monitor.Run(ctx)
	}()

	logger.Info().Msg("Bot is running. Press CTRL-C to exit.")
	<-ctx.Done()
	logger.Info().Msg("shutting down")

	scheduler.Stop()
	wg.Wait()

	stopCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	// Keep the sessions so the next run can tell their channels to start
	// again. Their transcoders are stopped here, so no pids are kept.
	records := store.Snapshot()
	for i := range records {
		records[i].TranscoderPID = 0
	}
	for _, guildID := range store.Active() {
		controller.Teardown(stopCtx, guildID, "")
	}
	if db != nil {
		if err := db.SaveSnapshot(stopCtx, records, clock.Now()); err != nil {
			logger.Warn().Err(err).Msg("failed to save final snapshot")
		}
	}
	return nil
}

func scheduleJobs(scheduler *cron.Scheduler, cfg *config.Config, db *database.DB, store *session.Store,
	clock clockwork.Clock, controller *stream.Controller, gateway *station.Gateway, notifier *voice.Notifier,
	dg *discordgo.Session,
) error {
	if db != nil {
		err := scheduler.Add("snapshot", cfg.SnapshotSchedule, func(ctx context.Context) error {
			return db.SaveSnapshot(ctx, store.Snapshot(), clock.Now())
		})
		if err != nil {
			return err
		}
	}

	songs := announcer.New(store, gateway, notifier, clock, log.WithComponent("announcer"))
	if err := scheduler.Add("announce", cfg.SongAnnounceSchedule, songs.Run); err != nil {
		return err
	}

	pm := presence.NewPresenceManager(dg, controller, log.WithComponent("presence"))
	return scheduler.Add("presence", cfg.PresenceSchedule, pm.Update)
}

func guildCount(dg *discordgo.Session) int {
	dg.State.RLock()
	defer dg.State.RUnlock()
	return len(dg.State.Guilds)
}

func serveMetrics(addr string, logger zerolog.Logger) *http.Server {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	srv := &http.Server{Addr: addr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}
	go func() {
		logger.Info().Str("addr", addr).Msg("serving metrics")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error().Err(err).Msg("metrics server failed")
		}
	}()
	return srv
}

func shutdownServer(srv *http.Server, logger zerolog.Logger) {
	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		logger.Warn().Err(err).Msg("metrics server shutdown")
	}
}
