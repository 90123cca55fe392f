package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/calorieai/calorie-bot/internal/admin"
	"github.com/calorieai/calorie-bot/internal/analysis"
	"github.com/calorieai/calorie-bot/internal/api"
	"github.com/calorieai/calorie-bot/internal/auth"
	"github.com/calorieai/calorie-bot/internal/bot"
	"github.com/calorieai/calorie-bot/internal/config"
	"github.com/calorieai/calorie-bot/internal/gemini"
	"github.com/calorieai/calorie-bot/internal/media"
	mw "github.com/calorieai/calorie-bot/internal/middleware"
	inats "github.com/calorieai/calorie-bot/internal/nats"
	"github.com/calorieai/calorie-bot/internal/quota"
	iredis "github.com/calorieai/calorie-bot/internal/redis"
	"github.com/calorieai/calorie-bot/internal/server"
	"github.com/calorieai/calorie-bot/internal/telegram"
	"github.com/calorieai/calorie-bot/internal/worker"
	"github.com/calorieai/calorie-bot/internal/xmpp"
)

func serveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the bot and the admin HTTP server",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()
			return serve(ctx, cfg)
		},
	}
}

func serve(ctx context.Context, cfg *config.Config) error {
	// Redis (quota store and admin rate limiting)
	var redisClient *redis.Client
	store := quota.Store(quota.NewMemoryStore())
	trackerOpts := []quota.Option{quota.WithDailyLimit(cfg.Quota.DailyLimit)}
	if cfg.Quota.Store == config.StoreRedis {
		var err error
		redisClient, err = iredis.NewClient(ctx, cfg.Redis)
		if err != nil {
			return err
		}
		defer redisClient.Close()
		store = quota.NewRedisStore(redisClient)
		trackerOpts = append(trackerOpts, quota.WithLocker(quota.NewRedisLocker(redisClient, lockTTL(cfg.Gemini))))
	}
	tracker := quota.NewTracker(store, trackerOpts...)
	slog.Info("quota tracker ready", "store", cfg.Quota.Store, "daily_limit", tracker.Limit())

	// Usage events
	var natsClient *inats.Client
	var publisher *inats.Publisher
	if cfg.NATS.Enabled() {
		var err error
		natsClient, err = inats.NewClient(ctx, cfg.NATS)
		if err != nil {
			return err
		}
		defer natsClient.Close()
		publisher = inats.NewPublisher(natsClient.JetStream())
	}

	// Model service
	geminiClient, err := gemini.NewClient(ctx, cfg.Gemini.APIKey)
	if err != nil {
		return err
	}
	defer geminiClient.Close()

	invoker := analysis.NewInvoker(geminiClient, cfg.Gemini.Models,
		analysis.WithAttemptTimeout(cfg.Gemini.Timeout),
		analysis.WithAttemptObserver(bot.ObserveAttempt),
		analysis.WithLogger(slog.Default()),
	)
	slog.Info("analysis invoker ready", "candidates", invoker.Candidates())

	pool := worker.NewPool(cfg.Bot.Workers)
	fetcher := media.NewFetcher(cfg.Gemini.Timeout, media.DefaultMaxSize)

	handlerOpts := []bot.Option{bot.WithPlatform(cfg.Bot.Platform)}
	if publisher != nil {
		handlerOpts = append(handlerOpts, bot.WithPublisher(publisher))
	}

	g, ctx := errgroup.WithContext(ctx)

	switch cfg.Bot.Platform {
	case config.PlatformTelegram:
		tg, err := telegram.Connect(cfg.Telegram.Token, cfg.Telegram.Debug)
		if err != nil {
			return err
		}
		handler := bot.NewHandler(telegram.NewMessenger(tg), tracker, invoker, handlerOpts...)
		b := telegram.New(tg, handler, pool, fetcher)
		g.Go(func() error { return b.Run(ctx) })

	case config.PlatformXMPP:
		messenger := xmpp.NewMessenger(cfg.XMPP.ComponentName)
		handler := bot.NewHandler(messenger, tracker, invoker, handlerOpts...)
		comp, err := xmpp.NewComponent(cfg.XMPP, xmpp.NewHandler(handler, pool, fetcher))
		if err != nil {
			return fmt.Errorf("creating xmpp component: %w", err)
		}
		messenger.Bind(comp.Sender())
		g.Go(func() error { return comp.Start(ctx) })

	default:
		return fmt.Errorf("unsupported platform %q", cfg.Bot.Platform)
	}

	if cfg.Server.Enabled {
		srv := server.New(cfg.Server, adminRouter(cfg, tracker, publisher, redisClient, natsClient))
		g.Go(func() error { return srv.Run(ctx) })
	}

	slog.Info("calorie bot started", "platform", cfg.Bot.Platform, "workers", pool.Capacity())
	if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	slog.Info("calorie bot stopped")
	return nil
}

// lockTTL covers the download plus every candidate attempt, with a minute to spare.
func lockTTL(cfg config.GeminiConfig) time.Duration {
	return time.Duration(len(cfg.Models)+1)*cfg.Timeout + time.Minute
}

func adminRouter(cfg *config.Config, tracker *quota.Tracker, publisher *inats.Publisher, redisClient *redis.Client, natsClient *inats.Client) http.Handler {
	var probes api.Probes
	var routerCfg api.RouterConfig
	routerCfg.CORSAllowedOrigins = cfg.Admin.CORSAllowedOrigins

	if redisClient != nil {
		probes.Redis = iredis.Probe(redisClient)
		limiter := mw.NewRateLimiter(redisClient, "admin", cfg.Admin.RateLimitPerMinute, time.Minute)
		routerCfg.AdminRateLimiter = limiter.Middleware
	}
	if natsClient != nil {
		probes.NATS = natsClient.Healthy
	}

	var handlers api.HandlerSet
	if cfg.Admin.JWTSecret != "" {
		var adminPublisher admin.EventPublisher
		if publisher != nil {
			adminPublisher = publisher
		}
		h := admin.NewHandler(tracker, adminPublisher)
		jwtManager := auth.NewJWTManager(cfg.Admin.JWTSecret, cfg.Admin.TokenExpiry)
		handlers = api.HandlerSet{
			GetUserQuota:    h.GetQuota,
			SetSubscription: h.SetSubscription,
			ResetUserQuota:  h.ResetQuota,
			AuthMiddleware:  auth.Middleware(jwtManager, auth.RoleAdmin),
		}
	}

	return api.NewRouter(probes, routerCfg, handlers)
}
