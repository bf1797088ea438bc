package main

import (
	"context"
	"net/http"
	"os"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/dormmatehq/dormmate-backend/api/routes"
	"github.com/dormmatehq/dormmate-backend/internal/auth"
	"github.com/dormmatehq/dormmate-backend/internal/identity"
	"github.com/dormmatehq/dormmate-backend/internal/match"
	"github.com/dormmatehq/dormmate-backend/internal/notifications"
	"github.com/dormmatehq/dormmate-backend/internal/teams"
	"github.com/dormmatehq/dormmate-backend/pkg/config"
	"github.com/dormmatehq/dormmate-backend/pkg/db"
	"github.com/dormmatehq/dormmate-backend/pkg/logger"
	"github.com/dormmatehq/dormmate-backend/pkg/mailer"
	"github.com/dormmatehq/dormmate-backend/pkg/metrics"
	"github.com/dormmatehq/dormmate-backend/pkg/migrate"
	"github.com/dormmatehq/dormmate-backend/pkg/redis"
	"github.com/dormmatehq/dormmate-backend/pkg/tokens"
)

func main() {
	logg := logger.New(logger.Options{ServiceName: "api"})

	if err := godotenv.Load(); err != nil {
		logg.Warn(context.Background(), ".env file not found, relying on environment")
	}

	cfg, err := config.Load()
	if err != nil {
		logg.Error(context.Background(), "failed to load config", err)
		os.Exit(1)
	}

	logg = logger.New(logger.Options{
		ServiceName: "api",
		Level:       logger.ParseLevel(cfg.App.LogLevel),
		WarnStack:   cfg.App.LogWarnStack,
	})

	dbClient, err := db.New(context.Background(), cfg.DB, logg)
	if err != nil {
		logg.Error(context.Background(), "failed to bootstrap database", err)
		os.Exit(1)
	}
	defer func() {
		if err := dbClient.Close(); err != nil {
			logg.Error(context.Background(), "error closing database", err)
		}
	}()

	if err := migrate.MaybeRunDev(context.Background(), cfg, logg, dbClient); err != nil {
		logg.Error(context.Background(), "failed to run dev migrations", err)
		os.Exit(1)
	}

	redisClient, err := redis.New(context.Background(), cfg.Redis, logg)
	if err != nil {
		logg.Error(context.Background(), "failed to bootstrap redis", err)
		os.Exit(1)
	}
	defer func() {
		if err := redisClient.Close(); err != nil {
			logg.Error(context.Background(), "error closing redis", err)
		}
	}()

	tokenSvc, err := tokens.NewService(cfg.JWT)
	if err != nil {
		logg.Error(context.Background(), "failed to create token service", err)
		os.Exit(1)
	}

	var mail mailer.Sender
	if cfg.Mail.Enabled() {
		smtp, err := mailer.NewSMTPSender(cfg.Mail)
		if err != nil {
			logg.Error(context.Background(), "failed to create smtp sender", err)
			os.Exit(1)
		}
		mail = smtp
	} else {
		logg.Warn(context.Background(), "smtp host not configured, logging mail instead")
		mail = mailer.NewLogSender(logg)
	}

	httpMetrics := metrics.NewHTTPMetrics(prometheus.DefaultRegisterer)
	domainMetrics := metrics.NewDomainMetrics(prometheus.DefaultRegisterer)

	identitySvc := identity.NewService(dbClient, logg)
	authSvc := auth.NewService(dbClient, logg, tokenSvc, mail, cfg)
	matchSvc := match.NewService(dbClient, logg, identitySvc, domainMetrics)
	teamsSvc := teams.NewService(dbClient, logg, domainMetrics)
	notificationsSvc := notifications.NewService(dbClient, logg)

	port := os.Getenv("PORT")
	if port == "" {
		port = cfg.App.Port
	}
	addr := ":" + port
	ctx := logg.WithFields(context.Background(), map[string]any{
		"env":  cfg.App.Env,
		"addr": addr,
	})
	logg.Info(ctx, "starting api server")

	server := &http.Server{
		Addr: addr,
		Handler: routes.NewRouter(routes.Deps{
			Config:        cfg,
			Logger:        logg,
			DB:            dbClient,
			Redis:         redisClient,
			Tokens:        tokenSvc,
			HTTPMetrics:   httpMetrics,
			Auth:          authSvc,
			Identity:      identitySvc,
			Match:         matchSvc,
			Teams:         teamsSvc,
			Notifications: notificationsSvc,
		}),
	}

	if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		logg.Error(ctx, "api server stopped unexpectedly", err)
		os.Exit(1)
	}
}
