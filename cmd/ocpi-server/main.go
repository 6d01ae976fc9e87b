package main

import (
	"context"
	"errors"
	"flag"
	"log/slog"
	"os"

	"github.com/labstack/echo/v4"
	echomiddleware "github.com/labstack/echo/v4/middleware"
	"go.opentelemetry.io/contrib/instrumentation/github.com/labstack/echo/otelecho"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracehttp"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"

	ocpi "github.com/julianfickerseq/ocpi-server"
	"github.com/julianfickerseq/ocpi-server/client"
	"github.com/julianfickerseq/ocpi-server/internal/config"
	"github.com/julianfickerseq/ocpi-server/internal/domain"
	"github.com/julianfickerseq/ocpi-server/internal/infra/database"
	"github.com/julianfickerseq/ocpi-server/internal/infra/repository"
	"github.com/julianfickerseq/ocpi-server/internal/present/rest"
	"github.com/julianfickerseq/ocpi-server/internal/present/rest/middleware"
	"github.com/julianfickerseq/ocpi-server/internal/service"
	"github.com/julianfickerseq/ocpi-server/internal/usecase"
)

func main() {
	configPath := flag.String("config", "config.yaml", "path to the configuration file")
	flag.Parse()

	conf, err := config.Load(*configPath)
	if err != nil {
		slog.Error("failed to load config", slog.String("error", err.Error()))
		os.Exit(1)
	}
	if conf.Server.Listen == "" {
		conf.Server.Listen = ":8000"
	}

	ctx := context.Background()

	if conf.Server.EnableTrace {
		shutdown, err := setupTracer(ctx, conf.Server.TraceEndpoint)
		if err != nil {
			slog.Error("failed to set up tracing", slog.String("error", err.Error()))
			os.Exit(1)
		}
		defer shutdown(ctx)
	}

	db, err := database.NewPostgres(conf.Server.PostgresDsn)
	if err != nil {
		slog.Error("failed to connect database", slog.String("error", err.Error()))
		os.Exit(1)
	}
	if err := database.MigratePostgres(db); err != nil {
		slog.Error("failed to migrate database", slog.String("error", err.Error()))
		os.Exit(1)
	}

	rdb := database.NewRedis(conf.Server.RedisAddr, "", conf.Server.RedisDB)

	peerRepo := repository.NewPeerRepository(db)
	locationRepo := repository.NewLocationRepository(db)
	sessionRepo := repository.NewSessionRepository(db)

	if err := seedPeers(ctx, conf, peerRepo); err != nil {
		slog.Error("failed to seed peer tokens", slog.String("error", err.Error()))
		os.Exit(1)
	}

	peerClient := client.New()
	signal := service.NewSignalService(rdb)
	push := service.NewPushService(rdb, peerRepo, locationRepo, sessionRepo, peerClient, conf.Server.PushWorkers)

	versionUC := usecase.NewVersionUsecase(conf)
	credentialsUC := usecase.NewCredentialsUsecase(peerRepo, peerClient, conf)
	locationUC := usecase.NewLocationUsecase(locationRepo, peerClient, signal)
	sessionUC := usecase.NewSessionUsecase(sessionRepo, signal)

	auth := middleware.NewAuthMiddleware(peerRepo)
	handler := rest.NewHandler(conf, auth, versionUC, credentialsUC, locationUC, sessionUC)

	e := echo.New()
	e.HideBanner = true
	e.Use(echomiddleware.Logger())
	e.Use(echomiddleware.Recover())
	e.Use(echomiddleware.CORS())
	if conf.Server.EnableTrace {
		e.Use(otelecho.Middleware("ocpi-server"))
	}
	handler.RegisterRoutes(e)

	go func() {
		if err := push.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
			slog.Error("push worker stopped", slog.String("error", err.Error()))
		}
	}()

	e.Logger.Fatal(e.Start(conf.Server.Listen))
}

// seedPeers loads the pre-shared tokens from the configuration into the
// registry. Tokens already on file are left untouched so rotations survive a
// restart.
func seedPeers(ctx context.Context, conf config.Config, repo usecase.PeerRepository) error {
	for _, seed := range conf.SeedTokens {
		if _, err := repo.Get(ctx, seed.Token); err == nil {
			continue
		} else if !errors.Is(err, domain.ErrNotFound) {
			return err
		}

		role, err := ocpi.ParseRole(seed.Role)
		if err != nil {
			return err
		}
		peer := domain.Peer{
			Token:            seed.Token,
			URL:              seed.URL,
			Role:             role,
			AllowedLocations: seed.AllowedLocations,
		}
		if err := repo.Create(ctx, peer); err != nil {
			return err
		}
		slog.Info("seeded peer token",
			slog.String("url", seed.URL),
			slog.String("role", seed.Role),
		)
	}
	return nil
}

func setupTracer(ctx context.Context, endpoint string) (func(context.Context) error, error) {
	exporter, err := otlptracehttp.New(ctx, otlptracehttp.WithEndpoint(endpoint), otlptracehttp.WithInsecure())
	if err != nil {
		return nil, err
	}

	provider := sdktrace.NewTracerProvider(
		sdktrace.WithBatcher(exporter),
	)
	otel.SetTracerProvider(provider)

	return provider.Shutdown, nil
}
