// Command api runs the image generation gateway: an authenticated HTTP
// front door that accepts generation jobs, hands them to the asynchronous
// compute backend, and serves derived job status from the artifact store.
package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/sagemakerruntime"
	"github.com/gin-gonic/gin"
	"github.com/joho/godotenv"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/mgeorgiou/go-imagegen-gateway/internal/auth"
	"github.com/mgeorgiou/go-imagegen-gateway/internal/breaker"
	"github.com/mgeorgiou/go-imagegen-gateway/internal/config"
	httpapi "github.com/mgeorgiou/go-imagegen-gateway/internal/http"
	"github.com/mgeorgiou/go-imagegen-gateway/internal/inference"
	"github.com/mgeorgiou/go-imagegen-gateway/internal/observability"
	"github.com/mgeorgiou/go-imagegen-gateway/internal/repo"
	"github.com/mgeorgiou/go-imagegen-gateway/internal/storage"
	"github.com/mgeorgiou/go-imagegen-gateway/internal/sysutil"
)

func main() {
	// .env is optional; real deployments configure through the environment.
	_ = godotenv.Load()
	cfg := config.MustLoad()

	sysutil.SetLogLevel(cfg.LogLevel)
	if cfg.LogPretty {
		log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.RFC3339})
	}
	version := sysutil.FirstNonEmpty(os.Getenv("APP_VERSION"), "dev")

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	shutdownOTel, err := observability.SetupOTel(ctx, cfg.OTEL, version)
	if err != nil {
		log.Fatal().Err(err).Msg("otel setup failed")
	}

	db, err := repo.OpenSQLite(cfg.DBPath)
	if err != nil {
		log.Fatal().Err(err).Str("path", cfg.DBPath).Msg("open ledger database")
	}
	if err := repo.AutoMigrate(db); err != nil {
		log.Fatal().Err(err).Msg("migrate ledger schema")
	}

	rdb := redis.NewClient(&redis.Options{
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})
	if err := rdb.Ping(ctx).Err(); err != nil {
		// The limiter's fail-open policy decides what happens per request;
		// startup just records the degradation.
		log.Warn().Err(err).Str("addr", cfg.Redis.Addr).Msg("redis unreachable at startup")
	}

	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, awsconfig.WithRegion(cfg.Storage.Region))
	if err != nil {
		log.Fatal().Err(err).Msg("load aws config")
	}
	store := storage.NewS3Store(s3.NewFromConfig(awsCfg), cfg.Storage.Bucket)
	invoker := inference.NewSageMakerInvoker(sagemakerruntime.NewFromConfig(awsCfg), cfg.Inference.InvokeTimeout)
	brk := breaker.New("inference", cfg.Breaker.FailureThreshold, cfg.Breaker.ResetTimeout)
	verifier := auth.New(cfg.Auth.Secret, cfg.Auth.Issuer)

	gin.SetMode(cfg.GinMode)
	r := gin.New()
	httpapi.RegisterRoutes(r, httpapi.Deps{
		DB:       db,
		Store:    store,
		Invoker:  invoker,
		Breaker:  brk,
		Redis:    rdb,
		Verifier: verifier,
		Cfg:      cfg,
	})

	srv := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           r,
		ReadTimeout:       cfg.ReadTimeout,
		ReadHeaderTimeout: cfg.ReadHeaderTimeout,
		WriteTimeout:      cfg.WriteTimeout,
		IdleTimeout:       cfg.IdleTimeout,
		MaxHeaderBytes:    cfg.MaxHeaderBytes,
	}

	errCh := make(chan error, 1)
	go func() {
		log.Info().Str("addr", srv.Addr).Str("version", version).Msg("gateway listening")
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error().Err(err).Msg("server error")
		}
	case <-ctx.Done():
		log.Info().Msg("shutdown signal received")
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("graceful shutdown failed")
	}
	if err := shutdownOTel(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("otel shutdown failed")
	}
	log.Info().Msg("gateway stopped")
}
