package main

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"gopkg.in/natefinch/lumberjack.v2"

	"pharmapos/backend/internal/config"
	"pharmapos/backend/internal/httpapi"
	"pharmapos/backend/internal/kv"
	"pharmapos/backend/internal/kv/memory"
	pgkv "pharmapos/backend/internal/kv/postgres"
	rediskv "pharmapos/backend/internal/kv/redis"
	"pharmapos/backend/internal/kv/sqlite"
	"pharmapos/backend/internal/money"
	"pharmapos/backend/internal/receipt"
	"pharmapos/backend/internal/store"
	"pharmapos/backend/internal/users"
)

type blobStore interface {
	kv.Store
	Close() error
}

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatal().Err(err).Msg("invalid configuration")
	}
	setupLogger(cfg)

	if err := validateSecurityConfig(cfg); err != nil {
		log.Fatal().Err(err).Msg("invalid security configuration")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	blobs, err := openBlobs(ctx, cfg)
	if err != nil {
		log.Fatal().Err(err).Str("driver", cfg.StorageDriver).Msg("storage unavailable")
	}
	log.Info().Str("driver", cfg.StorageDriver).Msg("storage ready")

	loc, err := loadLocation(cfg.Timezone)
	if err != nil {
		log.Fatal().Err(err).Str("timezone", cfg.Timezone).Msg("unknown timezone")
	}

	st := store.New(blobs,
		store.WithKey(cfg.StoreKey),
		store.WithLogger(log.With().Str("component", "store").Logger()),
		store.WithLocation(loc),
		store.WithDateLayout(cfg.DateLayout),
	)
	if err := st.EnsureSeed(ctx); err != nil {
		log.Fatal().Err(err).Msg("seed catalog")
	}

	dir := users.New(blobs,
		users.WithKey(cfg.UsersKey),
		users.WithLogger(log.With().Str("component", "users").Logger()),
		users.WithDemoPasswords(cfg.SeedOwnerPassword, cfg.SeedWorkerPassword),
	)
	if err := dir.EnsureDemoUsers(ctx); err != nil {
		log.Fatal().Err(err).Msg("seed users")
	}

	formatter, err := money.NewFormatter(cfg.Currency)
	if err != nil {
		log.Fatal().Err(err).Msg("currency")
	}
	receipts := receipt.NewRenderer(cfg.ShopName, formatter, loc, cfg.DateLayout)

	auth := httpapi.NewAuthManager(cfg.AuthSecret, time.Duration(cfg.AccessTokenTTLMinutes)*time.Minute)
	api := httpapi.New(st, dir, auth, receipts, httpapi.Options{
		AllowedOrigin:  cfg.AllowedOrigin,
		Logger:         log.With().Str("component", "http").Logger(),
		TrustedProxies: cfg.TrustedProxies,
	})

	server := &http.Server{
		Addr:              cfg.Address(),
		Handler:           api.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       10 * time.Second,
		WriteTimeout:      15 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	go func() {
		log.Info().Str("addr", cfg.Address()).Str("shop", cfg.ShopName).Msg("pharmacy backend listening")
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal().Err(err).Msg("server error")
		}
	}()

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
	<-sig

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 8*time.Second)
	defer shutdownCancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("shutdown error")
	}
	if err := blobs.Close(); err != nil {
		log.Error().Err(err).Msg("close storage")
	}

	log.Info().Msg("server stopped")
}

// setupLogger writes human-readable output in development and JSON elsewhere,
// teeing into a rotated file when LOG_FILE is set.
func setupLogger(cfg config.Config) {
	level, err := zerolog.ParseLevel(cfg.LogLevel)
	if err != nil || level == zerolog.NoLevel {
		level = zerolog.InfoLevel
	}
	zerolog.SetGlobalLevel(level)

	var out io.Writer = os.Stdout
	if !cfg.IsProduction() {
		out = zerolog.ConsoleWriter{Out: os.Stdout, TimeFormat: time.RFC3339}
	}
	if cfg.LogFile != "" {
		out = zerolog.MultiLevelWriter(out, &lumberjack.Logger{
			Filename:   cfg.LogFile,
			MaxSize:    10,
			MaxBackups: 5,
			MaxAge:     28,
			Compress:   true,
		})
	}
	log.Logger = zerolog.New(out).With().Timestamp().Logger()
}

func validateSecurityConfig(cfg config.Config) error {
	if !cfg.IsProduction() {
		return nil
	}
	if len(cfg.AuthSecret) < 32 {
		return fmt.Errorf("AUTH_SECRET must be set and at least 32 characters")
	}
	if cfg.SeedOwnerPassword == "" || cfg.SeedWorkerPassword == "" {
		return fmt.Errorf("SEED_OWNER_PASSWORD and SEED_WORKER_PASSWORD must be set in production")
	}
	return nil
}

func openBlobs(ctx context.Context, cfg config.Config) (blobStore, error) {
	switch cfg.StorageDriver {
	case config.DriverMemory, "":
		return memory.New(), nil
	case config.DriverSQLite:
		return sqlite.Open(ctx, cfg.SQLitePath)
	case config.DriverPostgres:
		return pgkv.New(ctx, cfg.DatabaseURL)
	case config.DriverRedis:
		rs := rediskv.New(cfg.RedisAddr, cfg.RedisPassword, cfg.RedisDB)
		if err := rs.Ping(ctx); err != nil {
			_ = rs.Close()
			return nil, fmt.Errorf("redis ping: %w", err)
		}
		return rs, nil
	default:
		return nil, fmt.Errorf("unknown storage driver %q", cfg.StorageDriver)
	}
}

func loadLocation(name string) (*time.Location, error) {
	if name == "" || name == "Local" {
		return time.Local, nil
	}
	return time.LoadLocation(name)
}
