package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/hongminglow/storefront-be/internal/account"
	"github.com/hongminglow/storefront-be/internal/auth"
	"github.com/hongminglow/storefront-be/internal/clock"
	"github.com/hongminglow/storefront-be/internal/config"
	"github.com/hongminglow/storefront-be/internal/delivery"
	"github.com/hongminglow/storefront-be/internal/events"
	"github.com/hongminglow/storefront-be/internal/http/handlers"
	"github.com/hongminglow/storefront-be/internal/logger"
	"github.com/hongminglow/storefront-be/internal/metrics"
	"github.com/hongminglow/storefront-be/internal/middleware"
	"github.com/hongminglow/storefront-be/internal/models"
	"github.com/hongminglow/storefront-be/internal/onboarding"
	"github.com/hongminglow/storefront-be/internal/otp"
	"github.com/hongminglow/storefront-be/internal/server"
	"github.com/hongminglow/storefront-be/internal/storage"
	"github.com/hongminglow/storefront-be/internal/storage/memory"
	"github.com/hongminglow/storefront-be/internal/storage/postgres"
	"github.com/hongminglow/storefront-be/internal/verification"
)

func main() {
	envErr := godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("load config: %v", err)
	}

	zl, err := logger.New(cfg.LogLevel, !cfg.IsProduction())
	if err != nil {
		log.Fatalf("init logger: %v", err)
	}
	defer func() { _ = zl.Sync() }()
	if envErr != nil {
		zl.Info("no .env file found; relying on existing environment")
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	clk := clock.System{}
	health := map[string]handlers.Pinger{}

	store, err := openStorage(ctx, cfg, clk)
	if err != nil {
		zl.Fatal("init storage", zap.String("driver", cfg.StorageDriver), zap.Error(err))
	}
	defer store.Close()
	// fatal releases the pool first; zap's Fatal exits without running defers.
	fatal := func(msg string, fields ...zap.Field) {
		store.Close()
		zl.Fatal(msg, fields...)
	}
	if p, ok := store.(handlers.Pinger); ok {
		health["database"] = p
	}

	roles, err := store.ListRoles(ctx)
	if err != nil {
		fatal("load roles", zap.Error(err))
	}
	catalog, err := models.NewRoleCatalog(roles)
	if err != nil {
		fatal("build role catalog", zap.Error(err))
	}

	tokens, err := auth.NewTokenIssuer(auth.Config{
		AccessSecret:  cfg.JWTSecret,
		RefreshSecret: cfg.JWTRefreshSecret,
		Issuer:        cfg.JWTIssuer,
		AccessTTL:     cfg.AccessTTL(),
		RefreshTTL:    cfg.RefreshTTL(),
	}, clk)
	if err != nil {
		fatal("init token issuer", zap.Error(err))
	}

	codes, closeCodes, err := openOTPStore(ctx, cfg, clk, zl, health)
	if err != nil {
		fatal("init otp store", zap.String("backend", cfg.OTPBackend), zap.Error(err))
	}
	defer closeCodes()

	publisher := openPublisher(cfg, zl)
	defer publisher.Close()

	m := metrics.New()

	verifier := verification.New(verification.Params{
		Users:     store,
		Codes:     codes,
		Generator: otp.NewCodeGenerator(cfg.OTPDigits, nil),
		Tokens:    tokens,
		Email:     emailSender(cfg, zl),
		SMS:       smsSender(cfg, zl),
		Brand:     cfg.BrandName,
		CodeTTL:   cfg.OTPTTL(),
		Log:       zl.Named("verification"),
		Metrics:   m,
	})
	onboarder := onboarding.New(onboarding.Params{
		Tx:             store,
		Roles:          catalog,
		Tokens:         tokens,
		Clock:          clk,
		Publisher:      publisher,
		EventsExchange: cfg.EventsExchange,
		StoreBaseURL:   cfg.StoreBaseURL,
		Log:            zl.Named("onboarding"),
		Metrics:        m,
	})

	srv := server.New(cfg, server.Deps{
		Tokens:       tokens,
		Verification: verifier,
		Onboarding:   onboarder,
		Accounts:     account.New(store, tokens),
		Gate:         middleware.NewGate(store, clk, zl.Named("gate"), m),
		Stores:       store,
		Metrics:      m,
		Health:       health,
		Log:          zl.Named("http"),
	})

	go func() {
		zl.Info("storefront backend listening", zap.String("addr", cfg.HTTPAddress()))
		if err := srv.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			zl.Fatal("http server error", zap.Error(err))
		}
	}()

	<-ctx.Done()

	ctxShutdown, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()

	if err := srv.Shutdown(ctxShutdown); err != nil {
		zl.Warn("graceful shutdown error", zap.Error(err))
	}
}

func openStorage(ctx context.Context, cfg config.Config, clk clock.Clock) (storage.Store, error) {
	if cfg.StorageDriver == config.StorageMemory {
		return memory.New(memory.WithClock(clk)), nil
	}
	pg, err := postgres.New(ctx, cfg.DatabaseURL)
	if err != nil {
		return nil, err
	}
	return pg, nil
}

// openOTPStore returns the pending-registration store and a cleanup func.
// The in-memory store is swept until ctx ends.
func openOTPStore(ctx context.Context, cfg config.Config, clk clock.Clock, zl *zap.Logger, health map[string]handlers.Pinger) (otp.Store, func(), error) {
	if cfg.OTPBackend == config.OTPBackendRedis {
		client := redis.NewClient(&redis.Options{
			Addr:     cfg.RedisAddr,
			Password: cfg.RedisPassword,
			DB:       cfg.RedisDB,
		})
		if err := client.Ping(ctx).Err(); err != nil {
			_ = client.Close()
			return nil, nil, fmt.Errorf("connect redis at %s: %w", cfg.RedisAddr, err)
		}
		health["redis"] = handlers.PingFunc(func(ctx context.Context) error {
			return client.Ping(ctx).Err()
		})
		return otp.NewRedisStore(client, clk), func() { _ = client.Close() }, nil
	}

	codes := otp.NewMemoryStore(clk)
	go codes.Run(ctx, cfg.OTPSweepInterval(), zl.Named("otp"))
	return codes, func() {}, nil
}

func openPublisher(cfg config.Config, zl *zap.Logger) events.Publisher {
	if cfg.RabbitMQURL == "" {
		return events.LogPublisher{Log: zl.Named("events")}
	}
	p, err := events.NewRabbitPublisher(cfg.RabbitMQURL, zl.Named("events"))
	if err != nil {
		// Onboarding must not depend on the broker being up.
		zl.Warn("rabbitmq unavailable; events will only be logged", zap.Error(err))
		return events.LogPublisher{Log: zl.Named("events")}
	}
	return p
}

func emailSender(cfg config.Config, zl *zap.Logger) delivery.Sender {
	if !cfg.SMTPEnabled() {
		zl.Warn("SMTP_HOST not set; verification emails are logged, not sent")
		return delivery.LogSender{Channel: "email", Log: zl.Named("delivery")}
	}
	return delivery.NewSMTPSender(delivery.SMTPConfig{
		Host:     cfg.SMTPHost,
		Port:     cfg.SMTPPort,
		Username: cfg.SMTPUsername,
		Password: cfg.SMTPPassword,
		From:     cfg.SMTPFrom,
	})
}

func smsSender(cfg config.Config, zl *zap.Logger) delivery.Sender {
	if !cfg.SMSEnabled() {
		zl.Warn("SMS_URL/SMS_API_KEY not set; verification texts are logged, not sent")
		return delivery.LogSender{Channel: "sms", Log: zl.Named("delivery")}
	}
	return delivery.NewSMSGateway(delivery.SMSConfig{
		URL:      cfg.SMSURL,
		APIKey:   cfg.SMSAPIKey,
		Type:     cfg.SMSType,
		SenderID: cfg.SMSSenderID,
	}, &http.Client{Timeout: 10 * time.Second})
}
