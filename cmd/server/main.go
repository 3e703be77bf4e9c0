package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/sirupsen/logrus"

	"specsbiz/backend/internal/cache"
	"specsbiz/backend/internal/config"
	"specsbiz/backend/internal/domain"
	"specsbiz/backend/internal/events"
	"specsbiz/backend/internal/httpapi"
	"specsbiz/backend/internal/insight"
	"specsbiz/backend/internal/ledger"
	"specsbiz/backend/internal/logging"
	"specsbiz/backend/internal/service"
	"specsbiz/backend/internal/store/backend"
)

func main() {
	cfg := config.Load()
	logger := logging.Configure(logrus.StandardLogger(), cfg.LogLevel, cfg.LogFormat)
	if err := validateSecurityConfig(cfg); err != nil {
		logger.Fatalf("invalid security configuration: %v", err)
	}
	domain.SetPhoneRegion(cfg.PhoneRegion)
	loc, err := ledger.LoadLocation(cfg.ShopTimezone)
	if err != nil {
		logger.Fatalf("invalid SHOP_TIMEZONE: %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	closers := make([]func() error, 0, 3)

	db, err := backend.Open(ctx, cfg)
	if err != nil {
		logger.Fatalf("store unavailable: %v", err)
	}
	closers = append(closers, db.Close)
	logger.WithField("mode", db.Mode).Info("repository ready")

	healthCache := cache.HealthCache(cache.NoopHealthCache{})
	httpOpts := httpapi.Options{AllowedOrigin: cfg.AllowedOrigin, Logger: logger}
	var publisher events.Publisher = events.Noop{}

	if cfg.RedisAddr != "" {
		client := cache.NewRedisClient(cfg.RedisAddr, cfg.RedisPassword, cfg.RedisDB)
		redisCache := cache.NewRedisHealthCache(client)
		if err := redisCache.Ping(ctx); err != nil {
			logger.WithError(err).Warn("redis unavailable, using noop cache and local attempt counters")
			_ = client.Close()
		} else {
			healthCache = redisCache
			httpOpts.LoginAttempts = cache.NewRedisAttempts(client, "login", 5, time.Minute)
			httpOpts.PINAttempts = cache.NewRedisAttempts(client, "pin", 8, time.Minute)
			httpOpts.ShopAttempts = cache.NewRedisAttempts(client, "shop", 5, time.Minute)
			publisher = events.NewRedisPublisher(client, "specsbiz:changes")
			closers = append(closers, client.Close)
			logger.Info("cache: redis")
		}
	}

	if cfg.PubSubTopic != "" {
		pubsubPublisher, err := events.NewPubSubPublisher(context.Background(), cfg.PubSubProjectID, cfg.PubSubTopic, cfg.PubSubCredentialsJSON)
		if err != nil {
			logger.WithError(err).Warn("pubsub unavailable, keeping previous change feed")
		} else {
			publisher = pubsubPublisher
			closers = append(closers, pubsubPublisher.Close)
			logger.WithField("topic", cfg.PubSubTopic).Info("change feed: pubsub")
		}
	}

	engine := insight.NewEngine(healthCache, time.Duration(cfg.InsightTTLSeconds)*time.Second, logger)
	auth := httpapi.NewAuthManager(cfg.AuthSecret, time.Duration(cfg.AccessTokenTTLMinutes)*time.Minute, cfg.ManagerPIN, db.Repo, logger)
	svc := service.New(db.Repo, service.Options{
		Events:       publisher,
		Insight:      engine,
		PIN:          auth,
		Location:     loc,
		Logger:       logger,
		AsyncWorkers: cfg.AsyncWorkers,
	})
	api := httpapi.New(svc, auth, httpOpts)

	server := &http.Server{
		Addr:              cfg.Address(),
		Handler:           api.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       10 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	go func() {
		logger.Infof("SpecsBiz backend listening on %s", cfg.Address())
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatalf("server error: %v", err)
		}
	}()

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
	<-sig

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 8*time.Second)
	defer shutdownCancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.WithError(err).Warn("shutdown error")
	}

	// Queued writes finish before the store and change feed close.
	svc.Close()
	for i := len(closers) - 1; i >= 0; i-- {
		if err := closers[i](); err != nil {
			logger.WithError(err).Warn("close error")
		}
	}

	logger.Info("server stopped")
}

func validateSecurityConfig(cfg config.Config) error {
	if len(cfg.AuthSecret) < 32 {
		return fmt.Errorf("AUTH_SECRET must be set and at least 32 characters")
	}
	if len(cfg.ManagerPIN) < 6 {
		return fmt.Errorf("MANAGER_PIN must be set and at least 6 digits")
	}
	if err := validatePINStrength(cfg.ManagerPIN); err != nil {
		return fmt.Errorf("MANAGER_PIN is too weak: %w", err)
	}
	return nil
}

// validatePINStrength rejects PINs that are all the same digit,
// sequential (ascending or descending), or from a known-weak list.
func validatePINStrength(pin string) error {
	for _, r := range pin {
		if r < '0' || r > '9' {
			return fmt.Errorf("PIN must contain digits only")
		}
	}

	known := map[string]bool{
		"123456": true, "654321": true, "000000": true, "111111": true,
		"121212": true, "112233": true, "123123": true, "159753": true,
	}
	if known[pin] {
		return fmt.Errorf("common PIN not allowed")
	}

	allSame := true
	for i := 1; i < len(pin); i++ {
		if pin[i] != pin[0] {
			allSame = false
			break
		}
	}
	if allSame {
		return fmt.Errorf("all-same-digit PIN not allowed")
	}

	ascending, descending := true, true
	for i := 1; i < len(pin); i++ {
		diff := int(pin[i]) - int(pin[i-1])
		if diff != 1 {
			ascending = false
		}
		if diff != -1 {
			descending = false
		}
	}
	if ascending || descending {
		return fmt.Errorf("sequential PIN not allowed")
	}

	return nil
}
