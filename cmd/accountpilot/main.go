package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	_ "golang.org/x/crypto/x509roots/fallback" // Embed CA certs for scratch container

	platformadapter "github.com/ericfisherdev/accountpilot/internal/adapter/driven/platform"
	sqliteadapter "github.com/ericfisherdev/accountpilot/internal/adapter/driven/sqlite"
	"github.com/ericfisherdev/accountpilot/internal/application"
	"github.com/ericfisherdev/accountpilot/internal/config"
	"github.com/ericfisherdev/accountpilot/internal/oauth1"
	"github.com/ericfisherdev/accountpilot/internal/vault"
)

func main() {
	if err := run(); err != nil {
		slog.Error("fatal error", "error", err)
		os.Exit(1)
	}
}

func run() error {
	// 1. Load configuration (fail fast on missing required env vars).
	cfg, err := config.Load()
	if err != nil {
		return err
	}
	slog.Info("config loaded",
		"db_path", cfg.DBPath,
		"platform_base_url", cfg.PlatformBaseURL,
		"warmup_days", cfg.WarmupDays,
		"executor_interval", cfg.ExecutorInterval,
		"vault_key_epoch", cfg.VaultKeyEpoch,
	)

	// 2. Setup signal-based context (SIGINT, SIGTERM).
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// 3. Assemble the keyring: current key plus retired decrypt-only keys.
	keyring, err := buildKeyring(cfg)
	if err != nil {
		return err
	}
	slog.Info("vault keyring ready", "current_epoch", keyring.CurrentEpoch(), "epochs", keyring.Epochs())

	// 4. Open database (dual reader/writer with WAL mode).
	db, err := sqliteadapter.NewDB(cfg.DBPath)
	if err != nil {
		return err
	}
	defer func() {
		if closeErr := db.Close(); closeErr != nil {
			slog.Error("error closing database", "error", closeErr)
		}
	}()
	slog.Info("database opened", "path", cfg.DBPath)

	// 5. Run migrations on writer connection.
	if err := sqliteadapter.RunMigrations(db.Writer); err != nil {
		return err
	}
	slog.Info("migrations complete")

	// 6. Wire adapters.
	accountStore := sqliteadapter.NewAccountRepo(db)
	actionLog := sqliteadapter.NewActionRepo(db)
	scheduleStore := sqliteadapter.NewScheduleRepo(db)

	platformClient := platformadapter.NewClient(
		oauth1.Consumer{Key: cfg.ConsumerKey, Secret: cfg.ConsumerSecret},
		cfg.RequestTimeout,
		cfg.MaxRetries,
	)

	// 7. Wire services.
	throttler := application.NewThrottler(actionLog, cfg.BaseLimits, cfg.WarmupDays, cfg.MinDelay, cfg.MaxDelay)
	actionSvc := application.NewActionService(accountStore, platformClient, keyring, throttler, cfg.MaxConcurrency)
	warmupSvc := application.NewWarmupService(
		accountStore, scheduleStore, actionLog, actionSvc, throttler,
		cfg.PlatformBaseURL, cfg.ExecutorInterval, cfg.ExecutorBatch, cfg.LogRetention,
	)

	// 8. Run the warmup executor until shutdown.
	warmupSvc.Start(ctx)
	slog.Info("shutting down")
	return nil
}

// buildKeyring parses the configured vault keys into a keyring. Key material
// itself is never logged.
func buildKeyring(cfg *config.Config) (*vault.Keyring, error) {
	key, err := vault.ParseKey(cfg.VaultKey)
	if err != nil {
		return nil, fmt.Errorf("APILOT_VAULT_KEY: %w", err)
	}
	keyring, err := vault.NewKeyring(cfg.VaultKeyEpoch, key)
	if err != nil {
		return nil, err
	}
	for _, retired := range cfg.RetiredKeys {
		rk, err := vault.ParseKey(retired.Key)
		if err != nil {
			return nil, fmt.Errorf("retired key epoch %d: %w", retired.Epoch, err)
		}
		if err := keyring.AddRetired(retired.Epoch, rk); err != nil {
			return nil, err
		}
	}
	return keyring, nil
}
