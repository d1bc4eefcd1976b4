// Package config loads application configuration from environment variables.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/ericfisherdev/accountpilot/internal/domain/model"
)

// RetiredKey is one decrypt-only vault key from a previous rotation.
type RetiredKey struct {
	Epoch int
	Key   string // base64-encoded 32-byte key
}

// Config holds the application configuration loaded from environment variables.
type Config struct {
	DBPath string

	VaultKey      string // base64-encoded 32-byte current key
	VaultKeyEpoch int
	RetiredKeys   []RetiredKey

	ConsumerKey    string
	ConsumerSecret string

	PlatformBaseURL string
	RequestTimeout  time.Duration
	MaxRetries      int
	MaxConcurrency  int64

	BaseLimits map[model.ActionType]int
	WarmupDays int
	MinDelay   time.Duration
	MaxDelay   time.Duration

	ExecutorInterval time.Duration
	ExecutorBatch    int
	LogRetention     time.Duration
}

// Load reads configuration from environment variables and returns a validated
// Config. APILOT_VAULT_KEY (base64, 32 bytes) and APILOT_VAULT_KEY_EPOCH are
// required; everything else has a default. APILOT_VAULT_RETIRED_KEYS lists
// decrypt-only keys from earlier rotations as "epoch:base64,epoch:base64".
// APILOT_QUOTAS overrides the per-action daily limits as "like=50,reply=10".
func Load() (*Config, error) {
	cfg := &Config{
		DBPath:          "accountpilot.db",
		PlatformBaseURL: "https://api.twitter.com/1.1",
		RequestTimeout:  30 * time.Second,
		MaxRetries:      3,
		MaxConcurrency:  16,
		BaseLimits: map[model.ActionType]int{
			model.ActionLike:    50,
			model.ActionRetweet: 20,
			model.ActionReply:   10,
			model.ActionFollow:  20,
			model.ActionMessage: 5,
		},
		WarmupDays:       7,
		MinDelay:         2 * time.Second,
		MaxDelay:         5 * time.Second,
		ExecutorInterval: time.Minute,
		ExecutorBatch:    25,
		LogRetention:     30 * 24 * time.Hour,
	}

	cfg.VaultKey = os.Getenv("APILOT_VAULT_KEY")
	if cfg.VaultKey == "" {
		return nil, fmt.Errorf("APILOT_VAULT_KEY is required")
	}
	epoch, err := intEnv("APILOT_VAULT_KEY_EPOCH", 0)
	if err != nil {
		return nil, err
	}
	if epoch <= 0 {
		return nil, fmt.Errorf("APILOT_VAULT_KEY_EPOCH must be a positive integer")
	}
	cfg.VaultKeyEpoch = epoch

	if v := os.Getenv("APILOT_VAULT_RETIRED_KEYS"); v != "" {
		retired, err := parseRetiredKeys(v)
		if err != nil {
			return nil, fmt.Errorf("APILOT_VAULT_RETIRED_KEYS: %w", err)
		}
		cfg.RetiredKeys = retired
	}

	cfg.ConsumerKey = os.Getenv("APILOT_CONSUMER_KEY")
	cfg.ConsumerSecret = os.Getenv("APILOT_CONSUMER_SECRET")

	if v, ok := os.LookupEnv("APILOT_DB_PATH"); ok {
		cfg.DBPath = v
	}
	if v, ok := os.LookupEnv("APILOT_PLATFORM_BASE_URL"); ok {
		cfg.PlatformBaseURL = strings.TrimRight(v, "/")
	}

	if cfg.RequestTimeout, err = durationEnv("APILOT_REQUEST_TIMEOUT", cfg.RequestTimeout); err != nil {
		return nil, err
	}
	if cfg.MaxRetries, err = intEnv("APILOT_MAX_RETRIES", cfg.MaxRetries); err != nil {
		return nil, err
	}
	concurrency, err := intEnv("APILOT_MAX_CONCURRENCY", int(cfg.MaxConcurrency))
	if err != nil {
		return nil, err
	}
	if concurrency <= 0 {
		return nil, fmt.Errorf("APILOT_MAX_CONCURRENCY must be positive")
	}
	cfg.MaxConcurrency = int64(concurrency)

	if v := os.Getenv("APILOT_QUOTAS"); v != "" {
		limits, err := parseQuotas(v)
		if err != nil {
			return nil, fmt.Errorf("APILOT_QUOTAS: %w", err)
		}
		cfg.BaseLimits = limits
	}
	if cfg.WarmupDays, err = intEnv("APILOT_WARMUP_DAYS", cfg.WarmupDays); err != nil {
		return nil, err
	}
	if cfg.WarmupDays <= 0 {
		return nil, fmt.Errorf("APILOT_WARMUP_DAYS must be positive")
	}

	if cfg.MinDelay, err = durationEnv("APILOT_MIN_DELAY", cfg.MinDelay); err != nil {
		return nil, err
	}
	if cfg.MaxDelay, err = durationEnv("APILOT_MAX_DELAY", cfg.MaxDelay); err != nil {
		return nil, err
	}
	if cfg.MinDelay < 0 || cfg.MaxDelay < cfg.MinDelay {
		return nil, fmt.Errorf("delay bounds invalid: min %s, max %s", cfg.MinDelay, cfg.MaxDelay)
	}

	if cfg.ExecutorInterval, err = durationEnv("APILOT_EXECUTOR_INTERVAL", cfg.ExecutorInterval); err != nil {
		return nil, err
	}
	if cfg.ExecutorBatch, err = intEnv("APILOT_EXECUTOR_BATCH", cfg.ExecutorBatch); err != nil {
		return nil, err
	}
	if cfg.LogRetention, err = durationEnv("APILOT_LOG_RETENTION", cfg.LogRetention); err != nil {
		return nil, err
	}

	return cfg, nil
}

func intEnv(name string, fallback int) (int, error) {
	v, ok := os.LookupEnv(name)
	if !ok || v == "" {
		return fallback, nil
	}
	parsed, err := strconv.Atoi(v)
	if err != nil {
		return 0, fmt.Errorf("%s has invalid integer %q: %w", name, v, err)
	}
	return parsed, nil
}

func durationEnv(name string, fallback time.Duration) (time.Duration, error) {
	v, ok := os.LookupEnv(name)
	if !ok || v == "" {
		return fallback, nil
	}
	parsed, err := time.ParseDuration(v)
	if err != nil {
		return 0, fmt.Errorf("%s has invalid duration %q: %w", name, v, err)
	}
	return parsed, nil
}

// parseRetiredKeys parses "epoch:base64,epoch:base64".
func parseRetiredKeys(v string) ([]RetiredKey, error) {
	var keys []RetiredKey
	for _, entry := range strings.Split(v, ",") {
		entry = strings.TrimSpace(entry)
		if entry == "" {
			continue
		}
		epochStr, key, ok := strings.Cut(entry, ":")
		if !ok {
			return nil, fmt.Errorf("entry %q is not epoch:key", entry)
		}
		epoch, err := strconv.Atoi(epochStr)
		if err != nil {
			return nil, fmt.Errorf("entry %q has invalid epoch: %w", entry, err)
		}
		if key == "" {
			return nil, fmt.Errorf("entry %q has an empty key", entry)
		}
		keys = append(keys, RetiredKey{Epoch: epoch, Key: key})
	}
	return keys, nil
}

// parseQuotas parses "like=50,retweet=20". Unknown action names are rejected
// so a typo cannot silently zero a quota.
func parseQuotas(v string) (map[model.ActionType]int, error) {
	known := map[model.ActionType]bool{
		model.ActionLike:    true,
		model.ActionRetweet: true,
		model.ActionReply:   true,
		model.ActionFollow:  true,
		model.ActionMessage: true,
	}
	limits := make(map[model.ActionType]int)
	for _, entry := range strings.Split(v, ",") {
		entry = strings.TrimSpace(entry)
		if entry == "" {
			continue
		}
		name, countStr, ok := strings.Cut(entry, "=")
		if !ok {
			return nil, fmt.Errorf("entry %q is not action=limit", entry)
		}
		action := model.ActionType(strings.TrimSpace(name))
		if !known[action] {
			return nil, fmt.Errorf("unknown action %q", name)
		}
		count, err := strconv.Atoi(strings.TrimSpace(countStr))
		if err != nil || count < 0 {
			return nil, fmt.Errorf("entry %q has invalid limit", entry)
		}
		limits[action] = count
	}
	if len(limits) == 0 {
		return nil, fmt.Errorf("no quotas given")
	}
	return limits, nil
}
