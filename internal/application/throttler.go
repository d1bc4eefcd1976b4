// Package application contains the use-case services: quota throttling,
// dispatch orchestration, and the warmup executor.
package application

import (
	"context"
	"fmt"
	"math/rand"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/google/uuid"

	"github.com/ericfisherdev/accountpilot/internal/domain/model"
	"github.com/ericfisherdev/accountpilot/internal/domain/port/driven"
)

// quotaWindow is the rolling window used for quota accounting.
const quotaWindow = 24 * time.Hour

// Throttler decides whether and when an account may perform an action. It
// enforces a linearly ramped daily quota over the account's warmup period and
// applies randomized inter-request pacing so outbound traffic carries no
// fixed-interval signature. Quota counts are always derived from the action
// log, never cached here.
type Throttler struct {
	log        driven.ActionLog
	baseLimits map[model.ActionType]int
	warmupDays int
	minDelay   time.Duration
	maxDelay   time.Duration

	mu        sync.Mutex
	penalties map[string]*accountPenalty
}

// accountPenalty tracks the multiplicative backoff applied to an account's
// next delay after the platform reports a rate limit. It resets on the next
// success. In-memory only: delays are pacing jitter, the durable accounting
// truth stays in the action log.
type accountPenalty struct {
	bo      *backoff.ExponentialBackOff
	current time.Duration
}

// NewThrottler creates a throttler. baseLimits maps each action type to its
// steady-state daily quota; warmupDays is the length of the linear ramp.
func NewThrottler(log driven.ActionLog, baseLimits map[model.ActionType]int, warmupDays int, minDelay, maxDelay time.Duration) *Throttler {
	return &Throttler{
		log:        log,
		baseLimits: baseLimits,
		warmupDays: warmupDays,
		minDelay:   minDelay,
		maxDelay:   maxDelay,
		penalties:  make(map[string]*accountPenalty),
	}
}

// WarmupDay returns the account's zero-based warmup day at the given time,
// capped at warmupDays. An account with no warmup start predates warmup
// tracking and is treated as fully graduated.
func (t *Throttler) WarmupDay(account *model.Account, now time.Time) int {
	if account.WarmupStartedAt.IsZero() {
		return t.warmupDays
	}
	elapsed := now.Sub(account.WarmupStartedAt)
	if elapsed < 0 {
		return 0
	}
	day := int(elapsed / (24 * time.Hour))
	if day > t.warmupDays {
		day = t.warmupDays
	}
	return day
}

// Graduated reports whether the account has completed its warmup ramp.
func (t *Throttler) Graduated(account *model.Account, now time.Time) bool {
	return t.WarmupDay(account, now) >= t.warmupDays
}

// AllowedQuota returns the action quota for the given warmup day:
// floor(base * min(1, (day+1)/warmupDays)). Monotonically non-decreasing in
// day; equals the base limit once day >= warmupDays-1. Unknown action types
// have no quota.
func (t *Throttler) AllowedQuota(action model.ActionType, day int) int {
	base, ok := t.baseLimits[action]
	if !ok {
		return 0
	}
	if t.warmupDays <= 0 {
		return base
	}
	ramp := float64(day+1) / float64(t.warmupDays)
	if ramp > 1 {
		ramp = 1
	}
	return int(float64(base) * ramp)
}

// CanPerform reports whether the account has quota left for the action type
// inside the trailing 24-hour window. It fails closed: a log query error
// denies the action.
func (t *Throttler) CanPerform(ctx context.Context, account *model.Account, action model.ActionType) (bool, error) {
	now := time.Now().UTC()
	quota := t.AllowedQuota(action, t.WarmupDay(account, now))
	if quota <= 0 {
		return false, nil
	}

	count, err := t.log.CountSince(ctx, account.ID, action, now.Add(-quotaWindow))
	if err != nil {
		return false, fmt.Errorf("quota check for %s/%s: %w", account.ID, action, err)
	}
	return count < quota, nil
}

// NextDelay returns the pacing delay to apply before the account's next
// action: a uniform draw in [minDelay, maxDelay] plus any active rate-limit
// penalty. Applied before every action regardless of quota state.
func (t *Throttler) NextDelay(accountID string) time.Duration {
	delay := t.minDelay
	if span := t.maxDelay - t.minDelay; span > 0 {
		delay += time.Duration(rand.Int63n(int64(span) + 1))
	}

	t.mu.Lock()
	if p, ok := t.penalties[accountID]; ok {
		delay += p.current
	}
	t.mu.Unlock()

	return delay
}

// RecordAttempt appends the definitive outcome of a dispatched action to the
// log and updates the account's backoff state: a remote rate limit grows the
// penalty multiplicatively, a success clears it.
func (t *Throttler) RecordAttempt(ctx context.Context, accountID string, action model.ActionType, outcome model.Outcome) error {
	rec := model.ActionRecord{
		ID:        uuid.NewString(),
		AccountID: accountID,
		Type:      action,
		Outcome:   outcome,
		CreatedAt: time.Now().UTC(),
	}
	if err := t.log.Append(ctx, rec); err != nil {
		return fmt.Errorf("record %s attempt for %s: %w", action, accountID, err)
	}

	switch outcome {
	case model.OutcomeRateLimited:
		t.punish(accountID)
	case model.OutcomeSucceeded:
		t.forgive(accountID)
	}
	return nil
}

func (t *Throttler) punish(accountID string) {
	t.mu.Lock()
	defer t.mu.Unlock()

	p, ok := t.penalties[accountID]
	if !ok {
		bo := backoff.NewExponentialBackOff()
		bo.InitialInterval = t.maxDelay
		bo.MaxInterval = 15 * time.Minute
		bo.MaxElapsedTime = 0 // penalties never expire on their own
		p = &accountPenalty{bo: bo}
		t.penalties[accountID] = p
	}
	p.current = p.bo.NextBackOff()
}

func (t *Throttler) forgive(accountID string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	delete(t.penalties, accountID)
}

// Penalty returns the account's current rate-limit penalty, for tests and
// inspection.
func (t *Throttler) Penalty(accountID string) time.Duration {
	t.mu.Lock()
	defer t.mu.Unlock()
	if p, ok := t.penalties[accountID]; ok {
		return p.current
	}
	return 0
}
