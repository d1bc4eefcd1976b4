package application

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"golang.org/x/sync/semaphore"

	"github.com/ericfisherdev/accountpilot/internal/domain/model"
	"github.com/ericfisherdev/accountpilot/internal/domain/port/driven"
	"github.com/ericfisherdev/accountpilot/internal/vault"
)

// ActionService orchestrates one outbound platform action end to end:
// credential resolution and decryption, quota gating, pacing delay, signed
// dispatch through the account's proxy, and outcome recording.
//
// Actions for the same account are strictly serialized because the remote
// session carries server-side sequential state that overlapping requests
// would corrupt. Actions across accounts run in parallel, bounded by a global
// egress cap that is independent of per-account quotas.
type ActionService struct {
	accounts  driven.AccountStore
	platform  driven.PlatformClient
	keyring   *vault.Keyring
	throttler *Throttler
	locks     *keyedMutex
	egress    *semaphore.Weighted
}

// NewActionService creates an ActionService. maxConcurrency bounds the total
// number of in-flight dispatches across all accounts.
func NewActionService(
	accounts driven.AccountStore,
	platform driven.PlatformClient,
	keyring *vault.Keyring,
	throttler *Throttler,
	maxConcurrency int64,
) *ActionService {
	return &ActionService{
		accounts:  accounts,
		platform:  platform,
		keyring:   keyring,
		throttler: throttler,
		locks:     newKeyedMutex(),
		egress:    semaphore.NewWeighted(maxConcurrency),
	}
}

// Execute performs one action for an account. No ActionRecord is written if
// the task is cancelled or rejected before dispatch; once dispatched, exactly
// one record is written for the definitive outcome.
func (s *ActionService) Execute(ctx context.Context, accountID string, spec model.RequestSpec) (*model.PlatformResponse, error) {
	release, err := s.locks.Acquire(ctx, accountID)
	if err != nil {
		return nil, err
	}
	defer release()

	if err := s.egress.Acquire(ctx, 1); err != nil {
		return nil, err
	}
	defer s.egress.Release(1)

	account, err := s.accounts.Get(ctx, accountID)
	if err != nil {
		return nil, err
	}
	cred := account.Credential
	if cred == nil {
		return nil, fmt.Errorf("account %s has no credential: %w", accountID, driven.ErrPermanentAuth)
	}
	if !vault.IsValid(*cred, time.Now().UTC()) {
		return nil, fmt.Errorf("account %s: %w", accountID, driven.ErrCredentialExpired)
	}

	ok, err := s.throttler.CanPerform(ctx, account, spec.Action)
	if err != nil {
		// Fail closed: quota state unknown means deny.
		return nil, fmt.Errorf("%w: %v", driven.ErrQuotaExceeded, err)
	}
	if !ok {
		return nil, fmt.Errorf("account %s %s quota: %w", accountID, spec.Action, driven.ErrQuotaExceeded)
	}

	delay := s.throttler.NextDelay(accountID)
	timer := time.NewTimer(delay)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		// Cancelled before dispatch: no record is written.
		return nil, ctx.Err()
	case <-timer.C:
	}

	plaintext, err := s.keyring.Decrypt(cred.Envelope)
	if err != nil {
		return nil, fmt.Errorf("account %s credential: %w", accountID, err)
	}
	secret, err := model.DecodeSecret(cred.Kind, plaintext)
	if err != nil {
		return nil, fmt.Errorf("account %s credential: %w", accountID, err)
	}

	resp, dispatchErr := s.platform.Do(ctx, spec, secret, account.Proxy)

	outcome, record := classifyOutcome(dispatchErr)
	if record {
		if recErr := s.throttler.RecordAttempt(ctx, accountID, spec.Action, outcome); recErr != nil {
			slog.Error("failed to record action attempt",
				"account_id", accountID, "action", spec.Action, "outcome", outcome, "error", recErr)
		}
	}

	if dispatchErr != nil {
		return resp, dispatchErr
	}
	return resp, nil
}

// classifyOutcome maps a dispatch error to a log outcome and reports whether
// a record should be written. Proxy failures happen before anything reaches
// the platform, so they leave no record.
func classifyOutcome(err error) (model.Outcome, bool) {
	switch {
	case err == nil:
		return model.OutcomeSucceeded, true
	case errors.Is(err, driven.ErrProxyUnavailable):
		return "", false
	case errors.Is(err, driven.ErrRateLimited):
		return model.OutcomeRateLimited, true
	case errors.Is(err, driven.ErrPermanentAuth):
		return model.OutcomeAuthFailed, true
	default:
		// Transient exhaustion, timeout, or a non-auth platform rejection:
		// the request executed, so it consumes quota.
		return model.OutcomeFailed, true
	}
}
