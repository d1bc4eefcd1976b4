// Package driven defines the port interfaces implemented by adapter packages,
// plus the sentinel errors shared across the dispatch pipeline.
package driven

import (
	"context"
	"errors"
	"time"

	"github.com/ericfisherdev/accountpilot/internal/domain/model"
)

// ErrAccountNotFound is returned when the referenced account does not exist.
var ErrAccountNotFound = errors.New("account not found")

// AccountStore is the driven port for account persistence. The host
// application owns account creation; this module updates only the credential,
// warmup, and proxy fields.
type AccountStore interface {
	// Get retrieves an account with its current credential envelope, if any.
	// Returns ErrAccountNotFound when no such account exists.
	Get(ctx context.Context, id string) (*model.Account, error)

	// Put inserts or replaces an account row.
	Put(ctx context.Context, account model.Account) error

	// SaveCredential stores or rotates the account's credential envelope.
	// Only ciphertext and unencrypted metadata cross this boundary.
	SaveCredential(ctx context.Context, accountID string, cred model.Credential) error

	// ClearCredential removes the account's credential (revoke).
	ClearCredential(ctx context.Context, accountID string) error

	// SetWarmupStart records when the account's warmup ramp began.
	SetWarmupStart(ctx context.Context, accountID string, start time.Time) error
}
