package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/ericfisherdev/accountpilot/internal/domain/model"
	"github.com/ericfisherdev/accountpilot/internal/domain/port/driven"
)

// Compile-time interface satisfaction check.
var _ driven.AccountStore = (*AccountRepo)(nil)

// AccountRepo is the SQLite implementation of the AccountStore port. The
// credential envelope is stored as opaque columns (epoch, nonce, ciphertext,
// tag); plaintext never reaches this layer. The expiry stamp sits alongside
// the ciphertext, unencrypted, so validity checks need no decrypt.
type AccountRepo struct {
	db *DB
}

// NewAccountRepo creates a new AccountRepo backed by the given DB.
func NewAccountRepo(db *DB) *AccountRepo {
	return &AccountRepo{db: db}
}

// Put inserts or updates an account row. Updates keep the row in place: a
// REPLACE would delete and re-insert, and the ON DELETE CASCADE on the child
// tables would take the account's action log and warmup schedule with it.
func (r *AccountRepo) Put(ctx context.Context, account model.Account) error {
	const query = `
		INSERT INTO accounts
			(id, handle, warmup_started_at, proxy_url,
			 credential_kind, key_epoch, nonce, ciphertext, auth_tag,
			 credential_expires_at, credential_created_at, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			handle = excluded.handle,
			warmup_started_at = excluded.warmup_started_at,
			proxy_url = excluded.proxy_url,
			credential_kind = excluded.credential_kind,
			key_epoch = excluded.key_epoch,
			nonce = excluded.nonce,
			ciphertext = excluded.ciphertext,
			auth_tag = excluded.auth_tag,
			credential_expires_at = excluded.credential_expires_at,
			credential_created_at = excluded.credential_created_at,
			created_at = excluded.created_at`

	createdAt := account.CreatedAt
	if createdAt.IsZero() {
		createdAt = time.Now().UTC()
	}

	var kind, credExpires, credCreated sql.NullString
	var epoch sql.NullInt64
	var nonce, ciphertext, tag []byte
	if cred := account.Credential; cred != nil {
		kind = sql.NullString{String: string(cred.Kind), Valid: true}
		epoch = sql.NullInt64{Int64: int64(cred.Envelope.KeyEpoch), Valid: true}
		nonce = cred.Envelope.Nonce
		ciphertext = cred.Envelope.Ciphertext
		tag = cred.Envelope.Tag
		credExpires = formatNullableTime(cred.ExpiresAt)
		credCreated = formatNullableTime(cred.CreatedAt)
	}

	_, err := r.db.Writer.ExecContext(ctx, query,
		account.ID, account.Handle,
		formatNullableTime(account.WarmupStartedAt), account.Proxy.URL,
		kind, epoch, nonce, ciphertext, tag,
		credExpires, credCreated, formatTime(createdAt),
	)
	if err != nil {
		return fmt.Errorf("put account %s: %w", account.ID, err)
	}
	return nil
}

// Get retrieves an account with its credential envelope, if one is stored.
func (r *AccountRepo) Get(ctx context.Context, id string) (*model.Account, error) {
	const query = `
		SELECT id, handle, warmup_started_at, proxy_url,
		       credential_kind, key_epoch, nonce, ciphertext, auth_tag,
		       credential_expires_at, credential_created_at, created_at
		FROM accounts WHERE id = ?`

	account, err := scanAccount(r.db.Reader.QueryRowContext(ctx, query, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("get account %s: %w", id, driven.ErrAccountNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("get account %s: %w", id, err)
	}
	return account, nil
}

// SaveCredential stores or rotates the account's credential envelope.
func (r *AccountRepo) SaveCredential(ctx context.Context, accountID string, cred model.Credential) error {
	const query = `
		UPDATE accounts SET
			credential_kind = ?, key_epoch = ?, nonce = ?, ciphertext = ?, auth_tag = ?,
			credential_expires_at = ?, credential_created_at = ?
		WHERE id = ?`

	createdAt := cred.CreatedAt
	if createdAt.IsZero() {
		createdAt = time.Now().UTC()
	}

	result, err := r.db.Writer.ExecContext(ctx, query,
		string(cred.Kind), cred.Envelope.KeyEpoch,
		cred.Envelope.Nonce, cred.Envelope.Ciphertext, cred.Envelope.Tag,
		formatNullableTime(cred.ExpiresAt), formatTime(createdAt),
		accountID,
	)
	if err != nil {
		return fmt.Errorf("save credential for %s: %w", accountID, err)
	}
	return requireRow(result, accountID)
}

// ClearCredential removes the account's credential (revoke).
func (r *AccountRepo) ClearCredential(ctx context.Context, accountID string) error {
	const query = `
		UPDATE accounts SET
			credential_kind = NULL, key_epoch = NULL, nonce = NULL,
			ciphertext = NULL, auth_tag = NULL,
			credential_expires_at = NULL, credential_created_at = NULL
		WHERE id = ?`

	result, err := r.db.Writer.ExecContext(ctx, query, accountID)
	if err != nil {
		return fmt.Errorf("clear credential for %s: %w", accountID, err)
	}
	return requireRow(result, accountID)
}

// SetWarmupStart records when the account's warmup ramp began.
func (r *AccountRepo) SetWarmupStart(ctx context.Context, accountID string, start time.Time) error {
	const query = `UPDATE accounts SET warmup_started_at = ? WHERE id = ?`

	result, err := r.db.Writer.ExecContext(ctx, query, formatNullableTime(start), accountID)
	if err != nil {
		return fmt.Errorf("set warmup start for %s: %w", accountID, err)
	}
	return requireRow(result, accountID)
}

func requireRow(result sql.Result, accountID string) error {
	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("check rows affected: %w", err)
	}
	if rows == 0 {
		return fmt.Errorf("account %s: %w", accountID, driven.ErrAccountNotFound)
	}
	return nil
}

// scanner is satisfied by both *sql.Row and *sql.Rows.
type scanner interface {
	Scan(dest ...any) error
}

func scanAccount(s scanner) (*model.Account, error) {
	var account model.Account
	var warmupStart, kind, credExpires, credCreated sql.NullString
	var epoch sql.NullInt64
	var nonce, ciphertext, tag []byte
	var createdAt string

	err := s.Scan(&account.ID, &account.Handle, &warmupStart, &account.Proxy.URL,
		&kind, &epoch, &nonce, &ciphertext, &tag,
		&credExpires, &credCreated, &createdAt)
	if err != nil {
		return nil, err
	}

	account.CreatedAt, err = parseTime(createdAt)
	if err != nil {
		return nil, fmt.Errorf("parse created_at: %w", err)
	}
	account.WarmupStartedAt, err = parseNullableTime(warmupStart)
	if err != nil {
		return nil, fmt.Errorf("parse warmup_started_at: %w", err)
	}

	if kind.Valid {
		cred := model.Credential{
			AccountID: account.ID,
			Kind:      model.CredentialKind(kind.String),
			Envelope: model.Envelope{
				KeyEpoch:   int(epoch.Int64),
				Nonce:      nonce,
				Ciphertext: ciphertext,
				Tag:        tag,
			},
		}
		cred.ExpiresAt, err = parseNullableTime(credExpires)
		if err != nil {
			return nil, fmt.Errorf("parse credential_expires_at: %w", err)
		}
		cred.CreatedAt, err = parseNullableTime(credCreated)
		if err != nil {
			return nil, fmt.Errorf("parse credential_created_at: %w", err)
		}
		account.Credential = &cred
	}

	return &account, nil
}

func formatTime(t time.Time) string {
	return t.UTC().Format(time.RFC3339Nano)
}

// formatNullableTime maps the zero time to NULL so "no warmup" and "no
// expiry" survive a round trip.
func formatNullableTime(t time.Time) sql.NullString {
	if t.IsZero() {
		return sql.NullString{}
	}
	return sql.NullString{String: formatTime(t), Valid: true}
}

func parseNullableTime(s sql.NullString) (time.Time, error) {
	if !s.Valid || s.String == "" {
		return time.Time{}, nil
	}
	return parseTime(s.String)
}

// parseTime tries multiple SQLite datetime formats.
func parseTime(s string) (time.Time, error) {
	formats := []string{
		time.RFC3339Nano,
		time.RFC3339,
		"2006-01-02T15:04:05Z",
		"2006-01-02 15:04:05",
		"2006-01-02T15:04:05",
		"2006-01-02 15:04:05.000",
	}

	for _, format := range formats {
		if t, err := time.Parse(format, s); err == nil {
			return t, nil
		}
	}

	return time.Time{}, fmt.Errorf("unrecognized time format: %s", s)
}
