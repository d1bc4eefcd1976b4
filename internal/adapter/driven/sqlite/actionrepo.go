package sqlite

import (
	"context"
	"fmt"
	"time"

	"github.com/ericfisherdev/accountpilot/internal/domain/model"
	"github.com/ericfisherdev/accountpilot/internal/domain/port/driven"
)

// Compile-time interface satisfaction check.
var _ driven.ActionLog = (*ActionRepo)(nil)

// ActionRepo is the SQLite implementation of the ActionLog port. The table is
// append-only; quota counts are always derived from it by query so accounting
// needs no reconciliation after a restart.
type ActionRepo struct {
	db *DB
}

// NewActionRepo creates a new ActionRepo backed by the given DB.
func NewActionRepo(db *DB) *ActionRepo {
	return &ActionRepo{db: db}
}

// Append writes one record for a definitive attempt outcome.
func (r *ActionRepo) Append(ctx context.Context, rec model.ActionRecord) error {
	const query = `
		INSERT INTO action_records (id, account_id, action_type, outcome, created_at)
		VALUES (?, ?, ?, ?, ?)`

	createdAt := rec.CreatedAt
	if createdAt.IsZero() {
		createdAt = time.Now().UTC()
	}

	_, err := r.db.Writer.ExecContext(ctx, query,
		rec.ID, rec.AccountID, string(rec.Type), string(rec.Outcome), formatTime(createdAt))
	if err != nil {
		return fmt.Errorf("append action record %s: %w", rec.ID, err)
	}
	return nil
}

// CountSince counts quota-countable records for the account and action type
// inside the rolling window. Auth failures never executed against the
// platform, so they are excluded.
func (r *ActionRepo) CountSince(ctx context.Context, accountID string, action model.ActionType, since time.Time) (int, error) {
	const query = `
		SELECT COUNT(*) FROM action_records
		WHERE account_id = ? AND action_type = ? AND created_at >= ?
		  AND outcome != ?`

	var count int
	err := r.db.Reader.QueryRowContext(ctx, query,
		accountID, string(action), formatTime(since), string(model.OutcomeAuthFailed)).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("count actions for %s/%s: %w", accountID, action, err)
	}
	return count, nil
}

// Recent returns the newest records for an account, newest first. Used for
// inspection and tests, not for quota math.
func (r *ActionRepo) Recent(ctx context.Context, accountID string, limit int) ([]model.ActionRecord, error) {
	const query = `
		SELECT id, account_id, action_type, outcome, created_at
		FROM action_records WHERE account_id = ?
		ORDER BY created_at DESC LIMIT ?`

	rows, err := r.db.Reader.QueryContext(ctx, query, accountID, limit)
	if err != nil {
		return nil, fmt.Errorf("list actions for %s: %w", accountID, err)
	}
	defer rows.Close()

	var records []model.ActionRecord
	for rows.Next() {
		var rec model.ActionRecord
		var actionType, outcome, createdAt string
		if err := rows.Scan(&rec.ID, &rec.AccountID, &actionType, &outcome, &createdAt); err != nil {
			return nil, fmt.Errorf("scan action record: %w", err)
		}
		rec.Type = model.ActionType(actionType)
		rec.Outcome = model.Outcome(outcome)
		rec.CreatedAt, err = parseTime(createdAt)
		if err != nil {
			return nil, fmt.Errorf("parse created_at: %w", err)
		}
		records = append(records, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate action records: %w", err)
	}
	return records, nil
}

// Prune deletes records older than the cutoff and reports how many went.
func (r *ActionRepo) Prune(ctx context.Context, olderThan time.Time) (int64, error) {
	const query = `DELETE FROM action_records WHERE created_at < ?`

	result, err := r.db.Writer.ExecContext(ctx, query, formatTime(olderThan))
	if err != nil {
		return 0, fmt.Errorf("prune action records: %w", err)
	}
	removed, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("check rows affected: %w", err)
	}
	return removed, nil
}
