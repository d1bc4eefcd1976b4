package sqlite

import (
	"context"
	"fmt"
	"time"

	"github.com/ericfisherdev/accountpilot/internal/domain/model"
	"github.com/ericfisherdev/accountpilot/internal/domain/port/driven"
)

// Compile-time interface satisfaction check.
var _ driven.ScheduleStore = (*ScheduleRepo)(nil)

// ScheduleRepo is the SQLite implementation of the ScheduleStore port.
type ScheduleRepo struct {
	db *DB
}

// NewScheduleRepo creates a new ScheduleRepo backed by the given DB.
func NewScheduleRepo(db *DB) *ScheduleRepo {
	return &ScheduleRepo{db: db}
}

// Schedule inserts the planned actions in one transaction.
func (r *ScheduleRepo) Schedule(ctx context.Context, actions []model.ScheduledAction) error {
	if len(actions) == 0 {
		return nil
	}

	tx, err := r.db.Writer.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin schedule tx: %w", err)
	}
	defer tx.Rollback()

	const query = `
		INSERT INTO scheduled_actions
			(id, account_id, action_type, target_id, body, due_at, status, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`

	for _, a := range actions {
		status := a.Status
		if status == "" {
			status = model.SchedulePending
		}
		createdAt := a.CreatedAt
		if createdAt.IsZero() {
			createdAt = time.Now().UTC()
		}
		if _, err := tx.ExecContext(ctx, query,
			a.ID, a.AccountID, string(a.Type), a.TargetID, a.Body,
			formatTime(a.DueAt), string(status), formatTime(createdAt)); err != nil {
			return fmt.Errorf("insert scheduled action %s: %w", a.ID, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit schedule tx: %w", err)
	}
	return nil
}

// Due returns up to limit pending actions due at or before now, oldest first.
func (r *ScheduleRepo) Due(ctx context.Context, now time.Time, limit int) ([]model.ScheduledAction, error) {
	const query = `
		SELECT id, account_id, action_type, target_id, body, due_at, status, created_at
		FROM scheduled_actions
		WHERE status = ? AND due_at <= ?
		ORDER BY due_at ASC LIMIT ?`

	rows, err := r.db.Reader.QueryContext(ctx, query,
		string(model.SchedulePending), formatTime(now), limit)
	if err != nil {
		return nil, fmt.Errorf("query due actions: %w", err)
	}
	defer rows.Close()

	var actions []model.ScheduledAction
	for rows.Next() {
		var a model.ScheduledAction
		var actionType, status, dueAt, createdAt string
		if err := rows.Scan(&a.ID, &a.AccountID, &actionType, &a.TargetID, &a.Body,
			&dueAt, &status, &createdAt); err != nil {
			return nil, fmt.Errorf("scan scheduled action: %w", err)
		}
		a.Type = model.ActionType(actionType)
		a.Status = model.ScheduleStatus(status)
		a.DueAt, err = parseTime(dueAt)
		if err != nil {
			return nil, fmt.Errorf("parse due_at: %w", err)
		}
		a.CreatedAt, err = parseTime(createdAt)
		if err != nil {
			return nil, fmt.Errorf("parse created_at: %w", err)
		}
		actions = append(actions, a)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate scheduled actions: %w", err)
	}
	return actions, nil
}

// SetStatus transitions one scheduled action.
func (r *ScheduleRepo) SetStatus(ctx context.Context, id string, status model.ScheduleStatus) error {
	const query = `UPDATE scheduled_actions SET status = ? WHERE id = ?`

	result, err := r.db.Writer.ExecContext(ctx, query, string(status), id)
	if err != nil {
		return fmt.Errorf("set status for scheduled action %s: %w", id, err)
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("check rows affected: %w", err)
	}
	if rows == 0 {
		return fmt.Errorf("scheduled action %s not found", id)
	}
	return nil
}

// PendingCount returns the number of pending actions for an account.
func (r *ScheduleRepo) PendingCount(ctx context.Context, accountID string) (int, error) {
	const query = `SELECT COUNT(*) FROM scheduled_actions WHERE account_id = ? AND status = ?`

	var count int
	err := r.db.Reader.QueryRowContext(ctx, query, accountID, string(model.SchedulePending)).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("count pending actions for %s: %w", accountID, err)
	}
	return count, nil
}
