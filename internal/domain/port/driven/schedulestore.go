package driven

import (
	"context"
	"time"

	"github.com/ericfisherdev/accountpilot/internal/domain/model"
)

// ScheduleStore is the driven port for planned warmup actions. It is a fixed
// warmup plan rather than a general job queue: rows are written once by the
// planner and transition through pending -> done/failed/skipped.
type ScheduleStore interface {
	// Schedule inserts the planned actions.
	Schedule(ctx context.Context, actions []model.ScheduledAction) error

	// Due returns up to limit pending actions with DueAt <= now, oldest first.
	Due(ctx context.Context, now time.Time, limit int) ([]model.ScheduledAction, error)

	// SetStatus transitions one scheduled action to the given status.
	SetStatus(ctx context.Context, id string, status model.ScheduleStatus) error

	// PendingCount returns the number of pending actions for an account,
	// used to avoid planning a warmup twice.
	PendingCount(ctx context.Context, accountID string) (int, error)
}
