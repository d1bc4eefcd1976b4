package driven

import (
	"context"
	"time"

	"github.com/ericfisherdev/accountpilot/internal/domain/model"
)

// ActionLog is the driven port for the append-only action record log.
// Rolling-window quota counts are derived from it on every check; nothing is
// cached independently, so accounting is correct across process restarts.
type ActionLog interface {
	// Append writes one record for a definitive attempt outcome.
	Append(ctx context.Context, rec model.ActionRecord) error

	// CountSince returns how many quota-countable records exist for the
	// account and action type with CreatedAt >= since.
	CountSince(ctx context.Context, accountID string, action model.ActionType, since time.Time) (int, error)

	// Prune deletes records older than the cutoff and reports how many were
	// removed. Records inside the quota window are never touched.
	Prune(ctx context.Context, olderThan time.Time) (int64, error)
}
