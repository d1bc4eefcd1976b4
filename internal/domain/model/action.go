package model

import "time"

// ActionType names an automated platform action subject to quota pacing.
type ActionType string

const (
	ActionLike    ActionType = "like"
	ActionRetweet ActionType = "retweet"
	ActionReply   ActionType = "reply"
	ActionFollow  ActionType = "follow"
	ActionMessage ActionType = "message"
)

// Outcome is the definitive result of a dispatched action attempt.
type Outcome string

const (
	// OutcomeSucceeded means the platform accepted the action.
	OutcomeSucceeded Outcome = "succeeded"
	// OutcomeFailed means the action executed against the platform but failed
	// (transient errors exhausted, timeout, or a non-auth rejection).
	OutcomeFailed Outcome = "failed"
	// OutcomeRateLimited means the platform reported an explicit rate limit.
	OutcomeRateLimited Outcome = "rate_limited"
	// OutcomeAuthFailed means the platform rejected the credential. The
	// request never executed as the account, so it is excluded from quota
	// accounting.
	OutcomeAuthFailed Outcome = "auth_failed"
)

// CountsTowardQuota reports whether a record with this outcome consumes the
// account's rolling-window quota.
func (o Outcome) CountsTowardQuota() bool {
	return o != OutcomeAuthFailed
}

// ActionRecord is one append-only log entry per dispatched attempt. The log
// is the source of truth for quota accounting: rolling-window counts are
// derived by querying it, never cached, so accounting survives restarts.
type ActionRecord struct {
	ID        string
	AccountID string
	Type      ActionType
	Outcome   Outcome
	CreatedAt time.Time
}

// ScheduleStatus is the lifecycle state of a planned warmup action.
type ScheduleStatus string

const (
	SchedulePending ScheduleStatus = "pending"
	ScheduleDone    ScheduleStatus = "done"
	ScheduleFailed  ScheduleStatus = "failed"
	ScheduleSkipped ScheduleStatus = "skipped"
)

// ScheduledAction is a planned warmup activity: one action of the given type
// against TargetID (a tweet, user, or conversation id depending on type),
// due at a randomized time inside the account's daily activity window.
type ScheduledAction struct {
	ID        string
	AccountID string
	Type      ActionType
	TargetID  string
	Body      string // reply or message text, empty for like/retweet/follow
	DueAt     time.Time
	Status    ScheduleStatus
	CreatedAt time.Time
}
