package application

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math/rand"
	"net/url"
	"time"

	"github.com/google/uuid"

	"github.com/ericfisherdev/accountpilot/internal/domain/model"
	"github.com/ericfisherdev/accountpilot/internal/domain/port/driven"
)

// Activity window for scheduled warmup actions. Actions are planned at
// random times inside this window so activity looks like a person in a
// single waking day, never at a fixed interval.
const (
	activityWindowStart = 9 * time.Hour
	activityWindowEnd   = 21 * time.Hour
)

// WarmupTarget is one candidate object for a planned action: the id of a
// post, user, or conversation depending on the action type, plus text for
// replies and messages.
type WarmupTarget struct {
	ID   string
	Body string
}

// WarmupService plans per-day warmup activity for new accounts and executes
// due scheduled actions from a background loop.
type WarmupService struct {
	accounts  driven.AccountStore
	schedule  driven.ScheduleStore
	log       driven.ActionLog
	actions   *ActionService
	throttler *Throttler

	baseURL   string
	interval  time.Duration
	batchSize int
	retention time.Duration
}

// NewWarmupService creates a WarmupService. baseURL is the platform API root
// the executor builds request URLs against; retention bounds how long action
// records are kept before pruning.
func NewWarmupService(
	accounts driven.AccountStore,
	schedule driven.ScheduleStore,
	log driven.ActionLog,
	actions *ActionService,
	throttler *Throttler,
	baseURL string,
	interval time.Duration,
	batchSize int,
	retention time.Duration,
) *WarmupService {
	return &WarmupService{
		accounts:  accounts,
		schedule:  schedule,
		log:       log,
		actions:   actions,
		throttler: throttler,
		baseURL:   baseURL,
		interval:  interval,
		batchSize: batchSize,
		retention: retention,
	}
}

// PlanWarmup writes the account's full warmup schedule: for every remaining
// warmup day, each action type gets its ramped daily quota of actions at
// uniformly random times inside the day's activity window. Targets are
// consumed round-robin per action type. Planning is a no-op if the account
// already has pending scheduled actions.
//
// If the account has never started warmup, its warmup start is set to now
// before planning.
func (s *WarmupService) PlanWarmup(ctx context.Context, account *model.Account, targets map[model.ActionType][]WarmupTarget, now time.Time) (int, error) {
	pending, err := s.schedule.PendingCount(ctx, account.ID)
	if err != nil {
		return 0, fmt.Errorf("plan warmup for %s: %w", account.ID, err)
	}
	if pending > 0 {
		return 0, nil
	}

	now = now.UTC()
	if account.WarmupStartedAt.IsZero() {
		if err := s.accounts.SetWarmupStart(ctx, account.ID, now); err != nil {
			return 0, fmt.Errorf("plan warmup for %s: %w", account.ID, err)
		}
		account.WarmupStartedAt = now
	}

	startDay := s.throttler.WarmupDay(account, now)
	dayZero := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, time.UTC).
		AddDate(0, 0, -startDay)

	var planned []model.ScheduledAction
	for day := startDay; day < s.throttler.warmupDays; day++ {
		date := dayZero.AddDate(0, 0, day)
		for action, pool := range targets {
			if len(pool) == 0 {
				continue
			}
			count := s.throttler.AllowedQuota(action, day)
			for i := 0; i < count; i++ {
				target := pool[i%len(pool)]
				planned = append(planned, model.ScheduledAction{
					ID:        uuid.NewString(),
					AccountID: account.ID,
					Type:      action,
					TargetID:  target.ID,
					Body:      target.Body,
					DueAt:     randomSlot(date),
					Status:    model.SchedulePending,
					CreatedAt: now,
				})
			}
		}
	}
	if len(planned) == 0 {
		return 0, nil
	}

	if err := s.schedule.Schedule(ctx, planned); err != nil {
		return 0, fmt.Errorf("plan warmup for %s: %w", account.ID, err)
	}
	slog.Info("warmup planned",
		"account_id", account.ID, "actions", len(planned), "start_day", startDay)
	return len(planned), nil
}

// randomSlot returns a uniformly random instant inside the date's activity
// window.
func randomSlot(date time.Time) time.Time {
	span := activityWindowEnd - activityWindowStart
	offset := activityWindowStart + time.Duration(rand.Int63n(int64(span)))
	return date.Add(offset)
}

// Start runs the executor loop until ctx is cancelled: an immediate pass,
// then one per interval. Each pass executes due scheduled actions in a
// bounded batch and prunes expired action records.
func (s *WarmupService) Start(ctx context.Context) {
	slog.Info("warmup executor started", "interval", s.interval, "batch_size", s.batchSize)

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	s.runOnce(ctx)
	for {
		select {
		case <-ctx.Done():
			slog.Info("warmup executor stopped")
			return
		case <-ticker.C:
			s.runOnce(ctx)
		}
	}
}

func (s *WarmupService) runOnce(ctx context.Context) {
	now := time.Now().UTC()

	due, err := s.schedule.Due(ctx, now, s.batchSize)
	if err != nil {
		slog.Error("failed to fetch due scheduled actions", "error", err)
		return
	}
	for _, sa := range due {
		if ctx.Err() != nil {
			return
		}
		s.executeScheduled(ctx, sa)
	}

	pruned, err := s.log.Prune(ctx, now.Add(-s.retention))
	if err != nil {
		slog.Error("failed to prune action records", "error", err)
	} else if pruned > 0 {
		slog.Info("pruned action records", "removed", pruned)
	}
}

// executeScheduled runs one due action and settles its schedule row. Quota
// denials are skipped (the plan was optimistic, the log is the truth).
// Permanent auth failures and credential expiry settle the row as failed;
// the account needs re-authentication before anything else will work.
// Rate limits, transient exhaustion, and proxy failures leave the row
// pending for the next pass.
func (s *WarmupService) executeScheduled(ctx context.Context, sa model.ScheduledAction) {
	_, err := s.actions.Execute(ctx, sa.AccountID, s.specFor(sa))

	switch {
	case err == nil:
		s.settle(ctx, sa, model.ScheduleDone)
	case errors.Is(err, driven.ErrQuotaExceeded):
		s.settle(ctx, sa, model.ScheduleSkipped)
	case errors.Is(err, driven.ErrPermanentAuth), errors.Is(err, driven.ErrCredentialExpired):
		slog.Warn("scheduled action hit an auth failure, account needs re-authentication",
			"account_id", sa.AccountID, "action", sa.Type, "error", err)
		s.settle(ctx, sa, model.ScheduleFailed)
	case errors.Is(err, driven.ErrRateLimited),
		errors.Is(err, driven.ErrTransient),
		errors.Is(err, driven.ErrProxyUnavailable):
		slog.Warn("scheduled action deferred",
			"account_id", sa.AccountID, "action", sa.Type, "error", err)
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		// Shutdown mid-batch; the row stays pending.
	default:
		slog.Error("scheduled action failed",
			"account_id", sa.AccountID, "action", sa.Type, "error", err)
		s.settle(ctx, sa, model.ScheduleFailed)
	}
}

func (s *WarmupService) settle(ctx context.Context, sa model.ScheduledAction, status model.ScheduleStatus) {
	if err := s.schedule.SetStatus(ctx, sa.ID, status); err != nil {
		slog.Error("failed to update scheduled action status",
			"id", sa.ID, "status", status, "error", err)
	}
}

// specFor maps a scheduled action onto the platform endpoint it exercises.
func (s *WarmupService) specFor(sa model.ScheduledAction) model.RequestSpec {
	switch sa.Type {
	case model.ActionLike:
		return s.post(sa.Type, "/favorites/create.json", map[string]string{"id": sa.TargetID})
	case model.ActionRetweet:
		return s.post(sa.Type, "/statuses/retweet/"+url.PathEscape(sa.TargetID)+".json", nil)
	case model.ActionReply:
		return s.post(sa.Type, "/statuses/update.json", map[string]string{
			"status":                sa.Body,
			"in_reply_to_status_id": sa.TargetID,
		})
	case model.ActionFollow:
		return s.post(sa.Type, "/friendships/create.json", map[string]string{"user_id": sa.TargetID})
	case model.ActionMessage:
		return s.post(sa.Type, "/direct_messages/new.json", map[string]string{
			"user_id": sa.TargetID,
			"text":    sa.Body,
		})
	default:
		return s.post(sa.Type, "/"+string(sa.Type)+".json", map[string]string{"id": sa.TargetID})
	}
}

func (s *WarmupService) post(action model.ActionType, path string, params map[string]string) model.RequestSpec {
	return model.RequestSpec{
		Action: action,
		Method: "POST",
		URL:    s.baseURL + path,
		Params: params,
	}
}
