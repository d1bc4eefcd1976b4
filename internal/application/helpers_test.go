package application

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/ericfisherdev/accountpilot/internal/domain/model"
	"github.com/ericfisherdev/accountpilot/internal/domain/port/driven"
)

// memActionLog is an in-memory ActionLog with injectable failures.
type memActionLog struct {
	mu        sync.Mutex
	records   []model.ActionRecord
	countErr  error
	appendErr error
}

func (l *memActionLog) Append(_ context.Context, rec model.ActionRecord) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.appendErr != nil {
		return l.appendErr
	}
	l.records = append(l.records, rec)
	return nil
}

func (l *memActionLog) CountSince(_ context.Context, accountID string, action model.ActionType, since time.Time) (int, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.countErr != nil {
		return 0, l.countErr
	}
	count := 0
	for _, rec := range l.records {
		if rec.AccountID == accountID && rec.Type == action &&
			rec.Outcome.CountsTowardQuota() && !rec.CreatedAt.Before(since) {
			count++
		}
	}
	return count, nil
}

func (l *memActionLog) Prune(_ context.Context, olderThan time.Time) (int64, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	kept := l.records[:0]
	var removed int64
	for _, rec := range l.records {
		if rec.CreatedAt.Before(olderThan) {
			removed++
			continue
		}
		kept = append(kept, rec)
	}
	l.records = kept
	return removed, nil
}

func (l *memActionLog) all() []model.ActionRecord {
	l.mu.Lock()
	defer l.mu.Unlock()
	out := make([]model.ActionRecord, len(l.records))
	copy(out, l.records)
	return out
}

// seed inserts count quota-countable records for the account/action inside
// the quota window.
func (l *memActionLog) seed(accountID string, action model.ActionType, count int, at time.Time) {
	l.mu.Lock()
	defer l.mu.Unlock()
	for i := 0; i < count; i++ {
		l.records = append(l.records, model.ActionRecord{
			ID:        "seed",
			AccountID: accountID,
			Type:      action,
			Outcome:   model.OutcomeSucceeded,
			CreatedAt: at,
		})
	}
}

// memAccountStore is an in-memory AccountStore.
type memAccountStore struct {
	mu       sync.Mutex
	accounts map[string]*model.Account
}

func newMemAccountStore(accounts ...*model.Account) *memAccountStore {
	s := &memAccountStore{accounts: make(map[string]*model.Account)}
	for _, a := range accounts {
		copied := *a
		s.accounts[a.ID] = &copied
	}
	return s
}

func (s *memAccountStore) Get(_ context.Context, id string) (*model.Account, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	a, ok := s.accounts[id]
	if !ok {
		return nil, driven.ErrAccountNotFound
	}
	copied := *a
	return &copied, nil
}

func (s *memAccountStore) Put(_ context.Context, account model.Account) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.accounts[account.ID] = &account
	return nil
}

func (s *memAccountStore) SaveCredential(_ context.Context, accountID string, cred model.Credential) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	a, ok := s.accounts[accountID]
	if !ok {
		return driven.ErrAccountNotFound
	}
	a.Credential = &cred
	return nil
}

func (s *memAccountStore) ClearCredential(_ context.Context, accountID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	a, ok := s.accounts[accountID]
	if !ok {
		return driven.ErrAccountNotFound
	}
	a.Credential = nil
	return nil
}

func (s *memAccountStore) SetWarmupStart(_ context.Context, accountID string, start time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	a, ok := s.accounts[accountID]
	if !ok {
		return driven.ErrAccountNotFound
	}
	a.WarmupStartedAt = start
	return nil
}

// fakePlatform is a scriptable PlatformClient that records call order and
// concurrency.
type fakePlatform struct {
	mu       sync.Mutex
	calls    []model.RequestSpec
	inFlight int
	maxSeen  int
	hold     time.Duration
	respond  func(spec model.RequestSpec) (*model.PlatformResponse, error)
}

func (p *fakePlatform) Do(_ context.Context, spec model.RequestSpec, _ model.Secret, _ model.ProxyBinding) (*model.PlatformResponse, error) {
	p.mu.Lock()
	p.calls = append(p.calls, spec)
	p.inFlight++
	if p.inFlight > p.maxSeen {
		p.maxSeen = p.inFlight
	}
	p.mu.Unlock()

	if p.hold > 0 {
		time.Sleep(p.hold)
	}

	p.mu.Lock()
	p.inFlight--
	p.mu.Unlock()

	if p.respond != nil {
		return p.respond(spec)
	}
	return &model.PlatformResponse{StatusCode: 200}, nil
}

func (p *fakePlatform) callCount() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.calls)
}

// memScheduleStore is an in-memory ScheduleStore.
type memScheduleStore struct {
	mu   sync.Mutex
	rows map[string]*model.ScheduledAction
}

func newMemScheduleStore() *memScheduleStore {
	return &memScheduleStore{rows: make(map[string]*model.ScheduledAction)}
}

func (s *memScheduleStore) Schedule(_ context.Context, actions []model.ScheduledAction) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, a := range actions {
		copied := a
		s.rows[a.ID] = &copied
	}
	return nil
}

func (s *memScheduleStore) Due(_ context.Context, now time.Time, limit int) ([]model.ScheduledAction, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var due []model.ScheduledAction
	for _, row := range s.rows {
		if row.Status == model.SchedulePending && !row.DueAt.After(now) {
			due = append(due, *row)
		}
	}
	for i := 0; i < len(due); i++ {
		for j := i + 1; j < len(due); j++ {
			if due[j].DueAt.Before(due[i].DueAt) {
				due[i], due[j] = due[j], due[i]
			}
		}
	}
	if len(due) > limit {
		due = due[:limit]
	}
	return due, nil
}

func (s *memScheduleStore) SetStatus(_ context.Context, id string, status model.ScheduleStatus) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	row, ok := s.rows[id]
	if !ok {
		return errors.New("scheduled action not found")
	}
	row.Status = status
	return nil
}

func (s *memScheduleStore) PendingCount(_ context.Context, accountID string) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	count := 0
	for _, row := range s.rows {
		if row.AccountID == accountID && row.Status == model.SchedulePending {
			count++
		}
	}
	return count, nil
}

func (s *memScheduleStore) statuses(accountID string) map[model.ScheduleStatus]int {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make(map[model.ScheduleStatus]int)
	for _, row := range s.rows {
		if row.AccountID == accountID {
			out[row.Status]++
		}
	}
	return out
}
