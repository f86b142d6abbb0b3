package service

import (
	"context"
	"io"
	"log/slog"
	"sync"
	"time"

	"github.com/betpal/betpal/internal/domain"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// fakeBetStore is an in-memory BetStore with the same conditional-update
// semantics as the PostgreSQL implementation.
type fakeBetStore struct {
	mu   sync.Mutex
	bets map[string]domain.Bet
}

func newFakeBetStore() *fakeBetStore {
	return &fakeBetStore{bets: make(map[string]domain.Bet)}
}

func (f *fakeBetStore) Create(_ context.Context, b domain.Bet) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.bets[b.ID] = b
	return nil
}

func (f *fakeBetStore) GetByID(_ context.Context, id string) (domain.Bet, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	b, ok := f.bets[id]
	if !ok {
		return domain.Bet{}, domain.ErrNotFound
	}
	return b, nil
}

func statusIn(s domain.BetStatus, from []domain.BetStatus) bool {
	for _, st := range from {
		if st == s {
			return true
		}
	}
	return false
}

func (f *fakeBetStore) UpdateStatus(_ context.Context, id string, from []domain.BetStatus, to domain.BetStatus) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	b, ok := f.bets[id]
	if !ok {
		return domain.ErrNotFound
	}
	if !statusIn(b.Status, from) {
		return domain.ErrInvalidState
	}
	b.Status = to
	f.bets[id] = b
	return nil
}

func (f *fakeBetStore) Complete(_ context.Context, id string, from []domain.BetStatus, outcome domain.BetOutcome) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	b, ok := f.bets[id]
	if !ok {
		return domain.ErrNotFound
	}
	if !statusIn(b.Status, from) {
		return domain.ErrInvalidState
	}
	b.Status = domain.BetStatusCompleted
	b.Outcome = outcome
	f.bets[id] = b
	return nil
}

func (f *fakeBetStore) UpdateDetail(_ context.Context, b domain.Bet) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	cur, ok := f.bets[b.ID]
	if !ok {
		return domain.ErrNotFound
	}
	cur.Participants = b.Participants
	cur.Evidence = b.Evidence
	cur.Comments = b.Comments
	cur.Votes = b.Votes
	f.bets[b.ID] = cur
	return nil
}

func (f *fakeBetStore) List(_ context.Context, flt domain.BetFilter, _ domain.ListOpts) ([]domain.Bet, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []domain.Bet
	for _, b := range f.bets {
		if flt.UserID != "" && b.CreatorID != flt.UserID && b.OpponentID != flt.UserID {
			continue
		}
		if len(flt.Statuses) > 0 && !statusIn(b.Status, flt.Statuses) {
			continue
		}
		if flt.Category != "" && b.Category != flt.Category {
			continue
		}
		out = append(out, b)
	}
	return out, nil
}

func (f *fakeBetStore) ListExpired(_ context.Context, cutoff time.Time, _ domain.ListOpts) ([]domain.Bet, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []domain.Bet
	for _, b := range f.bets {
		if b.Status == domain.BetStatusActive && b.Deadline.Before(cutoff) {
			out = append(out, b)
		}
	}
	return out, nil
}

func (f *fakeBetStore) Count(_ context.Context) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return int64(len(f.bets)), nil
}

// fakeLocks is an in-memory LockManager. Acquire fails with ErrLockHeld
// while another holder has the key.
type fakeLocks struct {
	mu   sync.Mutex
	held map[string]bool
}

func newFakeLocks() *fakeLocks {
	return &fakeLocks{held: make(map[string]bool)}
}

func (f *fakeLocks) Acquire(_ context.Context, key string, _ time.Duration) (func(), error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.held[key] {
		return nil, domain.ErrLockHeld
	}
	f.held[key] = true
	return func() {
		f.mu.Lock()
		defer f.mu.Unlock()
		delete(f.held, key)
	}, nil
}

// fakeStatsStore is an in-memory UserStatsStore with version CAS on Save.
// failSaves makes that many Save calls return ErrConflict first.
type fakeStatsStore struct {
	mu        sync.Mutex
	stats     map[string]domain.UserStats
	failSaves int
}

func newFakeStatsStore() *fakeStatsStore {
	return &fakeStatsStore{stats: make(map[string]domain.UserStats)}
}

func (f *fakeStatsStore) Get(_ context.Context, userID string) (domain.UserStats, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	s, ok := f.stats[userID]
	if !ok {
		return domain.UserStats{}, domain.ErrNotFound
	}
	return s, nil
}

func (f *fakeStatsStore) Save(_ context.Context, s domain.UserStats) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failSaves > 0 {
		f.failSaves--
		return domain.ErrConflict
	}
	cur, ok := f.stats[s.UserID]
	if !ok {
		return domain.ErrNotFound
	}
	if cur.Version != s.Version {
		return domain.ErrConflict
	}
	s.Version++
	f.stats[s.UserID] = s
	return nil
}

func (f *fakeStatsStore) EnsureExists(_ context.Context, userID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.stats[userID]; !ok {
		f.stats[userID] = domain.UserStats{UserID: userID}
	}
	return nil
}

func (f *fakeStatsStore) ListTop(_ context.Context, limit int) ([]domain.UserStats, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []domain.UserStats
	for _, s := range f.stats {
		out = append(out, s)
	}
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

// fakeNotifStore records notifications in memory.
type fakeNotifStore struct {
	mu    sync.Mutex
	added []domain.Notification
}

func (f *fakeNotifStore) Add(_ context.Context, n domain.Notification) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	n.ID = int64(len(f.added) + 1)
	f.added = append(f.added, n)
	return nil
}

func (f *fakeNotifStore) ListByUser(_ context.Context, userID string, _ domain.ListOpts) ([]domain.Notification, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []domain.Notification
	for _, n := range f.added {
		if n.UserID == userID {
			out = append(out, n)
		}
	}
	return out, nil
}

func (f *fakeNotifStore) MarkRead(_ context.Context, userID string, id int64) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	for i := range f.added {
		if f.added[i].ID == id && f.added[i].UserID == userID {
			f.added[i].Read = true
			return nil
		}
	}
	return domain.ErrNotFound
}

func (f *fakeNotifStore) byKind(userID, kind string) []domain.Notification {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []domain.Notification
	for _, n := range f.added {
		if n.UserID == userID && n.Kind == kind {
			out = append(out, n)
		}
	}
	return out
}

// fakeActivityStore records feed entries in memory.
type fakeActivityStore struct {
	mu    sync.Mutex
	added []domain.Activity
}

func (f *fakeActivityStore) Add(_ context.Context, a domain.Activity) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	a.ID = int64(len(f.added) + 1)
	f.added = append(f.added, a)
	return nil
}

func (f *fakeActivityStore) ListByUser(_ context.Context, userID string, _ domain.ListOpts) ([]domain.Activity, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []domain.Activity
	for _, a := range f.added {
		if a.UserID == userID {
			out = append(out, a)
		}
	}
	return out, nil
}

func (f *fakeActivityStore) ListPublic(_ context.Context, _ domain.ListOpts) ([]domain.Activity, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []domain.Activity
	for _, a := range f.added {
		if a.Privacy == domain.PrivacyPublic {
			out = append(out, a)
		}
	}
	return out, nil
}

// fakeBlobWriter records uploaded objects in memory.
type fakeBlobWriter struct {
	mu   sync.Mutex
	objs map[string][]byte
}

func newFakeBlobWriter() *fakeBlobWriter {
	return &fakeBlobWriter{objs: make(map[string][]byte)}
}

func (f *fakeBlobWriter) Put(_ context.Context, path string, data io.Reader, _ string) error {
	b, err := io.ReadAll(data)
	if err != nil {
		return err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.objs[path] = b
	return nil
}

func (f *fakeBlobWriter) PutMultipart(ctx context.Context, path string, data io.Reader, _ int64) error {
	return f.Put(ctx, path, data, "")
}
