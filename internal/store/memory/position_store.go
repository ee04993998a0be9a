// Package memory provides the in-process PositionStore. State lives for the
// lifetime of the process; durable copies are produced by the snapshot
// archiver and the audit log.
package memory

import (
	"context"
	"fmt"
	"math"
	"sort"
	"sync"
	"time"

	"github.com/alanyoungcy/hedgebot/internal/domain"
)

// Compile-time interface check.
var _ domain.PositionStore = (*PositionStore)(nil)

// DefaultHistoryLimit is used when NewPositionStore is given a non-positive limit.
const DefaultHistoryLimit = 500

// record guards one position. The store-level map lock is only held while
// looking keys up; every read or write of pos happens under mu.
type record struct {
	mu      sync.Mutex
	pos     domain.Position
	removed bool
}

// PositionStore keeps positions in memory with per-key locking.
type PositionStore struct {
	mu           sync.RWMutex
	records      map[domain.PositionKey]*record
	historyLimit int
	now          func() time.Time
}

// Option configures a PositionStore.
type Option func(*PositionStore)

// WithClock overrides the time source used for history timestamps.
func WithClock(now func() time.Time) Option {
	return func(s *PositionStore) { s.now = now }
}

// NewPositionStore creates an empty store that keeps at most historyLimit
// price samples per position.
func NewPositionStore(historyLimit int, opts ...Option) *PositionStore {
	if historyLimit <= 0 {
		historyLimit = DefaultHistoryLimit
	}
	s := &PositionStore{
		records:      make(map[domain.PositionKey]*record),
		historyLimit: historyLimit,
		now:          time.Now,
	}
	for _, o := range opts {
		o(s)
	}
	return s
}

// Upsert creates or replaces the position for (userID, asset). Histories are
// reset, auto-hedge is disabled and the price history is seeded with the
// entry price.
func (s *PositionStore) Upsert(_ context.Context, userID int64, asset string, entryPrice, size, threshold float64) (domain.Position, error) {
	key := domain.NewPositionKey(userID, asset)
	if key.Asset == "" {
		return domain.Position{}, fmt.Errorf("memory: upsert: empty asset: %w", domain.ErrInvalidPosition)
	}
	if !(entryPrice > 0) || math.IsInf(entryPrice, 0) {
		return domain.Position{}, fmt.Errorf("memory: upsert %s: entry price %v: %w", key, entryPrice, domain.ErrInvalidPosition)
	}
	if !(size > 0) || math.IsInf(size, 0) {
		return domain.Position{}, fmt.Errorf("memory: upsert %s: size %v: %w", key, size, domain.ErrInvalidPosition)
	}
	if math.IsNaN(threshold) || math.IsInf(threshold, 0) {
		return domain.Position{}, fmt.Errorf("memory: upsert %s: threshold %v: %w", key, threshold, domain.ErrInvalidPosition)
	}

	now := s.now()
	fresh := domain.Position{
		UserID:           key.UserID,
		Asset:            key.Asset,
		EntryPrice:       entryPrice,
		PositionSize:     size,
		RiskThreshold:    threshold,
		AutoHedge:        false,
		PriceHistory:     []domain.PriceSample{{Time: now, Price: entryPrice}},
		ThresholdHistory: []domain.ThresholdChange{},
		HedgeLogs:        []domain.HedgeLogEntry{},
		AutoHedgeHistory: []domain.AutoHedgeTrigger{},
		CreatedAt:        now,
	}

	for {
		s.mu.Lock()
		rec, ok := s.records[key]
		if !ok {
			s.records[key] = &record{pos: fresh}
			s.mu.Unlock()
			return fresh.Clone(), nil
		}
		s.mu.Unlock()

		rec.mu.Lock()
		if rec.removed {
			// Lost a race with Remove; the key is free again.
			rec.mu.Unlock()
			continue
		}
		rec.pos = fresh
		out := rec.pos.Clone()
		rec.mu.Unlock()
		return out, nil
	}
}

// Get returns a deep copy of the position.
func (s *PositionStore) Get(_ context.Context, userID int64, asset string) (domain.Position, error) {
	var out domain.Position
	err := s.with(userID, asset, func(p *domain.Position) error {
		out = p.Clone()
		return nil
	})
	return out, err
}

// ListAssets returns the user's monitored assets in sorted order.
func (s *PositionStore) ListAssets(_ context.Context, userID int64) ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	assets := make([]string, 0)
	for k := range s.records {
		if k.UserID == userID {
			assets = append(assets, k.Asset)
		}
	}
	sort.Strings(assets)
	return assets, nil
}

// ListUsers returns every user with at least one position, sorted.
func (s *PositionStore) ListUsers(_ context.Context) ([]int64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	seen := make(map[int64]struct{})
	for k := range s.records {
		seen[k.UserID] = struct{}{}
	}
	users := make([]int64, 0, len(seen))
	for u := range seen {
		users = append(users, u)
	}
	sort.Slice(users, func(i, j int) bool { return users[i] < users[j] })
	return users, nil
}

// Remove deletes the position. Removal is terminal for that record; a later
// Upsert creates a new one.
func (s *PositionStore) Remove(_ context.Context, userID int64, asset string) error {
	key := domain.NewPositionKey(userID, asset)

	s.mu.Lock()
	rec, ok := s.records[key]
	if !ok {
		s.mu.Unlock()
		return fmt.Errorf("memory: remove %s: %w", key, domain.ErrNotFound)
	}
	delete(s.records, key)
	s.mu.Unlock()

	rec.mu.Lock()
	rec.removed = true
	rec.mu.Unlock()
	return nil
}

// RemoveAll deletes every position of the user and returns how many were removed.
func (s *PositionStore) RemoveAll(_ context.Context, userID int64) (int, error) {
	s.mu.Lock()
	var recs []*record
	for k, rec := range s.records {
		if k.UserID == userID {
			recs = append(recs, rec)
			delete(s.records, k)
		}
	}
	s.mu.Unlock()

	for _, rec := range recs {
		rec.mu.Lock()
		rec.removed = true
		rec.mu.Unlock()
	}
	return len(recs), nil
}

// SetAutoHedge toggles automatic hedging for the position.
func (s *PositionStore) SetAutoHedge(_ context.Context, userID int64, asset string, enabled bool) error {
	return s.with(userID, asset, func(p *domain.Position) error {
		p.AutoHedge = enabled
		return nil
	})
}

// UpdateThreshold records the change in the threshold history and then
// applies it. Setting the same value again still records an entry.
func (s *PositionStore) UpdateThreshold(_ context.Context, userID int64, asset string, threshold float64) (domain.ThresholdChange, error) {
	if math.IsNaN(threshold) || math.IsInf(threshold, 0) {
		return domain.ThresholdChange{}, fmt.Errorf("memory: update threshold: %v: %w", threshold, domain.ErrInvalidThreshold)
	}
	var change domain.ThresholdChange
	err := s.with(userID, asset, func(p *domain.Position) error {
		change = domain.ThresholdChange{
			Time:         s.now(),
			OldThreshold: p.RiskThreshold,
			NewThreshold: threshold,
		}
		p.ThresholdHistory = append(p.ThresholdHistory, change)
		p.RiskThreshold = threshold
		return nil
	})
	return change, err
}

// AppendPriceSample appends a sample, trimming the oldest ones beyond the
// history limit, and returns the updated position. A sample stamped before
// the latest one (wall clock stepped back) is moved up to the latest time.
func (s *PositionStore) AppendPriceSample(_ context.Context, userID int64, asset string, sample domain.PriceSample) (domain.Position, error) {
	var out domain.Position
	err := s.with(userID, asset, func(p *domain.Position) error {
		if n := len(p.PriceHistory); n > 0 && sample.Time.Before(p.PriceHistory[n-1].Time) {
			sample.Time = p.PriceHistory[n-1].Time
		}
		p.PriceHistory = append(p.PriceHistory, sample)
		if over := len(p.PriceHistory) - s.historyLimit; over > 0 {
			trimmed := make([]domain.PriceSample, s.historyLimit)
			copy(trimmed, p.PriceHistory[over:])
			p.PriceHistory = trimmed
		}
		out = p.Clone()
		return nil
	})
	return out, err
}

// AppendHedgeLog appends an executed hedge to the position's log.
func (s *PositionStore) AppendHedgeLog(_ context.Context, userID int64, asset string, entry domain.HedgeLogEntry) error {
	return s.with(userID, asset, func(p *domain.Position) error {
		p.HedgeLogs = append(p.HedgeLogs, entry)
		return nil
	})
}

// AppendAutoHedgeTrigger records that the hedging path was entered.
func (s *PositionStore) AppendAutoHedgeTrigger(_ context.Context, userID int64, asset string, trigger domain.AutoHedgeTrigger) error {
	return s.with(userID, asset, func(p *domain.Position) error {
		p.AutoHedgeHistory = append(p.AutoHedgeHistory, trigger)
		return nil
	})
}

// Len returns the number of stored positions.
func (s *PositionStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.records)
}

// with runs fn while holding the key's lock. It returns ErrNotFound if the
// key does not exist or was removed before the lock was acquired.
func (s *PositionStore) with(userID int64, asset string, fn func(*domain.Position) error) error {
	key := domain.NewPositionKey(userID, asset)

	s.mu.RLock()
	rec, ok := s.records[key]
	s.mu.RUnlock()
	if !ok {
		return fmt.Errorf("memory: %s: %w", key, domain.ErrNotFound)
	}

	rec.mu.Lock()
	defer rec.mu.Unlock()
	if rec.removed {
		return fmt.Errorf("memory: %s: %w", key, domain.ErrNotFound)
	}
	return fn(&rec.pos)
}
