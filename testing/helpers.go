// Package testing provides fixtures and test doubles for code built on hosz.
//
// It includes a duty history builder, a mock store that records calls and
// injects configured failures, a chaos store for randomized failures, and
// assertion helpers for compliance issues.
//
// Example usage:
//
//	func TestDriverReport(t *testing.T) {
//		history := hostest.NewHistory("d1", shiftStart).
//			Add(hosz.OnDutyNotDriving, 30*time.Minute).
//			Add(hosz.Driving, 8*time.Hour).
//			Open(hosz.OnDutyNotDriving)
//
//		counters := hosz.ComputeCounters(history, now, hosz.DefaultLimits())
//		issues := hosz.EvaluateCompliance(counters, hosz.DefaultLimits(), hosz.DocumentState{})
//		hostest.AssertIssue(t, issues, hosz.RuleBreak30Min, hosz.IssueWarning)
//	}
package testing

import (
	"context"
	"crypto/rand"
	"errors"
	"fmt"
	mathrand "math/rand"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/zoobzio/hosz"
)

// HistoryBuilder appends contiguous duty events from a start instant.
type HistoryBuilder struct {
	cursor   time.Time
	driverID string
	events   hosz.History
}

// NewHistory starts a history for driverID at start.
func NewHistory(driverID string, start time.Time) *HistoryBuilder {
	return &HistoryBuilder{driverID: driverID, cursor: start}
}

// Add appends a closed event of the given status and length.
func (b *HistoryBuilder) Add(status hosz.DutyStatus, d time.Duration) *HistoryBuilder {
	end := b.cursor.Add(d)
	b.events = append(b.events, hosz.DutyStatusEvent{
		ID:        uuid.NewString(),
		DriverID:  b.driverID,
		Status:    status,
		StartTime: b.cursor,
		EndTime:   &end,
	})
	b.cursor = end
	return b
}

// Gap advances the cursor without recording anything.
func (b *HistoryBuilder) Gap(d time.Duration) *HistoryBuilder {
	b.cursor = b.cursor.Add(d)
	return b
}

// Cursor returns the instant the next event would start at.
func (b *HistoryBuilder) Cursor() time.Time {
	return b.cursor
}

// Closed returns the history built so far, with no open event.
func (b *HistoryBuilder) Closed() hosz.History {
	return b.events.Clone()
}

// Open appends an open event at the cursor and returns the history.
func (b *HistoryBuilder) Open(status hosz.DutyStatus) hosz.History {
	out := b.events.Clone()
	return append(out, hosz.DutyStatusEvent{
		ID:        uuid.NewString(),
		DriverID:  b.driverID,
		Status:    status,
		StartTime: b.cursor,
	})
}

// SafeInspection returns an inspection marked safe to operate.
func SafeInspection(driverID string, at time.Time) hosz.PreTripInspection {
	return hosz.PreTripInspection{
		ID:            uuid.NewString(),
		DriverID:      driverID,
		VehicleID:     "truck-1",
		CompletedAt:   at,
		SafeToOperate: true,
	}
}

// MockStore is a hosz.Store and hosz.InspectionSource backed by a
// MemoryStore. It counts calls and can return configured errors or wait
// before answering.
type MockStore struct {
	*hosz.MemoryStore
	loadErr   error
	saveErr   error
	delay     time.Duration
	loads     int64
	saves     int64
	mu        sync.RWMutex
	saveCalls []hosz.Snapshot
}

// NewMockStore creates an empty mock store.
func NewMockStore() *MockStore {
	return &MockStore{MemoryStore: hosz.NewMemoryStore()}
}

// WithLoadError makes every Load fail with err.
func (m *MockStore) WithLoadError(err error) *MockStore {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.loadErr = err
	return m
}

// WithSaveError makes every Save fail with err without storing anything.
func (m *MockStore) WithSaveError(err error) *MockStore {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.saveErr = err
	return m
}

// WithDelay makes every call wait d, or until the context is done.
func (m *MockStore) WithDelay(d time.Duration) *MockStore {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.delay = d
	return m
}

// Load implements hosz.Store.
func (m *MockStore) Load(ctx context.Context, driverID string, since time.Time) (hosz.Snapshot, error) {
	atomic.AddInt64(&m.loads, 1)
	m.mu.RLock()
	delay, err := m.delay, m.loadErr
	m.mu.RUnlock()

	if werr := wait(ctx, delay); werr != nil {
		return hosz.Snapshot{}, werr
	}
	if err != nil {
		return hosz.Snapshot{}, err
	}
	return m.MemoryStore.Load(ctx, driverID, since)
}

// Save implements hosz.Store.
func (m *MockStore) Save(ctx context.Context, snap hosz.Snapshot) error {
	atomic.AddInt64(&m.saves, 1)
	m.mu.Lock()
	m.saveCalls = append(m.saveCalls, snap.Clone())
	delay, err := m.delay, m.saveErr
	m.mu.Unlock()

	if werr := wait(ctx, delay); werr != nil {
		return werr
	}
	if err != nil {
		return err
	}
	return m.MemoryStore.Save(ctx, snap)
}

// LoadCount returns the number of Load calls.
func (m *MockStore) LoadCount() int {
	return int(atomic.LoadInt64(&m.loads))
}

// SaveCount returns the number of Save calls, failed ones included.
func (m *MockStore) SaveCount() int {
	return int(atomic.LoadInt64(&m.saves))
}

// SaveCalls returns copies of every snapshot passed to Save.
func (m *MockStore) SaveCalls() []hosz.Snapshot {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]hosz.Snapshot, len(m.saveCalls))
	copy(out, m.saveCalls)
	return out
}

// Reset clears counters and configured failures. Stored data is kept.
func (m *MockStore) Reset() {
	atomic.StoreInt64(&m.loads, 0)
	atomic.StoreInt64(&m.saves, 0)
	m.mu.Lock()
	defer m.mu.Unlock()
	m.loadErr, m.saveErr, m.delay = nil, nil, 0
	m.saveCalls = nil
}

func wait(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}
	select {
	case <-time.After(d):
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// ErrChaos is returned by ChaosStore for injected failures.
var ErrChaos = errors.New("chaos store induced failure")

// ChaosStore wraps a store and fails saves at a configured rate. Failed
// saves never reach the wrapped store.
type ChaosStore struct {
	wrapped     hosz.Store
	rng         *mathrand.Rand
	failureRate float64
	latencyMax  time.Duration
	mu          sync.Mutex
	totalCalls  int64
	failedCalls int64
}

// ChaosConfig holds configuration for chaos testing.
type ChaosConfig struct {
	FailureRate float64       // Probability of failing a Save (0.0 to 1.0)
	LatencyMax  time.Duration // Maximum latency injected before each Save
	Seed        int64         // Random seed for reproducible chaos (0 for random seed)
}

// NewChaosStore creates a chaos store around wrapped.
func NewChaosStore(wrapped hosz.Store, config ChaosConfig) *ChaosStore {
	seed := config.Seed
	if seed == 0 {
		var seedBytes [8]byte
		if _, err := rand.Read(seedBytes[:]); err != nil {
			seed = time.Now().UnixNano()
		} else {
			for _, b := range seedBytes {
				seed = seed<<8 | int64(b)
			}
		}
	}
	return &ChaosStore{
		wrapped:     wrapped,
		failureRate: config.FailureRate,
		latencyMax:  config.LatencyMax,
		rng:         mathrand.New(mathrand.NewSource(seed)), //nolint:gosec // G404: deterministic chaos for tests
	}
}

// Load implements hosz.Store.
func (c *ChaosStore) Load(ctx context.Context, driverID string, since time.Time) (hosz.Snapshot, error) {
	return c.wrapped.Load(ctx, driverID, since)
}

// Save implements hosz.Store with failure injection.
func (c *ChaosStore) Save(ctx context.Context, snap hosz.Snapshot) error {
	atomic.AddInt64(&c.totalCalls, 1)

	c.mu.Lock()
	var latency time.Duration
	if c.latencyMax > 0 {
		latency = time.Duration(c.rng.Int63n(int64(c.latencyMax)))
	}
	fail := c.rng.Float64() < c.failureRate
	c.mu.Unlock()

	if err := wait(ctx, latency); err != nil {
		return err
	}
	if fail {
		atomic.AddInt64(&c.failedCalls, 1)
		return ErrChaos
	}
	return c.wrapped.Save(ctx, snap)
}

// Stats returns statistics about chaos injection.
func (c *ChaosStore) Stats() ChaosStats {
	return ChaosStats{
		TotalCalls:  atomic.LoadInt64(&c.totalCalls),
		FailedCalls: atomic.LoadInt64(&c.failedCalls),
	}
}

// ChaosStats holds statistics about chaos injection.
type ChaosStats struct {
	TotalCalls  int64
	FailedCalls int64
}

// FailureRate returns the actual failure rate observed.
func (s ChaosStats) FailureRate() float64 {
	if s.TotalCalls == 0 {
		return 0
	}
	return float64(s.FailedCalls) / float64(s.TotalCalls)
}

// String returns a human-readable representation of the stats.
func (s ChaosStats) String() string {
	return fmt.Sprintf("ChaosStats{Total: %d, Failed: %d (%.1f%%)}",
		s.TotalCalls, s.FailedCalls, s.FailureRate()*100)
}

// Assertions

// AssertIssue fails the test unless issues contain one of the given rule
// and kind.
func AssertIssue(t *testing.T, issues []hosz.ComplianceIssue, rule hosz.RuleID, kind hosz.IssueKind) {
	t.Helper()
	for _, issue := range issues {
		if issue.RuleID == rule && issue.Kind == kind {
			return
		}
	}
	t.Errorf("expected %s issue for %s, got %v", kind, rule, issues)
}

// AssertNoIssue fails the test if any issue was raised by rule.
func AssertNoIssue(t *testing.T, issues []hosz.ComplianceIssue, rule hosz.RuleID) {
	t.Helper()
	for _, issue := range issues {
		if issue.RuleID == rule {
			t.Errorf("expected no issue for %s, got %s: %s", rule, issue.Kind, issue.Message)
		}
	}
}

// AssertSingleOpen fails the test unless history is valid and has exactly
// one open event.
func AssertSingleOpen(t *testing.T, history hosz.History) {
	t.Helper()
	if err := history.Validate(); err != nil {
		t.Fatalf("invalid history: %v", err)
	}
	open := 0
	for _, ev := range history {
		if ev.IsOpen() {
			open++
		}
	}
	if open != 1 {
		t.Errorf("expected exactly one open event, got %d", open)
	}
}

// AssertDuration fails the test unless got equals want.
func AssertDuration(t *testing.T, name string, got, want time.Duration) {
	t.Helper()
	if got != want {
		t.Errorf("%s = %v, want %v", name, got, want)
	}
}

// ParallelTest runs testFunc on the given number of goroutines and waits
// for all of them.
func ParallelTest(t *testing.T, goroutines int, testFunc func(int)) {
	t.Helper()

	var wg sync.WaitGroup
	wg.Add(goroutines)

	for i := 0; i < goroutines; i++ {
		go func(id int) {
			defer wg.Done()
			testFunc(id)
		}(i)
	}

	wg.Wait()
}
