package hosz

import (
	"context"
	"fmt"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/patrickmn/go-cache"
)

// Snapshot is everything persisted for one driver: the duty history window,
// amendments, and the static limits and documents the rules read.
type Snapshot struct {
	UpdatedAt  time.Time     `msgpack:"updated_at" json:"updated_at"`
	DriverID   string        `msgpack:"driver" json:"driver_id"`
	Events     History       `msgpack:"events" json:"events"`
	Amendments []Amendment   `msgpack:"amendments,omitempty" json:"amendments,omitempty"`
	Documents  DocumentState `msgpack:"documents" json:"documents"`
	Limits     HosLimits     `msgpack:"limits" json:"limits"`
	Version    uint64        `msgpack:"version" json:"version"`
}

// Clone returns a deep copy of the snapshot.
func (s Snapshot) Clone() Snapshot {
	out := s
	out.Events = s.Events.Clone()
	out.Amendments = slices.Clone(s.Amendments)
	out.Documents = DocumentState{Documents: slices.Clone(s.Documents.Documents)}
	return out
}

// Effective returns the history with amendments applied.
func (s Snapshot) Effective() History {
	return ApplyAmendments(s.Events, s.Amendments)
}

// EffectiveLimits returns the snapshot limits, or the defaults when none
// were configured.
func (s Snapshot) EffectiveLimits() HosLimits {
	if s.Limits.IsZero() {
		return DefaultLimits()
	}
	return s.Limits
}

// Store is the persistence collaborator. Load returns the events open or
// ending at or after since, and ErrDriverNotFound for unknown drivers. Save
// writes the snapshot atomically; events and amendments are merged by id and
// never deleted, so saving a paged window keeps older records intact.
type Store interface {
	Load(ctx context.Context, driverID string, since time.Time) (Snapshot, error)
	Save(ctx context.Context, snapshot Snapshot) error
}

// MemoryStore is an in-process Store and inspection log. Values are kept
// msgpack-encoded so no caller ever shares memory with a stored snapshot.
type MemoryStore struct {
	snapshots   *cache.Cache
	inspections *cache.Cache
	mu          sync.Mutex
}

// NewMemoryStore creates an empty MemoryStore.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		snapshots:   cache.New(cache.NoExpiration, 0),
		inspections: cache.New(cache.NoExpiration, 0),
	}
}

// Load implements Store.
func (m *MemoryStore) Load(ctx context.Context, driverID string, since time.Time) (Snapshot, error) {
	if err := ctx.Err(); err != nil {
		return Snapshot{}, err
	}
	snap, ok, err := m.get(driverID)
	if err != nil {
		return Snapshot{}, err
	}
	if !ok {
		return Snapshot{}, fmt.Errorf("%w: %s", ErrDriverNotFound, driverID)
	}
	if !since.IsZero() {
		snap.Events = snap.Events.Since(since)
	}
	return snap, nil
}

// Save implements Store.
func (m *MemoryStore) Save(ctx context.Context, snapshot Snapshot) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if strings.TrimSpace(snapshot.DriverID) == "" {
		return ErrDriverIDMissing
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	stored, ok, err := m.get(snapshot.DriverID)
	if err != nil {
		return err
	}
	merged := snapshot.Clone()
	if ok {
		merged.Events = mergeEvents(stored.Events, snapshot.Events)
		merged.Amendments = mergeAmendments(stored.Amendments, snapshot.Amendments)
		merged.Version = stored.Version + 1
	} else {
		merged.Version = 1
	}
	if err := merged.Events.Validate(); err != nil {
		return fmt.Errorf("save driver %s: %w", snapshot.DriverID, err)
	}

	data, err := Encode(merged)
	if err != nil {
		return fmt.Errorf("encode snapshot: %w", err)
	}
	m.snapshots.Set(snapshot.DriverID, data, cache.NoExpiration)
	return nil
}

// Inspections implements InspectionSource.
func (m *MemoryStore) Inspections(ctx context.Context, driverID string, since time.Time) ([]PreTripInspection, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	all, err := m.inspectionsOf(driverID)
	if err != nil {
		return nil, err
	}
	out := all[:0]
	for _, in := range all {
		if !in.CompletedAt.Before(since) {
			out = append(out, in)
		}
	}
	return out, nil
}

// RecordInspection implements InspectionRecorder.
func (m *MemoryStore) RecordInspection(ctx context.Context, inspection PreTripInspection) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if strings.TrimSpace(inspection.DriverID) == "" {
		return ErrDriverIDMissing
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	all, err := m.inspectionsOf(inspection.DriverID)
	if err != nil {
		return err
	}
	all = append(all, inspection)
	slices.SortStableFunc(all, func(a, b PreTripInspection) int {
		return a.CompletedAt.Compare(b.CompletedAt)
	})
	data, err := Encode(all)
	if err != nil {
		return fmt.Errorf("encode inspections: %w", err)
	}
	m.inspections.Set(inspection.DriverID, data, cache.NoExpiration)
	return nil
}

func (m *MemoryStore) get(driverID string) (Snapshot, bool, error) {
	raw, ok := m.snapshots.Get(driverID)
	if !ok {
		return Snapshot{}, false, nil
	}
	snap, err := Decode[Snapshot](raw.([]byte))
	if err != nil {
		return Snapshot{}, false, fmt.Errorf("decode snapshot: %w", err)
	}
	return snap, true, nil
}

func (m *MemoryStore) inspectionsOf(driverID string) ([]PreTripInspection, error) {
	raw, ok := m.inspections.Get(driverID)
	if !ok {
		return nil, nil
	}
	all, err := Decode[[]PreTripInspection](raw.([]byte))
	if err != nil {
		return nil, fmt.Errorf("decode inspections: %w", err)
	}
	return all, nil
}

// mergeEvents upserts incoming events into stored ones by id and returns
// them ordered by start time.
func mergeEvents(stored, incoming History) History {
	out := stored.Clone()
	for _, ev := range incoming.Clone() {
		if i := out.Find(ev.ID); i >= 0 {
			out[i] = ev
			continue
		}
		out = append(out, ev)
	}
	slices.SortStableFunc(out, func(a, b DutyStatusEvent) int {
		return a.StartTime.Compare(b.StartTime)
	})
	return out
}

func mergeAmendments(stored, incoming []Amendment) []Amendment {
	out := slices.Clone(stored)
	for _, a := range incoming {
		if slices.ContainsFunc(out, func(cur Amendment) bool { return cur.ID == a.ID }) {
			continue
		}
		out = append(out, a)
	}
	return out
}
