package hosz

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/zoobzio/clockz"
	"github.com/zoobzio/hookz"
	"github.com/zoobzio/metricz"
	"github.com/zoobzio/tracez"
)

// Observability constants for the Ledger.
const (
	// Metrics.
	LedgerTransitionsTotal = metricz.Key("ledger.transitions.total")
	LedgerRejectedTotal    = metricz.Key("ledger.rejected.total")
	LedgerHardStopsTotal   = metricz.Key("ledger.hard_stops.total")
	LedgerAmendmentsTotal  = metricz.Key("ledger.amendments.total")
	LedgerEvaluationsTotal = metricz.Key("ledger.evaluations.total")
	LedgerViolationsTotal  = metricz.Key("ledger.violations.total")
	LedgerOpenIssues       = metricz.Key("ledger.open_issues")

	// Spans.
	LedgerTransitionSpan = tracez.Key("ledger.transition")
	LedgerEvaluateSpan   = tracez.Key("ledger.evaluate")
	LedgerAmendSpan      = tracez.Key("ledger.amend")

	// Tags.
	LedgerTagDriver  = tracez.Tag("ledger.driver")
	LedgerTagTarget  = tracez.Tag("ledger.target")
	LedgerTagStatus  = tracez.Tag("ledger.status")
	LedgerTagSuccess = tracez.Tag("ledger.success")
	LedgerTagError   = tracez.Tag("ledger.error")

	// Hook event keys.
	LedgerEventTransitioned = hookz.Key("ledger.transitioned")
	LedgerEventRejected     = hookz.Key("ledger.rejected")
	LedgerEventViolation    = hookz.Key("ledger.violation")
)

// LedgerEvent is emitted via hookz when a transition is accepted or
// rejected, and when an evaluation finds a violation.
type LedgerEvent struct {
	Timestamp time.Time         // When the event occurred
	Err       error             // Rejection reason
	DriverID  string            // Driver the event concerns
	Event     DutyStatusEvent   // Opened event (transitions)
	Issues    []ComplianceIssue // Issues found (violations)
	From      DutyStatus        // Status before the transition
	To        DutyStatus        // Requested status
	Status    ComplianceStatus  // Overall status (violations)
}

// Ledger owns every driver's duty history. It is the only writer: each
// driver's transitions are serialized by a per-driver lock, and the closed
// and opened events are persisted in one Store.Save so no reader observes a
// history with zero or two open events.
//
// Create one Ledger per process and share it; creating one per request
// forfeits the per-driver serialization.
type Ledger struct {
	store       Store
	inspections InspectionSource
	clock       clockz.Clock
	evaluator   *Evaluator
	locks       map[string]*sync.Mutex
	metrics     *metricz.Registry
	tracer      *tracez.Tracer
	hooks       *hookz.Hooks[LedgerEvent]
	limits      HosLimits
	mu          sync.Mutex
}

// NewLedger creates a Ledger over the given store. inspections may be nil,
// in which case every transition into Driving is a hard stop.
func NewLedger(store Store, inspections InspectionSource) *Ledger {
	metrics := metricz.New()
	metrics.Counter(LedgerTransitionsTotal)
	metrics.Counter(LedgerRejectedTotal)
	metrics.Counter(LedgerHardStopsTotal)
	metrics.Counter(LedgerAmendmentsTotal)
	metrics.Counter(LedgerEvaluationsTotal)
	metrics.Counter(LedgerViolationsTotal)
	metrics.Gauge(LedgerOpenIssues)

	return &Ledger{
		store:       store,
		inspections: inspections,
		evaluator:   NewEvaluator(DefaultRules()...),
		limits:      DefaultLimits(),
		locks:       make(map[string]*sync.Mutex),
		metrics:     metrics,
		tracer:      tracez.New(),
		hooks:       hookz.New[LedgerEvent](),
	}
}

// WithClock sets the clock used for evaluation instants and record times.
func (l *Ledger) WithClock(clock clockz.Clock) *Ledger {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.clock = clock
	return l
}

// WithLimits sets the limits used for drivers without configured limits.
func (l *Ledger) WithLimits(limits HosLimits) *Ledger {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.limits = limits
	return l
}

// WithEvaluator replaces the default rule set.
func (l *Ledger) WithEvaluator(ev *Evaluator) *Ledger {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.evaluator = ev
	return l
}

func (l *Ledger) getClock() clockz.Clock {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.clock == nil {
		return clockz.RealClock
	}
	return l.clock
}

func (l *Ledger) defaults() (HosLimits, *Evaluator) {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.limits, l.evaluator
}

// driverLock returns the lock serializing writes for one driver.
func (l *Ledger) driverLock(driverID string) *sync.Mutex {
	l.mu.Lock()
	defer l.mu.Unlock()
	lock, ok := l.locks[driverID]
	if !ok {
		lock = &sync.Mutex{}
		l.locks[driverID] = lock
	}
	return lock
}

// load reads the working window of a driver. The window reaches back the
// longer of the ledger's and the driver's own retention, so drivers enrolled
// with a longer cycle are never truncated.
func (l *Ledger) load(ctx context.Context, driverID string, at time.Time) (Snapshot, error) {
	limits, _ := l.defaults()
	snap, err := l.store.Load(ctx, driverID, at.Add(-limits.Retention()))
	if err != nil {
		return Snapshot{}, fmt.Errorf("load driver %s: %w", driverID, err)
	}
	if snap.Limits.IsZero() {
		snap.Limits = limits
	}
	if r := snap.Limits.Retention(); r > limits.Retention() {
		driverLimits := snap.Limits
		snap, err = l.store.Load(ctx, driverID, at.Add(-r))
		if err != nil {
			return Snapshot{}, fmt.Errorf("load driver %s: %w", driverID, err)
		}
		if snap.Limits.IsZero() {
			snap.Limits = driverLimits
		}
	}
	return snap, nil
}

// loadOrNew is load for writers that may start a history. Unknown drivers
// get an empty snapshot carrying the ledger's default limits.
func (l *Ledger) loadOrNew(ctx context.Context, driverID string, at time.Time) (Snapshot, error) {
	snap, err := l.load(ctx, driverID, at)
	if errors.Is(err, ErrDriverNotFound) {
		limits, _ := l.defaults()
		return Snapshot{DriverID: driverID, Limits: limits}, nil
	}
	return snap, err
}

func (l *Ledger) inspectionsSince(ctx context.Context, driverID string, since time.Time) ([]PreTripInspection, error) {
	if l.inspections == nil {
		return nil, nil
	}
	ins, err := l.inspections.Inspections(ctx, driverID, since)
	if err != nil {
		return nil, fmt.Errorf("load inspections for %s: %w", driverID, err)
	}
	return ins, nil
}

// Transition moves a driver into target at the given instant. It fails with
// ErrHardStopRequired when target is Driving and no safe pre-trip inspection
// exists for the current duty cycle, and with ErrInvalidTimestamp when at
// precedes the open event. Both failures leave the history unchanged.
func (l *Ledger) Transition(ctx context.Context, driverID string, target DutyStatus, at time.Time) (ev DutyStatusEvent, err error) {
	if strings.TrimSpace(driverID) == "" {
		return DutyStatusEvent{}, ErrDriverIDMissing
	}
	if !target.Valid() {
		return DutyStatusEvent{}, fmt.Errorf("%w: %d", ErrInvalidStatus, uint8(target))
	}

	lock := l.driverLock(driverID)
	lock.Lock()
	defer lock.Unlock()

	ctx, span := l.tracer.StartSpan(ctx, LedgerTransitionSpan)
	span.SetTag(LedgerTagDriver, driverID)
	span.SetTag(LedgerTagTarget, target.String())
	defer func() {
		if err != nil {
			span.SetTag(LedgerTagSuccess, "false")
			span.SetTag(LedgerTagError, err.Error())
		} else {
			span.SetTag(LedgerTagSuccess, "true")
		}
		span.Finish()
	}()

	snap, err := l.loadOrNew(ctx, driverID, at)
	if err != nil {
		return DutyStatusEvent{}, err
	}
	history := snap.Effective()
	current := history.Current()

	if n := len(snap.Events); n > 0 {
		last := snap.Events[n-1]
		boundary := last.StartTime
		if !last.IsOpen() {
			boundary = *last.EndTime
		}
		if at.Before(boundary) {
			return DutyStatusEvent{}, l.reject(ctx, &TransitionError{
				Timestamp: l.getClock().Now(),
				At:        at,
				OpenSince: boundary,
				Err:       ErrInvalidTimestamp,
				DriverID:  driverID,
				Current:   current,
				Target:    target,
			})
		}
	}

	if target == Driving {
		limits := snap.EffectiveLimits()
		from := DutyCycleStart(history, at, limits)
		inspections, err := l.inspectionsSince(ctx, driverID, from)
		if err != nil {
			return DutyStatusEvent{}, err
		}
		if RequiresHardStop(history, at, inspections, limits) {
			l.metrics.Counter(LedgerHardStopsTotal).Inc()
			return DutyStatusEvent{}, l.reject(ctx, &TransitionError{
				Timestamp: l.getClock().Now(),
				At:        at,
				Err:       ErrHardStopRequired,
				DriverID:  driverID,
				Current:   current,
				Target:    target,
			})
		}
	}

	next := snap.Clone()
	if n := len(next.Events); n > 0 && next.Events[n-1].IsOpen() {
		end := at
		next.Events[n-1].EndTime = &end
	}
	ev = DutyStatusEvent{
		ID:        uuid.NewString(),
		DriverID:  driverID,
		Status:    target,
		StartTime: at,
	}
	next.Events = append(next.Events, ev)
	next.UpdatedAt = l.getClock().Now()

	if err := l.store.Save(ctx, next); err != nil {
		return DutyStatusEvent{}, fmt.Errorf("save driver %s: %w", driverID, err)
	}

	l.metrics.Counter(LedgerTransitionsTotal).Inc()
	_ = l.hooks.Emit(ctx, LedgerEventTransitioned, LedgerEvent{ //nolint:errcheck
		Timestamp: next.UpdatedAt,
		DriverID:  driverID,
		Event:     ev,
		From:      current,
		To:        target,
	})
	return ev, nil
}

// TransitionNow is Transition at the ledger clock's current instant.
func (l *Ledger) TransitionNow(ctx context.Context, driverID string, target DutyStatus) (DutyStatusEvent, error) {
	return l.Transition(ctx, driverID, target, l.getClock().Now())
}

func (l *Ledger) reject(ctx context.Context, terr *TransitionError) error {
	l.metrics.Counter(LedgerRejectedTotal).Inc()
	_ = l.hooks.Emit(ctx, LedgerEventRejected, LedgerEvent{ //nolint:errcheck
		Timestamp: terr.Timestamp,
		Err:       terr,
		DriverID:  terr.DriverID,
		From:      terr.Current,
		To:        terr.Target,
	})
	return terr
}

// Enroll registers a driver's limits and documents. A driver without any
// history is opened in OffDuty at the given instant; an existing history is
// left as it is.
func (l *Ledger) Enroll(ctx context.Context, driverID string, at time.Time, limits HosLimits, documents DocumentState) (Snapshot, error) {
	if strings.TrimSpace(driverID) == "" {
		return Snapshot{}, ErrDriverIDMissing
	}
	if limits.IsZero() {
		limits, _ = l.defaults()
	}
	if err := limits.Validate(); err != nil {
		return Snapshot{}, err
	}

	lock := l.driverLock(driverID)
	lock.Lock()
	defer lock.Unlock()

	snap, err := l.loadOrNew(ctx, driverID, at)
	if err != nil {
		return Snapshot{}, err
	}
	next := snap.Clone()
	next.Limits = limits
	next.Documents = DocumentState{Documents: append([]Document(nil), documents.Documents...)}
	if len(next.Events) == 0 {
		next.Events = History{{
			ID:        uuid.NewString(),
			DriverID:  driverID,
			Status:    OffDuty,
			StartTime: at,
		}}
	}
	next.UpdatedAt = l.getClock().Now()
	if err := l.store.Save(ctx, next); err != nil {
		return Snapshot{}, fmt.Errorf("save driver %s: %w", driverID, err)
	}
	return next, nil
}

// UpdateDocuments replaces the documents of the given kinds. The driver must
// be enrolled.
func (l *Ledger) UpdateDocuments(ctx context.Context, driverID string, docs ...Document) error {
	lock := l.driverLock(driverID)
	lock.Lock()
	defer lock.Unlock()

	now := l.getClock().Now()
	snap, err := l.load(ctx, driverID, now)
	if err != nil {
		return err
	}
	next := snap.Clone()
	for _, d := range docs {
		next.Documents = next.Documents.With(d)
	}
	next.UpdatedAt = now
	return l.store.Save(ctx, next)
}

// Amend records a correction of a closed event's status. The event itself
// is never edited; readers see the amended status through Snapshot.Effective.
func (l *Ledger) Amend(ctx context.Context, driverID, eventID string, status DutyStatus, note string) (am Amendment, err error) {
	if !status.Valid() {
		return Amendment{}, fmt.Errorf("%w: %d", ErrInvalidStatus, uint8(status))
	}

	lock := l.driverLock(driverID)
	lock.Lock()
	defer lock.Unlock()

	ctx, span := l.tracer.StartSpan(ctx, LedgerAmendSpan)
	span.SetTag(LedgerTagDriver, driverID)
	defer func() {
		span.SetTag(LedgerTagSuccess, fmt.Sprintf("%t", err == nil))
		span.Finish()
	}()

	snap, err := l.store.Load(ctx, driverID, time.Time{})
	if err != nil {
		return Amendment{}, err
	}
	i := snap.Events.Find(eventID)
	if i < 0 {
		return Amendment{}, fmt.Errorf("%w: %s", ErrEventNotFound, eventID)
	}
	if snap.Events[i].IsOpen() {
		return Amendment{}, ErrAmendOpenEvent
	}

	am = Amendment{
		ID:         uuid.NewString(),
		EventID:    eventID,
		Status:     status,
		Note:       note,
		RecordedAt: l.getClock().Now(),
	}
	next := snap.Clone()
	next.Amendments = append(next.Amendments, am)
	next.UpdatedAt = am.RecordedAt
	if err := l.store.Save(ctx, next); err != nil {
		return Amendment{}, fmt.Errorf("save driver %s: %w", driverID, err)
	}
	l.metrics.Counter(LedgerAmendmentsTotal).Inc()
	return am, nil
}

// Snapshot returns the working window of a driver's records. The result is
// a private copy.
func (l *Ledger) Snapshot(ctx context.Context, driverID string) (Snapshot, error) {
	return l.SnapshotAt(ctx, driverID, l.getClock().Now())
}

// SnapshotAt returns the working window ending at the given instant. Unknown
// drivers fail with ErrDriverNotFound.
func (l *Ledger) SnapshotAt(ctx context.Context, driverID string, at time.Time) (Snapshot, error) {
	return l.load(ctx, driverID, at)
}

// Evaluate computes the compliance report of a driver at the ledger clock's
// current instant.
func (l *Ledger) Evaluate(ctx context.Context, driverID string) (Report, error) {
	return l.EvaluateAt(ctx, driverID, l.getClock().Now())
}

// EvaluateAt computes the compliance report of a driver at now.
func (l *Ledger) EvaluateAt(ctx context.Context, driverID string, now time.Time) (report Report, err error) {
	ctx, span := l.tracer.StartSpan(ctx, LedgerEvaluateSpan)
	span.SetTag(LedgerTagDriver, driverID)
	defer func() {
		if err != nil {
			span.SetTag(LedgerTagError, err.Error())
		} else {
			span.SetTag(LedgerTagStatus, report.Status.String())
		}
		span.Finish()
	}()

	snap, err := l.load(ctx, driverID, now)
	if err != nil {
		return Report{}, err
	}
	history := snap.Effective()
	limits := snap.EffectiveLimits()
	inspections, err := l.inspectionsSince(ctx, driverID, DutyCycleStart(history, now, limits))
	if err != nil {
		return Report{}, err
	}
	_, evaluator := l.defaults()
	report = NewReport(snap, inspections, now, evaluator)

	l.metrics.Counter(LedgerEvaluationsTotal).Inc()
	l.metrics.Gauge(LedgerOpenIssues).Set(float64(len(report.Issues)))
	if report.Status == StatusViolation {
		l.metrics.Counter(LedgerViolationsTotal).Inc()
		_ = l.hooks.Emit(ctx, LedgerEventViolation, LedgerEvent{ //nolint:errcheck
			Timestamp: now,
			DriverID:  driverID,
			Issues:    report.Issues,
			From:      report.Counters.CurrentStatus,
			To:        report.Counters.CurrentStatus,
			Status:    report.Status,
		})
	}
	return report, nil
}

// Metrics returns the metrics registry of the ledger.
func (l *Ledger) Metrics() *metricz.Registry {
	return l.metrics
}

// Tracer returns the tracer of the ledger.
func (l *Ledger) Tracer() *tracez.Tracer {
	return l.tracer
}

// OnTransition registers a handler for accepted transitions. Handlers run
// asynchronously.
func (l *Ledger) OnTransition(handler func(context.Context, LedgerEvent) error) error {
	_, err := l.hooks.Hook(LedgerEventTransitioned, handler)
	return err
}

// OnRejected registers a handler for rejected transitions.
func (l *Ledger) OnRejected(handler func(context.Context, LedgerEvent) error) error {
	_, err := l.hooks.Hook(LedgerEventRejected, handler)
	return err
}

// OnViolation registers a handler for evaluations that found a violation.
func (l *Ledger) OnViolation(handler func(context.Context, LedgerEvent) error) error {
	_, err := l.hooks.Hook(LedgerEventViolation, handler)
	return err
}

// Close shuts down the observability components.
func (l *Ledger) Close() error {
	if l.tracer != nil {
		l.tracer.Close()
	}
	l.hooks.Close()
	return nil
}
