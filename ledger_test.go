package hosz_test

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/zoobzio/clockz"
	"github.com/zoobzio/hosz"
	hostest "github.com/zoobzio/hosz/testing"
	"github.com/zoobzio/tracez"
)

func newLedger(t *testing.T) (*hosz.Ledger, *hostest.MockStore, *clockz.FakeClock) {
	t.Helper()
	store := hostest.NewMockStore()
	clock := clockz.NewFakeClock()
	ledger := hosz.NewLedger(store, store).WithClock(clock)
	t.Cleanup(func() { _ = ledger.Close() })
	return ledger, store, clock
}

func enroll(t *testing.T, ledger *hosz.Ledger, driverID string, at time.Time) {
	t.Helper()
	if _, err := ledger.Enroll(context.Background(), driverID, at, hosz.HosLimits{}, hosz.DocumentState{}); err != nil {
		t.Fatalf("enroll: %v", err)
	}
}

func TestLedgerTransition(t *testing.T) {
	ctx := context.Background()

	t.Run("Driving After A Reset With Inspection", func(t *testing.T) {
		ledger, store, clock := newLedger(t)
		base := clock.Now()
		enroll(t, ledger, "d1", base)
		if err := store.RecordInspection(ctx, hostest.SafeInspection("d1", base.Add(9*time.Hour+30*time.Minute))); err != nil {
			t.Fatalf("record inspection: %v", err)
		}

		ev, err := ledger.Transition(ctx, "d1", hosz.Driving, base.Add(10*time.Hour))
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if ev.Status != hosz.Driving || !ev.StartTime.Equal(base.Add(10*time.Hour)) || !ev.IsOpen() {
			t.Errorf("event = %+v", ev)
		}

		snap, err := ledger.SnapshotAt(ctx, "d1", base.Add(10*time.Hour))
		if err != nil {
			t.Fatalf("snapshot: %v", err)
		}
		if len(snap.Events) != 2 {
			t.Fatalf("expected 2 events, got %d", len(snap.Events))
		}
		if !snap.Events[0].EndTime.Equal(base.Add(10 * time.Hour)) {
			t.Errorf("off duty closed at %v", snap.Events[0].EndTime)
		}
		hostest.AssertSingleOpen(t, snap.Events)
		if got := ledger.Metrics().Counter(hosz.LedgerTransitionsTotal).Value(); got != 1 {
			t.Errorf("expected 1 transition, got %v", got)
		}
	})

	t.Run("Driving Without Inspection Is A Hard Stop", func(t *testing.T) {
		ledger, store, clock := newLedger(t)
		base := clock.Now()
		enroll(t, ledger, "d1", base)

		var (
			mu       sync.Mutex
			rejected []hosz.LedgerEvent
		)
		if err := ledger.OnRejected(func(_ context.Context, ev hosz.LedgerEvent) error {
			mu.Lock()
			rejected = append(rejected, ev)
			mu.Unlock()
			return nil
		}); err != nil {
			t.Fatalf("register hook: %v", err)
		}

		saves := store.SaveCount()
		_, err := ledger.Transition(ctx, "d1", hosz.Driving, base.Add(10*time.Hour))
		if !errors.Is(err, hosz.ErrHardStopRequired) {
			t.Fatalf("expected ErrHardStopRequired, got %v", err)
		}
		var terr *hosz.TransitionError
		if !errors.As(err, &terr) || !terr.IsHardStop() {
			t.Fatalf("expected a hard stop TransitionError, got %T", err)
		}
		if terr.Current != hosz.OffDuty || terr.Target != hosz.Driving {
			t.Errorf("transition = %s -> %s", terr.Current, terr.Target)
		}
		if store.SaveCount() != saves {
			t.Error("rejected transition reached the store")
		}

		snap, _ := ledger.SnapshotAt(ctx, "d1", base.Add(10*time.Hour))
		if len(snap.Events) != 1 || snap.Events[0].Status != hosz.OffDuty || !snap.Events[0].IsOpen() {
			t.Errorf("history changed: %+v", snap.Events)
		}
		if got := ledger.Metrics().Counter(hosz.LedgerHardStopsTotal).Value(); got != 1 {
			t.Errorf("expected 1 hard stop, got %v", got)
		}

		time.Sleep(50 * time.Millisecond)
		mu.Lock()
		defer mu.Unlock()
		if len(rejected) != 1 || !errors.Is(rejected[0].Err, hosz.ErrHardStopRequired) {
			t.Errorf("rejected events = %+v", rejected)
		}
	})

	t.Run("Unsafe Inspection Keeps The Hard Stop", func(t *testing.T) {
		ledger, store, clock := newLedger(t)
		base := clock.Now()
		enroll(t, ledger, "d1", base)
		in := hostest.SafeInspection("d1", base.Add(9*time.Hour))
		in.SafeToOperate = false
		_ = store.RecordInspection(ctx, in)

		if _, err := ledger.Transition(ctx, "d1", hosz.Driving, base.Add(10*time.Hour)); !errors.Is(err, hosz.ErrHardStopRequired) {
			t.Fatalf("expected ErrHardStopRequired, got %v", err)
		}
	})

	t.Run("Timestamp Before The Open Event", func(t *testing.T) {
		ledger, _, clock := newLedger(t)
		base := clock.Now()
		enroll(t, ledger, "d1", base)

		_, err := ledger.Transition(ctx, "d1", hosz.OnDutyNotDriving, base.Add(-time.Minute))
		if !errors.Is(err, hosz.ErrInvalidTimestamp) {
			t.Fatalf("expected ErrInvalidTimestamp, got %v", err)
		}
		var terr *hosz.TransitionError
		if errors.As(err, &terr) && !terr.OpenSince.Equal(base) {
			t.Errorf("open since = %v, want %v", terr.OpenSince, base)
		}
		if got := ledger.Metrics().Counter(hosz.LedgerRejectedTotal).Value(); got != 1 {
			t.Errorf("expected 1 rejection, got %v", got)
		}
	})

	t.Run("Same Instant Is Accepted", func(t *testing.T) {
		ledger, _, clock := newLedger(t)
		base := clock.Now()
		enroll(t, ledger, "d1", base)
		if _, err := ledger.Transition(ctx, "d1", hosz.OnDutyNotDriving, base); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
	})

	t.Run("Unknown Driver Starts A History", func(t *testing.T) {
		ledger, _, clock := newLedger(t)
		ev, err := ledger.Transition(ctx, "new", hosz.OnDutyNotDriving, clock.Now())
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		snap, _ := ledger.Snapshot(ctx, "new")
		if len(snap.Events) != 1 || snap.Events[0].ID != ev.ID {
			t.Errorf("events = %+v", snap.Events)
		}
	})

	t.Run("Rejects Bad Input", func(t *testing.T) {
		ledger, _, clock := newLedger(t)
		if _, err := ledger.Transition(ctx, " ", hosz.OffDuty, clock.Now()); !errors.Is(err, hosz.ErrDriverIDMissing) {
			t.Errorf("expected ErrDriverIDMissing, got %v", err)
		}
		if _, err := ledger.Transition(ctx, "d1", hosz.DutyStatus(42), clock.Now()); !errors.Is(err, hosz.ErrInvalidStatus) {
			t.Errorf("expected ErrInvalidStatus, got %v", err)
		}
	})

	t.Run("Failed Save Leaves History Unchanged", func(t *testing.T) {
		ledger, store, clock := newLedger(t)
		base := clock.Now()
		enroll(t, ledger, "d1", base)

		boom := errors.New("disk full")
		store.WithSaveError(boom)
		if _, err := ledger.Transition(ctx, "d1", hosz.OnDutyNotDriving, base.Add(time.Hour)); !errors.Is(err, boom) {
			t.Fatalf("expected %v, got %v", boom, err)
		}
		store.Reset()

		snap, _ := ledger.SnapshotAt(ctx, "d1", base.Add(time.Hour))
		if len(snap.Events) != 1 || !snap.Events[0].IsOpen() {
			t.Errorf("history changed: %+v", snap.Events)
		}
	})

	t.Run("TransitionNow Uses The Clock", func(t *testing.T) {
		ledger, _, clock := newLedger(t)
		enroll(t, ledger, "d1", clock.Now())
		clock.Advance(2 * time.Hour)

		ev, err := ledger.TransitionNow(ctx, "d1", hosz.SleeperBerth)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if !ev.StartTime.Equal(clock.Now()) {
			t.Errorf("start = %v, want %v", ev.StartTime, clock.Now())
		}
	})

	t.Run("Records Spans And Hooks", func(t *testing.T) {
		ledger, _, clock := newLedger(t)
		base := clock.Now()
		enroll(t, ledger, "d1", base)

		var (
			mu    sync.Mutex
			spans []tracez.Span
			moves []hosz.LedgerEvent
		)
		ledger.Tracer().OnSpanComplete(func(span tracez.Span) {
			mu.Lock()
			spans = append(spans, span)
			mu.Unlock()
		})
		_ = ledger.OnTransition(func(_ context.Context, ev hosz.LedgerEvent) error {
			mu.Lock()
			moves = append(moves, ev)
			mu.Unlock()
			return nil
		})

		if _, err := ledger.Transition(ctx, "d1", hosz.OnDutyNotDriving, base.Add(time.Hour)); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		time.Sleep(50 * time.Millisecond)

		mu.Lock()
		defer mu.Unlock()
		if len(spans) != 1 {
			t.Fatalf("expected 1 span, got %d", len(spans))
		}
		if spans[0].Name != hosz.LedgerTransitionSpan {
			t.Errorf("span name = %s", spans[0].Name)
		}
		if spans[0].Tags[hosz.LedgerTagSuccess] != "true" || spans[0].Tags[hosz.LedgerTagTarget] != "on_duty" {
			t.Errorf("span tags = %v", spans[0].Tags)
		}
		if len(moves) != 1 || moves[0].From != hosz.OffDuty || moves[0].To != hosz.OnDutyNotDriving {
			t.Errorf("transition events = %+v", moves)
		}
	})
}

func TestLedgerConcurrentTransitions(t *testing.T) {
	ctx := context.Background()
	ledger, _, clock := newLedger(t)
	base := clock.Now()
	enroll(t, ledger, "d1", base)

	var accepted, stale int64
	hostest.ParallelTest(t, 20, func(id int) {
		status := hosz.OnDutyNotDriving
		if id%2 == 0 {
			status = hosz.OffDuty
		}
		_, err := ledger.Transition(ctx, "d1", status, base.Add(time.Duration(id+1)*time.Minute))
		switch {
		case err == nil:
			atomic.AddInt64(&accepted, 1)
		case errors.Is(err, hosz.ErrInvalidTimestamp):
			atomic.AddInt64(&stale, 1)
		default:
			t.Errorf("unexpected error: %v", err)
		}
	})

	if accepted+stale != 20 || accepted == 0 {
		t.Errorf("accepted %d, stale %d", accepted, stale)
	}
	snap, err := ledger.SnapshotAt(ctx, "d1", base.Add(time.Hour))
	if err != nil {
		t.Fatalf("snapshot: %v", err)
	}
	if len(snap.Events) != int(accepted)+1 {
		t.Errorf("events = %d, want %d", len(snap.Events), accepted+1)
	}
	hostest.AssertSingleOpen(t, snap.Events)
}

func TestLedgerChaosStore(t *testing.T) {
	ctx := context.Background()
	memory := hosz.NewMemoryStore()
	chaos := hostest.NewChaosStore(memory, hostest.ChaosConfig{FailureRate: 0.4, Seed: 42})
	clock := clockz.NewFakeClock()
	ledger := hosz.NewLedger(chaos, memory).WithClock(clock)
	defer ledger.Close()

	base := clock.Now()
	if err := memory.Save(ctx, hosz.Snapshot{
		DriverID: "d1",
		Events:   hosz.History{{ID: "first", DriverID: "d1", Status: hosz.OffDuty, StartTime: base}},
	}); err != nil {
		t.Fatalf("seed: %v", err)
	}

	succeeded := 0
	for i := 1; i <= 30; i++ {
		status := hosz.OnDutyNotDriving
		if i%2 == 0 {
			status = hosz.SleeperBerth
		}
		_, err := ledger.Transition(ctx, "d1", status, base.Add(time.Duration(i)*time.Minute))
		if err == nil {
			succeeded++
			continue
		}
		if !errors.Is(err, hostest.ErrChaos) {
			t.Fatalf("unexpected error: %v", err)
		}
	}

	snap, err := memory.Load(ctx, "d1", time.Time{})
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if len(snap.Events) != succeeded+1 {
		t.Errorf("events = %d, want %d (%s)", len(snap.Events), succeeded+1, chaos.Stats())
	}
	hostest.AssertSingleOpen(t, snap.Events)
}

func TestLedgerAmend(t *testing.T) {
	ctx := context.Background()
	ledger, _, clock := newLedger(t)
	base := clock.Now()
	enroll(t, ledger, "d1", base)
	if _, err := ledger.Transition(ctx, "d1", hosz.OnDutyNotDriving, base.Add(time.Hour)); err != nil {
		t.Fatalf("transition: %v", err)
	}
	snap, _ := ledger.SnapshotAt(ctx, "d1", base.Add(time.Hour))
	closedID, openID := snap.Events[0].ID, snap.Events[1].ID

	t.Run("Closed Event", func(t *testing.T) {
		am, err := ledger.Amend(ctx, "d1", closedID, hosz.SleeperBerth, "was in the berth")
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if am.EventID != closedID || am.ID == "" {
			t.Errorf("amendment = %+v", am)
		}
		snap, _ := ledger.SnapshotAt(ctx, "d1", base.Add(time.Hour))
		if snap.Events[0].Status != hosz.OffDuty {
			t.Error("the recorded event was edited")
		}
		if snap.Effective()[0].Status != hosz.SleeperBerth {
			t.Errorf("effective status = %s", snap.Effective()[0].Status)
		}
		if got := ledger.Metrics().Counter(hosz.LedgerAmendmentsTotal).Value(); got != 1 {
			t.Errorf("expected 1 amendment, got %v", got)
		}
	})

	t.Run("Open Event", func(t *testing.T) {
		if _, err := ledger.Amend(ctx, "d1", openID, hosz.OffDuty, ""); !errors.Is(err, hosz.ErrAmendOpenEvent) {
			t.Errorf("expected ErrAmendOpenEvent, got %v", err)
		}
	})

	t.Run("Unknown Event", func(t *testing.T) {
		if _, err := ledger.Amend(ctx, "d1", "missing", hosz.OffDuty, ""); !errors.Is(err, hosz.ErrEventNotFound) {
			t.Errorf("expected ErrEventNotFound, got %v", err)
		}
	})

	t.Run("Unknown Driver", func(t *testing.T) {
		if _, err := ledger.Amend(ctx, "ghost", closedID, hosz.OffDuty, ""); !errors.Is(err, hosz.ErrDriverNotFound) {
			t.Errorf("expected ErrDriverNotFound, got %v", err)
		}
	})
}

func TestLedgerEnroll(t *testing.T) {
	ctx := context.Background()

	t.Run("Rejects Invalid Limits", func(t *testing.T) {
		ledger, _, clock := newLedger(t)
		bad := hosz.Property70Hour8Day()
		bad.MaxDrivingPerShift = 0
		if _, err := ledger.Enroll(ctx, "d1", clock.Now(), bad, hosz.DocumentState{}); !errors.Is(err, hosz.ErrInvalidLimits) {
			t.Errorf("expected ErrInvalidLimits, got %v", err)
		}
	})

	t.Run("Re-Enrolling Keeps The History", func(t *testing.T) {
		ledger, _, clock := newLedger(t)
		base := clock.Now()
		enroll(t, ledger, "d1", base)
		if _, err := ledger.Transition(ctx, "d1", hosz.OnDutyNotDriving, base.Add(time.Hour)); err != nil {
			t.Fatalf("transition: %v", err)
		}
		snap, err := ledger.Enroll(ctx, "d1", base.Add(2*time.Hour), hosz.Property60Hour7Day(), hosz.DocumentState{})
		if err != nil {
			t.Fatalf("enroll: %v", err)
		}
		if len(snap.Events) != 2 || snap.Limits.CycleDays != 7 {
			t.Errorf("snapshot = %d events, %d cycle days", len(snap.Events), snap.Limits.CycleDays)
		}
	})

	t.Run("Ledger Default Limits", func(t *testing.T) {
		ledger, _, clock := newLedger(t)
		ledger.WithLimits(hosz.Property60Hour7Day())
		snap, err := ledger.Enroll(ctx, "d1", clock.Now(), hosz.HosLimits{}, hosz.DocumentState{})
		if err != nil {
			t.Fatalf("enroll: %v", err)
		}
		if snap.Limits != hosz.Property60Hour7Day() {
			t.Errorf("limits = %+v", snap.Limits)
		}
	})
}

func TestLedgerEvaluate(t *testing.T) {
	ctx := context.Background()

	t.Run("Violation", func(t *testing.T) {
		ledger, store, clock := newLedger(t)
		base := clock.Now()
		enroll(t, ledger, "d1", base)
		_ = store.RecordInspection(ctx, hostest.SafeInspection("d1", base.Add(9*time.Hour)))
		if _, err := ledger.Transition(ctx, "d1", hosz.Driving, base.Add(10*time.Hour)); err != nil {
			t.Fatalf("transition: %v", err)
		}

		var violations int64
		_ = ledger.OnViolation(func(_ context.Context, ev hosz.LedgerEvent) error {
			if ev.Status == hosz.StatusViolation {
				atomic.AddInt64(&violations, 1)
			}
			return nil
		})

		report, err := ledger.EvaluateAt(ctx, "d1", base.Add(22*time.Hour))
		if err != nil {
			t.Fatalf("evaluate: %v", err)
		}
		if report.Status != hosz.StatusViolation {
			t.Errorf("status = %s, want violation", report.Status)
		}
		hostest.AssertIssue(t, report.Issues, hosz.RuleDriving11Hour, hosz.IssueViolation)
		hostest.AssertIssue(t, report.Issues, hosz.RuleBreak30Min, hosz.IssueViolation)
		if report.Text.Driving != "0 minutes" || report.Text.Break != "now" {
			t.Errorf("text = %+v", report.Text)
		}
		if report.HardStop {
			t.Error("inspection was recorded for this cycle")
		}
		if got := ledger.Metrics().Gauge(hosz.LedgerOpenIssues).Value(); got != float64(len(report.Issues)) {
			t.Errorf("open issues gauge = %v, want %d", got, len(report.Issues))
		}

		time.Sleep(50 * time.Millisecond)
		if atomic.LoadInt64(&violations) != 1 {
			t.Errorf("expected 1 violation event, got %d", violations)
		}
	})

	t.Run("Documents", func(t *testing.T) {
		ledger, _, clock := newLedger(t)
		enroll(t, ledger, "d1", clock.Now())
		if err := ledger.UpdateDocuments(ctx, "d1", hosz.Document{
			Kind:      hosz.MedicalCertificate,
			ExpiresAt: clock.Now().Add(25 * hosz.Day),
		}); err != nil {
			t.Fatalf("update documents: %v", err)
		}
		clock.Advance(time.Hour)

		report, err := ledger.Evaluate(ctx, "d1")
		if err != nil {
			t.Fatalf("evaluate: %v", err)
		}
		hostest.AssertIssue(t, report.Issues, hosz.RuleDocExpiry, hosz.IssueWarning)
		if report.Status != hosz.StatusWarning {
			t.Errorf("status = %s, want warning", report.Status)
		}
		if !report.HardStop {
			t.Error("no inspection recorded, expected hard stop")
		}
	})

	t.Run("Custom Rules", func(t *testing.T) {
		ledger, _, clock := newLedger(t)
		ledger.WithEvaluator(hosz.NewEvaluator(hosz.RuleFunc("always", func(hosz.Evaluation) []hosz.ComplianceIssue {
			return []hosz.ComplianceIssue{{RuleID: "always", Kind: hosz.IssueWarning, Message: "check"}}
		})))
		enroll(t, ledger, "d1", clock.Now())
		report, err := ledger.Evaluate(ctx, "d1")
		if err != nil {
			t.Fatalf("evaluate: %v", err)
		}
		if len(report.Issues) != 1 || report.Issues[0].RuleID != "always" {
			t.Errorf("issues = %v", report.Issues)
		}
	})

	t.Run("Store Failure", func(t *testing.T) {
		ledger, store, _ := newLedger(t)
		boom := errors.New("unavailable")
		store.WithLoadError(boom)
		if _, err := ledger.Evaluate(ctx, "d1"); !errors.Is(err, boom) {
			t.Errorf("expected %v, got %v", boom, err)
		}
	})
}

func TestLedgerDriverRetention(t *testing.T) {
	ctx := context.Background()
	ledger, store, clock := newLedger(t)
	base := clock.Now()

	limits := hosz.Property70Hour8Day()
	limits.CycleDays = 14
	limits.MaxCycleHours = 140 * time.Hour

	b := hostest.NewHistory("d1", base)
	for i := 0; i < 13; i++ {
		b.Add(hosz.OnDutyNotDriving, 8*time.Hour).Add(hosz.OffDuty, 16*time.Hour)
	}
	history := b.Open(hosz.OffDuty)
	if err := store.Save(ctx, hosz.Snapshot{DriverID: "d1", Events: history, Limits: limits}); err != nil {
		t.Fatalf("seed: %v", err)
	}
	now := b.Cursor().Add(time.Hour)

	t.Run("Cycle Counts The Driver's Whole Lookback", func(t *testing.T) {
		report, err := ledger.EvaluateAt(ctx, "d1", now)
		if err != nil {
			t.Fatalf("evaluate: %v", err)
		}
		want := hosz.ComputeCounters(history, now, limits).CycleWeek
		hostest.AssertDuration(t, "cycle week", report.Counters.CycleWeek, want)
		hostest.AssertDuration(t, "cycle week", report.Counters.CycleWeek, 104*time.Hour)
	})

	t.Run("Snapshot Reaches Back As Far", func(t *testing.T) {
		snap, err := ledger.SnapshotAt(ctx, "d1", now)
		if err != nil {
			t.Fatalf("snapshot: %v", err)
		}
		if len(snap.Events) != len(history) {
			t.Errorf("events = %d, want %d", len(snap.Events), len(history))
		}
		if snap.Limits != limits {
			t.Errorf("limits = %+v, want the driver's own", snap.Limits)
		}
	})
}

func TestLedgerUnknownDriver(t *testing.T) {
	ctx := context.Background()
	ledger, store, clock := newLedger(t)

	t.Run("Evaluate", func(t *testing.T) {
		if _, err := ledger.Evaluate(ctx, "ghost"); !errors.Is(err, hosz.ErrDriverNotFound) {
			t.Errorf("expected ErrDriverNotFound, got %v", err)
		}
	})

	t.Run("Snapshot", func(t *testing.T) {
		if _, err := ledger.SnapshotAt(ctx, "ghost", clock.Now()); !errors.Is(err, hosz.ErrDriverNotFound) {
			t.Errorf("expected ErrDriverNotFound, got %v", err)
		}
	})

	t.Run("UpdateDocuments Creates Nothing", func(t *testing.T) {
		err := ledger.UpdateDocuments(ctx, "ghost", hosz.Document{
			Kind:      hosz.License,
			ExpiresAt: clock.Now().Add(90 * hosz.Day),
		})
		if !errors.Is(err, hosz.ErrDriverNotFound) {
			t.Fatalf("expected ErrDriverNotFound, got %v", err)
		}
		if store.SaveCount() != 0 {
			t.Errorf("expected no saves, got %d", store.SaveCount())
		}
	})
}
