// Package hosz evaluates FMCSA Hours-of-Service compliance from a driver's
// duty-status history.
//
// # Overview
//
// A driver's history is an append-only sequence of DutyStatusEvent records,
// ordered by start time, with at most one open event: the driver's current
// status. Everything else is derived. Counters, remaining times, compliance
// issues and the inspection gate are pure functions of the history, the
// evaluation instant and the rule thresholds, so they can be recomputed on
// every render or timer tick.
//
// # Pure engine
//
//	limits := hosz.Property70Hour8Day()
//	counters := hosz.ComputeCounters(history, now, limits)
//
//	hosz.DrivingTimeRemaining(counters, limits) // 11-hour limit
//	hosz.BreakRequiredIn(counters, limits)      // 30-minute break, "now" when overdue
//	issues := hosz.EvaluateCompliance(counters, limits, documents)
//	status := hosz.OverallStatus(issues)
//
// Rules are values implementing Rule. EvaluateCompliance runs DefaultRules;
// NewEvaluator composes a custom set, and RuleFunc adapts a function:
//
//	ev := hosz.NewEvaluator(append(hosz.DefaultRules(), yardMoveRule)...)
//
// # Ledger
//
// The Ledger is the single writer of duty histories. Transition closes the
// open event and opens the next one in one Store.Save, refusing Driving when
// no safe pre-trip inspection exists for the current duty cycle (a hard
// stop, which cannot be dismissed) and refusing instants earlier than the
// open event:
//
//	ledger := hosz.NewLedger(store, store).WithClock(clockz.RealClock)
//	defer ledger.Close()
//
//	_, err := ledger.TransitionNow(ctx, "driver-1", hosz.Driving)
//	if errors.Is(err, hosz.ErrHardStopRequired) {
//	    // prompt for the inspection
//	}
//
// Corrections never edit events. Amend records an Amendment, and readers see
// the corrected status through Snapshot.Effective.
//
// # Storage
//
// MemoryStore keeps snapshots in process. The sqlite subpackage persists
// events, amendments, inspections and driver profiles to a SQLite file.
// Both implement Store, InspectionSource and InspectionRecorder.
//
// # Observability
//
// The Ledger records metrics (metricz), spans (tracez) and emits hook events
// (hookz) for accepted transitions, rejections and violations.
package hosz
