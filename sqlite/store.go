// Package sqlite persists hosz duty histories, amendments, inspections and
// driver profiles to a SQLite database.
package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/zoobzio/hosz"
	"github.com/zoobzio/hosz/sqlite/migrations"
	_ "modernc.org/sqlite"
)

// Store is a SQLite-backed hosz.Store, hosz.InspectionSource and
// hosz.InspectionRecorder. Duty events are upserted by id and never deleted.
type Store struct {
	db *sql.DB
}

// profile is the static per-driver data stored as one msgpack blob.
type profile struct {
	Documents hosz.DocumentState `msgpack:"documents"`
	Limits    hosz.HosLimits     `msgpack:"limits"`
}

// Open opens the database at path, creating it if needed, and applies
// migrations. Use ":memory:" for a private in-memory database.
func Open(path string) (*Store, error) {
	if strings.TrimSpace(path) == "" {
		return nil, fmt.Errorf("storage path is required")
	}
	dsn := ":memory:"
	if path != ":memory:" {
		dsn = filepath.Clean(path) + "?_pragma=journal_mode(WAL)&_pragma=foreign_keys(1)&_pragma=busy_timeout(5000)&_pragma=synchronous(NORMAL)"
	}
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite db: %w", err)
	}
	if path == ":memory:" {
		// Each connection to :memory: is a separate database.
		db.SetMaxOpenConns(1)
	}
	if err := db.Ping(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping sqlite db: %w", err)
	}
	if err := applyMigrations(context.Background(), db, migrations.FS); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("run migrations: %w", err)
	}
	return &Store{db: db}, nil
}

// Close releases the database.
func (s *Store) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

// Load implements hosz.Store.
func (s *Store) Load(ctx context.Context, driverID string, since time.Time) (hosz.Snapshot, error) {
	if err := ctx.Err(); err != nil {
		return hosz.Snapshot{}, err
	}

	snap := hosz.Snapshot{DriverID: driverID}
	var (
		blob      []byte
		updatedAt int64
	)
	err := s.db.QueryRowContext(ctx,
		`SELECT profile, version, updated_at FROM driver_profiles WHERE driver_id = ?`, driverID,
	).Scan(&blob, &snap.Version, &updatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return hosz.Snapshot{}, fmt.Errorf("%w: %s", hosz.ErrDriverNotFound, driverID)
	}
	if err != nil {
		return hosz.Snapshot{}, fmt.Errorf("load profile: %w", err)
	}
	p, err := hosz.Decode[profile](blob)
	if err != nil {
		return hosz.Snapshot{}, fmt.Errorf("decode profile: %w", err)
	}
	snap.Limits = p.Limits
	snap.Documents = p.Documents
	snap.UpdatedAt = fromMillis(updatedAt)

	if snap.Events, err = s.events(ctx, driverID, since); err != nil {
		return hosz.Snapshot{}, err
	}
	if snap.Amendments, err = s.amendments(ctx, driverID); err != nil {
		return hosz.Snapshot{}, err
	}
	return snap, nil
}

func (s *Store) events(ctx context.Context, driverID string, since time.Time) (hosz.History, error) {
	rows, err := s.db.QueryContext(ctx, `
SELECT id, status, start_time, end_time
FROM duty_events
WHERE driver_id = ? AND (end_time IS NULL OR end_time >= ?)
ORDER BY start_time, rowid`, driverID, toMillis(since))
	if err != nil {
		return nil, fmt.Errorf("query duty events: %w", err)
	}
	defer rows.Close()

	history := hosz.History{}
	for rows.Next() {
		var (
			ev     hosz.DutyStatusEvent
			status string
			start  int64
			end    sql.NullInt64
		)
		if err := rows.Scan(&ev.ID, &status, &start, &end); err != nil {
			return nil, fmt.Errorf("scan duty event: %w", err)
		}
		if ev.Status, err = hosz.ParseDutyStatus(status); err != nil {
			return nil, fmt.Errorf("duty event %s: %w", ev.ID, err)
		}
		ev.DriverID = driverID
		ev.StartTime = fromMillis(start)
		if end.Valid {
			t := fromMillis(end.Int64)
			ev.EndTime = &t
		}
		history = append(history, ev)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate duty events: %w", err)
	}
	return history, nil
}

func (s *Store) amendments(ctx context.Context, driverID string) ([]hosz.Amendment, error) {
	rows, err := s.db.QueryContext(ctx, `
SELECT id, event_id, status, note, recorded_at
FROM amendments
WHERE driver_id = ?
ORDER BY recorded_at, rowid`, driverID)
	if err != nil {
		return nil, fmt.Errorf("query amendments: %w", err)
	}
	defer rows.Close()

	var out []hosz.Amendment
	for rows.Next() {
		var (
			a        hosz.Amendment
			status   string
			recorded int64
		)
		if err := rows.Scan(&a.ID, &a.EventID, &status, &a.Note, &recorded); err != nil {
			return nil, fmt.Errorf("scan amendment: %w", err)
		}
		if a.Status, err = hosz.ParseDutyStatus(status); err != nil {
			return nil, fmt.Errorf("amendment %s: %w", a.ID, err)
		}
		a.RecordedAt = fromMillis(recorded)
		out = append(out, a)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate amendments: %w", err)
	}
	return out, nil
}

// Save implements hosz.Store. The profile, events and amendments are written
// in one transaction.
func (s *Store) Save(ctx context.Context, snap hosz.Snapshot) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if strings.TrimSpace(snap.DriverID) == "" {
		return hosz.ErrDriverIDMissing
	}
	if err := snap.Events.Validate(); err != nil {
		return fmt.Errorf("save driver %s: %w", snap.DriverID, err)
	}
	blob, err := hosz.Encode(profile{Limits: snap.Limits, Documents: snap.Documents})
	if err != nil {
		return fmt.Errorf("encode profile: %w", err)
	}
	updatedAt := snap.UpdatedAt
	if updatedAt.IsZero() {
		updatedAt = time.Now()
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin save: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.ExecContext(ctx, `
INSERT INTO driver_profiles (driver_id, profile, version, updated_at)
VALUES (?, ?, 1, ?)
ON CONFLICT (driver_id) DO UPDATE SET
    profile = excluded.profile,
    version = driver_profiles.version + 1,
    updated_at = excluded.updated_at`,
		snap.DriverID, blob, toMillis(updatedAt),
	); err != nil {
		return fmt.Errorf("upsert profile: %w", err)
	}

	for _, ev := range snap.Events {
		var end any
		if ev.EndTime != nil {
			end = toMillis(*ev.EndTime)
		}
		if _, err := tx.ExecContext(ctx, `
INSERT INTO duty_events (id, driver_id, status, start_time, end_time)
VALUES (?, ?, ?, ?, ?)
ON CONFLICT (id) DO UPDATE SET
    status = excluded.status,
    start_time = excluded.start_time,
    end_time = excluded.end_time`,
			ev.ID, snap.DriverID, ev.Status.String(), toMillis(ev.StartTime), end,
		); err != nil {
			return fmt.Errorf("upsert duty event %s: %w", ev.ID, err)
		}
	}

	for _, a := range snap.Amendments {
		if _, err := tx.ExecContext(ctx, `
INSERT OR IGNORE INTO amendments (id, driver_id, event_id, status, note, recorded_at)
VALUES (?, ?, ?, ?, ?, ?)`,
			a.ID, snap.DriverID, a.EventID, a.Status.String(), a.Note, toMillis(a.RecordedAt),
		); err != nil {
			return fmt.Errorf("insert amendment %s: %w", a.ID, err)
		}
	}

	var open int
	if err := tx.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM duty_events WHERE driver_id = ? AND end_time IS NULL`, snap.DriverID,
	).Scan(&open); err != nil {
		return fmt.Errorf("count open events: %w", err)
	}
	if open > 1 {
		return fmt.Errorf("save driver %s: %w", snap.DriverID, &hosz.HistoryError{
			DriverID: snap.DriverID,
			Index:    len(snap.Events) - 1,
			Reason:   fmt.Sprintf("%d open events", open),
		})
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit save: %w", err)
	}
	return nil
}

// Inspections implements hosz.InspectionSource.
func (s *Store) Inspections(ctx context.Context, driverID string, since time.Time) ([]hosz.PreTripInspection, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	rows, err := s.db.QueryContext(ctx, `
SELECT id, vehicle_id, completed_at, safe_to_operate, defects
FROM inspections
WHERE driver_id = ? AND completed_at >= ?
ORDER BY completed_at, rowid`, driverID, toMillis(since))
	if err != nil {
		return nil, fmt.Errorf("query inspections: %w", err)
	}
	defer rows.Close()

	var out []hosz.PreTripInspection
	for rows.Next() {
		var (
			in        hosz.PreTripInspection
			completed int64
			safe      int
			defects   []byte
		)
		if err := rows.Scan(&in.ID, &in.VehicleID, &completed, &safe, &defects); err != nil {
			return nil, fmt.Errorf("scan inspection: %w", err)
		}
		in.DriverID = driverID
		in.CompletedAt = fromMillis(completed)
		in.SafeToOperate = safe != 0
		if len(defects) > 0 {
			if in.Defects, err = hosz.Decode[[]string](defects); err != nil {
				return nil, fmt.Errorf("decode defects of %s: %w", in.ID, err)
			}
		}
		out = append(out, in)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate inspections: %w", err)
	}
	return out, nil
}

// RecordInspection implements hosz.InspectionRecorder.
func (s *Store) RecordInspection(ctx context.Context, in hosz.PreTripInspection) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	in.ID = strings.TrimSpace(in.ID)
	if in.ID == "" {
		return fmt.Errorf("inspection id is required")
	}
	if strings.TrimSpace(in.DriverID) == "" {
		return hosz.ErrDriverIDMissing
	}
	if in.CompletedAt.IsZero() {
		return fmt.Errorf("inspection completion time is required")
	}

	var defects []byte
	if len(in.Defects) > 0 {
		var err error
		if defects, err = hosz.Encode(in.Defects); err != nil {
			return fmt.Errorf("encode defects: %w", err)
		}
	}
	safe := 0
	if in.SafeToOperate {
		safe = 1
	}
	if _, err := s.db.ExecContext(ctx, `
INSERT INTO inspections (id, driver_id, vehicle_id, completed_at, safe_to_operate, defects)
VALUES (?, ?, ?, ?, ?, ?)`,
		in.ID, in.DriverID, in.VehicleID, toMillis(in.CompletedAt), safe, defects,
	); err != nil {
		return fmt.Errorf("insert inspection: %w", err)
	}
	return nil
}

func toMillis(t time.Time) int64 {
	if t.IsZero() {
		return 0
	}
	return t.UTC().UnixMilli()
}

func fromMillis(ms int64) time.Time {
	return time.UnixMilli(ms).UTC()
}
