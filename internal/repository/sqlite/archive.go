package sqlite

import (
	"context"
	"database/sql"
	"time"

	_ "modernc.org/sqlite"

	"github.com/vibhukrishnas/sams-core/internal/domain/alert"
	"github.com/vibhukrishnas/sams-core/internal/pkg/errors"
)

// Archive persists resolved alerts and escalation history for reporting.
// The live alert store stays in memory; only terminal alerts land here.
type Archive struct {
	db *sql.DB
}

// Open creates (or opens) the archive database at path and applies the
// schema. Use ":memory:" for tests.
func Open(path string) (*Archive, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, errors.DatabaseError("Failed to open alert archive", err)
	}
	if err := migrate(db); err != nil {
		_ = db.Close()
		return nil, err
	}
	return &Archive{db: db}, nil
}

func migrate(db *sql.DB) error {
	schema := `
	CREATE TABLE IF NOT EXISTS resolved_alerts (
		id TEXT PRIMARY KEY,
		rule_id TEXT NOT NULL,
		target_id TEXT NOT NULL,
		severity TEXT NOT NULL,
		message TEXT,
		metric_value REAL,
		escalation_level INTEGER NOT NULL DEFAULT 0,
		correlation_id TEXT,
		created_at TEXT NOT NULL,
		resolved_at TEXT NOT NULL,
		resolved_by TEXT,
		resolution_note TEXT
	);

	CREATE TABLE IF NOT EXISTS escalation_history (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		alert_id TEXT NOT NULL,
		level INTEGER NOT NULL,
		severity TEXT NOT NULL,
		escalated_at TEXT NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_resolved_alerts_target ON resolved_alerts(target_id);
	CREATE INDEX IF NOT EXISTS idx_escalation_history_alert ON escalation_history(alert_id);
	`
	if _, err := db.Exec(schema); err != nil {
		return errors.DatabaseError("Failed to migrate alert archive", err)
	}
	return nil
}

// Close closes the underlying database.
func (a *Archive) Close() error {
	return a.db.Close()
}

// StoreResolved archives a terminal alert.
func (a *Archive) StoreResolved(ctx context.Context, al *alert.Alert) error {
	if al.ResolvedAt == nil {
		return errors.Conflict("alert is not resolved")
	}
	query := `
		INSERT OR REPLACE INTO resolved_alerts
		(id, rule_id, target_id, severity, message, metric_value, escalation_level, correlation_id, created_at, resolved_at, resolved_by, resolution_note)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`
	_, err := a.db.ExecContext(ctx, query,
		al.ID, al.RuleID, al.TargetID, al.Severity, al.Message, al.MetricValue,
		al.EscalationLevel, al.CorrelationID,
		al.CreatedAt.Format(time.RFC3339Nano), al.ResolvedAt.Format(time.RFC3339Nano),
		al.ResolvedBy, al.ResolutionNote,
	)
	if err != nil {
		return errors.DatabaseError("Failed to archive alert", err)
	}
	return nil
}

// StoreEscalation appends one escalation advance to the history.
func (a *Archive) StoreEscalation(ctx context.Context, alertID string, level int, severity string, at time.Time) error {
	_, err := a.db.ExecContext(ctx,
		"INSERT INTO escalation_history (alert_id, level, severity, escalated_at) VALUES (?, ?, ?, ?)",
		alertID, level, severity, at.Format(time.RFC3339Nano),
	)
	if err != nil {
		return errors.DatabaseError("Failed to record escalation", err)
	}
	return nil
}

// ResolvedSince lists archived alerts resolved at or after the cutoff.
func (a *Archive) ResolvedSince(ctx context.Context, cutoff time.Time) ([]*alert.Alert, error) {
	query := `
		SELECT id, rule_id, target_id, severity, message, metric_value, escalation_level, correlation_id, created_at, resolved_at, resolved_by, resolution_note
		FROM resolved_alerts WHERE resolved_at >= ? ORDER BY resolved_at DESC
	`
	rows, err := a.db.QueryContext(ctx, query, cutoff.Format(time.RFC3339Nano))
	if err != nil {
		return nil, errors.DatabaseError("Failed to query archive", err)
	}
	defer rows.Close()

	var out []*alert.Alert
	for rows.Next() {
		var al alert.Alert
		var createdAt, resolvedAt string
		var correlationID sql.NullString
		if err := rows.Scan(
			&al.ID, &al.RuleID, &al.TargetID, &al.Severity, &al.Message, &al.MetricValue,
			&al.EscalationLevel, &correlationID, &createdAt, &resolvedAt, &al.ResolvedBy, &al.ResolutionNote,
		); err != nil {
			return nil, errors.DatabaseError("Failed to scan archived alert", err)
		}
		al.State = alert.StateResolved
		al.CorrelationID = correlationID.String
		al.CreatedAt, _ = time.Parse(time.RFC3339Nano, createdAt)
		if t, err := time.Parse(time.RFC3339Nano, resolvedAt); err == nil {
			al.ResolvedAt = &t
		}
		out = append(out, &al)
	}
	return out, rows.Err()
}
