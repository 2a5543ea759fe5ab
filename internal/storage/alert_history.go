package storage

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "github.com/mattn/go-sqlite3"
	"go.uber.org/zap"

	"github.com/t77yq/hostwatch/internal/model"
)

// AlertEvent is one recorded alert transition. The core holds its state in
// memory; this history exists for the operator's status view and for
// post-incident digging, not for correctness.
type AlertEvent struct {
	ID         string             `json:"id"`
	Probe      model.ProbeID      `json:"probe"`
	Condition  model.ConditionKey `json:"condition"`
	Transition model.Transition   `json:"transition"`
	Value      float64            `json:"value"`
	Message    string             `json:"message,omitempty"`
	CreatedAt  time.Time          `json:"created_at"`
}

// AlertHistory is the interface for alert event persistence.
type AlertHistory interface {
	// Store records one transition.
	Store(ctx context.Context, event *AlertEvent) error

	// List retrieves recent events, newest first.
	List(ctx context.Context, probe model.ProbeID, offset, limit int) ([]*AlertEvent, error)

	// DeleteBefore drops events older than the given time.
	DeleteBefore(ctx context.Context, before time.Time) error
}

// SQLiteAlertHistory implements AlertHistory on a local SQLite file.
type SQLiteAlertHistory struct {
	logger *zap.Logger
	db     *sql.DB
}

// NewSQLiteAlertHistory opens (or creates) the history database.
func NewSQLiteAlertHistory(logger *zap.Logger, dbPath string) (*SQLiteAlertHistory, error) {
	db, err := sql.Open("sqlite3", dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	storage := &SQLiteAlertHistory{
		logger: logger.Named("alert-history"),
		db:     db,
	}

	if err := storage.initialize(); err != nil {
		db.Close()
		return nil, err
	}

	return storage, nil
}

func (s *SQLiteAlertHistory) initialize() error {
	_, err := s.db.Exec(`
		CREATE TABLE IF NOT EXISTS alert_history (
			id TEXT PRIMARY KEY,
			probe TEXT NOT NULL,
			condition TEXT NOT NULL,
			transition TEXT NOT NULL,
			value REAL NOT NULL,
			message TEXT,
			created_at DATETIME NOT NULL
		);
		CREATE INDEX IF NOT EXISTS idx_alert_history_probe ON alert_history(probe);
		CREATE INDEX IF NOT EXISTS idx_alert_history_created_at ON alert_history(created_at);
	`)
	if err != nil {
		return fmt.Errorf("failed to initialize database: %w", err)
	}
	return nil
}

// Store implements AlertHistory.Store
func (s *SQLiteAlertHistory) Store(ctx context.Context, event *AlertEvent) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO alert_history (
			id, probe, condition, transition, value, message, created_at
		) VALUES (?, ?, ?, ?, ?, ?, ?)`,
		event.ID,
		string(event.Probe),
		string(event.Condition),
		string(event.Transition),
		event.Value,
		sql.NullString{String: event.Message, Valid: event.Message != ""},
		event.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to store alert event: %w", err)
	}
	return nil
}

// List implements AlertHistory.List. An empty probe lists all probes.
func (s *SQLiteAlertHistory) List(ctx context.Context, probe model.ProbeID, offset, limit int) ([]*AlertEvent, error) {
	query := "SELECT id, probe, condition, transition, value, message, created_at FROM alert_history"
	args := make([]interface{}, 0)

	if probe != "" {
		query += " WHERE probe = ?"
		args = append(args, string(probe))
	}

	query += " ORDER BY created_at DESC LIMIT ? OFFSET ?"
	args = append(args, limit, offset)

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list alert history: %w", err)
	}
	defer rows.Close()

	var events []*AlertEvent
	for rows.Next() {
		event := &AlertEvent{}
		var message sql.NullString

		err := rows.Scan(
			&event.ID,
			&event.Probe,
			&event.Condition,
			&event.Transition,
			&event.Value,
			&message,
			&event.CreatedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan alert event: %w", err)
		}
		if message.Valid {
			event.Message = message.String
		}

		events = append(events, event)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error during row iteration: %w", err)
	}

	return events, nil
}

// DeleteBefore implements AlertHistory.DeleteBefore
func (s *SQLiteAlertHistory) DeleteBefore(ctx context.Context, before time.Time) error {
	result, err := s.db.ExecContext(ctx, "DELETE FROM alert_history WHERE created_at < ?", before)
	if err != nil {
		return fmt.Errorf("failed to delete alert history: %w", err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get affected rows: %w", err)
	}

	s.logger.Info("Deleted old alert history records",
		zap.Time("before", before),
		zap.Int64("deleted", affected))

	return nil
}

// Close closes the database connection.
func (s *SQLiteAlertHistory) Close() error {
	return s.db.Close()
}
