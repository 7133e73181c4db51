package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"

	"github.com/roach88/bgproces/internal/ir"
)

// ErrEmptyExport is returned when appending an empty document.
var ErrEmptyExport = errors.New("export is empty")

// ExportRecord is one journaled export.
type ExportRecord struct {
	Seq         int64
	SessionID   string
	Fingerprint string
	Document    string
}

// SessionSummary describes the journal of one session.
type SessionSummary struct {
	ID        string
	Exports   int
	LatestSeq int64
}

// AppendExport journals an export of a session and returns its seq.
// Appending an export the session already journaled is a no-op that
// returns the existing seq.
func (s *Store) AppendExport(ctx context.Context, sessionID, export string) (int64, error) {
	if sessionID == "" {
		return 0, fmt.Errorf("append export: session id is required")
	}
	if export == "" {
		return 0, fmt.Errorf("append export: %w", ErrEmptyExport)
	}
	fingerprint := ir.Fingerprint(export)

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("append export: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `
		INSERT INTO sessions (id) VALUES (?)
		ON CONFLICT(id) DO NOTHING
	`, sessionID); err != nil {
		return 0, fmt.Errorf("append export: insert session: %w", err)
	}

	if _, err := tx.ExecContext(ctx, `
		INSERT INTO exports (session_id, fingerprint, document)
		VALUES (?, ?, ?)
		ON CONFLICT(session_id, fingerprint) DO NOTHING
	`, sessionID, fingerprint, export); err != nil {
		return 0, fmt.Errorf("append export: insert export: %w", err)
	}

	var seq int64
	if err := tx.QueryRowContext(ctx, `
		SELECT seq FROM exports WHERE session_id = ? AND fingerprint = ?
	`, sessionID, fingerprint).Scan(&seq); err != nil {
		return 0, fmt.Errorf("append export: read seq: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("append export: commit: %w", err)
	}
	return seq, nil
}

// History returns the exports of a session in journal order.
// Returns an empty slice (not nil) for an unknown session.
func (s *Store) History(ctx context.Context, sessionID string) ([]ExportRecord, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT seq, session_id, fingerprint, document
		FROM exports
		WHERE session_id = ?
		ORDER BY seq ASC
	`, sessionID)
	if err != nil {
		return nil, fmt.Errorf("query history: %w", err)
	}
	return scanRecords(rows)
}

// Latest returns the most recent export of a session. ok is false when
// the session has none.
func (s *Store) Latest(ctx context.Context, sessionID string) (rec ExportRecord, ok bool, err error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT seq, session_id, fingerprint, document
		FROM exports
		WHERE session_id = ?
		ORDER BY seq DESC
		LIMIT 1
	`, sessionID)
	rec, err = scanRecord(row)
	if errors.Is(err, sql.ErrNoRows) {
		return ExportRecord{}, false, nil
	}
	if err != nil {
		return ExportRecord{}, false, fmt.Errorf("query latest: %w", err)
	}
	return rec, true, nil
}

// FindByFingerprint returns every journaled export with the given
// fingerprint, across sessions.
func (s *Store) FindByFingerprint(ctx context.Context, fingerprint string) ([]ExportRecord, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT seq, session_id, fingerprint, document
		FROM exports
		WHERE fingerprint = ?
		ORDER BY seq ASC
	`, fingerprint)
	if err != nil {
		return nil, fmt.Errorf("query fingerprint: %w", err)
	}
	return scanRecords(rows)
}

// Sessions summarises every journaled session, ordered by id.
func (s *Store) Sessions(ctx context.Context) ([]SessionSummary, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT s.id, COUNT(e.seq), COALESCE(MAX(e.seq), 0)
		FROM sessions s
		LEFT JOIN exports e ON e.session_id = s.id
		GROUP BY s.id
		ORDER BY s.id COLLATE BINARY ASC
	`)
	if err != nil {
		return nil, fmt.Errorf("query sessions: %w", err)
	}
	defer rows.Close()

	out := []SessionSummary{}
	for rows.Next() {
		var sum SessionSummary
		if err := rows.Scan(&sum.ID, &sum.Exports, &sum.LatestSeq); err != nil {
			return nil, fmt.Errorf("scan session: %w", err)
		}
		out = append(out, sum)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate sessions: %w", err)
	}
	return out, nil
}

type scanner interface {
	Scan(dest ...any) error
}

func scanRecord(row scanner) (ExportRecord, error) {
	var rec ExportRecord
	err := row.Scan(&rec.Seq, &rec.SessionID, &rec.Fingerprint, &rec.Document)
	return rec, err
}

func scanRecords(rows *sql.Rows) ([]ExportRecord, error) {
	defer rows.Close()

	out := []ExportRecord{}
	for rows.Next() {
		rec, err := scanRecord(rows)
		if err != nil {
			return nil, fmt.Errorf("scan export: %w", err)
		}
		out = append(out, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate exports: %w", err)
	}
	return out, nil
}

// Recorder returns a function that journals every export it is called
// with under sessionID. It matches the session change-listener signature.
// Append failures are logged, not returned. A nil logger means the
// store's own.
func (s *Store) Recorder(ctx context.Context, sessionID string, logger *slog.Logger) func(export string) {
	if logger == nil {
		logger = s.logger
	}
	return func(export string) {
		seq, err := s.AppendExport(ctx, sessionID, export)
		if err != nil {
			logger.Error("journal export failed", "session", sessionID, "error", err)
			return
		}
		logger.Debug("export journaled", "session", sessionID, "seq", seq)
	}
}
