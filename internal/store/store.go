// Package store archives processing outcomes in SQLite. The archive is
// diagnostic only: nothing in the message path ever reads it back.
package store

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"carescribe/internal/domain"

	_ "modernc.org/sqlite"
)

// SQLiteStore implements domain.RecordStore.
type SQLiteStore struct {
	db     *sql.DB
	logger *slog.Logger
}

func NewSQLiteStore(dbPath string, logger *slog.Logger) (*SQLiteStore, error) {
	dir := filepath.Dir(dbPath)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("cannot create database directory %s: %w", dir, err)
	}

	db, err := sql.Open("sqlite", dbPath+"?_journal_mode=WAL&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("cannot open database: %w", err)
	}

	// Single connection: SQLite serializes writers anyway.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	s := &SQLiteStore{db: db, logger: logger}

	if err := s.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("database migration failed: %w", err)
	}

	return s, nil
}

func (s *SQLiteStore) migrate() error {
	schema := `
	CREATE TABLE IF NOT EXISTS processing_records (
		id             TEXT PRIMARY KEY,
		sender         TEXT,
		kind           TEXT NOT NULL,
		media_id       TEXT,
		mime_type      TEXT,
		file_type      TEXT,
		status         TEXT NOT NULL,
		detail         TEXT,
		transcript_len INTEGER DEFAULT 0,
		report         TEXT,
		created_at     DATETIME DEFAULT CURRENT_TIMESTAMP
	);
	CREATE INDEX IF NOT EXISTS idx_records_time ON processing_records(created_at);
	CREATE INDEX IF NOT EXISTS idx_records_sender ON processing_records(sender, created_at);
	`

	_, err := s.db.Exec(schema)
	return err
}

func (s *SQLiteStore) SaveRecord(ctx context.Context, rec domain.ProcessingRecord) error {
	if rec.CreatedAt.IsZero() {
		rec.CreatedAt = time.Now()
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO processing_records
		 (id, sender, kind, media_id, mime_type, file_type, status, detail, transcript_len, report, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		rec.ID, rec.From, rec.Kind, rec.MediaID, rec.MimeType, rec.FileType,
		rec.Status, rec.Detail, rec.TranscriptLen, rec.Report, rec.CreatedAt,
	)
	return err
}

func (s *SQLiteStore) Recent(ctx context.Context, limit int) ([]domain.ProcessingRecord, error) {
	if limit <= 0 {
		limit = 20
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, sender, kind, media_id, mime_type, file_type, status, detail, transcript_len, report, created_at
		 FROM processing_records ORDER BY created_at DESC LIMIT ?`, limit,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var recs []domain.ProcessingRecord
	for rows.Next() {
		var r domain.ProcessingRecord
		var mediaID, mimeType, fileType, detail, report sql.NullString
		if err := rows.Scan(&r.ID, &r.From, &r.Kind, &mediaID, &mimeType, &fileType,
			&r.Status, &detail, &r.TranscriptLen, &report, &r.CreatedAt); err != nil {
			return nil, err
		}
		r.MediaID = mediaID.String
		r.MimeType = mimeType.String
		r.FileType = fileType.String
		r.Detail = detail.String
		r.Report = report.String
		recs = append(recs, r)
	}
	return recs, rows.Err()
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}
