package rig

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	_ "modernc.org/sqlite"
)

// HistoryEntry is one recorded merge run
type HistoryEntry struct {
	ID        int64        `json:"id"`
	StartedAt time.Time    `json:"startedAt"`
	HeadAsset string       `json:"headAsset"`
	BodyAsset string       `json:"bodyAsset"`
	Succeeded bool         `json:"succeeded"`
	ExitCode  int          `json:"exitCode"`
	Error     string       `json:"error,omitempty"`
	Report    *MergeReport `json:"report"`
}

// HistoryStore keeps merge reports in a SQLite database
type HistoryStore struct {
	db *sql.DB
}

const historySchema = `CREATE TABLE IF NOT EXISTS merges (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	started_at INTEGER NOT NULL,
	head_asset TEXT NOT NULL,
	body_asset TEXT NOT NULL,
	succeeded INTEGER NOT NULL,
	exit_code INTEGER NOT NULL,
	error TEXT NOT NULL DEFAULT '',
	report_json BLOB NOT NULL
)`

// OpenHistory opens or creates the history database at path
func OpenHistory(path string) (*HistoryStore, error) {
	if strings.TrimSpace(path) == "" {
		return nil, fmt.Errorf("history path is required")
	}

	cleanPath := filepath.Clean(path)
	if err := os.MkdirAll(filepath.Dir(cleanPath), 0755); err != nil {
		return nil, fmt.Errorf("creating history directory: %w", err)
	}

	dsn := cleanPath + "?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)"
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite db: %w", err)
	}
	if err := db.Ping(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping sqlite db: %w", err)
	}
	if _, err := db.Exec(historySchema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("create history schema: %w", err)
	}
	return &HistoryStore{db: db}, nil
}

// Close releases the database
func (h *HistoryStore) Close() error {
	if h == nil || h.db == nil {
		return nil
	}
	return h.db.Close()
}

// Record stores a report and returns its row id
func (h *HistoryStore) Record(ctx context.Context, report *MergeReport) (int64, error) {
	if h == nil || h.db == nil {
		return 0, fmt.Errorf("history is not configured")
	}
	if report == nil {
		return 0, fmt.Errorf("report is required")
	}

	payload, err := json.Marshal(report)
	if err != nil {
		return 0, fmt.Errorf("marshal report: %w", err)
	}

	succeeded := 0
	if report.Succeeded() {
		succeeded = 1
	}
	res, err := h.db.ExecContext(ctx,
		`INSERT INTO merges (started_at, head_asset, body_asset, succeeded, exit_code, error, report_json)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`,
		report.StartedAt.UnixMilli(), report.HeadAsset, report.BodyAsset,
		succeeded, report.ExitCode, report.Error, payload,
	)
	if err != nil {
		return 0, fmt.Errorf("insert merge: %w", err)
	}
	return res.LastInsertId()
}

// Recent returns up to limit entries, newest first
func (h *HistoryStore) Recent(ctx context.Context, limit int) ([]HistoryEntry, error) {
	if h == nil || h.db == nil {
		return nil, fmt.Errorf("history is not configured")
	}
	if limit <= 0 {
		limit = 20
	}

	rows, err := h.db.QueryContext(ctx,
		`SELECT id, started_at, head_asset, body_asset, succeeded, exit_code, error, report_json
		 FROM merges
		 ORDER BY started_at DESC, id DESC
		 LIMIT ?`,
		limit,
	)
	if err != nil {
		return nil, fmt.Errorf("query merges: %w", err)
	}
	defer rows.Close()

	var entries []HistoryEntry
	for rows.Next() {
		var e HistoryEntry
		var startedAt int64
		var succeeded int64
		var payload []byte
		if err := rows.Scan(&e.ID, &startedAt, &e.HeadAsset, &e.BodyAsset, &succeeded, &e.ExitCode, &e.Error, &payload); err != nil {
			return nil, fmt.Errorf("scan merge: %w", err)
		}
		e.StartedAt = time.UnixMilli(startedAt)
		e.Succeeded = succeeded != 0
		var report MergeReport
		if err := json.Unmarshal(payload, &report); err != nil {
			return nil, fmt.Errorf("decode report %d: %w", e.ID, err)
		}
		e.Report = &report
		entries = append(entries, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate merges: %w", err)
	}
	return entries, nil
}
