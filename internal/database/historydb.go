package database

import (
	"context"
	"database/sql"
	"encoding/hex"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"golang.org/x/crypto/sha3"
	_ "modernc.org/sqlite" // SQLite driver

	"github.com/nao1215/ipchanger/internal/audit"
)

// FileName is the database file created inside the directory given to Open.
const FileName = "history.db"

// HistoryDB is the SQLite rotation history. It implements audit.Recorder.
type HistoryDB struct {
	db     *sql.DB
	dbPath string
}

// Options configures HistoryDB behavior.
type Options struct {
	// CreateIfNotExists creates the directory and database file if missing.
	CreateIfNotExists bool

	// EnableWAL enables Write-Ahead Logging.
	EnableWAL bool
}

// DefaultOptions returns the default database options.
func DefaultOptions() Options {
	return Options{
		CreateIfNotExists: true,
		EnableWAL:         true,
	}
}

// Open opens or creates the history database in dbDir.
func Open(dbDir string, opts Options) (*HistoryDB, error) {
	dbPath := filepath.Join(dbDir, FileName)

	if !opts.CreateIfNotExists {
		if _, err := os.Stat(dbPath); errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("%w at %s", ErrNotFound, dbPath)
		} else if err != nil {
			return nil, fmt.Errorf("failed to check database path: %w", err)
		}
	} else {
		if err := os.MkdirAll(dbDir, 0750); err != nil {
			return nil, fmt.Errorf("failed to create database directory: %w", err)
		}
	}

	// mode=rw refuses to create a missing file.
	dsn := dbPath + "?mode=rw"
	if opts.CreateIfNotExists {
		dsn = dbPath + "?mode=rwc"
	}

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	db.SetMaxOpenConns(1) // SQLite only supports one writer
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(time.Hour)

	hdb := &HistoryDB{
		db:     db,
		dbPath: dbPath,
	}

	if opts.EnableWAL {
		if _, err := db.ExecContext(context.Background(), "PRAGMA journal_mode=WAL"); err != nil {
			_ = db.Close()
			return nil, fmt.Errorf("failed to enable WAL mode: %w", err)
		}
	}

	if err := hdb.createTables(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to create tables: %w", err)
	}

	return hdb, nil
}

// Close closes the database connection.
func (h *HistoryDB) Close() error {
	return h.db.Close()
}

// Path returns the database file path.
func (h *HistoryDB) Path() string {
	return h.dbPath
}

func (h *HistoryDB) createTables() error {
	schema := `
	CREATE TABLE IF NOT EXISTS rotations (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		rotation_id TEXT NOT NULL,
		old_ip TEXT NOT NULL,
		new_ip TEXT NOT NULL,
		status TEXT NOT NULL,
		attempts INTEGER NOT NULL DEFAULT 0,
		started_at TEXT NOT NULL,
		finished_at TEXT NOT NULL,
		prev_hash TEXT NOT NULL,
		hash TEXT NOT NULL UNIQUE
	);

	CREATE INDEX IF NOT EXISTS idx_rotations_rotation_id ON rotations(rotation_id);
	CREATE INDEX IF NOT EXISTS idx_rotations_new_ip ON rotations(new_ip);
	`

	_, err := h.db.ExecContext(context.Background(), schema)
	return err
}

// RotationRecord is one row of the history.
type RotationRecord struct {
	ID         int64     `json:"id"`
	RotationID string    `json:"rotation_id"`
	OldIP      string    `json:"old_ip"`
	NewIP      string    `json:"new_ip"`
	Status     string    `json:"status"`
	Attempts   int       `json:"attempts"`
	StartedAt  time.Time `json:"started_at"`
	FinishedAt time.Time `json:"finished_at"`
	PrevHash   string    `json:"prev_hash"`
	Hash       string    `json:"hash"`
}

// formatTime is the stored timestamp form. Hashes are computed over it, so
// it must not change.
func formatTime(t time.Time) string {
	return t.UTC().Format(time.RFC3339Nano)
}

// chainHash returns hex(SHA3-256(prevHash "\n" fields...)). Each field is
// written as "<len>:<value>" so no value can shift the field boundaries.
func chainHash(prevHash, rotationID, oldIP, newIP, status string, attempts int, startedAt, finishedAt string) string {
	var b strings.Builder
	b.WriteString(prevHash)
	b.WriteByte('\n')
	for _, field := range []string{
		rotationID, oldIP, newIP, status, strconv.Itoa(attempts), startedAt, finishedAt,
	} {
		b.WriteString(strconv.Itoa(len(field)))
		b.WriteByte(':')
		b.WriteString(field)
	}
	sum := sha3.Sum256([]byte(b.String()))
	return hex.EncodeToString(sum[:])
}

// InsertRotation appends record to the chain. ID, PrevHash and Hash are
// filled in on success.
func (h *HistoryDB) InsertRotation(ctx context.Context, record *RotationRecord) error {
	if record == nil {
		return ErrNilRecord
	}

	tx, err := h.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	var prevHash string
	err = tx.QueryRowContext(ctx, `SELECT hash FROM rotations ORDER BY id DESC LIMIT 1`).Scan(&prevHash)
	if err != nil && !errors.Is(err, sql.ErrNoRows) {
		return fmt.Errorf("failed to read chain head: %w", err)
	}

	startedAt := formatTime(record.StartedAt)
	finishedAt := formatTime(record.FinishedAt)
	hash := chainHash(prevHash, record.RotationID, record.OldIP, record.NewIP, record.Status, record.Attempts, startedAt, finishedAt)

	result, err := tx.ExecContext(ctx, `
	INSERT INTO rotations (rotation_id, old_ip, new_ip, status, attempts, started_at, finished_at, prev_hash, hash)
	VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, record.RotationID, record.OldIP, record.NewIP, record.Status, record.Attempts, startedAt, finishedAt, prevHash, hash)
	if err != nil {
		return fmt.Errorf("failed to insert rotation: %w", err)
	}

	id, err := result.LastInsertId()
	if err != nil {
		return fmt.Errorf("failed to get insert ID: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit rotation: %w", err)
	}

	record.ID = id
	record.PrevHash = prevHash
	record.Hash = hash
	return nil
}

// Append implements audit.Recorder.
func (h *HistoryDB) Append(ctx context.Context, rec audit.Record) error {
	return h.InsertRotation(ctx, &RotationRecord{
		RotationID: rec.RotationID,
		OldIP:      rec.OldIP,
		NewIP:      rec.NewIP,
		Status:     rec.Status,
		Attempts:   rec.Attempts,
		StartedAt:  rec.StartTime,
		FinishedAt: rec.EndTime,
	})
}

// ListRotations returns up to limit rows, newest first. A limit of zero or
// less returns every row.
func (h *HistoryDB) ListRotations(ctx context.Context, limit int) ([]RotationRecord, error) {
	query := `
	SELECT id, rotation_id, old_ip, new_ip, status, attempts, started_at, finished_at, prev_hash, hash
	FROM rotations
	ORDER BY id DESC
	`
	var args []any
	if limit > 0 {
		query += " LIMIT ?"
		args = append(args, limit)
	}

	rows, err := h.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query rotations: %w", err)
	}
	defer rows.Close()

	var records []RotationRecord
	for rows.Next() {
		var rec RotationRecord
		var startedAt, finishedAt string
		if err := rows.Scan(&rec.ID, &rec.RotationID, &rec.OldIP, &rec.NewIP, &rec.Status,
			&rec.Attempts, &startedAt, &finishedAt, &rec.PrevHash, &rec.Hash); err != nil {
			return nil, fmt.Errorf("failed to scan rotation: %w", err)
		}
		rec.StartedAt = parseTimestamp(startedAt)
		rec.FinishedAt = parseTimestamp(finishedAt)
		records = append(records, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate rotations: %w", err)
	}
	return records, nil
}

// CountByStatus returns the number of rows per status.
func (h *HistoryDB) CountByStatus(ctx context.Context) (map[string]int, error) {
	rows, err := h.db.QueryContext(ctx, `SELECT status, COUNT(*) FROM rotations GROUP BY status`)
	if err != nil {
		return nil, fmt.Errorf("failed to count rotations: %w", err)
	}
	defer rows.Close()

	counts := make(map[string]int)
	for rows.Next() {
		var status string
		var n int
		if err := rows.Scan(&status, &n); err != nil {
			return nil, fmt.Errorf("failed to scan count: %w", err)
		}
		counts[status] = n
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate counts: %w", err)
	}
	return counts, nil
}

// VerifyChain walks the history oldest first and recomputes every hash.
// It returns the number of verified rows, or an error wrapping
// ErrChainBroken that names the first bad row.
func (h *HistoryDB) VerifyChain(ctx context.Context) (int, error) {
	rows, err := h.db.QueryContext(ctx, `
	SELECT id, rotation_id, old_ip, new_ip, status, attempts, started_at, finished_at, prev_hash, hash
	FROM rotations
	ORDER BY id ASC
	`)
	if err != nil {
		return 0, fmt.Errorf("failed to query rotations: %w", err)
	}
	defer rows.Close()

	var (
		expectedPrev string
		verified     int
	)
	for rows.Next() {
		var (
			id                                   int64
			rotationID, oldIP, newIP, status     string
			attempts                             int
			startedAt, finishedAt, prevHash, sum string
		)
		if err := rows.Scan(&id, &rotationID, &oldIP, &newIP, &status, &attempts,
			&startedAt, &finishedAt, &prevHash, &sum); err != nil {
			return verified, fmt.Errorf("failed to scan rotation: %w", err)
		}

		if prevHash != expectedPrev {
			return verified, fmt.Errorf("%w: row %d does not link to its predecessor", ErrChainBroken, id)
		}
		if chainHash(prevHash, rotationID, oldIP, newIP, status, attempts, startedAt, finishedAt) != sum {
			return verified, fmt.Errorf("%w: row %d was modified", ErrChainBroken, id)
		}

		expectedPrev = sum
		verified++
	}
	if err := rows.Err(); err != nil {
		return verified, fmt.Errorf("failed to iterate rotations: %w", err)
	}
	return verified, nil
}

// timestampFormats lists the layouts parseTimestamp accepts.
var timestampFormats = []string{
	time.RFC3339Nano,
	time.RFC3339,
	"2006-01-02 15:04:05",
	"2006-01-02 15:04:05.999",
}

// parseTimestamp tries each layout in turn and returns the zero time if none
// matches.
func parseTimestamp(s string) time.Time {
	for _, format := range timestampFormats {
		if t, err := time.Parse(format, s); err == nil {
			return t
		}
	}
	return time.Time{}
}
