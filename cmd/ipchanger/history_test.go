package main

import (
	"bytes"
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/nao1215/ipchanger/internal/audit"
	"github.com/nao1215/ipchanger/internal/database"
	"github.com/nao1215/ipchanger/internal/report"
)

// seedHistory creates a history database in dir with n rotations.
func seedHistory(t *testing.T, dir string, n int) {
	t.Helper()

	db, err := database.Open(dir, database.DefaultOptions())
	if err != nil {
		t.Fatalf("Open() error = %v", err)
	}
	defer db.Close()

	start := time.Date(2026, 10, 1, 12, 0, 0, 0, time.UTC)
	for i := range n {
		status := "rotated"
		newIP := "10.0.0." + string(rune('1'+i))
		if i%2 == 1 {
			status = "exhausted"
			newIP = ""
		}
		rec := audit.Record{
			RotationID: "rotation-" + string(rune('a'+i)),
			OldIP:      "192.0.2.1",
			NewIP:      newIP,
			StartTime:  start.Add(time.Duration(i) * time.Minute),
			EndTime:    start.Add(time.Duration(i)*time.Minute + 5*time.Second),
			Status:     status,
			Attempts:   1 + i,
		}
		if err := db.Append(context.Background(), rec); err != nil {
			t.Fatalf("Append() error = %v", err)
		}
	}
}

func openSeeded(t *testing.T, dir string) *database.HistoryDB {
	t.Helper()
	db, err := database.Open(dir, database.Options{})
	if err != nil {
		t.Fatalf("Open() error = %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })
	return db
}

func TestShowHistory(t *testing.T) {
	t.Parallel()

	t.Run("lists rotations and counts", func(t *testing.T) {
		t.Parallel()
		dir := t.TempDir()
		seedHistory(t, dir, 3)
		db := openSeeded(t, dir)

		var out, status bytes.Buffer
		writer, err := report.NewWriter(report.FormatText, &out)
		if err != nil {
			t.Fatalf("NewWriter() error = %v", err)
		}
		if err := showHistory(context.Background(), writer, &status, db, 0, true); err != nil {
			t.Fatalf("showHistory() error = %v", err)
		}

		got := out.String()
		for _, want := range []string{"ROTATION HISTORY", "verified (3 rows)", "10.0.0.1", "10.0.0.3"} {
			if !strings.Contains(got, want) {
				t.Errorf("output missing %q:\n%s", want, got)
			}
		}
		if status.Len() != 0 {
			t.Errorf("status = %q, want nothing", status.String())
		}
	})

	t.Run("limit keeps the newest rows", func(t *testing.T) {
		t.Parallel()
		dir := t.TempDir()
		seedHistory(t, dir, 3)
		db := openSeeded(t, dir)

		var out bytes.Buffer
		writer, err := report.NewWriter(report.FormatJSON, &out)
		if err != nil {
			t.Fatalf("NewWriter() error = %v", err)
		}
		if err := showHistory(context.Background(), writer, &bytes.Buffer{}, db, 1, false); err != nil {
			t.Fatalf("showHistory() error = %v", err)
		}

		var history report.History
		if err := json.Unmarshal(out.Bytes(), &history); err != nil {
			t.Fatalf("output is not JSON: %v\n%s", err, out.String())
		}
		if len(history.Rotations) != 1 || history.Rotations[0].RotationID != "rotation-c" {
			t.Errorf("rotations = %+v, want only rotation-c", history.Rotations)
		}
		if history.Counts["rotated"] != 2 || history.Counts["exhausted"] != 1 {
			t.Errorf("counts = %v", history.Counts)
		}
		if history.Verified != nil {
			t.Error("Verified set without --verify")
		}
	})

	t.Run("tampered row fails verification", func(t *testing.T) {
		t.Parallel()
		dir := t.TempDir()
		seedHistory(t, dir, 2)

		raw, err := sql.Open("sqlite", filepath.Join(dir, database.FileName))
		if err != nil {
			t.Fatalf("sql.Open() error = %v", err)
		}
		if _, err := raw.ExecContext(context.Background(), "UPDATE rotations SET new_ip = '198.51.100.7' WHERE id = 1"); err != nil {
			t.Fatalf("tamper: %v", err)
		}
		if err := raw.Close(); err != nil {
			t.Fatalf("Close() error = %v", err)
		}

		db := openSeeded(t, dir)
		var out, status bytes.Buffer
		writer, err := report.NewWriter(report.FormatText, &out)
		if err != nil {
			t.Fatalf("NewWriter() error = %v", err)
		}

		err = showHistory(context.Background(), writer, &status, db, 0, true)
		if !errors.Is(err, database.ErrChainBroken) {
			t.Fatalf("showHistory() error = %v, want ErrChainBroken", err)
		}
		if !strings.Contains(out.String(), "BROKEN") {
			t.Errorf("output does not flag the chain:\n%s", out.String())
		}
		if !strings.Contains(status.String(), "verification failed") {
			t.Errorf("status = %q", status.String())
		}
	})
}

func TestHistoryCmd(t *testing.T) {
	t.Parallel()

	t.Run("missing database is not an error", func(t *testing.T) {
		t.Parallel()
		configPath := writeConfigFile(t, "")
		dbDir := filepath.Join(t.TempDir(), "none")

		var out, errOut bytes.Buffer
		root := NewRootCmd()
		root.SetOut(&out)
		root.SetErr(&errOut)
		root.SetArgs([]string{"history", "--config", configPath, "--db-dir", dbDir})

		if err := root.Execute(); err != nil {
			t.Fatalf("Execute() error = %v", err)
		}
		if !strings.Contains(errOut.String(), "No rotation history") {
			t.Errorf("stderr = %q", errOut.String())
		}
	})

	t.Run("renders markdown", func(t *testing.T) {
		t.Parallel()
		configPath := writeConfigFile(t, "")
		dbDir := t.TempDir()
		seedHistory(t, dbDir, 2)

		var out bytes.Buffer
		root := NewRootCmd()
		root.SetOut(&out)
		root.SetErr(&bytes.Buffer{})
		root.SetArgs([]string{"history", "--config", configPath, "--db-dir", dbDir, "--format", "markdown", "--verify"})

		if err := root.Execute(); err != nil {
			t.Fatalf("Execute() error = %v", err)
		}
		if !strings.Contains(out.String(), "pie") {
			t.Errorf("markdown output has no status chart:\n%s", out.String())
		}
	})

	t.Run("unknown format", func(t *testing.T) {
		t.Parallel()
		configPath := writeConfigFile(t, "")

		root := NewRootCmd()
		root.SetOut(&bytes.Buffer{})
		root.SetErr(&bytes.Buffer{})
		root.SetArgs([]string{"history", "--config", configPath, "--db-dir", t.TempDir(), "--format", "xml"})

		if err := root.Execute(); !errors.Is(err, report.ErrUnknownFormat) {
			t.Errorf("Execute() error = %v, want ErrUnknownFormat", err)
		}
	})
}
