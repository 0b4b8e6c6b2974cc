package main

import (
	"bytes"
	"context"
	"errors"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"github.com/nao1215/ipchanger/internal/audit"
	"github.com/nao1215/ipchanger/internal/config"
	"github.com/nao1215/ipchanger/internal/database"
	"github.com/nao1215/ipchanger/internal/geo"
	"github.com/nao1215/ipchanger/internal/rotation"
)

var errNoAddress = errors.New("echo service unreachable")

// sequenceObserver returns addrs in order and repeats the last one. An empty
// entry is reported as a failed observation.
type sequenceObserver struct {
	mu    sync.Mutex
	addrs []rotation.Address
	calls int
}

func (o *sequenceObserver) Observe(_ context.Context) (rotation.Address, error) {
	o.mu.Lock()
	defer o.mu.Unlock()

	i := min(o.calls, len(o.addrs)-1)
	o.calls++
	if o.addrs[i] == "" {
		return "", errNoAddress
	}
	return o.addrs[i], nil
}

type countingController struct {
	mu    sync.Mutex
	calls int
}

func (c *countingController) RequestNewIdentity(_ context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.calls++
	return nil
}

func (c *countingController) count() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.calls
}

type memoryRecorder struct {
	records []audit.Record
	err     error
}

func (m *memoryRecorder) Append(_ context.Context, record audit.Record) error {
	if m.err != nil {
		return m.err
	}
	m.records = append(m.records, record)
	return nil
}

type fakeLocator struct {
	location *geo.Location
	err      error
	asked    []string
}

func (f *fakeLocator) Lookup(_ context.Context, address string) (*geo.Location, error) {
	f.asked = append(f.asked, address)
	return f.location, f.err
}

func newTestRun(t *testing.T, observer *sequenceObserver, controller *countingController, maxAttempts int) (*rotateRun, *bytes.Buffer) {
	t.Helper()

	engine, err := rotation.NewEngine(observer, controller, rotation.WithMaxAttempts(maxAttempts))
	if err != nil {
		t.Fatalf("NewEngine() error = %v", err)
	}
	var status bytes.Buffer
	return &rotateRun{
		engine:   engine,
		observer: observer,
		status:   &status,
	}, &status
}

func TestRotateRun(t *testing.T) {
	t.Parallel()

	t.Run("successful rotation is recorded and settled", func(t *testing.T) {
		t.Parallel()
		// current, prior, candidate, settled
		observer := &sequenceObserver{addrs: []rotation.Address{"1.1.1.1", "1.1.1.1", "2.2.2.2", "3.3.3.3"}}
		controller := &countingController{}
		run, status := newTestRun(t, observer, controller, 3)
		recorder := &memoryRecorder{}
		history := &memoryRecorder{}
		run.recorder = recorder
		run.history = history

		summary, err := run.run(context.Background())
		if err != nil {
			t.Fatalf("run() error = %v", err)
		}

		if !summary.Result.Rotated() {
			t.Fatalf("status = %s, want rotated", summary.Result.Status)
		}
		if !summary.Recorded {
			t.Error("Recorded = false, want true")
		}
		if summary.Settled != "3.3.3.3" {
			t.Errorf("Settled = %q, want 3.3.3.3", summary.Settled)
		}
		if len(recorder.records) != 1 {
			t.Fatalf("recorded %d rotations, want 1", len(recorder.records))
		}
		if rec := recorder.records[0]; rec.OldIP != "1.1.1.1" || rec.NewIP != "2.2.2.2" {
			t.Errorf("record = %+v", rec)
		}
		if len(history.records) != 0 {
			t.Error("successful rotation must not go to the failure history")
		}
		// one attempt plus the circuit reset
		if got := controller.count(); got != 2 {
			t.Errorf("controller calls = %d, want 2", got)
		}
		for _, want := range []string{"Current IP: 1.1.1.1", "Old IP: 1.1.1.1", "New IP: 2.2.2.2", "IP after reset: 3.3.3.3"} {
			if !strings.Contains(status.String(), want) {
				t.Errorf("status output missing %q:\n%s", want, status.String())
			}
		}
	})

	t.Run("exhausted rotation goes to the history only", func(t *testing.T) {
		t.Parallel()
		observer := &sequenceObserver{addrs: []rotation.Address{"1.1.1.1"}}
		controller := &countingController{}
		run, status := newTestRun(t, observer, controller, 2)
		recorder := &memoryRecorder{}
		history := &memoryRecorder{}
		run.recorder = recorder
		run.history = history

		summary, err := run.run(context.Background())
		if !errors.Is(err, rotation.ErrAttemptsExhausted) {
			t.Fatalf("run() error = %v, want ErrAttemptsExhausted", err)
		}
		if summary.Result.Status != rotation.StatusExhausted {
			t.Errorf("status = %s, want exhausted", summary.Result.Status)
		}
		if len(recorder.records) != 0 {
			t.Error("exhausted rotation reached the audit log")
		}
		if len(history.records) != 1 || history.records[0].Status != "exhausted" {
			t.Errorf("history = %+v, want one exhausted record", history.records)
		}
		// two attempts plus the circuit reset
		if got := controller.count(); got != 3 {
			t.Errorf("controller calls = %d, want 3", got)
		}
		if !strings.Contains(status.String(), "Failed to change IP") {
			t.Errorf("status output = %q", status.String())
		}
	})

	t.Run("dry run sends nothing", func(t *testing.T) {
		t.Parallel()
		observer := &sequenceObserver{addrs: []rotation.Address{"1.1.1.1"}}
		controller := &countingController{}
		run, _ := newTestRun(t, observer, controller, 3)
		recorder := &memoryRecorder{}
		run.recorder = recorder
		run.dryRun = true

		summary, err := run.run(context.Background())
		if err != nil {
			t.Fatalf("run() error = %v", err)
		}
		if summary.Result.Status != rotation.StatusSkipped {
			t.Errorf("status = %s, want skipped", summary.Result.Status)
		}
		if summary.Result.Prior != "1.1.1.1" {
			t.Errorf("Prior = %q, want the current address", summary.Result.Prior)
		}
		if controller.count() != 0 {
			t.Error("dry run signaled the controller")
		}
		if len(recorder.records) != 0 {
			t.Error("dry run was recorded")
		}
	})

	t.Run("canceled context stops before the reset", func(t *testing.T) {
		t.Parallel()
		observer := &sequenceObserver{addrs: []rotation.Address{"1.1.1.1"}}
		controller := &countingController{}
		run, _ := newTestRun(t, observer, controller, 3)
		history := &memoryRecorder{}
		run.history = history

		ctx, cancel := context.WithCancel(context.Background())
		cancel()

		summary, err := run.run(ctx)
		if !errors.Is(err, context.Canceled) {
			t.Fatalf("run() error = %v, want context.Canceled", err)
		}
		if summary.Result.Status != rotation.StatusCanceled {
			t.Errorf("status = %s, want canceled", summary.Result.Status)
		}
		if controller.count() != 0 {
			t.Errorf("controller calls = %d, want 0", controller.count())
		}
		if len(history.records) != 1 {
			t.Errorf("history has %d records, want the canceled rotation", len(history.records))
		}
	})

	t.Run("recorder failure is reported but not fatal", func(t *testing.T) {
		t.Parallel()
		observer := &sequenceObserver{addrs: []rotation.Address{"1.1.1.1", "1.1.1.1", "2.2.2.2"}}
		controller := &countingController{}
		run, status := newTestRun(t, observer, controller, 3)
		run.recorder = &memoryRecorder{err: errors.New("disk full")}

		summary, err := run.run(context.Background())
		if err != nil {
			t.Fatalf("run() error = %v", err)
		}
		if summary.Recorded {
			t.Error("Recorded = true after a failed append")
		}
		if !strings.Contains(status.String(), "disk full") {
			t.Errorf("status output = %q, want the recorder error", status.String())
		}
	})

	t.Run("location of the settled address", func(t *testing.T) {
		t.Parallel()
		observer := &sequenceObserver{addrs: []rotation.Address{"1.1.1.1", "1.1.1.1", "2.2.2.2", "3.3.3.3"}}
		controller := &countingController{}
		run, _ := newTestRun(t, observer, controller, 3)
		loc := &fakeLocator{location: &geo.Location{CountryCode: "DE", CountryName: "Germany"}}
		run.locator = loc

		summary, err := run.run(context.Background())
		if err != nil {
			t.Fatalf("run() error = %v", err)
		}
		if summary.Location == nil || summary.Location.CountryCode != "DE" {
			t.Errorf("Location = %+v", summary.Location)
		}
		if len(loc.asked) != 1 || loc.asked[0] != "3.3.3.3" {
			t.Errorf("looked up %v, want [3.3.3.3]", loc.asked)
		}
	})

	t.Run("location falls back to the rotated address", func(t *testing.T) {
		t.Parallel()
		observer := &sequenceObserver{addrs: []rotation.Address{"1.1.1.1", "1.1.1.1", "2.2.2.2", ""}}
		controller := &countingController{}
		run, status := newTestRun(t, observer, controller, 3)
		loc := &fakeLocator{err: geo.ErrLookupFailed}
		run.locator = loc

		summary, err := run.run(context.Background())
		if err != nil {
			t.Fatalf("run() error = %v", err)
		}
		if summary.Location != nil {
			t.Error("Location set after a failed lookup")
		}
		if len(loc.asked) != 1 || loc.asked[0] != "2.2.2.2" {
			t.Errorf("looked up %v, want [2.2.2.2]", loc.asked)
		}
		if !strings.Contains(status.String(), "IP after reset: unavailable") {
			t.Errorf("status output = %q", status.String())
		}
	})
}

func TestOpenAuditStores(t *testing.T) {
	t.Parallel()

	t.Run("disabled", func(t *testing.T) {
		t.Parallel()
		cfg := config.NewConfig()
		cfg.NoAudit = true

		stores, err := openAuditStores(cfg)
		if err != nil {
			t.Fatalf("openAuditStores() error = %v", err)
		}
		if stores.recorder != nil || stores.history != nil {
			t.Error("recorders set with auditing disabled")
		}
		if err := stores.Close(); err != nil {
			t.Errorf("Close() error = %v", err)
		}
	})

	t.Run("csv only without a database directory", func(t *testing.T) {
		t.Parallel()
		cfg := config.NewConfig()
		cfg.AuditFile = filepath.Join(t.TempDir(), "ip_changes.csv")
		cfg.DBDir = ""

		stores, err := openAuditStores(cfg)
		if err != nil {
			t.Fatalf("openAuditStores() error = %v", err)
		}
		defer stores.Close()

		if stores.history != nil {
			t.Error("history set without a database directory")
		}
		if stores.recorder == nil {
			t.Fatal("recorder is nil")
		}
	})

	t.Run("writes both stores", func(t *testing.T) {
		t.Parallel()
		dir := t.TempDir()
		cfg := config.NewConfig()
		cfg.AuditFile = filepath.Join(dir, "ip_changes.csv")
		cfg.DBDir = filepath.Join(dir, "db")

		stores, err := openAuditStores(cfg)
		if err != nil {
			t.Fatalf("openAuditStores() error = %v", err)
		}

		observer := &sequenceObserver{addrs: []rotation.Address{"1.1.1.1", "1.1.1.1", "2.2.2.2"}}
		run, _ := newTestRun(t, observer, &countingController{}, 3)
		run.recorder = stores.recorder
		run.history = stores.history

		summary, err := run.run(context.Background())
		if err != nil {
			t.Fatalf("run() error = %v", err)
		}
		if err := stores.Close(); err != nil {
			t.Fatalf("Close() error = %v", err)
		}

		csvStore, err := audit.NewCSVStore(cfg.AuditFile)
		if err != nil {
			t.Fatalf("NewCSVStore() error = %v", err)
		}
		records, err := csvStore.ReadAll()
		if err != nil {
			t.Fatalf("ReadAll() error = %v", err)
		}
		if len(records) != 1 || records[0].NewIP != "2.2.2.2" {
			t.Errorf("csv records = %+v", records)
		}

		db, err := database.Open(cfg.DBDir, database.Options{})
		if err != nil {
			t.Fatalf("Open() error = %v", err)
		}
		defer db.Close()

		rows, err := db.ListRotations(context.Background(), 0)
		if err != nil {
			t.Fatalf("ListRotations() error = %v", err)
		}
		if len(rows) != 1 || rows[0].RotationID != summary.Result.ID {
			t.Errorf("history rows = %+v", rows)
		}
	})
}
