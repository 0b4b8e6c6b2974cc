package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"

	"github.com/nao1215/ipchanger/internal/audit"
	"github.com/nao1215/ipchanger/internal/config"
	"github.com/nao1215/ipchanger/internal/database"
	"github.com/nao1215/ipchanger/internal/geo"
	"github.com/nao1215/ipchanger/internal/log"
	"github.com/nao1215/ipchanger/internal/metrics"
	"github.com/nao1215/ipchanger/internal/report"
	"github.com/nao1215/ipchanger/internal/rotation"
)

// NewRotateCmd creates the rotate command.
func NewRotateCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "rotate",
		Short: "Request a new Tor identity and verify the exit address changed",
		Long: `Rotate sends NEWNYM to the Tor control port and re-reads the exit address
through the SOCKS proxy until it differs from the address seen before the
rotation, or the attempt budget runs out.

A successful rotation is appended to the CSV audit log and the SQLite history.
The circuit is then reset once more and, after a settle pause, the exit
address is read a final time.

Progress is printed to stderr; the summary is printed to stdout.

Examples:
  # Rotate through the system Tor daemon
  ipchanger rotate

  # Use a private Tor daemon and show where the new exit is
  ipchanger rotate --embedded --geo

  # Authenticate with a password and emit JSON
  IPCHANGER_CONTROL_PASSWORD=secret ipchanger rotate --format json`,
		RunE: runRotateCmd,
	}

	addConnectionFlags(cmd)
	cmd.Flags().IntP("max-attempts", "n", config.DefaultMaxAttempts,
		"Maximum NEWNYM attempts before giving up")
	cmd.Flags().Duration("settle", config.DefaultSettle,
		"Pause before the final observation")
	cmd.Flags().Bool("geo", false,
		"Look up the location of the new exit address")
	cmd.Flags().Bool("no-audit", false,
		"Do not write the audit log or the history database")
	cmd.Flags().String("audit-file", config.DefaultAuditFile(),
		"CSV audit log path")
	cmd.Flags().String("metrics-file", "",
		"Write Prometheus metrics to this textfile after the rotation")
	cmd.Flags().Bool("log-json", false,
		"Write the diagnostic log as JSON lines")
	cmd.Flags().Bool("dry-run", false,
		"Show the current exit address without rotating")
	cmd.Flags().StringP("format", "f", string(report.FormatText),
		"Summary format: text, markdown or json")

	return cmd
}

// runRotateCmd executes the rotate command.
func runRotateCmd(cmd *cobra.Command, _ []string) (err error) {
	cfg, err := buildConfig(cmd)
	if err != nil {
		return err
	}

	format, err := cmd.Flags().GetString("format")
	if err != nil {
		return err
	}
	writer, err := report.NewWriter(report.Format(format), cmd.OutOrStdout())
	if err != nil {
		return err
	}

	withGeo, err := cmd.Flags().GetBool("geo")
	if err != nil {
		return err
	}
	dryRun, err := cmd.Flags().GetBool("dry-run")
	if err != nil {
		return err
	}

	sink, err := openSink(cfg, cmd.ErrOrStderr())
	if err != nil {
		return err
	}
	defer closeWith(&err, sink.Close)
	logger := sink.Logger()

	ctx, cancel := signalContext(logger)
	defer cancel()

	status := cmd.ErrOrStderr()
	sess, err := openSession(ctx, cfg, logger, status)
	if err != nil {
		logger.Error("failed to connect to Tor", "op", "rotate", "error", err)
		return err
	}
	defer closeWith(&err, sess.Close)

	m := metrics.NewMetrics()
	registry := prometheus.NewRegistry()
	if err := m.Register(registry); err != nil {
		return fmt.Errorf("failed to register metrics: %w", err)
	}

	engine, err := rotation.NewEngine(sess.observer, sess.controller,
		rotation.WithMaxAttempts(cfg.MaxAttempts),
		rotation.WithLogger(logger),
		rotation.WithMetrics(m),
	)
	if err != nil {
		return err
	}

	stores, err := openAuditStores(cfg)
	if err != nil {
		logger.Error("failed to open audit stores", "op", "rotate", "error", err)
		return err
	}
	defer closeWith(&err, stores.Close)

	run := &rotateRun{
		engine:   engine,
		observer: sess.observer,
		recorder: stores.recorder,
		history:  stores.history,
		settle:   cfg.Settle,
		dryRun:   dryRun,
		status:   status,
		logger:   logger,
	}
	if withGeo {
		run.locator = sess.geoClient(cfg, logger)
	}

	summary, runErr := run.run(ctx)

	if _, err := writer.WriteRotation(summary); err != nil {
		return fmt.Errorf("failed to write summary: %w", err)
	}

	if cfg.MetricsFile != "" && !dryRun {
		if err := metrics.WriteTextfile(cfg.MetricsFile, registry); err != nil {
			logger.Error("failed to write metrics", "op", "rotate", "path", cfg.MetricsFile, "error", err)
			return err
		}
	}

	return runErr
}

// locator resolves an address to a location.
type locator interface {
	Lookup(ctx context.Context, address string) (*geo.Location, error)
}

// rotateRun is one rotate command: observe, rotate, record, reset, settle
// and observe again.
type rotateRun struct {
	engine   *rotation.Engine
	observer rotation.Observer

	// recorder receives completed rotations; nil when auditing is off.
	recorder audit.Recorder
	// history receives failed rotations; nil without a history database.
	history audit.Recorder
	// locator is set by --geo.
	locator locator

	settle time.Duration
	dryRun bool
	status io.Writer
	logger *slog.Logger
}

// run executes the rotation. The returned summary is never nil; the error is
// the rotation failure or the cancellation, if any.
func (r *rotateRun) run(ctx context.Context) (*report.RotationSummary, error) {
	if r.logger == nil {
		r.logger = log.Discard()
	}

	current, err := r.engine.Current(ctx)
	if err != nil {
		fmt.Fprintln(r.status, "Current IP: unavailable")
	} else {
		fmt.Fprintf(r.status, "Current IP: %s\n", current)
	}

	if r.dryRun {
		result, _ := r.engine.Rotate(ctx, false) //nolint:errcheck // a skipped rotation never fails
		result.Prior = current
		return &report.RotationSummary{Result: result}, nil
	}

	fmt.Fprintf(r.status, "Requesting a new identity (up to %d attempts)...\n", r.engine.MaxAttempts())
	result, rotateErr := r.engine.Rotate(ctx, true)
	summary := &report.RotationSummary{Result: result}

	// Records survive an interrupt that arrives after the rotation finished.
	recordCtx := context.WithoutCancel(ctx)

	if result.Rotated() {
		fmt.Fprintf(r.status, "Old IP: %s\n", displayAddress(result.Prior))
		fmt.Fprintf(r.status, "New IP: %s\n", result.Current)
		if r.recorder != nil {
			if err := r.recorder.Append(recordCtx, audit.RecordFromResult(result)); err != nil {
				r.logger.Error("failed to record rotation", "op", "rotate", "rotation_id", result.ID, "error", err)
				fmt.Fprintf(r.status, "Warning: failed to record rotation: %v\n", err)
			} else {
				summary.Recorded = true
			}
		}
	} else {
		fmt.Fprintf(r.status, "Failed to change IP: %v\n", rotateErr)
		if r.history != nil {
			if err := r.history.Append(recordCtx, audit.RecordFromResult(result)); err != nil {
				r.logger.Error("failed to record rotation", "op", "rotate", "rotation_id", result.ID, "error", err)
			} else {
				summary.Recorded = true
			}
		}
	}

	if err := ctx.Err(); err != nil {
		return summary, err
	}

	if err := r.engine.Terminate(ctx); err != nil {
		fmt.Fprintf(r.status, "Warning: failed to reset the Tor circuit: %v\n", err)
	}

	if r.settle > 0 {
		fmt.Fprintf(r.status, "Waiting %s for the circuit to settle...\n", r.settle)
	}
	if err := sleepContext(ctx, r.settle); err != nil {
		return summary, err
	}

	settled, err := r.observer.Observe(ctx)
	if err != nil {
		fmt.Fprintln(r.status, "IP after reset: unavailable")
	} else {
		summary.Settled = settled
		fmt.Fprintf(r.status, "IP after reset: %s\n", settled)
	}

	if r.locator != nil {
		target := summary.Settled
		if target.IsEmpty() {
			target = result.Current
		}
		if !target.IsEmpty() {
			loc, err := r.locator.Lookup(ctx, target.String())
			if err != nil {
				fmt.Fprintf(r.status, "Warning: geolocation lookup failed: %v\n", err)
			} else {
				summary.Location = loc
				fmt.Fprintf(r.status, "Location: %s\n", loc)
			}
		}
	}

	return summary, rotateErr
}

// auditStores are the audit destinations of one rotate command.
type auditStores struct {
	recorder audit.Recorder
	history  audit.Recorder
	db       *database.HistoryDB
}

// openAuditStores opens the CSV audit log and the history database that cfg
// enables. With NoAudit set both recorders are nil.
func openAuditStores(cfg *config.Config) (*auditStores, error) {
	stores := &auditStores{}
	if cfg.NoAudit {
		return stores, nil
	}

	csvStore, err := audit.NewCSVStore(cfg.AuditFile)
	if err != nil {
		return nil, err
	}
	recorders := audit.MultiRecorder{csvStore}

	if cfg.DBDir != "" {
		db, err := database.Open(cfg.DBDir, database.DefaultOptions())
		if err != nil {
			return nil, fmt.Errorf("failed to open history database: %w", err)
		}
		stores.db = db
		stores.history = db
		recorders = append(recorders, db)
	}

	stores.recorder = recorders
	return stores, nil
}

// Close closes the history database.
func (s *auditStores) Close() error {
	if s.db == nil {
		return nil
	}
	return s.db.Close()
}

// displayAddress renders an address that may be empty.
func displayAddress(a rotation.Address) string {
	if a.IsEmpty() {
		return "unknown"
	}
	return a.String()
}
