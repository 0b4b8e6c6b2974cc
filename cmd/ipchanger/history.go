package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/spf13/cobra"

	"github.com/nao1215/ipchanger/internal/config"
	"github.com/nao1215/ipchanger/internal/database"
	"github.com/nao1215/ipchanger/internal/report"
)

// defaultHistoryLimit is the number of rotations shown by default.
const defaultHistoryLimit = 20

// NewHistoryCmd creates the history command.
func NewHistoryCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "history",
		Short: "Show recorded rotations",
		Long: `History lists the rotations stored in the SQLite history, newest first,
with a count per status.

Every row carries a SHA3-256 hash chained to the previous row. --verify
recomputes the chain and fails if any stored row was modified or removed
from the middle of the history.

Examples:
  ipchanger history
  ipchanger history --limit 50 --verify
  ipchanger history --format markdown > rotations.md`,
		RunE: runHistoryCmd,
	}

	cmd.Flags().IntP("limit", "l", defaultHistoryLimit,
		"Maximum number of rotations to show (0 for all)")
	cmd.Flags().Bool("verify", false,
		"Verify the hash chain of the history")
	cmd.Flags().String("db-dir", config.XDGDataDir(),
		"Directory of the history database")
	cmd.Flags().StringP("format", "f", string(report.FormatText),
		"Output format: text, markdown or json")

	return cmd
}

// runHistoryCmd executes the history command.
func runHistoryCmd(cmd *cobra.Command, _ []string) (err error) {
	cfg, err := buildConfig(cmd)
	if err != nil {
		return err
	}

	limit, err := cmd.Flags().GetInt("limit")
	if err != nil {
		return err
	}
	verify, err := cmd.Flags().GetBool("verify")
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

	db, err := database.Open(cfg.DBDir, database.Options{EnableWAL: true})
	if errors.Is(err, database.ErrNotFound) {
		fmt.Fprintf(cmd.ErrOrStderr(), "No rotation history at %s\n", cfg.DBDir)
		return nil
	}
	if err != nil {
		return err
	}
	defer closeWith(&err, db.Close)

	return showHistory(cmd.Context(), writer, cmd.ErrOrStderr(), db, limit, verify)
}

// showHistory renders the history and returns ErrChainBroken when a requested
// verification fails.
func showHistory(ctx context.Context, writer report.Writer, status io.Writer, db *database.HistoryDB, limit int, verify bool) error {
	if ctx == nil {
		ctx = context.Background()
	}

	rotations, err := db.ListRotations(ctx, limit)
	if err != nil {
		return err
	}
	counts, err := db.CountByStatus(ctx)
	if err != nil {
		return err
	}

	history := &report.History{
		GeneratedAt: time.Now(),
		Rotations:   rotations,
		Counts:      counts,
	}

	var chainErr error
	if verify {
		verified, err := db.VerifyChain(ctx)
		history.Verified = &verified
		if err != nil {
			chainErr = err
			history.ChainError = err.Error()
		}
	}

	if _, err := writer.WriteHistory(history); err != nil {
		return fmt.Errorf("failed to write history: %w", err)
	}

	if chainErr != nil {
		fmt.Fprintf(status, "History verification failed: %v\n", chainErr)
	}
	return chainErr
}
