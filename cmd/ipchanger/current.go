package main

import (
	"context"
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/nao1215/ipchanger/internal/rotation"
)

// NewCurrentCmd creates the current command.
func NewCurrentCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "current",
		Short: "Show the current Tor exit address",
		Long: `Current reads the exit address once through the Tor SOCKS proxy.
No NEWNYM is sent and nothing is recorded.

Examples:
  ipchanger current
  ipchanger current --geo`,
		RunE: runCurrentCmd,
	}

	addConnectionFlags(cmd)
	cmd.Flags().Bool("geo", false,
		"Look up the location of the exit address")

	return cmd
}

// runCurrentCmd executes the current command.
func runCurrentCmd(cmd *cobra.Command, _ []string) (err error) {
	cfg, err := buildConfig(cmd)
	if err != nil {
		return err
	}

	withGeo, err := cmd.Flags().GetBool("geo")
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

	sess, err := openSession(ctx, cfg, logger, cmd.ErrOrStderr())
	if err != nil {
		logger.Error("failed to connect to Tor", "op", "current", "error", err)
		return err
	}
	defer closeWith(&err, sess.Close)

	var loc locator
	if withGeo {
		loc = sess.geoClient(cfg, logger)
	}
	return showCurrent(ctx, cmd.OutOrStdout(), sess.observer, loc)
}

// showCurrent prints the exit address and, with a locator, its location.
func showCurrent(ctx context.Context, out io.Writer, observer rotation.Observer, loc locator) error {
	addr, err := observer.Observe(ctx)
	if err != nil {
		return fmt.Errorf("failed to read the current IP: %w", err)
	}
	fmt.Fprintf(out, "Current IP: %s\n", addr)

	if loc == nil {
		return nil
	}
	location, err := loc.Lookup(ctx, addr.String())
	if err != nil {
		return err
	}
	fmt.Fprintf(out, "Location:   %s\n", location)
	if hash := location.Geohash(0); hash != "" {
		fmt.Fprintf(out, "Geohash:    %s\n", hash)
	}
	return nil
}
