package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"

	"github.com/spf13/cobra"
)

// NewGeoCmd creates the geo command.
func NewGeoCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "geo <address>",
		Short: "Look up the location of an IP address",
		Long: `Geo asks the geolocation service where an address is located.
The lookup itself goes through Tor.

Examples:
  ipchanger geo 185.220.101.1
  ipchanger geo 185.220.101.1 --json`,
		Args: cobra.ExactArgs(1),
		RunE: runGeoCmd,
	}

	addConnectionFlags(cmd)
	cmd.Flags().Bool("json", false, "Print the raw location as JSON")

	return cmd
}

// runGeoCmd executes the geo command.
func runGeoCmd(cmd *cobra.Command, args []string) (err error) {
	cfg, err := buildConfig(cmd)
	if err != nil {
		return err
	}

	asJSON, err := cmd.Flags().GetBool("json")
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
		logger.Error("failed to connect to Tor", "op", "geo", "error", err)
		return err
	}
	defer closeWith(&err, sess.Close)

	return showLocation(ctx, cmd.OutOrStdout(), sess.geoClient(cfg, logger), args[0], asJSON)
}

// showLocation prints the location of address.
func showLocation(ctx context.Context, out io.Writer, loc locator, address string, asJSON bool) error {
	location, err := loc.Lookup(ctx, address)
	if err != nil {
		return err
	}

	if asJSON {
		encoder := json.NewEncoder(out)
		encoder.SetIndent("", "  ")
		return encoder.Encode(location)
	}

	fmt.Fprintf(out, "Address:  %s\n", address)
	fmt.Fprintf(out, "Location: %s\n", location)
	if location.HasPosition() {
		fmt.Fprintf(out, "Position: %.4f, %.4f\n", location.Latitude.Value, location.Longitude.Value)
		fmt.Fprintf(out, "Geohash:  %s\n", location.Geohash(0))
	}
	return nil
}
