package main

import (
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/nao1215/ipchanger/internal/config"
	"github.com/nao1215/ipchanger/internal/tor"
)

// NewDoctorCmd creates the doctor command.
func NewDoctorCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "doctor",
		Short: "Check that the Tor proxy and control port are reachable",
		Long: `Doctor checks the Tor SOCKS proxy and the control port concurrently and
prints the effective configuration. It exits with an error when either port
does not answer like Tor.

Configure the system daemon with, for example:

  ControlPort 9051
  CookieAuthentication 1

Examples:
  ipchanger doctor
  ipchanger doctor --proxy 127.0.0.1:9150 --control 127.0.0.1:9151`,
		RunE: runDoctorCmd,
	}

	cmd.Flags().String("proxy", config.DefaultProxyAddress,
		"Tor SOCKS5 proxy address (host:port)")
	cmd.Flags().String("control", config.DefaultControlAddress,
		"Tor control port address (host:port)")
	cmd.Flags().String("control-cookie", "",
		"Path of Tor's control_auth_cookie")

	return cmd
}

// runDoctorCmd executes the doctor command.
func runDoctorCmd(cmd *cobra.Command, _ []string) (err error) {
	cfg, err := buildConfig(cmd)
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

	client, err := tor.NewClient(cfg.ProxyAddress, cfg.RequestTimeout)
	if err != nil {
		return err
	}

	report := tor.Probe(ctx, client, cfg.ControlAddress)
	if err := report.Err(); err != nil {
		logger.Error("tor is not ready", "op", "doctor",
			"proxy", report.ProxyStatus.String(), "control", report.ControlStatus.String(), "error", err)
	}
	return writeDoctor(cmd.OutOrStdout(), cfg, report)
}

// writeDoctor prints the probe results and the effective configuration, and
// returns the first probe failure.
func writeDoctor(out io.Writer, cfg *config.Config, report tor.ProbeReport) error {
	fmt.Fprintln(out, "Tor")
	fmt.Fprintf(out, "  SOCKS proxy   %-21s %s\n", report.ProxyAddress, report.ProxyStatus)
	fmt.Fprintf(out, "  Control port  %-21s %s\n", report.ControlAddress, report.ControlStatus)
	fmt.Fprintf(out, "  Auth method   %s\n", cfg.AuthMethod())
	fmt.Fprintln(out)

	configFile := config.FindConfigFile(cfg.ConfigFilePath)
	if configFile == "" {
		configFile = "(none, using defaults)"
	}

	fmt.Fprintln(out, "Files")
	fmt.Fprintf(out, "  Config        %s\n", configFile)
	fmt.Fprintf(out, "  Diagnostics   %s\n", cfg.LogFile)
	if cfg.NoAudit {
		fmt.Fprintln(out, "  Audit log     disabled")
	} else {
		fmt.Fprintf(out, "  Audit log     %s\n", cfg.AuditFile)
	}
	if cfg.DBDir == "" {
		fmt.Fprintln(out, "  History       disabled")
	} else {
		fmt.Fprintf(out, "  History       %s\n", cfg.DBDir)
	}
	fmt.Fprintln(out)

	if report.Healthy() {
		fmt.Fprintln(out, "Tor is ready for rotation.")
		return nil
	}
	return report.Err()
}
