package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

// NewRootCmd creates the root command for ipchanger.
func NewRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "ipchanger",
		Short: "Rotate and verify your Tor exit address",
		Long: `ipchanger rotates the outbound identity of a local Tor daemon.

It sends NEWNYM over the control port, re-reads the exit address through the
SOCKS proxy, and retries until the address really changed. Every completed
rotation is appended to a CSV audit log and a tamper-evident SQLite history.

By default ipchanger uses the system Tor daemon at 127.0.0.1:9050 (SOCKS) and
127.0.0.1:9051 (control). Use --embedded to start a private daemon instead.`,
		Version:       getVersion(),
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	// Global flags that apply to all commands
	cmd.PersistentFlags().BoolP("verbose", "v", false, "Enable verbose logging (debug level, mirrored to stderr)")
	cmd.PersistentFlags().StringP("config", "c", "",
		"Configuration file path (default: .ipchanger in current or home directory)")

	cmd.AddCommand(NewRotateCmd())
	cmd.AddCommand(NewCurrentCmd())
	cmd.AddCommand(NewGeoCmd())
	cmd.AddCommand(NewHistoryCmd())
	cmd.AddCommand(NewDoctorCmd())
	cmd.AddCommand(NewInitCmd())
	cmd.AddCommand(NewVersionCmd())

	return cmd
}

// Execute runs the root command.
func Execute() {
	if err := NewRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
