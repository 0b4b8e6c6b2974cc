package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/nao1215/ipchanger/internal/config"
	"github.com/nao1215/ipchanger/internal/geo"
	"github.com/nao1215/ipchanger/internal/log"
	"github.com/nao1215/ipchanger/internal/tor"
)

// getVerboseFlag retrieves the verbose flag from the command or its parent.
func getVerboseFlag(cmd *cobra.Command) bool {
	verbose, err := cmd.Flags().GetBool("verbose")
	if err != nil {
		verbose, err = cmd.Root().PersistentFlags().GetBool("verbose")
		if err != nil {
			return false
		}
	}
	return verbose
}

// getConfigFlag retrieves the config flag from the command or its parent.
func getConfigFlag(cmd *cobra.Command) string {
	path, err := cmd.Flags().GetString("config")
	if err != nil {
		path, err = cmd.Root().PersistentFlags().GetString("config")
		if err != nil {
			return ""
		}
	}
	return path
}

// addConnectionFlags registers the flags that select the Tor daemon.
func addConnectionFlags(cmd *cobra.Command) {
	cmd.Flags().String("proxy", config.DefaultProxyAddress,
		"Tor SOCKS5 proxy address (host:port)")
	cmd.Flags().String("control", config.DefaultControlAddress,
		"Tor control port address (host:port)")
	cmd.Flags().String("control-cookie", "",
		"Path of Tor's control_auth_cookie (password auth: set "+config.ControlPasswordEnv+")")
	cmd.Flags().Bool("embedded", false,
		"Start a private Tor daemon instead of using the system one")
	cmd.Flags().Duration("tor-timeout", config.DefaultTorStartupTimeout,
		"Timeout for the embedded Tor daemon to bootstrap")
	cmd.Flags().Duration("timeout", config.DefaultRequestTimeout,
		"Timeout of each HTTP request through Tor")
	cmd.Flags().String("echo-url", config.DefaultEchoURL,
		"IP echo service that answers with the caller's address")
}

// flagOverride copies one changed flag into the configuration.
type flagOverride struct {
	name  string
	apply func(cmd *cobra.Command, cfg *config.Config) error
}

// flagOverrides lists every flag that maps onto a Config field. Commands
// register only the flags they need; missing flags are skipped.
var flagOverrides = []flagOverride{
	{"proxy", func(cmd *cobra.Command, cfg *config.Config) (err error) {
		cfg.ProxyAddress, err = cmd.Flags().GetString("proxy")
		return err
	}},
	{"control", func(cmd *cobra.Command, cfg *config.Config) (err error) {
		cfg.ControlAddress, err = cmd.Flags().GetString("control")
		return err
	}},
	{"control-cookie", func(cmd *cobra.Command, cfg *config.Config) (err error) {
		cfg.ControlCookie, err = cmd.Flags().GetString("control-cookie")
		return err
	}},
	{"embedded", func(cmd *cobra.Command, cfg *config.Config) (err error) {
		cfg.Embedded, err = cmd.Flags().GetBool("embedded")
		return err
	}},
	{"tor-timeout", func(cmd *cobra.Command, cfg *config.Config) (err error) {
		cfg.TorStartupTimeout, err = cmd.Flags().GetDuration("tor-timeout")
		return err
	}},
	{"timeout", func(cmd *cobra.Command, cfg *config.Config) (err error) {
		cfg.RequestTimeout, err = cmd.Flags().GetDuration("timeout")
		return err
	}},
	{"echo-url", func(cmd *cobra.Command, cfg *config.Config) (err error) {
		cfg.EchoURL, err = cmd.Flags().GetString("echo-url")
		return err
	}},
	{"max-attempts", func(cmd *cobra.Command, cfg *config.Config) (err error) {
		cfg.MaxAttempts, err = cmd.Flags().GetInt("max-attempts")
		return err
	}},
	{"settle", func(cmd *cobra.Command, cfg *config.Config) (err error) {
		cfg.Settle, err = cmd.Flags().GetDuration("settle")
		return err
	}},
	{"no-audit", func(cmd *cobra.Command, cfg *config.Config) (err error) {
		cfg.NoAudit, err = cmd.Flags().GetBool("no-audit")
		return err
	}},
	{"audit-file", func(cmd *cobra.Command, cfg *config.Config) (err error) {
		cfg.AuditFile, err = cmd.Flags().GetString("audit-file")
		return err
	}},
	{"db-dir", func(cmd *cobra.Command, cfg *config.Config) (err error) {
		cfg.DBDir, err = cmd.Flags().GetString("db-dir")
		return err
	}},
	{"metrics-file", func(cmd *cobra.Command, cfg *config.Config) (err error) {
		cfg.MetricsFile, err = cmd.Flags().GetString("metrics-file")
		return err
	}},
	{"log-json", func(cmd *cobra.Command, cfg *config.Config) (err error) {
		cfg.LogJSON, err = cmd.Flags().GetBool("log-json")
		return err
	}},
}

// applyFlags copies the flags the user set into cfg.
func applyFlags(cmd *cobra.Command, cfg *config.Config) error {
	for _, o := range flagOverrides {
		f := cmd.Flags().Lookup(o.name)
		if f == nil || !f.Changed {
			continue
		}
		if err := o.apply(cmd, cfg); err != nil {
			return err
		}
	}
	return nil
}

// buildConfig layers the defaults, the config file, the environment and the
// command-line flags, in that order, and validates the result.
func buildConfig(cmd *cobra.Command) (*config.Config, error) {
	cfg := config.NewConfig()
	cfg.Verbose = getVerboseFlag(cmd)
	cfg.ConfigFilePath = getConfigFlag(cmd)

	// An explicit --config must exist; the implicit locations are optional.
	configPath := config.FindConfigFile(cfg.ConfigFilePath)
	if configPath != "" {
		file, err := config.LoadConfigFile(configPath)
		if err != nil {
			return nil, fmt.Errorf("failed to load config file %s: %w", configPath, err)
		}
		if err := cfg.ApplyFile(file); err != nil {
			return nil, fmt.Errorf("invalid config file %s: %w", configPath, err)
		}
	} else if cfg.ConfigFilePath != "" {
		return nil, fmt.Errorf("%w: %s", config.ErrConfigNotFound, cfg.ConfigFilePath)
	}

	cfg.ApplyEnv(os.LookupEnv)

	if err := applyFlags(cmd, cfg); err != nil {
		return nil, err
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

// openSink opens the diagnostic log. Errors only by default; debug records
// mirrored to stderr in verbose mode.
func openSink(cfg *config.Config, stderr io.Writer) (*log.DiagnosticSink, error) {
	opts := log.SinkOptions{
		Level: slog.LevelError,
		JSON:  cfg.LogJSON,
	}
	if cfg.Verbose {
		opts.Level = slog.LevelDebug
		opts.Tee = stderr
	}
	return log.OpenDiagnosticSink(cfg.LogFile, opts)
}

// signalContext returns a context canceled on SIGINT or SIGTERM.
func signalContext(logger *slog.Logger) (context.Context, context.CancelFunc) {
	ctx, cancel := context.WithCancel(context.Background())

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	go func() {
		select {
		case <-sigCh:
			logger.Warn("received shutdown signal, cancelling", "op", "signal")
			cancel()
		case <-ctx.Done():
		}
		signal.Stop(sigCh)
	}()

	return ctx, cancel
}

// session holds the Tor-facing components of one command run.
type session struct {
	client     *tor.Client
	httpClient *http.Client
	controller *tor.CircuitController
	observer   *tor.IPObserver
	embedded   *tor.EmbeddedTor
}

// openSession connects to the system Tor daemon, or starts an embedded one
// when cfg.Embedded is set. Progress messages go to status.
func openSession(ctx context.Context, cfg *config.Config, logger *slog.Logger, status io.Writer) (*session, error) {
	s := &session{}

	if cfg.Embedded {
		client, embedded, err := startEmbeddedTor(ctx, cfg, logger, status)
		if err != nil {
			return nil, err
		}
		s.client = client
		s.embedded = embedded

		s.controller, err = embedded.NewController(
			tor.WithControlTimeout(cfg.ControlTimeout),
			tor.WithControlLogger(logger),
		)
		if err != nil {
			_ = s.Close() //nolint:errcheck // best effort cleanup
			return nil, fmt.Errorf("failed to create circuit controller: %w", err)
		}
	} else {
		client, err := tor.NewClient(cfg.ProxyAddress, cfg.RequestTimeout)
		if err != nil {
			return nil, fmt.Errorf("failed to create Tor client: %w", err)
		}
		// An unreachable proxy only makes observations unavailable; the
		// rotation still runs and reports them as unknown.
		if st := client.CheckConnection(ctx); st != tor.ProxyStatusOK {
			logger.Warn("tor proxy check failed", "op", "session", "proxy", cfg.ProxyAddress, "status", st.String())
			fmt.Fprintf(status, "Warning: tor proxy %s: %v (run 'ipchanger doctor' for details)\n", cfg.ProxyAddress, st.Error())
		}
		s.client = client

		opts := []tor.ControllerOption{
			tor.WithControlTimeout(cfg.ControlTimeout),
			tor.WithControlLogger(logger),
		}
		if auth := authenticator(cfg); auth != nil {
			opts = append(opts, tor.WithAuthenticator(auth))
		}
		s.controller, err = tor.NewCircuitController(cfg.ControlAddress, opts...)
		if err != nil {
			return nil, fmt.Errorf("failed to create circuit controller: %w", err)
		}
	}

	s.httpClient = s.client.NewHTTPClient()
	s.observer = tor.NewIPObserver(s.httpClient,
		tor.WithEchoURL(cfg.EchoURL),
		tor.WithObserverLogger(logger),
	)
	return s, nil
}

// geoClient returns a geolocation client whose lookups go through Tor.
func (s *session) geoClient(cfg *config.Config, logger *slog.Logger) *geo.Client {
	return geo.NewClient(s.httpClient,
		geo.WithBaseURL(cfg.GeoURL),
		geo.WithLogger(logger),
	)
}

// Close stops the embedded daemon, if one was started.
func (s *session) Close() error {
	if s.embedded == nil {
		return nil
	}
	return s.embedded.Stop()
}

// authenticator returns the configured control-port credentials, or nil
// when the daemon is used without authentication.
func authenticator(cfg *config.Config) *tor.Authenticator {
	switch cfg.AuthMethod() {
	case "password":
		return tor.PasswordAuth(cfg.ControlPassword)
	case "cookie":
		return tor.CookieAuth(cfg.ControlCookie)
	default:
		return nil
	}
}

// startEmbeddedTor starts a Tor daemon and returns a client that uses it.
func startEmbeddedTor(ctx context.Context, cfg *config.Config, logger *slog.Logger, status io.Writer) (*tor.Client, *tor.EmbeddedTor, error) {
	fmt.Fprintln(status, "Starting embedded Tor daemon...")
	fmt.Fprintf(status, "This may take 1-3 minutes while Tor bootstraps and connects to the network.\n\n")

	embeddedTor := tor.NewEmbeddedTor(
		tor.WithStartupTimeout(cfg.TorStartupTimeout),
	)

	if err := embeddedTor.Start(ctx); err != nil {
		return nil, nil, fmt.Errorf("failed to start embedded Tor: %w", err)
	}

	logger.Info("embedded Tor daemon started",
		"op", "start_embedded",
		"socks", embeddedTor.SocksAddr(),
		"control", embeddedTor.ControlAddr(),
	)
	fmt.Fprintf(status, "Embedded Tor daemon started (SOCKS proxy: %s)\n\n", embeddedTor.SocksAddr())

	client, err := embeddedTor.NewClient(cfg.RequestTimeout)
	if err != nil {
		_ = embeddedTor.Stop() //nolint:errcheck // best effort cleanup
		return nil, nil, fmt.Errorf("failed to create Tor client: %w", err)
	}

	if st := client.CheckConnection(ctx); st != tor.ProxyStatusOK {
		_ = embeddedTor.Stop() //nolint:errcheck // best effort cleanup
		return nil, nil, fmt.Errorf("embedded Tor proxy check failed: %s", st)
	}

	return client, embeddedTor, nil
}

// sleepContext waits for d or until ctx is done.
func sleepContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// closeWith runs closer and joins its error into *errp.
func closeWith(errp *error, closer func() error) {
	if err := closer(); err != nil {
		*errp = errors.Join(*errp, err)
	}
}
