package main

import (
	"bytes"
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/spf13/cobra"

	"github.com/nao1215/ipchanger/internal/config"
	"github.com/nao1215/ipchanger/internal/log"
)

// newFlagTestCmd returns a rotate command with the global flags attached and
// args parsed, without running it.
func newFlagTestCmd(t *testing.T, args ...string) *cobra.Command {
	t.Helper()

	cmd := NewRotateCmd()
	cmd.Flags().BoolP("verbose", "v", false, "")
	cmd.Flags().StringP("config", "c", "", "")
	if err := cmd.ParseFlags(args); err != nil {
		t.Fatalf("ParseFlags() error = %v", err)
	}
	return cmd
}

func writeConfigFile(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte(content), 0600); err != nil {
		t.Fatalf("failed to write config: %v", err)
	}
	return path
}

func TestBuildConfig(t *testing.T) {
	t.Parallel()

	t.Run("explicit config file must exist", func(t *testing.T) {
		t.Parallel()
		missing := filepath.Join(t.TempDir(), "missing.yaml")
		cmd := newFlagTestCmd(t, "--config", missing)

		_, err := buildConfig(cmd)
		if !errors.Is(err, config.ErrConfigNotFound) {
			t.Errorf("buildConfig() error = %v, want ErrConfigNotFound", err)
		}
	})

	t.Run("config file values are applied", func(t *testing.T) {
		t.Parallel()
		path := writeConfigFile(t, "proxy_address: \"127.0.0.1:9150\"\nmax_attempts: 7\nsettle: \"2s\"\n")
		cmd := newFlagTestCmd(t, "--config", path)

		cfg, err := buildConfig(cmd)
		if err != nil {
			t.Fatalf("buildConfig() error = %v", err)
		}
		if cfg.ProxyAddress != "127.0.0.1:9150" {
			t.Errorf("ProxyAddress = %q", cfg.ProxyAddress)
		}
		if cfg.MaxAttempts != 7 {
			t.Errorf("MaxAttempts = %d, want 7", cfg.MaxAttempts)
		}
		if cfg.Settle != 2*time.Second {
			t.Errorf("Settle = %v, want 2s", cfg.Settle)
		}
		if cfg.ConfigFilePath != path {
			t.Errorf("ConfigFilePath = %q, want %q", cfg.ConfigFilePath, path)
		}
	})

	t.Run("flags override the config file", func(t *testing.T) {
		t.Parallel()
		path := writeConfigFile(t, "max_attempts: 7\ncontrol_address: \"127.0.0.1:9151\"\n")
		cmd := newFlagTestCmd(t, "--config", path, "--max-attempts", "2", "--no-audit", "-v")

		cfg, err := buildConfig(cmd)
		if err != nil {
			t.Fatalf("buildConfig() error = %v", err)
		}
		if cfg.MaxAttempts != 2 {
			t.Errorf("MaxAttempts = %d, want 2", cfg.MaxAttempts)
		}
		if cfg.ControlAddress != "127.0.0.1:9151" {
			t.Errorf("ControlAddress = %q, want the file value", cfg.ControlAddress)
		}
		if !cfg.NoAudit {
			t.Error("NoAudit = false, want true")
		}
		if !cfg.Verbose {
			t.Error("Verbose = false, want true")
		}
	})

	t.Run("unchanged flags keep the file value", func(t *testing.T) {
		t.Parallel()
		path := writeConfigFile(t, "settle: \"1s\"\n")
		cmd := newFlagTestCmd(t, "--config", path)

		cfg, err := buildConfig(cmd)
		if err != nil {
			t.Fatalf("buildConfig() error = %v", err)
		}
		if cfg.Settle != time.Second {
			t.Errorf("Settle = %v, want 1s", cfg.Settle)
		}
	})

	t.Run("invalid values are rejected", func(t *testing.T) {
		t.Parallel()
		path := writeConfigFile(t, "")
		cmd := newFlagTestCmd(t, "--config", path, "--max-attempts", "0")

		_, err := buildConfig(cmd)
		if !errors.Is(err, config.ErrInvalidMaxAttempts) {
			t.Errorf("buildConfig() error = %v, want ErrInvalidMaxAttempts", err)
		}
	})

	t.Run("invalid duration in file", func(t *testing.T) {
		t.Parallel()
		path := writeConfigFile(t, "settle: \"soon\"\n")
		cmd := newFlagTestCmd(t, "--config", path)

		_, err := buildConfig(cmd)
		if !errors.Is(err, config.ErrInvalidDuration) {
			t.Errorf("buildConfig() error = %v, want ErrInvalidDuration", err)
		}
	})
}

func TestBuildConfigReadsPasswordFromEnv(t *testing.T) {
	t.Setenv(config.ControlPasswordEnv, "from-env")
	t.Setenv(config.ControlCookieEnv, "")

	path := writeConfigFile(t, "")
	cmd := newFlagTestCmd(t, "--config", path)

	cfg, err := buildConfig(cmd)
	if err != nil {
		t.Fatalf("buildConfig() error = %v", err)
	}
	if cfg.AuthMethod() != "password" {
		t.Errorf("AuthMethod() = %q, want password", cfg.AuthMethod())
	}

	auth := authenticator(cfg)
	if auth == nil || auth.Method() != "password" {
		t.Fatalf("authenticator() = %v, want password auth", auth)
	}
}

func TestAuthenticator(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		cfg  *config.Config
		want string
	}{
		{name: "none by default", cfg: &config.Config{}, want: ""},
		{name: "password", cfg: &config.Config{ControlPassword: "secret"}, want: "password"},
		{name: "cookie", cfg: &config.Config{ControlCookie: "/run/tor/control.authcookie"}, want: "cookie"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			auth := authenticator(tt.cfg)
			if tt.want == "" {
				if auth != nil {
					t.Errorf("authenticator() = %v, want nil", auth)
				}
				return
			}
			if auth == nil || auth.Method() != tt.want {
				t.Errorf("authenticator() method = %v, want %s", auth, tt.want)
			}
		})
	}
}

func TestOpenSink(t *testing.T) {
	t.Parallel()

	t.Run("errors only by default", func(t *testing.T) {
		t.Parallel()
		cfg := config.NewConfig()
		cfg.LogFile = filepath.Join(t.TempDir(), "state", "ipchanger.log")

		var stderr bytes.Buffer
		sink, err := openSink(cfg, &stderr)
		if err != nil {
			t.Fatalf("openSink() error = %v", err)
		}
		sink.Logger().Info("not written", "op", "test")
		sink.Logger().Error("written", "op", "test")
		if err := sink.Close(); err != nil {
			t.Fatalf("Close() error = %v", err)
		}

		data, err := os.ReadFile(cfg.LogFile)
		if err != nil {
			t.Fatalf("failed to read log: %v", err)
		}
		if strings.Contains(string(data), "not written") {
			t.Error("info record reached the sink")
		}
		if !strings.Contains(string(data), "written") {
			t.Error("error record missing from the sink")
		}
		if stderr.Len() != 0 {
			t.Errorf("stderr = %q, want nothing without --verbose", stderr.String())
		}
	})

	t.Run("verbose mirrors debug to stderr", func(t *testing.T) {
		t.Parallel()
		cfg := config.NewConfig()
		cfg.LogFile = filepath.Join(t.TempDir(), "ipchanger.log")
		cfg.Verbose = true

		var stderr bytes.Buffer
		sink, err := openSink(cfg, &stderr)
		if err != nil {
			t.Fatalf("openSink() error = %v", err)
		}
		sink.Logger().Debug("debug record", "op", "test")
		if err := sink.Close(); err != nil {
			t.Fatalf("Close() error = %v", err)
		}

		if !strings.Contains(stderr.String(), "debug record") {
			t.Errorf("stderr = %q, want the debug record", stderr.String())
		}
	})
}

func TestSleepContext(t *testing.T) {
	t.Parallel()

	t.Run("zero duration returns immediately", func(t *testing.T) {
		t.Parallel()
		if err := sleepContext(context.Background(), 0); err != nil {
			t.Errorf("sleepContext() error = %v", err)
		}
	})

	t.Run("waits for the duration", func(t *testing.T) {
		t.Parallel()
		start := time.Now()
		if err := sleepContext(context.Background(), 20*time.Millisecond); err != nil {
			t.Fatalf("sleepContext() error = %v", err)
		}
		if elapsed := time.Since(start); elapsed < 20*time.Millisecond {
			t.Errorf("returned after %v", elapsed)
		}
	})

	t.Run("canceled context interrupts the wait", func(t *testing.T) {
		t.Parallel()
		ctx, cancel := context.WithCancel(context.Background())
		cancel()
		if err := sleepContext(ctx, time.Hour); !errors.Is(err, context.Canceled) {
			t.Errorf("sleepContext() error = %v, want context.Canceled", err)
		}
	})
}

func TestCloseWith(t *testing.T) {
	t.Parallel()

	errFirst := errors.New("first")
	errClose := errors.New("close")

	err := errFirst
	closeWith(&err, func() error { return errClose })
	if !errors.Is(err, errFirst) || !errors.Is(err, errClose) {
		t.Errorf("closeWith() = %v, want both errors", err)
	}

	var none error
	closeWith(&none, func() error { return nil })
	if none != nil {
		t.Errorf("closeWith() = %v, want nil", none)
	}
}

func TestOpenSessionWithUnreachableProxy(t *testing.T) {
	t.Parallel()

	cfg := config.NewConfig()
	cfg.ProxyAddress = closedAddress(t)
	cfg.ControlAddress = closedAddress(t)

	var status bytes.Buffer
	sess, err := openSession(context.Background(), cfg, log.Discard(), &status)
	if err != nil {
		t.Fatalf("openSession() error = %v, want a session", err)
	}
	t.Cleanup(func() { _ = sess.Close() })

	if sess.observer == nil || sess.controller == nil {
		t.Fatal("expected observer and controller to be set")
	}
	if !strings.Contains(status.String(), "Warning: tor proxy "+cfg.ProxyAddress) {
		t.Errorf("status = %q, want a proxy warning", status.String())
	}

	addr, err := sess.observer.Observe(context.Background())
	if err == nil {
		t.Errorf("Observe() = %q, want an error through a closed proxy", addr)
	}
	if !addr.IsEmpty() {
		t.Errorf("Observe() address = %q, want empty", addr)
	}
}
