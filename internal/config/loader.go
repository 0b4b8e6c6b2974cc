package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"
)

// DefaultConfigFile is the configuration file name searched in the current
// and home directories.
const DefaultConfigFile = ".ipchanger"

// xdgConfigFile is the file name searched in XDGConfigDir.
const xdgConfigFile = "config.yaml"

// File is the YAML configuration file. Every field is optional; absent
// fields keep the value already in Config. Durations use Go syntax ("30s").
type File struct {
	ProxyAddress      string `yaml:"proxy_address,omitempty"`
	ControlAddress    string `yaml:"control_address,omitempty"`
	ControlPassword   string `yaml:"control_password,omitempty"`
	ControlCookie     string `yaml:"control_cookie,omitempty"`
	EchoURL           string `yaml:"echo_url,omitempty"`
	GeoURL            string `yaml:"geo_url,omitempty"`
	MaxAttempts       *int   `yaml:"max_attempts,omitempty"`
	RequestTimeout    string `yaml:"request_timeout,omitempty"`
	ControlTimeout    string `yaml:"control_timeout,omitempty"`
	Settle            string `yaml:"settle,omitempty"`
	Embedded          *bool  `yaml:"embedded,omitempty"`
	TorStartupTimeout string `yaml:"tor_startup_timeout,omitempty"`
	LogFile           string `yaml:"log_file,omitempty"`
	LogJSON           *bool  `yaml:"log_json,omitempty"`
	AuditFile         string `yaml:"audit_file,omitempty"`
	DBDir             string `yaml:"db_dir,omitempty"`
	MetricsFile       string `yaml:"metrics_file,omitempty"`
	NoAudit           *bool  `yaml:"no_audit,omitempty"`
}

// LoadConfigFile loads a YAML configuration file.
// If the file does not exist, it returns ErrConfigNotFound.
func LoadConfigFile(path string) (*File, error) {
	data, err := os.ReadFile(path) //nolint:gosec // User-provided config path is intentional
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, ErrConfigNotFound
		}
		return nil, err
	}

	var cf File
	if err := yaml.Unmarshal(data, &cf); err != nil {
		return nil, fmt.Errorf("failed to parse %s: %w", path, err)
	}
	return &cf, nil
}

// FindConfigFile searches for the configuration file in the following order:
// 1. If configPath is specified, use it directly
// 2. Look for .ipchanger in the current directory
// 3. Look for .ipchanger in the user's home directory
// 4. Look for config.yaml in the XDG config directory
//
// Returns the path to the configuration file if found, or empty string if not found.
func FindConfigFile(configPath string) string {
	if configPath != "" {
		if _, err := os.Stat(configPath); err == nil {
			return configPath
		}
		return ""
	}

	if cwd, err := os.Getwd(); err == nil {
		cwdConfig := filepath.Join(cwd, DefaultConfigFile)
		if _, err := os.Stat(cwdConfig); err == nil {
			return cwdConfig
		}
	}

	if home, err := os.UserHomeDir(); err == nil {
		homeConfig := filepath.Join(home, DefaultConfigFile)
		if _, err := os.Stat(homeConfig); err == nil {
			return homeConfig
		}
	}

	xdgConfig := filepath.Join(XDGConfigDir(), xdgConfigFile)
	if _, err := os.Stat(xdgConfig); err == nil {
		return xdgConfig
	}

	return ""
}

// ApplyFile copies every field set in f into c.
func (c *Config) ApplyFile(f *File) error {
	if f == nil {
		return nil
	}

	setString(&c.ProxyAddress, f.ProxyAddress)
	setString(&c.ControlAddress, f.ControlAddress)
	setString(&c.ControlPassword, f.ControlPassword)
	setString(&c.ControlCookie, f.ControlCookie)
	setString(&c.EchoURL, f.EchoURL)
	setString(&c.GeoURL, f.GeoURL)
	setString(&c.LogFile, f.LogFile)
	setString(&c.AuditFile, f.AuditFile)
	setString(&c.DBDir, f.DBDir)
	setString(&c.MetricsFile, f.MetricsFile)

	if f.MaxAttempts != nil {
		c.MaxAttempts = *f.MaxAttempts
	}
	if f.Embedded != nil {
		c.Embedded = *f.Embedded
	}
	if f.LogJSON != nil {
		c.LogJSON = *f.LogJSON
	}
	if f.NoAudit != nil {
		c.NoAudit = *f.NoAudit
	}

	durations := []struct {
		key   string
		value string
		dst   *time.Duration
	}{
		{"request_timeout", f.RequestTimeout, &c.RequestTimeout},
		{"control_timeout", f.ControlTimeout, &c.ControlTimeout},
		{"settle", f.Settle, &c.Settle},
		{"tor_startup_timeout", f.TorStartupTimeout, &c.TorStartupTimeout},
	}
	for _, d := range durations {
		if d.value == "" {
			continue
		}
		v, err := time.ParseDuration(d.value)
		if err != nil {
			return fmt.Errorf("%w: %s: %q", ErrInvalidDuration, d.key, d.value)
		}
		*d.dst = v
	}

	return nil
}

// ApplyEnv reads the control credentials from the environment. lookup is
// normally os.LookupEnv.
func (c *Config) ApplyEnv(lookup func(string) (string, bool)) {
	if v, ok := lookup(ControlPasswordEnv); ok && v != "" {
		c.ControlPassword = v
	}
	if v, ok := lookup(ControlCookieEnv); ok && v != "" {
		c.ControlCookie = v
	}
}

func setString(dst *string, v string) {
	if v != "" {
		*dst = v
	}
}
