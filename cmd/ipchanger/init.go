package main

import (
	"embed"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/nao1215/ipchanger/internal/config"
)

//go:embed templates/ipchanger.yaml
var configTemplate embed.FS

// configFileName is the default configuration file name.
const configFileName = config.DefaultConfigFile

// cookieAuto asks init to look for the Tor auth cookie.
const cookieAuto = "auto"

// cookiePlaceholder is the commented control_cookie line of the template.
// It is replaced when a cookie path is chosen.
const cookiePlaceholder = `# control_cookie: "/run/tor/control.authcookie"`

// torCookiePaths are the control_auth_cookie locations of common Tor
// packages, in lookup order.
var torCookiePaths = []string{
	"/run/tor/control.authcookie",
	"/var/run/tor/control.authcookie",
	"/var/lib/tor/control_auth_cookie",
	"/usr/local/var/lib/tor/control_auth_cookie",
	"/opt/homebrew/var/lib/tor/control_auth_cookie",
}

// NewInitCmd creates the init command.
func NewInitCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "init",
		Short: "Write an ipchanger configuration file",
		Long: `Init writes a commented configuration file with the default Tor proxy and
control port addresses, the rotation attempt budget and the audit locations.

Control port credentials are never written as a password. Use --cookie to
point ipchanger at Tor's auth cookie, or export IPCHANGER_CONTROL_PASSWORD
when the daemon uses HashedControlPassword.

Examples:
  # Create .ipchanger in the current directory
  ipchanger init

  # Write the XDG config and use the first Tor cookie found on this host
  ipchanger init -o ~/.config/ipchanger/config.yaml --cookie auto

  # Print the configuration instead of writing it
  ipchanger init --stdout`,
		RunE: runInitCmd,
	}

	cmd.Flags().StringP("output", "o", configFileName,
		"Output file path for the configuration")
	cmd.Flags().BoolP("force", "f", false,
		"Overwrite existing configuration file")
	cmd.Flags().String("cookie", "",
		`Tor control auth cookie path, or "auto" to search the usual locations`)
	cmd.Flags().Bool("stdout", false,
		"Print the configuration to stdout instead of writing a file")

	return cmd
}

// runInitCmd executes the init command.
func runInitCmd(cmd *cobra.Command, _ []string) error {
	outputPath, err := cmd.Flags().GetString("output")
	if err != nil {
		return err
	}
	force, err := cmd.Flags().GetBool("force")
	if err != nil {
		return err
	}
	cookie, err := cmd.Flags().GetString("cookie")
	if err != nil {
		return err
	}
	toStdout, err := cmd.Flags().GetBool("stdout")
	if err != nil {
		return err
	}

	if cookie == cookieAuto {
		cookie = findTorCookie(torCookiePaths)
		if cookie == "" {
			fmt.Fprintln(cmd.ErrOrStderr(), "Warning: no Tor auth cookie found; control port authentication is left unset")
		}
	}

	content, err := renderConfig(cookie)
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	if toStdout {
		_, err := out.Write(content)
		return err
	}

	if !force {
		if _, err := os.Stat(outputPath); err == nil {
			return fmt.Errorf("configuration file already exists: %s (use -f to overwrite)", outputPath)
		}
	}

	if dir := filepath.Dir(outputPath); dir != "" && dir != "." {
		if err := os.MkdirAll(dir, 0750); err != nil {
			return fmt.Errorf("failed to create directory: %w", err)
		}
	}

	// Owner-only: the file may later receive a control password.
	if err := os.WriteFile(outputPath, content, 0600); err != nil {
		return fmt.Errorf("failed to write configuration file: %w", err)
	}

	writeInitSummary(out, outputPath, cookie)
	return nil
}

// renderConfig returns the template with control_cookie set to cookie, when
// given. The result is loaded and validated the same way rotate loads it.
func renderConfig(cookie string) ([]byte, error) {
	content, err := configTemplate.ReadFile("templates/ipchanger.yaml")
	if err != nil {
		return nil, fmt.Errorf("failed to read config template: %w", err)
	}

	if cookie != "" {
		line := "control_cookie: " + strconv.Quote(cookie)
		content = []byte(strings.Replace(string(content), cookiePlaceholder, line, 1))
	}

	var f config.File
	if err := yaml.Unmarshal(content, &f); err != nil {
		return nil, fmt.Errorf("generated configuration is not valid YAML: %w", err)
	}
	cfg := config.NewConfig()
	if err := cfg.ApplyFile(&f); err != nil {
		return nil, fmt.Errorf("generated configuration is invalid: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("generated configuration is invalid: %w", err)
	}
	return content, nil
}

// findTorCookie returns the first regular file in paths, or "".
func findTorCookie(paths []string) string {
	for _, p := range paths {
		if info, err := os.Stat(p); err == nil && info.Mode().IsRegular() {
			return p
		}
	}
	return ""
}

func writeInitSummary(w io.Writer, path, cookie string) {
	fmt.Fprintf(w, "Created configuration file: %s\n", path)
	if cookie != "" {
		fmt.Fprintf(w, "Control port authentication: cookie %s\n", cookie)
	} else {
		fmt.Fprintln(w, "Control port authentication: none")
		fmt.Fprintf(w, "  Set %s if your Tor daemon requires a password.\n", config.ControlPasswordEnv)
	}
	fmt.Fprintln(w, "\nRun 'ipchanger doctor' to check that Tor is reachable.")
}
