// ABOUTME: Root command for the xam CLI
// ABOUTME: Handles global flags, configuration, and exit codes

package cmd

import (
	"errors"
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/markalston/xam-client/auth"
	"github.com/markalston/xam-client/client"
	"github.com/markalston/xam-client/config"
)

// Exit codes
const (
	exitOK               = 0
	exitUsage            = 1
	exitRequest          = 2
	exitNotAuthenticated = 3
)

var (
	apiURL      string
	jsonOutput  bool
	configPath  string
	storeName   string
	showMetrics bool
)

// rootCmd is the base command
var rootCmd = &cobra.Command{
	Use:   "xam",
	Short: "CLI for the marketplace API",
	Long: `xam is a command-line client for the marketplace REST API.

It signs in, keeps the access/refresh token pair in a local store, and
refreshes the access token transparently when the API answers 401.

Environment Variables:
  XAM_API_URL       Backend API URL (default: http://localhost:3000)
  XAM_TOKEN_STORE   Token store: file, memory, redis, or jar (default: file)
  XAM_CONFIG        Path to a YAML config file
  LOG_LEVEL         debug, info, warn, error (default: warn)`,
	SilenceUsage: true,
}

// Execute runs the root command
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	rootCmd.PersistentFlags().StringVar(&apiURL, "api-url", "", "Backend API URL (overrides XAM_API_URL)")
	rootCmd.PersistentFlags().BoolVar(&jsonOutput, "json", false, "Output JSON instead of human-readable text")
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "Path to YAML config file (overrides XAM_CONFIG)")
	rootCmd.PersistentFlags().StringVar(&storeName, "store", "", "Token store: file, memory, redis, or jar (overrides XAM_TOKEN_STORE)")
	rootCmd.PersistentFlags().BoolVar(&showMetrics, "metrics", false, "Print client metrics to stderr when done")
	rootCmd.PersistentFlags().MarkHidden("metrics")
}

// loadConfig reads configuration and applies command-line overrides.
func loadConfig() (*config.Config, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, err
	}
	if apiURL != "" {
		cfg.APIURL = config.NormalizeURL(apiURL)
	}
	if storeName != "" {
		cfg.TokenStore = config.NormalizeStore(storeName)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// IsJSONOutput returns whether JSON output is requested
func IsJSONOutput() bool {
	return jsonOutput
}

// exitCodeFor maps an error to the process exit code.
func exitCodeFor(err error) int {
	var uerr *usageErr
	switch {
	case err == nil:
		return exitOK
	case errors.As(err, &uerr), errors.Is(err, auth.ErrInvalidInput):
		return exitUsage
	case errors.Is(err, client.ErrAuthenticationFailed), errors.Is(err, auth.ErrNotAuthenticated):
		return exitNotAuthenticated
	default:
		return exitRequest
	}
}

// usageErr marks errors caused by bad command-line input or configuration.
type usageErr struct {
	err error
}

func (e *usageErr) Error() string { return e.err.Error() }
func (e *usageErr) Unwrap() error { return e.err }

func usageError(err error) error {
	return &usageErr{err: err}
}

// fail prints err and returns its exit code.
func fail(w io.Writer, err error) int {
	msg := err.Error()
	var herr *client.HTTPError
	if errors.As(err, &herr) && herr != client.ErrAuthenticationFailed {
		msg = fmt.Sprintf("%s (HTTP %d)", herr.Message, herr.StatusCode)
	}
	fmt.Fprintf(w, "%s %s\n", errorLabel.Render("Error:"), msg)
	return exitCodeFor(err)
}
