// ABOUTME: Raw API request commands for the xam CLI
// ABOUTME: get, post, put, and delete with automatic token refresh

package cmd

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/markalston/xam-client/client"
)

var (
	requestData string
	skipAuth    bool
	skipRefresh bool
)

func newRequestCmd(method string, withBody bool) *cobra.Command {
	cmd := &cobra.Command{
		Use:   fmt.Sprintf("%s <path>", strings.ToLower(method)),
		Short: fmt.Sprintf("Send a %s request to the API", method),
		Args:  cobra.ExactArgs(1),
		Run: func(cmd *cobra.Command, args []string) {
			runCommand(func(ctx context.Context) int {
				return runRequest(ctx, os.Stdout, os.Stderr, method, args[0])
			})
		},
	}
	if withBody {
		cmd.Flags().StringVarP(&requestData, "data", "d", "", "JSON request body ('-' reads stdin)")
	}
	cmd.Flags().BoolVar(&skipAuth, "skip-auth", false, "Send without the Authorization header")
	cmd.Flags().BoolVar(&skipRefresh, "skip-refresh", false, "Do not refresh the token on 401")
	return cmd
}

func init() {
	rootCmd.AddCommand(
		newRequestCmd(http.MethodGet, false),
		newRequestCmd(http.MethodPost, true),
		newRequestCmd(http.MethodPut, true),
		newRequestCmd(http.MethodDelete, false),
	)
}

// requestInput is where --data - reads from; tests replace it.
var requestInput io.Reader = os.Stdin

func runRequest(ctx context.Context, w, stderr io.Writer, method, path string) int {
	req := client.Request{
		Method:      method,
		Path:        path,
		SkipAuth:    skipAuth,
		SkipRefresh: skipRefresh,
	}

	if requestData != "" {
		data := []byte(requestData)
		if requestData == "-" {
			var err error
			if data, err = io.ReadAll(requestInput); err != nil {
				return fail(w, usageError(fmt.Errorf("failed to read body: %w", err)))
			}
		}
		if !json.Valid(data) {
			return fail(w, usageError(fmt.Errorf("--data is not valid JSON")))
		}
		req.Body = json.RawMessage(data)
	}

	return withSession(ctx, w, stderr, func(s *session) error {
		raw, err := s.client.Execute(ctx, req)
		if err != nil {
			return err
		}
		printRaw(w, raw)
		return nil
	})
}

// printRaw pretty-prints a JSON response; an empty response prints nothing
// unless --json asks for a value.
func printRaw(w io.Writer, raw json.RawMessage) {
	if raw == nil {
		if IsJSONOutput() {
			fmt.Fprintln(w, "null")
		}
		return
	}
	var buf bytes.Buffer
	if err := json.Indent(&buf, raw, "", "  "); err != nil {
		fmt.Fprintln(w, string(raw))
		return
	}
	fmt.Fprintln(w, buf.String())
}

