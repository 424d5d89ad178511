// ABOUTME: Session commands for the xam CLI
// ABOUTME: login, register, logout, refresh, and status

package cmd

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/markalston/xam-client/auth"
)

var (
	loginCreds auth.Credentials
	newAccount auth.Registration
)

var loginCmd = &cobra.Command{
	Use:   "login",
	Short: "Sign in and store tokens",
	Long:  `Sign in with email and password. Missing values are prompted for.`,
	Args:  cobra.NoArgs,
	Run: func(cmd *cobra.Command, args []string) {
		runCommand(func(ctx context.Context) int {
			return runLogin(ctx, os.Stdout, os.Stderr)
		})
	},
}

var registerCmd = &cobra.Command{
	Use:   "register",
	Short: "Create an account and store tokens",
	Long:  `Create a client or partner account. Missing values are prompted for.`,
	Args:  cobra.NoArgs,
	Run: func(cmd *cobra.Command, args []string) {
		runCommand(func(ctx context.Context) int {
			return runRegister(ctx, os.Stdout, os.Stderr)
		})
	},
}

var logoutCmd = &cobra.Command{
	Use:   "logout",
	Short: "Revoke the session and clear stored tokens",
	Args:  cobra.NoArgs,
	Run: func(cmd *cobra.Command, args []string) {
		runCommand(func(ctx context.Context) int {
			return runLogout(ctx, os.Stdout, os.Stderr)
		})
	},
}

var refreshCmd = &cobra.Command{
	Use:   "refresh",
	Short: "Exchange the refresh token for a new token pair",
	Args:  cobra.NoArgs,
	Run: func(cmd *cobra.Command, args []string) {
		runCommand(func(ctx context.Context) int {
			return runRefresh(ctx, os.Stdout, os.Stderr)
		})
	},
}

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show the stored session",
	Long:  `Show the stored session without contacting the API. Exits 3 when there is no usable session.`,
	Args:  cobra.NoArgs,
	Run: func(cmd *cobra.Command, args []string) {
		runCommand(func(ctx context.Context) int {
			return runStatus(ctx, os.Stdout, os.Stderr)
		})
	},
}

func init() {
	loginCmd.Flags().StringVar(&loginCreds.Email, "email", "", "Account email")
	loginCmd.Flags().StringVar(&loginCreds.Password, "password", "", "Account password (prompted when omitted)")

	registerCmd.Flags().StringVar(&newAccount.Email, "email", "", "Account email")
	registerCmd.Flags().StringVar(&newAccount.Password, "password", "", "Account password, at least 8 characters")
	registerCmd.Flags().StringVar(&newAccount.FirstName, "first-name", "", "First name")
	registerCmd.Flags().StringVar(&newAccount.LastName, "last-name", "", "Last name")
	registerCmd.Flags().StringVar(&newAccount.Role, "role", "", "Account type: client or partner (default client)")

	rootCmd.AddCommand(loginCmd, registerCmd, logoutCmd, refreshCmd, statusCmd)
}

// runCommand runs fn with a context cancelled on SIGINT/SIGTERM and exits
// with its code.
func runCommand(fn func(ctx context.Context) int) {
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	exitCode := fn(ctx)
	cancel()
	if exitCode != 0 {
		os.Exit(exitCode)
	}
}

func runLogin(ctx context.Context, w, stderr io.Writer) int {
	creds := loginCreds
	if err := promptCredentials(ctx, &creds); err != nil {
		return fail(w, err)
	}

	return withSession(ctx, w, stderr, func(s *session) error {
		user, err := s.auth.Login(ctx, creds)
		if err != nil {
			return err
		}
		printUser(w, "Logged in as", user)
		return nil
	})
}

func runRegister(ctx context.Context, w, stderr io.Writer) int {
	reg := newAccount
	if err := promptRegistration(ctx, &reg); err != nil {
		return fail(w, err)
	}

	return withSession(ctx, w, stderr, func(s *session) error {
		user, err := s.auth.Register(ctx, reg)
		if err != nil {
			return err
		}
		printUser(w, "Registered", user)
		return nil
	})
}

func runLogout(ctx context.Context, w, stderr io.Writer) int {
	return withSession(ctx, w, stderr, func(s *session) error {
		if err := s.auth.Logout(ctx); err != nil {
			return err
		}
		if IsJSONOutput() {
			printJSON(w, map[string]bool{"loggedOut": true})
		} else {
			fmt.Fprintln(w, successLabel.Render("Logged out"))
		}
		return nil
	})
}

func runRefresh(ctx context.Context, w, stderr io.Writer) int {
	return withSession(ctx, w, stderr, func(s *session) error {
		if err := s.auth.Refresh(ctx); err != nil {
			return err
		}
		st := s.auth.Status(ctx)
		if IsJSONOutput() {
			printJSON(w, st)
		} else {
			fmt.Fprintf(w, "%s expires %s\n", successLabel.Render("Token refreshed,"), formatExpiry(st.ExpiresAt))
		}
		return nil
	})
}

func runStatus(ctx context.Context, w, stderr io.Writer) int {
	var st auth.Status
	code := withSession(ctx, w, stderr, func(s *session) error {
		st = s.auth.Status(ctx)
		if IsJSONOutput() {
			printJSON(w, st)
		} else {
			fmt.Fprintln(w, formatStatusHuman(s.cfg.APIURL, st))
		}
		return nil
	})
	if code == exitOK && !st.Authenticated && !st.CanRefresh {
		return exitNotAuthenticated
	}
	return code
}

func printUser(w io.Writer, verb string, user *auth.User) {
	if IsJSONOutput() {
		printJSON(w, user)
		return
	}
	name := strings.TrimSpace(user.FirstName + " " + user.LastName)
	fmt.Fprintf(w, "%s %s <%s> (%s)\n", successLabel.Render(verb), name, user.Email, user.Role)
}

// formatStatusHuman formats session status for human readability
func formatStatusHuman(url string, st auth.Status) string {
	var b strings.Builder
	row := func(label, value string) {
		fmt.Fprintf(&b, "%s%s\n", fieldLabel.Render(label), value)
	}

	row("Backend:", url)
	switch {
	case st.Authenticated && !st.Expired:
		row("Session:", successLabel.Render("active"))
	case st.CanRefresh:
		row("Session:", warningLabel.Render("expired, refreshable"))
	default:
		row("Session:", errorLabel.Render("not logged in"))
	}
	if st.Authenticated {
		row("Expires:", formatExpiry(st.ExpiresAt))
	}
	if st.Subject != "" {
		row("User ID:", st.Subject)
	}
	if st.Email != "" {
		row("Email:", st.Email)
	}
	if st.Role != "" {
		row("Role:", st.Role)
	}
	return strings.TrimRight(b.String(), "\n")
}

func formatExpiry(t time.Time) string {
	if t.IsZero() {
		return "unknown"
	}
	remaining := time.Until(t).Round(time.Second)
	if remaining <= 0 {
		return fmt.Sprintf("%s (expired)", t.Local().Format(time.RFC3339))
	}
	return fmt.Sprintf("%s (in %s)", t.Local().Format(time.RFC3339), remaining)
}

func printJSON(w io.Writer, v any) {
	data, _ := json.MarshalIndent(v, "", "  ")
	fmt.Fprintln(w, string(data))
}
