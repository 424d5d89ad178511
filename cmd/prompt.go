// ABOUTME: Interactive prompts for credentials using huh forms
// ABOUTME: Only fields not supplied by flags are asked for

package cmd

import (
	"context"
	"errors"
	"io"
	"os"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/huh"

	"github.com/markalston/xam-client/auth"
)

// Prompt I/O; tests replace these.
var (
	promptInput  io.Reader = os.Stdin
	promptOutput io.Writer = os.Stderr
)

var roleOptions = []huh.Option[string]{
	huh.NewOption("Client", auth.RoleClient),
	huh.NewOption("Partner", auth.RolePartner),
}

func required(msg string) func(string) error {
	return func(s string) error {
		if s == "" {
			return errors.New(msg)
		}
		return nil
	}
}

func runForm(ctx context.Context, fields ...huh.Field) error {
	if len(fields) == 0 {
		return nil
	}
	form := huh.NewForm(huh.NewGroup(fields...)).
		WithTheme(formTheme()).
		WithKeyMap(formKeyMap()).
		WithProgramOptions(tea.WithInput(promptInput), tea.WithOutput(promptOutput))

	if err := form.RunWithContext(ctx); err != nil {
		if errors.Is(err, huh.ErrUserAborted) {
			return usageError(errors.New("aborted"))
		}
		return err
	}
	return nil
}

func emailField(v *string) huh.Field {
	return huh.NewInput().
		Title("Email").
		Value(v).
		Validate(required("email is required"))
}

func passwordField(v *string) huh.Field {
	return huh.NewInput().
		Title("Password").
		EchoMode(huh.EchoModePassword).
		Value(v).
		Validate(required("password is required"))
}

// promptCredentials fills in whatever the login flags left empty.
func promptCredentials(ctx context.Context, creds *auth.Credentials) error {
	var fields []huh.Field
	if creds.Email == "" {
		fields = append(fields, emailField(&creds.Email))
	}
	if creds.Password == "" {
		fields = append(fields, passwordField(&creds.Password))
	}
	return runForm(ctx, fields...)
}

// promptRegistration fills in whatever the register flags left empty.
func promptRegistration(ctx context.Context, reg *auth.Registration) error {
	var fields []huh.Field
	if reg.Email == "" {
		fields = append(fields, emailField(&reg.Email))
	}
	if reg.Password == "" {
		fields = append(fields, passwordField(&reg.Password))
	}
	if reg.FirstName == "" {
		fields = append(fields, huh.NewInput().
			Title("First name").
			Value(&reg.FirstName).
			Validate(required("first name is required")))
	}
	if reg.LastName == "" {
		fields = append(fields, huh.NewInput().
			Title("Last name").
			Value(&reg.LastName).
			Validate(required("last name is required")))
	}
	// Role has a default, so it is only asked for in an interactive session.
	if reg.Role == "" && len(fields) > 0 {
		reg.Role = auth.RoleClient
		fields = append(fields, huh.NewSelect[string]().
			Title("Account type").
			Options(roleOptions...).
			Value(&reg.Role))
	}
	return runForm(ctx, fields...)
}
