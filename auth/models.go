// ABOUTME: Request and response models for the auth endpoints
// ABOUTME: Validates credentials and registrations before they reach the API

package auth

import (
	"errors"
	"fmt"
	"regexp"
	"strings"

	"github.com/markalston/xam-client/client"
)

const minPasswordLength = 8

// Account roles accepted at registration.
const (
	RoleClient  = "client"
	RolePartner = "partner"
)

// ErrInvalidInput wraps every validation failure.
var ErrInvalidInput = errors.New("invalid input")

// emailPattern is a basic shape check; the API has the final word.
var emailPattern = regexp.MustCompile(`^[^\s@]+@[^\s@]+\.[^\s@]+$`)

// User is the account returned by login and register.
type User struct {
	ID        string `json:"id"`
	Email     string `json:"email"`
	FirstName string `json:"firstName"`
	LastName  string `json:"lastName"`
	Role      string `json:"role"`
}

// Credentials is the login form.
type Credentials struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

// Validate trims the email and checks both fields are usable.
func (c *Credentials) Validate() error {
	c.Email = strings.TrimSpace(c.Email)
	if err := validateEmail(c.Email); err != nil {
		return err
	}
	if c.Password == "" {
		return invalid("password is required")
	}
	return nil
}

// Registration is the sign-up form.
type Registration struct {
	Email     string `json:"email"`
	Password  string `json:"password"`
	FirstName string `json:"firstName"`
	LastName  string `json:"lastName"`
	Role      string `json:"role,omitempty"`
}

// Validate normalises the form and checks every required field.
func (r *Registration) Validate() error {
	r.Email = strings.TrimSpace(r.Email)
	r.FirstName = strings.TrimSpace(r.FirstName)
	r.LastName = strings.TrimSpace(r.LastName)
	r.Role = strings.ToLower(strings.TrimSpace(r.Role))

	if err := validateEmail(r.Email); err != nil {
		return err
	}
	if r.Password == "" {
		return invalid("password is required")
	}
	if len([]rune(r.Password)) < minPasswordLength {
		return invalid(fmt.Sprintf("password must be at least %d characters", minPasswordLength))
	}
	if r.FirstName == "" {
		return invalid("first name is required")
	}
	if r.LastName == "" {
		return invalid("last name is required")
	}
	switch r.Role {
	case "":
		r.Role = RoleClient
	case RoleClient, RolePartner:
	default:
		return invalid(fmt.Sprintf("role must be %q or %q", RoleClient, RolePartner))
	}
	return nil
}

// authResponse is the body of a successful login or register.
type authResponse struct {
	client.TokenResponse
	User User `json:"user"`
}

type logoutRequest struct {
	RefreshToken string `json:"refreshToken"`
}

func validateEmail(email string) error {
	if email == "" {
		return invalid("email is required")
	}
	if !emailPattern.MatchString(email) {
		return invalid("invalid email format")
	}
	return nil
}

func invalid(msg string) error {
	return fmt.Errorf("%w: %s", ErrInvalidInput, msg)
}
