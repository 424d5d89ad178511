package fakeapi

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
)

func post(t *testing.T, h http.Handler, path string, body any, bearer string) *httptest.ResponseRecorder {
	t.Helper()
	data, _ := json.Marshal(body)
	req := httptest.NewRequest(http.MethodPost, path, bytes.NewReader(data))
	req.Header.Set("Content-Type", "application/json")
	if bearer != "" {
		req.Header.Set("Authorization", "Bearer "+bearer)
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func get(h http.Handler, path, bearer string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodGet, path, nil)
	if bearer != "" {
		req.Header.Set("Authorization", "Bearer "+bearer)
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func TestLoginAndAccessProtectedRoute(t *testing.T) {
	s := New()
	s.AddUser("ana@example.com", "password123", "Ana", "Lee", "client")

	rec := post(t, s, "/auth/login", loginRequest{Email: "ana@example.com", Password: "password123"}, "")
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	var resp authResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if resp.AccessToken == "" || resp.RefreshToken == "" || resp.ExpiresIn != 900 {
		t.Errorf("unexpected tokens: %+v", resp.tokenResponse)
	}

	if rec := get(s, "/users/me", resp.AccessToken); rec.Code != http.StatusOK {
		t.Errorf("expected 200 from /users/me, got %d", rec.Code)
	}

	s.RevokeAccessTokens()
	if rec := get(s, "/users/me", resp.AccessToken); rec.Code != http.StatusUnauthorized {
		t.Errorf("expected 401 after revocation, got %d", rec.Code)
	}
}

func TestLogin_WrongPassword(t *testing.T) {
	s := New()
	s.AddUser("ana@example.com", "password123", "Ana", "Lee", "client")

	rec := post(t, s, "/auth/login", loginRequest{Email: "ana@example.com", Password: "nope"}, "")
	if rec.Code != http.StatusUnauthorized {
		t.Errorf("expected 401, got %d", rec.Code)
	}
}

func TestRefresh_RotatesToken(t *testing.T) {
	s := New()
	s.AddUser("ana@example.com", "password123", "Ana", "Lee", "client")
	rec := post(t, s, "/auth/login", loginRequest{Email: "ana@example.com", Password: "password123"}, "")
	var login authResponse
	json.Unmarshal(rec.Body.Bytes(), &login)

	rec = post(t, s, "/auth/refresh", refreshRequest{RefreshToken: login.RefreshToken}, "")
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}

	rec = post(t, s, "/auth/refresh", refreshRequest{RefreshToken: login.RefreshToken}, "")
	if rec.Code != http.StatusUnauthorized {
		t.Errorf("expected reused refresh token to be rejected, got %d", rec.Code)
	}
	if s.Hits("/auth/refresh") != 2 {
		t.Errorf("expected 2 refresh hits, got %d", s.Hits("/auth/refresh"))
	}
}

func TestRegister_Validation(t *testing.T) {
	s := New()
	rec := post(t, s, "/auth/register", registerRequest{Email: "bad", Password: "short"}, "")
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", rec.Code)
	}
	var body struct {
		Message []string `json:"message"`
	}
	json.Unmarshal(rec.Body.Bytes(), &body)
	if len(body.Message) != 4 {
		t.Errorf("expected 4 problems, got %v", body.Message)
	}
}

func TestRegister_Duplicate(t *testing.T) {
	s := New()
	s.AddUser("ana@example.com", "password123", "Ana", "Lee", "client")
	rec := post(t, s, "/auth/register", registerRequest{
		Email: "ana@example.com", Password: "password123", FirstName: "Ana", LastName: "Lee",
	}, "")
	if rec.Code != http.StatusConflict {
		t.Errorf("expected 409, got %d", rec.Code)
	}
}
