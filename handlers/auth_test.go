// Copyright (c) 2025 Daniel Kuo.
// Source-available; no permission granted to use, copy, modify, or distribute. See LICENSE.

package handlers

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/danielhkuo/polly/middleware"
	"github.com/danielhkuo/polly/models"
	"github.com/danielhkuo/polly/store"
	"github.com/danielhkuo/polly/testutil"
)

func TestRegister(t *testing.T) {
	env := newTestEnv(t)
	handler := NewAuthHandler(env.deps)

	tests := []struct {
		name           string
		body           interface{}
		expectedStatus int
		expectedRole   string
	}{
		{
			name:           "first user becomes admin",
			body:           models.RegisterRequest{Email: "Alice@Example.com", Name: "Alice", Password: testutil.TestPassword},
			expectedStatus: http.StatusCreated,
			expectedRole:   models.RoleAdmin,
		},
		{
			name:           "later users are regular users",
			body:           models.RegisterRequest{Email: "bob@example.com", Name: "Bob", Password: testutil.TestPassword},
			expectedStatus: http.StatusCreated,
			expectedRole:   models.RoleUser,
		},
		{
			name:           "email taken",
			body:           models.RegisterRequest{Email: "alice@example.com", Name: "Alice 2", Password: testutil.TestPassword},
			expectedStatus: http.StatusConflict,
		},
		{
			name:           "weak password",
			body:           models.RegisterRequest{Email: "carol@example.com", Name: "Carol", Password: "password"},
			expectedStatus: http.StatusBadRequest,
		},
		{
			name:           "invalid email",
			body:           models.RegisterRequest{Email: "not-an-email", Name: "Dan", Password: testutil.TestPassword},
			expectedStatus: http.StatusBadRequest,
		},
		{
			name:           "unknown field",
			body:           map[string]string{"email": "erin@example.com", "name": "Erin", "password": testutil.TestPassword, "role": "admin"},
			expectedStatus: http.StatusBadRequest,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := testutil.MakeRequest("POST", "/api/v1/auth/register", tt.body, nil)
			w := serve(handler.Register, req)
			testutil.AssertStatus(t, w, tt.expectedStatus)

			if tt.expectedStatus != http.StatusCreated {
				return
			}
			var user models.User
			testutil.AssertJSON(t, w, &user)
			if user.Role != tt.expectedRole {
				t.Errorf("Expected role %s, got %s", tt.expectedRole, user.Role)
			}
			if user.PasswordHash != "" {
				t.Error("Password hash must not be returned")
			}
			if c := w.Result().Cookies(); len(c) != 1 || c[0].Name != middleware.SessionCookieName {
				t.Errorf("Expected session cookie, got %v", c)
			}
		})
	}
}

func TestRegisterDisabled(t *testing.T) {
	env := newTestEnv(t)
	handler := NewAuthHandler(env.deps)

	if err := env.st.SetSetting(context.Background(), store.SettingRegistrationEnabled, "false"); err != nil {
		t.Fatalf("SetSetting failed: %v", err)
	}

	body := models.RegisterRequest{Email: "alice@example.com", Name: "Alice", Password: testutil.TestPassword}
	w := serve(handler.Register, testutil.MakeRequest("POST", "/api/v1/auth/register", body, nil))
	testutil.AssertStatus(t, w, http.StatusForbidden)
}

func TestLogin(t *testing.T) {
	env := newTestEnv(t)
	handler := NewAuthHandler(env.deps)
	testutil.CreateTestUser(t, env.st, "alice@example.com", models.RoleUser)

	tests := []struct {
		name           string
		body           models.LoginRequest
		expectedStatus int
	}{
		{"valid credentials", models.LoginRequest{Email: "ALICE@example.com", Password: testutil.TestPassword}, http.StatusOK},
		{"wrong password", models.LoginRequest{Email: "alice@example.com", Password: "Wrong-pass1"}, http.StatusUnauthorized},
		{"unknown user", models.LoginRequest{Email: "nobody@example.com", Password: testutil.TestPassword}, http.StatusUnauthorized},
		{"missing password", models.LoginRequest{Email: "alice@example.com"}, http.StatusBadRequest},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := serve(handler.Login, testutil.MakeRequest("POST", "/api/v1/auth/login", tt.body, nil))
			testutil.AssertStatus(t, w, tt.expectedStatus)

			cookies := w.Result().Cookies()
			if tt.expectedStatus == http.StatusOK {
				if len(cookies) != 1 || !cookies[0].HttpOnly {
					t.Fatalf("Expected an HttpOnly session cookie, got %v", cookies)
				}
				if _, err := env.st.GetSession(context.Background(), cookies[0].Value); err != nil {
					t.Errorf("Session was not stored: %v", err)
				}
			} else if len(cookies) != 0 {
				t.Error("No cookie expected on failure")
			}
		})
	}
}

func TestLogout(t *testing.T) {
	env := newTestEnv(t)
	handler := NewAuthHandler(env.deps)
	user := testutil.CreateTestUser(t, env.st, "alice@example.com", models.RoleUser)
	cookie := testutil.CreateTestSession(t, env.st, user.ID)

	sess, err := env.st.GetSession(context.Background(), cookie.Value)
	if err != nil {
		t.Fatalf("GetSession failed: %v", err)
	}

	req := testutil.MakeRequest("POST", "/api/v1/auth/logout", nil, nil)
	var captured *http.Request
	middleware.Sessions(env.st)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		captured = r
	})).ServeHTTP(httptest.NewRecorder(), withCookie(req, cookie))
	if middleware.SessionFromContext(captured.Context()) == nil {
		t.Fatal("Expected session on context")
	}

	w := serve(handler.Logout, captured)
	testutil.AssertStatus(t, w, http.StatusNoContent)

	if _, err := env.st.GetSession(context.Background(), sess.ID); err == nil {
		t.Error("Expected session to be deleted")
	}
	if c := w.Result().Cookies(); len(c) != 1 || c[0].MaxAge >= 0 {
		t.Errorf("Expected expired cookie, got %v", c)
	}
}

func TestMe(t *testing.T) {
	env := newTestEnv(t)
	handler := NewAuthHandler(env.deps)
	user := testutil.CreateTestUser(t, env.st, "alice@example.com", models.RoleManager)

	w := serve(handler.Me, as(testutil.MakeRequest("GET", "/api/v1/auth/me", nil, nil), user))
	testutil.AssertStatus(t, w, http.StatusOK)

	var got models.User
	testutil.AssertJSON(t, w, &got)
	if got.ID != user.ID || got.Role != models.RoleManager {
		t.Errorf("Unexpected user %+v", got)
	}
}

func withCookie(req *http.Request, c *http.Cookie) *http.Request {
	req.AddCookie(c)
	return req
}
