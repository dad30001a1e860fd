package app

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"youredu/api/internal/store"
)

func jsonRequest(method, target, body, token string) *http.Request {
	req := httptest.NewRequest(method, target, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	return req
}

func TestSignUpVerifySignIn(t *testing.T) {
	env := newTestEnv(t)

	rr := serve(t, env, jsonRequest(http.MethodPost, "/api/auth/signup",
		`{"email":"Parent@Example.com","password":"longenough","displayName":"Pat"}`, ""))
	if rr.Code != http.StatusCreated {
		t.Fatalf("signup: expected 201, got %d: %s", rr.Code, rr.Body.String())
	}
	response := decodeResponse(t, rr)
	if _, ok := response["devVerificationToken"]; ok {
		t.Error("verification token must not be returned when email is configured")
	}
	if sent := env.sender.sent(); len(sent) != 1 || sent[0].To[0] != "parent@example.com" {
		t.Fatalf("expected one verification email to parent@example.com, got %+v", sent)
	}

	rr = serve(t, env, jsonRequest(http.MethodPost, "/api/auth/signin",
		`{"email":"parent@example.com","password":"longenough"}`, ""))
	if rr.Code != http.StatusForbidden {
		t.Fatalf("signin before verify: expected 403, got %d", rr.Code)
	}

	user, err := env.store.GetUserByEmail(t.Context(), "parent@example.com")
	if err != nil {
		t.Fatalf("lookup user: %v", err)
	}
	rr = serve(t, env, jsonRequest(http.MethodPost, "/api/auth/verify-email",
		`{"token":"`+user.VerificationToken+`"}`, ""))
	if rr.Code != http.StatusOK {
		t.Fatalf("verify: expected 200, got %d: %s", rr.Code, rr.Body.String())
	}

	rr = serve(t, env, jsonRequest(http.MethodPost, "/api/auth/signin",
		`{"email":"parent@example.com","password":"longenough"}`, ""))
	if rr.Code != http.StatusOK {
		t.Fatalf("signin: expected 200, got %d: %s", rr.Code, rr.Body.String())
	}
	if token, _ := decodeResponse(t, rr)["accessToken"].(string); token == "" {
		t.Error("expected an access token")
	}
}

func TestSignUpDuplicateEmail(t *testing.T) {
	env := newTestEnv(t)
	env.addUser("u1", store.RoleParent)

	rr := serve(t, env, jsonRequest(http.MethodPost, "/api/auth/signup",
		`{"email":"u1@example.com","password":"longenough"}`, ""))
	if rr.Code != http.StatusConflict {
		t.Fatalf("expected 409, got %d", rr.Code)
	}
	if code := decodeResponse(t, rr)["code"]; code != "EMAIL_EXISTS" {
		t.Errorf("expected EMAIL_EXISTS, got %v", code)
	}
}

func TestSignInWrongPassword(t *testing.T) {
	env := newTestEnv(t)
	env.addUser("u1", store.RoleParent)

	rr := serve(t, env, jsonRequest(http.MethodPost, "/api/auth/signin",
		`{"email":"u1@example.com","password":"wrong-password"}`, ""))
	if rr.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", rr.Code)
	}
}

func TestSessionEndpoint(t *testing.T) {
	env := newTestEnv(t)
	env.addUser("u1", store.RoleParent)
	sess := env.session(t, "u1")

	rr := serve(t, env, jsonRequest(http.MethodGet, "/api/session", "", sess.Token))
	response := decodeResponse(t, rr)
	if response["authenticated"] != true || response["userId"] != "u1" {
		t.Fatalf("unexpected session response: %v", response)
	}

	rr = serve(t, env, jsonRequest(http.MethodGet, "/api/session", "", "garbage"))
	if decodeResponse(t, rr)["authenticated"] != false {
		t.Error("expected unauthenticated session for a bad token")
	}
}

func TestRefreshRotatesToken(t *testing.T) {
	env := newTestEnv(t)
	env.addUser("u1", store.RoleParent)
	sess := env.session(t, "u1")

	rr := serve(t, env, jsonRequest(http.MethodPost, "/api/session/refresh",
		`{"refreshToken":"`+sess.RefreshToken+`"}`, ""))
	if rr.Code != http.StatusOK {
		t.Fatalf("refresh: expected 200, got %d: %s", rr.Code, rr.Body.String())
	}
	next, _ := decodeResponse(t, rr)["refreshToken"].(string)
	if next == "" || next == sess.RefreshToken {
		t.Fatalf("expected a new refresh token, got %q", next)
	}

	rr = serve(t, env, jsonRequest(http.MethodPost, "/api/session/refresh",
		`{"refreshToken":"`+sess.RefreshToken+`"}`, ""))
	if rr.Code != http.StatusUnauthorized {
		t.Fatalf("reused refresh token: expected 401, got %d", rr.Code)
	}
}

func TestLogoutRevokesAccessToken(t *testing.T) {
	env := newTestEnv(t)
	env.addUser("u1", store.RoleParent)
	sess := env.session(t, "u1")

	rr := serve(t, env, jsonRequest(http.MethodPost, "/api/session/logout",
		`{"refreshToken":"`+sess.RefreshToken+`"}`, sess.Token))
	if rr.Code != http.StatusOK {
		t.Fatalf("logout: expected 200, got %d", rr.Code)
	}

	rr = serve(t, env, jsonRequest(http.MethodGet, "/api/students", "", sess.Token))
	if rr.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401 after logout, got %d", rr.Code)
	}
}

func TestProtectedRouteRequiresToken(t *testing.T) {
	env := newTestEnv(t)
	rr := serve(t, env, jsonRequest(http.MethodGet, "/api/students", "", ""))
	if rr.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", rr.Code)
	}
	if code := decodeResponse(t, rr)["code"]; code != "UNAUTHORIZED" {
		t.Errorf("expected UNAUTHORIZED, got %v", code)
	}
}

func TestAdminRouteForbiddenForParent(t *testing.T) {
	env := newTestEnv(t)
	env.addUser("u1", store.RoleParent)
	sess := env.session(t, "u1")

	rr := serve(t, env, jsonRequest(http.MethodPost, "/api/admin/reindex", "", sess.Token))
	if rr.Code != http.StatusForbidden {
		t.Fatalf("expected 403, got %d", rr.Code)
	}
}
