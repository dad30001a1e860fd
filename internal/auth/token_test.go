package auth

import (
	"errors"
	"strings"
	"testing"
	"time"
)

func TestIssueAndParseToken(t *testing.T) {
	secret := []byte("secret")
	issued, err := IssueToken(secret, Claims{
		Sub:   "user-1",
		Name:  "Pat Parent",
		Email: "pat@example.com",
		Role:  "parent",
		JTI:   "jti-1",
		Exp:   time.Now().Add(time.Hour).Unix(),
	})
	if err != nil {
		t.Fatalf("IssueToken() error = %v", err)
	}
	claims, err := ParseToken(secret, issued)
	if err != nil {
		t.Fatalf("ParseToken() error = %v", err)
	}
	if claims.Sub != "user-1" || claims.Email != "pat@example.com" || claims.Role != "parent" || claims.Iss != Issuer {
		t.Fatalf("unexpected claims: %+v", claims)
	}
	if claims.Iat == 0 {
		t.Fatal("expected issued-at to be stamped")
	}
}

func TestParseTokenRejectsExpired(t *testing.T) {
	secret := []byte("secret")
	exp := time.Date(2026, 10, 15, 12, 0, 0, 0, time.UTC)
	issued, err := IssueToken(secret, Claims{Sub: "user-1", JTI: "jti-1", Exp: exp.Unix()})
	if err != nil {
		t.Fatalf("IssueToken() error = %v", err)
	}
	if _, err := ParseTokenAt(secret, issued, exp.Add(-time.Second)); err != nil {
		t.Fatalf("token should be valid just before expiry: %v", err)
	}
	if _, err := ParseTokenAt(secret, issued, exp); !errors.Is(err, ErrExpiredToken) {
		t.Fatalf("expected ErrExpiredToken, got %v", err)
	}
}

func TestParseTokenRejectsTampering(t *testing.T) {
	secret := []byte("secret")
	issued, err := IssueToken(secret, Claims{Sub: "user-1", JTI: "jti-1", Exp: time.Now().Add(time.Hour).Unix()})
	if err != nil {
		t.Fatalf("IssueToken() error = %v", err)
	}
	cases := map[string]string{
		"wrong secret": "",
		"no signature": strings.Split(issued, ".")[0],
		"extra part":   issued + ".x",
		"garbage":      "not-a-token",
	}
	for name, token := range cases {
		t.Run(name, func(t *testing.T) {
			key := secret
			if token == "" {
				token = issued
				key = []byte("other")
			}
			if _, err := ParseToken(key, token); !errors.Is(err, ErrInvalidToken) {
				t.Fatalf("expected ErrInvalidToken, got %v", err)
			}
		})
	}
}

func TestIssueTokenRequiresSecret(t *testing.T) {
	if _, err := IssueToken(nil, Claims{Sub: "u"}); err == nil {
		t.Fatal("expected error for empty secret")
	}
}

func TestHashTokenIsStable(t *testing.T) {
	if HashToken("abc") != HashToken("abc") || HashToken("abc") == HashToken("abd") {
		t.Fatal("hash should be deterministic and input-sensitive")
	}
	if len(HashToken("abc")) != 64 {
		t.Fatal("expected hex sha256")
	}
}
