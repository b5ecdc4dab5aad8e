package infra

import (
	"context"
	"errors"
	"testing"
	"time"
)

func TestJWTVerifier_RoundTrip(t *testing.T) {
	raw, err := SignToken("s3cret", "42", "rider@example.com", "CUSTOMER", time.Hour)
	if err != nil {
		t.Fatalf("sign: %v", err)
	}
	tok, err := NewJWTVerifier("s3cret").VerifyIDToken(context.Background(), raw)
	if err != nil {
		t.Fatalf("verify: %v", err)
	}
	if tok.Subject != "42" || tok.Email != "rider@example.com" {
		t.Errorf("unexpected token: %+v", tok)
	}
	if tok.Claims["role"] != "CUSTOMER" {
		t.Errorf("role claim = %v", tok.Claims["role"])
	}
}

func TestJWTVerifier_Rejects(t *testing.T) {
	expired, _ := SignToken("s3cret", "1", "a@b.c", "DRIVER", -time.Minute)
	wrongKey, _ := SignToken("other", "1", "a@b.c", "DRIVER", time.Hour)

	v := NewJWTVerifier("s3cret")
	for name, raw := range map[string]string{"expired": expired, "wrong key": wrongKey, "garbage": "not-a-token"} {
		t.Run(name, func(t *testing.T) {
			if _, err := v.VerifyIDToken(context.Background(), raw); !errors.Is(err, ErrInvalidToken) {
				t.Fatalf("expected ErrInvalidToken, got %v", err)
			}
		})
	}
}

func TestJWTVerifier_EmailFallsBackToSubject(t *testing.T) {
	raw, _ := SignToken("k", "driver@example.com", "", "DRIVER", time.Hour)
	tok, err := NewJWTVerifier("k").VerifyIDToken(context.Background(), raw)
	if err != nil {
		t.Fatalf("verify: %v", err)
	}
	if tok.Email != "driver@example.com" {
		t.Errorf("Email = %q", tok.Email)
	}
}
