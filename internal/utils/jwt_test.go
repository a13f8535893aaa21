package utils

import (
	"testing"
	"time"

	"github.com/google/uuid"
)

const testSecret = "test-secret"

func TestTokenRoundTrip(t *testing.T) {
	userID := uuid.New()
	jti := uuid.NewString()

	token, err := GenerateToken(testSecret, userID, jti, time.Hour)
	if err != nil {
		t.Fatalf("GenerateToken: %v", err)
	}

	claims, err := ParseToken(testSecret, token)
	if err != nil {
		t.Fatalf("ParseToken: %v", err)
	}

	if claims.UserID != userID {
		t.Errorf("user id = %v, want %v", claims.UserID, userID)
	}
	if claims.JTI != jti {
		t.Errorf("jti = %q, want %q", claims.JTI, jti)
	}
	if claims.IssuedAt.IsZero() {
		t.Error("issued-at claim missing")
	}
	if time.Since(claims.IssuedAt) > time.Minute {
		t.Errorf("issued-at %v is not recent", claims.IssuedAt)
	}
}

func TestParseTokenExpired(t *testing.T) {
	token, err := GenerateToken(testSecret, uuid.New(), uuid.NewString(), -time.Minute)
	if err != nil {
		t.Fatalf("GenerateToken: %v", err)
	}

	if _, err := ParseToken(testSecret, token); err != ErrTokenExpired {
		t.Errorf("err = %v, want ErrTokenExpired", err)
	}
}

func TestParseTokenWrongSecret(t *testing.T) {
	token, err := GenerateToken(testSecret, uuid.New(), uuid.NewString(), time.Hour)
	if err != nil {
		t.Fatalf("GenerateToken: %v", err)
	}

	if _, err := ParseToken("other-secret", token); err != ErrTokenInvalid {
		t.Errorf("err = %v, want ErrTokenInvalid", err)
	}
}

func TestParseTokenMalformed(t *testing.T) {
	for _, tok := range []string{"", "garbage", "a.b.c"} {
		if _, err := ParseToken(testSecret, tok); err != ErrTokenInvalid {
			t.Errorf("ParseToken(%q) err = %v, want ErrTokenInvalid", tok, err)
		}
	}
}
