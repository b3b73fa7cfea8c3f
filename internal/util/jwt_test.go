package util

import (
	"testing"
	"time"
)

func TestJWTRoundTrip(t *testing.T) {
	token, err := GenerateJWT("profile-123", "+15551234567", "test-secret", time.Hour)
	if err != nil {
		t.Fatalf("GenerateJWT returned error: %v", err)
	}
	claims, err := ValidateJWT(token, "test-secret")
	if err != nil {
		t.Fatalf("ValidateJWT returned error: %v", err)
	}
	if claims.Subject != "profile-123" {
		t.Errorf("subject = %q, want profile-123", claims.Subject)
	}
	if claims.Phone != "+15551234567" {
		t.Errorf("phone = %q, want +15551234567", claims.Phone)
	}
}

func TestJWTWrongSecret(t *testing.T) {
	token, err := GenerateJWT("profile-123", "+15551234567", "test-secret", time.Hour)
	if err != nil {
		t.Fatal(err)
	}
	if _, err := ValidateJWT(token, "other-secret"); err == nil {
		t.Fatal("expected validation to fail with the wrong secret")
	}
}

func TestJWTExpired(t *testing.T) {
	token, err := GenerateJWT("profile-123", "+15551234567", "test-secret", -time.Minute)
	if err != nil {
		t.Fatal(err)
	}
	if _, err := ValidateJWT(token, "test-secret"); err == nil {
		t.Fatal("expected validation of an expired token to fail")
	}
}

func TestJWTGarbage(t *testing.T) {
	if _, err := ValidateJWT("not.a.token", "test-secret"); err == nil {
		t.Fatal("expected validation of a malformed token to fail")
	}
}
