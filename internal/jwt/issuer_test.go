package jwt

import (
	"testing"
	"time"
)

func testSeed(b byte) []byte {
	s := make([]byte, 32)
	for i := range s {
		s[i] = b + byte(i)
	}
	return s
}

func TestIssueParse_RoundTrip(t *testing.T) {
	iss := NewIssuer("https://auth.clientforge.test", testSeed(1), 15*time.Minute)

	tok, exp, err := iss.IssueAccess("user-1", map[string]any{
		"tid":   "tenant-1",
		"amr":   []string{"sso", "mfa"},
		"email": "ana@acme.test",
	})
	if err != nil {
		t.Fatalf("IssueAccess: %v", err)
	}
	if time.Until(exp) <= 0 {
		t.Fatal("exp en el pasado")
	}

	claims, err := iss.Parse(tok)
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if claims["sub"] != "user-1" || claims["tid"] != "tenant-1" {
		t.Fatalf("claims inesperados: %v", claims)
	}
	if claims["jti"] == nil || claims["jti"] == "" {
		t.Fatal("falta jti")
	}
}

func TestParse_RejectsOtherKey(t *testing.T) {
	a := NewIssuer("https://auth.clientforge.test", testSeed(1), time.Minute)
	b := NewIssuer("https://auth.clientforge.test", testSeed(50), time.Minute)

	tok, _, err := a.IssueAccess("user-1", nil)
	if err != nil {
		t.Fatal(err)
	}
	if _, err := b.Parse(tok); err == nil {
		t.Fatal("token firmado con otra clave fue aceptado")
	}
}

func TestParse_RejectsExpired(t *testing.T) {
	iss := NewIssuer("https://auth.clientforge.test", testSeed(9), time.Minute)
	iss.AccessTTL = -time.Minute // emitir ya vencido

	tok, _, err := iss.IssueAccess("user-1", nil)
	if err != nil {
		t.Fatal(err)
	}
	if _, err := iss.Parse(tok); err == nil {
		t.Fatal("token vencido fue aceptado")
	}
}

func TestParse_RejectsWrongIssuer(t *testing.T) {
	a := NewIssuer("https://a.test", testSeed(3), time.Minute)
	// misma clave, distinto iss
	b := NewIssuer("https://b.test", testSeed(3), time.Minute)

	tok, _, err := a.IssueAccess("user-1", nil)
	if err != nil {
		t.Fatal(err)
	}
	if _, err := b.Parse(tok); err == nil {
		t.Fatal("iss distinto fue aceptado")
	}
}
