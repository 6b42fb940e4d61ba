package secretbox

import (
	"encoding/base64"
	"os"
	"strings"
	"testing"
)

func setTestKey(t *testing.T, seed byte) {
	t.Helper()
	UnsafeResetForTests()
	raw := make([]byte, 32)
	for i := range raw {
		raw[i] = seed + byte(i)
	}
	os.Setenv(EnvMasterKey, base64.StdEncoding.EncodeToString(raw))
	t.Cleanup(func() {
		os.Unsetenv(EnvMasterKey)
		UnsafeResetForTests()
	})
}

func TestEncryptDecrypt_RoundTrip(t *testing.T) {
	// Sin t.Parallel(): estado global de la clave
	setTestKey(t, 1)

	msg := "JBSWY3DPEHPK3PXP — secreto totp"
	ct, err := Encrypt(msg)
	if err != nil {
		t.Fatalf("Encrypt err: %v", err)
	}
	if !strings.HasPrefix(ct, "gcm1:") {
		t.Fatalf("ciphertext sin prefijo de versión: %q", ct)
	}
	pt, err := Decrypt(ct)
	if err != nil {
		t.Fatalf("Decrypt err: %v", err)
	}
	if pt != msg {
		t.Fatalf("plaintext mismatch: got %q want %q", pt, msg)
	}
}

func TestDecrypt_DetectsTamper(t *testing.T) {
	setTestKey(t, 100)

	ct, err := Encrypt("top secret")
	if err != nil {
		t.Fatalf("Encrypt err: %v", err)
	}
	raw, err := base64.StdEncoding.DecodeString(strings.TrimPrefix(ct, "gcm1:"))
	if err != nil {
		t.Fatal(err)
	}
	// flip de un bit del ciphertext
	raw[len(raw)-1] ^= 0x01
	tampered := "gcm1:" + base64.StdEncoding.EncodeToString(raw)
	if _, err := Decrypt(tampered); err == nil {
		t.Fatal("Decrypt aceptó ciphertext corrupto")
	}
}

func TestDecrypt_RejectsBadPrefix(t *testing.T) {
	setTestKey(t, 7)
	if _, err := Decrypt("plaintext-sin-prefijo"); err == nil {
		t.Fatal("esperaba error de formato")
	}
}

func TestEncrypt_MissingKey(t *testing.T) {
	UnsafeResetForTests()
	os.Unsetenv(EnvMasterKey)
	t.Cleanup(UnsafeResetForTests)
	if _, err := Encrypt("x"); err == nil {
		t.Fatal("esperaba error por clave ausente")
	}
}
