package backupcode

import (
	"strings"
	"testing"
)

func TestGenerate_FormatAndUniqueness(t *testing.T) {
	codes, err := Generate(DefaultCount)
	if err != nil {
		t.Fatal(err)
	}
	if len(codes) != DefaultCount {
		t.Fatalf("got %d codes, want %d", len(codes), DefaultCount)
	}
	seen := map[string]bool{}
	for _, c := range codes {
		if len(c) != 11 || c[5] != '-' {
			t.Fatalf("formato inesperado: %q", c)
		}
		for _, r := range strings.ReplaceAll(c, "-", "") {
			if !strings.ContainsRune(alphabet, r) {
				t.Fatalf("carácter fuera del alfabeto en %q", c)
			}
		}
		if seen[c] {
			t.Fatalf("código repetido en el lote: %q", c)
		}
		seen[c] = true
	}
}

func TestHashVerify_RoundTrip(t *testing.T) {
	code := "ABCDE-23456"
	phc, err := Hash(code)
	if err != nil {
		t.Fatal(err)
	}
	if !strings.HasPrefix(phc, "$argon2id$v=19$") {
		t.Fatalf("PHC inesperado: %q", phc)
	}
	if !Verify(code, phc) {
		t.Fatal("el código no verificó contra su propio hash")
	}
	// normalización: minúsculas, espacios y sin guion
	if !Verify("  abcde 23456 ", phc) {
		t.Fatal("la normalización no aplicó")
	}
	if Verify("ABCDE-23457", phc) {
		t.Fatal("código distinto verificó")
	}
}

func TestVerify_RejectsGarbagePHC(t *testing.T) {
	for _, bad := range []string{"", "$argon2id$", "$bcrypt$v=19$m=1,t=1,p=1$a$b", "plain"} {
		if Verify("ABCDE-23456", bad) {
			t.Fatalf("PHC inválido %q aceptado", bad)
		}
	}
}
