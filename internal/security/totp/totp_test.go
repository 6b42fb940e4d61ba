package totp

import (
	"strings"
	"testing"
	"time"
)

// Vectores RFC 6238 Apéndice B (SHA1, secreto "12345678901234567890"),
// truncados a 6 dígitos.
var rfcSecret = []byte("12345678901234567890")

func TestVerify_RFCVectors(t *testing.T) {
	cases := []struct {
		unix int64
		code string
	}{
		{59, "287082"},
		{1111111109, "081804"},
		{1111111111, "050471"},
		{1234567890, "005924"},
		{20000000000, "353130"},
	}
	for _, c := range cases {
		ok, counter := Verify(rfcSecret, c.code, time.Unix(c.unix, 0), 0, nil)
		if !ok {
			t.Fatalf("t=%d: código %s no validó", c.unix, c.code)
		}
		if counter != c.unix/Period {
			t.Fatalf("t=%d: counter=%d want %d", c.unix, counter, c.unix/Period)
		}
	}
}

func TestVerify_Window(t *testing.T) {
	now := time.Unix(1111111109, 0)
	prev := hotp(rfcSecret, now.Unix()/Period-1)

	if ok, _ := Verify(rfcSecret, prev, now, 0, nil); ok {
		t.Fatal("ventana 0 no debería aceptar el paso anterior")
	}
	if ok, _ := Verify(rfcSecret, prev, now, 1, nil); !ok {
		t.Fatal("ventana 1 debería aceptar el paso anterior")
	}
}

func TestVerify_AntiReplay(t *testing.T) {
	now := time.Unix(1111111109, 0)
	code := hotp(rfcSecret, now.Unix()/Period)

	ok, counter := Verify(rfcSecret, code, now, 1, nil)
	if !ok {
		t.Fatal("primer uso debería validar")
	}
	// reuso del mismo counter -> rechazado
	if ok, _ := Verify(rfcSecret, code, now, 1, &counter); ok {
		t.Fatal("replay del mismo código fue aceptado")
	}
}

func TestVerify_RejectsMalformed(t *testing.T) {
	now := time.Now()
	for _, bad := range []string{"", "12345", "1234567", "abcdef"} {
		if ok, _ := Verify(rfcSecret, bad, now, 1, nil); ok {
			t.Fatalf("código malformado %q aceptado", bad)
		}
	}
}

func TestGenerateSecret_RoundTrip(t *testing.T) {
	raw, b32, err := GenerateSecret()
	if err != nil {
		t.Fatal(err)
	}
	if len(raw) != 20 {
		t.Fatalf("secreto de %d bytes, want 20", len(raw))
	}
	if strings.Contains(b32, "=") {
		t.Fatal("base32 con padding")
	}
	back, err := DecodeSecret(b32)
	if err != nil {
		t.Fatal(err)
	}
	if string(back) != string(raw) {
		t.Fatal("decode no es inverso de encode")
	}
}

func TestOTPAuthURL(t *testing.T) {
	u := OTPAuthURL("ClientForge", "ana@acme.test", "JBSWY3DPEHPK3PXP")
	for _, want := range []string{"otpauth://totp/", "issuer=ClientForge", "secret=JBSWY3DPEHPK3PXP", "period=30", "digits=6"} {
		if !strings.Contains(u, want) {
			t.Fatalf("otpauth url sin %q: %s", want, u)
		}
	}
}
