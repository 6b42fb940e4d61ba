package util

import "testing"

func TestMaskEmail(t *testing.T) {
	cases := []struct{ in, want string }{
		{"ana.perez@acme.com", "a…@a….com"},
		{"  ANA@ACME.COM  ", "a…@a….com"},
		{"x@y.io", "x@y.io"},
		{"juan@sub.dominio.com.ar", "j…@s….dominio.com.ar"},
		{"sin-arroba", "s…a"},
		{"ab", "***"},
		{"", ""},
	}
	for _, c := range cases {
		if got := MaskEmail(c.in); got != c.want {
			t.Errorf("MaskEmail(%q) = %q, want %q", c.in, got, c.want)
		}
	}
}
