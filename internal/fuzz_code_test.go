package internal

import "testing"

// FuzzEqualCode checks EqualCode agrees with plain string equality and never panics.
func FuzzEqualCode(f *testing.F) {
	f.Add("", "")
	f.Add("123456", "123456")
	f.Add("123456", "1234567")
	f.Add("0000000", "000000\x00")

	f.Fuzz(func(t *testing.T, a, b string) {
		if got, want := EqualCode(a, b), a == b; got != want {
			t.Fatalf("EqualCode(%q, %q) = %v, want %v", a, b, got, want)
		}
		if EqualCode(a, b) != EqualCode(b, a) {
			t.Fatalf("EqualCode not symmetric for %q, %q", a, b)
		}
	})
}
