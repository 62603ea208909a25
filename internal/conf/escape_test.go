package conf

import "testing"

func TestEscapePlainStringsUnchanged(t *testing.T) {
	for _, s := range []string{"Account", "account1", "ABC123", "x"} {
		if got := Escape(s); got != s {
			t.Errorf("Escape(%q) = %q, want unchanged", s, got)
		}
	}
}

func TestEscapeRoundTrip(t *testing.T) {
	cases := []string{
		"",
		"my account",
		"user@example.com",
		"a/b/c",
		"under_score",
		"tríky názov",
		"日本語アカウント",
		"emoji 😀 name",
		"_0041",
	}
	for _, s := range cases {
		escaped := Escape(s)
		got, err := Unescape(escaped)
		if err != nil {
			t.Errorf("Unescape(Escape(%q)) failed: %v", s, err)
			continue
		}
		if got != s {
			t.Errorf("round trip of %q: got %q via %q", s, got, escaped)
		}
	}
}

func TestEscapeProducesKeySafeTokens(t *testing.T) {
	escaped := Escape("user@example.com/INBOX")
	for _, r := range escaped {
		switch {
		case r >= '0' && r <= '9':
		case r >= 'A' && r <= 'Z':
		case r >= 'a' && r <= 'z':
		case r == '_':
		default:
			t.Fatalf("Escape output contains unsafe rune %q in %q", r, escaped)
		}
	}
}

func TestEscapeUnderscoreItself(t *testing.T) {
	// "_" must be escaped, otherwise "_0041" would be ambiguous.
	if got := Escape("_"); got == "_" {
		t.Fatal("underscore was not escaped")
	}
}

func TestUnescapeMalformed(t *testing.T) {
	for _, s := range []string{"_", "_00", "_zzzz", "_u1234"} {
		if _, err := Unescape(s); err == nil {
			t.Errorf("Unescape(%q) succeeded, want error", s)
		}
	}
}
