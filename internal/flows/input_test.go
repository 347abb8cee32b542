package flows

import "testing"

func TestNormalizeEmail(t *testing.T) {
	good := map[string]string{
		"a@example.com":           "a@example.com",
		"  Ada@Example.COM ":      "ada@example.com",
		"a.b+tag@sub.example.org": "a.b+tag@sub.example.org",
	}
	for in, want := range good {
		got, err := NormalizeEmail(in)
		if err != nil || got != want {
			t.Fatalf("NormalizeEmail(%q) = %q, %v; want %q", in, got, err, want)
		}
	}

	for _, in := range []string{"", "plain", "a@", "@b.com", "a@b", "Ada <a@example.com>", "a@example.com, b@example.com"} {
		if _, err := NormalizeEmail(in); err == nil {
			t.Fatalf("NormalizeEmail(%q) expected error", in)
		}
	}
}

func TestNormalizeName(t *testing.T) {
	if got, err := NormalizeName("  Ada Lovelace "); err != nil || got != "Ada Lovelace" {
		t.Fatalf("unexpected result %q %v", got, err)
	}
	if _, err := NormalizeName("   "); err == nil {
		t.Fatal("expected blank name to fail")
	}
	long := make([]rune, 101)
	for i := range long {
		long[i] = 'é'
	}
	if _, err := NormalizeName(string(long)); err == nil {
		t.Fatal("expected 101-rune name to fail")
	}
}

func TestSanitizeNext(t *testing.T) {
	cases := map[string]string{
		"":                     "",
		"/":                    "/",
		"/dashboard?tab=1":     "/dashboard?tab=1",
		"//evil.example":       "",
		"/\\evil.example":      "",
		"https://evil.example": "",
		"dashboard":            "",
		"/ok/../but\\no":       "",
		"/line\nbreak":         "",
		"javascript:alert(1)":  "",
	}
	for in, want := range cases {
		if got := SanitizeNext(in); got != want {
			t.Fatalf("SanitizeNext(%q) = %q, want %q", in, got, want)
		}
	}
}
