package utils

import "testing"

func TestKebabCase(t *testing.T) {
	cases := map[string]string{
		"pdf_worker":     "pdf-worker",
		"scraper_worker": "scraper-worker",
		"API":            "api",
		"already-kebab":  "already-kebab",
		"_leading_":      "leading",
	}
	for in, want := range cases {
		if got := KebabCase(in); got != want {
			t.Errorf("KebabCase(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestGenerateShortID(t *testing.T) {
	seen := make(map[string]bool)
	for i := 0; i < 100; i++ {
		id := GenerateShortID()
		if len(id) != 20 {
			t.Fatalf("id %q has length %d, want 20", id, len(id))
		}
		if id[0] < 'a' || id[0] > 'z' {
			t.Fatalf("id %q must start with a letter", id)
		}
		if seen[id] {
			t.Fatalf("duplicate id %q", id)
		}
		seen[id] = true
	}
}

func TestPtrHelpers(t *testing.T) {
	v := Ptr(42)
	if *v != 42 {
		t.Fatalf("Ptr(42) = %d", *v)
	}
	if PtrValue(v, 0) != 42 {
		t.Fatalf("PtrValue(v, 0) = %d", PtrValue(v, 0))
	}
	if PtrValue[int](nil, 7) != 7 {
		t.Fatalf("PtrValue(nil, 7) = %d", PtrValue[int](nil, 7))
	}
}

func TestShellQuote(t *testing.T) {
	cases := map[string]string{
		"plain":                   "plain",
		"":                        "''",
		"with space":              "'with space'",
		"it's":                    `'it'\''s'`,
		"/srv/acme":               "/srv/acme",
		"a;b":                     "'a;b'",
		"$(dangerous)":            "'$(dangerous)'",
		"docker-compose.prod.yml": "docker-compose.prod.yml",
	}
	for in, want := range cases {
		if got := ShellQuote(in); got != want {
			t.Errorf("ShellQuote(%q) = %q, want %q", in, got, want)
		}
	}
}
