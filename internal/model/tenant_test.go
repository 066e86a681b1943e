package model

import (
	"strings"
	"testing"
)

func TestIsValidSlug(t *testing.T) {
	tests := []struct {
		slug string
		want bool
	}{
		{"acme", true},
		{"acme-corp", true},
		{"a1b2-c3", true},
		{"abc", true},
		{"ab", false},              // too short
		{"", false},
		{"Acme", false},            // uppercase
		{"acme_corp", false},       // underscore
		{"-acme", false},           // leading hyphen
		{"acme-", false},           // trailing hyphen
		{"acme--corp", false},      // double hyphen
		{strings.Repeat("a", 64), true},
		{strings.Repeat("a", 65), false},
	}

	for _, tt := range tests {
		t.Run(tt.slug, func(t *testing.T) {
			if got := IsValidSlug(tt.slug); got != tt.want {
				t.Errorf("IsValidSlug(%q) = %v, want %v", tt.slug, got, tt.want)
			}
		})
	}
}

func TestNormalizeEmail(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"Alice@Example.COM", "alice@example.com"},
		{"  bob@example.com  ", "bob@example.com"},
		{"carol@example.com", "carol@example.com"},
	}

	for _, tt := range tests {
		if got := NormalizeEmail(tt.in); got != tt.want {
			t.Errorf("NormalizeEmail(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestIndividualSlug(t *testing.T) {
	a := IndividualSlug("alice@example.com")
	b := IndividualSlug("Alice@Example.com ")

	if a != b {
		t.Errorf("normalized variants map to different slugs: %q vs %q", a, b)
	}

	if !strings.HasPrefix(a, "user-") {
		t.Errorf("expected user- prefix, got %q", a)
	}
	if len(a) != len("user-")+16 {
		t.Errorf("unexpected slug length: %q", a)
	}

	if IndividualSlug("other@example.com") == a {
		t.Error("different emails share a slug")
	}

	// Derived slugs stay inside the valid slug grammar.
	if !IsValidSlug(a) {
		t.Errorf("individual slug %q is not a valid slug", a)
	}
}

func TestIndividualName(t *testing.T) {
	if got := IndividualName(" Alice@Example.com"); got != "Personal - alice@example.com" {
		t.Errorf("unexpected individual name: %q", got)
	}
}
