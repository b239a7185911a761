package parsers

import (
	"strings"
	"testing"
)

func TestNormalizeDomainName(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"example.com", "example.com"},
		{" example.com. ", "example.com"},
		{"*.example.com", "example.com"},
		{".example.com", "example.com"},
		{"*.Example.COM.", "example.com"},
		{"", ""},
		{"   ", ""},
		{"*.", ""},
		{".", ""},
	}

	for _, tt := range tests {
		if got := normalizeDomainName(tt.in); got != tt.want {
			t.Errorf("normalizeDomainName(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestIsValidHostname(t *testing.T) {
	long := strings.Repeat("a", 64)
	tests := []struct {
		in   string
		want bool
	}{
		{"example.com", true},
		{"tracker1.example", true},
		{"ad_server.example.net", true},
		{"a-b.example", true},
		{"xn--bcher-kva.example", true},
		{"localhost", false},
		{"", false},
		{"0.0.0.0", false},
		{"::1", false},
		{"a..example", false},
		{"-bad.example", false},
		{"bad-.example", false},
		{"bad!.example", false},
		{long + ".example", false},
		{strings.Repeat("a.", 127) + "com", false},
	}
	for _, tt := range tests {
		if got := isValidHostname(tt.in); got != tt.want {
			t.Errorf("isValidHostname(%q) = %v, want %v", tt.in, got, tt.want)
		}
	}
}

func TestClassifyLineAndComments(t *testing.T) {
	if e, c := classifyLine("   "); !e || c {
		t.Fatalf("blank line misclassified")
	}
	if e, c := classifyLine("  # comment"); e || !c {
		t.Fatalf("comment line misclassified")
	}
	if e, c := classifyLine("0.0.0.0 a.example"); e || c {
		t.Fatalf("data line misclassified")
	}
	if got := stripInlineComment("a.example # x"); got != "a.example " {
		t.Fatalf("stripInlineComment = %q", got)
	}
	if got := stripLineBOM("\uFEFF0.0.0.0 a.example"); got != "0.0.0.0 a.example" {
		t.Fatalf("stripLineBOM = %q", got)
	}
}
