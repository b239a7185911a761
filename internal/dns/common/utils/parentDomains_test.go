package utils

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestRegistrableDomain(t *testing.T) {
	root, ok := RegistrableDomain("ads.Example.co.uk.")
	assert.True(t, ok)
	assert.Equal(t, "example.co.uk", root)

	_, ok = RegistrableDomain("co.uk")
	assert.False(t, ok, "a public suffix has no registrable domain")
}

func TestParentDomains(t *testing.T) {
	tests := []struct {
		input string
		want  []string
	}{
		{"sub.ads.example.com", []string{"ads.example.com", "example.com"}},
		{"SUB.ads.example.com.", []string{"ads.example.com", "example.com"}},
		{"ads.example.com", []string{"example.com"}},
		{"example.com", nil},
		{"localhost", nil},
		{"a.b.example.co.uk", []string{"b.example.co.uk", "example.co.uk"}},
		{"co.uk", nil},
		{"", nil},
	}
	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			assert.Equal(t, tt.want, ParentDomains(tt.input))
		})
	}
}

func TestParentDomains_NeverIncludesSelfOrBareTLD(t *testing.T) {
	name := "x.y.z.tracker.example.org"
	for _, p := range ParentDomains(name) {
		assert.NotEqual(t, name, p)
		assert.NotEqual(t, "org", p)
	}
}
