package domain

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestBlockDecision_Constructors(t *testing.T) {
	assert.Equal(t, BlockDecision{}, EmptyDecision())
	assert.False(t, EmptyDecision().IsBlocked())

	exact := ExactDecision("doubleclick.net")
	assert.True(t, exact.IsBlocked())
	assert.False(t, exact.BySuffix)
	assert.Equal(t, "doubleclick.net", exact.MatchedName)

	suffix := SuffixDecision("ads.example.com")
	assert.True(t, suffix.IsBlocked())
	assert.True(t, suffix.BySuffix)
	assert.Equal(t, "ads.example.com", suffix.MatchedName)
}

func TestBlockDecision_String(t *testing.T) {
	assert.Equal(t, "allowed", EmptyDecision().String())
	assert.Equal(t, "blocked doubleclick.net", ExactDecision("doubleclick.net").String())
	assert.Equal(t, "blocked by suffix ads.example.com", SuffixDecision("ads.example.com").String())
}
