package topic

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestGenerate_EmptyDescriptionUsesTitle(t *testing.T) {
	assert.Equal(t, "Paris Trip", Generate("", "Paris Trip"))
	assert.Equal(t, "Paris Trip", Generate("   ", "Paris Trip"))
}

func TestGenerate_EmptyDescriptionNoTitle(t *testing.T) {
	assert.Equal(t, "Memory", Generate("", ""))
}

func TestGenerate_ShortTitleWins(t *testing.T) {
	assert.Equal(t, "Dinner", Generate("We had dinner at a wonderful restaurant downtown", "Dinner"))
}

func TestGenerate_LongTitleFallsThroughToKeywords(t *testing.T) {
	title := "A very long title that exceeds twenty characters"
	assert.Equal(t, "Dining Experience", Generate("We had dinner at a wonderful restaurant downtown", title))
}

func TestGenerate_KeywordMatch(t *testing.T) {
	assert.Equal(t, "Dining Experience", Generate("We had dinner at a wonderful restaurant downtown", ""))
	assert.Equal(t, "Beach Visit", Generate("walked along the ocean shore", ""))
	assert.Equal(t, "Graduation Day", Generate("finally got my degree!", ""))
}

func TestGenerate_FirstMatchWins(t *testing.T) {
	// "party" (Birthday Celebration) appears earlier in the table than
	// "friends" (Friend Meetup); table order breaks the tie.
	assert.Equal(t, "Birthday Celebration", Generate("a party with friends", ""))
	// "travel" outranks "beach".
	assert.Equal(t, "Travel Adventure", Generate("travel to the beach", ""))
}

func TestGenerate_WordExtraction(t *testing.T) {
	assert.Equal(t, "Xyz", Generate("xyz qq ab", ""))
	assert.Equal(t, "Zzq Qqz Xxq", Generate("zzq qqz xxq aab", ""))
}

func TestGenerate_NoExtractableWords(t *testing.T) {
	assert.Equal(t, "Memory", Generate("a b c", ""))
}

func TestGenerate_Idempotent(t *testing.T) {
	in := "We had dinner at a wonderful restaurant downtown"
	first := Generate(in, "")
	for range 5 {
		assert.Equal(t, first, Generate(in, ""))
	}
}
