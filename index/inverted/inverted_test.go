package inverted

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTokenizers(t *testing.T) {
	t.Run("simple lowercases and splits punctuation", func(t *testing.T) {
		tok, err := NewTokenizer("simple")
		require.NoError(t, err)
		assert.Equal(t, []string{"stop", "sign", "ahead", "42"}, tok.Tokenize("Stop-Sign, ahead! 42"))
	})

	t.Run("whitespace keeps case", func(t *testing.T) {
		tok, err := NewTokenizer("whitespace")
		require.NoError(t, err)
		assert.Equal(t, []string{"Stop-Sign,", "ahead!"}, tok.Tokenize("Stop-Sign, ahead!"))
	})

	t.Run("empty name is simple", func(t *testing.T) {
		tok, err := NewTokenizer("")
		require.NoError(t, err)
		assert.Equal(t, "simple", tok.Name())
	})

	t.Run("unknown name", func(t *testing.T) {
		_, err := NewTokenizer("porter")
		require.Error(t, err)
	})
}

func TestSearch(t *testing.T) {
	tok, err := NewTokenizer("simple")
	require.NoError(t, err)

	ix := New(tok)
	ix.Add(0, "pedestrian crossing the street")
	ix.Add(1, "stop sign at the crossing")
	ix.Add(2, "empty highway")

	t.Run("single term", func(t *testing.T) {
		assert.Equal(t, []uint32{0, 1}, ix.Search("crossing"))
	})

	t.Run("terms AND together", func(t *testing.T) {
		assert.Equal(t, []uint32{1}, ix.Search("stop crossing"))
	})

	t.Run("query normalization matches", func(t *testing.T) {
		assert.Equal(t, []uint32{2}, ix.Search("EMPTY, Highway!"))
	})

	t.Run("no hit", func(t *testing.T) {
		assert.Nil(t, ix.Search("bicycle"))
	})

	t.Run("empty query matches nothing", func(t *testing.T) {
		assert.Nil(t, ix.Search("  "))
	})

	assert.Positive(t, ix.NumTerms())
}
