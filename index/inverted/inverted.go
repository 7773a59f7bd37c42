// Package inverted implements the full-text index kind: tokenized postings
// lists over one string column, with compressed bitmaps as the posting
// representation.
package inverted

import (
	"fmt"
	"strings"
	"unicode"

	"github.com/RoaringBitmap/roaring/v2"
)

// Tokenizer splits text into index terms.
type Tokenizer interface {
	Tokenize(text string) []string
	Name() string
}

// NewTokenizer returns a built-in tokenizer by name. "simple" lowercases
// and splits on non-alphanumeric runes; "whitespace" splits on whitespace
// and keeps case.
func NewTokenizer(name string) (Tokenizer, error) {
	switch name {
	case "", "simple":
		return simpleTokenizer{}, nil
	case "whitespace":
		return whitespaceTokenizer{}, nil
	default:
		return nil, fmt.Errorf("unknown tokenizer %q", name)
	}
}

type simpleTokenizer struct{}

func (simpleTokenizer) Name() string { return "simple" }

func (simpleTokenizer) Tokenize(text string) []string {
	return strings.FieldsFunc(strings.ToLower(text), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsNumber(r)
	})
}

type whitespaceTokenizer struct{}

func (whitespaceTokenizer) Name() string { return "whitespace" }

func (whitespaceTokenizer) Tokenize(text string) []string {
	return strings.Fields(text)
}

// Index is an inverted index over documents identified by dense uint32 ids.
// Build-then-query: Add all documents, then Search; no concurrent mutation.
type Index struct {
	tokenizer Tokenizer
	postings  map[string]*roaring.Bitmap
}

// New creates an empty inverted index.
func New(tokenizer Tokenizer) *Index {
	return &Index{
		tokenizer: tokenizer,
		postings:  make(map[string]*roaring.Bitmap),
	}
}

// Add indexes one document.
func (ix *Index) Add(id uint32, text string) {
	for _, term := range ix.tokenizer.Tokenize(text) {
		bm, ok := ix.postings[term]
		if !ok {
			bm = roaring.New()
			ix.postings[term] = bm
		}
		bm.Add(id)
	}
}

// Search returns the ids of documents containing every term of the query,
// in ascending id order. An empty query matches nothing.
func (ix *Index) Search(text string) []uint32 {
	terms := ix.tokenizer.Tokenize(text)
	if len(terms) == 0 {
		return nil
	}

	var acc *roaring.Bitmap
	for _, term := range terms {
		bm, ok := ix.postings[term]
		if !ok {
			return nil
		}
		if acc == nil {
			acc = bm.Clone()
		} else {
			acc.And(bm)
		}
		if acc.IsEmpty() {
			return nil
		}
	}
	return acc.ToArray()
}

// NumTerms returns the number of distinct terms.
func (ix *Index) NumTerms() int {
	return len(ix.postings)
}
