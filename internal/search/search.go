// Package search filters the poem catalog by plain substring containment.
package search

import (
	"strings"

	"github.com/csheth/shiyuan/internal/poems"
)

// SuggestionLimit caps the type-ahead list.
const SuggestionLimit = 3

// Results is a full-results query with its match count.
type Results struct {
	Query string
	Poems []poems.Poem
	Count int
}

// Matches reports whether query occurs in the title, author or content.
// Matching is case-sensitive and not tokenized.
func Matches(poem poems.Poem, query string) bool {
	return strings.Contains(poem.Title, query) ||
		strings.Contains(poem.Author, query) ||
		strings.Contains(poem.Content, query)
}

// Filter returns every matching poem in catalog order. A blank query
// matches nothing.
func Filter(catalog []poems.Poem, query string) []poems.Poem {
	return filter(catalog, query, -1)
}

// Suggest returns at most SuggestionLimit matches for type-ahead.
func Suggest(catalog []poems.Poem, query string) []poems.Poem {
	return filter(catalog, query, SuggestionLimit)
}

// Run executes a full-results query.
func Run(catalog []poems.Poem, query string) Results {
	matched := Filter(catalog, query)
	return Results{Query: query, Poems: matched, Count: len(matched)}
}

func filter(catalog []poems.Poem, query string, limit int) []poems.Poem {
	result := []poems.Poem{}
	if strings.TrimSpace(query) == "" {
		return result
	}
	for _, poem := range catalog {
		if limit >= 0 && len(result) == limit {
			break
		}
		if Matches(poem, query) {
			result = append(result, poem)
		}
	}
	return result
}
