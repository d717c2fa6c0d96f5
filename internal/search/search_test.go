package search

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/csheth/shiyuan/internal/poems"
)

func fixture() []poems.Poem {
	return []poems.Poem{
		poems.New("定风波", "苏轼", "宋", "莫听穿林打叶声，何妨吟啸且徐行。\n", ""),
		poems.New("静夜思", "李白", "唐", "床前明月光，疑是地上霜。\n", ""),
		poems.New("水调歌头", "苏轼", "宋", "明月几时有？把酒问青天。\n", ""),
		poems.New("江城子", "苏轼", "宋", "十年生死两茫茫，不思量，自难忘。\n", ""),
		poems.New("临江仙", "苏轼", "宋", "夜饮东坡醒复醉，归来仿佛三更。\n", ""),
		poems.New("月下独酌", "李白", "唐", "花间一壶酒，独酌无相亲。\n", ""),
		poems.New("Moon", "Anon", "", "moonlight\n", ""),
	}
}

func titles(list []poems.Poem) []string {
	out := make([]string, 0, len(list))
	for _, p := range list {
		out = append(out, p.Title)
	}
	return out
}

func TestFilterByAuthorKeepsCatalogOrder(t *testing.T) {
	got := Filter(fixture(), "苏轼")
	assert.Equal(t, []string{"定风波", "水调歌头", "江城子", "临江仙"}, titles(got))
	for _, poem := range got {
		assert.Equal(t, "苏轼", poem.Author)
	}
}

func TestFilterMatchesTitleAuthorOrContent(t *testing.T) {
	catalog := fixture()
	for _, query := range []string{"明月", "静夜", "李白", "独酌", "酒", "oon"} {
		got := Filter(catalog, query)
		require.NotEmpty(t, got, "query %q", query)
		for _, poem := range got {
			assert.True(t,
				strings.Contains(poem.Title, query) || strings.Contains(poem.Author, query) || strings.Contains(poem.Content, query),
				"poem %q does not contain %q", poem.Title, query)
		}
	}
}

func TestFilterIsCaseSensitive(t *testing.T) {
	assert.Len(t, Filter(fixture(), "Moon"), 1)
	assert.Len(t, Filter(fixture(), "MOON"), 0)
}

func TestBlankQueryMatchesNothing(t *testing.T) {
	for _, query := range []string{"", " ", "\t\n"} {
		assert.Empty(t, Suggest(fixture(), query))
		assert.Empty(t, Filter(fixture(), query))
		results := Run(fixture(), query)
		assert.Zero(t, results.Count)
	}
}

func TestSuggestTruncatesToLimit(t *testing.T) {
	got := Suggest(fixture(), "苏轼")
	assert.Equal(t, []string{"定风波", "水调歌头", "江城子"}, titles(got))
}

func TestRunReportsExactCountAndIsIdempotent(t *testing.T) {
	catalog := fixture()
	first := Run(catalog, "月")
	second := Run(catalog, "月")
	assert.Equal(t, first, second)
	assert.Equal(t, len(first.Poems), first.Count)
	assert.Equal(t, 3, first.Count)
	assert.Equal(t, "月", first.Query)
}

func TestFilterDoesNotMutateCatalog(t *testing.T) {
	catalog := fixture()
	before := titles(catalog)
	_ = Filter(catalog, "李白")
	_ = Suggest(catalog, "苏轼")
	assert.Equal(t, before, titles(catalog))
}
