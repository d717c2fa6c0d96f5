package poems

import (
	"context"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync/atomic"
	"testing"
)

const (
	dongpoPayload = `[
		{"title":"定风波","author":"苏轼","dynasty":"宋","content":"莫听穿林打叶声，何妨吟啸且徐行。\n","appreciation":"旷达"},
		{"title":"水调歌头","author":"苏轼","dynasty":"宋","content":"明月几时有？把酒问青天。\n","extra":"ignored"}
	]`
	tangPayload = `[
		{"title":"静夜思","author":"李白","dynasty":"唐","content":"床前明月光，疑是地上霜。\n"},
		{"title":"缺作者","dynasty":"唐","content":"无"},
		{"title":"","author":"佚名","dynasty":"唐","content":"无题"}
	]`
)

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newPayloadServer(t *testing.T, payload string, hits *atomic.Int32) *httptest.Server {
	t.Helper()
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if hits != nil {
			hits.Add(1)
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = io.WriteString(w, payload)
	}))
	t.Cleanup(server.Close)
	return server
}

func newFailingServer(t *testing.T) *httptest.Server {
	t.Helper()
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "boom", http.StatusInternalServerError)
	}))
	t.Cleanup(server.Close)
	return server
}

func mustSources(t *testing.T, endpoints ...string) []Source {
	t.Helper()
	sources, err := SourcesFor(endpoints, SourceOptions{})
	if err != nil {
		t.Fatalf("SourcesFor: %v", err)
	}
	return sources
}

func TestCatalogConcatenatesSourcesInOrder(t *testing.T) {
	t.Parallel()

	first := newPayloadServer(t, dongpoPayload, nil)
	second := newPayloadServer(t, tangPayload, nil)
	catalog := NewCatalog(mustSources(t, first.URL, second.URL), Options{Logger: quietLogger()})

	got := catalog.Load(context.Background())
	titles := make([]string, 0, len(got))
	for _, poem := range got {
		titles = append(titles, poem.Title)
	}
	want := []string{"定风波", "水调歌头", "静夜思"}
	if strings.Join(titles, ",") != strings.Join(want, ",") {
		t.Fatalf("titles = %v, want %v", titles, want)
	}
	if got[0].Appreciation != "旷达" {
		t.Fatalf("appreciation not decoded: %+v", got[0])
	}
	if got[0].ID == "" || got[0].ID != Identity("定风波", "苏轼", "宋") {
		t.Fatalf("identity not assigned: %q", got[0].ID)
	}
}

func TestCatalogLoadIsCachedAfterSuccess(t *testing.T) {
	t.Parallel()

	var hits atomic.Int32
	server := newPayloadServer(t, dongpoPayload, &hits)
	catalog := NewCatalog(mustSources(t, server.URL), Options{Logger: quietLogger()})

	first := catalog.Load(context.Background())
	second := catalog.Load(context.Background())
	if len(first) != 2 || len(second) != 2 {
		t.Fatalf("unexpected catalog sizes %d / %d", len(first), len(second))
	}
	if hits.Load() != 1 {
		t.Fatalf("expected one network request, got %d", hits.Load())
	}
	if !catalog.Loaded() {
		t.Fatal("catalog should report loaded")
	}
	if _, ok := catalog.Lookup(first[1].ID); !ok {
		t.Fatalf("lookup of %q failed", first[1].ID)
	}
}

func TestCatalogFallsBackWhenEveryEndpointFails(t *testing.T) {
	t.Parallel()

	catalog := NewCatalog(mustSources(t, newFailingServer(t).URL, newFailingServer(t).URL), Options{Logger: quietLogger()})
	got := catalog.Load(context.Background())
	if len(got) != 1 {
		t.Fatalf("expected single fallback poem, got %d", len(got))
	}
	if got[0].Title != "梦微之" || got[0].Author != "白居易" {
		t.Fatalf("unexpected fallback poem: %+v", got[0])
	}
	if catalog.Loaded() {
		t.Fatal("fallback must not populate the catalog")
	}
}

func TestCatalogAllOrNothingByDefault(t *testing.T) {
	t.Parallel()

	healthy := newPayloadServer(t, dongpoPayload, nil)
	catalog := NewCatalog(mustSources(t, healthy.URL, newFailingServer(t).URL), Options{Logger: quietLogger()})
	got := catalog.Load(context.Background())
	if len(got) != 1 || got[0].Title != "梦微之" {
		t.Fatalf("expected fallback on single endpoint failure, got %+v", got)
	}
}

func TestCatalogPartialSuccessKeepsHealthySources(t *testing.T) {
	t.Parallel()

	healthy := newPayloadServer(t, dongpoPayload, nil)
	catalog := NewCatalog(mustSources(t, newFailingServer(t).URL, healthy.URL), Options{
		PartialSuccess: true,
		Logger:         quietLogger(),
	})
	got := catalog.Load(context.Background())
	if len(got) != 2 || got[0].Author != "苏轼" {
		t.Fatalf("expected poems from healthy source, got %+v", got)
	}
}

func TestCatalogRetriesAfterFallback(t *testing.T) {
	t.Parallel()

	var healthy atomic.Bool
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !healthy.Load() {
			http.Error(w, "later", http.StatusServiceUnavailable)
			return
		}
		_, _ = io.WriteString(w, dongpoPayload)
	}))
	t.Cleanup(server.Close)

	catalog := NewCatalog(mustSources(t, server.URL), Options{Logger: quietLogger()})
	if got := catalog.Load(context.Background()); got[0].Title != "梦微之" {
		t.Fatalf("expected fallback first, got %+v", got)
	}
	healthy.Store(true)
	if got := catalog.Load(context.Background()); len(got) != 2 {
		t.Fatalf("expected real catalog on retry, got %+v", got)
	}
}

func TestCatalogFallsBackOnMalformedOrEmptyPayload(t *testing.T) {
	t.Parallel()

	for name, payload := range map[string]string{
		"malformed":    `{"title":`,
		"not an array": `{"title":"x"}`,
		"all invalid":  `[{"title":"x"}]`,
		"empty":        `[]`,
	} {
		catalog := NewCatalog(mustSources(t, newPayloadServer(t, payload, nil).URL), Options{Logger: quietLogger()})
		got := catalog.Load(context.Background())
		if len(got) != 1 || got[0].Title != "梦微之" {
			t.Fatalf("%s: expected fallback, got %+v", name, got)
		}
	}
}

func TestFileSourceReadsGlobInPathOrder(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	if err := os.MkdirAll(filepath.Join(dir, "tang"), 0o755); err != nil {
		t.Fatalf("mkdir: %v", err)
	}
	if err := os.WriteFile(filepath.Join(dir, "tang", "b.json"), []byte(tangPayload), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}
	if err := os.WriteFile(filepath.Join(dir, "a.json"), []byte(dongpoPayload), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}

	source, err := SourceFor(filepath.Join(dir, "**", "*.json"), SourceOptions{})
	if err != nil {
		t.Fatalf("SourceFor: %v", err)
	}
	got, skipped, err := source.Fetch(context.Background())
	if err != nil {
		t.Fatalf("Fetch: %v", err)
	}
	if len(got) != 3 || got[0].Title != "定风波" || got[2].Title != "静夜思" {
		t.Fatalf("unexpected poems %+v", got)
	}
	if skipped != 2 {
		t.Fatalf("expected 2 skipped records, got %d", skipped)
	}
}

func TestFileSourceWithoutMatchesFails(t *testing.T) {
	t.Parallel()

	source := NewFileSource(filepath.Join(t.TempDir(), "*.json"))
	if _, _, err := source.Fetch(context.Background()); err == nil {
		t.Fatal("expected error for empty glob")
	}
}

func TestTitleIndexSkipsAmbiguousTitles(t *testing.T) {
	t.Parallel()

	index := TitleIndex([]Poem{
		New("无题", "李商隐", "唐", "相见时难别亦难", ""),
		New("无题", "佚名", "宋", "", ""),
		New("春晓", "孟浩然", "唐", "春眠不觉晓", ""),
	})
	if _, ok := index["无题"]; ok {
		t.Fatal("ambiguous title should be excluded")
	}
	if index["春晓"] != Identity("春晓", "孟浩然", "唐") {
		t.Fatalf("unexpected index %v", index)
	}
}

func TestPoemByline(t *testing.T) {
	t.Parallel()

	tests := []struct {
		poem Poem
		want string
	}{
		{New("t", "李白", "唐", "", ""), "唐 · 李白"},
		{New("t", "李白", "", "", ""), "李白"},
		{New("t", "", "唐", "", ""), "唐"},
	}
	for _, tt := range tests {
		if got := tt.poem.Byline(); got != tt.want {
			t.Fatalf("Byline() = %q, want %q", got, tt.want)
		}
	}
}
