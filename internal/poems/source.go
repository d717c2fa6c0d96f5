package poems

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"sort"
	"strings"
	"time"

	"github.com/bmatcuk/doublestar/v4"
)

// Source yields the poems of one catalog endpoint.
type Source interface {
	Name() string
	Fetch(ctx context.Context) (poems []Poem, skipped int, err error)
}

// SourceOptions configures the sources built by SourceFor.
type SourceOptions struct {
	// Timeout bounds each HTTP request. Zero leaves requests unbounded.
	Timeout    time.Duration
	HTTPClient *http.Client
	Cache      bool
	CacheDir   string
	CacheTTL   time.Duration
}

// SourceFor maps an endpoint string to a Source: http(s) URLs fetch over the
// network, anything else is treated as a local glob.
func SourceFor(endpoint string, opts SourceOptions) (Source, error) {
	endpoint = strings.TrimSpace(endpoint)
	if endpoint == "" {
		return nil, errors.New("empty catalog endpoint")
	}
	lower := strings.ToLower(endpoint)
	if strings.HasPrefix(lower, "http://") || strings.HasPrefix(lower, "https://") {
		return NewHTTPSource(endpoint, opts)
	}
	return NewFileSource(strings.TrimPrefix(endpoint, "file://")), nil
}

// SourcesFor builds one source per endpoint, preserving order.
func SourcesFor(endpoints []string, opts SourceOptions) ([]Source, error) {
	sources := make([]Source, 0, len(endpoints))
	for _, endpoint := range endpoints {
		source, err := SourceFor(endpoint, opts)
		if err != nil {
			return nil, err
		}
		sources = append(sources, source)
	}
	return sources, nil
}

// HTTPSource downloads a JSON array of poems.
type HTTPSource struct {
	url    string
	client *http.Client
	cache  *responseCache
}

// NewHTTPSource returns a source for url, optionally backed by the on-disk cache.
func NewHTTPSource(url string, opts SourceOptions) (*HTTPSource, error) {
	client := opts.HTTPClient
	if client == nil {
		client = &http.Client{Timeout: opts.Timeout}
	}
	source := &HTTPSource{url: url, client: client}
	if opts.Cache {
		cache, err := newResponseCache(opts.CacheDir, opts.CacheTTL, client)
		if err != nil {
			return nil, fmt.Errorf("catalog cache: %w", err)
		}
		cache.validate = validPayload
		source.cache = cache
	}
	return source, nil
}

func (s *HTTPSource) Name() string {
	return s.url
}

func (s *HTTPSource) Fetch(ctx context.Context) ([]Poem, int, error) {
	if s.cache != nil {
		body, err := s.cache.Fetch(ctx, s.url)
		if err != nil {
			return nil, 0, err
		}
		return Decode(bytes.NewReader(body))
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, s.url, nil)
	if err != nil {
		return nil, 0, err
	}
	req.Header.Set("Accept", "application/json")

	resp, err := s.client.Do(req)
	if err != nil {
		return nil, 0, err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, errorBodyLimit))
		return nil, 0, fmt.Errorf("catalog fetch failed: %s (%s)", resp.Status, string(body))
	}
	return Decode(resp.Body)
}

// validPayload accepts bodies that decode to at least one poem.
func validPayload(body []byte) error {
	poems, _, err := Decode(bytes.NewReader(body))
	if err != nil {
		return err
	}
	if len(poems) == 0 {
		return errEmptyCatalog
	}
	return nil
}

// FileSource reads every local JSON file matching a doublestar pattern.
type FileSource struct {
	pattern string
}

// NewFileSource returns a source for pattern, e.g. "data/**/*.json".
func NewFileSource(pattern string) *FileSource {
	return &FileSource{pattern: pattern}
}

func (s *FileSource) Name() string {
	return s.pattern
}

func (s *FileSource) Fetch(ctx context.Context) ([]Poem, int, error) {
	matches, err := doublestar.FilepathGlob(s.pattern, doublestar.WithFilesOnly())
	if err != nil {
		return nil, 0, fmt.Errorf("invalid catalog pattern %q: %w", s.pattern, err)
	}
	if len(matches) == 0 {
		return nil, 0, fmt.Errorf("no catalog files match %q", s.pattern)
	}
	sort.Strings(matches)

	var (
		poems   []Poem
		skipped int
	)
	for _, path := range matches {
		if err := ctx.Err(); err != nil {
			return nil, 0, err
		}
		file, err := os.Open(path)
		if err != nil {
			return nil, 0, err
		}
		batch, dropped, err := Decode(file)
		file.Close()
		if err != nil {
			return nil, 0, fmt.Errorf("%s: %w", path, err)
		}
		poems = append(poems, batch...)
		skipped += dropped
	}
	return poems, skipped, nil
}
