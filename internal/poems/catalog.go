// Package poems loads the poem catalog from remote or local JSON sources.
//
// A Catalog is created empty, populated by the first successful Load, and
// read-only afterwards. Load never fails: when the sources cannot produce a
// usable catalog it returns the single fallback poem instead.
package poems

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"sync"

	"golang.org/x/sync/errgroup"
)

// DefaultEndpoint is the public poem dataset.
const DefaultEndpoint = "https://cdn.jsdelivr.net/gh/y-shi23/CDN/json/poems.json"

var errEmptyCatalog = errors.New("catalog sources produced no valid poems")

// Options tune how a Catalog loads.
type Options struct {
	// PartialSuccess keeps the poems of healthy sources when others fail.
	// By default any single failure discards the whole load.
	PartialSuccess bool
	Logger         *slog.Logger
}

// Catalog is the process-wide poem set.
type Catalog struct {
	sources []Source
	opts    Options
	logger  *slog.Logger

	mu    sync.Mutex
	poems []Poem
	byID  map[string]int
}

// NewCatalog returns an empty catalog over sources.
func NewCatalog(sources []Source, opts Options) *Catalog {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Catalog{sources: sources, opts: opts, logger: logger}
}

// Fallback returns the poem shown when nothing could be loaded.
func Fallback() []Poem {
	return []Poem{New(
		"梦微之",
		"白居易",
		"唐",
		"夜来携手梦同游，晨起盈巾泪莫收。\n漳浦老身三度病，咸阳宿草八回秋。\n君埋泉下泥销骨，我寄人间雪满头。\n阿卫韩郎相次去，夜台茫昧得知不？\n",
		"",
	)}
}

// Load returns the catalog, fetching it on the first successful call only.
// Failures are logged and answered with Fallback, which is not cached.
func (c *Catalog) Load(ctx context.Context) []Poem {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.poems != nil {
		return slices.Clone(c.poems)
	}

	loaded, err := c.fetchAll(ctx)
	if err != nil {
		c.logger.Warn("catalog load failed, using fallback poem", "error", err)
		return Fallback()
	}

	c.poems = loaded
	c.byID = make(map[string]int, len(loaded))
	for i, poem := range loaded {
		if _, seen := c.byID[poem.ID]; !seen {
			c.byID[poem.ID] = i
		}
	}
	c.logger.Info("catalog loaded", "poems", len(loaded), "sources", len(c.sources))
	return slices.Clone(loaded)
}

// Loaded reports whether a successful load has populated the catalog.
func (c *Catalog) Loaded() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.poems != nil
}

// Lookup finds a loaded poem by identity.
func (c *Catalog) Lookup(id string) (Poem, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	idx, ok := c.byID[id]
	if !ok {
		return Poem{}, false
	}
	return c.poems[idx], true
}

// TitleIndex maps each title that occurs exactly once to its poem identity.
// Ambiguous titles are left out.
func (c *Catalog) TitleIndex() map[string]string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return TitleIndex(c.poems)
}

// TitleIndex maps each title that occurs exactly once in poems to its identity.
func TitleIndex(poems []Poem) map[string]string {
	counts := make(map[string]int, len(poems))
	for _, poem := range poems {
		counts[poem.Title]++
	}
	index := make(map[string]string, len(poems))
	for _, poem := range poems {
		if counts[poem.Title] == 1 {
			index[poem.Title] = poem.ID
		}
	}
	return index
}

type sourceResult struct {
	poems   []Poem
	skipped int
	err     error
}

func (c *Catalog) fetchAll(ctx context.Context) ([]Poem, error) {
	if len(c.sources) == 0 {
		return nil, errors.New("no catalog sources configured")
	}

	results := make([]sourceResult, len(c.sources))
	group, groupCtx := errgroup.WithContext(ctx)
	for i, source := range c.sources {
		group.Go(func() error {
			poems, skipped, err := source.Fetch(groupCtx)
			if err != nil {
				err = fmt.Errorf("%s: %w", source.Name(), err)
				results[i] = sourceResult{err: err}
				if c.opts.PartialSuccess {
					return nil
				}
				return err
			}
			results[i] = sourceResult{poems: poems, skipped: skipped}
			return nil
		})
	}
	if err := group.Wait(); err != nil {
		return nil, err
	}

	var (
		combined []Poem
		failures []error
	)
	for i, result := range results {
		if result.err != nil {
			c.logger.Warn("catalog source skipped", "source", c.sources[i].Name(), "error", result.err)
			failures = append(failures, result.err)
			continue
		}
		if result.skipped > 0 {
			c.logger.Debug("dropped incomplete poem records", "source", c.sources[i].Name(), "count", result.skipped)
		}
		combined = append(combined, result.poems...)
	}
	if len(combined) == 0 {
		if len(failures) > 0 {
			return nil, errors.Join(failures...)
		}
		return nil, errEmptyCatalog
	}
	return combined, nil
}
