package poems

import (
	"context"
	"crypto/sha1"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"time"
)

const (
	cacheEnvVar    = "SHIYUAN_CACHE_DIR"
	cacheSubdir    = "shiyuan/catalog"
	defaultTTL     = 24 * time.Hour
	partialSuffix  = ".part"
	metaSuffix     = ".meta"
	bodySuffix     = ".json"
	errorBodyLimit = 512
)

// responseCache stores catalog payloads on disk keyed by URL and revalidates
// them with ETag / Last-Modified once they go stale.
type responseCache struct {
	dir    string
	ttl    time.Duration
	client *http.Client
	// validate rejects a downloaded body before it is committed to disk.
	validate func([]byte) error
}

type responseMeta struct {
	URL          string    `json:"url"`
	ETag         string    `json:"etag"`
	LastModified string    `json:"lastModified"`
	CachedAt     time.Time `json:"cachedAt"`
	Size         int64     `json:"size"`
}

func newResponseCache(dir string, ttl time.Duration, client *http.Client) (*responseCache, error) {
	if dir == "" {
		dir = os.Getenv(cacheEnvVar)
	}
	if dir == "" {
		base, err := os.UserCacheDir()
		if err != nil {
			base = filepath.Join(os.TempDir(), "shiyuan-cache")
		}
		dir = filepath.Join(base, cacheSubdir)
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, err
	}
	if ttl <= 0 {
		ttl = defaultTTL
	}
	if client == nil {
		client = http.DefaultClient
	}
	return &responseCache{dir: dir, ttl: ttl, client: client}, nil
}

// Fetch returns the payload for url, from disk when fresh. A failed refresh
// falls back to whatever body is already cached.
func (c *responseCache) Fetch(ctx context.Context, url string) ([]byte, error) {
	bodyPath, metaPath, partialPath := c.pathsFor(cacheKey(url))

	info, statErr := os.Stat(bodyPath)
	if statErr == nil && info.Size() > 0 && time.Since(info.ModTime()) < c.ttl {
		return os.ReadFile(bodyPath)
	}

	meta, _ := readMeta(metaPath)
	if statErr != nil {
		info = nil
	}
	body, err := c.download(ctx, url, bodyPath, metaPath, partialPath, meta, info)
	if err == nil {
		return body, nil
	}
	if info != nil && info.Size() > 0 {
		if cached, readErr := os.ReadFile(bodyPath); readErr == nil {
			return cached, nil
		}
	}
	return nil, err
}

func (c *responseCache) download(ctx context.Context, url, bodyPath, metaPath, partialPath string, meta responseMeta, current os.FileInfo) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Accept", "application/json")
	if current != nil && current.Size() > 0 {
		if meta.ETag != "" {
			req.Header.Set("If-None-Match", meta.ETag)
		}
		if meta.LastModified != "" {
			req.Header.Set("If-Modified-Since", meta.LastModified)
		}
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusNotModified:
		if current != nil && current.Size() > 0 {
			now := time.Now()
			_ = os.Chtimes(bodyPath, now, now)
			meta.CachedAt = now.UTC()
			_ = writeMeta(metaPath, meta)
			return os.ReadFile(bodyPath)
		}
		return c.download(ctx, url, bodyPath, metaPath, partialPath, responseMeta{}, nil)
	case resp.StatusCode >= 200 && resp.StatusCode < 300:
		return c.saveBody(resp, bodyPath, metaPath, partialPath)
	default:
		body, _ := io.ReadAll(io.LimitReader(resp.Body, errorBodyLimit))
		return nil, fmt.Errorf("catalog fetch failed: %s (%s)", resp.Status, string(body))
	}
}

func (c *responseCache) saveBody(resp *http.Response, bodyPath, metaPath, partialPath string) ([]byte, error) {
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, err
	}
	if c.validate != nil {
		if err := c.validate(body); err != nil {
			return nil, fmt.Errorf("catalog payload not cached: %w", err)
		}
	}
	if err := os.WriteFile(partialPath, body, 0o644); err != nil {
		return nil, err
	}
	if err := os.Rename(partialPath, bodyPath); err != nil {
		return nil, err
	}

	meta := responseMeta{
		URL:          resp.Request.URL.String(),
		ETag:         resp.Header.Get("Etag"),
		LastModified: resp.Header.Get("Last-Modified"),
		CachedAt:     time.Now().UTC(),
		Size:         int64(len(body)),
	}
	if err := writeMeta(metaPath, meta); err != nil {
		return nil, err
	}
	return body, nil
}

func (c *responseCache) pathsFor(key string) (string, string, string) {
	return filepath.Join(c.dir, key+bodySuffix), filepath.Join(c.dir, key+metaSuffix), filepath.Join(c.dir, key+partialSuffix)
}

func cacheKey(url string) string {
	sum := sha1.Sum([]byte(url))
	return hex.EncodeToString(sum[:])
}

func readMeta(path string) (responseMeta, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return responseMeta{}, err
	}
	var meta responseMeta
	if err := json.Unmarshal(data, &meta); err != nil {
		return responseMeta{}, err
	}
	return meta, nil
}

func writeMeta(path string, meta responseMeta) error {
	data, err := json.MarshalIndent(meta, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0o644)
}
