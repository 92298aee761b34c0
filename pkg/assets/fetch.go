package assets

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"

	lru "github.com/hashicorp/golang-lru/v2"
	"go.uber.org/zap"
)

// maxAssetBytes bounds a single download.
const maxAssetBytes = 256 << 20

// Fetcher downloads asset bytes from a resolved URL.
type Fetcher interface {
	Fetch(ctx context.Context, rawURL string) ([]byte, error)
}

// CachingFetcher downloads http(s) and file URLs and keeps recent payloads
// in an LRU cache keyed by URL without its query string, so re-signed URLs
// for the same object hit the cache.
type CachingFetcher struct {
	client *http.Client
	cache  *lru.Cache[string, []byte]
	log    *zap.Logger
}

// FetcherOptions configures a CachingFetcher.
type FetcherOptions struct {
	Client       *http.Client
	CacheEntries int // 0 disables caching
	Logger       *zap.Logger
}

// NewFetcher creates a CachingFetcher.
func NewFetcher(opts FetcherOptions) (*CachingFetcher, error) {
	f := &CachingFetcher{client: opts.Client, log: opts.Logger}
	if f.client == nil {
		f.client = http.DefaultClient
	}
	if f.log == nil {
		f.log = zap.NewNop()
	}
	if opts.CacheEntries > 0 {
		c, err := lru.New[string, []byte](opts.CacheEntries)
		if err != nil {
			return nil, err
		}
		f.cache = c
	}
	return f, nil
}

// Fetch implements Fetcher.
func (f *CachingFetcher) Fetch(ctx context.Context, rawURL string) ([]byte, error) {
	u, err := url.Parse(rawURL)
	if err != nil {
		return nil, fmt.Errorf("parse asset url: %w", err)
	}
	key := cacheKey(u)
	if f.cache != nil {
		if data, ok := f.cache.Get(key); ok {
			f.log.Debug("asset cache hit", zap.String("key", key))
			return data, nil
		}
	}

	var data []byte
	switch u.Scheme {
	case "file":
		data, err = readFile(ctx, u.Path)
	case "http", "https":
		data, err = f.get(ctx, rawURL)
	default:
		err = fmt.Errorf("unsupported asset url scheme %q", u.Scheme)
	}
	if err != nil {
		return nil, err
	}

	if f.cache != nil {
		f.cache.Add(key, data)
	}
	f.log.Debug("asset fetched", zap.String("key", key), zap.Int("bytes", len(data)))
	return data, nil
}

// Purge drops every cached payload.
func (f *CachingFetcher) Purge() {
	if f.cache != nil {
		f.cache.Purge()
	}
}

// Cached returns the number of cached payloads.
func (f *CachingFetcher) Cached() int {
	if f.cache == nil {
		return 0
	}
	return f.cache.Len()
}

func (f *CachingFetcher) get(ctx context.Context, rawURL string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return nil, err
	}
	resp, err := f.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("download asset: %w", err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusNotFound:
		return nil, fmt.Errorf("%w: %s", ErrNotFound, redact(req.URL))
	case resp.StatusCode < 200 || resp.StatusCode > 299:
		return nil, fmt.Errorf("download asset %s: status %d", redact(req.URL), resp.StatusCode)
	}
	return readLimited(resp.Body)
}

func readFile(ctx context.Context, path string) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	fh, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("%w: %s", ErrNotFound, path)
		}
		return nil, err
	}
	defer fh.Close()
	return readLimited(fh)
}

func readLimited(r io.Reader) ([]byte, error) {
	data, err := io.ReadAll(io.LimitReader(r, maxAssetBytes+1))
	if err != nil {
		return nil, fmt.Errorf("read asset: %w", err)
	}
	if len(data) > maxAssetBytes {
		return nil, fmt.Errorf("asset exceeds %d bytes", maxAssetBytes)
	}
	return data, nil
}

func cacheKey(u *url.URL) string {
	c := *u
	c.RawQuery = ""
	c.Fragment = ""
	return c.String()
}

// redact strips signatures from URLs before they reach logs or errors.
func redact(u *url.URL) string {
	return cacheKey(u)
}
