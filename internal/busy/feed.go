package busy

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	appLog "leasesched/internal/log"
	"leasesched/internal/retry"
)

const maxFeedBytes = 8 << 20

// Feed is one subscribed calendar whose events block meeting slots.
type Feed struct {
	ID  string
	URL string
}

// Fetched is a feed body, fresh or from the disk cache.
type Fetched struct {
	Feed      Feed
	Body      []byte
	FromCache bool
}

type cacheMeta struct {
	URL          string    `json:"url"`
	ETag         string    `json:"etag,omitempty"`
	LastModified string    `json:"last_modified,omitempty"`
	FetchedAt    time.Time `json:"fetched_at"`
}

// Fetcher downloads feeds with conditional requests (ETag, Last-Modified)
// and keeps the last good body on disk. When a feed cannot be reached the
// cached body is served instead.
type Fetcher struct {
	client   *http.Client
	cacheDir string
	policy   retry.Policy
}

// NewFetcher returns a Fetcher caching under cacheDir. A nil client uses a
// client with a 15s timeout.
func NewFetcher(cacheDir string, client *http.Client, policy retry.Policy) *Fetcher {
	if client == nil {
		client = &http.Client{Timeout: 15 * time.Second}
	}
	return &Fetcher{client: client, cacheDir: cacheDir, policy: policy}
}

// Fetch returns feed's current body.
func (f *Fetcher) Fetch(ctx context.Context, feed Feed) (Fetched, error) {
	if feed.URL == "" {
		return Fetched{}, errors.New("feed URL is empty")
	}
	dir := f.cacheDirFor(feed.URL)
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return Fetched{}, err
	}
	meta, _ := loadMeta(dir)
	cached, _ := os.ReadFile(filepath.Join(dir, "body.ics"))

	var (
		body        []byte
		notModified bool
		next        cacheMeta
	)
	res := retry.Do(ctx, f.policy, "fetch feed "+feed.ID, func(ctx context.Context) error {
		var err error
		body, next, notModified, err = f.get(ctx, feed.URL, meta)
		return err
	})

	switch {
	case res.OK() && notModified:
		if len(cached) == 0 {
			return Fetched{}, errors.New("304 Not Modified without a cached body")
		}
		appLog.Debug("feed not modified", "feed", feed.ID, "url", redactURL(feed.URL))
		return Fetched{Feed: feed, Body: cached, FromCache: true}, nil
	case res.OK():
		if err := saveCache(dir, next, body); err != nil {
			appLog.Error("feed cache save failed", err, "feed", feed.ID, "url", redactURL(feed.URL))
		}
		appLog.Info("feed fetched", "feed", feed.ID, "url", redactURL(feed.URL), "bytes", len(body))
		return Fetched{Feed: feed, Body: body}, nil
	case len(cached) > 0:
		appLog.Warn("feed unreachable, using cached body", "feed", feed.ID, "url", redactURL(feed.URL), "err", res.Err)
		return Fetched{Feed: feed, Body: cached, FromCache: true}, nil
	default:
		return Fetched{}, res.Err
	}
}

// get performs one conditional GET. Client errors are permanent; network
// failures and server errors may be retried.
func (f *Fetcher) get(ctx context.Context, url string, meta cacheMeta) ([]byte, cacheMeta, bool, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, cacheMeta{}, false, retry.Permanent(err)
	}
	if meta.URL == url {
		if meta.ETag != "" {
			req.Header.Set("If-None-Match", meta.ETag)
		}
		if meta.LastModified != "" {
			req.Header.Set("If-Modified-Since", meta.LastModified)
		}
	}

	resp, err := f.client.Do(req)
	if err != nil {
		return nil, cacheMeta{}, false, err
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusNotModified:
		return nil, meta, true, nil
	case resp.StatusCode == http.StatusOK:
		body, err := io.ReadAll(io.LimitReader(resp.Body, maxFeedBytes))
		if err != nil {
			return nil, cacheMeta{}, false, err
		}
		return body, cacheMeta{
			URL:          url,
			ETag:         resp.Header.Get("ETag"),
			LastModified: resp.Header.Get("Last-Modified"),
		}, false, nil
	case resp.StatusCode >= 400 && resp.StatusCode < 500:
		return nil, cacheMeta{}, false, retry.Permanent(errors.New(resp.Status))
	default:
		return nil, cacheMeta{}, false, errors.New(resp.Status)
	}
}

func (f *Fetcher) cacheDirFor(url string) string {
	sum := sha256.Sum256([]byte(url))
	return filepath.Join(f.cacheDir, hex.EncodeToString(sum[:8]))
}

func loadMeta(dir string) (cacheMeta, error) {
	var meta cacheMeta
	data, err := os.ReadFile(filepath.Join(dir, "meta.json"))
	if err != nil {
		return meta, err
	}
	if err := json.Unmarshal(data, &meta); err != nil {
		return cacheMeta{}, err
	}
	return meta, nil
}

// saveCache writes the body before the metadata so the metadata never
// describes a body that is not on disk.
func saveCache(dir string, meta cacheMeta, body []byte) error {
	if err := os.WriteFile(filepath.Join(dir, "body.ics"), body, 0o600); err != nil {
		return err
	}
	meta.FetchedAt = time.Now().UTC()
	data, err := json.MarshalIndent(&meta, "", "  ")
	if err != nil {
		return err
	}
	if err := os.WriteFile(filepath.Join(dir, "meta.json"), data, 0o600); err != nil {
		return fmt.Errorf("write feed cache metadata: %w", err)
	}
	return nil
}

// redactURL keeps only scheme and host; feed URLs usually embed a secret.
func redactURL(u string) string {
	i := strings.Index(u, "://")
	if i < 0 {
		return "feed://...(redacted)"
	}
	rest := u[i+3:]
	if j := strings.IndexByte(rest, '/'); j >= 0 {
		rest = rest[:j]
	}
	return u[:i+3] + rest + "/...(redacted)"
}
