package audio

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"time"

	log "github.com/sirupsen/logrus"
	"golang.org/x/sync/singleflight"

	"memejoin/pkg/retrylimit"
)

// Fetcher acquires a remote audio asset. The caller bounds the attempt with
// the context.
type Fetcher interface {
	Fetch(ctx context.Context, reference string) ([]byte, error)
}

// HTTPFetcher downloads assets over plain HTTP(S).
type HTTPFetcher struct {
	Client *http.Client
}

func (f *HTTPFetcher) Fetch(ctx context.Context, reference string) ([]byte, error) {
	client := f.Client
	if client == nil {
		client = http.DefaultClient
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, reference, nil)
	if err != nil {
		return nil, fmt.Errorf("bad asset reference: %w", err)
	}

	resp, err := client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("asset fetch failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, &retrylimit.StatusError{Code: resp.StatusCode, URL: reference}
	}

	return io.ReadAll(resp.Body)
}

// Cache materializes remote assets on disk, content-addressed by reference.
// Concurrent requests for the same uncached reference coalesce into a single
// download.
type Cache struct {
	dir     string
	fetcher Fetcher
	timeout time.Duration
	group   singleflight.Group
	limiter *retrylimit.AdaptiveLimiter
}

func NewCache(dir string, fetcher Fetcher, timeout time.Duration) *Cache {
	return &Cache{
		dir:     dir,
		fetcher: fetcher,
		timeout: timeout,
		limiter: retrylimit.NewAdaptiveLimiter(5, 1, 10, 1, 0.5),
	}
}

// Get returns the local path of a cached asset, downloading it first when
// missing.
func (c *Cache) Get(ctx context.Context, reference string) (string, error) {
	path := c.path(reference)
	if _, err := os.Stat(path); err == nil {
		return path, nil
	}

	_, err, _ := c.group.Do(path, func() (any, error) {
		// Re-check inside the flight: a previous flight may have
		// written the file between Stat and Do.
		if _, err := os.Stat(path); err == nil {
			return nil, nil
		}
		// Detached from the initiating caller: its cancellation must not
		// fail every waiter coalesced onto this flight. The download
		// still carries its own timeout.
		return nil, c.download(context.WithoutCancel(ctx), reference, path)
	})
	if err != nil {
		return "", err
	}
	return path, nil
}

func (c *Cache) download(ctx context.Context, reference, path string) error {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	var data []byte
	err := retrylimit.WithRetryMax(ctx, func() error {
		var ferr error
		data, ferr = c.fetcher.Fetch(ctx, reference)
		return ferr
	}, c.limiter, 3)
	if err != nil {
		return fmt.Errorf("failed to fetch %s: %w", reference, err)
	}

	if err := os.MkdirAll(c.dir, 0o755); err != nil {
		return fmt.Errorf("failed to create cache dir: %w", err)
	}

	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return fmt.Errorf("failed to write cached asset: %w", err)
	}
	if err := os.Rename(tmp, path); err != nil {
		os.Remove(tmp)
		return fmt.Errorf("failed to move cached asset into place: %w", err)
	}

	log.WithFields(log.Fields{
		"reference": reference,
		"bytes":     len(data),
	}).Info("cached remote asset")
	return nil
}

// path derives the on-disk location for a reference: sha256 of the reference
// plus the original extension so ffmpeg can sniff the container.
func (c *Cache) path(reference string) string {
	sum := sha256.Sum256([]byte(reference))
	name := hex.EncodeToString(sum[:])

	if u, err := url.Parse(reference); err == nil {
		if ext := filepath.Ext(u.Path); ext != "" && len(ext) <= 8 {
			name += ext
		}
	}
	return filepath.Join(c.dir, name)
}

// Size reports the total bytes held in the cache directory.
func (c *Cache) Size() (int64, error) {
	var total int64
	err := filepath.Walk(c.dir, func(_ string, info os.FileInfo, err error) error {
		if err != nil {
			if os.IsNotExist(err) {
				return nil
			}
			return err
		}
		if !info.IsDir() {
			total += info.Size()
		}
		return nil
	})
	if os.IsNotExist(err) {
		return 0, nil
	}
	return total, err
}

// RunCacheSweeper deletes cached assets untouched for longer than maxAge,
// checking once an hour until ctx is done. Call from main.
func RunCacheSweeper(ctx context.Context, cache *Cache, maxAge time.Duration) {
	ticker := time.NewTicker(1 * time.Hour)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := cache.sweep(maxAge); err != nil {
				log.WithError(err).Error("cache sweep failed")
			}
		}
	}
}

func (c *Cache) sweep(maxAge time.Duration) error {
	entries, err := os.ReadDir(c.dir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return err
	}

	cutoff := time.Now().Add(-maxAge)
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		info, err := entry.Info()
		if err != nil {
			continue
		}
		if info.ModTime().Before(cutoff) {
			os.Remove(filepath.Join(c.dir, entry.Name()))
		}
	}
	return nil
}
