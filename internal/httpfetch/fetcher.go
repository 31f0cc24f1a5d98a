// Package httpfetch is the default collab.ImageFetcher adapter: a plain
// stdlib HTTP client that downloads a URL into memory, caps its size, and
// decodes width/height from the bytes it received (PNG, JPEG or GIF). The
// image's MIME type is not reported.
package httpfetch

import (
	"bytes"
	"context"
	"fmt"
	"image"
	_ "image/gif"
	_ "image/jpeg"
	_ "image/png"
	"io"
	"net/http"
	"time"

	"chatcoach/internal/domain"
)

// Fetcher is the default collab.ImageFetcher implementation.
type Fetcher struct {
	client  *http.Client
	maxSize int64
}

// New builds a Fetcher with the given per-request timeout and byte cap.
func New(timeout time.Duration, maxSize int64) *Fetcher {
	return &Fetcher{
		client:  &http.Client{Timeout: timeout},
		maxSize: maxSize,
	}
}

// Fetch downloads url, returning its bytes and decoded pixel dimensions.
func (f *Fetcher) Fetch(ctx context.Context, url string) ([]byte, int, int, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, 0, 0, domain.Wrap(domain.KindImageFetch, "httpfetch.Fetch", "build request", err)
	}

	resp, err := f.client.Do(req)
	if err != nil {
		return nil, 0, 0, domain.Wrap(domain.KindImageFetch, "httpfetch.Fetch", "request failed", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, 0, 0, domain.Wrap(domain.KindImageFetch, "httpfetch.Fetch",
			fmt.Sprintf("unexpected status %d", resp.StatusCode), nil)
	}

	limited := io.LimitReader(resp.Body, f.maxSize+1)
	data, err := io.ReadAll(limited)
	if err != nil {
		return nil, 0, 0, domain.Wrap(domain.KindImageFetch, "httpfetch.Fetch", "read body", err)
	}
	if int64(len(data)) > f.maxSize {
		return nil, 0, 0, domain.Wrap(domain.KindImageFetch, "httpfetch.Fetch",
			fmt.Sprintf("image exceeds %d byte limit", f.maxSize), nil)
	}

	cfg, _, err := image.DecodeConfig(bytes.NewReader(data))
	if err != nil {
		return nil, 0, 0, domain.Wrap(domain.KindImageFetch, "httpfetch.Fetch", "not a decodable image", err)
	}

	return data, cfg.Width, cfg.Height, nil
}
