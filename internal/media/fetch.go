// Package media downloads message attachments.
package media

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"
)

// DefaultMaxSize bounds a downloaded photo. Telegram serves bot files up to 20 MB.
const DefaultMaxSize int64 = 20 << 20

// ErrTooLarge is returned when the attachment exceeds the fetcher's limit.
var ErrTooLarge = errors.New("attachment too large")

// Fetcher downloads attachment bytes over HTTP.
type Fetcher struct {
	client  *http.Client
	maxSize int64
}

// NewFetcher creates a Fetcher. A non-positive maxSize means DefaultMaxSize.
func NewFetcher(timeout time.Duration, maxSize int64) *Fetcher {
	if maxSize <= 0 {
		maxSize = DefaultMaxSize
	}
	return &Fetcher{
		client: &http.Client{
			Timeout: timeout,
			CheckRedirect: func(req *http.Request, via []*http.Request) error {
				if len(via) >= 5 {
					return fmt.Errorf("too many redirects (max 5)")
				}
				return nil
			},
		},
		maxSize: maxSize,
	}
}

// Fetch returns the body at rawURL. Returned errors never contain the URL:
// Telegram file URLs embed the bot token.
func (f *Fetcher) Fetch(ctx context.Context, rawURL string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return nil, fmt.Errorf("creating download request: %w", withoutURL(err))
	}

	resp, err := f.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("downloading attachment: %w", withoutURL(err))
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("downloading attachment: HTTP %d: %s", resp.StatusCode, http.StatusText(resp.StatusCode))
	}
	if resp.ContentLength > f.maxSize {
		return nil, fmt.Errorf("%w: %d bytes (max %d)", ErrTooLarge, resp.ContentLength, f.maxSize)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, f.maxSize+1))
	if err != nil {
		return nil, fmt.Errorf("reading attachment: %w", err)
	}
	if int64(len(body)) > f.maxSize {
		return nil, fmt.Errorf("%w: exceeds %d bytes", ErrTooLarge, f.maxSize)
	}
	return body, nil
}

// withoutURL unwraps a *url.Error so the request URL is dropped from the message.
func withoutURL(err error) error {
	var urlErr *url.Error
	if errors.As(err, &urlErr) {
		return fmt.Errorf("%s: %w", urlErr.Op, urlErr.Err)
	}
	return err
}
