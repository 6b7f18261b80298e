package tle

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"golang.org/x/time/rate"
)

// DefaultSources are the CelesTrak groups carrying the earth-observation and
// weather satellites tracked by default.
var DefaultSources = []string{
	"https://celestrak.org/NORAD/elements/gp.php?GROUP=resource&FORMAT=tle",
	"https://celestrak.org/NORAD/elements/gp.php?GROUP=weather&FORMAT=tle",
}

// maxBodyBytes caps a single response body.
const maxBodyBytes = 50 << 20

// Fetcher retrieves raw TLE text from a primary URL plus optional extra URLs.
// Requests are paced by a token bucket so repeated refreshes stay polite to
// the provider.
type Fetcher struct {
	sourceURL  string
	extraURLs  []string
	httpClient *http.Client
	limiter    *rate.Limiter
	logger     *slog.Logger
}

// NewFetcher creates a Fetcher for sourceURL and any extra URLs. An empty
// sourceURL selects DefaultSources.
func NewFetcher(sourceURL string, logger *slog.Logger, extraURLs ...string) *Fetcher {
	if sourceURL == "" {
		sourceURL = DefaultSources[0]
		if len(extraURLs) == 0 {
			extraURLs = DefaultSources[1:]
		}
	}
	return &Fetcher{
		sourceURL: sourceURL,
		extraURLs: extraURLs,
		httpClient: &http.Client{
			Timeout: 30 * time.Second,
		},
		limiter: rate.NewLimiter(rate.Every(500*time.Millisecond), 4),
		logger:  logger,
	}
}

// SetRateLimit replaces the request pacing: perSecond requests per second
// with the given burst.
func (f *Fetcher) SetRateLimit(perSecond float64, burst int) {
	if perSecond <= 0 {
		f.limiter = rate.NewLimiter(rate.Inf, 0)
		return
	}
	if burst < 1 {
		burst = 1
	}
	f.limiter = rate.NewLimiter(rate.Limit(perSecond), burst)
}

// SourceURL returns the configured primary source URL.
func (f *Fetcher) SourceURL() string {
	return f.sourceURL
}

// Sources returns every URL the fetcher reads, primary first.
func (f *Fetcher) Sources() []string {
	return append([]string{f.sourceURL}, f.extraURLs...)
}

// Fetch downloads the primary source and appends each extra source. A failing
// extra source is logged and skipped; a failing primary source fails the fetch.
func (f *Fetcher) Fetch(ctx context.Context) ([]byte, error) {
	body, err := f.get(ctx, f.sourceURL)
	if err != nil {
		return nil, err
	}

	buf := bytes.NewBuffer(body)
	for _, u := range f.extraURLs {
		extra, err := f.get(ctx, u)
		if err != nil {
			f.logger.Warn("extra TLE source failed", "url", u, "error", err)
			continue
		}
		if buf.Len() > 0 && !bytes.HasSuffix(buf.Bytes(), []byte("\n")) {
			buf.WriteByte('\n')
		}
		buf.Write(extra)
	}
	return buf.Bytes(), nil
}

func (f *Fetcher) get(ctx context.Context, url string) ([]byte, error) {
	if err := f.limiter.Wait(ctx); err != nil {
		return nil, fmt.Errorf("waiting for rate limiter: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("creating request: %w", err)
	}

	resp, err := f.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetching TLE data: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("unexpected status code %d from %s", resp.StatusCode, url)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes+1))
	if err != nil {
		return nil, fmt.Errorf("reading response body: %w", err)
	}
	if len(body) > maxBodyBytes {
		return nil, fmt.Errorf("response from %s exceeds %d byte limit", url, maxBodyBytes)
	}

	f.logger.Debug("fetched TLE source", "url", url, "bytes", len(body))
	return body, nil
}
