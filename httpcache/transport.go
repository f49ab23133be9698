package httpcache

import (
	"bytes"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"golang.org/x/time/rate"

	"github.com/grrywlsn/retag/logging"
)

// DefaultInterval is the minimum spacing between requests that reach the
// network.
const DefaultInterval = time.Second

// Transport is an http.RoundTripper that answers GET requests from a Cache
// when it can and spaces out the requests it cannot answer. A nil Cache
// disables caching but keeps the spacing.
type Transport struct {
	cache   *Cache
	next    http.RoundTripper
	limiter *rate.Limiter
	logger  *slog.Logger
}

// NewTransport wraps next, which defaults to http.DefaultTransport. An
// interval of zero or less disables spacing.
func NewTransport(cache *Cache, next http.RoundTripper, interval time.Duration, logger *slog.Logger) *Transport {
	if next == nil {
		next = http.DefaultTransport
	}
	limit := rate.Inf
	if interval > 0 {
		limit = rate.Every(interval)
	}
	return &Transport{
		cache:   cache,
		next:    next,
		limiter: rate.NewLimiter(limit, 1),
		logger:  logging.NewComponentLogger(logger, "httpcache"),
	}
}

// Client returns an http.Client using t with the given timeout.
func (t *Transport) Client(timeout time.Duration) *http.Client {
	return &http.Client{Transport: t, Timeout: timeout}
}

// RoundTrip implements http.RoundTripper.
func (t *Transport) RoundTrip(req *http.Request) (*http.Response, error) {
	cacheable := t.cache != nil && req.Method == http.MethodGet
	key := req.URL.String()

	if cacheable {
		entry, ok, err := t.cache.Get(req.Context(), key)
		if err != nil {
			t.logger.Warn("cache lookup failed", logging.String("url", key), logging.Error(err))
		} else if ok {
			t.logger.Debug("cache hit", logging.String("url", key))
			return entry.response(req), nil
		}
	}

	if err := t.limiter.Wait(req.Context()); err != nil {
		return nil, err
	}
	resp, err := t.next.RoundTrip(req)
	if err != nil || !cacheable || resp.StatusCode != http.StatusOK {
		return resp, err
	}

	body, err := io.ReadAll(resp.Body)
	resp.Body.Close()
	if err != nil {
		return nil, fmt.Errorf("read response body: %w", err)
	}
	resp.Body = io.NopCloser(bytes.NewReader(body))

	entry := Entry{Status: resp.StatusCode, Header: resp.Header.Clone(), Body: body}
	if err := t.cache.Put(req.Context(), key, entry); err != nil {
		t.logger.Warn("cache store failed", logging.String("url", key), logging.Error(err))
	}
	return resp, nil
}

func (e Entry) response(req *http.Request) *http.Response {
	return &http.Response{
		Status:        fmt.Sprintf("%d %s", e.Status, http.StatusText(e.Status)),
		StatusCode:    e.Status,
		Proto:         "HTTP/1.1",
		ProtoMajor:    1,
		ProtoMinor:    1,
		Header:        e.Header.Clone(),
		Body:          io.NopCloser(bytes.NewReader(e.Body)),
		ContentLength: int64(len(e.Body)),
		Request:       req,
	}
}
