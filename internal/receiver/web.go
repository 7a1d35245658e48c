package receiver

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
)

// DefaultBaseURL is the disposable inbox site polled by WebReceiver.
const DefaultBaseURL = "http://www.fakemailgenerator.com"

// WebReceiver scrapes a disposable-email web inbox.
type WebReceiver struct {
	client    *http.Client
	baseURL   string
	domain    string
	name      string
	listURL   string
	bodyURL   func(id string) string
	parser    ListingParser
	logger    *slog.Logger
	userAgent string
}

// WebOption configures a WebReceiver.
type WebOption func(*WebReceiver)

// WithHTTPClient replaces the HTTP client. The receiver takes ownership of
// it and closes its idle connections on Close.
func WithHTTPClient(c *http.Client) WebOption {
	return func(r *WebReceiver) {
		r.client = c
	}
}

// WithBaseURL points the receiver at another host, e.g. a test server.
func WithBaseURL(base string) WebOption {
	return func(r *WebReceiver) {
		r.baseURL = strings.TrimRight(base, "/")
	}
}

// WithBodyURL replaces the body URL template.
func WithBodyURL(fn func(id string) string) WebOption {
	return func(r *WebReceiver) {
		r.bodyURL = fn
	}
}

// WithListingParser replaces the HTML listing parser.
func WithListingParser(p ListingParser) WebOption {
	return func(r *WebReceiver) {
		r.parser = p
	}
}

// WithWebLogger sets the logger.
func WithWebLogger(l *slog.Logger) WebOption {
	return func(r *WebReceiver) {
		r.logger = l
	}
}

// WithUserAgent sets the User-Agent header on every request.
func WithUserAgent(ua string) WebOption {
	return func(r *WebReceiver) {
		r.userAgent = ua
	}
}

// NewWeb creates a receiver for the inbox <name>@<domain>.
func NewWeb(domain, name string, opts ...WebOption) *WebReceiver {
	r := &WebReceiver{
		client:  &http.Client{},
		baseURL: DefaultBaseURL,
		domain:  domain,
		name:    name,
		parser:  HTMLListingParser{},
		logger:  slog.Default(),
	}
	for _, opt := range opts {
		opt(r)
	}
	r.listURL = fmt.Sprintf("%s/inbox/%s/%s",
		r.baseURL, url.PathEscape(domain), url.PathEscape(name))
	if r.bodyURL == nil {
		r.bodyURL = r.defaultBodyURL
	}
	return r
}

func (r *WebReceiver) defaultBodyURL(id string) string {
	return fmt.Sprintf("%s/email/%s/%s/message-%s/",
		r.baseURL, url.PathEscape(r.domain), url.PathEscape(r.name), url.PathEscape(id))
}

// Location returns the listing URL.
func (r *WebReceiver) Location() string {
	return r.listURL
}

func (r *WebReceiver) List(ctx context.Context) ([]Entry, error) {
	page, err := r.get(ctx, r.listURL, true)
	if err != nil {
		return nil, err
	}
	entries, err := r.parser.Parse(bytes.NewReader(page))
	r.logger.Debug("parsed listing", "url", r.listURL, "entries", len(entries))
	return entries, err
}

// Body returns the response text verbatim, whatever the status code.
func (r *WebReceiver) Body(ctx context.Context, id string) (string, error) {
	body, err := r.get(ctx, r.bodyURL(id), false)
	if err != nil {
		return "", err
	}
	return string(body), nil
}

func (r *WebReceiver) Close() error {
	r.client.CloseIdleConnections()
	return nil
}

func (r *WebReceiver) get(ctx context.Context, u string, requireOK bool) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	if r.userAgent != "" {
		req.Header.Set("User-Agent", r.userAgent)
	}

	resp, err := r.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("GET %s: %w", u, err)
	}
	defer resp.Body.Close()

	if requireOK && (resp.StatusCode < 200 || resp.StatusCode > 299) {
		return nil, &StatusError{URL: u, StatusCode: resp.StatusCode}
	}

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", u, err)
	}
	return data, nil
}
