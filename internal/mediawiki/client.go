// Package mediawiki issues GET requests against a MediaWiki api.php endpoint
// and decodes the JSON answer. It never retries; transport timeouts belong
// to the underlying http.Client.
package mediawiki

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"golang.org/x/net/html/charset"

	"wiki_harvester/internal/metrics"
	"wiki_harvester/internal/tracing"
)

const langPlaceholder = "{lang}"

type Client struct {
	endpoint   string
	userAgent  string
	httpClient *http.Client
	logger     *slog.Logger
}

// NewClient creates a client for endpoint, which may contain a {lang}
// placeholder substituted on every call.
func NewClient(endpoint, userAgent string, timeout time.Duration, logger *slog.Logger) *Client {
	return &Client{
		endpoint:  endpoint,
		userAgent: userAgent,
		httpClient: &http.Client{
			Timeout: timeout,
			Transport: &http.Transport{
				MaxIdleConns:        100,
				MaxIdleConnsPerHost: 10,
				IdleConnTimeout:     90 * time.Second,
			},
		},
		logger: logger,
	}
}

// Endpoint returns the api.php URL for lang.
func (c *Client) Endpoint(lang string) string {
	return strings.ReplaceAll(c.endpoint, langPlaceholder, lang)
}

// Get performs one GET with query as URL parameters and decodes the JSON
// body into out.
func (c *Client) Get(ctx context.Context, lang string, query url.Values, out interface{}) (err error) {
	params := url.Values{}
	for k, v := range query {
		params[k] = append([]string(nil), v...)
	}
	params.Set("format", "json")

	action := params.Get("action")
	reqURL := c.Endpoint(lang) + "?" + params.Encode()

	ctx, span := tracing.StartSpan(ctx, "mediawiki.get",
		attribute.String("wiki.api.action", action),
		attribute.String("wiki.lang", lang),
	)
	start := time.Now()
	defer func() {
		metrics.RecordAPICall(action, time.Since(start).Seconds(), err == nil)
		tracing.End(span, err)
	}()

	body, err := c.fetch(ctx, reqURL)
	if err != nil {
		return err
	}

	var envelope struct {
		Error *APIError `json:"error"`
	}
	if err := json.Unmarshal(body, &envelope); err != nil {
		return &DecodeError{URL: reqURL, Body: truncate(string(body), 200), Err: err}
	}
	if envelope.Error != nil {
		return envelope.Error
	}

	if err := json.Unmarshal(body, out); err != nil {
		return &DecodeError{URL: reqURL, Body: truncate(string(body), 200), Err: err}
	}

	c.logger.Debug("api call", "action", action, "lang", lang, "bytes", len(body))
	return nil
}

func (c *Client) fetch(ctx context.Context, reqURL string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, nil)
	if err != nil {
		return nil, fmt.Errorf("building request: %w", err)
	}
	req.Header.Set("User-Agent", c.userAgent)
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, &NetworkError{URL: reqURL, Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, &NetworkError{URL: reqURL, StatusCode: resp.StatusCode}
	}

	reader, err := charset.NewReader(resp.Body, resp.Header.Get("Content-Type"))
	if err != nil {
		reader = resp.Body
	}

	body, err := io.ReadAll(reader)
	if err != nil {
		return nil, &NetworkError{URL: reqURL, Err: err}
	}
	return body, nil
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}

// GetURL fetches an arbitrary JSON document, used for endpoints outside
// api.php such as the page view statistics service.
func (c *Client) GetURL(ctx context.Context, rawURL string, out interface{}) (err error) {
	ctx, span := tracing.StartSpan(ctx, "mediawiki.get_url", attribute.String("url", rawURL))
	start := time.Now()
	defer func() {
		metrics.RecordAPICall("external", time.Since(start).Seconds(), err == nil)
		tracing.End(span, err)
	}()

	body, err := c.fetch(ctx, rawURL)
	if err != nil {
		return err
	}
	if err := json.Unmarshal(body, out); err != nil {
		return &DecodeError{URL: rawURL, Body: truncate(string(body), 200), Err: err}
	}
	return nil
}
