// Package http provides a function that lets a chat model read web pages.
package http

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/samzhu/ragkit/tools"
)

// FetchName is the function name the model calls.
const FetchName = "fetch_url"

// DefaultMaxBytes caps the body returned to the model.
const DefaultMaxBytes = 16 * 1024

var errScheme = errors.New("only http and https URLs can be fetched")

// FetchRequest names the page to read.
type FetchRequest struct {
	URL string `json:"url" description:"Absolute http or https URL"`
}

// FetchResponse carries the status and the (possibly truncated) body.
type FetchResponse struct {
	Status    int    `json:"status"`
	Body      string `json:"body"`
	Truncated bool   `json:"truncated,omitempty"`
}

// Fetcher performs GET requests on behalf of the model.
type Fetcher struct {
	client   *http.Client
	maxBytes int64
}

// NewFetcher returns a Fetcher; zero arguments pick 30s and DefaultMaxBytes.
func NewFetcher(timeout time.Duration, maxBytes int64) *Fetcher {
	if timeout == 0 {
		timeout = 30 * time.Second
	}
	if maxBytes <= 0 {
		maxBytes = DefaultMaxBytes
	}
	return &Fetcher{client: &http.Client{Timeout: timeout}, maxBytes: maxBytes}
}

// Fetch GETs req.URL. Non-2xx statuses are reported in the response, not as
// errors, so the model can see them.
func (f *Fetcher) Fetch(ctx context.Context, req FetchRequest) (FetchResponse, error) {
	u, err := url.Parse(req.URL)
	if err != nil {
		return FetchResponse{}, fmt.Errorf("invalid url: %w", err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return FetchResponse{}, errScheme
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
	if err != nil {
		return FetchResponse{}, fmt.Errorf("failed to create request: %w", err)
	}
	httpReq.Header.Set("User-Agent", "ragkit/1.0")
	httpReq.Header.Set("Accept", "text/plain, text/html, application/json;q=0.9, */*;q=0.5")

	resp, err := f.client.Do(httpReq)
	if err != nil {
		return FetchResponse{}, fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, f.maxBytes+1))
	if err != nil {
		return FetchResponse{}, fmt.Errorf("failed to read response: %w", err)
	}
	out := FetchResponse{Status: resp.StatusCode}
	if int64(len(body)) > f.maxBytes {
		body = body[:f.maxBytes]
		// do not split a multi-byte rune
		for len(body) > 0 && !utf8.Valid(body) {
			body = body[:len(body)-1]
		}
		out.Truncated = true
	}
	out.Body = strings.ToValidUTF8(string(body), "�")
	return out, nil
}

// NewFetchTool exposes Fetch as the fetch_url function.
func NewFetchTool(f *Fetcher) tools.Tool {
	return tools.NewFunction(FetchName, "Fetch a web page with HTTP GET and return its status and text", f.Fetch)
}
