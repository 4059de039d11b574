package transport

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
)

// maxReplyBytes caps a single reply. Full snapshots of every table are the
// largest payloads the remote produces.
const maxReplyBytes = 64 << 20

// errReplyTooLarge is the cause of a transport error for a reply over the cap.
var errReplyTooLarge = errors.New("reply exceeds size limit")

// Fetcher performs the remote exchange for one call and returns the reply
// script. It is the stand-in for injecting a script tag: the queue
// "executes" the returned script by unwrapping it and invoking whatever
// handler is registered under the callback name.
type Fetcher interface {
	Fetch(ctx context.Context, callback string, req Request) ([]byte, error)
}

// FetcherFunc adapts a function to the Fetcher interface.
type FetcherFunc func(ctx context.Context, callback string, req Request) ([]byte, error)

// Fetch calls f.
func (f FetcherFunc) Fetch(ctx context.Context, callback string, req Request) ([]byte, error) {
	return f(ctx, callback, req)
}

// HTTPFetcher issues the GET against the remote web app endpoint.
type HTTPFetcher struct {
	endpoint   string
	httpClient *http.Client
	userAgent  string
	maxBytes   int64
}

// NewHTTPFetcher creates a fetcher for endpoint. A nil client uses
// http.DefaultClient; timeouts are enforced by the queue, not the client.
func NewHTTPFetcher(endpoint string, httpClient *http.Client, userAgent string) *HTTPFetcher {
	if httpClient == nil {
		httpClient = http.DefaultClient
	}

	return &HTTPFetcher{
		endpoint:   endpoint,
		httpClient: httpClient,
		userAgent:  userAgent,
		maxBytes:   maxReplyBytes,
	}
}

// Fetch performs the GET and returns the raw reply body.
func (f *HTTPFetcher) Fetch(ctx context.Context, callback string, req Request) ([]byte, error) {
	u, err := buildURL(f.endpoint, req, callback)
	if err != nil {
		return nil, err
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return nil, fmt.Errorf("creating request: %w", err)
	}

	if f.userAgent != "" {
		httpReq.Header.Set("User-Agent", f.userAgent)
	}

	resp, err := f.httpClient.Do(httpReq)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode < http.StatusOK || resp.StatusCode >= http.StatusMultipleChoices {
		return nil, &Error{Kind: ErrTransport, Action: req.Action(), StatusCode: resp.StatusCode}
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, f.maxBytes+1))
	if err != nil {
		return nil, fmt.Errorf("reading reply: %w", err)
	}

	if int64(len(body)) > f.maxBytes {
		return nil, &Error{
			Kind:   ErrTransport,
			Action: req.Action(),
			Cause:  fmt.Errorf("%w (%d bytes)", errReplyTooLarge, f.maxBytes),
		}
	}

	return body, nil
}
