package emberdb

import (
	"bytes"
	"context"
	"net/http"
	"net/url"
)

// HTTPClient is the interface for the HTTP transport. Both the identity
// endpoint and the engine endpoint are reached through it.
type HTTPClient interface {
	// Get sends a GET request with the given headers.
	Get(ctx context.Context, u *url.URL, headers http.Header) (*http.Response, error)
	// Post sends a POST request with the given headers and body.
	Post(ctx context.Context, u *url.URL, headers http.Header, body []byte) (*http.Response, error)
}

type httpClient struct {
	client *http.Client
}

// NewHTTPClient creates the default HTTP client backed by net/http.
func NewHTTPClient() HTTPClient {
	return &httpClient{
		client: http.DefaultClient,
	}
}

// Ensure httpClient implements HTTPClient.
var _ HTTPClient = (*httpClient)(nil)

func (c *httpClient) Get(ctx context.Context, u *url.URL, headers http.Header) (*http.Response, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
	if err != nil {
		return nil, err
	}
	copyHeaders(req, headers)
	return c.client.Do(req)
}

func (c *httpClient) Post(ctx context.Context, u *url.URL, headers http.Header, body []byte) (*http.Response, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, u.String(), bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	copyHeaders(req, headers)
	return c.client.Do(req)
}

func copyHeaders(req *http.Request, headers http.Header) {
	for k, vs := range headers {
		for _, v := range vs {
			req.Header.Add(k, v)
		}
	}
}
