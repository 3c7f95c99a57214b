package httpclient

import (
	"context"
	"net/http"
	"time"

	"github.com/go-resty/resty/v2"
)

const defaultUserAgent = "taja-feed/1.0 (+https://github.com/Adda-Baaj/taja-feed)"

// Response is the subset of a resty response the fetch layer needs.
type Response interface {
	StatusCode() int
	Body() []byte
	Header() http.Header
}

// Client performs a single GET. It does not retry; see Fetch.
type Client interface {
	Get(ctx context.Context, url string, headers map[string]string) (Response, error)
}

// RestyClient is the resty backed Client.
type RestyClient struct {
	r *resty.Client
}

// NewRestyClient builds a Client with the given transport timeout. Per call
// timeouts are applied through the request context.
func NewRestyClient(timeout time.Duration) *RestyClient {
	return NewRestyClientWithAgent(timeout, defaultUserAgent)
}

// NewRestyClientWithAgent is NewRestyClient with an explicit User-Agent.
func NewRestyClientWithAgent(timeout time.Duration, userAgent string) *RestyClient {
	if userAgent == "" {
		userAgent = defaultUserAgent
	}
	r := resty.New().
		SetTimeout(timeout).
		SetHeader("User-Agent", userAgent).
		SetRetryCount(0)
	return &RestyClient{r: r}
}

// Get issues a GET request. Non-2xx statuses are returned as a response,
// not an error.
func (c *RestyClient) Get(ctx context.Context, url string, headers map[string]string) (Response, error) {
	resp, err := c.r.R().
		SetContext(ctx).
		SetHeaders(headers).
		Get(url)
	if err != nil {
		return nil, err
	}
	return resp, nil
}
