package fits

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"time"

	"github.com/couchcryptid/fits-map-service/internal/domain"
	"github.com/couchcryptid/fits-map-service/internal/observability"
)

// FITS media types.
const (
	acceptJSON    = "application/json;version=1"
	acceptGeoJSON = "application/vnd.geo+json;version=1"
	acceptCSV     = "text/csv;version=1"
)

// maxBodyBytes bounds a single FITS response.
const maxBodyBytes = 64 << 20

// Request describes a single GET against the FITS API.
type Request struct {
	Endpoint string // metric label and error op, e.g. "site"
	Path     string
	Params   url.Values
	Accept   string
	TypeID   string // observation type the response belongs to, if any
}

// Fetcher performs FITS requests and returns the raw response body.
type Fetcher interface {
	Fetch(ctx context.Context, req Request) ([]byte, error)
}

// Client fetches from the FITS HTTP API.
type Client struct {
	httpClient *http.Client
	baseURL    string
	maxBody    int64
	metrics    *observability.Metrics
	logger     *slog.Logger
}

// NewClient creates a FITS API client.
func NewClient(baseURL string, timeout time.Duration, metrics *observability.Metrics, logger *slog.Logger) *Client {
	return &Client{
		httpClient: &http.Client{
			Timeout: timeout,
		},
		baseURL: baseURL,
		maxBody: maxBodyBytes,
		metrics: metrics,
		logger:  logger,
	}
}

// Fetch performs req. Transport failures and non-200 responses are returned
// as *domain.FetchError.
func (c *Client) Fetch(ctx context.Context, req Request) ([]byte, error) {
	u := c.baseURL + req.Path
	if len(req.Params) > 0 {
		u += "?" + req.Params.Encode()
	}

	start := time.Now()
	body, err := c.do(ctx, req, u)
	c.metrics.FITSAPIDuration.WithLabelValues(req.Endpoint).Observe(time.Since(start).Seconds())
	if err != nil {
		c.metrics.FITSRequests.WithLabelValues(req.Endpoint, "error").Inc()
		c.logger.Warn("fits request failed", "endpoint", req.Endpoint, "url", u, "error", err)
		return nil, err
	}
	c.metrics.FITSRequests.WithLabelValues(req.Endpoint, "success").Inc()
	return body, nil
}

func (c *Client) do(ctx context.Context, req Request, u string) ([]byte, error) {
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	if req.Accept != "" {
		httpReq.Header.Set("Accept", req.Accept)
	}

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return nil, &domain.FetchError{Op: req.Endpoint, URL: u, Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, &domain.FetchError{
			Op:         req.Endpoint,
			URL:        u,
			StatusCode: resp.StatusCode,
			Err:        fmt.Errorf("fits API error: status %d: %s", resp.StatusCode, body),
		}
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, c.maxBody+1))
	if err != nil {
		return nil, &domain.FetchError{Op: req.Endpoint, URL: u, Err: fmt.Errorf("read body: %w", err)}
	}
	if int64(len(body)) > c.maxBody {
		return nil, &domain.FetchError{Op: req.Endpoint, URL: u, Err: fmt.Errorf("response body exceeds %d bytes", c.maxBody)}
	}
	return body, nil
}

// CheckReadiness reports whether the FITS type list can be fetched.
func (c *Client) CheckReadiness(ctx context.Context) error {
	_, err := c.Fetch(ctx, typesRequest())
	return err
}
