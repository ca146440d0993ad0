package fetch

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"sort"
	"time"

	"github.com/gitadpal/voran/internal/domain"
	"github.com/gitadpal/voran/internal/secrets"
)

// HTTPConfig configures the plain HTTP fetcher.
type HTTPConfig struct {
	Timeout      time.Duration
	MaxBodyBytes int64
	UserAgent    string
}

// HTTPClient performs a single request per resolution.
type HTTPClient struct {
	httpClient *http.Client
	secrets    domain.SecretResolver
	maxBody    int64
	userAgent  string
	logger     *slog.Logger
}

// NewHTTPClient creates an HTTPClient. Secret header references are resolved
// through resolver at request time.
func NewHTTPClient(cfg HTTPConfig, resolver domain.SecretResolver, logger *slog.Logger) *HTTPClient {
	if cfg.Timeout <= 0 {
		cfg.Timeout = 30 * time.Second
	}
	if cfg.MaxBodyBytes <= 0 {
		cfg.MaxBodyBytes = 10 << 20
	}
	return &HTTPClient{
		httpClient: &http.Client{Timeout: cfg.Timeout},
		secrets:    resolver,
		maxBody:    cfg.MaxBodyBytes,
		userAgent:  cfg.UserAgent,
		logger:     logger.With(slog.String("component", "fetch_http")),
	}
}

// Fetch sends the request described by s and returns the body verbatim.
func (c *HTTPClient) Fetch(ctx context.Context, s *domain.HTTPSource) (string, error) {
	target, err := buildURL(s)
	if err != nil {
		return "", fmt.Errorf("fetch: %w: %w", domain.ErrFetch, err)
	}

	method := s.Method
	if method != http.MethodGet && method != http.MethodPost {
		return "", fmt.Errorf("fetch: %w: unsupported method %q", domain.ErrFetch, method)
	}

	req, err := http.NewRequestWithContext(ctx, method, target, nil)
	if err != nil {
		return "", fmt.Errorf("fetch: %w: create request: %w", domain.ErrFetch, err)
	}
	req.Header.Set("Accept", "application/json")
	if c.userAgent != "" {
		req.Header.Set("User-Agent", c.userAgent)
	}
	if err := c.setHeaders(req, s.Headers); err != nil {
		return "", err
	}

	start := time.Now()
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("fetch: %w: http request: %w", domain.ErrFetch, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, c.maxBody+1))
	if err != nil {
		return "", fmt.Errorf("fetch: %w: read response: %w", domain.ErrFetch, err)
	}
	if int64(len(body)) > c.maxBody {
		return "", fmt.Errorf("fetch: %w: response exceeds %d bytes", domain.ErrFetch, c.maxBody)
	}

	c.logger.DebugContext(ctx, "fetched source",
		slog.String("method", method),
		slog.String("host", req.URL.Host),
		slog.Int("status", resp.StatusCode),
		slog.Int("bytes", len(body)),
		slog.Duration("elapsed", time.Since(start)),
	)

	if err := checkHTTPStatus(resp.StatusCode, body); err != nil {
		return "", fmt.Errorf("fetch: %w: %w", domain.ErrFetch, err)
	}
	return string(body), nil
}

func (c *HTTPClient) setHeaders(req *http.Request, headers map[string]string) error {
	for name, value := range headers {
		secret, ok := secrets.ParseRef(value)
		if !ok {
			req.Header.Set(name, value)
			continue
		}
		if c.secrets == nil {
			return fmt.Errorf("fetch: header %s: %w", name, domain.ErrMissingSecret)
		}
		v, err := c.secrets.Resolve(secret)
		if err != nil {
			return fmt.Errorf("fetch: header %s: %w", name, err)
		}
		req.Header.Set(name, v)
	}
	return nil
}

// buildURL merges the spec's query map into the URL. Numbers are written the
// way JavaScript would print them.
func buildURL(s *domain.HTTPSource) (string, error) {
	u, err := url.Parse(s.URL)
	if err != nil {
		return "", fmt.Errorf("parse url: %w", err)
	}
	if len(s.Query) == 0 {
		return u.String(), nil
	}
	q := u.Query()
	keys := make([]string, 0, len(s.Query))
	for k := range s.Query {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		q.Set(k, s.Query[k].String())
	}
	u.RawQuery = q.Encode()
	return u.String(), nil
}

// checkHTTPStatus maps non-2xx status codes onto domain errors.
func checkHTTPStatus(statusCode int, body []byte) error {
	if statusCode >= 200 && statusCode < 300 {
		return nil
	}

	bodyStr := string(body)
	if len(bodyStr) > 512 {
		bodyStr = bodyStr[:512]
	}
	switch statusCode {
	case http.StatusNotFound:
		return fmt.Errorf("%w: %s", domain.ErrNotFound, bodyStr)
	case http.StatusUnauthorized, http.StatusForbidden:
		return fmt.Errorf("%w: %s", domain.ErrUnauthorized, bodyStr)
	case http.StatusTooManyRequests:
		return fmt.Errorf("%w: %s", domain.ErrRateLimited, bodyStr)
	default:
		return fmt.Errorf("HTTP %d: %s", statusCode, bodyStr)
	}
}
