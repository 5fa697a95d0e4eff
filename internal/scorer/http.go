package scorer

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/http/cookiejar"
	"net/url"
	"strings"
	"time"

	"go.uber.org/zap"
)

const maxResponseBytes = 1 << 20

// HTTPSubmitter posts rounds to the scorer with net/http.
type HTTPSubmitter struct {
	client    *http.Client
	endpoint  string
	cookie    string
	userAgent string
	log       *zap.Logger
}

// HTTPOption configures an HTTPSubmitter.
type HTTPOption func(*HTTPSubmitter) error

// WithHTTPClient replaces the default client.
func WithHTTPClient(c *http.Client) HTTPOption {
	return func(s *HTTPSubmitter) error {
		s.client = c
		return nil
	}
}

// WithCookieHeader sends a raw Cookie header with every round.
func WithCookieHeader(cookie string) HTTPOption {
	return func(s *HTTPSubmitter) error {
		s.cookie = strings.TrimSpace(cookie)
		return nil
	}
}

// WithCookies seeds the client's jar for the endpoint host, typically with
// cookies copied from a browser session.
func WithCookies(cookies []*http.Cookie) HTTPOption {
	return func(s *HTTPSubmitter) error {
		if len(cookies) == 0 {
			return nil
		}
		u, err := url.Parse(s.endpoint)
		if err != nil {
			return err
		}
		if s.client.Jar == nil {
			jar, err := cookiejar.New(nil)
			if err != nil {
				return err
			}
			c := *s.client
			c.Jar = jar
			s.client = &c
		}
		s.client.Jar.SetCookies(u, cookies)
		return nil
	}
}

// WithUserAgent sets the User-Agent header.
func WithUserAgent(ua string) HTTPOption {
	return func(s *HTTPSubmitter) error {
		s.userAgent = ua
		return nil
	}
}

// WithLogger sets the logger.
func WithLogger(l *zap.Logger) HTTPOption {
	return func(s *HTTPSubmitter) error {
		if l != nil {
			s.log = l
		}
		return nil
	}
}

// NewHTTPSubmitter creates a submitter for an absolute endpoint URL.
// No timeout is set on the default client; a round waits for the scorer.
func NewHTTPSubmitter(endpoint string, opts ...HTTPOption) (*HTTPSubmitter, error) {
	u, err := url.Parse(endpoint)
	if err != nil {
		return nil, fmt.Errorf("parse endpoint: %w", err)
	}
	if !u.IsAbs() {
		return nil, fmt.Errorf("endpoint %q must be absolute", endpoint)
	}
	s := &HTTPSubmitter{
		client:   &http.Client{},
		endpoint: u.String(),
		log:      zap.NewNop(),
	}
	for _, opt := range opts {
		if err := opt(s); err != nil {
			return nil, fmt.Errorf("configure submitter: %w", err)
		}
	}
	return s, nil
}

// Endpoint returns the URL rounds are posted to.
func (s *HTTPSubmitter) Endpoint() string { return s.endpoint }

// Submit posts one round and decodes the reply.
func (s *HTTPSubmitter) Submit(ctx context.Context, req Request) (*Response, error) {
	body := req.Form().Encode()
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, s.endpoint, strings.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	httpReq.Header.Set("Accept", "application/json")
	httpReq.Header.Set("X-Requested-With", "XMLHttpRequest")
	if s.cookie != "" {
		httpReq.Header.Set("Cookie", s.cookie)
	}
	if s.userAgent != "" {
		httpReq.Header.Set("User-Agent", s.userAgent)
	}

	start := time.Now()
	resp, err := s.client.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("post answers: %w", err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}
	s.log.Debug("scorer round",
		zap.Int("status", resp.StatusCode),
		zap.Int("answers", len(req.Answers)),
		zap.Duration("elapsed", time.Since(start)),
	)
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, fmt.Errorf("scorer returned %s: %s", resp.Status, truncate(string(data), 200))
	}
	return DecodeResponse(data)
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
