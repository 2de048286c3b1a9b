package scraper

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"net/http/cookiejar"
	"net/url"
	"time"

	"github.com/gocolly/colly/v2"

	"github.com/aluiziolira/go-wishlist-harvester/config"
	"github.com/aluiziolira/go-wishlist-harvester/parser"
)

// Page is a successful storefront response.
type Page struct {
	URL        *url.URL
	StatusCode int
	Body       []byte
}

// Document parses the page body.
func (p *Page) Document() (*parser.Document, error) {
	return parser.NewDocument(p.Body, p.URL)
}

// Session is the authenticated HTTP context of one harvest run. It issues
// one request at a time and is not safe for concurrent use.
type Session struct {
	cfg       *config.Config
	base      *url.URL
	collector *colly.Collector
	transport http.RoundTripper
	jar       *cookiejar.Jar
	metrics   *Metrics

	requestCount int
	errorCount   int
	closed       bool
}

// SessionOption customises a Session.
type SessionOption func(*Session)

// WithTransport replaces the HTTP transport, e.g. with a mock in tests.
func WithTransport(rt http.RoundTripper) SessionOption {
	return func(s *Session) {
		s.transport = rt
		s.collector.WithTransport(rt)
	}
}

// WithMetrics records request metrics on m.
func WithMetrics(m *Metrics) SessionOption {
	return func(s *Session) {
		s.metrics = m
	}
}

// NewSession builds an unauthenticated session bound to cfg.BaseURL.
func NewSession(cfg *config.Config, opts ...SessionOption) (*Session, error) {
	base, err := url.Parse(cfg.BaseURL)
	if err != nil {
		return nil, fmt.Errorf("parse base url: %w", err)
	}
	if base.Host == "" {
		return nil, fmt.Errorf("base url must include a host")
	}
	if base.Path == "" {
		base.Path = "/"
	}

	jar, err := cookiejar.New(nil)
	if err != nil {
		return nil, fmt.Errorf("create cookie jar: %w", err)
	}

	collector := colly.NewCollector(
		colly.AllowedDomains(base.Hostname()),
		colly.UserAgent(cfg.UserAgent),
		colly.AllowURLRevisit(),
	)
	collector.SetRequestTimeout(cfg.Timeout)
	collector.SetCookieJar(jar)

	transport := &http.Transport{
		Proxy: http.ProxyFromEnvironment,
		DialContext: (&net.Dialer{
			Timeout:   cfg.Timeout,
			KeepAlive: 30 * time.Second,
		}).DialContext,
		MaxIdleConns:        10,
		IdleConnTimeout:     90 * time.Second,
		TLSHandshakeTimeout: 10 * time.Second,
	}
	collector.WithTransport(transport)

	s := &Session{
		cfg:       cfg,
		base:      base,
		collector: collector,
		transport: transport,
		jar:       jar,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// Get fetches target; relative targets resolve against the origin.
func (s *Session) Get(ctx context.Context, target string) (*Page, error) {
	return s.do(ctx, http.MethodGet, target, nil)
}

// Post submits form to target as application/x-www-form-urlencoded.
func (s *Session) Post(ctx context.Context, target string, form map[string]string) (*Page, error) {
	return s.do(ctx, http.MethodPost, target, form)
}

// Origin returns the storefront origin the session is bound to.
func (s *Session) Origin() *url.URL {
	u := *s.base
	return &u
}

// Cookies returns the cookies the session would send to the origin.
func (s *Session) Cookies() []*http.Cookie {
	return s.jar.Cookies(s.base)
}

// RequestCount returns the number of requests issued so far.
func (s *Session) RequestCount() int {
	return s.requestCount
}

// ErrorCount returns the number of failed requests so far.
func (s *Session) ErrorCount() int {
	return s.errorCount
}

// Close ends the session. Later requests fail with ErrSessionClosed.
func (s *Session) Close() {
	if s.closed {
		return
	}
	s.closed = true
	if t, ok := s.transport.(interface{ CloseIdleConnections() }); ok {
		t.CloseIdleConnections()
	}
	slog.Debug("session closed", slog.Int("requests", s.requestCount))
}

func (s *Session) do(ctx context.Context, method, target string, form map[string]string) (*Page, error) {
	if s.closed {
		return nil, ErrSessionClosed
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	ref, err := s.base.Parse(target)
	if err != nil {
		return nil, fmt.Errorf("resolve %q: %w", target, err)
	}
	abs := ref.String()

	// Clones share the HTTP backend and cookie jar but not callbacks.
	c := s.collector.Clone()
	c.OnRequest(func(r *colly.Request) {
		r.Headers.Set("Accept-Language", s.cfg.AcceptLanguage)
		r.Headers.Set("Referer", s.base.String())
	})

	var page *Page
	statusCode := 0
	c.OnResponse(func(r *colly.Response) {
		page = &Page{URL: r.Request.URL, StatusCode: r.StatusCode, Body: r.Body}
	})
	c.OnError(func(r *colly.Response, _ error) {
		if r != nil {
			statusCode = r.StatusCode
		}
	})

	s.requestCount++
	s.metrics.IncRequest(method)
	start := time.Now()
	if method == http.MethodPost {
		err = c.Post(abs, form)
	} else {
		err = c.Visit(abs)
	}
	s.metrics.ObserveDuration(time.Since(start))

	if err == nil && page == nil {
		err = errors.New("empty response")
	}
	if err != nil {
		s.errorCount++
		classified := classifyError(err, statusCode)
		s.metrics.IncError(errorTypeLabel(classified))
		slog.Debug("request failed",
			slog.String("method", method),
			slog.String("url", abs),
			slog.Int("status", statusCode),
			slog.Any("error", classified),
		)
		return nil, &RequestError{Method: method, URL: abs, StatusCode: statusCode, Err: classified}
	}
	return page, nil
}

func classifyError(err error, statusCode int) error {
	if err == nil && statusCode == 0 {
		return nil
	}

	if errors.Is(err, context.DeadlineExceeded) {
		return ErrTimeout{Err: err}
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return ErrTimeout{Err: err}
	}
	var opErr *net.OpError
	if errors.As(err, &opErr) {
		return ErrConnection{Err: err}
	}

	if statusCode != 0 {
		wrapped := err
		if wrapped == nil {
			wrapped = fmt.Errorf("http status %d", statusCode)
		}
		switch statusCode {
		case http.StatusForbidden:
			return ErrForbidden{Err: wrapped}
		case http.StatusNotFound:
			return ErrNotFound{Err: wrapped}
		case http.StatusTooManyRequests:
			return ErrRateLimited{Err: wrapped}
		}
		if statusCode >= http.StatusMultipleChoices {
			return ErrStatus{StatusCode: statusCode, Err: wrapped}
		}
	}

	if err == nil {
		return nil
	}
	return err
}
