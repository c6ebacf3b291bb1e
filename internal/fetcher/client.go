package fetcher

import (
	"compress/flate"
	"compress/gzip"
	"context"
	"crypto/tls"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"net/http/cookiejar"
	"net/url"
	"sync"
	"time"

	cloudflarebp "github.com/DaRealFreak/cloudflare-bp-go"
	"github.com/andybalholm/brotli"
	"github.com/go-resty/resty/v2"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/net/publicsuffix"

	"github.com/IshaanNene/jepx/internal/config"
	"github.com/IshaanNene/jepx/internal/observability"
	"github.com/IshaanNene/jepx/internal/types"
)

const tracerName = "jepx/fetcher"

var insecureOnce sync.Once

// Client issues side-channel requests to the market-data host, sharing the
// browser session's cookies.
type Client struct {
	http        *resty.Client
	jar         *cookiejar.Jar
	base        *url.URL
	csvReadPath string
	minBody     int
	metrics     *observability.Metrics
	tracer      trace.Tracer
	logger      *slog.Logger
}

// Option configures a Client.
type Option func(*Client)

// WithMetrics counts responses and bytes into m.
func WithMetrics(m *observability.Metrics) Option {
	return func(c *Client) { c.metrics = m }
}

// WithTracerProvider records spans with tp instead of the global provider.
func WithTracerProvider(tp trace.TracerProvider) Option {
	return func(c *Client) { c.tracer = tp.Tracer(tracerName) }
}

// NewClient creates a side-channel client for the configured site.
func NewClient(site *config.SiteConfig, cfg *config.FetchConfig, logger *slog.Logger, opts ...Option) (*Client, error) {
	base, err := url.Parse(site.BaseURL)
	if err != nil {
		return nil, fmt.Errorf("parse base url: %w", err)
	}

	jar, err := cookiejar.New(&cookiejar.Options{PublicSuffixList: publicsuffix.List})
	if err != nil {
		return nil, fmt.Errorf("create cookie jar: %w", err)
	}

	c := &Client{
		jar:         jar,
		base:        base,
		csvReadPath: site.CSVReadPath,
		minBody:     cfg.MinBodyBytes,
		tracer:      otel.Tracer(tracerName),
		logger:      logger.With("component", "direct_fetch"),
	}
	for _, opt := range opts {
		opt(c)
	}

	transport := &http.Transport{
		Proxy: http.ProxyFromEnvironment,
		DialContext: (&net.Dialer{
			Timeout:   30 * time.Second,
			KeepAlive: 30 * time.Second,
		}).DialContext,
		MaxIdleConns:        4,
		IdleConnTimeout:     90 * time.Second,
		TLSHandshakeTimeout: 10 * time.Second,
		DisableCompression:  true, // decoded by decodingTransport, including brotli
	}

	var rt http.RoundTripper = transport
	if cfg.CloudflareBypass {
		rt = cloudflarebp.AddCloudFlareByPass(transport)
	}
	// The bypass installs its own TLS config, so verification is applied afterwards.
	if transport.TLSClientConfig == nil {
		transport.TLSClientConfig = &tls.Config{}
	}
	transport.TLSClientConfig.InsecureSkipVerify = cfg.TLSInsecure
	if cfg.TLSInsecure {
		insecureOnce.Do(func() {
			c.logger.Warn("TLS certificate verification disabled for market-data host", "host", base.Hostname())
		})
	}

	client := resty.New()
	client.SetTransport(&decodingTransport{base: rt, maxBody: cfg.MaxBodySize})
	client.SetCookieJar(jar)
	client.SetTimeout(cfg.Timeout)
	client.SetHeader("User-Agent", cfg.UserAgent)
	client.SetHeader("Accept-Language", "ja,en-US;q=0.9,en;q=0.8")
	client.SetRedirectPolicy(resty.DomainCheckRedirectPolicy(base.Hostname()))

	client.OnAfterResponse(func(_ *resty.Client, res *resty.Response) error {
		c.metrics.ObserveStatus(res.StatusCode())
		if c.metrics != nil {
			c.metrics.BytesDownloaded.Add(int64(len(res.Body())))
		}
		return nil
	})
	// Transport failures and unreadable bodies; status codes are counted above.
	client.OnError(func(*resty.Request, error) {
		c.metrics.ObserveRequestError()
	})

	c.http = client
	return c, nil
}

// Resolve turns a site-relative path into an absolute URL.
func (c *Client) Resolve(path string) string {
	ref, err := url.Parse(path)
	if err != nil {
		return c.base.String() + path
	}
	return c.base.ResolveReference(ref).String()
}

// UseCookies seeds the client with cookies taken from the browser session.
// Cookies are stored as host cookies for the site's base URL.
func (c *Client) UseCookies(cookies []*http.Cookie) {
	if len(cookies) == 0 {
		return
	}
	seeded := make([]*http.Cookie, 0, len(cookies))
	for _, ck := range cookies {
		seeded = append(seeded, &http.Cookie{
			Name:     ck.Name,
			Value:    ck.Value,
			Path:     "/",
			Secure:   ck.Secure,
			HttpOnly: ck.HttpOnly,
		})
	}
	c.jar.SetCookies(c.base, seeded)
	c.logger.Debug("session cookies imported", "count", len(seeded))
}

// Get issues a GET for a site-relative path. Non-2xx statuses are returned as a
// response, not an error.
func (c *Client) Get(ctx context.Context, path string, query map[string]string, referer string) (*resty.Response, error) {
	req := c.http.R().SetContext(ctx)
	if len(query) > 0 {
		req.SetQueryParams(query)
	}
	if referer != "" {
		req.SetHeader("Referer", referer)
	}
	return req.Get(c.Resolve(path))
}

// Accept applies the artifact acceptance rule: a success status and a body
// strictly longer than minBytes.
func Accept(status int, body []byte, minBytes int) error {
	if status < 200 || status > 299 {
		return fmt.Errorf("%w: %d", types.ErrBadStatus, status)
	}
	if len(body) <= minBytes {
		return fmt.Errorf("%w: %d bytes, need more than %d", types.ErrBodyTooSmall, len(body), minBytes)
	}
	return nil
}

// FetchFile reads one CSV through the site's file-read endpoint.
func (c *Client) FetchFile(ctx context.Context, dir, file, token, referer string) ([]byte, error) {
	ctx, span := c.tracer.Start(ctx, "fetcher:FetchFile", trace.WithAttributes(
		attribute.String("jepx.dir", dir),
		attribute.String("jepx.file", file),
	))
	defer span.End()

	query := map[string]string{"dir": dir, "file": file}
	if token != "" {
		query["_csrf"] = token
	}
	target := c.Resolve(c.csvReadPath)

	start := time.Now()
	res, err := c.Get(ctx, c.csvReadPath, query, referer)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "request failed")
		return nil, &types.FetchError{URL: target, Err: err}
	}

	body := res.Body()
	span.SetAttributes(
		attribute.Int("http.status_code", res.StatusCode()),
		attribute.Int("http.response_size", len(body)),
	)
	if err := Accept(res.StatusCode(), body, c.minBody); err != nil {
		span.SetStatus(codes.Error, err.Error())
		return nil, &types.FetchError{URL: res.Request.URL, StatusCode: res.StatusCode(), Err: err}
	}

	c.logger.Debug("fetch complete",
		"dir", dir,
		"file", file,
		"status", res.StatusCode(),
		"size", len(body),
		"duration", time.Since(start),
	)
	return body, nil
}

// decodingTransport requests compressed bodies and decodes gzip, deflate and
// brotli responses. A decoded body longer than maxBody fails with
// types.ErrBodyTooLarge instead of being cut short.
type decodingTransport struct {
	base    http.RoundTripper
	maxBody int64
}

func (t *decodingTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	if req.Header.Get("Accept-Encoding") == "" {
		req = req.Clone(req.Context())
		req.Header.Set("Accept-Encoding", "gzip, deflate, br")
	}

	resp, err := t.base.RoundTrip(req)
	if err != nil {
		return nil, err
	}

	encoding := resp.Header.Get("Content-Encoding")
	reader, err := decompressReader(resp, resp.Body)
	if err != nil {
		resp.Body.Close()
		return nil, fmt.Errorf("decode %s body: %w", encoding, err)
	}
	if encoding == "gzip" || encoding == "deflate" || encoding == "br" {
		resp.Header.Del("Content-Encoding")
		resp.Header.Del("Content-Length")
		resp.ContentLength = -1
		resp.Uncompressed = true
	}
	if t.maxBody > 0 {
		reader = &cappedReader{r: reader, remaining: t.maxBody, limit: t.maxBody}
	}
	resp.Body = &decodedBody{Reader: reader, closer: resp.Body}
	return resp, nil
}

// cappedReader passes through at most limit bytes and errors on the first byte beyond.
type cappedReader struct {
	r         io.Reader
	remaining int64
	limit     int64
}

func (c *cappedReader) Read(p []byte) (int, error) {
	if c.remaining < 0 {
		return 0, fmt.Errorf("%w: more than %d bytes", types.ErrBodyTooLarge, c.limit)
	}
	// One byte past the limit is enough to tell an exact fit from an overflow.
	if int64(len(p)) > c.remaining+1 {
		p = p[:c.remaining+1]
	}
	n, err := c.r.Read(p)
	c.remaining -= int64(n)
	if c.remaining < 0 {
		return n - 1, fmt.Errorf("%w: more than %d bytes", types.ErrBodyTooLarge, c.limit)
	}
	return n, err
}

type decodedBody struct {
	io.Reader
	closer io.Closer
}

func (b *decodedBody) Close() error { return b.closer.Close() }

// decompressReader wraps a reader with the decompressor named by Content-Encoding.
func decompressReader(resp *http.Response, reader io.Reader) (io.Reader, error) {
	switch resp.Header.Get("Content-Encoding") {
	case "gzip":
		return gzip.NewReader(reader)
	case "deflate":
		return flate.NewReader(reader), nil
	case "br":
		return brotli.NewReader(reader), nil
	default:
		return reader, nil
	}
}
