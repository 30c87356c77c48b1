// Package remote reads entities from HTTP collaborators such as the workflow
// orchestrator and the identity directory.
package remote

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/hashicorp/go-retryablehttp"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/openfga/datagate/pkg/logger"
	"github.com/openfga/datagate/pkg/requestid"
	"github.com/openfga/datagate/pkg/telemetry"
)

var tracer = otel.Tracer("datagate/pkg/remote")

var requestDurationHistogram = promauto.NewHistogramVec(prometheus.HistogramOpts{
	Namespace: telemetry.Namespace,
	Name:      "remote_request_duration_ms",
	Help:      "Time (in ms) spent waiting on a remote collaborator, including retries.",
	Buckets:   telemetry.DurationBuckets,
}, []string{"service", "status"})

const (
	defaultRetryMax     = 3
	defaultRetryWaitMin = 50 * time.Millisecond
	defaultRetryWaitMax = time.Second
	defaultTimeout      = 10 * time.Second
)

// Client performs GET requests against one remote service.
type Client struct {
	service string
	baseURL *url.URL
	http    *retryablehttp.Client
	logger  logger.Logger
}

type ClientOption func(*Client)

// WithRetryMax sets how often a failed request is retried.
func WithRetryMax(n int) ClientOption {
	return func(c *Client) {
		c.http.RetryMax = n
	}
}

// WithRetryWait bounds the backoff between retries.
func WithRetryWait(minWait, maxWait time.Duration) ClientOption {
	return func(c *Client) {
		c.http.RetryWaitMin = minWait
		c.http.RetryWaitMax = maxWait
	}
}

// WithTimeout sets the timeout of a single attempt.
func WithTimeout(d time.Duration) ClientOption {
	return func(c *Client) {
		c.http.HTTPClient.Timeout = d
	}
}

// WithHTTPClient replaces the underlying transport client.
func WithHTTPClient(hc *http.Client) ClientOption {
	return func(c *Client) {
		c.http.HTTPClient = hc
	}
}

func WithLogger(l logger.Logger) ClientOption {
	return func(c *Client) {
		c.logger = l
	}
}

// NewClient creates a client for service rooted at baseURL.
func NewClient(service, baseURL string, opts ...ClientOption) (*Client, error) {
	u, err := url.Parse(baseURL)
	if err != nil {
		return nil, fmt.Errorf("invalid %s url %q: %w", service, baseURL, err)
	}
	if u.Scheme == "" || u.Host == "" {
		return nil, fmt.Errorf("invalid %s url %q: scheme and host are required", service, baseURL)
	}

	hc := retryablehttp.NewClient()
	hc.Logger = nil
	hc.RetryMax = defaultRetryMax
	hc.RetryWaitMin = defaultRetryWaitMin
	hc.RetryWaitMax = defaultRetryWaitMax
	hc.HTTPClient.Timeout = defaultTimeout
	// hand back the last response so its status can be reported
	hc.ErrorHandler = retryablehttp.PassthroughErrorHandler

	c := &Client{
		service: service,
		baseURL: u,
		http:    hc,
		logger:  logger.NewNoopLogger(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

// Service returns the service name used in errors, logs and metrics.
func (c *Client) Service() string {
	return c.service
}

func (c *Client) resolve(path string, params url.Values) string {
	u := *c.baseURL
	u.Path = strings.TrimSuffix(u.Path, "/") + "/" + strings.TrimPrefix(path, "/")
	if len(params) > 0 {
		u.RawQuery = params.Encode()
	}
	return u.String()
}

// get fetches path. A 404 yields found == false when allowNotFound is set; any
// other non-2xx status is an UnderpinningServiceError.
func (c *Client) get(ctx context.Context, path string, params url.Values, allowNotFound bool) (body []byte, found bool, err error) {
	ctx, correlationID := requestid.Ensure(ctx)
	ctx, span := tracer.Start(ctx, c.service+".get", trace.WithAttributes(
		attribute.String("service", c.service),
		attribute.String("path", path),
	))
	defer span.End()

	start := time.Now()
	status := 0
	defer func() {
		requestDurationHistogram.WithLabelValues(c.service, strconv.Itoa(status)).Observe(telemetry.Milliseconds(start))
		if err != nil {
			telemetry.TraceError(span, err)
			c.logger.ErrorWithContext(ctx, "remote request failed",
				zap.String("service", c.service),
				zap.String("path", path),
				zap.Int("status", status),
				zap.Error(err),
			)
		}
	}()

	fault := func(cause error) error {
		return &UnderpinningServiceError{
			Service:       c.service,
			StatusCode:    status,
			CorrelationID: correlationID,
			Err:           cause,
		}
	}

	req, err := retryablehttp.NewRequestWithContext(ctx, http.MethodGet, c.resolve(path, params), nil)
	if err != nil {
		return nil, false, fault(err)
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set(requestid.RequestIDHeader, correlationID)

	resp, err := c.http.Do(req)
	if err != nil {
		if resp != nil {
			resp.Body.Close()
		}
		return nil, false, fault(err)
	}
	defer resp.Body.Close()

	status = resp.StatusCode
	span.SetAttributes(attribute.Int("status", status))

	if status == http.StatusNotFound && allowNotFound {
		return nil, false, nil
	}

	body, err = io.ReadAll(resp.Body)
	if err != nil {
		return nil, false, fault(err)
	}

	if status < 200 || status > 299 {
		return nil, false, fault(fmt.Errorf("unexpected status %s", http.StatusText(status)))
	}

	return body, true, nil
}
