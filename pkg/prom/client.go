package prom

import (
	"context"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/api"
	v1 "github.com/prometheus/client_golang/api/prometheus/v1"
	"github.com/prometheus/common/model"
	"go.uber.org/zap"
)

// Client represents a Prometheus query client.
type Client struct {
	api          v1.API
	timeout      time.Duration
	roundTripper http.RoundTripper
	logger       *zap.Logger
}

// Option configures the Client.
type Option func(*Client)

// WithTimeout bounds every single query. The caller's context still applies.
func WithTimeout(d time.Duration) Option {
	return func(c *Client) {
		c.timeout = d
	}
}

// WithRoundTripper sets the HTTP transport, e.g. one adding authentication.
func WithRoundTripper(rt http.RoundTripper) Option {
	return func(c *Client) {
		c.roundTripper = rt
	}
}

// WithLogger sets the logger for query warnings.
func WithLogger(l *zap.Logger) Option {
	return func(c *Client) {
		if l != nil {
			c.logger = l
		}
	}
}

// NewClient creates a new Prometheus query client.
func NewClient(addr string, opts ...Option) (*Client, error) {
	c := &Client{
		logger: zap.NewNop(),
	}

	// Apply options
	for _, opt := range opts {
		opt(c)
	}

	client, err := api.NewClient(api.Config{
		Address:      addr,
		RoundTripper: c.roundTripper,
	})
	if err != nil {
		return nil, err
	}
	c.api = v1.NewAPI(client)

	return c, nil
}

func (c *Client) withTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	if c.timeout <= 0 {
		return ctx, func() {}
	}
	return context.WithTimeout(ctx, c.timeout)
}

// Query performs an instant query and returns the result.
func (c *Client) Query(ctx context.Context, query string, ts time.Time) (model.Value, v1.Warnings, error) {
	ctx, cancel := c.withTimeout(ctx)
	defer cancel()
	return c.api.Query(ctx, query, ts)
}

// QueryRange performs a range query and returns the result.
func (c *Client) QueryRange(ctx context.Context, query string, r v1.Range) (model.Value, v1.Warnings, error) {
	ctx, cancel := c.withTimeout(ctx)
	defer cancel()
	return c.api.QueryRange(ctx, query, r)
}

// NewRange creates a new Range for QueryRange.
func NewRange(start, end time.Time, step time.Duration) v1.Range {
	return v1.Range{
		Start: start,
		End:   end,
		Step:  step,
	}
}
