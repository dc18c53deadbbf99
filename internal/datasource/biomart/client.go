// Package biomart queries BioMart martservice endpoints.
package biomart

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/hashicorp/go-retryablehttp"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/kailas-cloud/martsearch/internal/domain"
	"github.com/kailas-cloud/martsearch/internal/logger"
)

// Default budgets for interactive queries and bulk exports.
const (
	DefaultTimeout     = 20 * time.Second
	DefaultBulkTimeout = 240 * time.Second
)

// Client is a BioMart data source. Safe for concurrent use.
type Client struct {
	http        *retryablehttp.Client
	url         string
	dataset     string
	timeout     time.Duration
	bulkTimeout time.Duration
	limiter     *rate.Limiter
	logger      *zap.Logger
}

// Config holds BioMart client settings.
type Config struct {
	URL         string
	Dataset     string
	Timeout     time.Duration
	BulkTimeout time.Duration
	RatePerSec  float64
	RetryMax    int
	Logger      *zap.Logger
}

// New creates a BioMart client.
func New(cfg *Config) *Client {
	l := cfg.Logger
	if l == nil {
		l = zap.NewNop()
	}

	rc := retryablehttp.NewClient()
	rc.RetryMax = cfg.RetryMax
	rc.RetryWaitMin = 250 * time.Millisecond
	rc.RetryWaitMax = 2 * time.Second
	rc.Logger = logger.Leveled(l)
	rc.ErrorHandler = retryablehttp.PassthroughErrorHandler

	limit := rate.Inf
	burst := 1
	if cfg.RatePerSec > 0 {
		limit = rate.Limit(cfg.RatePerSec)
		burst = max(1, int(cfg.RatePerSec))
	}

	c := &Client{
		http:        rc,
		url:         cfg.URL,
		dataset:     cfg.Dataset,
		timeout:     cfg.Timeout,
		bulkTimeout: cfg.BulkTimeout,
		limiter:     rate.NewLimiter(limit, burst),
		logger:      l.With(zap.String("mart", cfg.Dataset)),
	}
	if c.timeout <= 0 {
		c.timeout = DefaultTimeout
	}
	if c.bulkTimeout <= 0 {
		c.bulkTimeout = DefaultBulkTimeout
	}
	return c
}

// EnforcesRequired reports that rows missing required attributes are dropped here,
// so datasets do not re-check them.
func (c *Client) EnforcesRequired() bool { return true }

// Search runs one query and returns rows keyed by attribute name.
func (c *Client) Search(ctx context.Context, q domain.Query) ([]domain.Row, error) {
	timeout := q.Timeout
	if timeout <= 0 {
		timeout = c.timeout
	}

	recs, err := c.run(ctx, q.Filters, q.Attributes, timeout)
	if err != nil {
		return nil, err
	}

	rows := make([]domain.Row, 0, len(recs))
	for _, rec := range recs {
		row := make(domain.Row, len(q.Attributes))
		for i, attr := range q.Attributes {
			if i < len(rec) && rec[i] != "" {
				row[attr] = rec[i]
			}
		}
		if !row.HasAll(q.RequiredAttributes) {
			continue
		}
		rows = append(rows, row)
	}
	return rows, nil
}

// FetchAll runs a bulk export with the bulk timeout, for the offline indexer.
func (c *Client) FetchAll(ctx context.Context, filters map[string][]string, attributes []string) (domain.Table, error) {
	recs, err := c.run(ctx, filters, attributes, c.bulkTimeout)
	if err != nil {
		return domain.Table{}, err
	}
	return domain.Table{Headers: append([]string(nil), attributes...), Rows: recs}, nil
}

func (c *Client) run(ctx context.Context, filters map[string][]string, attributes []string, timeout time.Duration) ([][]string, error) {
	if len(attributes) == 0 {
		return nil, fmt.Errorf("no attributes requested: %w", domain.ErrDataSource)
	}

	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	// Wait only fails when the budget cannot cover the delay.
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, fmt.Errorf("biomart %s rate limit: %v: %w", c.dataset, err, domain.ErrDataSourceTimeout)
	}

	xmlBody, err := buildQuery(c.dataset, filters, attributes)
	if err != nil {
		return nil, fmt.Errorf("%v: %w", err, domain.ErrDataSource)
	}

	form := url.Values{"query": {string(xmlBody)}}
	req, err := retryablehttp.NewRequestWithContext(ctx, http.MethodPost, c.url, strings.NewReader(form.Encode()))
	if err != nil {
		return nil, fmt.Errorf("build request: %v: %w", err, domain.ErrDataSource)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	start := time.Now()
	resp, err := c.http.Do(req)
	if err != nil {
		return nil, c.wrap(ctx, "request", err)
	}
	defer func() { _ = resp.Body.Close() }()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, c.wrap(ctx, "read response", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, fmt.Errorf("biomart status %d: %s: %w", resp.StatusCode, firstLine(body), domain.ErrDataSource)
	}

	recs, err := parseTSV(body)
	if err != nil {
		return nil, fmt.Errorf("biomart %s: %v: %w", c.dataset, err, domain.ErrDataSource)
	}

	c.logger.Debug("biomart query",
		zap.Int("rows", len(recs)),
		zap.Duration("duration", time.Since(start)),
	)
	return recs, nil
}

// wrap classifies a transport error: an expired budget is a timeout, anything else
// a data source error.
func (c *Client) wrap(ctx context.Context, op string, err error) error {
	if errors.Is(ctx.Err(), context.DeadlineExceeded) || errors.Is(err, context.DeadlineExceeded) {
		return fmt.Errorf("biomart %s %s: %v: %w", c.dataset, op, err, domain.ErrDataSourceTimeout)
	}
	return fmt.Errorf("biomart %s %s: %v: %w", c.dataset, op, err, domain.ErrDataSource)
}

func firstLine(body []byte) string {
	line, _, _ := strings.Cut(strings.TrimSpace(string(body)), "\n")
	return line
}
