package solr

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/hashicorp/go-retryablehttp"
	"go.uber.org/zap"

	"github.com/kailas-cloud/martsearch/internal/domain"
	"github.com/kailas-cloud/martsearch/internal/logger"
)

// Client is a Solr search index client.
type Client struct {
	http         *retryablehttp.Client
	baseURL      string
	primaryField string
	pageSize     int
	sort         string
	logger       *zap.Logger
}

// Config holds the index client settings.
type Config struct {
	URL          string
	PrimaryField string
	PageSize     int
	Sort         string
	Timeout      time.Duration
	RetryMax     int
	Logger       *zap.Logger
}

// NewClient creates a Solr client.
func NewClient(cfg *Config) *Client {
	l := cfg.Logger
	if l == nil {
		l = zap.NewNop()
	}
	pageSize := cfg.PageSize
	if pageSize <= 0 {
		pageSize = 10
	}

	rc := retryablehttp.NewClient()
	rc.RetryMax = cfg.RetryMax
	rc.RetryWaitMin = 100 * time.Millisecond
	rc.RetryWaitMax = time.Second
	rc.Logger = logger.Leveled(l)
	rc.ErrorHandler = retryablehttp.PassthroughErrorHandler
	if cfg.Timeout > 0 {
		rc.HTTPClient.Timeout = cfg.Timeout
	}

	return &Client{
		http:         rc,
		baseURL:      strings.TrimRight(cfg.URL, "/"),
		primaryField: cfg.PrimaryField,
		pageSize:     pageSize,
		sort:         cfg.Sort,
		logger:       l,
	}
}

// PrimaryField returns the index field holding primary keys.
func (c *Client) PrimaryField() string { return c.primaryField }

// PageSize returns the number of documents per page.
func (c *Client) PageSize() int { return c.pageSize }

// IsAlive probes the Solr ping handler. Any failure maps to domain.ErrIndexUnavailable.
func (c *Client) IsAlive(ctx context.Context) error {
	var resp struct {
		Status string `json:"status"`
	}
	if err := c.get(ctx, "/admin/ping", url.Values{"wt": {"json"}}, &resp); err != nil {
		if errors.Is(err, domain.ErrIndexSearch) {
			return fmt.Errorf("ping rejected: %v: %w", err, domain.ErrIndexUnavailable)
		}
		return err
	}
	if resp.Status != "OK" {
		return fmt.Errorf("ping status %q: %w", resp.Status, domain.ErrIndexUnavailable)
	}
	return nil
}

// Search fetches one page of documents keyed by primary field. Documents without a
// primary key, or repeating one already seen on the page, are skipped.
func (c *Client) Search(ctx context.Context, query string, page int) (domain.IndexPage, error) {
	params := c.selectParams(query, domain.StartOffset(page, c.pageSize), c.pageSize)
	params.Set("hl", "true")
	params.Set("hl.fl", "*")

	resp, err := c.selectDocs(ctx, params)
	if err != nil {
		return domain.IndexPage{}, err
	}

	out := domain.IndexPage{
		Keys:         make([]string, 0, len(resp.Response.Docs)),
		Documents:    make(map[string]domain.Document, len(resp.Response.Docs)),
		Total:        resp.Response.NumFound,
		Highlighting: resp.Highlighting,
	}
	for _, raw := range resp.Response.Docs {
		doc := decodeDocument(raw)
		key := doc.First(c.primaryField)
		if key == "" {
			c.logger.Debug("index document without primary key", zap.String("field", c.primaryField))
			continue
		}
		if _, dup := out.Documents[key]; dup {
			continue
		}
		out.Keys = append(out.Keys, key)
		out.Documents[key] = doc
	}
	return out, nil
}

// QuickSearch returns the raw documents of one page, bypassing aggregation.
func (c *Client) QuickSearch(ctx context.Context, query string, page int) ([]domain.Document, error) {
	resp, err := c.selectDocs(ctx, c.selectParams(query, domain.StartOffset(page, c.pageSize), c.pageSize))
	if err != nil {
		return nil, err
	}
	docs := make([]domain.Document, 0, len(resp.Response.Docs))
	for _, raw := range resp.Response.Docs {
		docs = append(docs, decodeDocument(raw))
	}
	return docs, nil
}

// Count returns the number of documents matching a query.
func (c *Client) Count(ctx context.Context, query string) (int, error) {
	resp, err := c.selectDocs(ctx, c.selectParams(query, 0, 0))
	if err != nil {
		return 0, err
	}
	return resp.Response.NumFound, nil
}

func (c *Client) selectParams(query string, start, rows int) url.Values {
	params := url.Values{
		"q":     {query},
		"start": {strconv.Itoa(start)},
		"rows":  {strconv.Itoa(rows)},
		"wt":    {"json"},
	}
	if c.sort != "" {
		params.Set("sort", c.sort)
	}
	return params
}

type selectResponse struct {
	Response struct {
		NumFound int                          `json:"numFound"`
		Start    int                          `json:"start"`
		Docs     []map[string]json.RawMessage `json:"docs"`
	} `json:"response"`
	Highlighting map[string]map[string][]string `json:"highlighting"`
}

func (c *Client) selectDocs(ctx context.Context, params url.Values) (*selectResponse, error) {
	var resp selectResponse
	if err := c.get(ctx, "/select", params, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// get performs a GET and decodes a JSON body. HTTP 400 maps to domain.ErrIndexSearch;
// transport failures and other non-2xx statuses map to domain.ErrIndexUnavailable.
func (c *Client) get(ctx context.Context, path string, params url.Values, out any) error {
	req, err := retryablehttp.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path+"?"+params.Encode(), nil)
	if err != nil {
		return fmt.Errorf("build request: %v: %w", err, domain.ErrIndexUnavailable)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("solr request failed: %v: %w", err, domain.ErrIndexUnavailable)
	}
	defer func() { _ = resp.Body.Close() }()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("read solr response: %v: %w", err, domain.ErrIndexUnavailable)
	}

	switch {
	case resp.StatusCode == http.StatusBadRequest:
		return fmt.Errorf("solr rejected query: %s: %w", extractMessage(body), domain.ErrIndexSearch)
	case resp.StatusCode < 200 || resp.StatusCode > 299:
		return fmt.Errorf("solr error %d: %s: %w", resp.StatusCode, extractMessage(body), domain.ErrIndexUnavailable)
	}

	dec := json.NewDecoder(bytes.NewReader(body))
	dec.UseNumber()
	if err := dec.Decode(out); err != nil {
		return fmt.Errorf("decode solr response: %v: %w", err, domain.ErrIndexUnavailable)
	}
	return nil
}

// extractMessage extracts error.msg from a Solr error body.
func extractMessage(body []byte) string {
	var parsed struct {
		Error struct {
			Msg string `json:"msg"`
		} `json:"error"`
	}
	if json.Unmarshal(body, &parsed) == nil && parsed.Error.Msg != "" {
		return parsed.Error.Msg
	}
	return strings.TrimSpace(string(body))
}
