// Package catalog issues search requests against the remote marketplace API.
package catalog

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/aluiziolira/go-market-harvest/config"
)

// maxResponseBodySize caps how much of a response is read into memory.
const maxResponseBodySize = 8 << 20 // 8 MiB

// Result is the outcome of fetching one page of search results.
//
// The client fails soft: transport faults, non-200 statuses, malformed
// bodies and empty result sets all surface as Valid=false with a
// human-readable ErrorMessage. No error crosses this boundary.
type Result struct {
	Valid        bool
	Total        int
	Items        []json.RawMessage
	ErrorMessage string
}

// Client fetches pages from the marketplace search endpoint. It holds no
// per-request state and is safe for concurrent use.
type Client struct {
	httpClient *http.Client

	baseURL     string
	userAgent   string
	currency    string
	destination string
	resultSet   string
	sortMode    string
}

// NewClient builds a catalog client configured from cfg.
func NewClient(cfg *config.Config) (*Client, error) {
	parsed, err := url.Parse(cfg.CatalogBaseURL)
	if err != nil {
		return nil, fmt.Errorf("parse catalog base url: %w", err)
	}
	if parsed.Host == "" {
		return nil, fmt.Errorf("catalog base url must include a host")
	}

	return &Client{
		httpClient: &http.Client{
			Timeout: cfg.Timeout,
			Transport: &http.Transport{
				Proxy: http.ProxyFromEnvironment,
				DialContext: (&net.Dialer{
					Timeout:   cfg.Timeout,
					KeepAlive: 30 * time.Second,
				}).DialContext,
				MaxIdleConns:        100,
				IdleConnTimeout:     90 * time.Second,
				TLSHandshakeTimeout: 10 * time.Second,
			},
		},
		baseURL:     cfg.CatalogBaseURL,
		userAgent:   cfg.UserAgent,
		currency:    cfg.Currency,
		destination: cfg.Destination,
		resultSet:   cfg.ResultSet,
		sortMode:    cfg.SortMode,
	}, nil
}

// WithTransport swaps the underlying transport. Used by tests.
func (c *Client) WithTransport(rt http.RoundTripper) {
	c.httpClient.Transport = rt
}

// searchResponse mirrors the marketplace envelope. Items stay raw so one
// malformed record cannot fail the whole page.
type searchResponse struct {
	Data struct {
		Total    *int              `json:"total"`
		Products []json.RawMessage `json:"products"`
	} `json:"data"`
}

// Fetch requests one 1-based page of search results for queryText.
func (c *Client) Fetch(ctx context.Context, queryText string, page int) Result {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.pageURL(queryText, page), nil)
	if err != nil {
		return invalid(fmt.Sprintf("building marketplace request failed: %v", err))
	}
	req.Header.Set("User-Agent", c.userAgent)
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return invalid(fmt.Sprintf("marketplace request failed: %v", err))
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return invalid(fmt.Sprintf("marketplace returned status %d", resp.StatusCode))
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBodySize))
	if err != nil {
		return invalid(fmt.Sprintf("reading marketplace response failed: %v", err))
	}

	var envelope searchResponse
	if err := json.Unmarshal(body, &envelope); err != nil {
		return invalid("parsing marketplace response failed")
	}

	products := envelope.Data.Products
	if len(products) == 0 {
		return invalid("no results found")
	}

	total := len(products)
	if envelope.Data.Total != nil {
		total = *envelope.Data.Total
	}

	return Result{
		Valid: true,
		Total: total,
		Items: products,
	}
}

func (c *Client) pageURL(queryText string, page int) string {
	params := url.Values{}
	params.Set("curr", c.currency)
	params.Set("dest", c.destination)
	params.Set("page", strconv.Itoa(page))
	params.Set("query", queryText)
	params.Set("resultset", c.resultSet)
	params.Set("sort", c.sortMode)
	return c.baseURL + "?" + params.Encode()
}

func invalid(message string) Result {
	return Result{Valid: false, ErrorMessage: message}
}
