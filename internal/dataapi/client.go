// Package dataapi reads wallet activity from the Polymarket Data API.
package dataapi

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

const DefaultURL = "https://data-api.polymarket.com"

// DefaultUserAgent mimics a browser UA to avoid Cloudflare 403s.
const DefaultUserAgent = "Mozilla/5.0"

const ActivityTrade = "TRADE"

type Client struct {
	host       string
	httpClient *http.Client
	userAgent  string
}

func NewClient(host string) (*Client, error) {
	host = strings.TrimSpace(host)
	if host == "" {
		host = DefaultURL
	}
	host = strings.TrimRight(host, "/")

	u, err := url.Parse(host)
	if err != nil {
		return nil, fmt.Errorf("data api url parse %q: %w", host, err)
	}
	if u.Scheme != "https" && u.Scheme != "http" {
		return nil, fmt.Errorf("data api url must be http(s), got %q", host)
	}

	return &Client{
		host: host,
		httpClient: &http.Client{
			Timeout: 8 * time.Second,
		},
		userAgent: DefaultUserAgent,
	}, nil
}

type ActivityParams struct {
	User string
	Type string
	// Start is an inclusive lower bound in unix seconds; zero means unbounded.
	Start int64
	Limit int
}

// Activity is one row of /activity. Size is in shares; USDCSize in dollars.
type Activity struct {
	ProxyWallet     string          `json:"proxyWallet"`
	Timestamp       int64           `json:"timestamp"`
	ConditionID     string          `json:"conditionId"`
	Type            string          `json:"type"`
	Size            decimal.Decimal `json:"size"`
	USDCSize        decimal.Decimal `json:"usdcSize"`
	TransactionHash string          `json:"transactionHash"`
	Price           decimal.Decimal `json:"price"`
	Asset           string          `json:"asset"`
	Side            string          `json:"side"`
	OutcomeIndex    int             `json:"outcomeIndex"`
	Outcome         string          `json:"outcome"`
	Title           string          `json:"title"`
	Slug            string          `json:"slug"`
}

// Key identifies an activity row across polls.
func (a Activity) Key() string {
	return a.TransactionHash + ":" + a.Asset + ":" + a.Side
}

// GetActivity returns the user's activity, newest first.
func (c *Client) GetActivity(ctx context.Context, params ActivityParams) ([]Activity, error) {
	if c == nil {
		return nil, fmt.Errorf("data api client nil")
	}
	user := strings.TrimSpace(params.User)
	if user == "" {
		return nil, fmt.Errorf("activity user required")
	}

	q := url.Values{}
	q.Set("user", user)
	if t := strings.TrimSpace(params.Type); t != "" {
		q.Set("type", t)
	}
	if params.Start > 0 {
		q.Set("start", strconv.FormatInt(params.Start, 10))
	}
	if params.Limit > 0 {
		q.Set("limit", strconv.Itoa(params.Limit))
	}
	q.Set("sortBy", "TIMESTAMP")
	q.Set("sortDirection", "DESC")

	endpoint := c.host + "/activity?" + q.Encode()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("User-Agent", c.userAgent)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body := readBodyLimit(resp.Body, 8<<10)
		return nil, fmt.Errorf("data api %s: status=%d body=%q", endpoint, resp.StatusCode, body)
	}

	var out []Activity
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, fmt.Errorf("data api decode: %w", err)
	}
	return out, nil
}

func readBodyLimit(r io.Reader, limit int64) string {
	if r == nil {
		return ""
	}
	if limit <= 0 {
		limit = 8 << 10
	}
	b, _ := io.ReadAll(io.LimitReader(r, limit))
	return string(b)
}
