// Package gamma resolves outcome token ids to their markets through the
// Polymarket Gamma API.
package gamma

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"
)

const DefaultURL = "https://gamma-api.polymarket.com"

// DefaultUserAgent mimics a browser UA to avoid Cloudflare 403s.
const DefaultUserAgent = "Mozilla/5.0"

type Client struct {
	host       string
	httpClient *http.Client
	userAgent  string

	mu     sync.RWMutex
	tokens map[string]TokenMarket
}

func NewClient(host string) (*Client, error) {
	host = strings.TrimSpace(host)
	if host == "" {
		host = DefaultURL
	}
	host = strings.TrimRight(host, "/")

	u, err := url.Parse(host)
	if err != nil {
		return nil, fmt.Errorf("gamma url parse %q: %w", host, err)
	}
	if u.Scheme != "https" && u.Scheme != "http" {
		return nil, fmt.Errorf("gamma url must be http(s), got %q", host)
	}

	return &Client{
		host: host,
		httpClient: &http.Client{
			Timeout: 12 * time.Second,
		},
		userAgent: DefaultUserAgent,
		tokens:    make(map[string]TokenMarket),
	}, nil
}

type stringList []string

func (s *stringList) UnmarshalJSON(b []byte) error {
	b = bytes.TrimSpace(b)
	if len(b) == 0 || bytes.Equal(b, []byte("null")) {
		*s = nil
		return nil
	}

	// Gamma commonly returns lists (outcomes, clobTokenIds) as a JSON string
	// that itself contains a JSON array.
	if b[0] == '"' {
		var raw string
		if err := json.Unmarshal(b, &raw); err != nil {
			return err
		}
		raw = strings.TrimSpace(raw)
		if raw == "" {
			*s = nil
			return nil
		}
		b = []byte(raw)
	}

	var vals []string
	if err := json.Unmarshal(b, &vals); err != nil {
		return err
	}
	*s = vals
	return nil
}

type market struct {
	ConditionID  string     `json:"conditionId"`
	Question     string     `json:"question"`
	Slug         string     `json:"slug"`
	Active       bool       `json:"active"`
	Closed       bool       `json:"closed"`
	Outcomes     stringList `json:"outcomes"`
	ClobTokenIDs stringList `json:"clobTokenIds"`
}

// TokenMarket locates one outcome token inside its market.
type TokenMarket struct {
	TokenID     string
	ConditionID string
	Question    string
	Slug        string
	Outcome     string
	// OutcomeIndex is the token's position in the market's outcome list.
	OutcomeIndex int
	Closed       bool
}

// ResolveToken looks up the market listing tokenID. Results are cached for
// the lifetime of the client; a market's token set never changes.
func (c *Client) ResolveToken(ctx context.Context, tokenID string) (TokenMarket, error) {
	if c == nil {
		return TokenMarket{}, fmt.Errorf("gamma client nil")
	}
	tokenID = strings.TrimSpace(tokenID)
	if tokenID == "" {
		return TokenMarket{}, fmt.Errorf("token id required")
	}

	c.mu.RLock()
	tm, ok := c.tokens[tokenID]
	c.mu.RUnlock()
	if ok {
		return tm, nil
	}

	q := url.Values{}
	q.Set("clob_token_ids", tokenID)
	var markets []market
	if err := c.getJSON(ctx, "/markets", q, &markets); err != nil {
		return TokenMarket{}, err
	}

	for _, m := range markets {
		for i, id := range m.ClobTokenIDs {
			if strings.TrimSpace(id) != tokenID {
				continue
			}
			tm := TokenMarket{
				TokenID:      tokenID,
				ConditionID:  m.ConditionID,
				Question:     m.Question,
				Slug:         m.Slug,
				OutcomeIndex: i,
				Closed:       m.Closed,
			}
			if i < len(m.Outcomes) {
				tm.Outcome = m.Outcomes[i]
			}
			c.mu.Lock()
			c.tokens[tokenID] = tm
			c.mu.Unlock()
			return tm, nil
		}
	}
	return TokenMarket{}, fmt.Errorf("gamma: no market lists token %s", tokenID)
}

func (c *Client) getJSON(ctx context.Context, path string, q url.Values, out any) error {
	endpoint := c.host + path
	if len(q) > 0 {
		endpoint += "?" + q.Encode()
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return err
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("User-Agent", c.userAgent)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body := readBodyLimit(resp.Body, 8<<10)
		return fmt.Errorf("gamma %s: status=%d body=%q", endpoint, resp.StatusCode, body)
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("gamma decode: %w", err)
	}
	return nil
}

func readBodyLimit(r io.Reader, max int64) string {
	if r == nil || max <= 0 {
		return ""
	}
	lr := &io.LimitedReader{R: r, N: max}
	b, _ := io.ReadAll(lr)
	return strings.TrimSpace(string(b))
}
