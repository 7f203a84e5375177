package clob

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strings"
)

// OrderBookSummary is the raw /book payload. The venue lists bids ascending
// and asks descending, so the best level of each side is the last entry.
type OrderBookSummary struct {
	Market    string         `json:"market"`
	AssetID   string         `json:"asset_id"`
	Timestamp string         `json:"timestamp"`
	Bids      []OrderSummary `json:"bids"`
	Asks      []OrderSummary `json:"asks"`
	MinOrder  string         `json:"min_order_size"`
	TickSize  decimalString  `json:"tick_size"`
	NegRisk   bool           `json:"neg_risk"`
	Hash      string         `json:"hash"`
}

type OrderSummary struct {
	Price string `json:"price"`
	Size  string `json:"size"`
}

// GetOrderBook fetches the raw book and records the tick size and neg-risk
// flag it carries.
func (c *Client) GetOrderBook(ctx context.Context, tokenID string) (*OrderBookSummary, error) {
	var book OrderBookSummary
	if err := c.doJSON(ctx, http.MethodGet, "/book", tokenParams(tokenID), nil, nil, &book); err != nil {
		return nil, err
	}
	if book.TickSize != "" {
		c.tickSizes.put(tokenID, string(book.TickSize))
		c.negRisk.put(tokenID, book.NegRisk)
	}
	return &book, nil
}

type MarketToken struct {
	TokenID string  `json:"token_id"`
	Outcome string  `json:"outcome"`
	Price   float64 `json:"price"`
	Winner  bool    `json:"winner"`
}

// Market mirrors the /markets/<condition_id> payload.
type Market struct {
	ConditionID     string        `json:"condition_id"`
	QuestionID      string        `json:"question_id"`
	Question        string        `json:"question"`
	MarketSlug      string        `json:"market_slug"`
	Active          bool          `json:"active"`
	Closed          bool          `json:"closed"`
	Archived        bool          `json:"archived"`
	AcceptingOrders bool          `json:"accepting_orders"`
	EnableOrderBook bool          `json:"enable_order_book"`
	MinimumTickSize decimalString `json:"minimum_tick_size"`
	NegRisk         bool          `json:"neg_risk"`
	Tokens          []MarketToken `json:"tokens"`
}

// Resolved reports whether a winning outcome has been declared.
func (m *Market) Resolved() bool {
	for _, t := range m.Tokens {
		if t.Winner {
			return true
		}
	}
	return false
}

// Token returns the outcome token with the given id.
func (m *Market) Token(tokenID string) (MarketToken, bool) {
	for _, t := range m.Tokens {
		if t.TokenID == tokenID {
			return t, true
		}
	}
	return MarketToken{}, false
}

// GetMarket fetches one market by condition id. The tick size and neg-risk
// flags of its tokens are cached for order signing.
func (c *Client) GetMarket(ctx context.Context, conditionID string) (*Market, error) {
	conditionID = strings.TrimSpace(conditionID)
	if conditionID == "" {
		return nil, fmt.Errorf("condition id required")
	}

	var m Market
	if err := c.doJSON(ctx, http.MethodGet, "/markets/"+url.PathEscape(conditionID), nil, nil, nil, &m); err != nil {
		return nil, err
	}
	if m.ConditionID == "" {
		return nil, fmt.Errorf("market %s missing in response", conditionID)
	}

	for _, t := range m.Tokens {
		if t.TokenID == "" {
			continue
		}
		if m.MinimumTickSize != "" {
			c.tickSizes.put(t.TokenID, string(m.MinimumTickSize))
		}
		c.negRisk.put(t.TokenID, m.NegRisk)
	}
	return &m, nil
}
