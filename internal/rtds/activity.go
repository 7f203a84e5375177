package rtds

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/shopspring/decimal"
)

const (
	TopicActivity = "activity"
	TypeTrades    = "trades"
)

// ActivityTrades subscribes to every public trade on the venue.
func ActivityTrades() Subscription {
	return Subscription{Topic: TopicActivity, Type: TypeTrades}
}

// Trade is the activity/trades payload. Size is in shares.
type Trade struct {
	Asset           string          `json:"asset"`
	ConditionID     string          `json:"conditionId"`
	EventSlug       string          `json:"eventSlug"`
	Slug            string          `json:"slug"`
	Title           string          `json:"title"`
	Outcome         string          `json:"outcome"`
	OutcomeIndex    int             `json:"outcomeIndex"`
	Price           decimal.Decimal `json:"price"`
	Size            decimal.Decimal `json:"size"`
	Side            string          `json:"side"`
	ProxyWallet     string          `json:"proxyWallet"`
	TransactionHash string          `json:"transactionHash"`
	Timestamp       int64           `json:"timestamp"`
}

// NotionalUSD is size × price.
func (t *Trade) NotionalUSD() decimal.Decimal {
	return t.Size.Mul(t.Price)
}

// DecodeTrade returns the trade carried by m, or nil when m is not an
// activity/trades message.
func DecodeTrade(m Message) (*Trade, error) {
	if m.Topic != TopicActivity || !strings.EqualFold(m.Type, TypeTrades) {
		return nil, nil
	}
	if len(m.Payload) == 0 {
		return nil, fmt.Errorf("rtds trade: empty payload")
	}
	var t Trade
	if err := json.Unmarshal(m.Payload, &t); err != nil {
		return nil, fmt.Errorf("rtds trade decode: %w", err)
	}
	t.Side = strings.ToUpper(strings.TrimSpace(t.Side))
	if t.Asset == "" {
		return nil, fmt.Errorf("rtds trade: missing asset")
	}
	return &t, nil
}
