package clob

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"sync"
)

// tokenCache memoizes per-token metadata that does not change over a token's
// life (tick size, fee rate, neg-risk flag).
type tokenCache[T any] struct {
	mu sync.RWMutex
	m  map[string]T
}

func (tc *tokenCache[T]) get(tokenID string) (T, bool) {
	tc.mu.RLock()
	defer tc.mu.RUnlock()
	v, ok := tc.m[tokenID]
	return v, ok
}

func (tc *tokenCache[T]) put(tokenID string, v T) {
	tc.mu.Lock()
	defer tc.mu.Unlock()
	if tc.m == nil {
		tc.m = make(map[string]T)
	}
	tc.m[tokenID] = v
}

// load returns the cached value or fetches and caches it. Concurrent misses
// may fetch more than once.
func (tc *tokenCache[T]) load(ctx context.Context, tokenID string, fetch func(context.Context) (T, error)) (T, error) {
	if v, ok := tc.get(tokenID); ok {
		return v, nil
	}
	v, err := fetch(ctx)
	if err != nil {
		var zero T
		return zero, err
	}
	tc.put(tokenID, v)
	return v, nil
}

// decimalString accepts a JSON number or string and keeps its canonical
// decimal text ("0.0100" -> "0.01"), which is how tick sizes are keyed.
type decimalString string

func (d *decimalString) UnmarshalJSON(b []byte) error {
	b = bytes.TrimSpace(b)
	switch {
	case len(b) == 0 || string(b) == "null":
		*d = ""
		return nil
	case b[0] == '"':
		var s string
		if err := json.Unmarshal(b, &s); err != nil {
			return err
		}
		*d = decimalString(canonicalDecimalString(s))
	default:
		*d = decimalString(canonicalDecimalString(string(b)))
	}
	return nil
}

func canonicalDecimalString(s string) string {
	s = strings.TrimSpace(s)
	if s == "" {
		return ""
	}
	if s[0] == '.' {
		s = "0" + s
	}
	whole, frac, ok := strings.Cut(s, ".")
	if !ok {
		return s
	}
	if frac = strings.TrimRight(frac, "0"); frac == "" {
		return whole
	}
	return whole + "." + frac
}

type tickSizeResp struct {
	MinimumTickSize decimalString `json:"minimum_tick_size"`
}

func tokenParams(tokenID string) url.Values {
	return url.Values{"token_id": []string{tokenID}}
}

func (c *Client) GetTickSize(ctx context.Context, tokenID string) (string, error) {
	return c.tickSizes.load(ctx, tokenID, func(ctx context.Context) (string, error) {
		var resp tickSizeResp
		if err := c.doJSON(ctx, http.MethodGet, "/tick-size", tokenParams(tokenID), nil, nil, &resp); err != nil {
			return "", err
		}
		if resp.MinimumTickSize == "" {
			return "", fmt.Errorf("tick size missing for token %s", tokenID)
		}
		return string(resp.MinimumTickSize), nil
	})
}

func (c *Client) GetFeeRateBps(ctx context.Context, tokenID string) (int, error) {
	return c.feeRates.load(ctx, tokenID, func(ctx context.Context) (int, error) {
		var resp struct {
			BaseFee int `json:"base_fee"`
		}
		if err := c.doJSON(ctx, http.MethodGet, "/fee-rate", tokenParams(tokenID), nil, nil, &resp); err != nil {
			return 0, err
		}
		return resp.BaseFee, nil
	})
}

func (c *Client) GetNegRisk(ctx context.Context, tokenID string) (bool, error) {
	return c.negRisk.load(ctx, tokenID, func(ctx context.Context) (bool, error) {
		var resp struct {
			NegRisk bool `json:"neg_risk"`
		}
		if err := c.doJSON(ctx, http.MethodGet, "/neg-risk", tokenParams(tokenID), nil, nil, &resp); err != nil {
			return false, err
		}
		return resp.NegRisk, nil
	})
}
