package clob

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strconv"

	"github.com/shopspring/decimal"
)

const (
	AssetCollateral  = "COLLATERAL"
	AssetConditional = "CONDITIONAL"
)

// BalanceAllowance is the venue's view of the funder's balance and exchange
// allowances, in 1e6 units.
type BalanceAllowance struct {
	Balance    string            `json:"balance"`
	Allowances map[string]string `json:"allowances"`
}

// BalanceUSD converts Balance to whole units.
func (b *BalanceAllowance) BalanceUSD() (decimal.Decimal, error) {
	if b == nil || b.Balance == "" {
		return decimal.Zero, nil
	}
	v, err := decimal.NewFromString(b.Balance)
	if err != nil {
		return decimal.Zero, fmt.Errorf("parse balance %q: %w", b.Balance, err)
	}
	return v.Shift(-collateralTokenDecimals), nil
}

// GetBalanceAllowance reads the CLOB-side balance for assetType. tokenID is
// required for CONDITIONAL assets.
func (c *Client) GetBalanceAllowance(ctx context.Context, assetType, tokenID string, useServerTime bool) (*BalanceAllowance, error) {
	if !c.HasApiCreds() {
		return nil, fmt.Errorf("api creds not configured")
	}
	if assetType != AssetCollateral && assetType != AssetConditional {
		return nil, fmt.Errorf("invalid asset type %q", assetType)
	}

	q := url.Values{}
	q.Set("asset_type", assetType)
	if tokenID != "" {
		q.Set("token_id", tokenID)
	}
	q.Set("signature_type", strconv.Itoa(c.signatureTy))

	const path = "/balance-allowance"
	ts, err := c.timestampForAuth(ctx, useServerTime)
	if err != nil {
		return nil, err
	}
	headers, err := c.l2Headers(ts, http.MethodGet, path, nil)
	if err != nil {
		return nil, err
	}

	var resp BalanceAllowance
	if err := c.doJSON(ctx, http.MethodGet, path, q, headers, nil, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}
