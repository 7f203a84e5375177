package clob

import (
	"context"
	"crypto/ecdsa"
	"encoding/json"
	"errors"
	"fmt"
	"math/big"
	"net/http"
	"strconv"

	"github.com/ethereum/go-ethereum/common/hexutil"
	orderbuilder "github.com/polymarket/go-order-utils/pkg/builder"
	ordermodel "github.com/polymarket/go-order-utils/pkg/model"
	"github.com/shopspring/decimal"
)

const zeroAddressHex = "0x0000000000000000000000000000000000000000"

type Side string

const (
	SideBuy  Side = "BUY"
	SideSell Side = "SELL"
)

type OrderType string

const (
	OrderTypeGTC OrderType = "GTC"
	OrderTypeFOK OrderType = "FOK"
)

type signedOrderPayload struct {
	DeferExec bool      `json:"deferExec"`
	Order     orderJSON `json:"order"`
	Owner     string    `json:"owner"`
	OrderType OrderType `json:"orderType"`
}

type orderJSON struct {
	Salt          int64  `json:"salt"`
	Maker         string `json:"maker"`
	Signer        string `json:"signer"`
	Taker         string `json:"taker"`
	TokenID       string `json:"tokenId"`
	MakerAmount   string `json:"makerAmount"`
	TakerAmount   string `json:"takerAmount"`
	Expiration    string `json:"expiration"`
	Nonce         string `json:"nonce"`
	FeeRateBps    string `json:"feeRateBps"`
	Side          Side   `json:"side"`
	SignatureType int    `json:"signatureType"`
	Signature     string `json:"signature"`
}

type OrderResult struct {
	SignedOrder *ordermodel.SignedOrder
	Price       string
	TickSize    string
	// MakerAmount and TakerAmount are in 1e6 units after venue rounding.
	MakerAmount *big.Int
	TakerAmount *big.Int
}

// CreateSignedOrderAtPrice signs an order for size shares at a limit price.
// BUY spends size*price USDC; SELL gives up size shares.
func (c *Client) CreateSignedOrderAtPrice(
	ctx context.Context,
	tokenID string,
	side Side,
	size decimal.Decimal,
	price decimal.Decimal,
	saltGenerator func() int64,
) (*OrderResult, error) {
	if !size.IsPositive() {
		return nil, fmt.Errorf("size must be > 0")
	}
	if !price.IsPositive() || price.GreaterThanOrEqual(decimal.NewFromInt(1)) {
		return nil, fmt.Errorf("price must be in (0, 1), got %s", price)
	}

	var sideEnum ordermodel.Side
	switch side {
	case SideBuy:
		sideEnum = ordermodel.BUY
	case SideSell:
		sideEnum = ordermodel.SELL
	default:
		return nil, fmt.Errorf("invalid side %q", side)
	}

	tickSize, err := c.GetTickSize(ctx, tokenID)
	if err != nil {
		return nil, fmt.Errorf("tick size: %w", err)
	}
	scale, priceDecimals, err := tickScaleFromTickSize(tickSize)
	if err != nil {
		return nil, err
	}
	priceTicks := price.Shift(int32(priceDecimals)).Round(0).BigInt()
	if priceTicks.Sign() <= 0 {
		return nil, fmt.Errorf("price %s rounds to 0 at tick %s", price, tickSize)
	}

	makerIn := toUnits(size, collateralTokenDecimals)
	if side == SideBuy {
		makerIn = toUnits(size.Mul(price), collateralTokenDecimals)
	}
	makerUnits, takerUnits, err := orderAmountsAtPrice(side, makerIn, priceTicks, scale)
	if err != nil {
		return nil, err
	}

	feeBps, err := c.GetFeeRateBps(ctx, tokenID)
	if err != nil {
		return nil, fmt.Errorf("fee rate: %w", err)
	}
	negRisk, err := c.GetNegRisk(ctx, tokenID)
	if err != nil {
		return nil, fmt.Errorf("neg risk: %w", err)
	}
	contract := ordermodel.CTFExchange
	if negRisk {
		contract = ordermodel.NegRiskCTFExchange
	}

	od := &ordermodel.OrderData{
		Maker:         c.funder.Hex(),
		Taker:         zeroAddressHex,
		TokenId:       tokenID,
		MakerAmount:   makerUnits.String(),
		TakerAmount:   takerUnits.String(),
		FeeRateBps:    strconv.Itoa(feeBps),
		Nonce:         "0",
		Signer:        c.signer.Hex(),
		Expiration:    "0",
		Side:          sideEnum,
		SignatureType: ordermodel.SignatureType(c.signatureTy),
	}
	signed, err := signOrder(c.chainID, c.privateKey, od, contract, saltGenerator)
	if err != nil {
		return nil, err
	}
	return &OrderResult{
		SignedOrder: signed,
		Price:       formatDecimalUnits(priceTicks, priceDecimals),
		TickSize:    tickSize,
		MakerAmount: makerUnits,
		TakerAmount: takerUnits,
	}, nil
}

func signOrder(chainID int64, pk *ecdsa.PrivateKey, od *ordermodel.OrderData, contract ordermodel.VerifyingContract, saltGen func() int64) (*ordermodel.SignedOrder, error) {
	b := orderbuilder.NewExchangeOrderBuilderImpl(big.NewInt(chainID), saltGen)
	return b.BuildSignedOrder(pk, od, contract)
}

// PostOrderResponse is the /order answer.
type PostOrderResponse struct {
	Success            bool     `json:"success"`
	ErrorMsg           string   `json:"errorMsg"`
	OrderID            string   `json:"orderID"`
	Status             string   `json:"status"`
	MakingAmount       string   `json:"makingAmount"`
	TakingAmount       string   `json:"takingAmount"`
	TransactionsHashes []string `json:"transactionsHashes"`
}

// Filled reports whether the order actually executed. The venue answers
// success=true for killed FOK orders too, with the reason in errorMsg.
func (r *PostOrderResponse) Filled() bool {
	return r != nil && r.Success && r.ErrorMsg == ""
}

// PostOrder submits a signed order. A 4xx answer carrying a JSON order
// response (a killed FOK, for example) is decoded and returned alongside the
// *APIError.
func (c *Client) PostOrder(ctx context.Context, order *ordermodel.SignedOrder, orderType OrderType, useServerTime bool) (*PostOrderResponse, error) {
	if order == nil {
		return nil, fmt.Errorf("order required")
	}
	if !c.HasApiCreds() {
		return nil, fmt.Errorf("api creds not configured")
	}
	body, err := c.postOrderBody(order, orderType)
	if err != nil {
		return nil, err
	}
	ts, err := c.timestampForAuth(ctx, useServerTime)
	if err != nil {
		return nil, err
	}
	headers, err := c.l2Headers(ts, http.MethodPost, "/order", body)
	if err != nil {
		return nil, err
	}

	var resp PostOrderResponse
	err = c.doJSON(ctx, http.MethodPost, "/order", nil, headers, body, &resp)
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		var rejected PostOrderResponse
		if json.Unmarshal([]byte(apiErr.Body), &rejected) == nil && rejected.ErrorMsg != "" {
			return &rejected, err
		}
	}
	if err != nil {
		return nil, err
	}
	return &resp, nil
}

// postOrderBody renders the /order payload. Owner is the api key.
func (c *Client) postOrderBody(order *ordermodel.SignedOrder, orderType OrderType) ([]byte, error) {
	c.mu.RLock()
	owner := ""
	if c.creds != nil {
		owner = c.creds.Key
	}
	c.mu.RUnlock()

	side := SideBuy
	if order.Side != nil && order.Side.Int64() == int64(ordermodel.SELL) {
		side = SideSell
	}
	return json.Marshal(signedOrderPayload{
		Owner:     owner,
		OrderType: orderType,
		Order: orderJSON{
			Salt:          order.Salt.Int64(),
			Maker:         order.Maker.Hex(),
			Signer:        order.Signer.Hex(),
			Taker:         order.Taker.Hex(),
			TokenID:       order.TokenId.String(),
			MakerAmount:   order.MakerAmount.String(),
			TakerAmount:   order.TakerAmount.String(),
			Expiration:    order.Expiration.String(),
			Nonce:         order.Nonce.String(),
			FeeRateBps:    order.FeeRateBps.String(),
			Side:          side,
			SignatureType: int(order.SignatureType.Int64()),
			Signature:     hexutil.Encode(order.Signature),
		},
	})
}
