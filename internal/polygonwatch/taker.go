package polygonwatch

import (
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/shopspring/decimal"

	"poly-frontrun/internal/frontrun"
)

// Amounts on both legs of a fill use 6 decimals.
const amountDecimals = 6

// TakerTrade is the action a watched taker took in one fill.
type TakerTrade struct {
	Trader  common.Address
	TokenID string
	Side    frontrun.Side
	// SizeUSD is the collateral leg; Shares the outcome-token leg.
	SizeUSD decimal.Decimal
	Shares  decimal.Decimal
	Price   decimal.Decimal
}

// ClassifyTakerFill returns the trade of fill's taker when the taker is in
// takers, and nil otherwise.
//
// OrderFilled describes what each party paid: makerAsset/makerAmount is what
// the maker gave up, takerAsset/takerAmount what the taker gave up. A taker
// paying collateral bought the maker's token; a taker paying tokens sold them.
func ClassifyTakerFill(fill *FillEvent, takers map[common.Address]struct{}, collateral common.Address) (*TakerTrade, error) {
	if fill == nil {
		return nil, fmt.Errorf("fill required")
	}
	if _, ok := takers[fill.Taker]; !ok {
		return nil, nil
	}
	if fill.MakerAssetId == nil || fill.TakerAssetId == nil || fill.MakerAmountFilled == nil || fill.TakerAmountFilled == nil {
		return nil, fmt.Errorf("fill missing fields")
	}

	collateralID := new(big.Int).SetBytes(collateral.Bytes())
	isCollateral := func(assetID *big.Int) bool {
		// Some exchange deployments emit 0 as the collateral assetId.
		return assetID.Sign() == 0 || assetID.Cmp(collateralID) == 0
	}

	var side frontrun.Side
	switch {
	case isCollateral(fill.TakerAssetId):
		side = frontrun.SideBuy
	case isCollateral(fill.MakerAssetId):
		side = frontrun.SideSell
	default:
		// ERC20 asset ids fit in 160 bits; outcome token ids use the full word.
		makerIsAddr := fill.MakerAssetId.BitLen() <= 160
		takerIsAddr := fill.TakerAssetId.BitLen() <= 160
		switch {
		case takerIsAddr && !makerIsAddr:
			side = frontrun.SideBuy
		case makerIsAddr && !takerIsAddr:
			side = frontrun.SideSell
		default:
			return nil, fmt.Errorf("unable to classify maker/taker asset ids as collateral vs tokenId")
		}
	}

	trade := &TakerTrade{Trader: fill.Taker, Side: side}
	var usdUnits, shareUnits *big.Int
	if side == frontrun.SideBuy {
		trade.TokenID = fill.MakerAssetId.String()
		usdUnits, shareUnits = fill.TakerAmountFilled, fill.MakerAmountFilled
	} else {
		trade.TokenID = fill.TakerAssetId.String()
		usdUnits, shareUnits = fill.MakerAmountFilled, fill.TakerAmountFilled
	}
	trade.SizeUSD = decimal.NewFromBigInt(usdUnits, -amountDecimals)
	trade.Shares = decimal.NewFromBigInt(shareUnits, -amountDecimals)
	if trade.Shares.IsPositive() {
		trade.Price = trade.SizeUSD.DivRound(trade.Shares, 4)
	}
	return trade, nil
}
