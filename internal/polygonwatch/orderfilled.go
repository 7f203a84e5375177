// Package polygonwatch decodes Polymarket exchange OrderFilled logs and
// streams them from a Polygon websocket RPC.
package polygonwatch

import (
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"

	"poly-frontrun/internal/ethutil"
)

const orderFilledSig = "OrderFilled(bytes32,address,address,uint256,uint256,uint256,uint256,uint256)"

var OrderFilledTopic = crypto.Keccak256Hash([]byte(orderFilledSig))

// ExchangeAddresses are the Polygon CTF exchange and neg-risk CTF exchange.
var ExchangeAddresses = []common.Address{
	common.HexToAddress("0x4bFb41d5B3570DeFd03C39a9A4D8dE6Bd8B8982E"),
	common.HexToAddress("0xC5d563A36AE78145C45a50134d48A1215220f80a"),
}

// CollateralUSDC is bridged USDC.e on Polygon.
var CollateralUSDC = common.HexToAddress("0x2791Bca1f2de4661ED88A30C99A7a9449Aa84174")

// FillEvent is one decoded OrderFilled log. Amounts are in 1e6 units.
type FillEvent struct {
	TxHash       common.Hash
	BlockHash    common.Hash
	BlockNumber  uint64
	LogIndex     uint
	Removed      bool
	Exchange     common.Address
	ReceivedAtMs int64

	OrderHash common.Hash
	Maker     common.Address
	Taker     common.Address

	MakerAssetId      *big.Int
	TakerAssetId      *big.Int
	MakerAmountFilled *big.Int
	TakerAmountFilled *big.Int
	Fee               *big.Int
}

// FilterQuery selects OrderFilled logs on the exchanges whose taker is one of
// takers. An empty takers list matches every taker.
func FilterQuery(takers []common.Address) ethereum.FilterQuery {
	var takerTopics []common.Hash
	if len(takers) > 0 {
		takerTopics = ethutil.AddressesToTopics(takers)
	}
	return ethereum.FilterQuery{
		Addresses: ExchangeAddresses,
		Topics:    [][]common.Hash{{OrderFilledTopic}, nil, nil, takerTopics},
	}
}

func DecodeOrderFilledLog(vLog types.Log) (*FillEvent, error) {
	// topics:
	// 0: event sig
	// 1: orderHash (bytes32 indexed)
	// 2: maker (address indexed)
	// 3: taker (address indexed)
	if len(vLog.Topics) < 4 {
		return nil, fmt.Errorf("unexpected topics len=%d", len(vLog.Topics))
	}
	if vLog.Topics[0] != OrderFilledTopic {
		return nil, fmt.Errorf("not an OrderFilled log: topic0=%s", vLog.Topics[0].Hex())
	}
	if len(vLog.Data) < 32*5 {
		return nil, fmt.Errorf("unexpected data len=%d", len(vLog.Data))
	}

	word := func(i int) *big.Int {
		return new(big.Int).SetBytes(vLog.Data[i*32 : (i+1)*32])
	}

	return &FillEvent{
		TxHash:      vLog.TxHash,
		BlockHash:   vLog.BlockHash,
		BlockNumber: vLog.BlockNumber,
		LogIndex:    vLog.Index,
		Removed:     vLog.Removed,
		Exchange:    vLog.Address,

		OrderHash: vLog.Topics[1],
		Maker:     common.BytesToAddress(vLog.Topics[2].Bytes()),
		Taker:     common.BytesToAddress(vLog.Topics[3].Bytes()),

		MakerAssetId:      word(0),
		TakerAssetId:      word(1),
		MakerAmountFilled: word(2),
		TakerAmountFilled: word(3),
		Fee:               word(4),
	}, nil
}
