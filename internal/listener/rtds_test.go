package listener

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"poly-frontrun/internal/frontrun"
	"poly-frontrun/internal/rtds"
)

func tradeMsg(payload string) rtds.Message {
	return rtds.Message{Topic: rtds.TopicActivity, Type: rtds.TypeTrades, Payload: json.RawMessage(payload)}
}

func TestRTDSSource_FiltersWallets(t *testing.T) {
	now := time.UnixMilli(1_760_000_000_000)
	msgs := make(chan rtds.Message, 8)
	msgs <- rtds.Message{Topic: "crypto_prices", Type: "update", Payload: json.RawMessage(`{}`)}
	msgs <- tradeMsg(`{"asset":"9","side":"BUY","size":10,"price":0.5,"proxyWallet":"0x2222222222222222222222222222222222222222"}`)
	msgs <- tradeMsg(`{"asset":"9","side":"HOLD","size":10,"price":0.5,"proxyWallet":"0x1111111111111111111111111111111111111111"}`)
	msgs <- tradeMsg(`{"asset":"9","conditionId":"0xc","outcome":"Yes","outcomeIndex":0,"side":"sell","size":"400","price":"0.25","proxyWallet":"0x1111111111111111111111111111111111111111","transactionHash":"0xbeef"}`)
	close(msgs)

	var gotSubs []rtds.Subscription
	src := &RTDSSource{
		Wallets: []common.Address{target},
		Log:     zerolog.Nop(),
		now:     func() time.Time { return now },
		start: func(ctx context.Context, url string, subs []rtds.Subscription, opts rtds.Options) <-chan rtds.Message {
			gotSubs = subs
			return msgs
		},
	}

	out := make(chan frontrun.TradeSignal, 4)
	require.NoError(t, src.Run(context.Background(), out))
	require.Equal(t, []rtds.Subscription{rtds.ActivityTrades()}, gotSubs)
	require.Len(t, out, 1)

	sig := <-out
	assert.Equal(t, "9", sig.TokenID)
	assert.Equal(t, "0xc", sig.MarketID)
	assert.Equal(t, frontrun.SideSell, sig.Side)
	assert.Equal(t, frontrun.OutcomeYes, sig.Outcome)
	assert.Equal(t, "100", sig.SizeUSD.String())
	assert.Equal(t, now, sig.DetectedAt)
	assert.Equal(t, common.HexToHash("0xbeef"), sig.TxHash)
	assert.Equal(t, SourceRTDS, sig.Source)
}

func TestRTDSSource_RequiresWallets(t *testing.T) {
	require.Error(t, (&RTDSSource{}).Run(context.Background(), make(chan frontrun.TradeSignal)))
}
