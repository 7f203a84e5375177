package clob

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
	ordermodel "github.com/polymarket/go-order-utils/pkg/model"
	"github.com/shopspring/decimal"
)

func TestTickSizeResp_UnmarshalNumber(t *testing.T) {
	var resp tickSizeResp
	if err := json.Unmarshal([]byte(`{"minimum_tick_size":0.01}`), &resp); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got, want := string(resp.MinimumTickSize), "0.01"; got != want {
		t.Fatalf("minimum_tick_size mismatch: got %q want %q", got, want)
	}
}

func TestTickSizeResp_UnmarshalStringAndCanonicalize(t *testing.T) {
	var resp tickSizeResp
	if err := json.Unmarshal([]byte(`{"minimum_tick_size":"0.0100"}`), &resp); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got, want := string(resp.MinimumTickSize), "0.01"; got != want {
		t.Fatalf("minimum_tick_size mismatch: got %q want %q", got, want)
	}
}

func newTestClient(t *testing.T, handler http.Handler) *Client {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)

	pk, err := crypto.GenerateKey()
	if err != nil {
		t.Fatalf("generate key: %v", err)
	}
	c, err := NewClient(srv.URL, 137, pk, common.Address{}, 0)
	if err != nil {
		t.Fatalf("new client: %v", err)
	}
	c.SetApiCreds(ApiKeyCreds{Key: "key", Secret: "AAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAA=", Passphrase: "pass"})
	return c
}

func TestNewClient_Validates(t *testing.T) {
	pk, _ := crypto.GenerateKey()
	if _, err := NewClient("ftp://x", 137, pk, common.Address{}, 0); err == nil {
		t.Fatalf("expected host error")
	}
	if _, err := NewClient("", 137, nil, common.Address{}, 0); err == nil {
		t.Fatalf("expected private key error")
	}
	if _, err := NewClient("", 137, pk, common.Address{}, 3); err == nil {
		t.Fatalf("expected signature type error")
	}
	c, err := NewClient("", 137, pk, common.Address{}, 0)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if c.Funder() != c.Signer() {
		t.Fatalf("funder should default to signer")
	}
}

func TestGetMarket_CachesTokenMetadata(t *testing.T) {
	c := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/markets/0xabc" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		_, _ = w.Write([]byte(`{"condition_id":"0xabc","question":"Will it rain?","active":true,"closed":false,
			"minimum_tick_size":0.001,"neg_risk":true,
			"tokens":[{"token_id":"1","outcome":"Yes","price":0.4},{"token_id":"2","outcome":"No","price":0.6}]}`))
	}))

	m, err := c.GetMarket(context.Background(), "0xabc")
	if err != nil {
		t.Fatalf("get market: %v", err)
	}
	if !m.Active || m.Closed || m.Resolved() {
		t.Fatalf("unexpected market state: %+v", m)
	}
	if tok, ok := m.Token("2"); !ok || tok.Outcome != "No" {
		t.Fatalf("token lookup failed: %+v", tok)
	}

	// Served from cache: the handler above would flag any other path.
	ts, err := c.GetTickSize(context.Background(), "1")
	if err != nil || ts != "0.001" {
		t.Fatalf("tick size: got %q err=%v", ts, err)
	}
	nr, err := c.GetNegRisk(context.Background(), "2")
	if err != nil || !nr {
		t.Fatalf("neg risk: got %v err=%v", nr, err)
	}
}

func TestDoJSON_ReturnsAPIError(t *testing.T) {
	c := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
		_, _ = w.Write([]byte(`{"error":"No orderbook exists for the requested token id"}`))
	}))

	_, err := c.GetOrderBook(context.Background(), "123")
	var apiErr *APIError
	if !errors.As(err, &apiErr) {
		t.Fatalf("expected *APIError, got %T %v", err, err)
	}
	if apiErr.StatusCode != http.StatusNotFound || apiErr.Path != "/book" {
		t.Fatalf("unexpected api error: %+v", apiErr)
	}
	if got, want := apiErr.Message(), "No orderbook exists for the requested token id"; got != want {
		t.Fatalf("message mismatch: got %q want %q", got, want)
	}
}

func TestCreateSignedOrderAtPrice_BuyAndPost(t *testing.T) {
	var posted signedOrderPayload
	c := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/tick-size":
			_, _ = w.Write([]byte(`{"minimum_tick_size":"0.01"}`))
		case "/fee-rate":
			_, _ = w.Write([]byte(`{"base_fee":0}`))
		case "/neg-risk":
			_, _ = w.Write([]byte(`{"neg_risk":false}`))
		case "/order":
			if r.Header.Get("POLY_API_KEY") != "key" {
				t.Errorf("missing l2 headers")
			}
			if err := json.NewDecoder(r.Body).Decode(&posted); err != nil {
				t.Errorf("decode body: %v", err)
			}
			_, _ = w.Write([]byte(`{"success":true,"errorMsg":"","orderID":"0xorder","status":"matched"}`))
		default:
			t.Errorf("unexpected path %s", r.URL.Path)
			w.WriteHeader(http.StatusNotFound)
		}
	}))

	res, err := c.CreateSignedOrderAtPrice(context.Background(), "123", SideBuy,
		decimal.RequireFromString("1000"), decimal.RequireFromString("0.50"), func() int64 { return 7 })
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if got, want := res.MakerAmount.String(), "500000000"; got != want {
		t.Fatalf("maker mismatch: got %s want %s", got, want)
	}
	if got, want := res.TakerAmount.String(), "1000000000"; got != want {
		t.Fatalf("taker mismatch: got %s want %s", got, want)
	}
	if res.Price != "0.5" {
		t.Fatalf("price mismatch: got %s", res.Price)
	}

	resp, err := c.PostOrder(context.Background(), res.SignedOrder, OrderTypeFOK, false)
	if err != nil {
		t.Fatalf("post: %v", err)
	}
	if !resp.Filled() || resp.OrderID != "0xorder" {
		t.Fatalf("unexpected response: %+v", resp)
	}
	if posted.OrderType != OrderTypeFOK || posted.Owner != "key" || posted.Order.Side != SideBuy {
		t.Fatalf("unexpected payload: %+v", posted)
	}
	if posted.Order.MakerAmount != "500000000" {
		t.Fatalf("payload maker mismatch: %s", posted.Order.MakerAmount)
	}
}

func TestPostOrder_KilledFOK(t *testing.T) {
	c := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		_, _ = w.Write([]byte(`{"success":false,"errorMsg":"order couldn't be fully filled. FOK orders are fully filled or killed."}`))
	}))
	pk, _ := crypto.GenerateKey()
	od := &ordermodel.OrderData{
		Maker: c.Funder().Hex(), Taker: zeroAddressHex, TokenId: "123",
		MakerAmount: "1000000", TakerAmount: "2000000", FeeRateBps: "0", Nonce: "0",
		Signer: crypto.PubkeyToAddress(pk.PublicKey).Hex(), Expiration: "0", Side: ordermodel.BUY,
	}
	signed, err := signOrder(137, pk, od, ordermodel.CTFExchange, func() int64 { return 1 })
	if err != nil {
		t.Fatalf("sign: %v", err)
	}

	resp, err := c.PostOrder(context.Background(), signed, OrderTypeFOK, false)
	var apiErr *APIError
	if !errors.As(err, &apiErr) {
		t.Fatalf("expected *APIError, got %v", err)
	}
	if resp == nil || resp.Filled() || resp.ErrorMsg == "" {
		t.Fatalf("expected decoded rejection, got %+v", resp)
	}
}

func TestPostOrderResponse_Filled(t *testing.T) {
	if (&PostOrderResponse{Success: true, ErrorMsg: "killed"}).Filled() {
		t.Fatalf("success with errorMsg must not count as filled")
	}
	var nilResp *PostOrderResponse
	if nilResp.Filled() {
		t.Fatalf("nil response must not count as filled")
	}
}

func TestGetBalanceAllowance(t *testing.T) {
	c := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if got := r.URL.Query().Get("asset_type"); got != AssetCollateral {
			t.Errorf("asset_type mismatch: %q", got)
		}
		_, _ = w.Write([]byte(`{"balance":"12345678","allowances":{"0x4bFb41d5B3570DeFd03C39a9A4D8dE6Bd8B8982E":"115792089237316195423570985008687907853269984665640564039457584007913129639935"}}`))
	}))

	ba, err := c.GetBalanceAllowance(context.Background(), AssetCollateral, "", false)
	if err != nil {
		t.Fatalf("balance allowance: %v", err)
	}
	usd, err := ba.BalanceUSD()
	if err != nil {
		t.Fatalf("balance usd: %v", err)
	}
	if got, want := usd.String(), "12.345678"; got != want {
		t.Fatalf("balance mismatch: got %s want %s", got, want)
	}
	if len(ba.Allowances) != 1 {
		t.Fatalf("allowances mismatch: %+v", ba.Allowances)
	}
}

func TestGetOrderBook_SeedsTokenMetadata(t *testing.T) {
	var calls int
	c := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		if r.URL.Path != "/book" || r.URL.Query().Get("token_id") != "9" {
			t.Errorf("unexpected request %s", r.URL)
		}
		_, _ = w.Write([]byte(`{"asset_id":"9","tick_size":"0.0010","neg_risk":true,
			"bids":[{"price":"0.40","size":"10"}],"asks":[{"price":"0.60","size":"5"}]}`))
	}))

	book, err := c.GetOrderBook(context.Background(), "9")
	if err != nil {
		t.Fatalf("get book: %v", err)
	}
	if len(book.Asks) != 1 || book.Asks[0].Price != "0.60" {
		t.Fatalf("unexpected book %+v", book)
	}
	ts, err := c.GetTickSize(context.Background(), "9")
	if err != nil || ts != "0.001" {
		t.Fatalf("tick size: got %q err=%v", ts, err)
	}
	if nr, err := c.GetNegRisk(context.Background(), "9"); err != nil || !nr {
		t.Fatalf("neg risk: got %v err=%v", nr, err)
	}
	if calls != 1 {
		t.Fatalf("calls=%d, metadata should come from the book", calls)
	}
}

func TestTokenCache_FetchesOnce(t *testing.T) {
	var tc tokenCache[int]
	fetches := 0
	fetch := func(context.Context) (int, error) {
		fetches++
		return 42, nil
	}
	for i := 0; i < 3; i++ {
		v, err := tc.load(context.Background(), "a", fetch)
		if err != nil || v != 42 {
			t.Fatalf("load: %d %v", v, err)
		}
	}
	if fetches != 1 {
		t.Fatalf("fetches=%d, want 1", fetches)
	}
	if _, err := tc.load(context.Background(), "b", func(context.Context) (int, error) { return 0, errors.New("boom") }); err == nil {
		t.Fatalf("expected fetch error")
	}
	if _, ok := tc.get("b"); ok {
		t.Fatalf("failed fetch must not be cached")
	}
}
