// Package clob is a client for the Polymarket central limit order book REST
// API: market metadata, order books, order signing and submission.
package clob

import (
	"bytes"
	"context"
	"crypto/ecdsa"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
)

const (
	DefaultHost = "https://clob.polymarket.com"

	maxResponseBytes = 4 << 20
)

// APIError is a non-2xx answer from the CLOB.
type APIError struct {
	Method     string
	Path       string
	StatusCode int
	Body       string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("clob %s %s: status %d: %s", e.Method, e.Path, e.StatusCode, e.Body)
}

// Message returns the "error" (or "errorMsg") field of a JSON error body, or
// the raw body when it is not JSON.
func (e *APIError) Message() string {
	var v struct {
		Error    string `json:"error"`
		ErrorMsg string `json:"errorMsg"`
	}
	if json.Unmarshal([]byte(e.Body), &v) == nil {
		switch {
		case v.Error != "":
			return v.Error
		case v.ErrorMsg != "":
			return v.ErrorMsg
		}
	}
	return e.Body
}

type Client struct {
	host       string
	httpClient *http.Client

	chainID     int64
	privateKey  *ecdsa.PrivateKey
	signer      common.Address
	funder      common.Address
	signatureTy int // 0=EOA, 1=POLY_PROXY, 2=POLY_GNOSIS_SAFE

	mu    sync.RWMutex
	creds *ApiKeyCreds

	tickSizes tokenCache[string]
	feeRates  tokenCache[int]
	negRisk   tokenCache[bool]
}

// NewClient returns a client signing with privateKey. A zero funder means the
// signer holds the collateral itself.
func NewClient(host string, chainID int64, privateKey *ecdsa.PrivateKey, funder common.Address, signatureType int) (*Client, error) {
	host = strings.TrimRight(strings.TrimSpace(host), "/")
	if host == "" {
		host = DefaultHost
	}
	if u, err := url.Parse(host); err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return nil, fmt.Errorf("clob host must be an http(s) url, got %q", host)
	}
	if privateKey == nil {
		return nil, fmt.Errorf("private key required")
	}
	if signatureType < 0 || signatureType > 2 {
		return nil, fmt.Errorf("signature type must be 0, 1 or 2, got %d", signatureType)
	}
	signer := crypto.PubkeyToAddress(privateKey.PublicKey)
	if (funder == common.Address{}) {
		funder = signer
	}

	return &Client{
		host:        host,
		httpClient:  &http.Client{Timeout: 15 * time.Second},
		chainID:     chainID,
		privateKey:  privateKey,
		signer:      signer,
		funder:      funder,
		signatureTy: signatureType,
	}, nil
}

func (c *Client) Signer() common.Address { return c.signer }
func (c *Client) Funder() common.Address { return c.funder }

func (c *Client) SetApiCreds(creds ApiKeyCreds) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.creds = &creds
}

func (c *Client) HasApiCreds() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.creds.complete()
}

func (c *Client) GetServerTime(ctx context.Context) (int64, error) {
	var ts int64
	if err := c.doJSON(ctx, http.MethodGet, "/time", nil, nil, nil, &ts); err != nil {
		return 0, err
	}
	return ts, nil
}

// timestampForAuth returns the unix time to sign with. The venue rejects
// signatures whose timestamp drifts from its clock, so callers on hosts with
// unreliable clocks ask the server.
func (c *Client) timestampForAuth(ctx context.Context, useServerTime bool) (int64, error) {
	if useServerTime {
		return c.GetServerTime(ctx)
	}
	return time.Now().Unix(), nil
}

// doJSON performs one request. Non-2xx answers become *APIError; a nil out
// skips decoding.
func (c *Client) doJSON(ctx context.Context, method, path string, params url.Values, headers http.Header, body []byte, out any) error {
	target := c.host + path
	if len(params) > 0 {
		target += "?" + params.Encode()
	}

	var rd io.Reader
	if body != nil {
		rd = bytes.NewReader(body)
	}
	req, err := http.NewRequestWithContext(ctx, method, target, rd)
	if err != nil {
		return err
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	for k, vs := range headers {
		for _, v := range vs {
			req.Header.Add(k, v)
		}
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return fmt.Errorf("read %s response: %w", path, err)
	}
	raw = bytes.TrimSpace(raw)
	if resp.StatusCode/100 != 2 {
		return &APIError{Method: method, Path: path, StatusCode: resp.StatusCode, Body: string(raw)}
	}
	if out == nil || len(raw) == 0 {
		return nil
	}
	if err := json.Unmarshal(raw, out); err != nil {
		return fmt.Errorf("decode %s response: %w (body=%s)", path, err, raw)
	}
	return nil
}
