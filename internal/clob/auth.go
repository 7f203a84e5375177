package clob

import (
	"context"
	"crypto/ecdsa"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"fmt"
	"net/http"
	"strconv"
	"strings"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/common/math"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/signer/core/apitypes"
)

const clobAuthMessage = "This message attests that I control the given wallet"

// ApiKeyCreds authenticate L2 (trading) requests.
type ApiKeyCreds struct {
	Key        string `json:"key"`
	Secret     string `json:"secret"`
	Passphrase string `json:"passphrase"`
}

func (c *ApiKeyCreds) complete() bool {
	return c != nil && c.Key != "" && c.Secret != "" && c.Passphrase != ""
}

// CreateOrDeriveApiKey returns the key bound to nonce, creating it when none
// exists yet. Deriving first avoids NONCE_ALREADY_USED on create.
func (c *Client) CreateOrDeriveApiKey(ctx context.Context, nonce uint64, useServerTime bool) (ApiKeyCreds, error) {
	creds, err := c.apiKey(ctx, http.MethodGet, "/auth/derive-api-key", nonce, useServerTime)
	if err == nil && creds.Key != "" {
		return creds, nil
	}
	return c.apiKey(ctx, http.MethodPost, "/auth/api-key", nonce, useServerTime)
}

func (c *Client) apiKey(ctx context.Context, method, path string, nonce uint64, useServerTime bool) (ApiKeyCreds, error) {
	ts, err := c.timestampForAuth(ctx, useServerTime)
	if err != nil {
		return ApiKeyCreds{}, err
	}
	headers, err := c.l1Headers(ts, nonce)
	if err != nil {
		return ApiKeyCreds{}, err
	}
	var resp struct {
		APIKey     string `json:"apiKey"`
		Secret     string `json:"secret"`
		Passphrase string `json:"passphrase"`
	}
	if err := c.doJSON(ctx, method, path, nil, headers, nil, &resp); err != nil {
		return ApiKeyCreds{}, err
	}
	return ApiKeyCreds{Key: resp.APIKey, Secret: resp.Secret, Passphrase: resp.Passphrase}, nil
}

// clobAuthTypedData is the EIP-712 payload signed for L1 (key management)
// requests.
func clobAuthTypedData(signer common.Address, chainID, timestamp int64, nonce uint64) apitypes.TypedData {
	return apitypes.TypedData{
		Types: apitypes.Types{
			"EIP712Domain": {
				{Name: "name", Type: "string"},
				{Name: "version", Type: "string"},
				{Name: "chainId", Type: "uint256"},
			},
			"ClobAuth": {
				{Name: "address", Type: "address"},
				{Name: "timestamp", Type: "string"},
				{Name: "nonce", Type: "uint256"},
				{Name: "message", Type: "string"},
			},
		},
		PrimaryType: "ClobAuth",
		Domain: apitypes.TypedDataDomain{
			Name:    "ClobAuthDomain",
			Version: "1",
			ChainId: math.NewHexOrDecimal256(chainID),
		},
		Message: apitypes.TypedDataMessage{
			"address":   signer.Hex(),
			"timestamp": strconv.FormatInt(timestamp, 10),
			"nonce":     strconv.FormatUint(nonce, 10),
			"message":   clobAuthMessage,
		},
	}
}

func signClobAuth(pk *ecdsa.PrivateKey, signer common.Address, chainID, timestamp int64, nonce uint64) (string, error) {
	digest, _, err := apitypes.TypedDataAndHash(clobAuthTypedData(signer, chainID, timestamp, nonce))
	if err != nil {
		return "", fmt.Errorf("clob auth digest: %w", err)
	}
	sig, err := crypto.Sign(digest, pk)
	if err != nil {
		return "", err
	}
	sig[64] += 27
	return hexutil.Encode(sig), nil
}

// decodeSecret accepts standard or url-safe base64 and ignores stray
// characters, matching the reference client.
func decodeSecret(secret string) ([]byte, error) {
	clean := strings.Map(func(r rune) rune {
		switch {
		case r == '-':
			return '+'
		case r == '_':
			return '/'
		case r >= 'A' && r <= 'Z', r >= 'a' && r <= 'z', r >= '0' && r <= '9', r == '+', r == '/', r == '=':
			return r
		}
		return -1
	}, secret)
	if rem := len(clean) % 4; rem != 0 {
		clean += strings.Repeat("=", 4-rem)
	}
	b, err := base64.StdEncoding.DecodeString(clean)
	if err != nil {
		return nil, fmt.Errorf("decode api secret: %w", err)
	}
	return b, nil
}

// signRequest returns the url-safe base64 HMAC-SHA256 of
// timestamp+method+path+body under the api secret.
func signRequest(secret string, timestamp int64, method, path string, body []byte) (string, error) {
	key, err := decodeSecret(secret)
	if err != nil {
		return "", err
	}
	mac := hmac.New(sha256.New, key)
	mac.Write([]byte(strconv.FormatInt(timestamp, 10)))
	mac.Write([]byte(method))
	mac.Write([]byte(path))
	mac.Write(body)
	return base64.URLEncoding.EncodeToString(mac.Sum(nil)), nil
}

func (c *Client) l1Headers(timestamp int64, nonce uint64) (http.Header, error) {
	sig, err := signClobAuth(c.privateKey, c.signer, c.chainID, timestamp, nonce)
	if err != nil {
		return nil, err
	}
	h := make(http.Header)
	h.Set("POLY_ADDRESS", c.signer.Hex())
	h.Set("POLY_SIGNATURE", sig)
	h.Set("POLY_TIMESTAMP", strconv.FormatInt(timestamp, 10))
	h.Set("POLY_NONCE", strconv.FormatUint(nonce, 10))
	return h, nil
}

func (c *Client) l2Headers(timestamp int64, method, path string, body []byte) (http.Header, error) {
	c.mu.RLock()
	creds := c.creds
	c.mu.RUnlock()
	if creds == nil {
		return nil, fmt.Errorf("api creds not set")
	}
	sig, err := signRequest(creds.Secret, timestamp, method, path, body)
	if err != nil {
		return nil, err
	}
	h := make(http.Header)
	h.Set("POLY_ADDRESS", c.signer.Hex())
	h.Set("POLY_SIGNATURE", sig)
	h.Set("POLY_TIMESTAMP", strconv.FormatInt(timestamp, 10))
	h.Set("POLY_API_KEY", creds.Key)
	h.Set("POLY_PASSPHRASE", creds.Passphrase)
	return h, nil
}
