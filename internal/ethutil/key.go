package ethutil

import (
	"crypto/ecdsa"
	"fmt"
	"strings"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
)

// ParsePrivateKey accepts 64 hex characters with an optional 0x prefix and
// returns the key with its address.
func ParsePrivateKey(hexKey string) (*ecdsa.PrivateKey, common.Address, error) {
	hexKey = strings.TrimPrefix(strings.TrimSpace(hexKey), "0x")
	if hexKey == "" {
		return nil, common.Address{}, fmt.Errorf("private key missing")
	}
	if len(hexKey) != 64 {
		return nil, common.Address{}, fmt.Errorf("private key must be 64 hex characters, got %d", len(hexKey))
	}
	pk, err := crypto.HexToECDSA(hexKey)
	if err != nil {
		return nil, common.Address{}, fmt.Errorf("invalid private key: %w", err)
	}
	return pk, crypto.PubkeyToAddress(pk.PublicKey), nil
}
