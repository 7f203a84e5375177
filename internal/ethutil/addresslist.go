// Package ethutil holds small address and key helpers shared by the commands.
package ethutil

import (
	"encoding/json"
	"fmt"
	"strings"
	"unicode"

	"github.com/ethereum/go-ethereum/common"
)

// ParseAddressList reads addresses from a JSON array of strings or from a
// list separated by commas, semicolons or whitespace. Repeats are dropped,
// keeping first-seen order. A blank input yields (nil, nil).
func ParseAddressList(raw string) ([]common.Address, error) {
	fields, err := splitList(raw)
	if err != nil || fields == nil {
		return nil, err
	}

	var out []common.Address
	seen := make(map[common.Address]bool, len(fields))
	for _, f := range fields {
		if !common.IsHexAddress(f) {
			return nil, fmt.Errorf("invalid hex address %q", f)
		}
		addr := common.HexToAddress(f)
		if !seen[addr] {
			seen[addr] = true
			out = append(out, addr)
		}
	}
	if len(out) == 0 {
		return nil, fmt.Errorf("no addresses found in %q", raw)
	}
	return out, nil
}

func splitList(raw string) ([]string, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil, nil
	}
	if raw[0] != '[' {
		return strings.FieldsFunc(raw, func(r rune) bool {
			return r == ',' || r == ';' || unicode.IsSpace(r)
		}), nil
	}
	var items []string
	if err := json.Unmarshal([]byte(raw), &items); err != nil {
		return nil, fmt.Errorf("invalid address array: %w", err)
	}
	fields := make([]string, 0, len(items))
	for _, it := range items {
		if it = strings.TrimSpace(it); it != "" {
			fields = append(fields, it)
		}
	}
	return fields, nil
}

func AddressSet(addrs []common.Address) map[common.Address]struct{} {
	set := make(map[common.Address]struct{}, len(addrs))
	for _, a := range addrs {
		set[a] = struct{}{}
	}
	return set
}

// AddressesToTopics left-pads each address to a 32-byte indexed topic.
func AddressesToTopics(addrs []common.Address) []common.Hash {
	topics := make([]common.Hash, len(addrs))
	for i, a := range addrs {
		topics[i] = common.BytesToHash(a.Bytes())
	}
	return topics
}

// HexStrings returns the checksummed form of each address.
func HexStrings(addrs []common.Address) []string {
	out := make([]string, len(addrs))
	for i, a := range addrs {
		out[i] = a.Hex()
	}
	return out
}

func JoinHex(addrs []common.Address) string {
	return strings.Join(HexStrings(addrs), ",")
}
