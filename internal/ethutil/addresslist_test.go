package ethutil

import (
	"testing"

	"github.com/ethereum/go-ethereum/common"
)

func TestParseAddressList(t *testing.T) {
	t.Run("empty", func(t *testing.T) {
		got, err := ParseAddressList("   \n\t")
		if err != nil {
			t.Fatalf("unexpected err: %v", err)
		}
		if got != nil {
			t.Fatalf("expected nil, got %#v", got)
		}
	})

	t.Run("single", func(t *testing.T) {
		got, err := ParseAddressList("0x0000000000000000000000000000000000000001")
		if err != nil {
			t.Fatalf("unexpected err: %v", err)
		}
		if len(got) != 1 || got[0] != common.HexToAddress("0x1") {
			t.Fatalf("unexpected result: %#v", got)
		}
	})

	t.Run("csv+whitespace+dedupe", func(t *testing.T) {
		got, err := ParseAddressList("0x0000000000000000000000000000000000000001, 0x0000000000000000000000000000000000000002\n0x0000000000000000000000000000000000000001")
		if err != nil {
			t.Fatalf("unexpected err: %v", err)
		}
		if len(got) != 2 {
			t.Fatalf("expected 2, got %d: %#v", len(got), got)
		}
		if got[0] != common.HexToAddress("0x1") || got[1] != common.HexToAddress("0x2") {
			t.Fatalf("unexpected order: %#v", got)
		}
	})

	t.Run("invalid", func(t *testing.T) {
		_, err := ParseAddressList("0xnotanaddress")
		if err == nil {
			t.Fatalf("expected err")
		}
	})
}

func TestParseAddressList_JSONArray(t *testing.T) {
	got, err := ParseAddressList(`["0x0000000000000000000000000000000000000002", "0x0000000000000000000000000000000000000002", "0x0000000000000000000000000000000000000003"]`)
	if err != nil {
		t.Fatalf("unexpected err: %v", err)
	}
	if len(got) != 2 || got[0] != common.HexToAddress("0x2") || got[1] != common.HexToAddress("0x3") {
		t.Fatalf("unexpected result: %#v", got)
	}

	if _, err := ParseAddressList(`["0x2",`); err == nil {
		t.Fatalf("expected err for malformed array")
	}
	if _, err := ParseAddressList(`[]`); err == nil {
		t.Fatalf("expected err for empty array")
	}
}

func TestAddressesToTopics(t *testing.T) {
	a := common.HexToAddress("0x00000000000000000000000000000000000000ff")
	topics := AddressesToTopics([]common.Address{a})
	if len(topics) != 1 || topics[0] != common.HexToHash("0xff") {
		t.Fatalf("unexpected topics: %#v", topics)
	}
	if got := JoinHex([]common.Address{a, common.HexToAddress("0x1")}); got != a.Hex()+",0x0000000000000000000000000000000000000001" {
		t.Fatalf("JoinHex: %s", got)
	}
	if got := HexStrings(nil); len(got) != 0 {
		t.Fatalf("HexStrings(nil): %#v", got)
	}
	if _, ok := AddressSet([]common.Address{a})[a]; !ok {
		t.Fatalf("AddressSet missing address")
	}
}

func TestParsePrivateKey(t *testing.T) {
	// Well-known hardhat account #0.
	const hexKey = "0xac0974bec39a17e36ba4a6b4d238ff944bacb478cbed5efcae784d7bf4f2ff80"
	pk, addr, err := ParsePrivateKey(hexKey)
	if err != nil {
		t.Fatalf("unexpected err: %v", err)
	}
	if pk == nil || addr != common.HexToAddress("0xf39Fd6e51aad88F6F4ce6aB8827279cffFb92266") {
		t.Fatalf("address mismatch: %s", addr.Hex())
	}

	for _, bad := range []string{"", "0x1234", "zz" + hexKey[4:]} {
		if _, _, err := ParsePrivateKey(bad); err == nil {
			t.Fatalf("expected err for %q", bad)
		}
	}
}
