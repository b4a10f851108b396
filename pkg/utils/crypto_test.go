package utils

import (
	"math/big"
	"testing"

	"github.com/ethereum/go-ethereum/common"
)

func TestIsValidAddress(t *testing.T) {
	valid := []string{
		"0x4bFb41d5B3570DeFd03C39a9A4D8dE6Bd8B8982E",
		"0x4bfb41d5b3570defd03c39a9a4d8de6bd8b8982e",
		"4bfb41d5b3570defd03c39a9a4d8de6bd8b8982e",
	}
	for _, addr := range valid {
		if !IsValidAddress(addr) {
			t.Errorf("Expected %s to be valid", addr)
		}
	}

	invalid := []string{
		"",
		"0x",
		"0x4bfb41d5",
		"0x4bfb41d5b3570defd03c39a9a4d8de6bd8b8982g",
		"not an address",
	}
	for _, addr := range invalid {
		if IsValidAddress(addr) {
			t.Errorf("Expected %s to be invalid", addr)
		}
	}

	t.Logf("✓ Address validation accepts 40 hex chars with or without prefix")
}

func TestNormalizeAddress(t *testing.T) {
	cases := []struct{ in, want string }{
		{"0x4bFb41d5B3570DeFd03C39a9A4D8dE6Bd8B8982E", "0x4bfb41d5b3570defd03c39a9a4d8de6bd8b8982e"},
		{"4bFb41d5B3570DeFd03C39a9A4D8dE6Bd8B8982E", "0x4bfb41d5b3570defd03c39a9a4d8de6bd8b8982e"},
		{"0x4bfb41d5b3570defd03c39a9a4d8de6bd8b8982e", "0x4bfb41d5b3570defd03c39a9a4d8de6bd8b8982e"},
	}
	for _, tc := range cases {
		if got := NormalizeAddress(tc.in); got != tc.want {
			t.Errorf("NormalizeAddress(%s) = %s, want %s", tc.in, got, tc.want)
		}
	}

	// Normalizing twice is a no-op.
	once := NormalizeAddress("0xABCDEF1234567890ABCDEF1234567890ABCDEF12")
	if NormalizeAddress(once) != once {
		t.Error("Normalization should be idempotent")
	}

	t.Logf("✓ Addresses normalize to lowercase 0x form")
}

func TestGetEventSignature(t *testing.T) {
	// The exchange fill event as emitted by both Polymarket deployments.
	orderFilled := "OrderFilled(bytes32,address,address,uint256,uint256,uint256,uint256,uint256)"
	if got := GetEventSignature(orderFilled); got != "0xd0a08e8c493f9c94f29311604c9de1b4e8c8d4c06bd0c789af57f2d65bfec0f6" {
		t.Errorf("Unexpected OrderFilled topic: %s", got)
	}

	// ERC20 Transfer as a second known vector.
	transfer := "Transfer(address,address,uint256)"
	if got := GetEventSignature(transfer); got != "0xddf252ad1be2c89b69c2b068fc378daa952ba7f163c4a11628f55a4df523b3ef" {
		t.Errorf("Unexpected Transfer topic: %s", got)
	}

	t.Logf("✓ Event signatures hash to their canonical topics")
}

func TestTopicToAddress(t *testing.T) {
	addr := common.HexToAddress("0x4bFb41d5B3570DeFd03C39a9A4D8dE6Bd8B8982E")
	topic := common.HexToHash("0x0000000000000000000000004bfb41d5b3570defd03c39a9a4d8de6bd8b8982e")

	if got := TopicToAddress(topic); got != addr {
		t.Errorf("TopicToAddress = %s, want %s", got.Hex(), addr.Hex())
	}

	t.Logf("✓ Indexed address recovered from padded topic")
}

func TestFormatTokenID(t *testing.T) {
	if got := FormatTokenID(nil); got != "" {
		t.Errorf("Expected empty string for nil id, got %q", got)
	}
	if got := FormatTokenID(big.NewInt(255)); got != "0xff" {
		t.Errorf("FormatTokenID(255) = %s, want 0xff", got)
	}
	if got := FormatTokenID(big.NewInt(0)); got != "0x0" {
		t.Errorf("FormatTokenID(0) = %s, want 0x0", got)
	}

	big256, ok := new(big.Int).SetString("71321045679252212594626385532706912750332728571942532289631379312455583992563", 10)
	if !ok {
		t.Fatal("Bad fixture")
	}
	formatted := FormatTokenID(big256)
	if len(formatted) < 3 || formatted[:2] != "0x" {
		t.Errorf("Unexpected format: %s", formatted)
	}

	t.Logf("✓ Token ids render as 0x hex")
}

func TestTokenIDToDecimal(t *testing.T) {
	// Chain-side hex and Gamma-side decimal round trip.
	n, _ := new(big.Int).SetString("71321045679252212594626385532706912750332728571942532289631379312455583992563", 10)
	decimal, err := TokenIDToDecimal(FormatTokenID(n))
	if err != nil {
		t.Fatalf("Round trip failed: %v", err)
	}
	if decimal != n.String() {
		t.Errorf("Round trip mismatch: %s != %s", decimal, n.String())
	}

	// Case and prefix are forgiven.
	if got, err := TokenIDToDecimal("0xFF"); err != nil || got != "255" {
		t.Errorf("TokenIDToDecimal(0xFF) = %s, %v", got, err)
	}
	if got, err := TokenIDToDecimal("ff"); err != nil || got != "255" {
		t.Errorf("TokenIDToDecimal(ff) = %s, %v", got, err)
	}

	for _, bad := range []string{"", "0x", "0xzz", "not hex"} {
		if _, err := TokenIDToDecimal(bad); err == nil {
			t.Errorf("Expected error for %q", bad)
		}
	}

	t.Logf("✓ Hex token ids convert to Gamma's decimal form")
}
