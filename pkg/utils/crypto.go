package utils

import (
	"fmt"
	"math/big"
	"strings"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
)

// IsValidAddress checks if a string is a valid Ethereum address
func IsValidAddress(address string) bool {
	return common.IsHexAddress(address)
}

// NormalizeAddress normalizes an address to lowercase with 0x prefix
func NormalizeAddress(address string) string {
	if !strings.HasPrefix(address, "0x") {
		address = "0x" + address
	}
	return strings.ToLower(address)
}

// GetEventSignature returns the keccak256 hash of an event signature
func GetEventSignature(signature string) string {
	hash := crypto.Keccak256Hash([]byte(signature))
	return hash.Hex()
}

// TopicToAddress extracts the address from a 32-byte indexed topic.
// Indexed address parameters are left-padded, the address occupies the
// last 20 bytes.
func TopicToAddress(topic common.Hash) common.Address {
	return common.BytesToAddress(topic.Bytes()[12:])
}

// FormatTokenID renders an asset identifier as a 0x-prefixed hex string
func FormatTokenID(id *big.Int) string {
	if id == nil {
		return ""
	}
	return fmt.Sprintf("0x%x", id)
}

// TokenIDToDecimal converts a hex token identifier to its decimal string
// form, which is what the Gamma API expects in clob_token_ids queries.
func TokenIDToDecimal(tokenID string) (string, error) {
	trimmed := strings.TrimPrefix(strings.ToLower(tokenID), "0x")
	if trimmed == "" {
		return "", fmt.Errorf("empty token id")
	}
	n, ok := new(big.Int).SetString(trimmed, 16)
	if !ok {
		return "", fmt.Errorf("invalid hex token id: %s", tokenID)
	}
	return n.String(), nil
}
