package verify

import (
	"fmt"

	"github.com/btcsuite/btcd/btcutil/bech32"
	"github.com/ethereum/go-ethereum/common"

	"tokengate/internal/errs"
)

// DecodeBech32 decodes a prefixed address to its raw bytes, validating the
// human-readable prefix.
func DecodeBech32(address, prefix string) ([]byte, error) {
	hrp, words, err := bech32.Decode(address)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", errs.ErrInvalidAddress, err)
	}
	if hrp != prefix {
		return nil, errs.ErrInvalidAddress
	}
	data, err := bech32.ConvertBits(words, 5, 8, false)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", errs.ErrInvalidAddress, err)
	}
	return data, nil
}

// EncodeBech32 encodes raw address bytes under a prefix.
func EncodeBech32(prefix string, data []byte) (string, error) {
	words, err := bech32.ConvertBits(data, 8, 5, true)
	if err != nil {
		return "", err
	}
	return bech32.Encode(prefix, words)
}

// HexAddress maps raw address bytes to the checksummed hex form used for
// ledger lookups.
func HexAddress(data []byte) string {
	return common.BytesToAddress(data).Hex()
}
