// Package verify validates signed wallet-binding submissions. Two credential
// schemes are supported, selected by the shape of the submitted address:
// hex addresses carry an ECDSA personal-sign signature, prefixed (bech32)
// addresses carry an offline amino signature plus the signer's public key.
package verify

import (
	"fmt"
	"strings"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/crypto"

	"tokengate/internal/errs"
)

// Request is a signed binding submission.
type Request struct {
	Nonce     int64
	Address   string
	Signature string
	UserID    string
	// PubKey and ChainPrefix are required for bech32 addresses only.
	PubKey      string
	ChainPrefix string
}

// Result is the canonical identity recovered from a valid submission.
type Result struct {
	// Address as submitted.
	Address string
	// EthAddress is the hex-style address used for ledger lookups. For hex
	// submissions it is the checksummed form of the input; for bech32 ones
	// it is derived from the decoded address bytes.
	EthAddress string
}

type Verifier struct {
	// signerPrefix is the bech32 prefix the pubkey-derived signer address
	// must carry.
	signerPrefix string
}

func New(signerPrefix string) *Verifier {
	return &Verifier{signerPrefix: signerPrefix}
}

// Verify checks the signature over the binding payload and cross-checks the
// recovered signer against the submitted address.
func (v *Verifier) Verify(req Request) (Result, error) {
	payload := signPayload(req.Address, req.Nonce, req.UserID)

	if strings.HasPrefix(req.Address, "0x") {
		recovered, err := recoverPersonalSign(payload, req.Signature)
		if err != nil {
			return Result{}, err
		}
		if !strings.EqualFold(recovered, req.Address) {
			return Result{}, errs.ErrInvalidSignature
		}
		return Result{
			Address:    req.Address,
			EthAddress: common.HexToAddress(req.Address).Hex(),
		}, nil
	}

	if req.PubKey == "" || req.ChainPrefix == "" {
		return Result{}, errs.ErrInvalidSignature
	}
	data, err := DecodeBech32(req.Address, req.ChainPrefix)
	if err != nil {
		return Result{}, err
	}
	if err := v.verifyAmino(req.Address, payload, req.PubKey, req.Signature); err != nil {
		return Result{}, err
	}
	return Result{Address: req.Address, EthAddress: HexAddress(data)}, nil
}

// signPayload is the deterministic document the wallet signs. Field order
// matches the web client's JSON serialization.
func signPayload(address string, nonce int64, userID string) []byte {
	return []byte(fmt.Sprintf(`{"address":%q,"nonce":%d,"userId":%q}`, address, nonce, userID))
}

// recoverPersonalSign recovers the signer of an EIP-191 personal_sign
// signature over the payload.
func recoverPersonalSign(payload []byte, signature string) (string, error) {
	sig, err := hexutil.Decode(signature)
	if err != nil || len(sig) != crypto.SignatureLength {
		return "", errs.ErrInvalidSignature
	}
	sig = append([]byte(nil), sig...)
	if sig[crypto.RecoveryIDOffset] >= 27 {
		sig[crypto.RecoveryIDOffset] -= 27
	}

	msg := fmt.Sprintf("\x19Ethereum Signed Message:\n%d%s", len(payload), payload)
	hash := crypto.Keccak256([]byte(msg))

	pub, err := crypto.SigToPub(hash, sig)
	if err != nil {
		return "", errs.ErrInvalidSignature
	}
	return crypto.PubkeyToAddress(*pub).Hex(), nil
}
