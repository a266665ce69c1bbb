package verify

import (
	"crypto/sha256"
	"encoding/base64"
	"fmt"

	"github.com/ethereum/go-ethereum/crypto"
	"golang.org/x/crypto/ripemd160"

	"tokengate/internal/errs"
)

const compressedPubKeyLen = 33

// aminoSignDoc builds the canonical offline-sign document for arbitrary
// data. The literal keeps the sorted-key compact JSON encoding wallets hash
// before signing.
func aminoSignDoc(signer string, data []byte) []byte {
	return []byte(fmt.Sprintf(
		`{"account_number":"0","chain_id":"","fee":{"amount":[],"gas":"0"},"memo":"","msgs":[{"type":"sign/MsgSignData","value":{"data":"%s","signer":"%s"}}],"sequence":"0"}`,
		base64.StdEncoding.EncodeToString(data), signer,
	))
}

// verifyAmino checks a secp256k1 signature over the offline-sign document
// and requires the pubkey-derived bech32 address to equal the signer.
func (v *Verifier) verifyAmino(signer string, payload []byte, pubKeyB64, sigB64 string) error {
	pubKey, err := base64.StdEncoding.DecodeString(pubKeyB64)
	if err != nil || len(pubKey) != compressedPubKeyLen {
		return errs.ErrInvalidSignature
	}
	sig, err := base64.StdEncoding.DecodeString(sigB64)
	if err != nil || len(sig) != crypto.SignatureLength-1 {
		return errs.ErrInvalidSignature
	}

	digest := sha256.Sum256(aminoSignDoc(signer, payload))
	if !crypto.VerifySignature(pubKey, digest[:], sig) {
		return errs.ErrInvalidSignature
	}

	derived, err := pubKeyAddress(pubKey, v.signerPrefix)
	if err != nil {
		return err
	}
	if derived != signer {
		return errs.ErrInvalidSignature
	}
	return nil
}

// pubKeyAddress derives the bech32 account address of a compressed
// secp256k1 public key (ripemd160 over sha256).
func pubKeyAddress(pubKey []byte, prefix string) (string, error) {
	sha := sha256.Sum256(pubKey)
	hasher := ripemd160.New()
	hasher.Write(sha[:])
	return EncodeBech32(prefix, hasher.Sum(nil))
}
