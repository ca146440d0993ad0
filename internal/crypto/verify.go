package crypto

import (
	"encoding/hex"
	"fmt"
	"strings"

	"github.com/ethereum/go-ethereum/accounts"
	"github.com/ethereum/go-ethereum/common"
	ethcrypto "github.com/ethereum/go-ethereum/crypto"

	"github.com/gitadpal/voran/internal/domain"
)

// RecoverSigner recomputes the message hash from the payload fields and
// recovers the address that produced the signature, the same way the
// on-chain verifier does.
func RecoverSigner(p domain.SignedPayload) (common.Address, error) {
	marketIDHash, err := decodeHash(p.MarketID)
	if err != nil {
		return common.Address{}, fmt.Errorf("crypto/verify: marketId: %w", err)
	}
	specHash, err := decodeHash(p.SpecHash)
	if err != nil {
		return common.Address{}, fmt.Errorf("crypto/verify: specHash: %w", err)
	}
	rawHash, err := decodeHash(p.RawHash)
	if err != nil {
		return common.Address{}, fmt.Errorf("crypto/verify: rawHash: %w", err)
	}
	sig, err := decodeHex(p.Signature, 65)
	if err != nil {
		return common.Address{}, fmt.Errorf("crypto/verify: signature: %w", err)
	}
	if sig[64] != 27 && sig[64] != 28 {
		return common.Address{}, fmt.Errorf("crypto/verify: %w: v=%d", domain.ErrInvalidSignature, sig[64])
	}
	sig[64] -= 27

	msgHash, err := MessageHash(marketIDHash, specHash, rawHash, p.ParsedValue, p.Result, p.ExecutedAt)
	if err != nil {
		return common.Address{}, fmt.Errorf("crypto/verify: %w", err)
	}
	pub, err := ethcrypto.SigToPub(accounts.TextHash(msgHash.Bytes()), sig)
	if err != nil {
		return common.Address{}, fmt.Errorf("crypto/verify: %w: %w", domain.ErrInvalidSignature, err)
	}
	return ethcrypto.PubkeyToAddress(*pub), nil
}

// CheckBindings verifies that the payload hashes were computed over the given
// spec and raw response. Either input may be nil to skip that check.
func CheckBindings(p domain.SignedPayload, spec *domain.ResolutionSpec, raw []byte) error {
	if spec != nil {
		if got := MarketIDHash(spec.MarketID).Hex(); !strings.EqualFold(got, p.MarketID) {
			return fmt.Errorf("crypto/verify: %w: marketId hash %s, payload has %s", domain.ErrPayloadMismatch, got, p.MarketID)
		}
		specHash, err := SpecHash(*spec)
		if err != nil {
			return err
		}
		if got := specHash.Hex(); !strings.EqualFold(got, p.SpecHash) {
			return fmt.Errorf("crypto/verify: %w: spec hash %s, payload has %s", domain.ErrPayloadMismatch, got, p.SpecHash)
		}
	}
	if raw != nil {
		if got := RawHash(raw).Hex(); !strings.EqualFold(got, p.RawHash) {
			return fmt.Errorf("crypto/verify: %w: raw hash %s, payload has %s", domain.ErrPayloadMismatch, got, p.RawHash)
		}
	}
	return nil
}

func decodeHash(s string) (common.Hash, error) {
	b, err := decodeHex(s, common.HashLength)
	if err != nil {
		return common.Hash{}, err
	}
	return common.BytesToHash(b), nil
}

func decodeHex(s string, size int) ([]byte, error) {
	if !strings.HasPrefix(s, "0x") {
		return nil, fmt.Errorf("%w: missing 0x prefix", domain.ErrInvalidSignature)
	}
	b, err := hex.DecodeString(s[2:])
	if err != nil {
		return nil, fmt.Errorf("%w: %w", domain.ErrInvalidSignature, err)
	}
	if len(b) != size {
		return nil, fmt.Errorf("%w: expected %d bytes, got %d", domain.ErrInvalidSignature, size, len(b))
	}
	return b, nil
}
