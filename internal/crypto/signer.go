package crypto

import (
	"crypto/ecdsa"
	"encoding/hex"
	"fmt"
	"strings"

	"github.com/ethereum/go-ethereum/accounts"
	"github.com/ethereum/go-ethereum/common"
	ethcrypto "github.com/ethereum/go-ethereum/crypto"

	"github.com/gitadpal/voran/internal/domain"
)

// ResolutionSigner signs resolution messages with the personal-message
// convention so that ecrecover on the verifying side yields Address().
type ResolutionSigner struct {
	privateKey *ecdsa.PrivateKey
	address    common.Address
}

// NewResolutionSigner creates a signer from a hex-encoded secp256k1 private
// key (with or without 0x prefix).
func NewResolutionSigner(privateKeyHex string) (*ResolutionSigner, error) {
	keyHex := strings.TrimPrefix(strings.TrimSpace(privateKeyHex), "0x")
	if keyHex == "" {
		return nil, fmt.Errorf("crypto/signer: signer key: %w", domain.ErrMissingSecret)
	}
	pk, err := ethcrypto.HexToECDSA(keyHex)
	if err != nil {
		return nil, fmt.Errorf("crypto/signer: invalid private key: %w", err)
	}
	return &ResolutionSigner{
		privateKey: pk,
		address:    ethcrypto.PubkeyToAddress(pk.PublicKey),
	}, nil
}

// Address returns the Ethereum address derived from the signer's private key.
func (s *ResolutionSigner) Address() common.Address {
	return s.address
}

// String never includes key material.
func (s *ResolutionSigner) String() string {
	return "ResolutionSigner(" + s.address.Hex() + ")"
}

// Sign hashes the spec and raw response, packs the message and signs it.
// executedAt is supplied by the caller so that signing is a pure function of
// its inputs.
func (s *ResolutionSigner) Sign(spec domain.ResolutionSpec, raw []byte, parsedValue string, result bool, executedAt int64) (domain.SignedPayload, error) {
	specHash, err := SpecHash(spec)
	if err != nil {
		return domain.SignedPayload{}, fmt.Errorf("crypto/signer: %w: %w", domain.ErrSigningFailed, err)
	}
	rawHash := RawHash(raw)
	marketIDHash := MarketIDHash(spec.MarketID)

	msgHash, err := MessageHash(marketIDHash, specHash, rawHash, parsedValue, result, executedAt)
	if err != nil {
		return domain.SignedPayload{}, fmt.Errorf("crypto/signer: %w: %w", domain.ErrSigningFailed, err)
	}

	sig, err := s.signDigest(accounts.TextHash(msgHash.Bytes()))
	if err != nil {
		return domain.SignedPayload{}, err
	}

	return domain.SignedPayload{
		MarketID:    marketIDHash.Hex(),
		SpecHash:    specHash.Hex(),
		RawHash:     rawHash.Hex(),
		ParsedValue: parsedValue,
		Result:      result,
		ExecutedAt:  executedAt,
		Signature:   sig,
	}, nil
}

// signDigest signs a 32-byte digest using secp256k1 and returns the
// hex-encoded signature (r || s || v, 65 bytes).
func (s *ResolutionSigner) signDigest(digest []byte) (string, error) {
	sig, err := ethcrypto.Sign(digest, s.privateKey)
	if err != nil {
		return "", fmt.Errorf("crypto/signer: %w: %w", domain.ErrSigningFailed, err)
	}

	// go-ethereum returns v in {0,1}; ecrecover on chain expects {27,28}.
	if sig[64] < 27 {
		sig[64] += 27
	}

	return "0x" + hex.EncodeToString(sig), nil
}
