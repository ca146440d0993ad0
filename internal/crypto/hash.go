package crypto

import (
	"encoding/json"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	ethcrypto "github.com/ethereum/go-ethereum/crypto"
	"github.com/gowebpki/jcs"

	"github.com/gitadpal/voran/internal/domain"
)

// WireVersion identifies the packed message layout below. Any change to the
// field order, widths or encodings must bump it together with the on-chain
// verifier.
const WireVersion = 1

// CanonicalSpec returns the RFC 8785 canonical JSON encoding of a spec.
func CanonicalSpec(spec domain.ResolutionSpec) ([]byte, error) {
	doc, err := json.Marshal(spec)
	if err != nil {
		return nil, fmt.Errorf("crypto/hash: encoding spec: %w", err)
	}
	return Canonicalize(doc)
}

// Canonicalize rewrites an arbitrary JSON document into its RFC 8785 form.
func Canonicalize(doc []byte) ([]byte, error) {
	out, err := jcs.Transform(doc)
	if err != nil {
		return nil, fmt.Errorf("crypto/hash: canonicalizing: %w", err)
	}
	return out, nil
}

// SpecHash is keccak256 over the canonical JSON of the spec.
func SpecHash(spec domain.ResolutionSpec) (common.Hash, error) {
	canon, err := CanonicalSpec(spec)
	if err != nil {
		return common.Hash{}, err
	}
	return ethcrypto.Keccak256Hash(canon), nil
}

// RawHash is keccak256 over the raw response bytes exactly as fetched.
func RawHash(raw []byte) common.Hash {
	return ethcrypto.Keccak256Hash(raw)
}

// MarketIDHash is keccak256 over the UTF-8 bytes of the market identifier.
func MarketIDHash(marketID string) common.Hash {
	return ethcrypto.Keccak256Hash([]byte(marketID))
}

// PackMessage reproduces Solidity's
//
//	abi.encodePacked(bytes32 marketId, bytes32 specHash, bytes32 rawHash,
//	                 string parsedValue, bool result, uint256 executedAt)
func PackMessage(marketIDHash, specHash, rawHash common.Hash, parsedValue string, result bool, executedAt int64) ([]byte, error) {
	if executedAt < 0 {
		return nil, fmt.Errorf("crypto/hash: executedAt %d is negative", executedAt)
	}
	resultByte := byte(0x00)
	if result {
		resultByte = 0x01
	}
	return concatBytes(
		marketIDHash.Bytes(),
		specHash.Bytes(),
		rawHash.Bytes(),
		[]byte(parsedValue),
		[]byte{resultByte},
		bigIntTo32Bytes(big.NewInt(executedAt)),
	), nil
}

// MessageHash is keccak256 over PackMessage. Both the signer and the
// verifier go through this function.
func MessageHash(marketIDHash, specHash, rawHash common.Hash, parsedValue string, result bool, executedAt int64) (common.Hash, error) {
	packed, err := PackMessage(marketIDHash, specHash, rawHash, parsedValue, result, executedAt)
	if err != nil {
		return common.Hash{}, err
	}
	return ethcrypto.Keccak256Hash(packed), nil
}

// bigIntTo32Bytes returns a 32-byte big-endian representation of n.
func bigIntTo32Bytes(n *big.Int) []byte {
	b := n.Bytes()
	if len(b) >= 32 {
		return b[:32]
	}
	padded := make([]byte, 32)
	copy(padded[32-len(b):], b)
	return padded
}

// concatBytes concatenates multiple byte slices into one.
func concatBytes(slices ...[]byte) []byte {
	total := 0
	for _, s := range slices {
		total += len(s)
	}
	buf := make([]byte, 0, total)
	for _, s := range slices {
		buf = append(buf, s...)
	}
	return buf
}
