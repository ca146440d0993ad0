package resolver

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/gitadpal/voran/internal/crypto"
	"github.com/gitadpal/voran/internal/domain"
)

// RawSource retrieves archived raw responses by hash.
type RawSource interface {
	Get(ctx context.Context, rawHash string) ([]byte, error)
}

// VerifyRequest describes what to check about a signed payload. Only the
// payload is required.
type VerifyRequest struct {
	Payload domain.SignedPayload `json:"payload"`
	// ExpectedSigner is a 0x address the signature must recover to.
	ExpectedSigner string `json:"expectedSigner,omitempty"`
	// Spec, when set, must hash to the payload's specHash and carry its marketId.
	Spec *domain.ResolutionSpec `json:"spec,omitempty"`
	// Raw, when set, must hash to the payload's rawHash.
	Raw *string `json:"raw,omitempty"`
	// FetchArchivedRaw loads the raw response from the archive when Raw is unset.
	FetchArchivedRaw bool `json:"fetchArchivedRaw,omitempty"`
}

// VerifyReport is the result of Verify.
type VerifyReport struct {
	Valid           bool   `json:"valid"`
	Signer          string `json:"signer,omitempty"`
	SignerMatches   *bool  `json:"signerMatches,omitempty"`
	BindingsChecked bool   `json:"bindingsChecked"`
	Error           string `json:"error,omitempty"`
}

// Verifier checks signed payloads the way an on-chain verifier would, plus
// optional spec and raw-response bindings.
type Verifier struct {
	archive RawSource
}

// NewVerifier creates a Verifier. archive may be nil.
func NewVerifier(archive RawSource) *Verifier {
	return &Verifier{archive: archive}
}

// Verify recovers the payload's signer and checks every binding requested.
func (v *Verifier) Verify(ctx context.Context, req VerifyRequest) VerifyReport {
	var rep VerifyReport

	addr, err := crypto.RecoverSigner(req.Payload)
	if err != nil {
		rep.Error = err.Error()
		return rep
	}
	rep.Signer = addr.Hex()

	var problems []error
	if req.ExpectedSigner != "" {
		ok := strings.EqualFold(req.ExpectedSigner, rep.Signer)
		rep.SignerMatches = &ok
		if !ok {
			problems = append(problems, fmt.Errorf("signer %s does not match expected %s: %w",
				rep.Signer, req.ExpectedSigner, domain.ErrInvalidSignature))
		}
	}

	var raw []byte
	switch {
	case req.Raw != nil:
		raw = []byte(*req.Raw)
	case req.FetchArchivedRaw:
		if v.archive == nil {
			problems = append(problems, fmt.Errorf("raw archive not configured: %w", domain.ErrNotFound))
		} else if raw, err = v.archive.Get(ctx, req.Payload.RawHash); err != nil {
			problems = append(problems, fmt.Errorf("load archived raw: %w", err))
		}
	}

	if req.Spec != nil || raw != nil {
		if err := crypto.CheckBindings(req.Payload, req.Spec, raw); err != nil {
			problems = append(problems, err)
		}
		rep.BindingsChecked = true
	}

	if err := errors.Join(problems...); err != nil {
		rep.Error = err.Error()
		return rep
	}
	rep.Valid = true
	return rep
}
