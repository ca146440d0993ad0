package domain

import "errors"

var (
	ErrNotFound     = errors.New("not found")
	ErrRateLimited  = errors.New("rate limited")
	ErrUnauthorized = errors.New("unauthorized")
	ErrLockHeld     = errors.New("lock already held")

	// Spec and template authoring errors.
	ErrInvalidSpec           = errors.New("invalid spec")
	ErrUnknownVariant        = errors.New("unknown variant")
	ErrParamLengthMismatch   = errors.New("template param length mismatch")
	ErrInvalidRuleValue      = errors.New("invalid rule value")
	ErrUnresolvedPlaceholder = errors.New("unresolved placeholder")

	// Fetch stage.
	ErrFetch         = errors.New("fetch failed")
	ErrMissingSecret = errors.New("missing secret")

	// Extraction stage.
	ErrInvalidJSON     = errors.New("response is not valid JSON")
	ErrNoResults       = errors.New("no results")
	ErrScriptCompile   = errors.New("script compile error")
	ErrScriptTimeout   = errors.New("script timed out")
	ErrScriptRuntime   = errors.New("script runtime error")
	ErrScriptNoExtract = errors.New("script does not define extract")
	ErrScriptResult    = errors.New("script returned an unusable result")

	// Transform and evaluation stages.
	ErrTransform   = errors.New("transform failed")
	ErrEvaluation  = errors.New("evaluation failed")
	ErrUnknownRule = errors.New("unknown rule type")

	// Signing stage and payload verification.
	ErrSigningFailed    = errors.New("signing failed")
	ErrInvalidSignature = errors.New("invalid signature")
	ErrPayloadMismatch  = errors.New("payload does not match its inputs")
)
