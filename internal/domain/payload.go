package domain

import "time"

// SignedPayload is the output of one successful resolution. All hashes are
// 0x-prefixed 32-byte hex strings; the signature is a 65-byte hex string
// with v in {27, 28}.
type SignedPayload struct {
	MarketID    string `json:"marketId"`
	SpecHash    string `json:"specHash"`
	RawHash     string `json:"rawHash"`
	ParsedValue string `json:"parsedValue"`
	Result      bool   `json:"result"`
	ExecutedAt  int64  `json:"executedAt"`
	Signature   string `json:"signature"`
}

// Resolution wraps a SignedPayload with the unsigned diagnostics of the run
// that produced it.
type Resolution struct {
	ID        string         `json:"id"`
	MarketID  string         `json:"market_id"`
	Payload   SignedPayload  `json:"payload"`
	Extracted string         `json:"extracted"`
	RawLength int            `json:"raw_length"`
	Signer    string         `json:"signer"`
	Spec      ResolutionSpec `json:"spec"`
	CreatedAt time.Time      `json:"created_at"`
}

// Stage names a step of the resolution pipeline.
type Stage string

const (
	StageValidate  Stage = "validate"
	StageFetch     Stage = "fetch"
	StageExtract   Stage = "extract"
	StageTransform Stage = "transform"
	StageEvaluate  Stage = "evaluate"
	StageSign      Stage = "sign"
)

// Event names used for the audit log, the signal bus and notifications.
const (
	EventResolutionSigned = "resolution_signed"
	EventResolutionFailed = "resolution_failed"
)

// ResolutionEvent is published on the signal bus after every resolution
// attempt.
type ResolutionEvent struct {
	Event     string         `json:"event"`
	MarketID  string         `json:"market_id"`
	Stage     Stage          `json:"stage,omitempty"`
	Error     string         `json:"error,omitempty"`
	Payload   *SignedPayload `json:"payload,omitempty"`
	Timestamp time.Time      `json:"timestamp"`
}
