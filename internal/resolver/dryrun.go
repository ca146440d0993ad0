package resolver

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/gitadpal/voran/internal/domain"
)

// DryRunResult is the structured outcome of a dry run. Failures are reported
// here rather than returned as errors.
type DryRunResult struct {
	Success     bool                  `json:"success"`
	Error       string                `json:"error,omitempty"`
	Stage       domain.Stage          `json:"stage,omitempty"`
	MarketID    string                `json:"marketId"`
	RawLength   int                   `json:"rawLength"`
	Extracted   string                `json:"extracted,omitempty"`
	ParsedValue string                `json:"parsedValue,omitempty"`
	Result      *bool                 `json:"result,omitempty"`
	Payload     *domain.SignedPayload `json:"payload,omitempty"`
	ElapsedMS   int64                 `json:"elapsedMs"`
}

// DryRun runs the whole pipeline for spec without taking a lock or touching
// any sink. The payload is signed when a signer is configured. DryRun never
// panics and never returns an error.
func (r *Resolver) DryRun(ctx context.Context, spec domain.ResolutionSpec) DryRunResult {
	return r.dryRun(ctx, spec, func(ctx context.Context) (string, error) {
		return r.deps.Fetcher.Fetch(ctx, spec.Source)
	})
}

// DryRunFromRaw is DryRun against an already fetched raw response.
func (r *Resolver) DryRunFromRaw(ctx context.Context, spec domain.ResolutionSpec, raw string) DryRunResult {
	return r.dryRun(ctx, spec, func(context.Context) (string, error) {
		return raw, nil
	})
}

func (r *Resolver) dryRun(ctx context.Context, spec domain.ResolutionSpec, fetch func(context.Context) (string, error)) (res DryRunResult) {
	start := time.Now()
	res.MarketID = spec.MarketID

	defer func() {
		if p := recover(); p != nil {
			r.logger.ErrorContext(ctx, "dry run panicked",
				slog.String("market_id", spec.MarketID),
				slog.String("panic", fmt.Sprint(p)),
			)
			res.Success = false
			res.Payload = nil
			res.Error = fmt.Sprintf("internal error: %v", p)
		}
		res.ElapsedMS = time.Since(start).Milliseconds()
	}()

	fail := func(err error) DryRunResult {
		res.Success = false
		res.Stage = StageOf(err)
		res.Error = err.Error()
		return res
	}

	if err := r.checkSpec(spec); err != nil {
		return fail(err)
	}

	out, err := r.run(ctx, spec, fetch)
	res.RawLength = len(out.raw)
	res.Extracted = out.extracted
	res.ParsedValue = out.parsed
	if err != nil {
		return fail(err)
	}
	result := out.result
	res.Result = &result

	if r.deps.Signer != nil {
		signed, err := r.sign(spec, out)
		if err != nil {
			return fail(err)
		}
		res.Payload = &signed.Payload
	}

	res.Success = true
	return res
}
