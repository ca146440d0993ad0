// Package resolver runs a resolution spec through fetch, extract, transform,
// evaluate and sign, and fans successful payloads out to the configured
// sinks. It also provides dry runs and template batch verification.
package resolver

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/google/uuid"

	"github.com/gitadpal/voran/internal/domain"
	"github.com/gitadpal/voran/internal/rule"
	"github.com/gitadpal/voran/internal/transform"
	"github.com/gitadpal/voran/internal/validate"
)

// Fetcher obtains the raw response for a source.
type Fetcher interface {
	Fetch(ctx context.Context, src domain.Source) (string, error)
}

// Extractor pulls a single string out of a raw response.
type Extractor interface {
	Extract(ctx context.Context, raw string, ext domain.Extraction) (string, error)
}

// Signer produces signed payloads.
type Signer interface {
	Sign(spec domain.ResolutionSpec, raw []byte, parsedValue string, result bool, executedAt int64) (domain.SignedPayload, error)
	Address() common.Address
}

// SpecValidator checks a spec before it runs.
type SpecValidator interface {
	Validate(spec domain.ResolutionSpec) validate.Report
}

// RawArchiver stores raw responses by hash.
type RawArchiver interface {
	Put(ctx context.Context, rawHash string, raw []byte, contentType string) (string, error)
}

// EventNotifier delivers resolution events to operators.
type EventNotifier interface {
	Resolution(ctx context.Context, ev domain.ResolutionEvent) error
}

// Signal bus channel and stream carrying domain.ResolutionEvent JSON.
const (
	ChannelResolutions = "resolutions"
	StreamResolutions  = "resolutions:log"
)

// BatchPolicy selects which expanded variants are dry-run.
type BatchPolicy string

const (
	BatchFirst BatchPolicy = "first"
	BatchAll   BatchPolicy = "all"
)

// Config tunes the resolver.
type Config struct {
	LockTTL          time.Duration
	SinkTimeout      time.Duration
	BatchPolicy      BatchPolicy
	BatchConcurrency int
}

// Deps are the resolver's collaborators. Fetcher, Extractor and Validator are
// required. Signer may be nil, in which case Resolve fails at the sign stage
// and DryRun stops after evaluation. Every sink is optional.
type Deps struct {
	Fetcher   Fetcher
	Extractor Extractor
	Validator SpecValidator
	Signer    Signer

	Locks    domain.LockManager
	Store    domain.ResolutionStore
	Audit    domain.AuditStore
	Bus      domain.SignalBus
	Archive  RawArchiver
	Notifier EventNotifier

	// Now defaults to time.Now.
	Now func() time.Time
}

// Resolver is the resolution orchestrator.
type Resolver struct {
	cfg    Config
	deps   Deps
	logger *slog.Logger
}

// New creates a Resolver.
func New(cfg Config, deps Deps, logger *slog.Logger) *Resolver {
	if cfg.LockTTL <= 0 {
		cfg.LockTTL = 2 * time.Minute
	}
	if cfg.SinkTimeout <= 0 {
		cfg.SinkTimeout = 10 * time.Second
	}
	if cfg.BatchPolicy == "" {
		cfg.BatchPolicy = BatchFirst
	}
	if cfg.BatchConcurrency <= 0 {
		cfg.BatchConcurrency = 4
	}
	if deps.Now == nil {
		deps.Now = time.Now
	}
	return &Resolver{
		cfg:    cfg,
		deps:   deps,
		logger: logger.With(slog.String("component", "resolver")),
	}
}

// outcome holds everything a pipeline run produced before signing.
type outcome struct {
	raw       string
	extracted string
	parsed    string
	result    bool
}

// Resolve fetches the spec's source and produces a signed resolution. It
// returns either a complete resolution or one error; the error is a
// *StageError naming the failing stage, except for lock contention.
func (r *Resolver) Resolve(ctx context.Context, spec domain.ResolutionSpec) (*domain.Resolution, error) {
	return r.resolve(ctx, spec, func(ctx context.Context) (string, error) {
		return r.deps.Fetcher.Fetch(ctx, spec.Source)
	})
}

// ResolveFromRaw resolves spec against an already fetched raw response.
// Given the same spec, raw and clock it yields the same signed payload.
func (r *Resolver) ResolveFromRaw(ctx context.Context, spec domain.ResolutionSpec, raw string) (*domain.Resolution, error) {
	return r.resolve(ctx, spec, func(context.Context) (string, error) {
		return raw, nil
	})
}

func (r *Resolver) resolve(ctx context.Context, spec domain.ResolutionSpec, fetch func(context.Context) (string, error)) (*domain.Resolution, error) {
	start := time.Now()
	logger := r.logger.With(slog.String("market_id", spec.MarketID))

	if err := r.checkSpec(spec); err != nil {
		r.recordFailure(ctx, spec, err)
		return nil, err
	}

	if r.deps.Locks != nil {
		unlock, err := r.deps.Locks.Acquire(ctx, "resolve:"+spec.MarketID, r.cfg.LockTTL)
		if err != nil {
			return nil, fmt.Errorf("resolver: market %s: %w", spec.MarketID, err)
		}
		defer unlock()
	}

	out, err := r.run(ctx, spec, fetch)
	if err != nil {
		logger.WarnContext(ctx, "resolution failed",
			slog.String("stage", string(StageOf(err))),
			slog.String("error", err.Error()),
		)
		r.recordFailure(ctx, spec, err)
		return nil, err
	}

	res, err := r.sign(spec, out)
	if err != nil {
		logger.WarnContext(ctx, "resolution signing failed", slog.String("error", err.Error()))
		r.recordFailure(ctx, spec, err)
		return nil, err
	}

	logger.InfoContext(ctx, "resolution signed",
		slog.String("id", res.ID),
		slog.String("parsed_value", res.Payload.ParsedValue),
		slog.Bool("result", res.Payload.Result),
		slog.Int("raw_length", res.RawLength),
		slog.Duration("elapsed", time.Since(start)),
	)
	r.recordSuccess(ctx, res, []byte(out.raw))
	return res, nil
}

func (r *Resolver) checkSpec(spec domain.ResolutionSpec) error {
	rep := r.deps.Validator.Validate(spec)
	if rep.Valid {
		return nil
	}
	return stageErr(domain.StageValidate,
		fmt.Errorf("%w: %s", domain.ErrInvalidSpec, strings.Join(rep.Errors, "; ")))
}

// run executes fetch, extract, transform and evaluate.
func (r *Resolver) run(ctx context.Context, spec domain.ResolutionSpec, fetch func(context.Context) (string, error)) (outcome, error) {
	var out outcome
	var err error

	if out.raw, err = fetch(ctx); err != nil {
		return out, stageErr(domain.StageFetch, err)
	}
	if out.extracted, err = r.deps.Extractor.Extract(ctx, out.raw, spec.Extraction); err != nil {
		return out, stageErr(domain.StageExtract, err)
	}
	if out.parsed, err = transform.Apply(out.extracted, spec.Transform.Type); err != nil {
		return out, stageErr(domain.StageTransform, err)
	}
	if out.result, err = rule.Evaluate(out.parsed, spec.Rule); err != nil {
		return out, stageErr(domain.StageEvaluate, err)
	}
	return out, nil
}

func (r *Resolver) sign(spec domain.ResolutionSpec, out outcome) (*domain.Resolution, error) {
	if r.deps.Signer == nil {
		return nil, stageErr(domain.StageSign, fmt.Errorf("resolver: no signer configured: %w", domain.ErrMissingSecret))
	}

	now := r.deps.Now()
	payload, err := r.deps.Signer.Sign(spec, []byte(out.raw), out.parsed, out.result, now.Unix())
	if err != nil {
		return nil, stageErr(domain.StageSign, err)
	}

	return &domain.Resolution{
		ID:        uuid.NewString(),
		MarketID:  spec.MarketID,
		Payload:   payload,
		Extracted: out.extracted,
		RawLength: len(out.raw),
		Signer:    r.deps.Signer.Address().Hex(),
		Spec:      spec.Clone(),
		CreatedAt: now.UTC(),
	}, nil
}
