package resolver

import (
	"context"
	"fmt"
	"log/slog"

	"golang.org/x/sync/errgroup"

	"github.com/gitadpal/voran/internal/domain"
	"github.com/gitadpal/voran/internal/template"
	"github.com/gitadpal/voran/internal/validate"
)

// VariantReport is the verification outcome of one expanded spec.
type VariantReport struct {
	Index  int                   `json:"index"`
	Spec   domain.ResolutionSpec `json:"spec"`
	Report validate.Report       `json:"validation"`
	DryRun *DryRunResult         `json:"dryRun,omitempty"`
}

// BatchReport summarises template verification. Valid is true only when
// every variant passed validation and every executed dry run succeeded.
type BatchReport struct {
	Policy    BatchPolicy     `json:"policy"`
	Total     int             `json:"total"`
	DryRunned int             `json:"dryRunned"`
	Valid     bool            `json:"valid"`
	Variants  []VariantReport `json:"variants"`
}

// VerifyBatch expands t, validates every variant and dry-runs either the
// first variant or all of them depending on the configured policy. An error
// is returned only when the template itself cannot be expanded.
func (r *Resolver) VerifyBatch(ctx context.Context, t domain.TemplateSpec) (BatchReport, error) {
	return r.VerifyBatchWithPolicy(ctx, t, r.cfg.BatchPolicy)
}

// VerifyBatchWithPolicy is VerifyBatch with an explicit policy.
func (r *Resolver) VerifyBatchWithPolicy(ctx context.Context, t domain.TemplateSpec, policy BatchPolicy) (BatchReport, error) {
	specs, err := template.Expand(t)
	if err != nil {
		return BatchReport{}, fmt.Errorf("resolver: expand template: %w", err)
	}

	rep := BatchReport{
		Policy:   policy,
		Total:    len(specs),
		Valid:    true,
		Variants: make([]VariantReport, len(specs)),
	}
	for i, spec := range specs {
		v := r.deps.Validator.Validate(spec)
		rep.Variants[i] = VariantReport{Index: i, Spec: spec, Report: v}
		if !v.Valid {
			rep.Valid = false
		}
	}

	var targets []int
	switch policy {
	case BatchAll:
		for i := range specs {
			targets = append(targets, i)
		}
	default:
		if len(specs) > 0 {
			targets = []int{0}
		}
	}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(r.cfg.BatchConcurrency)
	for _, i := range targets {
		if !rep.Variants[i].Report.Valid {
			continue
		}
		g.Go(func() error {
			dr := r.DryRun(gctx, specs[i])
			rep.Variants[i].DryRun = &dr
			return nil
		})
	}
	_ = g.Wait()

	for _, v := range rep.Variants {
		if v.DryRun == nil {
			continue
		}
		rep.DryRunned++
		if !v.DryRun.Success {
			rep.Valid = false
		}
	}

	r.logger.InfoContext(ctx, "template verified",
		slog.String("policy", string(policy)),
		slog.Int("variants", rep.Total),
		slog.Int("dry_runs", rep.DryRunned),
		slog.Bool("valid", rep.Valid),
	)
	return rep, nil
}

// ParseBatchPolicy accepts "first" or "all".
func ParseBatchPolicy(s string) (BatchPolicy, error) {
	switch BatchPolicy(s) {
	case BatchFirst, BatchAll:
		return BatchPolicy(s), nil
	case "":
		return BatchFirst, nil
	}
	return "", fmt.Errorf("resolver: unknown batch policy %q", s)
}
