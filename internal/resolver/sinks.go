package resolver

import (
	"context"
	"encoding/json"
	"log/slog"

	"github.com/gitadpal/voran/internal/domain"
)

// recordSuccess fans a signed resolution out to the configured sinks. Sink
// failures are logged and never affect the returned resolution.
func (r *Resolver) recordSuccess(ctx context.Context, res *domain.Resolution, raw []byte) {
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), r.cfg.SinkTimeout)
	defer cancel()
	logger := r.logger.With(slog.String("market_id", res.MarketID), slog.String("id", res.ID))

	if r.deps.Store != nil {
		if err := r.deps.Store.Insert(ctx, *res); err != nil {
			logger.WarnContext(ctx, "store resolution failed", slog.String("error", err.Error()))
		}
	}

	if r.deps.Archive != nil {
		path, err := r.deps.Archive.Put(ctx, res.Payload.RawHash, raw, rawContentType(res.Spec.Source))
		if err != nil {
			logger.WarnContext(ctx, "archive raw response failed", slog.String("error", err.Error()))
		} else {
			logger.DebugContext(ctx, "raw response archived", slog.String("path", path))
		}
	}

	payload := res.Payload
	r.emit(ctx, logger, domain.ResolutionEvent{
		Event:     domain.EventResolutionSigned,
		MarketID:  res.MarketID,
		Payload:   &payload,
		Timestamp: res.CreatedAt,
	}, map[string]any{
		"id":           res.ID,
		"market_id":    res.MarketID,
		"spec_hash":    res.Payload.SpecHash,
		"raw_hash":     res.Payload.RawHash,
		"parsed_value": res.Payload.ParsedValue,
		"result":       res.Payload.Result,
		"executed_at":  res.Payload.ExecutedAt,
		"signer":       res.Signer,
	})
}

// recordFailure audits, publishes and notifies a failed resolution.
func (r *Resolver) recordFailure(ctx context.Context, spec domain.ResolutionSpec, err error) {
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), r.cfg.SinkTimeout)
	defer cancel()
	logger := r.logger.With(slog.String("market_id", spec.MarketID))

	stage := StageOf(err)
	r.emit(ctx, logger, domain.ResolutionEvent{
		Event:     domain.EventResolutionFailed,
		MarketID:  spec.MarketID,
		Stage:     stage,
		Error:     err.Error(),
		Timestamp: r.deps.Now().UTC(),
	}, map[string]any{
		"market_id": spec.MarketID,
		"stage":     string(stage),
		"error":     err.Error(),
	})
}

func (r *Resolver) emit(ctx context.Context, logger *slog.Logger, ev domain.ResolutionEvent, detail map[string]any) {
	if r.deps.Audit != nil {
		if err := r.deps.Audit.Log(ctx, ev.Event, detail); err != nil {
			logger.WarnContext(ctx, "audit log failed", slog.String("error", err.Error()))
		}
	}

	if r.deps.Bus != nil {
		data, err := json.Marshal(ev)
		if err != nil {
			logger.ErrorContext(ctx, "marshal resolution event", slog.String("error", err.Error()))
		} else {
			if err := r.deps.Bus.Publish(ctx, ChannelResolutions, data); err != nil {
				logger.WarnContext(ctx, "publish resolution event failed", slog.String("error", err.Error()))
			}
			if err := r.deps.Bus.StreamAppend(ctx, StreamResolutions, data); err != nil {
				logger.WarnContext(ctx, "append resolution stream failed", slog.String("error", err.Error()))
			}
		}
	}

	if r.deps.Notifier != nil {
		if err := r.deps.Notifier.Resolution(ctx, ev); err != nil {
			logger.WarnContext(ctx, "notify resolution failed", slog.String("error", err.Error()))
		}
	}
}

func rawContentType(src domain.Source) string {
	if _, ok := src.(*domain.BrowserSource); ok {
		return "text/html; charset=utf-8"
	}
	return "text/plain; charset=utf-8"
}
