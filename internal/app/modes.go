package app

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/gitadpal/voran/internal/crypto"
	"github.com/gitadpal/voran/internal/domain"
	"github.com/gitadpal/voran/internal/resolver"
	"github.com/gitadpal/voran/internal/secrets"
	"github.com/gitadpal/voran/internal/server"
	"github.com/gitadpal/voran/internal/server/handler"
	"github.com/gitadpal/voran/internal/server/ws"
	"github.com/gitadpal/voran/internal/template"
	"github.com/gitadpal/voran/internal/validate"
)

// ErrCheckFailed is returned by one-shot modes whose result was written but
// reports a failure (invalid spec, failed dry run, bad signature).
var ErrCheckFailed = errors.New("check failed")

// ValidateMode validates a spec document and prints the report.
func (a *App) ValidateMode(ctx context.Context, deps *Dependencies) error {
	raw, err := a.read(a.in.SpecPath, "spec")
	if err != nil {
		return err
	}
	rep, _ := deps.Validator.ValidateDocument(raw)
	if err := a.emit(rep); err != nil {
		return err
	}
	a.logReport(ctx, "spec", rep)
	if !rep.Valid {
		return fmt.Errorf("app: %w: %s", ErrCheckFailed, strings.Join(rep.Errors, "; "))
	}
	return nil
}

// expandedSpec pairs an expanded spec with its validation report.
type expandedSpec struct {
	Spec   domain.ResolutionSpec `json:"spec"`
	Report validate.Report       `json:"report"`
}

// ExpandMode expands a template document and prints every variant with its
// validation report.
func (a *App) ExpandMode(ctx context.Context, deps *Dependencies) error {
	tmpl, err := a.readTemplate(ctx, deps)
	if err != nil {
		return err
	}
	specs, err := template.Expand(*tmpl)
	if err != nil {
		return fmt.Errorf("app: expand: %w", err)
	}

	out := make([]expandedSpec, len(specs))
	invalid := 0
	for i, s := range specs {
		out[i] = expandedSpec{Spec: s, Report: deps.Validator.Validate(s)}
		if !out[i].Report.Valid {
			invalid++
		}
	}
	a.logger.InfoContext(ctx, "template expanded",
		slog.Int("variants", len(specs)),
		slog.Int("invalid", invalid),
	)
	if err := a.emit(out); err != nil {
		return err
	}
	if invalid > 0 {
		return fmt.Errorf("app: %w: %d of %d variants invalid", ErrCheckFailed, invalid, len(specs))
	}
	return nil
}

// ResolveMode runs a spec through the full pipeline and prints the signed
// resolution. With a raw file it skips fetching.
func (a *App) ResolveMode(ctx context.Context, deps *Dependencies) error {
	spec, err := a.readSpec(ctx, deps)
	if err != nil {
		return err
	}

	var res *domain.Resolution
	if a.in.RawPath != "" {
		raw, rerr := a.read(a.in.RawPath, "raw response")
		if rerr != nil {
			return rerr
		}
		res, err = deps.Resolver.ResolveFromRaw(ctx, *spec, string(raw))
	} else {
		res, err = deps.Resolver.Resolve(ctx, *spec)
	}
	if err != nil {
		return fmt.Errorf("app: resolve: %w", err)
	}
	return a.emit(res)
}

// DryRunMode runs a spec without side effects and prints the diagnostics.
func (a *App) DryRunMode(ctx context.Context, deps *Dependencies) error {
	raw, err := a.read(a.in.SpecPath, "spec")
	if err != nil {
		return err
	}

	var res resolver.DryRunResult
	rep, spec := deps.Validator.ValidateDocument(raw)
	switch {
	case !rep.Valid:
		res = resolver.DryRunResult{Stage: domain.StageValidate, Error: strings.Join(rep.Errors, "; ")}
		if spec != nil {
			res.MarketID = spec.MarketID
		}
	case a.in.RawPath != "":
		body, rerr := a.read(a.in.RawPath, "raw response")
		if rerr != nil {
			return rerr
		}
		res = deps.Resolver.DryRunFromRaw(ctx, *spec, string(body))
	default:
		res = deps.Resolver.DryRun(ctx, *spec)
	}

	if err := a.emit(res); err != nil {
		return err
	}
	if !res.Success {
		return fmt.Errorf("app: %w: dry run failed at %s: %s", ErrCheckFailed, res.Stage, res.Error)
	}
	return nil
}

// BatchMode expands a template, validates every variant and dry-runs the
// variants selected by the batch policy.
func (a *App) BatchMode(ctx context.Context, deps *Dependencies) error {
	tmpl, err := a.readTemplate(ctx, deps)
	if err != nil {
		return err
	}

	var rep resolver.BatchReport
	if a.in.Policy != "" {
		policy, perr := resolver.ParseBatchPolicy(a.in.Policy)
		if perr != nil {
			return fmt.Errorf("app: %w", perr)
		}
		rep, err = deps.Resolver.VerifyBatchWithPolicy(ctx, *tmpl, policy)
	} else {
		rep, err = deps.Resolver.VerifyBatch(ctx, *tmpl)
	}
	if err != nil {
		return fmt.Errorf("app: batch: %w", err)
	}
	if err := a.emit(rep); err != nil {
		return err
	}
	if !rep.Valid {
		return fmt.Errorf("app: %w: batch verification failed", ErrCheckFailed)
	}
	return nil
}

// VerifyMode checks a signed payload (or a full verify request) and prints
// the report.
func (a *App) VerifyMode(ctx context.Context, deps *Dependencies) error {
	raw, err := a.read(a.in.PayloadPath, "payload")
	if err != nil {
		return err
	}
	req, err := decodeVerifyRequest(raw)
	if err != nil {
		return err
	}
	if req.Spec == nil && a.in.SpecPath != "" {
		if req.Spec, err = a.readSpec(ctx, deps); err != nil {
			return err
		}
	}
	if req.Raw == nil && a.in.RawPath != "" {
		body, rerr := a.read(a.in.RawPath, "raw response")
		if rerr != nil {
			return rerr
		}
		s := string(body)
		req.Raw = &s
	}

	rep := deps.Verifier.Verify(ctx, req)
	if err := a.emit(rep); err != nil {
		return err
	}
	if !rep.Valid {
		return fmt.Errorf("app: %w: %s", ErrCheckFailed, rep.Error)
	}
	a.logger.InfoContext(ctx, "payload verified", slog.String("signer", rep.Signer))
	return nil
}

// decodeVerifyRequest accepts either a VerifyRequest or a bare SignedPayload.
func decodeVerifyRequest(raw []byte) (resolver.VerifyRequest, error) {
	var probe map[string]json.RawMessage
	if err := json.Unmarshal(raw, &probe); err != nil {
		return resolver.VerifyRequest{}, fmt.Errorf("app: payload: %w", err)
	}
	var req resolver.VerifyRequest
	if _, wrapped := probe["payload"]; wrapped {
		if err := json.Unmarshal(raw, &req); err != nil {
			return req, fmt.Errorf("app: verify request: %w", err)
		}
		return req, nil
	}
	if err := json.Unmarshal(raw, &req.Payload); err != nil {
		return req, fmt.Errorf("app: payload: %w", err)
	}
	return req, nil
}

// ServerMode starts the HTTP API and, when a signal bus is wired, the
// WebSocket hub. It blocks until ctx is cancelled.
func (a *App) ServerMode(ctx context.Context, deps *Dependencies) error {
	a.logger.InfoContext(ctx, "starting server mode")

	g, ctx := errgroup.WithContext(ctx)

	signer := ""
	if deps.Signer != nil {
		signer = deps.Signer.Address().Hex()
	}

	var hub *ws.Hub
	if deps.SignalBus != nil {
		hub = ws.NewHub(deps.SignalBus, a.logger, ws.Config{
			Channel:     resolver.ChannelResolutions,
			Mode:        a.cfg.Mode,
			Signer:      signer,
			WireVersion: crypto.WireVersion,
			StartedAt:   time.Now().UTC(),
		})
		g.Go(func() error {
			if err := hub.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
				return err
			}
			return nil
		})
	}

	var rawIndex handler.RawIndex
	if deps.RawArchive != nil {
		rawIndex = deps.RawArchive
	}

	srv := server.NewServer(server.Config{
		Port:            a.cfg.Server.Port,
		CORSOrigins:     a.cfg.Server.CORSOrigins,
		APIKey:          a.cfg.Server.APIKey,
		RateLimit:       a.cfg.Redis.RateLimit,
		RateLimitWindow: a.cfg.Redis.RateLimitWindow.Duration,
	}, server.Handlers{
		Health:      handler.NewHealthHandler(deps.Probes, signer, crypto.WireVersion, a.logger),
		Registry:    handler.NewRegistryHandler(deps.Registry),
		Specs:       handler.NewSpecHandler(deps.Validator, deps.Resolver, a.logger),
		Resolutions: handler.NewResolutionHandler(deps.Validator, deps.Resolver, deps.Verifier, deps.ResolutionStore, a.logger),
		Events:      handler.NewEventsHandler(deps.SignalBus, resolver.StreamResolutions, a.logger),
		Archive:     handler.NewArchiveHandler(rawIndex, a.logger),
	}, hub, deps.RateLimiter, a.logger)

	g.Go(srv.Start)
	g.Go(func() error {
		<-ctx.Done()
		shutCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return srv.Shutdown(shutCtx)
	})

	if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	return ctx.Err()
}

func (a *App) readSpec(ctx context.Context, deps *Dependencies) (*domain.ResolutionSpec, error) {
	raw, err := a.read(a.in.SpecPath, "spec")
	if err != nil {
		return nil, err
	}
	rep, spec := deps.Validator.ValidateDocument(raw)
	a.logReport(ctx, "spec", rep)
	if !rep.Valid {
		return nil, fmt.Errorf("app: %w: %s", domain.ErrInvalidSpec, strings.Join(rep.Errors, "; "))
	}
	return spec, nil
}

func (a *App) readTemplate(ctx context.Context, deps *Dependencies) (*domain.TemplateSpec, error) {
	raw, err := a.read(a.in.TemplatePath, "template")
	if err != nil {
		return nil, err
	}
	rep, tmpl := deps.Validator.ValidateTemplateDocument(raw)
	a.logReport(ctx, "template", rep)
	if !rep.Valid {
		return nil, fmt.Errorf("app: %w: %s", domain.ErrInvalidSpec, strings.Join(rep.Errors, "; "))
	}
	return tmpl, nil
}

// EncryptKeyMode encrypts the signing key under signer.key_password and
// writes the file that signer.encrypted_key_path later points at. The key is
// read from -key when given, otherwise from signer.private_key or
// signer.secret_name.
func (a *App) EncryptKeyMode(ctx context.Context) error {
	password := a.cfg.Signer.KeyPassword
	if password == "" {
		return fmt.Errorf("app: encrypt-key: %w: signer.key_password", domain.ErrMissingSecret)
	}

	var keyHex string
	if a.in.KeyPath != "" {
		data, err := a.read(a.in.KeyPath, "key")
		if err != nil {
			return err
		}
		keyHex = strings.TrimSpace(string(data))
	} else {
		k, err := crypto.LoadKey(crypto.KeyConfig{
			RawPrivateKey: a.cfg.Signer.PrivateKey,
			SecretName:    a.cfg.Signer.SecretName,
		}, secrets.NewEnvResolver(a.cfg.Secrets.EnvPrefix, a.cfg.Secrets.DotenvFiles...))
		if err != nil {
			return fmt.Errorf("app: encrypt-key: %w", err)
		}
		keyHex = k
	}

	signer, err := crypto.NewResolutionSigner(keyHex)
	if err != nil {
		return fmt.Errorf("app: encrypt-key: %w", err)
	}
	blob, err := crypto.EncryptKey(keyHex, password)
	if err != nil {
		return fmt.Errorf("app: encrypt-key: %w", err)
	}
	blob = append(blob, '\n')

	if a.in.OutPath == "" {
		if _, err := a.stdout.Write(blob); err != nil {
			return fmt.Errorf("app: write encrypted key: %w", err)
		}
	} else if err := os.WriteFile(a.in.OutPath, blob, 0o600); err != nil {
		return fmt.Errorf("app: write %s: %w", a.in.OutPath, err)
	}

	a.logger.InfoContext(ctx, "signing key encrypted",
		slog.String("address", signer.Address().Hex()),
		slog.String("out", a.in.OutPath),
	)
	return nil
}

// read loads a document from path, or from stdin when path is "-".
func (a *App) read(path, what string) ([]byte, error) {
	switch path {
	case "":
		return nil, fmt.Errorf("app: mode %s needs a %s file", a.cfg.Mode, what)
	case "-":
		b, err := io.ReadAll(a.stdin)
		if err != nil {
			return nil, fmt.Errorf("app: read %s from stdin: %w", what, err)
		}
		return b, nil
	default:
		b, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("app: read %s: %w", what, err)
		}
		return b, nil
	}
}

// emit writes v as indented JSON to the output file or stdout.
func (a *App) emit(v any) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("app: encode result: %w", err)
	}
	data = append(data, '\n')
	if a.in.OutPath == "" {
		_, err = a.stdout.Write(data)
		return err
	}
	if err := os.WriteFile(a.in.OutPath, data, 0o644); err != nil {
		return fmt.Errorf("app: write %s: %w", a.in.OutPath, err)
	}
	return nil
}

func (a *App) logReport(ctx context.Context, what string, rep validate.Report) {
	for _, w := range rep.Warnings {
		a.logger.WarnContext(ctx, what+" warning", slog.String("warning", w))
	}
	if !rep.Valid {
		a.logger.WarnContext(ctx, what+" invalid", slog.Int("errors", len(rep.Errors)))
	}
}
