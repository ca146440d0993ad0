// Package extract pulls a single value out of a raw response, either with a
// JSONPath query or by running an author-supplied script in a sandbox.
package extract

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/gowebpki/jcs"
	"github.com/ohler55/ojg/jp"
	"github.com/ohler55/ojg/oj"

	"github.com/gitadpal/voran/internal/domain"
	"github.com/gitadpal/voran/internal/jsnum"
)

// Extractor dispatches on the extraction variant.
type Extractor struct {
	sandbox *Sandbox
}

// New creates an Extractor. A nil sandbox gets the default budgets.
func New(sandbox *Sandbox) *Extractor {
	if sandbox == nil {
		sandbox = NewSandbox(SandboxConfig{})
	}
	return &Extractor{sandbox: sandbox}
}

// Extract returns the extracted value as a string.
func (e *Extractor) Extract(ctx context.Context, raw string, ext domain.Extraction) (string, error) {
	switch v := ext.(type) {
	case *domain.JSONPathExtraction:
		return ExtractPath(raw, v.Path)
	case *domain.ScriptExtraction:
		if v.Lang != domain.ScriptLangJavaScript {
			return "", fmt.Errorf("extract: %w: script language %q", domain.ErrUnknownVariant, v.Lang)
		}
		return e.sandbox.Run(ctx, v.Code, raw)
	default:
		return "", fmt.Errorf("extract: %w: extraction %T", domain.ErrUnknownVariant, ext)
	}
}

// ExtractPath evaluates a JSONPath query against raw and stringifies the
// first match. Later matches are ignored.
func ExtractPath(raw, path string) (string, error) {
	expr, err := jp.ParseString(path)
	if err != nil {
		return "", fmt.Errorf("extract: invalid path %q: %w", path, err)
	}
	doc, err := oj.ParseString(raw)
	if err != nil {
		return "", fmt.Errorf("extract: %w: %w", domain.ErrInvalidJSON, err)
	}
	matches, err := Query(expr, doc)
	if err != nil {
		return "", fmt.Errorf("extract: %s: %w", path, err)
	}
	if len(matches) == 0 {
		return "", fmt.Errorf("extract: %w for %s", domain.ErrNoResults, path)
	}
	return stringify(matches[0])
}

type pathGetter interface {
	Get(data any) []any
}

// Query evaluates expr against doc. A panic inside the evaluator comes back
// as an error wrapping ErrNoResults.
func Query(expr jp.Expr, doc any) ([]any, error) {
	return query(expr, doc)
}

func query(g pathGetter, doc any) (matches []any, err error) {
	defer func() {
		if r := recover(); r != nil {
			matches, err = nil, fmt.Errorf("%w: path cannot be evaluated: %v", domain.ErrNoResults, r)
		}
	}()
	return g.Get(doc), nil
}

// stringify renders a parsed JSON value the way String(v) would for scalars
// and as canonical JSON for objects and arrays.
func stringify(v any) (string, error) {
	switch t := v.(type) {
	case nil:
		return "null", nil
	case string:
		return t, nil
	case bool:
		if t {
			return "true", nil
		}
		return "false", nil
	case int64:
		return jsnum.Format(float64(t)), nil
	case float64:
		return jsnum.Format(t), nil
	default:
		return canonicalJSON(t)
	}
}

func canonicalJSON(v any) (string, error) {
	b, err := json.Marshal(v)
	if err != nil {
		return "", fmt.Errorf("extract: encoding match: %w", err)
	}
	out, err := jcs.Transform(b)
	if err != nil {
		return "", fmt.Errorf("extract: canonicalizing match: %w", err)
	}
	return string(out), nil
}
