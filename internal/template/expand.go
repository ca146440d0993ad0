// Package template stamps a TemplateSpec into concrete ResolutionSpecs, one
// per parameter row. Params are zipped by index, never combined as a cross
// product.
package template

import (
	"bytes"
	"encoding/json"
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"github.com/gitadpal/voran/internal/domain"
	"github.com/gitadpal/voran/internal/jsnum"
)

var placeholderPattern = regexp.MustCompile(`\{[A-Za-z_][A-Za-z0-9_]*\}`)

// Rows returns the number of specs t expands to, or an error when the
// params are malformed.
func Rows(t domain.TemplateSpec) (int, error) {
	if len(t.Params) == 0 {
		return 0, fmt.Errorf("template: %w: no params", domain.ErrInvalidSpec)
	}
	seen := make(map[string]bool, len(t.Params))
	n := len(t.Params[0].Values)
	for i, p := range t.Params {
		if p.Name == "" {
			return 0, fmt.Errorf("template: %w: param #%d has no name", domain.ErrInvalidSpec, i)
		}
		if seen[p.Name] {
			return 0, fmt.Errorf("template: %w: duplicate param %q", domain.ErrInvalidSpec, p.Name)
		}
		seen[p.Name] = true
		if len(p.Values) != n {
			return 0, fmt.Errorf("template: %w: param %q has %d values but %q has %d",
				domain.ErrParamLengthMismatch, p.Name, len(p.Values), t.Params[0].Name, n)
		}
	}
	return n, nil
}

// Expand produces one ResolutionSpec per row, in row order. Any failure
// aborts the whole expansion.
func Expand(t domain.TemplateSpec) ([]domain.ResolutionSpec, error) {
	n, err := Rows(t)
	if err != nil {
		return nil, err
	}

	srcTree, err := toTree(domain.MarshalSource(t.Source))
	if err != nil {
		return nil, fmt.Errorf("template: source: %w", err)
	}
	extTree, err := toTree(domain.MarshalExtraction(t.Extraction))
	if err != nil {
		return nil, fmt.Errorf("template: extraction: %w", err)
	}
	var tsTree any
	if t.TimestampRule != nil {
		if tsTree, err = toTree(json.Marshal(t.TimestampRule)); err != nil {
			return nil, fmt.Errorf("template: timestampRule: %w", err)
		}
	}
	coerce := placeholderQueryKeys(t.Source)

	out := make([]domain.ResolutionSpec, 0, n)
	for i := 0; i < n; i++ {
		spec, err := expandRow(t, i, srcTree, extTree, tsTree, coerce)
		if err != nil {
			return nil, fmt.Errorf("template: row %d: %w", i, err)
		}
		out = append(out, spec)
	}
	return out, nil
}

func expandRow(t domain.TemplateSpec, row int, srcTree, extTree, tsTree any, coerce []string) (domain.ResolutionSpec, error) {
	pairs := make([]string, 0, 2*len(t.Params))
	for _, p := range t.Params {
		pairs = append(pairs, "{"+p.Name+"}", string(p.Values[row]))
	}
	r := strings.NewReplacer(pairs...)

	marketID := r.Replace(t.MarketIDTemplate)
	if ph := placeholderPattern.FindString(marketID); ph != "" {
		return domain.ResolutionSpec{}, fmt.Errorf("%w: marketId %q still contains %s",
			domain.ErrUnresolvedPlaceholder, marketID, ph)
	}

	src := substitute(srcTree, r)
	coerceQuery(src, coerce)
	source, err := fromTree(src, domain.UnmarshalSource)
	if err != nil {
		return domain.ResolutionSpec{}, fmt.Errorf("source: %w", err)
	}
	extraction, err := fromTree(substitute(extTree, r), domain.UnmarshalExtraction)
	if err != nil {
		return domain.ResolutionSpec{}, fmt.Errorf("extraction: %w", err)
	}

	var ts *domain.TimestampRule
	if tsTree != nil {
		b, err := json.Marshal(substitute(tsTree, r))
		if err != nil {
			return domain.ResolutionSpec{}, fmt.Errorf("timestampRule: %w", err)
		}
		ts = &domain.TimestampRule{}
		if err := json.Unmarshal(b, ts); err != nil {
			return domain.ResolutionSpec{}, fmt.Errorf("timestampRule: %w", err)
		}
	}

	value := t.Rule.Value.Number
	if t.Rule.Value.IsExpr {
		expr := r.Replace(t.Rule.Value.Expr)
		value, err = jsnum.Parse(expr)
		if err != nil {
			return domain.ResolutionSpec{}, fmt.Errorf("%w: rule value %q: %w", domain.ErrInvalidRuleValue, expr, err)
		}
	}

	return domain.ResolutionSpec{
		MarketID:      marketID,
		Source:        source,
		Extraction:    extraction,
		Transform:     t.Transform,
		Rule:          domain.Rule{Type: t.Rule.Type, Value: value},
		TimestampRule: ts,
	}, nil
}

// placeholderQueryKeys lists the HTTP query keys whose template value is a
// string containing a placeholder. Only those are candidates for numeric
// re-coercion; literal strings keep their type.
func placeholderQueryKeys(src domain.Source) []string {
	h, ok := src.(*domain.HTTPSource)
	if !ok {
		return nil
	}
	var keys []string
	for k, v := range h.Query {
		if !v.IsNumber() && placeholderPattern.MatchString(v.String()) {
			keys = append(keys, k)
		}
	}
	return keys
}

func coerceQuery(src any, keys []string) {
	if len(keys) == 0 {
		return
	}
	m, ok := src.(map[string]any)
	if !ok {
		return
	}
	q, ok := m["query"].(map[string]any)
	if !ok {
		return
	}
	for _, k := range keys {
		s, ok := q[k].(string)
		if !ok || !jsnum.IsNumeric(s) {
			continue
		}
		if f, err := strconv.ParseFloat(s, 64); err == nil {
			q[k] = f
		}
	}
}

func toTree(b []byte, err error) (any, error) {
	if err != nil {
		return nil, err
	}
	dec := json.NewDecoder(bytes.NewReader(b))
	dec.UseNumber()
	var tree any
	if err := dec.Decode(&tree); err != nil {
		return nil, err
	}
	return tree, nil
}

func fromTree[T any](tree any, decode func(json.RawMessage) (T, error)) (T, error) {
	b, err := json.Marshal(tree)
	if err != nil {
		var zero T
		return zero, err
	}
	return decode(b)
}

// substitute returns a copy of tree with every string leaf rewritten. Map
// keys and non-string leaves are left alone.
func substitute(tree any, r *strings.Replacer) any {
	switch v := tree.(type) {
	case map[string]any:
		out := make(map[string]any, len(v))
		for k, child := range v {
			out[k] = substitute(child, r)
		}
		return out
	case []any:
		out := make([]any, len(v))
		for i, child := range v {
			out[i] = substitute(child, r)
		}
		return out
	case string:
		return r.Replace(v)
	default:
		return v
	}
}
