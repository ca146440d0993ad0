// Package transform converts an extracted string into the numeric string
// that rules are evaluated against and that gets signed.
package transform

import (
	"encoding/json"
	"fmt"
	"math"

	"github.com/gitadpal/voran/internal/domain"
	"github.com/gitadpal/voran/internal/jsnum"
)

// Apply runs the named transform over value.
func Apply(value string, t domain.TransformType) (string, error) {
	switch t {
	case domain.TransformDecimal:
		f, err := jsnum.Parse(value)
		if err != nil {
			return "", fmt.Errorf("transform: decimal: %w: %w", domain.ErrTransform, err)
		}
		return FormatNumber(f), nil
	case domain.TransformScoreDiff:
		home, away, err := parseScore(value)
		if err != nil {
			return "", err
		}
		return scoreResult(home - away)
	case domain.TransformScoreSum:
		home, away, err := parseScore(value)
		if err != nil {
			return "", err
		}
		return scoreResult(home + away)
	default:
		return "", fmt.Errorf("transform: %w: unknown type %q", domain.ErrTransform, t)
	}
}

func scoreResult(f float64) (string, error) {
	if math.IsNaN(f) {
		return "", fmt.Errorf("transform: score: %w: result is NaN", domain.ErrTransform)
	}
	return FormatNumber(f), nil
}

// FormatNumber renders f the way JavaScript's String(n) does.
func FormatNumber(f float64) string {
	return jsnum.Format(f)
}

func parseScore(value string) (home, away float64, err error) {
	var obj map[string]any
	if err := json.Unmarshal([]byte(value), &obj); err != nil {
		return 0, 0, fmt.Errorf("transform: score: %w: expected a JSON object: %w", domain.ErrTransform, err)
	}
	if obj == nil {
		return 0, 0, fmt.Errorf("transform: score: %w: expected a JSON object, got null", domain.ErrTransform)
	}
	if home, err = scoreField(obj, "home"); err != nil {
		return 0, 0, err
	}
	if away, err = scoreField(obj, "away"); err != nil {
		return 0, 0, err
	}
	return home, away, nil
}

// scoreField coerces a score the way Number() does; only a NaN result fails.
func scoreField(obj map[string]any, name string) (float64, error) {
	raw, ok := obj[name]
	if !ok {
		return 0, fmt.Errorf("transform: score: %w: missing %q", domain.ErrTransform, name)
	}
	f := jsnum.ToNumber(raw)
	if math.IsNaN(f) {
		return 0, fmt.Errorf("transform: score: %w: %s value %v is not a number", domain.ErrTransform, name, raw)
	}
	return f, nil
}
