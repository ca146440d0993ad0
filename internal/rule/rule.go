// Package rule evaluates a transformed value against a spec's threshold.
package rule

import (
	"fmt"

	"github.com/gitadpal/voran/internal/domain"
	"github.com/gitadpal/voran/internal/jsnum"
)

// Evaluate parses the value and applies the rule. Equality is exact.
func Evaluate(parsed string, r domain.Rule) (bool, error) {
	v, err := jsnum.Parse(parsed)
	if err != nil {
		return false, fmt.Errorf("rule: %w: %w", domain.ErrEvaluation, err)
	}
	switch r.Type {
	case domain.RuleGreaterThan:
		return v > r.Value, nil
	case domain.RuleLessThan:
		return v < r.Value, nil
	case domain.RuleEquals:
		return v == r.Value, nil
	default:
		return false, fmt.Errorf("rule: %w: %q", domain.ErrUnknownRule, r.Type)
	}
}
