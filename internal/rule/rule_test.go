package rule

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gitadpal/voran/internal/domain"
)

func TestEvaluate(t *testing.T) {
	cases := []struct {
		value string
		rule  domain.Rule
		want  bool
	}{
		{"105000.5", domain.Rule{Type: domain.RuleGreaterThan, Value: 100000}, true},
		{"100000", domain.Rule{Type: domain.RuleGreaterThan, Value: 100000}, false},
		{"-1", domain.Rule{Type: domain.RuleLessThan, Value: 0}, true},
		{"0", domain.Rule{Type: domain.RuleLessThan, Value: 0}, false},
		{"1", domain.Rule{Type: domain.RuleEquals, Value: 1}, true},
		{"1.0000000001", domain.Rule{Type: domain.RuleEquals, Value: 1}, false},
	}
	for _, tc := range cases {
		got, err := Evaluate(tc.value, tc.rule)
		require.NoError(t, err)
		assert.Equal(t, tc.want, got, "%s %s %v", tc.value, tc.rule.Type, tc.rule.Value)
	}
}

func TestEvaluateErrors(t *testing.T) {
	_, err := Evaluate("abc", domain.Rule{Type: domain.RuleEquals, Value: 1})
	assert.ErrorIs(t, err, domain.ErrEvaluation)

	_, err = Evaluate("NaN", domain.Rule{Type: domain.RuleEquals, Value: 1})
	assert.ErrorIs(t, err, domain.ErrEvaluation)

	_, err = Evaluate("1", domain.Rule{Type: "between", Value: 1})
	assert.ErrorIs(t, err, domain.ErrUnknownRule)
}
