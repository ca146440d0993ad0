package template

import (
	"encoding/json"
	"fmt"
	"strings"
	"testing"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gitadpal/voran/internal/domain"
)

const fixtureTemplate = `{
	"marketIdTemplate": "epl-{home}-{away}-md{matchday}",
	"source": {
		"type": "http",
		"method": "GET",
		"url": "https://api.example.com/matches/{home}-{away}",
		"query": {"matchday": "{matchday}", "season": "2025", "limit": 10, "team": "{home}"},
		"headers": {"X-Auth-Token": "$env:FOOTBALL_DATA_API_KEY"}
	},
	"extraction": {"type": "jsonpath", "path": "$.matches[?(@.home == '{home}')].score"},
	"transform": {"type": "score_diff"},
	"rule": {"type": "greater_than", "value": "{line}"},
	"timestampRule": {"type": "after_kickoff", "utc": "{kickoff}"},
	"params": [
		{"name": "home", "values": ["ARS", "CHE", "LIV"]},
		{"name": "away", "values": ["TOT", "MUN", "EVE"]},
		{"name": "matchday", "values": [1, 2, 3]},
		{"name": "line", "values": ["0.5", "-1.5", 2]},
		{"name": "kickoff", "values": ["2025-08-16T14:00:00Z", "2025-08-17T16:30:00Z", "2025-08-18T19:00:00Z"]}
	]
}`

func loadTemplate(t *testing.T, doc string) domain.TemplateSpec {
	t.Helper()
	var tmpl domain.TemplateSpec
	require.NoError(t, json.Unmarshal([]byte(doc), &tmpl))
	return tmpl
}

func TestExpandZipsRows(t *testing.T) {
	specs, err := Expand(loadTemplate(t, fixtureTemplate))
	require.NoError(t, err)
	require.Len(t, specs, 3)

	assert.Equal(t, "epl-ARS-TOT-md1", specs[0].MarketID)
	assert.Equal(t, "epl-CHE-MUN-md2", specs[1].MarketID)
	assert.Equal(t, "epl-LIV-EVE-md3", specs[2].MarketID)

	src := specs[1].Source.(*domain.HTTPSource)
	assert.Equal(t, "https://api.example.com/matches/CHE-MUN", src.URL)
	assert.Equal(t, "$env:FOOTBALL_DATA_API_KEY", src.Headers["X-Auth-Token"])

	ext := specs[2].Extraction.(*domain.JSONPathExtraction)
	assert.Equal(t, "$.matches[?(@.home == 'LIV')].score", ext.Path)

	assert.Equal(t, 0.5, specs[0].Rule.Value)
	assert.Equal(t, -1.5, specs[1].Rule.Value)
	assert.Equal(t, 2.0, specs[2].Rule.Value)
	assert.Equal(t, domain.RuleGreaterThan, specs[0].Rule.Type)
	assert.Equal(t, domain.TransformScoreDiff, specs[0].Transform.Type)

	require.NotNil(t, specs[1].TimestampRule)
	assert.Equal(t, "2025-08-17T16:30:00Z", specs[1].TimestampRule.UTC)
}

func TestExpandQueryCoercion(t *testing.T) {
	specs, err := Expand(loadTemplate(t, fixtureTemplate))
	require.NoError(t, err)

	q := specs[0].Source.(*domain.HTTPSource).Query
	assert.True(t, q["matchday"].IsNumber(), "substituted numeric placeholder becomes a number")
	assert.Equal(t, 1.0, q["matchday"].Number())
	assert.False(t, q["season"].IsNumber(), "literal strings keep their type")
	assert.True(t, q["limit"].IsNumber())
	assert.False(t, q["team"].IsNumber())
	assert.Equal(t, "ARS", q["team"].String())
}

func TestExpandScriptCode(t *testing.T) {
	tmpl := loadTemplate(t, `{
		"marketIdTemplate": "m-{id}",
		"source": {"type": "browser", "url": "https://example.com/{id}", "waitFor": "#row-{id}"},
		"extraction": {"type": "script", "lang": "javascript", "code": "function extract(raw) { return raw.indexOf('{id}') >= 0 ? 1 : 0; }"},
		"transform": {"type": "decimal"},
		"rule": {"type": "equals", "value": 1},
		"params": [{"name": "id", "values": ["a1", "b2"]}]
	}`)
	specs, err := Expand(tmpl)
	require.NoError(t, err)
	require.Len(t, specs, 2)

	b := specs[1].Source.(*domain.BrowserSource)
	assert.Equal(t, "https://example.com/b2", b.URL)
	require.NotNil(t, b.WaitFor)
	assert.Equal(t, "#row-b2", *b.WaitFor)

	code := specs[1].Extraction.(*domain.ScriptExtraction).Code
	assert.Contains(t, code, "raw.indexOf('b2')")
	assert.True(t, strings.HasPrefix(code, "function extract(raw) {"))
	assert.Nil(t, specs[0].TimestampRule)
}

func TestExpandNumericParamsAreNormalised(t *testing.T) {
	tmpl := loadTemplate(t, `{
		"marketIdTemplate": "m-{line}-{id}",
		"source": {"type": "http", "method": "GET", "url": "https://x.test/{line}"},
		"extraction": {"type": "jsonpath", "path": "$.v"},
		"transform": {"type": "decimal"},
		"rule": {"type": "greater_than", "value": "{line}"},
		"params": [{"name": "line", "values": [1.50, 1e2, "1.50"]}, {"name": "id", "values": [7, 8, 9]}]
	}`)
	specs, err := Expand(tmpl)
	require.NoError(t, err)
	require.Len(t, specs, 3)

	assert.Equal(t, "m-1.5-7", specs[0].MarketID)
	assert.Equal(t, "m-100-8", specs[1].MarketID)
	assert.Equal(t, "https://x.test/100", specs[1].Source.(*domain.HTTPSource).URL)
	assert.Equal(t, "m-1.50-9", specs[2].MarketID)
	assert.Equal(t, 100.0, specs[1].Rule.Value)
}

func TestExpandLengthMismatch(t *testing.T) {
	tmpl := loadTemplate(t, fixtureTemplate)
	tmpl.Params[2].Values = tmpl.Params[2].Values[:2]

	_, err := Expand(tmpl)
	require.ErrorIs(t, err, domain.ErrParamLengthMismatch)
	assert.Contains(t, err.Error(), `"matchday" has 2 values`)
	assert.Contains(t, err.Error(), `"home" has 3`)
}

func TestExpandBadParams(t *testing.T) {
	tmpl := loadTemplate(t, fixtureTemplate)

	noParams := tmpl
	noParams.Params = nil
	_, err := Expand(noParams)
	assert.ErrorIs(t, err, domain.ErrInvalidSpec)

	dup := tmpl
	dup.Params = append([]domain.Param{}, tmpl.Params...)
	dup.Params[1] = domain.Param{Name: "home", Values: dup.Params[1].Values}
	_, err = Expand(dup)
	assert.ErrorIs(t, err, domain.ErrInvalidSpec)

	unnamed := tmpl
	unnamed.Params = append([]domain.Param{}, tmpl.Params...)
	unnamed.Params[0] = domain.Param{Values: unnamed.Params[0].Values}
	_, err = Expand(unnamed)
	assert.ErrorIs(t, err, domain.ErrInvalidSpec)
}

func TestExpandRuleValueMustParse(t *testing.T) {
	tmpl := loadTemplate(t, fixtureTemplate)
	tmpl.Params[3].Values = []domain.ParamValue{"0.5", "abc", "2"}

	specs, err := Expand(tmpl)
	assert.ErrorIs(t, err, domain.ErrInvalidRuleValue)
	assert.Nil(t, specs, "a bad row fails the whole expansion")
}

func TestExpandUnresolvedMarketID(t *testing.T) {
	tmpl := loadTemplate(t, fixtureTemplate)
	tmpl.MarketIDTemplate = "epl-{home}-{typo}"

	_, err := Expand(tmpl)
	assert.ErrorIs(t, err, domain.ErrUnresolvedPlaceholder)
}

func TestExpandDoesNotMutateTemplate(t *testing.T) {
	tmpl := loadTemplate(t, fixtureTemplate)
	before, err := json.Marshal(tmpl)
	require.NoError(t, err)

	_, err = Expand(tmpl)
	require.NoError(t, err)

	after, err := json.Marshal(tmpl)
	require.NoError(t, err)
	assert.JSONEq(t, string(before), string(after))
}

func TestExpandRowCountProperty(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 50
	properties := gopter.NewProperties(parameters)

	properties.Property("one placeholder-free spec per row", prop.ForAll(
		func(n int) bool {
			ids := make([]domain.ParamValue, n)
			lines := make([]domain.ParamValue, n)
			for i := range ids {
				ids[i] = domain.ParamValue(fmt.Sprintf("id%d", i))
				lines[i] = domain.ParamValue(fmt.Sprintf("%d.5", i))
			}
			tmpl := domain.TemplateSpec{
				MarketIDTemplate: "market-{id}",
				Source:           &domain.HTTPSource{Method: "GET", URL: "https://example.com/{id}"},
				Extraction:       &domain.JSONPathExtraction{Path: "$.v"},
				Transform:        domain.Transform{Type: domain.TransformDecimal},
				Rule:             domain.TemplateRule{Type: domain.RuleLessThan, Value: domain.TemplateRuleValue{Expr: "{line}", IsExpr: true}},
				Params:           []domain.Param{{Name: "id", Values: ids}, {Name: "line", Values: lines}},
			}
			specs, err := Expand(tmpl)
			if err != nil || len(specs) != n {
				return false
			}
			for i, s := range specs {
				if placeholderPattern.MatchString(s.MarketID) || s.MarketID != fmt.Sprintf("market-id%d", i) {
					return false
				}
			}
			return true
		},
		gen.IntRange(0, 40),
	))

	properties.TestingRun(t)
}
