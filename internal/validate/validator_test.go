package validate

import (
	"math"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gitadpal/voran/internal/domain"
)

type catalog map[string]bool

func (c catalog) KnownSecret(name string) bool { return c[name] }

func newValidator(t *testing.T) *Validator {
	t.Helper()
	v, err := New(catalog{"ODDS_API_KEY": true})
	require.NoError(t, err)
	return v
}

func validSpec() domain.ResolutionSpec {
	return domain.ResolutionSpec{
		MarketID:   "btc-100k",
		Source:     &domain.HTTPSource{Method: "GET", URL: "https://api.example.com/price"},
		Extraction: &domain.JSONPathExtraction{Path: "$.data.amount"},
		Transform:  domain.Transform{Type: domain.TransformDecimal},
		Rule:       domain.Rule{Type: domain.RuleGreaterThan, Value: 100000},
	}
}

func TestValidSpec(t *testing.T) {
	rep := newValidator(t).Validate(validSpec())
	assert.True(t, rep.Valid)
	assert.Empty(t, rep.Errors)
	assert.Empty(t, rep.Warnings)
}

func TestPlainHTTPIsWarningOnly(t *testing.T) {
	spec := validSpec()
	spec.Source = &domain.HTTPSource{Method: "GET", URL: "http://api.example.com/price"}

	rep := newValidator(t).Validate(spec)
	assert.True(t, rep.Valid)
	assert.Len(t, rep.Warnings, 1)
	assert.Contains(t, rep.Warnings[0], "unencrypted")
}

func TestErrorsAccumulate(t *testing.T) {
	spec := domain.ResolutionSpec{
		MarketID:   "   ",
		Source:     &domain.HTTPSource{Method: "PUT", URL: "not a url"},
		Extraction: &domain.JSONPathExtraction{Path: "$["},
		Transform:  domain.Transform{Type: "median"},
		Rule:       domain.Rule{Type: "between", Value: math.NaN()},
	}
	rep := newValidator(t).Validate(spec)
	assert.False(t, rep.Valid)
	require.Len(t, rep.Errors, 7)
	assert.True(t, strings.HasPrefix(rep.Errors[0], "marketId"))
	assert.True(t, strings.HasPrefix(rep.Errors[1], "source.method"))
	assert.True(t, strings.HasPrefix(rep.Errors[2], "source.url"))
	assert.True(t, strings.HasPrefix(rep.Errors[3], "extraction.path"))
	assert.True(t, strings.HasPrefix(rep.Errors[4], "transform.type"))
	assert.True(t, strings.HasPrefix(rep.Errors[5], "rule.type"))
	assert.Equal(t, "rule.value: must be a finite number", rep.Errors[6])
}

func TestMissingVariants(t *testing.T) {
	rep := newValidator(t).Validate(domain.ResolutionSpec{
		MarketID:  "m",
		Transform: domain.Transform{Type: domain.TransformDecimal},
		Rule:      domain.Rule{Type: domain.RuleEquals},
	})
	assert.False(t, rep.Valid)
	assert.Equal(t, []string{"source: is required", "extraction: is required"}, rep.Errors)
}

func TestBrowserSource(t *testing.T) {
	empty := "  "
	spec := validSpec()
	spec.Source = &domain.BrowserSource{URL: "https://www.bls.gov/cpi", WaitFor: &empty}
	rep := newValidator(t).Validate(spec)
	assert.False(t, rep.Valid)
	assert.Contains(t, rep.Errors[0], "waitFor")

	sel := "#main"
	spec.Source = &domain.BrowserSource{URL: "https://www.bls.gov/cpi", WaitFor: &sel}
	assert.True(t, newValidator(t).Validate(spec).Valid)

	spec.Source = &domain.BrowserSource{URL: "/relative"}
	assert.False(t, newValidator(t).Validate(spec).Valid)
}

func TestSecretHeaders(t *testing.T) {
	spec := validSpec()
	spec.Source = &domain.HTTPSource{
		Method: "GET",
		URL:    "https://api.example.com",
		Headers: map[string]string{
			"X-Known":   "$env:ODDS_API_KEY",
			"X-Unknown": "$env:SOMETHING_ELSE",
			"Accept":    "application/json",
		},
	}
	rep := newValidator(t).Validate(spec)
	assert.True(t, rep.Valid)
	require.Len(t, rep.Warnings, 1)
	assert.Contains(t, rep.Warnings[0], "SOMETHING_ELSE")

	spec.Source.(*domain.HTTPSource).Headers["X-Bad"] = "$env:"
	rep = newValidator(t).Validate(spec)
	assert.False(t, rep.Valid)
	assert.Contains(t, rep.Errors[0], "X-Bad")
}

func TestScriptExtraction(t *testing.T) {
	v := newValidator(t)
	for _, code := range []string{
		`function extract(raw) { return raw; }`,
		`const extract = (raw) => raw;`,
		`let extract = raw => raw;`,
		`var extract = function (raw) { return raw; };`,
		"// helper\nfunction helper() {}\nfunction extract(raw) { return helper(raw); }",
	} {
		spec := validSpec()
		spec.Extraction = &domain.ScriptExtraction{Lang: "javascript", Code: code}
		rep := v.Validate(spec)
		assert.True(t, rep.Valid, code)
		assert.Empty(t, rep.Warnings, code)
	}

	for _, code := range []string{
		`function extractor(raw) { return raw; }`,
		`const notextract = raw => raw;`,
		`obj.extract = function(raw) { return raw; };`,
		`return 1;`,
	} {
		spec := validSpec()
		spec.Extraction = &domain.ScriptExtraction{Lang: "javascript", Code: code}
		rep := v.Validate(spec)
		assert.False(t, rep.Valid, code)
	}

	spec := validSpec()
	spec.Extraction = &domain.ScriptExtraction{Lang: "python", Code: `function extract(r) { return r; }`}
	assert.False(t, v.Validate(spec).Valid)
}

func TestScriptDenylistWarnings(t *testing.T) {
	spec := validSpec()
	spec.Extraction = &domain.ScriptExtraction{Lang: "javascript", Code: `
		const fs = require("fs");
		function extract(raw) {
			setTimeout(function () {}, 10);
			fetch("https://example.com");
			new XMLHttpRequest();
			return process.env.HOME;
		}`}
	rep := newValidator(t).Validate(spec)
	assert.True(t, rep.Valid)
	assert.Len(t, rep.Warnings, 4)
}

func TestScoreHeuristic(t *testing.T) {
	spec := validSpec()
	spec.Transform = domain.Transform{Type: domain.TransformScoreDiff}
	for _, path := range []string{"$.score.home", "$.score['away']", `$.score["home"]`} {
		spec.Extraction = &domain.JSONPathExtraction{Path: path}
		rep := newValidator(t).Validate(spec)
		assert.True(t, rep.Valid, path)
		assert.Len(t, rep.Warnings, 1, path)
	}

	spec.Extraction = &domain.JSONPathExtraction{Path: "$.score"}
	assert.Empty(t, newValidator(t).Validate(spec).Warnings)

	spec.Transform = domain.Transform{Type: domain.TransformDecimal}
	spec.Extraction = &domain.JSONPathExtraction{Path: "$.score.home"}
	assert.Empty(t, newValidator(t).Validate(spec).Warnings)
}

func TestValidateDocument(t *testing.T) {
	doc := `{
		"marketId": "btc-100k",
		"source": {"type": "http", "method": "GET", "url": "https://api.example.com", "query": {"limit": 1, "symbol": "BTC"}},
		"extraction": {"type": "jsonpath", "path": "$.data.amount"},
		"transform": {"type": "decimal"},
		"rule": {"type": "greater_than", "value": 100000},
		"timestampRule": {"type": "after", "utc": "2025-01-01T00:00:00Z"}
	}`
	rep, spec := newValidator(t).ValidateDocument([]byte(doc))
	assert.True(t, rep.Valid, rep.Errors)
	require.NotNil(t, spec)
	assert.Equal(t, "btc-100k", spec.MarketID)
	src := spec.Source.(*domain.HTTPSource)
	assert.True(t, src.Query["limit"].IsNumber())
	assert.False(t, src.Query["symbol"].IsNumber())
}

func TestValidateDocumentSchemaErrors(t *testing.T) {
	doc := `{
		"marketId": "m",
		"source": {"type": "http", "method": "GET", "url": "https://x.example", "extra": 1},
		"extraction": {"type": "jsonpath", "path": "$.a"},
		"transform": {"type": "decimal"},
		"rule": {"type": "equals", "value": "7"}
	}`
	rep, _ := newValidator(t).ValidateDocument([]byte(doc))
	assert.False(t, rep.Valid)
	var schemaErrs int
	for _, e := range rep.Errors {
		if strings.HasPrefix(e, "schema:") {
			schemaErrs++
		}
	}
	assert.GreaterOrEqual(t, schemaErrs, 2, rep.Errors)

	rep, spec := newValidator(t).ValidateDocument([]byte(`{"source": {"type": "ftp"}}`))
	assert.False(t, rep.Valid)
	assert.Nil(t, spec)

	rep, spec = newValidator(t).ValidateDocument([]byte(`not json`))
	assert.False(t, rep.Valid)
	assert.Nil(t, spec)
}

func TestValidateTemplateDocument(t *testing.T) {
	doc := `{
		"marketIdTemplate": "match-{id}",
		"source": {"type": "http", "method": "GET", "url": "https://api.example.com/matches/{id}"},
		"extraction": {"type": "jsonpath", "path": "$.score"},
		"transform": {"type": "score_diff"},
		"rule": {"type": "greater_than", "value": "{line}"},
		"params": [{"name": "id", "values": [1, 2]}, {"name": "line", "values": ["0.5", "1.5"]}]
	}`
	rep, tmpl := newValidator(t).ValidateTemplateDocument([]byte(doc))
	assert.True(t, rep.Valid, rep.Errors)
	require.NotNil(t, tmpl)
	assert.Equal(t, domain.ParamValue("1"), tmpl.Params[0].Values[0])
	assert.True(t, tmpl.Rule.Value.IsExpr)

	rep, _ = newValidator(t).ValidateTemplateDocument([]byte(`{"marketIdTemplate": ""}`))
	assert.False(t, rep.Valid)
}
