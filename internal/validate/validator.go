// Package validate checks resolution specs before they are executed.
// Problems are returned as data in a Report; nothing here returns an error
// for a bad spec.
package validate

import (
	"bytes"
	"embed"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"net/url"
	"regexp"
	"sort"
	"strings"

	"github.com/ohler55/ojg/jp"
	"github.com/santhosh-tekuri/jsonschema/v5"

	"github.com/gitadpal/voran/internal/domain"
	"github.com/gitadpal/voran/internal/extract"
	"github.com/gitadpal/voran/internal/secrets"
)

//go:embed schema/*.json
var schemaFS embed.FS

const (
	specSchemaURL     = "https://voran.local/schema/spec.schema.json"
	templateSchemaURL = "https://voran.local/schema/template.schema.json"
)

// SecretCatalog answers whether a secret name is known ahead of time.
type SecretCatalog interface {
	KnownSecret(name string) bool
}

// Report is the outcome of validating one spec.
type Report struct {
	Valid    bool     `json:"valid"`
	Errors   []string `json:"errors"`
	Warnings []string `json:"warnings"`
}

func newReport() Report {
	return Report{Errors: []string{}, Warnings: []string{}}
}

func (r *Report) errorf(format string, args ...any) {
	r.Errors = append(r.Errors, fmt.Sprintf(format, args...))
}

func (r *Report) warnf(format string, args ...any) {
	r.Warnings = append(r.Warnings, fmt.Sprintf(format, args...))
}

func (r *Report) merge(o Report) {
	r.Errors = append(r.Errors, o.Errors...)
	r.Warnings = append(r.Warnings, o.Warnings...)
}

func (r *Report) finish() Report {
	r.Valid = len(r.Errors) == 0
	return *r
}

// Validator checks specs against the document schema and the semantic rules
// of the engine.
type Validator struct {
	catalog        SecretCatalog
	specSchema     *jsonschema.Schema
	templateSchema *jsonschema.Schema
}

// New compiles the embedded schemas. catalog may be nil, in which case every
// secret reference produces a warning.
func New(catalog SecretCatalog) (*Validator, error) {
	c := jsonschema.NewCompiler()
	c.Draft = jsonschema.Draft2020
	for name, u := range map[string]string{
		"schema/spec.schema.json":     specSchemaURL,
		"schema/template.schema.json": templateSchemaURL,
	} {
		data, err := schemaFS.ReadFile(name)
		if err != nil {
			return nil, fmt.Errorf("validate: reading %s: %w", name, err)
		}
		if err := c.AddResource(u, bytes.NewReader(data)); err != nil {
			return nil, fmt.Errorf("validate: loading %s: %w", name, err)
		}
	}
	specSchema, err := c.Compile(specSchemaURL)
	if err != nil {
		return nil, fmt.Errorf("validate: compiling spec schema: %w", err)
	}
	templateSchema, err := c.Compile(templateSchemaURL)
	if err != nil {
		return nil, fmt.Errorf("validate: compiling template schema: %w", err)
	}
	return &Validator{catalog: catalog, specSchema: specSchema, templateSchema: templateSchema}, nil
}

// ValidateDocument checks a raw spec document against the schema, decodes
// it and, when decoding succeeds, runs Validate on the result.
func (v *Validator) ValidateDocument(raw []byte) (Report, *domain.ResolutionSpec) {
	rep := newReport()
	v.checkSchema(&rep, v.specSchema, raw)

	var spec domain.ResolutionSpec
	if err := json.Unmarshal(raw, &spec); err != nil {
		rep.errorf("document: %v", err)
		return rep.finish(), nil
	}
	rep.merge(v.Validate(spec))
	return rep.finish(), &spec
}

// ValidateTemplateDocument checks a raw template document against the
// template schema and decodes it. Expanded specs are validated separately.
func (v *Validator) ValidateTemplateDocument(raw []byte) (Report, *domain.TemplateSpec) {
	rep := newReport()
	v.checkSchema(&rep, v.templateSchema, raw)

	var t domain.TemplateSpec
	if err := json.Unmarshal(raw, &t); err != nil {
		rep.errorf("document: %v", err)
		return rep.finish(), nil
	}
	if strings.TrimSpace(t.MarketIDTemplate) == "" {
		rep.errorf("marketIdTemplate: must be a non-empty string")
	}
	return rep.finish(), &t
}

func (v *Validator) checkSchema(rep *Report, schema *jsonschema.Schema, raw []byte) {
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()
	var doc any
	if err := dec.Decode(&doc); err != nil {
		rep.errorf("document: invalid JSON: %v", err)
		return
	}
	err := schema.Validate(doc)
	if err == nil {
		return
	}
	var verr *jsonschema.ValidationError
	if !errors.As(err, &verr) {
		rep.errorf("document: %v", err)
		return
	}
	for _, leaf := range leaves(verr) {
		loc := leaf.InstanceLocation
		if loc == "" {
			loc = "/"
		}
		rep.errorf("schema: %s: %s", loc, leaf.Message)
	}
}

func leaves(e *jsonschema.ValidationError) []*jsonschema.ValidationError {
	if len(e.Causes) == 0 {
		return []*jsonschema.ValidationError{e}
	}
	var out []*jsonschema.ValidationError
	for _, c := range e.Causes {
		out = append(out, leaves(c)...)
	}
	return out
}

// Validate runs every semantic check on spec and accumulates the results.
func (v *Validator) Validate(spec domain.ResolutionSpec) Report {
	rep := newReport()

	if strings.TrimSpace(spec.MarketID) == "" {
		rep.errorf("marketId: must be a non-empty string")
	}

	v.checkSource(&rep, spec.Source)
	v.checkExtraction(&rep, spec.Extraction)

	switch spec.Transform.Type {
	case domain.TransformDecimal, domain.TransformScoreDiff, domain.TransformScoreSum:
	default:
		rep.errorf("transform.type: %q is not one of decimal, score_diff, score_sum", spec.Transform.Type)
	}

	switch spec.Rule.Type {
	case domain.RuleGreaterThan, domain.RuleLessThan, domain.RuleEquals:
	default:
		rep.errorf("rule.type: %q is not one of greater_than, less_than, equals", spec.Rule.Type)
	}
	if math.IsNaN(spec.Rule.Value) || math.IsInf(spec.Rule.Value, 0) {
		rep.errorf("rule.value: must be a finite number")
	}

	checkScoreHeuristic(&rep, spec)

	return rep.finish()
}

func (v *Validator) checkSource(rep *Report, src domain.Source) {
	switch s := src.(type) {
	case nil:
		rep.errorf("source: is required")
	case *domain.HTTPSource:
		if s.Method != "GET" && s.Method != "POST" {
			rep.errorf("source.method: %q is not GET or POST", s.Method)
		}
		if u, ok := checkURL(rep, s.URL); ok && u.Scheme == "http" {
			rep.warnf("source.url: %s uses unencrypted http", s.URL)
		}
		v.checkHeaders(rep, s.Headers)
	case *domain.BrowserSource:
		checkURL(rep, s.URL)
		if s.WaitFor != nil && strings.TrimSpace(*s.WaitFor) == "" {
			rep.errorf("source.waitFor: must be a non-empty selector when present")
		}
	default:
		rep.errorf("source: unsupported variant %T", src)
	}
}

func checkURL(rep *Report, raw string) (*url.URL, bool) {
	u, err := url.Parse(raw)
	if err != nil {
		rep.errorf("source.url: %v", err)
		return nil, false
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		rep.errorf("source.url: %q must be an absolute http or https URL", raw)
		return nil, false
	}
	if u.Host == "" {
		rep.errorf("source.url: %q has no host", raw)
		return nil, false
	}
	return u, true
}

func (v *Validator) checkHeaders(rep *Report, headers map[string]string) {
	names := make([]string, 0, len(headers))
	for k := range headers {
		names = append(names, k)
	}
	sort.Strings(names)

	for _, h := range names {
		secret, ok := secrets.ParseRef(headers[h])
		if !ok {
			continue
		}
		if secret == "" {
			rep.errorf("source.headers.%s: %s reference has no secret name", h, domain.EnvSecretPrefix)
			continue
		}
		if v.catalog == nil || !v.catalog.KnownSecret(secret) {
			rep.warnf("source.headers.%s: secret %s is not declared by any registry source", h, secret)
		}
	}
}

var (
	extractDecl = regexp.MustCompile(
		`(?:^|[^\w$.])(?:async\s+)?function\s*\*?\s*extract\s*\(` +
			`|(?:^|[^\w$.])(?:const|let|var)\s+extract\s*=\s*(?:async\s+)?(?:function\b|\([^)]*\)\s*=>|[A-Za-z_$][\w$]*\s*=>)`)

	capabilityPatterns = []struct {
		name string
		re   *regexp.Regexp
	}{
		{"module loading", regexp.MustCompile(`(?m)\brequire\s*\(|\bimport\s*\(|^\s*import\s`)},
		{"network access", regexp.MustCompile(`\b(?:fetch|XMLHttpRequest|WebSocket)\b`)},
		{"process/environment access", regexp.MustCompile(`\b(?:process|Deno)\b`)},
		{"timers", regexp.MustCompile(`\b(?:setTimeout|setInterval|setImmediate|queueMicrotask)\b`)},
	}

	scoreFieldPath = regexp.MustCompile(`(?:\.(?:home|away)|\[\s*['"](?:home|away)['"]\s*\])$`)
)

func (v *Validator) checkExtraction(rep *Report, ext domain.Extraction) {
	switch e := ext.(type) {
	case nil:
		rep.errorf("extraction: is required")
	case *domain.JSONPathExtraction:
		if err := compilePath(e.Path); err != nil {
			rep.errorf("extraction.path: %v", err)
		}
	case *domain.ScriptExtraction:
		if e.Lang != domain.ScriptLangJavaScript {
			rep.errorf("extraction.lang: %q is not supported, use javascript", e.Lang)
		}
		if !extractDecl.MatchString(e.Code) {
			rep.errorf("extraction.code: must declare a function named extract")
		}
		for _, c := range capabilityPatterns {
			if c.re.MatchString(e.Code) {
				rep.warnf("extraction.code: references %s, which is not available in the sandbox", c.name)
			}
		}
	default:
		rep.errorf("extraction: unsupported variant %T", ext)
	}
}

// compilePath parses the query and runs it once against an empty document.
func compilePath(path string) error {
	if strings.TrimSpace(path) == "" {
		return errors.New("must be a non-empty JSONPath")
	}
	expr, err := jp.ParseString(path)
	if err != nil {
		return err
	}
	_, err = extract.Query(expr, map[string]any{})
	return err
}

func checkScoreHeuristic(rep *Report, spec domain.ResolutionSpec) {
	jpExt, ok := spec.Extraction.(*domain.JSONPathExtraction)
	if !ok {
		return
	}
	if spec.Transform.Type != domain.TransformScoreDiff && spec.Transform.Type != domain.TransformScoreSum {
		return
	}
	if scoreFieldPath.MatchString(strings.TrimSpace(jpExt.Path)) {
		rep.warnf("extraction.path: %s selects a single score field but transform %s expects a {home, away} object",
			jpExt.Path, spec.Transform.Type)
	}
}
