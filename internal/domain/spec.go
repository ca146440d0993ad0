package domain

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strconv"

	"github.com/gitadpal/voran/internal/jsnum"
)

// SourceKind tags the Source variants on the wire.
type SourceKind string

const (
	SourceHTTP    SourceKind = "http"
	SourceBrowser SourceKind = "browser"
)

// Source describes where the raw response comes from. The concrete variants
// are *HTTPSource and *BrowserSource; consumers switch on the concrete type.
type Source interface {
	Kind() SourceKind
	isSource()
}

// HTTPSource fetches a URL with a plain HTTP request.
type HTTPSource struct {
	Method  string
	URL     string
	Query   map[string]QueryValue
	Headers map[string]string
}

func (*HTTPSource) Kind() SourceKind { return SourceHTTP }
func (*HTTPSource) isSource()        {}

// BrowserSource renders a page in a headless browser, optionally waiting for
// a CSS selector to become visible before capturing it.
type BrowserSource struct {
	URL     string
	WaitFor *string
}

func (*BrowserSource) Kind() SourceKind { return SourceBrowser }
func (*BrowserSource) isSource()        {}

// QueryValue is a query-string value that is either a string or a number.
// The distinction is kept so that a spec hashes the same way it was written.
type QueryValue struct {
	str   string
	num   float64
	isNum bool
}

// StringQuery returns a string-typed query value.
func StringQuery(s string) QueryValue { return QueryValue{str: s} }

// NumberQuery returns a number-typed query value.
func NumberQuery(f float64) QueryValue { return QueryValue{num: f, isNum: true} }

// IsNumber reports whether the value is number-typed.
func (q QueryValue) IsNumber() bool { return q.isNum }

// Number returns the numeric value; zero for string-typed values.
func (q QueryValue) Number() float64 { return q.num }

// String renders the value as it appears in a URL.
func (q QueryValue) String() string {
	if q.isNum {
		return jsnum.Format(q.num)
	}
	return q.str
}

func (q QueryValue) MarshalJSON() ([]byte, error) {
	if q.isNum {
		return []byte(jsnum.Format(q.num)), nil
	}
	return json.Marshal(q.str)
}

func (q *QueryValue) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if len(data) > 0 && data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		*q = StringQuery(s)
		return nil
	}
	f, err := strconv.ParseFloat(string(data), 64)
	if err != nil {
		return fmt.Errorf("query value must be a string or a number, got %s", data)
	}
	*q = NumberQuery(f)
	return nil
}

// ExtractionKind tags the Extraction variants on the wire.
type ExtractionKind string

const (
	ExtractionJSONPath ExtractionKind = "jsonpath"
	ExtractionScript   ExtractionKind = "script"
)

// Extraction describes how a single value is pulled out of the raw response.
// The concrete variants are *JSONPathExtraction and *ScriptExtraction.
type Extraction interface {
	Kind() ExtractionKind
	isExtraction()
}

// JSONPathExtraction selects the first match of a JSONPath query.
type JSONPathExtraction struct {
	Path string
}

func (*JSONPathExtraction) Kind() ExtractionKind { return ExtractionJSONPath }
func (*JSONPathExtraction) isExtraction()        {}

// ScriptExtraction runs an author-supplied extract(raw) function in the
// sandbox.
type ScriptExtraction struct {
	Lang string
	Code string
}

func (*ScriptExtraction) Kind() ExtractionKind { return ExtractionScript }
func (*ScriptExtraction) isExtraction()        {}

// ScriptLangJavaScript is the only supported script language.
const ScriptLangJavaScript = "javascript"

// TransformType selects the value transformation.
type TransformType string

const (
	TransformDecimal   TransformType = "decimal"
	TransformScoreDiff TransformType = "score_diff"
	TransformScoreSum  TransformType = "score_sum"
)

// Transform wraps the transform selector as it appears in a spec document.
type Transform struct {
	Type TransformType `json:"type"`
}

// RuleType selects the comparison applied to the transformed value.
type RuleType string

const (
	RuleGreaterThan RuleType = "greater_than"
	RuleLessThan    RuleType = "less_than"
	RuleEquals      RuleType = "equals"
)

// Rule compares the transformed value against a threshold.
type Rule struct {
	Type  RuleType `json:"type"`
	Value float64  `json:"value"`
}

func (r *Rule) UnmarshalJSON(data []byte) error {
	var wire struct {
		Type  RuleType         `json:"type"`
		Value *json.RawMessage `json:"value"`
	}
	if err := json.Unmarshal(data, &wire); err != nil {
		return err
	}
	if wire.Value == nil {
		return fmt.Errorf("rule: value is required")
	}
	var v float64
	if err := json.Unmarshal(*wire.Value, &v); err != nil {
		return fmt.Errorf("rule: value must be a number, got %s", *wire.Value)
	}
	r.Type = wire.Type
	r.Value = v
	return nil
}

// TimestampRule is advisory metadata carried with the spec and hashed with
// it; the engine never interprets it.
type TimestampRule struct {
	Type string `json:"type"`
	UTC  string `json:"utc"`
}

// ResolutionSpec is the immutable description of one resolvable question.
type ResolutionSpec struct {
	MarketID      string
	Source        Source
	Extraction    Extraction
	Transform     Transform
	Rule          Rule
	TimestampRule *TimestampRule
}

type specWire struct {
	MarketID      string          `json:"marketId"`
	Source        json.RawMessage `json:"source"`
	Extraction    json.RawMessage `json:"extraction"`
	Transform     Transform       `json:"transform"`
	Rule          Rule            `json:"rule"`
	TimestampRule *TimestampRule  `json:"timestampRule,omitempty"`
}

func (s ResolutionSpec) MarshalJSON() ([]byte, error) {
	src, err := MarshalSource(s.Source)
	if err != nil {
		return nil, err
	}
	ext, err := MarshalExtraction(s.Extraction)
	if err != nil {
		return nil, err
	}
	return json.Marshal(specWire{
		MarketID:      s.MarketID,
		Source:        src,
		Extraction:    ext,
		Transform:     s.Transform,
		Rule:          s.Rule,
		TimestampRule: s.TimestampRule,
	})
}

func (s *ResolutionSpec) UnmarshalJSON(data []byte) error {
	var wire specWire
	if err := json.Unmarshal(data, &wire); err != nil {
		return err
	}
	src, err := UnmarshalSource(wire.Source)
	if err != nil {
		return err
	}
	ext, err := UnmarshalExtraction(wire.Extraction)
	if err != nil {
		return err
	}
	*s = ResolutionSpec{
		MarketID:      wire.MarketID,
		Source:        src,
		Extraction:    ext,
		Transform:     wire.Transform,
		Rule:          wire.Rule,
		TimestampRule: wire.TimestampRule,
	}
	return nil
}

// Clone returns a deep copy so pipeline stages never share mutable state.
func (s ResolutionSpec) Clone() ResolutionSpec {
	out := s
	out.Source = cloneSource(s.Source)
	out.Extraction = cloneExtraction(s.Extraction)
	if s.TimestampRule != nil {
		tr := *s.TimestampRule
		out.TimestampRule = &tr
	}
	return out
}

func cloneSource(src Source) Source {
	switch v := src.(type) {
	case *HTTPSource:
		c := *v
		if v.Query != nil {
			c.Query = make(map[string]QueryValue, len(v.Query))
			for k, q := range v.Query {
				c.Query[k] = q
			}
		}
		if v.Headers != nil {
			c.Headers = make(map[string]string, len(v.Headers))
			for k, h := range v.Headers {
				c.Headers[k] = h
			}
		}
		return &c
	case *BrowserSource:
		c := *v
		if v.WaitFor != nil {
			w := *v.WaitFor
			c.WaitFor = &w
		}
		return &c
	default:
		return src
	}
}

func cloneExtraction(ext Extraction) Extraction {
	switch v := ext.(type) {
	case *JSONPathExtraction:
		c := *v
		return &c
	case *ScriptExtraction:
		c := *v
		return &c
	default:
		return ext
	}
}

type httpSourceWire struct {
	Type    SourceKind            `json:"type"`
	Method  string                `json:"method"`
	URL     string                `json:"url"`
	Query   map[string]QueryValue `json:"query,omitempty"`
	Headers map[string]string     `json:"headers,omitempty"`
}

type browserSourceWire struct {
	Type    SourceKind `json:"type"`
	URL     string     `json:"url"`
	WaitFor *string    `json:"waitFor,omitempty"`
}

type jsonPathWire struct {
	Type ExtractionKind `json:"type"`
	Path string         `json:"path"`
}

type scriptWire struct {
	Type ExtractionKind `json:"type"`
	Lang string         `json:"lang"`
	Code string         `json:"code"`
}

type tagWire struct {
	Type string `json:"type"`
}

// MarshalSource encodes a Source with its "type" tag. A nil source encodes as
// JSON null.
func MarshalSource(src Source) (json.RawMessage, error) {
	switch v := src.(type) {
	case nil:
		return json.RawMessage("null"), nil
	case *HTTPSource:
		return json.Marshal(httpSourceWire{
			Type:    SourceHTTP,
			Method:  v.Method,
			URL:     v.URL,
			Query:   v.Query,
			Headers: v.Headers,
		})
	case *BrowserSource:
		return json.Marshal(browserSourceWire{
			Type:    SourceBrowser,
			URL:     v.URL,
			WaitFor: v.WaitFor,
		})
	default:
		return nil, fmt.Errorf("%w: source %T", ErrUnknownVariant, src)
	}
}

// UnmarshalSource decodes a tagged source. JSON null or an empty message
// yields a nil Source.
func UnmarshalSource(data json.RawMessage) (Source, error) {
	if isNull(data) {
		return nil, nil
	}
	var tag tagWire
	if err := json.Unmarshal(data, &tag); err != nil {
		return nil, fmt.Errorf("source: %w", err)
	}
	switch SourceKind(tag.Type) {
	case SourceHTTP:
		var w httpSourceWire
		if err := json.Unmarshal(data, &w); err != nil {
			return nil, fmt.Errorf("source: %w", err)
		}
		return &HTTPSource{Method: w.Method, URL: w.URL, Query: w.Query, Headers: w.Headers}, nil
	case SourceBrowser:
		var w browserSourceWire
		if err := json.Unmarshal(data, &w); err != nil {
			return nil, fmt.Errorf("source: %w", err)
		}
		return &BrowserSource{URL: w.URL, WaitFor: w.WaitFor}, nil
	default:
		return nil, fmt.Errorf("%w: source type %q", ErrUnknownVariant, tag.Type)
	}
}

// MarshalExtraction encodes an Extraction with its "type" tag.
func MarshalExtraction(ext Extraction) (json.RawMessage, error) {
	switch v := ext.(type) {
	case nil:
		return json.RawMessage("null"), nil
	case *JSONPathExtraction:
		return json.Marshal(jsonPathWire{Type: ExtractionJSONPath, Path: v.Path})
	case *ScriptExtraction:
		return json.Marshal(scriptWire{Type: ExtractionScript, Lang: v.Lang, Code: v.Code})
	default:
		return nil, fmt.Errorf("%w: extraction %T", ErrUnknownVariant, ext)
	}
}

// UnmarshalExtraction decodes a tagged extraction.
func UnmarshalExtraction(data json.RawMessage) (Extraction, error) {
	if isNull(data) {
		return nil, nil
	}
	var tag tagWire
	if err := json.Unmarshal(data, &tag); err != nil {
		return nil, fmt.Errorf("extraction: %w", err)
	}
	switch ExtractionKind(tag.Type) {
	case ExtractionJSONPath:
		var w jsonPathWire
		if err := json.Unmarshal(data, &w); err != nil {
			return nil, fmt.Errorf("extraction: %w", err)
		}
		return &JSONPathExtraction{Path: w.Path}, nil
	case ExtractionScript:
		var w scriptWire
		if err := json.Unmarshal(data, &w); err != nil {
			return nil, fmt.Errorf("extraction: %w", err)
		}
		return &ScriptExtraction{Lang: w.Lang, Code: w.Code}, nil
	default:
		return nil, fmt.Errorf("%w: extraction type %q", ErrUnknownVariant, tag.Type)
	}
}

func isNull(data json.RawMessage) bool {
	trimmed := bytes.TrimSpace(data)
	return len(trimmed) == 0 || bytes.Equal(trimmed, []byte("null"))
}
