package domain

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strconv"

	"github.com/gitadpal/voran/internal/jsnum"
)

// TemplateSpec produces one ResolutionSpec per parameter row. Any string in
// Source, Extraction and TimestampRule may contain {name} placeholders.
type TemplateSpec struct {
	MarketIDTemplate string
	Source           Source
	Extraction       Extraction
	Transform        Transform
	Rule             TemplateRule
	TimestampRule    *TimestampRule
	Params           []Param
}

// TemplateRule is a Rule whose value may still be a placeholder string.
type TemplateRule struct {
	Type  RuleType          `json:"type"`
	Value TemplateRuleValue `json:"value"`
}

// TemplateRuleValue is either a literal number or an expression containing
// placeholders that must resolve to a finite number.
type TemplateRuleValue struct {
	Number float64
	Expr   string
	IsExpr bool
}

func (v TemplateRuleValue) MarshalJSON() ([]byte, error) {
	if v.IsExpr {
		return json.Marshal(v.Expr)
	}
	return json.Marshal(v.Number)
}

func (v *TemplateRuleValue) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if len(data) > 0 && data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		*v = TemplateRuleValue{Expr: s, IsExpr: true}
		return nil
	}
	var f float64
	if err := json.Unmarshal(data, &f); err != nil {
		return fmt.Errorf("rule value must be a number or a string, got %s", data)
	}
	*v = TemplateRuleValue{Number: f}
	return nil
}

// Param is one named column of substitution values. All params of a
// template must have the same number of values.
type Param struct {
	Name   string       `json:"name"`
	Values []ParamValue `json:"values"`
}

// ParamValue is a substitution value. Booleans keep their lexical form;
// numbers are rendered as JavaScript would print them (1.50 becomes 1.5).
// Strings are never rewritten.
type ParamValue string

func (p ParamValue) MarshalJSON() ([]byte, error) {
	return json.Marshal(string(p))
}

func (p *ParamValue) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	switch {
	case len(data) > 0 && data[0] == '"':
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		*p = ParamValue(s)
	case bytes.Equal(data, []byte("true")), bytes.Equal(data, []byte("false")):
		*p = ParamValue(data)
	default:
		f, err := strconv.ParseFloat(string(data), 64)
		if err != nil {
			return fmt.Errorf("param value must be a string, number or boolean, got %s", data)
		}
		*p = ParamValue(jsnum.Format(f))
	}
	return nil
}

type templateWire struct {
	MarketIDTemplate string          `json:"marketIdTemplate"`
	Source           json.RawMessage `json:"source"`
	Extraction       json.RawMessage `json:"extraction"`
	Transform        Transform       `json:"transform"`
	Rule             TemplateRule    `json:"rule"`
	TimestampRule    *TimestampRule  `json:"timestampRule,omitempty"`
	Params           []Param         `json:"params"`
}

func (t TemplateSpec) MarshalJSON() ([]byte, error) {
	src, err := MarshalSource(t.Source)
	if err != nil {
		return nil, err
	}
	ext, err := MarshalExtraction(t.Extraction)
	if err != nil {
		return nil, err
	}
	return json.Marshal(templateWire{
		MarketIDTemplate: t.MarketIDTemplate,
		Source:           src,
		Extraction:       ext,
		Transform:        t.Transform,
		Rule:             t.Rule,
		TimestampRule:    t.TimestampRule,
		Params:           t.Params,
	})
}

func (t *TemplateSpec) UnmarshalJSON(data []byte) error {
	var wire templateWire
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
	*t = TemplateSpec{
		MarketIDTemplate: wire.MarketIDTemplate,
		Source:           src,
		Extraction:       ext,
		Transform:        wire.Transform,
		Rule:             wire.Rule,
		TimestampRule:    wire.TimestampRule,
		Params:           wire.Params,
	}
	return nil
}
