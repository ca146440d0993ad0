package extract

import (
	"context"
	"testing"

	"github.com/ohler55/ojg/jp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gitadpal/voran/internal/domain"
)

func TestExtractPathFirstMatch(t *testing.T) {
	raw := `{"items":[{"v":"first"},{"v":"second"},{"v":"third"}]}`
	got, err := ExtractPath(raw, "$.items[*].v")
	require.NoError(t, err)
	assert.Equal(t, "first", got)
}

func TestExtractPathScalars(t *testing.T) {
	raw := `{"data":{"amount":"105000.50","n":105000.50,"i":42,"ok":true,"none":null,"big":1e21}}`
	cases := map[string]string{
		"$.data.amount": "105000.50",
		"$.data.n":      "105000.5",
		"$.data.i":      "42",
		"$.data.ok":     "true",
		"$.data.none":   "null",
		"$.data.big":    "1e+21",
	}
	for path, want := range cases {
		got, err := ExtractPath(raw, path)
		require.NoError(t, err, path)
		assert.Equal(t, want, got, path)
	}
}

func TestExtractPathObjectIsCanonical(t *testing.T) {
	raw := `{"score": { "home": 2, "away": 1 , "meta":{"z":1,"a":[1,2]}}}`
	got, err := ExtractPath(raw, "$.score")
	require.NoError(t, err)
	assert.Equal(t, `{"away":1,"home":2,"meta":{"a":[1,2],"z":1}}`, got)
}

func TestExtractPathErrors(t *testing.T) {
	_, err := ExtractPath(`{not json`, "$.a")
	assert.ErrorIs(t, err, domain.ErrInvalidJSON)

	_, err = ExtractPath(`{"a":1}`, "$.b")
	assert.ErrorIs(t, err, domain.ErrNoResults)

	_, err = ExtractPath(`{"a":1}`, "$[")
	assert.Error(t, err)
}

type panickingPath struct{}

func (panickingPath) Get(any) []any { panic("index out of range") }

func TestQueryRecoversFromEvaluatorPanic(t *testing.T) {
	matches, err := query(panickingPath{}, map[string]any{"a": 1})
	assert.Nil(t, matches)
	assert.ErrorIs(t, err, domain.ErrNoResults)
	assert.Contains(t, err.Error(), "index out of range")

	expr, err := jp.ParseString("$.a")
	require.NoError(t, err)
	matches, err = Query(expr, map[string]any{"a": "x"})
	require.NoError(t, err)
	assert.Equal(t, []any{"x"}, matches)
}

func TestExtractorDispatch(t *testing.T) {
	e := New(nil)
	ctx := context.Background()

	got, err := e.Extract(ctx, `{"a":{"b":7}}`, &domain.JSONPathExtraction{Path: "$.a.b"})
	require.NoError(t, err)
	assert.Equal(t, "7", got)

	got, err = e.Extract(ctx, `{"a":{"b":7}}`, &domain.ScriptExtraction{
		Lang: domain.ScriptLangJavaScript,
		Code: `function extract(raw) { return JSON.parse(raw).a.b * 2; }`,
	})
	require.NoError(t, err)
	assert.Equal(t, "14", got)

	_, err = e.Extract(ctx, "{}", &domain.ScriptExtraction{Lang: "python", Code: "def extract(raw): pass"})
	assert.ErrorIs(t, err, domain.ErrUnknownVariant)

	_, err = e.Extract(ctx, "{}", nil)
	assert.ErrorIs(t, err, domain.ErrUnknownVariant)
}
