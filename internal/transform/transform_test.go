package transform

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gitadpal/voran/internal/domain"
)

func TestDecimal(t *testing.T) {
	got, err := Apply("105000.50", domain.TransformDecimal)
	require.NoError(t, err)
	assert.Equal(t, "105000.5", got)

	got, err = Apply(" 3.000 ", domain.TransformDecimal)
	require.NoError(t, err)
	assert.Equal(t, "3", got)

	for _, bad := range []string{"", "abc", "Infinity", "1e999", `{"a":1}`} {
		_, err := Apply(bad, domain.TransformDecimal)
		assert.ErrorIs(t, err, domain.ErrTransform, bad)
	}
}

func TestScoreTransforms(t *testing.T) {
	diff, err := Apply(`{"home":2,"away":1}`, domain.TransformScoreDiff)
	require.NoError(t, err)
	assert.Equal(t, "1", diff)

	sum, err := Apply(`{"home":2,"away":1}`, domain.TransformScoreSum)
	require.NoError(t, err)
	assert.Equal(t, "3", sum)

	diff, err = Apply(`{"away":"3","home":"1","extra":true}`, domain.TransformScoreDiff)
	require.NoError(t, err)
	assert.Equal(t, "-2", diff)

	coerced := map[string]string{
		`{"home":null,"away":1}`:      "-1",
		`{"home":true,"away":1}`:      "0",
		`{"home":"","away":1}`:        "-1",
		`{"home":" 4 ","away":false}`: "4",
		`{"home":"0x10","away":[6]}`:  "10",
		`{"home":[],"away":"1e2"}`:    "-100",
	}
	for in, want := range coerced {
		got, err := Apply(in, domain.TransformScoreDiff)
		require.NoError(t, err, in)
		assert.Equal(t, want, got, in)
	}
}

func TestScoreTransformErrors(t *testing.T) {
	cases := []string{
		`not json`,
		`null`,
		`[1,2]`,
		`{"home":2}`,
		`{"home":"two","away":1}`,
		`{"home":{"n":1},"away":1}`,
		`{"home":[1,2],"away":1}`,
		`{"home":"1,5","away":1}`,
		`{"home":"Infinity","away":"-Infinity"}`,
	}
	for _, in := range cases {
		_, err := Apply(in, domain.TransformScoreSum)
		assert.ErrorIs(t, err, domain.ErrTransform, in)
	}
}

func TestUnknownTransform(t *testing.T) {
	_, err := Apply("1", domain.TransformType("median"))
	assert.ErrorIs(t, err, domain.ErrTransform)
}
