package jsnum

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestFormat(t *testing.T) {
	cases := map[float64]string{
		105000.5:     "105000.5",
		1:            "1",
		-3:           "-3",
		1e21:         "1e+21",
		1.5e-7:       "1.5e-7",
		123456789012: "123456789012",
		0.000001:     "0.000001",
	}
	for in, want := range cases {
		assert.Equal(t, want, Format(in), "Format(%v)", in)
	}

	assert.Equal(t, "0", Format(math.Copysign(0, -1)))
	assert.Equal(t, "NaN", Format(math.NaN()))
	assert.Equal(t, "Infinity", Format(math.Inf(1)))
}

func TestIsNumeric(t *testing.T) {
	assert.True(t, IsNumeric("12"))
	assert.True(t, IsNumeric("-12.50"))
	assert.True(t, IsNumeric("+7"))
	assert.False(t, IsNumeric("12a"))
	assert.False(t, IsNumeric("1e5"))
	assert.False(t, IsNumeric(".5"))
	assert.False(t, IsNumeric(""))
}

func TestParse(t *testing.T) {
	for in, want := range map[string]float64{
		"105000.50": 105000.5,
		" 42 ":      42,
		"-1.5e3":    -1500,
		".5":        0.5,
		"7.":        7,
	} {
		got, err := Parse(in)
		if assert.NoError(t, err, in) {
			assert.Equal(t, want, got, in)
		}
	}

	for _, in := range []string{"", "abc", "NaN", "Infinity", "inf", "0x10", "1_000", "1e400", "12px"} {
		_, err := Parse(in)
		assert.ErrorIs(t, err, ErrNotFinite, in)
	}
}

func TestToNumber(t *testing.T) {
	cases := []struct {
		in   any
		want float64
	}{
		{nil, 0},
		{true, 1},
		{false, 0},
		{"", 0},
		{"  12.5 ", 12.5},
		{"-Infinity", math.Inf(-1)},
		{"0b101", 5},
		{"0o17", 15},
		{"0xff", 255},
		{[]any{}, 0},
		{[]any{"7"}, 7},
		{[]any{[]any{3.0}}, 3},
		{[]any{nil}, 0},
	}
	for _, tc := range cases {
		assert.Equal(t, tc.want, ToNumber(tc.in), "ToNumber(%#v)", tc.in)
	}

	for _, bad := range []any{"abc", "-0x10", "1,2", []any{1.0, 2.0}, map[string]any{}, "0x"} {
		assert.True(t, math.IsNaN(ToNumber(bad)), "ToNumber(%#v)", bad)
	}
}
