package extract

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gitadpal/voran/internal/domain"
)

func run(t *testing.T, sb *Sandbox, code, raw string) (string, error) {
	t.Helper()
	return sb.Run(context.Background(), code, raw)
}

func TestSandboxDeclarationForms(t *testing.T) {
	sb := NewSandbox(SandboxConfig{})
	forms := []string{
		`function extract(raw) { return raw.toUpperCase(); }`,
		`const extract = (raw) => raw.toUpperCase();`,
		`let extract = function (raw) { return raw.toUpperCase(); };`,
		`var extract = raw => raw.toUpperCase();`,
	}
	for _, code := range forms {
		got, err := run(t, sb, code, "abc")
		require.NoError(t, err, code)
		assert.Equal(t, "ABC", got, code)
	}
}

func TestSandboxResultConversion(t *testing.T) {
	sb := NewSandbox(SandboxConfig{})
	cases := map[string]string{
		`function extract(r) { return 105000.50; }`:                    "105000.5",
		`function extract(r) { return 3; }`:                            "3",
		`function extract(r) { return false; }`:                        "false",
		`function extract(r) { return {home: 2, away: 1}; }`:           `{"away":1,"home":2}`,
		`function extract(r) { return [3, "x", {b: 1, a: 2}]; }`:       `[3,"x",{"a":2,"b":1}]`,
		`function extract(r) { var o = JSON.parse(r); return o.s; }`:   "hello",
		`function extract(r) { return String(0.1 + 0.2); }`:            "0.30000000000000004",
		`function extract(r) { return 1e21; }`:                         "1e+21",
	}
	for code, want := range cases {
		got, err := run(t, sb, code, `{"s":"hello"}`)
		require.NoError(t, err, code)
		assert.Equal(t, want, got, code)
	}
}

func TestSandboxNullResultIsRuntimeError(t *testing.T) {
	sb := NewSandbox(SandboxConfig{})
	for _, code := range []string{
		`function extract(r) { return null; }`,
		`function extract(r) { }`,
	} {
		_, err := run(t, sb, code, "")
		assert.ErrorIs(t, err, domain.ErrScriptResult, code)
		assert.ErrorIs(t, err, domain.ErrScriptRuntime, code)
	}
}

func TestSandboxCapabilitiesAbsent(t *testing.T) {
	sb := NewSandbox(SandboxConfig{})

	got, err := run(t, sb, `function extract(r) {
		return [typeof setTimeout, typeof setInterval, typeof require, typeof fetch,
		        typeof process, typeof console, typeof globalThis, typeof eval,
		        typeof Promise, typeof Proxy, typeof Reflect].join(",");
	}`, "")
	require.NoError(t, err)
	assert.Equal(t, "undefined,undefined,undefined,undefined,undefined,undefined,undefined,undefined,undefined,undefined,undefined", got)

	_, err = run(t, sb, `function extract(r) { return fetch("https://example.com"); }`, "")
	assert.ErrorIs(t, err, domain.ErrScriptRuntime)
	assert.Contains(t, err.Error(), "ReferenceError")

	_, err = run(t, sb, `function extract(r) { setTimeout(function(){}, 1); return "x"; }`, "")
	assert.ErrorIs(t, err, domain.ErrScriptRuntime)
}

func TestSandboxAllowedGlobalsPresent(t *testing.T) {
	sb := NewSandbox(SandboxConfig{})
	got, err := run(t, sb, `function extract(r) {
		return [typeof JSON, typeof Math, typeof String, typeof Number, typeof Array,
		        typeof Object, typeof RegExp, typeof Date, typeof parseFloat,
		        typeof encodeURIComponent, typeof NaN].join(",");
	}`, "")
	require.NoError(t, err)
	assert.Equal(t, "object,object,function,function,function,function,function,function,function,function,number", got)
}

func TestSandboxGlobalObjectIsExactlyAllowList(t *testing.T) {
	sb := NewSandbox(SandboxConfig{})
	got, err := run(t, sb, `var names = Object.getOwnPropertyNames(this).join(",");
		const extract = (r) => names;`, "")
	require.NoError(t, err)

	want := []string{"names"}
	for name := range allowedGlobals {
		want = append(want, name)
	}
	assert.ElementsMatch(t, want, strings.Split(got, ","))
}

func TestSandboxClockAndRandomArePinned(t *testing.T) {
	sb := NewSandbox(SandboxConfig{})
	code := `function extract(r) { return Date.now() + ":" + Math.random(); }`
	a, err := run(t, sb, code, "")
	require.NoError(t, err)
	b, err := run(t, sb, code, "")
	require.NoError(t, err)
	assert.Equal(t, a, b)
	assert.Regexp(t, `^0:`, a)
}

func TestSandboxNoSharedState(t *testing.T) {
	sb := NewSandbox(SandboxConfig{})
	code := `var n = (typeof counter === "undefined") ? 0 : counter;
		counter = n + 1;
		function extract(r) { return counter; }`
	for i := 0; i < 2; i++ {
		got, err := run(t, sb, code, "")
		require.NoError(t, err)
		assert.Equal(t, "1", got)
	}
}

func TestSandboxErrorClasses(t *testing.T) {
	sb := NewSandbox(SandboxConfig{})

	_, err := run(t, sb, `function extract(raw { return 1; }`, "")
	assert.ErrorIs(t, err, domain.ErrScriptCompile)

	_, err = run(t, sb, `function notExtract(raw) { return 1; }`, "")
	assert.ErrorIs(t, err, domain.ErrScriptNoExtract)

	_, err = run(t, sb, `var extract = 5;`, "")
	assert.ErrorIs(t, err, domain.ErrScriptNoExtract)

	_, err = run(t, sb, `function extract(raw) { throw new Error("boom"); }`, "")
	assert.ErrorIs(t, err, domain.ErrScriptRuntime)
	assert.Contains(t, err.Error(), "boom")

	_, err = run(t, sb, `throw new TypeError("at top level"); function extract(r) { return 1; }`, "")
	assert.ErrorIs(t, err, domain.ErrScriptRuntime)

	_, err = run(t, sb, `function extract(raw) { return extract(raw); }`, "")
	assert.ErrorIs(t, err, domain.ErrScriptRuntime)
}

func TestSandboxCallTimeout(t *testing.T) {
	sb := NewSandbox(SandboxConfig{CallTimeout: 100 * time.Millisecond})

	start := time.Now()
	_, err := run(t, sb, `function extract(raw) { while (true) {} }`, "")
	assert.ErrorIs(t, err, domain.ErrScriptTimeout)
	assert.NotErrorIs(t, err, domain.ErrScriptRuntime)
	assert.Less(t, time.Since(start), 3*time.Second)
}

func TestSandboxDefineTimeout(t *testing.T) {
	sb := NewSandbox(SandboxConfig{DefineTimeout: 100 * time.Millisecond})

	start := time.Now()
	_, err := run(t, sb, `for (;;) {} function extract(raw) { return 1; }`, "")
	assert.ErrorIs(t, err, domain.ErrScriptTimeout)
	assert.Less(t, time.Since(start), 3*time.Second)
}

func TestSandboxHonoursContextCancellation(t *testing.T) {
	sb := NewSandbox(SandboxConfig{})
	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(50 * time.Millisecond)
		cancel()
	}()

	start := time.Now()
	_, err := sb.Run(ctx, `function extract(raw) { while (true) {} }`, "")
	assert.Error(t, err)
	assert.ErrorIs(t, err, context.Canceled)
	assert.Less(t, time.Since(start), 3*time.Second)
}
