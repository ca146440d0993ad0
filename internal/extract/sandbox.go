package extract

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"time"

	"github.com/dop251/goja"
	"github.com/gowebpki/jcs"

	"github.com/gitadpal/voran/internal/domain"
	"github.com/gitadpal/voran/internal/jsnum"
)

// DefaultScriptTimeout bounds each sandbox phase when no budget is configured.
const DefaultScriptTimeout = 5 * time.Second

const defaultMaxCallStack = 1024

// allowedGlobals is the complete set of names left on the global object
// before author code runs. Everything else the engine installs is removed.
var allowedGlobals = map[string]bool{
	"JSON": true, "Math": true,
	"String": true, "Number": true, "Boolean": true,
	"Array": true, "Object": true, "RegExp": true, "Date": true,
	"Error": true, "TypeError": true, "RangeError": true, "SyntaxError": true,
	"parseInt": true, "parseFloat": true, "isNaN": true, "isFinite": true,
	"encodeURI": true, "encodeURIComponent": true,
	"decodeURI": true, "decodeURIComponent": true,
	"NaN": true, "Infinity": true, "undefined": true,
}

// SandboxConfig holds the sandbox budgets. Zero values select defaults.
type SandboxConfig struct {
	DefineTimeout    time.Duration
	CallTimeout      time.Duration
	MaxCallStackSize int
}

// Sandbox runs extract(raw) scripts. Each Run gets a fresh interpreter, so
// nothing leaks between resolutions.
//
// The author must not depend on wall-clock time or randomness. Date.now()
// is pinned to the Unix epoch and Math.random() to a fixed sequence, which
// keeps careless scripts reproducible but cannot make them correct.
type Sandbox struct {
	cfg SandboxConfig
}

// NewSandbox creates a Sandbox.
func NewSandbox(cfg SandboxConfig) *Sandbox {
	if cfg.DefineTimeout <= 0 {
		cfg.DefineTimeout = DefaultScriptTimeout
	}
	if cfg.CallTimeout <= 0 {
		cfg.CallTimeout = DefaultScriptTimeout
	}
	if cfg.MaxCallStackSize <= 0 {
		cfg.MaxCallStackSize = defaultMaxCallStack
	}
	return &Sandbox{cfg: cfg}
}

// Run compiles code, runs its top level under the define budget, then calls
// extract(raw) under the call budget.
func (s *Sandbox) Run(ctx context.Context, code, raw string) (string, error) {
	prog, err := goja.Compile("extract.js", code, false)
	if err != nil {
		return "", fmt.Errorf("extract/sandbox: %w: %v", domain.ErrScriptCompile, err)
	}

	vm := s.newRuntime()

	var fn goja.Callable
	_, err = s.withBudget(ctx, vm, s.cfg.DefineTimeout, func() (goja.Value, error) {
		if _, err := vm.RunProgram(prog); err != nil {
			return nil, err
		}
		v, err := vm.RunString(`typeof extract === "function" ? extract : undefined`)
		if err != nil {
			return nil, err
		}
		f, ok := goja.AssertFunction(v)
		if !ok {
			return nil, domain.ErrScriptNoExtract
		}
		fn = f
		return v, nil
	})
	if err != nil {
		if errors.Is(err, domain.ErrScriptNoExtract) {
			return "", fmt.Errorf("extract/sandbox: %w", err)
		}
		return "", s.classify("define", err)
	}

	res, err := s.withBudget(ctx, vm, s.cfg.CallTimeout, func() (goja.Value, error) {
		return fn(goja.Undefined(), vm.ToValue(raw))
	})
	if err != nil {
		return "", s.classify("call", err)
	}
	return resultString(res)
}

func (s *Sandbox) newRuntime() *goja.Runtime {
	vm := goja.New()
	rng := rand.New(rand.NewSource(1))
	vm.SetRandSource(rng.Float64)
	vm.SetTimeSource(func() time.Time { return time.Unix(0, 0).UTC() })
	vm.SetMaxCallStackSize(s.cfg.MaxCallStackSize)

	global := vm.GlobalObject()
	for _, name := range global.GetOwnPropertyNames() {
		if !allowedGlobals[name] {
			_ = global.Delete(name)
		}
	}
	return vm
}

// budgetExceeded is the interrupt value used when a phase runs out of time
// or the caller's context ends.
type budgetExceeded struct {
	cause error
}

// withBudget runs fn and interrupts the runtime if it outlives budget or ctx.
// The watcher goroutine has always exited before the interrupt flag is
// cleared, so a late interrupt never bleeds into the next phase.
func (s *Sandbox) withBudget(ctx context.Context, vm *goja.Runtime, budget time.Duration, fn func() (goja.Value, error)) (goja.Value, error) {
	ctx, cancel := context.WithTimeout(ctx, budget)
	defer cancel()

	stop := make(chan struct{})
	exited := make(chan struct{})
	go func() {
		defer close(exited)
		select {
		case <-ctx.Done():
			vm.Interrupt(budgetExceeded{cause: ctx.Err()})
		case <-stop:
		}
	}()

	v, err := fn()
	close(stop)
	<-exited
	vm.ClearInterrupt()
	return v, err
}

func (s *Sandbox) classify(phase string, err error) error {
	var interrupted *goja.InterruptedError
	if errors.As(err, &interrupted) {
		if b, ok := interrupted.Value().(budgetExceeded); ok && !errors.Is(b.cause, context.Canceled) {
			return fmt.Errorf("extract/sandbox: %s: %w", phase, domain.ErrScriptTimeout)
		}
		return fmt.Errorf("extract/sandbox: %s: %w: %w", phase, domain.ErrScriptRuntime, context.Canceled)
	}
	var syntax *goja.CompilerSyntaxError
	if errors.As(err, &syntax) {
		return fmt.Errorf("extract/sandbox: %s: %w: %v", phase, domain.ErrScriptCompile, err)
	}
	return fmt.Errorf("extract/sandbox: %s: %w: %v", phase, domain.ErrScriptRuntime, err)
}

// resultString converts the value returned by extract into the extractor's
// string contract.
func resultString(v goja.Value) (string, error) {
	if v == nil || goja.IsUndefined(v) || goja.IsNull(v) {
		return "", fmt.Errorf("extract/sandbox: %w: %w: extract returned null or undefined",
			domain.ErrScriptRuntime, domain.ErrScriptResult)
	}
	if _, isFn := goja.AssertFunction(v); isFn {
		return "", fmt.Errorf("extract/sandbox: %w: %w: extract returned a function",
			domain.ErrScriptRuntime, domain.ErrScriptResult)
	}

	switch t := v.Export().(type) {
	case string:
		return t, nil
	case bool:
		if t {
			return "true", nil
		}
		return "false", nil
	case int64:
		return jsnum.Format(float64(t)), nil
	case float64:
		return jsnum.Format(t), nil
	}

	obj, ok := v.(*goja.Object)
	if !ok {
		return v.String(), nil
	}
	b, err := obj.MarshalJSON()
	if err != nil {
		return "", fmt.Errorf("extract/sandbox: %w: %w: %v", domain.ErrScriptRuntime, domain.ErrScriptResult, err)
	}
	out, err := jcs.Transform(b)
	if err != nil {
		return "", fmt.Errorf("extract/sandbox: %w: %w: %v", domain.ErrScriptRuntime, domain.ErrScriptResult, err)
	}
	return string(out), nil
}
