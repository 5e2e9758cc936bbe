// Package formula compiles computed-field expressions such as
// "qty * price * (1 + vat)" into functions over a record's values.
//
// Expressions use the expr language (github.com/expr-lang/expr). Field
// references may be written bare or in brackets ("[qty] * [price]"); the
// bracket form is rewritten before compilation.
package formula

import (
	"fmt"
	"regexp"

	"github.com/expr-lang/expr"
	"github.com/expr-lang/expr/vm"
)

// Func evaluates a compiled formula against field values.
type Func func(values map[string]any) (any, error)

// bracketRef matches "[name]" field references.
var bracketRef = regexp.MustCompile(`\[([A-Za-z_][A-Za-z0-9_]*)\]`)

// Normalize rewrites bracketed field references to bare identifiers.
func Normalize(src string) string {
	return bracketRef.ReplaceAllString(src, "$1")
}

// Compile type-checks src against sample, which maps every field the
// formula may reference to a zero value of the type it will hold at run
// time (float64 for numbers, string, bool, time.Time). Integer inputs are
// widened to float64 on evaluation so mixed arithmetic type-checks once.
func Compile(src string, sample map[string]any) (Func, error) {
	program, err := expr.Compile(Normalize(src), expr.Env(sample))
	if err != nil {
		return nil, fmt.Errorf("compile %q: %w", src, err)
	}
	return func(values map[string]any) (any, error) {
		return run(program, src, sample, values)
	}, nil
}

// ValueFunc rewrites a single value.
type ValueFunc func(value any) (any, error)

// CompileValue compiles an expression over one input named value, such as
// `"INV-" + string(value)`. The input type is unknown until run time, so
// the expression is checked only when it runs.
func CompileValue(src string) (ValueFunc, error) {
	program, err := expr.Compile(Normalize(src))
	if err != nil {
		return nil, fmt.Errorf("compile %q: %w", src, err)
	}
	return func(value any) (any, error) {
		out, err := expr.Run(program, map[string]any{"value": value})
		if err != nil {
			return nil, fmt.Errorf("evaluate %q: %w", src, err)
		}
		return out, nil
	}, nil
}

func run(program *vm.Program, src string, sample, values map[string]any) (any, error) {
	env := make(map[string]any, len(sample))
	for name, zero := range sample {
		v, ok := values[name]
		if !ok || v == nil {
			env[name] = zero
			continue
		}
		env[name] = widen(v)
	}
	out, err := expr.Run(program, env)
	if err != nil {
		return nil, fmt.Errorf("evaluate %q: %w", src, err)
	}
	return out, nil
}

// widen converts integer kinds to float64.
func widen(v any) any {
	switch n := v.(type) {
	case int:
		return float64(n)
	case int32:
		return float64(n)
	case int64:
		return float64(n)
	case float32:
		return float64(n)
	default:
		return v
	}
}
