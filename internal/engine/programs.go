package engine

import (
	"fmt"
	"sync"
	"time"

	"github.com/dlclark/regexp2"
	"github.com/expr-lang/expr"
	"github.com/expr-lang/expr/vm"
	"github.com/google/cel-go/cel"
)

// Compiled programs are keyed by source text. Rules are shared across
// requests, so nothing is cached on the rule itself.
var (
	boolPrograms  sync.Map // string -> *vm.Program
	valuePrograms sync.Map // string -> *vm.Program
	celPrograms   sync.Map // string -> cel.Program
	regexCache    sync.Map // string -> *regexp2.Regexp

	celEnvOnce sync.Once
	celEnv     *cel.Env
	celEnvErr  error
)

const (
	regexMatchTimeout = 250 * time.Millisecond
	celCostLimit      = 1000000
)

// CompileExpression compiles a boolean expr-lang expression.
func CompileExpression(expression string) (*vm.Program, error) {
	if p, ok := boolPrograms.Load(expression); ok {
		return p.(*vm.Program), nil
	}
	prog, err := expr.Compile(expression, expr.AsBool())
	if err != nil {
		return nil, fmt.Errorf("compile expression: %w", err)
	}
	boolPrograms.Store(expression, prog)
	return prog, nil
}

// CompileValueExpression compiles an expr-lang expression of any result type.
func CompileValueExpression(expression string) (*vm.Program, error) {
	if p, ok := valuePrograms.Load(expression); ok {
		return p.(*vm.Program), nil
	}
	prog, err := expr.Compile(expression)
	if err != nil {
		return nil, fmt.Errorf("compile value expression: %w", err)
	}
	valuePrograms.Store(expression, prog)
	return prog, nil
}

func exprEnv(data map[string]any) map[string]any {
	return map[string]any{"data": data}
}

// EvaluateExpression runs a boolean expression against the context.
func EvaluateExpression(expression string, data map[string]any) (bool, error) {
	prog, err := CompileExpression(expression)
	if err != nil {
		return false, err
	}
	out, err := expr.Run(prog, exprEnv(data))
	if err != nil {
		return false, fmt.Errorf("evaluate expression: %w", err)
	}
	b, _ := out.(bool)
	return b, nil
}

// EvaluateValueExpression runs an expression and returns its result.
func EvaluateValueExpression(expression string, data map[string]any) (any, error) {
	prog, err := CompileValueExpression(expression)
	if err != nil {
		return nil, err
	}
	out, err := expr.Run(prog, exprEnv(data))
	if err != nil {
		return nil, fmt.Errorf("evaluate expression: %w", err)
	}
	return out, nil
}

func compileRegex(pattern string) (*regexp2.Regexp, error) {
	if re, ok := regexCache.Load(pattern); ok {
		return re.(*regexp2.Regexp), nil
	}
	re, err := regexp2.Compile(pattern, regexp2.ECMAScript)
	if err != nil {
		return nil, fmt.Errorf("invalid regex %q: %w", pattern, err)
	}
	re.MatchTimeout = regexMatchTimeout
	regexCache.Store(pattern, re)
	return re, nil
}

func checkEnv() (*cel.Env, error) {
	celEnvOnce.Do(func() {
		celEnv, celEnvErr = cel.NewEnv(
			cel.Variable("data", cel.MapType(cel.StringType, cel.DynType)),
		)
	})
	return celEnv, celEnvErr
}

// CompileCheck compiles a check-table CEL expression.
func CompileCheck(expression string) (cel.Program, error) {
	if p, ok := celPrograms.Load(expression); ok {
		return p.(cel.Program), nil
	}
	env, err := checkEnv()
	if err != nil {
		return nil, fmt.Errorf("create CEL environment: %w", err)
	}
	ast, issues := env.Compile(expression)
	if issues != nil && issues.Err() != nil {
		return nil, fmt.Errorf("compile check: %w", issues.Err())
	}
	prog, err := env.Program(ast, cel.CostLimit(celCostLimit))
	if err != nil {
		return nil, fmt.Errorf("check program: %w", err)
	}
	celPrograms.Store(expression, prog)
	return prog, nil
}

// EvaluateCheck runs a check expression. Non-boolean results count as false.
func EvaluateCheck(expression string, data map[string]any) (bool, error) {
	prog, err := CompileCheck(expression)
	if err != nil {
		return false, err
	}
	out, _, err := prog.Eval(map[string]any{"data": data})
	if err != nil {
		return false, fmt.Errorf("evaluate check: %w", err)
	}
	b, _ := out.Value().(bool)
	return b, nil
}
