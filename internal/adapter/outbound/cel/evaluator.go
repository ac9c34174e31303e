// Package cel provides a CEL-based filter expression evaluator for
// simulation runs. Expressions select which sampled entities a
// simulation considers, e.g. `entity_kind == "ticket" &&
// attr_string(attrs, "priority") == "urgent"`.
package cel

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/cespare/xxhash/v2"
	"github.com/google/cel-go/cel"

	"github.com/Desk-Guard/Deskguard/internal/domain/sample"
)

// maxExpressionLength is the maximum allowed length for filter expressions.
const maxExpressionLength = 1024

// maxCostBudget is the CEL runtime cost limit to prevent cost-exhaustion DoS.
const maxCostBudget = 100_000

// maxNestingDepth is the maximum allowed parenthesis/bracket nesting depth.
const maxNestingDepth = 50

// evalTimeout is the maximum time allowed for a single evaluation.
const evalTimeout = 5 * time.Second

// interruptCheckFreq is how often (in comprehension iterations) context
// cancellation is checked.
const interruptCheckFreq = 100

// maxCachedPrograms bounds the compiled-program cache.
const maxCachedPrograms = 256

// Evaluator compiles and evaluates CEL filter expressions against
// sampled entities. Compiled programs are cached by expression hash,
// so repeated simulations with the same filter skip recompilation.
type Evaluator struct {
	env   *cel.Env
	mu    sync.RWMutex
	cache map[uint64]cel.Program
}

// NewEvaluator creates a CEL evaluator with the entity environment.
func NewEvaluator() (*Evaluator, error) {
	env, err := newEntityEnvironment()
	if err != nil {
		return nil, fmt.Errorf("failed to create filter environment: %w", err)
	}
	return &Evaluator{env: env, cache: make(map[uint64]cel.Program)}, nil
}

// Compile parses and type-checks a filter expression, returning a
// compiled program. Results are cached.
func (e *Evaluator) Compile(expression string) (cel.Program, error) {
	key := xxhash.Sum64String(expression)

	e.mu.RLock()
	prg, ok := e.cache[key]
	e.mu.RUnlock()
	if ok {
		return prg, nil
	}

	ast, issues := e.env.Compile(expression)
	if issues != nil && issues.Err() != nil {
		return nil, fmt.Errorf("compilation failed: %w", issues.Err())
	}

	prg, err := e.env.Program(ast,
		cel.EvalOptions(cel.OptOptimize),
		cel.CostLimit(maxCostBudget),
		cel.InterruptCheckFrequency(interruptCheckFreq),
	)
	if err != nil {
		return nil, fmt.Errorf("program creation failed: %w", err)
	}

	e.mu.Lock()
	if len(e.cache) >= maxCachedPrograms {
		e.cache = make(map[uint64]cel.Program)
	}
	e.cache[key] = prg
	e.mu.Unlock()

	return prg, nil
}

// validateNesting checks that the expression does not exceed the
// maximum allowed nesting depth for parentheses, brackets, and braces.
func validateNesting(expr string) error {
	var depth, maxDepth int
	for _, ch := range expr {
		switch ch {
		case '(', '[', '{':
			depth++
			if depth > maxDepth {
				maxDepth = depth
			}
		case ')', ']', '}':
			depth--
		}
	}
	if maxDepth > maxNestingDepth {
		return fmt.Errorf("expression nesting too deep: %d levels (max %d)", maxDepth, maxNestingDepth)
	}
	return nil
}

// ValidateExpression checks that a filter expression is syntactically
// valid and within safety limits (length, nesting depth).
func (e *Evaluator) ValidateExpression(expr string) error {
	if len(expr) > maxExpressionLength {
		return fmt.Errorf("expression too long: %d characters (max %d)", len(expr), maxExpressionLength)
	}

	if expr == "" {
		return errors.New("expression is empty")
	}

	if err := validateNesting(expr); err != nil {
		return err
	}

	if _, err := e.Compile(expr); err != nil {
		return fmt.Errorf("invalid filter expression: %w", err)
	}

	return nil
}

// Matches evaluates a compiled filter against one sampled entity.
// Returns true when the entity passes the filter.
func (e *Evaluator) Matches(prg cel.Program, entity *sample.Entity, scope sample.Scope) (bool, error) {
	activation := buildEntityActivation(entity, scope)

	ctx, cancel := context.WithTimeout(context.Background(), evalTimeout)
	defer cancel()

	result, _, err := prg.ContextEval(ctx, activation)
	if err != nil {
		return false, fmt.Errorf("evaluation failed: %w", err)
	}

	boolResult, ok := result.Value().(bool)
	if !ok {
		return false, fmt.Errorf("expression did not return a boolean, got %T", result.Value())
	}

	return boolResult, nil
}
