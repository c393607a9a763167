package rule

import (
	"context"
	"fmt"
	"reflect"
	"regexp"
	"strings"
	"time"

	"github.com/traefik/yaegi/interp"
	"github.com/traefik/yaegi/stdlib"

	"github.com/flowmill/flowmill/pkg/document"
	"github.com/flowmill/flowmill/pkg/types"
)

// Engine evaluates rule scripts against a (workitem, event) context.
// Scripts are Go expressions interpreted by yaegi with three bound
// identifiers: 'workitem' and 'event' are the live ItemCollections,
// 'result' is an empty collection whose items are merged back onto the
// workitem after a script run.
//
// Deprecated scripts (legacy field accessors) are rewritten into the
// canonical typed-accessor form before evaluation, see legacy.go.
type Engine struct {
	timeout time.Duration
}

// Option customizes the engine.
type Option func(*Engine)

// WithTimeout bounds a single script evaluation.
func WithTimeout(d time.Duration) Option {
	return func(e *Engine) {
		if d > 0 {
			e.timeout = d
		}
	}
}

// NewEngine creates a rule engine with a default evaluation timeout of
// ten seconds.
func NewEngine(opts ...Option) *Engine {
	e := &Engine{timeout: 10 * time.Second}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// EvalBoolean evaluates an expression script used on gateway edges. The
// script must yield a boolean.
func (e *Engine) EvalBoolean(script string, workitem, event *document.ItemCollection) (bool, error) {
	value, _, err := e.eval(script, workitem, event)
	if err != nil {
		return false, err
	}
	if value.IsValid() && value.Kind() == reflect.Bool {
		return value.Bool(), nil
	}
	if value.IsValid() {
		if b, ok := value.Interface().(bool); ok {
			return b, nil
		}
	}
	return false, types.NewWorkflowError("rule", types.CodeRuleError,
		"expression did not evaluate to a boolean: "+script)
}

// EvalScript runs a script that may populate the 'result' bag; result
// items are merged onto the workitem.
func (e *Engine) EvalScript(script string, workitem, event *document.ItemCollection) error {
	_, result, err := e.eval(script, workitem, event)
	if err != nil {
		return err
	}
	workitem.Merge(result)
	return nil
}

func (e *Engine) eval(script string, workitem, event *document.ItemCollection) (reflect.Value, *document.ItemCollection, error) {
	if IsDeprecatedScript(script) {
		script = Rewrite(script, workitem, event)
	}
	if event == nil {
		event = document.New()
	}
	result := document.New()

	i := interp.New(interp.Options{})
	if err := i.Use(stdlib.Symbols); err != nil {
		return reflect.Value{}, nil, types.WrapWorkflowError("rule", types.CodeRuleError, "interpreter setup failed", err)
	}
	err := i.Use(interp.Exports{
		"flowmillrule/flowmillrule": {
			"Workitem": reflect.ValueOf(workitem),
			"Event":    reflect.ValueOf(event),
			"Result":   reflect.ValueOf(result),
		},
	})
	if err != nil {
		return reflect.Value{}, nil, types.WrapWorkflowError("rule", types.CodeRuleError, "interpreter setup failed", err)
	}
	i.ImportUsed()

	prelude := `workitem, event, result := flowmillrule.Workitem, flowmillrule.Event, flowmillrule.Result
_, _, _ = workitem, event, result
` + itemBindings(workitem)
	if _, err := i.Eval(prelude); err != nil {
		return reflect.Value{}, nil, types.WrapWorkflowError("rule", types.CodeRuleError, "interpreter setup failed", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), e.timeout)
	defer cancel()

	value, err := func() (v reflect.Value, err error) {
		// a script fault inside yaegi surfaces as a panic
		defer func() {
			if r := recover(); r != nil {
				err = fmt.Errorf("script fault: %v", r)
			}
		}()
		return i.EvalWithContext(ctx, script)
	}()
	if err != nil {
		return reflect.Value{}, nil, types.WrapWorkflowError("rule", types.CodeRuleError,
			"script evaluation failed", err)
	}
	return value, result, nil
}

var identifierPattern = regexp.MustCompile(`^[a-z][a-zA-Z0-9_]*$`)

var reservedIdentifiers = map[string]bool{
	"workitem": true, "event": true, "result": true,
	"break": true, "case": true, "chan": true, "const": true, "continue": true,
	"default": true, "defer": true, "else": true, "fallthrough": true, "for": true,
	"func": true, "go": true, "goto": true, "if": true, "import": true,
	"interface": true, "map": true, "package": true, "range": true, "return": true,
	"select": true, "struct": true, "switch": true, "type": true, "var": true,
	"true": true, "false": true, "nil": true,
}

// itemBindings declares one script variable per plain workitem item, so
// edge expressions can reference items directly (a == 1 && b == "DE").
// Numeric items bind as float64, booleans as bool, everything else as
// string. Reserved items and names that are no valid identifiers are
// skipped.
func itemBindings(workitem *document.ItemCollection) string {
	var sb strings.Builder
	for _, name := range workitem.ItemNames() {
		if !identifierPattern.MatchString(name) || reservedIdentifiers[name] {
			continue
		}
		switch {
		case workitem.IsItemValueNumeric(name):
			fmt.Fprintf(&sb, "%s := workitem.GetItemValueDouble(%q)\n_ = %s\n", name, name, name)
		case workitem.IsItemValueBoolean(name):
			fmt.Fprintf(&sb, "%s := workitem.GetItemValueBoolean(%q)\n_ = %s\n", name, name, name)
		default:
			fmt.Fprintf(&sb, "%s := workitem.GetItemValueString(%q)\n_ = %s\n", name, name, name)
		}
	}
	return sb.String()
}
