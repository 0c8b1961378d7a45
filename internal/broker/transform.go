package broker

import (
	"fmt"
	"sync"

	"github.com/dop251/goja"
	"github.com/ohler55/ojg/jp"
)

// Transformer reshapes a message payload between a sender/receiver pair
// before delivery. Transformers must not mutate the input map.
type Transformer interface {
	Transform(payload map[string]any) (map[string]any, error)
}

// FuncTransformer adapts a plain function to the Transformer interface.
type FuncTransformer func(payload map[string]any) (map[string]any, error)

func (f FuncTransformer) Transform(payload map[string]any) (map[string]any, error) {
	return f(payload)
}

// ScriptTransformer runs a JavaScript snippet against the payload. The
// script must define a function transform(payload) returning an object.
type ScriptTransformer struct {
	mu sync.Mutex
	vm *goja.Runtime
	fn goja.Callable
}

// NewScriptTransformer compiles the script and resolves its transform
// function.
func NewScriptTransformer(name, src string) (*ScriptTransformer, error) {
	prog, err := goja.Compile(name, src, true)
	if err != nil {
		return nil, fmt.Errorf("failed to compile transform script %s: %w", name, err)
	}

	vm := goja.New()
	if _, err := vm.RunProgram(prog); err != nil {
		return nil, fmt.Errorf("failed to evaluate transform script %s: %w", name, err)
	}

	fn, ok := goja.AssertFunction(vm.Get("transform"))
	if !ok {
		return nil, fmt.Errorf("transform script %s does not define transform(payload)", name)
	}

	return &ScriptTransformer{vm: vm, fn: fn}, nil
}

// Transform invokes the script's transform function. The runtime is not
// goroutine safe, so calls are serialized.
func (t *ScriptTransformer) Transform(payload map[string]any) (map[string]any, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	value, err := t.fn(goja.Undefined(), t.vm.ToValue(payload))
	if err != nil {
		return nil, fmt.Errorf("transform script failed: %w", err)
	}

	out, ok := value.Export().(map[string]any)
	if !ok {
		return nil, fmt.Errorf("transform script returned %T, want object", value.Export())
	}
	return out, nil
}

// PathTransformer projects payload fields through JSONPath expressions: each
// output key is filled with the first match of its expression against the
// incoming payload. Keys with no match are omitted.
type PathTransformer struct {
	paths map[string]jp.Expr
}

// NewPathTransformer parses the key-to-JSONPath mapping.
func NewPathTransformer(mapping map[string]string) (*PathTransformer, error) {
	paths := make(map[string]jp.Expr, len(mapping))
	for key, expr := range mapping {
		parsed, err := jp.ParseString(expr)
		if err != nil {
			return nil, fmt.Errorf("invalid JSONPath %q for key %s: %w", expr, key, err)
		}
		paths[key] = parsed
	}
	return &PathTransformer{paths: paths}, nil
}

func (t *PathTransformer) Transform(payload map[string]any) (map[string]any, error) {
	out := make(map[string]any, len(t.paths))
	for key, expr := range t.paths {
		if matches := expr.Get(payload); len(matches) > 0 {
			out[key] = matches[0]
		}
	}
	return out, nil
}
