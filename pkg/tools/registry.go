// Package tools provides the in-process capability table the reasoning
// engine invokes mid-turn. Tools execute synchronously inside the turn's
// consumption loop; there is no subprocess boundary.
//
// Every tool returns a textual result even on failure — the engine has no
// other way to observe the outcome. Validation failures (unknown block name,
// substring not found) come back as readable failure reasons, never as Go
// errors.
package tools

import (
	"context"
	"sort"

	"go.uber.org/zap"

	"github.com/engramlabs/engram/pkg/engine"
)

// handler executes one tool invocation and always produces text.
type handler func(ctx context.Context, input map[string]any) string

// Registry is a capability table keyed by tool name. It implements
// engine.Toolbox.
type Registry struct {
	logger   *zap.Logger
	defs     []engine.ToolDefinition
	handlers map[string]handler
}

// Definitions returns the registered tool definitions, sorted by name.
func (r *Registry) Definitions() []engine.ToolDefinition {
	defs := make([]engine.ToolDefinition, len(r.defs))
	copy(defs, r.defs)
	sort.Slice(defs, func(i, j int) bool { return defs[i].Name < defs[j].Name })
	return defs
}

// Names returns the sorted tool names.
func (r *Registry) Names() []string {
	names := make([]string, 0, len(r.handlers))
	for name := range r.handlers {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Call invokes the named tool. The second return reports whether the name
// was known; the text is a valid tool result either way.
func (r *Registry) Call(ctx context.Context, name string, input map[string]any) (string, bool) {
	h, ok := r.handlers[name]
	if !ok {
		r.logger.Warn("unknown tool invoked", zap.String("tool", name))
		return "Error: unknown tool " + name, false
	}

	r.logger.Debug("tool invoked", zap.String("tool", name))
	return h(ctx, input), true
}

func (r *Registry) register(def engine.ToolDefinition, h handler) {
	r.defs = append(r.defs, def)
	r.handlers[def.Name] = h
}

// stringArg extracts a string argument, empty when absent or mistyped.
func stringArg(input map[string]any, key string) string {
	v, _ := input[key].(string)
	return v
}

// intArg extracts an integer argument. JSON numbers arrive as float64.
func intArg(input map[string]any, key string) (int64, bool) {
	switch v := input[key].(type) {
	case float64:
		return int64(v), true
	case int:
		return int64(v), true
	case int64:
		return v, true
	}
	return 0, false
}
