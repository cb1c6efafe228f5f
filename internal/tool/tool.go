package tool

import (
	"context"
	"fmt"
	"sort"
)

// Capability executes one kind of task. Input is the task description
// as produced by the planner; the returned value must be JSON-encodable.
type Capability interface {
	Name() string
	Invoke(ctx context.Context, input string) (interface{}, error)
}

// ErrToolMissing indicates a task names a tool with no registered capability.
var ErrToolMissing = fmt.Errorf("required tool missing")

// Registry holds capabilities keyed by tool name.
type Registry struct {
	tools map[string]Capability
}

func NewRegistry(caps ...Capability) *Registry {
	reg := &Registry{tools: make(map[string]Capability)}
	for _, c := range caps {
		reg.tools[c.Name()] = c
	}
	return reg
}

// Register adds or replaces a capability.
func (r *Registry) Register(c Capability) {
	r.tools[c.Name()] = c
}

// Tool returns the capability registered under name.
func (r *Registry) Tool(name string) (Capability, bool) {
	if r == nil {
		return nil, false
	}
	c, ok := r.tools[name]
	return c, ok
}

// Names lists registered tool names in sorted order.
func (r *Registry) Names() []string {
	out := make([]string, 0, len(r.tools))
	for n := range r.tools {
		out = append(out, n)
	}
	sort.Strings(out)
	return out
}
