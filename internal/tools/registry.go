package tools

import (
	"fmt"
	"regexp"
	"sort"
	"sync"
)

// namePattern enforces the dot-namespaced convention: the prefix
// selects the backing collection, the suffix the action.
var namePattern = regexp.MustCompile(`^[a-z][a-z0-9_]*\.[a-z][a-z0-9_]*$`)

// Registry holds registered tool definitions keyed by name. Read and
// write tool sets are maintained as separate registries.
type Registry struct {
	mu    sync.RWMutex
	tools map[string]*Definition
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{tools: make(map[string]*Definition)}
}

// Register adds a tool. Duplicate names are a configuration error, not
// a runtime condition, so registration fails hard. The input schema is
// compiled here, once.
func (r *Registry) Register(tool *Definition) error {
	if tool == nil {
		return fmt.Errorf("tool is nil")
	}
	if !namePattern.MatchString(tool.Name) {
		return fmt.Errorf("tool name %q is not dot-namespaced", tool.Name)
	}
	if tool.Handler == nil {
		return fmt.Errorf("tool %s has no handler", tool.Name)
	}

	compiled, err := compileSchema(tool.Name, tool.InputSchema)
	if err != nil {
		return err
	}
	tool.compiled = compiled

	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.tools[tool.Name]; exists {
		return fmt.Errorf("tool %s already registered", tool.Name)
	}
	r.tools[tool.Name] = tool
	return nil
}

// RegisterAll registers every tool, stopping at the first failure.
func (r *Registry) RegisterAll(defs []*Definition) error {
	for _, def := range defs {
		if err := r.Register(def); err != nil {
			return err
		}
	}
	return nil
}

// Get returns the definition for name.
func (r *Registry) Get(name string) (*Definition, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	tool, ok := r.tools[name]
	return tool, ok
}

// List returns all definitions sorted by name.
func (r *Registry) List() []*Definition {
	r.mu.RLock()
	defer r.mu.RUnlock()
	result := make([]*Definition, 0, len(r.tools))
	for _, tool := range r.tools {
		result = append(result, tool)
	}
	sort.Slice(result, func(i, j int) bool { return result[i].Name < result[j].Name })
	return result
}

// Count returns the number of registered tools.
func (r *Registry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.tools)
}
