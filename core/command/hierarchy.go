package command

import (
	"fmt"
	"sort"
	"sync"
)

// TypeHierarchy is an explicit lookup table describing how payload types
// relate to each other. Handler ranking consults it instead of runtime
// reflection: a type is registered once at startup together with its
// supertypes, and its depth is derived from the longest chain to a root.
type TypeHierarchy struct {
	mu    sync.RWMutex
	nodes map[string]*typeNode
}

type typeNode struct {
	name        string
	parents     []string
	isInterface bool
}

func NewTypeHierarchy() *TypeHierarchy {
	return &TypeHierarchy{nodes: map[string]*typeNode{}}
}

// RegisterType declares a concrete payload type and its direct supertypes.
// Parents do not have to be registered yet, but depth resolution fails on
// names that never get registered.
func (h *TypeHierarchy) RegisterType(name string, parents ...string) {
	h.register(name, parents, false)
}

// RegisterInterface declares an interface type. Interfaces participate in
// matching but always rank at a fixed low baseline.
func (h *TypeHierarchy) RegisterInterface(name string, parents ...string) {
	h.register(name, parents, true)
}

func (h *TypeHierarchy) register(name string, parents []string, isInterface bool) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.nodes[name] = &typeNode{name: name, parents: parents, isInterface: isInterface}
}

func (h *TypeHierarchy) IsInterface(name string) bool {
	h.mu.RLock()
	defer h.mu.RUnlock()
	n, ok := h.nodes[name]
	return ok && n.isInterface
}

// Depth returns the inheritance depth of name: 1 for a root type, one more
// than the deepest parent otherwise. Unknown types have depth 1 so that
// unregistered payloads still dispatch by exact name.
func (h *TypeHierarchy) Depth(name string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.depthLocked(name, map[string]bool{})
}

func (h *TypeHierarchy) depthLocked(name string, seen map[string]bool) int {
	n, ok := h.nodes[name]
	if !ok || seen[name] {
		return 1
	}
	seen[name] = true
	depth := 1
	for _, p := range n.parents {
		if d := h.depthLocked(p, seen) + 1; d > depth {
			depth = d
		}
	}
	return depth
}

// Closure returns name plus all its transitive supertypes. The payload type
// itself comes first; the rest is sorted for deterministic iteration. The
// ranking pass re-sorts candidates anyway, so order here only affects
// stability.
func (h *TypeHierarchy) Closure(name string) []string {
	h.mu.RLock()
	defer h.mu.RUnlock()

	seen := map[string]bool{name: true}
	queue := []string{name}
	var supers []string
	for len(queue) > 0 {
		cur := queue[0]
		queue = queue[1:]
		n, ok := h.nodes[cur]
		if !ok {
			continue
		}
		for _, p := range n.parents {
			if seen[p] {
				continue
			}
			seen[p] = true
			supers = append(supers, p)
			queue = append(queue, p)
		}
	}
	sort.Strings(supers)
	return append([]string{name}, supers...)
}

// Validate reports parents that were referenced but never registered.
func (h *TypeHierarchy) Validate() error {
	h.mu.RLock()
	defer h.mu.RUnlock()
	for _, n := range h.nodes {
		for _, p := range n.parents {
			if _, ok := h.nodes[p]; !ok {
				return fmt.Errorf("type %s references unregistered parent %s", n.name, p)
			}
		}
	}
	return nil
}
