// Package relations tracks the parent/child tree of cache fragments
// currently being built, so that a tag added while rendering a nested
// fragment bubbles up to every ancestor fragment's own dependency. It is
// grounded on cache_dependencies.relations.
package relations

import (
	"sync"

	"github.com/vitaliisemenov/tagcache/pkg/tagdeps/affinity"
	"github.com/vitaliisemenov/tagcache/pkg/tagdeps/deps"
)

// Node is one in-progress cache fragment, mirrors
// cache_dependencies.relations.CacheNode.
type Node struct {
	key    string
	parent *Node
	mu     sync.Mutex
	byVer  map[int]deps.Dependency
}

func newNode(key string, parent *Node) *Node {
	return &Node{key: key, parent: parent, byVer: make(map[int]deps.Dependency)}
}

// Key returns the cache key this node represents.
func (n *Node) Key() string { return n.key }

// AddDependency folds dependency into this node's accumulated dependency
// for version, then propagates the same call to the parent node (if any),
// so every ancestor fragment also picks up the tag. Mirrors
// CacheNode.add_dependency.
func (n *Node) AddDependency(dependency deps.Dependency, version int) {
	if n.IsDummy() {
		return
	}
	n.mu.Lock()
	n.byVer[version] = deps.Combine(n.byVer[version], dependency)
	n.mu.Unlock()
	if n.parent != nil {
		n.parent.AddDependency(dependency, version)
	}
}

// GetDependency returns the dependency accumulated for version, or a Dummy
// if none was ever added. Mirrors CacheNode.get_dependency.
func (n *Node) GetDependency(version int) deps.Dependency {
	n.mu.Lock()
	defer n.mu.Unlock()
	if d, ok := n.byVer[version]; ok {
		return d
	}
	return deps.NewDummy()
}

// dummyNode is the Node returned for keys with no in-progress fragment —
// the "Special Case" pattern the original calls DummyCacheNode: add is a
// no-op, get always returns Dummy.
var dummyNode = &Node{key: "DummyCache", byVer: make(map[int]deps.Dependency)}

// IsDummy reports whether n is the shared placeholder node handed back
// when a key has no in-progress fragment.
func (n *Node) IsDummy() bool { return n == dummyNode }

// Manager tracks the tree of in-progress nodes for one affinity owner, and
// the "current" node new fragments nest under. Mirrors
// cache_dependencies.relations.RelationManager; the original's thread
// affinity check (ThreadSafeRelationManagerDecorator) is replaced with an
// explicit owner Token checked on every call (see package affinity).
type Manager struct {
	guard   affinity.Guard
	mu      sync.Mutex
	current *Node
	data    map[string]*Node
}

// New builds a Manager bound to owner.
func New(owner affinity.Token) *Manager {
	return &Manager{guard: affinity.NewGuard(owner), data: make(map[string]*Node)}
}

// Get returns the node for key, creating it (nested under the current
// node) if this is the first time key has been seen. Mirrors
// RelationManager.get.
func (m *Manager) Get(owner affinity.Token, key string) (*Node, error) {
	if err := m.guard.Check(owner); err != nil {
		return nil, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if n, ok := m.data[key]; ok {
		return n, nil
	}
	n := newNode(key, m.current)
	m.data[key] = n
	return n, nil
}

// Current returns the node currently being built, or the dummy node if
// none is. Mirrors RelationManager.current (getter form).
func (m *Manager) Current(owner affinity.Token) (*Node, error) {
	if err := m.guard.Check(owner); err != nil {
		return nil, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.current == nil {
		return dummyNode, nil
	}
	return m.current, nil
}

// SetCurrent makes key (creating its node if needed) the current node.
// Mirrors RelationManager.current (setter form, key variant).
func (m *Manager) SetCurrent(owner affinity.Token, key string) (*Node, error) {
	n, err := m.Get(owner, key)
	if err != nil {
		return nil, err
	}
	m.mu.Lock()
	m.current = n
	m.mu.Unlock()
	return n, nil
}

// Pop removes key's node from the tracked set and, if it was the current
// node, restores current to its parent. Returns the dummy node if key was
// never tracked. Mirrors RelationManager.pop.
func (m *Manager) Pop(owner affinity.Token, key string) (*Node, error) {
	if err := m.guard.Check(owner); err != nil {
		return nil, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	n, ok := m.data[key]
	if !ok {
		return dummyNode, nil
	}
	delete(m.data, key)
	if m.current == n {
		m.current = n.parent
	}
	return n, nil
}

// Clear discards every tracked node and resets current to none. Mirrors
// RelationManager.clear.
func (m *Manager) Clear(owner affinity.Token) error {
	if err := m.guard.Check(owner); err != nil {
		return err
	}
	m.mu.Lock()
	m.data = make(map[string]*Node)
	m.current = nil
	m.mu.Unlock()
	return nil
}
