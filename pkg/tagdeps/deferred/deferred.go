// Package deferred implements the aggregation engine that lets several
// independent dependency evaluations share a single batched cache.GetMany
// call instead of issuing one round-trip per tag.
//
// This is a Go-idiomatic re-expression of cache_dependencies.defer's
// DeferredNode/Deferred pair. The original relies on Python generator/iterator
// machinery (a hand-rolled non-generator iterator, chosen there specifically
// to dodge generator-resume restrictions) to walk a linked list of nodes
// lazily. Go has no equivalent resume-a-generator primitive and doesn't need
// one: the same batching guarantee — each distinct aggregation criterion's
// executor runs exactly once per Get — is implemented here as a single
// eager pass over the node chain via explicit recursion, with no hidden
// iterator state to reason about.
package deferred

import "context"

// Executor performs the batched fetch for one aggregation criterion (in
// practice: a cache.GetMany bound to a particular backend and version).
type Executor func(ctx context.Context, keys []string) (map[string][]byte, error)

// Callback receives the batch result once its criterion's executor has run.
type Callback func(result map[string][]byte)

// node is the linked-list element the original calls DeferredNode. Each node
// remembers which keys it personally contributed and which callbacks want
// the aggregated result; nodes with the same criterion merge into a single
// executor call.
type node struct {
	executor  Executor
	criterion string
	keys      []string
	callbacks []Callback
	parent    *node
}

// setParent attaches p as this node's ancestor. If this node already has a
// parent, the attachment recurses to the current deepest ancestor instead of
// overwriting it — mirrors DeferredNode.parent's setter, which walks to the
// bottom of the chain rather than ever replacing an existing link.
func (n *node) setParent(p *node) {
	if n.parent == nil || p == nil {
		n.parent = p
		return
	}
	n.parent.setParent(p)
}

// Deferred is a handle on one node in the chain; it is the unit callers hold
// and merge together with Merge (the original's Deferred.__iadd__).
type Deferred struct {
	node *node
}

// New starts a fresh Deferred for one aggregation criterion, with keys this
// node contributes to the eventual batched fetch and a callback to invoke
// with the result once it runs.
func New(criterion string, keys []string, executor Executor, cb Callback) *Deferred {
	return &Deferred{node: &node{
		executor:  executor,
		criterion: criterion,
		keys:      append([]string(nil), keys...),
		callbacks: []Callback{cb},
	}}
}

// AddCallback registers an additional callback against this Deferred's own
// node, invoked with the same batch result as the node's original callback.
func (d *Deferred) AddCallback(cb Callback) {
	d.node.callbacks = append(d.node.callbacks, cb)
}

// Merge absorbs other into d, mirroring Deferred.__iadd__:
//
//   - if other carries its own parent chain, that chain is merged in first
//     (recursively) and then detached from other, so no node is visited twice;
//   - if d and other currently share an aggregation criterion, other's keys
//     and callbacks are folded directly into d's node;
//   - otherwise other's node is linked as d's new front: other becomes the
//     new current node, with the old d.node demoted to its parent. This is
//     what gives the chain its LIFO delivery order — the most recently
//     merged criterion is always the first one Get() walks to.
func (d *Deferred) Merge(other *Deferred) {
	if other == nil || other.node == nil {
		return
	}
	o := other.node
	if o.parent != nil {
		d.Merge(&Deferred{node: o.parent})
		o.parent = nil
	}
	if d.node.criterion == o.criterion {
		d.node.keys = append(d.node.keys, o.keys...)
		d.node.callbacks = append(d.node.callbacks, o.callbacks...)
		return
	}
	o.setParent(d.node)
	d.node = o
}

// Get runs every distinct criterion's executor at most once — aggregating
// the keys of every node that shares it — and delivers each node's
// callbacks the resulting batch, then returns d's own node's batch directly
// as a convenience for single-criterion callers.
func (d *Deferred) Get(ctx context.Context) (map[string][]byte, error) {
	type batch struct {
		executor Executor
		keySet   map[string]struct{}
		nodes    []*node
	}

	batches := make(map[string]*batch)
	var order []string
	for n := d.node; n != nil; n = n.parent {
		b, ok := batches[n.criterion]
		if !ok {
			b = &batch{executor: n.executor, keySet: make(map[string]struct{})}
			batches[n.criterion] = b
			order = append(order, n.criterion)
		}
		for _, k := range n.keys {
			b.keySet[k] = struct{}{}
		}
		b.nodes = append(b.nodes, n)
	}

	results := make(map[string]map[string][]byte, len(order))
	for _, crit := range order {
		b := batches[crit]
		keys := make([]string, 0, len(b.keySet))
		for k := range b.keySet {
			keys = append(keys, k)
		}
		result, err := b.executor(ctx, keys)
		if err != nil {
			return nil, err
		}
		results[crit] = result
		for _, n := range b.nodes {
			for _, cb := range n.callbacks {
				cb(result)
			}
		}
	}
	return results[d.node.criterion], nil
}
