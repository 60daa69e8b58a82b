package tagcache

import (
	"bytes"
	"encoding/gob"
	"fmt"

	"github.com/vitaliisemenov/tagcache/pkg/tagdeps/deps"
)

func init() {
	// Every concrete Dependency kind must be registered so gob can encode
	// the Dependency interface fields inside a packed payload (Packed.Dependency,
	// deps.Composite.Delegates) without the caller having to know which
	// concrete kind it's holding.
	gob.Register(&deps.Tags{})
	gob.Register(&deps.Composite{})
	gob.Register(&deps.Dummy{})
}

// Packed is the on-the-wire shape every value this package writes to the
// cache takes: the caller's raw value alongside the dependency that was in
// effect when it was written. Mirrors cache_tagging.cache._pack_data's
// {'__value': ..., '__dependency': ...} dict, re-expressed as a typed
// struct instead of a duck-typed dict (the justification, see deps.tagstate.go,
// for why gob rather than a third-party codec is used here: it's the one
// encoder in this module's dependency set that preserves the Dependency
// interface's concrete type across a round trip without a hand-maintained
// schema).
type Packed struct {
	Value      []byte
	Dependency deps.Dependency
}

// Pack serializes value together with dependency.
func Pack(value []byte, dependency deps.Dependency) ([]byte, error) {
	if dependency == nil {
		dependency = deps.NewDummy()
	}
	var buf bytes.Buffer
	if err := gob.NewEncoder(&buf).Encode(Packed{Value: value, Dependency: dependency}); err != nil {
		return nil, fmt.Errorf("tagcache: pack: %w", err)
	}
	return buf.Bytes(), nil
}

// Unpack reverses Pack. A payload that isn't a well-formed Packed value
// (for instance, one written by something other than this package) is
// reported via ok=false rather than an error, mirroring
// cache_tagging.cache._is_packed_data's tolerant duck-typing check.
func Unpack(raw []byte) (value []byte, dependency deps.Dependency, ok bool) {
	var p Packed
	if err := gob.NewDecoder(bytes.NewReader(raw)).Decode(&p); err != nil {
		return nil, nil, false
	}
	if p.Dependency == nil {
		p.Dependency = deps.NewDummy()
	}
	return p.Value, p.Dependency, true
}
