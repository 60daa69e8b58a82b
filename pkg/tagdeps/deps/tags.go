package deps

import (
	"bytes"
	"context"
	"encoding/gob"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/vitaliisemenov/tagcache/pkg/tagdeps/cacheport"
	"github.com/vitaliisemenov/tagcache/pkg/tagdeps/deferred"
	"github.com/vitaliisemenov/tagcache/pkg/tagdeps/session"
	"github.com/vitaliisemenov/tagcache/pkg/tagdeps/tagerrors"
)

const (
	// TagTimeout bounds how long a minted tag version lives before it must
	// be re-derived, mirroring cache_dependencies.dependencies.TagsDependency.TAG_TIMEOUT.
	TagTimeout = 24 * time.Hour

	// TagStateTimeout bounds how long an Acquired lock record lives,
	// mirroring TagsDependency.TAG_STATE_TIMEOUT.
	TagStateTimeout = 5 * time.Second

	// libraryVersion namespaces tag keys so a breaking change to this
	// package's on-disk key format never collides with an older version's
	// keys in a shared cache. Baked in at compile time, never derived from
	// go.mod, so it stays process-stable the way the original's
	// cache_dependencies.__version__-derived prefix does.
	libraryVersion = "010"
)

// Tags is the real dependency kind: a set of tag names, each backed by a
// versioned cache key. Mirrors cache_dependencies.dependencies.TagsDependency.
type Tags struct {
	names    map[string]struct{}
	captured map[string]string // tag name -> version captured at last Evaluate
}

// NewTags builds a Tags dependency over the given tag names.
func NewTags(names ...string) *Tags {
	t := &Tags{names: make(map[string]struct{}, len(names))}
	for _, n := range names {
		t.names[n] = struct{}{}
	}
	return t
}

func (t *Tags) sortedNames() []string {
	out := make([]string, 0, len(t.names))
	for n := range t.names {
		out = append(out, n)
	}
	sort.Strings(out)
	return out
}

func tagKey(name string) string        { return session.MakeTagKey(name, libraryVersion) }
func acquiredKey(tagKey string) string  { return "acquired_" + tagKey }
func releasedKey(tagKey string) string  { return "released_" + tagKey }

// Evaluate fetches every tag's version together with its lock state in a
// single batched GetMany call: the version keys and the acquired/released
// keys are built under the same deferred criterion and merged with
// deferred.Merge before the one Get, mirroring how
// TagsDependency._get_tag_versions and ._get_locked_tags share the same
// get_many aggregation and are combined with `deferred += ...` in the
// original. Raises TagsLocked if any tag is currently held by another
// session. Tags that don't exist yet are minted on the spot, matching
// TagsDependency.evaluate/_make_tag_versions.
func (t *Tags) Evaluate(ctx context.Context, cache cacheport.Cache, txn Transaction, version int) error {
	names := t.sortedNames()
	if len(names) == 0 {
		return nil
	}
	keys := make([]string, len(names))
	for i, n := range names {
		keys[i] = tagKey(n)
	}
	var lockKeys []string
	for _, n := range names {
		k := tagKey(n)
		lockKeys = append(lockKeys, acquiredKey(k), releasedKey(k))
	}

	fetch := func(ctx context.Context, keys []string) (map[string][]byte, error) {
		return cache.GetMany(ctx, keys, version)
	}
	versionsDef := deferred.New("tagdeps:tagget", keys, fetch, func(map[string][]byte) {})
	statesDef := deferred.New("tagdeps:tagget", lockKeys, fetch, func(map[string][]byte) {})
	versionsDef.Merge(statesDef)
	batch, err := versionsDef.Get(ctx)
	if err != nil {
		return err
	}

	var locked []string
	captured := make(map[string]string, len(names))
	var toMint []string
	for _, n := range names {
		k := tagKey(n)

		var acquired *acquiredState
		if raw, ok := batch[acquiredKey(k)]; ok {
			acquired, _ = decodeAcquired(raw)
		}
		var released *releasedState
		if raw, ok := batch[releasedKey(k)]; ok {
			released, _ = decodeReleased(raw)
		}

		// Select exactly one governing state per _get_locked_tags_callback's
		// precedence: released wins only when it completes (or there is no)
		// acquired record; otherwise acquired governs if present; otherwise
		// the tag has no lock state at all.
		var isLocked bool
		switch {
		case released != nil && (acquired == nil || released.isReleased(acquired)):
			isLocked = released.isLocked(txn.SessionID(), txn.StartTime())
		case acquired != nil:
			isLocked = acquired.isLocked(txn.SessionID())
		}
		if isLocked {
			locked = append(locked, n)
			continue
		}

		if raw, ok := batch[k]; ok {
			v, err := decodeVersion(raw)
			if err == nil {
				captured[n] = v
				continue
			}
		}
		toMint = append(toMint, n)
	}

	if len(locked) > 0 {
		return tagerrors.NewTagsLocked(t, locked)
	}

	for _, n := range toMint {
		v := session.GenerateTagVersion(txn.SessionID())
		if err := cache.Set(ctx, tagKey(n), mustEncodeVersion(v), TagTimeout, version); err != nil {
			return err
		}
		captured[n] = v
	}

	t.captured = captured
	return nil
}

func mustEncodeVersion(v string) []byte {
	b, _ := encodeVersion(v)
	return b
}

// Validate re-fetches every tag's current version and compares it against
// what Evaluate captured, raising TagsInvalid listing every tag whose
// version moved (or disappeared). Mirrors TagsDependency.validate.
func (t *Tags) Validate(ctx context.Context, cache cacheport.Cache, version int) error {
	if len(t.captured) == 0 {
		return nil
	}
	names := t.sortedNames()
	keys := make([]string, len(names))
	for i, n := range names {
		keys[i] = tagKey(n)
	}
	current, err := cache.GetMany(ctx, keys, version)
	if err != nil {
		return err
	}

	var errs []error
	for _, n := range names {
		k := tagKey(n)
		want, wasCaptured := t.captured[n]
		if !wasCaptured {
			continue
		}
		raw, ok := current[k]
		if !ok {
			errs = append(errs, fmt.Errorf("tag %q no longer exists", n))
			continue
		}
		got, err := decodeVersion(raw)
		if err != nil || got != want {
			errs = append(errs, fmt.Errorf("tag %q version changed", n))
		}
	}
	if len(errs) > 0 {
		return tagerrors.NewTagsInvalid(t, errs)
	}
	return nil
}

// validateDeferred builds (without executing) the GetMany request Validate
// needs, plus a closure that turns the eventual result into an error. A
// Composite gathers these from every Tags delegate and merges them with
// deferred.Merge before calling Get just once, so N sibling Tags
// dependencies validate with a single round trip instead of N — mirrors
// CompositeDependency.validate's functools.reduce(operator.iadd, ...) fold
// over delegate deferreds.
func (t *Tags) validateDeferred(cache cacheport.Cache, version int) (*deferred.Deferred, func() error) {
	names := t.sortedNames()
	keys := make([]string, len(names))
	for i, n := range names {
		keys[i] = tagKey(n)
	}
	var errs []error
	d := deferred.New("tagdeps:tagversions:validate", keys,
		func(ctx context.Context, keys []string) (map[string][]byte, error) {
			return cache.GetMany(ctx, keys, version)
		},
		func(batch map[string][]byte) {
			for _, n := range names {
				want, wasCaptured := t.captured[n]
				if !wasCaptured {
					continue
				}
				raw, ok := batch[tagKey(n)]
				if !ok {
					errs = append(errs, fmt.Errorf("tag %q no longer exists", n))
					continue
				}
				got, err := decodeVersion(raw)
				if err != nil || got != want {
					errs = append(errs, fmt.Errorf("tag %q version changed", n))
				}
			}
		})
	check := func() error {
		if len(errs) > 0 {
			return tagerrors.NewTagsInvalid(t, errs)
		}
		return nil
	}
	return d, check
}

// Invalidate deletes every tag's version key, forcing the next Evaluate to
// mint a fresh one. Mirrors TagsDependency.invalidate.
func (t *Tags) Invalidate(ctx context.Context, cache cacheport.Cache, version int) error {
	names := t.sortedNames()
	keys := make([]string, len(names))
	for i, n := range names {
		keys[i] = tagKey(n)
	}
	return cache.DeleteMany(ctx, keys, version)
}

// Acquire stamps every tag with an Acquired lock record for txn's session,
// TTL-bounded by TagStateTimeout. Mirrors TagsDependency.acquire.
func (t *Tags) Acquire(ctx context.Context, cache cacheport.Cache, txn Transaction, version int) error {
	for _, n := range t.sortedNames() {
		rec := &acquiredState{SessionID: txn.SessionID(), Time: txn.StartTime()}
		raw, err := encodeAcquired(rec)
		if err != nil {
			return err
		}
		if err := cache.Set(ctx, acquiredKey(tagKey(n)), raw, TagStateTimeout, version); err != nil {
			return err
		}
	}
	return nil
}

// Release stamps every tag with a Released lock record. Its TTL is always
// longer than Acquired's (TagStateTimeout plus the delay, counting the
// delay as at least one second) so a replica that's still catching up
// sees the release outlive the acquire record rather than the reverse.
// Mirrors TagsDependency.release.
func (t *Tags) Release(ctx context.Context, cache cacheport.Cache, txn Transaction, delay time.Duration, version int) error {
	ttl := TagStateTimeout + max(delay, time.Second)
	for _, n := range t.sortedNames() {
		rec := &releasedState{SessionID: txn.SessionID(), Time: txn.EndTime(), Delay: delay}
		raw, err := encodeReleased(rec)
		if err != nil {
			return err
		}
		if err := cache.Set(ctx, releasedKey(tagKey(n)), raw, ttl, version); err != nil {
			return err
		}
	}
	return nil
}

// Extend only merges with another Tags dependency, unioning tag sets —
// anything else falls through to CompositeDependency. Mirrors
// TagsDependency.extend.
func (t *Tags) Extend(other Dependency) (Dependency, bool) {
	o, ok := other.(*Tags)
	if !ok {
		return nil, false
	}
	merged := NewTags(t.sortedNames()...)
	for n := range o.names {
		merged.names[n] = struct{}{}
	}
	return merged, true
}

// Clone deep-copies the tag set and captured versions.
func (t *Tags) Clone() Dependency {
	cp := &Tags{names: make(map[string]struct{}, len(t.names))}
	for n := range t.names {
		cp.names[n] = struct{}{}
	}
	if t.captured != nil {
		cp.captured = make(map[string]string, len(t.captured))
		for k, v := range t.captured {
			cp.captured[k] = v
		}
	}
	return cp
}

func (t *Tags) String() string {
	return fmt.Sprintf("Tags(%s)", strings.Join(t.sortedNames(), ", "))
}

// Names returns the tag names this dependency covers.
func (t *Tags) Names() []string { return t.sortedNames() }

// gobTags is the exported-field shape Tags (de)serializes through, since
// gob can't see the unexported names/captured fields directly. Used by
// GobEncode/GobDecode so a packed cache payload (tagcache.Pack) can carry a
// *Tags dependency end to end.
type gobTags struct {
	Names    []string
	Captured map[string]string
}

// GobEncode implements gob.GobEncoder.
func (t *Tags) GobEncode() ([]byte, error) {
	aux := gobTags{Names: t.sortedNames(), Captured: t.captured}
	var buf bytes.Buffer
	if err := gob.NewEncoder(&buf).Encode(aux); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// GobDecode implements gob.GobDecoder.
func (t *Tags) GobDecode(b []byte) error {
	var aux gobTags
	if err := gob.NewDecoder(bytes.NewReader(b)).Decode(&aux); err != nil {
		return err
	}
	t.names = make(map[string]struct{}, len(aux.Names))
	for _, n := range aux.Names {
		t.names[n] = struct{}{}
	}
	t.captured = aux.Captured
	return nil
}
