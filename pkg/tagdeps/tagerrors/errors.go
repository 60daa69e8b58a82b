// Package tagerrors defines the error taxonomy raised by the dependency
// algebra and lock strategies: a "locked" lineage (a dependency is currently
// held by another transaction) and an "invalid" lineage (a dependency's
// captured state no longer matches the cache).
package tagerrors

import (
	"fmt"
	"strings"
)

// Dependency is the minimal surface tagerrors needs from a dependency to
// describe it in error messages, avoiding an import cycle with package deps.
type Dependency interface {
	fmt.Stringer
}

// Locked is raised by Dependency.Evaluate when the dependency (or one of its
// tags) is currently held by another, not-yet-finished transaction.
type Locked struct {
	Dependency Dependency
	Items      []string
}

func (e *Locked) Error() string {
	return fmt.Sprintf("dependency %s is locked: %s", e.Dependency, strings.Join(e.Items, ", "))
}

// TagsLocked is raised specifically by TagsDependency.Evaluate.
type TagsLocked struct{ *Locked }

// NewTagsLocked builds a TagsLocked for the given dependency and locked tag
// names.
func NewTagsLocked(dep Dependency, items []string) *TagsLocked {
	return &TagsLocked{&Locked{Dependency: dep, Items: items}}
}

// CompositeLocked is raised by CompositeDependency.Evaluate, aggregating the
// Locked errors of whichever delegates were locked.
type CompositeLocked struct {
	Dependency Dependency
	Children   []*Locked
}

func (e *CompositeLocked) Error() string {
	parts := make([]string, 0, len(e.Children))
	for _, c := range e.Children {
		parts = append(parts, c.Error())
	}
	return fmt.Sprintf("composite dependency %s is locked: %s", e.Dependency, strings.Join(parts, "; "))
}

// Items flattens the Items of every child Locked error, mirroring the
// original CompositeDependencyLocked.items property.
func (e *CompositeLocked) Items() []string {
	var out []string
	for _, c := range e.Children {
		out = append(out, c.Items...)
	}
	return out
}

// Invalid is raised by Dependency.Validate when a captured dependency no
// longer matches the current cache state (a tag version bumped, etc).
type Invalid struct {
	Dependency Dependency
	Errors     []error
}

func (e *Invalid) Error() string {
	msgs := make([]string, 0, len(e.Errors))
	for _, err := range e.Errors {
		msgs = append(msgs, err.Error())
	}
	return fmt.Sprintf("dependency %s is invalid: %s", e.Dependency, strings.Join(msgs, ", "))
}

func (e *Invalid) Unwrap() []error { return e.Errors }

// TagsInvalid is raised specifically by TagsDependency.Validate.
type TagsInvalid struct{ *Invalid }

// NewTagsInvalid builds a TagsInvalid for the given dependency and the
// underlying tag-mismatch errors.
func NewTagsInvalid(dep Dependency, errs []error) *TagsInvalid {
	return &TagsInvalid{&Invalid{Dependency: dep, Errors: errs}}
}

// CompositeInvalid is raised by CompositeDependency.Validate, aggregating the
// Invalid errors of whichever delegates turned out invalid.
type CompositeInvalid struct {
	Dependency Dependency
	Children   []*Invalid
}

func (e *CompositeInvalid) Error() string {
	parts := make([]string, 0, len(e.Children))
	for _, c := range e.Children {
		parts = append(parts, c.Error())
	}
	return fmt.Sprintf("composite dependency %s is invalid: %s", e.Dependency, strings.Join(parts, "; "))
}

// Errors flattens the Errors of every child Invalid error, mirroring the
// original CompositeDependencyInvalid.errors property.
func (e *CompositeInvalid) Errors() []error {
	var out []error
	for _, c := range e.Children {
		out = append(out, c.Errors...)
	}
	return out
}

// AsLocked reports whether err is one of the Locked lineage (*Locked,
// *TagsLocked, *CompositeLocked), returning an equivalent *Locked. A type
// switch is used rather than errors.As because none of these types defines
// an Unwrap method (*TagsLocked embeds *Locked, *CompositeLocked holds its
// *Locked children in a slice), so there is no Unwrap chain for errors.As
// to walk.
func AsLocked(err error) (*Locked, bool) {
	switch e := err.(type) {
	case *Locked:
		return e, true
	case *TagsLocked:
		return e.Locked, true
	case *CompositeLocked:
		return &Locked{Dependency: e.Dependency, Items: e.Items()}, true
	default:
		return nil, false
	}
}

// AsInvalid reports whether err is one of the Invalid lineage (*Invalid,
// *TagsInvalid, *CompositeInvalid), returning an equivalent *Invalid.
func AsInvalid(err error) (*Invalid, bool) {
	switch e := err.(type) {
	case *Invalid:
		return e, true
	case *TagsInvalid:
		return e.Invalid, true
	case *CompositeInvalid:
		return &Invalid{Dependency: e.Dependency, Errors: e.Errors()}, true
	default:
		return nil, false
	}
}
