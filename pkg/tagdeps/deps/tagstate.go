package deps

import (
	"bytes"
	"encoding/gob"
	"time"
)

// acquiredState records that a session is holding a tag's lock, stamped
// with the transaction's start time. It mirrors
// cache_dependencies.dependencies.AcquiredTagState.
type acquiredState struct {
	SessionID string
	Time      time.Time
}

// isLocked reports whether this acquired record means the tag is held by
// someone other than sessionID — the original AcquiredTagState.is_locked,
// a straight session mismatch.
func (s *acquiredState) isLocked(sessionID string) bool {
	return s.SessionID != sessionID
}

// releasedState records that a session finished with a tag's lock, stamped
// with the transaction's end time and the replication delay that applied.
// It mirrors cache_dependencies.dependencies.ReleasedTagState.
type releasedState struct {
	SessionID string
	Time      time.Time
	Delay     time.Duration
}

// isLocked reports whether this released record still means the tag should
// be treated as locked from the perspective of a transaction that started
// at startTime: a different session released it, but not long enough before
// startTime for replicas to have caught up. Mirrors
// ReleasedTagState.is_locked.
func (s *releasedState) isLocked(sessionID string, startTime time.Time) bool {
	if s.SessionID == sessionID {
		return false
	}
	return !startTime.After(s.Time.Add(s.Delay))
}

// isReleased reports whether this released record postdates the given
// acquired record from the same session, i.e. the acquire/release pair
// completed a full cycle. Mirrors ReleasedTagState.is_released.
func (s *releasedState) isReleased(acquired *acquiredState) bool {
	if acquired == nil {
		return false
	}
	return s.SessionID == acquired.SessionID && s.Time.After(acquired.Time)
}

// Tag state records are gob-encoded. gob is the standard library's one
// binary codec that preserves Go type identity across en/decode without a
// manual schema (time.Time, struct field names) the way the packed-payload
// format also needs (see tagcache.Pack) — none of the third-party
// serializers pulled in elsewhere in this module (none are vendored for
// this purpose) do that more simply than gob already does for free, so this
// is the one place the dependency algebra reaches for the standard library
// instead of an ecosystem package.
func encodeAcquired(s *acquiredState) ([]byte, error) {
	var buf bytes.Buffer
	if err := gob.NewEncoder(&buf).Encode(s); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func decodeAcquired(b []byte) (*acquiredState, error) {
	var s acquiredState
	if err := gob.NewDecoder(bytes.NewReader(b)).Decode(&s); err != nil {
		return nil, err
	}
	return &s, nil
}

func encodeReleased(s *releasedState) ([]byte, error) {
	var buf bytes.Buffer
	if err := gob.NewEncoder(&buf).Encode(s); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func decodeReleased(b []byte) (*releasedState, error) {
	var s releasedState
	if err := gob.NewDecoder(bytes.NewReader(b)).Decode(&s); err != nil {
		return nil, err
	}
	return &s, nil
}

func encodeVersion(v string) ([]byte, error) {
	var buf bytes.Buffer
	if err := gob.NewEncoder(&buf).Encode(v); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func decodeVersion(b []byte) (string, error) {
	var v string
	if err := gob.NewDecoder(bytes.NewReader(b)).Decode(&v); err != nil {
		return "", err
	}
	return v, nil
}
