// Package session derives the process-and-owner identity used to stamp tag
// lock records (Acquired/Released states), the Go counterpart of the
// original library's thread-id-based session id.
package session

import (
	"crypto/md5"
	"encoding/hex"
	"fmt"
	"math/rand"
	"os"
	"sync"
	"time"

	"github.com/google/uuid"
)

var (
	hostnameOnce sync.Once
	hostname     string
)

func getHostname() string {
	hostnameOnce.Do(func() {
		h, err := os.Hostname()
		if err != nil {
			h = "unknown"
		}
		hostname = h
	})
	return hostname
}

// ID identifies the owner of a lock record: "<hostname>.<pid>.<owner>".
// The original Python library derives the trailing component from
// threading's native thread identifier; Go has no portable goroutine id, so
// the trailing component is an explicit owner token (see package affinity)
// rather than anything this package infers on its own.
type ID string

// New builds a session ID for the given owner token string.
func New(owner string) ID {
	return ID(fmt.Sprintf("%s.%d.%s", getHostname(), os.Getpid(), owner))
}

// NewRandomOwner generates a fresh random owner token, used by callers that
// don't otherwise have a stable affinity token (e.g. one-shot scripts).
func NewRandomOwner() string {
	return uuid.NewString()
}

// MakeTagKey derives the physical cache key for a tag's version record,
// mirroring utils.make_tag_key: "tag_<version>_<md5(name)>".
func MakeTagKey(name string, libraryVersion string) string {
	sum := md5.Sum([]byte(name))
	return fmt.Sprintf("tag_%s_%s", libraryVersion, hex.EncodeToString(sum[:]))
}

// GenerateTagVersion mints a new opaque tag version, mirroring
// utils.generate_tag_version: md5 of a random value mixed with owner and
// time, not meant to be predictable or comparable beyond equality.
func GenerateTagVersion(owner string) string {
	raw := fmt.Sprintf("%d%s%d", rand.Int63(), owner, time.Now().UnixNano())
	sum := md5.Sum([]byte(raw))
	return hex.EncodeToString(sum[:])
}
