// Copyright (C) 2026 Ben Grimm. Licensed under AGPL-3.0 (https://www.gnu.org/licenses/agpl-3.0.txt)

// Package identity resolves who is on the other end of a control
// connection: the kernel-reported peer credentials plus a cached
// uid-to-username lookup used for audit logging.
package identity

import (
	"fmt"
	"os/user"
	"strconv"
	"sync"
)

// Caller is the identity of a control connection peer as reported by the
// kernel. It is established once per connection and attached to every
// operation arriving on it.
type Caller struct {
	UID uint32
	GID uint32
	PID int32
}

// IsRoot reports whether the caller is uid 0.
func (c Caller) IsRoot() bool {
	return c.UID == 0
}

func (c Caller) String() string {
	return fmt.Sprintf("uid=%d pid=%d", c.UID, c.PID)
}

// Resolver caches uid-to-username lookups. Lookups that fail resolve to
// the numeric uid so audit entries always carry something printable.
type Resolver struct {
	mu    sync.RWMutex
	cache map[uint32]string
}

// NewResolver returns an empty Resolver.
func NewResolver() *Resolver {
	return &Resolver{cache: make(map[uint32]string)}
}

// Username returns the username for uid, consulting the cache first.
func (r *Resolver) Username(uid uint32) string {
	r.mu.RLock()
	name, ok := r.cache[uid]
	r.mu.RUnlock()
	if ok {
		return name
	}

	name = lookupUsername(uid)

	r.mu.Lock()
	r.cache[uid] = name
	r.mu.Unlock()
	return name
}

func lookupUsername(uid uint32) string {
	u, err := user.LookupId(strconv.FormatUint(uint64(uid), 10))
	if err != nil || u.Username == "" {
		return strconv.FormatUint(uint64(uid), 10)
	}
	return u.Username
}
