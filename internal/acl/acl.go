// Copyright (C) 2026 Ben Grimm. Licensed under AGPL-3.0 (https://www.gnu.org/licenses/agpl-3.0.txt)

// Package acl implements the two authorization tiers for device
// operations. The Policy gates every inbound call: only root and the
// configured session-manager uids may drive device configuration at all.
// A per-device Grant additionally gates owner-tier operations (Destroy):
// the caller must be root, the device owner, or listed in the device ACL.
//
// Denials carry the caller uid as an error attribute for audit logging
// and expose nothing else to the rejected peer.
package acl

import (
	"sync"

	"grimm.is/tundra/internal/errors"
	"grimm.is/tundra/internal/identity"
)

// Policy is the daemon-wide caller check.
type Policy struct {
	mu         sync.RWMutex
	authorized map[uint32]struct{}
	enforce    bool
}

// NewPolicy builds a Policy allowing the given uids. Root always passes.
// enforce=false disables the check entirely; that mode exists for
// development hosts only and must never be the shipped default.
func NewPolicy(uids []uint32, enforce bool) *Policy {
	p := &Policy{
		authorized: make(map[uint32]struct{}, len(uids)),
		enforce:    enforce,
	}
	for _, uid := range uids {
		p.authorized[uid] = struct{}{}
	}
	return p
}

// Enforcing reports whether caller validation is active.
func (p *Policy) Enforcing() bool {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.enforce
}

// Allow adds a uid to the authorized set.
func (p *Policy) Allow(uid uint32) {
	p.mu.Lock()
	p.authorized[uid] = struct{}{}
	p.mu.Unlock()
}

// CheckCaller is the general authorization tier applied to every
// operation. It returns a permission error carrying the caller uid when
// the peer is not recognized.
func (p *Policy) CheckCaller(c identity.Caller) error {
	p.mu.RLock()
	defer p.mu.RUnlock()

	if !p.enforce {
		return nil
	}
	if c.IsRoot() {
		return nil
	}
	if _, ok := p.authorized[c.UID]; ok {
		return nil
	}
	return denied(c)
}

// Grant records a device's owner and the additional uids permitted
// owner-tier operations on it.
type Grant struct {
	mu    sync.RWMutex
	owner uint32
	acl   []uint32
}

// NewGrant creates a Grant owned by the creating uid.
func NewGrant(owner uint32) *Grant {
	return &Grant{owner: owner}
}

// Owner returns the owning uid.
func (g *Grant) Owner() uint32 {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return g.owner
}

// ACL returns a copy of the additional authorized uids, in grant order.
func (g *Grant) ACL() []uint32 {
	g.mu.RLock()
	defer g.mu.RUnlock()
	out := make([]uint32, len(g.acl))
	copy(out, g.acl)
	return out
}

// Allow grants owner-tier access to uid. Granting the owner or a uid
// already present is a no-op.
func (g *Grant) Allow(uid uint32) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if uid == g.owner {
		return
	}
	for _, existing := range g.acl {
		if existing == uid {
			return
		}
	}
	g.acl = append(g.acl, uid)
}

// Revoke removes uid from the ACL. Revoking an absent uid is a no-op.
func (g *Grant) Revoke(uid uint32) {
	g.mu.Lock()
	defer g.mu.Unlock()
	for i, existing := range g.acl {
		if existing == uid {
			g.acl = append(g.acl[:i], g.acl[i+1:]...)
			return
		}
	}
}

// CheckOwner is the owner tier applied to Destroy and other sensitive
// operations. Root, the owner, and ACL members pass.
func (g *Grant) CheckOwner(c identity.Caller) error {
	if c.IsRoot() {
		return nil
	}

	g.mu.RLock()
	defer g.mu.RUnlock()
	if c.UID == g.owner {
		return nil
	}
	for _, uid := range g.acl {
		if uid == c.UID {
			return nil
		}
	}
	return denied(c)
}

func denied(c identity.Caller) error {
	err := errors.New(errors.KindPermission, "access denied")
	err = errors.Attr(err, "uid", c.UID)
	return errors.Attr(err, "pid", c.PID)
}
