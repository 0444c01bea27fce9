// Copyright (C) 2026 Ben Grimm. Licensed under AGPL-3.0 (https://www.gnu.org/licenses/agpl-3.0.txt)

package acl

import (
	"testing"

	"grimm.is/tundra/internal/errors"
	"grimm.is/tundra/internal/identity"
)

func TestPolicyCheckCaller(t *testing.T) {
	policy := NewPolicy([]uint32{1000}, true)

	tests := []struct {
		name    string
		caller  identity.Caller
		wantErr bool
	}{
		{"root passes", identity.Caller{UID: 0}, false},
		{"authorized uid passes", identity.Caller{UID: 1000}, false},
		{"unknown uid denied", identity.Caller{UID: 1001}, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := policy.CheckCaller(tt.caller)
			if (err != nil) != tt.wantErr {
				t.Errorf("CheckCaller(%v) error = %v, wantErr %v", tt.caller, err, tt.wantErr)
			}
			if err != nil && errors.GetKind(err) != errors.KindPermission {
				t.Errorf("expected KindPermission, got %v", errors.GetKind(err))
			}
		})
	}
}

func TestPolicyNotEnforcing(t *testing.T) {
	policy := NewPolicy(nil, false)
	if err := policy.CheckCaller(identity.Caller{UID: 12345}); err != nil {
		t.Errorf("disabled policy should allow anyone, got %v", err)
	}
	if policy.Enforcing() {
		t.Error("Enforcing() should be false")
	}
}

func TestPolicyAllow(t *testing.T) {
	policy := NewPolicy(nil, true)
	caller := identity.Caller{UID: 2000}

	if err := policy.CheckCaller(caller); err == nil {
		t.Fatal("uid 2000 should be denied before Allow")
	}
	policy.Allow(2000)
	if err := policy.CheckCaller(caller); err != nil {
		t.Errorf("uid 2000 should pass after Allow, got %v", err)
	}
}

func TestGrantCheckOwner(t *testing.T) {
	grant := NewGrant(1000)
	grant.Allow(1001)

	tests := []struct {
		name    string
		uid     uint32
		wantErr bool
	}{
		{"owner passes", 1000, false},
		{"acl member passes", 1001, false},
		{"root passes", 0, false},
		{"stranger denied", 1002, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := grant.CheckOwner(identity.Caller{UID: tt.uid})
			if (err != nil) != tt.wantErr {
				t.Errorf("CheckOwner(uid=%d) error = %v, wantErr %v", tt.uid, err, tt.wantErr)
			}
		})
	}
}

func TestGrantACLManagement(t *testing.T) {
	grant := NewGrant(1000)

	grant.Allow(1001)
	grant.Allow(1002)
	grant.Allow(1001) // duplicate is a no-op
	grant.Allow(1000) // owner never enters the ACL

	acl := grant.ACL()
	if len(acl) != 2 || acl[0] != 1001 || acl[1] != 1002 {
		t.Errorf("ACL() = %v, want [1001 1002]", acl)
	}

	grant.Revoke(1001)
	grant.Revoke(9999) // absent uid is a no-op
	acl = grant.ACL()
	if len(acl) != 1 || acl[0] != 1002 {
		t.Errorf("after Revoke, ACL() = %v, want [1002]", acl)
	}
}

func TestDenialCarriesCallerAttributes(t *testing.T) {
	grant := NewGrant(1000)
	err := grant.CheckOwner(identity.Caller{UID: 4444, PID: 777})
	if err == nil {
		t.Fatal("expected denial")
	}

	if err.Error() != "access denied" {
		t.Errorf("denial message %q leaks detail beyond access denied", err.Error())
	}

	attrs := errors.GetAttributes(err)
	if attrs["uid"] != uint32(4444) {
		t.Errorf("uid attribute = %v, want 4444", attrs["uid"])
	}
	if attrs["pid"] != int32(777) {
		t.Errorf("pid attribute = %v, want 777", attrs["pid"])
	}
}
