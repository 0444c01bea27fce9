// Copyright (C) 2026 Ben Grimm. Licensed under AGPL-3.0 (https://www.gnu.org/licenses/agpl-3.0.txt)

package health

import (
	"context"
	"testing"
	"time"
)

func staticCheck(s Status) CheckFunc {
	return func(ctx context.Context) Check {
		return Check{Status: s, Message: string(s), LastChecked: time.Now()}
	}
}

func TestAggregation(t *testing.T) {
	tests := []struct {
		name     string
		statuses []Status
		want     Status
	}{
		{"all healthy", []Status{StatusHealthy, StatusHealthy}, StatusHealthy},
		{"one degraded", []Status{StatusHealthy, StatusDegraded}, StatusDegraded},
		{"one unhealthy", []Status{StatusDegraded, StatusUnhealthy}, StatusUnhealthy},
		{"empty", nil, StatusHealthy},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := NewRunner()
			for i, s := range tt.statuses {
				r.Register(string(rune('a'+i)), staticCheck(s))
			}
			report := r.Run(context.Background())
			if report.Status != tt.want {
				t.Errorf("aggregate = %s, want %s", report.Status, tt.want)
			}
			if len(report.Checks) != len(tt.statuses) {
				t.Errorf("got %d check results, want %d", len(report.Checks), len(tt.statuses))
			}
		})
	}
}

func TestRegisterReplaces(t *testing.T) {
	r := NewRunner()
	r.Register("x", staticCheck(StatusUnhealthy))
	r.Register("x", staticCheck(StatusHealthy))

	report := r.Run(context.Background())
	if report.Status != StatusHealthy {
		t.Errorf("replaced check still reported: %s", report.Status)
	}
	if names := r.Names(); len(names) != 1 || names[0] != "x" {
		t.Errorf("Names = %v", names)
	}
}

func TestUnconfiguredProbesAreHealthy(t *testing.T) {
	ctx := context.Background()
	for name, fn := range map[string]CheckFunc{
		"dns":     CheckResolverProbe(""),
		"gateway": CheckGateway(""),
		"ntp":     CheckClockSkew(""),
	} {
		if c := fn(ctx); c.Status != StatusHealthy {
			t.Errorf("%s with no target = %s, want healthy no-op", name, c.Status)
		}
	}
}

func TestControlSocketUnreachable(t *testing.T) {
	c := CheckControlSocket(t.TempDir() + "/absent.sock")(context.Background())
	if c.Status != StatusUnhealthy {
		t.Errorf("absent socket = %s, want unhealthy", c.Status)
	}
}
