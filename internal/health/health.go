// Copyright (C) 2026 Ben Grimm. Licensed under AGPL-3.0 (https://www.gnu.org/licenses/agpl-3.0.txt)

// Package health runs the daemon's self-checks: tun availability, DNS
// probe, gateway reachability, clock skew, control socket liveness. The
// aggregated report backs the diagnostics API and the status command's
// exit code.
package health

import (
	"context"
	"sort"
	"sync"
	"time"

	"grimm.is/tundra/internal/clock"
)

// Status grades a check result.
type Status string

const (
	StatusHealthy   Status = "healthy"
	StatusDegraded  Status = "degraded"
	StatusUnhealthy Status = "unhealthy"
)

// Check is the result of one probe.
type Check struct {
	Status      Status        `json:"status"`
	Message     string        `json:"message"`
	LastChecked time.Time     `json:"last_checked"`
	Duration    time.Duration `json:"duration"`
}

// CheckFunc runs one probe.
type CheckFunc func(ctx context.Context) Check

// Report is the aggregated result of every registered check.
type Report struct {
	Status Status           `json:"status"`
	Checks map[string]Check `json:"checks"`
}

// Runner holds named checks and runs them concurrently.
type Runner struct {
	mu     sync.Mutex
	checks map[string]CheckFunc
}

// NewRunner returns an empty Runner.
func NewRunner() *Runner {
	return &Runner{checks: make(map[string]CheckFunc)}
}

// Register adds a named check, replacing any previous one of that name.
func (r *Runner) Register(name string, fn CheckFunc) {
	r.mu.Lock()
	r.checks[name] = fn
	r.mu.Unlock()
}

// Names returns the registered check names, sorted.
func (r *Runner) Names() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	names := make([]string, 0, len(r.checks))
	for name := range r.checks {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Run executes every check and aggregates: any unhealthy check makes the
// report unhealthy; otherwise any degraded check makes it degraded.
func (r *Runner) Run(ctx context.Context) Report {
	r.mu.Lock()
	checks := make(map[string]CheckFunc, len(r.checks))
	for name, fn := range r.checks {
		checks[name] = fn
	}
	r.mu.Unlock()

	report := Report{Status: StatusHealthy, Checks: make(map[string]Check, len(checks))}

	var wg sync.WaitGroup
	var mu sync.Mutex
	for name, fn := range checks {
		wg.Add(1)
		go func(name string, fn CheckFunc) {
			defer wg.Done()
			result := fn(ctx)
			mu.Lock()
			report.Checks[name] = result
			mu.Unlock()
		}(name, fn)
	}
	wg.Wait()

	for _, c := range report.Checks {
		switch c.Status {
		case StatusUnhealthy:
			report.Status = StatusUnhealthy
		case StatusDegraded:
			if report.Status == StatusHealthy {
				report.Status = StatusDegraded
			}
		}
	}
	return report
}

// result builds a Check stamped with the current time.
func result(status Status, msg string, started time.Time) Check {
	return Check{
		Status:      status,
		Message:     msg,
		LastChecked: clock.Now(),
		Duration:    clock.Since(started),
	}
}
