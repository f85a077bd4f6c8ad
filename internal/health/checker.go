// Package health runs readiness checks against the service's backing stores.
package health

import (
	"context"
	"sort"
	"sync"
	"time"
)

// Pinger is satisfied by *sql.DB.
type Pinger interface {
	PingContext(ctx context.Context) error
}

// PingFunc is a single readiness check, e.g. (*cache.RedisStore).Ping.
type PingFunc func(ctx context.Context) error

// PolicyChecker reports whether the policy engine can evaluate.
type PolicyChecker interface {
	HealthCheck(ctx context.Context) error
}

// Status values reported per check and overall.
const (
	StatusOK   = "ok"
	StatusDown = "down"
)

// Report is the result of one readiness run.
type Report struct {
	Status string            `json:"status"`
	Checks map[string]string `json:"checks"`
}

// Ready reports whether every check passed.
func (r Report) Ready() bool { return r.Status == StatusOK }

// Checker runs named checks concurrently with a shared timeout.
type Checker struct {
	timeout time.Duration
	checks  map[string]PingFunc
}

// NewChecker returns a Checker whose runs are bounded by timeout.
func NewChecker(timeout time.Duration) *Checker {
	if timeout <= 0 {
		timeout = 2 * time.Second
	}
	return &Checker{timeout: timeout, checks: make(map[string]PingFunc)}
}

// Add registers a named check. Nil checks are ignored.
func (c *Checker) Add(name string, fn PingFunc) *Checker {
	if fn != nil {
		c.checks[name] = fn
	}
	return c
}

// AddPinger registers p (e.g. *sql.DB) under name. A nil p is ignored.
func (c *Checker) AddPinger(name string, p Pinger) *Checker {
	if p == nil {
		return c
	}
	return c.Add(name, p.PingContext)
}

// AddPolicy registers a policy engine check under name. A nil p is ignored.
func (c *Checker) AddPolicy(name string, p PolicyChecker) *Checker {
	if p == nil {
		return c
	}
	return c.Add(name, p.HealthCheck)
}

// Names returns the registered check names in order.
func (c *Checker) Names() []string {
	names := make([]string, 0, len(c.checks))
	for n := range c.checks {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}

// Check runs every registered check. Failures are reported by name only; error text is not exposed.
func (c *Checker) Check(ctx context.Context) Report {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	var (
		mu     sync.Mutex
		wg     sync.WaitGroup
		report = Report{Status: StatusOK, Checks: make(map[string]string, len(c.checks))}
	)
	for name, fn := range c.checks {
		wg.Add(1)
		go func(name string, fn PingFunc) {
			defer wg.Done()
			result := StatusOK
			if err := fn(ctx); err != nil {
				result = StatusDown
			}
			mu.Lock()
			defer mu.Unlock()
			report.Checks[name] = result
			if result != StatusOK {
				report.Status = StatusDown
			}
		}(name, fn)
	}
	wg.Wait()
	return report
}
