// Package health aggregates liveness checks of the engine's collaborators
package health

import (
	"sort"
	"sync"
	"time"

	"lease_engine/internal/core"
)

// Check result labels
const (
	StatusHealthy   = "Healthy"
	StatusUnhealthy = "Unhealthy"
)

// HealthManager runs registered component checks on demand
type HealthManager struct {
	logger core.ILogger
	mu     sync.RWMutex
	checks map[string]func() error
	failed map[string]time.Time // component -> first failure seen
	now    func() time.Time
}

func NewHealthManager(logger core.ILogger) *HealthManager {
	hm := &HealthManager{
		checks: make(map[string]func() error),
		failed: make(map[string]time.Time),
		now:    time.Now,
	}
	if logger != nil {
		hm.logger = logger.WithField("component", "health_manager")
	}
	return hm
}

// Register adds or replaces the check of a component
func (hm *HealthManager) Register(component string, check func() error) {
	hm.mu.Lock()
	defer hm.mu.Unlock()
	hm.checks[component] = check
	delete(hm.failed, component)
}

// Components lists registered component names in order
func (hm *HealthManager) Components() []string {
	hm.mu.RLock()
	defer hm.mu.RUnlock()
	names := make([]string, 0, len(hm.checks))
	for name := range hm.checks {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// GetStatus runs every check and reports per component
func (hm *HealthManager) GetStatus() map[string]string {
	status := make(map[string]string)
	for component, err := range hm.run() {
		if err != nil {
			status[component] = StatusUnhealthy + ": " + err.Error()
		} else {
			status[component] = StatusHealthy
		}
	}
	return status
}

// IsHealthy reports whether every registered check passes
func (hm *HealthManager) IsHealthy() bool {
	for _, err := range hm.run() {
		if err != nil {
			return false
		}
	}
	return true
}

// UnhealthySince returns when a component started failing, zero when healthy
func (hm *HealthManager) UnhealthySince(component string) time.Time {
	hm.mu.RLock()
	defer hm.mu.RUnlock()
	return hm.failed[component]
}

func (hm *HealthManager) run() map[string]error {
	hm.mu.RLock()
	checks := make(map[string]func() error, len(hm.checks))
	for name, check := range hm.checks {
		checks[name] = check
	}
	hm.mu.RUnlock()

	results := make(map[string]error, len(checks))
	for name, check := range checks {
		results[name] = check()
	}

	hm.mu.Lock()
	defer hm.mu.Unlock()
	for name, err := range results {
		_, wasFailing := hm.failed[name]
		switch {
		case err != nil && !wasFailing:
			hm.failed[name] = hm.now()
			if hm.logger != nil {
				hm.logger.Warn("Component became unhealthy", "name", name, "error", err)
			}
		case err == nil && wasFailing:
			delete(hm.failed, name)
			if hm.logger != nil {
				hm.logger.Info("Component recovered", "name", name)
			}
		}
	}
	return results
}
