package monitor

import (
	"context"
	"sort"
	"sync"
	"time"
)

const (
	StatusHealthy   = "healthy"
	StatusDegraded  = "degraded"
	StatusUnhealthy = "unhealthy"
	StatusUnknown   = "unknown"
)

// HealthStatus last known state of a component
type HealthStatus struct {
	Component   string    `json:"component"`
	Status      string    `json:"status"`
	LastChecked time.Time `json:"last_checked"`
	Message     string    `json:"message,omitempty"`
}

// Probe returns nil when the component is healthy
type Probe func(ctx context.Context) error

// Monitor component health registry behind /ready
type Monitor struct {
	components map[string]*HealthStatus
	probes     map[string]Probe
	mutex      sync.RWMutex
	alertFunc  func(component, status, message string)
	now        func() time.Time
}

// NewMonitor alertFunc is called when a component leaves the healthy state
func NewMonitor(alertFunc func(component, status, message string)) *Monitor {
	return &Monitor{
		components: make(map[string]*HealthStatus),
		probes:     make(map[string]Probe),
		alertFunc:  alertFunc,
		now:        time.Now,
	}
}

// RegisterComponent adds a component in the unknown state
func (m *Monitor) RegisterComponent(component string) {
	m.mutex.Lock()
	defer m.mutex.Unlock()

	if _, exists := m.components[component]; exists {
		return
	}
	m.components[component] = &HealthStatus{
		Component:   component,
		Status:      StatusUnknown,
		LastChecked: m.now(),
	}
}

// AddProbe registers a component checked by CheckAll
func (m *Monitor) AddProbe(component string, probe Probe) {
	m.RegisterComponent(component)
	m.mutex.Lock()
	m.probes[component] = probe
	m.mutex.Unlock()
}

// UpdateStatus records a new state; implements fulfillment.HealthReporter
func (m *Monitor) UpdateStatus(component, status, message string) {
	m.mutex.Lock()
	hs, exists := m.components[component]
	if !exists {
		hs = &HealthStatus{Component: component}
		m.components[component] = hs
	}

	oldStatus := hs.Status
	hs.Status = status
	hs.LastChecked = m.now()
	hs.Message = message
	alert := m.alertFunc
	m.mutex.Unlock()

	if oldStatus != status && status != StatusHealthy && alert != nil {
		alert(component, status, message)
	}
}

// GetStatus nil for unknown components
func (m *Monitor) GetStatus(component string) *HealthStatus {
	m.mutex.RLock()
	defer m.mutex.RUnlock()

	if status, exists := m.components[component]; exists {
		cp := *status
		return &cp
	}
	return nil
}

// GetAllStatus sorted by component
func (m *Monitor) GetAllStatus() []HealthStatus {
	m.mutex.RLock()
	defer m.mutex.RUnlock()

	statuses := make([]HealthStatus, 0, len(m.components))
	for _, status := range m.components {
		statuses = append(statuses, *status)
	}
	sort.Slice(statuses, func(i, j int) bool { return statuses[i].Component < statuses[j].Component })
	return statuses
}

// Healthy every registered component reports healthy
func (m *Monitor) Healthy() bool {
	m.mutex.RLock()
	defer m.mutex.RUnlock()

	for _, status := range m.components {
		if status.Status != StatusHealthy {
			return false
		}
	}
	return true
}

// CheckAll runs every probe once
func (m *Monitor) CheckAll(ctx context.Context) {
	m.mutex.RLock()
	probes := make(map[string]Probe, len(m.probes))
	for name, p := range m.probes {
		probes[name] = p
	}
	m.mutex.RUnlock()

	for name, probe := range probes {
		if err := probe(ctx); err != nil {
			m.UpdateStatus(name, StatusUnhealthy, err.Error())
			continue
		}
		m.UpdateStatus(name, StatusHealthy, "")
	}
}

// StartChecking runs the probes every interval until ctx ends
func (m *Monitor) StartChecking(ctx context.Context, interval time.Duration) {
	m.CheckAll(ctx)
	ticker := time.NewTicker(interval)
	go func() {
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				probeCtx, cancel := context.WithTimeout(ctx, interval)
				m.CheckAll(probeCtx)
				cancel()
			}
		}
	}()
}
