package connectivity

import (
	"context"
	"time"

	"todosync/internal/utils"
)

// DefaultPollInterval is how often the monitor probes the store.
const DefaultPollInterval = 15 * time.Second

// Signal receives connectivity transitions. *synchronizer.Synchronizer implements it.
type Signal interface {
	SetOnline(ctx context.Context, online bool) error
}

// Monitor polls a Prober and forwards every change in reachability to a Signal.
type Monitor struct {
	prober   Prober
	target   Signal
	interval time.Duration
	onChange func(online bool)

	known  bool
	online bool
}

// NewMonitor creates a monitor. A zero interval uses DefaultPollInterval.
func NewMonitor(prober Prober, target Signal, interval time.Duration) *Monitor {
	if interval <= 0 {
		interval = DefaultPollInterval
	}
	return &Monitor{prober: prober, target: target, interval: interval}
}

// OnChange registers a callback invoked after each forwarded transition.
func (m *Monitor) OnChange(fn func(online bool)) {
	m.onChange = fn
}

// Run probes immediately and then every interval until ctx is cancelled.
func (m *Monitor) Run(ctx context.Context) {
	ticker := time.NewTicker(m.interval)
	defer ticker.Stop()

	m.Check(ctx)
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			m.Check(ctx)
		}
	}
}

// Check runs one probe and signals the target if reachability changed.
// It reports the probe result.
func (m *Monitor) Check(ctx context.Context) bool {
	online := m.prober.Probe(ctx)
	if m.known && online == m.online {
		return online
	}

	m.known = true
	m.online = online

	if online {
		utils.Infof("Task store reachable, going online")
	} else {
		utils.Warnf("Task store unreachable, working offline")
	}

	if err := m.target.SetOnline(ctx, online); err != nil {
		utils.Warnf("Reconnect failed: %v", err)
	}
	if m.onChange != nil {
		m.onChange(online)
	}
	return online
}
