package notification

import (
	"errors"
	"time"
)

// manager implements NotificationManager
type manager struct {
	channels []NotificationChannel
	enabled  bool
	now      func() time.Time
}

// NewManager creates a new NotificationManager based on configuration
func NewManager(cfg *Config, opts ...Option) (NotificationManager, error) {
	o := newOptions(opts)
	m := &manager{enabled: cfg.Enabled, now: o.now}

	if !cfg.Enabled {
		return m, nil
	}

	if cfg.OSNotification.Enabled {
		m.channels = append(m.channels, NewOSNotificationChannel(&cfg.OSNotification, opts...))
	}

	if cfg.LogNotification.Enabled {
		m.channels = append(m.channels, NewLogNotificationChannel(&cfg.LogNotification))
	}

	return m, nil
}

// Send delivers n to every channel in turn. A failing channel does not stop
// the others; all failures are returned joined.
func (m *manager) Send(n Notification) error {
	if !m.enabled {
		return nil
	}
	if n.Timestamp.IsZero() {
		n.Timestamp = m.now()
	}

	var errs []error
	for _, ch := range m.channels {
		if err := ch.Send(n); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// Close releases every channel.
func (m *manager) Close() error {
	var errs []error
	for _, ch := range m.channels {
		errs = append(errs, ch.Close())
	}
	return errors.Join(errs...)
}

// ChannelCount returns the number of active channels
func (m *manager) ChannelCount() int {
	return len(m.channels)
}
