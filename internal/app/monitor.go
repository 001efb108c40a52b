package app

import (
	"sync"
	"time"

	"github.com/pagedrift/pagedrift/internal/logging"
)

// ActivityMonitor distinguishes "slow but working" from "stuck": while a
// monitored operation runs past its alert interval, it logs a recurring
// heartbeat instead of letting the operation hang silently.
type ActivityMonitor struct {
	done chan struct{}
	once sync.Once
}

// StartActivityMonitor begins watching a named operation. Call Stop when the
// operation finishes; the first heartbeat fires after alertAfter.
func StartActivityMonitor(name string, alertAfter time.Duration, logger logging.Logger) *ActivityMonitor {
	if alertAfter <= 0 {
		alertAfter = 30 * time.Second
	}
	m := &ActivityMonitor{done: make(chan struct{})}

	go func() {
		start := time.Now()
		ticker := time.NewTicker(alertAfter)
		defer ticker.Stop()
		for {
			select {
			case <-m.done:
				return
			case <-ticker.C:
				logger.Warn("operation still running",
					logging.Field{Key: "operation", Value: name},
					logging.Field{Key: "elapsed", Value: time.Since(start).Round(time.Second).String()})
			}
		}
	}()
	return m
}

// Stop ends the heartbeat. Safe to call more than once.
func (m *ActivityMonitor) Stop() {
	m.once.Do(func() { close(m.done) })
}
