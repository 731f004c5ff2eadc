// File: internal/browser/idle.go
package browser

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/chromedp/cdproto/network"
	"go.uber.org/zap"
)

// ErrNetworkIdleTimeout is returned when the page kept requests in flight for
// longer than the configured idle timeout.
var ErrNetworkIdleTimeout = errors.New("timed out waiting for network idle")

const minPollInterval = 10 * time.Millisecond

// idleMonitor tracks in flight requests of a single tab from CDP network events.
type idleMonitor struct {
	logger *zap.Logger
	now    func() time.Time

	mu           sync.Mutex
	inflight     map[network.RequestID]struct{}
	lastActivity time.Time
}

func newIdleMonitor(logger *zap.Logger) *idleMonitor {
	return &idleMonitor{
		logger:       logger.Named("idle"),
		now:          time.Now,
		inflight:     make(map[network.RequestID]struct{}),
		lastActivity: time.Now(),
	}
}

// handleEvent is registered with chromedp.ListenTarget. It must not block.
func (m *idleMonitor) handleEvent(ev interface{}) {
	switch e := ev.(type) {
	case *network.EventRequestWillBeSent:
		m.track(e.RequestID, true)
	case *network.EventLoadingFinished:
		m.track(e.RequestID, false)
	case *network.EventLoadingFailed:
		m.track(e.RequestID, false)
	}
}

func (m *idleMonitor) track(id network.RequestID, started bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if started {
		m.inflight[id] = struct{}{}
	} else {
		delete(m.inflight, id)
	}
	m.lastActivity = m.now()
}

func (m *idleMonitor) state() (int, time.Time) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.inflight), m.lastActivity
}

// Wait polls until no request has been in flight for quietPeriod. A positive
// timeout bounds the wait and yields ErrNetworkIdleTimeout when exceeded.
func (m *idleMonitor) Wait(ctx context.Context, quietPeriod, timeout time.Duration) error {
	interval := quietPeriod / 2
	if interval < minPollInterval {
		interval = minPollInterval
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	var deadline <-chan time.Time
	if timeout > 0 {
		timer := time.NewTimer(timeout)
		defer timer.Stop()
		deadline = timer.C
	}

	waitStart := m.now()
	for {
		select {
		case <-ctx.Done():
			m.logger.Debug("Network idle wait aborted due to context cancellation.", zap.Error(ctx.Err()))
			return ctx.Err()
		case <-deadline:
			count, _ := m.state()
			return fmt.Errorf("%w after %s (%d requests in flight)", ErrNetworkIdleTimeout, timeout, count)
		case <-ticker.C:
			count, last := m.state()
			if count > 0 {
				m.logger.Debug("Waiting for network idle...", zap.Int("inflight_requests", count))
				continue
			}
			if last.Before(waitStart) {
				last = waitStart
			}
			if m.now().Sub(last) >= quietPeriod {
				return nil
			}
		}
	}
}
