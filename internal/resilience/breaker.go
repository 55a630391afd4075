package resilience

import (
	"sync"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
)

// ErrCapabilityOpen is returned when dispatch is rejected because a
// capability's circuit is open.
var ErrCapabilityOpen = eris.New("capability circuit is open")

// BreakerState is the state of one capability's circuit.
type BreakerState int

const (
	// BreakerClosed is the normal state, dispatches flow through.
	BreakerClosed BreakerState = iota
	// BreakerOpen means too many consecutive failures; dispatches are
	// rejected until the reset timeout elapses.
	BreakerOpen
	// BreakerHalfOpen allows a single probe dispatch to test recovery.
	BreakerHalfOpen
)

func (s BreakerState) String() string {
	switch s {
	case BreakerClosed:
		return "closed"
	case BreakerOpen:
		return "open"
	case BreakerHalfOpen:
		return "half-open"
	default:
		return "unknown"
	}
}

// BreakerConfig controls the per-capability circuit breakers.
type BreakerConfig struct {
	// FailureThreshold is the consecutive-failure count that opens a
	// capability's circuit. Zero disables breaking entirely.
	FailureThreshold int
	// ResetTimeout is how long a circuit stays open before allowing a probe.
	ResetTimeout time.Duration
}

// DefaultBreakerConfig returns the default (disabled) configuration.
func DefaultBreakerConfig() BreakerConfig {
	return BreakerConfig{
		FailureThreshold: 0,
		ResetTimeout:     30 * time.Second,
	}
}

type breaker struct {
	state               BreakerState
	consecutiveFailures int
	openedAt            time.Time
	probing             bool
}

// CapabilityBreakers tracks one circuit per scanner capability. The engine
// consults Allow before dispatch and reports outcomes via Record.
type CapabilityBreakers struct {
	cfg   BreakerConfig
	clock Clock

	mu       sync.Mutex
	breakers map[string]*breaker
}

// NewCapabilityBreakers creates the breaker set. A nil clock uses real time.
func NewCapabilityBreakers(cfg BreakerConfig, clock Clock) *CapabilityBreakers {
	if cfg.ResetTimeout <= 0 {
		cfg.ResetTimeout = 30 * time.Second
	}
	if clock == nil {
		clock = SystemClock{}
	}
	return &CapabilityBreakers{
		cfg:      cfg,
		clock:    clock,
		breakers: make(map[string]*breaker),
	}
}

// Allow reports whether a dispatch for the capability may proceed. Returns
// ErrCapabilityOpen when the circuit is open and not yet due for a probe.
func (cb *CapabilityBreakers) Allow(capability string) error {
	if cb == nil || cb.cfg.FailureThreshold <= 0 {
		return nil
	}

	cb.mu.Lock()
	defer cb.mu.Unlock()

	b := cb.breakers[capability]
	if b == nil {
		return nil
	}

	switch b.state {
	case BreakerClosed:
		return nil
	case BreakerOpen:
		if cb.clock.Now().Sub(b.openedAt) >= cb.cfg.ResetTimeout {
			b.state = BreakerHalfOpen
			b.probing = true
			zap.L().Info("breaker: half-open probe",
				zap.String("capability", capability),
			)
			return nil
		}
		return eris.Wrapf(ErrCapabilityOpen, "capability %s", capability)
	case BreakerHalfOpen:
		// One probe at a time.
		if b.probing {
			return eris.Wrapf(ErrCapabilityOpen, "capability %s", capability)
		}
		b.probing = true
		return nil
	default:
		return nil
	}
}

// Record feeds an execution outcome into the capability's circuit.
func (cb *CapabilityBreakers) Record(capability string, err error) {
	if cb == nil || cb.cfg.FailureThreshold <= 0 {
		return
	}

	cb.mu.Lock()
	defer cb.mu.Unlock()

	b := cb.breakers[capability]
	if b == nil {
		b = &breaker{state: BreakerClosed}
		cb.breakers[capability] = b
	}

	if err == nil {
		if b.state != BreakerClosed {
			zap.L().Info("breaker: closed after successful probe",
				zap.String("capability", capability),
			)
		}
		b.state = BreakerClosed
		b.consecutiveFailures = 0
		b.probing = false
		return
	}

	b.consecutiveFailures++
	b.probing = false

	if b.state == BreakerHalfOpen || b.consecutiveFailures >= cb.cfg.FailureThreshold {
		if b.state != BreakerOpen {
			zap.L().Warn("breaker: circuit opened",
				zap.String("capability", capability),
				zap.Int("consecutive_failures", b.consecutiveFailures),
			)
		}
		b.state = BreakerOpen
		b.openedAt = cb.clock.Now()
	}
}

// State returns the current circuit state for a capability.
func (cb *CapabilityBreakers) State(capability string) BreakerState {
	if cb == nil {
		return BreakerClosed
	}
	cb.mu.Lock()
	defer cb.mu.Unlock()
	b := cb.breakers[capability]
	if b == nil {
		return BreakerClosed
	}
	if b.state == BreakerOpen && cb.clock.Now().Sub(b.openedAt) >= cb.cfg.ResetTimeout {
		return BreakerHalfOpen
	}
	return b.state
}
