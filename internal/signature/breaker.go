package signature

import (
	"context"
	"log/slog"
	"sync"
	"time"

	id "quorum/pkg/domain"
	dErrors "quorum/pkg/domain-errors"
	"quorum/pkg/platform/circuit"
)

const defaultProbeInterval = 15 * time.Second

// BreakerVerifier wraps a Verifier with a circuit breaker. When the identity
// provider is failing, votes fail fast with CodeUnavailable instead of each
// waiting out its timeout; one probe per interval is let through so the
// breaker can close once the provider recovers. A rejected assertion is a
// healthy provider answer and never counts against the breaker.
type BreakerVerifier struct {
	inner         Verifier
	breaker       *circuit.Breaker
	logger        *slog.Logger
	probeInterval time.Duration
	clock         func() time.Time

	mu        sync.Mutex
	lastProbe time.Time
}

// BreakerOption configures a BreakerVerifier.
type BreakerOption func(*BreakerVerifier)

// WithProbeInterval sets how often an open circuit lets a call through.
func WithProbeInterval(d time.Duration) BreakerOption {
	return func(v *BreakerVerifier) {
		if d > 0 {
			v.probeInterval = d
		}
	}
}

// WithBreakerClock injects a clock for tests.
func WithBreakerClock(clock func() time.Time) BreakerOption {
	return func(v *BreakerVerifier) { v.clock = clock }
}

func NewBreakerVerifier(inner Verifier, breaker *circuit.Breaker, logger *slog.Logger, opts ...BreakerOption) *BreakerVerifier {
	v := &BreakerVerifier{
		inner:         inner,
		breaker:       breaker,
		logger:        logger,
		probeInterval: defaultProbeInterval,
		clock:         time.Now,
	}
	for _, opt := range opts {
		opt(v)
	}
	return v
}

func (v *BreakerVerifier) Verify(ctx context.Context, shareholderID id.ShareholderID, assertionToken string) (Assertion, error) {
	if v.breaker.IsOpen() && !v.claimProbe() {
		return Assertion{}, dErrors.New(dErrors.CodeUnavailable, "identity provider unavailable")
	}

	assertion, err := v.inner.Verify(ctx, shareholderID, assertionToken)
	if v.isProviderFailure(err) {
		if _, change := v.breaker.RecordFailure(); change.Opened {
			v.mu.Lock()
			v.lastProbe = v.clock()
			v.mu.Unlock()
			v.logger.Warn("identity verifier circuit opened", "breaker", v.breaker.Name())
		}
		return Assertion{}, err
	}
	if _, change := v.breaker.RecordSuccess(); change.Closed {
		v.logger.Info("identity verifier circuit closed", "breaker", v.breaker.Name())
	}
	return assertion, err
}

// claimProbe reserves the probe slot for the current interval. Exactly one
// caller per interval reaches the provider while the circuit is open.
func (v *BreakerVerifier) claimProbe() bool {
	v.mu.Lock()
	defer v.mu.Unlock()
	now := v.clock()
	if now.Sub(v.lastProbe) < v.probeInterval {
		return false
	}
	v.lastProbe = now
	return true
}

// isProviderFailure distinguishes provider outages from verdicts. Only
// infrastructure errors trip the breaker.
func (v *BreakerVerifier) isProviderFailure(err error) bool {
	if err == nil {
		return false
	}
	return !dErrors.HasCode(err, dErrors.CodeIdentityRejected)
}
