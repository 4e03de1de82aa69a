package credential

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/sync/singleflight"
)

const (
	// DefaultAttemptTimeout bounds a single strategy attempt.
	DefaultAttemptTimeout = 10 * time.Second

	// DefaultFailureBackoff is how long a failed strategy is skipped before
	// it is tried again.
	DefaultFailureBackoff = 2 * time.Second
)

// Chain is the ordered set of strategies a Broker walks.
type Chain struct {
	// Static is served before the cache is consulted and is never cached.
	Static Strategy
	// Exchanges are tried in order on a cache miss; the first success is cached.
	Exchanges []Strategy
	// LastResort is served when every exchange failed and is never cached.
	LastResort Strategy
}

// Broker resolves a bearer credential from its Chain and Cache.
type Broker struct {
	cache          *Cache
	chain          Chain
	group          singleflight.Group
	logger         zerolog.Logger
	attemptTimeout time.Duration
	failureBackoff time.Duration

	failMu   sync.Mutex
	failures map[string]failure
}

// failure is the last error a strategy returned and when.
type failure struct {
	at  time.Time
	err error
}

// BrokerOption configures a Broker.
type BrokerOption func(*Broker)

// WithLogger sets the broker logger.
func WithLogger(logger zerolog.Logger) BrokerOption {
	return func(b *Broker) {
		b.logger = logger
	}
}

// WithAttemptTimeout bounds each strategy attempt.
func WithAttemptTimeout(d time.Duration) BrokerOption {
	return func(b *Broker) {
		if d > 0 {
			b.attemptTimeout = d
		}
	}
}

// WithFailureBackoff sets how long a failed strategy is skipped. Zero
// disables the backoff.
func WithFailureBackoff(d time.Duration) BrokerOption {
	return func(b *Broker) {
		if d >= 0 {
			b.failureBackoff = d
		}
	}
}

// NewBroker creates a Broker over cache and chain.
func NewBroker(cache *Cache, chain Chain, opts ...BrokerOption) *Broker {
	b := &Broker{
		cache:          cache,
		chain:          chain,
		logger:         zerolog.Nop(),
		attemptTimeout: DefaultAttemptTimeout,
		failureBackoff: DefaultFailureBackoff,
		failures:       make(map[string]failure),
	}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

// Resolve returns a credential, walking static override, cache, exchanges and
// finally the last-resort fallback. Strategy failures are logged and never
// returned; the only error is ErrNoCredentialAvailable.
func (b *Broker) Resolve(ctx context.Context) (Credential, error) {
	if b.chain.Static != nil {
		if cred, err := b.attempt(ctx, b.chain.Static, false); err == nil {
			return cred, nil
		}
	}

	if cred, ok := b.cache.Get(); ok {
		return cred, nil
	}

	for _, strategy := range b.chain.Exchanges {
		if cred, err := b.attempt(ctx, strategy, true); err == nil {
			return cred, nil
		}
	}

	return b.Fallback(ctx)
}

// Fallback returns the last-resort credential only.
func (b *Broker) Fallback(ctx context.Context) (Credential, error) {
	if b.chain.LastResort == nil {
		return Credential{}, ErrNoCredentialAvailable
	}
	cred, err := b.attempt(ctx, b.chain.LastResort, false)
	if err != nil {
		return Credential{}, ErrNoCredentialAvailable
	}
	return cred, nil
}

// attempt runs strategy through the single-flight group keyed by its name.
// Callers that arrive while an attempt is in flight share its outcome, and a
// failure is replayed without calling the strategy until the backoff lapses.
// The shared attempt is detached from any single caller's cancellation and
// bounded by the attempt timeout instead. A credential that is already
// expired when issued counts as a failure.
func (b *Broker) attempt(ctx context.Context, strategy Strategy, cacheable bool) (Credential, error) {
	name := strategy.Name()
	if err := b.recentFailure(name); err != nil {
		b.logger.Debug().Err(err).Str("strategy", name).Msg("credential strategy backing off")
		return Credential{}, err
	}

	result := b.group.DoChan(name, func() (any, error) {
		if cacheable {
			if cred, ok := b.cache.Get(); ok {
				return cred, nil
			}
		}
		if err := b.recentFailure(name); err != nil {
			return Credential{}, err
		}

		attemptCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), b.attemptTimeout)
		defer cancel()

		cred, err := strategy.Acquire(attemptCtx)
		if err == nil && !cred.Valid(b.cache.now()) {
			err = ErrUnavailable
		}
		if err != nil {
			b.recordFailure(name, err)
			return Credential{}, err
		}
		b.clearFailure(name)
		if cacheable {
			b.cache.Put(cred)
		}
		return cred, nil
	})

	var res singleflight.Result
	select {
	case res = <-result:
	case <-ctx.Done():
		return Credential{}, ctx.Err()
	}

	if res.Err != nil {
		b.logger.Warn().Err(res.Err).Str("strategy", name).Msg("credential strategy failed")
		return Credential{}, res.Err
	}
	cred := res.Val.(Credential)
	b.logger.Debug().
		Str("strategy", name).
		Bool("shared", res.Shared).
		Time("expires_at", cred.ExpiresAt).
		Msg("credential resolved")
	return cred, nil
}

// recentFailure returns the last error of strategy name if it failed within
// the backoff window.
func (b *Broker) recentFailure(name string) error {
	if b.failureBackoff <= 0 {
		return nil
	}
	b.failMu.Lock()
	defer b.failMu.Unlock()
	f, ok := b.failures[name]
	if !ok {
		return nil
	}
	if b.cache.now().Sub(f.at) >= b.failureBackoff {
		delete(b.failures, name)
		return nil
	}
	return f.err
}

func (b *Broker) recordFailure(name string, err error) {
	if b.failureBackoff <= 0 {
		return
	}
	b.failMu.Lock()
	b.failures[name] = failure{at: b.cache.now(), err: err}
	b.failMu.Unlock()
}

func (b *Broker) clearFailure(name string) {
	b.failMu.Lock()
	delete(b.failures, name)
	b.failMu.Unlock()
}
