package sensor

import (
	"fmt"
	"sync"
	"time"

	"github.com/gethiox/gyrostream/internal/pkg/logger"
	"go.uber.org/multierr"
	"go.uber.org/zap"
)

// Registry maps stream identifiers to their subscriptions and drives the attach/detach cycle.
type Registry struct {
	interval time.Duration
	cleanup  *CleanupFlag // current cycle, subscriptions of detached cycles keep theirs marked

	mu            sync.Mutex
	messenger     Messenger
	source        Source
	subscriptions map[Kind]*Subscription
}

// NewRegistry creates a detached registry, zero interval selects NormalInterval.
func NewRegistry(interval time.Duration) *Registry {
	if interval <= 0 {
		interval = NormalInterval
	}
	return &Registry{interval: interval}
}

// Attach creates a fresh, unbound subscription for every kind backed by source
// and installs it into the messenger under the kind's stream identifier.
func (r *Registry) Attach(m Messenger, source Source) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.messenger != nil {
		return ErrAlreadyAttached
	}

	r.cleanup = new(CleanupFlag)
	r.messenger = m
	r.source = source
	r.subscriptions = make(map[Kind]*Subscription, len(Kinds))

	for _, kind := range Kinds {
		sub := newSubscription(kind, source, r.cleanup, r.interval)
		r.subscriptions[kind] = sub
		m.SetStreamHandler(kind.StreamID(), sub)
	}

	log.Info("Registry attached", zap.Int("streams", len(Kinds)), zap.Duration("interval", r.interval), logger.Info)
	return nil
}

// Detach marks cleanup first, so in-flight callbacks discard their data, then removes
// handlers and cancels every subscription. Detaching a detached registry is a no-op.
// Returned error aggregates unregister failures, the registry is detached regardless.
func (r *Registry) Detach() error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.messenger == nil {
		return nil
	}

	r.cleanup.MarkCleanUp()

	var errs error
	for _, kind := range Kinds {
		sub, ok := r.subscriptions[kind]
		if !ok {
			continue
		}
		r.messenger.SetStreamHandler(kind.StreamID(), nil)
		err := sub.cancel()
		if err != nil {
			errs = multierr.Append(errs, fmt.Errorf("%s: %w", kind.StreamID(), err))
		}
	}

	r.subscriptions = nil
	r.messenger = nil
	r.source = nil

	log.Info("Registry detached", logger.Info)
	return errs
}

func (r *Registry) Attached() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.messenger != nil
}

// Subscription returns the subscription currently serving the kind.
func (r *Registry) Subscription(kind Kind) (*Subscription, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.messenger == nil {
		return nil, ErrNotAttached
	}
	sub, ok := r.subscriptions[kind]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownStream, kind)
	}
	return sub, nil
}

// CleaningUp reports whether teardown has begun for the current cycle.
func (r *Registry) CleaningUp() bool {
	r.mu.Lock()
	cleanup := r.cleanup
	r.mu.Unlock()
	return cleanup != nil && cleanup.IsCleanUp()
}
