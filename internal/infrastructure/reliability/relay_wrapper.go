package reliability

import (
	"context"
	"encoding/json"
	"sync"

	"confsync/internal/core/domain"
	"confsync/pkg/circuitbreaker"
	"confsync/pkg/retry"

	"go.uber.org/zap"
)

// Relay is the cross-instance publish surface protected by this wrapper.
type Relay interface {
	PublishSyncUpdate(ctx context.Context, conferenceID domain.ConferenceID, objectID domain.SynchronizedObjectID, payload json.RawMessage) error
	PublishRoomsCreated(ctx context.Context, conferenceID domain.ConferenceID, rooms []domain.Room) error
	PublishRoomsRemoved(ctx context.Context, conferenceID domain.ConferenceID, roomIDs []domain.RoomID) error
}

// RelayWrapper wraps a Relay with retry logic and circuit breakers. A global
// breaker guards the redis connection; per-conference breakers keep one
// conference's publish storm from tripping everyone else.
type RelayWrapper struct {
	relay  Relay
	logger *zap.SugaredLogger

	retryConfig    retry.Config
	circuitBreaker *circuitbreaker.CircuitBreaker

	confBreakers   map[domain.ConferenceID]*circuitbreaker.CircuitBreaker
	confBreakersMu sync.RWMutex
}

// NewRelayWrapper creates a new wrapper with retry and circuit breaker
func NewRelayWrapper(
	relay Relay,
	retryConfig retry.Config,
	cbConfig circuitbreaker.Config,
	logger *zap.SugaredLogger,
) *RelayWrapper {
	wrapper := &RelayWrapper{
		relay:          relay,
		logger:         logger,
		retryConfig:    retryConfig,
		circuitBreaker: circuitbreaker.New(cbConfig),
		confBreakers:   make(map[domain.ConferenceID]*circuitbreaker.CircuitBreaker),
	}

	wrapper.circuitBreaker.OnStateChange(func(from, to circuitbreaker.State) {
		logger.Infow("relay circuit breaker state changed",
			"from", from.String(),
			"to", to.String(),
		)
	})

	return wrapper
}

// getConferenceCircuitBreaker gets or creates a circuit breaker for a specific conference
func (w *RelayWrapper) getConferenceCircuitBreaker(conferenceID domain.ConferenceID) *circuitbreaker.CircuitBreaker {
	w.confBreakersMu.RLock()
	cb, exists := w.confBreakers[conferenceID]
	w.confBreakersMu.RUnlock()

	if exists {
		return cb
	}

	w.confBreakersMu.Lock()
	defer w.confBreakersMu.Unlock()

	// Double-check after acquiring write lock
	if cb, exists := w.confBreakers[conferenceID]; exists {
		return cb
	}

	cb = circuitbreaker.New(circuitbreaker.DefaultConfig())
	cb.OnStateChange(func(from, to circuitbreaker.State) {
		w.logger.Infow("conference circuit breaker state changed",
			"conference_id", conferenceID,
			"from", from.String(),
			"to", to.String(),
		)
	})

	w.confBreakers[conferenceID] = cb
	return cb
}

// ForgetConference drops the per-conference breaker once a conference closes.
func (w *RelayWrapper) ForgetConference(conferenceID domain.ConferenceID) {
	w.confBreakersMu.Lock()
	defer w.confBreakersMu.Unlock()
	delete(w.confBreakers, conferenceID)
}

func (w *RelayWrapper) publish(ctx context.Context, conferenceID domain.ConferenceID, fn func() error) error {
	if !w.retryConfig.Enabled {
		return fn()
	}

	confBreaker := w.getConferenceCircuitBreaker(conferenceID)
	return retry.Retry(ctx, w.retryConfig, func() error {
		return w.circuitBreaker.Execute(ctx, func() error {
			return confBreaker.Execute(ctx, fn)
		})
	})
}

// PublishSyncUpdate relays an object update with retry logic
func (w *RelayWrapper) PublishSyncUpdate(ctx context.Context, conferenceID domain.ConferenceID, objectID domain.SynchronizedObjectID, payload json.RawMessage) error {
	return w.publish(ctx, conferenceID, func() error {
		return w.relay.PublishSyncUpdate(ctx, conferenceID, objectID, payload)
	})
}

// PublishRoomsCreated relays a rooms created event with retry logic
func (w *RelayWrapper) PublishRoomsCreated(ctx context.Context, conferenceID domain.ConferenceID, rooms []domain.Room) error {
	return w.publish(ctx, conferenceID, func() error {
		return w.relay.PublishRoomsCreated(ctx, conferenceID, rooms)
	})
}

// PublishRoomsRemoved relays a rooms removed event with retry logic
func (w *RelayWrapper) PublishRoomsRemoved(ctx context.Context, conferenceID domain.ConferenceID, roomIDs []domain.RoomID) error {
	return w.publish(ctx, conferenceID, func() error {
		return w.relay.PublishRoomsRemoved(ctx, conferenceID, roomIDs)
	})
}

// Stats returns the global breaker's current statistics.
func (w *RelayWrapper) Stats() circuitbreaker.Stats {
	return w.circuitBreaker.GetStats()
}
