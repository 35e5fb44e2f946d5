package services

import (
	"context"
	"errors"
	"fmt"

	"confsync/internal/core/domain"
	"confsync/internal/core/ports"
	"confsync/pkg/tracing"

	"go.uber.org/zap"
)

// syncService is the distributor: it orchestrates
// resolve-provider -> resolve-subscribers -> fetch -> store -> notify for
// every synchronized object update in the system.
type syncService struct {
	registry      *ProviderRegistry
	subscriptions ports.SubscriptionRepository
	store         ports.SynchronizedObjectStore
	fanout        ports.NotificationFanout
	metrics       *MetricsService

	// storeLocks serializes the store replace per (conference, object key) so
	// concurrent updates to the same id never interleave. Distinct ids and
	// conferences proceed in parallel.
	storeLocks *keyedMutex

	logger *zap.SugaredLogger
}

func NewSyncService(
	registry *ProviderRegistry,
	subscriptions ports.SubscriptionRepository,
	store ports.SynchronizedObjectStore,
	fanout ports.NotificationFanout,
	metrics *MetricsService,
	logger *zap.SugaredLogger,
) ports.SynchronizationService {
	return &syncService{
		registry:      registry,
		subscriptions: subscriptions,
		store:         store,
		fanout:        fanout,
		metrics:       metrics,
		storeLocks:    newKeyedMutex(),
		logger:        logger,
	}
}

func (s *syncService) RequestUpdate(ctx context.Context, conferenceID domain.ConferenceID, id domain.SynchronizedObjectID) error {
	ctx, span := tracing.TraceSyncUpdate(ctx, string(conferenceID), id.String())
	defer span.End()

	// A missing provider is a configuration error: fatal, never retried.
	provider, err := s.registry.Resolve(id)
	if err != nil {
		tracing.RecordError(ctx, err)
		return err
	}

	subs, err := s.subscriptions.GetOfConference(ctx, conferenceID)
	if err != nil {
		return fmt.Errorf("resolve subscriptions of conference %s: %w", conferenceID, err)
	}

	participantIDs := SubscribedParticipants(subs, id)
	if len(participantIDs) == 0 {
		// Nobody is watching: no fetch, no store write.
		s.metrics.RecordUpdateSkipped(id.Kind)
		return nil
	}

	// May block on I/O. On error nothing is committed: no store mutation,
	// no notification.
	value, err := provider.FetchValue(ctx, conferenceID, id)
	if err != nil {
		tracing.RecordError(ctx, err)
		return fmt.Errorf("fetch value of %s: %w", id, err)
	}

	key := id.String()

	unlock := s.storeLocks.Lock(string(conferenceID) + "/" + key)
	previous, err := s.store.CreateOrReplace(ctx, conferenceID, key, value)
	unlock()
	if err != nil {
		tracing.RecordError(ctx, err)
		return fmt.Errorf("store value of %s: %w", id, err)
	}

	s.metrics.RecordUpdate(conferenceID, id.Kind, len(participantIDs))

	// The update is committed once stored. Delivery is best-effort; a
	// fan-out failure is logged and swallowed.
	if err := s.fanout.Publish(ctx, conferenceID, participantIDs, key, value, previous); err != nil {
		s.logger.Warnw("notification fan-out failed",
			"conference_id", conferenceID,
			"object_id", key,
			"recipients", len(participantIDs),
			"error", err,
		)
	}

	return nil
}

func (s *syncService) SubscribeParticipant(ctx context.Context, participant domain.Participant, id domain.SynchronizedObjectID) error {
	// Reject unknown kinds up front so a typo in a client subscription
	// surfaces as a configuration error instead of a silent dead entry.
	if _, err := s.registry.Resolve(id); err != nil {
		return err
	}

	if err := s.subscriptions.Subscribe(ctx, participant.ConferenceID, participant.ParticipantID, id); err != nil {
		return fmt.Errorf("subscribe participant %s to %s: %w", participant.ParticipantID, id, err)
	}

	// Push the current value to the new subscriber right away so it does not
	// have to wait for the next change.
	current, err := s.store.Get(ctx, participant.ConferenceID, id.String())
	if err != nil {
		if errors.Is(err, domain.ErrObjectNotFound) {
			// Never computed before; run a full update now that there is at
			// least one subscriber.
			return s.RequestUpdate(ctx, participant.ConferenceID, id)
		}
		return fmt.Errorf("read current value of %s: %w", id, err)
	}

	if err := s.fanout.Publish(ctx, participant.ConferenceID,
		[]domain.ParticipantID{participant.ParticipantID}, id.String(), current, nil); err != nil {
		s.logger.Warnw("initial state push failed",
			"conference_id", participant.ConferenceID,
			"participant_id", participant.ParticipantID,
			"object_id", id.String(),
			"error", err,
		)
	}
	return nil
}

func (s *syncService) UnsubscribeParticipant(ctx context.Context, participant domain.Participant, id domain.SynchronizedObjectID) error {
	return s.subscriptions.Unsubscribe(ctx, participant.ConferenceID, participant.ParticipantID, id)
}

func (s *syncService) ParticipantDisconnected(ctx context.Context, participant domain.Participant) error {
	if err := s.subscriptions.RemoveParticipant(ctx, participant.ConferenceID, participant.ParticipantID); err != nil {
		return fmt.Errorf("remove subscriptions of participant %s: %w", participant.ParticipantID, err)
	}
	return nil
}

func (s *syncService) ConferenceClosed(ctx context.Context, conferenceID domain.ConferenceID) error {
	if err := s.subscriptions.RemoveConference(ctx, conferenceID); err != nil {
		return fmt.Errorf("remove subscriptions of conference %s: %w", conferenceID, err)
	}
	if err := s.store.RemoveConference(ctx, conferenceID); err != nil {
		return fmt.Errorf("remove stored values of conference %s: %w", conferenceID, err)
	}
	return nil
}
