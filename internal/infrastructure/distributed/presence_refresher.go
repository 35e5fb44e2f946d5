package distributed

import (
	"context"
	"time"

	"confsync/internal/core/domain"
	"confsync/pkg/batch"

	"go.uber.org/zap"
)

// refreshOperation extends one participant's presence TTL.
type refreshOperation struct {
	registry    *PresenceRegistry
	participant domain.Participant
}

func (op *refreshOperation) Execute(ctx context.Context) error {
	return op.registry.RefreshParticipant(ctx, op.participant)
}

// refreshProcessor executes a batch of TTL refreshes. Failures are logged
// and skipped; a missed refresh only shortens one presence record's life.
type refreshProcessor struct {
	logger *zap.SugaredLogger
}

func (p *refreshProcessor) ProcessBatch(ctx context.Context, operations []batch.Operation) error {
	for _, op := range operations {
		if err := op.Execute(ctx); err != nil {
			refresh, ok := op.(*refreshOperation)
			if ok {
				p.logger.Warnw("failed to refresh presence",
					"conference_id", refresh.participant.ConferenceID,
					"participant_id", refresh.participant.ParticipantID,
					"error", err,
				)
			}
		}
	}
	return nil
}

// PresenceRefresher batches presence TTL refreshes so that gateways with many
// connections issue grouped writes instead of one redis round trip per ping.
type PresenceRefresher struct {
	registry *PresenceRegistry
	batcher  *batch.Batcher
}

// NewPresenceRefresher creates a refresher flushing at batchSize operations
// or every flushInterval, whichever comes first.
func NewPresenceRefresher(registry *PresenceRegistry, batchSize int, flushInterval time.Duration, logger *zap.SugaredLogger) *PresenceRefresher {
	return &PresenceRefresher{
		registry: registry,
		batcher:  batch.NewBatcher(batchSize, flushInterval, &refreshProcessor{logger: logger}),
	}
}

// Touch queues a TTL refresh for the participant.
func (r *PresenceRefresher) Touch(participant domain.Participant) {
	_ = r.batcher.Add(&refreshOperation{registry: r.registry, participant: participant})
}

// Close flushes pending refreshes and stops the background loop.
func (r *PresenceRefresher) Close() {
	r.batcher.Stop()
}
