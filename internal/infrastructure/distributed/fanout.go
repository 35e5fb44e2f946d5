package distributed

import (
	"context"
	"encoding/json"
	"fmt"

	"confsync/internal/core/domain"
	"confsync/internal/core/ports"

	"go.uber.org/zap"
)

// SyncRelay publishes committed updates to the other instances. Satisfied by
// *EventBus directly or by reliability.RelayWrapper around it.
type SyncRelay interface {
	PublishSyncUpdate(ctx context.Context, conferenceID domain.ConferenceID, objectID domain.SynchronizedObjectID, payload json.RawMessage) error
}

// updateEnvelope is the wire form of a sync update carried over the bus.
type updateEnvelope struct {
	ConferenceID   domain.ConferenceID    `json:"conferenceId"`
	ParticipantIDs []domain.ParticipantID `json:"participantIds"`
	ObjectID       string                 `json:"objectId"`
	Value          interface{}            `json:"value"`
	PreviousValue  interface{}            `json:"previousValue,omitempty"`
}

// BusFanout delivers updates to locally connected participants and relays
// them over the event bus for participants connected to other instances.
type BusFanout struct {
	local  ports.NotificationFanout
	relay  SyncRelay
	logger *zap.SugaredLogger
}

func NewBusFanout(local ports.NotificationFanout, relay SyncRelay, logger *zap.SugaredLogger) *BusFanout {
	return &BusFanout{
		local:  local,
		relay:  relay,
		logger: logger,
	}
}

func (f *BusFanout) Publish(ctx context.Context, conferenceID domain.ConferenceID, participantIDs []domain.ParticipantID, objectKey string, value, previousValue any) error {
	if err := f.local.Publish(ctx, conferenceID, participantIDs, objectKey, value, previousValue); err != nil {
		return err
	}

	envelope := updateEnvelope{
		ConferenceID:   conferenceID,
		ParticipantIDs: participantIDs,
		ObjectID:       objectKey,
		Value:          value,
		PreviousValue:  previousValue,
	}
	payload, err := json.Marshal(envelope)
	if err != nil {
		return fmt.Errorf("failed to marshal update envelope: %w", err)
	}

	// A relay failure must not fail the local delivery that already went out.
	objectID := domain.ParseSynchronizedObjectID(objectKey)
	if err := f.relay.PublishSyncUpdate(ctx, conferenceID, objectID, payload); err != nil {
		f.logger.Warnw("failed to relay update over event bus",
			"conference_id", conferenceID,
			"object_id", objectKey,
			"error", err,
		)
	}

	return nil
}

// NotificationBridge feeds bus-relayed updates into the local gateway so
// participants connected to this instance see updates committed elsewhere.
type NotificationBridge struct {
	local  ports.NotificationFanout
	logger *zap.SugaredLogger
}

func NewNotificationBridge(local ports.NotificationFanout, logger *zap.SugaredLogger) *NotificationBridge {
	return &NotificationBridge{
		local:  local,
		logger: logger,
	}
}

// Handle dispatches a single bus event. Sync updates are fed into the local
// gateway; room lifecycle events from other instances are logged so operators
// can trace cross-instance activity. Unknown event types are ignored.
func (b *NotificationBridge) Handle(event *Event) error {
	switch event.Type {
	case EventSyncUpdate:
		var envelope updateEnvelope
		if err := json.Unmarshal(event.Payload, &envelope); err != nil {
			return fmt.Errorf("failed to unmarshal update envelope: %w", err)
		}

		return b.local.Publish(
			context.Background(),
			envelope.ConferenceID,
			envelope.ParticipantIDs,
			envelope.ObjectID,
			envelope.Value,
			envelope.PreviousValue,
		)

	case EventRoomsCreated:
		var payload struct {
			Rooms []domain.Room `json:"rooms"`
		}
		if err := json.Unmarshal(event.Payload, &payload); err != nil {
			return fmt.Errorf("failed to unmarshal rooms created payload: %w", err)
		}
		b.logger.Infow("rooms created on another instance",
			"conference_id", event.ConferenceID,
			"instance_id", event.InstanceID,
			"room_count", len(payload.Rooms),
		)
		return nil

	case EventRoomsRemoved:
		var payload struct {
			RoomIDs []domain.RoomID `json:"room_ids"`
		}
		if err := json.Unmarshal(event.Payload, &payload); err != nil {
			return fmt.Errorf("failed to unmarshal rooms removed payload: %w", err)
		}
		b.logger.Infow("rooms removed on another instance",
			"conference_id", event.ConferenceID,
			"instance_id", event.InstanceID,
			"room_ids", payload.RoomIDs,
		)
		return nil

	default:
		return nil
	}
}
