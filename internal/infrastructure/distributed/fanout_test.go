package distributed

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"confsync/internal/core/domain"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

type capturedPublish struct {
	conferenceID   domain.ConferenceID
	participantIDs []domain.ParticipantID
	objectKey      string
	value          any
	previousValue  any
}

type fakeLocalFanout struct {
	published []capturedPublish
	err       error
}

func (f *fakeLocalFanout) Publish(ctx context.Context, conferenceID domain.ConferenceID, participantIDs []domain.ParticipantID, objectKey string, value, previousValue any) error {
	f.published = append(f.published, capturedPublish{
		conferenceID:   conferenceID,
		participantIDs: participantIDs,
		objectKey:      objectKey,
		value:          value,
		previousValue:  previousValue,
	})
	return f.err
}

type fakeRelay struct {
	conferenceID domain.ConferenceID
	objectID     domain.SynchronizedObjectID
	payload      json.RawMessage
	calls        int
	err          error
}

func (r *fakeRelay) PublishSyncUpdate(ctx context.Context, conferenceID domain.ConferenceID, objectID domain.SynchronizedObjectID, payload json.RawMessage) error {
	r.calls++
	r.conferenceID = conferenceID
	r.objectID = objectID
	r.payload = payload
	return r.err
}

func TestBusFanoutPublishesLocallyAndRelays(t *testing.T) {
	local := &fakeLocalFanout{}
	relay := &fakeRelay{}
	fanout := NewBusFanout(local, relay, zaptest.NewLogger(t).Sugar())

	err := fanout.Publish(context.Background(), "conf-1",
		[]domain.ParticipantID{"alice", "bob"}, "scenes:room-1", "v2", "v1")
	require.NoError(t, err)

	require.Len(t, local.published, 1)
	assert.Equal(t, domain.ConferenceID("conf-1"), local.published[0].conferenceID)
	assert.Equal(t, "scenes:room-1", local.published[0].objectKey)

	require.Equal(t, 1, relay.calls)
	assert.Equal(t, domain.NewScopedSynchronizedObjectID("scenes", "room-1"), relay.objectID)

	var envelope updateEnvelope
	require.NoError(t, json.Unmarshal(relay.payload, &envelope))
	assert.Equal(t, domain.ConferenceID("conf-1"), envelope.ConferenceID)
	assert.Equal(t, "scenes:room-1", envelope.ObjectID)
	assert.Equal(t, "v2", envelope.Value)
	assert.Equal(t, "v1", envelope.PreviousValue)
}

func TestBusFanoutLocalFailureSurfaces(t *testing.T) {
	local := &fakeLocalFanout{err: errors.New("gateway down")}
	relay := &fakeRelay{}
	fanout := NewBusFanout(local, relay, zaptest.NewLogger(t).Sugar())

	err := fanout.Publish(context.Background(), "conf-1", nil, "scenes", "v1", nil)
	require.Error(t, err)
	assert.Zero(t, relay.calls, "a failed local delivery must not be relayed")
}

func TestBusFanoutRelayFailureIsSwallowed(t *testing.T) {
	local := &fakeLocalFanout{}
	relay := &fakeRelay{err: errors.New("redis gone")}
	fanout := NewBusFanout(local, relay, zaptest.NewLogger(t).Sugar())

	err := fanout.Publish(context.Background(), "conf-1", nil, "scenes", "v1", nil)
	require.NoError(t, err, "relay failure must not fail the committed update")
	require.Len(t, local.published, 1)
}

func TestNotificationBridgeHandle(t *testing.T) {
	local := &fakeLocalFanout{}
	bridge := NewNotificationBridge(local, zaptest.NewLogger(t).Sugar())

	payload, err := json.Marshal(updateEnvelope{
		ConferenceID:   "conf-1",
		ParticipantIDs: []domain.ParticipantID{"alice"},
		ObjectID:       "rooms",
		Value:          map[string]any{"Rooms": []any{}},
	})
	require.NoError(t, err)

	require.NoError(t, bridge.Handle(&Event{Type: EventSyncUpdate, Payload: payload}))
	require.Len(t, local.published, 1)
	assert.Equal(t, domain.ConferenceID("conf-1"), local.published[0].conferenceID)
	assert.Equal(t, []domain.ParticipantID{"alice"}, local.published[0].participantIDs)
	assert.Equal(t, "rooms", local.published[0].objectKey)
}

func TestNotificationBridgeHandlesRoomEvents(t *testing.T) {
	local := &fakeLocalFanout{}
	bridge := NewNotificationBridge(local, zaptest.NewLogger(t).Sugar())

	created, err := json.Marshal(map[string]any{
		"rooms": []domain.Room{{ID: "b1", DisplayName: "Breakout 1"}},
	})
	require.NoError(t, err)
	require.NoError(t, bridge.Handle(&Event{
		Type:         EventRoomsCreated,
		ConferenceID: "conf-1",
		InstanceID:   "instance-2",
		Payload:      created,
	}))

	removed, err := json.Marshal(map[string]any{
		"room_ids": []domain.RoomID{"b1"},
	})
	require.NoError(t, err)
	require.NoError(t, bridge.Handle(&Event{
		Type:         EventRoomsRemoved,
		ConferenceID: "conf-1",
		InstanceID:   "instance-2",
		Payload:      removed,
	}))

	assert.Empty(t, local.published, "room lifecycle events must not reach the gateway fanout")
}

func TestNotificationBridgeRejectsMalformedRoomPayload(t *testing.T) {
	local := &fakeLocalFanout{}
	bridge := NewNotificationBridge(local, zaptest.NewLogger(t).Sugar())

	err := bridge.Handle(&Event{Type: EventRoomsCreated, Payload: json.RawMessage(`{`)})
	require.Error(t, err)

	err = bridge.Handle(&Event{Type: EventRoomsRemoved, Payload: json.RawMessage(`{`)})
	require.Error(t, err)
}

func TestNotificationBridgeIgnoresUnknownEvents(t *testing.T) {
	local := &fakeLocalFanout{}
	bridge := NewNotificationBridge(local, zaptest.NewLogger(t).Sugar())

	require.NoError(t, bridge.Handle(&Event{Type: EventType("presence.ping")}))
	assert.Empty(t, local.published)
}

func TestNotificationBridgeRejectsMalformedPayload(t *testing.T) {
	local := &fakeLocalFanout{}
	bridge := NewNotificationBridge(local, zaptest.NewLogger(t).Sugar())

	err := bridge.Handle(&Event{Type: EventSyncUpdate, Payload: json.RawMessage(`{`)})
	require.Error(t, err)
	assert.Empty(t, local.published)
}
