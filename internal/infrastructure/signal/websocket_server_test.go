package signal

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"runtime"
	"strings"
	"sync"
	"testing"
	"time"

	"confsync/internal/core/domain"
	"confsync/internal/core/ports"
	"confsync/internal/core/services"
	"confsync/internal/infrastructure/repositories/memory"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

// deferredFanout breaks the construction cycle between the sync service and
// the gateway, the same way the composition root does.
type deferredFanout struct {
	mu     sync.RWMutex
	target ports.NotificationFanout
}

func (p *deferredFanout) Bind(target ports.NotificationFanout) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.target = target
}

func (p *deferredFanout) Publish(ctx context.Context, conferenceID domain.ConferenceID, participantIDs []domain.ParticipantID, objectKey string, value, previousValue any) error {
	p.mu.RLock()
	target := p.target
	p.mu.RUnlock()
	if target == nil {
		return nil
	}
	return target.Publish(ctx, conferenceID, participantIDs, objectKey, value, previousValue)
}

type gatewayFixture struct {
	auth   services.AuthService
	rooms  ports.RoomRepository
	scenes ports.SceneRepository
	ws     *WebSocketServer
	srv    *httptest.Server
}

// newGatewayFixture wires the full service stack over memory repositories and
// serves the gateway through an httptest server. wrapScenes, when non-nil,
// lets a test interpose on the scene controller.
func newGatewayFixture(t *testing.T, wrapScenes func(sceneController) sceneController) *gatewayFixture {
	t.Helper()

	log := zaptest.NewLogger(t).Sugar()
	roomRepo := memory.NewMemoryRoomRepository()
	sceneRepo := memory.NewMemorySceneRepository()

	registry := services.NewProviderRegistry()
	metrics := services.NewMetricsService()
	permissions := services.NewPermissionService(services.DefaultPermissionOptions(), log)

	proxy := &deferredFanout{}
	syncService := services.NewSyncService(
		registry,
		memory.NewMemorySubscriptionRepository(),
		memory.NewMemoryObjectStore(),
		proxy,
		metrics,
		log,
	)
	roomService := services.NewRoomService(roomRepo, permissions, syncService, log)
	sceneService := services.NewSceneService(
		roomRepo,
		sceneRepo,
		syncService,
		permissions,
		services.DefaultSceneProviders(),
		services.DefaultSceneOptions(),
		services.NewMemoryLocker(),
		metrics,
		log,
	)
	sceneService.Attach(roomService)
	t.Cleanup(sceneService.Close)
	permissions.SetSceneLayerSource(sceneService)
	require.NoError(t, registry.Register(sceneService, roomService))

	auth := services.NewAuthService("gateway-test-secret", time.Hour)

	var scenes sceneController = sceneService
	if wrapScenes != nil {
		scenes = wrapScenes(sceneService)
	}
	ws := NewWebSocketServer(auth, syncService, scenes, roomService, permissions, log)
	proxy.Bind(ws)

	srv := httptest.NewServer(http.HandlerFunc(ws.HandleWebSocket))
	t.Cleanup(srv.Close)

	return &gatewayFixture{auth: auth, rooms: roomRepo, scenes: sceneRepo, ws: ws, srv: srv}
}

func (f *gatewayFixture) dial(t *testing.T, participant domain.Participant, moderator bool) *websocket.Conn {
	t.Helper()

	token, err := f.auth.GenerateToken(participant, moderator)
	require.NoError(t, err)

	url := "ws" + strings.TrimPrefix(f.srv.URL, "http") + "/?token=" + token
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	return conn
}

func (f *gatewayFixture) conferenceOpen(conferenceID domain.ConferenceID) bool {
	for _, id := range f.ws.OpenConferences() {
		if id == conferenceID {
			return true
		}
	}
	return false
}

func TestConferenceTornDownAfterLastDisconnect(t *testing.T) {
	f := newGatewayFixture(t, nil)
	ctx := context.Background()

	alice := domain.Participant{ConferenceID: "conf-1", ParticipantID: "alice"}
	bob := domain.Participant{ConferenceID: "conf-1", ParticipantID: "bob"}

	aliceConn := f.dial(t, alice, true)
	defer aliceConn.Close()
	bobConn := f.dial(t, bob, false)
	defer bobConn.Close()

	require.Eventually(t, func() bool {
		if !f.ws.IsConnected(alice) || !f.ws.IsConnected(bob) {
			return false
		}
		_, err := f.rooms.State(ctx, "conf-1")
		return err == nil
	}, time.Second, 10*time.Millisecond, "both participants admitted")

	// The first disconnect must not tear the conference down while another
	// participant is still connected.
	aliceConn.Close()
	require.Eventually(t, func() bool {
		return !f.ws.IsConnected(alice)
	}, time.Second, 10*time.Millisecond)

	assert.True(t, f.conferenceOpen("conf-1"))
	_, err := f.rooms.State(ctx, "conf-1")
	assert.NoError(t, err, "room state must survive a non-final disconnect")

	// The last disconnect removes rooms, scenes and synchronized state.
	bobConn.Close()
	require.Eventually(t, func() bool {
		if f.conferenceOpen("conf-1") {
			return false
		}
		if _, err := f.rooms.State(ctx, "conf-1"); !errors.Is(err, domain.ErrConferenceNotFound) {
			return false
		}
		_, err := f.scenes.Get(ctx, "conf-1")
		return errors.Is(err, domain.ErrConferenceNotFound)
	}, time.Second, 10*time.Millisecond, "conference state torn down after last disconnect")
}

func TestHandlerGoroutinesExitAfterDisconnect(t *testing.T) {
	f := newGatewayFixture(t, nil)

	alice := domain.Participant{ConferenceID: "conf-1", ParticipantID: "alice"}
	baseline := runtime.NumGoroutine()

	conn := f.dial(t, alice, true)
	require.Eventually(t, func() bool {
		return f.ws.IsConnected(alice)
	}, time.Second, 10*time.Millisecond)

	// Fill the inbound pipeline, then drop the connection without ever
	// reading a response. Neither the handler nor its reader may outlive
	// the connection.
	payload := []byte(`{"object_id":"rooms"}`)
	for i := 0; i < 50; i++ {
		if err := conn.WriteJSON(ClientMessage{Type: "subscribe", Payload: payload}); err != nil {
			break
		}
	}
	conn.Close()

	require.Eventually(t, func() bool {
		return !f.ws.IsConnected(alice) && runtime.NumGoroutine() <= baseline+2
	}, 2*time.Second, 20*time.Millisecond, "gateway goroutines must exit after disconnect")
}

// fakeSharedPresence simulates a presence registry shared with other
// instances. idleChecks signals every cross-instance emptiness check.
type fakeSharedPresence struct {
	remaining  []domain.ParticipantID
	err        error
	idleChecks chan struct{}
}

func (f *fakeSharedPresence) RegisterParticipant(ctx context.Context, participant domain.Participant) error {
	return nil
}

func (f *fakeSharedPresence) UnregisterParticipant(ctx context.Context, participant domain.Participant) error {
	return nil
}

func (f *fakeSharedPresence) ConnectedParticipants(ctx context.Context, conferenceID domain.ConferenceID) ([]domain.ParticipantID, error) {
	select {
	case f.idleChecks <- struct{}{}:
	default:
	}
	return f.remaining, f.err
}

func TestConferenceSurvivesRemoteParticipants(t *testing.T) {
	tests := []struct {
		name     string
		presence *fakeSharedPresence
	}{
		{
			name:     "participants on another instance",
			presence: &fakeSharedPresence{remaining: []domain.ParticipantID{"carol"}},
		},
		{
			name:     "presence check failure keeps conference open",
			presence: &fakeSharedPresence{err: errors.New("redis gone")},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newGatewayFixture(t, nil)
			tt.presence.idleChecks = make(chan struct{}, 1)
			f.ws.SetPresenceRegistry(tt.presence)

			alice := domain.Participant{ConferenceID: "conf-1", ParticipantID: "alice"}
			conn := f.dial(t, alice, true)
			defer conn.Close()

			require.Eventually(t, func() bool {
				return f.conferenceOpen("conf-1")
			}, time.Second, 10*time.Millisecond)

			conn.Close()
			select {
			case <-tt.presence.idleChecks:
			case <-time.After(time.Second):
				t.Fatal("disconnect never reached the shared presence check")
			}

			assert.True(t, f.conferenceOpen("conf-1"),
				"local emptiness alone must not close a conference with remote participants")
			_, err := f.rooms.State(context.Background(), "conf-1")
			assert.NoError(t, err)
		})
	}
}

// flakySceneInit fails a fixed number of InitializeConference calls before
// delegating to the real scene controller.
type flakySceneInit struct {
	sceneController
	mu       sync.Mutex
	failures int
}

func (s *flakySceneInit) InitializeConference(ctx context.Context, conferenceID domain.ConferenceID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.failures > 0 {
		s.failures--
		return errors.New("scene store unavailable")
	}
	return s.sceneController.InitializeConference(ctx, conferenceID)
}

func TestConferenceReopensAfterSceneInitFailure(t *testing.T) {
	f := newGatewayFixture(t, func(scenes sceneController) sceneController {
		return &flakySceneInit{sceneController: scenes, failures: 1}
	})
	ctx := context.Background()

	alice := domain.Participant{ConferenceID: "conf-1", ParticipantID: "alice"}
	conn := f.dial(t, alice, true)
	defer conn.Close()

	// Admission fails and reports the error to the client.
	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	var frame map[string]any
	require.NoError(t, conn.ReadJSON(&frame))
	assert.Equal(t, "error", frame["type"])

	// The half-opened conference must not be left registered, or no later
	// join could ever initialize its scenes.
	assert.False(t, f.conferenceOpen("conf-1"))
	_, err := f.rooms.State(ctx, "conf-1")
	assert.ErrorIs(t, err, domain.ErrConferenceNotFound, "room state rolled back with the failed open")

	retry := f.dial(t, alice, true)
	defer retry.Close()

	require.Eventually(t, func() bool {
		if !f.conferenceOpen("conf-1") {
			return false
		}
		if _, err := f.scenes.Get(ctx, "conf-1"); err != nil {
			return false
		}
		state, err := f.rooms.State(ctx, "conf-1")
		return err == nil && len(state.Rooms) == 1 && state.Rooms[0].IsDefault
	}, time.Second, 10*time.Millisecond, "conference opens cleanly once scene initialization recovers")
}
