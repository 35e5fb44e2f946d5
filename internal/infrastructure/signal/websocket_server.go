package signal

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"sync"
	"time"

	"confsync/internal/core/domain"
	"confsync/internal/core/ports"
	"confsync/internal/core/services"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool {
		return true // Should be configured properly for production
	},
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
}

// sceneController is the slice of the scene service the gateway needs.
type sceneController interface {
	SetScene(ctx context.Context, participant domain.Participant, roomID domain.RoomID, scene domain.Scene) error
	InitializeConference(ctx context.Context, conferenceID domain.ConferenceID) error
	ConferenceClosed(ctx context.Context, conferenceID domain.ConferenceID) error
}

// roomController is the slice of the room service the gateway needs.
type roomController interface {
	OpenConference(ctx context.Context, conferenceID domain.ConferenceID) error
	State(ctx context.Context, conferenceID domain.ConferenceID) (domain.RoomState, error)
	ConferenceClosed(ctx context.Context, conferenceID domain.ConferenceID) error
}

// presenceUpdater receives participant lifecycle changes for permission
// evaluation.
type presenceUpdater interface {
	SetParticipantRoom(participant domain.Participant, roomID domain.RoomID)
	SetModerator(participant domain.Participant, moderator bool)
	ParticipantLeft(participant domain.Participant)
}

// presenceRegistry mirrors connection state into shared storage; optional.
type presenceRegistry interface {
	RegisterParticipant(ctx context.Context, participant domain.Participant) error
	UnregisterParticipant(ctx context.Context, participant domain.Participant) error
	ConnectedParticipants(ctx context.Context, conferenceID domain.ConferenceID) ([]domain.ParticipantID, error)
}

// presenceToucher extends a participant's presence record lifetime; optional.
type presenceToucher interface {
	Touch(participant domain.Participant)
}

// metricsCollector receives gateway-level metrics; optional.
type metricsCollector interface {
	RecordParticipantConnected()
	RecordParticipantDisconnected(connectedFor time.Duration)
	RecordConferenceOpened()
	RecordNotificationsSent(count int)
}

// WebSocketServer is the participant gateway. It accepts authenticated
// connections, feeds inbound commands into the core services and delivers
// synchronized object updates back out. It is the process-local
// NotificationFanout implementation.
type WebSocketServer struct {
	auth        services.AuthService
	sync        ports.SynchronizationService
	scenes      sceneController
	rooms       roomController
	permissions presenceUpdater
	presence    presenceRegistry
	toucher     presenceToucher
	collector   metricsCollector

	connections map[domain.Participant]*websocket.Conn
	writeMu     map[domain.Participant]*sync.Mutex
	openConfs   map[domain.ConferenceID]struct{}
	mu          sync.RWMutex

	pingInterval time.Duration
	pongTimeout  time.Duration
	readTimeout  time.Duration
	writeTimeout time.Duration

	messageRate    rate.Limit
	messageBurst   int
	maxMessageSize int64

	logger *zap.SugaredLogger
}

type ClientMessage struct {
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

type SubscribePayload struct {
	ObjectID string `json:"object_id"`
}

type SetScenePayload struct {
	RoomID domain.RoomID `json:"room_id"`
	Scene  struct {
		Type          domain.SceneType     `json:"type"`
		ParticipantID domain.ParticipantID `json:"participant_id,omitempty"`
	} `json:"scene"`
}

type SwitchRoomPayload struct {
	RoomID domain.RoomID `json:"room_id"`
}

// UpdateEnvelope is the outbound frame carrying one object update.
type UpdateEnvelope struct {
	Type           string                 `json:"type"`
	ConferenceID   domain.ConferenceID    `json:"conferenceId"`
	ParticipantIDs []domain.ParticipantID `json:"participantIds,omitempty"`
	ObjectID       string                 `json:"objectId"`
	Value          any                    `json:"value"`
	PreviousValue  any                    `json:"previousValue,omitempty"`
}

func NewWebSocketServer(
	auth services.AuthService,
	syncService ports.SynchronizationService,
	scenes sceneController,
	rooms roomController,
	permissions presenceUpdater,
	logger *zap.SugaredLogger,
) *WebSocketServer {
	return &WebSocketServer{
		auth:         auth,
		sync:         syncService,
		scenes:       scenes,
		rooms:        rooms,
		permissions:  permissions,
		connections:  make(map[domain.Participant]*websocket.Conn),
		writeMu:      make(map[domain.Participant]*sync.Mutex),
		openConfs:    make(map[domain.ConferenceID]struct{}),
		pingInterval: 30 * time.Second, // Default ping interval
		pongTimeout:  60 * time.Second, // Default pong timeout
		readTimeout:  60 * time.Second, // Default read timeout
		writeTimeout: 10 * time.Second, // Default write timeout
		messageRate:  rate.Limit(100),
		messageBurst: 200,
		logger:       logger,
	}
}

// SetPingInterval sets ping interval for WebSocket connections
func (s *WebSocketServer) SetPingInterval(interval time.Duration) {
	s.pingInterval = interval
}

// SetPongTimeout sets pong timeout for WebSocket connections
func (s *WebSocketServer) SetPongTimeout(timeout time.Duration) {
	s.pongTimeout = timeout
	s.readTimeout = timeout
}

// SetMessageRateLimit configures the per-connection inbound message limiter.
func (s *WebSocketServer) SetMessageRateLimit(perSecond float64, burst int, maxMessageSize int64) {
	s.messageRate = rate.Limit(perSecond)
	s.messageBurst = burst
	s.maxMessageSize = maxMessageSize
}

// SetPresenceRegistry attaches a shared presence registry, used when running
// multiple instances behind redis.
func (s *WebSocketServer) SetPresenceRegistry(registry presenceRegistry) {
	s.presence = registry
}

// SetPresenceRefresher installs the component that keeps presence records
// alive while a connection answers pings.
func (s *WebSocketServer) SetPresenceRefresher(toucher presenceToucher) {
	s.toucher = toucher
}

// SetMetricsCollector attaches a gateway metrics sink.
func (s *WebSocketServer) SetMetricsCollector(collector metricsCollector) {
	s.collector = collector
}

func (s *WebSocketServer) HandleWebSocket(w http.ResponseWriter, r *http.Request) {
	token := r.URL.Query().Get("token")
	if token == "" {
		token = bearerToken(r.Header.Get("Authorization"))
	}

	claims, err := s.auth.ValidateToken(token)
	if err != nil {
		http.Error(w, "unauthorized", http.StatusUnauthorized)
		return
	}
	participant := claims.Participant()

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Errorw("websocket upgrade failed", "error", err)
		return
	}
	defer conn.Close()

	if s.maxMessageSize > 0 {
		conn.SetReadLimit(s.maxMessageSize)
	}

	// Check if participant is reconnecting (already connected)
	s.mu.Lock()
	existingConn, isReconnect := s.connections[participant]
	if isReconnect && existingConn != nil {
		// Close old connection
		existingConn.Close()
		s.logger.Infow("closing old connection for reconnecting participant",
			"conference_id", participant.ConferenceID,
			"participant_id", participant.ParticipantID,
		)
	}
	s.connections[participant] = conn
	s.writeMu[participant] = &sync.Mutex{}
	s.mu.Unlock()

	s.logger.Infow("participant connected",
		"conference_id", participant.ConferenceID,
		"participant_id", participant.ParticipantID,
		"moderator", claims.Moderator,
		"reconnect", isReconnect,
	)

	connectedAt := time.Now()
	if s.collector != nil {
		s.collector.RecordParticipantConnected()
	}

	if err := s.admitParticipant(context.Background(), participant, claims.Moderator); err != nil {
		s.logger.Errorw("failed to admit participant",
			"conference_id", participant.ConferenceID,
			"participant_id", participant.ParticipantID,
			"error", err,
		)
		s.sendError(participant, err.Error())
	}

	// Set read/write deadlines
	conn.SetReadDeadline(time.Now().Add(s.readTimeout))
	conn.SetPongHandler(func(string) error {
		conn.SetReadDeadline(time.Now().Add(s.readTimeout))
		return nil
	})

	// Start ping ticker
	pingTicker := time.NewTicker(s.pingInterval)
	defer pingTicker.Stop()

	limiter := rate.NewLimiter(s.messageRate, s.messageBurst)

	// Channel for message processing. done releases the reader goroutine if
	// the select loop exits first (ping failure) while the reader is blocked
	// handing off a message.
	messageChan := make(chan ClientMessage, 10)
	errorChan := make(chan error, 1)
	done := make(chan struct{})
	defer close(done)

	// Start message reader goroutine
	go func() {
		for {
			var msg ClientMessage
			if err := conn.ReadJSON(&msg); err != nil {
				select {
				case errorChan <- err:
				case <-done:
				}
				return
			}
			conn.SetReadDeadline(time.Now().Add(s.readTimeout))
			select {
			case messageChan <- msg:
			case <-done:
				return
			}
		}
	}()

	// Process messages and ping
	for {
		select {
		case msg := <-messageChan:
			if !limiter.Allow() {
				s.sendError(participant, "message rate limit exceeded")
				continue
			}
			if err := s.handleMessage(context.Background(), participant, msg); err != nil {
				s.logger.Infow("error handling message",
					"participant_id", participant.ParticipantID,
					"type", msg.Type,
					"error", err,
				)
				s.sendError(participant, err.Error())
			}

		case <-pingTicker.C:
			if s.toucher != nil {
				s.toucher.Touch(participant)
			}

			// Send ping
			conn.SetWriteDeadline(time.Now().Add(s.writeTimeout))
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				s.logger.Infow("error sending ping",
					"participant_id", participant.ParticipantID,
					"error", err,
				)
				goto cleanup
			}

		case err := <-errorChan:
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				s.logger.Infow("error reading message",
					"participant_id", participant.ParticipantID,
					"error", err,
				)
			}
			goto cleanup
		}
	}

cleanup:
	// Clean up on disconnect. The reconnect path replaces the connection
	// entry first, so only remove it if it is still ours.
	s.mu.Lock()
	if current, ok := s.connections[participant]; ok && current == conn {
		delete(s.connections, participant)
		delete(s.writeMu, participant)
	}
	s.mu.Unlock()

	if err := s.sync.ParticipantDisconnected(context.Background(), participant); err != nil {
		s.logger.Infow("error removing participant subscriptions",
			"participant_id", participant.ParticipantID,
			"error", err,
		)
	}
	s.permissions.ParticipantLeft(participant)

	if s.presence != nil {
		if err := s.presence.UnregisterParticipant(context.Background(), participant); err != nil {
			s.logger.Warnw("failed to unregister presence",
				"participant_id", participant.ParticipantID,
				"error", err,
			)
		}
	}

	if s.collector != nil {
		s.collector.RecordParticipantDisconnected(time.Since(connectedAt))
	}

	s.closeConferenceIfIdle(context.Background(), participant.ConferenceID)

	s.logger.Infow("participant disconnected",
		"conference_id", participant.ConferenceID,
		"participant_id", participant.ParticipantID,
	)
}

// closeConferenceIfIdle tears down a conference's synchronized state once its
// last participant is gone: subscriptions, stored values, rooms and scenes.
// With a shared presence registry the emptiness check spans all instances.
// A conference opens again from scratch if someone joins later.
func (s *WebSocketServer) closeConferenceIfIdle(ctx context.Context, conferenceID domain.ConferenceID) {
	s.mu.Lock()
	if _, open := s.openConfs[conferenceID]; !open {
		s.mu.Unlock()
		return
	}
	for connected := range s.connections {
		if connected.ConferenceID == conferenceID {
			s.mu.Unlock()
			return
		}
	}
	s.mu.Unlock()

	if s.presence != nil {
		remaining, err := s.presence.ConnectedParticipants(ctx, conferenceID)
		if err != nil {
			// Keep the conference open rather than tear down state under
			// participants connected to another instance.
			s.logger.Warnw("failed to check shared presence, keeping conference open",
				"conference_id", conferenceID,
				"error", err,
			)
			return
		}
		if len(remaining) > 0 {
			return
		}
	}

	s.mu.Lock()
	delete(s.openConfs, conferenceID)
	s.mu.Unlock()

	if err := s.sync.ConferenceClosed(ctx, conferenceID); err != nil {
		s.logger.Errorw("failed to remove synchronized state",
			"conference_id", conferenceID,
			"error", err,
		)
	}
	if err := s.scenes.ConferenceClosed(ctx, conferenceID); err != nil {
		s.logger.Errorw("failed to remove scene state",
			"conference_id", conferenceID,
			"error", err,
		)
	}
	if err := s.rooms.ConferenceClosed(ctx, conferenceID); err != nil {
		s.logger.Errorw("failed to remove room state",
			"conference_id", conferenceID,
			"error", err,
		)
	}

	s.logger.Infow("conference closed", "conference_id", conferenceID)
}

// admitParticipant opens the conference on first join, places the participant
// in the default room and subscribes them to the core objects.
func (s *WebSocketServer) admitParticipant(ctx context.Context, participant domain.Participant, moderator bool) error {
	if err := s.ensureConferenceOpen(ctx, participant.ConferenceID); err != nil {
		return err
	}

	s.permissions.SetModerator(participant, moderator)

	state, err := s.rooms.State(ctx, participant.ConferenceID)
	if err != nil {
		return fmt.Errorf("failed to load room state: %w", err)
	}
	s.permissions.SetParticipantRoom(participant, state.DefaultRoomID)

	if s.presence != nil {
		if err := s.presence.RegisterParticipant(ctx, participant); err != nil {
			s.logger.Warnw("failed to register presence",
				"participant_id", participant.ParticipantID,
				"error", err,
			)
		}
	}

	// Core objects every participant follows. Additional subscriptions go
	// through explicit subscribe messages.
	for _, id := range []domain.SynchronizedObjectID{
		{Kind: domain.KindRooms},
		{Kind: domain.KindScenes},
	} {
		if err := s.sync.SubscribeParticipant(ctx, participant, id); err != nil {
			return fmt.Errorf("failed to subscribe to %s: %w", id.String(), err)
		}
	}

	return nil
}

func (s *WebSocketServer) ensureConferenceOpen(ctx context.Context, conferenceID domain.ConferenceID) error {
	s.mu.Lock()
	_, open := s.openConfs[conferenceID]
	if !open {
		s.openConfs[conferenceID] = struct{}{}
	}
	s.mu.Unlock()

	if open {
		return nil
	}

	if err := s.rooms.OpenConference(ctx, conferenceID); err != nil {
		s.mu.Lock()
		delete(s.openConfs, conferenceID)
		s.mu.Unlock()
		return fmt.Errorf("failed to open conference: %w", err)
	}
	if err := s.scenes.InitializeConference(ctx, conferenceID); err != nil {
		// Roll back the half-opened conference so a later join starts the
		// opening sequence over instead of finding stale room state.
		if rollbackErr := s.rooms.ConferenceClosed(ctx, conferenceID); rollbackErr != nil {
			s.logger.Warnw("failed to roll back room state",
				"conference_id", conferenceID,
				"error", rollbackErr,
			)
		}
		s.mu.Lock()
		delete(s.openConfs, conferenceID)
		s.mu.Unlock()
		return fmt.Errorf("failed to initialize scenes: %w", err)
	}
	if s.collector != nil {
		s.collector.RecordConferenceOpened()
	}

	return nil
}

func (s *WebSocketServer) handleMessage(ctx context.Context, participant domain.Participant, msg ClientMessage) error {
	if msg.Type == "" {
		return fmt.Errorf("message type is required")
	}

	switch msg.Type {
	case "subscribe":
		return s.handleSubscribe(ctx, participant, msg)
	case "unsubscribe":
		return s.handleUnsubscribe(ctx, participant, msg)
	case "set_scene":
		return s.handleSetScene(ctx, participant, msg)
	case "switch_room":
		return s.handleSwitchRoom(ctx, participant, msg)
	default:
		return fmt.Errorf("unknown message type: %s", msg.Type)
	}
}

func (s *WebSocketServer) handleSubscribe(ctx context.Context, participant domain.Participant, msg ClientMessage) error {
	var payload SubscribePayload
	if err := json.Unmarshal(msg.Payload, &payload); err != nil {
		return fmt.Errorf("invalid subscribe payload: %w", err)
	}
	if payload.ObjectID == "" {
		return fmt.Errorf("object_id is required")
	}

	id := domain.ParseSynchronizedObjectID(payload.ObjectID)
	return s.sync.SubscribeParticipant(ctx, participant, id)
}

func (s *WebSocketServer) handleUnsubscribe(ctx context.Context, participant domain.Participant, msg ClientMessage) error {
	var payload SubscribePayload
	if err := json.Unmarshal(msg.Payload, &payload); err != nil {
		return fmt.Errorf("invalid unsubscribe payload: %w", err)
	}
	if payload.ObjectID == "" {
		return fmt.Errorf("object_id is required")
	}

	id := domain.ParseSynchronizedObjectID(payload.ObjectID)
	return s.sync.UnsubscribeParticipant(ctx, participant, id)
}

func (s *WebSocketServer) handleSetScene(ctx context.Context, participant domain.Participant, msg ClientMessage) error {
	var payload SetScenePayload
	if err := json.Unmarshal(msg.Payload, &payload); err != nil {
		return fmt.Errorf("invalid set_scene payload: %w", err)
	}
	if payload.RoomID == "" {
		return fmt.Errorf("room_id is required")
	}
	if payload.Scene.Type == "" {
		return fmt.Errorf("scene.type is required")
	}

	scene := domain.Scene{
		Type:          payload.Scene.Type,
		ParticipantID: payload.Scene.ParticipantID,
	}
	return s.scenes.SetScene(ctx, participant, payload.RoomID, scene)
}

func (s *WebSocketServer) handleSwitchRoom(ctx context.Context, participant domain.Participant, msg ClientMessage) error {
	var payload SwitchRoomPayload
	if err := json.Unmarshal(msg.Payload, &payload); err != nil {
		return fmt.Errorf("invalid switch_room payload: %w", err)
	}
	if payload.RoomID == "" {
		return fmt.Errorf("room_id is required")
	}

	state, err := s.rooms.State(ctx, participant.ConferenceID)
	if err != nil {
		return fmt.Errorf("failed to load room state: %w", err)
	}
	found := false
	for _, room := range state.Rooms {
		if room.ID == payload.RoomID {
			found = true
			break
		}
	}
	if !found {
		return domain.ErrRoomNotFound
	}

	s.permissions.SetParticipantRoom(participant, payload.RoomID)
	return nil
}

// Publish implements the notification fanout for locally connected
// participants. Unreachable participants are skipped; they resync on
// reconnect.
func (s *WebSocketServer) Publish(ctx context.Context, conferenceID domain.ConferenceID, participantIDs []domain.ParticipantID, objectKey string, value, previousValue any) error {
	envelope := UpdateEnvelope{
		Type:           "sync.update",
		ConferenceID:   conferenceID,
		ParticipantIDs: participantIDs,
		ObjectID:       objectKey,
		Value:          value,
		PreviousValue:  previousValue,
	}

	delivered := 0
	for _, participantID := range participantIDs {
		participant := domain.Participant{
			ConferenceID:  conferenceID,
			ParticipantID: participantID,
		}
		if err := s.sendToParticipant(participant, envelope); err != nil {
			s.logger.Debugw("skipping unreachable participant",
				"conference_id", conferenceID,
				"participant_id", participantID,
				"object_id", objectKey,
			)
			continue
		}
		delivered++
	}
	if s.collector != nil && delivered > 0 {
		s.collector.RecordNotificationsSent(delivered)
	}

	return nil
}

func (s *WebSocketServer) sendToParticipant(participant domain.Participant, data interface{}) error {
	s.mu.RLock()
	conn, exists := s.connections[participant]
	writeMu := s.writeMu[participant]
	s.mu.RUnlock()

	if !exists {
		return fmt.Errorf("participant %s not connected", participant.ParticipantID)
	}

	writeMu.Lock()
	defer writeMu.Unlock()
	conn.SetWriteDeadline(time.Now().Add(s.writeTimeout))
	return conn.WriteJSON(data)
}

func (s *WebSocketServer) sendError(participant domain.Participant, message string) {
	errorMsg := map[string]interface{}{
		"type":    "error",
		"message": message,
	}
	if err := s.sendToParticipant(participant, errorMsg); err != nil {
		s.logger.Debugw("failed to send error frame",
			"participant_id", participant.ParticipantID,
		)
	}
}

func (s *WebSocketServer) HealthCheck(w http.ResponseWriter, r *http.Request) {
	s.mu.RLock()
	connectionCount := len(s.connections)
	s.mu.RUnlock()

	response := map[string]interface{}{
		"status":      "healthy",
		"timestamp":   time.Now().Unix(),
		"connections": connectionCount,
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(response)
}

// Additional methods for connection management

func (s *WebSocketServer) ConnectedParticipants(conferenceID domain.ConferenceID) []domain.ParticipantID {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var participants []domain.ParticipantID
	for participant := range s.connections {
		if participant.ConferenceID == conferenceID {
			participants = append(participants, participant.ParticipantID)
		}
	}

	return participants
}

// OpenConferences lists conferences this instance has opened and not yet
// torn down.
func (s *WebSocketServer) OpenConferences() []domain.ConferenceID {
	s.mu.RLock()
	defer s.mu.RUnlock()

	conferences := make([]domain.ConferenceID, 0, len(s.openConfs))
	for conferenceID := range s.openConfs {
		conferences = append(conferences, conferenceID)
	}

	return conferences
}

func (s *WebSocketServer) IsConnected(participant domain.Participant) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()

	_, exists := s.connections[participant]
	return exists
}

func bearerToken(header string) string {
	const prefix = "Bearer "
	if len(header) > len(prefix) && header[:len(prefix)] == prefix {
		return header[len(prefix):]
	}
	return ""
}
