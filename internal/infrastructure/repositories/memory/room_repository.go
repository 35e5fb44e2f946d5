package memory

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"confsync/internal/core/domain"
	"confsync/internal/core/ports"
)

type MemoryRoomRepository struct {
	mu    sync.RWMutex
	rooms map[domain.ConferenceID]map[domain.RoomID]domain.Room
}

func NewMemoryRoomRepository() ports.RoomRepository {
	return &MemoryRoomRepository{
		rooms: make(map[domain.ConferenceID]map[domain.RoomID]domain.Room),
	}
}

func (r *MemoryRoomRepository) State(ctx context.Context, conferenceID domain.ConferenceID) (domain.RoomState, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	conference, exists := r.rooms[conferenceID]
	if !exists {
		return domain.RoomState{}, domain.ErrConferenceNotFound
	}

	state := domain.RoomState{Rooms: make([]domain.Room, 0, len(conference))}
	for _, room := range conference {
		state.Rooms = append(state.Rooms, room)
		if room.IsDefault {
			state.DefaultRoomID = room.ID
		}
	}
	sort.Slice(state.Rooms, func(i, j int) bool { return state.Rooms[i].ID < state.Rooms[j].ID })
	return state, nil
}

func (r *MemoryRoomRepository) CreateRooms(ctx context.Context, conferenceID domain.ConferenceID, rooms []domain.Room) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	conference, exists := r.rooms[conferenceID]
	if !exists {
		conference = make(map[domain.RoomID]domain.Room)
		r.rooms[conferenceID] = conference
	}

	for _, room := range rooms {
		if _, exists := conference[room.ID]; exists {
			return fmt.Errorf("room already exists: %s", room.ID)
		}
	}
	for _, room := range rooms {
		conference[room.ID] = room
	}
	return nil
}

func (r *MemoryRoomRepository) RemoveRooms(ctx context.Context, conferenceID domain.ConferenceID, roomIDs []domain.RoomID) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	conference, exists := r.rooms[conferenceID]
	if !exists {
		return domain.ErrConferenceNotFound
	}
	for _, roomID := range roomIDs {
		if _, exists := conference[roomID]; !exists {
			return domain.ErrRoomNotFound
		}
	}
	for _, roomID := range roomIDs {
		delete(conference, roomID)
	}
	return nil
}

func (r *MemoryRoomRepository) RemoveConference(ctx context.Context, conferenceID domain.ConferenceID) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	delete(r.rooms, conferenceID)
	return nil
}
