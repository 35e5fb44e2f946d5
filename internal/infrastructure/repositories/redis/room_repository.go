package redis

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"

	"confsync/internal/core/domain"
	"confsync/internal/core/ports"

	"github.com/redis/go-redis/v9"
)

type RedisRoomRepository struct {
	client *redis.Client
	prefix string
}

func NewRedisRoomRepository(client *redis.Client) ports.RoomRepository {
	return &RedisRoomRepository{
		client: client,
		prefix: "confsync:rooms:",
	}
}

func (r *RedisRoomRepository) roomsKey(conferenceID domain.ConferenceID) string {
	return r.prefix + string(conferenceID)
}

func (r *RedisRoomRepository) State(ctx context.Context, conferenceID domain.ConferenceID) (domain.RoomState, error) {
	entries, err := r.client.HGetAll(ctx, r.roomsKey(conferenceID)).Result()
	if err != nil {
		return domain.RoomState{}, fmt.Errorf("failed to get rooms: %w", err)
	}
	if len(entries) == 0 {
		return domain.RoomState{}, domain.ErrConferenceNotFound
	}

	state := domain.RoomState{Rooms: make([]domain.Room, 0, len(entries))}
	for _, data := range entries {
		var room domain.Room
		if err := json.Unmarshal([]byte(data), &room); err != nil {
			return domain.RoomState{}, fmt.Errorf("failed to unmarshal room: %w", err)
		}
		state.Rooms = append(state.Rooms, room)
		if room.IsDefault {
			state.DefaultRoomID = room.ID
		}
	}
	sort.Slice(state.Rooms, func(i, j int) bool { return state.Rooms[i].ID < state.Rooms[j].ID })
	return state, nil
}

func (r *RedisRoomRepository) CreateRooms(ctx context.Context, conferenceID domain.ConferenceID, rooms []domain.Room) error {
	values := make(map[string]any, len(rooms))
	for _, room := range rooms {
		data, err := json.Marshal(room)
		if err != nil {
			return fmt.Errorf("failed to marshal room %s: %w", room.ID, err)
		}
		values[string(room.ID)] = data
	}
	if err := r.client.HSet(ctx, r.roomsKey(conferenceID), values).Err(); err != nil {
		return fmt.Errorf("failed to create rooms: %w", err)
	}
	return nil
}

func (r *RedisRoomRepository) RemoveRooms(ctx context.Context, conferenceID domain.ConferenceID, roomIDs []domain.RoomID) error {
	fields := make([]string, len(roomIDs))
	for i, roomID := range roomIDs {
		fields[i] = string(roomID)
	}
	removed, err := r.client.HDel(ctx, r.roomsKey(conferenceID), fields...).Result()
	if err != nil {
		return fmt.Errorf("failed to remove rooms: %w", err)
	}
	if removed < int64(len(roomIDs)) {
		return domain.ErrRoomNotFound
	}
	return nil
}

func (r *RedisRoomRepository) RemoveConference(ctx context.Context, conferenceID domain.ConferenceID) error {
	if err := r.client.Del(ctx, r.roomsKey(conferenceID)).Err(); err != nil {
		return fmt.Errorf("failed to remove rooms: %w", err)
	}
	return nil
}
