package memory

import (
	"context"
	"errors"
	"testing"

	"confsync/internal/core/domain"
)

func TestRoomRepositoryState(t *testing.T) {
	repo := NewMemoryRoomRepository()
	ctx := context.Background()

	if _, err := repo.State(ctx, "conf-1"); !errors.Is(err, domain.ErrConferenceNotFound) {
		t.Fatalf("expected ErrConferenceNotFound, got %v", err)
	}

	rooms := []domain.Room{
		{ID: "z-room", DisplayName: "Z"},
		{ID: "a-main", DisplayName: "Main", IsDefault: true},
		{ID: "m-room", DisplayName: "M"},
	}
	if err := repo.CreateRooms(ctx, "conf-1", rooms); err != nil {
		t.Fatalf("create rooms: %v", err)
	}

	state, err := repo.State(ctx, "conf-1")
	if err != nil {
		t.Fatalf("state: %v", err)
	}
	if state.DefaultRoomID != "a-main" {
		t.Fatalf("default room id = %s, want a-main", state.DefaultRoomID)
	}
	// Rooms come back ordered by id for stable snapshots.
	want := []domain.RoomID{"a-main", "m-room", "z-room"}
	for i, room := range state.Rooms {
		if room.ID != want[i] {
			t.Fatalf("room order = %v, want %v", state.Rooms, want)
		}
	}
}

func TestRoomRepositoryCreateRejectsDuplicates(t *testing.T) {
	repo := NewMemoryRoomRepository()
	ctx := context.Background()

	if err := repo.CreateRooms(ctx, "conf-1", []domain.Room{{ID: "main"}}); err != nil {
		t.Fatalf("create: %v", err)
	}
	err := repo.CreateRooms(ctx, "conf-1", []domain.Room{{ID: "other"}, {ID: "main"}})
	if err == nil {
		t.Fatal("expected duplicate id to be rejected")
	}

	// The failed batch must not have been partially applied.
	state, err := repo.State(ctx, "conf-1")
	if err != nil {
		t.Fatalf("state: %v", err)
	}
	if len(state.Rooms) != 1 {
		t.Fatalf("expected the original room only, got %v", state.Rooms)
	}
}

func TestRoomRepositoryRemoveRooms(t *testing.T) {
	repo := NewMemoryRoomRepository()
	ctx := context.Background()

	if err := repo.RemoveRooms(ctx, "conf-1", []domain.RoomID{"main"}); !errors.Is(err, domain.ErrConferenceNotFound) {
		t.Fatalf("expected ErrConferenceNotFound, got %v", err)
	}

	if err := repo.CreateRooms(ctx, "conf-1", []domain.Room{{ID: "main", IsDefault: true}, {ID: "b1"}}); err != nil {
		t.Fatalf("create: %v", err)
	}

	if err := repo.RemoveRooms(ctx, "conf-1", []domain.RoomID{"b1", "ghost"}); !errors.Is(err, domain.ErrRoomNotFound) {
		t.Fatalf("expected ErrRoomNotFound, got %v", err)
	}
	state, _ := repo.State(ctx, "conf-1")
	if len(state.Rooms) != 2 {
		t.Fatal("failed removal batch was partially applied")
	}

	if err := repo.RemoveRooms(ctx, "conf-1", []domain.RoomID{"b1"}); err != nil {
		t.Fatalf("remove: %v", err)
	}
	state, _ = repo.State(ctx, "conf-1")
	if len(state.Rooms) != 1 || state.Rooms[0].ID != "main" {
		t.Fatalf("unexpected rooms after removal: %v", state.Rooms)
	}
}

func TestRoomRepositoryRemoveConference(t *testing.T) {
	repo := NewMemoryRoomRepository()
	ctx := context.Background()

	if err := repo.CreateRooms(ctx, "conf-1", []domain.Room{{ID: "main"}}); err != nil {
		t.Fatalf("create: %v", err)
	}
	if err := repo.RemoveConference(ctx, "conf-1"); err != nil {
		t.Fatalf("remove conference: %v", err)
	}
	if _, err := repo.State(ctx, "conf-1"); !errors.Is(err, domain.ErrConferenceNotFound) {
		t.Fatalf("expected conference gone, got %v", err)
	}
}
