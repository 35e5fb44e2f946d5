package backup

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"confsync/internal/core/domain"
	"confsync/internal/core/ports"
	"confsync/pkg/backup"

	"go.uber.org/zap"
)

// RestoreService loads a snapshot back into the repositories.
type RestoreService struct {
	snapshots *backup.BackupService
	roomRepo  ports.RoomRepository
	sceneRepo ports.SceneRepository
	logger    *zap.SugaredLogger
}

// NewRestoreService creates a new restore service
func NewRestoreService(
	snapshots *backup.BackupService,
	roomRepo ports.RoomRepository,
	sceneRepo ports.SceneRepository,
	logger *zap.SugaredLogger,
) *RestoreService {
	return &RestoreService{
		snapshots: snapshots,
		roomRepo:  roomRepo,
		sceneRepo: sceneRepo,
		logger:    logger,
	}
}

// RestoreOptions contains restore options
type RestoreOptions struct {
	OverwriteExisting bool
	RestoreRooms      bool
	RestoreScenes     bool
	PointInTime       *time.Time
}

// DefaultRestoreOptions returns default restore options
func DefaultRestoreOptions() RestoreOptions {
	return RestoreOptions{
		OverwriteExisting: false,
		RestoreRooms:      true,
		RestoreScenes:     true,
	}
}

// RestoreFromSnapshot restores conference state from a specific snapshot
func (rs *RestoreService) RestoreFromSnapshot(ctx context.Context, name string, options RestoreOptions) error {
	rs.logger.Infow("starting restore", "snapshot_name", name, "options", options)

	data, err := rs.snapshots.RestoreBackup(ctx, name)
	if err != nil {
		return fmt.Errorf("failed to load snapshot: %w", err)
	}

	if data.Version == "" {
		return fmt.Errorf("invalid snapshot: missing version")
	}

	if err := rs.restoreRooms(ctx, data.Rooms, options); err != nil {
		return fmt.Errorf("failed to restore rooms: %w", err)
	}

	if err := rs.restoreScenes(ctx, data.Scenes, options); err != nil {
		return fmt.Errorf("failed to restore scenes: %w", err)
	}

	rs.logger.Infow("restore completed", "snapshot_name", name)
	return nil
}

// restoreRooms restores room state from a snapshot
func (rs *RestoreService) restoreRooms(ctx context.Context, rooms map[string]interface{}, options RestoreOptions) error {
	if !options.RestoreRooms {
		return nil
	}

	for conferenceIDStr, roomData := range rooms {
		conferenceID := domain.ConferenceID(conferenceIDStr)

		_, err := rs.roomRepo.State(ctx, conferenceID)
		exists := err == nil
		if err != nil && !errors.Is(err, domain.ErrConferenceNotFound) {
			return fmt.Errorf("failed to check conference: %w", err)
		}

		if exists {
			if !options.OverwriteExisting {
				rs.logger.Debugw("skipping existing conference", "conference_id", conferenceID)
				continue
			}
			if err := rs.roomRepo.RemoveConference(ctx, conferenceID); err != nil {
				return fmt.Errorf("failed to clear conference: %w", err)
			}
		}

		stateJSON, err := json.Marshal(roomData)
		if err != nil {
			return fmt.Errorf("failed to marshal room state: %w", err)
		}

		var state domain.RoomState
		if err := json.Unmarshal(stateJSON, &state); err != nil {
			return fmt.Errorf("failed to unmarshal room state: %w", err)
		}

		if err := rs.roomRepo.CreateRooms(ctx, conferenceID, state.Rooms); err != nil {
			return fmt.Errorf("failed to create rooms: %w", err)
		}

		rs.logger.Debugw("restored rooms", "conference_id", conferenceID, "room_count", len(state.Rooms))
	}

	return nil
}

// restoreScenes restores scene mappings from a snapshot
func (rs *RestoreService) restoreScenes(ctx context.Context, scenes map[string]interface{}, options RestoreOptions) error {
	if !options.RestoreScenes {
		return nil
	}

	for conferenceIDStr, sceneData := range scenes {
		conferenceID := domain.ConferenceID(conferenceIDStr)

		mappingJSON, err := json.Marshal(sceneData)
		if err != nil {
			return fmt.Errorf("failed to marshal scene mapping: %w", err)
		}

		var mapping domain.SceneMapping
		if err := json.Unmarshal(mappingJSON, &mapping); err != nil {
			return fmt.Errorf("failed to unmarshal scene mapping: %w", err)
		}

		if err := rs.sceneRepo.Set(ctx, conferenceID, mapping); err != nil {
			return fmt.Errorf("failed to set scene mapping: %w", err)
		}

		rs.logger.Debugw("restored scenes", "conference_id", conferenceID, "room_count", len(mapping))
	}

	return nil
}

// FindSnapshotByTime finds the newest snapshot at or before the given time.
func (rs *RestoreService) FindSnapshotByTime(ctx context.Context, targetTime time.Time) (string, error) {
	names, err := rs.snapshots.ListBackups(ctx)
	if err != nil {
		return "", fmt.Errorf("failed to list snapshots: %w", err)
	}

	var closestName string
	var closestTime time.Time
	var found bool

	for _, name := range names {
		if len(name) < 22 {
			continue
		}

		timestamp, err := time.Parse("20060102-150405", name[7:22])
		if err != nil {
			continue
		}

		if timestamp.After(targetTime) {
			continue
		}
		if !found || timestamp.After(closestTime) {
			closestName = name
			closestTime = timestamp
			found = true
		}
	}

	if !found {
		return "", fmt.Errorf("no snapshot found before or at target time: %v", targetTime)
	}

	return closestName, nil
}
