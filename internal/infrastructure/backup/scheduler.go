package backup

import (
	"context"
	"errors"
	"fmt"
	"time"

	"confsync/internal/core/domain"
	"confsync/internal/core/ports"
	"confsync/pkg/backup"

	"go.uber.org/zap"
)

// ConferenceSource lists the conferences currently hosted on this instance.
type ConferenceSource interface {
	OpenConferences() []domain.ConferenceID
}

// Scheduler takes periodic snapshots of live conference state so that room
// layouts and scene assignments survive a full storage loss.
type Scheduler struct {
	snapshots     *backup.BackupService
	conferences   ConferenceSource
	roomRepo      ports.RoomRepository
	sceneRepo     ports.SceneRepository
	interval      time.Duration
	retentionDays int
	logger        *zap.SugaredLogger
	stopChan      chan struct{}
}

// Config contains scheduler configuration
type Config struct {
	Interval      time.Duration
	RetentionDays int
}

// NewScheduler creates a new snapshot scheduler
func NewScheduler(
	snapshots *backup.BackupService,
	conferences ConferenceSource,
	roomRepo ports.RoomRepository,
	sceneRepo ports.SceneRepository,
	cfg Config,
	logger *zap.SugaredLogger,
) *Scheduler {
	return &Scheduler{
		snapshots:     snapshots,
		conferences:   conferences,
		roomRepo:      roomRepo,
		sceneRepo:     sceneRepo,
		interval:      cfg.Interval,
		retentionDays: cfg.RetentionDays,
		logger:        logger,
		stopChan:      make(chan struct{}),
	}
}

// Start starts the snapshot scheduler
func (s *Scheduler) Start(ctx context.Context) {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			s.runSnapshot(ctx)
		case <-s.stopChan:
			return
		case <-ctx.Done():
			return
		}
	}
}

// Stop stops the snapshot scheduler
func (s *Scheduler) Stop() {
	close(s.stopChan)
}

// runSnapshot performs one snapshot
func (s *Scheduler) runSnapshot(ctx context.Context) {
	data, err := s.collectData(ctx)
	if err != nil {
		s.logger.Errorw("failed to collect snapshot data", "error", err)
		return
	}

	if len(data.Rooms) == 0 {
		return
	}

	name, err := s.snapshots.CreateBackup(ctx, data)
	if err != nil {
		s.logger.Errorw("failed to create snapshot", "error", err)
		return
	}

	s.logger.Infow("snapshot created",
		"snapshot_name", name,
		"conference_count", len(data.Rooms),
	)

	if err := s.cleanupOldSnapshots(ctx); err != nil {
		s.logger.Warnw("failed to cleanup old snapshots", "error", err)
	}
}

// collectData collects room and scene state for every open conference
func (s *Scheduler) collectData(ctx context.Context) (*backup.BackupData, error) {
	data := &backup.BackupData{
		Rooms:    make(map[string]interface{}),
		Scenes:   make(map[string]interface{}),
		Metadata: make(map[string]interface{}),
	}

	for _, conferenceID := range s.conferences.OpenConferences() {
		state, err := s.roomRepo.State(ctx, conferenceID)
		if err != nil {
			// Conferences can close between listing and reading.
			if errors.Is(err, domain.ErrConferenceNotFound) {
				continue
			}
			return nil, fmt.Errorf("failed to read room state: %w", err)
		}
		data.Rooms[string(conferenceID)] = state

		mapping, err := s.sceneRepo.Get(ctx, conferenceID)
		if err != nil {
			s.logger.Warnw("failed to read scene mapping",
				"conference_id", conferenceID,
				"error", err,
			)
			continue
		}
		data.Scenes[string(conferenceID)] = mapping
	}

	data.Metadata["conference_count"] = len(data.Rooms)
	data.Metadata["snapshot_type"] = "scheduled"

	return data, nil
}

// cleanupOldSnapshots removes snapshots older than the retention period
func (s *Scheduler) cleanupOldSnapshots(ctx context.Context) error {
	names, err := s.snapshots.ListBackups(ctx)
	if err != nil {
		return fmt.Errorf("failed to list snapshots: %w", err)
	}

	cutoffTime := time.Now().AddDate(0, 0, -s.retentionDays)

	for _, name := range names {
		// Name format: backup-20060102-150405.json
		if len(name) < 22 {
			continue
		}

		timestamp, err := time.Parse("20060102-150405", name[7:22])
		if err != nil {
			s.logger.Warnw("failed to parse snapshot timestamp", "snapshot_name", name, "error", err)
			continue
		}

		if timestamp.Before(cutoffTime) {
			if err := s.snapshots.DeleteBackup(ctx, name); err != nil {
				s.logger.Warnw("failed to delete old snapshot", "snapshot_name", name, "error", err)
				continue
			}
			s.logger.Infow("deleted old snapshot", "snapshot_name", name, "age", time.Since(timestamp))
		}
	}

	return nil
}
