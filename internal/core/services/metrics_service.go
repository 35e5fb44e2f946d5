package services

import (
	"sync"
	"time"

	"confsync/internal/core/domain"
)

// MetricsService aggregates in-process counters about the distribution
// engine. The prometheus collector in infrastructure/monitoring exports a
// superset of these; this service backs health and stats endpoints without a
// scrape round-trip.
type MetricsService struct {
	mu sync.RWMutex

	updatesByKind      map[string]int64
	skippedByKind      map[string]int64
	notificationsSent  map[domain.ConferenceID]int64
	updatesByConf      map[domain.ConferenceID]int64
	sceneChangesByConf map[domain.ConferenceID]int64
	lastUpdate         map[domain.ConferenceID]time.Time
}

type ConferenceStats struct {
	ConferenceID  domain.ConferenceID
	Updates       int64
	Notifications int64
	SceneChanges  int64
	LastUpdate    time.Time
}

func NewMetricsService() *MetricsService {
	return &MetricsService{
		updatesByKind:      make(map[string]int64),
		skippedByKind:      make(map[string]int64),
		notificationsSent:  make(map[domain.ConferenceID]int64),
		updatesByConf:      make(map[domain.ConferenceID]int64),
		sceneChangesByConf: make(map[domain.ConferenceID]int64),
		lastUpdate:         make(map[domain.ConferenceID]time.Time),
	}
}

func (m *MetricsService) RecordUpdate(conferenceID domain.ConferenceID, kind string, recipients int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.updatesByKind[kind]++
	m.updatesByConf[conferenceID]++
	m.notificationsSent[conferenceID] += int64(recipients)
	m.lastUpdate[conferenceID] = time.Now()
}

// RecordUpdateSkipped counts updates short-circuited because nobody was
// subscribed.
func (m *MetricsService) RecordUpdateSkipped(kind string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.skippedByKind[kind]++
}

func (m *MetricsService) RecordSceneChange(conferenceID domain.ConferenceID) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sceneChangesByConf[conferenceID]++
}

func (m *MetricsService) GetConferenceStats(conferenceID domain.ConferenceID) ConferenceStats {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return ConferenceStats{
		ConferenceID:  conferenceID,
		Updates:       m.updatesByConf[conferenceID],
		Notifications: m.notificationsSent[conferenceID],
		SceneChanges:  m.sceneChangesByConf[conferenceID],
		LastUpdate:    m.lastUpdate[conferenceID],
	}
}

func (m *MetricsService) UpdatesByKind() map[string]int64 {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make(map[string]int64, len(m.updatesByKind))
	for kind, count := range m.updatesByKind {
		out[kind] = count
	}
	return out
}

func (m *MetricsService) SkippedByKind() map[string]int64 {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make(map[string]int64, len(m.skippedByKind))
	for kind, count := range m.skippedByKind {
		out[kind] = count
	}
	return out
}

// RemoveConference drops all per-conference counters on teardown.
func (m *MetricsService) RemoveConference(conferenceID domain.ConferenceID) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.notificationsSent, conferenceID)
	delete(m.updatesByConf, conferenceID)
	delete(m.sceneChangesByConf, conferenceID)
	delete(m.lastUpdate, conferenceID)
}
