package repo

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/spaceboi21/ai-professor-backend-sub006/domains/simulation"
)

// MemoryRepository is an in-memory Repository used by tests and local
// tooling. Semantics mirror the Postgres implementation, including the
// conditional end transition.
type MemoryRepository struct {
	mu       sync.Mutex
	sessions map[uuid.UUID]simulation.Session
}

// NewMemoryRepository builds an empty in-memory repository.
func NewMemoryRepository() *MemoryRepository {
	return &MemoryRepository{sessions: make(map[uuid.UUID]simulation.Session)}
}

func (m *MemoryRepository) Create(ctx context.Context, session simulation.Session) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if session.PagesVisited == nil {
		session.PagesVisited = []string{}
	}
	m.sessions[session.ID] = session
	return nil
}

func (m *MemoryRepository) GetByID(ctx context.Context, id uuid.UUID) (simulation.Session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	session, ok := m.sessions[id]
	if !ok {
		return simulation.Session{}, ErrNotFound
	}
	return session, nil
}

func (m *MemoryRepository) FindLatestActiveByUser(ctx context.Context, userID uuid.UUID) (simulation.Session, error) {
	active, err := m.FindActiveByUser(ctx, userID)
	if err != nil {
		return simulation.Session{}, err
	}
	if len(active) == 0 {
		return simulation.Session{}, ErrNotFound
	}
	return active[0], nil
}

func (m *MemoryRepository) FindActiveByUser(ctx context.Context, userID uuid.UUID) ([]simulation.Session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var active []simulation.Session
	for _, session := range m.sessions {
		if session.OriginalUserID == userID && session.Status == simulation.StatusActive {
			active = append(active, session)
		}
	}
	sort.Slice(active, func(i, j int) bool {
		return active[i].StartedAt.After(active[j].StartedAt)
	})
	return active, nil
}

func (m *MemoryRepository) EndIfActive(ctx context.Context, id uuid.UUID, endedAt time.Time, durationSeconds int64) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	session, ok := m.sessions[id]
	if !ok || session.Status != simulation.StatusActive {
		return false, nil
	}

	session.Status = simulation.StatusEnded
	session.EndedAt = &endedAt
	session.DurationSeconds = &durationSeconds
	m.sessions[id] = session
	return true, nil
}

func (m *MemoryRepository) AddPageVisit(ctx context.Context, id uuid.UUID, path string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	session, ok := m.sessions[id]
	if !ok || session.Status != simulation.StatusActive {
		return nil
	}

	for _, visited := range session.PagesVisited {
		if visited == path {
			return nil
		}
	}
	session.PagesVisited = append(session.PagesVisited, path)
	m.sessions[id] = session
	return nil
}

func (m *MemoryRepository) IncrementCounter(ctx context.Context, id uuid.UUID, counter simulation.Counter) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	session, ok := m.sessions[id]
	if !ok || session.Status != simulation.StatusActive {
		return nil
	}

	switch counter {
	case simulation.CounterModulesViewed:
		session.ModulesViewed++
	case simulation.CounterQuizzesViewed:
		session.QuizzesViewed++
	case simulation.CounterAIChatsOpened:
		session.AIChatsOpened++
	}
	m.sessions[id] = session
	return nil
}
