// Package presence records when users were last connected to the push channel.
package presence

import (
	"context"
	"sync"
	"time"
)

// Tracker is told when a user's first connection opens and their last one closes.
type Tracker interface {
	Online(ctx context.Context, userID string) error
	Offline(ctx context.Context, userID string, at time.Time) error
	LastSeen(ctx context.Context, userIDs []string) (map[string]time.Time, error)
}

// Memory keeps presence in process. Used when no Redis is configured.
type Memory struct {
	mu       sync.RWMutex
	online   map[string]bool
	lastSeen map[string]time.Time
}

func NewMemory() *Memory {
	return &Memory{
		online:   make(map[string]bool),
		lastSeen: make(map[string]time.Time),
	}
}

func (m *Memory) Online(_ context.Context, userID string) error {
	m.mu.Lock()
	m.online[userID] = true
	m.mu.Unlock()
	return nil
}

func (m *Memory) Offline(_ context.Context, userID string, at time.Time) error {
	m.mu.Lock()
	delete(m.online, userID)
	m.lastSeen[userID] = at
	m.mu.Unlock()
	return nil
}

func (m *Memory) LastSeen(_ context.Context, userIDs []string) (map[string]time.Time, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	out := make(map[string]time.Time, len(userIDs))
	for _, id := range userIDs {
		if t, ok := m.lastSeen[id]; ok {
			out[id] = t
		}
	}
	return out, nil
}
