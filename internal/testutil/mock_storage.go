//go:build !production

package testutil

import (
	"context"
	"time"

	"github.com/stretchr/testify/mock"

	"github.com/palemoky/battle-tanks/internal/server/storage"
)

// MockSessionStore 持久化会话存储 mock
type MockSessionStore struct {
	mock.Mock
}

func (m *MockSessionStore) FindByCode(ctx context.Context, code string) (*storage.Session, error) {
	args := m.Called(ctx, code)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*storage.Session), args.Error(1)
}

func (m *MockSessionStore) FindByID(ctx context.Context, id string) (*storage.Session, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*storage.Session), args.Error(1)
}

func (m *MockSessionStore) CreateSession(ctx context.Context, name string, maxPlayers int, isPublic bool) (*storage.Session, error) {
	args := m.Called(ctx, name, maxPlayers, isPublic)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*storage.Session), args.Error(1)
}

func (m *MockSessionStore) DeleteSession(ctx context.Context, id string) error {
	return m.Called(ctx, id).Error(0)
}

func (m *MockSessionStore) UpdateRoomStatus(ctx context.Context, roomID, status string, startedAt, endedAt *time.Time) error {
	return m.Called(ctx, roomID, status, startedAt, endedAt).Error(0)
}

func (m *MockSessionStore) AddPoints(ctx context.Context, roomID, playerID string, points int) error {
	return m.Called(ctx, roomID, playerID, points).Error(0)
}

func (m *MockSessionStore) RegisterKill(ctx context.Context, roomID, shooterID, targetID string, points int) error {
	return m.Called(ctx, roomID, shooterID, targetID, points).Error(0)
}

func (m *MockSessionStore) PersistFinalScores(ctx context.Context, roomID string, scores []storage.FinalScore) error {
	return m.Called(ctx, roomID, scores).Error(0)
}

func (m *MockSessionStore) AppendPowerUpEvent(ctx context.Context, topic string, payload []byte) error {
	return m.Called(ctx, topic, payload).Error(0)
}

func (m *MockSessionStore) GetPlayerStats(ctx context.Context, playerID string) (*storage.PlayerStats, error) {
	args := m.Called(ctx, playerID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*storage.PlayerStats), args.Error(1)
}

func (m *MockSessionStore) GetLeaderboard(ctx context.Context, limit int) ([]*storage.LeaderboardEntry, error) {
	args := m.Called(ctx, limit)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*storage.LeaderboardEntry), args.Error(1)
}

var _ storage.SessionStore = (*MockSessionStore)(nil)
