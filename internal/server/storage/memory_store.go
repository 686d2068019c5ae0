package storage

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
)

// MemoryStore 进程内会话存储，用于测试和 storage.driver=memory
type MemoryStore struct {
	mu       sync.RWMutex
	sessions map[string]*Session // id -> session
	codes    map[string]string   // code -> id
	points   map[string]map[string]int
	kills    map[string]map[string]int
	deaths   map[string]map[string]int
	results  map[string][]FinalScore
	stats    map[string]*PlayerStats
	events   []PowerUpEvent
}

// PowerUpEvent 道具事件日志条目
type PowerUpEvent struct {
	Topic   string
	Payload []byte
	At      int64
}

// NewMemoryStore 创建内存存储
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		sessions: make(map[string]*Session),
		codes:    make(map[string]string),
		points:   make(map[string]map[string]int),
		kills:    make(map[string]map[string]int),
		deaths:   make(map[string]map[string]int),
		results:  make(map[string][]FinalScore),
		stats:    make(map[string]*PlayerStats),
	}
}

// PutSession 直接写入会话（房间码由调用方指定）
func (ms *MemoryStore) PutSession(session Session) *Session {
	ms.mu.Lock()
	defer ms.mu.Unlock()

	if session.ID == "" {
		session.ID = uuid.NewString()
	}
	if session.Status == "" {
		session.Status = StatusWaiting
	}
	if session.CreatedAt == 0 {
		session.CreatedAt = time.Now().UnixMilli()
	}
	s := session
	ms.sessions[s.ID] = &s
	ms.codes[s.Code] = s.ID
	out := s
	return &out
}

// FindByCode 按房间码查找会话
func (ms *MemoryStore) FindByCode(_ context.Context, code string) (*Session, error) {
	ms.mu.RLock()
	defer ms.mu.RUnlock()

	id, ok := ms.codes[code]
	if !ok {
		return nil, nil
	}
	return ms.copySession(id), nil
}

// FindByID 按 ID 查找会话
func (ms *MemoryStore) FindByID(_ context.Context, id string) (*Session, error) {
	ms.mu.RLock()
	defer ms.mu.RUnlock()
	return ms.copySession(id), nil
}

func (ms *MemoryStore) copySession(id string) *Session {
	s, ok := ms.sessions[id]
	if !ok {
		return nil
	}
	out := *s
	return &out
}

// CreateSession 创建会话并分配唯一房间码
func (ms *MemoryStore) CreateSession(_ context.Context, name string, maxPlayers int, isPublic bool) (*Session, error) {
	ms.mu.Lock()
	defer ms.mu.Unlock()

	code := generateRoomCode()
	for _, exists := ms.codes[code]; exists; _, exists = ms.codes[code] {
		code = generateRoomCode()
	}

	s := &Session{
		ID:         uuid.NewString(),
		Code:       code,
		Name:       name,
		MaxPlayers: maxPlayers,
		IsPublic:   isPublic,
		Status:     StatusWaiting,
		CreatedAt:  time.Now().UnixMilli(),
	}
	ms.sessions[s.ID] = s
	ms.codes[code] = s.ID

	out := *s
	return &out, nil
}

// DeleteSession 删除会话
func (ms *MemoryStore) DeleteSession(_ context.Context, id string) error {
	ms.mu.Lock()
	defer ms.mu.Unlock()

	if s, ok := ms.sessions[id]; ok {
		delete(ms.codes, s.Code)
	}
	delete(ms.sessions, id)
	delete(ms.points, id)
	delete(ms.kills, id)
	delete(ms.deaths, id)
	delete(ms.results, id)
	return nil
}

// UpdateRoomStatus 更新会话状态
func (ms *MemoryStore) UpdateRoomStatus(_ context.Context, roomID, status string, startedAt, endedAt *time.Time) error {
	ms.mu.Lock()
	defer ms.mu.Unlock()

	s, ok := ms.sessions[roomID]
	if !ok {
		return fmt.Errorf("更新会话 %s 状态: %w", roomID, ErrSessionNotFound)
	}
	s.Status = status
	if startedAt != nil {
		s.StartedAt = unixOrZero(startedAt)
	}
	if endedAt != nil {
		s.EndedAt = unixOrZero(endedAt)
	}
	return nil
}

// AddPoints 累加玩家在本局的得分
func (ms *MemoryStore) AddPoints(_ context.Context, roomID, playerID string, points int) error {
	ms.mu.Lock()
	defer ms.mu.Unlock()
	incr(ms.points, roomID, playerID, points)
	return nil
}

// RegisterKill 记录一次击杀并为射手加分
func (ms *MemoryStore) RegisterKill(_ context.Context, roomID, shooterID, targetID string, points int) error {
	ms.mu.Lock()
	defer ms.mu.Unlock()
	incr(ms.points, roomID, shooterID, points)
	incr(ms.kills, roomID, shooterID, 1)
	incr(ms.deaths, roomID, targetID, 1)
	return nil
}

// RoomPoints 读取本局的累计得分
func (ms *MemoryStore) RoomPoints(_ context.Context, roomID string) (map[string]int, error) {
	ms.mu.RLock()
	defer ms.mu.RUnlock()
	return copyCounts(ms.points[roomID]), nil
}

// RoomKills 读取本局的击杀数
func (ms *MemoryStore) RoomKills(_ context.Context, roomID string) (map[string]int, error) {
	ms.mu.RLock()
	defer ms.mu.RUnlock()
	return copyCounts(ms.kills[roomID]), nil
}

// PersistFinalScores 保存最终成绩并更新玩家统计
func (ms *MemoryStore) PersistFinalScores(_ context.Context, roomID string, scores []FinalScore) error {
	ms.mu.Lock()
	defer ms.mu.Unlock()

	ms.results[roomID] = append([]FinalScore(nil), scores...)
	now := time.Now().Unix()
	for _, s := range scores {
		stats, ok := ms.stats[s.PlayerID]
		if !ok {
			stats = &PlayerStats{PlayerID: s.PlayerID}
			ms.stats[s.PlayerID] = stats
		}
		stats.TotalGames++
		stats.Kills += s.Kills
		stats.Deaths += s.Deaths
		stats.TotalPoints += s.Points
		stats.LastPlayedAt = now
		if s.IsWinner {
			stats.Wins++
		}
	}
	return nil
}

// FinalScores 读取已保存的最终成绩
func (ms *MemoryStore) FinalScores(_ context.Context, roomID string) ([]FinalScore, error) {
	ms.mu.RLock()
	defer ms.mu.RUnlock()
	scores, ok := ms.results[roomID]
	if !ok {
		return nil, nil
	}
	return append([]FinalScore(nil), scores...), nil
}

// AppendPowerUpEvent 追加一条道具事件
func (ms *MemoryStore) AppendPowerUpEvent(_ context.Context, topic string, payload []byte) error {
	ms.mu.Lock()
	defer ms.mu.Unlock()

	ms.events = append(ms.events, PowerUpEvent{
		Topic:   topic,
		Payload: append([]byte(nil), payload...),
		At:      time.Now().UnixMilli(),
	})
	if len(ms.events) > powerUpEventsCap {
		ms.events = ms.events[len(ms.events)-powerUpEventsCap:]
	}
	return nil
}

// PowerUpEvents 读取道具事件日志
func (ms *MemoryStore) PowerUpEvents() []PowerUpEvent {
	ms.mu.RLock()
	defer ms.mu.RUnlock()
	return append([]PowerUpEvent(nil), ms.events...)
}

// GetPlayerStats 获取玩家统计
func (ms *MemoryStore) GetPlayerStats(_ context.Context, playerID string) (*PlayerStats, error) {
	ms.mu.RLock()
	defer ms.mu.RUnlock()
	stats, ok := ms.stats[playerID]
	if !ok {
		return nil, nil
	}
	out := *stats
	return &out, nil
}

// GetLeaderboard 获取总得分排行榜（从高到低，同分按玩家 ID）
func (ms *MemoryStore) GetLeaderboard(_ context.Context, limit int) ([]*LeaderboardEntry, error) {
	ms.mu.RLock()
	all := make([]*PlayerStats, 0, len(ms.stats))
	for _, s := range ms.stats {
		cp := *s
		all = append(all, &cp)
	}
	ms.mu.RUnlock()

	sort.Slice(all, func(i, j int) bool {
		if all[i].TotalPoints != all[j].TotalPoints {
			return all[i].TotalPoints > all[j].TotalPoints
		}
		return all[i].PlayerID < all[j].PlayerID
	})
	if limit < len(all) {
		all = all[:max(limit, 0)]
	}

	entries := make([]*LeaderboardEntry, len(all))
	for i, s := range all {
		entries[i] = newLeaderboardEntry(i+1, s)
	}
	return entries, nil
}

func incr(m map[string]map[string]int, roomID, playerID string, delta int) {
	room, ok := m[roomID]
	if !ok {
		room = make(map[string]int)
		m[roomID] = room
	}
	room[playerID] += delta
}

func copyCounts(m map[string]int) map[string]int {
	out := make(map[string]int, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}
