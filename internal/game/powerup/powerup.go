// Package powerup 房间道具存储
package powerup

import (
	"context"
	"encoding/json"
	"log"
	"math"
	"math/rand/v2"
	"sort"
	"sync"

	"github.com/google/uuid"

	"github.com/palemoky/battle-tanks/internal/game/tilemap"
)

// Type 道具类型
type Type string

const (
	ExtraLife Type = "extra_life"
)

// 事件日志主题
const (
	TopicSpawned  = "powerups/spawned"
	TopicConsumed = "powerups/consumed"
)

const maxSpawnAttempts = 256

// PowerUp 道具
type PowerUp struct {
	ID     string  `json:"id"`
	RoomID string  `json:"roomId"`
	Type   Type    `json:"type"`
	X      float64 `json:"x"`
	Y      float64 `json:"y"`
}

// TileSource 道具选点所需的地图能力
type TileSource interface {
	Size(roomID string) (w, h int)
	TileSize() int
	IsSolid(roomID string, tx, ty int) bool
	SpawnPoints(roomID string) []tilemap.Point
}

// EventLog 道具事件的持久化日志
type EventLog interface {
	AppendPowerUpEvent(ctx context.Context, topic string, payload []byte) error
}

// consumedEvent 拾取事件内容
type consumedEvent struct {
	RoomCode  string `json:"roomCode"`
	UserID    string `json:"userId"`
	PowerUpID string `json:"powerUpId"`
}

// Store 道具存储
type Store struct {
	tiles  TileSource
	events EventLog
	intN   func(n int) int

	mu     sync.Mutex
	byRoom map[string]map[string]PowerUp
}

// NewStore 创建道具存储；events 可为 nil
func NewStore(tiles TileSource, events EventLog) *Store {
	return &Store{
		tiles:  tiles,
		events: events,
		intN:   rand.IntN,
		byRoom: make(map[string]map[string]PowerUp),
	}
}

// SpawnRandom 在随机的非实心地块中心生成一个道具
func (s *Store) SpawnRandom(roomCode, roomID string) PowerUp {
	x, y := s.pickLocation(roomID)
	p := PowerUp{
		ID:     uuid.NewString(),
		RoomID: roomID,
		Type:   ExtraLife,
		X:      x,
		Y:      y,
	}

	s.mu.Lock()
	room, ok := s.byRoom[roomCode]
	if !ok {
		room = make(map[string]PowerUp)
		s.byRoom[roomCode] = room
	}
	room[p.ID] = p
	s.mu.Unlock()

	s.record(TopicSpawned, p)
	return p
}

// Active 房间当前可拾取的道具，按 ID 排序
func (s *Store) Active(roomCode string) []PowerUp {
	s.mu.Lock()
	defer s.mu.Unlock()
	return sortedPowerUps(s.byRoom[roomCode])
}

// TryConsume 拾取坐标附近（两个轴向均不超过半个地块）的第一个道具
func (s *Store) TryConsume(roomCode, playerID string, x, y float64) (PowerUp, bool) {
	half := float64(s.tiles.TileSize()) / 2

	s.mu.Lock()
	var found PowerUp
	ok := false
	for _, p := range sortedPowerUps(s.byRoom[roomCode]) {
		if math.Abs(p.X-x) <= half && math.Abs(p.Y-y) <= half {
			delete(s.byRoom[roomCode], p.ID)
			found, ok = p, true
			break
		}
	}
	s.mu.Unlock()

	if ok {
		s.record(TopicConsumed, consumedEvent{RoomCode: roomCode, UserID: playerID, PowerUpID: found.ID})
	}
	return found, ok
}

// ResetRoom 清空房间道具
func (s *Store) ResetRoom(roomCode string) {
	s.mu.Lock()
	delete(s.byRoom, roomCode)
	s.mu.Unlock()
}

func (s *Store) pickLocation(roomID string) (float64, float64) {
	w, h := s.tiles.Size(roomID)
	ts := float64(s.tiles.TileSize())

	for i := 0; i < maxSpawnAttempts; i++ {
		tx, ty := s.intN(w), s.intN(h)
		if !s.tiles.IsSolid(roomID, tx, ty) {
			return (float64(tx) + 0.5) * ts, (float64(ty) + 0.5) * ts
		}
	}

	// 地图几乎被墙填满时退回第一个出生点
	spawns := s.tiles.SpawnPoints(roomID)
	if len(spawns) > 0 {
		return spawns[0].X, spawns[0].Y
	}
	return ts / 2, ts / 2
}

func (s *Store) record(topic string, v any) {
	if s.events == nil {
		return
	}
	data, err := json.Marshal(v)
	if err != nil {
		return
	}
	go func() {
		if err := s.events.AppendPowerUpEvent(context.Background(), topic, data); err != nil {
			log.Printf("⚠️ 记录道具事件失败 %s: %v", topic, err)
		}
	}()
}

func sortedPowerUps(room map[string]PowerUp) []PowerUp {
	out := make([]PowerUp, 0, len(room))
	for _, p := range room {
		out = append(out, p)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}
