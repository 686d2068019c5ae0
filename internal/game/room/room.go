package room

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/palemoky/battle-tanks/internal/game/tilemap"
	"github.com/palemoky/battle-tanks/internal/server/storage"
)

// PlayerState 房间内玩家状态
// Lives 和 Score 由计分板投影填充，注册表本身不维护
type PlayerState struct {
	PlayerID string
	Username string
	X        float64
	Y        float64
	Rotation float64 // 弧度
	Lives    int
	Score    int
	Alive    bool
}

// Snapshot 房间快照
type Snapshot struct {
	RoomID     string
	Code       string
	Name       string
	MaxPlayers int
	IsPublic   bool
	Status     Status
	Players    []PlayerState // 按玩家 ID 排序
}

// Location 连接所在的房间与玩家
type Location struct {
	RoomID   string
	RoomCode string
	PlayerID string
	Username string
}

// SessionFinder 按房间码查询持久化会话；不存在时返回 (nil, nil)
type SessionFinder interface {
	FindByCode(ctx context.Context, code string) (*storage.Session, error)
}

// SpawnSource 出生点来源
type SpawnSource interface {
	SpawnPoints(roomID string) []tilemap.Point
}

// room 缓存的房间
type room struct {
	id         string
	code       string
	name       string
	maxPlayers int
	isPublic   bool
	status     Status
	players    map[string]*PlayerState
	nextSpawn  int
	lastActive time.Time

	mu sync.RWMutex
}

// Registry 房间注册表：缓存持久化会话的元数据和房间内的玩家
type Registry struct {
	sessions SessionFinder
	spawns   SpawnSource
	now      func() time.Time

	byID     map[string]*room
	codeToID map[string]string
	conns    map[string]Location // connectionID -> 位置
	mu       sync.RWMutex
}

// NewRegistry 创建房间注册表
func NewRegistry(sessions SessionFinder, spawns SpawnSource) *Registry {
	return &Registry{
		sessions: sessions,
		spawns:   spawns,
		now:      time.Now,
		byID:     make(map[string]*room),
		codeToID: make(map[string]string),
		conns:    make(map[string]Location),
	}
}

func (r *room) snapshot() Snapshot {
	r.mu.RLock()
	defer r.mu.RUnlock()

	return Snapshot{
		RoomID:     r.id,
		Code:       r.code,
		Name:       r.name,
		MaxPlayers: r.maxPlayers,
		IsPublic:   r.isPublic,
		Status:     r.status,
		Players:    r.playersLocked(),
	}
}

// playersLocked 需持有 r.mu
func (r *room) playersLocked() []PlayerState {
	players := make([]PlayerState, 0, len(r.players))
	for _, p := range r.players {
		players = append(players, *p)
	}
	sort.Slice(players, func(i, j int) bool { return players[i].PlayerID < players[j].PlayerID })
	return players
}
