// Package bullet 子弹存储：按房间节流开火，并为模拟循环提供快照式遍历。
package bullet

import (
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
)

// Bullet 子弹状态
type Bullet struct {
	ID        string
	RoomCode  string
	RoomID    string
	ShooterID string
	X         float64
	Y         float64
	Direction float64 // 弧度
	Speed     float64 // 像素/秒
	SpawnedAt int64   // 毫秒时间戳
	Active    bool
}

// Entry EnumerateAll 返回的条目
type Entry struct {
	RoomCode string
	BulletID string
	Bullet   Bullet
}

// Limits 开火节流参数
type Limits struct {
	MinInterval time.Duration // 同一射手两次成功开火的最小间隔
	MaxActive   int           // 同一射手同时存在的子弹上限
	MinSpeed    float64
	MaxSpeed    float64
}

// DefaultLimits 默认节流参数
func DefaultLimits() Limits {
	return Limits{
		MinInterval: 500 * time.Millisecond,
		MaxActive:   2,
		MinSpeed:    10,
		MaxSpeed:    1200,
	}
}

type slot struct {
	seq    uint64
	bullet Bullet
}

type roomBullets struct {
	mu       sync.Mutex
	bullets  map[string]*slot
	lastShot map[string]time.Time
	removed  bool // 已被 DespawnRoom 摘除
}

// Store 子弹存储
type Store struct {
	limits Limits
	now    func() time.Time

	mu    sync.RWMutex
	rooms map[string]*roomBullets
	seq   atomic.Uint64 // 全局生成序号
}

// NewStore 创建子弹存储；零值字段使用默认参数
func NewStore(limits Limits) *Store {
	def := DefaultLimits()
	if limits.MinInterval <= 0 {
		limits.MinInterval = def.MinInterval
	}
	if limits.MaxActive <= 0 {
		limits.MaxActive = def.MaxActive
	}
	if limits.MinSpeed <= 0 {
		limits.MinSpeed = def.MinSpeed
	}
	if limits.MaxSpeed < limits.MinSpeed {
		limits.MaxSpeed = def.MaxSpeed
	}
	return &Store{
		limits: limits,
		now:    time.Now,
		rooms:  make(map[string]*roomBullets),
	}
}

// TrySpawn 尝试生成子弹
// 间隔不足或活跃子弹已达上限时返回 false，且不修改任何状态
func (s *Store) TrySpawn(roomCode, roomID, shooterID string, x, y, direction, speed float64) (Bullet, bool) {
	for {
		r := s.room(roomCode, true)
		r.mu.Lock()
		if r.removed {
			// 拿到的房间刚被摘除，重新取
			r.mu.Unlock()
			continue
		}
		b, ok := s.spawnLocked(r, roomCode, roomID, shooterID, x, y, direction, speed)
		r.mu.Unlock()
		return b, ok
	}
}

func (s *Store) spawnLocked(r *roomBullets, roomCode, roomID, shooterID string, x, y, direction, speed float64) (Bullet, bool) {
	now := s.now()
	if last, ok := r.lastShot[shooterID]; ok && now.Sub(last) < s.limits.MinInterval {
		return Bullet{}, false
	}
	if countActive(r, shooterID) >= s.limits.MaxActive {
		return Bullet{}, false
	}

	b := Bullet{
		ID:        uuid.NewString(),
		RoomCode:  roomCode,
		RoomID:    roomID,
		ShooterID: shooterID,
		X:         x,
		Y:         y,
		Direction: direction,
		Speed:     clamp(speed, s.limits.MinSpeed, s.limits.MaxSpeed),
		SpawnedAt: now.UnixMilli(),
		Active:    true,
	}
	r.bullets[b.ID] = &slot{seq: s.seq.Add(1), bullet: b}
	r.lastShot[shooterID] = now
	return b, true
}

// EnumerateAll 返回所有子弹的快照，按房间码再按生成顺序排列
func (s *Store) EnumerateAll() []Entry {
	s.mu.RLock()
	codes := make([]string, 0, len(s.rooms))
	rooms := make([]*roomBullets, 0, len(s.rooms))
	for code := range s.rooms {
		codes = append(codes, code)
	}
	sort.Strings(codes)
	for _, code := range codes {
		rooms = append(rooms, s.rooms[code])
	}
	s.mu.RUnlock()

	var entries []Entry
	for i, r := range rooms {
		for _, sl := range sortedSlots(r) {
			entries = append(entries, Entry{RoomCode: codes[i], BulletID: sl.bullet.ID, Bullet: sl.bullet})
		}
	}
	return entries
}

// Room 返回单个房间的子弹快照
func (s *Store) Room(roomCode string) []Bullet {
	r := s.room(roomCode, false)
	if r == nil {
		return nil
	}
	slots := sortedSlots(r)
	out := make([]Bullet, len(slots))
	for i, sl := range slots {
		out[i] = sl.bullet
	}
	return out
}

// Update 覆盖子弹状态；子弹已不存在时不做任何操作
func (s *Store) Update(roomCode, bulletID string, b Bullet) {
	r := s.room(roomCode, false)
	if r == nil {
		return
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if sl, ok := r.bullets[bulletID]; ok {
		b.ID = bulletID
		b.RoomCode = roomCode
		sl.bullet = b
	}
}

// Despawn 移除子弹，重复调用无副作用
func (s *Store) Despawn(roomCode, bulletID string) {
	r := s.room(roomCode, false)
	if r == nil {
		return
	}
	r.mu.Lock()
	delete(r.bullets, bulletID)
	r.mu.Unlock()
}

// DespawnRoom 移除房间内所有子弹和开火记录，返回被移除的子弹 ID
func (s *Store) DespawnRoom(roomCode string) []string {
	s.mu.Lock()
	r, ok := s.rooms[roomCode]
	delete(s.rooms, roomCode)
	s.mu.Unlock()
	if !ok {
		return nil
	}

	r.mu.Lock()
	r.removed = true
	r.mu.Unlock()

	ids := make([]string, 0)
	for _, sl := range sortedSlots(r) {
		ids = append(ids, sl.bullet.ID)
	}
	return ids
}

// ActiveCount 射手当前活跃的子弹数
func (s *Store) ActiveCount(roomCode, shooterID string) int {
	r := s.room(roomCode, false)
	if r == nil {
		return 0
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	return countActive(r, shooterID)
}

func (s *Store) room(roomCode string, create bool) *roomBullets {
	s.mu.RLock()
	r, ok := s.rooms[roomCode]
	s.mu.RUnlock()
	if ok || !create {
		return r
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if r, ok := s.rooms[roomCode]; ok {
		return r
	}
	r = &roomBullets{
		bullets:  make(map[string]*slot),
		lastShot: make(map[string]time.Time),
	}
	s.rooms[roomCode] = r
	return r
}

func sortedSlots(r *roomBullets) []slot {
	r.mu.Lock()
	slots := make([]slot, 0, len(r.bullets))
	for _, sl := range r.bullets {
		slots = append(slots, *sl)
	}
	r.mu.Unlock()

	sort.Slice(slots, func(i, j int) bool { return slots[i].seq < slots[j].seq })
	return slots
}

func countActive(r *roomBullets, shooterID string) int {
	n := 0
	for _, sl := range r.bullets {
		if sl.bullet.Active && sl.bullet.ShooterID == shooterID {
			n++
		}
	}
	return n
}

func clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
