// Package score 房间内的得分与生命计分板
package score

import "sync"

// StartingLives 玩家初始生命数
const StartingLives = 3

// Tally 击杀与死亡统计
type Tally struct {
	Kills  int
	Deaths int
}

type roomLedger struct {
	mu      sync.Mutex
	scores  map[string]int
	lives   map[string]int
	tallies map[string]Tally
}

// Ledger 计分板，每个房间独立加锁
type Ledger struct {
	mu    sync.RWMutex
	rooms map[string]*roomLedger
}

// NewLedger 创建计分板
func NewLedger() *Ledger {
	return &Ledger{rooms: make(map[string]*roomLedger)}
}

// AddScore 增加得分，不存在时从 0 开始，返回新的总分
func (l *Ledger) AddScore(roomID, playerID string, amount int) int {
	r := l.room(roomID, true)
	r.mu.Lock()
	defer r.mu.Unlock()

	r.scores[playerID] += amount
	return r.scores[playerID]
}

// AddLife 调整生命数，不存在时从 StartingLives 开始，结果限制在 [0, StartingLives]
func (l *Ledger) AddLife(roomID, playerID string, delta int) int {
	r := l.room(roomID, true)
	r.mu.Lock()
	defer r.mu.Unlock()

	cur, ok := r.lives[playerID]
	if !ok {
		cur = StartingLives
	}
	cur = min(max(cur+delta, 0), StartingLives)
	r.lives[playerID] = cur
	return cur
}

// RecordKill 记录一次击杀
func (l *Ledger) RecordKill(roomID, shooterID, targetID string) {
	r := l.room(roomID, true)
	r.mu.Lock()
	defer r.mu.Unlock()

	s := r.tallies[shooterID]
	s.Kills++
	r.tallies[shooterID] = s

	t := r.tallies[targetID]
	t.Deaths++
	r.tallies[targetID] = t
}

// Score 单个玩家得分，不存在时为 0
func (l *Ledger) Score(roomID, playerID string) int {
	r := l.room(roomID, false)
	if r == nil {
		return 0
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.scores[playerID]
}

// Lives 单个玩家生命数，不存在时为 StartingLives
func (l *Ledger) Lives(roomID, playerID string) int {
	r := l.room(roomID, false)
	if r == nil {
		return StartingLives
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if v, ok := r.lives[playerID]; ok {
		return v
	}
	return StartingLives
}

// Scores 房间得分快照
func (l *Ledger) Scores(roomID string) map[string]int {
	r := l.room(roomID, false)
	if r == nil {
		return map[string]int{}
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	return copyMap(r.scores)
}

// LivesOf 房间生命快照
func (l *Ledger) LivesOf(roomID string) map[string]int {
	r := l.room(roomID, false)
	if r == nil {
		return map[string]int{}
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	return copyMap(r.lives)
}

// Tallies 房间击杀统计快照
func (l *Ledger) Tallies(roomID string) map[string]Tally {
	r := l.room(roomID, false)
	if r == nil {
		return map[string]Tally{}
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	return copyMap(r.tallies)
}

// ResetRoom 清空房间的全部计分
func (l *Ledger) ResetRoom(roomID string) {
	l.mu.Lock()
	delete(l.rooms, roomID)
	l.mu.Unlock()
}

func (l *Ledger) room(roomID string, create bool) *roomLedger {
	l.mu.RLock()
	r, ok := l.rooms[roomID]
	l.mu.RUnlock()
	if ok || !create {
		return r
	}

	l.mu.Lock()
	defer l.mu.Unlock()
	if r, ok := l.rooms[roomID]; ok {
		return r
	}
	r = &roomLedger{
		scores:  make(map[string]int),
		lives:   make(map[string]int),
		tallies: make(map[string]Tally),
	}
	l.rooms[roomID] = r
	return r
}

func copyMap[V any](m map[string]V) map[string]V {
	out := make(map[string]V, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}
