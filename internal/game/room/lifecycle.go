package room

import (
	"context"
	"log"
	"time"
)

// Advance 推进房间状态；目标状态不比当前状态靠后时返回 false
func (rg *Registry) Advance(roomID string, next Status) bool {
	rg.mu.RLock()
	r := rg.byID[roomID]
	rg.mu.RUnlock()
	if r == nil {
		return false
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if !r.status.CanAdvanceTo(next) {
		return false
	}
	log.Printf("🎮 房间 %s 状态 %s → %s", r.code, r.status, next)
	r.status = next
	return true
}

// Evict 丢弃缓存的房间及其连接索引
func (rg *Registry) Evict(roomID string) {
	rg.mu.Lock()
	defer rg.mu.Unlock()

	r, ok := rg.byID[roomID]
	if !ok {
		return
	}
	delete(rg.byID, roomID)
	if rg.codeToID[r.code] == roomID {
		delete(rg.codeToID, r.code)
	}
	for conn, loc := range rg.conns {
		if loc.RoomID == roomID {
			delete(rg.conns, conn)
		}
	}
}

// Sweep 驱逐空置超过 idle 的房间，返回被驱逐房间的快照
func (rg *Registry) Sweep(idle time.Duration) []Snapshot {
	now := rg.now()

	rg.mu.RLock()
	var stale []*room
	for _, r := range rg.byID {
		r.mu.RLock()
		if len(r.players) == 0 && now.Sub(r.lastActive) > idle {
			stale = append(stale, r)
		}
		r.mu.RUnlock()
	}
	rg.mu.RUnlock()

	evicted := make([]Snapshot, 0, len(stale))
	for _, r := range stale {
		// 等待期间可能有玩家加入
		r.mu.RLock()
		empty := len(r.players) == 0
		r.mu.RUnlock()
		if !empty {
			continue
		}
		snap := r.snapshot()
		rg.Evict(snap.RoomID)
		evicted = append(evicted, snap)
		log.Printf("🧹 房间 %s 空置超时已清理", snap.Code)
	}
	return evicted
}

// CleanupLoop 定期清理空置房间，直到 ctx 结束
// onEvict 在每个被驱逐的房间上调用，用于清理其他存储中该房间的数据
func (rg *Registry) CleanupLoop(ctx context.Context, interval, idle time.Duration, onEvict func(Snapshot)) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			for _, snap := range rg.Sweep(idle) {
				if onEvict != nil {
					onEvict(snap)
				}
			}
		}
	}
}
