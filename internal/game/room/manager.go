package room

import (
	"context"
	"fmt"
	"log"

	"github.com/palemoky/battle-tanks/internal/apperrors"
	"github.com/palemoky/battle-tanks/internal/game/tilemap"
)

// UpsertRoom 写入或刷新房间元数据；状态只会前进
func (rg *Registry) UpsertRoom(roomID, code, name string, maxPlayers int, isPublic bool, status Status) {
	rg.mu.Lock()
	r, exists := rg.byID[roomID]
	if !exists {
		r = &room{
			id:         roomID,
			code:       code,
			status:     StatusWaiting,
			players:    make(map[string]*PlayerState),
			lastActive: rg.now(),
		}
		rg.byID[roomID] = r
	}
	rg.codeToID[code] = roomID
	rg.mu.Unlock()

	r.mu.Lock()
	r.name = name
	r.maxPlayers = maxPlayers
	r.isPublic = isPublic
	if r.status.CanAdvanceTo(status) {
		r.status = status
	}
	r.mu.Unlock()
}

// Join 玩家加入房间
// 首次引用的房间从持久化存储加载；失败时不修改任何状态
func (rg *Registry) Join(ctx context.Context, roomCode, playerID, username, connectionID string) (PlayerState, error) {
	rg.mu.RLock()
	_, indexed := rg.conns[connectionID]
	rg.mu.RUnlock()
	if indexed {
		return PlayerState{}, apperrors.ErrAlreadyInRoom
	}

	r, err := rg.ensureRoom(ctx, roomCode)
	if err != nil {
		return PlayerState{}, err
	}

	r.mu.Lock()
	if err := admitLocked(r, playerID); err != nil {
		r.mu.Unlock()
		return PlayerState{}, err
	}

	spawn := rg.nextSpawnLocked(r)
	state := &PlayerState{
		PlayerID: playerID,
		Username: username,
		X:        spawn.X,
		Y:        spawn.Y,
		Alive:    true,
	}
	r.players[playerID] = state
	r.lastActive = rg.now()
	roomID := r.id
	joined := *state
	r.mu.Unlock()

	rg.mu.Lock()
	// 同一玩家换连接重进时，旧连接不再指向该玩家
	for conn, loc := range rg.conns {
		if loc.RoomID == roomID && loc.PlayerID == playerID {
			delete(rg.conns, conn)
		}
	}
	rg.conns[connectionID] = Location{
		RoomID:   roomID,
		RoomCode: roomCode,
		PlayerID: playerID,
		Username: username,
	}
	rg.mu.Unlock()

	log.Printf("👤 玩家 %s (%s) 加入房间 %s", username, playerID, roomCode)
	return joined, nil
}

// CheckJoin 检查玩家能否加入房间，不修改房间状态
func (rg *Registry) CheckJoin(ctx context.Context, roomCode, playerID string) error {
	r, err := rg.ensureRoom(ctx, roomCode)
	if err != nil {
		return err
	}

	r.mu.RLock()
	defer r.mu.RUnlock()
	return admitLocked(r, playerID)
}

// admitLocked 调用方需持有 r.mu；已在房间内的玩家重进不受人数限制
func admitLocked(r *room, playerID string) error {
	if r.status == StatusFinished {
		return apperrors.ErrGameFinished
	}
	if _, rejoin := r.players[playerID]; !rejoin && r.maxPlayers > 0 && len(r.players) >= r.maxPlayers {
		return apperrors.ErrRoomFull
	}
	return nil
}

// ensureRoom 返回缓存的房间，未命中时从持久化存储加载
func (rg *Registry) ensureRoom(ctx context.Context, code string) (*room, error) {
	if r := rg.roomByCode(code); r != nil {
		return r, nil
	}

	session, err := rg.sessions.FindByCode(ctx, code)
	if err != nil {
		return nil, fmt.Errorf("加载房间 %s 失败: %w", code, err)
	}
	if session == nil {
		return nil, apperrors.ErrRoomNotFound
	}

	rg.UpsertRoom(session.ID, session.Code, session.Name, session.MaxPlayers, session.IsPublic, ParseStatus(session.Status))
	if r := rg.roomByCode(code); r != nil {
		return r, nil
	}
	return nil, apperrors.ErrRoomNotFound
}

// nextSpawnLocked 轮流分配出生点，需持有 r.mu
func (rg *Registry) nextSpawnLocked(r *room) tilemap.Point {
	spawns := rg.spawns.SpawnPoints(r.id)
	if len(spawns) == 0 {
		return tilemap.Point{}
	}
	p := spawns[r.nextSpawn%len(spawns)]
	r.nextSpawn++
	return p
}

// LeaveByConnection 按连接移除玩家；连接未加入任何房间时返回 false
func (rg *Registry) LeaveByConnection(connectionID string) (Location, bool) {
	rg.mu.Lock()
	loc, ok := rg.conns[connectionID]
	if ok {
		delete(rg.conns, connectionID)
	}
	r := rg.byID[loc.RoomID]
	rg.mu.Unlock()

	if !ok {
		return Location{}, false
	}

	if r != nil {
		r.mu.Lock()
		delete(r.players, loc.PlayerID)
		r.lastActive = rg.now()
		r.mu.Unlock()
	}

	log.Printf("👋 玩家 %s 离开房间 %s", loc.PlayerID, loc.RoomCode)
	return loc, true
}

// UpdatePosition 更新玩家位置；玩家不存在时不做任何操作
func (rg *Registry) UpdatePosition(roomCode, playerID string, x, y, rotation float64) {
	r := rg.roomByCode(roomCode)
	if r == nil {
		return
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if p, ok := r.players[playerID]; ok {
		p.X, p.Y, p.Rotation = x, y, rotation
	}
}

// Respawn 将玩家传送到下一个出生点
func (rg *Registry) Respawn(roomCode, playerID string) (tilemap.Point, bool) {
	r := rg.roomByCode(roomCode)
	if r == nil {
		return tilemap.Point{}, false
	}
	r.mu.Lock()
	defer r.mu.Unlock()

	p, ok := r.players[playerID]
	if !ok {
		return tilemap.Point{}, false
	}
	spawn := rg.nextSpawnLocked(r)
	p.X, p.Y, p.Rotation = spawn.X, spawn.Y, 0
	return spawn, true
}

// PlayersOf 房间玩家快照，按玩家 ID 排序
func (rg *Registry) PlayersOf(roomID string) []PlayerState {
	rg.mu.RLock()
	r := rg.byID[roomID]
	rg.mu.RUnlock()
	if r == nil {
		return nil
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.playersLocked()
}

// PlayerCount 房间内玩家数
func (rg *Registry) PlayerCount(roomID string) int {
	rg.mu.RLock()
	r := rg.byID[roomID]
	rg.mu.RUnlock()
	if r == nil {
		return 0
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.players)
}

// ByCode 按房间码获取快照
func (rg *Registry) ByCode(code string) (Snapshot, bool) {
	r := rg.roomByCode(code)
	if r == nil {
		return Snapshot{}, false
	}
	return r.snapshot(), true
}

// ByID 按房间 ID 获取快照
func (rg *Registry) ByID(roomID string) (Snapshot, bool) {
	rg.mu.RLock()
	r := rg.byID[roomID]
	rg.mu.RUnlock()
	if r == nil {
		return Snapshot{}, false
	}
	return r.snapshot(), true
}

// Lookup 查询连接所在位置
func (rg *Registry) Lookup(connectionID string) (Location, bool) {
	rg.mu.RLock()
	defer rg.mu.RUnlock()
	loc, ok := rg.conns[connectionID]
	return loc, ok
}

// RoomCount 缓存的房间数
func (rg *Registry) RoomCount() int {
	rg.mu.RLock()
	defer rg.mu.RUnlock()
	return len(rg.byID)
}

func (rg *Registry) roomByCode(code string) *room {
	rg.mu.RLock()
	defer rg.mu.RUnlock()
	id, ok := rg.codeToID[code]
	if !ok {
		return nil
	}
	return rg.byID[id]
}
