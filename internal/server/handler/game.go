package handler

import (
	"math"

	"github.com/palemoky/battle-tanks/internal/game/room"
	"github.com/palemoky/battle-tanks/internal/protocol"
	"github.com/palemoky/battle-tanks/internal/protocol/codec"
	"github.com/palemoky/battle-tanks/internal/types"
)

// handleMove 处理坦克移动；非有限数值直接忽略
func (h *Handler) handleMove(client types.ClientInterface, msg *protocol.Message) {
	loc, ok := h.rooms.Lookup(client.GetID())
	if !ok {
		client.SendMessage(codec.NewErrorMessage(protocol.ErrCodeNotInRoom))
		return
	}

	payload, err := codec.ParsePayload[protocol.MovePayload](msg)
	if err != nil {
		client.SendMessage(codec.NewErrorMessage(protocol.ErrCodeInvalidMsg))
		return
	}
	if !finite(payload.X, payload.Y, payload.Rotation) {
		return
	}

	ts := payload.Timestamp
	if ts <= 0 {
		ts = h.now().UnixMilli()
	}

	h.rooms.UpdatePosition(loc.RoomCode, loc.PlayerID, payload.X, payload.Y, payload.Rotation)
	h.server.Publish(loc.RoomCode, protocol.MsgPlayerMoved, protocol.PlayerMovedPayload{
		PlayerID:  loc.PlayerID,
		X:         payload.X,
		Y:         payload.Y,
		Rotation:  payload.Rotation,
		Timestamp: ts,
	})

	h.consumePowerUp(loc, payload.X, payload.Y)
}

// consumePowerUp 拾取移动终点附近的道具：加一条命并补充一个新道具；对局结束后不再拾取
func (h *Handler) consumePowerUp(loc room.Location, x, y float64) {
	snap, ok := h.rooms.ByCode(loc.RoomCode)
	if !ok || snap.Status == room.StatusFinished {
		return
	}
	if h.scores.Lives(loc.RoomID, loc.PlayerID) <= 0 {
		return
	}
	pu, ok := h.powerUps.TryConsume(loc.RoomCode, loc.PlayerID, x, y)
	if !ok {
		return
	}

	lives := h.scores.AddLife(loc.RoomID, loc.PlayerID, 1)
	h.server.Publish(loc.RoomCode, protocol.MsgPowerUpCollected, protocol.PowerUpCollectedPayload{
		PowerUpID: pu.ID,
		UserID:    loc.PlayerID,
	})
	h.server.Publish(loc.RoomCode, protocol.MsgPlayerLifeLost, protocol.PlayerLifeLostPayload{
		PlayerID:   loc.PlayerID,
		LivesAfter: lives,
		Eliminated: false,
	})

	next := h.powerUps.SpawnRandom(loc.RoomCode, loc.RoomID)
	h.server.Publish(loc.RoomCode, protocol.MsgPowerUpSpawned, protocol.PowerUpSpawnedPayload{PowerUp: powerUpInfo(next)})
}

// handleSpawnBullet 处理开火；被节流或对局已结束时静默忽略
func (h *Handler) handleSpawnBullet(client types.ClientInterface, msg *protocol.Message) {
	loc, ok := h.rooms.Lookup(client.GetID())
	if !ok {
		client.SendMessage(codec.NewErrorMessage(protocol.ErrCodeNotInRoom))
		return
	}

	payload, err := codec.ParsePayload[protocol.SpawnBulletPayload](msg)
	if err != nil {
		client.SendMessage(codec.NewErrorMessage(protocol.ErrCodeInvalidMsg))
		return
	}
	if !finite(payload.X, payload.Y, payload.Direction, payload.Speed) {
		return
	}

	snap, ok := h.rooms.ByCode(loc.RoomCode)
	if !ok || snap.Status == room.StatusFinished {
		return
	}
	if h.scores.Lives(snap.RoomID, loc.PlayerID) <= 0 {
		return
	}

	b, ok := h.bullets.TrySpawn(loc.RoomCode, snap.RoomID, loc.PlayerID,
		payload.X, payload.Y, normalizeAngle(payload.Direction), payload.Speed)
	if !ok {
		return
	}
	h.server.Publish(loc.RoomCode, protocol.MsgBulletSpawned, protocol.BulletSpawnedPayload{Bullet: bulletInfo(b)})
}

// normalizeAngle 把弧度归一化到 [0, 2π)
func normalizeAngle(a float64) float64 {
	a = math.Mod(a, 2*math.Pi)
	if a < 0 {
		a += 2 * math.Pi
	}
	if a >= 2*math.Pi {
		a = 0
	}
	return a
}

func finite(vs ...float64) bool {
	for _, v := range vs {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return false
		}
	}
	return true
}
