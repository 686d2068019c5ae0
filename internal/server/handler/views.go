package handler

import (
	"github.com/palemoky/battle-tanks/internal/game/bullet"
	"github.com/palemoky/battle-tanks/internal/game/powerup"
	"github.com/palemoky/battle-tanks/internal/game/room"
	"github.com/palemoky/battle-tanks/internal/game/tilemap"
	"github.com/palemoky/battle-tanks/internal/protocol"
)

// playerInfo 生命和得分以计分板为准
func (h *Handler) playerInfo(roomID string, p room.PlayerState) protocol.PlayerInfo {
	lives := h.scores.Lives(roomID, p.PlayerID)
	return protocol.PlayerInfo{
		PlayerID: p.PlayerID,
		Username: p.Username,
		X:        p.X,
		Y:        p.Y,
		Rotation: p.Rotation,
		Lives:    lives,
		Score:    h.scores.Score(roomID, p.PlayerID),
		Alive:    p.Alive && lives > 0,
	}
}

func (h *Handler) roomSnapshot(snap room.Snapshot) protocol.RoomSnapshotPayload {
	players := make([]protocol.PlayerInfo, len(snap.Players))
	for i, p := range snap.Players {
		players[i] = h.playerInfo(snap.RoomID, p)
	}

	live := h.bullets.Room(snap.Code)
	bullets := make([]protocol.BulletInfo, len(live))
	for i, b := range live {
		bullets[i] = bulletInfo(b)
	}

	return protocol.RoomSnapshotPayload{
		RoomID:     snap.RoomID,
		RoomCode:   snap.Code,
		Name:       snap.Name,
		Status:     string(snap.Status),
		MaxPlayers: snap.MaxPlayers,
		Players:    players,
		Bullets:    bullets,
	}
}

func bulletInfo(b bullet.Bullet) protocol.BulletInfo {
	return protocol.BulletInfo{
		BulletID:  b.ID,
		RoomID:    b.RoomID,
		ShooterID: b.ShooterID,
		X:         b.X,
		Y:         b.Y,
		Direction: b.Direction,
		Speed:     b.Speed,
		SpawnedAt: b.SpawnedAt,
		Active:    b.Active,
	}
}

func mapSnapshot(m tilemap.Snapshot) protocol.MapSnapshotPayload {
	tiles := make([]protocol.TileInfo, len(m.Tiles))
	for i, t := range m.Tiles {
		tiles[i] = protocol.TileInfo{X: t.X, Y: t.Y, Type: int(t.Type), HP: t.HP}
	}
	return protocol.MapSnapshotPayload{
		RoomID:   m.RoomID,
		Width:    m.Width,
		Height:   m.Height,
		TileSize: m.TileSize,
		Tiles:    tiles,
	}
}

func powerUpInfo(p powerup.PowerUp) protocol.PowerUpInfo {
	return protocol.PowerUpInfo{
		ID:     p.ID,
		RoomID: p.RoomID,
		Type:   string(p.Type),
		X:      p.X,
		Y:      p.Y,
	}
}

func powerUpInfos(ps []powerup.PowerUp) []protocol.PowerUpInfo {
	out := make([]protocol.PowerUpInfo, len(ps))
	for i, p := range ps {
		out[i] = powerUpInfo(p)
	}
	return out
}
