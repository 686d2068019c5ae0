package sim

import (
	"context"
	"log"
	"math"
	"sort"

	"github.com/palemoky/battle-tanks/internal/game/bullet"
	"github.com/palemoky/battle-tanks/internal/game/room"
	"github.com/palemoky/battle-tanks/internal/logger"
	"github.com/palemoky/battle-tanks/internal/protocol"
	"github.com/palemoky/battle-tanks/internal/server/storage"
)

// stepBullet 处理单颗子弹；panic 只影响这颗子弹
func (l *Loop) stepBullet(e bullet.Entry, dt float64) {
	defer func() {
		if r := recover(); r != nil {
			logger.LogPanic(r)
			l.Bullets.Despawn(e.RoomCode, e.BulletID)
		}
	}()

	b := e.Bullet
	if !b.Active {
		l.Bullets.Despawn(e.RoomCode, e.BulletID)
		return
	}

	nx := b.X + math.Cos(b.Direction)*b.Speed*dt
	ny := b.Y + math.Sin(b.Direction)*b.Speed*dt

	snap, ok := l.Rooms.ByCode(e.RoomCode)
	if !ok || snap.Status == room.StatusFinished {
		l.despawn(e, protocol.DespawnRoomGone)
		return
	}

	maxX, maxY := l.Tiles.Bounds(snap.RoomID)
	if nx < 0 || ny < 0 || nx >= maxX || ny >= maxY {
		l.despawn(e, protocol.DespawnOut)
		return
	}

	ts := float64(l.Tiles.TileSize())
	tx, ty := int(math.Floor(nx/ts)), int(math.Floor(ny/ts))
	if l.Tiles.IsSolid(snap.RoomID, tx, ty) {
		l.hitWall(e, snap, tx, ty)
		return
	}

	if target, ok := l.findTarget(snap, b.ShooterID, nx, ny); ok {
		l.hitPlayer(e, snap, target)
		return
	}

	b.X, b.Y = nx, ny
	l.Bullets.Update(e.RoomCode, e.BulletID, b)
}

func (l *Loop) despawn(e bullet.Entry, reason string) {
	l.Bullets.Despawn(e.RoomCode, e.BulletID)
	l.Publisher.Publish(e.RoomCode, protocol.MsgBulletDespawned, protocol.BulletDespawnedPayload{
		BulletID: e.BulletID,
		Reason:   reason,
	})
}

// hitWall 墙体命中：可破坏墙体扣 1 点血并给射手加分，子弹总是被消耗
func (l *Loop) hitWall(e bullet.Entry, snap room.Snapshot, tx, ty int) {
	if tile, ok := l.Tiles.DamageDestructible(snap.RoomID, tx, ty); ok {
		l.Publisher.Publish(e.RoomCode, protocol.MsgMapTileUpdated, protocol.MapTileUpdatedPayload{
			RoomID: snap.RoomID,
			X:      tile.X,
			Y:      tile.Y,
			Type:   int(tile.Type),
			HP:     tile.HP,
		})
		l.award(e.RoomCode, snap.RoomID, e.Bullet.ShooterID, WallHitScore)

		roomID, shooter := snap.RoomID, e.Bullet.ShooterID
		l.Jobs.Go("add_points", func(ctx context.Context) {
			if err := l.Sessions.AddPoints(ctx, roomID, shooter, WallHitScore); err != nil {
				log.Printf("⚠️ 回写墙体得分失败 (房间 %s, 玩家 %s): %v", roomID, shooter, err)
			}
		})
	}
	l.despawn(e, protocol.DespawnWall)
}

// findTarget 按房间名单顺序返回第一个被命中的玩家；跳过射手和已淘汰的玩家
func (l *Loop) findTarget(snap room.Snapshot, shooterID string, x, y float64) (room.PlayerState, bool) {
	for _, p := range snap.Players {
		if p.PlayerID == shooterID || l.Scores.Lives(snap.RoomID, p.PlayerID) <= 0 {
			continue
		}
		if math.Abs(x-p.X) <= TankHalfW+BulletRadius && math.Abs(y-p.Y) <= TankHalfH+BulletRadius {
			return p, true
		}
	}
	return room.PlayerState{}, false
}

// hitPlayer 坦克命中：目标扣 1 条命，射手得击杀分；存活则重生，淘汰则检查对局是否结束
func (l *Loop) hitPlayer(e bullet.Entry, snap room.Snapshot, target room.PlayerState) {
	roomID, shooter := snap.RoomID, e.Bullet.ShooterID

	lives := l.Scores.AddLife(roomID, target.PlayerID, -1)
	eliminated := lives == 0
	l.Publisher.Publish(e.RoomCode, protocol.MsgPlayerLifeLost, protocol.PlayerLifeLostPayload{
		PlayerID:   target.PlayerID,
		LivesAfter: lives,
		Eliminated: eliminated,
	})

	l.Scores.RecordKill(roomID, shooter, target.PlayerID)
	l.award(e.RoomCode, roomID, shooter, KillScore)
	l.Jobs.Go("register_kill", func(ctx context.Context) {
		if err := l.Sessions.RegisterKill(ctx, roomID, shooter, target.PlayerID, KillScore); err != nil {
			log.Printf("⚠️ 回写击杀失败 (房间 %s, %s → %s): %v", roomID, shooter, target.PlayerID, err)
		}
	})
	l.despawn(e, protocol.DespawnHit)

	if !eliminated {
		if spawn, ok := l.Rooms.Respawn(e.RoomCode, target.PlayerID); ok {
			l.Publisher.Publish(e.RoomCode, protocol.MsgPlayerRespawned, protocol.PlayerRespawnedPayload{
				PlayerID: target.PlayerID,
				X:        spawn.X,
				Y:        spawn.Y,
			})
		}
		return
	}

	log.Printf("💥 玩家 %s 在房间 %s 被淘汰", target.PlayerID, e.RoomCode)
	alive := 0
	for _, p := range snap.Players {
		if l.Scores.Lives(roomID, p.PlayerID) > 0 {
			alive++
		}
	}
	if alive <= 1 {
		l.endMatch(e.RoomCode, snap)
	}
}

func (l *Loop) award(roomCode, roomID, playerID string, points int) {
	total := l.Scores.AddScore(roomID, playerID, points)
	l.Publisher.Publish(roomCode, protocol.MsgPlayerScored, protocol.PlayerScoredPayload{
		PlayerID: playerID,
		Score:    total,
	})
}

// endMatch 结算对局：冻结得分表，清空计分板，房间进入 Finished
func (l *Loop) endMatch(roomCode string, snap room.Snapshot) {
	roomID := snap.RoomID
	points := l.Scores.Scores(roomID)
	tallies := l.Scores.Tallies(roomID)

	if !l.Rooms.Advance(roomID, room.StatusFinished) {
		return
	}
	l.Scores.ResetRoom(roomID)

	table := scoreTable(snap.Players, points)
	winner := ""
	if len(table) > 0 {
		winner = table[0].PlayerID
	}

	final := make([]storage.FinalScore, len(table))
	for i, s := range table {
		t := tallies[s.PlayerID]
		final[i] = storage.FinalScore{
			PlayerID: s.PlayerID,
			Points:   s.Score,
			Kills:    t.Kills,
			Deaths:   t.Deaths,
			IsWinner: s.PlayerID == winner,
		}
	}

	endedAt := l.now()
	l.Jobs.Go("persist_final_scores", func(ctx context.Context) {
		if err := l.Sessions.PersistFinalScores(ctx, roomID, final); err != nil {
			log.Printf("⚠️ 保存房间 %s 最终得分失败: %v", roomID, err)
		}
		if err := l.Sessions.UpdateRoomStatus(ctx, roomID, string(room.StatusFinished), nil, &endedAt); err != nil {
			log.Printf("⚠️ 更新房间 %s 状态失败: %v", roomID, err)
		}
	})

	log.Printf("🏆 房间 %s 对局结束，获胜者: %s", roomCode, winner)
	l.Publisher.Publish(roomCode, protocol.MsgGameEnded, protocol.GameEndedPayload{
		WinnerPlayerID: winner,
		Scores:         table,
	})
}

// scoreTable 名单内玩家和有得分记录的玩家，按得分降序、玩家 ID 升序
func scoreTable(players []room.PlayerState, points map[string]int) []protocol.PlayerScore {
	seen := make(map[string]bool, len(players)+len(points))
	table := make([]protocol.PlayerScore, 0, len(players)+len(points))
	for _, p := range players {
		if !seen[p.PlayerID] {
			seen[p.PlayerID] = true
			table = append(table, protocol.PlayerScore{PlayerID: p.PlayerID, Score: points[p.PlayerID]})
		}
	}
	for id, pts := range points {
		if !seen[id] {
			seen[id] = true
			table = append(table, protocol.PlayerScore{PlayerID: id, Score: pts})
		}
	}
	sort.Slice(table, func(i, j int) bool {
		if table[i].Score != table[j].Score {
			return table[i].Score > table[j].Score
		}
		return table[i].PlayerID < table[j].PlayerID
	})
	return table
}
