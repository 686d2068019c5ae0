// Package sim 固定帧率的子弹模拟循环
//
// 每帧遍历所有房间的子弹快照，推进位置并依次检测越界、墙体和坦克碰撞，
// 结果写回各个存储并通过 Publisher 广播事件。需要落盘的数据交给 Jobs 异步执行，
// 循环本身不会阻塞在外部 I/O 上。
package sim

import (
	"context"
	"log"
	"time"

	"github.com/palemoky/battle-tanks/internal/game/bullet"
	"github.com/palemoky/battle-tanks/internal/game/room"
	"github.com/palemoky/battle-tanks/internal/game/score"
	"github.com/palemoky/battle-tanks/internal/game/tilemap"
	"github.com/palemoky/battle-tanks/internal/server/storage"
	"github.com/palemoky/battle-tanks/internal/types"
)

// 碰撞与计分常量
const (
	BulletRadius = 2.5 // 子弹半径
	TankHalfW    = 12  // 坦克碰撞盒半宽
	TankHalfH    = 8   // 坦克碰撞盒半高
	WallHitScore = 50  // 击中可破坏墙体
	KillScore    = 150 // 击中坦克
)

const (
	defaultInterval = time.Second / 60
	defaultMaxDelta = 50 * time.Millisecond
)

// Bullets 子弹存储
type Bullets interface {
	EnumerateAll() []bullet.Entry
	Update(roomCode, bulletID string, b bullet.Bullet)
	Despawn(roomCode, bulletID string)
}

// Tiles 地图存储
type Tiles interface {
	TileSize() int
	Bounds(roomID string) (maxX, maxY float64)
	IsSolid(roomID string, tx, ty int) bool
	DamageDestructible(roomID string, tx, ty int) (tilemap.Tile, bool)
}

// Scores 计分板
type Scores interface {
	AddScore(roomID, playerID string, amount int) int
	AddLife(roomID, playerID string, delta int) int
	RecordKill(roomID, shooterID, targetID string)
	Lives(roomID, playerID string) int
	Scores(roomID string) map[string]int
	Tallies(roomID string) map[string]score.Tally
	ResetRoom(roomID string)
}

// Rooms 房间注册表
type Rooms interface {
	ByCode(code string) (room.Snapshot, bool)
	Respawn(roomCode, playerID string) (tilemap.Point, bool)
	Advance(roomID string, next room.Status) bool
}

// Sessions 需要回写的持久化会话操作
type Sessions interface {
	AddPoints(ctx context.Context, roomID, playerID string, points int) error
	RegisterKill(ctx context.Context, roomID, shooterID, targetID string, points int) error
	PersistFinalScores(ctx context.Context, roomID string, scores []storage.FinalScore) error
	UpdateRoomStatus(ctx context.Context, roomID, status string, startedAt, endedAt *time.Time) error
}

// Jobs 异步任务调度，Go 不得阻塞调用方
type Jobs interface {
	Go(name string, fn func(ctx context.Context)) bool
}

// Deps 模拟循环依赖的存储与下游
type Deps struct {
	Bullets   Bullets
	Tiles     Tiles
	Scores    Scores
	Rooms     Rooms
	Sessions  Sessions
	Publisher types.Publisher
	Jobs      Jobs
}

// Loop 子弹模拟循环
type Loop struct {
	Deps

	interval time.Duration
	maxDelta time.Duration
	now      func() time.Time
}

// NewLoop 创建模拟循环；interval 或 maxDelta 为 0 时使用 60Hz / 50ms
func NewLoop(deps Deps, interval, maxDelta time.Duration) *Loop {
	if interval <= 0 {
		interval = defaultInterval
	}
	if maxDelta <= 0 {
		maxDelta = defaultMaxDelta
	}
	if deps.Jobs == nil {
		deps.Jobs = Inline{}
	}
	return &Loop{
		Deps:     deps,
		interval: interval,
		maxDelta: maxDelta,
		now:      time.Now,
	}
}

// Run 按固定帧率运行，直到 ctx 结束
func (l *Loop) Run(ctx context.Context) {
	ticker := time.NewTicker(l.interval)
	defer ticker.Stop()

	log.Printf("🎯 模拟循环已启动，帧间隔 %v", l.interval)
	last := l.now()
	for {
		select {
		case <-ctx.Done():
			log.Println("🎯 模拟循环已停止")
			return
		case <-ticker.C:
			now := l.now()
			l.Step(now.Sub(last))
			last = now
		}
	}
}

// Step 推进一帧，elapsed 被限制在 [0, maxDelta]
func (l *Loop) Step(elapsed time.Duration) {
	dt := min(max(elapsed, 0), l.maxDelta).Seconds()
	for _, e := range l.Bullets.EnumerateAll() {
		l.stepBullet(e, dt)
	}
}

// Inline 在调用方协程中同步执行任务
type Inline struct{}

func (Inline) Go(_ string, fn func(ctx context.Context)) bool {
	fn(context.Background())
	return true
}
