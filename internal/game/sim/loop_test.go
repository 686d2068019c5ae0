package sim

import (
	"context"
	"math"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/palemoky/battle-tanks/internal/game/bullet"
	"github.com/palemoky/battle-tanks/internal/game/room"
	"github.com/palemoky/battle-tanks/internal/game/score"
	"github.com/palemoky/battle-tanks/internal/game/tilemap"
	"github.com/palemoky/battle-tanks/internal/protocol"
	"github.com/palemoky/battle-tanks/internal/server/storage"
	"github.com/palemoky/battle-tanks/internal/testutil"
)

const (
	testRoomID   = "room-1"
	testRoomCode = "ABCD"
)

// fakeBullets 按插入顺序枚举的子弹存储
type fakeBullets struct {
	mu    sync.Mutex
	order []string
	byID  map[string]bullet.Bullet
}

func newFakeBullets() *fakeBullets {
	return &fakeBullets{byID: make(map[string]bullet.Bullet)}
}

func (f *fakeBullets) add(b bullet.Bullet) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.order = append(f.order, b.ID)
	f.byID[b.ID] = b
}

func (f *fakeBullets) get(id string) (bullet.Bullet, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	b, ok := f.byID[id]
	return b, ok
}

func (f *fakeBullets) EnumerateAll() []bullet.Entry {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []bullet.Entry
	for _, id := range f.order {
		if b, ok := f.byID[id]; ok {
			out = append(out, bullet.Entry{RoomCode: b.RoomCode, BulletID: id, Bullet: b})
		}
	}
	return out
}

func (f *fakeBullets) Update(_, bulletID string, b bullet.Bullet) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.byID[bulletID]; ok {
		f.byID[bulletID] = b
	}
}

func (f *fakeBullets) Despawn(_, bulletID string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.byID, bulletID)
}

type harness struct {
	loop     *Loop
	bullets  *fakeBullets
	tiles    *tilemap.Store
	ledger   *score.Ledger
	rooms    *room.Registry
	sessions *storage.MemoryStore
	pub      *testutil.RecordingPublisher
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	sessions := storage.NewMemoryStore()
	sessions.PutSession(storage.Session{ID: testRoomID, Code: testRoomCode, MaxPlayers: 4, Status: storage.StatusInProgress})

	h := &harness{
		bullets:  newFakeBullets(),
		tiles:    tilemap.NewStore(40, 800, 600),
		ledger:   score.NewLedger(),
		sessions: sessions,
		pub:      &testutil.RecordingPublisher{},
	}
	h.rooms = room.NewRegistry(sessions, h.tiles)
	h.rooms.UpsertRoom(testRoomID, testRoomCode, "Arena", 4, true, room.StatusInProgress)
	h.loop = NewLoop(Deps{
		Bullets:   h.bullets,
		Tiles:     h.tiles,
		Scores:    h.ledger,
		Rooms:     h.rooms,
		Sessions:  sessions,
		Publisher: h.pub,
	}, 0, 0)
	return h
}

// join 加入玩家并放到指定位置
func (h *harness) join(t *testing.T, playerID string, x, y float64) {
	t.Helper()
	_, err := h.rooms.Join(context.Background(), testRoomCode, playerID, playerID, "conn-"+playerID)
	require.NoError(t, err)
	h.rooms.UpdatePosition(testRoomCode, playerID, x, y, 0)
}

func (h *harness) fire(id, shooter string, x, y, dir, speed float64) {
	h.bullets.add(bullet.Bullet{
		ID:        id,
		RoomCode:  testRoomCode,
		RoomID:    testRoomID,
		ShooterID: shooter,
		X:         x,
		Y:         y,
		Direction: dir,
		Speed:     speed,
		Active:    true,
	})
}

func despawnReason(t *testing.T, pub *testutil.RecordingPublisher, bulletID string) string {
	t.Helper()
	for _, e := range pub.OfType(protocol.MsgBulletDespawned) {
		p := e.Payload.(protocol.BulletDespawnedPayload)
		if p.BulletID == bulletID {
			return p.Reason
		}
	}
	return ""
}

func TestStep_Kinematics(t *testing.T) {
	t.Parallel()

	h := newHarness(t)
	h.join(t, "p1", 60, 60)
	h.fire("b1", "p1", 200, 60, math.Pi/4, 100)

	h.loop.Step(20 * time.Millisecond)

	b, ok := h.bullets.get("b1")
	require.True(t, ok)
	assert.InDelta(t, 200+math.Cos(math.Pi/4)*100*0.02, b.X, 1e-9)
	assert.InDelta(t, 60+math.Sin(math.Pi/4)*100*0.02, b.Y, 1e-9)
	assert.Empty(t, h.pub.Events())
}

func TestStep_DeltaClamped(t *testing.T) {
	t.Parallel()

	h := newHarness(t)
	h.fire("b1", "p1", 200, 60, 0, 100)

	h.loop.Step(time.Second)
	b, _ := h.bullets.get("b1")
	assert.InDelta(t, 205.0, b.X, 1e-9, "Δt is capped at 50ms")

	h.loop.Step(-time.Second)
	b, _ = h.bullets.get("b1")
	assert.InDelta(t, 205.0, b.X, 1e-9, "negative Δt does not move bullets")
}

func TestStep_InactiveBulletDespawnedSilently(t *testing.T) {
	t.Parallel()

	h := newHarness(t)
	h.bullets.add(bullet.Bullet{ID: "b1", RoomCode: testRoomCode, X: 200, Y: 60, Speed: 100})

	h.loop.Step(16 * time.Millisecond)

	_, ok := h.bullets.get("b1")
	assert.False(t, ok)
	assert.Empty(t, h.pub.Events())
}

func TestStep_RoomGone(t *testing.T) {
	t.Parallel()

	h := newHarness(t)
	h.bullets.add(bullet.Bullet{ID: "b1", RoomCode: "ZZZZ", RoomID: "nope", X: 200, Y: 60, Speed: 100, Active: true})

	h.loop.Step(16 * time.Millisecond)

	_, ok := h.bullets.get("b1")
	assert.False(t, ok)
	assert.Equal(t, protocol.DespawnRoomGone, despawnReason(t, h.pub, "b1"))
}

func TestStep_FinishedRoomDespawns(t *testing.T) {
	t.Parallel()

	h := newHarness(t)
	h.join(t, "p1", 60, 60)
	require.True(t, h.rooms.Advance(testRoomID, room.StatusFinished))
	h.fire("b1", "p1", 200, 60, 0, 100)

	h.loop.Step(16 * time.Millisecond)

	assert.Equal(t, protocol.DespawnRoomGone, despawnReason(t, h.pub, "b1"))
}

func TestStep_OutOfBounds(t *testing.T) {
	t.Parallel()

	h := newHarness(t)
	h.join(t, "p1", 60, 60)
	h.fire("b1", "p1", 790, 60, 0, 400)

	h.loop.Step(50 * time.Millisecond)

	_, ok := h.bullets.get("b1")
	assert.False(t, ok)
	assert.Equal(t, protocol.DespawnOut, despawnReason(t, h.pub, "b1"))
	assert.Equal(t, []protocol.MessageType{protocol.MsgBulletDespawned}, h.pub.Types())
}

func TestStep_IndestructibleWall(t *testing.T) {
	t.Parallel()

	h := newHarness(t)
	h.join(t, "p1", 300, 60)
	h.fire("b1", "p1", 45, 60, math.Pi, 400)

	h.loop.Step(50 * time.Millisecond)

	assert.Equal(t, protocol.DespawnWall, despawnReason(t, h.pub, "b1"))
	assert.Empty(t, h.pub.OfType(protocol.MsgMapTileUpdated))
	assert.Empty(t, h.pub.OfType(protocol.MsgPlayerScored))
	assert.Equal(t, tilemap.IndestructibleWall, h.tiles.TileAt(testRoomID, 0, 1).Type)
	assert.Zero(t, h.ledger.Score(testRoomID, "p1"))
}

// Scenario A: two bullets break the destructible tile at (2,2).
func TestStep_DestructibleWallTwoHits(t *testing.T) {
	t.Parallel()

	h := newHarness(t)
	h.join(t, "p1", 300, 60)

	h.fire("b1", "p1", 70, 100, 0, 400)
	h.loop.Step(50 * time.Millisecond)

	tile := h.tiles.TileAt(testRoomID, 2, 2)
	assert.Equal(t, 1, tile.HP)
	assert.True(t, h.tiles.IsSolid(testRoomID, 2, 2))
	assert.Equal(t, protocol.DespawnWall, despawnReason(t, h.pub, "b1"))
	assert.Equal(t, []protocol.MessageType{
		protocol.MsgMapTileUpdated,
		protocol.MsgPlayerScored,
		protocol.MsgBulletDespawned,
	}, h.pub.Types())

	h.fire("b2", "p1", 70, 100, 0, 400)
	h.loop.Step(50 * time.Millisecond)

	tile = h.tiles.TileAt(testRoomID, 2, 2)
	assert.Equal(t, tilemap.Empty, tile.Type)
	assert.Zero(t, tile.HP)
	assert.False(t, h.tiles.IsSolid(testRoomID, 2, 2))

	updates := h.pub.OfType(protocol.MsgMapTileUpdated)
	require.Len(t, updates, 2)
	last := updates[1].Payload.(protocol.MapTileUpdatedPayload)
	assert.Equal(t, protocol.MapTileUpdatedPayload{RoomID: testRoomID, X: 2, Y: 2, Type: 0, HP: 0}, last)

	assert.Equal(t, 2*WallHitScore, h.ledger.Score(testRoomID, "p1"))
	points, err := h.sessions.RoomPoints(context.Background(), testRoomID)
	require.NoError(t, err)
	assert.Equal(t, 2*WallHitScore, points["p1"])
}

func TestStep_HitAndRespawn(t *testing.T) {
	t.Parallel()

	h := newHarness(t)
	h.join(t, "p1", 60, 60)
	h.join(t, "p2", 200, 60)
	h.fire("b1", "p1", 170, 60, 0, 400)

	h.loop.Step(50 * time.Millisecond)

	assert.Equal(t, []protocol.MessageType{
		protocol.MsgPlayerLifeLost,
		protocol.MsgPlayerScored,
		protocol.MsgBulletDespawned,
		protocol.MsgPlayerRespawned,
	}, h.pub.Types())

	lost := h.pub.OfType(protocol.MsgPlayerLifeLost)[0].Payload.(protocol.PlayerLifeLostPayload)
	assert.Equal(t, protocol.PlayerLifeLostPayload{PlayerID: "p2", LivesAfter: 2, Eliminated: false}, lost)

	scored := h.pub.OfType(protocol.MsgPlayerScored)[0].Payload.(protocol.PlayerScoredPayload)
	assert.Equal(t, protocol.PlayerScoredPayload{PlayerID: "p1", Score: KillScore}, scored)
	assert.Equal(t, protocol.DespawnHit, despawnReason(t, h.pub, "b1"))

	spawn := h.tiles.SpawnPoints(testRoomID)[2]
	respawned := h.pub.OfType(protocol.MsgPlayerRespawned)[0].Payload.(protocol.PlayerRespawnedPayload)
	assert.Equal(t, protocol.PlayerRespawnedPayload{PlayerID: "p2", X: spawn.X, Y: spawn.Y}, respawned)

	snap, _ := h.rooms.ByCode(testRoomCode)
	assert.InDelta(t, spawn.X, snap.Players[1].X, 1e-9)

	assert.Equal(t, score.Tally{Kills: 1}, h.ledger.Tallies(testRoomID)["p1"])
	assert.Equal(t, score.Tally{Deaths: 1}, h.ledger.Tallies(testRoomID)["p2"])

	kills, err := h.sessions.RoomKills(context.Background(), testRoomID)
	require.NoError(t, err)
	assert.Equal(t, 1, kills["p1"])
}

func TestStep_ShooterAndEliminatedNotHit(t *testing.T) {
	t.Parallel()

	h := newHarness(t)
	h.join(t, "p1", 200, 60)
	h.join(t, "p2", 300, 60)
	h.join(t, "p3", 500, 60)
	h.ledger.AddLife(testRoomID, "p2", -score.StartingLives)

	// 穿过射手自身
	h.fire("b1", "p1", 195, 60, 0, 100)
	// 穿过已淘汰的 p2
	h.fire("b2", "p3", 295, 60, 0, 100)

	h.loop.Step(50 * time.Millisecond)

	assert.Empty(t, h.pub.Events())
	b1, ok := h.bullets.get("b1")
	require.True(t, ok)
	assert.InDelta(t, 200.0, b1.X, 1e-9)
	b2, ok := h.bullets.get("b2")
	require.True(t, ok)
	assert.InDelta(t, 300.0, b2.X, 1e-9)
}

func TestStep_FirstRosterMatchWins(t *testing.T) {
	t.Parallel()

	h := newHarness(t)
	h.join(t, "shooter", 60, 60)
	h.join(t, "zed", 205, 60)
	h.join(t, "amy", 195, 60)
	h.fire("b1", "shooter", 180, 60, 0, 400)

	h.loop.Step(50 * time.Millisecond)

	lost := h.pub.OfType(protocol.MsgPlayerLifeLost)
	require.Len(t, lost, 1)
	assert.Equal(t, "amy", lost[0].Payload.(protocol.PlayerLifeLostPayload).PlayerID)
}

// Scenario C: the last life of one of two players ends the match.
func TestStep_EliminationEndsMatch(t *testing.T) {
	t.Parallel()

	h := newHarness(t)
	h.join(t, "p1", 60, 60)
	h.join(t, "p2", 200, 60)
	h.ledger.AddLife(testRoomID, "p2", -2)
	h.fire("b1", "p1", 170, 60, 0, 400)

	h.loop.Step(50 * time.Millisecond)

	assert.Equal(t, []protocol.MessageType{
		protocol.MsgPlayerLifeLost,
		protocol.MsgPlayerScored,
		protocol.MsgBulletDespawned,
		protocol.MsgGameEnded,
	}, h.pub.Types())

	lost := h.pub.OfType(protocol.MsgPlayerLifeLost)[0].Payload.(protocol.PlayerLifeLostPayload)
	assert.Zero(t, lost.LivesAfter)
	assert.True(t, lost.Eliminated)

	ended := h.pub.OfType(protocol.MsgGameEnded)[0].Payload.(protocol.GameEndedPayload)
	assert.Equal(t, "p1", ended.WinnerPlayerID)
	assert.Equal(t, []protocol.PlayerScore{
		{PlayerID: "p1", Score: KillScore},
		{PlayerID: "p2", Score: 0},
	}, ended.Scores)

	assert.Empty(t, h.ledger.Scores(testRoomID))
	assert.Empty(t, h.ledger.LivesOf(testRoomID))

	snap, _ := h.rooms.ByCode(testRoomCode)
	assert.Equal(t, room.StatusFinished, snap.Status)

	results, err := h.sessions.FinalScores(context.Background(), testRoomID)
	require.NoError(t, err)
	require.Len(t, results, 2)
	assert.Equal(t, storage.FinalScore{PlayerID: "p1", Points: KillScore, Kills: 1, IsWinner: true}, results[0])
	assert.Equal(t, storage.FinalScore{PlayerID: "p2", Deaths: 1}, results[1])

	session, err := h.sessions.FindByID(context.Background(), testRoomID)
	require.NoError(t, err)
	assert.Equal(t, storage.StatusFinished, session.Status)
	assert.NotZero(t, session.EndedAt)

	// 结束后剩余的子弹被清理
	h.fire("b2", "p1", 300, 60, 0, 100)
	h.loop.Step(16 * time.Millisecond)
	assert.Equal(t, protocol.DespawnRoomGone, despawnReason(t, h.pub, "b2"))
}

func TestStep_EliminationWithSurvivorsContinues(t *testing.T) {
	t.Parallel()

	h := newHarness(t)
	h.join(t, "p1", 60, 60)
	h.join(t, "p2", 200, 60)
	h.join(t, "p3", 500, 60)
	h.ledger.AddLife(testRoomID, "p2", -2)
	h.fire("b1", "p1", 170, 60, 0, 400)

	h.loop.Step(50 * time.Millisecond)

	assert.Empty(t, h.pub.OfType(protocol.MsgGameEnded))
	assert.Empty(t, h.pub.OfType(protocol.MsgPlayerRespawned))
	snap, _ := h.rooms.ByCode(testRoomCode)
	assert.Equal(t, room.StatusInProgress, snap.Status)
	assert.Zero(t, h.ledger.Lives(testRoomID, "p2"))
}

// panicRooms 对指定房间码触发 panic
type panicRooms struct {
	Rooms
	code string
}

func (p panicRooms) ByCode(code string) (room.Snapshot, bool) {
	if code == p.code {
		panic("corrupted room")
	}
	return p.Rooms.ByCode(code)
}

func TestStep_PanicIsolatedToBullet(t *testing.T) {
	t.Parallel()

	h := newHarness(t)
	h.loop.Rooms = panicRooms{Rooms: h.rooms, code: "BOOM"}
	h.bullets.add(bullet.Bullet{ID: "bad", RoomCode: "BOOM", X: 200, Y: 60, Speed: 100, Active: true})
	h.fire("good", "p1", 200, 60, 0, 100)

	assert.NotPanics(t, func() { h.loop.Step(20 * time.Millisecond) })

	_, ok := h.bullets.get("bad")
	assert.False(t, ok)
	good, ok := h.bullets.get("good")
	require.True(t, ok)
	assert.InDelta(t, 202.0, good.X, 1e-9)
}

func TestScoreTable(t *testing.T) {
	t.Parallel()

	players := []room.PlayerState{{PlayerID: "b"}, {PlayerID: "a"}}
	table := scoreTable(players, map[string]int{"a": 100, "b": 100, "gone": 300})

	assert.Equal(t, []protocol.PlayerScore{
		{PlayerID: "gone", Score: 300},
		{PlayerID: "a", Score: 100},
		{PlayerID: "b", Score: 100},
	}, table)
	assert.Empty(t, scoreTable(nil, nil))
}

func TestRun_StopsOnCancel(t *testing.T) {
	t.Parallel()

	h := newHarness(t)
	h.fire("b1", "p1", 200, 60, 0, 10)

	loop := NewLoop(h.loop.Deps, 2*time.Millisecond, 0)
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		loop.Run(ctx)
		close(done)
	}()

	assert.Eventually(t, func() bool {
		b, ok := h.bullets.get("b1")
		return ok && b.X > 200
	}, time.Second, 2*time.Millisecond)

	cancel()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("loop did not stop")
	}
}
