package powerup

import (
	"context"
	"encoding/json"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/palemoky/battle-tanks/internal/game/tilemap"
)

type recordedEvent struct {
	topic   string
	payload []byte
}

type fakeEventLog struct {
	mu     sync.Mutex
	events []recordedEvent
}

func (f *fakeEventLog) AppendPowerUpEvent(_ context.Context, topic string, payload []byte) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.events = append(f.events, recordedEvent{topic: topic, payload: payload})
	return nil
}

func (f *fakeEventLog) snapshot() []recordedEvent {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]recordedEvent(nil), f.events...)
}

func newTestStore() (*Store, *tilemap.Store, *fakeEventLog) {
	tiles := tilemap.NewStore(40, 800, 600)
	events := &fakeEventLog{}
	return NewStore(tiles, events), tiles, events
}

func TestSpawnRandom_OnOpenTileCenter(t *testing.T) {
	t.Parallel()

	s, tiles, _ := newTestStore()
	for i := 0; i < 50; i++ {
		p := s.SpawnRandom("ABCD", "room-1")

		assert.Equal(t, ExtraLife, p.Type)
		assert.Equal(t, "room-1", p.RoomID)
		assert.NotEmpty(t, p.ID)

		tx, ty := int(p.X/40), int(p.Y/40)
		assert.False(t, tiles.IsSolid("room-1", tx, ty))
		assert.InDelta(t, (float64(tx)+0.5)*40, p.X, 1e-9)
		assert.InDelta(t, (float64(ty)+0.5)*40, p.Y, 1e-9)
	}
	assert.Len(t, s.Active("ABCD"), 50)
}

func TestSpawnRandom_FallbackToSpawnPoint(t *testing.T) {
	t.Parallel()

	s, tiles, _ := newTestStore()
	// 总是选中边框
	s.intN = func(int) int { return 0 }

	p := s.SpawnRandom("ABCD", "room-1")
	first := tiles.SpawnPoints("room-1")[0]
	assert.InDelta(t, first.X, p.X, 1e-9)
	assert.InDelta(t, first.Y, p.Y, 1e-9)
}

func TestSpawnRandom_RecordsEvent(t *testing.T) {
	t.Parallel()

	s, _, events := newTestStore()
	p := s.SpawnRandom("ABCD", "room-1")

	require.Eventually(t, func() bool { return len(events.snapshot()) == 1 }, time.Second, 5*time.Millisecond)

	ev := events.snapshot()[0]
	assert.Equal(t, TopicSpawned, ev.topic)

	var decoded PowerUp
	require.NoError(t, json.Unmarshal(ev.payload, &decoded))
	assert.Equal(t, p, decoded)
}

func TestTryConsume_WithinHalfTile(t *testing.T) {
	t.Parallel()

	s, _, events := newTestStore()
	p := s.SpawnRandom("ABCD", "room-1")

	_, ok := s.TryConsume("ABCD", "u1", p.X+21, p.Y)
	assert.False(t, ok, "outside half tile on x")
	_, ok = s.TryConsume("ABCD", "u1", p.X, p.Y-21)
	assert.False(t, ok, "outside half tile on y")
	_, ok = s.TryConsume("OTHER", "u1", p.X, p.Y)
	assert.False(t, ok, "other room")

	got, ok := s.TryConsume("ABCD", "u1", p.X+20, p.Y-20)
	require.True(t, ok)
	assert.Equal(t, p.ID, got.ID)
	assert.Empty(t, s.Active("ABCD"))

	_, ok = s.TryConsume("ABCD", "u1", p.X, p.Y)
	assert.False(t, ok, "already consumed")

	require.Eventually(t, func() bool { return len(events.snapshot()) == 2 }, time.Second, 5*time.Millisecond)
	var consumed []recordedEvent
	for _, ev := range events.snapshot() {
		if ev.topic == TopicConsumed {
			consumed = append(consumed, ev)
		}
	}
	require.Len(t, consumed, 1)
	assert.JSONEq(t, `{"roomCode":"ABCD","userId":"u1","powerUpId":"`+p.ID+`"}`, string(consumed[0].payload))
}

func TestTryConsume_ConcurrentOnlyOneWins(t *testing.T) {
	t.Parallel()

	s, _, _ := newTestStore()
	p := s.SpawnRandom("ABCD", "room-1")

	var wg sync.WaitGroup
	var mu sync.Mutex
	wins := 0
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, ok := s.TryConsume("ABCD", "u", p.X, p.Y); ok {
				mu.Lock()
				wins++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()
	assert.Equal(t, 1, wins)
}

func TestResetRoom(t *testing.T) {
	t.Parallel()

	s, _, _ := newTestStore()
	s.SpawnRandom("ABCD", "room-1")
	s.SpawnRandom("EFGH", "room-2")

	s.ResetRoom("ABCD")
	assert.Empty(t, s.Active("ABCD"))
	assert.Len(t, s.Active("EFGH"), 1)
}

func TestNilEventLog(t *testing.T) {
	t.Parallel()

	s := NewStore(tilemap.NewStore(40, 800, 600), nil)
	p := s.SpawnRandom("ABCD", "room-1")
	_, ok := s.TryConsume("ABCD", "u1", p.X, p.Y)
	assert.True(t, ok)
}
