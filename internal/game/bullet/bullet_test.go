package bullet

import (
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeClock 可手动推进的时钟
type fakeClock struct {
	mu  sync.Mutex
	cur time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.cur
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.cur = c.cur.Add(d)
	c.mu.Unlock()
}

func newTestStore() (*Store, *fakeClock) {
	clock := &fakeClock{cur: time.Unix(1_700_000_000, 0)}
	s := NewStore(DefaultLimits())
	s.now = clock.Now
	return s, clock
}

// Scenario B: 0s ok, 0.3s rejected, 0.6s ok.
func TestTrySpawn_MinInterval(t *testing.T) {
	t.Parallel()

	s, clock := newTestStore()

	_, ok := s.TrySpawn("ABCD", "room-1", "p1", 10, 10, 0, 300)
	require.True(t, ok)

	clock.Advance(300 * time.Millisecond)
	_, ok = s.TrySpawn("ABCD", "room-1", "p1", 10, 10, 0, 300)
	assert.False(t, ok)
	assert.Equal(t, 1, s.ActiveCount("ABCD", "p1"), "rejection must not change state")

	clock.Advance(300 * time.Millisecond)
	_, ok = s.TrySpawn("ABCD", "room-1", "p1", 10, 10, 0, 300)
	assert.True(t, ok)
	assert.Equal(t, 2, s.ActiveCount("ABCD", "p1"))
}

func TestTrySpawn_MaxActive(t *testing.T) {
	t.Parallel()

	s, clock := newTestStore()
	for i := 0; i < 2; i++ {
		_, ok := s.TrySpawn("ABCD", "room-1", "p1", 0, 0, 0, 100)
		require.True(t, ok)
		clock.Advance(time.Second)
	}

	_, ok := s.TrySpawn("ABCD", "room-1", "p1", 0, 0, 0, 100)
	assert.False(t, ok)
	assert.Equal(t, 2, s.ActiveCount("ABCD", "p1"))

	// 其他射手不受影响
	_, ok = s.TrySpawn("ABCD", "room-1", "p2", 0, 0, 0, 100)
	assert.True(t, ok)

	// 其他房间的同一射手不受影响
	_, ok = s.TrySpawn("EFGH", "room-2", "p1", 0, 0, 0, 100)
	assert.True(t, ok)
}

func TestTrySpawn_DespawnFreesSlot(t *testing.T) {
	t.Parallel()

	s, clock := newTestStore()
	b1, _ := s.TrySpawn("ABCD", "room-1", "p1", 0, 0, 0, 100)
	clock.Advance(time.Second)
	_, _ = s.TrySpawn("ABCD", "room-1", "p1", 0, 0, 0, 100)
	clock.Advance(time.Second)

	s.Despawn("ABCD", b1.ID)
	_, ok := s.TrySpawn("ABCD", "room-1", "p1", 0, 0, 0, 100)
	assert.True(t, ok)
}

func TestTrySpawn_InactiveNotCounted(t *testing.T) {
	t.Parallel()

	s, clock := newTestStore()
	b1, _ := s.TrySpawn("ABCD", "room-1", "p1", 0, 0, 0, 100)
	clock.Advance(time.Second)
	_, _ = s.TrySpawn("ABCD", "room-1", "p1", 0, 0, 0, 100)
	clock.Advance(time.Second)

	b1.Active = false
	s.Update("ABCD", b1.ID, b1)
	assert.Equal(t, 1, s.ActiveCount("ABCD", "p1"))
}

func TestTrySpawn_SpeedClamp(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name  string
		speed float64
		want  float64
	}{
		{"too slow", 1, 10},
		{"negative", -50, 10},
		{"in range", 300, 300},
		{"too fast", 5000, 1200},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			s, _ := newTestStore()
			b, ok := s.TrySpawn("ABCD", "room-1", "p1", 0, 0, 0, tt.speed)
			require.True(t, ok)
			assert.InDelta(t, tt.want, b.Speed, 1e-9)
		})
	}
}

func TestTrySpawn_Fields(t *testing.T) {
	t.Parallel()

	s, clock := newTestStore()
	b, ok := s.TrySpawn("ABCD", "room-1", "p1", 12.5, 7.25, 1.5, 400)
	require.True(t, ok)

	assert.NotEmpty(t, b.ID)
	assert.Equal(t, "ABCD", b.RoomCode)
	assert.Equal(t, "room-1", b.RoomID)
	assert.Equal(t, "p1", b.ShooterID)
	assert.InDelta(t, 12.5, b.X, 1e-9)
	assert.InDelta(t, 7.25, b.Y, 1e-9)
	assert.InDelta(t, 1.5, b.Direction, 1e-9)
	assert.Equal(t, clock.Now().UnixMilli(), b.SpawnedAt)
	assert.True(t, b.Active)
}

func TestEnumerateAll_Order(t *testing.T) {
	t.Parallel()

	s, _ := newTestStore()
	z1, _ := s.TrySpawn("ZZZZ", "room-z", "p1", 0, 0, 0, 100)
	a1, _ := s.TrySpawn("AAAA", "room-a", "p1", 0, 0, 0, 100)
	a2, _ := s.TrySpawn("AAAA", "room-a", "p2", 0, 0, 0, 100)

	entries := s.EnumerateAll()
	require.Len(t, entries, 3)
	assert.Equal(t, a1.ID, entries[0].BulletID)
	assert.Equal(t, a2.ID, entries[1].BulletID)
	assert.Equal(t, z1.ID, entries[2].BulletID)
	assert.Equal(t, "ZZZZ", entries[2].RoomCode)
}

func TestEnumerateAll_IsSnapshot(t *testing.T) {
	t.Parallel()

	s, _ := newTestStore()
	b, _ := s.TrySpawn("ABCD", "room-1", "p1", 0, 0, 0, 100)

	entries := s.EnumerateAll()
	s.Despawn("ABCD", b.ID)

	require.Len(t, entries, 1)
	assert.Equal(t, b.ID, entries[0].BulletID)
	assert.Empty(t, s.EnumerateAll())
}

func TestUpdate(t *testing.T) {
	t.Parallel()

	s, _ := newTestStore()
	b, _ := s.TrySpawn("ABCD", "room-1", "p1", 0, 0, 0, 100)

	b.X, b.Y = 50, 60
	s.Update("ABCD", b.ID, b)

	bullets := s.Room("ABCD")
	require.Len(t, bullets, 1)
	assert.InDelta(t, 50.0, bullets[0].X, 1e-9)
	assert.InDelta(t, 60.0, bullets[0].Y, 1e-9)

	// 已移除的子弹不会被复活
	s.Despawn("ABCD", b.ID)
	s.Update("ABCD", b.ID, b)
	assert.Empty(t, s.Room("ABCD"))

	// 未知房间
	s.Update("NOPE", b.ID, b)
	assert.Empty(t, s.Room("NOPE"))
}

func TestDespawn_Idempotent(t *testing.T) {
	t.Parallel()

	s, _ := newTestStore()
	b, _ := s.TrySpawn("ABCD", "room-1", "p1", 0, 0, 0, 100)
	other, _ := s.TrySpawn("ABCD", "room-1", "p2", 0, 0, 0, 100)

	s.Despawn("ABCD", b.ID)
	s.Despawn("ABCD", b.ID)
	s.Despawn("NOPE", b.ID)

	bullets := s.Room("ABCD")
	require.Len(t, bullets, 1)
	assert.Equal(t, other.ID, bullets[0].ID)
}

func TestDespawnRoom(t *testing.T) {
	t.Parallel()

	s, _ := newTestStore()
	b1, _ := s.TrySpawn("ABCD", "room-1", "p1", 0, 0, 0, 100)
	b2, _ := s.TrySpawn("ABCD", "room-1", "p2", 0, 0, 0, 100)
	_, _ = s.TrySpawn("EFGH", "room-2", "p1", 0, 0, 0, 100)

	ids := s.DespawnRoom("ABCD")
	assert.Equal(t, []string{b1.ID, b2.ID}, ids)
	assert.Empty(t, s.Room("ABCD"))
	assert.Len(t, s.EnumerateAll(), 1)

	assert.Nil(t, s.DespawnRoom("ABCD"))

	// 开火记录随房间一起清除
	_, ok := s.TrySpawn("ABCD", "room-1", "p1", 0, 0, 0, 100)
	assert.True(t, ok)
}

func TestNewStore_FillsZeroLimits(t *testing.T) {
	t.Parallel()

	s := NewStore(Limits{})
	assert.Equal(t, DefaultLimits(), s.limits)

	custom := NewStore(Limits{MinInterval: time.Second, MaxActive: 5, MinSpeed: 1, MaxSpeed: 50})
	assert.Equal(t, 5, custom.limits.MaxActive)
	assert.InDelta(t, 50.0, custom.limits.MaxSpeed, 1e-9)
}

func TestTrySpawn_ConcurrentNeverExceedsMax(t *testing.T) {
	t.Parallel()

	s := NewStore(Limits{MinInterval: time.Nanosecond, MaxActive: 2, MinSpeed: 10, MaxSpeed: 1200})

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, _ = s.TrySpawn("ABCD", "room-1", "p1", 0, 0, 0, 100)
		}()
	}
	wg.Wait()

	assert.LessOrEqual(t, s.ActiveCount("ABCD", "p1"), 2)
}

func TestTrySpawn_ConcurrentWithDespawnRoom(t *testing.T) {
	t.Parallel()

	s := NewStore(DefaultLimits())

	var (
		mu        sync.Mutex
		spawned   []string
		despawned = make(map[string]bool)
	)
	record := func(ids []string) {
		mu.Lock()
		for _, id := range ids {
			despawned[id] = true
		}
		mu.Unlock()
	}

	var wg sync.WaitGroup
	for i := 0; i < 200; i++ {
		wg.Add(2)
		go func() {
			defer wg.Done()
			b, ok := s.TrySpawn("ABCD", "room-1", fmt.Sprintf("p%d", i), 0, 0, 0, 100)
			if ok {
				mu.Lock()
				spawned = append(spawned, b.ID)
				mu.Unlock()
			}
		}()
		go func() {
			defer wg.Done()
			record(s.DespawnRoom("ABCD"))
		}()
	}
	wg.Wait()

	// 每颗生成成功的子弹要么被某次 DespawnRoom 返回，要么仍在房间里
	for _, b := range s.Room("ABCD") {
		assert.False(t, despawned[b.ID])
	}
	record(s.DespawnRoom("ABCD"))

	require.Len(t, spawned, 200)
	for _, id := range spawned {
		assert.True(t, despawned[id], id)
	}
	assert.Empty(t, s.EnumerateAll())
}
