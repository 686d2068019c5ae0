// Package tilemap 房间地图存储：默认地图生成、地块查询、可破坏墙体伤害与出生点。
package tilemap

import (
	"sort"
	"sync"
)

// TileType 地块类型
type TileType int

const (
	Empty              TileType = 0
	IndestructibleWall TileType = 1
	DestructibleWall   TileType = 2
)

// DestructibleHP 可破坏墙体的初始生命值
const DestructibleHP = 2

// Tile 地块
type Tile struct {
	X    int
	Y    int
	Type TileType
	HP   int
}

// Point 像素坐标
type Point struct {
	X float64
	Y float64
}

// Snapshot 地图快照（只包含非空地块，按 y、x 排序）
type Snapshot struct {
	RoomID   string
	Width    int // 地块数
	Height   int // 地块数
	TileSize int // 像素
	Tiles    []Tile
}

type cell struct{ x, y int }

// grid 单个房间的稀疏地块表
type grid struct {
	mu    sync.RWMutex
	tiles map[cell]Tile
}

// Store 全进程共享的地图存储，每个房间独立加锁
type Store struct {
	tileSize int
	width    int
	height   int

	mu    sync.RWMutex
	grids map[string]*grid
}

// NewStore 创建地图存储；地块数 = ⌈像素 / tileSize⌉，至少 1×1
func NewStore(tileSize, mapWidthPx, mapHeightPx int) *Store {
	if tileSize <= 0 {
		tileSize = 40
	}
	return &Store{
		tileSize: tileSize,
		width:    tilesFor(mapWidthPx, tileSize),
		height:   tilesFor(mapHeightPx, tileSize),
		grids:    make(map[string]*grid),
	}
}

func tilesFor(px, tileSize int) int {
	n := (px + tileSize - 1) / tileSize
	if n < 1 {
		return 1
	}
	return n
}

// TileSize 地块边长（像素）
func (s *Store) TileSize() int {
	return s.tileSize
}

// Size 返回房间地图的地块数；所有房间共享同一尺寸
func (s *Store) Size(roomID string) (w, h int) {
	return s.width, s.height
}

// Bounds 返回房间地图的像素范围
func (s *Store) Bounds(roomID string) (maxX, maxY float64) {
	return float64(s.width * s.tileSize), float64(s.height * s.tileSize)
}

// GetOrCreate 返回房间地图快照，首次访问时生成默认地图
func (s *Store) GetOrCreate(roomID string) Snapshot {
	g := s.gridFor(roomID)

	g.mu.RLock()
	tiles := make([]Tile, 0, len(g.tiles))
	for _, t := range g.tiles {
		tiles = append(tiles, t)
	}
	g.mu.RUnlock()

	sort.Slice(tiles, func(i, j int) bool {
		if tiles[i].Y != tiles[j].Y {
			return tiles[i].Y < tiles[j].Y
		}
		return tiles[i].X < tiles[j].X
	})

	return Snapshot{
		RoomID:   roomID,
		Width:    s.width,
		Height:   s.height,
		TileSize: s.tileSize,
		Tiles:    tiles,
	}
}

// TileAt 查询地块；未记录的地块视为空地，越界同样返回空地
func (s *Store) TileAt(roomID string, tx, ty int) Tile {
	if !s.inRange(tx, ty) {
		return Tile{X: tx, Y: ty, Type: Empty}
	}
	g := s.gridFor(roomID)

	g.mu.RLock()
	defer g.mu.RUnlock()
	if t, ok := g.tiles[cell{tx, ty}]; ok {
		return t
	}
	return Tile{X: tx, Y: ty, Type: Empty}
}

// IsSolid 判断地块是否阻挡子弹；越界视为实心
func (s *Store) IsSolid(roomID string, tx, ty int) bool {
	if !s.inRange(tx, ty) {
		return true
	}
	return solid(s.TileAt(roomID, tx, ty))
}

func solid(t Tile) bool {
	switch t.Type {
	case IndestructibleWall:
		return true
	case DestructibleWall:
		return t.HP > 0
	default:
		return false
	}
}

// DamageDestructible 对可破坏墙体造成 1 点伤害
// 返回更新后的地块，hp 归零时地块变为空地；其他情况不做任何修改并返回 false
func (s *Store) DamageDestructible(roomID string, tx, ty int) (Tile, bool) {
	if !s.inRange(tx, ty) {
		return Tile{}, false
	}
	g := s.gridFor(roomID)

	g.mu.Lock()
	defer g.mu.Unlock()

	key := cell{tx, ty}
	t, ok := g.tiles[key]
	if !ok || t.Type != DestructibleWall || t.HP <= 0 {
		return Tile{}, false
	}

	t.HP--
	if t.HP == 0 {
		t.Type = Empty
		delete(g.tiles, key)
	} else {
		g.tiles[key] = t
	}
	return t, true
}

// SpawnPoints 四个角落的出生点（距边 1.5 个地块）
func (s *Store) SpawnPoints(roomID string) []Point {
	ts := float64(s.tileSize)
	w, h := float64(s.width), float64(s.height)
	return []Point{
		{X: ts * 1.5, Y: ts * 1.5},
		{X: ts * (w - 1.5), Y: ts * 1.5},
		{X: ts * 1.5, Y: ts * (h - 1.5)},
		{X: ts * (w - 1.5), Y: ts * (h - 1.5)},
	}
}

// Reset 丢弃房间地图，下次访问时重新生成
func (s *Store) Reset(roomID string) {
	s.mu.Lock()
	delete(s.grids, roomID)
	s.mu.Unlock()
}

func (s *Store) inRange(tx, ty int) bool {
	return tx >= 0 && ty >= 0 && tx < s.width && ty < s.height
}

func (s *Store) gridFor(roomID string) *grid {
	s.mu.RLock()
	g, ok := s.grids[roomID]
	s.mu.RUnlock()
	if ok {
		return g
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if g, ok := s.grids[roomID]; ok {
		return g
	}
	g = &grid{tiles: generateDefault(s.width, s.height)}
	s.grids[roomID] = g
	return g
}

// generateDefault 默认地图：边框不可破坏墙，内部每隔一格一块可破坏墙，中心十字形不可破坏墙
func generateDefault(w, h int) map[cell]Tile {
	tiles := make(map[cell]Tile)
	put := func(x, y int, typ TileType, hp int) {
		if x < 0 || y < 0 || x >= w || y >= h {
			return
		}
		tiles[cell{x, y}] = Tile{X: x, Y: y, Type: typ, HP: hp}
	}

	for x := 0; x < w; x++ {
		put(x, 0, IndestructibleWall, 0)
		put(x, h-1, IndestructibleWall, 0)
	}
	for y := 0; y < h; y++ {
		put(0, y, IndestructibleWall, 0)
		put(w-1, y, IndestructibleWall, 0)
	}

	for x := 2; x < w-2; x += 2 {
		for y := 2; y < h-2; y += 2 {
			put(x, y, DestructibleWall, DestructibleHP)
		}
	}

	cx, cy := w/2, h/2
	put(cx, cy, IndestructibleWall, 0)
	put(cx-1, cy, IndestructibleWall, 0)
	put(cx+1, cy, IndestructibleWall, 0)
	put(cx, cy-1, IndestructibleWall, 0)
	put(cx, cy+1, IndestructibleWall, 0)

	return tiles
}
