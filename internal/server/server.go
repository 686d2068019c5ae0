package server

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/redis/go-redis/v9"

	"github.com/palemoky/battle-tanks/internal/config"
	"github.com/palemoky/battle-tanks/internal/game/bullet"
	"github.com/palemoky/battle-tanks/internal/game/powerup"
	"github.com/palemoky/battle-tanks/internal/game/room"
	"github.com/palemoky/battle-tanks/internal/game/score"
	"github.com/palemoky/battle-tanks/internal/game/sim"
	"github.com/palemoky/battle-tanks/internal/game/tilemap"
	"github.com/palemoky/battle-tanks/internal/protocol/codec"
	"github.com/palemoky/battle-tanks/internal/server/handler"
	"github.com/palemoky/battle-tanks/internal/server/storage"
	"github.com/palemoky/battle-tanks/internal/types"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	// 来源由 OriginChecker 在升级前校验
	CheckOrigin: func(r *http.Request) bool {
		return true
	},
	EnableCompression: false,
}

// Server WebSocket 服务器
type Server struct {
	config *config.Config
	format codec.Format
	redis  *redis.Client // memory 驱动时为 nil

	sessions storage.SessionStore
	tiles    *tilemap.Store
	bullets  *bullet.Store
	scores   *score.Ledger
	powerUps *powerup.Store
	rooms    *room.Registry
	jobs     *sim.Dispatcher
	loop     *sim.Loop
	handler  *handler.Handler

	clients   map[string]*Client
	clientsMu sync.RWMutex

	// 按房间码分组的连接
	groups   map[string]map[string]types.ClientInterface
	groupsMu sync.RWMutex

	// 安全组件
	rateLimiter    *RateLimiter
	originChecker  *OriginChecker
	messageLimiter *MessageRateLimiter

	// 连接控制
	maxConnections int
	semaphore      chan struct{}

	// 维护模式
	maintenanceMode bool
	maintenanceMu   sync.RWMutex

	lifeMu     sync.Mutex
	httpServer *http.Server
	cancel     context.CancelFunc
	stopOnce   sync.Once
}

// NewServer 按配置选择会话存储并创建服务器
func NewServer(cfg *config.Config) (*Server, error) {
	if cfg.Storage.Driver == "memory" {
		log.Println("💾 使用内存会话存储")
		return NewServerWithStore(cfg, storage.NewMemoryStore(), nil), nil
	}

	rdb := redis.NewClient(&redis.Options{
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := rdb.Ping(ctx).Err(); err != nil {
		_ = rdb.Close()
		return nil, fmt.Errorf("redis 连接失败: %w", err)
	}

	return NewServerWithStore(cfg, storage.NewRedisStore(rdb), rdb), nil
}

// NewServerWithStore 使用给定的会话存储创建服务器；rdb 可为 nil
func NewServerWithStore(cfg *config.Config, sessions storage.SessionStore, rdb *redis.Client) *Server {
	g := cfg.Game
	s := &Server{
		config:   cfg,
		format:   codec.ParseFormat(cfg.Server.WireFormat),
		redis:    rdb,
		sessions: sessions,
		clients:  make(map[string]*Client),
		groups:   make(map[string]map[string]types.ClientInterface),
		rateLimiter: NewRateLimiter(
			cfg.Security.RateLimit.MaxPerSecond,
			cfg.Security.RateLimit.MaxPerMinute,
			cfg.Security.RateLimit.BanDurationTime(),
		),
		originChecker:  NewOriginChecker(cfg.Security.AllowedOrigins),
		messageLimiter: NewMessageRateLimiter(cfg.Security.MessageLimit.MaxPerSecond),
		maxConnections: cfg.Server.MaxConnections,
		semaphore:      make(chan struct{}, cfg.Server.MaxConnections),
	}

	s.tiles = tilemap.NewStore(g.TileSize, g.MapWidth, g.MapHeight)
	s.bullets = bullet.NewStore(bullet.Limits{
		MinInterval: g.Bullet.MinIntervalDuration(),
		MaxActive:   g.Bullet.MaxActive,
		MinSpeed:    g.Bullet.MinSpeed,
		MaxSpeed:    g.Bullet.MaxSpeed,
	})
	s.scores = score.NewLedger()
	s.powerUps = powerup.NewStore(s.tiles, sessions)
	s.rooms = room.NewRegistry(sessions, s.tiles)
	s.jobs = sim.NewDispatcher(g.Dispatch.Workers, g.Dispatch.QueueSize, g.Dispatch.TimeoutDuration())

	s.loop = sim.NewLoop(sim.Deps{
		Bullets:   s.bullets,
		Tiles:     s.tiles,
		Scores:    s.scores,
		Rooms:     s.rooms,
		Sessions:  sessions,
		Publisher: s,
		Jobs:      s.jobs,
	}, g.TickInterval(), g.MaxTickDelta())

	s.handler = handler.NewHandler(handler.HandlerDeps{
		Server:   s,
		Rooms:    s.rooms,
		Bullets:  s.bullets,
		Tiles:    s.tiles,
		Scores:   s.scores,
		PowerUps: s.powerUps,
		Sessions: sessions,
		Jobs:     s.jobs,
	})

	log.Printf("🔒 安全配置: 连接限制=%d/s, 消息限制=%d/s, 最大连接数=%d, 协议=%s",
		cfg.Security.RateLimit.MaxPerSecond, cfg.Security.MessageLimit.MaxPerSecond, cfg.Server.MaxConnections, s.format)

	return s
}

// Routes 返回 HTTP 路由
func (s *Server) Routes() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/ws", s.handleWebSocket)
	mux.HandleFunc("/health", s.handleHealth)
	return mux
}

// Start 启动模拟循环、房间清理和 HTTP 服务，阻塞直到服务关闭
func (s *Server) Start(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	addr := fmt.Sprintf("%s:%d", s.config.Server.Host, s.config.Server.Port)
	srv := &http.Server{
		Addr:              addr,
		Handler:           s.Routes(),
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       60 * time.Second,
	}
	s.lifeMu.Lock()
	s.cancel = cancel
	s.httpServer = srv
	s.lifeMu.Unlock()

	go s.loop.Run(ctx)
	go s.rooms.CleanupLoop(ctx, s.config.Game.RoomSweepInterval(), s.config.Game.RoomIdleTimeout(), s.onEvict)
	go s.monitorStats(ctx)

	log.Printf("🚀 服务器启动在 ws://%s/ws", addr)
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		cancel()
		return err
	}
	return nil
}

// onEvict 房间被驱逐后清理其他存储中的数据
func (s *Server) onEvict(snap room.Snapshot) {
	s.tiles.Reset(snap.RoomID)
	s.bullets.DespawnRoom(snap.Code)
	s.powerUps.ResetRoom(snap.Code)
	s.scores.ResetRoom(snap.RoomID)

	s.groupsMu.Lock()
	delete(s.groups, snap.Code)
	s.groupsMu.Unlock()
}
