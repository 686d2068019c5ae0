package config

import (
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// 默认值
const (
	defaultHost           = "0.0.0.0"
	defaultPort           = 1780
	defaultMaxConnections = 10000
	defaultWireFormat     = "json"
	defaultRedisAddr      = "localhost:6379"
	defaultStorageDriver  = "redis"

	defaultTileSize       = 40
	defaultMapWidth       = 800
	defaultMapHeight      = 600
	defaultTickRate       = 60
	defaultMaxTickDeltaMs = 50
	defaultRoomIdleMin    = 10
	defaultRoomSweepSec   = 60

	defaultBulletMinIntervalMs = 500
	defaultBulletMaxActive     = 2
	defaultBulletMinSpeed      = 10
	defaultBulletMaxSpeed      = 1200

	defaultDispatchWorkers   = 4
	defaultDispatchQueueSize = 1024
	defaultDispatchTimeout   = 5

	defaultRateMaxPerSecond    = 10
	defaultRateMaxPerMinute    = 60
	defaultRateBanDuration     = 60
	defaultMessageMaxPerSecond = 60
)

// Config 服务端配置
type Config struct {
	Server   ServerConfig   `yaml:"server"`
	Redis    RedisConfig    `yaml:"redis"`
	Storage  StorageConfig  `yaml:"storage"`
	Game     GameConfig     `yaml:"game"`
	Security SecurityConfig `yaml:"security"`
	Log      LogConfig      `yaml:"log"`
}

// ServerConfig WebSocket 服务器配置
type ServerConfig struct {
	Host           string `yaml:"host"`
	Port           int    `yaml:"port"`
	MaxConnections int    `yaml:"max_connections"`
	WireFormat     string `yaml:"wire_format"` // json 或 protobuf
}

// RedisConfig Redis 配置
type RedisConfig struct {
	Addr     string `yaml:"addr"`
	Password string `yaml:"password"`
	DB       int    `yaml:"db"`
}

// StorageConfig 持久化会话存储配置
type StorageConfig struct {
	Driver string `yaml:"driver"` // redis 或 memory
}

// GameConfig 游戏配置
type GameConfig struct {
	TileSize       int            `yaml:"tile_size"`  // 像素
	MapWidth       int            `yaml:"map_width"`  // 像素
	MapHeight      int            `yaml:"map_height"` // 像素
	TickRate       int            `yaml:"tick_rate"`  // 每秒帧数
	MaxTickDeltaMs int            `yaml:"max_tick_delta_ms"`
	RoomIdleMin    int            `yaml:"room_idle_minutes"`   // 空房间保留时长
	RoomSweepSec   int            `yaml:"room_sweep_seconds"` // 空房间扫描间隔
	Bullet         BulletConfig   `yaml:"bullet"`
	Dispatch       DispatchConfig `yaml:"dispatch"`
}

// BulletConfig 子弹节流配置
type BulletConfig struct {
	MinIntervalMs int     `yaml:"min_interval_ms"`
	MaxActive     int     `yaml:"max_active"`
	MinSpeed      float64 `yaml:"min_speed"`
	MaxSpeed      float64 `yaml:"max_speed"`
}

// DispatchConfig 异步持久化任务配置
type DispatchConfig struct {
	Workers        int `yaml:"workers"`
	QueueSize      int `yaml:"queue_size"`
	TimeoutSeconds int `yaml:"timeout_seconds"`
}

// SecurityConfig 安全配置
type SecurityConfig struct {
	AllowedOrigins []string           `yaml:"allowed_origins"`
	RateLimit      RateLimitConfig    `yaml:"rate_limit"`
	MessageLimit   MessageLimitConfig `yaml:"message_limit"`
}

// RateLimitConfig 连接速率限制
type RateLimitConfig struct {
	MaxPerSecond int `yaml:"max_per_second"`
	MaxPerMinute int `yaml:"max_per_minute"`
	BanDuration  int `yaml:"ban_duration"` // 秒
}

// MessageLimitConfig 单连接消息速率限制
type MessageLimitConfig struct {
	MaxPerSecond int `yaml:"max_per_second"`
}

// LogConfig 日志配置
type LogConfig struct {
	File string `yaml:"file"` // 为空时输出到 stderr
}

// TickInterval 返回一帧的时长
func (c *GameConfig) TickInterval() time.Duration {
	if c.TickRate <= 0 {
		return time.Second / defaultTickRate
	}
	return time.Second / time.Duration(c.TickRate)
}

// MaxTickDelta 返回单帧 Δt 上限
func (c *GameConfig) MaxTickDelta() time.Duration {
	return time.Duration(c.MaxTickDeltaMs) * time.Millisecond
}

// RoomIdleTimeout 返回空房间被驱逐前的保留时长
func (c *GameConfig) RoomIdleTimeout() time.Duration {
	return time.Duration(c.RoomIdleMin) * time.Minute
}

// RoomSweepInterval 返回空房间扫描间隔
func (c *GameConfig) RoomSweepInterval() time.Duration {
	return time.Duration(c.RoomSweepSec) * time.Second
}

// MinIntervalDuration 返回同一射手两次开火的最小间隔
func (c *BulletConfig) MinIntervalDuration() time.Duration {
	return time.Duration(c.MinIntervalMs) * time.Millisecond
}

// TimeoutDuration 返回单个持久化任务的超时
func (c *DispatchConfig) TimeoutDuration() time.Duration {
	return time.Duration(c.TimeoutSeconds) * time.Second
}

// BanDurationTime 返回封禁时长
func (c *RateLimitConfig) BanDurationTime() time.Duration {
	return time.Duration(c.BanDuration) * time.Second
}

// Load 加载配置文件
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, err
	}

	cfg.applyEnv()
	cfg.applyDefaults()

	return &cfg, nil
}

// Default 返回默认配置，若存在 config.yaml 则优先使用
func Default() *Config {
	if cfg, err := Load("config.yaml"); err == nil {
		return cfg
	}

	// 文件不存在或解析失败都回退到内置默认值
	cfg := &Config{}
	cfg.applyEnv()
	cfg.applyDefaults()
	return cfg
}

func (c *Config) applyDefaults() {
	if c.Server.Host == "" {
		c.Server.Host = defaultHost
	}
	if c.Server.Port == 0 {
		c.Server.Port = defaultPort
	}
	if c.Server.MaxConnections == 0 {
		c.Server.MaxConnections = defaultMaxConnections
	}
	if c.Server.WireFormat == "" {
		c.Server.WireFormat = defaultWireFormat
	}
	if c.Redis.Addr == "" {
		c.Redis.Addr = defaultRedisAddr
	}
	if c.Storage.Driver == "" {
		c.Storage.Driver = defaultStorageDriver
	}

	g := &c.Game
	if g.TileSize == 0 {
		g.TileSize = defaultTileSize
	}
	if g.MapWidth == 0 {
		g.MapWidth = defaultMapWidth
	}
	if g.MapHeight == 0 {
		g.MapHeight = defaultMapHeight
	}
	if g.TickRate == 0 {
		g.TickRate = defaultTickRate
	}
	if g.MaxTickDeltaMs == 0 {
		g.MaxTickDeltaMs = defaultMaxTickDeltaMs
	}
	if g.RoomIdleMin == 0 {
		g.RoomIdleMin = defaultRoomIdleMin
	}
	if g.RoomSweepSec == 0 {
		g.RoomSweepSec = defaultRoomSweepSec
	}
	if g.Bullet.MinIntervalMs == 0 {
		g.Bullet.MinIntervalMs = defaultBulletMinIntervalMs
	}
	if g.Bullet.MaxActive == 0 {
		g.Bullet.MaxActive = defaultBulletMaxActive
	}
	if g.Bullet.MinSpeed == 0 {
		g.Bullet.MinSpeed = defaultBulletMinSpeed
	}
	if g.Bullet.MaxSpeed == 0 {
		g.Bullet.MaxSpeed = defaultBulletMaxSpeed
	}
	if g.Dispatch.Workers == 0 {
		g.Dispatch.Workers = defaultDispatchWorkers
	}
	if g.Dispatch.QueueSize == 0 {
		g.Dispatch.QueueSize = defaultDispatchQueueSize
	}
	if g.Dispatch.TimeoutSeconds == 0 {
		g.Dispatch.TimeoutSeconds = defaultDispatchTimeout
	}

	s := &c.Security
	if len(s.AllowedOrigins) == 0 {
		s.AllowedOrigins = []string{"*"}
	}
	if s.RateLimit.MaxPerSecond == 0 {
		s.RateLimit.MaxPerSecond = defaultRateMaxPerSecond
	}
	if s.RateLimit.MaxPerMinute == 0 {
		s.RateLimit.MaxPerMinute = defaultRateMaxPerMinute
	}
	if s.RateLimit.BanDuration == 0 {
		s.RateLimit.BanDuration = defaultRateBanDuration
	}
	if s.MessageLimit.MaxPerSecond == 0 {
		s.MessageLimit.MaxPerSecond = defaultMessageMaxPerSecond
	}
}

// applyEnv 环境变量覆盖配置文件
func (c *Config) applyEnv() {
	if v := os.Getenv("SERVER_HOST"); v != "" {
		c.Server.Host = v
	}
	if v, ok := envInt("SERVER_PORT"); ok {
		c.Server.Port = v
	}
	if v := os.Getenv("SERVER_WIRE_FORMAT"); v != "" {
		c.Server.WireFormat = v
	}
	if v := os.Getenv("REDIS_ADDR"); v != "" {
		c.Redis.Addr = v
	}
	if v := os.Getenv("REDIS_PASSWORD"); v != "" {
		c.Redis.Password = v
	}
	if v, ok := envInt("REDIS_DB"); ok {
		c.Redis.DB = v
	}
	if v := os.Getenv("STORAGE_DRIVER"); v != "" {
		c.Storage.Driver = v
	}
	if v, ok := envInt("GAME_TICK_RATE"); ok {
		c.Game.TickRate = v
	}
	if v := os.Getenv("SECURITY_ALLOWED_ORIGINS"); v != "" {
		var origins []string
		for _, o := range strings.Split(v, ",") {
			if o = strings.TrimSpace(o); o != "" {
				origins = append(origins, o)
			}
		}
		c.Security.AllowedOrigins = origins
	}
	if v := os.Getenv("LOG_FILE"); v != "" {
		c.Log.File = v
	}
}

func envInt(key string) (int, bool) {
	v := os.Getenv(key)
	if v == "" {
		return 0, false
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, false
	}
	return n, true
}
