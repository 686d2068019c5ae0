package protocol

// --- 客户端请求 Payloads ---

// PingPayload 心跳请求
type PingPayload struct {
	Timestamp int64 `json:"timestamp"` // 客户端时间戳（毫秒）
}

// JoinRoomPayload 加入房间请求
type JoinRoomPayload struct {
	RoomCode string `json:"room_code"`
	PlayerID string `json:"player_id,omitempty"` // 为空时使用连接 ID
	Username string `json:"username,omitempty"`
}

// MovePayload 移动请求
type MovePayload struct {
	X         float64 `json:"x"`
	Y         float64 `json:"y"`
	Rotation  float64 `json:"rotation"`            // 弧度
	Timestamp int64   `json:"timestamp,omitempty"` // 客户端时间戳（毫秒）
}

// SpawnBulletPayload 开火请求
type SpawnBulletPayload struct {
	X         float64 `json:"x"`
	Y         float64 `json:"y"`
	Direction float64 `json:"direction"` // 弧度
	Speed     float64 `json:"speed"`     // 像素/秒
}

// GetStatsPayload 查询个人统计，PlayerID 为空时查询自己
type GetStatsPayload struct {
	PlayerID string `json:"player_id,omitempty"`
}

// GetLeaderboardPayload 查询排行榜
type GetLeaderboardPayload struct {
	Limit int `json:"limit"`
}

// --- 服务端响应 Payloads ---

// ConnectedPayload 连接成功响应
type ConnectedPayload struct {
	ConnectionID string `json:"connection_id"`
}

// PongPayload 心跳响应
type PongPayload struct {
	ClientTimestamp int64 `json:"client_timestamp"` // 客户端发送的时间戳
	ServerTimestamp int64 `json:"server_timestamp"` // 服务器时间戳（毫秒）
}

// RoomSnapshotPayload 房间快照
type RoomSnapshotPayload struct {
	RoomID     string       `json:"room_id"`
	RoomCode   string       `json:"room_code"`
	Name       string       `json:"name"`
	Status     string       `json:"status"`
	MaxPlayers int          `json:"max_players"`
	Players    []PlayerInfo `json:"players"`
	Bullets    []BulletInfo `json:"bullets"`
}

// MapSnapshotPayload 地图快照（只包含非空地块）
type MapSnapshotPayload struct {
	RoomID   string     `json:"room_id"`
	Width    int        `json:"width"`     // 地块数
	Height   int        `json:"height"`    // 地块数
	TileSize int        `json:"tile_size"` // 像素
	Tiles    []TileInfo `json:"tiles"`
}

// PowerUpsSnapshotPayload 当前可拾取道具
type PowerUpsSnapshotPayload struct {
	PowerUps []PowerUpInfo `json:"power_ups"`
}

// PlayerJoinedPayload 玩家加入通知
type PlayerJoinedPayload struct {
	Player PlayerInfo `json:"player"`
}

// PlayerLeftPayload 玩家离开通知
type PlayerLeftPayload struct {
	PlayerID string `json:"player_id"`
}

// RoomStatusPayload 房间状态变化
type RoomStatusPayload struct {
	RoomID string `json:"room_id"`
	Status string `json:"status"`
}

// PlayerMovedPayload 玩家移动通知
type PlayerMovedPayload struct {
	PlayerID  string  `json:"player_id"`
	X         float64 `json:"x"`
	Y         float64 `json:"y"`
	Rotation  float64 `json:"rotation"`
	Timestamp int64   `json:"timestamp"`
}

// BulletSpawnedPayload 子弹生成通知
type BulletSpawnedPayload struct {
	Bullet BulletInfo `json:"bullet"`
}

// BulletDespawnedPayload 子弹消失通知
type BulletDespawnedPayload struct {
	BulletID string `json:"bullet_id"`
	Reason   string `json:"reason"` // out/wall/hit/room_gone
}

// MapTileUpdatedPayload 地块变化通知
type MapTileUpdatedPayload struct {
	RoomID string `json:"room_id"`
	X      int    `json:"x"`
	Y      int    `json:"y"`
	Type   int    `json:"type"`
	HP     int    `json:"hp"`
}

// PlayerScoredPayload 得分变化通知
type PlayerScoredPayload struct {
	PlayerID string `json:"player_id"`
	Score    int    `json:"score"` // 累计得分
}

// PlayerLifeLostPayload 生命变化通知（拾取道具加命也复用此消息）
type PlayerLifeLostPayload struct {
	PlayerID   string `json:"player_id"`
	LivesAfter int    `json:"lives_after"`
	Eliminated bool   `json:"eliminated"`
}

// PlayerRespawnedPayload 玩家重生通知
type PlayerRespawnedPayload struct {
	PlayerID string  `json:"player_id"`
	X        float64 `json:"x"`
	Y        float64 `json:"y"`
}

// GameEndedPayload 对局结束通知
type GameEndedPayload struct {
	WinnerPlayerID string        `json:"winner_player_id"`
	Scores         []PlayerScore `json:"scores"` // 按得分从高到低
}

// PowerUpSpawnedPayload 道具生成通知
type PowerUpSpawnedPayload struct {
	PowerUp PowerUpInfo `json:"power_up"`
}

// PowerUpCollectedPayload 道具拾取通知
type PowerUpCollectedPayload struct {
	PowerUpID string `json:"power_up_id"`
	UserID    string `json:"user_id"`
}

// StatsResultPayload 个人统计
type StatsResultPayload struct {
	PlayerID    string  `json:"player_id"`
	TotalGames  int     `json:"total_games"`
	Wins        int     `json:"wins"`
	Kills       int     `json:"kills"`
	Deaths      int     `json:"deaths"`
	TotalPoints int     `json:"total_points"`
	WinRate     float64 `json:"win_rate"` // 百分比
}

// LeaderboardResultPayload 排行榜
type LeaderboardResultPayload struct {
	Entries []LeaderboardEntry `json:"entries"`
}

// ErrorPayload 错误响应
type ErrorPayload struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

// --- 通用数据结构 ---

// PlayerInfo 玩家信息（生命和得分取自计分板）
type PlayerInfo struct {
	PlayerID string  `json:"player_id"`
	Username string  `json:"username"`
	X        float64 `json:"x"`
	Y        float64 `json:"y"`
	Rotation float64 `json:"rotation"`
	Lives    int     `json:"lives"`
	Score    int     `json:"score"`
	Alive    bool    `json:"alive"`
}

// BulletInfo 子弹信息
type BulletInfo struct {
	BulletID  string  `json:"bullet_id"`
	RoomID    string  `json:"room_id"`
	ShooterID string  `json:"shooter_id"`
	X         float64 `json:"x"`
	Y         float64 `json:"y"`
	Direction float64 `json:"direction"`
	Speed     float64 `json:"speed"`
	SpawnedAt int64   `json:"spawned_at"` // 毫秒
	Active    bool    `json:"active"`
}

// TileInfo 地块信息
type TileInfo struct {
	X    int `json:"x"`
	Y    int `json:"y"`
	Type int `json:"type"` // 0=空 1=不可破坏 2=可破坏
	HP   int `json:"hp"`
}

// PowerUpInfo 道具信息
type PowerUpInfo struct {
	ID     string  `json:"id"`
	RoomID string  `json:"room_id"`
	Type   string  `json:"type"`
	X      float64 `json:"x"`
	Y      float64 `json:"y"`
}

// PlayerScore 最终得分条目
type PlayerScore struct {
	PlayerID string `json:"player_id"`
	Score    int    `json:"score"`
}

// LeaderboardEntry 排行榜条目
type LeaderboardEntry struct {
	Rank        int     `json:"rank"`
	PlayerID    string  `json:"player_id"`
	TotalPoints int     `json:"total_points"`
	Wins        int     `json:"wins"`
	WinRate     float64 `json:"win_rate"`
}
