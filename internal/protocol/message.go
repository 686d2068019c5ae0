package protocol

import "encoding/json"

// Message 基础消息结构
type Message struct {
	Type    MessageType     `json:"type"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

// MessageType 消息类型
type MessageType string

// 客户端 → 服务端 消息类型
const (
	// 连接操作
	MsgPing MessageType = "ping" // 心跳 ping

	// 房间操作
	MsgJoinRoom  MessageType = "join_room"  // 加入房间
	MsgLeaveRoom MessageType = "leave_room" // 离开房间

	// 游戏操作
	MsgMove        MessageType = "move"         // 坦克移动
	MsgSpawnBullet MessageType = "spawn_bullet" // 开火

	// 信息查询
	MsgGetStats       MessageType = "get_stats"       // 获取个人统计
	MsgGetLeaderboard MessageType = "get_leaderboard" // 获取排行榜
)

// 服务端 → 客户端 消息类型
const (
	// 连接相关
	MsgConnected MessageType = "connected" // 连接成功
	MsgPong      MessageType = "pong"      // 心跳 pong

	// 房间相关
	MsgRoomSnapshot     MessageType = "room_snapshot"      // 房间快照（仅发给加入者）
	MsgMapSnapshot      MessageType = "map_snapshot"       // 地图快照（仅发给加入者）
	MsgPowerUpsSnapshot MessageType = "power_ups_snapshot" // 道具快照（仅发给加入者）
	MsgPlayerJoined     MessageType = "player_joined"      // 玩家加入
	MsgPlayerLeft       MessageType = "player_left"        // 玩家离开
	MsgRoomStatus       MessageType = "room_status"        // 房间状态变化

	// 游戏流程
	MsgPlayerMoved      MessageType = "player_moved"       // 玩家移动
	MsgBulletSpawned    MessageType = "bullet_spawned"     // 子弹生成
	MsgBulletDespawned  MessageType = "bullet_despawned"   // 子弹消失
	MsgMapTileUpdated   MessageType = "map_tile_updated"   // 地块被击中
	MsgPlayerScored     MessageType = "player_scored"      // 得分变化
	MsgPlayerLifeLost   MessageType = "player_life_lost"   // 生命变化
	MsgPlayerRespawned  MessageType = "player_respawned"   // 玩家重生
	MsgGameEnded        MessageType = "game_ended"         // 对局结束
	MsgPowerUpSpawned   MessageType = "power_up_spawned"   // 道具生成
	MsgPowerUpCollected MessageType = "power_up_collected" // 道具被拾取

	// 信息查询
	MsgStatsResult       MessageType = "stats_result"       // 个人统计
	MsgLeaderboardResult MessageType = "leaderboard_result" // 排行榜

	// 错误
	MsgError MessageType = "error" // 错误消息
)

// 子弹消失原因
const (
	DespawnOut      = "out"
	DespawnWall     = "wall"
	DespawnHit      = "hit"
	DespawnRoomGone = "room_gone"
)
