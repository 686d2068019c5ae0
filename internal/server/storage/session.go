package storage

import (
	"context"
	"time"
)

// 对局状态（与 room.Status 的取值一致）
const (
	StatusWaiting    = "Waiting"
	StatusInProgress = "InProgress"
	StatusFinished   = "Finished"
)

// Session 持久化的对局会话，是房间元数据的权威来源
type Session struct {
	ID         string `json:"id"`
	Code       string `json:"code"`
	Name       string `json:"name"`
	MaxPlayers int    `json:"max_players"`
	IsPublic   bool   `json:"is_public"`
	Status     string `json:"status"`
	CreatedAt  int64  `json:"created_at"`
	StartedAt  int64  `json:"started_at,omitempty"`
	EndedAt    int64  `json:"ended_at,omitempty"`
}

// FinalScore 对局结束时单个玩家的成绩
type FinalScore struct {
	PlayerID string `json:"player_id"`
	Points   int    `json:"points"`
	Kills    int    `json:"kills"`
	Deaths   int    `json:"deaths"`
	IsWinner bool   `json:"is_winner"`
}

// PlayerStats 玩家累计统计
type PlayerStats struct {
	PlayerID     string `json:"player_id"`
	TotalGames   int    `json:"total_games"`
	Wins         int    `json:"wins"`
	Kills        int    `json:"kills"`
	Deaths       int    `json:"deaths"`
	TotalPoints  int    `json:"total_points"`
	LastPlayedAt int64  `json:"last_played_at"`
}

// LeaderboardEntry 排行榜条目
type LeaderboardEntry struct {
	Rank        int     `json:"rank"`
	PlayerID    string  `json:"player_id"`
	TotalPoints int     `json:"total_points"`
	Wins        int     `json:"wins"`
	WinRate     float64 `json:"win_rate"`
}

// SessionStore 持久化会话存储
// 查询不存在的会话返回 (nil, nil)
type SessionStore interface {
	FindByCode(ctx context.Context, code string) (*Session, error)
	FindByID(ctx context.Context, id string) (*Session, error)
	CreateSession(ctx context.Context, name string, maxPlayers int, isPublic bool) (*Session, error)
	DeleteSession(ctx context.Context, id string) error

	UpdateRoomStatus(ctx context.Context, roomID, status string, startedAt, endedAt *time.Time) error
	AddPoints(ctx context.Context, roomID, playerID string, points int) error
	RegisterKill(ctx context.Context, roomID, shooterID, targetID string, points int) error
	PersistFinalScores(ctx context.Context, roomID string, scores []FinalScore) error

	AppendPowerUpEvent(ctx context.Context, topic string, payload []byte) error

	GetPlayerStats(ctx context.Context, playerID string) (*PlayerStats, error)
	GetLeaderboard(ctx context.Context, limit int) ([]*LeaderboardEntry, error)
}

const (
	roomCodeChars  = "ABCDEFGHJKLMNPQRSTUVWXYZ23456789"
	roomCodeLength = 6
)

func unixOrZero(t *time.Time) int64 {
	if t == nil {
		return 0
	}
	return t.UnixMilli()
}

var (
	_ SessionStore = (*RedisStore)(nil)
	_ SessionStore = (*MemoryStore)(nil)
)
