package storage

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math/rand/v2"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

const (
	// Redis key 前缀
	sessionKeyPrefix  = "session:"
	sessionCodePrefix = "session:code:"
	pointsKeyPrefix   = "session:points:"
	killsKeyPrefix    = "session:kills:"
	deathsKeyPrefix   = "session:deaths:"
	resultsKeyPrefix  = "session:results:"
	playerStatsPrefix = "player:stats:"
	leaderboardKey    = "leaderboard:points"
	powerUpEventsKey  = "powerups"

	// 会话数据过期时间
	sessionExpiration = 24 * time.Hour
	// 道具事件日志保留条数
	powerUpEventsCap = 1000
)

// ErrSessionNotFound 会话不存在
var ErrSessionNotFound = errors.New("session not found")

// RedisStore Redis 会话存储
type RedisStore struct {
	client *redis.Client
}

// NewRedisStore 创建 Redis 存储
func NewRedisStore(client *redis.Client) *RedisStore {
	return &RedisStore{client: client}
}

// --- 会话 ---

// FindByCode 按房间码查找会话
func (rs *RedisStore) FindByCode(ctx context.Context, code string) (*Session, error) {
	id, err := rs.client.Get(ctx, sessionCodePrefix+code).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, nil // 会话不存在
		}
		return nil, err
	}
	return rs.FindByID(ctx, id)
}

// FindByID 按 ID 查找会话
func (rs *RedisStore) FindByID(ctx context.Context, id string) (*Session, error) {
	data, err := rs.client.Get(ctx, sessionKeyPrefix+id).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, nil // 会话不存在
		}
		return nil, err
	}

	var session Session
	if err := json.Unmarshal(data, &session); err != nil {
		return nil, fmt.Errorf("反序列化会话数据失败: %w", err)
	}
	return &session, nil
}

// CreateSession 创建会话并分配唯一房间码
func (rs *RedisStore) CreateSession(ctx context.Context, name string, maxPlayers int, isPublic bool) (*Session, error) {
	session := &Session{
		ID:         uuid.NewString(),
		Name:       name,
		MaxPlayers: maxPlayers,
		IsPublic:   isPublic,
		Status:     StatusWaiting,
		CreatedAt:  time.Now().UnixMilli(),
	}

	for attempt := 0; ; attempt++ {
		if attempt >= 16 {
			return nil, fmt.Errorf("分配房间码失败")
		}
		code := generateRoomCode()
		ok, err := rs.client.SetNX(ctx, sessionCodePrefix+code, session.ID, sessionExpiration).Result()
		if err != nil {
			return nil, err
		}
		if ok {
			session.Code = code
			break
		}
	}

	if err := rs.saveSession(ctx, session); err != nil {
		return nil, err
	}
	return session, nil
}

// DeleteSession 删除会话及其计分数据
func (rs *RedisStore) DeleteSession(ctx context.Context, id string) error {
	session, err := rs.FindByID(ctx, id)
	if err != nil {
		return err
	}

	keys := []string{
		sessionKeyPrefix + id,
		pointsKeyPrefix + id,
		killsKeyPrefix + id,
		deathsKeyPrefix + id,
		resultsKeyPrefix + id,
	}
	if session != nil {
		keys = append(keys, sessionCodePrefix+session.Code)
	}
	return rs.client.Del(ctx, keys...).Err()
}

// UpdateRoomStatus 更新会话状态，startedAt/endedAt 为 nil 时保持原值
func (rs *RedisStore) UpdateRoomStatus(ctx context.Context, roomID, status string, startedAt, endedAt *time.Time) error {
	session, err := rs.FindByID(ctx, roomID)
	if err != nil {
		return err
	}
	if session == nil {
		return fmt.Errorf("更新会话 %s 状态: %w", roomID, ErrSessionNotFound)
	}

	session.Status = status
	if startedAt != nil {
		session.StartedAt = unixOrZero(startedAt)
	}
	if endedAt != nil {
		session.EndedAt = unixOrZero(endedAt)
	}
	return rs.saveSession(ctx, session)
}

func (rs *RedisStore) saveSession(ctx context.Context, session *Session) error {
	data, err := json.Marshal(session)
	if err != nil {
		return fmt.Errorf("序列化会话数据失败: %w", err)
	}
	return rs.client.Set(ctx, sessionKeyPrefix+session.ID, data, sessionExpiration).Err()
}

// --- 计分 ---

// AddPoints 累加玩家在本局的得分
func (rs *RedisStore) AddPoints(ctx context.Context, roomID, playerID string, points int) error {
	key := pointsKeyPrefix + roomID
	pipe := rs.client.TxPipeline()
	pipe.HIncrBy(ctx, key, playerID, int64(points))
	pipe.Expire(ctx, key, sessionExpiration)
	_, err := pipe.Exec(ctx)
	return err
}

// RegisterKill 记录一次击杀并为射手加分
func (rs *RedisStore) RegisterKill(ctx context.Context, roomID, shooterID, targetID string, points int) error {
	pipe := rs.client.TxPipeline()
	pipe.HIncrBy(ctx, pointsKeyPrefix+roomID, shooterID, int64(points))
	pipe.HIncrBy(ctx, killsKeyPrefix+roomID, shooterID, 1)
	pipe.HIncrBy(ctx, deathsKeyPrefix+roomID, targetID, 1)
	for _, prefix := range []string{pointsKeyPrefix, killsKeyPrefix, deathsKeyPrefix} {
		pipe.Expire(ctx, prefix+roomID, sessionExpiration)
	}
	_, err := pipe.Exec(ctx)
	return err
}

// RoomPoints 读取本局的累计得分
func (rs *RedisStore) RoomPoints(ctx context.Context, roomID string) (map[string]int, error) {
	return rs.intHash(ctx, pointsKeyPrefix+roomID)
}

// RoomKills 读取本局的击杀数
func (rs *RedisStore) RoomKills(ctx context.Context, roomID string) (map[string]int, error) {
	return rs.intHash(ctx, killsKeyPrefix+roomID)
}

func (rs *RedisStore) intHash(ctx context.Context, key string) (map[string]int, error) {
	raw, err := rs.client.HGetAll(ctx, key).Result()
	if err != nil {
		return nil, err
	}
	out := make(map[string]int, len(raw))
	for k, v := range raw {
		n, err := strconv.Atoi(v)
		if err != nil {
			return nil, fmt.Errorf("解析 %s[%s] 失败: %w", key, k, err)
		}
		out[k] = n
	}
	return out, nil
}

// PersistFinalScores 保存最终成绩并更新玩家统计与排行榜
func (rs *RedisStore) PersistFinalScores(ctx context.Context, roomID string, scores []FinalScore) error {
	data, err := json.Marshal(scores)
	if err != nil {
		return fmt.Errorf("序列化最终成绩失败: %w", err)
	}
	if err := rs.client.Set(ctx, resultsKeyPrefix+roomID, data, sessionExpiration).Err(); err != nil {
		return err
	}

	now := time.Now().Unix()
	for _, s := range scores {
		stats, err := rs.GetPlayerStats(ctx, s.PlayerID)
		if err != nil {
			return err
		}
		if stats == nil {
			stats = &PlayerStats{PlayerID: s.PlayerID}
		}

		stats.TotalGames++
		stats.Kills += s.Kills
		stats.Deaths += s.Deaths
		stats.TotalPoints += s.Points
		stats.LastPlayedAt = now
		if s.IsWinner {
			stats.Wins++
		}

		if err := rs.savePlayerStats(ctx, stats); err != nil {
			return err
		}
		if err := rs.client.ZAdd(ctx, leaderboardKey, redis.Z{
			Score:  float64(stats.TotalPoints),
			Member: stats.PlayerID,
		}).Err(); err != nil {
			return err
		}
	}
	return nil
}

// FinalScores 读取已保存的最终成绩
func (rs *RedisStore) FinalScores(ctx context.Context, roomID string) ([]FinalScore, error) {
	data, err := rs.client.Get(ctx, resultsKeyPrefix+roomID).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, nil
		}
		return nil, err
	}
	var scores []FinalScore
	if err := json.Unmarshal(data, &scores); err != nil {
		return nil, err
	}
	return scores, nil
}

// --- 排行榜 ---

// GetPlayerStats 获取玩家统计
func (rs *RedisStore) GetPlayerStats(ctx context.Context, playerID string) (*PlayerStats, error) {
	data, err := rs.client.Get(ctx, playerStatsPrefix+playerID).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, nil
		}
		return nil, err
	}

	var stats PlayerStats
	if err := json.Unmarshal(data, &stats); err != nil {
		return nil, err
	}
	return &stats, nil
}

func (rs *RedisStore) savePlayerStats(ctx context.Context, stats *PlayerStats) error {
	data, err := json.Marshal(stats)
	if err != nil {
		return err
	}
	return rs.client.Set(ctx, playerStatsPrefix+stats.PlayerID, data, 0).Err()
}

// GetLeaderboard 获取总得分排行榜（从高到低）
func (rs *RedisStore) GetLeaderboard(ctx context.Context, limit int) ([]*LeaderboardEntry, error) {
	if limit <= 0 {
		return nil, nil
	}
	results, err := rs.client.ZRevRangeWithScores(ctx, leaderboardKey, 0, int64(limit-1)).Result()
	if err != nil {
		return nil, err
	}

	entries := make([]*LeaderboardEntry, 0, len(results))
	for i, result := range results {
		playerID, ok := result.Member.(string)
		if !ok {
			continue
		}
		stats, err := rs.GetPlayerStats(ctx, playerID)
		if err != nil || stats == nil {
			continue
		}
		entries = append(entries, newLeaderboardEntry(i+1, stats))
	}
	return entries, nil
}

// GetPlayerRank 获取玩家排名，未上榜返回 -1
func (rs *RedisStore) GetPlayerRank(ctx context.Context, playerID string) (int64, error) {
	rank, err := rs.client.ZRevRank(ctx, leaderboardKey, playerID).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return -1, nil // 未上榜
		}
		return -1, err
	}
	return rank + 1, nil // Redis 排名从 0 开始
}

func newLeaderboardEntry(rank int, stats *PlayerStats) *LeaderboardEntry {
	winRate := 0.0
	if stats.TotalGames > 0 {
		winRate = float64(stats.Wins) / float64(stats.TotalGames) * 100
	}
	return &LeaderboardEntry{
		Rank:        rank,
		PlayerID:    stats.PlayerID,
		TotalPoints: stats.TotalPoints,
		Wins:        stats.Wins,
		WinRate:     winRate,
	}
}

// --- 道具事件日志 ---

// AppendPowerUpEvent 追加一条道具事件，只保留最近的若干条
func (rs *RedisStore) AppendPowerUpEvent(ctx context.Context, topic string, payload []byte) error {
	entry, err := json.Marshal(map[string]any{
		"topic":   topic,
		"payload": json.RawMessage(payload),
		"at":      time.Now().UnixMilli(),
	})
	if err != nil {
		return err
	}

	pipe := rs.client.Pipeline()
	pipe.RPush(ctx, powerUpEventsKey, entry)
	pipe.LTrim(ctx, powerUpEventsKey, -powerUpEventsCap, -1)
	_, err = pipe.Exec(ctx)
	return err
}

// PowerUpEvents 读取道具事件日志
func (rs *RedisStore) PowerUpEvents(ctx context.Context) ([]string, error) {
	return rs.client.LRange(ctx, powerUpEventsKey, 0, -1).Result()
}

// --- 辅助方法 ---

// Ping 检查 Redis 连接
func (rs *RedisStore) Ping(ctx context.Context) error {
	return rs.client.Ping(ctx).Err()
}

// Close 关闭 Redis 连接
func (rs *RedisStore) Close() error {
	return rs.client.Close()
}

// generateRoomCode 生成房间号
func generateRoomCode() string {
	code := make([]byte, roomCodeLength)
	for i := range code {
		code[i] = roomCodeChars[rand.IntN(len(roomCodeChars))]
	}
	return string(code)
}
