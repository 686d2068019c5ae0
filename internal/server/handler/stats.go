package handler

import (
	"context"
	"log"

	"github.com/palemoky/battle-tanks/internal/protocol"
	"github.com/palemoky/battle-tanks/internal/protocol/codec"
	"github.com/palemoky/battle-tanks/internal/types"
)

const (
	defaultLeaderboardLimit = 10
	maxLeaderboardLimit     = 50
)

// handleGetStats 获取玩家累计统计，未指定玩家时查询自己
func (h *Handler) handleGetStats(client types.ClientInterface, msg *protocol.Message) {
	playerID := client.GetID()
	if loc, ok := h.rooms.Lookup(client.GetID()); ok {
		playerID = loc.PlayerID
	}
	if payload, err := codec.ParsePayload[protocol.GetStatsPayload](msg); err == nil && payload.PlayerID != "" {
		playerID = payload.PlayerID
	}

	stats, err := h.sessions.GetPlayerStats(context.Background(), playerID)
	if err != nil {
		log.Printf("获取玩家 %s 统计失败: %v", playerID, err)
		client.SendMessage(codec.NewErrorMessage(protocol.ErrCodeUnknown))
		return
	}

	result := protocol.StatsResultPayload{PlayerID: playerID}
	if stats != nil {
		result.TotalGames = stats.TotalGames
		result.Wins = stats.Wins
		result.Kills = stats.Kills
		result.Deaths = stats.Deaths
		result.TotalPoints = stats.TotalPoints
		if stats.TotalGames > 0 {
			result.WinRate = float64(stats.Wins) / float64(stats.TotalGames) * 100
		}
	}

	client.SendMessage(codec.MustNewMessage(protocol.MsgStatsResult, result))
}

// handleGetLeaderboard 获取累计得分排行榜
func (h *Handler) handleGetLeaderboard(client types.ClientInterface, msg *protocol.Message) {
	limit := defaultLeaderboardLimit
	if payload, err := codec.ParsePayload[protocol.GetLeaderboardPayload](msg); err == nil && payload.Limit > 0 {
		limit = min(payload.Limit, maxLeaderboardLimit)
	}

	entries, err := h.sessions.GetLeaderboard(context.Background(), limit)
	if err != nil {
		log.Printf("获取排行榜失败: %v", err)
		client.SendMessage(codec.NewErrorMessage(protocol.ErrCodeUnknown))
		return
	}

	result := protocol.LeaderboardResultPayload{Entries: make([]protocol.LeaderboardEntry, 0, len(entries))}
	for _, e := range entries {
		result.Entries = append(result.Entries, protocol.LeaderboardEntry{
			Rank:        e.Rank,
			PlayerID:    e.PlayerID,
			TotalPoints: e.TotalPoints,
			Wins:        e.Wins,
			WinRate:     e.WinRate,
		})
	}

	client.SendMessage(codec.MustNewMessage(protocol.MsgLeaderboardResult, result))
}
