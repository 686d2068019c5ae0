package handler

import (
	"errors"
	"log"
	"time"

	"github.com/palemoky/battle-tanks/internal/apperrors"
	"github.com/palemoky/battle-tanks/internal/game/bullet"
	"github.com/palemoky/battle-tanks/internal/game/powerup"
	"github.com/palemoky/battle-tanks/internal/game/room"
	"github.com/palemoky/battle-tanks/internal/game/score"
	"github.com/palemoky/battle-tanks/internal/game/sim"
	"github.com/palemoky/battle-tanks/internal/game/tilemap"
	"github.com/palemoky/battle-tanks/internal/logger"
	"github.com/palemoky/battle-tanks/internal/protocol"
	"github.com/palemoky/battle-tanks/internal/protocol/codec"
	"github.com/palemoky/battle-tanks/internal/server/storage"
	"github.com/palemoky/battle-tanks/internal/types"
)

// HandlerDeps 处理器依赖
type HandlerDeps struct {
	Server   types.ServerInterface
	Rooms    *room.Registry
	Bullets  *bullet.Store
	Tiles    *tilemap.Store
	Scores   *score.Ledger
	PowerUps *powerup.Store
	Sessions storage.SessionStore
	Jobs     sim.Jobs // 为 nil 时同步执行
}

// Handler 消息处理器
type Handler struct {
	server   types.ServerInterface
	rooms    *room.Registry
	bullets  *bullet.Store
	tiles    *tilemap.Store
	scores   *score.Ledger
	powerUps *powerup.Store
	sessions storage.SessionStore
	jobs     sim.Jobs
	now      func() time.Time
	handlers map[protocol.MessageType]handlerFunc
}

// handlerFunc 统一的处理器函数签名
type handlerFunc func(client types.ClientInterface, msg *protocol.Message)

// NewHandler 创建处理器
func NewHandler(deps HandlerDeps) *Handler {
	jobs := deps.Jobs
	if jobs == nil {
		jobs = sim.Inline{}
	}
	h := &Handler{
		server:   deps.Server,
		rooms:    deps.Rooms,
		bullets:  deps.Bullets,
		tiles:    deps.Tiles,
		scores:   deps.Scores,
		powerUps: deps.PowerUps,
		sessions: deps.Sessions,
		jobs:     jobs,
		now:      time.Now,
	}
	h.initHandlers()
	return h
}

// initHandlers 初始化消息处理器映射
func (h *Handler) initHandlers() {
	h.handlers = map[protocol.MessageType]handlerFunc{
		// 连接操作
		protocol.MsgPing: h.handlePing,

		// 房间操作
		protocol.MsgJoinRoom:  h.handleJoinRoom,
		protocol.MsgLeaveRoom: func(c types.ClientInterface, _ *protocol.Message) { h.handleLeaveRoom(c) },

		// 游戏操作
		protocol.MsgMove:        h.handleMove,
		protocol.MsgSpawnBullet: h.handleSpawnBullet,

		// 信息查询
		protocol.MsgGetStats:       h.handleGetStats,
		protocol.MsgGetLeaderboard: h.handleGetLeaderboard,
	}
}

// Handle 处理消息
func (h *Handler) Handle(client types.ClientInterface, msg *protocol.Message) {
	if handler, ok := h.handlers[msg.Type]; ok {
		handler(client, msg)
		return
	}

	log.Printf("⚠️  未知消息类型: '%s' (连接: %s, Payload长度=%d bytes)", msg.Type, client.GetID(), len(msg.Payload))
	client.SendMessage(codec.NewErrorMessage(protocol.ErrCodeInvalidMsg))
}

// HandleDisconnect 连接断开时离开房间
func (h *Handler) HandleDisconnect(client types.ClientInterface) {
	h.leave(client)
}

// sendError 把业务错误转换为错误码发给客户端
func sendError(client types.ClientInterface, err error) {
	var gameErr *apperrors.GameError
	if errors.As(err, &gameErr) {
		client.SendMessage(codec.NewErrorMessage(gameErr.Code))
		return
	}
	logger.LogError("连接 %s 请求失败: %v", client.GetID(), err)
	client.SendMessage(codec.NewErrorMessage(protocol.ErrCodeUnknown))
}
