package handler

import (
	"context"
	"log"

	"github.com/palemoky/battle-tanks/internal/game/room"
	"github.com/palemoky/battle-tanks/internal/protocol"
	"github.com/palemoky/battle-tanks/internal/protocol/codec"
	"github.com/palemoky/battle-tanks/internal/types"
)

// handleJoinRoom 处理加入房间
func (h *Handler) handleJoinRoom(client types.ClientInterface, msg *protocol.Message) {
	// 维护模式检查
	if h.server.IsMaintenanceMode() {
		client.SendMessage(codec.NewErrorMessage(protocol.ErrCodeServerMaintenance))
		return
	}

	payload, err := codec.ParsePayload[protocol.JoinRoomPayload](msg)
	if err != nil || payload.RoomCode == "" {
		client.SendMessage(codec.NewErrorMessage(protocol.ErrCodeInvalidMsg))
		return
	}

	playerID := payload.PlayerID
	if playerID == "" {
		playerID = client.GetID()
	}
	username := payload.Username
	if username == "" {
		username = defaultUsername(playerID)
	}

	ctx := context.Background()
	// 如果已在房间中，目标房间可加入时才离开
	if client.GetRoom() != "" {
		if err := h.rooms.CheckJoin(ctx, payload.RoomCode, playerID); err != nil {
			sendError(client, err)
			return
		}
		h.leave(client)
	}

	player, err := h.rooms.Join(ctx, payload.RoomCode, playerID, username, client.GetID())
	if err != nil {
		sendError(client, err)
		return
	}

	snap, ok := h.rooms.ByCode(payload.RoomCode)
	if !ok {
		// 加入后房间被清理
		h.rooms.LeaveByConnection(client.GetID())
		client.SendMessage(codec.NewErrorMessage(protocol.ErrCodeRoomNotFound))
		return
	}

	client.SetRoom(snap.Code)
	h.server.JoinGroup(snap.Code, client)
	h.server.Publish(snap.Code, protocol.MsgPlayerJoined, protocol.PlayerJoinedPayload{
		Player: h.playerInfo(snap.RoomID, player),
	})

	client.SendMessage(codec.MustNewMessage(protocol.MsgRoomSnapshot, h.roomSnapshot(snap)))
	client.SendMessage(codec.MustNewMessage(protocol.MsgMapSnapshot, mapSnapshot(h.tiles.GetOrCreate(snap.RoomID))))

	// 房间里至少要有一个道具
	if len(h.powerUps.Active(snap.Code)) == 0 {
		pu := h.powerUps.SpawnRandom(snap.Code, snap.RoomID)
		h.server.Publish(snap.Code, protocol.MsgPowerUpSpawned, protocol.PowerUpSpawnedPayload{PowerUp: powerUpInfo(pu)})
	}
	client.SendMessage(codec.MustNewMessage(protocol.MsgPowerUpsSnapshot, protocol.PowerUpsSnapshotPayload{
		PowerUps: powerUpInfos(h.powerUps.Active(snap.Code)),
	}))

	if snap.Status == room.StatusWaiting && len(snap.Players) >= 2 {
		h.startMatch(snap)
	}
}

// startMatch 第二名玩家加入后对局开始
func (h *Handler) startMatch(snap room.Snapshot) {
	if !h.rooms.Advance(snap.RoomID, room.StatusInProgress) {
		return
	}

	roomID := snap.RoomID
	startedAt := h.now()
	h.jobs.Go("update_room_status", func(ctx context.Context) {
		if err := h.sessions.UpdateRoomStatus(ctx, roomID, string(room.StatusInProgress), &startedAt, nil); err != nil {
			log.Printf("⚠️ 更新房间 %s 状态失败: %v", roomID, err)
		}
	})

	h.server.Publish(snap.Code, protocol.MsgRoomStatus, protocol.RoomStatusPayload{
		RoomID: roomID,
		Status: string(room.StatusInProgress),
	})
}

// handleLeaveRoom 处理离开房间
func (h *Handler) handleLeaveRoom(client types.ClientInterface) {
	if _, ok := h.rooms.Lookup(client.GetID()); !ok {
		client.SendMessage(codec.NewErrorMessage(protocol.ErrCodeNotInRoom))
		return
	}
	h.leave(client)
}

// leave 从注册表和广播组移除连接；未加入房间时不做任何操作
func (h *Handler) leave(client types.ClientInterface) {
	if code := client.GetRoom(); code != "" {
		h.server.LeaveGroup(code, client)
		client.SetRoom("")
	}

	loc, ok := h.rooms.LeaveByConnection(client.GetID())
	if !ok {
		return
	}
	h.server.Publish(loc.RoomCode, protocol.MsgPlayerLeft, protocol.PlayerLeftPayload{PlayerID: loc.PlayerID})
}

func defaultUsername(playerID string) string {
	if len(playerID) > 8 {
		playerID = playerID[:8]
	}
	return "Player-" + playerID
}
