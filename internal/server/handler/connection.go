package handler

import (
	"github.com/palemoky/battle-tanks/internal/protocol"
	"github.com/palemoky/battle-tanks/internal/protocol/codec"
	"github.com/palemoky/battle-tanks/internal/types"
)

// handlePing 处理心跳请求，用于客户端测量延迟
func (h *Handler) handlePing(client types.ClientInterface, msg *protocol.Message) {
	payload, err := codec.ParsePayload[protocol.PingPayload](msg)
	if err != nil {
		return
	}

	client.SendMessage(codec.MustNewMessage(protocol.MsgPong, protocol.PongPayload{
		ClientTimestamp: payload.Timestamp,
		ServerTimestamp: h.now().UnixMilli(),
	}))
}
