package server

import (
	"log"

	"github.com/palemoky/battle-tanks/internal/protocol"
	"github.com/palemoky/battle-tanks/internal/protocol/codec"
	"github.com/palemoky/battle-tanks/internal/types"
)

// GetOnlineCount 获取在线人数（按需调用）
func (s *Server) GetOnlineCount() int {
	s.clientsMu.RLock()
	defer s.clientsMu.RUnlock()
	return len(s.clients)
}

// JoinGroup 把连接加入房间广播组
func (s *Server) JoinGroup(roomCode string, client types.ClientInterface) {
	s.groupsMu.Lock()
	defer s.groupsMu.Unlock()

	g, ok := s.groups[roomCode]
	if !ok {
		g = make(map[string]types.ClientInterface)
		s.groups[roomCode] = g
	}
	g[client.GetID()] = client
}

// LeaveGroup 把连接移出房间广播组，空组随之删除
func (s *Server) LeaveGroup(roomCode string, client types.ClientInterface) {
	s.groupsMu.Lock()
	defer s.groupsMu.Unlock()

	g, ok := s.groups[roomCode]
	if !ok {
		return
	}
	delete(g, client.GetID())
	if len(g) == 0 {
		delete(s.groups, roomCode)
	}
}

// GroupSize 房间广播组的连接数
func (s *Server) GroupSize(roomCode string) int {
	s.groupsMu.RLock()
	defer s.groupsMu.RUnlock()
	return len(s.groups[roomCode])
}

// Publish 向房间广播事件；消息只编码一次，慢连接不会阻塞调用方
func (s *Server) Publish(roomCode string, msgType protocol.MessageType, payload any) {
	msg, err := codec.NewMessage(msgType, payload)
	if err != nil {
		log.Printf("⚠️ 事件 %s 编码失败: %v", msgType, err)
		return
	}

	s.groupsMu.RLock()
	members := make([]types.ClientInterface, 0, len(s.groups[roomCode]))
	for _, c := range s.groups[roomCode] {
		members = append(members, c)
	}
	s.groupsMu.RUnlock()

	if len(members) == 0 {
		return
	}

	var data []byte
	for _, c := range members {
		wc, ok := c.(*Client)
		if !ok {
			c.SendMessage(msg)
			continue
		}
		if data == nil {
			if data, err = codec.Encode(s.format, msg); err != nil {
				log.Printf("⚠️ 事件 %s 编码失败: %v", msgType, err)
				return
			}
		}
		wc.sendRaw(data)
	}
}
