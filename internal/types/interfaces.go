package types

import (
	"github.com/palemoky/battle-tanks/internal/protocol"
)

// Publisher 房间事件下发（按房间码分组，至多一次投递）
type Publisher interface {
	Publish(roomCode string, msgType protocol.MessageType, payload any)
}

// ServerInterface 定义服务器接口（用于打破循环依赖）
type ServerInterface interface {
	Publisher
	IsMaintenanceMode() bool
	GetOnlineCount() int
	JoinGroup(roomCode string, client ClientInterface)
	LeaveGroup(roomCode string, client ClientInterface)
}

// ClientInterface 定义客户端接口
type ClientInterface interface {
	GetID() string
	GetRoom() string
	SetRoom(code string)
	SendMessage(msg *protocol.Message)
	Close()
}
