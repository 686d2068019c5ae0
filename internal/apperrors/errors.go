package apperrors

import (
	"github.com/palemoky/battle-tanks/internal/protocol"
)

// GameError 游戏错误（房间注册表和命令处理器共享）
type GameError struct {
	Code    int
	Message string
}

func (e *GameError) Error() string {
	return e.Message
}

// 预定义错误
var (
	ErrRoomNotFound  = &GameError{Code: protocol.ErrCodeRoomNotFound, Message: "room_not_found"}
	ErrRoomFull      = &GameError{Code: protocol.ErrCodeRoomFull, Message: "room_full"}
	ErrNotInRoom     = &GameError{Code: protocol.ErrCodeNotInRoom, Message: "not_in_room"}
	ErrAlreadyInRoom = &GameError{Code: protocol.ErrCodeAlreadyInRoom, Message: "already_in_room"}
	ErrGameFinished  = &GameError{Code: protocol.ErrCodeGameFinished, Message: "game_finished"}
)
