package protocol

// 错误码
const (
	ErrCodeUnknown           = 1000
	ErrCodeInvalidMsg        = 1001
	ErrCodeRateLimit         = 1002 // 速率限制
	ErrCodeRoomNotFound      = 2001
	ErrCodeRoomFull          = 2002
	ErrCodeNotInRoom         = 2003
	ErrCodeAlreadyInRoom     = 2004
	ErrCodeGameFinished      = 3001 // 对局已结束
	ErrCodeServerMaintenance = 5003 // 服务器维护中
)

// ErrorMessages 错误码对应的消息
var ErrorMessages = map[int]string{
	ErrCodeUnknown:           "unknown_error",
	ErrCodeInvalidMsg:        "invalid_message",
	ErrCodeRateLimit:         "rate_limited",
	ErrCodeRoomNotFound:      "room_not_found",
	ErrCodeRoomFull:          "room_full",
	ErrCodeNotInRoom:         "not_in_room",
	ErrCodeAlreadyInRoom:     "already_in_room",
	ErrCodeGameFinished:      "game_finished",
	ErrCodeServerMaintenance: "server_maintenance",
}
