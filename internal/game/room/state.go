package room

import "github.com/palemoky/battle-tanks/internal/server/storage"

// Status 对局状态，只能前进：Waiting → InProgress → Finished
type Status string

const (
	StatusWaiting    Status = storage.StatusWaiting
	StatusInProgress Status = storage.StatusInProgress
	StatusFinished   Status = storage.StatusFinished
)

func (s Status) rank() int {
	switch s {
	case StatusInProgress:
		return 1
	case StatusFinished:
		return 2
	default:
		return 0
	}
}

// ParseStatus 解析持久化的状态字符串，未知值视为 Waiting
func ParseStatus(s string) Status {
	switch Status(s) {
	case StatusInProgress, StatusFinished:
		return Status(s)
	default:
		return StatusWaiting
	}
}

// CanAdvanceTo 是否允许从 s 转换到 next
func (s Status) CanAdvanceTo(next Status) bool {
	return next.rank() > s.rank()
}
