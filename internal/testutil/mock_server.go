//go:build !production

package testutil

import (
	"sync"

	"github.com/stretchr/testify/mock"

	"github.com/palemoky/battle-tanks/internal/protocol"
	"github.com/palemoky/battle-tanks/internal/protocol/codec"
	"github.com/palemoky/battle-tanks/internal/types"
)

// MockServer 实现 types.ServerInterface 的 mock
type MockServer struct {
	mock.Mock
}

func (m *MockServer) Publish(roomCode string, msgType protocol.MessageType, payload any) {
	m.Called(roomCode, msgType, payload)
}

func (m *MockServer) IsMaintenanceMode() bool {
	args := m.Called()
	return args.Bool(0)
}

func (m *MockServer) GetOnlineCount() int {
	args := m.Called()
	return args.Int(0)
}

func (m *MockServer) JoinGroup(roomCode string, client types.ClientInterface) {
	m.Called(roomCode, client)
}

func (m *MockServer) LeaveGroup(roomCode string, client types.ClientInterface) {
	m.Called(roomCode, client)
}

// Published 一次房间事件
type Published struct {
	RoomCode string
	Type     protocol.MessageType
	Payload  any
}

// RecordingPublisher 按顺序记录所有事件的 types.Publisher
type RecordingPublisher struct {
	mu     sync.Mutex
	events []Published
}

func (p *RecordingPublisher) Publish(roomCode string, msgType protocol.MessageType, payload any) {
	p.mu.Lock()
	p.events = append(p.events, Published{RoomCode: roomCode, Type: msgType, Payload: payload})
	p.mu.Unlock()
}

// Events 已记录事件的副本
func (p *RecordingPublisher) Events() []Published {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]Published(nil), p.events...)
}

// Types 已记录事件的类型序列
func (p *RecordingPublisher) Types() []protocol.MessageType {
	events := p.Events()
	out := make([]protocol.MessageType, len(events))
	for i, e := range events {
		out[i] = e.Type
	}
	return out
}

// OfType 按类型过滤
func (p *RecordingPublisher) OfType(t protocol.MessageType) []Published {
	var out []Published
	for _, e := range p.Events() {
		if e.Type == t {
			out = append(out, e)
		}
	}
	return out
}

// Reset 清空记录
func (p *RecordingPublisher) Reset() {
	p.mu.Lock()
	p.events = nil
	p.mu.Unlock()
}

// GroupServer 内存中的分组服务器：JoinGroup 后 Publish 会编码并投递给组内客户端
type GroupServer struct {
	RecordingPublisher

	mu          sync.Mutex
	groups      map[string]map[string]types.ClientInterface
	Maintenance bool
}

// NewGroupServer 创建分组服务器
func NewGroupServer() *GroupServer {
	return &GroupServer{groups: make(map[string]map[string]types.ClientInterface)}
}

func (s *GroupServer) Publish(roomCode string, msgType protocol.MessageType, payload any) {
	s.RecordingPublisher.Publish(roomCode, msgType, payload)

	msg, err := codec.NewMessage(msgType, payload)
	if err != nil {
		return
	}
	s.mu.Lock()
	members := make([]types.ClientInterface, 0, len(s.groups[roomCode]))
	for _, c := range s.groups[roomCode] {
		members = append(members, c)
	}
	s.mu.Unlock()
	for _, c := range members {
		c.SendMessage(msg)
	}
}

func (s *GroupServer) IsMaintenanceMode() bool { return s.Maintenance }

func (s *GroupServer) GetOnlineCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for _, g := range s.groups {
		n += len(g)
	}
	return n
}

func (s *GroupServer) JoinGroup(roomCode string, client types.ClientInterface) {
	s.mu.Lock()
	defer s.mu.Unlock()
	g, ok := s.groups[roomCode]
	if !ok {
		g = make(map[string]types.ClientInterface)
		s.groups[roomCode] = g
	}
	g[client.GetID()] = client
}

func (s *GroupServer) LeaveGroup(roomCode string, client types.ClientInterface) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if g, ok := s.groups[roomCode]; ok {
		delete(g, client.GetID())
		if len(g) == 0 {
			delete(s.groups, roomCode)
		}
	}
}

// GroupSize 组内客户端数
func (s *GroupServer) GroupSize(roomCode string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.groups[roomCode])
}

var (
	_ types.ServerInterface = (*MockServer)(nil)
	_ types.ServerInterface = (*GroupServer)(nil)
	_ types.Publisher       = (*RecordingPublisher)(nil)
)
