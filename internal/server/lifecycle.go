package server

import (
	"context"
	"log"
	"runtime"
	"time"

	"github.com/palemoky/battle-tanks/internal/protocol"
	"github.com/palemoky/battle-tanks/internal/protocol/codec"
)

const (
	monitorInterval = 30 * time.Second
	shutdownTimeout = 10 * time.Second
)

// monitorStats 定期监控服务器状态
func (s *Server) monitorStats(ctx context.Context) {
	ticker := time.NewTicker(monitorInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}

		var m runtime.MemStats
		runtime.ReadMemStats(&m)

		log.Printf("📊 [监控] 在线: %d | 房间: %d | 子弹: %d | 待写入: %d | Goroutines: %d | 连接: %d/%d | 内存: %.2f MB",
			s.GetOnlineCount(),
			s.rooms.RoomCount(),
			len(s.bullets.EnumerateAll()),
			s.jobs.Pending(),
			runtime.NumGoroutine(),
			len(s.semaphore),
			s.maxConnections,
			float64(m.Alloc)/1024/1024)
	}
}

// EnterMaintenanceMode 进入维护模式：拒绝新连接和加入房间，进行中的对局不受影响
func (s *Server) EnterMaintenanceMode() {
	s.maintenanceMu.Lock()
	already := s.maintenanceMode
	s.maintenanceMode = true
	s.maintenanceMu.Unlock()
	if already {
		return
	}

	// 通知未在房间中的连接
	msg := codec.NewErrorMessage(protocol.ErrCodeServerMaintenance)
	s.clientsMu.RLock()
	for _, c := range s.clients {
		if c.GetRoom() == "" {
			c.SendMessage(msg)
		}
	}
	s.clientsMu.RUnlock()

	log.Println("🔧 进入维护模式：停止新连接和加入房间")
}

// IsMaintenanceMode 检查是否在维护模式
func (s *Server) IsMaintenanceMode() bool {
	s.maintenanceMu.RLock()
	defer s.maintenanceMu.RUnlock()
	return s.maintenanceMode
}

// Shutdown 关闭服务器；可重复调用
func (s *Server) Shutdown() {
	s.stopOnce.Do(s.shutdown)
}

func (s *Server) shutdown() {
	s.EnterMaintenanceMode()

	s.lifeMu.Lock()
	stop, srv := s.cancel, s.httpServer
	s.lifeMu.Unlock()

	// 停止模拟循环和房间清理
	if stop != nil {
		stop()
	}

	if srv != nil {
		ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		if err := srv.Shutdown(ctx); err != nil {
			log.Printf("HTTP 服务关闭失败: %v", err)
		}
		cancel()
	}

	// 关闭所有客户端连接
	s.clientsMu.RLock()
	for _, client := range s.clients {
		client.Close()
	}
	s.clientsMu.RUnlock()

	// 等待已入队的持久化任务写完
	s.jobs.Close()
	s.rateLimiter.Stop()

	if s.redis != nil {
		_ = s.redis.Close()
	}

	log.Println("服务器已关闭")
}
