package server

import (
	"log"
	"net"
	"net/http"
	"strings"
	"sync"
	"time"
)

// --- 连接速率限制 ---

// RateLimiter 按 IP 限制新建连接的速率，超限后封禁一段时间
type RateLimiter struct {
	mu      sync.Mutex
	clients map[string]*connRate
	now     func() time.Time

	maxPerSecond int
	maxPerMinute int
	banDuration  time.Duration

	stop     chan struct{}
	stopOnce sync.Once
}

type connRate struct {
	secondCount int
	minuteCount int
	secondStart time.Time
	minuteStart time.Time
	bannedUntil time.Time
}

// NewRateLimiter 创建连接速率限制器，并启动过期记录清理
func NewRateLimiter(maxPerSecond, maxPerMinute int, banDuration time.Duration) *RateLimiter {
	rl := &RateLimiter{
		clients:      make(map[string]*connRate),
		now:          time.Now,
		maxPerSecond: maxPerSecond,
		maxPerMinute: maxPerMinute,
		banDuration:  banDuration,
		stop:         make(chan struct{}),
	}
	go rl.cleanupLoop(5 * time.Minute)
	return rl
}

// Allow 记录一次连接请求，返回是否放行
func (rl *RateLimiter) Allow(ip string) bool {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	now := rl.now()
	rate, ok := rl.clients[ip]
	if !ok {
		rl.clients[ip] = &connRate{secondCount: 1, minuteCount: 1, secondStart: now, minuteStart: now}
		return true
	}
	if now.Before(rate.bannedUntil) {
		return false
	}

	if now.Sub(rate.secondStart) >= time.Second {
		rate.secondCount, rate.secondStart = 0, now
	}
	if now.Sub(rate.minuteStart) >= time.Minute {
		rate.minuteCount, rate.minuteStart = 0, now
	}
	rate.secondCount++
	rate.minuteCount++

	if rate.secondCount > rl.maxPerSecond || rate.minuteCount > rl.maxPerMinute {
		rate.bannedUntil = now.Add(rl.banDuration)
		log.Printf("⚠️ IP %s 连接过于频繁，封禁 %v", ip, rl.banDuration)
		return false
	}
	return true
}

// IsBanned IP 是否处于封禁期
func (rl *RateLimiter) IsBanned(ip string) bool {
	rl.mu.Lock()
	defer rl.mu.Unlock()
	rate, ok := rl.clients[ip]
	return ok && rl.now().Before(rate.bannedUntil)
}

// Stop 停止清理协程，可重复调用
func (rl *RateLimiter) Stop() {
	rl.stopOnce.Do(func() { close(rl.stop) })
}

func (rl *RateLimiter) cleanupLoop(interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-rl.stop:
			return
		case <-ticker.C:
			rl.purge(10 * time.Minute)
		}
	}
}

// purge 删除超过 idle 没有请求且未被封禁的记录
func (rl *RateLimiter) purge(idle time.Duration) {
	rl.mu.Lock()
	defer rl.mu.Unlock()
	now := rl.now()
	for ip, rate := range rl.clients {
		if now.Sub(rate.minuteStart) > idle && now.After(rate.bannedUntil) {
			delete(rl.clients, ip)
		}
	}
}

// --- 来源验证 ---

// OriginChecker WebSocket 握手的 Origin 白名单
type OriginChecker struct {
	allowed  map[string]bool
	allowAll bool
}

// NewOriginChecker 创建来源验证器，"*" 表示不限制
func NewOriginChecker(origins []string) *OriginChecker {
	oc := &OriginChecker{allowed: make(map[string]bool)}
	for _, origin := range origins {
		if origin == "*" {
			oc.allowAll = true
			continue
		}
		oc.allowed[strings.ToLower(origin)] = true
	}
	return oc
}

// Check 没有 Origin 头的请求（本地客户端）总是放行
func (oc *OriginChecker) Check(r *http.Request) bool {
	if oc.allowAll {
		return true
	}
	origin := r.Header.Get("Origin")
	if origin == "" {
		return true
	}
	return oc.allowed[strings.ToLower(origin)]
}

// GetClientIP 获取客户端真实 IP，优先使用代理头
func GetClientIP(r *http.Request) string {
	if forwarded := r.Header.Get("X-Forwarded-For"); forwarded != "" {
		first, _, _ := strings.Cut(forwarded, ",")
		return strings.TrimSpace(first)
	}
	if realIP := r.Header.Get("X-Real-IP"); realIP != "" {
		return realIP
	}
	ip, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return ip
}

// --- 消息速率限制 ---

// MessageRateLimiter 已连接客户端的每秒消息数限制
type MessageRateLimiter struct {
	mu      sync.Mutex
	clients map[string]*messageRate
	now     func() time.Time

	maxPerSecond int
	warnAt       int
}

type messageRate struct {
	count    int
	start    time.Time
	warnings int
}

// NewMessageRateLimiter 创建消息速率限制器，超过一半配额时开始警告
func NewMessageRateLimiter(maxPerSecond int) *MessageRateLimiter {
	return &MessageRateLimiter{
		clients:      make(map[string]*messageRate),
		now:          time.Now,
		maxPerSecond: maxPerSecond,
		warnAt:       maxPerSecond / 2,
	}
}

// AllowMessage 记录一条消息
func (ml *MessageRateLimiter) AllowMessage(clientID string) (allowed, warning bool) {
	ml.mu.Lock()
	defer ml.mu.Unlock()

	now := ml.now()
	rate, ok := ml.clients[clientID]
	if !ok {
		ml.clients[clientID] = &messageRate{count: 1, start: now}
		return true, false
	}
	if now.Sub(rate.start) >= time.Second {
		rate.count, rate.start = 1, now
		return true, false
	}

	rate.count++
	if rate.count > ml.maxPerSecond {
		rate.warnings++
		return false, true
	}
	return true, rate.count > ml.warnAt
}

// WarningCount 被拒绝的次数
func (ml *MessageRateLimiter) WarningCount(clientID string) int {
	ml.mu.Lock()
	defer ml.mu.Unlock()
	if rate, ok := ml.clients[clientID]; ok {
		return rate.warnings
	}
	return 0
}

// RemoveClient 客户端断开时清除记录
func (ml *MessageRateLimiter) RemoveClient(clientID string) {
	ml.mu.Lock()
	defer ml.mu.Unlock()
	delete(ml.clients, clientID)
}
