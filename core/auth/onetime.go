package auth

import (
	"crypto/rand"
	"encoding/base64"
	"errors"
	"sync"
	"time"

	"ClearFM/logger"
)

// 一次性令牌的拒绝原因
var (
	ErrTokenInvalid    = errors.New("one-time token unknown")
	ErrTokenExpired    = errors.New("one-time token expired")
	ErrTokenUsed       = errors.New("one-time token already used")
	ErrTokenIPMismatch = errors.New("one-time token ip mismatch")
)

// OneTimeTokenTTL 一次性令牌的固定存活时间
// 未使用也会在到期后无条件失效
const OneTimeTokenTTL = 30 * time.Second

const tokenLength = 40 // URL 安全随机串长度，约 238 bit 随机量

type oneTimeEntry struct {
	key       string
	ipBinding string
	createdAt time.Time
	used      bool
}

// OneTimeTokenStore 进程级的一次性令牌表
// 与签名令牌互补：短 TTL、单次兑换，用于防止播放链接被转发后重放
type OneTimeTokenStore struct {
	mu      sync.Mutex
	entries map[string]*oneTimeEntry
	ttl     time.Duration
	now     func() time.Time
}

// NewOneTimeTokenStore 创建一次性令牌表
func NewOneTimeTokenStore() *OneTimeTokenStore {
	return &OneTimeTokenStore{
		entries: make(map[string]*oneTimeEntry),
		ttl:     OneTimeTokenTTL,
		now:     time.Now,
	}
}

// randomToken 生成 URL 安全的随机令牌
func randomToken() (string, error) {
	buf := make([]byte, 30) // base64 后 40 字符
	if _, err := rand.Read(buf); err != nil {
		return "", err
	}
	return base64.RawURLEncoding.EncodeToString(buf)[:tokenLength], nil
}

// Issue 为对象键签发一次性令牌，ipBinding 可为空
// 每次签发顺带清扫过期与已用条目
func (s *OneTimeTokenStore) Issue(key, ipBinding string) (string, error) {
	token, err := randomToken()
	if err != nil {
		return "", err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	s.sweep()

	s.entries[token] = &oneTimeEntry{
		key:       key,
		ipBinding: ipBinding,
		createdAt: s.now(),
	}

	logger.Debug("签发一次性令牌",
		logger.String("key", key),
		logger.Bool("ipBound", ipBinding != ""))

	return token, nil
}

// Redeem 原子兑换令牌：检查与标记已用在同一把锁内完成，
// 同一令牌的并发兑换只有一个成功
func (s *OneTimeTokenStore) Redeem(token, callerIP string) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	entry, ok := s.entries[token]
	if !ok {
		return "", ErrTokenInvalid
	}

	if s.now().Sub(entry.createdAt) > s.ttl {
		delete(s.entries, token)
		return "", ErrTokenExpired
	}

	if entry.used {
		return "", ErrTokenUsed
	}

	// IP 绑定仅在双方都有值时才参与校验
	if entry.ipBinding != "" && callerIP != "" && entry.ipBinding != callerIP {
		return "", ErrTokenIPMismatch
	}

	// 标记已用但保留条目，重放时能区分"已用"与"不存在"
	entry.used = true
	return entry.key, nil
}

// sweep 清理过期与已用条目，调用方需持有锁
func (s *OneTimeTokenStore) sweep() {
	now := s.now()
	for token, entry := range s.entries {
		if entry.used || now.Sub(entry.createdAt) > s.ttl {
			delete(s.entries, token)
		}
	}
}

// Len 返回当前存活条目数，供监控与测试使用
func (s *OneTimeTokenStore) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.entries)
}
