package breaker

import (
	"errors"
	"sync"
	"time"

	"ClearFM/logger"
)

// ErrCircuitOpen 熔断器处于打开状态，调用被直接拒绝
var ErrCircuitOpen = errors.New("circuit breaker is open")

const (
	// DefaultWindow 失败计数的滑动窗口
	DefaultWindow = 30 * time.Second
	// DefaultThreshold 窗口内触发熔断的失败次数
	DefaultThreshold = 10
	// DefaultCooldown 熔断打开后的冷却时长
	DefaultCooldown = 60 * time.Second
)

// CircuitBreaker 保护易级联失败的外部调用
// 窗口内失败达到阈值后打开，冷却期内直接拒绝；恢复是基于时间的：
// now 超过 openUntil 即自动闭合，与后续流量无关
type CircuitBreaker struct {
	mu        sync.Mutex
	name      string
	window    time.Duration
	threshold int
	cooldown  time.Duration

	failures  []time.Time
	openUntil time.Time

	now func() time.Time // 测试中可替换时钟
}

// New 使用默认参数创建熔断器
func New(name string) *CircuitBreaker {
	return NewWithConfig(name, DefaultWindow, DefaultThreshold, DefaultCooldown)
}

// NewWithConfig 创建自定义参数的熔断器
func NewWithConfig(name string, window time.Duration, threshold int, cooldown time.Duration) *CircuitBreaker {
	return &CircuitBreaker{
		name:      name,
		window:    window,
		threshold: threshold,
		cooldown:  cooldown,
		now:       time.Now,
	}
}

// Allow reports whether a call may proceed.
func (cb *CircuitBreaker) Allow() bool {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	return cb.now().After(cb.openUntil)
}

// MarkSuccess 记录一次成功，清空失败计数
func (cb *CircuitBreaker) MarkSuccess() {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	cb.failures = cb.failures[:0]
}

// MarkFailure 记录一次失败，窗口内失败达到阈值时打开熔断
func (cb *CircuitBreaker) MarkFailure() {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	now := cb.now()
	cb.failures = append(cb.failures, now)
	cb.prune(now)

	if len(cb.failures) >= cb.threshold && now.After(cb.openUntil) {
		cb.openUntil = now.Add(cb.cooldown)
		cb.failures = cb.failures[:0]
		logger.Warn("熔断器打开",
			logger.String("breaker", cb.name),
			logger.Int("threshold", cb.threshold),
			logger.Duration("cooldown", cb.cooldown))
	}
}

// prune 丢弃窗口之外的失败记录，调用方需持有锁
func (cb *CircuitBreaker) prune(now time.Time) {
	cutoff := now.Add(-cb.window)
	kept := cb.failures[:0]
	for _, t := range cb.failures {
		if t.After(cutoff) {
			kept = append(kept, t)
		}
	}
	cb.failures = kept
}

// Do 在熔断保护下执行 fn
// 熔断打开时立即返回 ErrCircuitOpen，不触碰被保护的操作
func (cb *CircuitBreaker) Do(fn func() error) error {
	if !cb.Allow() {
		return ErrCircuitOpen
	}

	if err := fn(); err != nil {
		cb.MarkFailure()
		return err
	}

	cb.MarkSuccess()
	return nil
}
