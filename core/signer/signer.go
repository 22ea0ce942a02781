package signer

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"ClearFM/core/breaker"
	"ClearFM/logger"
	"ClearFM/storage"
)

// ErrClosed 签名器已关闭，不再接受新请求
var ErrClosed = errors.New("presign signer closed")

// DefaultQueueSize 待处理签名请求的队列上限
// 队列满时提交方阻塞（背压），而不是丢弃或报错
const DefaultQueueSize = 256

// cacheSafetyMargin 缓存条目比签名链接提前失效的安全余量
const cacheSafetyMargin = time.Minute

// URLCache 预签名链接缓存
// 读多写少；同一键并发未命中导致的重复签名是良性的，后写覆盖即可
type URLCache interface {
	Get(cacheKey string) (string, bool)
	Set(cacheKey string, url string, ttl time.Duration)
}

// MemoryURLCache 进程内的 URLCache 实现
type MemoryURLCache struct {
	mu      sync.RWMutex
	entries map[string]memoryEntry
}

type memoryEntry struct {
	url       string
	expiresAt time.Time
}

// NewMemoryURLCache 创建进程内缓存
func NewMemoryURLCache() *MemoryURLCache {
	return &MemoryURLCache{entries: make(map[string]memoryEntry)}
}

// Get 查询缓存，过期条目视为未命中并顺带删除
func (c *MemoryURLCache) Get(cacheKey string) (string, bool) {
	c.mu.RLock()
	entry, ok := c.entries[cacheKey]
	c.mu.RUnlock()

	if !ok {
		return "", false
	}
	if time.Now().After(entry.expiresAt) {
		c.mu.Lock()
		delete(c.entries, cacheKey)
		c.mu.Unlock()
		return "", false
	}
	return entry.url, true
}

// Set 写入缓存
func (c *MemoryURLCache) Set(cacheKey, url string, ttl time.Duration) {
	c.mu.Lock()
	c.entries[cacheKey] = memoryEntry{url: url, expiresAt: time.Now().Add(ttl)}
	c.mu.Unlock()
}

// request 单个签名请求，reply 通道只写一次
type request struct {
	key   string
	ttl   time.Duration
	reply chan result
}

type result struct {
	url string
	err error
}

// PresignSigner 把 (key, ttl) 请求转换为限时投递链接
// 有界队列 + 单消费者：限制在途签名速率与内存占用，
// 上游退化时由熔断器直接快速失败
type PresignSigner struct {
	store   storage.ObjectStore
	cache   URLCache
	breaker *breaker.CircuitBreaker

	queue    chan request
	stop     chan struct{}
	done     chan struct{}
	stopOnce sync.Once
}

// New 创建签名器并启动消费循环
func New(store storage.ObjectStore, cache URLCache, queueSize int) *PresignSigner {
	if queueSize <= 0 {
		queueSize = DefaultQueueSize
	}
	if cache == nil {
		cache = NewMemoryURLCache()
	}

	s := &PresignSigner{
		store:   store,
		cache:   cache,
		breaker: breaker.New("presign"),
		queue:   make(chan request, queueSize),
		stop:    make(chan struct{}),
		done:    make(chan struct{}),
	}
	go s.consume()
	return s
}

// Sign 请求一条限时投递链接
// 队列满时阻塞等待；每个请求独立收到自己的成功或失败
func (s *PresignSigner) Sign(ctx context.Context, key string, ttl time.Duration) (string, error) {
	req := request{
		key:   key,
		ttl:   ttl,
		reply: make(chan result, 1),
	}

	select {
	case s.queue <- req:
	case <-s.stop:
		return "", ErrClosed
	case <-ctx.Done():
		return "", ctx.Err()
	}

	select {
	case res := <-req.reply:
		return res.url, res.err
	case <-ctx.Done():
		return "", ctx.Err()
	case <-s.done:
		// 关闭竞态：消费者可能已经写入过结果
		select {
		case res := <-req.reply:
			return res.url, res.err
		default:
			return "", ErrClosed
		}
	}
}

// consume 单消费者循环，顺序排空队列
func (s *PresignSigner) consume() {
	defer close(s.done)
	for {
		select {
		case req := <-s.queue:
			req.reply <- s.resolve(req.key, req.ttl)
		case <-s.stop:
			// 排空已入队的请求，让等待者拿到明确结果
			for {
				select {
				case req := <-s.queue:
					req.reply <- result{err: ErrClosed}
				default:
					return
				}
			}
		}
	}
}

// resolve 先查缓存，未命中再经熔断器调用对象存储签名
func (s *PresignSigner) resolve(key string, ttl time.Duration) result {
	cacheKey := fmt.Sprintf("%s|%d", key, int(ttl.Minutes()))

	if url, ok := s.cache.Get(cacheKey); ok {
		logger.Debug("预签名缓存命中", logger.String("key", key))
		return result{url: url}
	}

	var url string
	err := s.breaker.Do(func() error {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()

		var signErr error
		url, signErr = s.store.PresignedGetURL(ctx, key, ttl)
		return signErr
	})
	if err != nil {
		logger.Warn("预签名失败",
			logger.String("key", key),
			logger.ErrorField(err))
		return result{err: err}
	}

	cacheTTL := ttl - cacheSafetyMargin
	if cacheTTL > 0 {
		s.cache.Set(cacheKey, url, cacheTTL)
	}

	return result{url: url}
}

// Close 停止消费循环，排空在队请求后返回
func (s *PresignSigner) Close() {
	s.stopOnce.Do(func() {
		close(s.stop)
		<-s.done
	})
}
