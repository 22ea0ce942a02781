package cache

import (
	"context"
	"time"

	"ClearFM/logger"

	"github.com/redis/go-redis/v9"
)

// RedisURLCache 基于 Redis 的预签名链接缓存
// 实现 signer.URLCache；多实例部署时共享签名结果
// Redis 故障降级为未命中，签名路径自身有熔断兜底
type RedisURLCache struct {
	client *redis.Client
}

// NewRedisURLCache 创建 Redis 链接缓存
func NewRedisURLCache(client *redis.Client) *RedisURLCache {
	return &RedisURLCache{client: client}
}

func urlCacheKey(cacheKey string) string {
	return "presign:" + cacheKey
}

// Get 查询缓存链接，任何错误都视为未命中
func (c *RedisURLCache) Get(cacheKey string) (string, bool) {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	url, err := c.client.Get(ctx, urlCacheKey(cacheKey)).Result()
	if err != nil {
		if err != redis.Nil {
			logger.Warn("读取预签名缓存失败",
				logger.String("key", cacheKey),
				logger.ErrorField(err))
		}
		return "", false
	}
	return url, true
}

// Set 写入缓存链接，失败只记日志
func (c *RedisURLCache) Set(cacheKey, url string, ttl time.Duration) {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	if err := c.client.Set(ctx, urlCacheKey(cacheKey), url, ttl).Err(); err != nil {
		logger.Warn("写入预签名缓存失败",
			logger.String("key", cacheKey),
			logger.ErrorField(err))
	}
}
