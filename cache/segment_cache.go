package cache

import (
	"context"
	"fmt"
	"time"

	"ClearFM/logger"

	"github.com/redis/go-redis/v9"
)

// SegmentCacheTTL 热分片在 Redis 中的存活时间
const SegmentCacheTTL = 30 * time.Minute

// SegmentCache 热分片缓存
// 管道上传分片时顺带写入，投递层先查缓存再回源 MinIO
type SegmentCache struct {
	client *redis.Client
}

// NewSegmentCache 创建分片缓存
func NewSegmentCache(client *redis.Client) *SegmentCache {
	return &SegmentCache{client: client}
}

// SegmentKey 生成分片缓存键
func SegmentKey(folder, fileName string) string {
	return fmt.Sprintf("segment:%s:%s", folder, fileName)
}

// Set 写入分片数据
func (c *SegmentCache) Set(key string, data []byte) error {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := c.client.Set(ctx, key, data, SegmentCacheTTL).Err(); err != nil {
		logger.Error("设置分片缓存失败",
			logger.String("key", key),
			logger.Int("dataSize", len(data)),
			logger.ErrorField(err))
		return err
	}

	logger.Debug("分片缓存设置成功",
		logger.String("key", key),
		logger.Int("dataSize", len(data)))
	return nil
}

// Get 获取分片数据
// 键不存在或 Redis 出错都返回 nil, nil，让调用方继续回源 MinIO
func (c *SegmentCache) Get(key string) ([]byte, error) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	data, err := c.client.Get(ctx, key).Bytes()
	if err != nil {
		if err == redis.Nil {
			logger.Debug("分片缓存不存在", logger.String("key", key))
			return nil, nil
		}
		logger.Warn("获取分片缓存失败，将回源对象存储",
			logger.String("key", key),
			logger.ErrorField(err))
		return nil, nil
	}

	logger.Debug("分片缓存命中",
		logger.String("key", key),
		logger.Int("dataSize", len(data)))
	return data, nil
}

// DeleteFolder 批量删除一个流目录下的全部分片缓存
func (c *SegmentCache) DeleteFolder(folder string) error {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	pattern := fmt.Sprintf("segment:%s:*", folder)
	keys, err := c.client.Keys(ctx, pattern).Result()
	if err != nil {
		logger.Error("查找缓存键失败",
			logger.String("pattern", pattern),
			logger.ErrorField(err))
		return err
	}
	if len(keys) == 0 {
		return nil
	}

	if err := c.client.Del(ctx, keys...).Err(); err != nil {
		logger.Error("批量删除分片缓存失败",
			logger.String("pattern", pattern),
			logger.Int("keysCount", len(keys)),
			logger.ErrorField(err))
		return err
	}

	logger.Info("批量删除分片缓存成功",
		logger.String("pattern", pattern),
		logger.Int("deletedCount", len(keys)))
	return nil
}
