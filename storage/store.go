package storage

import (
	"context"
	"io"
	"time"
)

// ObjectStore 对象存储的窄接口
// 管道与投递层只依赖此接口，便于在测试中注入假实现
type ObjectStore interface {
	// Upload 上传对象
	Upload(ctx context.Context, key string, r io.Reader, size int64, contentType string) error
	// Download 下载完整对象，调用方负责 Close
	Download(ctx context.Context, key string) (io.ReadCloser, error)
	// DownloadRange 下载对象的字节区间 [offset, offset+length)
	// length < 0 表示读取到对象末尾
	DownloadRange(ctx context.Context, key string, offset, length int64) (io.ReadCloser, error)
	// Stat 返回对象大小，对象不存在时返回错误
	Stat(ctx context.Context, key string) (int64, error)
	// Exists 检查对象是否存在
	Exists(ctx context.Context, key string) (bool, error)
	// Delete 删除对象
	Delete(ctx context.Context, key string) error
	// PresignedGetURL 生成限时下载链接
	PresignedGetURL(ctx context.Context, key string, expiry time.Duration) (string, error)
}
