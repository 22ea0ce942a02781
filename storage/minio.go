package storage

import (
	"context"
	"fmt"
	"io"
	"net/url"
	"strings"
	"time"

	"ClearFM/config"
	"ClearFM/logger"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
)

// MinioStore 基于 MinIO 的 ObjectStore 实现
type MinioStore struct {
	client *minio.Client
	bucket string
}

// NewMinioStore 创建并初始化 MinIO 客户端，存储桶不存在时自动创建
func NewMinioStore(cfg *config.Config) (*MinioStore, error) {
	logger.Info("正在连接 MinIO 服务器...",
		logger.String("endpoint", cfg.MinioEndpoint),
		logger.String("bucket", cfg.MinioBucket))

	client, err := minio.New(cfg.MinioEndpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.MinioAccessKey, cfg.MinioSecretKey, ""),
		Secure: cfg.MinioUseSSL,
		Region: cfg.MinioRegion,
	})
	if err != nil {
		return nil, fmt.Errorf("创建 MinIO 客户端失败: %w", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	exists, err := client.BucketExists(ctx, cfg.MinioBucket)
	if err != nil {
		return nil, fmt.Errorf("检查存储桶失败: %w", err)
	}
	if !exists {
		if err := client.MakeBucket(ctx, cfg.MinioBucket, minio.MakeBucketOptions{
			Region: cfg.MinioRegion,
		}); err != nil {
			return nil, fmt.Errorf("创建存储桶失败: %w", err)
		}
		logger.Info("成功创建存储桶", logger.String("bucket", cfg.MinioBucket))
	}

	logger.Info("MinIO 客户端初始化成功")
	return &MinioStore{client: client, bucket: cfg.MinioBucket}, nil
}

// Upload 上传对象
// HLS 分片体积小，禁用 multipart 减少一次往返
func (s *MinioStore) Upload(ctx context.Context, key string, r io.Reader, size int64, contentType string) error {
	opts := minio.PutObjectOptions{
		ContentType:      contentType,
		DisableMultipart: true,
	}
	if _, err := s.client.PutObject(ctx, s.bucket, key, r, size, opts); err != nil {
		return fmt.Errorf("上传对象 %s 失败: %w", key, err)
	}
	return nil
}

// Download 下载完整对象
func (s *MinioStore) Download(ctx context.Context, key string) (io.ReadCloser, error) {
	obj, err := s.client.GetObject(ctx, s.bucket, key, minio.GetObjectOptions{})
	if err != nil {
		return nil, fmt.Errorf("获取对象 %s 失败: %w", key, err)
	}
	// GetObject 是惰性的，探一次 Stat 让 NoSuchKey 尽早暴露
	if _, err := obj.Stat(); err != nil {
		obj.Close()
		return nil, fmt.Errorf("对象 %s 不可读: %w", key, err)
	}
	return obj, nil
}

// DownloadRange 下载对象的字节区间
func (s *MinioStore) DownloadRange(ctx context.Context, key string, offset, length int64) (io.ReadCloser, error) {
	opts := minio.GetObjectOptions{}
	if length < 0 {
		if err := opts.SetRange(offset, 0); err != nil {
			return nil, fmt.Errorf("设置下载区间失败: %w", err)
		}
	} else {
		if err := opts.SetRange(offset, offset+length-1); err != nil {
			return nil, fmt.Errorf("设置下载区间失败: %w", err)
		}
	}

	obj, err := s.client.GetObject(ctx, s.bucket, key, opts)
	if err != nil {
		return nil, fmt.Errorf("获取对象区间 %s 失败: %w", key, err)
	}
	if _, err := obj.Stat(); err != nil {
		obj.Close()
		return nil, fmt.Errorf("对象 %s 不可读: %w", key, err)
	}
	return obj, nil
}

// Stat 返回对象大小
func (s *MinioStore) Stat(ctx context.Context, key string) (int64, error) {
	info, err := s.client.StatObject(ctx, s.bucket, key, minio.StatObjectOptions{})
	if err != nil {
		return 0, fmt.Errorf("获取对象信息 %s 失败: %w", key, err)
	}
	return info.Size, nil
}

// Exists 检查对象是否存在
func (s *MinioStore) Exists(ctx context.Context, key string) (bool, error) {
	_, err := s.client.StatObject(ctx, s.bucket, key, minio.StatObjectOptions{})
	if err != nil {
		resp := minio.ToErrorResponse(err)
		if resp.Code == "NoSuchKey" || resp.StatusCode == 404 {
			return false, nil
		}
		return false, fmt.Errorf("检查对象 %s 失败: %w", key, err)
	}
	return true, nil
}

// Delete 删除对象
func (s *MinioStore) Delete(ctx context.Context, key string) error {
	if err := s.client.RemoveObject(ctx, s.bucket, key, minio.RemoveObjectOptions{}); err != nil {
		return fmt.Errorf("删除对象 %s 失败: %w", key, err)
	}
	return nil
}

// PresignedGetURL 生成限时下载链接
func (s *MinioStore) PresignedGetURL(ctx context.Context, key string, expiry time.Duration) (string, error) {
	u, err := s.client.PresignedGetObject(ctx, s.bucket, key, expiry, url.Values{})
	if err != nil {
		return "", fmt.Errorf("生成预签名链接 %s 失败: %w", key, err)
	}
	return u.String(), nil
}

// DeleteFolder 递归删除一个目录前缀下的所有对象
// 供 minio 子命令清理失败任务残留的流目录使用
func (s *MinioStore) DeleteFolder(ctx context.Context, prefix string) (int, error) {
	if !strings.HasSuffix(prefix, "/") {
		prefix += "/"
	}

	var toDelete []minio.ObjectInfo
	for object := range s.client.ListObjects(ctx, s.bucket, minio.ListObjectsOptions{
		Prefix:    prefix,
		Recursive: true,
	}) {
		if object.Err != nil {
			logger.Warn("列出对象时出错", logger.ErrorField(object.Err))
			continue
		}
		toDelete = append(toDelete, object)
	}

	if len(toDelete) == 0 {
		return 0, nil
	}

	objectsCh := make(chan minio.ObjectInfo, len(toDelete))
	go func() {
		defer close(objectsCh)
		for _, obj := range toDelete {
			objectsCh <- obj
		}
	}()

	for rErr := range s.client.RemoveObjects(ctx, s.bucket, objectsCh, minio.RemoveObjectsOptions{}) {
		if rErr.Err != nil {
			return 0, fmt.Errorf("删除对象 %s 失败: %w", rErr.ObjectName, rErr.Err)
		}
	}
	return len(toDelete), nil
}

// ObjectSummary 对象清单条目
type ObjectSummary struct {
	Key  string
	Size int64
}

// ListKeys 递归列出一个前缀下的所有对象
func (s *MinioStore) ListKeys(ctx context.Context, prefix string) ([]ObjectSummary, error) {
	var out []ObjectSummary
	for object := range s.client.ListObjects(ctx, s.bucket, minio.ListObjectsOptions{
		Prefix:    prefix,
		Recursive: true,
	}) {
		if object.Err != nil {
			return nil, fmt.Errorf("列出对象时出错: %w", object.Err)
		}
		out = append(out, ObjectSummary{Key: object.Key, Size: object.Size})
	}
	return out, nil
}

// ListFolders 列出一个前缀下的直接子目录
func (s *MinioStore) ListFolders(ctx context.Context, prefix string) ([]string, error) {
	var folders []string
	for object := range s.client.ListObjects(ctx, s.bucket, minio.ListObjectsOptions{
		Prefix:    prefix,
		Recursive: false,
	}) {
		if object.Err != nil {
			return nil, fmt.Errorf("列出对象时出错: %w", object.Err)
		}
		if strings.HasSuffix(object.Key, "/") {
			folders = append(folders, object.Key)
		}
	}
	return folders, nil
}
