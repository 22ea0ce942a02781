package pipeline

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"ClearFM/cache"
	"ClearFM/logger"
	"ClearFM/storage"

	"github.com/fsnotify/fsnotify"
)

// SegmentWriter 热分片缓存的窄接口，*cache.SegmentCache 满足之
type SegmentWriter interface {
	Set(key string, data []byte) error
}

// segmentTask 单个分片的上传任务
type segmentTask struct {
	path   string
	name   string
	isM3U8 bool
}

// segmentUploader 增量分片上传器
// 核心思想：边切片边上传，不等 FFmpeg 全部完成
// 架构：FFmpeg 输出分片 → fsnotify 监听 → WorkerPool 并行上传 → Redis/对象存储
type segmentUploader struct {
	store    storage.ObjectStore
	segCache SegmentWriter
	folder   string
	dir      string
	workers  int

	watcher   *fsnotify.Watcher
	taskChan  chan *segmentTask
	processed sync.Map
	wg        sync.WaitGroup
	watchDone chan struct{}
	cancel    context.CancelFunc

	mu           sync.Mutex
	uploadedKeys []string
	firstErr     error
	count        int32
}

// newSegmentUploader 创建增量上传器，segCache 可为 nil
func newSegmentUploader(store storage.ObjectStore, segCache SegmentWriter, folder, dir string, workers int) *segmentUploader {
	if workers <= 0 {
		workers = 4
	}
	return &segmentUploader{
		store:     store,
		segCache:  segCache,
		folder:    folder,
		dir:       dir,
		workers:   workers,
		taskChan:  make(chan *segmentTask, 100),
		watchDone: make(chan struct{}),
	}
}

// Start 启动监听与上传协程，dir 必须已存在
func (u *segmentUploader) Start(ctx context.Context) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("创建文件监听器失败: %w", err)
	}
	if err := watcher.Add(u.dir); err != nil {
		watcher.Close()
		return fmt.Errorf("监听目录失败 %s: %w", u.dir, err)
	}
	u.watcher = watcher

	watchCtx, cancel := context.WithCancel(ctx)
	u.cancel = cancel

	for i := 0; i < u.workers; i++ {
		u.wg.Add(1)
		go func(workerID int) {
			defer u.wg.Done()
			u.worker(workerID)
		}(i)
	}

	go func() {
		defer close(u.watchDone)
		u.watchSegments(watchCtx)
	}()

	return nil
}

// watchSegments 监听新分片文件
func (u *segmentUploader) watchSegments(ctx context.Context) {
	// 文件稳定性检查的延迟队列
	pendingFiles := make(map[string]time.Time)
	checkTicker := time.NewTicker(50 * time.Millisecond)
	defer checkTicker.Stop()

	for {
		select {
		case <-ctx.Done():
			return

		case event, ok := <-u.watcher.Events:
			if !ok {
				return
			}
			if event.Op&(fsnotify.Write|fsnotify.Create) != 0 {
				ext := filepath.Ext(event.Name)
				if ext == ".ts" || ext == ".m3u8" {
					pendingFiles[event.Name] = time.Now()
				}
			}

		case <-checkTicker.C:
			// 检查待处理文件是否已稳定（100ms 无变化）
			now := time.Now()
			for filePath, lastModTime := range pendingFiles {
				if now.Sub(lastModTime) < 100*time.Millisecond {
					continue
				}

				name := filepath.Base(filePath)
				if !isFileComplete(filePath) {
					continue
				}
				if _, loaded := u.processed.LoadOrStore(name, true); loaded {
					delete(pendingFiles, filePath)
					continue
				}

				task := &segmentTask{
					path:   filePath,
					name:   name,
					isM3U8: strings.HasSuffix(name, ".m3u8"),
				}

				select {
				case u.taskChan <- task:
					atomic.AddInt32(&u.count, 1)
					logger.Debug("检测到新分片",
						logger.String("folder", u.folder),
						logger.String("segment", name))
				default:
					// 通道满了，稍后重试
					u.processed.Delete(name)
					continue
				}

				delete(pendingFiles, filePath)
			}

		case err, ok := <-u.watcher.Errors:
			if !ok {
				return
			}
			logger.Warn("文件监听错误", logger.ErrorField(err))
		}
	}
}

// worker 上传分片任务
func (u *segmentUploader) worker(workerID int) {
	for task := range u.taskChan {
		data, err := os.ReadFile(task.path)
		if err != nil {
			u.recordErr(task.name, err)
			continue
		}

		key := u.folder + "/" + task.name
		contentType := "video/MP2T"
		if task.isM3U8 {
			contentType = "application/vnd.apple.mpegurl"
		}

		// 并行执行 Redis 和对象存储上传
		var uploadWg sync.WaitGroup
		uploadWg.Add(1)
		go func() {
			defer uploadWg.Done()
			if u.segCache == nil {
				return
			}
			cacheKey := cache.SegmentKey(u.folder, task.name)
			if err := u.segCache.Set(cacheKey, data); err != nil {
				logger.Warn("分片写入Redis失败",
					logger.String("segment", task.name),
					logger.ErrorField(err))
			}
		}()

		ctx, cancelUpload := context.WithTimeout(context.Background(), 30*time.Second)
		if err := u.store.Upload(ctx, key, bytes.NewReader(data), int64(len(data)), contentType); err != nil {
			u.recordErr(key, err)
		} else {
			u.recordKey(key)
		}
		cancelUpload()
		uploadWg.Wait()

		logger.Debug("分片上传完成",
			logger.Int("worker", workerID),
			logger.String("segment", task.name),
			logger.Int("size", len(data)))
	}
}

// Finish 等待 FFmpeg 收尾后的最终扫描并关闭上传器
// 返回已上传的对象键（升序）和第一个上传错误
func (u *segmentUploader) Finish() ([]string, error) {
	// 给监听器一点时间处理最后的文件事件
	time.Sleep(200 * time.Millisecond)

	if u.cancel != nil {
		u.cancel()
	}
	if u.watcher != nil {
		u.watcher.Close()
		<-u.watchDone
	}

	// FFmpeg 完成后的最终扫描，处理可能遗漏的分片
	u.scanRemaining()

	close(u.taskChan)
	u.wg.Wait()

	u.mu.Lock()
	defer u.mu.Unlock()
	sort.Strings(u.uploadedKeys)
	return u.uploadedKeys, u.firstErr
}

// scanRemaining 扫描目录中未经监听处理的分片
func (u *segmentUploader) scanRemaining() {
	files, err := filepath.Glob(filepath.Join(u.dir, "*.ts"))
	if err != nil {
		return
	}
	m3u8Files, _ := filepath.Glob(filepath.Join(u.dir, "*.m3u8"))
	files = append(files, m3u8Files...)

	for _, filePath := range files {
		name := filepath.Base(filePath)
		if _, loaded := u.processed.LoadOrStore(name, true); loaded {
			continue
		}
		task := &segmentTask{
			path:   filePath,
			name:   name,
			isM3U8: strings.HasSuffix(name, ".m3u8"),
		}
		u.taskChan <- task
		atomic.AddInt32(&u.count, 1)
	}
}

func (u *segmentUploader) recordKey(key string) {
	u.mu.Lock()
	u.uploadedKeys = append(u.uploadedKeys, key)
	u.mu.Unlock()
}

func (u *segmentUploader) recordErr(key string, err error) {
	logger.Warn("分片上传失败",
		logger.String("key", key),
		logger.ErrorField(err))
	u.mu.Lock()
	if u.firstErr == nil {
		u.firstErr = &UploadError{Key: key, Inner: err}
	}
	u.mu.Unlock()
}

// isFileComplete 检查文件是否写入完成
func isFileComplete(path string) bool {
	info1, err := os.Stat(path)
	if err != nil || info1.Size() == 0 {
		return false
	}

	// 短暂等待后再次检查大小
	time.Sleep(30 * time.Millisecond)

	info2, err := os.Stat(path)
	if err != nil {
		return false
	}
	return info1.Size() == info2.Size()
}
