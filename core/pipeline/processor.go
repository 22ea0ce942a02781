package pipeline

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"ClearFM/cache"
	"ClearFM/core/audio"
	"ClearFM/core/redact"
	"ClearFM/core/transcribe"
	"ClearFM/logger"
	"ClearFM/model"
	"ClearFM/repository"
	"ClearFM/storage"

	"github.com/google/uuid"
)

// registryRetention 终态任务在注册表里的保留时长
// 过期后清出内存，后续查询由数据库记录兜底
var registryRetention = 10 * time.Minute

// Processor 转换管道编排器
// 状态序列：Queued → Downloading → Transcribing → Redacting → Encoding → Uploading → Completed | Failed
// 同一 sourceKey 不做去重，重复触发由调用方负责
type Processor struct {
	encoder     audio.Encoder
	transcriber transcribe.Transcriber
	store       storage.ObjectStore
	segCache    SegmentWriter
	registry    *Registry
	assets      repository.AssetRepository
	jobs        repository.JobRepository
	banned      redact.BannedWords
	mutePad     float64
	workers     int
}

// ProcessorOption 可选依赖注入
type ProcessorOption func(*Processor)

// WithSegmentCache 注入热分片缓存
func WithSegmentCache(w SegmentWriter) ProcessorOption {
	return func(p *Processor) { p.segCache = w }
}

// WithRepositories 注入持久化仓库
func WithRepositories(assets repository.AssetRepository, jobs repository.JobRepository) ProcessorOption {
	return func(p *Processor) {
		p.assets = assets
		p.jobs = jobs
	}
}

// WithUploadWorkers 设置分片上传并发数
func WithUploadWorkers(n int) ProcessorOption {
	return func(p *Processor) { p.workers = n }
}

// NewProcessor 创建管道编排器
// transcriber 可为 nil，此时跳过转写与静音规划
func NewProcessor(
	encoder audio.Encoder,
	transcriber transcribe.Transcriber,
	store storage.ObjectStore,
	registry *Registry,
	banned redact.BannedWords,
	mutePad float64,
	opts ...ProcessorOption,
) *Processor {
	p := &Processor{
		encoder:     encoder,
		transcriber: transcriber,
		store:       store,
		registry:    registry,
		banned:      banned,
		mutePad:     mutePad,
		workers:     4,
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Registry 返回任务注册表
func (p *Processor) Registry() *Registry {
	return p.registry
}

// setState 同步更新注册表与任务持久化记录
func (p *Processor) setState(ctx context.Context, jobID string, state model.JobState, errMsg string) {
	p.registry.SetState(jobID, state, errMsg)
	if p.jobs != nil {
		if err := p.jobs.UpdateState(ctx, jobID, state, errMsg); err != nil {
			logger.Warn("任务状态持久化失败",
				logger.String("jobId", jobID),
				logger.String("state", string(state)),
				logger.ErrorField(err))
		}
	}
}

// Convert 将 sourceKey 指向的原始音频转换为 HLS 流
// 产物写入 targetFolder/，洁净版写入 targetFolder-clean/
// 失败通过 JobResult 报告，不向上抛 panic
func (p *Processor) Convert(ctx context.Context, sourceKey, targetFolder string) *model.JobResult {
	jobID := uuid.New().String()
	startTime := time.Now()

	if !p.registry.TryLock(jobID, sourceKey, targetFolder) {
		return &model.JobResult{JobID: jobID, Success: false, Error: "job id collision"}
	}

	if p.jobs != nil {
		record := &model.JobRecord{
			ID:           jobID,
			SourceKey:    sourceKey,
			TargetFolder: targetFolder,
			State:        model.JobQueued,
		}
		if err := p.jobs.Create(ctx, record); err != nil {
			logger.Warn("任务记录创建失败",
				logger.String("jobId", jobID),
				logger.ErrorField(err))
		}
	}

	logger.Info("开始转换任务",
		logger.String("jobId", jobID),
		logger.String("sourceKey", sourceKey),
		logger.String("targetFolder", targetFolder))

	result := p.run(ctx, jobID, sourceKey, targetFolder)

	if result.Success {
		p.setState(ctx, jobID, model.JobCompleted, "")
		logger.Info("转换任务完成",
			logger.String("jobId", jobID),
			logger.String("manifestKey", result.ManifestKey),
			logger.Int("segmentCount", len(result.SegmentKeys)),
			logger.Bool("hasCleanVariant", result.HasCleanVariant),
			logger.Duration("totalTime", time.Since(startTime)))
	} else {
		p.setState(ctx, jobID, model.JobFailed, result.Error)
		logger.Error("转换任务失败",
			logger.String("jobId", jobID),
			logger.String("sourceKey", sourceKey),
			logger.String("error", result.Error))
	}

	// 终态保留一段时间供状态查询，随后释放注册表条目
	time.AfterFunc(registryRetention, func() {
		p.registry.Release(jobID)
	})

	return result
}

// run 执行各阶段，返回不带终态回写的结果
func (p *Processor) run(ctx context.Context, jobID, sourceKey, targetFolder string) *model.JobResult {
	fail := func(err error) *model.JobResult {
		return &model.JobResult{JobID: jobID, Success: false, Error: err.Error()}
	}

	// 每个任务独立的临时工作目录
	tempDir, err := os.MkdirTemp("", "convert-"+jobID+"-")
	if err != nil {
		return fail(fmt.Errorf("创建临时目录失败: %w", err))
	}
	defer func() {
		if err := os.RemoveAll(tempDir); err != nil {
			logger.Warn("清理临时目录失败",
				logger.String("tempDir", tempDir),
				logger.ErrorField(err))
		}
	}()

	// ---------- 下载 ----------
	p.setState(ctx, jobID, model.JobDownloading, "")
	inputPath := filepath.Join(tempDir, "source"+filepath.Ext(sourceKey))
	if err := p.downloadSource(ctx, sourceKey, inputPath); err != nil {
		return fail(err)
	}

	// ---------- 转写 ----------
	p.setState(ctx, jobID, model.JobTranscribing, "")
	var words []model.TranscribedWord
	if p.transcriber != nil {
		words, err = p.transcriber.Transcribe(ctx, inputPath)
		if err != nil {
			// 转写失败不致命，仅交付原始版
			logger.Warn("转写失败，跳过洁净版",
				logger.String("jobId", jobID),
				logger.ErrorField(err))
			words = nil
		}
	}

	// ---------- 静音规划 ----------
	p.setState(ctx, jobID, model.JobRedacting, "")
	cleanPath := ""
	if len(words) > 0 && len(p.banned) > 0 {
		ranges, planErr := redact.Plan(words, p.banned, p.mutePad)
		if planErr != nil {
			logger.Warn("静音规划失败，跳过洁净版",
				logger.String("jobId", jobID),
				logger.ErrorField(planErr))
		} else if len(ranges) > 0 {
			cleanPath, err = p.encoder.Mute(ctx, inputPath, ranges)
			if err != nil {
				var encErr *audio.EncodeError
				if !errors.As(err, &encErr) {
					// 非预期错误同样降级
					logger.Error("静音编码出现未分类错误",
						logger.String("jobId", jobID),
						logger.ErrorField(err))
				}
				logger.Warn("洁净版编码失败，仅交付原始版",
					logger.String("jobId", jobID),
					logger.ErrorField(err))
				cleanPath = ""
			}
		}
	}

	// ---------- 切片与增量上传（原始版，致命路径） ----------
	p.setState(ctx, jobID, model.JobEncoding, "")
	manifestKey, segmentKeys, duration, err := p.segmentAndUpload(ctx, inputPath, tempDir, "hls", targetFolder)
	if err != nil {
		return fail(err)
	}

	// ---------- 洁净版切片（降级路径） ----------
	hasClean := false
	cleanManifestKey := ""
	if cleanPath != "" {
		cleanFolder := targetFolder + "-clean"
		ck, _, _, cleanErr := p.segmentAndUpload(ctx, cleanPath, tempDir, "hls-clean", cleanFolder)
		if cleanErr != nil {
			logger.Warn("洁净版切片失败，仅交付原始版",
				logger.String("jobId", jobID),
				logger.ErrorField(cleanErr))
		} else {
			hasClean = true
			cleanManifestKey = ck
		}
	}

	// ---------- 收尾 ----------
	p.setState(ctx, jobID, model.JobUploading, "")
	if p.assets != nil {
		if err := p.assets.UpdateManifest(ctx, sourceKey, manifestKey, cleanManifestKey, hasClean, duration); err != nil {
			logger.Warn("资产清单回写失败",
				logger.String("jobId", jobID),
				logger.String("sourceKey", sourceKey),
				logger.ErrorField(err))
		}
	}

	return &model.JobResult{
		JobID:            jobID,
		Success:          true,
		ManifestKey:      manifestKey,
		SegmentKeys:      segmentKeys,
		HasCleanVariant:  hasClean,
		CleanManifestKey: cleanManifestKey,
		Duration:         duration,
	}
}

// downloadSource 下载源对象到本地文件，对象缺失或为空时返回 DownloadError
func (p *Processor) downloadSource(ctx context.Context, sourceKey, destPath string) error {
	reader, err := p.store.Download(ctx, sourceKey)
	if err != nil {
		return &DownloadError{Key: sourceKey, Inner: err}
	}
	defer reader.Close()

	f, err := os.Create(destPath)
	if err != nil {
		return &DownloadError{Key: sourceKey, Inner: err}
	}
	defer f.Close()

	n, err := io.Copy(f, reader)
	if err != nil {
		return &DownloadError{Key: sourceKey, Inner: err}
	}
	if n == 0 {
		return &DownloadError{Key: sourceKey, Inner: fmt.Errorf("源对象为空")}
	}
	return nil
}

// segmentAndUpload 对单个输入做 HLS 切片并增量上传到 folder/ 下
// 返回清单对象键、分片对象键和音频时长
func (p *Processor) segmentAndUpload(ctx context.Context, inputPath, tempDir, subDir, folder string) (string, []string, float32, error) {
	outDir := filepath.Join(tempDir, subDir)
	if err := os.MkdirAll(outDir, 0755); err != nil {
		return "", nil, 0, &audio.TranscodeError{Inner: fmt.Errorf("创建输出目录失败 %s: %w", outDir, err)}
	}

	uploader := newSegmentUploader(p.store, p.segCache, folder, outDir, p.workers)
	if err := uploader.Start(ctx); err != nil {
		return "", nil, 0, &audio.TranscodeError{Inner: err}
	}

	baseURL := fmt.Sprintf("/stream/%s/", folder)
	result, encErr := p.encoder.SegmentHLS(ctx, inputPath, outDir, baseURL)

	keys, uploadErr := uploader.Finish()
	if encErr != nil {
		return "", nil, 0, encErr
	}
	if uploadErr != nil {
		return "", nil, 0, uploadErr
	}

	// 清单在切片过程中会被 FFmpeg 反复改写，结束后以最终版本覆盖一次
	manifestKey := folder + "/" + filepath.Base(result.ManifestPath)
	if err := p.uploadFinalManifest(ctx, result.ManifestPath, manifestKey); err != nil {
		return "", nil, 0, err
	}

	segmentKeys := make([]string, 0, len(keys))
	for _, k := range keys {
		if filepath.Ext(k) == ".ts" {
			segmentKeys = append(segmentKeys, k)
		}
	}

	return manifestKey, segmentKeys, result.Duration, nil
}

// uploadFinalManifest 上传最终版清单并刷新热缓存
func (p *Processor) uploadFinalManifest(ctx context.Context, manifestPath, manifestKey string) error {
	data, err := os.ReadFile(manifestPath)
	if err != nil {
		return &UploadError{Key: manifestKey, Inner: err}
	}

	uploadCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()
	if err := p.store.Upload(uploadCtx, manifestKey, bytes.NewReader(data), int64(len(data)), "application/vnd.apple.mpegurl"); err != nil {
		return &UploadError{Key: manifestKey, Inner: err}
	}

	if p.segCache != nil {
		folder, name := filepath.Split(manifestKey)
		cacheKey := cache.SegmentKey(filepath.Clean(folder), name)
		if err := p.segCache.Set(cacheKey, data); err != nil {
			logger.Warn("清单写入Redis失败",
				logger.String("key", manifestKey),
				logger.ErrorField(err))
		}
	}
	return nil
}
