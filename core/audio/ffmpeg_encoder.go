package audio

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"time"

	"ClearFM/logger"
	"ClearFM/model"
)

// FFmpegEncoder implements the Encoder interface using ffmpeg/ffprobe.
type FFmpegEncoder struct {
	ffmpegPath  string
	bitrate     string // e.g., "192k"
	segmentTime string // e.g., "10"
	timeout     time.Duration
}

// NewFFmpegEncoder creates a new FFmpegEncoder.
func NewFFmpegEncoder(ffmpegPath, bitrate, segmentTime string, timeout time.Duration) *FFmpegEncoder {
	if timeout <= 0 {
		timeout = 10 * time.Minute
	}
	return &FFmpegEncoder{
		ffmpegPath:  ffmpegPath,
		bitrate:     bitrate,
		segmentTime: segmentTime,
		timeout:     timeout,
	}
}

// FFmpegPath 返回 ffmpeg 可执行文件路径
func (p *FFmpegEncoder) FFmpegPath() string {
	return p.ffmpegPath
}

// muteFilter 将静音区间拼成单个 volume 滤镜表达式
// 形如 volume=enable='between(t,0.85,1.65)+between(t,3.2,4.0)':volume=0
func muteFilter(ranges []model.MuteRange) string {
	parts := make([]string, 0, len(ranges))
	for _, r := range ranges {
		parts = append(parts, fmt.Sprintf("between(t,%.3f,%.3f)", r.StartSec, r.EndSec))
	}
	return fmt.Sprintf("volume=enable='%s':volume=0", strings.Join(parts, "+"))
}

// Mute 执行一次 ffmpeg 调用，对所有静音区间做音量门控
// 输出文件写在输入文件同目录，命名 <name>_clean<ext>
func (p *FFmpegEncoder) Mute(ctx context.Context, inputPath string, ranges []model.MuteRange) (string, error) {
	if len(ranges) == 0 {
		return "", &EncodeError{Inner: fmt.Errorf("没有静音区间")}
	}

	ext := filepath.Ext(inputPath)
	outputPath := strings.TrimSuffix(inputPath, ext) + "_clean" + ext

	args := []string{
		"-y",
		"-i", inputPath,
		"-af", muteFilter(ranges),
		"-c:a", "libmp3lame",
		"-q:a", "2",
		"-map_metadata", "-1",
		outputPath,
	}

	ctx, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()

	cmd := exec.CommandContext(ctx, p.ffmpegPath, args...)
	var stderr bytes.Buffer
	cmd.Stderr = &stderr

	logger.Debug("执行FFmpeg静音命令",
		logger.String("path", p.ffmpegPath),
		logger.String("args", strings.Join(args, " ")))

	if err := cmd.Run(); err != nil {
		return "", &EncodeError{Inner: fmt.Errorf("ffmpeg execution failed for %s: %w\nFFmpeg Error: %s", inputPath, err, stderr.String())}
	}

	if info, err := os.Stat(outputPath); err != nil {
		return "", &EncodeError{Inner: fmt.Errorf("洁净版文件未生成 %s: %w", outputPath, err)}
	} else if info.Size() == 0 {
		return "", &EncodeError{Inner: fmt.Errorf("洁净版文件为空 %s", outputPath)}
	}

	return outputPath, nil
}

// SegmentHLS 将音频切为 HLS 格式（M3U8 清单 + TS 分片）
func (p *FFmpegEncoder) SegmentHLS(ctx context.Context, inputPath, outDir, baseURL string) (*SegmentResult, error) {
	if fileInfo, err := os.Stat(inputPath); err != nil {
		return nil, &TranscodeError{Inner: fmt.Errorf("输入文件不可访问 %s: %w", inputPath, err)}
	} else if fileInfo.Size() == 0 {
		return nil, &TranscodeError{Inner: fmt.Errorf("输入文件为空 %s", inputPath)}
	}

	if err := os.MkdirAll(outDir, 0755); err != nil {
		return nil, &TranscodeError{Inner: fmt.Errorf("创建输出目录失败 %s: %w", outDir, err)}
	}

	// 获取音频时长，失败不阻塞切片
	duration, err := p.Duration(ctx, inputPath)
	if err != nil {
		logger.Warn("无法获取音频时长，继续处理",
			logger.String("file", inputPath),
			logger.ErrorField(err))
	}

	outputM3U8 := filepath.Join(outDir, "playlist.m3u8")
	segmentPattern := filepath.Join(outDir, "segment_%03d.ts")

	// 使用多线程加速转码：-threads 0 表示自动检测 CPU 核心数
	args := []string{
		"-threads", "0",
		"-y",
		"-i", inputPath,
		"-c:a", "aac",
		"-b:a", p.bitrate,
		"-ar", "44100",
		"-ac", "2",
		"-vn",
		"-map_metadata", "-1",
		"-hls_time", p.segmentTime,
		"-hls_playlist_type", "vod",
		"-hls_list_size", "0",
		"-hls_segment_filename", segmentPattern,
		"-hls_base_url", baseURL,
		"-f", "hls",
		outputM3U8,
	}

	ctx, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()

	cmd := exec.CommandContext(ctx, p.ffmpegPath, args...)
	var stderr bytes.Buffer
	cmd.Stderr = &stderr

	logger.Debug("执行FFmpeg切片命令",
		logger.String("path", p.ffmpegPath),
		logger.String("args", strings.Join(args, " ")))

	if err := cmd.Run(); err != nil {
		return nil, &TranscodeError{Inner: fmt.Errorf("ffmpeg execution failed for %s: %w\nFFmpeg Error: %s", inputPath, err, stderr.String())}
	}

	// 验证输出
	if _, err := os.Stat(outputM3U8); err != nil {
		return nil, &TranscodeError{Inner: fmt.Errorf("playlist.m3u8文件未生成 %s: %w", outputM3U8, err)}
	}

	segmentFiles, err := filepath.Glob(strings.Replace(segmentPattern, "%03d", "*", 1))
	if err != nil {
		return nil, &TranscodeError{Inner: fmt.Errorf("检查分片文件失败: %w", err)}
	}
	if len(segmentFiles) == 0 {
		return nil, &TranscodeError{Inner: fmt.Errorf("没有生成分片文件")}
	}
	sort.Strings(segmentFiles)

	logger.Info("FFmpeg切片完成",
		logger.String("inputFile", inputPath),
		logger.String("outputM3U8", outputM3U8),
		logger.Int("segmentCount", len(segmentFiles)),
		logger.Float64("duration", float64(duration)))

	return &SegmentResult{
		ManifestPath: outputM3U8,
		SegmentPaths: segmentFiles,
		Duration:     duration,
	}, nil
}

// ffprobeOutput defines the structure for ffprobe JSON output.
type ffprobeOutput struct {
	Format struct {
		Duration string `json:"duration"`
	} `json:"format"`
}

// Duration uses ffprobe to get the duration of an audio file in seconds.
func (p *FFmpegEncoder) Duration(ctx context.Context, inputPath string) (float32, error) {
	ffprobePath := strings.Replace(p.ffmpegPath, "ffmpeg", "ffprobe", 1)

	args := []string{
		"-v", "error",
		"-show_entries", "format=duration",
		"-of", "json",
		inputPath,
	}

	ctx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()

	cmd := exec.CommandContext(ctx, ffprobePath, args...)
	var out bytes.Buffer
	var stderr bytes.Buffer
	cmd.Stdout = &out
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		return 0, fmt.Errorf("ffprobe execution failed for %s: %w\nFFprobe Error: %s", inputPath, err, stderr.String())
	}

	var probeData ffprobeOutput
	if err := json.Unmarshal(out.Bytes(), &probeData); err != nil {
		return 0, fmt.Errorf("failed to unmarshal ffprobe output for %s: %w\nFFprobe Output: %s", inputPath, err, out.String())
	}

	if probeData.Format.Duration == "" {
		return 0, fmt.Errorf("duration not found in ffprobe output for %s\nFFprobe Output: %s", inputPath, out.String())
	}

	duration, err := strconv.ParseFloat(probeData.Format.Duration, 32)
	if err != nil {
		return 0, fmt.Errorf("failed to parse duration string %q for %s: %w", probeData.Format.Duration, inputPath, err)
	}

	return float32(duration), nil
}
