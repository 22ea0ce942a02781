package audio

import (
	"context"

	"ClearFM/model"
)

// SegmentResult 一次 HLS 切片的本地产物
type SegmentResult struct {
	ManifestPath string   // playlist.m3u8 本地路径
	SegmentPaths []string // segment_NNN.ts 本地路径，按序号升序
	Duration     float32  // 音频总时长，秒
}

// Encoder 外部编码器的窄接口
// 管道编排只依赖此接口，测试中注入假实现即可，无需真实子进程
type Encoder interface {
	// Mute 对输入文件按静音区间做音量门控，输出"洁净版"文件路径
	Mute(ctx context.Context, inputPath string, ranges []model.MuteRange) (string, error)
	// SegmentHLS 将输入文件切为 HLS 清单加固定时长分片，写入 outDir
	SegmentHLS(ctx context.Context, inputPath, outDir, baseURL string) (*SegmentResult, error)
	// Duration 探测音频时长
	Duration(ctx context.Context, inputPath string) (float32, error)
}

// EncodeError 洁净版音量门控失败
// 对整个任务非致命：跳过洁净版，继续交付原始版
type EncodeError struct {
	Inner error
}

func (e *EncodeError) Error() string { return "clean variant encode failed: " + e.Inner.Error() }
func (e *EncodeError) Unwrap() error { return e.Inner }

// TranscodeError 主切片失败，对任务致命
type TranscodeError struct {
	Inner error
}

func (e *TranscodeError) Error() string { return "hls segmentation failed: " + e.Inner.Error() }
func (e *TranscodeError) Unwrap() error { return e.Inner }
