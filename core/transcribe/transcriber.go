package transcribe

import (
	"context"
	"fmt"
	"time"

	"ClearFM/logger"
	"ClearFM/model"

	"github.com/sashabaranov/go-openai"
)

// Transcriber 将本地音频文件转写为带词级时间戳的词序列
// 转写是尽力而为的：返回空序列是合法结果
type Transcriber interface {
	Transcribe(ctx context.Context, inputPath string) ([]model.TranscribedWord, error)
}

// WhisperTranscriber implements Transcriber using the OpenAI Whisper API.
type WhisperTranscriber struct {
	client  *openai.Client
	timeout time.Duration
}

// NewWhisperTranscriber creates a new WhisperTranscriber instance.
// baseURL may be empty to use the default OpenAI endpoint, or point at a
// self-hosted whisper server exposing the same API.
func NewWhisperTranscriber(apiKey, baseURL string, timeout time.Duration) *WhisperTranscriber {
	cfg := openai.DefaultConfig(apiKey)
	if baseURL != "" {
		cfg.BaseURL = baseURL
	}
	if timeout <= 0 {
		timeout = 5 * time.Minute
	}
	return &WhisperTranscriber{
		client:  openai.NewClientWithConfig(cfg),
		timeout: timeout,
	}
}

// Transcribe 调用 Whisper API 获取词级时间戳
func (t *WhisperTranscriber) Transcribe(ctx context.Context, inputPath string) ([]model.TranscribedWord, error) {
	ctx, cancel := context.WithTimeout(ctx, t.timeout)
	defer cancel()

	req := openai.AudioRequest{
		Model:    openai.Whisper1,
		FilePath: inputPath,
		Format:   openai.AudioResponseFormatVerboseJSON,
		TimestampGranularities: []openai.TranscriptionTimestampGranularity{
			openai.TranscriptionTimestampGranularityWord,
		},
	}

	resp, err := t.client.CreateTranscription(ctx, req)
	if err != nil {
		return nil, fmt.Errorf("createTranscription failed: %w", err)
	}

	words := make([]model.TranscribedWord, 0, len(resp.Words))
	for _, w := range resp.Words {
		words = append(words, model.TranscribedWord{
			Text:     w.Word,
			StartSec: w.Start,
			EndSec:   w.End,
		})
	}

	logger.Debug("转写完成",
		logger.String("inputPath", inputPath),
		logger.Int("wordCount", len(words)))

	return words, nil
}
