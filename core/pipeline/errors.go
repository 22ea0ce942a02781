package pipeline

// DownloadError 源对象不可用，任务直接失败
type DownloadError struct {
	Key   string
	Inner error
}

func (e *DownloadError) Error() string { return "source download failed: " + e.Inner.Error() }
func (e *DownloadError) Unwrap() error { return e.Inner }

// TranscribeError 转写失败
// 对任务非致命：跳过静音规划，仅交付原始版
type TranscribeError struct {
	Inner error
}

func (e *TranscribeError) Error() string { return "transcription failed: " + e.Inner.Error() }
func (e *TranscribeError) Unwrap() error { return e.Inner }

// UploadError 分片上传失败，对任务致命
type UploadError struct {
	Key   string
	Inner error
}

func (e *UploadError) Error() string { return "segment upload failed: " + e.Inner.Error() }
func (e *UploadError) Unwrap() error { return e.Inner }
