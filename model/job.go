package model

import "time"

// JobState 转换任务状态机
// Queued → Downloading → Transcribing → Redacting → Encoding → Uploading → Completed | Failed
// 终态不可复活，重试即创建新任务
type JobState string

const (
	JobQueued       JobState = "queued"
	JobDownloading  JobState = "downloading"
	JobTranscribing JobState = "transcribing"
	JobRedacting    JobState = "redacting"
	JobEncoding     JobState = "encoding"
	JobUploading    JobState = "uploading"
	JobCompleted    JobState = "completed"
	JobFailed       JobState = "failed"
)

// Terminal reports whether the state is final.
func (s JobState) Terminal() bool {
	return s == JobCompleted || s == JobFailed
}

// JobRecord 转换任务的持久化记录
type JobRecord struct {
	ID           string    `json:"id" gorm:"primaryKey;size:64"`
	SourceKey    string    `json:"sourceKey" gorm:"size:512;index"`
	TargetFolder string    `json:"targetFolder" gorm:"size:512"`
	State        JobState  `json:"state" gorm:"size:32"`
	Error        string    `json:"error,omitempty" gorm:"size:1024"`
	CreatedAt    time.Time `json:"createdAt"`
	UpdatedAt    time.Time `json:"updatedAt"`
}

// TableName 指定 GORM 表名
func (JobRecord) TableName() string {
	return "processing_jobs"
}

// JobResult is the outcome of a conversion, returned to the trigger caller.
// A failed job carries Success=false and a message, never a panic upward.
type JobResult struct {
	JobID            string   `json:"jobId"`
	Success          bool     `json:"success"`
	ManifestKey      string   `json:"manifestKey,omitempty"`
	SegmentKeys      []string `json:"segmentKeys,omitempty"`
	HasCleanVariant  bool     `json:"hasCleanVariant"`
	CleanManifestKey string   `json:"cleanManifestKey,omitempty"`
	Duration         float32  `json:"duration,omitempty"`
	Error            string   `json:"error,omitempty"`
}
