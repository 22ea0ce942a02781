package model

import "time"

// MediaAsset represents an uploaded audio track in the library.
// Key is the immutable object-store identity of the original upload.
type MediaAsset struct {
	ID              int64     `json:"id" gorm:"primaryKey;autoIncrement"`
	Key             string    `json:"key" gorm:"column:object_key;uniqueIndex;size:512"`
	Title           string    `json:"title" gorm:"size:255"`
	Genre           string    `json:"genre" gorm:"size:64"`
	ContentType     string    `json:"contentType" gorm:"size:64"`
	Duration        float32   `json:"duration"` // Duration in seconds
	ManifestKey     string    `json:"manifestKey" gorm:"size:512"`
	CleanManifest   string    `json:"cleanManifestKey,omitempty" gorm:"size:512"`
	HasCleanVariant bool      `json:"hasCleanVariant"`
	Status          string    `json:"status" gorm:"size:32"` // processing, completed, failed
	CreatedAt       time.Time `json:"createdAt"`
	UpdatedAt       time.Time `json:"updatedAt"`
}

// TableName 指定 GORM 表名
func (MediaAsset) TableName() string {
	return "media_assets"
}

// TranscribedWord 转写出的单个词及其时间戳
type TranscribedWord struct {
	Text     string  `json:"text"`
	StartSec float64 `json:"startSec"`
	EndSec   float64 `json:"endSec"`
}

// MuteRange 静音时间窗口，单位秒
// 约定：列表内区间按 StartSec 升序且两两不重叠
type MuteRange struct {
	StartSec float64 `json:"startSec"`
	EndSec   float64 `json:"endSec"`
}

// AudioQuality 音质档位
type AudioQuality string

const (
	QualityOriginal AudioQuality = "original"
	QualityHigh     AudioQuality = "high"
	QualityMedium   AudioQuality = "medium"
	QualityLow      AudioQuality = "low"
)

// QualityVariant 一个音质档位对应的对象键
// 目录只做命名层面的枚举，对象是否真实存在由投递层延迟校验
type QualityVariant struct {
	Quality     AudioQuality `json:"quality"`
	BitrateKbps int          `json:"bitrateKbps"`
	Key         string       `json:"key"`
}
