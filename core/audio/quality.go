package audio

import (
	"path/filepath"
	"strings"

	"ClearFM/model"
)

// QualityCatalog 按命名约定枚举一个基础键的音质变体
// 约定：track.mp3 / track_high.mp3 (320k) / track_medium.mp3 (192k) / track_low.mp3 (128k)
// 只做命名层面的推导，不查对象是否存在——存在性由投递层延迟校验，
// 缺失时调用方容忍 404 并回退
type QualityCatalog struct{}

// NewQualityCatalog 创建音质目录
func NewQualityCatalog() *QualityCatalog {
	return &QualityCatalog{}
}

type qualityTier struct {
	quality model.AudioQuality
	suffix  string
	bitrate int
}

// 按比特率降序排列
// 原始档没有约定码率，256 只是介于高低档之间的名义排序值
var qualityTiers = []qualityTier{
	{model.QualityHigh, "_high", 320},
	{model.QualityOriginal, "", 256},
	{model.QualityMedium, "_medium", 192},
	{model.QualityLow, "_low", 128},
}

// splitKey 拆出基础键名与扩展名，track_high.mp3 → (track, .mp3)
func splitKey(baseKey string) (string, string) {
	ext := filepath.Ext(baseKey)
	stem := strings.TrimSuffix(baseKey, ext)
	for _, tier := range qualityTiers {
		if tier.suffix != "" && strings.HasSuffix(stem, tier.suffix) {
			stem = strings.TrimSuffix(stem, tier.suffix)
			break
		}
	}
	return stem, ext
}

// ListVariants 枚举全部已知音质变体，按比特率降序
func (c *QualityCatalog) ListVariants(baseKey string) []model.QualityVariant {
	stem, ext := splitKey(baseKey)

	variants := make([]model.QualityVariant, 0, len(qualityTiers))
	for _, tier := range qualityTiers {
		variants = append(variants, model.QualityVariant{
			Quality:     tier.quality,
			BitrateKbps: tier.bitrate,
			Key:         stem + tier.suffix + ext,
		})
	}
	return variants
}

// Resolve 解析请求的音质档位
// 档位未知时回退到枚举列表的首个（最高比特率）条目，永不报错
func (c *QualityCatalog) Resolve(baseKey string, requested model.AudioQuality) model.QualityVariant {
	variants := c.ListVariants(baseKey)
	for _, v := range variants {
		if v.Quality == requested {
			return v
		}
	}
	return variants[0]
}
