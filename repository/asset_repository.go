package repository

import (
	"context"

	"ClearFM/model"

	"gorm.io/gorm"
)

// AssetRepository 媒体资产数据访问接口
type AssetRepository interface {
	Create(ctx context.Context, asset *model.MediaAsset) error
	GetByKey(ctx context.Context, key string) (*model.MediaAsset, error)
	GetByID(ctx context.Context, id int64) (*model.MediaAsset, error)
	ListAll(ctx context.Context) ([]*model.MediaAsset, error)
	UpdateManifest(ctx context.Context, key, manifestKey, cleanManifestKey string, hasClean bool, duration float32) error
	UpdateStatus(ctx context.Context, key, status string) error
	Delete(ctx context.Context, key string) error
}

// gormAssetRepository GORM 实现
type gormAssetRepository struct {
	db *gorm.DB
}

// NewGormAssetRepository 创建 GORM 媒体资产仓库
func NewGormAssetRepository(db *gorm.DB) AssetRepository {
	return &gormAssetRepository{db: db}
}

// Create 创建媒体资产记录
func (r *gormAssetRepository) Create(ctx context.Context, asset *model.MediaAsset) error {
	return r.db.WithContext(ctx).Create(asset).Error
}

// GetByKey 根据对象键获取资产，不存在时返回 nil, nil
func (r *gormAssetRepository) GetByKey(ctx context.Context, key string) (*model.MediaAsset, error) {
	var asset model.MediaAsset
	err := r.db.WithContext(ctx).
		Where("object_key = ?", key).
		First(&asset).Error
	if err != nil {
		if err == gorm.ErrRecordNotFound {
			return nil, nil
		}
		return nil, err
	}
	return &asset, nil
}

// GetByID 根据ID获取资产
func (r *gormAssetRepository) GetByID(ctx context.Context, id int64) (*model.MediaAsset, error) {
	var asset model.MediaAsset
	err := r.db.WithContext(ctx).First(&asset, id).Error
	if err != nil {
		if err == gorm.ErrRecordNotFound {
			return nil, nil
		}
		return nil, err
	}
	return &asset, nil
}

// ListAll 列出全部资产，按创建时间倒序
func (r *gormAssetRepository) ListAll(ctx context.Context) ([]*model.MediaAsset, error) {
	var assets []*model.MediaAsset
	err := r.db.WithContext(ctx).
		Order("created_at DESC").
		Find(&assets).Error
	return assets, err
}

// UpdateManifest 转换完成后回写清单键与时长
func (r *gormAssetRepository) UpdateManifest(ctx context.Context, key, manifestKey, cleanManifestKey string, hasClean bool, duration float32) error {
	return r.db.WithContext(ctx).Model(&model.MediaAsset{}).
		Where("object_key = ?", key).
		Updates(map[string]interface{}{
			"manifest_key":      manifestKey,
			"clean_manifest":    cleanManifestKey,
			"has_clean_variant": hasClean,
			"duration":          duration,
			"status":            "completed",
		}).Error
}

// UpdateStatus 更新资产处理状态
func (r *gormAssetRepository) UpdateStatus(ctx context.Context, key, status string) error {
	return r.db.WithContext(ctx).Model(&model.MediaAsset{}).
		Where("object_key = ?", key).
		Update("status", status).Error
}

// Delete 删除资产记录
func (r *gormAssetRepository) Delete(ctx context.Context, key string) error {
	return r.db.WithContext(ctx).
		Where("object_key = ?", key).
		Delete(&model.MediaAsset{}).Error
}
