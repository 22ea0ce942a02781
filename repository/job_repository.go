package repository

import (
	"context"

	"ClearFM/model"

	"gorm.io/gorm"
)

// JobRepository 转换任务数据访问接口
type JobRepository interface {
	Create(ctx context.Context, job *model.JobRecord) error
	GetByID(ctx context.Context, id string) (*model.JobRecord, error)
	UpdateState(ctx context.Context, id string, state model.JobState, errMsg string) error
	ListBySourceKey(ctx context.Context, sourceKey string) ([]*model.JobRecord, error)
}

// gormJobRepository GORM 实现
type gormJobRepository struct {
	db *gorm.DB
}

// NewGormJobRepository 创建 GORM 任务仓库
func NewGormJobRepository(db *gorm.DB) JobRepository {
	return &gormJobRepository{db: db}
}

// Create 创建任务记录
func (r *gormJobRepository) Create(ctx context.Context, job *model.JobRecord) error {
	return r.db.WithContext(ctx).Create(job).Error
}

// GetByID 根据ID获取任务，不存在时返回 nil, nil
func (r *gormJobRepository) GetByID(ctx context.Context, id string) (*model.JobRecord, error) {
	var job model.JobRecord
	err := r.db.WithContext(ctx).
		Where("id = ?", id).
		First(&job).Error
	if err != nil {
		if err == gorm.ErrRecordNotFound {
			return nil, nil
		}
		return nil, err
	}
	return &job, nil
}

// UpdateState 更新任务状态，终态附带错误信息
func (r *gormJobRepository) UpdateState(ctx context.Context, id string, state model.JobState, errMsg string) error {
	updates := map[string]interface{}{
		"state": state,
	}
	if errMsg != "" {
		updates["error"] = errMsg
	}
	return r.db.WithContext(ctx).Model(&model.JobRecord{}).
		Where("id = ?", id).
		Updates(updates).Error
}

// ListBySourceKey 列出某个源对象的全部任务，按创建时间倒序
func (r *gormJobRepository) ListBySourceKey(ctx context.Context, sourceKey string) ([]*model.JobRecord, error) {
	var jobs []*model.JobRecord
	err := r.db.WithContext(ctx).
		Where("source_key = ?", sourceKey).
		Order("created_at DESC").
		Find(&jobs).Error
	return jobs, err
}
