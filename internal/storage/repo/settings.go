package repo

import (
	"context"
	"time"

	"autframe/internal/storage/model"

	"gorm.io/gorm"
)

// SettingsRepo 设置仓库
type SettingsRepo struct {
	BaseRepository[model.Setting]
}

// NewSettingsRepo 创建设置仓库实例
func NewSettingsRepo(db *gorm.DB) *SettingsRepo {
	return &SettingsRepo{
		BaseRepository: *NewBaseRepository[model.Setting](db),
	}
}

// Get 获取设置值
func (r *SettingsRepo) Get(ctx context.Context, key string) (string, error) {
	setting, err := r.FindOne(ctx, Where{"key": key})
	if err != nil {
		return "", err
	}
	return setting.Value, nil
}

// GetWithDefault 获取设置值，不存在时返回默认值
func (r *SettingsRepo) GetWithDefault(ctx context.Context, key, defaultValue string) string {
	val, err := r.Get(ctx, key)
	if err != nil {
		return defaultValue
	}
	return val
}

// Set 设置值（存在则更新，不存在则创建）
func (r *SettingsRepo) Set(ctx context.Context, key, value string) error {
	setting := model.Setting{
		Key:       key,
		Value:     value,
		UpdatedAt: time.Now(),
	}
	return r.Db.WithContext(ctx).Save(&setting).Error
}

// DeleteByKey 根据 key 删除设置
func (r *SettingsRepo) DeleteByKey(ctx context.Context, key string) error {
	return r.Db.WithContext(ctx).Delete(&model.Setting{}, "key = ?", key).Error
}

// GetAll 获取所有设置
func (r *SettingsRepo) GetAll(ctx context.Context) (map[string]string, error) {
	var settings []model.Setting
	if err := r.Db.WithContext(ctx).Find(&settings).Error; err != nil {
		return nil, err
	}

	result := make(map[string]string)
	for _, s := range settings {
		result[s.Key] = s.Value
	}
	return result, nil
}

// SetMultiple 批量设置
func (r *SettingsRepo) SetMultiple(ctx context.Context, kvs map[string]string) error {
	return r.Db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		now := time.Now()
		for key, value := range kvs {
			setting := model.Setting{
				Key:       key,
				Value:     value,
				UpdatedAt: now,
			}
			if err := tx.Save(&setting).Error; err != nil {
				return err
			}
		}
		return nil
	})
}

// GetDevToolsURL 获取 DevTools URL，未设置时返回空
func (r *SettingsRepo) GetDevToolsURL(ctx context.Context) string {
	return r.GetWithDefault(ctx, model.SettingKeyDevToolsURL, "")
}

// SetDevToolsURL 设置 DevTools URL
func (r *SettingsRepo) SetDevToolsURL(ctx context.Context, url string) error {
	return r.Set(ctx, model.SettingKeyDevToolsURL, url)
}

// GetLastAppURL 获取上次加载的应用地址
func (r *SettingsRepo) GetLastAppURL(ctx context.Context, fallback string) string {
	return r.GetWithDefault(ctx, model.SettingKeyLastAppURL, fallback)
}

// SetLastAppURL 保存上次加载的应用地址
func (r *SettingsRepo) SetLastAppURL(ctx context.Context, url string) error {
	return r.Set(ctx, model.SettingKeyLastAppURL, url)
}
