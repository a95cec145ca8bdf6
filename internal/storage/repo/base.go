package repo

import (
	"context"
	"errors"

	"autframe/pkg/domain"

	"gorm.io/gorm"
)

// Filter 筛选器接口
type Filter interface {
	Apply(db *gorm.DB) *gorm.DB
}

// Where 简单条件筛选
type Where map[string]any

// Apply 实现 Filter
func (w Where) Apply(db *gorm.DB) *gorm.DB {
	if len(w) == 0 {
		return db
	}
	return db.Where(map[string]any(w))
}

// Order 排序参数
type Order struct {
	Field string
	Sort  string
}

// Orders 排序参数切片
type Orders []Order

// BaseRepository 基础DAO层
type BaseRepository[T any] struct {
	Db *gorm.DB
}

// NewBaseRepository 创建基础DAO层
func NewBaseRepository[T any](db *gorm.DB) *BaseRepository[T] {
	return &BaseRepository[T]{Db: db}
}

// Create 创建记录
func (r *BaseRepository[T]) Create(ctx context.Context, item *T) error {
	return r.Db.WithContext(ctx).Create(item).Error
}

// CreateBatch 批量创建记录
func (r *BaseRepository[T]) CreateBatch(ctx context.Context, items []T, size int) error {
	if len(items) == 0 {
		return nil
	}
	if size <= 0 {
		size = 100
	}
	return r.Db.WithContext(ctx).CreateInBatches(items, size).Error
}

// Updates 按筛选条件更新记录
func (r *BaseRepository[T]) Updates(ctx context.Context, filter Filter, updateData map[string]any) (int64, error) {
	res := filter.Apply(r.Db.WithContext(ctx).Model(new(T))).Updates(updateData)
	return res.RowsAffected, res.Error
}

// FindOne 查询单条记录，不存在时返回 domain.ErrRecordNotFound
func (r *BaseRepository[T]) FindOne(ctx context.Context, filter Filter) (*T, error) {
	item := new(T)
	err := filter.Apply(r.Db.WithContext(ctx)).First(item).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, domain.ErrRecordNotFound
	}
	if err != nil {
		return nil, err
	}
	return item, nil
}

// FindAll 查询记录，limit <= 0 表示不限制
func (r *BaseRepository[T]) FindAll(ctx context.Context, filter Filter, orders Orders, limit int) ([]T, error) {
	list := make([]T, 0)
	query := r.Db.WithContext(ctx).Model(new(T))
	if filter != nil {
		query = filter.Apply(query)
	}
	for _, order := range orders {
		query = query.Order(order.Field + " " + order.Sort)
	}
	if limit > 0 {
		query = query.Limit(limit)
	}
	if err := query.Find(&list).Error; err != nil {
		return nil, err
	}
	return list, nil
}

// Count 统计记录数量
func (r *BaseRepository[T]) Count(ctx context.Context, filter Filter) (int64, error) {
	var count int64
	query := r.Db.WithContext(ctx).Model(new(T))
	if filter != nil {
		query = filter.Apply(query)
	}
	if err := query.Count(&count).Error; err != nil {
		return 0, err
	}
	return count, nil
}
