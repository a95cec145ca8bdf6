package repo

import (
	"context"
	"sync"
	"time"

	"autframe/internal/logger"
	"autframe/internal/storage/model"
	"autframe/pkg/domain"

	"gorm.io/gorm"
)

// NavigationRepoOptions 异步写入参数
type NavigationRepoOptions struct {
	BatchSize     int           // 达到该数量立即刷新
	FlushInterval time.Duration // 定时刷新间隔
	MaxBufferSize int           // 缓冲上限，超过后丢弃新记录
}

// NavigationRepo 应用加载记录仓库，记录异步批量写入
type NavigationRepo struct {
	BaseRepository[model.NavigationRecord]
	log      logger.Logger
	opts     NavigationRepoOptions
	buffer   []model.NavigationRecord
	bufferMu sync.Mutex
	writeMu  sync.Mutex // 串行化缓冲交换与批量写入
	dropped  int64
	flushCh  chan struct{}
	stopCh   chan struct{}
	stopOnce sync.Once
	wg       sync.WaitGroup
}

// NewNavigationRepo 创建应用加载记录仓库并启动写入协程
func NewNavigationRepo(db *gorm.DB, l logger.Logger, opts NavigationRepoOptions) *NavigationRepo {
	if l == nil {
		l = logger.NewNop()
	}
	if opts.BatchSize <= 0 {
		opts.BatchSize = 50
	}
	if opts.FlushInterval <= 0 {
		opts.FlushInterval = 5 * time.Second
	}
	if opts.MaxBufferSize <= 0 {
		opts.MaxBufferSize = 10000
	}
	r := &NavigationRepo{
		BaseRepository: *NewBaseRepository[model.NavigationRecord](db),
		log:            l,
		opts:           opts,
		buffer:         make([]model.NavigationRecord, 0, opts.BatchSize),
		flushCh:        make(chan struct{}, 1),
		stopCh:         make(chan struct{}),
	}
	r.wg.Add(1)
	go r.asyncWriter()
	return r
}

// asyncWriter 异步批量写入协程
func (r *NavigationRepo) asyncWriter() {
	defer r.wg.Done()
	ticker := time.NewTicker(r.opts.FlushInterval)
	defer ticker.Stop()

	for {
		select {
		case <-r.stopCh:
			r.flush()
			return
		case <-ticker.C:
			r.flush()
		case <-r.flushCh:
			r.flush()
		}
	}
}

// flush 刷新缓冲区到数据库，返回时此前记录的数据均已落库
func (r *NavigationRepo) flush() {
	r.writeMu.Lock()
	defer r.writeMu.Unlock()

	r.bufferMu.Lock()
	if len(r.buffer) == 0 {
		r.bufferMu.Unlock()
		return
	}
	toWrite := r.buffer
	r.buffer = make([]model.NavigationRecord, 0, r.opts.BatchSize)
	r.bufferMu.Unlock()

	if err := r.CreateBatch(context.Background(), toWrite, 100); err != nil {
		r.log.Err(err, "写入应用加载记录失败", "count", len(toWrite))
	}
}

// Flush 同步刷新缓冲区
func (r *NavigationRepo) Flush() {
	r.flush()
}

// Stop 停止异步写入，剩余记录会被刷新
func (r *NavigationRepo) Stop() {
	r.stopOnce.Do(func() {
		close(r.stopCh)
		r.wg.Wait()
	})
}

// Record 记录一次应用加载（异步写入数据库）
func (r *NavigationRepo) Record(ev domain.NavigationEvent) {
	rec := model.NavigationRecord{
		SessionID:  string(ev.Session),
		Generation: ev.Generation,
		TargetURL:  ev.TargetURL,
		Mode:       string(ev.Mode),
		OK:         ev.OK,
		Error:      ev.Error,
		DurationMS: ev.DurationMS,
		Timestamp:  ev.Timestamp,
		CreatedAt:  time.Now(),
	}

	r.bufferMu.Lock()
	if len(r.buffer) >= r.opts.MaxBufferSize {
		r.dropped++
		dropped := r.dropped
		r.bufferMu.Unlock()
		r.log.Warn("应用加载记录缓冲已满，丢弃记录", "dropped", dropped)
		return
	}
	r.buffer = append(r.buffer, rec)
	needFlush := len(r.buffer) >= r.opts.BatchSize
	r.bufferMu.Unlock()

	if needFlush {
		select {
		case r.flushCh <- struct{}{}:
		default:
		}
	}
}

// QueryOptions 查询选项
type QueryOptions struct {
	SessionID string
	Mode      string
	OnlyFail  bool
	StartTime int64
	EndTime   int64
	Offset    int
	Limit     int
}

// Query 按时间倒序查询应用加载记录
func (r *NavigationRepo) Query(ctx context.Context, opts QueryOptions) ([]model.NavigationRecord, int64, error) {
	query := r.Db.WithContext(ctx).Model(&model.NavigationRecord{})

	if opts.SessionID != "" {
		query = query.Where("session_id = ?", opts.SessionID)
	}
	if opts.Mode != "" {
		query = query.Where("mode = ?", opts.Mode)
	}
	if opts.OnlyFail {
		query = query.Where("ok = ?", false)
	}
	if opts.StartTime > 0 {
		query = query.Where("timestamp >= ?", opts.StartTime)
	}
	if opts.EndTime > 0 {
		query = query.Where("timestamp <= ?", opts.EndTime)
	}

	var total int64
	if err := query.Count(&total).Error; err != nil {
		return nil, 0, err
	}

	if opts.Limit <= 0 {
		opts.Limit = 100
	}
	if opts.Limit > 1000 {
		opts.Limit = 1000
	}

	var records []model.NavigationRecord
	err := query.Order("timestamp DESC").Order("id DESC").
		Offset(opts.Offset).
		Limit(opts.Limit).
		Find(&records).Error
	return records, total, err
}

// CleanupOld 根据保留天数清理旧记录
func (r *NavigationRepo) CleanupOld(ctx context.Context, retentionDays int) (int64, error) {
	if retentionDays <= 0 {
		retentionDays = 7
	}
	cutoff := time.Now().AddDate(0, 0, -retentionDays).UnixMilli()
	res := r.Db.WithContext(ctx).Where("timestamp < ?", cutoff).Delete(&model.NavigationRecord{})
	return res.RowsAffected, res.Error
}
