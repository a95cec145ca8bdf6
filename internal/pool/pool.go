package pool

import (
	"context"
	"fmt"
	"sync"
	"time"

	"autframe/internal/logger"
)

// Pool 并发工作池，固定数量的 worker 消费任务队列，队列满时丢弃任务交由调用方降级
type Pool struct {
	workers   int
	queue     chan func()
	queueCap  int
	log       logger.Logger
	startOnce sync.Once
	stopOnce  sync.Once
	stop      chan struct{}

	mu          sync.Mutex
	totalSubmit int64
	totalDrop   int64
}

// Stats 工作池统计
type Stats struct {
	QueueLen    int64 `json:"queueLen"`
	QueueCap    int64 `json:"queueCap"`
	TotalSubmit int64 `json:"totalSubmit"`
	TotalDrop   int64 `json:"totalDrop"`
}

// New 创建并发工作池实例
// size: worker 数量，<=0 表示不限制（每个任务单独起协程）；queueCap: 队列容量（<=0 时为 size * 8）
func New(size int, queueCap int) *Pool {
	if size <= 0 {
		return &Pool{log: logger.NewNop(), stop: make(chan struct{})}
	}
	if queueCap <= 0 {
		queueCap = size * 8
	}
	return &Pool{
		workers:  size,
		queue:    make(chan func(), queueCap),
		queueCap: queueCap,
		log:      logger.NewNop(),
		stop:     make(chan struct{}),
	}
}

// SetLogger 设置日志记录器
func (p *Pool) SetLogger(l logger.Logger) {
	if l != nil {
		p.log = l
	}
}

// Start 启动 worker 协程与状态监控，重复调用无效
func (p *Pool) Start(ctx context.Context) {
	if !p.IsEnabled() {
		return
	}
	p.startOnce.Do(func() {
		for i := 0; i < p.workers; i++ {
			go p.worker(ctx)
		}
		go p.monitor(ctx)
	})
}

// Stop 停止所有 worker 与监控协程
func (p *Pool) Stop() {
	p.stopOnce.Do(func() { close(p.stop) })
}

// monitor 定期输出工作池状态
func (p *Pool) monitor(ctx context.Context) {
	ticker := time.NewTicker(30 * time.Second)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-p.stop:
			return
		case <-ticker.C:
			st := p.Stats()
			if st.TotalSubmit > 0 {
				usage := float64(st.QueueLen) / float64(st.QueueCap) * 100
				dropRate := float64(st.TotalDrop) / float64(st.TotalSubmit) * 100
				p.log.Info("工作池状态监控", "queueLen", st.QueueLen, "queueCap", st.QueueCap,
					"usage", fmt.Sprintf("%.1f%%", usage), "totalSubmit", st.TotalSubmit,
					"totalDrop", st.TotalDrop, "dropRate", fmt.Sprintf("%.2f%%", dropRate))
			}
		}
	}
}

// worker 从队列中取任务并执行
func (p *Pool) worker(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case <-p.stop:
			return
		case fn := <-p.queue:
			if fn != nil {
				fn()
			}
		}
	}
}

// Submit 提交任务
// 未启用并发限制时直接起协程执行；队列已满时计入丢弃并返回 false
func (p *Pool) Submit(fn func()) bool {
	if !p.IsEnabled() {
		go fn()
		return true
	}
	p.mu.Lock()
	p.totalSubmit++
	p.mu.Unlock()
	select {
	case p.queue <- fn:
		return true
	default:
		p.mu.Lock()
		p.totalDrop++
		drop, submit := p.totalDrop, p.totalSubmit
		p.mu.Unlock()
		p.log.Warn("工作池队列已满，任务被丢弃", "queueCap", p.queueCap, "totalSubmit", submit, "totalDrop", drop)
		return false
	}
}

// Stats 返回工作池统计信息
func (p *Pool) Stats() Stats {
	if !p.IsEnabled() {
		return Stats{}
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	return Stats{
		QueueLen:    int64(len(p.queue)),
		QueueCap:    int64(p.queueCap),
		TotalSubmit: p.totalSubmit,
		TotalDrop:   p.totalDrop,
	}
}

// IsEnabled 检查工作池是否已启用并发限制
func (p *Pool) IsEnabled() bool {
	return p.queue != nil
}
