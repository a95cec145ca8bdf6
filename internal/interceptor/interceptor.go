package interceptor

import (
	"context"
	"time"

	"autframe/internal/logger"
	"autframe/internal/pool"
)

// Interceptor 拦截调度器，将每个被暂停的请求交给工作池处理，并保证请求总会被结束
type Interceptor struct {
	pool    *pool.Pool
	handler HandlerFunc
	log     logger.Logger
}

// New 创建拦截调度器
func New(handler HandlerFunc, log logger.Logger) *Interceptor {
	if log == nil {
		log = logger.NewNop()
	}
	return &Interceptor{
		handler: handler,
		log:     log,
	}
}

// SetPool 设置并发池
func (i *Interceptor) SetPool(p *pool.Pool) {
	i.pool = p
}

// Start 启动并发池
func (i *Interceptor) Start(ctx context.Context) {
	if i.pool != nil && i.pool.IsEnabled() {
		i.pool.SetLogger(i.log)
		i.pool.Start(ctx)
	}
}

// Dispatch 调度单个请求，不阻塞事件流
func (i *Interceptor) Dispatch(ctx context.Context, r Route) {
	task := func() { i.run(ctx, r) }
	if i.pool == nil {
		go task()
		return
	}
	if !i.pool.Submit(task) {
		i.degradeAndContinue(ctx, r, "并发队列已满")
	}
}

// run 执行处理函数，panic 时降级放行
func (i *Interceptor) run(ctx context.Context, r Route) {
	defer func() {
		if rec := recover(); rec != nil {
			i.log.Error("handler panic 捕获", "requestID", r.Request().ID, "panic", rec)
			i.degradeAndContinue(ctx, r, "处理函数异常")
		}
	}()
	i.handler(ctx, r)
}

// degradeAndContinue 降级处理：直接放行
func (i *Interceptor) degradeAndContinue(ctx context.Context, r Route, reason string) {
	i.log.Warn("执行降级策略：直接放行", "reason", reason, "requestID", r.Request().ID)
	ctx2, cancel := context.WithTimeout(ctx, 1*time.Second)
	defer cancel()
	if err := r.Continue(ctx2); err != nil {
		i.log.Warn("降级策略执行失败", "error", err.Error(), "requestID", r.Request().ID)
	}
}

// Stats 返回并发工作池的运行统计
func (i *Interceptor) Stats() pool.Stats {
	if i.pool == nil {
		return pool.Stats{}
	}
	return i.pool.Stats()
}
