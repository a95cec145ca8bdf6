package cdp

import (
	"context"

	"autframe/internal/interceptor"

	"github.com/mafredri/cdp/protocol/fetch"
)

// Intercept 开启请求阶段拦截，并将每个暂停事件交给 h，每个页面只安装一次
func (p *Page) Intercept(ctx context.Context, h interceptor.HandlerFunc) error {
	if !p.intercepting.CompareAndSwap(false, true) {
		return nil
	}

	// 先订阅再启用，避免漏掉启用后立即到达的事件
	rp, err := p.client.Fetch.RequestPaused(ctx)
	if err != nil {
		p.intercepting.Store(false)
		return err
	}

	pattern := "*"
	patterns := []fetch.RequestPattern{
		{URLPattern: &pattern, RequestStage: fetch.RequestStageRequest},
	}
	if err := p.client.Fetch.Enable(ctx, &fetch.EnableArgs{Patterns: patterns}); err != nil {
		_ = rp.Close()
		p.intercepting.Store(false)
		return err
	}

	go p.consume(ctx, rp, h)
	return nil
}

// consume 消费拦截事件流
func (p *Page) consume(ctx context.Context, rp fetch.RequestPausedClient, h interceptor.HandlerFunc) {
	defer rp.Close()
	defer p.intercepting.Store(false)

	p.log.Info("开始消费拦截事件流")
	for {
		ev, err := rp.Recv()
		if err != nil {
			select {
			case <-ctx.Done():
				p.log.Debug("拦截事件流已结束")
			default:
				p.log.Err(err, "接收拦截事件失败")
			}
			return
		}

		req := ToRequest(ev, p.mainFrame)
		p.log.Debug("接收 CDP 事件", "requestID", ev.RequestID, "url", req.URL, "frame", string(ev.FrameID))
		h(ctx, newRoute(p.client, ev, req))
	}
}
