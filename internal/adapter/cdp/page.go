package cdp

import (
	"context"
	"encoding/json"
	"fmt"
	"sync/atomic"
	"time"

	"autframe/internal/logger"
	"autframe/pkg/domain"

	"github.com/mafredri/cdp"
	"github.com/mafredri/cdp/protocol/page"
	"github.com/mafredri/cdp/protocol/runtime"
)

// Page 基于 CDP 连接的浏览器页面
type Page struct {
	client       *cdp.Client
	log          logger.Logger
	mainFrame    page.FrameID
	pollInterval time.Duration
	intercepting atomic.Bool
}

// NewPage 启用页面域与生命周期事件，并记录顶层帧ID
func NewPage(ctx context.Context, client *cdp.Client, l logger.Logger) (*Page, error) {
	if l == nil {
		l = logger.NewNop()
	}
	if err := client.Page.Enable(ctx); err != nil {
		return nil, fmt.Errorf("enable page: %w", err)
	}
	if err := client.Page.SetLifecycleEventsEnabled(ctx, page.NewSetLifecycleEventsEnabledArgs(true)); err != nil {
		return nil, fmt.Errorf("enable lifecycle events: %w", err)
	}
	tree, err := client.Page.GetFrameTree(ctx)
	if err != nil {
		return nil, fmt.Errorf("get frame tree: %w", err)
	}
	return &Page{
		client:       client,
		log:          l,
		mainFrame:    tree.FrameTree.Frame.ID,
		pollInterval: 100 * time.Millisecond,
	}, nil
}

// FrameByName 按名称查找子帧
func (p *Page) FrameByName(ctx context.Context, name string) (domain.FrameID, bool, error) {
	tree, err := p.client.Page.GetFrameTree(ctx)
	if err != nil {
		return "", false, err
	}
	id, ok := FindFrame(tree.FrameTree, name)
	return domain.FrameID(id), ok, nil
}

// Navigate 导航指定帧
// 顶层帧导航等待 load 事件，waitNetworkIdle 时等待 networkIdle；子帧导航在提交后返回
func (p *Page) Navigate(ctx context.Context, frame domain.FrameID, url string, waitNetworkIdle bool) error {
	main := frame == "" || page.FrameID(frame) == p.mainFrame

	var events page.LifecycleEventClient
	if main {
		var err error
		events, err = p.client.Page.LifecycleEvent(ctx)
		if err != nil {
			return err
		}
		defer events.Close()
	}

	args := page.NewNavigateArgs(url)
	if !main {
		args.SetFrameID(page.FrameID(frame))
	}
	reply, err := p.client.Page.Navigate(ctx, args)
	if err != nil {
		return fmt.Errorf("%w: %v", domain.ErrNavigationFailed, err)
	}
	if reply.ErrorText != nil && *reply.ErrorText != "" {
		return fmt.Errorf("%w: %s: %s", domain.ErrNavigationFailed, url, *reply.ErrorText)
	}
	// 同文档导航没有新的 loader
	if !main || reply.LoaderID == nil {
		return nil
	}

	want := "load"
	if waitNetworkIdle {
		want = "networkIdle"
	}
	for {
		ev, err := events.Recv()
		if err != nil {
			if ctx.Err() != nil {
				return fmt.Errorf("wait for %s: %w", want, ctx.Err())
			}
			return err
		}
		if ev.FrameID == p.mainFrame && ev.LoaderID == *reply.LoaderID && ev.Name == want {
			p.log.Debug("顶层导航完成", "url", url, "event", want)
			return nil
		}
	}
}

// WaitForSelector 轮询顶层文档直到选择器匹配或 ctx 结束
func (p *Page) WaitForSelector(ctx context.Context, selector string) error {
	lit, err := json.Marshal(selector)
	if err != nil {
		return err
	}
	expr := fmt.Sprintf("document.querySelector(%s) !== null", lit)

	ticker := time.NewTicker(p.pollInterval)
	defer ticker.Stop()
	for {
		found, err := p.evaluateBool(ctx, expr)
		if err == nil && found {
			return nil
		}
		// 导航期间执行上下文可能被销毁，继续轮询
		select {
		case <-ctx.Done():
			return fmt.Errorf("wait for %s: %w", selector, ctx.Err())
		case <-ticker.C:
		}
	}
}

func (p *Page) evaluateBool(ctx context.Context, expr string) (bool, error) {
	reply, err := p.client.Runtime.Evaluate(ctx, runtime.NewEvaluateArgs(expr).SetReturnByValue(true))
	if err != nil {
		return false, err
	}
	if reply.ExceptionDetails != nil {
		return false, fmt.Errorf("evaluate: %s", reply.ExceptionDetails.Text)
	}
	var v bool
	if err := json.Unmarshal(reply.Result.Value, &v); err != nil {
		return false, err
	}
	return v, nil
}
