package service

import (
	"context"
	"sync"
	"testing"

	"autframe/internal/harness"
	"autframe/internal/interceptor"
	"autframe/internal/registry"
	"autframe/internal/session"
	"autframe/pkg/domain"
)

// heldFramePage 帧内导航在 release 关闭前一直阻塞
type heldFramePage struct {
	entered chan struct{}
	release chan struct{}
	once    sync.Once
}

func (p *heldFramePage) Intercept(context.Context, interceptor.HandlerFunc) error { return nil }

func (p *heldFramePage) FrameByName(context.Context, string) (domain.FrameID, bool, error) {
	return "child-1", true, nil
}

func (p *heldFramePage) Navigate(_ context.Context, frame domain.FrameID, _ string, _ bool) error {
	if frame == "" {
		return nil
	}
	p.once.Do(func() { close(p.entered) })
	<-p.release
	return nil
}

func (p *heldFramePage) WaitForSelector(context.Context, string) error { return nil }

type heldTabs struct{ page session.Page }

func (t heldTabs) Open(context.Context) (domain.TargetID, session.Page, error) {
	return "tab-1", t.page, nil
}

func (heldTabs) Close(context.Context, domain.TargetID) error { return nil }

func (heldTabs) List(context.Context) ([]domain.TargetInfo, error) { return nil, nil }

func TestRecordNavigation_AfterCloseIsDropped(t *testing.T) {
	h, err := harness.Default()
	if err != nil {
		t.Fatalf("加载内置外壳失败: %v", err)
	}
	page := &heldFramePage{entered: make(chan struct{}), release: make(chan struct{})}
	s := New(heldTabs{page: page}, registry.New(), Options{Harness: h, ServerURL: "http://localhost:3000"})
	ctx := context.Background()

	info, err := s.CreateSession(ctx)
	if err != nil {
		t.Fatalf("创建会话失败: %v", err)
	}

	done := make(chan struct{})
	go func() {
		defer close(done)
		_, _ = s.LoadApplication(ctx, info.ID, "https://a.example/")
	}()
	<-page.entered

	if err := s.CloseSession(ctx, info.ID); err != nil {
		t.Fatalf("关闭会话失败: %v", err)
	}
	close(page.release)
	<-done

	s.mu.Lock()
	_, leaked := s.history[info.ID]
	n := len(s.history)
	s.mu.Unlock()
	if leaked || n != 0 {
		t.Errorf("会话关闭后不应保留加载记录，剩余 %d 个会话", n)
	}
}
