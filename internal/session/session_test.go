package session_test

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"autframe/internal/interceptor"
	"autframe/internal/session"
	"autframe/pkg/domain"
)

const (
	serverURL = "https://host.example"
	harness   = `<html><head></head><body><iframe name="aut-frame"></iframe></body></html>`
)

type navCall struct {
	frame domain.FrameID
	url   string
	idle  bool
}

// fakePage 记录会话对页面的调用
type fakePage struct {
	mu           sync.Mutex
	handler      interceptor.HandlerFunc
	intercepts   int
	interceptErr error
	hasFrame     bool
	navs         []navCall
	navErr       map[string]error // 按 url 返回的导航错误
	selectors    []string
	selectorErr  error
}

func (p *fakePage) Intercept(_ context.Context, h interceptor.HandlerFunc) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.interceptErr != nil {
		return p.interceptErr
	}
	p.intercepts++
	p.handler = h
	return nil
}

func (p *fakePage) FrameByName(_ context.Context, name string) (domain.FrameID, bool, error) {
	if name != session.FrameName {
		return "", false, nil
	}
	return "child-1", p.hasFrame, nil
}

func (p *fakePage) Navigate(ctx context.Context, frame domain.FrameID, url string, idle bool) error {
	if _, ok := ctx.Deadline(); !ok {
		return errors.New("navigation without deadline")
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	p.navs = append(p.navs, navCall{frame: frame, url: url, idle: idle})
	return p.navErr[url]
}

func (p *fakePage) WaitForSelector(_ context.Context, selector string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.selectors = append(p.selectors, selector)
	return p.selectorErr
}

func (p *fakePage) calls() []navCall {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]navCall(nil), p.navs...)
}

type recorder struct {
	mu     sync.Mutex
	events []domain.NavigationEvent
}

func (r *recorder) add(ev domain.NavigationEvent) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, ev)
}

func newSession(p *fakePage, rec *recorder) *session.Session {
	opts := session.Options{}
	if rec != nil {
		opts.OnNavigate = rec.add
	}
	return session.New(p, harness, serverURL, opts)
}

func TestNew_UniqueStableID(t *testing.T) {
	p := &fakePage{hasFrame: true}
	a := newSession(p, nil)
	b := newSession(p, nil)
	if a.ID() == "" || a.ID() == b.ID() {
		t.Errorf("会话ID应唯一且非空: %s %s", a.ID(), b.ID())
	}
	if len(p.calls()) != 0 || p.intercepts != 0 {
		t.Error("New 不应触发导航或拦截")
	}
	if a.ServerURL() != serverURL {
		t.Errorf("serverURL 不符: %s", a.ServerURL())
	}

	id := a.ID()
	defer a.Close()
	if err := a.Start(context.Background()); err != nil {
		t.Fatalf("启动失败: %v", err)
	}
	for _, target := range []string{"https://example.org/", "https://example.org/docs", ""} {
		if err := a.LoadApplication(context.Background(), target); err != nil {
			t.Fatalf("加载 %q 失败: %v", target, err)
		}
		if a.ID() != id {
			t.Fatalf("加载 %q 后会话ID变化: %s -> %s", target, id, a.ID())
		}
	}
}

func TestStart_FirstLoad(t *testing.T) {
	p := &fakePage{}
	rec := &recorder{}
	s := newSession(p, rec)
	defer s.Close()

	if err := s.Start(context.Background()); err != nil {
		t.Fatalf("启动失败: %v", err)
	}
	if p.intercepts != 1 {
		t.Errorf("期望安装一次拦截，实际 %d", p.intercepts)
	}
	if s.AppURL() != session.DefaultAppURL {
		t.Errorf("appURL 应为默认地址，实际 %s", s.AppURL())
	}
	calls := p.calls()
	if len(calls) != 1 || calls[0].frame != "" || calls[0].url != serverURL {
		t.Fatalf("首次加载应将顶层页面导航到后端，实际 %+v", calls)
	}
	if len(rec.events) != 1 || rec.events[0].Mode != domain.NavigationInitial || !rec.events[0].OK {
		t.Errorf("导航事件不符: %+v", rec.events)
	}
}

func TestStart_Twice(t *testing.T) {
	s := newSession(&fakePage{}, nil)
	defer s.Close()
	if err := s.Start(context.Background()); err != nil {
		t.Fatalf("启动失败: %v", err)
	}
	if err := s.Start(context.Background()); !errors.Is(err, domain.ErrSessionAlreadyStarted) {
		t.Errorf("期望 ErrSessionAlreadyStarted，实际 %v", err)
	}
}

func TestStart_InterceptFailure(t *testing.T) {
	p := &fakePage{interceptErr: errors.New("fetch disabled")}
	s := newSession(p, nil)
	if err := s.Start(context.Background()); err == nil {
		t.Fatal("拦截安装失败时应返回错误")
	}
	if len(p.calls()) != 0 {
		t.Error("拦截安装失败时不应导航")
	}
	p.interceptErr = nil
	if err := s.Start(context.Background()); err != nil {
		t.Errorf("失败后应允许重新启动: %v", err)
	}
	s.Close()
}

func TestLoadApplication_NotStarted(t *testing.T) {
	s := newSession(&fakePage{}, nil)
	if err := s.LoadApplication(context.Background(), "https://example.org/"); !errors.Is(err, domain.ErrSessionNotStarted) {
		t.Errorf("期望 ErrSessionNotStarted，实际 %v", err)
	}
}

func TestLoadApplication_FrameNavigation(t *testing.T) {
	p := &fakePage{hasFrame: true}
	rec := &recorder{}
	s := newSession(p, rec)
	defer s.Close()
	if err := s.Start(context.Background()); err != nil {
		t.Fatalf("启动失败: %v", err)
	}

	if err := s.LoadApplication(context.Background(), "https://example.org/docs"); err != nil {
		t.Fatalf("加载失败: %v", err)
	}
	calls := p.calls()
	last := calls[len(calls)-1]
	if last.frame != "child-1" || last.url != "https://example.org/docs" {
		t.Errorf("应直接导航应用帧，实际 %+v", last)
	}
	if s.AppURL() != "https://example.org/docs" {
		t.Errorf("appURL 不符: %s", s.AppURL())
	}
	ev := rec.events[len(rec.events)-1]
	if ev.Mode != domain.NavigationFrame || !ev.OK || ev.Generation != 2 {
		t.Errorf("导航事件不符: %+v", ev)
	}
}

func TestLoadApplication_Fallback(t *testing.T) {
	p := &fakePage{
		hasFrame: true,
		navErr: map[string]error{
			"https://blocked.example/app": errors.New("net::ERR_BLOCKED_BY_RESPONSE"),
		},
	}
	rec := &recorder{}
	s := newSession(p, rec)
	defer s.Close()
	if err := s.Start(context.Background()); err != nil {
		t.Fatalf("启动失败: %v", err)
	}

	if err := s.LoadApplication(context.Background(), "https://blocked.example/app"); err != nil {
		t.Fatalf("回退后应成功: %v", err)
	}
	calls := p.calls()
	last := calls[len(calls)-1]
	if last.frame != "" || last.url != "https://blocked.example" || !last.idle {
		t.Errorf("回退应以网络空闲等待导航顶层页面到目标源，实际 %+v", last)
	}
	if len(p.selectors) != 1 || p.selectors[0] != "iframe[name='aut-frame']" {
		t.Errorf("回退后应等待应用帧出现，实际 %v", p.selectors)
	}
	if s.AppURL() != "https://blocked.example/app" {
		t.Errorf("appURL 不符: %s", s.AppURL())
	}

	modes := []domain.NavigationMode{}
	for _, ev := range rec.events {
		modes = append(modes, ev.Mode)
	}
	want := []domain.NavigationMode{domain.NavigationInitial, domain.NavigationFrame, domain.NavigationFallback}
	if len(modes) != len(want) {
		t.Fatalf("导航事件序列不符: %v", modes)
	}
	for i := range want {
		if modes[i] != want[i] {
			t.Errorf("第 %d 个事件期望 %s，实际 %s", i, want[i], modes[i])
		}
	}
	if rec.events[1].OK || !rec.events[2].OK {
		t.Errorf("事件结果不符: %+v", rec.events)
	}
}

func TestLoadApplication_FallbackFails(t *testing.T) {
	p := &fakePage{
		hasFrame:    true,
		navErr:      map[string]error{"https://blocked.example/app": errors.New("blocked")},
		selectorErr: context.DeadlineExceeded,
	}
	s := newSession(p, nil)
	defer s.Close()
	if err := s.Start(context.Background()); err != nil {
		t.Fatalf("启动失败: %v", err)
	}

	err := s.LoadApplication(context.Background(), "https://blocked.example/app")
	if !errors.Is(err, domain.ErrAppLoadFailed) {
		t.Fatalf("期望 ErrAppLoadFailed，实际 %v", err)
	}
	if !strings.Contains(err.Error(), "could not load application") {
		t.Errorf("错误信息不符: %v", err)
	}

	// 失败后会话仍可用
	p.selectorErr = nil
	if err := s.LoadApplication(context.Background(), "https://example.org/"); err != nil {
		t.Errorf("失败后会话应仍可使用: %v", err)
	}
}

func TestLoadApplication_NoFrame(t *testing.T) {
	p := &fakePage{}
	s := newSession(p, nil)
	defer s.Close()
	if err := s.Start(context.Background()); err != nil {
		t.Fatalf("启动失败: %v", err)
	}
	if err := s.LoadApplication(context.Background(), "https://example.org/"); err != nil {
		t.Fatalf("加载失败: %v", err)
	}
	calls := p.calls()
	if last := calls[len(calls)-1]; last.frame != "" || last.url != serverURL {
		t.Errorf("缺少应用帧时应重新加载外壳，实际 %+v", last)
	}
	if s.AppURL() != "https://example.org/" {
		t.Errorf("appURL 不符: %s", s.AppURL())
	}
}

func TestLoadApplication_InitialFailure(t *testing.T) {
	p := &fakePage{navErr: map[string]error{serverURL: errors.New("net::ERR_CONNECTION_REFUSED")}}
	s := newSession(p, nil)
	defer s.Close()
	if err := s.Start(context.Background()); !errors.Is(err, domain.ErrAppLoadFailed) {
		t.Errorf("期望 ErrAppLoadFailed，实际 %v", err)
	}
}

// route 用于驱动已安装的拦截处理函数
type route struct {
	req  *domain.Request
	resp chan *domain.Response
}

func (r *route) Request() *domain.Request { return r.req }

func (r *route) Fulfill(_ context.Context, resp *domain.Response) error {
	r.resp <- resp
	return nil
}

func (r *route) Continue(context.Context) error {
	r.resp <- nil
	return nil
}

// serveDocument 经已安装的拦截处理函数请求顶层文档并返回应答内容
func serveDocument(t *testing.T, p *fakePage) string {
	t.Helper()
	r := &route{
		req:  &domain.Request{ID: "1", URL: serverURL + "/", ResourceType: domain.ResourceTypeDocument, IsMainFrame: true},
		resp: make(chan *domain.Response, 1),
	}
	p.mu.Lock()
	h := p.handler
	p.mu.Unlock()
	h(context.Background(), r)

	select {
	case resp := <-r.resp:
		if resp == nil {
			t.Fatal("顶层文档请求应被应答")
		}
		return string(resp.Body)
	case <-time.After(time.Second):
		t.Fatal("请求未被处理")
	}
	return ""
}

func TestStart_FirstLoadServesDefaultApp(t *testing.T) {
	p := &fakePage{}
	s := newSession(p, nil)
	defer s.Close()
	if err := s.Start(context.Background()); err != nil {
		t.Fatalf("启动失败: %v", err)
	}

	body := serveDocument(t, p)
	if !strings.Contains(body, `window.APP_URL = "`+session.DefaultAppURL+`"`) {
		t.Errorf("首次加载的外壳文档应指向默认应用: %s", body)
	}
}

func TestStart_InterceptServesHarness(t *testing.T) {
	p := &fakePage{hasFrame: true}
	s := newSession(p, nil)
	defer s.Close()
	if err := s.Start(context.Background()); err != nil {
		t.Fatalf("启动失败: %v", err)
	}
	if err := s.LoadApplication(context.Background(), "https://example.org/"); err != nil {
		t.Fatalf("加载失败: %v", err)
	}

	body := serveDocument(t, p)
	if !strings.Contains(body, `window.APP_URL = "https://example.org/"`) ||
		!strings.Contains(body, `window.SESSION_ID = "`+string(s.ID())+`"`) {
		t.Errorf("外壳文档未携带当前会话状态: %s", body)
	}
}

func TestCode(t *testing.T) {
	s := newSession(&fakePage{}, nil)
	if s.GetCode() != "" {
		t.Error("初始代码应为空")
	}
	s.SetCode("await page.goto('/')")
	if s.GetCode() != "await page.goto('/')" {
		t.Errorf("代码不符: %s", s.GetCode())
	}
}
