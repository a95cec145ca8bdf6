package interceptor_test

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"sync"
	"testing"

	"autframe/internal/interceptor"
	"autframe/pkg/domain"
)

const harnessDoc = `<html><head></head><body><iframe name="aut-frame"></iframe></body></html>`

// fakeRoute 记录请求的结束方式
type fakeRoute struct {
	req *domain.Request

	mu        sync.Mutex
	fulfilled *domain.Response
	continued int
	done      chan struct{}
	once      sync.Once
}

func newRoute(req domain.Request) *fakeRoute {
	return &fakeRoute{req: &req, done: make(chan struct{})}
}

func (r *fakeRoute) Request() *domain.Request { return r.req }

func (r *fakeRoute) Fulfill(_ context.Context, resp *domain.Response) error {
	r.mu.Lock()
	r.fulfilled = resp
	r.mu.Unlock()
	r.once.Do(func() { close(r.done) })
	return nil
}

func (r *fakeRoute) Continue(context.Context) error {
	r.mu.Lock()
	r.continued++
	r.mu.Unlock()
	r.once.Do(func() { close(r.done) })
	return nil
}

type fakeState struct{ snap interceptor.Snapshot }

func (s fakeState) Snapshot() interceptor.Snapshot { return s.snap }

type fakeFetcher struct {
	urls []string
	resp *domain.Response
	err  error
}

func (f *fakeFetcher) Fetch(_ context.Context, url string) (*domain.Response, error) {
	f.urls = append(f.urls, url)
	return f.resp, f.err
}

func newHandler(f interceptor.Fetcher) *interceptor.Handler {
	state := fakeState{snap: interceptor.Snapshot{
		SessionID: "s-1",
		AppURL:    "https://blocked.example/",
		ServerURL: "https://host.example",
	}}
	return interceptor.NewHandler(state, harnessDoc, f, "assets", nil)
}

func TestHandle_Document(t *testing.T) {
	r := newRoute(domain.Request{ID: "1", URL: "https://blocked.example/", ResourceType: domain.ResourceTypeDocument, IsMainFrame: true})
	newHandler(&fakeFetcher{}).Handle(context.Background(), r)

	if r.fulfilled == nil {
		t.Fatal("顶层文档请求应被应答")
	}
	if r.fulfilled.StatusCode != http.StatusOK {
		t.Errorf("状态码不符: %d", r.fulfilled.StatusCode)
	}
	if ct := r.fulfilled.Headers.Get("Content-Type"); ct != "text/html; charset=utf-8" {
		t.Errorf("Content-Type 不符: %s", ct)
	}
	body := string(r.fulfilled.Body)
	for _, want := range []string{`window.APP_URL = "https://blocked.example/"`, `window.SESSION_ID = "s-1"`, `name="aut-frame"`} {
		if !strings.Contains(body, want) {
			t.Errorf("文档缺少 %s", want)
		}
	}
}

func TestHandle_AssetProxied(t *testing.T) {
	f := &fakeFetcher{resp: &domain.Response{
		StatusCode: http.StatusOK,
		Headers:    http.Header{"Content-Type": []string{"application/javascript"}},
		Body:       []byte("js"),
	}}
	r := newRoute(domain.Request{ID: "2", URL: "https://cdn.example/assets/app.js?v=2", ResourceType: domain.ResourceTypeScript, IsMainFrame: true})
	newHandler(f).Handle(context.Background(), r)

	if len(f.urls) != 1 || f.urls[0] != "https://host.example/assets/app.js?v=2" {
		t.Fatalf("应从服务端源拉取，实际 %v", f.urls)
	}
	if r.fulfilled == nil || string(r.fulfilled.Body) != "js" {
		t.Fatal("应转发代理结果")
	}
	if r.fulfilled.Headers.Get("Content-Type") != "application/javascript" {
		t.Error("应原样转发响应头")
	}
}

func TestHandle_AssetNon2xxRelayed(t *testing.T) {
	f := &fakeFetcher{resp: &domain.Response{StatusCode: http.StatusNotFound, Headers: http.Header{}}}
	r := newRoute(domain.Request{ID: "3", URL: "https://cdn.example/assets/missing.css", ResourceType: domain.ResourceTypeStylesheet, IsMainFrame: true})
	newHandler(f).Handle(context.Background(), r)

	if r.fulfilled == nil || r.fulfilled.StatusCode != http.StatusNotFound {
		t.Error("非 2xx 应原样转发")
	}
}

func TestHandle_AssetFetchFailureContinues(t *testing.T) {
	f := &fakeFetcher{err: errors.New("connection refused")}
	r := newRoute(domain.Request{ID: "4", URL: "https://cdn.example/assets/app.js", ResourceType: domain.ResourceTypeScript, IsMainFrame: true})
	newHandler(f).Handle(context.Background(), r)

	if r.fulfilled != nil || r.continued != 1 {
		t.Errorf("代理失败应原样放行，fulfilled=%v continued=%d", r.fulfilled != nil, r.continued)
	}
}

func TestHandle_PassThrough(t *testing.T) {
	f := &fakeFetcher{}
	reqs := []domain.Request{
		{ID: "5", URL: "https://host.example/assets/app.js", ResourceType: domain.ResourceTypeScript, IsMainFrame: true},
		{ID: "6", URL: "https://app.example/", ResourceType: domain.ResourceTypeDocument},
		{ID: "7", URL: "https://app.example/assets/x.js", ResourceType: domain.ResourceTypeScript},
	}
	for _, req := range reqs {
		r := newRoute(req)
		newHandler(f).Handle(context.Background(), r)
		if r.fulfilled != nil || r.continued != 1 {
			t.Errorf("请求 %s 应原样放行", req.URL)
		}
	}
	if len(f.urls) != 0 {
		t.Errorf("放行请求不应触发代理: %v", f.urls)
	}
}
