package httpapi_test

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"autframe/internal/harness"
	"autframe/internal/httpapi"
	"autframe/pkg/domain"

	"github.com/tidwall/gjson"
)

// fakeService 内存中的单会话服务
type fakeService struct {
	info    domain.SessionInfo
	code    string
	loadErr error
	loaded  []string
	closed  []domain.SessionID
}

func (f *fakeService) CreateSession(context.Context) (domain.SessionInfo, error) {
	return f.info, nil
}

func (f *fakeService) CloseSession(_ context.Context, id domain.SessionID) error {
	if id != f.info.ID {
		return domain.ErrSessionNotFound
	}
	f.closed = append(f.closed, id)
	return nil
}

func (f *fakeService) GetSession(id domain.SessionID) (domain.SessionInfo, error) {
	if id != f.info.ID {
		return domain.SessionInfo{}, domain.ErrSessionNotFound
	}
	return f.info, nil
}

func (f *fakeService) ListSessions() []domain.SessionInfo { return []domain.SessionInfo{f.info} }

func (f *fakeService) LoadApplication(_ context.Context, id domain.SessionID, url string) (domain.SessionInfo, error) {
	if id != f.info.ID {
		return domain.SessionInfo{}, domain.ErrSessionNotFound
	}
	f.loaded = append(f.loaded, url)
	f.info.AppURL = url
	if f.loadErr != nil {
		return f.info, f.loadErr
	}
	return f.info, nil
}

func (f *fakeService) GetCode(id domain.SessionID) (string, error) {
	if id != f.info.ID {
		return "", domain.ErrSessionNotFound
	}
	return f.code, nil
}

func (f *fakeService) SetCode(_ context.Context, id domain.SessionID, code string) error {
	if id != f.info.ID {
		return domain.ErrSessionNotFound
	}
	f.code = code
	return nil
}

func (f *fakeService) NavigationHistory(_ context.Context, id domain.SessionID, limit int) ([]domain.NavigationEvent, error) {
	events := []domain.NavigationEvent{
		{Session: id, Generation: 2, Mode: domain.NavigationFrame, OK: true},
		{Session: id, Generation: 1, Mode: domain.NavigationInitial, OK: true},
	}
	if limit > 0 && limit < len(events) {
		events = events[:limit]
	}
	return events, nil
}

func (f *fakeService) ListTargets(context.Context) ([]domain.TargetInfo, error) {
	return []domain.TargetInfo{{ID: f.info.Target, Type: "page", Attached: true}}, nil
}

func (f *fakeService) Close(context.Context) error { return nil }

func newServer(t *testing.T) (*httptest.Server, *fakeService) {
	t.Helper()
	h, err := harness.Default()
	if err != nil {
		t.Fatalf("加载内置外壳失败: %v", err)
	}
	svc := &fakeService{info: domain.SessionInfo{ID: "s-1", Target: "tab-1", ServerURL: "http://localhost:3000"}}
	ts := httptest.NewServer(httpapi.NewServer(svc, h, nil))
	t.Cleanup(ts.Close)
	return ts, svc
}

func call(t *testing.T, ts *httptest.Server, body string) gjson.Result {
	t.Helper()
	res, err := http.Post(ts.URL+"/api", "application/json", strings.NewReader(body))
	if err != nil {
		t.Fatalf("请求失败: %v", err)
	}
	defer res.Body.Close()
	data, _ := io.ReadAll(res.Body)
	if !gjson.ValidBytes(data) {
		t.Fatalf("响应不是合法 JSON: %s", data)
	}
	return gjson.ParseBytes(data)
}

func TestAPI_SessionLifecycle(t *testing.T) {
	ts, svc := newServer(t)

	res := call(t, ts, `{"id":1,"method":"session.create"}`)
	if res.Get("id").Int() != 1 || res.Get("result.id").String() != "s-1" {
		t.Errorf("创建会话响应不符: %s", res.Raw)
	}

	res = call(t, ts, `{"id":"a","method":"session.list"}`)
	if res.Get("id").String() != "a" || res.Get("result.#").Int() != 1 {
		t.Errorf("会话列表响应不符: %s", res.Raw)
	}

	res = call(t, ts, `{"method":"session.get","params":{"sessionId":"s-1"}}`)
	if res.Get("result.target").String() != "tab-1" || !res.Get("result.intercept.queueCap").Exists() {
		t.Errorf("会话详情响应不符: %s", res.Raw)
	}

	res = call(t, ts, `{"method":"session.close","params":{"sessionId":"s-1"}}`)
	if res.Get("error").Exists() || len(svc.closed) != 1 {
		t.Errorf("关闭会话失败: %s", res.Raw)
	}
}

func TestAPI_Navigate(t *testing.T) {
	ts, svc := newServer(t)

	res := call(t, ts, `{"method":"app.navigate","params":{"sessionId":"s-1","url":"https://a.example/"}}`)
	if res.Get("result.appUrl").String() != "https://a.example/" {
		t.Errorf("导航响应不符: %s", res.Raw)
	}

	svc.loadErr = fmt.Errorf("%w: frame blocked", domain.ErrAppLoadFailed)
	res = call(t, ts, `{"method":"app.navigate","params":{"sessionId":"s-1","url":"https://b.example/"}}`)
	if res.Get("error.code").String() != "APP_LOAD_FAILED" {
		t.Errorf("加载失败应返回 APP_LOAD_FAILED: %s", res.Raw)
	}
	if len(svc.loaded) != 2 {
		t.Errorf("期望两次加载，实际 %d", len(svc.loaded))
	}
}

func TestAPI_Code(t *testing.T) {
	ts, _ := newServer(t)

	res := call(t, ts, `{"method":"code.set","params":{"sessionId":"s-1","code":"await page.goto('/')"}}`)
	if res.Get("error").Exists() {
		t.Fatalf("保存代码失败: %s", res.Raw)
	}
	res = call(t, ts, `{"method":"code.get","params":{"sessionId":"s-1"}}`)
	if res.Get("result.code").String() != "await page.goto('/')" {
		t.Errorf("读取代码不符: %s", res.Raw)
	}

	res = call(t, ts, `{"method":"code.set","params":{"sessionId":"s-1","code":42}}`)
	if res.Get("error.code").String() != "INVALID_PARAMS" {
		t.Errorf("非字符串代码应被拒绝: %s", res.Raw)
	}
}

func TestAPI_HistoryAndTargets(t *testing.T) {
	ts, _ := newServer(t)

	res := call(t, ts, `{"method":"navigation.history","params":{"sessionId":"s-1","limit":1}}`)
	if res.Get("result.#").Int() != 1 || res.Get("result.0.mode").String() != "frame" {
		t.Errorf("加载记录响应不符: %s", res.Raw)
	}

	res = call(t, ts, `{"method":"target.list"}`)
	if res.Get("result.0.id").String() != "tab-1" || !res.Get("result.0.attached").Bool() {
		t.Errorf("目标列表响应不符: %s", res.Raw)
	}
}

func TestAPI_Errors(t *testing.T) {
	ts, _ := newServer(t)

	tests := []struct {
		name string
		body string
		code string
	}{
		{"invalid json", `{"method":`, "INVALID_REQUEST"},
		{"missing method", `{"params":{}}`, "INVALID_REQUEST"},
		{"unknown method", `{"method":"rules.load"}`, "METHOD_NOT_FOUND"},
		{"missing session", `{"method":"session.get","params":{}}`, "INVALID_PARAMS"},
		{"unknown session", `{"method":"session.get","params":{"sessionId":"nope"}}`, "SESSION_NOT_FOUND"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res := call(t, ts, tt.body)
			if got := res.Get("error.code").String(); got != tt.code {
				t.Errorf("期望错误码 %s，实际 %s: %s", tt.code, got, res.Raw)
			}
		})
	}
}

func TestCORS(t *testing.T) {
	ts, _ := newServer(t)

	req, _ := http.NewRequest(http.MethodOptions, ts.URL+"/api", nil)
	req.Header.Set("Origin", "https://a.example")
	res, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("预检请求失败: %v", err)
	}
	res.Body.Close()
	if res.StatusCode != http.StatusNoContent {
		t.Errorf("预检应返回 204，实际 %d", res.StatusCode)
	}
	if res.Header.Get("Access-Control-Allow-Origin") != "*" {
		t.Error("缺少跨域响应头")
	}
}

func TestHarnessRoutes(t *testing.T) {
	ts, _ := newServer(t)

	res, err := http.Get(ts.URL + "/")
	if err != nil {
		t.Fatalf("请求外壳失败: %v", err)
	}
	body, _ := io.ReadAll(res.Body)
	res.Body.Close()
	if !strings.Contains(string(body), `name="aut-frame"`) {
		t.Errorf("外壳文档缺少 iframe: %s", body)
	}
	if !strings.HasPrefix(res.Header.Get("Content-Type"), "text/html") {
		t.Errorf("Content-Type 不符: %s", res.Header.Get("Content-Type"))
	}

	res, err = http.Get(ts.URL + "/assets/harness.js")
	if err != nil {
		t.Fatalf("请求外壳脚本失败: %v", err)
	}
	body, _ = io.ReadAll(res.Body)
	res.Body.Close()
	if res.StatusCode != http.StatusOK || !strings.Contains(string(body), "window.APP_URL") {
		t.Errorf("外壳脚本响应不符: %d", res.StatusCode)
	}

	res, err = http.Get(ts.URL + "/api")
	if err != nil {
		t.Fatalf("请求失败: %v", err)
	}
	res.Body.Close()
	if res.StatusCode != http.StatusMethodNotAllowed {
		t.Errorf("GET /api 应返回 405，实际 %d", res.StatusCode)
	}
}
