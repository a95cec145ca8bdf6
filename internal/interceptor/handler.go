package interceptor

import (
	"context"
	"net/http"

	"autframe/internal/logger"
	"autframe/internal/patcher"
	"autframe/pkg/domain"
)

// Route 单个被暂停的请求，每个请求必须且只能以 Fulfill 或 Continue 结束一次
type Route interface {
	Request() *domain.Request
	Fulfill(ctx context.Context, resp *domain.Response) error
	Continue(ctx context.Context) error
}

// HandlerFunc 请求处理函数
type HandlerFunc func(ctx context.Context, r Route)

// Snapshot 处理单个请求时读取的会话状态
type Snapshot struct {
	SessionID string
	AppURL    string
	ServerURL string
}

// State 提供会话状态快照
type State interface {
	Snapshot() Snapshot
}

// Fetcher 通过后端拉取资源
type Fetcher interface {
	Fetch(ctx context.Context, url string) (*domain.Response, error)
}

// Handler 会话的拦截规则，自身不持有可变状态
type Handler struct {
	state   State
	harness string
	fetcher Fetcher
	marker  string
	log     logger.Logger
}

// NewHandler 创建拦截规则处理器
func NewHandler(state State, harness string, fetcher Fetcher, marker string, l logger.Logger) *Handler {
	if l == nil {
		l = logger.NewNop()
	}
	if marker == "" {
		marker = "assets"
	}
	return &Handler{state: state, harness: harness, fetcher: fetcher, marker: marker, log: l}
}

// Handle 对请求分类并执行相应动作
func (h *Handler) Handle(ctx context.Context, r Route) {
	req := r.Request()
	snap := h.state.Snapshot()
	kind := Classify(req, snap.ServerURL, h.marker)

	h.log.Debug("拦截请求", "requestID", req.ID, "url", req.URL, "type", req.ResourceType,
		"mainFrame", req.IsMainFrame, "kind", kind.String())

	switch kind {
	case KindDocument:
		h.serveDocument(ctx, r, snap)
	case KindAsset:
		h.serveAsset(ctx, r, snap)
	default:
		h.cont(ctx, r)
	}
}

func (h *Handler) serveDocument(ctx context.Context, r Route, snap Snapshot) {
	body, err := patcher.Patch(h.harness, patcher.Bootstrap{
		AppURL:    snap.AppURL,
		SessionID: snap.SessionID,
		ServerURL: snap.ServerURL,
	})
	if err != nil {
		h.log.Err(err, "生成外壳文档失败", "url", r.Request().URL)
		h.cont(ctx, r)
		return
	}

	resp := &domain.Response{
		StatusCode: http.StatusOK,
		Headers:    http.Header{"Content-Type": []string{"text/html; charset=utf-8"}},
		Body:       []byte(body),
	}
	if err := r.Fulfill(ctx, resp); err != nil {
		h.log.Err(err, "应答外壳文档失败", "requestID", r.Request().ID)
	}
}

func (h *Handler) serveAsset(ctx context.Context, r Route, snap Snapshot) {
	req := r.Request()
	target, err := RewriteOrigin(req.URL, snap.ServerURL)
	if err != nil {
		h.log.Err(err, "改写资源地址失败", "url", req.URL)
		h.cont(ctx, r)
		return
	}

	resp, err := h.fetcher.Fetch(ctx, target)
	if err != nil {
		h.log.Warn("代理资源失败，原样放行", "url", req.URL, "target", target, "error", err.Error())
		h.cont(ctx, r)
		return
	}
	if err := r.Fulfill(ctx, resp); err != nil {
		h.log.Err(err, "转发资源失败", "requestID", req.ID, "target", target)
	}
}

func (h *Handler) cont(ctx context.Context, r Route) {
	if err := r.Continue(ctx); err != nil {
		h.log.Warn("放行请求失败", "requestID", r.Request().ID, "error", err.Error())
	}
}
