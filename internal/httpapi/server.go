package httpapi

import (
	"encoding/json"
	"io"
	"net/http"
	"time"

	"autframe/internal/harness"
	"autframe/internal/logger"
	api "autframe/pkg/api"
	"autframe/pkg/errx"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/tidwall/gjson"
)

// maxBodySize API 请求体上限
const maxBodySize = 1 << 20

// Server 后端 HTTP 入口：外壳文档、外壳静态资源与 /api 接口
type Server struct {
	svc     api.Service
	harness *harness.Harness
	log     logger.Logger
	router  chi.Router
}

// NewServer 创建 HTTP 接口服务
func NewServer(svc api.Service, h *harness.Harness, l logger.Logger) *Server {
	if l == nil {
		l = logger.NewNop()
	}
	s := &Server{svc: svc, harness: h, log: l}

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(s.accessLog)
	r.Use(middleware.Recoverer)

	r.Get("/", s.handleIndex)
	if h != nil && h.Assets != nil {
		r.Handle("/assets/*", http.StripPrefix("/assets/", http.FileServer(http.FS(h.Assets))))
	}
	r.Group(func(r chi.Router) {
		r.Use(cors)
		r.Options("/api", func(w http.ResponseWriter, r *http.Request) {})
		r.Post("/api", s.handleAPI)
	})
	s.router = r
	return s
}

// ServeHTTP 实现 http.Handler
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}

// Request 表示通用请求结构
type Request struct {
	Method string
	ID     json.RawMessage
	Params gjson.Result
}

// Response 表示通用响应结构
type Response struct {
	ID     json.RawMessage `json:"id,omitempty"`
	Result any             `json:"result,omitempty"`
	Error  *ErrorObject    `json:"error,omitempty"`
}

// ErrorObject 表示错误信息
type ErrorObject struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// handleIndex 返回未注入的外壳文档，正常流程中该请求由浏览器侧拦截处理
func (s *Server) handleIndex(w http.ResponseWriter, r *http.Request) {
	if s.harness == nil {
		http.NotFound(w, r)
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	_, _ = io.WriteString(w, s.harness.Document)
}

// handleAPI 解析请求并按 method 分发
func (s *Server) handleAPI(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(io.LimitReader(r.Body, maxBodySize))
	if err != nil {
		writeResponse(w, &Response{Error: toErrorObject(errx.Wrap(errx.CodeInvalidRequest, err, "read body"))})
		return
	}
	if !gjson.ValidBytes(body) {
		writeResponse(w, &Response{Error: toErrorObject(errx.New(errx.CodeInvalidRequest, "body is not valid json"))})
		return
	}

	req := &Request{
		Method: gjson.GetBytes(body, "method").String(),
		Params: gjson.GetBytes(body, "params"),
	}
	if id := gjson.GetBytes(body, "id"); id.Exists() {
		req.ID = json.RawMessage(id.Raw)
	}
	if req.Method == "" {
		writeResponse(w, &Response{ID: req.ID, Error: toErrorObject(errx.New(errx.CodeInvalidRequest, "method is required"))})
		return
	}

	res := s.dispatch(r, req)
	if res.Error != nil {
		s.log.Warn("API 调用失败", "method", req.Method, "code", res.Error.Code, "error", res.Error.Message)
	}
	writeResponse(w, res)
}

// writeResponse 写出统一响应
func writeResponse(w http.ResponseWriter, res *Response) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	_ = json.NewEncoder(w).Encode(res)
}

// toErrorObject 转换错误为响应错误对象
func toErrorObject(err error) *ErrorObject {
	return &ErrorObject{Code: string(errx.CodeOf(err)), Message: err.Error()}
}

// cors 外壳可能在目标源下运行，/api 需允许跨域调用
func cors(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "POST, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type")

		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusNoContent)
			return
		}
		next.ServeHTTP(w, r)
	})
}

// accessLog 记录请求方法、路径、状态与耗时
func (s *Server) accessLog(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)
		s.log.Debug("HTTP 请求",
			"method", r.Method,
			"path", r.URL.Path,
			"status", ww.Status(),
			"durationMs", time.Since(start).Milliseconds(),
			"requestID", middleware.GetReqID(r.Context()),
		)
	})
}
