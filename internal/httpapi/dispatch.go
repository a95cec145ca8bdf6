package httpapi

import (
	"context"
	"net/http"

	"autframe/pkg/domain"
	"autframe/pkg/errx"

	"github.com/tidwall/gjson"
)

type handlerFunc func(r *http.Request, params gjson.Result) (any, error)

// codeResult 代码缓冲区结果
type codeResult struct {
	Code string `json:"code"`
}

// dispatch 根据 method 分发请求
func (s *Server) dispatch(r *http.Request, req *Request) *Response {
	handlers := map[string]handlerFunc{
		"session.create":     s.handleSessionCreate,
		"session.close":      s.handleSessionClose,
		"session.list":       s.handleSessionList,
		"session.get":        s.handleSessionGet,
		"app.navigate":       s.handleAppNavigate,
		"code.get":           s.handleCodeGet,
		"code.set":           s.handleCodeSet,
		"navigation.history": s.handleNavigationHistory,
		"target.list":        s.handleTargetList,
	}
	h, ok := handlers[req.Method]
	if !ok {
		return &Response{ID: req.ID, Error: toErrorObject(errx.New(errx.CodeMethodNotFound, req.Method))}
	}
	result, err := h(r, req.Params)
	if err != nil {
		return &Response{ID: req.ID, Error: toErrorObject(err)}
	}
	return &Response{ID: req.ID, Result: result}
}

// sessionID 读取必填的 sessionId 参数
func sessionID(params gjson.Result) (domain.SessionID, error) {
	id := params.Get("sessionId").String()
	if id == "" {
		return "", errx.New(errx.CodeInvalidParams, "sessionId is required")
	}
	return domain.SessionID(id), nil
}

func (s *Server) handleSessionCreate(r *http.Request, _ gjson.Result) (any, error) {
	return s.svc.CreateSession(r.Context())
}

func (s *Server) handleSessionClose(r *http.Request, params gjson.Result) (any, error) {
	id, err := sessionID(params)
	if err != nil {
		return nil, err
	}
	return nil, s.svc.CloseSession(r.Context(), id)
}

func (s *Server) handleSessionList(_ *http.Request, _ gjson.Result) (any, error) {
	return s.svc.ListSessions(), nil
}

func (s *Server) handleSessionGet(_ *http.Request, params gjson.Result) (any, error) {
	id, err := sessionID(params)
	if err != nil {
		return nil, err
	}
	return s.svc.GetSession(id)
}

// handleAppNavigate 加载目标应用，加载失败以 APP_LOAD_FAILED 返回，会话仍可继续使用
// 调用方断开连接不会中断已发起的加载
func (s *Server) handleAppNavigate(r *http.Request, params gjson.Result) (any, error) {
	id, err := sessionID(params)
	if err != nil {
		return nil, err
	}
	url := params.Get("url")
	if url.Exists() && url.Type != gjson.String {
		return nil, errx.New(errx.CodeInvalidParams, "url must be a string")
	}
	info, err := s.svc.LoadApplication(context.WithoutCancel(r.Context()), id, url.String())
	if err != nil {
		return nil, err
	}
	return info, nil
}

func (s *Server) handleCodeGet(_ *http.Request, params gjson.Result) (any, error) {
	id, err := sessionID(params)
	if err != nil {
		return nil, err
	}
	code, err := s.svc.GetCode(id)
	if err != nil {
		return nil, err
	}
	return codeResult{Code: code}, nil
}

func (s *Server) handleCodeSet(r *http.Request, params gjson.Result) (any, error) {
	id, err := sessionID(params)
	if err != nil {
		return nil, err
	}
	code := params.Get("code")
	if !code.Exists() || code.Type != gjson.String {
		return nil, errx.New(errx.CodeInvalidParams, "code must be a string")
	}
	return nil, s.svc.SetCode(r.Context(), id, code.String())
}

func (s *Server) handleNavigationHistory(r *http.Request, params gjson.Result) (any, error) {
	id, err := sessionID(params)
	if err != nil {
		return nil, err
	}
	return s.svc.NavigationHistory(r.Context(), id, int(params.Get("limit").Int()))
}

func (s *Server) handleTargetList(r *http.Request, _ gjson.Result) (any, error) {
	return s.svc.ListTargets(r.Context())
}
