package api

import (
	"context"

	"autframe/internal/registry"
	"autframe/internal/service"
	"autframe/pkg/domain"
)

// Service 服务接口
type Service interface {
	// CreateSession 打开新标签页并启动会话，返回时默认应用已加载
	CreateSession(ctx context.Context) (domain.SessionInfo, error)

	// CloseSession 关闭会话及其标签页
	CloseSession(ctx context.Context, id domain.SessionID) error

	// GetSession 查询会话
	GetSession(id domain.SessionID) (domain.SessionInfo, error)

	// ListSessions 列出全部会话
	ListSessions() []domain.SessionInfo

	// LoadApplication 在会话的 iframe 中加载目标应用
	LoadApplication(ctx context.Context, id domain.SessionID, url string) (domain.SessionInfo, error)

	// GetCode 读取代码缓冲区
	GetCode(id domain.SessionID) (string, error)

	// SetCode 替换代码缓冲区
	SetCode(ctx context.Context, id domain.SessionID, code string) error

	// NavigationHistory 查询会话最近的应用加载记录，按时间倒序
	NavigationHistory(ctx context.Context, id domain.SessionID, limit int) ([]domain.NavigationEvent, error)

	// ListTargets 列出浏览器目标
	ListTargets(ctx context.Context) ([]domain.TargetInfo, error)

	// Close 关闭全部会话
	Close(ctx context.Context) error
}

// NewService 创建并返回服务接口实现
func NewService(tabs service.Tabs, reg *registry.Registry, opts service.Options) Service {
	return service.New(tabs, reg, opts)
}
