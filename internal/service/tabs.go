package service

import (
	"context"
	"fmt"

	adaptercdp "autframe/internal/adapter/cdp"
	"autframe/internal/logger"
	"autframe/internal/manager"
	"autframe/internal/session"
	"autframe/pkg/domain"
)

// Tabs 浏览器标签页来源
type Tabs interface {
	// Open 新建标签页并返回可驱动的页面
	Open(ctx context.Context) (domain.TargetID, session.Page, error)

	// Close 关闭标签页
	Close(ctx context.Context, id domain.TargetID) error

	// List 列出浏览器目标
	List(ctx context.Context) ([]domain.TargetInfo, error)
}

// ManagerTabs 通过 DevTools 连接管理标签页
type ManagerTabs struct {
	mgr *manager.Manager
	log logger.Logger
}

// NewManagerTabs 创建基于 manager 的标签页来源
func NewManagerTabs(mgr *manager.Manager, l logger.Logger) *ManagerTabs {
	if l == nil {
		l = logger.NewNop()
	}
	return &ManagerTabs{mgr: mgr, log: l}
}

// Open 新建标签页并包装为 CDP 页面
func (t *ManagerTabs) Open(ctx context.Context) (domain.TargetID, session.Page, error) {
	target, err := t.mgr.NewTarget(ctx)
	if err != nil {
		return "", nil, err
	}
	p, err := adaptercdp.NewPage(ctx, target.Client, t.log.With("target", string(target.ID)))
	if err != nil {
		_ = t.mgr.Detach(context.WithoutCancel(ctx), target.ID)
		return "", nil, fmt.Errorf("%w: %v", domain.ErrDevToolsUnreachable, err)
	}
	return target.ID, p, nil
}

// Close 断开并关闭标签页
func (t *ManagerTabs) Close(ctx context.Context, id domain.TargetID) error {
	return t.mgr.Detach(ctx, id)
}

// List 列出浏览器目标
func (t *ManagerTabs) List(ctx context.Context) ([]domain.TargetInfo, error) {
	return t.mgr.ListTargets(ctx)
}
