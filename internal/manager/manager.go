package manager

import (
	"context"
	"fmt"
	"sync"

	"autframe/internal/logger"
	"autframe/pkg/domain"

	"github.com/mafredri/cdp"
	"github.com/mafredri/cdp/devtool"
	"github.com/mafredri/cdp/rpcc"
)

// Manager 负责管理浏览器标签页及其 CDP 连接
type Manager struct {
	devtoolsURL     string
	writeBufferSize int
	log             logger.Logger
	mu              sync.RWMutex
	targets         map[domain.TargetID]*Target
}

// Target 表示一个已附加的浏览器标签页
type Target struct {
	ID     domain.TargetID
	Conn   *rpcc.Conn
	Client *cdp.Client
	Ctx    context.Context
	Cancel context.CancelFunc

	owned bool // 由 Manager 创建，断开时一并关闭
}

// New 创建标签页管理器
func New(devtoolsURL string, log logger.Logger) *Manager {
	if log == nil {
		log = logger.NewNop()
	}
	return &Manager{
		devtoolsURL:     devtoolsURL,
		writeBufferSize: 16 * 1024 * 1024,
		log:             log,
		targets:         make(map[domain.TargetID]*Target),
	}
}

// DevToolsURL 返回 DevTools 地址
func (m *Manager) DevToolsURL() string { return m.devtoolsURL }

// Ping 检查 DevTools 是否可达
func (m *Manager) Ping(ctx context.Context) error {
	if m.devtoolsURL == "" {
		return fmt.Errorf("%w: devtools url empty", domain.ErrDevToolsUnreachable)
	}
	if _, err := devtool.New(m.devtoolsURL).Version(ctx); err != nil {
		return fmt.Errorf("%w: %v", domain.ErrDevToolsUnreachable, err)
	}
	return nil
}

// NewTarget 新建一个空白标签页并附加
func (m *Manager) NewTarget(ctx context.Context) (*Target, error) {
	if m.devtoolsURL == "" {
		return nil, fmt.Errorf("%w: devtools url empty", domain.ErrDevToolsUnreachable)
	}
	dt := devtool.New(m.devtoolsURL)
	t, err := dt.Create(ctx)
	if err != nil {
		m.log.Err(err, "创建浏览器标签页失败")
		return nil, fmt.Errorf("%w: %v", domain.ErrDevToolsUnreachable, err)
	}

	target, err := m.attach(ctx, t, true)
	if err != nil {
		_ = dt.Close(context.WithoutCancel(ctx), t)
		return nil, err
	}
	return target, nil
}

// AttachTarget 附加到已存在的浏览器目标，target 为空时选择第一个 page
func (m *Manager) AttachTarget(ctx context.Context, target domain.TargetID) (*Target, error) {
	if m.devtoolsURL == "" {
		return nil, fmt.Errorf("%w: devtools url empty", domain.ErrDevToolsUnreachable)
	}

	m.mu.RLock()
	if ts, ok := m.targets[target]; ok && target != "" {
		m.mu.RUnlock()
		return ts, nil
	}
	m.mu.RUnlock()

	selected, err := m.selectTarget(ctx, target)
	if err != nil {
		return nil, err
	}
	if selected == nil {
		m.log.Error("未找到可附加的浏览器目标", "target", string(target))
		return nil, fmt.Errorf("%w: %s", domain.ErrTargetNotFound, target)
	}
	return m.attach(ctx, selected, false)
}

// attach 建立目标的 CDP 连接，连接生命周期独立于调用方 ctx
func (m *Manager) attach(ctx context.Context, t *devtool.Target, owned bool) (*Target, error) {
	targetCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))

	conn, err := rpcc.DialContext(ctx, t.WebSocketDebuggerURL,
		rpcc.WithWriteBufferSize(m.writeBufferSize),
		rpcc.WithCompression())
	if err != nil {
		cancel()
		m.log.Err(err, "连接浏览器 DevTools 失败", "target", t.ID)
		return nil, fmt.Errorf("%w: %v", domain.ErrDevToolsUnreachable, err)
	}

	target := &Target{
		ID:     domain.TargetID(t.ID),
		Conn:   conn,
		Client: cdp.NewClient(conn),
		Ctx:    targetCtx,
		Cancel: cancel,
		owned:  owned,
	}

	m.mu.Lock()
	m.targets[target.ID] = target
	m.mu.Unlock()
	m.log.Info("附加浏览器目标成功", "target", string(target.ID), "owned", owned)
	return target, nil
}

// Detach 断开单个目标连接，自建的标签页同时关闭
func (m *Manager) Detach(ctx context.Context, id domain.TargetID) error {
	m.mu.Lock()
	target, ok := m.targets[id]
	delete(m.targets, id)
	m.mu.Unlock()

	if !ok {
		return nil
	}
	return m.close(ctx, target)
}

// DetachAll 断开所有目标连接
func (m *Manager) DetachAll(ctx context.Context) error {
	m.mu.Lock()
	targets := m.targets
	m.targets = make(map[domain.TargetID]*Target)
	m.mu.Unlock()

	var firstErr error
	for _, target := range targets {
		if err := m.close(ctx, target); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

// GetTarget 获取已附加的目标
func (m *Manager) GetTarget(id domain.TargetID) (*Target, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	target, ok := m.targets[id]
	return target, ok
}

// ListTargets 列出当前浏览器中的所有 page 目标，并标记哪些已附加
func (m *Manager) ListTargets(ctx context.Context) ([]domain.TargetInfo, error) {
	if m.devtoolsURL == "" {
		return nil, fmt.Errorf("%w: devtools url empty", domain.ErrDevToolsUnreachable)
	}

	targets, err := devtool.New(m.devtoolsURL).List(ctx)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrDevToolsUnreachable, err)
	}

	m.mu.RLock()
	defer m.mu.RUnlock()

	out := make([]domain.TargetInfo, 0, len(targets))
	for _, t := range targets {
		if t == nil || t.Type != devtool.Page {
			continue
		}
		id := domain.TargetID(t.ID)
		out = append(out, domain.TargetInfo{
			ID:       id,
			Type:     string(t.Type),
			URL:      t.URL,
			Title:    t.Title,
			Attached: m.targets[id] != nil,
		})
	}
	return out, nil
}

// close 关闭单个目标连接
func (m *Manager) close(ctx context.Context, target *Target) error {
	if target.Cancel != nil {
		target.Cancel()
	}
	if target.Conn != nil {
		_ = target.Conn.Close()
	}
	if !target.owned {
		return nil
	}
	err := devtool.New(m.devtoolsURL).Close(ctx, &devtool.Target{ID: string(target.ID)})
	if err != nil {
		m.log.Warn("关闭浏览器标签页失败", "target", string(target.ID), "error", err.Error())
	}
	return err
}

// selectTarget 根据传入的 targetID 或默认策略选择目标
func (m *Manager) selectTarget(ctx context.Context, target domain.TargetID) (*devtool.Target, error) {
	targets, err := devtool.New(m.devtoolsURL).List(ctx)
	if err != nil {
		m.log.Err(err, "获取浏览器目标列表失败")
		return nil, fmt.Errorf("%w: %v", domain.ErrDevToolsUnreachable, err)
	}
	for _, t := range targets {
		if t == nil {
			continue
		}
		if target != "" {
			if t.ID == string(target) {
				return t, nil
			}
			continue
		}
		if t.Type == devtool.Page {
			return t, nil
		}
	}
	return nil, nil
}
