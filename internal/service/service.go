package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"

	"autframe/internal/harness"
	"autframe/internal/logger"
	"autframe/internal/registry"
	"autframe/internal/session"
	"autframe/internal/storage/model"
	"autframe/internal/storage/repo"
	"autframe/pkg/domain"
)

// historyCap 未配置数据库时每个会话保留的加载记录数
const historyCap = 100

// Options 服务选项
type Options struct {
	Harness   *harness.Harness
	ServerURL string
	// Session 新会话的模板选项，OnNavigate 由服务接管
	Session session.Options

	// 以下仓库均可为空，为空时不做持久化
	Workspaces  *repo.WorkspaceRepo
	Navigations *repo.NavigationRepo
	Settings    *repo.SettingsRepo

	Logger logger.Logger
}

type svc struct {
	tabs Tabs
	reg  *registry.Registry
	opts Options
	log  logger.Logger

	mu      sync.Mutex
	history map[domain.SessionID][]domain.NavigationEvent
}

// New 创建并返回服务层实例
func New(tabs Tabs, reg *registry.Registry, opts Options) *svc {
	if opts.Logger == nil {
		opts.Logger = logger.NewNop()
	}
	if reg == nil {
		reg = registry.New()
	}
	return &svc{
		tabs:    tabs,
		reg:     reg,
		opts:    opts,
		log:     opts.Logger,
		history: make(map[domain.SessionID][]domain.NavigationEvent),
	}
}

// CreateSession 打开标签页、启动会话并加载默认应用，任何一步失败都会关闭标签页
func (s *svc) CreateSession(ctx context.Context) (domain.SessionInfo, error) {
	if s.opts.Harness == nil {
		return domain.SessionInfo{}, domain.ErrInvalidHarness
	}

	target, page, err := s.tabs.Open(ctx)
	if err != nil {
		s.log.Err(err, "打开浏览器标签页失败")
		return domain.SessionInfo{}, err
	}

	opts := s.opts.Session
	opts.Logger = s.log.With("target", string(target))
	opts.OnNavigate = s.recordNavigation
	if s.opts.Settings != nil {
		opts.DefaultAppURL = s.opts.Settings.GetLastAppURL(ctx, opts.DefaultAppURL)
	}

	sess := session.New(page, s.opts.Harness.Document, s.opts.ServerURL, opts)
	s.trackHistory(sess.ID())
	if err := sess.Start(ctx); err != nil {
		sess.Close()
		s.dropHistory(sess.ID())
		if cerr := s.tabs.Close(context.WithoutCancel(ctx), target); cerr != nil {
			s.log.Warn("关闭浏览器标签页失败", "target", string(target), "error", cerr.Error())
		}
		s.log.Err(err, "启动会话失败", "session", string(sess.ID()))
		return domain.SessionInfo{}, err
	}
	s.reg.Add(sess, target)

	if s.opts.Workspaces != nil {
		if _, err := s.opts.Workspaces.Open(ctx, string(sess.ID()), string(target), sess.ServerURL(), sess.AppURL()); err != nil {
			s.log.Err(err, "保存工作区失败", "session", string(sess.ID()))
		}
	}

	s.log.Info("会话已创建", "session", string(sess.ID()), "target", string(target))
	return sessionInfo(registry.Entry{Session: sess, Target: target}), nil
}

// CloseSession 注销会话、关闭标签页并标记工作区已关闭
func (s *svc) CloseSession(ctx context.Context, id domain.SessionID) error {
	e, ok := s.reg.Remove(id)
	if !ok {
		return domain.ErrSessionNotFound
	}
	e.Session.Close()
	s.dropHistory(id)

	var errs []error
	if err := s.tabs.Close(ctx, e.Target); err != nil {
		errs = append(errs, fmt.Errorf("close tab %s: %w", e.Target, err))
	}
	if s.opts.Workspaces != nil {
		if err := s.opts.Workspaces.MarkClosed(ctx, string(id)); err != nil {
			s.log.Err(err, "标记工作区关闭失败", "session", string(id))
		}
	}
	s.log.Info("会话已关闭", "session", string(id))
	return errors.Join(errs...)
}

// GetSession 查询会话
func (s *svc) GetSession(id domain.SessionID) (domain.SessionInfo, error) {
	e, ok := s.reg.Get(id)
	if !ok {
		return domain.SessionInfo{}, domain.ErrSessionNotFound
	}
	return sessionInfo(e), nil
}

// ListSessions 按创建时间列出全部会话
func (s *svc) ListSessions() []domain.SessionInfo {
	entries := s.reg.List()
	out := make([]domain.SessionInfo, 0, len(entries))
	for _, e := range entries {
		out = append(out, sessionInfo(e))
	}
	return out
}

// LoadApplication 在会话中加载目标应用，无协议前缀的地址按 https 处理
func (s *svc) LoadApplication(ctx context.Context, id domain.SessionID, url string) (domain.SessionInfo, error) {
	e, ok := s.reg.Get(id)
	if !ok {
		return domain.SessionInfo{}, domain.ErrSessionNotFound
	}
	url = NormalizeURL(url)

	loadErr := e.Session.LoadApplication(ctx, url)

	// 加载失败时 appURL 同样已更新
	if s.opts.Workspaces != nil {
		if err := s.opts.Workspaces.SetAppURL(ctx, string(id), e.Session.AppURL()); err != nil {
			s.log.Err(err, "保存应用地址失败", "session", string(id))
		}
	}
	if loadErr == nil && url != "" && s.opts.Settings != nil {
		if err := s.opts.Settings.SetLastAppURL(ctx, url); err != nil {
			s.log.Err(err, "保存上次应用地址失败")
		}
	}
	return sessionInfo(e), loadErr
}

// GetCode 读取代码缓冲区
func (s *svc) GetCode(id domain.SessionID) (string, error) {
	e, ok := s.reg.Get(id)
	if !ok {
		return "", domain.ErrSessionNotFound
	}
	return e.Session.GetCode(), nil
}

// SetCode 替换代码缓冲区并持久化
func (s *svc) SetCode(ctx context.Context, id domain.SessionID, code string) error {
	e, ok := s.reg.Get(id)
	if !ok {
		return domain.ErrSessionNotFound
	}
	e.Session.SetCode(code)
	if s.opts.Workspaces != nil {
		if err := s.opts.Workspaces.SetCode(ctx, string(id), code); err != nil {
			s.log.Err(err, "保存代码缓冲区失败", "session", string(id))
		}
	}
	return nil
}

// NavigationHistory 查询应用加载记录，配置数据库时可查询已关闭的会话
func (s *svc) NavigationHistory(ctx context.Context, id domain.SessionID, limit int) ([]domain.NavigationEvent, error) {
	if limit <= 0 {
		limit = 20
	}
	if s.opts.Navigations != nil {
		s.opts.Navigations.Flush()
		records, _, err := s.opts.Navigations.Query(ctx, repo.QueryOptions{SessionID: string(id), Limit: limit})
		if err != nil {
			return nil, fmt.Errorf("query navigation history: %w", err)
		}
		out := make([]domain.NavigationEvent, 0, len(records))
		for _, r := range records {
			out = append(out, toEvent(r))
		}
		return out, nil
	}

	if _, ok := s.reg.Get(id); !ok {
		return nil, domain.ErrSessionNotFound
	}
	s.mu.Lock()
	events := s.history[id]
	out := make([]domain.NavigationEvent, 0, min(limit, len(events)))
	for i := len(events) - 1; i >= 0 && len(out) < limit; i-- {
		out = append(out, events[i])
	}
	s.mu.Unlock()
	return out, nil
}

// ListTargets 列出浏览器目标
func (s *svc) ListTargets(ctx context.Context) ([]domain.TargetInfo, error) {
	return s.tabs.List(ctx)
}

// Close 关闭全部会话
func (s *svc) Close(ctx context.Context) error {
	var errs []error
	for _, e := range s.reg.List() {
		if err := s.CloseSession(ctx, e.Session.ID()); err != nil && !errors.Is(err, domain.ErrSessionNotFound) {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// recordNavigation 保存会话上报的加载结果
func (s *svc) recordNavigation(ev domain.NavigationEvent) {
	if s.opts.Navigations != nil {
		s.opts.Navigations.Record(ev)
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	events, ok := s.history[ev.Session]
	if !ok {
		// 会话已关闭，迟到的加载结果不再保留
		return
	}
	events = append(events, ev)
	if len(events) > historyCap {
		events = events[len(events)-historyCap:]
	}
	s.history[ev.Session] = events
}

func (s *svc) trackHistory(id domain.SessionID) {
	if s.opts.Navigations != nil {
		return
	}
	s.mu.Lock()
	s.history[id] = nil
	s.mu.Unlock()
}

func (s *svc) dropHistory(id domain.SessionID) {
	s.mu.Lock()
	delete(s.history, id)
	s.mu.Unlock()
}

// NormalizeURL 为缺少协议的地址补全 https://，空串保持不变
func NormalizeURL(raw string) string {
	raw = strings.TrimSpace(raw)
	if raw == "" || strings.Contains(raw, "://") {
		return raw
	}
	return "https://" + raw
}

func sessionInfo(e registry.Entry) domain.SessionInfo {
	return domain.SessionInfo{
		ID:        e.Session.ID(),
		Target:    e.Target,
		AppURL:    e.Session.AppURL(),
		ServerURL: e.Session.ServerURL(),
		CreatedAt: e.Session.CreatedAt().UnixMilli(),
		Intercept: e.Session.InterceptStats(),
	}
}

func toEvent(r model.NavigationRecord) domain.NavigationEvent {
	return domain.NavigationEvent{
		Session:    domain.SessionID(r.SessionID),
		Generation: r.Generation,
		TargetURL:  r.TargetURL,
		Mode:       domain.NavigationMode(r.Mode),
		OK:         r.OK,
		Error:      r.Error,
		DurationMS: r.DurationMS,
		Timestamp:  r.Timestamp,
	}
}
