package session

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"autframe/internal/interceptor"
	"autframe/internal/logger"
	"autframe/internal/patcher"
	"autframe/internal/pool"
	"autframe/internal/proxy"
	"autframe/pkg/domain"

	"github.com/google/uuid"
)

// FrameName 承载被测应用的 iframe 名称
const FrameName = patcher.FrameName

// DefaultAppURL 未指定目标时加载的应用地址
const DefaultAppURL = "https://www.playwright.dev/"

// Page 会话驱动的浏览器页面
type Page interface {
	// Intercept 为页面的全部请求安装唯一的处理函数
	Intercept(ctx context.Context, h interceptor.HandlerFunc) error

	// FrameByName 按名称查找子帧
	FrameByName(ctx context.Context, name string) (domain.FrameID, bool, error)

	// Navigate 导航指定帧，frame 为空表示顶层页面；waitNetworkIdle 为真时等待网络空闲
	Navigate(ctx context.Context, frame domain.FrameID, url string, waitNetworkIdle bool) error

	// WaitForSelector 等待选择器出现在顶层文档中
	WaitForSelector(ctx context.Context, selector string) error
}

// Options 会话选项
type Options struct {
	DefaultAppURL     string
	AssetMarker       string
	NavigationTimeout time.Duration
	SelectorTimeout   time.Duration
	Concurrency       int
	QueueCap          int
	Fetcher           interceptor.Fetcher
	Logger            logger.Logger
	OnNavigate        func(domain.NavigationEvent)
}

// Session 将一个浏览器页面与外壳文档、后端地址绑定，负责加载被测应用
type Session struct {
	id        domain.SessionID
	page      Page
	harness   string
	serverURL string
	opts      Options
	log       logger.Logger
	createdAt time.Time

	mu      sync.RWMutex
	appURL  string
	code    string
	started bool
	cancel  context.CancelFunc
	ic      *interceptor.Interceptor

	generation atomic.Uint64
}

// New 创建会话，只绑定参数，不触发任何导航
func New(page Page, harness, serverURL string, opts Options) *Session {
	if opts.DefaultAppURL == "" {
		opts.DefaultAppURL = DefaultAppURL
	}
	if opts.AssetMarker == "" {
		opts.AssetMarker = "assets"
	}
	if opts.NavigationTimeout <= 0 {
		opts.NavigationTimeout = 30 * time.Second
	}
	if opts.SelectorTimeout <= 0 {
		opts.SelectorTimeout = 10 * time.Second
	}
	if opts.Logger == nil {
		opts.Logger = logger.NewNop()
	}
	if opts.Fetcher == nil {
		opts.Fetcher = proxy.New(proxy.Options{Retries: 1}, opts.Logger)
	}

	id := domain.SessionID(uuid.New().String())
	return &Session{
		id:        id,
		page:      page,
		harness:   harness,
		serverURL: serverURL,
		opts:      opts,
		log:       opts.Logger.With("session", string(id)),
		createdAt: time.Now(),
	}
}

// ID 返回会话ID，生命周期内不变
func (s *Session) ID() domain.SessionID { return s.id }

// ServerURL 返回后端地址
func (s *Session) ServerURL() string { return s.serverURL }

// CreatedAt 返回创建时间
func (s *Session) CreatedAt() time.Time { return s.createdAt }

// AppURL 返回最近一次请求加载的应用地址
func (s *Session) AppURL() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.appURL
}

// InterceptStats 返回请求拦截工作池统计，会话未启动时为零值
func (s *Session) InterceptStats() domain.InterceptStats {
	s.mu.RLock()
	ic := s.ic
	s.mu.RUnlock()
	if ic == nil {
		return domain.InterceptStats{}
	}
	st := ic.Stats()
	return domain.InterceptStats{
		QueueLen:    st.QueueLen,
		QueueCap:    st.QueueCap,
		TotalSubmit: st.TotalSubmit,
		TotalDrop:   st.TotalDrop,
	}
}

// Snapshot 返回拦截处理所需的状态快照
func (s *Session) Snapshot() interceptor.Snapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return interceptor.Snapshot{
		SessionID: string(s.id),
		AppURL:    s.appURL,
		ServerURL: s.serverURL,
	}
}

// GetCode 返回代码缓冲区
func (s *Session) GetCode() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.code
}

// SetCode 替换代码缓冲区
func (s *Session) SetCode(code string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.code = code
}

// Start 安装请求拦截并加载默认应用，每个会话只能调用一次
func (s *Session) Start(ctx context.Context) error {
	s.mu.Lock()
	if s.started {
		s.mu.Unlock()
		return domain.ErrSessionAlreadyStarted
	}
	s.started = true
	s.mu.Unlock()

	// 拦截随会话存活，不随调用方的 ctx 结束
	runCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))

	h := interceptor.NewHandler(s, s.harness, s.opts.Fetcher, s.opts.AssetMarker, s.log)
	ic := interceptor.New(h.Handle, s.log)
	ic.SetPool(pool.New(s.opts.Concurrency, s.opts.QueueCap))
	ic.Start(runCtx)

	if err := s.page.Intercept(runCtx, ic.Dispatch); err != nil {
		cancel()
		s.mu.Lock()
		s.started = false
		s.mu.Unlock()
		return fmt.Errorf("install interception: %w", err)
	}

	s.mu.Lock()
	s.cancel = cancel
	s.ic = ic
	s.mu.Unlock()

	s.log.Info("会话已启动", "serverURL", s.serverURL)
	return s.LoadApplication(ctx, "")
}

// Close 停止拦截调度
func (s *Session) Close() {
	s.mu.Lock()
	cancel := s.cancel
	s.cancel = nil
	s.mu.Unlock()
	if cancel != nil {
		cancel()
	}
}

// LoadApplication 将被测应用加载到 iframe 中
// target 为空时使用默认应用地址并导航顶层页面到后端；
// 否则优先直接导航 iframe，失败时回退到在目标源下重新加载外壳文档
func (s *Session) LoadApplication(ctx context.Context, target string) error {
	s.mu.Lock()
	if !s.started {
		s.mu.Unlock()
		return domain.ErrSessionNotStarted
	}
	resolved := target
	if resolved == "" {
		resolved = s.opts.DefaultAppURL
	}
	// 后写者生效：在发起任何导航前更新
	s.appURL = resolved
	s.mu.Unlock()
	gen := s.generation.Add(1)

	log := s.log.With("generation", gen, "target", resolved)

	if target != "" {
		frame, ok, err := s.page.FrameByName(ctx, FrameName)
		if err != nil {
			log.Warn("查找应用帧失败", "error", err.Error())
		}
		if ok {
			err := s.attempt(gen, resolved, domain.NavigationFrame, func() error {
				return s.navigate(ctx, frame, target, false)
			})
			if err == nil {
				return nil
			}
			log.Warn("帧内导航失败，回退到顶层导航", "error", err.Error())
			if err := s.fallback(ctx, gen, target); err != nil {
				return fmt.Errorf("%w: %v", domain.ErrAppLoadFailed, err)
			}
			return nil
		}
	}

	err := s.attempt(gen, resolved, domain.NavigationInitial, func() error {
		return s.navigate(ctx, "", s.serverURL, false)
	})
	if err != nil {
		return fmt.Errorf("%w: %v", domain.ErrAppLoadFailed, err)
	}
	return nil
}

// fallback 顶层页面导航到目标源，外壳文档随之在目标源下重新生成
func (s *Session) fallback(ctx context.Context, gen uint64, target string) error {
	return s.attempt(gen, target, domain.NavigationFallback, func() error {
		origin, err := interceptor.Origin(target)
		if err != nil {
			return err
		}
		if err := s.navigate(ctx, "", origin, true); err != nil {
			return err
		}
		selCtx, cancel := context.WithTimeout(ctx, s.opts.SelectorTimeout)
		defer cancel()
		if err := s.page.WaitForSelector(selCtx, patcher.FrameSelector); err != nil {
			return fmt.Errorf("wait for %s: %w", patcher.FrameSelector, err)
		}
		return nil
	})
}

// navigate 在导航超时内执行一次导航
func (s *Session) navigate(ctx context.Context, frame domain.FrameID, url string, waitNetworkIdle bool) error {
	navCtx, cancel := context.WithTimeout(ctx, s.opts.NavigationTimeout)
	defer cancel()
	return s.page.Navigate(navCtx, frame, url, waitNetworkIdle)
}

// attempt 执行一次加载尝试并上报结果
func (s *Session) attempt(gen uint64, target string, mode domain.NavigationMode, fn func() error) error {
	start := time.Now()
	err := fn()

	ev := domain.NavigationEvent{
		Session:    s.id,
		Generation: gen,
		TargetURL:  target,
		Mode:       mode,
		OK:         err == nil,
		DurationMS: time.Since(start).Milliseconds(),
		Timestamp:  time.Now().UnixMilli(),
	}
	if err != nil {
		ev.Error = err.Error()
		s.log.Warn("应用加载失败", "mode", string(mode), "target", target, "generation", gen, "error", ev.Error)
	} else {
		s.log.Info("应用加载完成", "mode", string(mode), "target", target, "generation", gen, "durationMs", ev.DurationMS)
	}
	if s.opts.OnNavigate != nil {
		s.opts.OnNavigate(ev)
	}
	return err
}
