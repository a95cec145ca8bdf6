package main

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	"autframe/internal/browser"
	"autframe/internal/config"
	"autframe/internal/harness"
	"autframe/internal/httpapi"
	"autframe/internal/logger"
	"autframe/internal/manager"
	"autframe/internal/proxy"
	"autframe/internal/registry"
	"autframe/internal/service"
	"autframe/internal/session"
	"autframe/internal/storage/db"
	"autframe/internal/storage/model"
	"autframe/internal/storage/repo"
	"autframe/pkg/api"

	"github.com/spf13/cobra"
	"gorm.io/gorm"
)

// navigationRetentionDays 应用加载记录保留天数
const navigationRetentionDays = 30

// serveOptions serve 命令参数，非空时覆盖配置文件与环境变量
type serveOptions struct {
	addr       string
	devtools   string
	harnessDir string
	headless   bool
	noSession  bool
}

func newServeCmd(root *rootOptions) *cobra.Command {
	opts := &serveOptions{}
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the backend and open an automation session",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(root.configPath, cmd, opts)
			if err != nil {
				return err
			}
			return runServe(cmd.Context(), cfg, opts.noSession)
		},
	}
	f := cmd.Flags()
	f.StringVar(&opts.addr, "addr", "", "HTTP listen address (default from config, :3000)")
	f.StringVar(&opts.devtools, "devtools", "", "DevTools URL of a running Chrome; empty launches a local one")
	f.StringVar(&opts.harnessDir, "harness", "", "Directory with index.html and assets/ replacing the built-in harness")
	f.BoolVar(&opts.headless, "headless", false, "Launch Chrome in headless mode")
	f.BoolVar(&opts.noSession, "no-session", false, "Do not open a session on startup")
	return cmd
}

// loadConfig 读取配置并应用显式传入的命令行参数
func loadConfig(path string, cmd *cobra.Command, opts *serveOptions) (*config.Config, error) {
	cfg, err := config.Load(path)
	if err != nil {
		return nil, err
	}
	flags := cmd.Flags()
	if flags.Changed("addr") {
		cfg.Server.Addr = opts.addr
	}
	if flags.Changed("devtools") {
		cfg.Browser.DevToolsURL = opts.devtools
	}
	if flags.Changed("harness") {
		cfg.Harness.Dir = opts.harnessDir
	}
	if flags.Changed("headless") {
		cfg.Browser.Headless = opts.headless
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// runServe 组装各组件并运行到 ctx 结束
func runServe(ctx context.Context, cfg *config.Config, noSession bool) error {
	log := logger.New(logger.Options{Level: cfg.Log.Level, Writers: cfg.Log.Writer})

	h, err := harness.Load(cfg.Harness.Dir)
	if err != nil {
		return fmt.Errorf("load harness: %w", err)
	}

	gdb, err := openDatabase(cfg, log)
	if err != nil {
		return err
	}
	defer func() {
		if sqlDB, err := gdb.DB(); err == nil {
			_ = sqlDB.Close()
		}
	}()

	workspaces := repo.NewWorkspaceRepo(gdb)
	settings := repo.NewSettingsRepo(gdb)
	navigations := repo.NewNavigationRepo(gdb, log, repo.NavigationRepoOptions{})
	defer navigations.Stop()

	if n, err := workspaces.CloseAllOpen(ctx); err != nil {
		log.Err(err, "清理上次遗留的工作区失败")
	} else if n > 0 {
		log.Info("已关闭上次遗留的工作区", "count", n)
	}
	if n, err := navigations.CleanupOld(ctx, navigationRetentionDays); err != nil {
		log.Err(err, "清理过期加载记录失败")
	} else if n > 0 {
		log.Info("已清理过期加载记录", "count", n)
	}

	devtoolsURL := cfg.Browser.DevToolsURL
	if devtoolsURL == "" {
		devtoolsURL = storedDevToolsURL(ctx, settings, log)
	}
	if devtoolsURL == "" {
		b, err := browser.Start(ctx, browser.Options{
			ExecPath:            cfg.Browser.ExecPath,
			UserDataDir:         cfg.Browser.UserDataDir,
			RemoteDebuggingPort: cfg.Browser.Port,
			Headless:            cfg.Browser.Headless,
			Args:                cfg.Browser.Args,
			Logger:              log,
		})
		if err != nil {
			return err
		}
		defer func() {
			if err := b.Stop(5 * time.Second); err != nil {
				log.Warn("关闭浏览器失败", "error", err.Error())
			}
		}()
		devtoolsURL = b.DevToolsURL
	}

	mgr := manager.New(devtoolsURL, log)
	pingCtx, cancel := context.WithTimeout(ctx, 3*time.Second)
	err = mgr.Ping(pingCtx)
	cancel()
	if err != nil {
		return err
	}
	if err := settings.SetDevToolsURL(ctx, devtoolsURL); err != nil {
		log.Err(err, "保存 DevTools 地址失败")
	}

	fetcher := proxy.New(proxy.Options{
		Timeout: cfg.ProxyTimeout(),
		Retries: cfg.Proxy.Retries,
	}, log)

	svc := api.NewService(service.NewManagerTabs(mgr, log), registry.New(), service.Options{
		Harness:   h,
		ServerURL: cfg.Server.PublicURL,
		Session: session.Options{
			DefaultAppURL:     cfg.App.DefaultURL,
			AssetMarker:       cfg.App.AssetMarker,
			NavigationTimeout: cfg.NavigationTimeout(),
			SelectorTimeout:   cfg.SelectorTimeout(),
			Concurrency:       cfg.Intercept.Concurrency,
			QueueCap:          cfg.Intercept.QueueCap,
			Fetcher:           fetcher,
		},
		Workspaces:  workspaces,
		Navigations: navigations,
		Settings:    settings,
		Logger:      log,
	})

	srv, errCh, err := startHTTP(cfg.Server.Addr, httpapi.NewServer(svc, h, log))
	if err != nil {
		return err
	}
	log.Info("HTTP 服务已启动", "addr", srv.Addr, "publicURL", cfg.Server.PublicURL)

	// 外壳资源经由后端代理，会话需在服务监听之后创建
	if !noSession {
		info, err := svc.CreateSession(ctx)
		if err != nil {
			log.Err(err, "创建初始会话失败")
		} else {
			log.Info("初始会话已就绪", "session", string(info.ID), "app", info.AppURL)
		}
	}

	var serveErr error
	select {
	case <-ctx.Done():
	case serveErr = <-errCh:
	}

	shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 10*time.Second)
	defer cancel()
	if err := svc.Close(shutdownCtx); err != nil {
		log.Err(err, "关闭会话失败")
	}
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Err(err, "关闭 HTTP 服务失败")
	}
	if err := mgr.DetachAll(shutdownCtx); err != nil {
		log.Err(err, "断开浏览器目标失败")
	}
	log.Info("服务已退出")
	return serveErr
}

// startHTTP 同步绑定监听地址后在后台提供服务，返回时端口已可连接
func startHTTP(addr string, handler http.Handler) (*http.Server, <-chan error, error) {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, nil, fmt.Errorf("listen %s: %w", addr, err)
	}
	srv := &http.Server{
		Addr:              ln.Addr().String(),
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
	}
	errCh := make(chan error, 1)
	go func() {
		if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()
	return srv, errCh, nil
}

// storedDevToolsURL 返回上次保存且仍可连接的 DevTools 地址，不可用时返回空串
func storedDevToolsURL(ctx context.Context, settings *repo.SettingsRepo, log logger.Logger) string {
	url := settings.GetDevToolsURL(ctx)
	if url == "" {
		return ""
	}
	pingCtx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()
	if err := manager.New(url, log).Ping(pingCtx); err != nil {
		log.Info("上次保存的 DevTools 地址不可用", "url", url)
		return ""
	}
	log.Info("复用上次保存的 DevTools 地址", "url", url)
	return url
}

// openDatabase 打开并迁移数据库
func openDatabase(cfg *config.Config, log logger.Logger) (*gorm.DB, error) {
	opts := db.Options{Name: cfg.Sqlite.Db, Prefix: cfg.Sqlite.Prefix, Logger: db.NewLogger(log)}
	if cfg.Sqlite.Db == db.MemoryDSN {
		opts.FullPath = db.MemoryDSN
	}
	gdb, err := db.New(opts)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	if err := db.Migrate(gdb, &model.Setting{}, &model.WorkspaceRecord{}, &model.NavigationRecord{}); err != nil {
		return nil, fmt.Errorf("migrate database: %w", err)
	}
	return gdb, nil
}
