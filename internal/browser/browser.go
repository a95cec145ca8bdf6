package browser

import (
	"context"
	"errors"
	"fmt"
	"net"
	"os"
	"os/exec"
	"path/filepath"
	"runtime"
	"time"

	"autframe/internal/logger"
	"autframe/pkg/domain"

	"github.com/mafredri/cdp/devtool"
)

// Options 浏览器启动选项
type Options struct {
	ExecPath            string   // 浏览器可执行文件路径
	UserDataDir         string   // 用户数据目录，为空时使用临时目录
	RemoteDebuggingPort int      // CDP端口，0表示 9222，占用时自动选择
	Headless            bool     // 是否以无头模式启动
	Args                []string // 额外启动参数
	ReadyTimeout        time.Duration
	Logger              logger.Logger
}

// Browser 已启动的浏览器进程句柄
type Browser struct {
	cmd         *exec.Cmd
	DevToolsURL string
	port        int
	tempDir     string
	log         logger.Logger
}

// Start 启动浏览器并等待 DevTools 服务就绪
func Start(ctx context.Context, opts Options) (*Browser, error) {
	if opts.Logger == nil {
		opts.Logger = logger.NewNop()
	}
	if opts.ReadyTimeout <= 0 {
		opts.ReadyTimeout = 10 * time.Second
	}

	exe := opts.ExecPath
	if exe == "" {
		exe = defaultChromePath()
	}
	if exe == "" {
		return nil, fmt.Errorf("%w: chrome executable not found", domain.ErrBrowserStartFailed)
	}

	port := opts.RemoteDebuggingPort
	if port == 0 {
		port = 9222
	}
	port, err := pickPort(port)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrBrowserStartFailed, err)
	}

	b := &Browser{DevToolsURL: fmt.Sprintf("http://127.0.0.1:%d", port), port: port, log: opts.Logger}
	userDataDir := opts.UserDataDir
	if userDataDir == "" {
		dir, err := os.MkdirTemp("", "autframe-chrome-")
		if err != nil {
			return nil, fmt.Errorf("%w: %v", domain.ErrBrowserStartFailed, err)
		}
		userDataDir = dir
		b.tempDir = dir
	} else {
		_ = os.MkdirAll(userDataDir, 0o755)
	}

	args := buildLaunchArgs(port, userDataDir, opts)
	b.cmd = exec.CommandContext(ctx, exe, args...)
	b.cmd.Stdout = os.Stdout
	b.cmd.Stderr = os.Stderr

	if err := b.cmd.Start(); err != nil {
		b.cleanup()
		return nil, fmt.Errorf("%w: %v", domain.ErrBrowserStartFailed, err)
	}
	b.log.Info("浏览器进程已启动", "exec", exe, "port", port, "headless", opts.Headless)

	waitCtx, cancel := context.WithTimeout(ctx, opts.ReadyTimeout)
	defer cancel()
	if err := waitDevToolsReady(waitCtx, b.DevToolsURL); err != nil {
		_ = b.Stop(2 * time.Second)
		return nil, fmt.Errorf("%w: %v", domain.ErrBrowserStartFailed, err)
	}
	b.log.Info("DevTools 已就绪", "url", b.DevToolsURL)
	return b, nil
}

// Stop 关闭浏览器进程并清理临时目录
func (b *Browser) Stop(timeout time.Duration) error {
	if b == nil || b.cmd == nil || b.cmd.Process == nil {
		return nil
	}
	defer b.cleanup()

	done := make(chan error, 1)
	go func() { done <- b.cmd.Wait() }()
	_ = b.cmd.Process.Kill()
	select {
	case <-time.After(timeout):
		return errors.New("browser stop timeout")
	case err := <-done:
		return err
	}
}

func (b *Browser) cleanup() {
	if b.tempDir != "" {
		_ = os.RemoveAll(b.tempDir)
		b.tempDir = ""
	}
}

// defaultChromePath 返回常见的 Chrome 可执行路径
func defaultChromePath() string {
	for _, p := range chromePaths() {
		if _, err := os.Stat(p); err == nil {
			return p
		}
	}
	for _, name := range []string{"chrome", "google-chrome", "chromium", "chromium-browser"} {
		if p, err := exec.LookPath(name); err == nil {
			return p
		}
	}
	return ""
}

func chromePaths() []string {
	switch runtime.GOOS {
	case "windows":
		return []string{
			filepath.Join(os.Getenv("ProgramFiles"), "Google", "Chrome", "Application", "chrome.exe"),
			filepath.Join(os.Getenv("ProgramFiles(x86)"), "Google", "Chrome", "Application", "chrome.exe"),
			filepath.Join(os.Getenv("LOCALAPPDATA"), "Google", "Chrome", "Application", "chrome.exe"),
		}
	case "darwin":
		return []string{
			"/Applications/Google Chrome.app/Contents/MacOS/Google Chrome",
			filepath.Join(os.Getenv("HOME"), "Applications", "Google Chrome.app", "Contents", "MacOS", "Google Chrome"),
		}
	case "linux":
		return []string{
			"/usr/bin/google-chrome",
			"/usr/bin/google-chrome-stable",
			"/usr/bin/chromium",
			"/usr/bin/chromium-browser",
			"/snap/bin/chromium",
		}
	default:
		return nil
	}
}

// pickPort 尝试使用指定端口，如果被占用则选择随机空闲端口
func pickPort(preferred int) (int, error) {
	if preferred > 0 {
		l, err := net.Listen("tcp", fmt.Sprintf("127.0.0.1:%d", preferred))
		if err == nil {
			_ = l.Close()
			return preferred, nil
		}
	}

	l, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		return 0, fmt.Errorf("failed to find free port: %w", err)
	}
	defer l.Close()
	return l.Addr().(*net.TCPAddr).Port, nil
}

// buildLaunchArgs 构建浏览器启动参数
func buildLaunchArgs(port int, userDataDir string, opts Options) []string {
	args := []string{
		fmt.Sprintf("--remote-debugging-port=%d", port),
		fmt.Sprintf("--user-data-dir=%s", userDataDir),
		"--no-first-run",
		"--no-default-browser-check",
		"--disable-background-networking",
		"--disable-background-timer-throttling",
		"--disable-backgrounding-occluded-windows",
		"--disable-breakpad",
		"--disable-client-side-phishing-detection",
		"--disable-default-apps",
		"--disable-extensions",
		"--disable-hang-monitor",
		"--disable-prompt-on-repost",
		"--disable-renderer-backgrounding",
		"--disable-sync",
		"--disable-translate",
		"--metrics-recording-only",
		"--safebrowsing-disable-auto-update",
	}
	if runtime.GOOS == "linux" {
		args = append(args, "--disable-dev-shm-usage")
	}
	if opts.Headless {
		args = append(args, "--headless=new", "--disable-gpu")
	}
	return append(args, opts.Args...)
}

// waitDevToolsReady 轮询 DevTools 版本接口直到就绪
func waitDevToolsReady(ctx context.Context, base string) error {
	dt := devtool.New(base)
	ticker := time.NewTicker(300 * time.Millisecond)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return fmt.Errorf("devtools not ready after timeout: %w", ctx.Err())
		case <-ticker.C:
			reqCtx, cancel := context.WithTimeout(ctx, 500*time.Millisecond)
			_, err := dt.Version(reqCtx)
			cancel()
			if err == nil {
				return nil
			}
		}
	}
}
