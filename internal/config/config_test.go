package config_test

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"autframe/internal/config"
	"autframe/pkg/domain"
)

func TestNewConfig_Defaults(t *testing.T) {
	cfg := config.NewConfig()
	if err := cfg.Validate(); err != nil {
		t.Fatalf("默认配置应当合法: %v", err)
	}
	if cfg.App.DefaultURL != "https://www.playwright.dev/" {
		t.Errorf("默认应用地址不符: %s", cfg.App.DefaultURL)
	}
	if cfg.App.AssetMarker != "assets" {
		t.Errorf("默认资源标记不符: %s", cfg.App.AssetMarker)
	}
	if cfg.ProxyTimeout() != 15*time.Second {
		t.Errorf("默认代理超时不符: %v", cfg.ProxyTimeout())
	}
	if cfg.NavigationTimeout() != 30*time.Second || cfg.SelectorTimeout() != 10*time.Second {
		t.Errorf("默认导航超时不符: %v %v", cfg.NavigationTimeout(), cfg.SelectorTimeout())
	}
}

func TestLoad_YAMLAndEnv(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "autframe.yaml")
	content := `
server:
  addr: ":8080"
  publicURL: "http://127.0.0.1:8080"
app:
  defaultURL: "https://example.com/"
proxy:
  timeoutMS: 2000
log:
  level: info
  writer: [console]
`
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("写入配置文件失败: %v", err)
	}

	t.Setenv("AUTFRAME_SERVER_ADDR", ":9090")
	t.Setenv("AUTFRAME_BROWSER_HEADLESS", "true")

	cfg, err := config.Load(path)
	if err != nil {
		t.Fatalf("加载配置失败: %v", err)
	}

	// 环境变量覆盖文件
	if cfg.Server.Addr != ":9090" {
		t.Errorf("期望环境变量覆盖 addr，实际 %s", cfg.Server.Addr)
	}
	if cfg.Server.PublicURL != "http://127.0.0.1:8080" {
		t.Errorf("publicURL 不符: %s", cfg.Server.PublicURL)
	}
	if !cfg.Browser.Headless {
		t.Error("期望 headless 为 true")
	}
	if cfg.App.DefaultURL != "https://example.com/" {
		t.Errorf("defaultURL 不符: %s", cfg.App.DefaultURL)
	}
	if cfg.Proxy.TimeoutMS != 2000 {
		t.Errorf("proxy.timeoutMS 不符: %d", cfg.Proxy.TimeoutMS)
	}
	// 文件未提及的字段保留默认值
	if cfg.Timeouts.SelectorMS != 10000 {
		t.Errorf("selectorMS 应保留默认值，实际 %d", cfg.Timeouts.SelectorMS)
	}
	if len(cfg.Log.Writer) != 1 || cfg.Log.Writer[0] != "console" {
		t.Errorf("log.writer 不符: %v", cfg.Log.Writer)
	}
}

func TestLoad_MissingFile(t *testing.T) {
	_, err := config.Load(filepath.Join(t.TempDir(), "missing.yaml"))
	if !errors.Is(err, domain.ErrInvalidConfig) {
		t.Errorf("期望 ErrInvalidConfig，实际 %v", err)
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(c *config.Config)
	}{
		{"relative public url", func(c *config.Config) { c.Server.PublicURL = "/api" }},
		{"bad default url", func(c *config.Config) { c.App.DefaultURL = "example.com" }},
		{"bad devtools url", func(c *config.Config) { c.Browser.DevToolsURL = "localhost" }},
		{"empty marker", func(c *config.Config) { c.App.AssetMarker = "" }},
		{"zero navigation timeout", func(c *config.Config) { c.Timeouts.NavigationMS = 0 }},
		{"negative retries", func(c *config.Config) { c.Proxy.Retries = -1 }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := config.NewConfig()
			tt.mutate(cfg)
			if err := cfg.Validate(); !errors.Is(err, domain.ErrInvalidConfig) {
				t.Errorf("期望 ErrInvalidConfig，实际 %v", err)
			}
		})
	}
}
