package config

import (
	"fmt"
	"net/url"
	"os"
	"time"

	"autframe/pkg/domain"

	"github.com/kelseyhightower/envconfig"
	"gopkg.in/yaml.v3"
)

// EnvPrefix 环境变量前缀，例如 AUTFRAME_SERVER_ADDR
const EnvPrefix = "autframe"

// Config 配置文件结构体
type Config struct {
	Version   string    `yaml:"version" ignored:"true"`
	Server    Server    `yaml:"server"`
	Browser   Browser   `yaml:"browser"`
	Harness   Harness   `yaml:"harness"`
	App       App       `yaml:"app"`
	Timeouts  Timeouts  `yaml:"timeouts"`
	Proxy     Proxy     `yaml:"proxy"`
	Intercept Intercept `yaml:"intercept"`
	Sqlite    Sqlite    `yaml:"sqlite"`
	Log       Log       `yaml:"log"`
}

// Server 后端服务配置
type Server struct {
	Addr      string `yaml:"addr" envconfig:"ADDR"`
	PublicURL string `yaml:"publicURL" envconfig:"PUBLIC_URL"` // 浏览器访问后端使用的源，即会话的 serverURL
}

// Browser 浏览器配置，DevToolsURL 为空时自动启动本地 Chrome
type Browser struct {
	DevToolsURL string   `yaml:"devToolsURL" envconfig:"DEVTOOLS_URL"`
	ExecPath    string   `yaml:"execPath" envconfig:"EXEC_PATH"`
	UserDataDir string   `yaml:"userDataDir" envconfig:"USER_DATA_DIR"`
	Port        int      `yaml:"port" envconfig:"PORT"`
	Headless    bool     `yaml:"headless" envconfig:"HEADLESS"`
	Args        []string `yaml:"args" envconfig:"ARGS"`
}

// Harness 外壳文档配置，Dir 为空时使用内置文档
type Harness struct {
	Dir string `yaml:"dir" envconfig:"DIR"`
}

// App 目标应用配置
type App struct {
	DefaultURL  string `yaml:"defaultURL" envconfig:"DEFAULT_URL"`
	AssetMarker string `yaml:"assetMarker" envconfig:"ASSET_MARKER"`
}

// Timeouts 导航等待上限
type Timeouts struct {
	NavigationMS int `yaml:"navigationMS" envconfig:"NAVIGATION_MS"`
	SelectorMS   int `yaml:"selectorMS" envconfig:"SELECTOR_MS"`
}

// Proxy 静态资源代理配置
type Proxy struct {
	TimeoutMS int `yaml:"timeoutMS" envconfig:"TIMEOUT_MS"`
	Retries   int `yaml:"retries" envconfig:"RETRIES"`
}

// Intercept 拦截并发配置
type Intercept struct {
	Concurrency int `yaml:"concurrency" envconfig:"CONCURRENCY"`
	QueueCap    int `yaml:"queueCap" envconfig:"QUEUE_CAP"`
}

// Sqlite 数据库配置
type Sqlite struct {
	Db     string `yaml:"db" envconfig:"DB"`
	Prefix string `yaml:"prefix" envconfig:"PREFIX"`
}

// Log 日志配置
type Log struct {
	Level  string   `yaml:"level" envconfig:"LEVEL"`
	Writer []string `yaml:"writer" envconfig:"WRITER"`
}

// NewConfig 创建默认配置
func NewConfig() *Config {
	d := GetDefaultSettings()
	return &Config{
		Version: "1.0.0",
		Server: Server{
			Addr:      d.ServerAddr,
			PublicURL: d.PublicURL,
		},
		Browser: Browser{
			Port: 9222,
		},
		App: App{
			DefaultURL:  d.DefaultAppURL,
			AssetMarker: d.AssetMarker,
		},
		Timeouts: Timeouts{
			NavigationMS: 30000,
			SelectorMS:   10000,
		},
		Proxy: Proxy{
			TimeoutMS: 15000,
			Retries:   1,
		},
		Intercept: Intercept{
			Concurrency: 32,
			QueueCap:    1024,
		},
		Sqlite: Sqlite{
			Db:     "data.db",
			Prefix: "autframe_",
		},
		Log: Log{
			Level: "debug",
			// file需要在console之前，避免控制台不可写时影响文件日志
			Writer: []string{"file", "console"},
		},
	}
}

// Load 读取配置：默认值 -> YAML 文件 -> 环境变量
func Load(path string) (*Config, error) {
	cfg := NewConfig()
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", domain.ErrInvalidConfig, err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("%w: %s: %v", domain.ErrInvalidConfig, path, err)
		}
	}
	if err := envconfig.Process(EnvPrefix, cfg); err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrInvalidConfig, err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate 校验配置合法性
func (c *Config) Validate() error {
	if _, err := parseAbsURL(c.Server.PublicURL); err != nil {
		return fmt.Errorf("%w: server.publicURL: %v", domain.ErrInvalidConfig, err)
	}
	if _, err := parseAbsURL(c.App.DefaultURL); err != nil {
		return fmt.Errorf("%w: app.defaultURL: %v", domain.ErrInvalidConfig, err)
	}
	if c.Browser.DevToolsURL != "" {
		if _, err := parseAbsURL(c.Browser.DevToolsURL); err != nil {
			return fmt.Errorf("%w: browser.devToolsURL: %v", domain.ErrInvalidConfig, err)
		}
	}
	if c.App.AssetMarker == "" {
		return fmt.Errorf("%w: app.assetMarker is empty", domain.ErrInvalidConfig)
	}
	if c.Timeouts.NavigationMS <= 0 || c.Timeouts.SelectorMS <= 0 || c.Proxy.TimeoutMS <= 0 {
		return fmt.Errorf("%w: timeouts must be positive", domain.ErrInvalidConfig)
	}
	if c.Proxy.Retries < 0 {
		return fmt.Errorf("%w: proxy.retries must not be negative", domain.ErrInvalidConfig)
	}
	return nil
}

// NavigationTimeout 顶层回退导航的等待上限
func (c *Config) NavigationTimeout() time.Duration {
	return time.Duration(c.Timeouts.NavigationMS) * time.Millisecond
}

// SelectorTimeout 等待内嵌帧重新出现的上限
func (c *Config) SelectorTimeout() time.Duration {
	return time.Duration(c.Timeouts.SelectorMS) * time.Millisecond
}

// ProxyTimeout 单次资源代理请求的上限
func (c *Config) ProxyTimeout() time.Duration {
	return time.Duration(c.Proxy.TimeoutMS) * time.Millisecond
}

func parseAbsURL(raw string) (*url.URL, error) {
	u, err := url.Parse(raw)
	if err != nil {
		return nil, err
	}
	if u.Scheme == "" || u.Host == "" {
		return nil, fmt.Errorf("not an absolute url: %q", raw)
	}
	return u, nil
}
