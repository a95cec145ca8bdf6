package domain

import "errors"

// 会话相关错误
var (
	ErrSessionNotFound       = errors.New("session not found")
	ErrSessionAlreadyStarted = errors.New("session already started")
	ErrSessionNotStarted     = errors.New("session not started")
)

// 导航相关错误
var (
	ErrAppLoadFailed    = errors.New("could not load application")
	ErrNavigationFailed = errors.New("navigation failed")
	ErrFrameNotFound    = errors.New("frame not found")
)

// 文档相关错误
var (
	ErrInvalidHarness = errors.New("invalid harness document")
)

// 连接相关错误
var (
	ErrDevToolsUnreachable = errors.New("devtools unreachable")
	ErrTargetNotFound      = errors.New("target not found")
)

// 配置相关错误
var (
	ErrInvalidConfig = errors.New("invalid config")
)

// 浏览器相关错误
var (
	ErrBrowserStartFailed = errors.New("browser start failed")
)

// 数据库相关错误
var (
	ErrDatabaseNotInitialized = errors.New("database not initialized")
	ErrRecordNotFound         = errors.New("record not found")
)
