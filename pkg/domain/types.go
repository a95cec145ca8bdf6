package domain

import (
	"net/http"
	"strings"
)

// SessionID 会话ID
type SessionID string

// TargetID 浏览器目标ID
type TargetID string

// FrameID 页面帧ID，空值表示顶层帧
type FrameID string

// ResourceType 规范化后的资源类型
type ResourceType string

const (
	ResourceTypeDocument   ResourceType = "document"
	ResourceTypeScript     ResourceType = "script"
	ResourceTypeStylesheet ResourceType = "stylesheet"
	ResourceTypeImage      ResourceType = "image"
	ResourceTypeFont       ResourceType = "font"
	ResourceTypeMedia      ResourceType = "media"
	ResourceTypeXHR        ResourceType = "xhr"
	ResourceTypeFetch      ResourceType = "fetch"
	ResourceTypeWebSocket  ResourceType = "websocket"
	ResourceTypeOther      ResourceType = "other"
)

// NormalizeResourceType 将 CDP 的 ResourceType 转换为规范类型
func NormalizeResourceType(cdpType string) ResourceType {
	switch strings.ToLower(cdpType) {
	case "document":
		return ResourceTypeDocument
	case "script":
		return ResourceTypeScript
	case "stylesheet":
		return ResourceTypeStylesheet
	case "image":
		return ResourceTypeImage
	case "font":
		return ResourceTypeFont
	case "media":
		return ResourceTypeMedia
	case "xhr":
		return ResourceTypeXHR
	case "fetch":
		return ResourceTypeFetch
	case "websocket":
		return ResourceTypeWebSocket
	default:
		return ResourceTypeOther
	}
}

// Request 被拦截请求的中立模型
type Request struct {
	ID           string
	URL          string
	ResourceType ResourceType
	FrameID      FrameID
	IsMainFrame  bool // 请求是否由顶层帧发起
}

// Response 用于合成或转发的响应
type Response struct {
	StatusCode int
	Headers    http.Header
	Body       []byte
}

// NavigationMode 加载应用时采用的导航方式
type NavigationMode string

const (
	NavigationInitial  NavigationMode = "initial"  // 顶层页面导航到服务端地址
	NavigationFrame    NavigationMode = "frame"    // 直接导航内嵌帧
	NavigationFallback NavigationMode = "fallback" // 帧导航失败后的顶层回退
)

// NavigationEvent 单次应用加载尝试的结果
type NavigationEvent struct {
	Session    SessionID      `json:"session"`
	Generation uint64         `json:"generation"`
	TargetURL  string         `json:"targetUrl"`
	Mode       NavigationMode `json:"mode"`
	OK         bool           `json:"ok"`
	Error      string         `json:"error,omitempty"`
	DurationMS int64          `json:"durationMs"`
	Timestamp  int64          `json:"timestamp"`
}

// SessionInfo 会话概要信息
type SessionInfo struct {
	ID        SessionID `json:"id"`
	Target    TargetID  `json:"target"`
	AppURL    string    `json:"appUrl"`
	ServerURL string    `json:"serverUrl"`
	CreatedAt int64     `json:"createdAt"`

	Intercept InterceptStats `json:"intercept"`
}

// InterceptStats 请求拦截工作池统计，未启用工作池时全部为零
type InterceptStats struct {
	QueueLen    int64 `json:"queueLen"`
	QueueCap    int64 `json:"queueCap"`
	TotalSubmit int64 `json:"totalSubmit"`
	TotalDrop   int64 `json:"totalDrop"`
}

// TargetInfo 浏览器目标信息
type TargetInfo struct {
	ID       TargetID `json:"id"`
	Type     string   `json:"type"`
	URL      string   `json:"url"`
	Title    string   `json:"title"`
	Attached bool     `json:"attached"`
}
