package model

import (
	"time"
)

// Setting 用户设置表
type Setting struct {
	Key       string    `gorm:"primaryKey" json:"key"`  // 设置键
	Value     string    `gorm:"type:text" json:"value"` // 设置值
	UpdatedAt time.Time `json:"updatedAt"`              // 更新时间
}

// 预定义的设置 Key
const (
	SettingKeyDevToolsURL = "devtools_url" // 开发者工具URL
	SettingKeyLastAppURL  = "last_app_url" // 上次加载的应用地址
)

// WorkspaceRecord 工作区表，每个会话一条
type WorkspaceRecord struct {
	ID        uint       `gorm:"primaryKey" json:"id"`
	SessionID string     `gorm:"uniqueIndex;not null" json:"sessionId"`
	TargetID  string     `json:"targetId"`
	AppURL    string     `json:"appUrl"`
	ServerURL string     `json:"serverUrl"`
	Code      string     `gorm:"type:text" json:"code"` // 代码缓冲区
	Closed    bool       `gorm:"index;default:false" json:"closed"`
	ClosedAt  *time.Time `json:"closedAt,omitempty"`
	CreatedAt time.Time  `json:"createdAt"`
	UpdatedAt time.Time  `json:"updatedAt"`
}

// NavigationRecord 应用加载记录表
type NavigationRecord struct {
	ID         uint      `gorm:"primaryKey" json:"id"`
	SessionID  string    `gorm:"index" json:"sessionId"`
	Generation uint64    `json:"generation"`
	TargetURL  string    `json:"targetUrl"`
	Mode       string    `gorm:"index" json:"mode"` // initial / frame / fallback
	OK         bool      `json:"ok"`
	Error      string    `gorm:"type:text" json:"error,omitempty"`
	DurationMS int64     `json:"durationMs"`
	Timestamp  int64     `gorm:"index" json:"timestamp"`
	CreatedAt  time.Time `json:"createdAt"`
}
