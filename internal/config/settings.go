package config

// DefaultSettings 定义所有设置的默认值
type DefaultSettings struct {
	ServerAddr    string
	PublicURL     string
	DefaultAppURL string
	AssetMarker   string
	DevToolsURL   string
}

// GetDefaultSettings 返回默认设置
func GetDefaultSettings() DefaultSettings {
	return DefaultSettings{
		ServerAddr:    ":3000",
		PublicURL:     "http://localhost:3000",
		DefaultAppURL: "https://www.playwright.dev/",
		AssetMarker:   "assets",
		DevToolsURL:   "", // 空表示自动启动本地浏览器
	}
}
