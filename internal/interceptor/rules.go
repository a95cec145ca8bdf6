package interceptor

import (
	"errors"
	"net/url"
	"strings"

	"autframe/pkg/domain"
)

var errNotAbsolute = errors.New("url is not absolute")

// Kind 请求分类结果
type Kind int

const (
	// KindPassThrough 原样放行
	KindPassThrough Kind = iota
	// KindDocument 顶层文档请求，以外壳文档应答
	KindDocument
	// KindAsset 外壳资源请求，改写到服务端源后代理拉取
	KindAsset
)

func (k Kind) String() string {
	switch k {
	case KindDocument:
		return "document"
	case KindAsset:
		return "asset"
	default:
		return "passthrough"
	}
}

// Classify 按优先级对请求分类，只有顶层帧发起的请求才会被改写
func Classify(req *domain.Request, serverURL, marker string) Kind {
	if req == nil || !req.IsMainFrame {
		return KindPassThrough
	}
	if req.ResourceType == domain.ResourceTypeDocument {
		return KindDocument
	}
	if marker == "" || SameOrigin(req.URL, serverURL) {
		return KindPassThrough
	}
	u, err := url.Parse(req.URL)
	if err != nil {
		return KindPassThrough
	}
	if strings.Contains(u.Path, marker) {
		return KindAsset
	}
	return KindPassThrough
}

// RewriteOrigin 将 raw 的协议与主机替换为 serverURL 的源，保留路径、查询与片段
func RewriteOrigin(raw, serverURL string) (string, error) {
	u, err := url.Parse(raw)
	if err != nil {
		return "", err
	}
	s, err := url.Parse(serverURL)
	if err != nil {
		return "", err
	}
	u.Scheme = s.Scheme
	u.Host = s.Host
	u.User = nil
	return u.String(), nil
}

// SameOrigin 判断两个地址的协议、主机与端口是否一致，默认端口视为省略
func SameOrigin(a, b string) bool {
	ua, err := url.Parse(a)
	if err != nil {
		return false
	}
	ub, err := url.Parse(b)
	if err != nil {
		return false
	}
	sa, sb := strings.ToLower(ua.Scheme), strings.ToLower(ub.Scheme)
	return sa == sb &&
		strings.EqualFold(ua.Hostname(), ub.Hostname()) &&
		effectivePort(sa, ua.Port()) == effectivePort(sb, ub.Port())
}

// Origin 返回地址的源（协议://主机[:端口]）
func Origin(raw string) (string, error) {
	u, err := url.Parse(raw)
	if err != nil {
		return "", err
	}
	if u.Scheme == "" || u.Host == "" {
		return "", &url.Error{Op: "origin", URL: raw, Err: errNotAbsolute}
	}
	return u.Scheme + "://" + u.Host, nil
}

func effectivePort(scheme, port string) string {
	if port != "" {
		return port
	}
	switch scheme {
	case "http", "ws":
		return "80"
	case "https", "wss":
		return "443"
	}
	return ""
}
