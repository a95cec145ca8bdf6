package cdp

import (
	"net/http"
	"sort"

	"autframe/pkg/domain"

	"github.com/mafredri/cdp/protocol/fetch"
	"github.com/mafredri/cdp/protocol/page"
)

// ToRequest 将 CDP 暂停事件转换为领域 Request 模型
func ToRequest(ev *fetch.RequestPausedReply, mainFrame page.FrameID) *domain.Request {
	return &domain.Request{
		ID:           string(ev.RequestID),
		URL:          ev.Request.URL,
		ResourceType: domain.NormalizeResourceType(string(ev.ResourceType)),
		FrameID:      domain.FrameID(ev.FrameID),
		IsMainFrame:  mainFrame != "" && ev.FrameID == mainFrame,
	}
}

// ToHeaderEntries 将 http.Header 展开为 CDP Header 条目，多值头部每个值一条，按名称排序
func ToHeaderEntries(h http.Header) []fetch.HeaderEntry {
	names := make([]string, 0, len(h))
	for k := range h {
		names = append(names, k)
	}
	sort.Strings(names)

	entries := make([]fetch.HeaderEntry, 0, len(h))
	for _, k := range names {
		for _, v := range h[k] {
			entries = append(entries, fetch.HeaderEntry{Name: k, Value: v})
		}
	}
	return entries
}

// FindFrame 在帧树的子帧中按名称查找，顶层帧不参与匹配
func FindFrame(tree page.FrameTree, name string) (page.FrameID, bool) {
	for _, child := range tree.ChildFrames {
		if child.Frame.Name != nil && *child.Frame.Name == name {
			return child.Frame.ID, true
		}
		if id, ok := FindFrame(child, name); ok {
			return id, true
		}
	}
	return "", false
}
