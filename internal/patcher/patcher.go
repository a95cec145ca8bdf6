package patcher

import (
	"encoding/json"
	"fmt"
	"strings"

	"autframe/pkg/domain"

	"github.com/PuerkitoBio/goquery"
)

// FrameName 承载被测应用的 iframe 名称，会话、外壳校验与外壳文档共用
const FrameName = "aut-frame"

// ScriptID 注入脚本元素的 id
const ScriptID = "aut-bootstrap"

// FrameSelector 外壳中应用 iframe 的选择器
var FrameSelector = fmt.Sprintf("iframe[name='%s']", FrameName)

// Bootstrap 注入到外壳文档中的全局值
type Bootstrap struct {
	AppURL    string
	SessionID string
	ServerURL string
}

// Patch 向外壳文档的 head 末尾追加一个脚本元素，声明 APP_URL、SESSION_ID、SERVER_URL 三个全局值
// 相同输入总是得到相同输出
func Patch(harness string, b Bootstrap) (string, error) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(harness))
	if err != nil {
		return "", fmt.Errorf("parse harness: %w", err)
	}

	script, err := bootstrapScript(b)
	if err != nil {
		return "", err
	}
	// 解析器总会补全 head
	doc.Find("head").First().AppendHtml(script)

	out, err := doc.Html()
	if err != nil {
		return "", fmt.Errorf("serialize harness: %w", err)
	}
	return out, nil
}

// Validate 检查外壳文档中存在应用 iframe
func Validate(harness string) error {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(harness))
	if err != nil {
		return fmt.Errorf("%w: %v", domain.ErrInvalidHarness, err)
	}
	if doc.Find(FrameSelector).Length() == 0 {
		return fmt.Errorf("%w: missing %s", domain.ErrInvalidHarness, FrameSelector)
	}
	return nil
}

func bootstrapScript(b Bootstrap) (string, error) {
	values := []struct {
		name  string
		value string
	}{
		{"APP_URL", b.AppURL},
		{"SESSION_ID", b.SessionID},
		{"SERVER_URL", b.ServerURL},
	}

	var sb strings.Builder
	sb.WriteString(`<script type="text/javascript" id="` + ScriptID + `">`)
	for _, v := range values {
		// json.Marshal 会转义 <、>、&，字面量无法提前闭合 script
		lit, err := json.Marshal(v.value)
		if err != nil {
			return "", fmt.Errorf("encode %s: %w", v.name, err)
		}
		sb.WriteString("window." + v.name + " = " + string(lit) + ";")
	}
	sb.WriteString(`</script>`)
	return sb.String(), nil
}
