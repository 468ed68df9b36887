package provider

import (
	"fmt"
	"strings"
)

// Post 是从帖子页解析得到的最小可用结构。
//
// 约束：
// - Tags 保留站点原始形态（下划线、未转义括号），规范化是 tags 包的职责
// - PageURL 必须是帖子详情页（用于 Referer 与日志追溯）
type Post struct {
	ID      string
	FileURL string   // 原图地址
	Ext     string   // 由 FileURL 推断，形如 ".png"
	Tags    []string // 按页面顺序
	PageURL string
}

// Error 标注失败发生的阶段（fetch/parse），让上层生成更可操作的提示。
type Error struct {
	Stage string // "fetch" | "parse"
	URL   string
	Err   error
}

func (e *Error) Error() string {
	if e == nil {
		return "provider error"
	}
	return fmt.Sprintf("%s 失败（%s）：%v", e.Stage, e.URL, e.Err)
}

func (e *Error) Unwrap() error { return e.Err }

// HTTPStatusError 表示站点返回了非 2xx 的 HTTP 状态码。
type HTTPStatusError struct {
	URL        string
	StatusCode int
	Location   string
}

func (e *HTTPStatusError) Error() string {
	if e == nil {
		return "HTTP status error"
	}
	loc := strings.TrimSpace(e.Location)
	if loc == "" {
		return fmt.Sprintf("HTTP %d", e.StatusCode)
	}
	return fmt.Sprintf("HTTP %d location=%s", e.StatusCode, loc)
}
