package domain

import "fmt"

// Outcome 是所有写操作对外返回的聚合结果（对应 web/CLI 的稳定输出）。
//
// 约束：
// - Errors 只追加，一条对应一个失败单元
// - Succeeded 为真当且仅当 Errors 为空（由 Finalize 统一计算，调用方不要手工赋值）
// - 计数只统计真正完成的单元
type Outcome struct {
	Succeeded bool   `json:"succeeded"`
	Message   string `json:"message"`

	FilesProcessed   int `json:"files_processed"`
	FilesRenamed     int `json:"files_renamed"`
	TagsStandardized int `json:"tags_standardized"`
	FilesUnpaired    int `json:"files_unpaired"`

	Errors []string `json:"errors"`
}

// AddError 记录一个单元级失败（不中断批处理）。
func (o *Outcome) AddError(format string, args ...any) {
	o.Errors = append(o.Errors, fmt.Sprintf(format, args...))
}

// Merge 把子操作的计数与错误并入总结果（Message/Succeeded 由最终 Finalize 决定）。
func (o *Outcome) Merge(sub Outcome) {
	o.FilesProcessed += sub.FilesProcessed
	o.FilesRenamed += sub.FilesRenamed
	o.TagsStandardized += sub.TagsStandardized
	o.FilesUnpaired += sub.FilesUnpaired
	o.Errors = append(o.Errors, sub.Errors...)
}

// Finalize 统一计算 Succeeded 并填充 Message。
// 无错误时直接使用 okMsg；有错误时在 okMsg 基础上追加错误计数。
func (o *Outcome) Finalize(okMsg string) {
	if len(o.Errors) == 0 {
		o.Succeeded = true
		o.Message = okMsg
		return
	}
	o.Succeeded = false
	o.Message = fmt.Sprintf("%s，但出现 %d 个错误", okMsg, len(o.Errors))
}
