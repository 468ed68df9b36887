package logx

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/rs/zerolog"
)

// New 构造诊断日志记录器：console（stderr）+ 可选的追加写文本文件。
//
// 约束：
// - 文件日志是旁路诊断通道，不参与任何数据契约（stdout 留给结果输出）
// - 打开文件失败只告警不中断：日志不可用不应阻止数据处理
func New(filePath string) zerolog.Logger {
	writers := []io.Writer{zerolog.ConsoleWriter{
		Out:        os.Stderr,
		TimeFormat: "15:04:05",
	}}

	if p := strings.TrimSpace(filePath); p != "" {
		if f := openAppend(p); f != nil {
			writers = append(writers, f)
		}
	}

	return zerolog.New(zerolog.MultiLevelWriter(writers...)).
		With().
		Timestamp().
		Logger()
}

// Nop 返回丢弃一切输出的 logger（测试与纯库调用用）。
func Nop() zerolog.Logger { return zerolog.Nop() }

func openAppend(path string) io.Writer {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		fmt.Fprintf(os.Stderr, "警告：无法创建日志目录 %q：%v\n", filepath.Dir(path), err)
		return nil
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		fmt.Fprintf(os.Stderr, "警告：无法打开日志文件 %q：%v\n", path, err)
		return nil
	}
	return f
}
