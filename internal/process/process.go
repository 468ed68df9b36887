package process

import (
	"fmt"
	"sync"

	"github.com/rs/zerolog"

	"github.com/Noyze-AI/Fast-Danbooru-Dataset-DL/internal/domain"
	"github.com/Noyze-AI/Fast-Danbooru-Dataset-DL/internal/scan"
)

const (
	// DefaultStartIndex 是重命名的默认起始序号。
	DefaultStartIndex = 1
	// UnpairedDirName 是未配对文件的隔离子目录名。
	UnpairedDirName = "unpaired"
)

// Processor 是数据集后处理器：文件配对重命名、标签标准化、未配对文件隔离。
//
// 并发约束：AutoProcess 通过 mu 对同一实例自身串行——两次自动流程若交错，
// 两阶段重命名的防冲突保证会被破坏。单项操作（手动标签编辑、独立扫描）
// 不持有该锁；不要与进行中的自动流程并发作用于同一文件夹（调用方纪律）。
type Processor struct {
	mu    sync.Mutex
	start int
	log   zerolog.Logger
}

// New 构造 Processor。startIndex 小于 0 时回退默认值 1。
func New(startIndex int, log zerolog.Logger) *Processor {
	if startIndex < 0 {
		startIndex = DefaultStartIndex
	}
	return &Processor{start: startIndex, log: log}
}

// AutoProcess 执行完整的自动后处理：
// 扫描 → 隔离未配对标注 → 重命名 → 重新扫描（文件名已变）→ 标签标准化。
//
// 文件夹级错误（文件夹不存在）立即中止；单文件错误累积进 Outcome.Errors，
// 不中断后续处理。
func (p *Processor) AutoProcess(folder string) domain.Outcome {
	p.mu.Lock()
	defer p.mu.Unlock()

	var out domain.Outcome

	p.log.Info().Str("folder", folder).Msg("开始自动后处理")

	records, unpairedTxt, err := scan.ScanFolder(folder)
	if err != nil {
		out.AddError("扫描失败：%v", err)
		out.Finalize("自动后处理失败")
		p.log.Error().Err(err).Msg("自动后处理失败")
		return out
	}
	out.FilesProcessed = len(records)
	p.log.Info().
		Int("images", len(records)).
		Int("unpaired_captions", len(unpairedTxt)).
		Msg("扫描完成")

	out.Merge(p.HandleUnpaired(folder, unpairedTxt))
	out.Merge(p.RenameFiles(folder, records, p.start))

	// 重命名改变了文件名，标准化前必须重新扫描。
	records, _, err = scan.ScanFolder(folder)
	if err != nil {
		out.AddError("重新扫描失败：%v", err)
		out.Finalize("自动后处理失败")
		return out
	}
	out.Merge(p.StandardizeTags(folder, records))

	out.Finalize(fmt.Sprintf(
		"自动后处理完成：处理 %d 个文件对，重命名 %d 个文件，标准化 %d 个标签文件，处理 %d 个未配对文件",
		out.FilesProcessed, out.FilesRenamed, out.TagsStandardized, out.FilesUnpaired,
	))
	p.log.Info().Bool("succeeded", out.Succeeded).Msg(out.Message)
	return out
}
