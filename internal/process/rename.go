package process

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/Noyze-AI/Fast-Danbooru-Dataset-DL/internal/domain"
	"github.com/Noyze-AI/Fast-Danbooru-Dataset-DL/internal/infra/fsx"
	"github.com/Noyze-AI/Fast-Danbooru-Dataset-DL/internal/scan"
)

type renameStep struct {
	src string
	dst string
}

// RenameFiles 把 records 重命名为从 start 开始的连续数字名：
// 第 i 条记录得到序号 start+i，图片与标注共用数字主干，各保留自己的扩展名。
//
// 两阶段重命名（防冲突的硬约束）：
// 1) 全部源文件先改为 temp_<序号><扩展名>
// 2) 全部临时文件再改为 <序号><扩展名>
// 单阶段做法会在“目标名正被另一个待改名文件占用”时失败，必须先整体挪开。
//
// 单次 rename 失败只记录错误并继续（best-effort）；FilesRenamed 统计阶段 1
// 的成功数。阶段 1 成功但阶段 2 失败的文件停留在临时名上——可见、可修复，
// 不做静默掩盖。
func (p *Processor) RenameFiles(folder string, records []domain.PairRecord, start int) domain.Outcome {
	var out domain.Outcome

	if start < 0 {
		start = DefaultStartIndex
	}
	folder = filepath.Clean(folder)

	if fi, err := os.Stat(folder); err != nil || !fi.IsDir() {
		out.AddError("文件夹不存在：%q", folder)
		out.Finalize("重命名失败")
		return out
	}

	p.log.Info().Int("start", start).Int("records", len(records)).Msg("开始重命名文件")

	tempSteps := make([]renameStep, 0, len(records)*2)
	finalSteps := make([]renameStep, 0, len(records)*2)

	for i, rec := range records {
		idx := start + i

		if rec.ImagePath != "" {
			ext := filepath.Ext(rec.ImagePath)
			tmp := filepath.Join(folder, fmt.Sprintf("temp_%d%s", idx, ext))
			fin := filepath.Join(folder, fmt.Sprintf("%d%s", idx, ext))
			tempSteps = append(tempSteps, renameStep{src: rec.ImagePath, dst: tmp})
			finalSteps = append(finalSteps, renameStep{src: tmp, dst: fin})
		}

		if rec.CaptionPath != "" {
			tmp := filepath.Join(folder, fmt.Sprintf("temp_%d%s", idx, scan.CaptionExt))
			fin := filepath.Join(folder, fmt.Sprintf("%d%s", idx, scan.CaptionExt))
			tempSteps = append(tempSteps, renameStep{src: rec.CaptionPath, dst: tmp})
			finalSteps = append(finalSteps, renameStep{src: tmp, dst: fin})
		}
	}

	// 阶段 1：全部挪到临时名。
	for _, s := range tempSteps {
		if err := fsx.Rename(s.src, s.dst); err != nil {
			p.log.Error().Err(err).Str("src", s.src).Msg("临时重命名失败")
			out.AddError("临时重命名失败：%s -> %s：%v", s.src, s.dst, err)
			continue
		}
		out.FilesRenamed++
	}

	// 阶段间：此时批内文件都在临时名上，最终名若仍被占用，占用者一定是
	// 批外的无关文件。把它移进 unpaired/ 隔离（带 _<n> 后缀），绝不静默覆盖。
	blocked := p.relocateBlockers(folder, finalSteps, &out)

	// 阶段 2：临时名改为最终名。
	for _, s := range finalSteps {
		if _, bad := blocked[s.dst]; bad {
			// 占位文件挪不开：跳过该条，避免 POSIX rename 把它覆盖掉。
			continue
		}
		if _, err := os.Lstat(s.src); err != nil {
			// 阶段 1 已失败的条目没有临时文件，不重复报错。
			continue
		}
		if err := fsx.Rename(s.src, s.dst); err != nil {
			p.log.Error().Err(err).Str("src", s.src).Msg("最终重命名失败")
			out.AddError("最终重命名失败：%s -> %s：%v", s.src, s.dst, err)
		}
	}

	out.Finalize(fmt.Sprintf("成功重命名 %d 个文件", out.FilesRenamed))
	return out
}

// relocateBlockers 把占用最终名的批外文件移进 unpaired/。
// 返回挪不开的目标名集合（对应的阶段 2 改名必须跳过）。
func (p *Processor) relocateBlockers(folder string, finalSteps []renameStep, out *domain.Outcome) map[string]struct{} {
	blocked := make(map[string]struct{})

	for _, s := range finalSteps {
		if _, err := os.Lstat(s.dst); err != nil {
			continue
		}

		dest := filepath.Join(folder, UnpairedDirName)
		if err := os.MkdirAll(dest, 0o755); err != nil {
			out.AddError("创建 unpaired 目录失败：%v", err)
			blocked[s.dst] = struct{}{}
			continue
		}

		moved := freeName(dest, filepath.Base(s.dst))
		if err := fsx.Rename(s.dst, moved); err != nil {
			out.AddError("移开占位文件失败：%s：%v", s.dst, err)
			blocked[s.dst] = struct{}{}
			continue
		}

		p.log.Warn().Str("from", s.dst).Str("to", moved).Msg("目标名被无关文件占用，已移入 unpaired")
		out.FilesUnpaired++
	}

	return blocked
}
