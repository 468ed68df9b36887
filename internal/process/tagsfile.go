package process

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/Noyze-AI/Fast-Danbooru-Dataset-DL/internal/domain"
	"github.com/Noyze-AI/Fast-Danbooru-Dataset-DL/internal/infra/fsx"
	"github.com/Noyze-AI/Fast-Danbooru-Dataset-DL/internal/scan"
	"github.com/Noyze-AI/Fast-Danbooru-Dataset-DL/internal/tags"
)

// StandardizeTags 对 records 中每个存在标注文件的记录应用自动标准化：
// 整读 → tags.Standardize → 原子整写。单文件失败只记录错误并继续；
// TagsStandardized 只在写入确认成功后递增。
func (p *Processor) StandardizeTags(folder string, records []domain.PairRecord) domain.Outcome {
	var out domain.Outcome

	p.log.Info().Str("folder", folder).Msg("开始标准化标签文件")

	for _, rec := range records {
		if rec.CaptionPath == "" {
			continue
		}
		if !p.rewriteCaption(rec.CaptionPath, tags.Standardize, &out) {
			continue
		}
		out.TagsStandardized++
	}

	out.Finalize(fmt.Sprintf("成功标准化 %d 个标签文件", out.TagsStandardized))
	return out
}

// EditTags 对 folder 直接子项里的每个 .txt 文件应用手动编辑（与配对无关）。
func (p *Processor) EditTags(folder string, spec tags.EditSpec) domain.Outcome {
	var out domain.Outcome

	folder = filepath.Clean(folder)
	entries, err := os.ReadDir(folder)
	if err != nil {
		if os.IsNotExist(err) {
			out.AddError("文件夹不存在：%q", folder)
		} else {
			out.AddError("读取文件夹失败：%v", err)
		}
		out.Finalize("手动标签处理失败")
		return out
	}

	p.log.Info().
		Str("folder", folder).
		Strs("remove", spec.RemoveExact).
		Strs("remove_containing", spec.RemoveContaining).
		Strs("add", spec.Add).
		Msg("开始手动标签处理")

	edit := func(text string) string { return tags.CleanEdit(text, spec) }

	for _, e := range entries {
		if e.IsDir() || !strings.HasSuffix(strings.ToLower(e.Name()), scan.CaptionExt) {
			continue
		}
		if !p.rewriteCaption(filepath.Join(folder, e.Name()), edit, &out) {
			continue
		}
		out.FilesProcessed++
	}

	out.Finalize(fmt.Sprintf("成功处理 %d 个标签文件", out.FilesProcessed))
	return out
}

// rewriteCaption 整读标注文件、应用变换、原子整写回去。
// 返回是否写入成功；文件已不存在视为跳过（不算错误——重命名/隔离可能刚移走它）。
func (p *Processor) rewriteCaption(path string, transform func(string) string, out *domain.Outcome) bool {
	b, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return false
		}
		p.log.Error().Err(err).Str("path", path).Msg("读取标签文件失败")
		out.AddError("读取标签文件失败：%s：%v", path, err)
		return false
	}

	next := transform(string(b))

	if err := fsx.WriteFileAtomicReplace(filepath.Dir(path), filepath.Base(path), []byte(next)); err != nil {
		p.log.Error().Err(err).Str("path", path).Msg("写入标签文件失败")
		out.AddError("写入标签文件失败：%s：%v", path, err)
		return false
	}
	return true
}
