package process

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/Noyze-AI/Fast-Danbooru-Dataset-DL/internal/domain"
	"github.com/Noyze-AI/Fast-Danbooru-Dataset-DL/internal/infra/fsx"
)

// HandleUnpaired 把未配对的文件（图片或标注）移进 <folder>/unpaired/。
//
// 目标名冲突时在扩展名前追加 _<n>（n 从 1 递增）直到找到空位。
// 每个移动相互独立、best-effort；空输入直接成功（零移动）。
// 只移动、不删除。
func (p *Processor) HandleUnpaired(folder string, paths []string) domain.Outcome {
	var out domain.Outcome

	if len(paths) == 0 {
		out.Finalize("没有未配对的文件需要处理")
		return out
	}

	p.log.Info().Int("count", len(paths)).Msg("开始处理未配对文件")

	dest := filepath.Join(filepath.Clean(folder), UnpairedDirName)
	if err := os.MkdirAll(dest, 0o755); err != nil {
		out.AddError("创建 unpaired 目录失败：%v", err)
		out.Finalize("处理未配对文件失败")
		return out
	}

	for _, src := range paths {
		dst := freeName(dest, filepath.Base(src))
		if err := fsx.Rename(src, dst); err != nil {
			p.log.Error().Err(err).Str("src", src).Msg("移动未配对文件失败")
			out.AddError("移动未配对文件失败：%s：%v", src, err)
			continue
		}
		out.FilesUnpaired++
	}

	out.Finalize(fmt.Sprintf("成功处理 %d 个未配对文件", out.FilesUnpaired))
	return out
}

// freeName 在 dir 内为 name 找一个未被占用的目标路径：
// name 本身空闲则直接用，否则依次尝试 <stem>_1<ext>、<stem>_2<ext>……
func freeName(dir, name string) string {
	dst := filepath.Join(dir, name)
	if _, err := os.Lstat(dst); err != nil {
		return dst
	}

	ext := filepath.Ext(name)
	stem := strings.TrimSuffix(name, ext)
	for n := 1; ; n++ {
		dst = filepath.Join(dir, fmt.Sprintf("%s_%d%s", stem, n, ext))
		if _, err := os.Lstat(dst); err != nil {
			return dst
		}
	}
}
