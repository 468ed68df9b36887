package scan

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/Noyze-AI/Fast-Danbooru-Dataset-DL/internal/domain"
)

// CaptionExt 是标注文件的固定后缀。
const CaptionExt = ".txt"

// NotFoundError 表示目标文件夹不存在。
// 这是唯一会让整个操作立即失败的文件夹级错误（单文件错误都走 Outcome.Errors）。
type NotFoundError struct {
	Path string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("文件夹不存在：%q", e.Path)
}

// IsNotFound 判断 err 是否为文件夹缺失错误。
func IsNotFound(err error) bool {
	var e *NotFoundError
	return errors.As(err, &e)
}

// IsImageExt 判断扩展名（含点，任意大小写）是否在图片允许列表内。
func IsImageExt(ext string) bool {
	switch strings.ToLower(ext) {
	case ".jpg", ".jpeg", ".png", ".gif", ".bmp", ".webp":
		return true
	default:
		return false
	}
}

// ScanFolder 扫描 folder 的直接子项并做图片/标注配对（不递归，不读文件内容）。
//
// 两种配对形式（固定优先级，不可配置）：
// 1) xxx.png + xxx.txt     —— 同名形式，优先
// 2) xxx.png + xxx.png.txt —— 全名形式
//
// 返回值：
// - 每个图片一条 PairRecord（含未配对图片），按图片文件名排序
// - 未被任何图片使用的标注文件路径，按标注文件名排序
//
// 只读操作：扫描永不改动文件系统。
func ScanFolder(folder string) ([]domain.PairRecord, []string, error) {
	folder = filepath.Clean(folder)

	if fi, err := os.Stat(folder); err != nil {
		if os.IsNotExist(err) {
			return nil, nil, &NotFoundError{Path: folder}
		}
		return nil, nil, err
	} else if !fi.IsDir() {
		return nil, nil, &NotFoundError{Path: folder}
	}

	entries, err := os.ReadDir(folder)
	if err != nil {
		return nil, nil, err
	}

	images := make([]string, 0, len(entries))
	captions := make([]string, 0, len(entries))
	captionSet := make(map[string]struct{}, len(entries))

	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		name := e.Name()
		switch {
		case IsImageExt(filepath.Ext(name)):
			images = append(images, name)
		case strings.HasSuffix(strings.ToLower(name), CaptionExt):
			captions = append(captions, name)
			captionSet[name] = struct{}{}
		}
	}

	// ReadDir 已按文件名排序，这里仍显式排序：输出顺序是对外契约，不依赖平台行为。
	sort.Strings(images)
	sort.Strings(captions)

	records := make([]domain.PairRecord, 0, len(images))
	used := make(map[string]struct{}, len(captions))

	for _, img := range images {
		base := strings.TrimSuffix(img, filepath.Ext(img))
		rec := domain.PairRecord{
			ImagePath: filepath.Join(folder, img),
			BaseName:  base,
		}

		// 同名形式优先于全名形式（固定 tie-break）。
		candA := base + CaptionExt
		candB := img + CaptionExt
		if _, ok := captionSet[candA]; ok {
			rec.CaptionPath = filepath.Join(folder, candA)
			rec.Paired = true
			used[candA] = struct{}{}
		} else if _, ok := captionSet[candB]; ok {
			rec.CaptionPath = filepath.Join(folder, candB)
			rec.Paired = true
			used[candB] = struct{}{}
		}

		records = append(records, rec)
	}

	unpaired := make([]string, 0)
	for _, txt := range captions {
		if _, ok := used[txt]; ok {
			continue
		}
		unpaired = append(unpaired, filepath.Join(folder, txt))
	}

	return records, unpaired, nil
}
