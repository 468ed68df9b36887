package download

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/rs/zerolog"

	"github.com/Noyze-AI/Fast-Danbooru-Dataset-DL/internal/infra/fsx"
	"github.com/Noyze-AI/Fast-Danbooru-Dataset-DL/internal/provider"
	"github.com/Noyze-AI/Fast-Danbooru-Dataset-DL/internal/scan"
)

const (
	// MaxCountLimit 是单次任务允许的最大下载数量上限。
	MaxCountLimit = 1000
	// DefaultMaxCount 是未指定数量时的默认值。
	DefaultMaxCount = 50
)

// Source 抽象帖子来源（列表页 + 帖子页），让下载流程可以脱离真实站点测试。
type Source interface {
	// ListPage 返回第 page 页的帖子 ID；空切片表示没有更多页。
	ListPage(ctx context.Context, tag string, page int) ([]string, error)
	// GetPost 抓取并解析一个帖子。
	GetPost(ctx context.Context, id string) (provider.Post, error)
}

// Status 是下载状态快照（/api/status 的轮询契约）。
type Status struct {
	Downloading bool   `json:"is_downloading"`
	Status      string `json:"status"`
	FileCount   int    `json:"file_count"`
}

// Downloader 监督一次后台下载任务：启动/取消/状态查询。
//
// 并发模型：同一实例最多一个进行中的任务；状态读写全部经过 mu。
// 取消通过 context 传播，下载 goroutine 自行收尾。
type Downloader struct {
	src    Source
	images *http.Client
	log    zerolog.Logger

	mu          sync.Mutex
	downloading bool
	status      string
	fileCount   int
	cancel      context.CancelFunc
}

// New 构造 Downloader。imageClient 用于取图片字节（页面抓取的 client 在 Source 内部）。
func New(src Source, imageClient *http.Client, log zerolog.Logger) *Downloader {
	return &Downloader{
		src:    src,
		images: imageClient,
		log:    log,
		status: "就绪",
	}
}

// Start 启动一次下载任务：<dir>/<tag>/ 下写入图片与标注文件。
// 已有任务进行中、参数无效、目录不可创建时拒绝启动并返回原因。
func (d *Downloader) Start(tag, dir string, maxCount int) (bool, string) {
	tag = strings.TrimSpace(tag)
	if tag == "" {
		return false, "请输入有效的标签"
	}
	if strings.TrimSpace(dir) == "" {
		return false, "请输入有效的下载目录"
	}
	if maxCount < 1 || maxCount > MaxCountLimit {
		return false, fmt.Sprintf("最大下载数量必须在1-%d之间", MaxCountLimit)
	}

	d.mu.Lock()
	defer d.mu.Unlock()

	if d.downloading {
		return false, "已有下载任务在进行中"
	}

	tagDir := filepath.Join(dir, tag)
	if err := os.MkdirAll(tagDir, 0o755); err != nil {
		return false, fmt.Sprintf("无法创建下载目录：%v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	d.downloading = true
	d.cancel = cancel
	d.fileCount = 0
	d.status = "准备下载..."

	go d.run(ctx, tag, tagDir, maxCount)
	return true, "下载已开始"
}

// Cancel 取消进行中的任务。没有任务时返回 false。
func (d *Downloader) Cancel() (bool, string) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if !d.downloading {
		return false, "当前没有正在进行的下载任务"
	}
	if d.cancel != nil {
		d.cancel()
	}
	d.status = "下载已取消"
	return true, "下载已取消"
}

// Snapshot 返回当前状态快照。
func (d *Downloader) Snapshot() Status {
	d.mu.Lock()
	defer d.mu.Unlock()
	return Status{
		Downloading: d.downloading,
		Status:      d.status,
		FileCount:   d.fileCount,
	}
}

func (d *Downloader) run(ctx context.Context, tag, dir string, maxCount int) {
	defer func() {
		d.mu.Lock()
		d.downloading = false
		d.cancel = nil
		d.mu.Unlock()
	}()

	d.setStatus("正在下载...")
	d.log.Info().Str("tag", tag).Str("dir", dir).Int("max", maxCount).Msg("下载任务开始")

	got := 0
pages:
	for page := 1; got < maxCount; page++ {
		ids, err := d.src.ListPage(ctx, tag, page)
		if err != nil {
			if ctx.Err() != nil {
				// 已取消：状态由 Cancel 设置，这里不再覆盖。
				return
			}
			d.log.Error().Err(err).Int("page", page).Msg("抓取列表页失败")
			d.setStatus("下载出错")
			return
		}
		if len(ids) == 0 {
			break
		}

		for _, id := range ids {
			if got >= maxCount {
				break pages
			}
			if ctx.Err() != nil {
				return
			}

			if err := d.fetchOne(ctx, id, dir); err != nil {
				if ctx.Err() != nil {
					return
				}
				// 单帖失败不终止整个任务。
				d.log.Warn().Err(err).Str("post", id).Msg("下载帖子失败")
				continue
			}

			got++
			d.mu.Lock()
			d.fileCount = got
			d.status = fmt.Sprintf("已下载 %d 个文件", got)
			d.mu.Unlock()
		}
	}

	// 最终计数以目录实际内容为准（过程计数可能与落盘结果有偏差）。
	actual := countImages(dir)
	d.mu.Lock()
	d.fileCount = actual
	d.status = fmt.Sprintf("下载完成！共获取 %d 个文件", actual)
	d.mu.Unlock()
	d.log.Info().Int("files", actual).Msg("下载任务完成")
}

// fetchOne 下载一个帖子：图片 + 标注文件。
//
// 标注写成全名形式 <图片文件名>.txt、每行一个原始标签——与 gallery-dl
// --write-tags 的产物一致，扫描器的全名配对形式正是为消费它而存在。
// 两者都不覆盖已有文件：重复下载同一帖子视为成功跳过。
func (d *Downloader) fetchOne(ctx context.Context, id, dir string) error {
	post, err := d.src.GetPost(ctx, id)
	if err != nil {
		return err
	}
	if !scan.IsImageExt(post.Ext) {
		return fmt.Errorf("跳过不支持的文件类型：%q", post.Ext)
	}

	b, err := d.fetchImage(ctx, post.FileURL, post.PageURL)
	if err != nil {
		return err
	}

	name := post.ID + post.Ext
	if err := fsx.WriteFileAtomicNoOverwrite(dir, name, b); err != nil && !errors.Is(err, os.ErrExist) {
		return err
	}

	caption := strings.Join(post.Tags, "\n") + "\n"
	if err := fsx.WriteFileAtomicNoOverwrite(dir, name+scan.CaptionExt, []byte(caption)); err != nil && !errors.Is(err, os.ErrExist) {
		return err
	}
	return nil
}

func (d *Downloader) fetchImage(ctx context.Context, u, referer string) ([]byte, error) {
	if d.images == nil {
		return nil, errors.New("image client 为空")
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return nil, err
	}
	if strings.TrimSpace(referer) != "" {
		req.Header.Set("Referer", referer)
	}

	resp, err := d.images.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, fmt.Errorf("HTTP %d", resp.StatusCode)
	}
	return io.ReadAll(resp.Body)
}

func (d *Downloader) setStatus(s string) {
	d.mu.Lock()
	d.status = s
	d.mu.Unlock()
}

func countImages(dir string) int {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return 0
	}
	n := 0
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		if scan.IsImageExt(filepath.Ext(e.Name())) {
			n++
		}
	}
	return n
}
