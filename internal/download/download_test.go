package download

import (
	"context"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/Noyze-AI/Fast-Danbooru-Dataset-DL/internal/provider"
)

// fakeSource 按页返回固定 ID；blockList 非空时 ListPage 阻塞到取消。
type fakeSource struct {
	pages     map[int][]string
	fileURL   string
	blockList chan struct{}
}

func (f *fakeSource) ListPage(ctx context.Context, _ string, page int) ([]string, error) {
	if f.blockList != nil {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-f.blockList:
		}
	}
	return f.pages[page], nil
}

func (f *fakeSource) GetPost(_ context.Context, id string) (provider.Post, error) {
	return provider.Post{
		ID:      id,
		FileURL: f.fileURL + "/" + id + ".jpg",
		Ext:     ".jpg",
		Tags:    []string{"long_hair", "1girl"},
		PageURL: "https://example.test/posts/" + id,
	}, nil
}

func waitDone(t *testing.T, d *Downloader) Status {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		st := d.Snapshot()
		if !st.Downloading {
			return st
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatalf("下载任务未在限期内结束")
	return Status{}
}

func newImageServer(t *testing.T) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte("img:" + r.URL.Path))
	}))
	t.Cleanup(srv.Close)
	return srv
}

func TestStart_Validation(t *testing.T) {
	d := New(&fakeSource{}, http.DefaultClient, zerolog.Nop())

	if ok, msg := d.Start("  ", t.TempDir(), 10); ok || msg != "请输入有效的标签" {
		t.Fatalf("空标签应拒绝，实际 ok=%v msg=%q", ok, msg)
	}
	if ok, msg := d.Start("tag", " ", 10); ok || msg != "请输入有效的下载目录" {
		t.Fatalf("空目录应拒绝，实际 ok=%v msg=%q", ok, msg)
	}
	if ok, _ := d.Start("tag", t.TempDir(), 0); ok {
		t.Fatalf("数量 0 应拒绝")
	}
	if ok, _ := d.Start("tag", t.TempDir(), MaxCountLimit+1); ok {
		t.Fatalf("超出上限应拒绝")
	}
}

func TestDownload_Complete(t *testing.T) {
	srv := newImageServer(t)
	src := &fakeSource{
		pages:   map[int][]string{1: {"11", "22"}},
		fileURL: srv.URL,
	}
	dir := t.TempDir()

	d := New(src, srv.Client(), zerolog.Nop())
	ok, msg := d.Start("1girl", dir, 10)
	if !ok || msg != "下载已开始" {
		t.Fatalf("期望启动成功，实际 ok=%v msg=%q", ok, msg)
	}

	st := waitDone(t, d)
	if st.FileCount != 2 {
		t.Fatalf("期望 2 个文件，实际 %d", st.FileCount)
	}
	if !strings.HasPrefix(st.Status, "下载完成") {
		t.Fatalf("期望完成状态，实际 %q", st.Status)
	}

	// 文件落在 <dir>/<tag>/ 下：图片 + 全名标注。
	tagDir := filepath.Join(dir, "1girl")
	b, err := os.ReadFile(filepath.Join(tagDir, "11.jpg"))
	if err != nil {
		t.Fatalf("读取图片失败：%v", err)
	}
	if string(b) != "img:/11.jpg" {
		t.Fatalf("图片内容不符：%q", string(b))
	}

	caption, err := os.ReadFile(filepath.Join(tagDir, "11.jpg.txt"))
	if err != nil {
		t.Fatalf("读取标注失败：%v", err)
	}
	if string(caption) != "long_hair\n1girl\n" {
		t.Fatalf("标注应每行一个原始标签，实际 %q", string(caption))
	}
}

func TestDownload_MaxCountStops(t *testing.T) {
	srv := newImageServer(t)
	src := &fakeSource{
		pages: map[int][]string{
			1: {"1", "2", "3"},
			2: {"4", "5"},
		},
		fileURL: srv.URL,
	}
	dir := t.TempDir()

	d := New(src, srv.Client(), zerolog.Nop())
	if ok, _ := d.Start("tag", dir, 2); !ok {
		t.Fatalf("期望启动成功")
	}

	st := waitDone(t, d)
	if st.FileCount != 2 {
		t.Fatalf("期望刚好 2 个文件，实际 %d", st.FileCount)
	}
}

func TestDownload_RejectsConcurrentStart(t *testing.T) {
	src := &fakeSource{blockList: make(chan struct{})}
	d := New(src, http.DefaultClient, zerolog.Nop())

	if ok, _ := d.Start("tag", t.TempDir(), 5); !ok {
		t.Fatalf("期望启动成功")
	}
	if ok, msg := d.Start("tag", t.TempDir(), 5); ok || msg != "已有下载任务在进行中" {
		t.Fatalf("进行中应拒绝二次启动，实际 ok=%v msg=%q", ok, msg)
	}

	if ok, msg := d.Cancel(); !ok || msg != "下载已取消" {
		t.Fatalf("期望取消成功，实际 ok=%v msg=%q", ok, msg)
	}
	st := waitDone(t, d)
	if st.Status != "下载已取消" {
		t.Fatalf("取消后状态不应被覆盖，实际 %q", st.Status)
	}

	// 任务结束后可以再次启动。
	if ok, _ := d.Cancel(); ok {
		t.Fatalf("没有任务时取消应返回 false")
	}
}

func TestDownload_SkipsExistingFiles(t *testing.T) {
	srv := newImageServer(t)
	src := &fakeSource{
		pages:   map[int][]string{1: {"7"}},
		fileURL: srv.URL,
	}
	dir := t.TempDir()
	tagDir := filepath.Join(dir, "tag")
	if err := os.MkdirAll(tagDir, 0o755); err != nil {
		t.Fatalf("创建目录失败：%v", err)
	}
	if err := os.WriteFile(filepath.Join(tagDir, "7.jpg"), []byte("已有"), 0o644); err != nil {
		t.Fatalf("写入文件失败：%v", err)
	}

	d := New(src, srv.Client(), zerolog.Nop())
	if ok, _ := d.Start("tag", dir, 5); !ok {
		t.Fatalf("期望启动成功")
	}
	st := waitDone(t, d)
	if !strings.HasPrefix(st.Status, "下载完成") {
		t.Fatalf("重复下载应视为成功，实际 %q", st.Status)
	}

	// 已有文件不被覆盖。
	b, _ := os.ReadFile(filepath.Join(tagDir, "7.jpg"))
	if string(b) != "已有" {
		t.Fatalf("已有文件被覆盖：%q", string(b))
	}
}
