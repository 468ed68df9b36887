package web

import (
	_ "embed"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"

	"github.com/rs/zerolog"

	"github.com/Noyze-AI/Fast-Danbooru-Dataset-DL/internal/download"
	"github.com/Noyze-AI/Fast-Danbooru-Dataset-DL/internal/process"
	"github.com/Noyze-AI/Fast-Danbooru-Dataset-DL/internal/scan"
	"github.com/Noyze-AI/Fast-Danbooru-Dataset-DL/internal/tags"
)

//go:embed index.html
var indexHTML []byte

// Server 是面向浏览器的薄 HTTP 层：解析请求、做数值/必填校验，
// 然后把工作交给 download/process；核心不感知 HTTP。
type Server struct {
	dl         *download.Downloader
	proc       *process.Processor
	defaultDir string
	log        zerolog.Logger
}

func NewServer(dl *download.Downloader, proc *process.Processor, defaultDir string, log zerolog.Logger) *Server {
	return &Server{dl: dl, proc: proc, defaultDir: defaultDir, log: log}
}

// Handler 组装路由。所有 /api/ 响应都是 JSON。
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /{$}", s.handleIndex)
	mux.HandleFunc("POST /api/download", s.handleDownload)
	mux.HandleFunc("GET /api/status", s.handleStatus)
	mux.HandleFunc("POST /api/cancel", s.handleCancel)
	mux.HandleFunc("POST /api/manual_tag_process", s.handleManualTags)
	mux.HandleFunc("POST /api/auto_standardize", s.handleAutoStandardize)
	mux.HandleFunc("POST /api/auto_process", s.handleAutoProcess)
	return mux
}

type apiResponse struct {
	Success bool   `json:"success"`
	Message string `json:"message"`
}

func (s *Server) handleIndex(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	_, _ = w.Write(indexHTML)
}

type downloadRequest struct {
	Tag         string `json:"tag"`
	DownloadDir string `json:"download_dir"`
	MaxCount    int    `json:"max_count"`
}

func (s *Server) handleDownload(w http.ResponseWriter, r *http.Request) {
	var req downloadRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	tag := strings.TrimSpace(req.Tag)
	if tag == "" {
		writeJSON(w, apiResponse{Success: false, Message: "请输入标签"})
		return
	}

	dir := strings.TrimSpace(req.DownloadDir)
	if dir == "" {
		dir = s.defaultDir
	}
	if dir == "" {
		writeJSON(w, apiResponse{Success: false, Message: "请输入下载目录"})
		return
	}

	// 数值范围在这一层拦截：核心只接受已校验的参数。
	maxCount := req.MaxCount
	if maxCount == 0 {
		maxCount = download.DefaultMaxCount
	}
	if maxCount < 1 || maxCount > download.MaxCountLimit {
		writeJSON(w, apiResponse{Success: false, Message: fmt.Sprintf("最大下载数量必须在1-%d之间", download.MaxCountLimit)})
		return
	}

	ok, msg := s.dl.Start(tag, dir, maxCount)
	writeJSON(w, apiResponse{Success: ok, Message: msg})
}

func (s *Server) handleStatus(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, s.dl.Snapshot())
}

func (s *Server) handleCancel(w http.ResponseWriter, _ *http.Request) {
	ok, msg := s.dl.Cancel()
	writeJSON(w, apiResponse{Success: ok, Message: msg})
}

type manualTagRequest struct {
	FolderPath       string   `json:"folder_path"`
	RemoveTags       []string `json:"remove_tags"`
	RemoveContaining []string `json:"remove_containing"`
	AddTags          []string `json:"add_tags"`
}

func (s *Server) handleManualTags(w http.ResponseWriter, r *http.Request) {
	var req manualTagRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	folder := strings.TrimSpace(req.FolderPath)
	if folder == "" {
		writeJSON(w, apiResponse{Success: false, Message: "请指定文件夹路径"})
		return
	}

	spec := tags.EditSpec{
		RemoveExact:      trimNonEmpty(req.RemoveTags),
		RemoveContaining: trimNonEmpty(req.RemoveContaining),
		Add:              trimNonEmpty(req.AddTags),
	}

	out := s.proc.EditTags(folder, spec)
	writeJSON(w, apiResponse{Success: out.Succeeded, Message: out.Message})
}

type folderRequest struct {
	FolderPath string `json:"folder_path"`
}

func (s *Server) handleAutoStandardize(w http.ResponseWriter, r *http.Request) {
	var req folderRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	folder := strings.TrimSpace(req.FolderPath)
	if folder == "" {
		writeJSON(w, apiResponse{Success: false, Message: "请指定文件夹路径"})
		return
	}

	records, _, err := scan.ScanFolder(folder)
	if err != nil {
		writeJSON(w, apiResponse{Success: false, Message: err.Error()})
		return
	}
	if len(records) == 0 {
		writeJSON(w, apiResponse{Success: false, Message: "未找到可处理的文件"})
		return
	}

	out := s.proc.StandardizeTags(folder, records)
	writeJSON(w, apiResponse{Success: out.Succeeded, Message: out.Message})
}

func (s *Server) handleAutoProcess(w http.ResponseWriter, r *http.Request) {
	var req folderRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	folder := strings.TrimSpace(req.FolderPath)
	if folder == "" {
		writeJSON(w, apiResponse{Success: false, Message: "请指定文件夹路径"})
		return
	}

	out := s.proc.AutoProcess(folder)
	writeJSON(w, apiResponse{Success: out.Succeeded, Message: out.Message})
}

func decodeJSON(w http.ResponseWriter, r *http.Request, v any) bool {
	dec := json.NewDecoder(r.Body)
	if err := dec.Decode(v); err != nil {
		writeJSON(w, apiResponse{Success: false, Message: fmt.Sprintf("请求解析失败：%v", err)})
		return false
	}
	return true
}

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	enc := json.NewEncoder(w)
	_ = enc.Encode(v)
}

func trimNonEmpty(in []string) []string {
	out := make([]string, 0, len(in))
	for _, s := range in {
		if s = strings.TrimSpace(s); s != "" {
			out = append(out, s)
		}
	}
	return out
}
