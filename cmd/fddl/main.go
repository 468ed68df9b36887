package main

import (
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"time"

	"github.com/Noyze-AI/Fast-Danbooru-Dataset-DL/internal/config"
	"github.com/Noyze-AI/Fast-Danbooru-Dataset-DL/internal/domain"
	"github.com/Noyze-AI/Fast-Danbooru-Dataset-DL/internal/download"
	"github.com/Noyze-AI/Fast-Danbooru-Dataset-DL/internal/infra/httpx"
	"github.com/Noyze-AI/Fast-Danbooru-Dataset-DL/internal/infra/logx"
	"github.com/Noyze-AI/Fast-Danbooru-Dataset-DL/internal/process"
	"github.com/Noyze-AI/Fast-Danbooru-Dataset-DL/internal/provider/danbooru"
	"github.com/Noyze-AI/Fast-Danbooru-Dataset-DL/internal/tags"
	"github.com/Noyze-AI/Fast-Danbooru-Dataset-DL/internal/web"
)

func main() {
	args := os.Args[1:]
	if len(args) == 0 || isHelp(args[0]) {
		printUsage()
		return
	}

	var code int
	switch args[0] {
	case "serve":
		code = serveCmd(args[1:])
	case "process":
		code = processCmd(args[1:])
	case "tags":
		code = tagsCmd(args[1:])
	case "download":
		code = downloadCmd(args[1:])
	default:
		fmt.Fprintf(os.Stderr, "未知命令：%q\n\n", args[0])
		printUsage()
		code = 2
	}
	if code != 0 {
		os.Exit(code)
	}
}

// loadConfig 统一处理 --config 发现与合并；失败直接打印原因。
func loadConfig(cli config.CLIArgs) (config.EffectiveConfig, bool) {
	cwd, err := os.Getwd()
	if err != nil {
		fmt.Fprintf(os.Stderr, "读取当前目录失败：%v\n", err)
		return config.EffectiveConfig{}, false
	}
	eff, err := config.LoadEffective(cwd, cli)
	if err != nil {
		fmt.Fprintf(os.Stderr, "配置错误：%v\n", err)
		return config.EffectiveConfig{}, false
	}
	return eff, true
}

func serveCmd(args []string) int {
	fs := newArgScanner(args)
	var cli config.CLIArgs
	for fs.next() {
		switch {
		case fs.flag("--config"):
			cli.ConfigPath = fs.value()
		case fs.flag("--listen"):
			cli.Listen = fs.value()
			cli.ListenSet = true
		case fs.flag("--dir"):
			cli.DownloadDir = fs.value()
			cli.DownloadDirSet = true
		default:
			return fs.fail(printServeUsage)
		}
	}
	if fs.err != nil {
		return fs.fail(printServeUsage)
	}

	eff, ok := loadConfig(cli)
	if !ok {
		return 1
	}

	log := logx.New(eff.LogFile)

	pageClient, err := httpx.NewPageClient(eff.ProxyURL)
	if err != nil {
		fmt.Fprintf(os.Stderr, "初始化页面 client 失败：%v\n", err)
		return 1
	}
	imageClient, err := httpx.NewImageClient(eff.ProxyURL, eff.ImageProxy)
	if err != nil {
		fmt.Fprintf(os.Stderr, "初始化图片 client 失败：%v\n", err)
		return 1
	}

	src := &danbooru.Client{BaseURL: eff.BaseURL, HTTP: pageClient}
	dl := download.New(src, imageClient, log)
	proc := process.New(eff.RenameStartIndex, log)
	srv := web.NewServer(dl, proc, eff.DownloadDir, log)

	log.Info().Str("listen", eff.Listen).Msg("web 服务启动")
	fmt.Fprintf(os.Stderr, "访问地址：http://%s\n", eff.Listen)

	if err := http.ListenAndServe(eff.Listen, srv.Handler()); err != nil {
		log.Error().Err(err).Msg("web 服务退出")
		return 1
	}
	return 0
}

func processCmd(args []string) int {
	fs := newArgScanner(args)
	var cli config.CLIArgs
	folder := ""
	startIndex := -1
	for fs.next() {
		switch {
		case fs.flag("--config"):
			cli.ConfigPath = fs.value()
		case fs.flag("--start"):
			n, err := strconv.Atoi(fs.value())
			if err != nil || n < 0 {
				fmt.Fprintf(os.Stderr, "--start 必须是非负整数\n\n")
				printProcessUsage()
				return 2
			}
			startIndex = n
		case fs.positional():
			if folder != "" {
				fmt.Fprintf(os.Stderr, "重复的 folder：%q 与 %q\n\n", folder, fs.cur)
				printProcessUsage()
				return 2
			}
			folder = fs.cur
		default:
			return fs.fail(printProcessUsage)
		}
	}
	if fs.err != nil {
		return fs.fail(printProcessUsage)
	}
	if folder == "" {
		fmt.Fprintf(os.Stderr, "缺少 folder 参数\n\n")
		printProcessUsage()
		return 2
	}

	eff, ok := loadConfig(cli)
	if !ok {
		return 1
	}
	if startIndex < 0 {
		startIndex = eff.RenameStartIndex
	}

	proc := process.New(startIndex, logx.New(eff.LogFile))
	return emitOutcome(proc.AutoProcess(folder))
}

func tagsCmd(args []string) int {
	fs := newArgScanner(args)
	var cli config.CLIArgs
	var spec tags.EditSpec
	folder := ""
	for fs.next() {
		switch {
		case fs.flag("--config"):
			cli.ConfigPath = fs.value()
		case fs.flag("--remove"):
			spec.RemoveExact = append(spec.RemoveExact, splitList(fs.value())...)
		case fs.flag("--remove-containing"):
			spec.RemoveContaining = append(spec.RemoveContaining, splitList(fs.value())...)
		case fs.flag("--add"):
			spec.Add = append(spec.Add, splitList(fs.value())...)
		case fs.positional():
			if folder != "" {
				fmt.Fprintf(os.Stderr, "重复的 folder：%q 与 %q\n\n", folder, fs.cur)
				printTagsUsage()
				return 2
			}
			folder = fs.cur
		default:
			return fs.fail(printTagsUsage)
		}
	}
	if fs.err != nil {
		return fs.fail(printTagsUsage)
	}
	if folder == "" {
		fmt.Fprintf(os.Stderr, "缺少 folder 参数\n\n")
		printTagsUsage()
		return 2
	}

	eff, ok := loadConfig(cli)
	if !ok {
		return 1
	}

	proc := process.New(eff.RenameStartIndex, logx.New(eff.LogFile))
	return emitOutcome(proc.EditTags(folder, spec))
}

func downloadCmd(args []string) int {
	fs := newArgScanner(args)
	var cli config.CLIArgs
	tag := ""
	maxCount := download.DefaultMaxCount
	for fs.next() {
		switch {
		case fs.flag("--config"):
			cli.ConfigPath = fs.value()
		case fs.flag("--dir"):
			cli.DownloadDir = fs.value()
			cli.DownloadDirSet = true
		case fs.flag("--max"):
			n, err := strconv.Atoi(fs.value())
			if err != nil || n < 1 || n > download.MaxCountLimit {
				fmt.Fprintf(os.Stderr, "--max 必须在 1-%d 之间\n\n", download.MaxCountLimit)
				printDownloadUsage()
				return 2
			}
			maxCount = n
		case fs.positional():
			if tag != "" {
				fmt.Fprintf(os.Stderr, "重复的 tag：%q 与 %q\n\n", tag, fs.cur)
				printDownloadUsage()
				return 2
			}
			tag = fs.cur
		default:
			return fs.fail(printDownloadUsage)
		}
	}
	if fs.err != nil {
		return fs.fail(printDownloadUsage)
	}
	if tag == "" {
		fmt.Fprintf(os.Stderr, "缺少 tag 参数\n\n")
		printDownloadUsage()
		return 2
	}

	eff, ok := loadConfig(cli)
	if !ok {
		return 1
	}
	if eff.DownloadDir == "" {
		fmt.Fprintf(os.Stderr, "缺少下载目录：用 --dir 指定，或在 fddl.json 设置 download_dir\n")
		return 1
	}

	log := logx.New(eff.LogFile)

	pageClient, err := httpx.NewPageClient(eff.ProxyURL)
	if err != nil {
		fmt.Fprintf(os.Stderr, "初始化页面 client 失败：%v\n", err)
		return 1
	}
	imageClient, err := httpx.NewImageClient(eff.ProxyURL, eff.ImageProxy)
	if err != nil {
		fmt.Fprintf(os.Stderr, "初始化图片 client 失败：%v\n", err)
		return 1
	}

	dl := download.New(&danbooru.Client{BaseURL: eff.BaseURL, HTTP: pageClient}, imageClient, log)
	if ok, msg := dl.Start(tag, eff.DownloadDir, maxCount); !ok {
		fmt.Fprintf(os.Stderr, "%s\n", msg)
		return 1
	}

	// Ctrl+C 转为取消（状态机自行收尾）。
	sig := make(chan os.Signal, 1)
	signal.Notify(sig, os.Interrupt)
	defer signal.Stop(sig)

	ticker := time.NewTicker(500 * time.Millisecond)
	defer ticker.Stop()

	last := ""
	for {
		select {
		case <-sig:
			dl.Cancel()
		case <-ticker.C:
		}

		st := dl.Snapshot()
		if st.Status != last {
			fmt.Fprintf(os.Stderr, "%s\n", st.Status)
			last = st.Status
		}
		if !st.Downloading {
			if strings.HasPrefix(st.Status, "下载完成") {
				return 0
			}
			return 1
		}
	}
}

// emitOutcome 输出 Outcome：交互终端给人看，非 TTY 时 stdout 只输出一个 JSON。
func emitOutcome(out domain.Outcome) int {
	if isTTY(os.Stdout) {
		fmt.Fprintf(os.Stdout, "%s\n", out.Message)
		for _, e := range out.Errors {
			fmt.Fprintf(os.Stderr, "错误：%s\n", e)
		}
	} else {
		enc := json.NewEncoder(os.Stdout)
		_ = enc.Encode(out)
		fmt.Fprintf(os.Stderr, "%s\n", out.Message)
	}
	if out.Succeeded {
		return 0
	}
	return 1
}

func isTTY(f *os.File) bool {
	fi, err := f.Stat()
	if err != nil {
		return false
	}
	return fi.Mode()&os.ModeCharDevice != 0
}

func splitList(s string) []string {
	out := make([]string, 0, 4)
	for _, t := range strings.Split(s, ",") {
		if t = strings.TrimSpace(t); t != "" {
			out = append(out, t)
		}
	}
	return out
}

// argScanner 是一个极小的参数游标：支持 --flag VALUE 与 --flag=VALUE 两种形态。
type argScanner struct {
	args []string
	i    int
	cur  string
	val  string
	err  error
}

func newArgScanner(args []string) *argScanner {
	return &argScanner{args: args, i: -1}
}

func (s *argScanner) next() bool {
	if s.err != nil {
		return false
	}
	s.i++
	if s.i >= len(s.args) {
		return false
	}
	s.cur = s.args[s.i]
	s.val = ""
	return true
}

// flag 匹配 name，并就地取出值（--name=V 或下一个参数）。
func (s *argScanner) flag(name string) bool {
	if s.cur == name {
		if s.i+1 >= len(s.args) {
			s.err = fmt.Errorf("%s 需要一个值", name)
			return false
		}
		s.i++
		s.val = s.args[s.i]
		return true
	}
	if strings.HasPrefix(s.cur, name+"=") {
		s.val = strings.TrimPrefix(s.cur, name+"=")
		return true
	}
	return false
}

func (s *argScanner) value() string { return s.val }

func (s *argScanner) positional() bool {
	return !strings.HasPrefix(s.cur, "-")
}

func (s *argScanner) fail(usage func()) int {
	if s.err != nil {
		fmt.Fprintf(os.Stderr, "参数错误：%v\n\n", s.err)
	} else {
		fmt.Fprintf(os.Stderr, "未知参数 %q\n\n", s.cur)
	}
	usage()
	return 2
}

func isHelp(s string) bool {
	return s == "-h" || s == "--help" || s == "help"
}

func printUsage() {
	fmt.Fprint(os.Stdout, `用法：
  fddl serve    [--listen ADDR] [--dir DIR] [--config FILE]
  fddl process  <folder> [--start N] [--config FILE]
  fddl tags     <folder> [--remove A,B] [--remove-containing X] [--add C,D] [--config FILE]
  fddl download <tag> [--dir DIR] [--max N] [--config FILE]

命令：
  serve     启动 web 界面（下载 + 后处理）
  process   对文件夹执行自动后处理（配对 → 隔离未配对 → 重命名 → 标签标准化）
  tags      对文件夹内所有 .txt 做手动标签编辑
  download  命令行直接下载

使用 "fddl <命令> --help" 查看详细说明。
`)
}

func printServeUsage() {
	fmt.Fprint(os.Stdout, `用法：
  fddl serve [--listen ADDR] [--dir DIR] [--config FILE]

参数：
  --listen  监听地址（默认 127.0.0.1:5678）
  --dir     默认下载目录（请求里未指定时使用）
  --config  配置文件位置（默认 <cwd>/fddl.json，可缺省）
`)
}

func printProcessUsage() {
	fmt.Fprint(os.Stdout, `用法：
  fddl process <folder> [--start N] [--config FILE]

参数：
  --start   重命名起始序号（非负整数，默认 1）
  --config  配置文件位置
`)
}

func printTagsUsage() {
	fmt.Fprint(os.Stdout, `用法：
  fddl tags <folder> [--remove A,B] [--remove-containing X] [--add C,D] [--config FILE]

参数：
  --remove             精确删除的标签（逗号分隔，可重复）
  --remove-containing  按子串删除的标签（逗号分隔，可重复）
  --add                追加的标签（逗号分隔，可重复）
`)
}

func printDownloadUsage() {
	fmt.Fprint(os.Stdout, `用法：
  fddl download <tag> [--dir DIR] [--max N] [--config FILE]

参数：
  --dir   下载目录（或在 fddl.json 设置 download_dir）
  --max   最大下载数量（1-1000，默认 50）
`)
}
