package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strings"
)

const (
	// ErrCodeNotFound 表示显式指定的配置文件不存在。
	ErrCodeNotFound = "config_not_found"
	// ErrCodeInvalid 表示配置文件无法读取/解析，或字段不合法。
	ErrCodeInvalid = "config_invalid"
)

const (
	// DefaultListen 是 web 服务的默认监听地址（只绑本机）。
	DefaultListen = "127.0.0.1:5678"
	// DefaultLogFile 是诊断日志文件的默认位置。
	DefaultLogFile = "logs/fddl.log"
	// DefaultStartIndex 是重命名的默认起始序号。
	DefaultStartIndex = 1
)

// CLIArgs 只包含 CLI 暴露的入口项，并保留“是否显式指定”的信息，
// 保证覆盖优先级可实现（CLI 显式值必须能覆盖配置文件）。
type CLIArgs struct {
	// ConfigPath 显式指定配置文件位置；为空时读取 <cwd>/fddl.json（可选）。
	ConfigPath string

	Listen    string
	ListenSet bool

	DownloadDir    string
	DownloadDirSet bool
}

// FileConfig 对应 fddl.json 的解析结构。未知字段忽略。
type FileConfig struct {
	Listen           string       `json:"listen"`
	DownloadDir      string       `json:"download_dir"`
	Proxy            *ProxyConfig `json:"proxy"`
	ImageProxy       bool         `json:"image_proxy"`
	LogFile          *string      `json:"log_file"`
	RenameStartIndex *int         `json:"rename_start_index"`
	BaseURL          string       `json:"base_url"`
}

type ProxyConfig struct {
	URL string `json:"url"`
}

// EffectiveConfig 是合并并做最小规范化后的最终配置
// （实现层直接消费，不再做二次默认/优先级判断）。
type EffectiveConfig struct {
	Listen      string
	DownloadDir string

	ProxyURL   string
	ImageProxy bool

	// LogFile 为空表示禁用文件日志（只留 console）。
	LogFile string

	RenameStartIndex int

	// BaseURL 允许在 danbooru.donmai.us 不可达时切换镜像域名（可选）。
	BaseURL string
}

// Error 是配置阶段的结构化错误（带 error_code）。
type Error struct {
	Code string
	Path string
	Err  error
}

func (e *Error) Error() string {
	switch e.Code {
	case ErrCodeNotFound:
		return fmt.Sprintf("%s：未找到配置文件 %q", e.Code, e.Path)
	case ErrCodeInvalid:
		if e.Err != nil {
			return fmt.Sprintf("%s：配置文件 %q 无效：%v", e.Code, e.Path, e.Err)
		}
		return fmt.Sprintf("%s：配置文件 %q 无效", e.Code, e.Path)
	default:
		if e.Err != nil {
			return fmt.Sprintf("%s：%v", e.Code, e.Err)
		}
		return e.Code
	}
}

func (e *Error) Unwrap() error { return e.Err }

// Code 从 error 中提取 error_code；若不是 *Error 则返回空串。
func Code(err error) string {
	var e *Error
	if errors.As(err, &e) {
		return e.Code
	}
	return ""
}

// LoadEffective 发现并读取配置文件，然后与 CLI 参数合并为最终配置。
//
// 发现规则（固定）：
// 1) CLI 指定 --config：必须能读到该文件
// 2) 未指定：尝试 <cwd>/fddl.json，不存在则全部走默认值
//
// 覆盖优先级（固定）：CLI 显式值 > 配置文件 > 内置默认。
func LoadEffective(cwd string, cli CLIArgs) (EffectiveConfig, error) {
	var (
		cfgPath string
		fc      FileConfig
	)

	if p := strings.TrimSpace(cli.ConfigPath); p != "" {
		cfgPath = p
		if !filepath.IsAbs(cfgPath) {
			cfgPath = filepath.Join(cwd, cfgPath)
		}
		exists, err := readFileConfig(cfgPath, &fc)
		if err != nil {
			return EffectiveConfig{}, &Error{Code: ErrCodeInvalid, Path: cfgPath, Err: err}
		}
		if !exists {
			return EffectiveConfig{}, &Error{Code: ErrCodeNotFound, Path: cfgPath, Err: os.ErrNotExist}
		}
	} else {
		cfgPath = filepath.Join(cwd, "fddl.json")
		if _, err := readFileConfig(cfgPath, &fc); err != nil {
			return EffectiveConfig{}, &Error{Code: ErrCodeInvalid, Path: cfgPath, Err: err}
		}
		// 不存在也不报错：全部走默认值。
	}

	return merge(cli, fc, cfgPath)
}

func readFileConfig(path string, fc *FileConfig) (bool, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return false, nil
		}
		return false, err
	}
	if err := json.Unmarshal(b, fc); err != nil {
		return true, err
	}
	return true, nil
}

func merge(cli CLIArgs, fc FileConfig, cfgPath string) (EffectiveConfig, error) {
	// listen：CLI > config > 默认
	listen := DefaultListen
	if cli.ListenSet {
		listen = strings.TrimSpace(cli.Listen)
	} else if strings.TrimSpace(fc.Listen) != "" {
		listen = strings.TrimSpace(fc.Listen)
	}
	if listen == "" {
		return EffectiveConfig{}, &Error{Code: ErrCodeInvalid, Path: cfgPath, Err: fmt.Errorf("listen 不能为空")}
	}

	// download_dir：CLI > config（允许为空：由 web 请求逐次提供）
	downloadDir := ""
	if cli.DownloadDirSet {
		downloadDir = strings.TrimSpace(cli.DownloadDir)
	} else {
		downloadDir = strings.TrimSpace(fc.DownloadDir)
	}

	proxyURL := ""
	if fc.Proxy != nil {
		proxyURL = strings.TrimSpace(fc.Proxy.URL)
	}
	if proxyURL != "" {
		if _, err := url.Parse(proxyURL); err != nil {
			return EffectiveConfig{}, &Error{Code: ErrCodeInvalid, Path: cfgPath, Err: fmt.Errorf("proxy.url 无效：%w", err)}
		}
	}
	if fc.ImageProxy && proxyURL == "" {
		return EffectiveConfig{}, &Error{Code: ErrCodeInvalid, Path: cfgPath, Err: fmt.Errorf("image_proxy=true 但 proxy.url 为空")}
	}

	logFile := DefaultLogFile
	if fc.LogFile != nil {
		// 显式写 "" 表示禁用文件日志。
		logFile = strings.TrimSpace(*fc.LogFile)
	}

	startIndex := DefaultStartIndex
	if fc.RenameStartIndex != nil {
		if *fc.RenameStartIndex < 0 {
			return EffectiveConfig{}, &Error{Code: ErrCodeInvalid, Path: cfgPath, Err: fmt.Errorf("rename_start_index 不能为负数：%d", *fc.RenameStartIndex)}
		}
		startIndex = *fc.RenameStartIndex
	}

	baseURL := strings.TrimSpace(fc.BaseURL)
	if baseURL != "" {
		u, err := url.Parse(baseURL)
		if err != nil || u.Scheme == "" || u.Host == "" {
			return EffectiveConfig{}, &Error{Code: ErrCodeInvalid, Path: cfgPath, Err: fmt.Errorf("base_url 无效：%q", baseURL)}
		}
		if u.Scheme != "http" && u.Scheme != "https" {
			return EffectiveConfig{}, &Error{Code: ErrCodeInvalid, Path: cfgPath, Err: fmt.Errorf("base_url 必须是 http/https：%q", baseURL)}
		}
	}

	return EffectiveConfig{
		Listen:           listen,
		DownloadDir:      downloadDir,
		ProxyURL:         proxyURL,
		ImageProxy:       fc.ImageProxy,
		LogFile:          logFile,
		RenameStartIndex: startIndex,
		BaseURL:          baseURL,
	}, nil
}
