package config

import (
	"os"
	"path/filepath"
	"testing"
)

func TestLoadEffective_NoConfigFile_Defaults(t *testing.T) {
	cwd := t.TempDir()

	eff, err := LoadEffective(cwd, CLIArgs{})
	if err != nil {
		t.Fatalf("不期望错误：%v", err)
	}
	if eff.Listen != DefaultListen {
		t.Fatalf("期望 listen=%q，实际=%q", DefaultListen, eff.Listen)
	}
	if eff.DownloadDir != "" {
		t.Fatalf("期望 download_dir 为空，实际=%q", eff.DownloadDir)
	}
	if eff.LogFile != DefaultLogFile {
		t.Fatalf("期望 log_file=%q，实际=%q", DefaultLogFile, eff.LogFile)
	}
	if eff.RenameStartIndex != DefaultStartIndex {
		t.Fatalf("期望起始序号=%d，实际=%d", DefaultStartIndex, eff.RenameStartIndex)
	}
}

func TestLoadEffective_ExplicitConfigNotFound(t *testing.T) {
	cwd := t.TempDir()

	_, err := LoadEffective(cwd, CLIArgs{ConfigPath: "missing.json"})
	if Code(err) != ErrCodeNotFound {
		t.Fatalf("期望 %q，实际 err=%v (code=%q)", ErrCodeNotFound, err, Code(err))
	}
}

func TestLoadEffective_InvalidJSON(t *testing.T) {
	cwd := t.TempDir()
	writeFile(t, filepath.Join(cwd, "fddl.json"), []byte(`{bad json`))

	_, err := LoadEffective(cwd, CLIArgs{})
	if Code(err) != ErrCodeInvalid {
		t.Fatalf("期望 %q，实际 err=%v (code=%q)", ErrCodeInvalid, err, Code(err))
	}
}

func TestLoadEffective_CLIOverridesFile(t *testing.T) {
	cwd := t.TempDir()
	writeFile(t, filepath.Join(cwd, "fddl.json"),
		[]byte(`{"listen":"0.0.0.0:9000","download_dir":"/data/a"}`))

	eff, err := LoadEffective(cwd, CLIArgs{
		Listen:         "127.0.0.1:8000",
		ListenSet:      true,
		DownloadDir:    "/data/b",
		DownloadDirSet: true,
	})
	if err != nil {
		t.Fatalf("不期望错误：%v", err)
	}
	if eff.Listen != "127.0.0.1:8000" {
		t.Fatalf("期望 CLI 覆盖 listen，实际=%q", eff.Listen)
	}
	if eff.DownloadDir != "/data/b" {
		t.Fatalf("期望 CLI 覆盖 download_dir，实际=%q", eff.DownloadDir)
	}
}

func TestLoadEffective_FileValuesUsedWhenCLIUnset(t *testing.T) {
	cwd := t.TempDir()
	writeFile(t, filepath.Join(cwd, "fddl.json"),
		[]byte(`{"listen":"0.0.0.0:9000","download_dir":"/data/a","rename_start_index":0}`))

	eff, err := LoadEffective(cwd, CLIArgs{})
	if err != nil {
		t.Fatalf("不期望错误：%v", err)
	}
	if eff.Listen != "0.0.0.0:9000" {
		t.Fatalf("期望 listen=0.0.0.0:9000，实际=%q", eff.Listen)
	}
	if eff.DownloadDir != "/data/a" {
		t.Fatalf("期望 download_dir=/data/a，实际=%q", eff.DownloadDir)
	}
	// 0 是合法的起始序号，不应回退到默认值。
	if eff.RenameStartIndex != 0 {
		t.Fatalf("期望起始序号=0，实际=%d", eff.RenameStartIndex)
	}
}

func TestLoadEffective_ImageProxyRequiresProxy(t *testing.T) {
	cwd := t.TempDir()
	writeFile(t, filepath.Join(cwd, "fddl.json"), []byte(`{"image_proxy":true}`))

	_, err := LoadEffective(cwd, CLIArgs{})
	if Code(err) != ErrCodeInvalid {
		t.Fatalf("期望 %q，实际 err=%v (code=%q)", ErrCodeInvalid, err, Code(err))
	}
}

func TestLoadEffective_NegativeStartIndexRejected(t *testing.T) {
	cwd := t.TempDir()
	writeFile(t, filepath.Join(cwd, "fddl.json"), []byte(`{"rename_start_index":-1}`))

	_, err := LoadEffective(cwd, CLIArgs{})
	if Code(err) != ErrCodeInvalid {
		t.Fatalf("期望 %q，实际 err=%v (code=%q)", ErrCodeInvalid, err, Code(err))
	}
}

func TestLoadEffective_BaseURLValidation(t *testing.T) {
	cwd := t.TempDir()
	writeFile(t, filepath.Join(cwd, "fddl.json"), []byte(`{"base_url":"ftp://mirror"}`))

	_, err := LoadEffective(cwd, CLIArgs{})
	if Code(err) != ErrCodeInvalid {
		t.Fatalf("期望 %q，实际 err=%v (code=%q)", ErrCodeInvalid, err, Code(err))
	}

	writeFile(t, filepath.Join(cwd, "fddl.json"), []byte(`{"base_url":"https://mirror.example"}`))
	eff, err := LoadEffective(cwd, CLIArgs{})
	if err != nil {
		t.Fatalf("不期望错误：%v", err)
	}
	if eff.BaseURL != "https://mirror.example" {
		t.Fatalf("期望 base_url 保留，实际=%q", eff.BaseURL)
	}
}

func TestLoadEffective_LogFileDisable(t *testing.T) {
	cwd := t.TempDir()
	writeFile(t, filepath.Join(cwd, "fddl.json"), []byte(`{"log_file":""}`))

	eff, err := LoadEffective(cwd, CLIArgs{})
	if err != nil {
		t.Fatalf("不期望错误：%v", err)
	}
	if eff.LogFile != "" {
		t.Fatalf("期望禁用文件日志，实际=%q", eff.LogFile)
	}
}

func writeFile(t *testing.T, path string, data []byte) {
	t.Helper()
	if err := os.WriteFile(path, data, 0o644); err != nil {
		t.Fatalf("写入文件失败：%v", err)
	}
}
