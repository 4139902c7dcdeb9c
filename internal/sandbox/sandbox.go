package sandbox

import (
	"context"
	"fmt"
	"io/fs"
	"os"
	"path"
	"sort"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/spf13/afero"

	"github.com/AGIOS-UPDATED/midday-test/internal/pkg/logger"
)

const (
	ModeLocal  = "local"
	ModeMemory = "memory"
)

// ShellResult 一条命令的执行结果
type ShellResult struct {
	ExitCode int    `json:"exitCode"`
	Output   string `json:"output"`
}

// Sandbox 会话独占的文件系统和 shell。所有路径都相对于项目根目录。
type Sandbox interface {
	Workdir() string
	Fs() afero.Fs
	WriteFile(name string, content []byte) error
	ReadFile(name string) ([]byte, error)
	Exec(ctx context.Context, command string) (*ShellResult, error)
}

// File 沙箱中的一个文件
type File struct {
	Path     string
	Content  []byte
	IsBinary bool
}

// CleanPath 转成相对于根目录的干净路径，不会逃出根目录
func CleanPath(workdir, name string) string {
	name = strings.ReplaceAll(name, "\\", "/")
	if workdir != "" {
		root := strings.TrimRight(workdir, "/") + "/"
		name = strings.TrimPrefix(name, root)
	}
	return strings.TrimPrefix(path.Clean("/"+name), "/")
}

// absPath afero 内部统一使用以 / 开头的路径
func absPath(name string) string {
	return "/" + CleanPath("", name)
}

// IsBinary 含 NUL 或不是合法 UTF-8 即视为二进制
func IsBinary(content []byte) bool {
	if !utf8.Valid(content) {
		return true
	}
	for _, b := range content {
		if b == 0 {
			return true
		}
	}
	return false
}

// writeFile 建好父目录再写
func writeFile(fsys afero.Fs, name string, content []byte) error {
	if dir := path.Dir(name); dir != "." && dir != "/" {
		if err := fsys.MkdirAll(dir, 0o755); err != nil {
			return err
		}
	}
	return afero.WriteFile(fsys, name, content, 0o644)
}

// Walk 列出沙箱内全部文件，按路径排序；跳过 node_modules 和 .git
func Walk(sb Sandbox) ([]File, error) {
	var files []File
	err := afero.Walk(sb.Fs(), "/", func(p string, info os.FileInfo, err error) error {
		if err != nil {
			return err
		}
		if info.IsDir() {
			if name := info.Name(); name == "node_modules" || name == ".git" {
				return fs.SkipDir
			}
			return nil
		}
		content, err := afero.ReadFile(sb.Fs(), p)
		if err != nil {
			return err
		}
		files = append(files, File{
			Path:     strings.TrimPrefix(p, "/"),
			Content:  content,
			IsBinary: IsBinary(content),
		})
		return nil
	})
	if err != nil {
		return nil, err
	}
	sort.Slice(files, func(i, j int) bool { return files[i].Path < files[j].Path })
	return files, nil
}

// New 按模式创建沙箱
func New(mode, workdir string, timeout time.Duration, log *logger.Logger) (Sandbox, error) {
	switch mode {
	case ModeMemory:
		return NewMemory(workdir, nil), nil
	case ModeLocal, "":
		return NewLocal(workdir, timeout, log)
	default:
		return nil, fmt.Errorf("unknown sandbox mode %q", mode)
	}
}
