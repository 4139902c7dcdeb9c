package sandbox

import (
	"context"
	"sync"

	"github.com/spf13/afero"
)

// ShellFunc 内存沙箱的命令执行器
type ShellFunc func(ctx context.Context, command string, fsys afero.Fs) (*ShellResult, error)

// Memory 内存文件系统加可替换的 shell，用于 dry-run 和测试
type Memory struct {
	workdir string
	fs      afero.Fs
	shell   ShellFunc

	mu       sync.Mutex
	commands []string
	writes   map[string]int
}

// NewMemory shell 为 nil 时所有命令都以退出码 0 成功
func NewMemory(workdir string, shell ShellFunc) *Memory {
	if workdir == "" {
		workdir = "/home/project"
	}
	return &Memory{
		workdir: workdir,
		fs:      afero.NewMemMapFs(),
		shell:   shell,
		writes:  make(map[string]int),
	}
}

func (s *Memory) Workdir() string { return s.workdir }

func (s *Memory) Fs() afero.Fs { return s.fs }

func (s *Memory) WriteFile(name string, content []byte) error {
	s.mu.Lock()
	s.writes[CleanPath("", name)]++
	s.mu.Unlock()
	return writeFile(s.fs, absPath(name), content)
}

func (s *Memory) ReadFile(name string) ([]byte, error) {
	return afero.ReadFile(s.fs, absPath(name))
}

func (s *Memory) Exec(ctx context.Context, command string) (*ShellResult, error) {
	s.mu.Lock()
	s.commands = append(s.commands, command)
	s.mu.Unlock()
	if s.shell == nil {
		return &ShellResult{}, nil
	}
	return s.shell(ctx, command, s.fs)
}

// Commands 已执行的命令，按执行顺序
func (s *Memory) Commands() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.commands...)
}

// Writes 某个文件被写入的次数
func (s *Memory) Writes(name string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.writes[CleanPath("", name)]
}
