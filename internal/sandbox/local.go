package sandbox

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"time"

	"github.com/spf13/afero"
	"go.uber.org/zap"

	"github.com/AGIOS-UPDATED/midday-test/internal/pkg/logger"
)

const defaultShellTimeout = 2 * time.Minute

// Local 以宿主机目录为根的沙箱，命令通过 sh -c 在根目录下执行
type Local struct {
	workdir string
	fs      afero.Fs
	timeout time.Duration
	logger  *logger.Logger
}

// NewLocal 目录不存在时会创建
func NewLocal(workdir string, timeout time.Duration, log *logger.Logger) (*Local, error) {
	if workdir == "" {
		return nil, errors.New("sandbox workdir is required")
	}
	if err := os.MkdirAll(workdir, 0o755); err != nil {
		return nil, fmt.Errorf("create sandbox workdir: %w", err)
	}
	if timeout <= 0 {
		timeout = defaultShellTimeout
	}
	return &Local{
		workdir: workdir,
		fs:      afero.NewBasePathFs(afero.NewOsFs(), workdir),
		timeout: timeout,
		logger:  log.Named("sandbox"),
	}, nil
}

func (s *Local) Workdir() string { return s.workdir }

func (s *Local) Fs() afero.Fs { return s.fs }

func (s *Local) WriteFile(name string, content []byte) error {
	return writeFile(s.fs, absPath(name), content)
}

func (s *Local) ReadFile(name string) ([]byte, error) {
	return afero.ReadFile(s.fs, absPath(name))
}

// Exec 非零退出码不算错误，只有命令无法启动或超时才返回 error
func (s *Local) Exec(ctx context.Context, command string) (*ShellResult, error) {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	cmd := exec.CommandContext(ctx, "sh", "-c", command)
	cmd.Dir = s.workdir
	var out bytes.Buffer
	cmd.Stdout = &out
	cmd.Stderr = &out

	start := time.Now()
	err := cmd.Run()
	result := &ShellResult{Output: out.String()}

	var exitErr *exec.ExitError
	switch {
	case err == nil:
	case errors.As(err, &exitErr) && ctx.Err() == nil:
		result.ExitCode = exitErr.ExitCode()
	default:
		if ctx.Err() != nil {
			return result, fmt.Errorf("command timed out after %s: %w", s.timeout, ctx.Err())
		}
		return result, fmt.Errorf("run command: %w", err)
	}

	s.logger.Debug("shell command finished",
		zap.String("command", command),
		zap.Int("exit_code", result.ExitCode),
		zap.Duration("duration", time.Since(start)),
	)
	return result, nil
}
