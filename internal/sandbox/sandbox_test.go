package sandbox

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/AGIOS-UPDATED/midday-test/internal/pkg/logger"
)

func TestCleanPath(t *testing.T) {
	tests := []struct {
		workdir, in, want string
	}{
		{"/home/project", "/home/project/src/main.go", "src/main.go"},
		{"/home/project", "src/../main.go", "main.go"},
		{"/home/project", "../../etc/passwd", "etc/passwd"},
		{"", "./a//b.txt", "a/b.txt"},
		{"", `dir\file.txt`, "dir/file.txt"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, CleanPath(tt.workdir, tt.in), tt.in)
	}
}

func TestIsBinary(t *testing.T) {
	assert.False(t, IsBinary([]byte("hello\n")))
	assert.True(t, IsBinary([]byte{0x89, 'P', 'N', 'G', 0x00}))
	assert.True(t, IsBinary([]byte{0xff, 0xfe}))
}

func TestMemorySandbox(t *testing.T) {
	sb := NewMemory("", func(ctx context.Context, command string, fsys afero.Fs) (*ShellResult, error) {
		if strings.HasPrefix(command, "fail") {
			return &ShellResult{ExitCode: 1, Output: "boom"}, nil
		}
		return &ShellResult{Output: "ok"}, nil
	})

	require.NoError(t, sb.WriteFile("src/app.js", []byte("console.log(1)\n")))
	require.NoError(t, sb.WriteFile("/README.md", []byte("# hi\n")))
	require.NoError(t, sb.WriteFile("src/app.js", []byte("console.log(2)\n")))

	got, err := sb.ReadFile("src/app.js")
	require.NoError(t, err)
	assert.Equal(t, "console.log(2)\n", string(got))
	assert.Equal(t, 2, sb.Writes("src/app.js"))

	files, err := Walk(sb)
	require.NoError(t, err)
	require.Len(t, files, 2)
	assert.Equal(t, "README.md", files[0].Path)
	assert.Equal(t, "src/app.js", files[1].Path)

	res, err := sb.Exec(context.Background(), "fail now")
	require.NoError(t, err)
	assert.Equal(t, 1, res.ExitCode)
	assert.Equal(t, []string{"fail now"}, sb.Commands())
}

func TestLocalSandbox(t *testing.T) {
	dir := t.TempDir()
	sb, err := NewLocal(dir, 0, logger.NewNop())
	require.NoError(t, err)

	require.NoError(t, sb.WriteFile("nested/dir/a.txt", []byte("A")))
	data, err := os.ReadFile(filepath.Join(dir, "nested", "dir", "a.txt"))
	require.NoError(t, err)
	assert.Equal(t, "A", string(data))

	res, err := sb.Exec(context.Background(), "cat nested/dir/a.txt")
	require.NoError(t, err)
	assert.Equal(t, 0, res.ExitCode)
	assert.Equal(t, "A", res.Output)

	res, err = sb.Exec(context.Background(), "exit 3")
	require.NoError(t, err)
	assert.Equal(t, 3, res.ExitCode)
}

func TestNewByMode(t *testing.T) {
	sb, err := New(ModeMemory, "/w", 0, logger.NewNop())
	require.NoError(t, err)
	assert.Equal(t, "/w", sb.Workdir())

	_, err = New("docker", "/w", 0, logger.NewNop())
	assert.Error(t, err)
}
