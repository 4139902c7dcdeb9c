package runtime

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"

	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	apperrors "github.com/AGIOS-UPDATED/midday-test/internal/pkg/errors"
	"github.com/AGIOS-UPDATED/midday-test/internal/pkg/logger"
	"github.com/AGIOS-UPDATED/midday-test/internal/sandbox"
)

type recorder struct {
	mu     sync.Mutex
	alerts []ActionAlert
	states []ActionState
	writes []string
}

func (r *recorder) options() RunnerOptions {
	return RunnerOptions{
		Logger: logger.NewNop(),
		OnAlert: func(a ActionAlert) {
			r.mu.Lock()
			r.alerts = append(r.alerts, a)
			r.mu.Unlock()
		},
		OnUpdate: func(s ActionState) {
			r.mu.Lock()
			r.states = append(r.states, s)
			r.mu.Unlock()
		},
		OnFileWritten: func(path, content string, final bool) {
			r.mu.Lock()
			if final {
				r.writes = append(r.writes, path)
			}
			r.mu.Unlock()
		},
	}
}

func fileAction(id, path, content string) ActionData {
	return ActionData{MessageID: "m1", ArtifactID: "a", ActionID: id, Type: ActionFile, FilePath: path, Content: content}
}

func shellAction(id, command string) ActionData {
	return ActionData{MessageID: "m1", ArtifactID: "a", ActionID: id, Type: ActionShell, Content: command}
}

func TestAddActionDuplicate(t *testing.T) {
	r := NewActionRunner(sandbox.NewMemory("", nil), RunnerOptions{Logger: logger.NewNop()})

	require.NoError(t, r.AddAction(fileAction("0", "a.txt", "")))
	require.NoError(t, r.AddAction(fileAction("0", "a.txt", "")))

	err := r.AddAction(shellAction("0", "ls"))
	var dup *DuplicateActionError
	require.True(t, errors.As(err, &dup))
	assert.Equal(t, ActionFile, dup.Existing)
	assert.Equal(t, ActionShell, dup.Got)
	assert.Len(t, r.Actions(), 1)
}

func TestRunActionUnregistered(t *testing.T) {
	r := NewActionRunner(sandbox.NewMemory("", nil), RunnerOptions{Logger: logger.NewNop()})
	err := r.RunAction(context.Background(), fileAction("9", "x", "y"), false)
	assert.True(t, apperrors.Is(err, apperrors.ErrActionNotFound))
}

func TestFinalFileWriteHappensOnce(t *testing.T) {
	sb := sandbox.NewMemory("", nil)
	rec := &recorder{}
	r := NewActionRunner(sb, rec.options())
	ctx := context.Background()

	a := fileAction("0", "src/app.js", "v1\n")
	require.NoError(t, r.AddAction(a))

	require.NoError(t, r.RunAction(ctx, a, true))
	a.Content = "v2\n"
	require.NoError(t, r.RunAction(ctx, a, true))

	st, _ := r.Action("m1", "0")
	assert.Equal(t, StatusPending, st.Status)

	a.Content = "final\n"
	require.NoError(t, r.RunAction(ctx, a, false))
	require.NoError(t, r.RunAction(ctx, a, false))

	// 定稿之后的流式写入不会覆盖最终内容
	a.Content = "stale\n"
	require.NoError(t, r.RunAction(ctx, a, true))

	got, err := sb.ReadFile("src/app.js")
	require.NoError(t, err)
	assert.Equal(t, "final\n", string(got))
	assert.Equal(t, 3, sb.Writes("src/app.js"))
	assert.Equal(t, []string{"src/app.js"}, rec.writes)

	st, _ = r.Action("m1", "0")
	assert.Equal(t, StatusComplete, st.Status)
	assert.Equal(t, "final\n", st.Content)
}

func TestShellFailureRaisesAlert(t *testing.T) {
	sb := sandbox.NewMemory("", func(ctx context.Context, command string, fsys afero.Fs) (*sandbox.ShellResult, error) {
		return &sandbox.ShellResult{ExitCode: 2, Output: "npm ERR! missing script"}, nil
	})
	rec := &recorder{}
	r := NewActionRunner(sb, rec.options())

	a := shellAction("0", "npm run dev")
	require.NoError(t, r.AddAction(a))
	require.NoError(t, r.RunAction(context.Background(), a, true))
	assert.Empty(t, sb.Commands(), "shell actions never run while streaming")

	require.NoError(t, r.RunAction(context.Background(), a, false))

	require.Len(t, rec.alerts, 1)
	assert.Equal(t, "error", rec.alerts[0].Type)
	assert.Equal(t, "npm ERR! missing script", rec.alerts[0].Content)
	st, _ := r.Action("m1", "0")
	assert.Equal(t, StatusFailed, st.Status)
	assert.NotEmpty(t, st.Error)
}

func TestActionsRunInDeclarationOrder(t *testing.T) {
	var seen string
	sb := sandbox.NewMemory("", func(ctx context.Context, command string, fsys afero.Fs) (*sandbox.ShellResult, error) {
		data, err := afero.ReadFile(fsys, "/a")
		if err == nil {
			seen = string(data)
		}
		return &sandbox.ShellResult{}, nil
	})

	rec := &recorder{}
	r := NewActionRunner(sb, rec.options())
	a1 := fileAction("0", "/a", "content\n")
	a2 := shellAction("1", "cat a")
	require.NoError(t, r.AddAction(a1))
	require.NoError(t, r.AddAction(a2))
	require.NoError(t, r.RunAction(context.Background(), a1, false))
	require.NoError(t, r.RunAction(context.Background(), a2, false))

	assert.Equal(t, "content\n", seen)

	var statuses []string
	for _, s := range rec.states {
		statuses = append(statuses, s.ActionID+":"+string(s.Status))
	}
	assert.Equal(t, "0:pending,1:pending,0:running,0:complete,1:running,1:complete", strings.Join(statuses, ","))
}

func TestSettle(t *testing.T) {
	r := NewActionRunner(sandbox.NewMemory("", nil), RunnerOptions{Logger: logger.NewNop()})
	assert.False(t, r.Settled())
	r.Settle()
	assert.True(t, r.Settled())
}
