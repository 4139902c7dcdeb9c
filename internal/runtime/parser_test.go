package runtime

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const sampleMessage = `Sure, here is the app.

<boltArtifact id="todo-app" title="Todo App" type="project">
  <boltAction type="file" filePath="/home/project/src/index.js">
const a = 1 < 2;
console.log(a);
  </boltAction>
  <boltAction type="shell">
    npm install && npm start
  </boltAction>
</boltArtifact>

Done, a < b.`

type summary struct {
	text       string
	boundaries []string
	closed     []ActionData
}

func summarize(events []Event) summary {
	var s summary
	var text strings.Builder
	for _, e := range events {
		switch e.Type {
		case EventText:
			text.WriteString(e.Text)
		case EventActionUpdate:
		case EventActionClose:
			s.closed = append(s.closed, *e.Action)
			s.boundaries = append(s.boundaries, string(e.Type)+":"+e.Action.ActionID)
		case EventActionOpen:
			s.boundaries = append(s.boundaries, string(e.Type)+":"+e.Action.ActionID)
		default:
			s.boundaries = append(s.boundaries, string(e.Type)+":"+e.Artifact.ID)
		}
	}
	s.text = text.String()
	return s
}

func TestParserWholeMessage(t *testing.T) {
	p := NewParser("/home/project")
	got := summarize(p.ParseAll("m1", sampleMessage))

	assert.Equal(t, []string{
		"artifact-open:todo-app",
		"action-open:0",
		"action-close:0",
		"action-open:1",
		"action-close:1",
		"artifact-close:todo-app",
	}, got.boundaries)
	assert.Equal(t, "Sure, here is the app.\n\n\n\nDone, a < b.", got.text)

	require.Len(t, got.closed, 2)
	assert.Equal(t, ActionFile, got.closed[0].Type)
	assert.Equal(t, "src/index.js", got.closed[0].FilePath)
	assert.Equal(t, "const a = 1 < 2;\nconsole.log(a);\n", got.closed[0].Content)
	assert.Equal(t, "todo-app", got.closed[0].ArtifactID)
	assert.Equal(t, "m1", got.closed[0].MessageID)
	assert.Equal(t, ActionShell, got.closed[1].Type)
	assert.Equal(t, "npm install && npm start", got.closed[1].Content)
}

func TestParserChunkBoundaries(t *testing.T) {
	want := summarize(NewParser("/home/project").ParseAll("m", sampleMessage))

	for _, size := range []int{1, 2, 3, 5, 7, 13, 64} {
		p := NewParser("/home/project")
		var events []Event
		for i := 0; i < len(sampleMessage); i += size {
			end := i + size
			if end > len(sampleMessage) {
				end = len(sampleMessage)
			}
			events = append(events, p.Parse("m", sampleMessage[i:end])...)
		}
		events = append(events, p.Finish("m")...)
		assert.Equal(t, want, summarize(events), "chunk size %d", size)
	}
}

func TestParserStreamsActionUpdates(t *testing.T) {
	p := NewParser("")
	events := p.Parse("m", `<boltArtifact id="a" title="A"><boltAction type="file" filePath="x.txt">hel`)
	require.NotEmpty(t, events)
	last := events[len(events)-1]
	assert.Equal(t, EventActionUpdate, last.Type)
	assert.Equal(t, "hel", last.Delta)
	assert.Equal(t, "hel\n", last.Action.Content)

	// 被切开的结束标签不能当作内容输出
	events = p.Parse("m", "lo</boltAc")
	require.Len(t, events, 1)
	assert.Equal(t, "lo", events[0].Delta)
	assert.Equal(t, "hello\n", events[0].Action.Content)

	events = p.Parse("m", "tion>")
	require.Len(t, events, 1)
	assert.Equal(t, EventActionClose, events[0].Type)
	assert.Equal(t, "hello\n", events[0].Action.Content)

	// 已关闭的边界不会重复出现
	assert.Empty(t, p.Parse("m", "\n"))
	events = p.Finish("m")
	require.Len(t, events, 1)
	assert.Equal(t, EventArtifactClose, events[0].Type)
}

func TestParserClosesUnterminatedBlocks(t *testing.T) {
	p := NewParser("")
	p.Parse("m", `<boltArtifact id="a" title="A"><boltAction type="shell">ls -la</boltAct`)
	events := p.Finish("m")

	require.Len(t, events, 2)
	assert.Equal(t, EventActionClose, events[0].Type)
	assert.Equal(t, "ls -la", events[0].Action.Content)
	assert.Equal(t, EventArtifactClose, events[1].Type)

	assert.Nil(t, p.Finish("m"))
}

func TestParserPartialOpenTagAtEnd(t *testing.T) {
	p := NewParser("")
	events := p.Parse("m", "hello <bolt")
	require.Len(t, events, 1)
	assert.Equal(t, "hello ", events[0].Text)

	events = p.Finish("m")
	require.Len(t, events, 1)
	assert.Equal(t, "<bolt", events[0].Text)
}

func TestParserMessagesAreIndependent(t *testing.T) {
	p := NewParser("")
	p.Parse("a", `<boltArtifact id="x" title="X"><boltAction type="shell">echo a`)
	events := p.Parse("b", `plain text`)
	require.Len(t, events, 1)
	assert.Equal(t, EventText, events[0].Type)

	p.Reset()
	assert.Nil(t, p.Finish("a"))
}

func TestPartialSuffix(t *testing.T) {
	assert.Equal(t, 0, partialSuffix("abc", "</boltAction>"))
	assert.Equal(t, 1, partialSuffix("abc<", "</boltAction>"))
	assert.Equal(t, 6, partialSuffix("x</bolt", "</boltAction>"))
	assert.Equal(t, 0, partialSuffix("", "</boltAction>"))
}
