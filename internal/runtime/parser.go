package runtime

import (
	"regexp"
	"strconv"
	"strings"
	"sync"

	"github.com/AGIOS-UPDATED/midday-test/internal/sandbox"
)

const (
	artifactTagOpen  = "<boltArtifact"
	artifactTagClose = "</boltArtifact>"
	actionTagOpen    = "<boltAction"
	actionTagClose   = "</boltAction>"
)

var attrPattern = regexp.MustCompile(`(\w+)="([^"]*)"`)

type messageState struct {
	pending        string
	insideArtifact bool
	insideAction   bool
	artifact       ArtifactData
	action         ActionData
	raw            strings.Builder
	actionCounter  int
}

// Parser 增量解析助手消息中的 boltArtifact / boltAction 标记。
// 每次 Parse 只处理新到的 chunk，返回这一段产生的事件；
// 标签可以在任意位置被切开，未确定的部分会留到下一次。
type Parser struct {
	workdir string

	mu       sync.Mutex
	messages map[string]*messageState
}

// NewParser workdir 用于把模型给出的绝对路径转成相对路径
func NewParser(workdir string) *Parser {
	return &Parser{
		workdir:  workdir,
		messages: make(map[string]*messageState),
	}
}

// Parse 追加 chunk 并返回新产生的事件
func (p *Parser) Parse(messageID, chunk string) []Event {
	p.mu.Lock()
	defer p.mu.Unlock()

	st, ok := p.messages[messageID]
	if !ok {
		st = &messageState{}
		p.messages[messageID] = st
	}
	st.pending += chunk
	return p.drain(messageID, st)
}

// Finish 消息流结束。未闭合的 action / artifact 按已有内容关闭，残留文本原样输出。
func (p *Parser) Finish(messageID string) []Event {
	p.mu.Lock()
	defer p.mu.Unlock()

	st, ok := p.messages[messageID]
	if !ok {
		return nil
	}
	delete(p.messages, messageID)

	var events []Event
	if st.insideAction {
		rest := st.pending[:len(st.pending)-partialSuffix(st.pending, actionTagClose)]
		events = p.appendActionDelta(events, messageID, st, rest)
		events = append(events, p.closeAction(messageID, st))
		st.pending = ""
	}
	if st.insideArtifact {
		events = append(events, Event{Type: EventArtifactClose, MessageID: messageID, Artifact: st.artifactRef()})
		st.insideArtifact = false
		st.pending = ""
	}
	if st.pending != "" {
		events = appendText(events, messageID, st.pending)
	}
	return events
}

// ParseAll 一次性解析完整内容，用于重放历史消息
func (p *Parser) ParseAll(messageID, content string) []Event {
	events := p.Parse(messageID, content)
	return append(events, p.Finish(messageID)...)
}

// Reset 丢弃所有进行中的消息状态
func (p *Parser) Reset() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.messages = make(map[string]*messageState)
}

func (p *Parser) drain(id string, st *messageState) []Event {
	var events []Event

	for st.pending != "" {
		if st.insideAction {
			if idx := strings.Index(st.pending, actionTagClose); idx >= 0 {
				events = p.appendActionDelta(events, id, st, st.pending[:idx])
				st.pending = st.pending[idx+len(actionTagClose):]
				events = append(events, p.closeAction(id, st))
				continue
			}
			// 结尾可能是被切开的 </boltAction>
			cut := len(st.pending) - partialSuffix(st.pending, actionTagClose)
			events = p.appendActionDelta(events, id, st, st.pending[:cut])
			st.pending = st.pending[cut:]
			return events
		}

		i := strings.IndexByte(st.pending, '<')

		if st.insideArtifact {
			// artifact 内、action 之间的内容不输出
			if i < 0 {
				st.pending = ""
				return events
			}
			rest := st.pending[i:]
			switch {
			case strings.HasPrefix(rest, artifactTagClose):
				st.pending = rest[len(artifactTagClose):]
				st.insideArtifact = false
				events = append(events, Event{Type: EventArtifactClose, MessageID: id, Artifact: st.artifactRef()})
			case strings.HasPrefix(rest, actionTagOpen):
				end := strings.IndexByte(rest, '>')
				if end < 0 {
					st.pending = rest
					return events
				}
				attrs := parseAttrs(rest[len(actionTagOpen):end])
				st.pending = rest[end+1:]
				events = append(events, p.openAction(id, st, attrs))
			case isPartialTag(rest, artifactTagClose), isPartialTag(rest, actionTagOpen):
				st.pending = rest
				return events
			default:
				st.pending = rest[1:]
			}
			continue
		}

		if i < 0 {
			events = appendText(events, id, st.pending)
			st.pending = ""
			return events
		}
		if i > 0 {
			events = appendText(events, id, st.pending[:i])
		}
		rest := st.pending[i:]
		switch {
		case strings.HasPrefix(rest, artifactTagOpen):
			end := strings.IndexByte(rest, '>')
			if end < 0 {
				st.pending = rest
				return events
			}
			attrs := parseAttrs(rest[len(artifactTagOpen):end])
			st.artifact = ArtifactData{
				ID:        attrs["id"],
				MessageID: id,
				Title:     attrs["title"],
				Type:      attrs["type"],
			}
			st.insideArtifact = true
			st.pending = rest[end+1:]
			events = append(events, Event{Type: EventArtifactOpen, MessageID: id, Artifact: st.artifactRef()})
		case isPartialTag(rest, artifactTagOpen):
			st.pending = rest
			return events
		default:
			events = appendText(events, id, "<")
			st.pending = rest[1:]
		}
	}
	return events
}

func (p *Parser) openAction(id string, st *messageState, attrs map[string]string) Event {
	st.action = ActionData{
		MessageID:  id,
		ArtifactID: st.artifact.ID,
		ActionID:   strconv.Itoa(st.actionCounter),
		Type:       ActionType(attrs["type"]),
	}
	if st.action.Type == ActionFile {
		st.action.FilePath = sandbox.CleanPath(p.workdir, attrs["filePath"])
	}
	st.actionCounter++
	st.raw.Reset()
	st.insideAction = true

	a := st.action
	return Event{Type: EventActionOpen, MessageID: id, Artifact: st.artifactRef(), Action: &a}
}

func (p *Parser) appendActionDelta(events []Event, id string, st *messageState, delta string) []Event {
	if delta == "" {
		return events
	}
	st.raw.WriteString(delta)
	a := st.action
	a.Content = normalizeContent(a.Type, st.raw.String())
	return append(events, Event{Type: EventActionUpdate, MessageID: id, Delta: delta, Artifact: st.artifactRef(), Action: &a})
}

func (p *Parser) closeAction(id string, st *messageState) Event {
	st.insideAction = false
	a := st.action
	a.Content = normalizeContent(a.Type, st.raw.String())
	return Event{Type: EventActionClose, MessageID: id, Artifact: st.artifactRef(), Action: &a}
}

func (st *messageState) artifactRef() *ArtifactData {
	a := st.artifact
	return &a
}

// normalizeContent 文件内容去掉首尾空白后补一个换行；命令只去掉首尾空白
func normalizeContent(t ActionType, raw string) string {
	content := strings.TrimSpace(raw)
	if t == ActionFile {
		content += "\n"
	}
	return content
}

func parseAttrs(s string) map[string]string {
	attrs := make(map[string]string)
	for _, m := range attrPattern.FindAllStringSubmatch(s, -1) {
		attrs[m[1]] = m[2]
	}
	return attrs
}

func appendText(events []Event, id, text string) []Event {
	if n := len(events); n > 0 && events[n-1].Type == EventText {
		events[n-1].Text += text
		return events
	}
	return append(events, Event{Type: EventText, MessageID: id, Text: text})
}

// isPartialTag s 是 tag 的严格前缀，需要等更多输入
func isPartialTag(s, tag string) bool {
	return len(s) < len(tag) && strings.HasPrefix(tag, s)
}

// partialSuffix s 的结尾与 tag 开头重合的最长长度
func partialSuffix(s, tag string) int {
	n := len(tag) - 1
	if len(s) < n {
		n = len(s)
	}
	for k := n; k > 0; k-- {
		if strings.HasSuffix(s, tag[:k]) {
			return k
		}
	}
	return 0
}
