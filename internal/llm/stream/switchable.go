package stream

import (
	"context"
	"errors"
	"io"
	"sync"
	"sync/atomic"
)

// ErrStreamClosed 流已经关闭或出错后继续切换数据源
var ErrStreamClosed = errors.New("switchable stream is closed")

// State 流的生命周期
type State int32

const (
	StateIdle State = iota
	StateWriting
	StateClosed
	StateErrored
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateWriting:
		return "writing"
	case StateClosed:
		return "closed"
	case StateErrored:
		return "errored"
	default:
		return "unknown"
	}
}

type cmdKind int

const (
	cmdWrite cmdKind = iota
	cmdClose
	cmdError
)

type command struct {
	kind cmdKind
	data []byte
	err  error
}

// SwitchableStream 一个对外不变的输出流，内部可以依次接入多个上游。
// 所有状态变更都经过唯一的 owner goroutine，输出 channel 只会被关闭一次。
type SwitchableStream struct {
	cmds     chan command
	out      chan []byte
	finished chan struct{}

	state    atomic.Int32
	switches atomic.Int32

	mu  sync.Mutex
	err error
}

// NewSwitchableStream ctx 取消时流以 Errored 结束
func NewSwitchableStream(ctx context.Context) *SwitchableStream {
	s := &SwitchableStream{
		cmds:     make(chan command),
		out:      make(chan []byte),
		finished: make(chan struct{}),
	}
	go s.run(ctx)
	return s
}

func (s *SwitchableStream) run(ctx context.Context) {
	defer close(s.finished)
	defer close(s.out)

	for {
		select {
		case <-ctx.Done():
			s.terminate(StateErrored, ctx.Err())
			return
		case cmd := <-s.cmds:
			switch cmd.kind {
			case cmdWrite:
				select {
				case s.out <- cmd.data:
				case <-ctx.Done():
					s.terminate(StateErrored, ctx.Err())
					return
				}
			case cmdClose:
				s.terminate(StateClosed, nil)
				return
			case cmdError:
				s.terminate(StateErrored, cmd.err)
				return
			}
		}
	}
}

func (s *SwitchableStream) terminate(state State, err error) {
	s.mu.Lock()
	s.err = err
	s.mu.Unlock()
	s.state.Store(int32(state))
}

func (s *SwitchableStream) send(cmd command) bool {
	select {
	case <-s.finished:
		return false
	default:
	}
	select {
	case s.cmds <- cmd:
		return true
	case <-s.finished:
		return false
	}
}

// Write 写入一段文本；关闭之后返回 false 且不做任何事
func (s *SwitchableStream) Write(text string) bool {
	if text == "" {
		return !s.terminal()
	}
	return s.send(command{kind: cmdWrite, data: []byte(text)})
}

// Switch 接入下一个上游并把它读完。上游若实现 io.Closer 会在返回前被关闭。
func (s *SwitchableStream) Switch(ctx context.Context, r io.Reader) error {
	if c, ok := r.(io.Closer); ok {
		defer c.Close()
	}
	if s.terminal() {
		return ErrStreamClosed
	}

	s.switches.Add(1)
	s.state.CompareAndSwap(int32(StateIdle), int32(StateWriting))
	defer s.state.CompareAndSwap(int32(StateWriting), int32(StateIdle))

	buf := make([]byte, 4096)
	for {
		if err := ctx.Err(); err != nil {
			return err
		}
		n, err := r.Read(buf)
		if n > 0 {
			if !s.send(command{kind: cmdWrite, data: append([]byte(nil), buf[:n]...)}) {
				return ErrStreamClosed
			}
		}
		if errors.Is(err, io.EOF) {
			return nil
		}
		if err != nil {
			return err
		}
	}
}

// Close 正常结束，可重复调用
func (s *SwitchableStream) Close() {
	s.send(command{kind: cmdClose})
	<-s.finished
}

// Error 以错误结束，可重复调用；已经结束的流保持原状态
func (s *SwitchableStream) Error(err error) {
	s.send(command{kind: cmdError, err: err})
	<-s.finished
}

// Chunks 输出 channel，结束时被关闭
func (s *SwitchableStream) Chunks() <-chan []byte {
	return s.out
}

// Done 流结束后关闭
func (s *SwitchableStream) Done() <-chan struct{} {
	return s.finished
}

// Err Errored 状态下的错误
func (s *SwitchableStream) Err() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.err
}

// State 当前状态
func (s *SwitchableStream) State() State {
	return State(s.state.Load())
}

// Switches 已接入的上游个数
func (s *SwitchableStream) Switches() int {
	return int(s.switches.Load())
}

func (s *SwitchableStream) terminal() bool {
	st := s.State()
	return st == StateClosed || st == StateErrored
}

// Reader 把输出 channel 适配成 io.Reader；Errored 时返回对应错误
func (s *SwitchableStream) Reader() io.Reader {
	return &chunkReader{s: s}
}

type chunkReader struct {
	s       *SwitchableStream
	pending []byte
}

func (r *chunkReader) Read(p []byte) (int, error) {
	for len(r.pending) == 0 {
		chunk, ok := <-r.s.out
		if !ok {
			if err := r.s.Err(); err != nil {
				return 0, err
			}
			return 0, io.EOF
		}
		r.pending = chunk
	}
	n := copy(p, r.pending)
	r.pending = r.pending[n:]
	return n, nil
}
