package workbench

import (
	"sort"
	"sync"

	"github.com/AGIOS-UPDATED/midday-test/internal/sandbox"
)

// File 权威文件内容
type File struct {
	Path     string `json:"path"`
	Content  string `json:"content"`
	IsBinary bool   `json:"isBinary"`
}

// FileModification 用户保存过的文件与其保存前的内容
type FileModification struct {
	Path     string `json:"path"`
	Original string `json:"original"`
	Current  string `json:"current"`
}

// FileStore 沙箱文件的内存视图，保存时写回沙箱
type FileStore struct {
	sb sandbox.Sandbox

	mu       sync.RWMutex
	files    map[string]*File
	modified map[string]string // path -> 第一次修改前的内容
}

// NewFileStore creates an empty file store over sb
func NewFileStore(sb sandbox.Sandbox) *FileStore {
	return &FileStore{
		sb:       sb,
		files:    make(map[string]*File),
		modified: make(map[string]string),
	}
}

// Load 从沙箱读入全部文件
func (s *FileStore) Load() error {
	files, err := sandbox.Walk(s.sb)
	if err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, f := range files {
		s.files[f.Path] = &File{Path: f.Path, Content: string(f.Content), IsBinary: f.IsBinary}
	}
	return nil
}

// Set 记录沙箱里已经发生的写入
func (s *FileStore) Set(path, content string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.files[path] = &File{Path: path, Content: content, IsBinary: sandbox.IsBinary([]byte(content))}
}

// Get 单个文件
func (s *FileStore) Get(path string) (File, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	f, ok := s.files[path]
	if !ok {
		return File{}, false
	}
	return *f, true
}

// List 按路径排序
func (s *FileStore) List() []File {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]File, 0, len(s.files))
	for _, f := range s.files {
		out = append(out, *f)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Path < out[j].Path })
	return out
}

// Count 文件数
func (s *FileStore) Count() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.files)
}

// Save 写回沙箱并记录修改前的内容
func (s *FileStore) Save(path, content string) error {
	if err := s.sb.WriteFile(path, []byte(content)); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	prev, ok := s.files[path]
	if _, tracked := s.modified[path]; !tracked {
		original := ""
		if ok {
			original = prev.Content
		}
		if original != content {
			s.modified[path] = original
		}
	}
	s.files[path] = &File{Path: path, Content: content, IsBinary: sandbox.IsBinary([]byte(content))}
	return nil
}

// Modifications 自上次重置以来被用户修改过的文件
func (s *FileStore) Modifications() []FileModification {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]FileModification, 0, len(s.modified))
	for path, original := range s.modified {
		current := ""
		if f, ok := s.files[path]; ok {
			current = f.Content
		}
		out = append(out, FileModification{Path: path, Original: original, Current: current})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Path < out[j].Path })
	return out
}

// ResetModifications 清空修改记录
func (s *FileStore) ResetModifications() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.modified = make(map[string]string)
}
