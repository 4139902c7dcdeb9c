package workbench

import (
	"sync"
)

// ScrollPosition 编辑器滚动位置
type ScrollPosition struct {
	Top  int `json:"top"`
	Left int `json:"left"`
}

// EditorDocument 编辑器中打开的文件，Value 可能包含未保存的修改
type EditorDocument struct {
	FilePath string          `json:"filePath"`
	Value    string          `json:"value"`
	Scroll   *ScrollPosition `json:"scroll,omitempty"`
}

// Editor 按路径保存文档和当前选中的文件
type Editor struct {
	mu        sync.RWMutex
	documents map[string]*EditorDocument
	selected  string
}

// NewEditor creates an empty editor
func NewEditor() *Editor {
	return &Editor{documents: make(map[string]*EditorDocument)}
}

// SetDocuments 用文件内容重建文档，保留已有的滚动位置
func (e *Editor) SetDocuments(files []File) {
	e.mu.Lock()
	defer e.mu.Unlock()
	docs := make(map[string]*EditorDocument, len(files))
	for _, f := range files {
		if f.IsBinary {
			continue
		}
		doc := &EditorDocument{FilePath: f.Path, Value: f.Content}
		if prev, ok := e.documents[f.Path]; ok {
			doc.Scroll = prev.Scroll
		}
		docs[f.Path] = doc
	}
	e.documents = docs
}

// UpdateFile 更新文档内容，文档不存在时创建
func (e *Editor) UpdateFile(path, value string) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if doc, ok := e.documents[path]; ok {
		doc.Value = value
		return
	}
	e.documents[path] = &EditorDocument{FilePath: path, Value: value}
}

// UpdateScrollPosition 文档不存在时忽略
func (e *Editor) UpdateScrollPosition(path string, pos ScrollPosition) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if doc, ok := e.documents[path]; ok {
		doc.Scroll = &pos
	}
}

// Document 单个文档的副本
func (e *Editor) Document(path string) (EditorDocument, bool) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	doc, ok := e.documents[path]
	if !ok {
		return EditorDocument{}, false
	}
	return *doc, true
}

// SetSelectedFile 空字符串表示不选中
func (e *Editor) SetSelectedFile(path string) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.selected = path
}

// SelectedFile 当前选中的路径
func (e *Editor) SelectedFile() string {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.selected
}

// CurrentDocument 选中文件对应的文档
func (e *Editor) CurrentDocument() (EditorDocument, bool) {
	path := e.SelectedFile()
	if path == "" {
		return EditorDocument{}, false
	}
	return e.Document(path)
}
