package service

import (
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	llmservice "github.com/AGIOS-UPDATED/midday-test/internal/llm/service"
	"github.com/AGIOS-UPDATED/midday-test/internal/pkg/logger"
	"github.com/AGIOS-UPDATED/midday-test/internal/pkg/response"
	"github.com/AGIOS-UPDATED/midday-test/internal/pkg/sse"
	"github.com/AGIOS-UPDATED/midday-test/internal/session"
	"github.com/AGIOS-UPDATED/midday-test/internal/workbench"
)

// SessionService handles session, workbench and export requests
type SessionService struct {
	manager   *session.Manager
	heartbeat time.Duration
	logger    *logger.Logger
}

// NewSessionService creates a new session service
func NewSessionService(manager *session.Manager, heartbeat time.Duration, log *logger.Logger) *SessionService {
	return &SessionService{
		manager:   manager,
		heartbeat: heartbeat,
		logger:    log.Named("session-service"),
	}
}

// RegisterRoutes registers session routes
func (s *SessionService) RegisterRoutes(r *gin.RouterGroup) {
	r.POST("/sessions", s.CreateSession)
	r.GET("/sessions", s.ListSessions)

	sess := r.Group("/sessions/:id")
	{
		sess.GET("", s.GetSession)
		sess.DELETE("", s.DeleteSession)
		sess.GET("/events", s.Events)
		sess.POST("/chat", s.Chat)
		sess.GET("/messages", s.Messages)

		// 对话记录
		sess.GET("/chat/export", s.ExportChat)
		sess.POST("/chat/duplicate", s.DuplicateChat)

		// 工作台
		sess.GET("/artifacts", s.Artifacts)
		sess.GET("/files", s.Files)
		sess.GET("/file", s.File)
		sess.GET("/alert", s.Alert)
		sess.DELETE("/alert", s.ClearAlert)
		sess.PUT("/documents/selected", s.SelectFile)
		sess.GET("/documents/current", s.CurrentDocument)
		sess.PUT("/documents/current", s.UpdateCurrentDocument)
		sess.PUT("/documents/current/scroll", s.ScrollCurrentDocument)
		sess.POST("/documents/current/save", s.SaveCurrentDocument)
		sess.POST("/documents/current/reset", s.ResetCurrentDocument)
		sess.POST("/documents/save", s.SaveFile)
		sess.POST("/documents/save-all", s.SaveAllFiles)
		sess.GET("/unsaved", s.UnsavedFiles)
		sess.GET("/modifications", s.FileModifications)
		sess.DELETE("/modifications", s.ResetFileModifications)

		// 导出
		sess.GET("/export/zip", s.DownloadZip)
		sess.POST("/export/upload", s.UploadZip)
		sess.POST("/export/sync", s.SyncFiles)
		sess.POST("/export/github", s.PushToGitHub)
	}
}

func (s *SessionService) session(c *gin.Context) (*session.Session, bool) {
	sess, err := s.manager.Get(c.Param("id"))
	if err != nil {
		response.HandleError(c, err)
		return nil, false
	}
	return sess, true
}

// CreateSession 新建会话，可选载入已保存的对话
func (s *SessionService) CreateSession(c *gin.Context) {
	var opts session.CreateOptions
	if c.Request.ContentLength != 0 {
		if err := c.ShouldBindJSON(&opts); err != nil {
			response.BadRequest(c, "Invalid request body")
			return
		}
	}
	sess, err := s.manager.Create(c.Request.Context(), opts)
	if err != nil {
		response.HandleError(c, err)
		return
	}
	response.Created(c, sess.Info())
}

// ListSessions 全部活跃会话
func (s *SessionService) ListSessions(c *gin.Context) {
	response.JSON(c, s.manager.List())
}

// GetSession 会话概要
func (s *SessionService) GetSession(c *gin.Context) {
	sess, ok := s.session(c)
	if !ok {
		return
	}
	response.JSON(c, sess.Info())
}

// DeleteSession 关闭会话
func (s *SessionService) DeleteSession(c *gin.Context) {
	if err := s.manager.Delete(c.Param("id")); err != nil {
		response.HandleError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

// Events 订阅会话事件
func (s *SessionService) Events(c *gin.Context) {
	sess, ok := s.session(c)
	if !ok {
		return
	}
	sse.Serve(c, s.manager.Hub(), session.Resource(sess.ID), 64, s.heartbeat)
}

// Chat 一轮对话，输出以 text/plain 分块返回
func (s *SessionService) Chat(c *gin.Context) {
	sess, ok := s.session(c)
	if !ok {
		return
	}
	var turn session.ChatTurn
	if err := c.ShouldBindJSON(&turn); err != nil {
		response.BadRequest(c, "Invalid request body")
		return
	}

	w := &lazyTextWriter{c: c}
	if _, err := sess.Chat(c.Request.Context(), llmservice.Credentials(c), turn, w); err != nil {
		if w.started {
			s.logger.Error("chat failed after streaming started", zap.Error(err))
			return
		}
		response.HandleError(c, err)
		return
	}
	if !w.started {
		c.Status(http.StatusOK)
	}
}

// lazyTextWriter 第一次写入时才发送响应头，之前的错误仍可以 JSON 返回
type lazyTextWriter struct {
	c       *gin.Context
	started bool
}

func (w *lazyTextWriter) Write(p []byte) (int, error) {
	if !w.started {
		w.started = true
		w.c.Header("Content-Type", "text/plain; charset=utf-8")
		w.c.Header("Cache-Control", "no-cache")
		w.c.Status(http.StatusOK)
	}
	return w.c.Writer.Write(p)
}

func (w *lazyTextWriter) Flush() {
	w.c.Writer.Flush()
}

// Messages 当前会话消息
func (s *SessionService) Messages(c *gin.Context) {
	sess, ok := s.session(c)
	if !ok {
		return
	}
	response.JSON(c, sess.Messages())
}

// ExportChat 导出当前对话
func (s *SessionService) ExportChat(c *gin.Context) {
	sess, ok := s.session(c)
	if !ok {
		return
	}
	data, err := sess.History().ExportChat(c.Request.Context(), "")
	if err != nil {
		response.HandleError(c, err)
		return
	}
	filename := fmt.Sprintf("chat-%s.json", time.Now().UTC().Format("2006-01-02T15-04-05Z"))
	c.Header("Content-Disposition", fmt.Sprintf("attachment; filename=%q", filename))
	c.IndentedJSON(http.StatusOK, data)
}

// DuplicateChat 复制当前对话
func (s *SessionService) DuplicateChat(c *gin.Context) {
	sess, ok := s.session(c)
	if !ok {
		return
	}
	urlID, err := sess.History().DuplicateCurrentChat(c.Request.Context(), c.Query("listItemId"))
	if err != nil {
		response.HandleError(c, err)
		return
	}
	if urlID == "" {
		response.NotFound(c, "Chat not found")
		return
	}
	response.Created(c, gin.H{"urlId": urlID})
}

// Artifacts 按创建顺序
func (s *SessionService) Artifacts(c *gin.Context) {
	sess, ok := s.session(c)
	if !ok {
		return
	}
	response.JSON(c, sess.Workbench().Artifacts())
}

// FileEntry 文件列表项，不含内容
type FileEntry struct {
	Path     string `json:"path"`
	Size     int    `json:"size"`
	IsBinary bool   `json:"isBinary"`
}

// Files 文件列表
func (s *SessionService) Files(c *gin.Context) {
	sess, ok := s.session(c)
	if !ok {
		return
	}
	files := sess.Workbench().Files().List()
	out := make([]FileEntry, 0, len(files))
	for _, f := range files {
		out = append(out, FileEntry{Path: f.Path, Size: len(f.Content), IsBinary: f.IsBinary})
	}
	response.JSON(c, out)
}

// File 单个文件的权威内容
func (s *SessionService) File(c *gin.Context) {
	sess, ok := s.session(c)
	if !ok {
		return
	}
	f, found := sess.Workbench().Files().Get(strings.TrimPrefix(c.Query("path"), "/"))
	if !found {
		response.NotFound(c, "File not found")
		return
	}
	response.JSON(c, f)
}

// Alert 当前提示，没有时返回 204
func (s *SessionService) Alert(c *gin.Context) {
	sess, ok := s.session(c)
	if !ok {
		return
	}
	alert, found := sess.Workbench().Alert()
	if !found {
		c.Status(http.StatusNoContent)
		return
	}
	response.JSON(c, alert)
}

// ClearAlert 清除提示
func (s *SessionService) ClearAlert(c *gin.Context) {
	sess, ok := s.session(c)
	if !ok {
		return
	}
	sess.Workbench().ClearAlert()
	c.Status(http.StatusNoContent)
}

type pathRequest struct {
	Path string `json:"path" binding:"required"`
}

// SelectFile 切换当前文件
func (s *SessionService) SelectFile(c *gin.Context) {
	sess, ok := s.session(c)
	if !ok {
		return
	}
	var req pathRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, "path is required")
		return
	}
	sess.Workbench().SetSelectedFile(req.Path)
	s.currentDocument(c, sess.Workbench())
}

// CurrentDocument 当前文档
func (s *SessionService) CurrentDocument(c *gin.Context) {
	sess, ok := s.session(c)
	if !ok {
		return
	}
	s.currentDocument(c, sess.Workbench())
}

func (s *SessionService) currentDocument(c *gin.Context, wb *workbench.Store) {
	doc, found := wb.CurrentDocument()
	if !found {
		c.Status(http.StatusNoContent)
		return
	}
	response.JSON(c, doc)
}

// UpdateCurrentDocument 编辑当前文档，返回未保存文件列表
func (s *SessionService) UpdateCurrentDocument(c *gin.Context) {
	sess, ok := s.session(c)
	if !ok {
		return
	}
	var req struct {
		Content *string `json:"content"`
	}
	if err := c.ShouldBindJSON(&req); err != nil || req.Content == nil {
		response.BadRequest(c, "content is required")
		return
	}
	sess.Workbench().SetCurrentDocumentContent(*req.Content)
	response.JSON(c, gin.H{"unsaved": sess.Workbench().UnsavedFiles()})
}

// ScrollCurrentDocument 记录滚动位置
func (s *SessionService) ScrollCurrentDocument(c *gin.Context) {
	sess, ok := s.session(c)
	if !ok {
		return
	}
	var pos workbench.ScrollPosition
	if err := c.ShouldBindJSON(&pos); err != nil {
		response.BadRequest(c, "Invalid scroll position")
		return
	}
	sess.Workbench().SetCurrentDocumentScrollPosition(pos)
	c.Status(http.StatusNoContent)
}

// SaveCurrentDocument 保存当前文档
func (s *SessionService) SaveCurrentDocument(c *gin.Context) {
	sess, ok := s.session(c)
	if !ok {
		return
	}
	if err := sess.Workbench().SaveCurrentDocument(c.Request.Context()); err != nil {
		response.HandleError(c, err)
		return
	}
	response.JSON(c, gin.H{"unsaved": sess.Workbench().UnsavedFiles()})
}

// ResetCurrentDocument 丢弃当前文档修改
func (s *SessionService) ResetCurrentDocument(c *gin.Context) {
	sess, ok := s.session(c)
	if !ok {
		return
	}
	sess.Workbench().ResetCurrentDocument()
	response.JSON(c, gin.H{"unsaved": sess.Workbench().UnsavedFiles()})
}

// SaveFile 保存指定文件
func (s *SessionService) SaveFile(c *gin.Context) {
	sess, ok := s.session(c)
	if !ok {
		return
	}
	var req pathRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, "path is required")
		return
	}
	if err := sess.Workbench().SaveFile(c.Request.Context(), req.Path); err != nil {
		response.HandleError(c, err)
		return
	}
	response.JSON(c, gin.H{"unsaved": sess.Workbench().UnsavedFiles()})
}

// SaveAllFiles 保存全部未保存文件
func (s *SessionService) SaveAllFiles(c *gin.Context) {
	sess, ok := s.session(c)
	if !ok {
		return
	}
	if err := sess.Workbench().SaveAllFiles(c.Request.Context()); err != nil {
		response.HandleError(c, err)
		return
	}
	response.JSON(c, gin.H{"unsaved": sess.Workbench().UnsavedFiles()})
}

// UnsavedFiles 未保存文件
func (s *SessionService) UnsavedFiles(c *gin.Context) {
	sess, ok := s.session(c)
	if !ok {
		return
	}
	response.JSON(c, sess.Workbench().UnsavedFiles())
}

// FileModifications 用户修改过的文件
func (s *SessionService) FileModifications(c *gin.Context) {
	sess, ok := s.session(c)
	if !ok {
		return
	}
	mods := sess.Workbench().FileModifications()
	if mods == nil {
		mods = []workbench.FileModification{}
	}
	response.JSON(c, mods)
}

// ResetFileModifications 清空修改记录
func (s *SessionService) ResetFileModifications(c *gin.Context) {
	sess, ok := s.session(c)
	if !ok {
		return
	}
	sess.Workbench().ResetAllFileModifications()
	c.Status(http.StatusNoContent)
}

// DownloadZip 下载项目 zip
func (s *SessionService) DownloadZip(c *gin.Context) {
	sess, ok := s.session(c)
	if !ok {
		return
	}
	wb := sess.Workbench()
	c.Header("Content-Type", "application/zip")
	c.Header("Content-Disposition", fmt.Sprintf("attachment; filename=%q", wb.ZipName()))
	c.Status(http.StatusOK)
	if err := wb.DownloadZip(c.Writer); err != nil {
		s.logger.Error("failed to write zip", zap.String("session_id", sess.ID), zap.Error(err))
	}
}

// UploadZip 上传 zip 到对象存储并返回下载地址
func (s *SessionService) UploadZip(c *gin.Context) {
	sess, ok := s.session(c)
	if !ok {
		return
	}
	result, err := sess.Workbench().UploadZip(c.Request.Context(), sess.ID)
	if err != nil {
		response.HandleError(c, err)
		return
	}
	response.Created(c, result)
}

// SyncFiles 把文件同步到服务器 sync root 下的子目录
func (s *SessionService) SyncFiles(c *gin.Context) {
	sess, ok := s.session(c)
	if !ok {
		return
	}
	var req struct {
		Dir string `json:"dir" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, "dir is required")
		return
	}
	synced, err := sess.Workbench().SyncToDir(c.Request.Context(), req.Dir)
	if err != nil {
		response.HandleError(c, err)
		return
	}
	response.JSON(c, gin.H{"files": synced})
}

// PushRequest 推送到 GitHub；token 和 owner 缺省时读 cookie，再缺省读配置
type PushRequest struct {
	RepoName string `json:"repoName" binding:"required"`
	Owner    string `json:"owner"`
	Token    string `json:"token"`
}

// PushToGitHub 推送全部文件
func (s *SessionService) PushToGitHub(c *gin.Context) {
	sess, ok := s.session(c)
	if !ok {
		return
	}
	var req PushRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, "repoName is required")
		return
	}
	if req.Token == "" {
		req.Token, _ = c.Cookie("githubToken")
	}
	if req.Owner == "" {
		req.Owner, _ = c.Cookie("githubUsername")
	}

	result, err := sess.Workbench().PushToGitHub(c.Request.Context(), req.RepoName, req.Owner, req.Token)
	if err != nil {
		response.HandleError(c, err)
		return
	}
	response.JSON(c, result)
}
