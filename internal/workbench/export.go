package workbench

import (
	"archive/zip"
	"bytes"
	"context"
	"fmt"
	"io"
	"os"
	"path"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/afero"
	"go.uber.org/zap"

	apperrors "github.com/AGIOS-UPDATED/midday-test/internal/pkg/errors"
	"github.com/AGIOS-UPDATED/midday-test/internal/sandbox"
)

// UploadResult 导出包上传到对象存储后的位置
type UploadResult struct {
	Name   string `json:"name"`
	Object string `json:"object"`
	URL    string `json:"url"`
	Size   int64  `json:"size"`
}

// exportable 非二进制文件，路径保持目录结构
func (s *Store) exportable() []File {
	var out []File
	for _, f := range s.files.List() {
		if f.IsBinary {
			continue
		}
		out = append(out, f)
	}
	return out
}

// ZipName <描述小写下划线>_<时间戳 base36 后 6 位>.zip
func (s *Store) ZipName() string {
	s.mu.RLock()
	desc := s.description
	s.mu.RUnlock()
	return zipName(desc, time.Now())
}

func zipName(description string, now time.Time) string {
	project := strings.TrimSpace(description)
	if project == "" {
		project = "project"
	}
	project = strings.Join(strings.Fields(strings.ToLower(project)), "_")

	hash := strconv.FormatInt(now.UnixMilli(), 36)
	if len(hash) > 6 {
		hash = hash[len(hash)-6:]
	}
	return project + "_" + hash + ".zip"
}

// DownloadZip 把全部非二进制文件写成 zip
func (s *Store) DownloadZip(w io.Writer) error {
	zw := zip.NewWriter(w)
	for _, f := range s.exportable() {
		fw, err := zw.Create(f.Path)
		if err != nil {
			return fmt.Errorf("add %s to zip: %w", f.Path, err)
		}
		if _, err := io.WriteString(fw, f.Content); err != nil {
			return fmt.Errorf("write %s to zip: %w", f.Path, err)
		}
	}
	return zw.Close()
}

// UploadZip 打包上传到 MinIO，返回带下载文件名的预签名地址
func (s *Store) UploadZip(ctx context.Context, prefix string) (*UploadResult, error) {
	if s.minio == nil {
		return nil, apperrors.New(apperrors.ErrServiceUnavail, "object storage is not configured")
	}

	var buf bytes.Buffer
	if err := s.DownloadZip(&buf); err != nil {
		return nil, apperrors.Wrap(err, apperrors.ErrInternal)
	}

	name := s.ZipName()
	object := path.Join("exports", prefix, name)
	size := int64(buf.Len())
	if err := s.minio.EnsureBucket(ctx); err != nil {
		return nil, apperrors.Wrap(err, apperrors.ErrServiceUnavail, "object storage is unavailable")
	}
	if err := s.minio.PutObject(ctx, object, &buf, size, "application/zip"); err != nil {
		return nil, apperrors.Wrap(err, apperrors.ErrServiceUnavail, "failed to upload archive")
	}
	url, err := s.minio.PresignedGetURL(ctx, object, name)
	if err != nil {
		return nil, apperrors.Wrap(err, apperrors.ErrServiceUnavail, "failed to sign download url")
	}

	s.logger.Info("project archive uploaded", zap.String("object", object), zap.Int64("size", size))
	return &UploadResult{Name: name, Object: object, URL: url, Size: size}, nil
}

// SyncFiles 把非二进制文件写入 target，返回写入的相对路径
func (s *Store) SyncFiles(ctx context.Context, target afero.Fs) ([]string, error) {
	var synced []string
	for _, f := range s.exportable() {
		if err := ctx.Err(); err != nil {
			return synced, err
		}
		p := "/" + f.Path
		if dir := path.Dir(p); dir != "/" {
			if err := target.MkdirAll(dir, 0o755); err != nil {
				return synced, fmt.Errorf("create %s: %w", dir, err)
			}
		}
		if err := afero.WriteFile(target, p, []byte(f.Content), 0o644); err != nil {
			return synced, fmt.Errorf("write %s: %w", f.Path, err)
		}
		synced = append(synced, f.Path)
	}
	s.logger.Info("files synced", zap.Int("count", len(synced)))
	return synced, nil
}

// SyncToDir 同步到 sync root 下的子目录；dir 为相对 sync root 的路径
func (s *Store) SyncToDir(ctx context.Context, dir string) ([]string, error) {
	target, err := resolveSyncDir(s.syncRoot, dir)
	if err != nil {
		return nil, err
	}
	if err := os.MkdirAll(target, 0o755); err != nil {
		return nil, fmt.Errorf("create %s: %w", target, err)
	}
	return s.SyncFiles(ctx, afero.NewBasePathFs(afero.NewOsFs(), target))
}

// resolveSyncDir 绝对路径和 .. 越界都直接拒绝，不做截断
func resolveSyncDir(root, dir string) (string, error) {
	if root == "" {
		return "", apperrors.NewValidationError("syncing to the server is disabled")
	}
	dir = strings.TrimSpace(strings.ReplaceAll(dir, "\\", "/"))
	if dir == "" {
		return "", apperrors.NewValidationError("target directory is required")
	}
	cleaned := path.Clean(dir)
	if path.IsAbs(cleaned) || filepath.IsAbs(dir) || cleaned == ".." || strings.HasPrefix(cleaned, "../") {
		return "", apperrors.NewValidationError("target directory must be inside the sync root")
	}
	rel := sandbox.CleanPath("", cleaned)
	if rel == "" {
		return filepath.Clean(root), nil
	}
	return filepath.Join(root, filepath.FromSlash(rel)), nil
}
