package workbench

import (
	"context"
	"encoding/base64"
	"net/http"
	"net/url"
	"strings"
	"sync"

	"github.com/google/go-github/v66/github"
	"go.uber.org/zap"
	"golang.org/x/oauth2"

	apperrors "github.com/AGIOS-UPDATED/midday-test/internal/pkg/errors"
)

const commitMessage = "Initial commit from your app"

// PushResult 推送结果
type PushResult struct {
	RepoURL   string `json:"repoUrl"`
	Branch    string `json:"branch"`
	CommitSHA string `json:"commitSha"`
	Files     int    `json:"files"`
}

func (s *Store) githubClient(ctx context.Context, token string) (*github.Client, error) {
	client := github.NewClient(oauth2.NewClient(ctx, oauth2.StaticTokenSource(&oauth2.Token{AccessToken: token})))
	if base := s.github.APIBaseURL; base != "" {
		if !strings.HasSuffix(base, "/") {
			base += "/"
		}
		u, err := url.Parse(base)
		if err != nil {
			return nil, apperrors.Wrap(err, apperrors.ErrValidation, "invalid GitHub API base url")
		}
		client.BaseURL = u
	}
	return client, nil
}

// PushToGitHub 仓库不存在时创建；任何一步失败都不会更新分支引用
func (s *Store) PushToGitHub(ctx context.Context, repoName, owner, token string) (*PushResult, error) {
	if token == "" {
		token = s.github.Token
	}
	if owner == "" {
		owner = s.github.Owner
	}
	if token == "" || owner == "" {
		return nil, apperrors.NewValidationError("GitHub token or username is not set in cookies or provided.")
	}
	if repoName == "" {
		return nil, apperrors.NewValidationError("repository name is required")
	}

	client, err := s.githubClient(ctx, token)
	if err != nil {
		return nil, err
	}

	repo, err := s.resolveRepo(ctx, client, owner, repoName)
	if err != nil {
		return nil, err
	}
	repoOwner, name := repo.GetOwner().GetLogin(), repo.GetName()
	if repoOwner == "" {
		repoOwner = owner
	}
	if name == "" {
		name = repoName
	}

	if s.files.Count() == 0 {
		return nil, apperrors.New(apperrors.ErrNoFiles)
	}

	entries, err := s.createBlobs(ctx, client, repoOwner, name)
	if err != nil {
		return nil, err
	}
	if len(entries) == 0 {
		return nil, apperrors.New(apperrors.ErrNoFiles, "No valid files to push.")
	}

	branch := repo.GetDefaultBranch()
	if branch == "" {
		branch = "main"
	}
	ref, _, err := client.Git.GetRef(ctx, repoOwner, name, "heads/"+branch)
	if err != nil {
		return nil, apperrors.Wrap(err, apperrors.ErrGitHub, "failed to read branch "+branch)
	}
	latest := ref.GetObject().GetSHA()

	tree, _, err := client.Git.CreateTree(ctx, repoOwner, name, latest, entries)
	if err != nil {
		return nil, apperrors.Wrap(err, apperrors.ErrGitHub, "failed to create tree")
	}

	commit, _, err := client.Git.CreateCommit(ctx, repoOwner, name, &github.Commit{
		Message: github.String(commitMessage),
		Tree:    tree,
		Parents: []*github.Commit{{SHA: github.String(latest)}},
	}, nil)
	if err != nil {
		return nil, apperrors.Wrap(err, apperrors.ErrGitHub, "failed to create commit")
	}

	_, _, err = client.Git.UpdateRef(ctx, repoOwner, name, &github.Reference{
		Ref:    github.String("heads/" + branch),
		Object: &github.GitObject{SHA: commit.SHA},
	}, false)
	if err != nil {
		return nil, apperrors.Wrap(err, apperrors.ErrGitHub, "failed to update branch "+branch)
	}

	s.logger.Info("pushed to github",
		zap.String("repo", repoOwner+"/"+name),
		zap.String("commit", commit.GetSHA()),
		zap.Int("files", len(entries)),
	)
	return &PushResult{
		RepoURL:   repo.GetHTMLURL(),
		Branch:    branch,
		CommitSHA: commit.GetSHA(),
		Files:     len(entries),
	}, nil
}

// resolveRepo 404 时创建公开仓库，其它错误直接失败
func (s *Store) resolveRepo(ctx context.Context, client *github.Client, owner, name string) (*github.Repository, error) {
	repo, resp, err := client.Repositories.Get(ctx, owner, name)
	if err == nil {
		return repo, nil
	}
	if resp == nil || resp.StatusCode != http.StatusNotFound {
		return nil, apperrors.Wrap(err, apperrors.ErrGitHub, "failed to resolve repository "+owner+"/"+name)
	}

	repo, _, err = client.Repositories.Create(ctx, "", &github.Repository{
		Name:     github.String(name),
		Private:  github.Bool(false),
		AutoInit: github.Bool(true),
	})
	if err != nil {
		return nil, apperrors.Wrap(err, apperrors.ErrGitHub, "failed to create repository "+name)
	}
	s.logger.Info("github repository created", zap.String("repo", repo.GetFullName()))
	return repo, nil
}

// createBlobs 在协程池上并发创建 blob，跳过二进制和空文件
func (s *Store) createBlobs(ctx context.Context, client *github.Client, owner, name string) ([]*github.TreeEntry, error) {
	files := s.exportable()
	entries := make([]*github.TreeEntry, len(files))

	var mu sync.Mutex
	tasks := make([]func(ctx context.Context) error, 0, len(files))
	for i, f := range files {
		if f.Content == "" {
			continue
		}
		i, f := i, f
		tasks = append(tasks, func(ctx context.Context) error {
			blob, _, err := client.Git.CreateBlob(ctx, owner, name, &github.Blob{
				Content:  github.String(base64.StdEncoding.EncodeToString([]byte(f.Content))),
				Encoding: github.String("base64"),
			})
			if err != nil {
				return apperrors.Wrap(err, apperrors.ErrGitHub, "failed to upload "+f.Path)
			}
			mu.Lock()
			entries[i] = &github.TreeEntry{
				Path: github.String(f.Path),
				Mode: github.String("100644"),
				Type: github.String("blob"),
				SHA:  blob.SHA,
			}
			mu.Unlock()
			return nil
		})
	}

	if s.pool != nil {
		if err := s.pool.Run(ctx, tasks); err != nil {
			return nil, err
		}
	} else {
		for _, task := range tasks {
			if err := task(ctx); err != nil {
				return nil, err
			}
		}
	}

	out := entries[:0]
	for _, e := range entries {
		if e != nil {
			out = append(out, e)
		}
	}
	return out, nil
}
