package auth

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"
)

const (
	LevelRead  = "REPO_READ"
	LevelWrite = "REPO_WRITE"

	defaultStashTimeout = 10 * time.Second
)

// Stash 把权限判断委托给 Bitbucket Server (Stash) 的 REST API
// 任何网络错误、非 2xx、或返回体结构不符合预期，一律视为拒绝
type Stash struct {
	baseURL string
	client  *http.Client
}

// NewStash 构造 Stash，URL 必须以 / 结尾 (缺失时自动补齐)
func NewStash(opts Options) (*Stash, error) {
	if opts.URL == "" {
		return nil, fmt.Errorf("stash authenticator: url not set")
	}
	base := opts.URL
	if !strings.HasSuffix(base, "/") {
		base += "/"
	}

	client := opts.HTTPClient
	if client == nil {
		timeout := opts.Timeout
		if timeout <= 0 {
			timeout = defaultStashTimeout
		}
		client = &http.Client{Timeout: timeout}
	}
	return &Stash{baseURL: base, client: client}, nil
}

func (s *Stash) CanRead(ctx context.Context, user, repo, authorization string) (bool, error) {
	return s.check(ctx, user, repo, LevelRead, authorization), nil
}

func (s *Stash) CanWrite(ctx context.Context, user, repo, authorization string) (bool, error) {
	return s.check(ctx, user, repo, LevelWrite, authorization), nil
}

// CheckSSHAuthorization 未实现：Stash 侧的 SSH 公钥查询尚未接入
func (s *Stash) CheckSSHAuthorization(context.Context, SSHProof) (string, error) {
	return "", nil
}

type stashRepoPage struct {
	Size *int `json:"size"`
}

func (s *Stash) check(ctx context.Context, project, repo, level, authorization string) bool {
	scheme, _, _ := strings.Cut(strings.TrimSpace(authorization), " ")
	if !strings.EqualFold(scheme, "basic") {
		return false
	}
	repo = strings.TrimSuffix(repo, ".git")

	query := url.Values{}
	query.Set("name", repo)
	query.Set("projectname", project)
	query.Set("permission", level)
	endpoint := s.baseURL + "rest/api/1.0/repos?" + query.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		slog.Error("[Stash] Failed to build request. Rejecting action", slog.String("err", err.Error()))
		return false
	}
	req.Header.Set("Authorization", authorization)
	req.Header.Set("Accept", "application/json")

	resp, err := s.client.Do(req)
	if err != nil {
		slog.Error("[Stash] Failed to verify user. Rejecting action",
			slog.String("project", project),
			slog.String("repo", repo),
			slog.String("err", err.Error()),
		)
		return false
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		slog.Warn("[Stash] Permission check returned non-2xx. Rejecting action",
			slog.String("project", project),
			slog.String("repo", repo),
			slog.Int("status", resp.StatusCode),
		)
		return false
	}

	var page stashRepoPage
	if err := json.NewDecoder(resp.Body).Decode(&page); err != nil || page.Size == nil {
		slog.Error("[Stash] Unexpected payload. Rejecting action",
			slog.String("project", project),
			slog.String("repo", repo),
		)
		return false
	}
	return *page.Size == 1
}
