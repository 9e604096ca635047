package github

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github-release-radar/internal/common"
	"github-release-radar/internal/domain"

	"github.com/google/go-github/v53/github"
	"golang.org/x/oauth2"
)

const commitSampleSize = 8

// Fetcher 实现了 port.ReleaseFetcher 接口
type Fetcher struct {
	client     *github.Client
	retryDelay time.Duration
}

// NewFetcher 初始化 GitHub 客户端
// token: GitHub Personal Access Token (如果是空字符串，就是匿名访问，限制 60次/小时)
// timeout: 每个请求的超时，避免网络调用无限阻塞
func NewFetcher(token string, timeout time.Duration) *Fetcher {
	httpClient := &http.Client{Timeout: timeout}

	if token != "" {
		ts := oauth2.StaticTokenSource(
			&oauth2.Token{AccessToken: token},
		)
		httpClient = oauth2.NewClient(context.Background(), ts)
		httpClient.Timeout = timeout
	}

	return &Fetcher{client: github.NewClient(httpClient), retryDelay: time.Second}
}

// LatestRelease 获取仓库最新发布。404 表示仓库还没有发布过，返回 (nil, nil)
func (f *Fetcher) LatestRelease(ctx context.Context, repoID string) (*domain.Release, error) {
	owner, name, err := splitRepoID(repoID)
	if err != nil {
		return nil, err
	}

	var release *github.RepositoryRelease
	err = common.Do(ctx, func() error {
		var apiErr error
		release, _, apiErr = f.client.Repositories.GetLatestRelease(ctx, owner, name)
		return apiErr
	},
		common.WithMaxRetries(2),
		common.WithInitialDelay(f.retryDelay),
		common.WithRetryIf(isTransient),
	)
	if err != nil {
		if statusCode(err) == http.StatusNotFound {
			return nil, nil
		}
		return nil, common.WrapError(common.ErrCodeGitHubAPI, fmt.Sprintf("获取 %s 最新发布失败", repoID), err)
	}

	htmlURL := release.GetHTMLURL()
	if htmlURL == "" {
		htmlURL = domain.RepoURL(repoID) + "/releases"
	}

	return &domain.Release{
		ID:          release.GetID(),
		Name:        release.GetName(),
		TagName:     release.GetTagName(),
		Body:        release.GetBody(),
		HTMLURL:     htmlURL,
		PublishedAt: release.GetPublishedAt().Time,
	}, nil
}

// RecentCommitMessages 获取最近 8 条提交信息
func (f *Fetcher) RecentCommitMessages(ctx context.Context, repoID string) ([]string, error) {
	owner, name, err := splitRepoID(repoID)
	if err != nil {
		return nil, err
	}

	opts := &github.CommitsListOptions{
		ListOptions: github.ListOptions{PerPage: commitSampleSize},
	}

	var commits []*github.RepositoryCommit
	err = common.Do(ctx, func() error {
		var apiErr error
		commits, _, apiErr = f.client.Repositories.ListCommits(ctx, owner, name, opts)
		return apiErr
	},
		common.WithMaxRetries(2),
		common.WithInitialDelay(f.retryDelay),
		common.WithRetryIf(isTransient),
	)
	if err != nil {
		return nil, common.WrapError(common.ErrCodeGitHubAPI, fmt.Sprintf("获取 %s 提交记录失败", repoID), err)
	}

	messages := make([]string, 0, commitSampleSize)
	for _, c := range commits {
		if len(messages) == commitSampleSize {
			break
		}
		if msg := c.GetCommit().GetMessage(); msg != "" {
			messages = append(messages, msg)
		}
	}
	return messages, nil
}

func splitRepoID(repoID string) (string, string, error) {
	owner, name, ok := strings.Cut(repoID, "/")
	if !ok || owner == "" || name == "" {
		return "", "", common.NewError(common.ErrCodeInvalidInput, fmt.Sprintf("非法的仓库标识: %q", repoID))
	}
	return owner, name, nil
}

func statusCode(err error) int {
	var respErr *github.ErrorResponse
	if errors.As(err, &respErr) && respErr.Response != nil {
		return respErr.Response.StatusCode
	}
	return 0
}

// isTransient 网络错误和 5xx 重试；4xx (包括限流) 不重试
func isTransient(err error) bool {
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return false
	}
	var rateErr *github.RateLimitError
	var abuseErr *github.AbuseRateLimitError
	if errors.As(err, &rateErr) || errors.As(err, &abuseErr) {
		return false
	}
	code := statusCode(err)
	return code == 0 || code >= http.StatusInternalServerError
}
