package enricher

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"regexp"
	"strings"
	"time"

	md "github.com/JohannesKaufmann/html-to-markdown"
	"github.com/JohannesKaufmann/html-to-markdown/plugin"
	"github.com/go-shiori/go-readability"

	"github-release-radar/internal/common"
)

const (
	defaultMaxContentLen = 4000
	maxBodyBytes         = 2 << 20
)

var excessiveLinesRe = regexp.MustCompile(`\n{3,}`)

// PageEnricher 抓取发布页面并提取正文，实现 port.Enricher
// 失败一律返回空字符串
type PageEnricher struct {
	httpClient    *http.Client
	converter     *md.Converter
	timeout       time.Duration
	maxContentLen int
}

// Option configures a PageEnricher.
type Option func(*PageEnricher)

// WithMaxContentLength 截断长度
func WithMaxContentLength(n int) Option {
	return func(e *PageEnricher) {
		if n > 0 {
			e.maxContentLen = n
		}
	}
}

// WithHTTPClient 替换 HTTP 客户端 (测试用)
func WithHTTPClient(c *http.Client) Option {
	return func(e *PageEnricher) {
		if c != nil {
			e.httpClient = c
		}
	}
}

// New timeout 是整个抓取过程的上限
func New(timeout time.Duration, opts ...Option) *PageEnricher {
	converter := md.NewConverter("", true, nil)
	converter.Use(plugin.GitHubFlavored())

	e := &PageEnricher{
		httpClient:    &http.Client{},
		converter:     converter,
		timeout:       timeout,
		maxContentLen: defaultMaxContentLen,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Enrich 返回页面正文，任何错误都只记录 warn 日志
func (e *PageEnricher) Enrich(ctx context.Context, pageURL string) string {
	text, err := e.extract(ctx, pageURL)
	if err != nil {
		common.Logger(ctx).Warn("页面内容抓取失败，使用空内容",
			slog.String("url", pageURL),
			slog.Any("error", err),
		)
		return ""
	}
	return text
}

func (e *PageEnricher) extract(ctx context.Context, pageURL string) (string, error) {
	parsedURL, err := url.Parse(pageURL)
	if err != nil || parsedURL.Scheme == "" || parsedURL.Host == "" {
		return "", fmt.Errorf("invalid URL: %q", pageURL)
	}

	if e.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, e.timeout)
		defer cancel()
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, pageURL, nil)
	if err != nil {
		return "", fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("User-Agent", "Mozilla/5.0 (compatible; release-radar/1.0)")

	resp, err := e.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("fetch page: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("unexpected status: %d", resp.StatusCode)
	}

	raw, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
	if err != nil {
		return "", fmt.Errorf("read body: %w", err)
	}

	content := ""
	article, err := readability.FromReader(strings.NewReader(string(raw)), parsedURL)
	if err == nil {
		content = strings.TrimSpace(article.TextContent)
	}
	if content == "" {
		// readability 没有识别出正文时，整页转成 markdown
		content, err = e.converter.ConvertString(string(raw))
		if err != nil {
			return "", fmt.Errorf("convert html: %w", err)
		}
		content = strings.TrimSpace(excessiveLinesRe.ReplaceAllString(content, "\n\n"))
	}

	return truncate(content, e.maxContentLen), nil
}

// truncate 按 rune 截断，避免切断多字节字符
func truncate(s string, limit int) string {
	runes := []rune(s)
	if len(runes) <= limit {
		return s
	}
	return string(runes[:limit])
}
