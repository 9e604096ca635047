package domain

import (
	"net/url"
	"regexp"
	"sort"
	"strings"
)

var plainRepoRe = regexp.MustCompile(`^[\w.-]+/[\w.-]+$`)

// NormalizeRepoID 把用户输入规范化为小写的 owner/name
// 支持: owner/name, github.com/owner/name, https://github.com/owner/name/...
// 无法识别时返回 false
func NormalizeRepoID(raw string) (string, bool) {
	trimmed := strings.TrimSpace(raw)
	if trimmed == "" {
		return "", false
	}

	if strings.Contains(trimmed, "://") {
		u, err := url.Parse(trimmed)
		if err != nil || !strings.EqualFold(u.Host, "github.com") {
			return "", false
		}
		return ownerName(strings.Split(strings.Trim(u.Path, "/"), "/"))
	}

	parts := strings.Split(strings.Trim(trimmed, "/"), "/")
	if strings.EqualFold(parts[0], "github.com") {
		return ownerName(parts[1:])
	}

	if !plainRepoRe.MatchString(trimmed) {
		return "", false
	}
	return strings.ToLower(trimmed), true
}

func ownerName(segments []string) (string, bool) {
	if len(segments) < 2 || segments[0] == "" || segments[1] == "" {
		return "", false
	}
	id := segments[0] + "/" + strings.TrimSuffix(segments[1], ".git")
	if !plainRepoRe.MatchString(id) {
		return "", false
	}
	return strings.ToLower(id), true
}

// ParseRepoList 解析逗号分隔的仓库列表，去重并保持原有顺序
// 第二个返回值是无法识别的输入
func ParseRepoList(raw string) ([]string, []string) {
	var repos, invalid []string
	seen := make(map[string]bool)
	for _, item := range strings.Split(raw, ",") {
		if strings.TrimSpace(item) == "" {
			continue
		}
		id, ok := NormalizeRepoID(item)
		if !ok {
			invalid = append(invalid, strings.TrimSpace(item))
			continue
		}
		if seen[id] {
			continue
		}
		seen[id] = true
		repos = append(repos, id)
	}
	return repos, invalid
}

// RepoURL 仓库的展示地址
func RepoURL(id string) string {
	return "https://github.com/" + id
}

// ComparisonKeySeparator 对比 key 的分隔符
const ComparisonKeySeparator = "|"

// ComparisonKey 与输入顺序无关的仓库集合标识
func ComparisonKey(repoIDs []string) string {
	sorted := make([]string, len(repoIDs))
	copy(sorted, repoIDs)
	sort.Strings(sorted)
	return strings.Join(sorted, ComparisonKeySeparator)
}
