package repository

import (
	"fmt"

	"github-release-radar/internal/common"
	"github-release-radar/internal/port"
)

var (
	_ port.Store = (*PostgresRepo)(nil)
	_ port.Store = (*MemoryRepo)(nil)
)

// Open 按类型打开存储。memory 时 dsn 是数据文件路径 (可为空)
func Open(kind, dsn string) (port.Store, func() error, error) {
	switch kind {
	case "", "memory":
		repo, err := NewMemoryRepo(dsn)
		if err != nil {
			return nil, nil, err
		}
		return repo, func() error { return nil }, nil
	case "postgres":
		repo, err := NewPostgresRepo(dsn)
		if err != nil {
			return nil, nil, err
		}
		return repo, repo.Close, nil
	default:
		return nil, nil, common.NewError(common.ErrCodeInvalidInput, fmt.Sprintf("未知的存储类型 %q", kind))
	}
}
