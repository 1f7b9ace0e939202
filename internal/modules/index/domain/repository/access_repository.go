package repository

import "context"

// AccessRepository 访问控制台账（access_list 表）
type AccessRepository interface {
	ListUsers(ctx context.Context) ([]string, error)
	ListBySource(ctx context.Context, sourceID string) ([]string, error)
	// Grant 补齐缺失的 (uid, source_id)，已存在的忽略
	Grant(ctx context.Context, sourceID string, userIDs []string) error
	Revoke(ctx context.Context, sourceID string, userIDs []string) error
	DeleteBySource(ctx context.Context, sourceID string) error
	// DeleteByUser 删除用户的全部记录，返回受影响的 source_id
	DeleteByUser(ctx context.Context, userID string) ([]string, error)
}

// IndexUnitOfWork 在一个关系库事务里组合文档与台账操作
type IndexUnitOfWork interface {
	Transaction(ctx context.Context, fn func(docRepo DocumentRepository, accessRepo AccessRepository) error) error
}
