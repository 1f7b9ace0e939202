package repository

import (
	"context"

	"ContextIndex/internal/modules/index/domain/index"
)

// DocumentRepository 文档索引（docs 表）
//
// 在 IndexUnitOfWork 中拿到的实例绑定到事务，其余实例直接走连接池。
type DocumentRepository interface {
	// Upsert 插入或整体替换文档行，返回被替换掉的旧 chunk id
	Upsert(ctx context.Context, doc *index.Document) ([]string, error)
	// LockSource 对文档行加行锁，返回文档是否存在
	LockSource(ctx context.Context, sourceID string) (bool, error)
	Get(ctx context.Context, sourceID string) (*index.Document, error)
	// FindStale 对命中的行加行锁并判定未知、过期、最新
	FindStale(ctx context.Context, candidates []index.SourceCandidate) (*index.StaleResult, error)
	// FindOrphaned 返回 sourceIDs 中已没有任何访问记录的文档
	FindOrphaned(ctx context.Context, sourceIDs []string) ([]string, error)
	// DeleteBySourceIDs 删除文档行（访问记录级联删除），返回这些文档拥有的 chunk id
	DeleteBySourceIDs(ctx context.Context, sourceIDs []string) ([]string, error)
	DeleteByProvider(ctx context.Context, provider string) ([]string, error)
	SourceIDsByProvider(ctx context.Context, provider string) ([]string, error)
	CountByProvider(ctx context.Context) (map[string]int64, error)
	// VisibleChunkIDs 用户可见的 chunk id（access_list ⋈ docs），可按 scope 过滤
	VisibleChunkIDs(ctx context.Context, userID string, scope *index.Scope) ([]string, error)
	// ForEachChunkID 分页遍历所有文档引用的 chunk id
	ForEachChunkID(ctx context.Context, batchSize int, fn func(chunkIDs []string) error) error
}
