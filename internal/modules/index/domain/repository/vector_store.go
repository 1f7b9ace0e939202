package repository

import (
	"context"
	"time"

	"ContextIndex/internal/modules/index/domain/index"
)

// VectorStore 是 domain 层定义的"向量引擎能力抽象"。
//
// 设计约束：
// 1) application / domain 只依赖本接口，不直接依赖 Milvus SDK 或 SQL 表结构。
// 2) 向量引擎只保存 chunk 载荷；归属与可见性由关系库决定，Query 只在调用方给出的候选 id 内排序。

// Collection 向量集合句柄
type Collection struct {
	ID     string
	Name   string
	Dim    int
	Metric string
}

// VectorSearchHit 按距离升序返回的命中
type VectorSearchHit struct {
	ID       string
	Content  string
	Metadata map[string]any
	Distance float32
}

type VectorStore interface {
	ResolveCollection(ctx context.Context) (*Collection, error)
	// Insert 向量化并写入，返回与输入顺序一致的 chunk id
	Insert(ctx context.Context, chunks []index.Chunk) ([]string, error)
	DeleteByIDs(ctx context.Context, ids []string) error
	// Query 只在 candidateIDs 内做距离排序，最多返回 limit 条
	Query(ctx context.Context, coll *Collection, candidateIDs []string, vector []float32, limit int) ([]VectorSearchHit, error)
}

// ChunkLister 可选能力：按 id 顺序列出早于 olderThan 写入的 chunk，用于孤儿 chunk 回收
type ChunkLister interface {
	ListChunkIDs(ctx context.Context, olderThan time.Time, afterID string, limit int) ([]string, error)
}
