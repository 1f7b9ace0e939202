package pipeline

import (
	"context"
	"fmt"

	"ContextIndex/internal/modules/index/domain/repository"

	"github.com/cloudwego/eino/components/embedding"
	"github.com/cloudwego/eino/compose"
	"github.com/cloudwego/eino/schema"
)

// MetaDistance 返回文档 MetaData 中记录原始距离的键
const MetaDistance = "distance"

// RetrieveRequest 召回 Pipeline 的输入
type RetrieveRequest struct {
	Query        string   // 查询文本（必填）
	K            int      // 返回条数，<=0 取默认值，超过上限截断
	CandidateIDs []string // 当前用户可见的 chunk id，由文档索引给出
}

// RetrieveResult 召回 Pipeline 的输出
type RetrieveResult struct {
	QueryID     string
	Documents   []*schema.Document // 按距离升序
	Candidates  int                // 候选 chunk 数
	Batches     int                // 向量引擎查询次数
	TotalHits   int                // 合并前命中数
	DurationMs  int64
	EmbeddingMs int64
	SearchMs    int64

	err error
}

type RetrieveOptions struct {
	// BatchSize 单次向量查询携带的候选 id 上限
	BatchSize int
	// Dim 查询向量维度，<=0 不校验
	Dim      int
	DefaultK int
	MaxK     int
}

// RetrievePipeline 候选集内的向量召回（基于 Eino compose.Graph）
type RetrievePipeline struct {
	vs       repository.VectorStore
	embedder embedding.Embedder
	opts     RetrieveOptions
	r        compose.Runnable[*RetrieveRequest, *RetrieveResult]
}

func NewRetrievePipeline(vs repository.VectorStore, embedder embedding.Embedder, opts RetrieveOptions) (*RetrievePipeline, error) {
	if vs == nil {
		return nil, fmt.Errorf("vector store is nil")
	}
	if embedder == nil {
		return nil, fmt.Errorf("embedder is nil")
	}
	if opts.BatchSize <= 0 {
		opts.BatchSize = 50000
	}
	if opts.DefaultK <= 0 {
		opts.DefaultK = 5
	}
	if opts.MaxK <= 0 {
		opts.MaxK = 100
	}
	p := &RetrievePipeline{vs: vs, embedder: embedder, opts: opts}
	r, err := p.buildGraph(context.Background())
	if err != nil {
		return nil, err
	}
	p.r = r
	return p, nil
}

// Retrieve 执行召回（封装 Eino Runnable.Invoke）
func (p *RetrievePipeline) Retrieve(ctx context.Context, req *RetrieveRequest) (*RetrieveResult, error) {
	if req == nil {
		return nil, fmt.Errorf("retrieve request is nil")
	}
	if p.r == nil {
		return nil, fmt.Errorf("pipeline runnable is nil")
	}
	res, err := p.r.Invoke(ctx, req)
	if err != nil {
		return nil, err
	}
	if res.err != nil {
		return nil, res.err
	}
	return res, nil
}

// normalizeK 默认 DefaultK，范围 1..MaxK
func (p *RetrievePipeline) normalizeK(k int) int {
	if k <= 0 {
		return p.opts.DefaultK
	}
	if k > p.opts.MaxK {
		return p.opts.MaxK
	}
	return k
}
