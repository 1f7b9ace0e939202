package pipeline

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	"ContextIndex/internal/modules/index/domain/index"
	"ContextIndex/internal/modules/index/domain/repository"
	"ContextIndex/pkg/util"
	"ContextIndex/pkg/xerr"
	"ContextIndex/pkg/zlog"

	"github.com/cloudwego/eino/compose"
	"github.com/cloudwego/eino/schema"
	"go.uber.org/zap"
)

// retrieveState 节点间传递的中间状态
type retrieveState struct {
	Req         *RetrieveRequest
	K           int
	QueryVec    []float32
	Hits        []repository.VectorSearchHit
	Batches     int
	Start       time.Time
	EmbeddingMs int64
	SearchMs    int64
	Err         error
}

// buildGraph 节点顺序：Validate → EmbedQuery → SearchBatches → Merge
func (p *RetrievePipeline) buildGraph(ctx context.Context) (compose.Runnable[*RetrieveRequest, *RetrieveResult], error) {
	const (
		Validate      = "Validate"
		EmbedQuery    = "EmbedQuery"
		SearchBatches = "SearchBatches"
		Merge         = "Merge"
	)
	g := compose.NewGraph[*RetrieveRequest, *RetrieveResult]()
	_ = g.AddLambdaNode(Validate, compose.InvokableLambdaWithOption(p.validateNode), compose.WithNodeName(Validate))
	_ = g.AddLambdaNode(EmbedQuery, compose.InvokableLambdaWithOption(p.embedQueryNode), compose.WithNodeName(EmbedQuery))
	_ = g.AddLambdaNode(SearchBatches, compose.InvokableLambdaWithOption(p.searchBatchesNode), compose.WithNodeName(SearchBatches))
	_ = g.AddLambdaNode(Merge, compose.InvokableLambdaWithOption(p.mergeNode), compose.WithNodeName(Merge))

	_ = g.AddEdge(compose.START, Validate)
	_ = g.AddEdge(Validate, EmbedQuery)
	_ = g.AddEdge(EmbedQuery, SearchBatches)
	_ = g.AddEdge(SearchBatches, Merge)
	_ = g.AddEdge(Merge, compose.END)

	return g.Compile(ctx, compose.WithGraphName("ContextRetrievePipeline"), compose.WithNodeTriggerMode(compose.AllPredecessor))
}

func (p *RetrievePipeline) validateNode(ctx context.Context, req *RetrieveRequest, _ ...any) (*retrieveState, error) {
	st := &retrieveState{Req: req, Start: time.Now()}
	if req == nil {
		st.Err = fmt.Errorf("retrieve request is nil")
		return st, nil
	}
	req.Query = strings.TrimSpace(req.Query)
	if req.Query == "" {
		st.Err = xerr.Wrapf(xerr.ErrParam, "query is empty")
		return st, nil
	}
	st.K = p.normalizeK(req.K)
	return st, nil
}

func (p *RetrievePipeline) embedQueryNode(ctx context.Context, st *retrieveState, _ ...any) (*retrieveState, error) {
	if st.Err != nil {
		return st, nil
	}
	// 没有可见 chunk 时不调用 embedder
	if len(st.Req.CandidateIDs) == 0 {
		return st, nil
	}
	embStart := time.Now()
	vecs, err := p.embedder.EmbedStrings(ctx, []string{st.Req.Query})
	if err != nil {
		if ctx.Err() != nil {
			st.Err = ctx.Err()
		} else {
			st.Err = xerr.Wrap(index.ErrEmbedding, err)
		}
		return st, nil
	}
	if len(vecs) == 0 || len(vecs[0]) == 0 {
		st.Err = xerr.Wrapf(index.ErrEmbedding, "embedding result is empty")
		return st, nil
	}
	vec64 := vecs[0]
	if p.opts.Dim > 0 && len(vec64) != p.opts.Dim {
		st.Err = xerr.Wrapf(index.ErrEmbedding, "embedding dim mismatch: got=%d want=%d", len(vec64), p.opts.Dim)
		return st, nil
	}
	vec32 := make([]float32, len(vec64))
	for i := range vec64 {
		vec32[i] = float32(vec64[i])
	}
	st.QueryVec = vec32
	st.EmbeddingMs = time.Since(embStart).Milliseconds()
	return st, nil
}

// searchBatchesNode 候选集按 BatchSize 切分，每批各取 K 条
func (p *RetrievePipeline) searchBatchesNode(ctx context.Context, st *retrieveState, _ ...any) (*retrieveState, error) {
	if st.Err != nil || len(st.QueryVec) == 0 {
		return st, nil
	}
	searchStart := time.Now()
	coll, err := p.vs.ResolveCollection(ctx)
	if err != nil {
		st.Err = index.StoreError("resolve collection", err)
		return st, nil
	}
	for _, batch := range util.Partition(st.Req.CandidateIDs, p.opts.BatchSize) {
		if err := ctx.Err(); err != nil {
			st.Err = err
			return st, nil
		}
		hits, err := p.vs.Query(ctx, coll, batch, st.QueryVec, st.K)
		if err != nil {
			st.Err = index.StoreError("vector query", err)
			return st, nil
		}
		st.Batches++
		st.Hits = append(st.Hits, hits...)
	}
	st.SearchMs = time.Since(searchStart).Milliseconds()
	return st, nil
}

// mergeNode 合并各批结果，按距离升序取前 K
func (p *RetrievePipeline) mergeNode(ctx context.Context, st *retrieveState, _ ...any) (*RetrieveResult, error) {
	res := &RetrieveResult{
		QueryID:     "q_" + util.GenerateShortUUID(),
		Batches:     st.Batches,
		TotalHits:   len(st.Hits),
		EmbeddingMs: st.EmbeddingMs,
		SearchMs:    st.SearchMs,
		Documents:   []*schema.Document{},
		err:         st.Err,
	}
	if st.Req != nil {
		res.Candidates = len(st.Req.CandidateIDs)
	}
	if st.Err != nil {
		return res, nil
	}

	hits := st.Hits
	sort.SliceStable(hits, func(i, j int) bool {
		return hits[i].Distance < hits[j].Distance
	})
	if len(hits) > st.K {
		hits = hits[:st.K]
	}
	chunkIDs := make([]string, 0, len(hits))
	for _, h := range hits {
		md := make(map[string]any, len(h.Metadata)+1)
		for k, v := range h.Metadata {
			md[k] = v
		}
		md[MetaDistance] = h.Distance
		doc := &schema.Document{ID: h.ID, Content: h.Content, MetaData: md}
		res.Documents = append(res.Documents, doc.WithScore(float64(1-h.Distance)))
		chunkIDs = append(chunkIDs, h.ID)
	}
	res.DurationMs = time.Since(st.Start).Milliseconds()

	zlog.Info(
		"context retrieve done",
		zap.String("query_id", res.QueryID),
		zap.Int("k", st.K),
		zap.Int("candidates", res.Candidates),
		zap.Int("batches", res.Batches),
		zap.Int("total_hits", res.TotalHits),
		zap.String("chunk_ids", strings.Join(chunkIDs, ",")),
		zap.Int64("embedding_ms", res.EmbeddingMs),
		zap.Int64("search_ms", res.SearchMs),
		zap.Int64("duration_ms", res.DurationMs),
	)
	return res, nil
}
