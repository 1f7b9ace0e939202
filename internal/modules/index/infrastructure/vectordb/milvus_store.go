package vectordb

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"ContextIndex/internal/modules/index/domain/index"
	"ContextIndex/internal/modules/index/domain/repository"
	"ContextIndex/pkg/util"

	"github.com/cloudwego/eino/components/embedding"
	mclient "github.com/milvus-io/milvus-sdk-go/v2/client"
	"github.com/milvus-io/milvus-sdk-go/v2/entity"
)

type MilvusStore struct {
	cli         mclient.Client
	embedder    embedding.Embedder
	collection  string
	vectorField string
	metricType  entity.MetricType
	vectorDim   int
	searchParam entity.SearchParam
	// 单个 `id in [...]` 表达式最多携带 exprBatch 个 id，删除与检索都按它分批
	exprBatch int
}

var _ repository.VectorStore = (*MilvusStore)(nil)

func NewMilvusStore(cli mclient.Client, embedder embedding.Embedder, collection string, vectorDim int, metricType entity.MetricType, exprBatch int) (*MilvusStore, error) {
	if cli == nil {
		return nil, errors.New("milvus client is nil")
	}
	if embedder == nil {
		return nil, errors.New("embedder is nil")
	}
	if strings.TrimSpace(collection) == "" {
		return nil, errors.New("collection is empty")
	}
	if vectorDim <= 0 {
		return nil, fmt.Errorf("invalid vectorDim: %d", vectorDim)
	}
	if exprBatch <= 0 {
		exprBatch = 1000
	}
	sp, err := entity.NewIndexAUTOINDEXSearchParam(1)
	if err != nil {
		return nil, err
	}
	return &MilvusStore{
		cli:         cli,
		embedder:    embedder,
		collection:  collection,
		vectorField: "vector",
		metricType:  metricType,
		vectorDim:   vectorDim,
		searchParam: sp,
		exprBatch:   exprBatch,
	}, nil
}

// ResolveCollection Milvus 集合在启动时已建好，这里只做存在性检查
func (s *MilvusStore) ResolveCollection(ctx context.Context) (*repository.Collection, error) {
	has, err := s.cli.HasCollection(ctx, s.collection)
	if err != nil {
		return nil, err
	}
	if !has {
		return nil, fmt.Errorf("milvus collection %s not found", s.collection)
	}
	return &repository.Collection{
		ID:     s.collection,
		Name:   s.collection,
		Dim:    s.vectorDim,
		Metric: string(s.metricType),
	}, nil
}

func (s *MilvusStore) Insert(ctx context.Context, chunks []index.Chunk) ([]string, error) {
	if len(chunks) == 0 {
		return []string{}, nil
	}
	texts := make([]string, 0, len(chunks))
	for _, c := range chunks {
		texts = append(texts, c.Content)
	}
	vectors, err := embedTexts(ctx, s.embedder, texts, s.vectorDim)
	if err != nil {
		return nil, err
	}

	ids := make([]string, 0, len(chunks))
	contents := make([]string, 0, len(chunks))
	metas := make([][]byte, 0, len(chunks))
	for _, c := range chunks {
		ids = append(ids, util.GenerateUUID())
		contents = append(contents, c.Content)
		bs, err := marshalMetadata(c.Metadata)
		if err != nil {
			return nil, err
		}
		metas = append(metas, bs)
	}

	_, err = s.cli.Upsert(
		ctx,
		s.collection,
		"",
		entity.NewColumnVarChar("id", ids),
		entity.NewColumnFloatVector(s.vectorField, s.vectorDim, vectors),
		entity.NewColumnVarChar("content", contents),
		entity.NewColumnJSONBytes("metadata", metas),
	)
	if err != nil {
		return nil, err
	}
	return ids, nil
}

func (s *MilvusStore) DeleteByIDs(ctx context.Context, ids []string) error {
	for _, batch := range util.Partition(ids, s.exprBatch) {
		expr, err := idInExpr(batch)
		if err != nil {
			return err
		}
		if err := s.cli.Delete(ctx, s.collection, "", expr); err != nil {
			return err
		}
	}
	return nil
}

func (s *MilvusStore) Query(ctx context.Context, coll *repository.Collection, candidateIDs []string, vector []float32, limit int) ([]repository.VectorSearchHit, error) {
	if coll == nil {
		return nil, errors.New("collection is nil")
	}
	if len(candidateIDs) == 0 || limit <= 0 {
		return []repository.VectorSearchHit{}, nil
	}
	if len(vector) != s.vectorDim {
		return nil, fmt.Errorf("vector dim mismatch, got=%d want=%d", len(vector), s.vectorDim)
	}
	// 每批各取 top limit，合并后再截断
	var hits []repository.VectorSearchHit
	for _, batch := range util.Partition(candidateIDs, s.exprBatch) {
		part, err := s.searchBatch(ctx, coll.Name, batch, vector, min(limit, len(batch)))
		if err != nil {
			return nil, err
		}
		hits = append(hits, part...)
	}
	return rankHits(hits, limit), nil
}

func (s *MilvusStore) searchBatch(ctx context.Context, collection string, ids []string, vector []float32, limit int) ([]repository.VectorSearchHit, error) {
	expr, err := idInExpr(ids)
	if err != nil {
		return nil, err
	}
	res, err := s.cli.Search(
		ctx,
		collection,
		[]string{},
		expr,
		[]string{"content", "metadata"},
		[]entity.Vector{entity.FloatVector(vector)},
		s.vectorField,
		s.metricType,
		limit,
		s.searchParam,
	)
	if err != nil {
		return nil, err
	}
	if len(res) == 0 {
		return nil, nil
	}
	return s.parseSearchResult(res[0])
}

func (s *MilvusStore) parseSearchResult(sr mclient.SearchResult) ([]repository.VectorSearchHit, error) {
	if sr.Err != nil {
		return nil, sr.Err
	}
	hits := make([]repository.VectorSearchHit, 0, sr.ResultCount)

	contentCol := columnByName(sr.Fields, "content")
	metaCol := columnByName(sr.Fields, "metadata")

	for i := 0; i < sr.ResultCount; i++ {
		id, _ := sr.IDs.GetAsString(i)
		score := float32(0)
		if i < len(sr.Scores) {
			score = sr.Scores[i]
		}

		h := repository.VectorSearchHit{ID: id, Distance: s.toDistance(score)}
		if contentCol != nil {
			v, _ := contentCol.GetAsString(i)
			h.Content = v
		}
		if metaCol != nil {
			v, _ := metaCol.Get(i)
			if bs, ok := v.([]byte); ok && len(bs) > 0 {
				var md map[string]any
				if err := json.Unmarshal(bs, &md); err == nil {
					h.Metadata = md
				}
			}
		}
		hits = append(hits, h)
	}
	return hits, nil
}

// toDistance COSINE/IP 返回相似度，统一换算为越小越近的距离
func (s *MilvusStore) toDistance(score float32) float32 {
	switch s.metricType {
	case entity.COSINE, entity.IP:
		return 1 - score
	default:
		return score
	}
}

func idInExpr(ids []string) (string, error) {
	bs, err := json.Marshal(ids)
	if err != nil {
		return "", err
	}
	return "id in " + string(bs), nil
}

func marshalMetadata(md map[string]any) ([]byte, error) {
	if len(md) == 0 {
		return []byte("{}"), nil
	}
	return json.Marshal(md)
}

func columnByName(cols mclient.ResultSet, name string) entity.Column {
	for _, c := range cols {
		if c != nil && c.Name() == name {
			return c
		}
	}
	return nil
}
