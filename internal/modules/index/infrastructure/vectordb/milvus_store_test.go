package vectordb

import (
	"context"
	"encoding/json"
	"strings"
	"testing"

	"ContextIndex/internal/modules/index/domain/repository"
	embedmock "ContextIndex/internal/modules/index/infrastructure/embedding"

	mclient "github.com/milvus-io/milvus-sdk-go/v2/client"
	"github.com/milvus-io/milvus-sdk-go/v2/entity"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeMilvus 记录表达式，按预设分数返回表达式内的 id
type fakeMilvus struct {
	mclient.Client

	scores  map[string]float32
	exprs   []string
	topKs   []int
	deletes []string
}

func exprIDs(t *testing.T, expr string) []string {
	t.Helper()
	require.True(t, strings.HasPrefix(expr, "id in "))
	var ids []string
	require.NoError(t, json.Unmarshal([]byte(strings.TrimPrefix(expr, "id in ")), &ids))
	return ids
}

func (f *fakeMilvus) Search(ctx context.Context, collName string, partitions []string, expr string, outputFields []string,
	vectors []entity.Vector, vectorField string, metricType entity.MetricType, topK int, sp entity.SearchParam,
	opts ...mclient.SearchQueryOptionFunc) ([]mclient.SearchResult, error) {
	f.exprs = append(f.exprs, expr)
	f.topKs = append(f.topKs, topK)

	var ids []string
	_ = json.Unmarshal([]byte(strings.TrimPrefix(expr, "id in ")), &ids)
	var (
		hitIDs   []string
		contents []string
		scores   []float32
	)
	for _, id := range ids {
		if sc, ok := f.scores[id]; ok && len(hitIDs) < topK {
			hitIDs = append(hitIDs, id)
			contents = append(contents, "content "+id)
			scores = append(scores, sc)
		}
	}
	return []mclient.SearchResult{{
		ResultCount: len(hitIDs),
		IDs:         entity.NewColumnVarChar("id", hitIDs),
		Fields:      mclient.ResultSet{entity.NewColumnVarChar("content", contents)},
		Scores:      scores,
	}}, nil
}

func (f *fakeMilvus) Delete(ctx context.Context, collName string, partitionName string, expr string) error {
	f.deletes = append(f.deletes, expr)
	return nil
}

func TestMilvusQuerySplitsCandidatesByExprBatch(t *testing.T) {
	fake := &fakeMilvus{scores: map[string]float32{
		"a": 0.10, "b": 0.95, "c": 0.50, "d": 0.90, "e": 0.20,
	}}
	s, err := NewMilvusStore(fake, embedmock.NewMockEmbedder(4), "chunks", 4, entity.COSINE, 2)
	require.NoError(t, err)

	coll := &repository.Collection{ID: "chunks", Name: "chunks"}
	hits, err := s.Query(context.Background(), coll, []string{"a", "b", "c", "d", "e"}, []float32{1, 0, 0, 0}, 2)
	require.NoError(t, err)

	require.Len(t, fake.exprs, 3)
	for _, expr := range fake.exprs {
		assert.LessOrEqual(t, len(exprIDs(t, expr)), 2)
	}
	assert.Equal(t, []int{2, 2, 1}, fake.topKs)

	require.Len(t, hits, 2)
	assert.Equal(t, "b", hits[0].ID)
	assert.Equal(t, "d", hits[1].ID)
	assert.InDelta(t, 0.05, hits[0].Distance, 1e-5)
	assert.Equal(t, "content b", hits[0].Content)
}

func TestMilvusDeleteSplitsByExprBatch(t *testing.T) {
	fake := &fakeMilvus{}
	s, err := NewMilvusStore(fake, embedmock.NewMockEmbedder(4), "chunks", 4, entity.L2, 2)
	require.NoError(t, err)

	require.NoError(t, s.DeleteByIDs(context.Background(), []string{"a", "b", "c"}))
	require.Len(t, fake.deletes, 2)
	assert.Equal(t, []string{"a", "b"}, exprIDs(t, fake.deletes[0]))
	assert.Equal(t, []string{"c"}, exprIDs(t, fake.deletes[1]))
}
