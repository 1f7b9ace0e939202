package pipeline

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"ContextIndex/internal/modules/index/domain/index"
	"ContextIndex/internal/modules/index/domain/repository"
	"ContextIndex/pkg/xerr"

	"github.com/cloudwego/eino/components/embedding"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeStore 距离由 distances 给出，未登记的 id 视为不存在
type fakeStore struct {
	distances map[string]float32
	queries   [][]string
	queryErr  error
}

func (f *fakeStore) ResolveCollection(ctx context.Context) (*repository.Collection, error) {
	return &repository.Collection{ID: "c", Name: "c"}, nil
}

func (f *fakeStore) Insert(ctx context.Context, chunks []index.Chunk) ([]string, error) {
	return nil, errors.New("not used")
}

func (f *fakeStore) DeleteByIDs(ctx context.Context, ids []string) error { return nil }

func (f *fakeStore) Query(ctx context.Context, coll *repository.Collection, candidateIDs []string, vector []float32, limit int) ([]repository.VectorSearchHit, error) {
	f.queries = append(f.queries, candidateIDs)
	if f.queryErr != nil {
		return nil, f.queryErr
	}
	var hits []repository.VectorSearchHit
	for _, id := range candidateIDs {
		if d, ok := f.distances[id]; ok {
			hits = append(hits, repository.VectorSearchHit{ID: id, Content: "content " + id, Distance: d})
		}
	}
	if len(hits) > limit {
		hits = hits[:limit]
	}
	return hits, nil
}

type countingEmbedder struct {
	calls int
	err   error
}

func (c *countingEmbedder) EmbedStrings(ctx context.Context, texts []string, opts ...embedding.Option) ([][]float64, error) {
	c.calls++
	if c.err != nil {
		return nil, c.err
	}
	return [][]float64{{1, 0, 0}}, nil
}

func ids(n int) []string {
	out := make([]string, n)
	for i := range out {
		out[i] = fmt.Sprintf("id%02d", i)
	}
	return out
}

func TestRetrieveMergesBatchesByDistance(t *testing.T) {
	store := &fakeStore{distances: map[string]float32{
		"id01": 0.5, "id04": 0.1, "id07": 0.3, "id09": 0.2,
	}}
	p, err := NewRetrievePipeline(store, &countingEmbedder{}, RetrieveOptions{BatchSize: 4, Dim: 3})
	require.NoError(t, err)

	res, err := p.Retrieve(context.Background(), &RetrieveRequest{Query: " budget ", K: 3, CandidateIDs: ids(10)})
	require.NoError(t, err)
	assert.Equal(t, 3, res.Batches)
	assert.Len(t, store.queries, 3)
	assert.Equal(t, 10, res.Candidates)
	assert.Equal(t, 4, res.TotalHits)

	require.Len(t, res.Documents, 3)
	assert.Equal(t, "id04", res.Documents[0].ID)
	assert.Equal(t, "id09", res.Documents[1].ID)
	assert.Equal(t, "id07", res.Documents[2].ID)
	assert.InDelta(t, 0.9, res.Documents[0].Score(), 1e-6)
	assert.EqualValues(t, float32(0.1), res.Documents[0].MetaData[MetaDistance])
}

func TestRetrieveDefaultsAndCapsK(t *testing.T) {
	distances := map[string]float32{}
	for i, id := range ids(8) {
		distances[id] = float32(i)
	}
	store := &fakeStore{distances: distances}
	p, err := NewRetrievePipeline(store, &countingEmbedder{}, RetrieveOptions{DefaultK: 2, MaxK: 5})
	require.NoError(t, err)

	res, err := p.Retrieve(context.Background(), &RetrieveRequest{Query: "q", CandidateIDs: ids(8)})
	require.NoError(t, err)
	assert.Len(t, res.Documents, 2)

	res, err = p.Retrieve(context.Background(), &RetrieveRequest{Query: "q", K: 50, CandidateIDs: ids(8)})
	require.NoError(t, err)
	assert.Len(t, res.Documents, 5)
}

func TestRetrieveEmptyCandidatesSkipsEmbedding(t *testing.T) {
	em := &countingEmbedder{}
	store := &fakeStore{}
	p, err := NewRetrievePipeline(store, em, RetrieveOptions{})
	require.NoError(t, err)

	res, err := p.Retrieve(context.Background(), &RetrieveRequest{Query: "q"})
	require.NoError(t, err)
	assert.Empty(t, res.Documents)
	assert.Equal(t, 0, em.calls)
	assert.Empty(t, store.queries)
}

func TestRetrieveErrors(t *testing.T) {
	p, err := NewRetrievePipeline(&fakeStore{}, &countingEmbedder{}, RetrieveOptions{})
	require.NoError(t, err)
	_, err = p.Retrieve(context.Background(), &RetrieveRequest{Query: "   ", CandidateIDs: ids(1)})
	assert.ErrorIs(t, err, xerr.ErrParam)

	p, err = NewRetrievePipeline(&fakeStore{}, &countingEmbedder{err: errors.New("quota")}, RetrieveOptions{})
	require.NoError(t, err)
	_, err = p.Retrieve(context.Background(), &RetrieveRequest{Query: "q", CandidateIDs: ids(1)})
	assert.ErrorIs(t, err, index.ErrEmbedding)

	p, err = NewRetrievePipeline(&fakeStore{queryErr: errors.New("disk")}, &countingEmbedder{}, RetrieveOptions{})
	require.NoError(t, err)
	_, err = p.Retrieve(context.Background(), &RetrieveRequest{Query: "q", CandidateIDs: ids(1)})
	assert.ErrorIs(t, err, index.ErrStore)

	p, err = NewRetrievePipeline(&fakeStore{}, &countingEmbedder{}, RetrieveOptions{Dim: 8})
	require.NoError(t, err)
	_, err = p.Retrieve(context.Background(), &RetrieveRequest{Query: "q", CandidateIDs: ids(1)})
	assert.ErrorIs(t, err, index.ErrEmbedding)
}
