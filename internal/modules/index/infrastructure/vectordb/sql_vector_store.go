package vectordb

import (
	"context"
	"errors"
	"fmt"
	"math"
	"sort"
	"strings"
	"time"

	"ContextIndex/internal/config"
	"ContextIndex/internal/modules/index/domain/index"
	"ContextIndex/internal/modules/index/domain/repository"
	"ContextIndex/pkg/util"
	"ContextIndex/pkg/xerr"

	"github.com/cloudwego/eino/components/embedding"
	"github.com/viant/vec/search"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

const (
	MetricCosine = "cosine"
	MetricL2     = "l2"
)

// SQLVectorStore 把 chunk 向量存放在与索引同一个关系库中，排序交给 viant/vec 的距离函数。
type SQLVectorStore struct {
	db         *gorm.DB
	embedder   embedding.Embedder
	collection string
	dim        int
	metric     string
	// paramLimit 单条语句参数上限（已按方言压到安全值），chunk 行占 insertColumns 个参数
	paramLimit    int
	insertColumns int
}

var _ repository.VectorStore = (*SQLVectorStore)(nil)
var _ repository.ChunkLister = (*SQLVectorStore)(nil)

type SQLVectorStoreConfig struct {
	Collection    string
	Dim           int
	Metric        string
	ParamLimit    int
	InsertColumns int
}

func NewSQLVectorStore(db *gorm.DB, embedder embedding.Embedder, cfg SQLVectorStoreConfig) (*SQLVectorStore, error) {
	if db == nil {
		return nil, errors.New("gorm db is nil")
	}
	if embedder == nil {
		return nil, errors.New("embedder is nil")
	}
	if strings.TrimSpace(cfg.Collection) == "" {
		return nil, errors.New("collection is empty")
	}
	metric := strings.ToLower(strings.TrimSpace(cfg.Metric))
	switch metric {
	case "", MetricCosine:
		metric = MetricCosine
	case MetricL2, "euclidean":
		metric = MetricL2
	default:
		return nil, fmt.Errorf("unsupported metric: %s", cfg.Metric)
	}
	cfg.ParamLimit = config.ClampParamLimit(db.Dialector.Name(), cfg.ParamLimit)
	cols, err := chunkColumns(db)
	if err != nil {
		return nil, err
	}
	if cfg.InsertColumns < cols {
		cfg.InsertColumns = cols
	}
	return &SQLVectorStore{
		db:            db,
		embedder:      embedder,
		collection:    strings.TrimSpace(cfg.Collection),
		dim:           cfg.Dim,
		metric:        metric,
		paramLimit:    cfg.ParamLimit,
		insertColumns: cfg.InsertColumns,
	}, nil
}

// ResolveCollection 按名称取集合，不存在时创建
func (s *SQLVectorStore) ResolveCollection(ctx context.Context) (*repository.Collection, error) {
	c := VectorCollection{
		Id:        util.GenerateShortUUID(),
		Name:      s.collection,
		Dim:       s.dim,
		Metric:    s.metric,
		CreatedAt: time.Now().UTC(),
	}
	err := s.db.WithContext(ctx).Clauses(clause.OnConflict{DoNothing: true}).Create(&c).Error
	if err != nil {
		return nil, err
	}
	var existing VectorCollection
	if err := s.db.WithContext(ctx).Where("name = ?", s.collection).Take(&existing).Error; err != nil {
		return nil, err
	}
	return &repository.Collection{ID: existing.Id, Name: existing.Name, Dim: existing.Dim, Metric: existing.Metric}, nil
}

func (s *SQLVectorStore) Insert(ctx context.Context, chunks []index.Chunk) ([]string, error) {
	if len(chunks) == 0 {
		return []string{}, nil
	}
	coll, err := s.ResolveCollection(ctx)
	if err != nil {
		return nil, err
	}

	texts := make([]string, 0, len(chunks))
	for _, c := range chunks {
		texts = append(texts, c.Content)
	}
	vecs, err := embedTexts(ctx, s.embedder, texts, s.dim)
	if err != nil {
		return nil, err
	}

	now := time.Now().UTC()
	rows := make([]VectorChunk, 0, len(chunks))
	ids := make([]string, 0, len(chunks))
	for i, c := range chunks {
		id := util.GenerateUUID()
		ids = append(ids, id)
		rows = append(rows, VectorChunk{
			Id:           id,
			CollectionId: coll.ID,
			Content:      c.Content,
			Embedding:    vecs[i],
			Metadata:     c.Metadata,
			CreatedAt:    now,
		})
	}

	size := s.paramLimit / s.insertColumns
	if size <= 0 {
		size = 1
	}
	if err := s.db.WithContext(ctx).CreateInBatches(&rows, size).Error; err != nil {
		return nil, err
	}
	return ids, nil
}

func (s *SQLVectorStore) DeleteByIDs(ctx context.Context, ids []string) error {
	for _, batch := range util.Partition(ids, s.paramLimit) {
		if err := s.db.WithContext(ctx).Where("id IN ?", batch).Delete(&VectorChunk{}).Error; err != nil {
			return err
		}
	}
	return nil
}

func (s *SQLVectorStore) Query(ctx context.Context, coll *repository.Collection, candidateIDs []string, vector []float32, limit int) ([]repository.VectorSearchHit, error) {
	if coll == nil {
		return nil, errors.New("collection is nil")
	}
	if len(candidateIDs) == 0 || limit <= 0 {
		return []repository.VectorSearchHit{}, nil
	}

	// collection_id 占一个参数
	var rows []VectorChunk
	for _, batch := range util.Partition(candidateIDs, max(s.paramLimit-1, 1)) {
		var part []VectorChunk
		err := s.db.WithContext(ctx).
			Where("collection_id = ? AND id IN ?", coll.ID, batch).
			Find(&part).Error
		if err != nil {
			return nil, err
		}
		rows = append(rows, part...)
	}

	distance := s.distanceFunc(vector)
	hits := make([]repository.VectorSearchHit, 0, len(rows))
	for _, row := range rows {
		if len(row.Embedding) != len(vector) {
			continue
		}
		hits = append(hits, repository.VectorSearchHit{
			ID:       row.Id,
			Content:  row.Content,
			Metadata: row.Metadata,
			Distance: distance(row.Embedding),
		})
	}
	return rankHits(hits, limit), nil
}

// rankHits 距离升序（相同距离按 id），截断到 limit
func rankHits(hits []repository.VectorSearchHit, limit int) []repository.VectorSearchHit {
	sort.SliceStable(hits, func(i, j int) bool {
		if hits[i].Distance == hits[j].Distance {
			return hits[i].ID < hits[j].ID
		}
		return hits[i].Distance < hits[j].Distance
	})
	if len(hits) > limit {
		hits = hits[:limit]
	}
	if hits == nil {
		hits = []repository.VectorSearchHit{}
	}
	return hits
}

// ListChunkIDs 按 id 升序分页，只返回 olderThan 之前写入的 chunk
func (s *SQLVectorStore) ListChunkIDs(ctx context.Context, olderThan time.Time, afterID string, limit int) ([]string, error) {
	if limit <= 0 {
		limit = 1000
	}
	var ids []string
	err := s.db.WithContext(ctx).
		Model(&VectorChunk{}).
		Where("created_at < ? AND id > ?", olderThan.UTC(), afterID).
		Order("id").
		Limit(limit).
		Pluck("id", &ids).Error
	return ids, err
}

func (s *SQLVectorStore) distanceFunc(query []float32) func([]float32) float32 {
	q := search.Float32s(query)
	if s.metric == MetricL2 {
		return func(v []float32) float32 {
			return q.EuclideanDistance(v)
		}
	}
	if q.Magnitude() == 0 {
		return func([]float32) float32 { return 1 }
	}
	return func(v []float32) float32 {
		if search.Float32s(v).Magnitude() == 0 {
			return 1
		}
		d := q.CosineDistance(v)
		if math.IsNaN(float64(d)) {
			return 1
		}
		return d
	}
}

// chunkColumns vector_chunk 一行写入时绑定的参数个数
func chunkColumns(db *gorm.DB) (int, error) {
	stmt := &gorm.Statement{DB: db}
	if err := stmt.Parse(&VectorChunk{}); err != nil {
		return 0, err
	}
	return len(stmt.Schema.DBNames), nil
}

// embedTexts 调用 embedder 并转换为 float32；dim > 0 时校验维度
func embedTexts(ctx context.Context, embedder embedding.Embedder, texts []string, dim int) ([][]float32, error) {
	vecs, err := embedder.EmbedStrings(ctx, texts)
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, xerr.Wrap(index.ErrEmbedding, err)
	}
	if len(vecs) != len(texts) {
		return nil, xerr.Wrapf(index.ErrEmbedding, "embedding count mismatch: got=%d want=%d", len(vecs), len(texts))
	}
	out := make([][]float32, 0, len(vecs))
	for _, v := range vecs {
		if dim > 0 && len(v) != dim {
			return nil, xerr.Wrapf(index.ErrEmbedding, "embedding dim mismatch: got=%d want=%d", len(v), dim)
		}
		out = append(out, toFloat32(v))
	}
	return out, nil
}

func toFloat32(v []float64) []float32 {
	out := make([]float32, len(v))
	for i := range v {
		out[i] = float32(v[i])
	}
	return out
}
