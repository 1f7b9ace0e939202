package persistence

import (
	"context"
	"errors"

	"ContextIndex/internal/modules/index/domain/index"
	"ContextIndex/internal/modules/index/domain/repository"
	"ContextIndex/pkg/util"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type documentRepositoryImpl struct {
	db *gorm.DB
	// batch 为单条 IN 语句允许携带的 id 数
	batch int
}

func NewDocumentRepository(db *gorm.DB, paramLimit int) repository.DocumentRepository {
	return &documentRepositoryImpl{db: db, batch: paramLimit}
}

// Upsert 先锁旧行再更新，不存在时插入
func (r *documentRepositoryImpl) Upsert(ctx context.Context, doc *index.Document) ([]string, error) {
	doc.Modified = index.NormalizeModified(doc.Modified)
	if doc.Chunks == nil {
		doc.Chunks = []string{}
	}

	var existing index.Document
	err := r.db.WithContext(ctx).
		Clauses(clause.Locking{Strength: "UPDATE"}).
		Select("source_id", "chunks").
		Where("source_id = ?", doc.SourceID).
		Take(&existing).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, r.db.WithContext(ctx).Omit(clause.Associations).Create(doc).Error
	}
	if err != nil {
		return nil, err
	}

	err = r.db.WithContext(ctx).
		Model(&index.Document{SourceID: doc.SourceID}).
		Select("provider", "modified", "chunks").
		Updates(doc).Error
	if err != nil {
		return nil, err
	}
	return replacedChunks(existing.Chunks, doc.Chunks), nil
}

func (r *documentRepositoryImpl) LockSource(ctx context.Context, sourceID string) (bool, error) {
	var ids []string
	err := r.db.WithContext(ctx).
		Model(&index.Document{}).
		Clauses(clause.Locking{Strength: "UPDATE"}).
		Where("source_id = ?", sourceID).
		Pluck("source_id", &ids).Error
	if err != nil {
		return false, err
	}
	return len(ids) > 0, nil
}

func (r *documentRepositoryImpl) Get(ctx context.Context, sourceID string) (*index.Document, error) {
	var d index.Document
	err := r.db.WithContext(ctx).Where("source_id = ?", sourceID).Take(&d).Error
	if err == nil {
		return &d, nil
	}
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	return nil, err
}

func (r *documentRepositoryImpl) FindStale(ctx context.Context, candidates []index.SourceCandidate) (*index.StaleResult, error) {
	res := &index.StaleResult{Existing: []string{}, ToEmbed: []string{}, ToDelete: []string{}}
	if len(candidates) == 0 {
		return res, nil
	}

	ids := make([]string, 0, len(candidates))
	for _, c := range candidates {
		ids = append(ids, c.SourceID)
	}

	stored := make(map[string]index.Document, len(candidates))
	for _, batch := range util.Partition(ids, r.batch) {
		var rows []index.Document
		err := r.db.WithContext(ctx).
			Clauses(clause.Locking{Strength: "UPDATE"}).
			Select("source_id", "modified").
			Where("source_id IN ?", batch).
			Find(&rows).Error
		if err != nil {
			return nil, err
		}
		for _, row := range rows {
			stored[row.SourceID] = row
		}
	}

	for _, c := range candidates {
		row, ok := stored[c.SourceID]
		if !ok {
			res.ToEmbed = append(res.ToEmbed, c.SourceID)
			continue
		}
		res.Existing = append(res.Existing, c.SourceID)
		if index.IsOlder(row.Modified, c.Modified) {
			res.ToEmbed = append(res.ToEmbed, c.SourceID)
			res.ToDelete = append(res.ToDelete, c.SourceID)
		}
	}
	return res, nil
}

func (r *documentRepositoryImpl) FindOrphaned(ctx context.Context, sourceIDs []string) ([]string, error) {
	out := make([]string, 0)
	for _, batch := range util.Partition(util.UniqueStrings(sourceIDs), r.batch) {
		var ids []string
		err := r.db.WithContext(ctx).
			Model(&index.Document{}).
			Where("source_id IN ?", batch).
			Where("NOT EXISTS (SELECT 1 FROM access_list WHERE access_list.source_id = docs.source_id)").
			Pluck("source_id", &ids).Error
		if err != nil {
			return nil, err
		}
		out = append(out, ids...)
	}
	return out, nil
}

func (r *documentRepositoryImpl) DeleteBySourceIDs(ctx context.Context, sourceIDs []string) ([]string, error) {
	chunks := make([]string, 0)
	for _, batch := range util.Partition(util.UniqueStrings(sourceIDs), r.batch) {
		var rows []index.Document
		err := r.db.WithContext(ctx).
			Clauses(clause.Locking{Strength: "UPDATE"}).
			Select("source_id", "chunks").
			Where("source_id IN ?", batch).
			Find(&rows).Error
		if err != nil {
			return nil, err
		}
		if len(rows) == 0 {
			continue
		}
		if err := r.db.WithContext(ctx).Where("source_id IN ?", batch).Delete(&index.Document{}).Error; err != nil {
			return nil, err
		}
		for _, row := range rows {
			chunks = append(chunks, row.Chunks...)
		}
	}
	return chunks, nil
}

func (r *documentRepositoryImpl) DeleteByProvider(ctx context.Context, provider string) ([]string, error) {
	var rows []index.Document
	err := r.db.WithContext(ctx).
		Clauses(clause.Locking{Strength: "UPDATE"}).
		Select("source_id", "chunks").
		Where("provider = ?", provider).
		Find(&rows).Error
	if err != nil {
		return nil, err
	}
	if len(rows) == 0 {
		return []string{}, nil
	}
	if err := r.db.WithContext(ctx).Where("provider = ?", provider).Delete(&index.Document{}).Error; err != nil {
		return nil, err
	}
	chunks := make([]string, 0)
	for _, row := range rows {
		chunks = append(chunks, row.Chunks...)
	}
	return chunks, nil
}

func (r *documentRepositoryImpl) SourceIDsByProvider(ctx context.Context, provider string) ([]string, error) {
	var ids []string
	err := r.db.WithContext(ctx).
		Model(&index.Document{}).
		Where("provider = ?", provider).
		Order("source_id").
		Pluck("source_id", &ids).Error
	return ids, err
}

func (r *documentRepositoryImpl) CountByProvider(ctx context.Context) (map[string]int64, error) {
	var rows []struct {
		Provider string
		Total    int64
	}
	err := r.db.WithContext(ctx).
		Model(&index.Document{}).
		Select("provider, COUNT(*) AS total").
		Group("provider").
		Scan(&rows).Error
	if err != nil {
		return nil, err
	}
	out := make(map[string]int64, len(rows))
	for _, row := range rows {
		out[row.Provider] = row.Total
	}
	return out, nil
}

func (r *documentRepositoryImpl) VisibleChunkIDs(ctx context.Context, userID string, scope *index.Scope) ([]string, error) {
	base := func() *gorm.DB {
		return r.db.WithContext(ctx).
			Model(&index.Document{}).
			Select("docs.source_id", "docs.chunks").
			Joins("JOIN access_list ON access_list.source_id = docs.source_id").
			Where("access_list.uid = ?", userID)
	}

	var docs []index.Document
	if scope == nil {
		if err := base().Find(&docs).Error; err != nil {
			return nil, err
		}
	} else {
		column := "docs.provider"
		if scope.Type == index.ScopeSource {
			column = "docs.source_id"
		}
		for _, batch := range util.Partition(util.UniqueStrings(scope.Values), r.batch) {
			var part []index.Document
			if err := base().Where(column+" IN ?", batch).Find(&part).Error; err != nil {
				return nil, err
			}
			docs = append(docs, part...)
		}
	}

	ids := make([]string, 0)
	for _, d := range docs {
		ids = append(ids, d.Chunks...)
	}
	return util.UniqueStrings(ids), nil
}

func (r *documentRepositoryImpl) ForEachChunkID(ctx context.Context, batchSize int, fn func(chunkIDs []string) error) error {
	if batchSize <= 0 {
		batchSize = 500
	}
	var docs []index.Document
	return r.db.WithContext(ctx).
		Select("source_id", "chunks").
		FindInBatches(&docs, batchSize, func(tx *gorm.DB, _ int) error {
			ids := make([]string, 0)
			for _, d := range docs {
				ids = append(ids, d.Chunks...)
			}
			return fn(ids)
		}).Error
}

// replacedChunks 旧 chunk 中不再被新列表引用的部分
func replacedChunks(old, current []string) []string {
	if len(old) == 0 {
		return nil
	}
	keep := make(map[string]struct{}, len(current))
	for _, id := range current {
		keep[id] = struct{}{}
	}
	out := make([]string, 0, len(old))
	for _, id := range old {
		if _, ok := keep[id]; !ok {
			out = append(out, id)
		}
	}
	return out
}
