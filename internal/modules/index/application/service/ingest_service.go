package service

import (
	"context"
	"errors"
	"time"

	"ContextIndex/internal/modules/index/domain/index"
	"ContextIndex/internal/modules/index/domain/repository"
	"ContextIndex/pkg/util"
	"ContextIndex/pkg/xerr"
	"ContextIndex/pkg/zlog"

	"go.uber.org/zap"
)

type IngestService interface {
	// AddDocuments 逐文档摄取，返回成功与需要重试的 source_id；ctx 取消时中止并返回错误
	AddDocuments(ctx context.Context, docs []index.InDocument) (added []string, retry []string, err error)
	// CheckSources 判断哪些文档需要重新向量化，并在行锁下删除过期文档
	CheckSources(ctx context.Context, candidates []index.SourceCandidate) (*index.SourceCheckResult, error)
}

// ChunkSplitter 在向量化之前重新整理 chunk，例如拆开超长的 chunk
type ChunkSplitter interface {
	Split(ctx context.Context, chunks []index.Chunk) ([]index.Chunk, error)
}

type IngestOption func(*ingestService)

func WithChunkSplitter(sp ChunkSplitter) IngestOption {
	return func(s *ingestService) { s.splitter = sp }
}

type ingestService struct {
	uow         repository.IndexUnitOfWork
	vs          repository.VectorStore
	insertBatch int
	splitter    ChunkSplitter
}

func NewIngestService(uow repository.IndexUnitOfWork, vs repository.VectorStore, insertBatch int, opts ...IngestOption) IngestService {
	if insertBatch <= 0 {
		insertBatch = 1
	}
	s := &ingestService{uow: uow, vs: vs, insertBatch: insertBatch}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *ingestService) AddDocuments(ctx context.Context, docs []index.InDocument) ([]string, []string, error) {
	start := time.Now()
	added := make([]string, 0, len(docs))
	retry := make([]string, 0)

	for i := range docs {
		doc := &docs[i]
		if err := ctx.Err(); err != nil {
			retry = appendSourceIDs(retry, docs[i:])
			return added, retry, err
		}
		if err := doc.Validate(); err != nil {
			zlog.Warn("invalid document rejected", zap.String("source_id", doc.SourceID), zap.Error(err))
			retry = append(retry, doc.SourceID)
			continue
		}

		err := s.addOne(ctx, doc)
		switch {
		case err == nil:
			added = append(added, doc.SourceID)
		case ctx.Err() != nil:
			retry = appendSourceIDs(retry, docs[i:])
			return added, retry, ctx.Err()
		case index.IsRecoverable(err):
			zlog.Info("document queued for retry", zap.String("source_id", doc.SourceID), zap.Error(err))
			retry = append(retry, doc.SourceID)
		default:
			zlog.Error("document ingest failed", zap.String("source_id", doc.SourceID), zap.Error(err))
			retry = append(retry, doc.SourceID)
		}
	}

	zlog.Info("add documents done",
		zap.Int("total", len(docs)),
		zap.Int("added", len(added)),
		zap.Int("retry", len(retry)),
		zap.Int64("duration_ms", time.Since(start).Milliseconds()),
	)
	return added, retry, nil
}

// addOne 写向量 → 事务一 upsert 文档 → 事务二声明授权
func (s *ingestService) addOne(ctx context.Context, doc *index.InDocument) error {
	chunks := doc.Chunks
	if s.splitter != nil {
		var err error
		if chunks, err = s.splitter.Split(ctx, chunks); err != nil {
			return xerr.Wrap(index.ErrInvalidDocument, err)
		}
	}

	chunkIDs := make([]string, 0, len(chunks))
	for _, batch := range util.Partition(chunks, s.insertBatch) {
		ids, err := s.vs.Insert(ctx, batch)
		if err != nil {
			dropVectors(ctx, s.vs, chunkIDs, "insert aborted")
			return index.StoreError("insert chunks", err)
		}
		chunkIDs = append(chunkIDs, ids...)
	}

	var replaced []string
	err := s.uow.Transaction(ctx, func(docRepo repository.DocumentRepository, _ repository.AccessRepository) error {
		var err error
		replaced, err = docRepo.Upsert(ctx, &index.Document{
			SourceID: doc.SourceID,
			Provider: doc.Provider,
			Modified: doc.Modified,
			Chunks:   chunkIDs,
		})
		return err
	})
	if err != nil {
		dropVectors(ctx, s.vs, chunkIDs, "upsert aborted")
		return index.StoreError("upsert document", err)
	}
	dropVectors(ctx, s.vs, replaced, "document replaced")

	var dropped []string
	err = s.uow.Transaction(ctx, func(docRepo repository.DocumentRepository, accessRepo repository.AccessRepository) error {
		var err error
		dropped, err = declareTx(ctx, docRepo, accessRepo, doc.SourceID, doc.UserIDs)
		return err
	})
	if err != nil {
		return index.StoreError("declare access", err)
	}
	dropVectors(ctx, s.vs, dropped, "declare access")
	return nil
}

func (s *ingestService) CheckSources(ctx context.Context, candidates []index.SourceCandidate) (*index.SourceCheckResult, error) {
	candidates = uniqueCandidates(candidates)

	var stale *index.StaleResult
	var dropped []string
	err := s.uow.Transaction(ctx, func(docRepo repository.DocumentRepository, _ repository.AccessRepository) error {
		var err error
		stale, err = docRepo.FindStale(ctx, candidates)
		if err != nil {
			return err
		}
		dropped, err = docRepo.DeleteBySourceIDs(ctx, stale.ToDelete)
		return err
	})
	if err != nil {
		if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			return nil, err
		}
		return nil, index.StoreError("check sources", err)
	}
	dropVectors(ctx, s.vs, dropped, "stale sources")

	toDelete := make(map[string]struct{}, len(stale.ToDelete))
	for _, id := range stale.ToDelete {
		toDelete[id] = struct{}{}
	}
	current := make([]string, 0, len(stale.Existing))
	for _, id := range stale.Existing {
		if _, ok := toDelete[id]; !ok {
			current = append(current, id)
		}
	}
	return &index.SourceCheckResult{
		StillCurrent: current,
		ToEmbed:      stale.ToEmbed,
		ToDelete:     stale.ToDelete,
	}, nil
}

// uniqueCandidates 同一 source_id 只保留最新的 modified
func uniqueCandidates(candidates []index.SourceCandidate) []index.SourceCandidate {
	pos := make(map[string]int, len(candidates))
	out := make([]index.SourceCandidate, 0, len(candidates))
	for _, c := range candidates {
		if c.SourceID == "" {
			continue
		}
		if i, ok := pos[c.SourceID]; ok {
			if c.Modified.After(out[i].Modified) {
				out[i].Modified = c.Modified
			}
			continue
		}
		pos[c.SourceID] = len(out)
		out = append(out, c)
	}
	return out
}

func appendSourceIDs(dst []string, docs []index.InDocument) []string {
	for _, d := range docs {
		dst = append(dst, d.SourceID)
	}
	return dst
}
