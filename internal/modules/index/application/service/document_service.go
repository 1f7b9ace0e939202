package service

import (
	"context"
	"strings"

	"ContextIndex/internal/modules/index/domain/index"
	"ContextIndex/internal/modules/index/domain/repository"
	"ContextIndex/pkg/util"
	"ContextIndex/pkg/xerr"
	"ContextIndex/pkg/zlog"

	"go.uber.org/zap"
)

type DocumentService interface {
	// DeleteSourceIDs 删除文档及其授权，返回被删除的 chunk 数
	DeleteSourceIDs(ctx context.Context, sourceIDs []string) (int, error)
	DeleteProvider(ctx context.Context, provider string) (int, error)
	CountDocumentsByProvider(ctx context.Context) (map[string]int64, error)
}

type documentService struct {
	uow     repository.IndexUnitOfWork
	docRepo repository.DocumentRepository
	vs      repository.VectorStore
}

func NewDocumentService(uow repository.IndexUnitOfWork, docRepo repository.DocumentRepository, vs repository.VectorStore) DocumentService {
	return &documentService{uow: uow, docRepo: docRepo, vs: vs}
}

func (s *documentService) DeleteSourceIDs(ctx context.Context, sourceIDs []string) (int, error) {
	ids := util.UniqueStrings(sourceIDs)
	if len(ids) == 0 {
		return 0, nil
	}
	var chunks []string
	err := s.uow.Transaction(ctx, func(docRepo repository.DocumentRepository, _ repository.AccessRepository) error {
		var err error
		chunks, err = docRepo.DeleteBySourceIDs(ctx, ids)
		return err
	})
	if err != nil {
		return 0, index.StoreError("delete sources", err)
	}
	dropVectors(ctx, s.vs, chunks, "delete sources")
	zlog.Info("sources deleted", zap.Int("sources", len(ids)), zap.Int("chunks", len(chunks)))
	return len(chunks), nil
}

func (s *documentService) DeleteProvider(ctx context.Context, provider string) (int, error) {
	provider = strings.TrimSpace(provider)
	if provider == "" {
		return 0, xerr.Wrapf(xerr.ErrParam, "missing provider")
	}
	var chunks []string
	err := s.uow.Transaction(ctx, func(docRepo repository.DocumentRepository, _ repository.AccessRepository) error {
		var err error
		chunks, err = docRepo.DeleteByProvider(ctx, provider)
		return err
	})
	if err != nil {
		return 0, index.StoreError("delete provider", err)
	}
	dropVectors(ctx, s.vs, chunks, "delete provider")
	zlog.Info("provider deleted", zap.String("provider", provider), zap.Int("chunks", len(chunks)))
	return len(chunks), nil
}

func (s *documentService) CountDocumentsByProvider(ctx context.Context) (map[string]int64, error) {
	counts, err := s.docRepo.CountByProvider(ctx)
	if err != nil {
		return nil, index.StoreError("count by provider", err)
	}
	return counts, nil
}
