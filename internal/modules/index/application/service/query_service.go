package service

import (
	"context"
	"strings"

	"ContextIndex/internal/modules/index/domain/index"
	"ContextIndex/internal/modules/index/domain/repository"
	"ContextIndex/internal/modules/index/infrastructure/pipeline"
	"ContextIndex/pkg/xerr"

	"github.com/cloudwego/eino/schema"
)

type QueryService interface {
	// Search 只在 user 可见的 chunk 中检索，按距离升序返回
	Search(ctx context.Context, req index.SearchRequest) ([]*schema.Document, error)
}

type queryService struct {
	docRepo  repository.DocumentRepository
	retrieve *pipeline.RetrievePipeline
}

func NewQueryService(docRepo repository.DocumentRepository, retrieve *pipeline.RetrievePipeline) QueryService {
	return &queryService{docRepo: docRepo, retrieve: retrieve}
}

func (s *queryService) Search(ctx context.Context, req index.SearchRequest) ([]*schema.Document, error) {
	userID := strings.TrimSpace(req.UserID)
	if userID == "" {
		return nil, xerr.Wrapf(xerr.ErrParam, "missing user_id")
	}
	if strings.TrimSpace(req.Query) == "" {
		return nil, xerr.Wrapf(xerr.ErrParam, "query is empty")
	}
	if err := req.Scope.Validate(); err != nil {
		return nil, err
	}

	candidates, err := s.docRepo.VisibleChunkIDs(ctx, userID, req.Scope)
	if err != nil {
		return nil, index.StoreError("visible chunks", err)
	}
	res, err := s.retrieve.Retrieve(ctx, &pipeline.RetrieveRequest{
		Query:        req.Query,
		K:            req.K,
		CandidateIDs: candidates,
	})
	if err != nil {
		return nil, err
	}
	return res.Documents, nil
}
