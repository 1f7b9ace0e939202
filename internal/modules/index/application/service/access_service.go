package service

import (
	"context"
	"errors"
	"strings"

	"ContextIndex/internal/modules/index/domain/index"
	"ContextIndex/internal/modules/index/domain/repository"
	"ContextIndex/pkg/xerr"
	"ContextIndex/pkg/zlog"

	"go.uber.org/zap"
)

type AccessService interface {
	GetUsers(ctx context.Context) ([]string, error)
	// DeclareAccess 全量替换 sourceID 的授权用户
	DeclareAccess(ctx context.Context, sourceID string, userIDs []string) error
	// UpdateAccess 增量授权/撤销；撤销后无人可见的文档会被回收
	UpdateAccess(ctx context.Context, op index.AccessOp, userIDs []string, sourceID string) error
	// UpdateAccessByProvider 对 provider 下每个文档分别执行 UpdateAccess，不保证整体原子
	UpdateAccessByProvider(ctx context.Context, op index.AccessOp, userIDs []string, provider string) (*index.AccessReport, error)
	ReconcileOrphans(ctx context.Context, sourceIDs []string) ([]string, error)
	DeleteUser(ctx context.Context, userID string) ([]string, error)
}

type accessService struct {
	uow     repository.IndexUnitOfWork
	docRepo repository.DocumentRepository
	access  repository.AccessRepository
	vs      repository.VectorStore
}

func NewAccessService(uow repository.IndexUnitOfWork, docRepo repository.DocumentRepository, access repository.AccessRepository, vs repository.VectorStore) AccessService {
	return &accessService{uow: uow, docRepo: docRepo, access: access, vs: vs}
}

func (s *accessService) GetUsers(ctx context.Context) ([]string, error) {
	users, err := s.access.ListUsers(ctx)
	if err != nil {
		return nil, index.StoreError("list users", err)
	}
	return users, nil
}

func (s *accessService) DeclareAccess(ctx context.Context, sourceID string, userIDs []string) error {
	sourceID = strings.TrimSpace(sourceID)
	if sourceID == "" {
		return xerr.Wrapf(xerr.ErrParam, "missing source_id")
	}
	var dropped []string
	err := s.uow.Transaction(ctx, func(docRepo repository.DocumentRepository, accessRepo repository.AccessRepository) error {
		chunks, err := declareTx(ctx, docRepo, accessRepo, sourceID, userIDs)
		dropped = chunks
		return err
	})
	if err != nil {
		return logAccessError("declare access", sourceID, err)
	}
	dropVectors(ctx, s.vs, dropped, "declare access")
	return nil
}

func (s *accessService) UpdateAccess(ctx context.Context, op index.AccessOp, userIDs []string, sourceID string) error {
	if !op.Valid() {
		return xerr.Wrapf(index.ErrInvalidAccessOp, "unknown op %q", op)
	}
	sourceID = strings.TrimSpace(sourceID)
	if sourceID == "" {
		return xerr.Wrapf(xerr.ErrParam, "missing source_id")
	}

	var dropped []string
	err := s.uow.Transaction(ctx, func(docRepo repository.DocumentRepository, accessRepo repository.AccessRepository) error {
		ok, err := docRepo.LockSource(ctx, sourceID)
		if err != nil {
			return err
		}
		if !ok {
			return errSourceNotFound(sourceID)
		}
		if op == index.AccessGrant {
			return accessRepo.Grant(ctx, sourceID, userIDs)
		}
		if err := accessRepo.Revoke(ctx, sourceID, userIDs); err != nil {
			return err
		}
		_, chunks, err := reconcileTx(ctx, docRepo, []string{sourceID})
		dropped = chunks
		return err
	})
	if err != nil {
		return logAccessError("update access", sourceID, err)
	}
	dropVectors(ctx, s.vs, dropped, "revoke")
	return nil
}

func (s *accessService) UpdateAccessByProvider(ctx context.Context, op index.AccessOp, userIDs []string, provider string) (*index.AccessReport, error) {
	if !op.Valid() {
		return nil, xerr.Wrapf(index.ErrInvalidAccessOp, "unknown op %q", op)
	}
	provider = strings.TrimSpace(provider)
	if provider == "" {
		return nil, xerr.Wrapf(xerr.ErrParam, "missing provider")
	}
	sourceIDs, err := s.docRepo.SourceIDsByProvider(ctx, provider)
	if err != nil {
		return nil, index.StoreError("list provider sources", err)
	}

	report := &index.AccessReport{Succeeded: []string{}, Failed: map[string]string{}}
	for i, sourceID := range sourceIDs {
		if err := ctx.Err(); err != nil {
			for _, rest := range sourceIDs[i:] {
				report.Failed[rest] = err.Error()
			}
			return report, err
		}
		if err := s.UpdateAccess(ctx, op, userIDs, sourceID); err != nil {
			report.Failed[sourceID] = err.Error()
			continue
		}
		report.Succeeded = append(report.Succeeded, sourceID)
	}
	zlog.Info("provider access updated",
		zap.String("provider", provider),
		zap.String("op", string(op)),
		zap.Int("succeeded", len(report.Succeeded)),
		zap.Int("failed", len(report.Failed)),
	)
	return report, nil
}

func (s *accessService) ReconcileOrphans(ctx context.Context, sourceIDs []string) ([]string, error) {
	var deleted, dropped []string
	err := s.uow.Transaction(ctx, func(docRepo repository.DocumentRepository, _ repository.AccessRepository) error {
		var err error
		deleted, dropped, err = reconcileTx(ctx, docRepo, sourceIDs)
		return err
	})
	if err != nil {
		return nil, index.StoreError("reconcile orphans", err)
	}
	dropVectors(ctx, s.vs, dropped, "reconcile orphans")
	return deleted, nil
}

func (s *accessService) DeleteUser(ctx context.Context, userID string) ([]string, error) {
	userID = strings.TrimSpace(userID)
	if userID == "" {
		return nil, xerr.Wrapf(xerr.ErrParam, "missing user_id")
	}
	var deleted, dropped []string
	err := s.uow.Transaction(ctx, func(docRepo repository.DocumentRepository, accessRepo repository.AccessRepository) error {
		affected, err := accessRepo.DeleteByUser(ctx, userID)
		if err != nil {
			return err
		}
		deleted, dropped, err = reconcileTx(ctx, docRepo, affected)
		return err
	})
	if err != nil {
		return nil, index.StoreError("delete user", err)
	}
	dropVectors(ctx, s.vs, dropped, "delete user")
	zlog.Info("user deleted", zap.String("user_id", userID), zap.Int("orphaned_docs", len(deleted)))
	return deleted, nil
}

// logAccessError 可恢复错误记 info，其余记 error 并包装为存储错误
func logAccessError(op, sourceID string, err error) error {
	if index.IsRecoverable(err) {
		zlog.Info(op+" skipped", zap.String("source_id", sourceID), zap.Error(err))
		return err
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return err
	}
	zlog.Error(op+" failed", zap.String("source_id", sourceID), zap.Error(err))
	return index.StoreError(op, err)
}
