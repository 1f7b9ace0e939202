package service

import (
	"context"

	"ContextIndex/internal/modules/index/domain/repository"
	"ContextIndex/pkg/zlog"

	"go.uber.org/zap"
)

// dropVectors 关系库提交后再删除向量；失败只记日志，残留 chunk 由孤儿回收处理
func dropVectors(ctx context.Context, vs repository.VectorStore, chunkIDs []string, reason string) {
	if len(chunkIDs) == 0 {
		return
	}
	if err := vs.DeleteByIDs(context.WithoutCancel(ctx), chunkIDs); err != nil {
		zlog.Warn("vector delete failed, chunks left for gc",
			zap.String("reason", reason),
			zap.Int("chunks", len(chunkIDs)),
			zap.Error(err),
		)
		return
	}
	zlog.Debug("vector chunks deleted", zap.String("reason", reason), zap.Int("chunks", len(chunkIDs)))
}

// reconcileTx 在事务内删除没有任何授权的文档，返回被删文档与其 chunk
func reconcileTx(ctx context.Context, docRepo repository.DocumentRepository, sourceIDs []string) ([]string, []string, error) {
	if len(sourceIDs) == 0 {
		return []string{}, []string{}, nil
	}
	orphans, err := docRepo.FindOrphaned(ctx, sourceIDs)
	if err != nil {
		return nil, nil, err
	}
	if len(orphans) == 0 {
		return []string{}, []string{}, nil
	}
	chunks, err := docRepo.DeleteBySourceIDs(ctx, orphans)
	if err != nil {
		return nil, nil, err
	}
	return orphans, chunks, nil
}

// declareTx 全量替换授权：先锁文档，再清空并重建；用户列表为空时文档成为孤儿被一并回收
func declareTx(ctx context.Context, docRepo repository.DocumentRepository, accessRepo repository.AccessRepository, sourceID string, userIDs []string) ([]string, error) {
	ok, err := docRepo.LockSource(ctx, sourceID)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, errSourceNotFound(sourceID)
	}
	if err := accessRepo.DeleteBySource(ctx, sourceID); err != nil {
		return nil, err
	}
	if err := accessRepo.Grant(ctx, sourceID, userIDs); err != nil {
		return nil, err
	}
	_, chunks, err := reconcileTx(ctx, docRepo, []string{sourceID})
	return chunks, err
}
