package queue

import (
	"context"
	"errors"
	"time"

	"ContextIndex/internal/modules/index/domain/repository"
	"ContextIndex/pkg/zlog"

	"go.uber.org/zap"
)

// OrphanChunkCollector 删除向量引擎里没有任何文档引用的 chunk。
// 只处理写入时间早于 grace 的 chunk，避免误删尚未提交 upsert 的摄取结果。
type OrphanChunkCollector struct {
	docRepo   repository.DocumentRepository
	lister    repository.ChunkLister
	vs        repository.VectorStore
	interval  time.Duration
	grace     time.Duration
	batchSize int
	now       func() time.Time
}

func NewOrphanChunkCollector(docRepo repository.DocumentRepository, lister repository.ChunkLister, vs repository.VectorStore, interval, grace time.Duration, batchSize int) *OrphanChunkCollector {
	if interval <= 0 {
		interval = 10 * time.Minute
	}
	if grace <= 0 {
		grace = 30 * time.Minute
	}
	if batchSize <= 0 {
		batchSize = 1000
	}
	return &OrphanChunkCollector{
		docRepo:   docRepo,
		lister:    lister,
		vs:        vs,
		interval:  interval,
		grace:     grace,
		batchSize: batchSize,
		now:       time.Now,
	}
}

func (c *OrphanChunkCollector) Run(ctx context.Context) error {
	if c.docRepo == nil || c.lister == nil || c.vs == nil {
		return errors.New("orphan collector not configured")
	}

	wait := c.interval
	for {
		t := time.NewTimer(wait)
		select {
		case <-ctx.Done():
			t.Stop()
			return ctx.Err()
		case <-t.C:
		}

		n, err := c.RunOnce(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			zlog.Warn("orphan chunk gc failed", zap.Duration("retry_in", wait), zap.Error(err))
			wait *= 2
			if wait > 4*c.interval {
				wait = 4 * c.interval
			}
			continue
		}
		wait = c.interval
		if n > 0 {
			zlog.Info("orphan chunk gc done", zap.Int("deleted", n))
		}
	}
}

// RunOnce 执行一轮回收，返回删除的 chunk 数
func (c *OrphanChunkCollector) RunOnce(ctx context.Context) (int, error) {
	cutoff := c.now().Add(-c.grace)

	referenced := make(map[string]struct{})
	err := c.docRepo.ForEachChunkID(ctx, c.batchSize, func(ids []string) error {
		for _, id := range ids {
			referenced[id] = struct{}{}
		}
		return nil
	})
	if err != nil {
		return 0, err
	}

	deleted := 0
	after := ""
	for {
		ids, err := c.lister.ListChunkIDs(ctx, cutoff, after, c.batchSize)
		if err != nil {
			return deleted, err
		}
		if len(ids) == 0 {
			return deleted, nil
		}
		orphans := make([]string, 0)
		for _, id := range ids {
			if _, ok := referenced[id]; !ok {
				orphans = append(orphans, id)
			}
		}
		if len(orphans) > 0 {
			if err := c.vs.DeleteByIDs(ctx, orphans); err != nil {
				return deleted, err
			}
			deleted += len(orphans)
		}
		if len(ids) < c.batchSize {
			return deleted, nil
		}
		after = ids[len(ids)-1]
	}
}
