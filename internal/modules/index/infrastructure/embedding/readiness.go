package embedding

import (
	"context"
	"time"

	"ContextIndex/internal/modules/index/domain/index"
	"ContextIndex/pkg/xerr"
	"ContextIndex/pkg/zlog"

	"github.com/cloudwego/eino/components/embedding"
	"go.uber.org/zap"
)

const readinessProbe = "ready"

// WaitReady 启动时探测 embedder 是否可用，最多尝试 attempts 次
func WaitReady(ctx context.Context, embedder embedding.Embedder, attempts int, interval time.Duration) error {
	if attempts <= 0 {
		attempts = 1
	}
	var lastErr error
	for i := 1; i <= attempts; i++ {
		vecs, err := embedder.EmbedStrings(ctx, []string{readinessProbe})
		if err == nil && len(vecs) == 1 && len(vecs[0]) > 0 {
			if i > 1 {
				zlog.Info("embedder ready", zap.Int("attempt", i))
			}
			return nil
		}
		if err == nil {
			err = xerr.Wrapf(index.ErrEmbedding, "embedder returned empty vector")
		}
		lastErr = err
		zlog.Warn("embedder not ready", zap.Int("attempt", i), zap.Int("attempts", attempts), zap.Error(err))

		if i == attempts {
			break
		}
		t := time.NewTimer(interval)
		select {
		case <-ctx.Done():
			t.Stop()
			return ctx.Err()
		case <-t.C:
		}
	}
	return xerr.Wrap(index.ErrEmbedding, lastErr)
}
