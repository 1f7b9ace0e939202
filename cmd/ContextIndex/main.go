package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	https_server "ContextIndex/api/http"
	"ContextIndex/internal/config"
	"ContextIndex/internal/initial"
	"ContextIndex/internal/modules/index/application/service"
	"ContextIndex/internal/modules/index/domain/repository"
	"ContextIndex/internal/modules/index/infrastructure/chunking"
	"ContextIndex/internal/modules/index/infrastructure/embedding"
	"ContextIndex/internal/modules/index/infrastructure/persistence"
	"ContextIndex/internal/modules/index/infrastructure/pipeline"
	"ContextIndex/internal/modules/index/infrastructure/queue"
	indexHandler "ContextIndex/internal/modules/index/interface/http"
	"ContextIndex/pkg/util/myjwt"
	"ContextIndex/pkg/zlog"

	"go.uber.org/zap"
	"gorm.io/gorm"
)

func main() {
	// 1. 加载配置
	conf := config.GetConfig()
	zlog.Init(zlog.Options{
		LogPath:    conf.LogConfig.LogPath,
		Level:      conf.LogConfig.Level,
		MaxSizeMB:  conf.LogConfig.MaxSizeMB,
		MaxBackups: conf.LogConfig.MaxBackups,
		MaxAgeDays: conf.LogConfig.MaxAgeDays,
	})
	defer zlog.Sync()

	// ContextIndex token <uuid> [username]：给外层服务签发调用 token
	if len(os.Args) > 1 && os.Args[1] == "token" {
		if err := printToken(conf, os.Args[2:]); err != nil {
			fmt.Fprintln(os.Stderr, err)
			os.Exit(1)
		}
		return
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, conf); err != nil {
		zlog.Fatal("服务异常退出", zap.Error(err))
	}
	zlog.Info("服务器已关闭")
}

func run(ctx context.Context, conf *config.Config) error {
	// 2. 关系库
	db, err := initial.InitGorm(conf)
	if err != nil {
		return fmt.Errorf("init database: %w", err)
	}
	defer closeDB(db)

	// 3. embedder，启动时等待服务就绪
	embedder, meta, err := embedding.NewEmbedderFromConfig(ctx, conf)
	if err != nil {
		return fmt.Errorf("init embedder: %w", err)
	}
	zlog.Info("embedder ready", zap.String("provider", meta.Provider), zap.String("model", meta.Model), zap.Int("dim", meta.Dim))
	ic := conf.IndexConfig
	if err := embedding.WaitReady(ctx, embedder, ic.EmbedReadyAttempts, time.Duration(ic.EmbedReadyIntervalSeconds)*time.Second); err != nil {
		return err
	}

	// 4. 向量引擎
	vs, err := newVectorStore(ctx, conf, db, embedder, meta.Dim)
	if err != nil {
		return fmt.Errorf("init vector store: %w", err)
	}

	// 5. 仓储与服务
	uow := persistence.NewIndexUnitOfWork(db, ic.ParamLimit)
	docRepo := persistence.NewDocumentRepository(db, ic.ParamLimit)
	accessRepo := persistence.NewAccessRepository(db, ic.ParamLimit)

	rp, err := pipeline.NewRetrievePipeline(vs, embedder, pipeline.RetrieveOptions{
		BatchSize: ic.ParamLimit,
		Dim:       meta.Dim,
		DefaultK:  ic.DefaultTopK,
		MaxK:      ic.MaxTopK,
	})
	if err != nil {
		return fmt.Errorf("init retrieve pipeline: %w", err)
	}

	var ingestOpts []service.IngestOption
	if ic.MaxChunkRunes > 0 {
		sp, err := chunking.NewOversizeSplitter(ctx, ic.MaxChunkRunes, ic.ChunkOverlapRunes)
		if err != nil {
			return fmt.Errorf("init chunk splitter: %w", err)
		}
		ingestOpts = append(ingestOpts, service.WithChunkSplitter(sp))
	}
	ingestSvc := service.NewIngestService(uow, vs, ic.InsertBatchSize(), ingestOpts...)
	docSvc := service.NewDocumentService(uow, docRepo, vs)
	accessSvc := service.NewAccessService(uow, docRepo, accessRepo, vs)
	querySvc := service.NewQueryService(docRepo, rp)

	var wg sync.WaitGroup
	bgCtx, cancelBg := context.WithCancel(ctx)
	defer func() {
		cancelBg()
		wg.Wait()
	}()

	// 6. 可选的 Kafka 摄取
	if conf.KafkaConfig.Enabled {
		worker, closeFn, err := newIngestWorker(conf, ingestSvc)
		if err != nil {
			return fmt.Errorf("init kafka ingest: %w", err)
		}
		defer closeFn()
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := worker.Run(bgCtx); err != nil && !errors.Is(err, context.Canceled) {
				zlog.Error("ingest worker stopped", zap.Error(err))
			}
		}()
	}

	// 7. 孤儿 chunk 回收，只有能枚举 chunk 的引擎才启用
	if lister, ok := vs.(repository.ChunkLister); ok {
		gc := queue.NewOrphanChunkCollector(docRepo, lister, vs,
			time.Duration(ic.GCIntervalSeconds)*time.Second,
			time.Duration(ic.GCGraceSeconds)*time.Second,
			ic.GCBatchSize,
		)
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := gc.Run(bgCtx); err != nil && !errors.Is(err, context.Canceled) {
				zlog.Error("orphan collector stopped", zap.Error(err))
			}
		}()
	}

	// 8. HTTP 服务
	GE := https_server.NewEngine(conf, https_server.Handlers{
		Index:  indexHandler.NewIndexHandler(ingestSvc, docSvc),
		Access: indexHandler.NewAccessHandler(accessSvc),
		Query:  indexHandler.NewQueryHandler(querySvc),
	})
	addr := fmt.Sprintf("%s:%d", conf.MainConfig.Host, conf.MainConfig.Port)
	srv := &http.Server{Addr: addr, Handler: GE}

	errCh := make(chan error, 1)
	go func() {
		zlog.Info(fmt.Sprintf("服务器正在启动，监听地址: %s", addr))
		var err error
		if conf.MainConfig.EnableTLS {
			err = srv.ListenAndServeTLS(conf.MainConfig.CertFile, conf.MainConfig.KeyFile)
		} else {
			err = srv.ListenAndServe()
		}
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	// 9. 优雅关闭
	select {
	case <-ctx.Done():
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("http server: %w", err)
		}
	}
	zlog.Info("正在关闭服务器...")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), time.Duration(conf.MainConfig.ShutdownSec)*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		zlog.Warn("http shutdown", zap.Error(err))
	}
	return nil
}

func printToken(conf *config.Config, args []string) error {
	if len(args) == 0 {
		return errors.New("usage: ContextIndex token <uuid> [username]")
	}
	username := args[0]
	if len(args) > 1 {
		username = args[1]
	}
	token, err := myjwt.GenerateToken(myjwt.Options{
		Key:         conf.JwtConfig.Key,
		Issuer:      conf.JwtConfig.Issuer,
		ExpireHours: conf.JwtConfig.ExpireHours,
	}, args[0], username)
	if err != nil {
		return err
	}
	fmt.Println(token)
	return nil
}

func closeDB(db *gorm.DB) {
	if sqlDB, err := db.DB(); err == nil {
		_ = sqlDB.Close()
	}
}
