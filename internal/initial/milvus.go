package initial

import (
	"context"
	"fmt"
	"slices"
	"strings"

	"ContextIndex/internal/config"
	"ContextIndex/pkg/zlog"

	mclient "github.com/milvus-io/milvus-sdk-go/v2/client"
	"github.com/milvus-io/milvus-sdk-go/v2/entity"
	"go.uber.org/zap"
)

const defaultMilvusDB = "context_index"

// InitMilvus 连接 Milvus，确保库、chunk 集合与向量索引存在；未配置地址时返回 nil
func InitMilvus(ctx context.Context, conf *config.Config) (mclient.Client, error) {
	mc := conf.MilvusConfig
	if strings.TrimSpace(mc.Address) == "" {
		return nil, nil
	}
	dbName := strings.TrimSpace(mc.DBName)
	if dbName == "" {
		dbName = defaultMilvusDB
	}

	if err := ensureMilvusDatabase(ctx, mc, dbName); err != nil {
		return nil, fmt.Errorf("milvus init failed: %w", err)
	}
	cli, err := dialMilvus(ctx, mc, dbName)
	if err != nil {
		return nil, fmt.Errorf("milvus init failed: %w", err)
	}

	collection := strings.TrimSpace(conf.IndexConfig.Collection)
	dim := conf.MilvusConfig.VectorDim
	if conf.AIConfig.Embedding.Dimensions > 0 {
		dim = conf.AIConfig.Embedding.Dimensions
	}
	if err := ensureChunkCollection(ctx, cli, collection, dim, MilvusMetric(mc.MetricType)); err != nil {
		_ = cli.Close()
		return nil, fmt.Errorf("milvus init failed: %w", err)
	}
	if err := cli.LoadCollection(ctx, collection, false); err != nil {
		zlog.Warn("milvus load collection", zap.String("collection", collection), zap.Error(err))
	}

	return cli, nil
}

// MilvusMetric 把配置里的度量名映射到 SDK 枚举
func MilvusMetric(name string) entity.MetricType {
	switch strings.ToUpper(strings.TrimSpace(name)) {
	case "L2":
		return entity.L2
	case "IP":
		return entity.IP
	default:
		return entity.COSINE
	}
}

func dialMilvus(ctx context.Context, mc config.MilvusConfig, dbName string) (mclient.Client, error) {
	return mclient.NewClient(ctx, mclient.Config{
		Address:  strings.TrimSpace(mc.Address),
		Username: strings.TrimSpace(mc.Username),
		Password: strings.TrimSpace(mc.Password),
		DBName:   dbName,
	})
}

// ensureMilvusDatabase 建库需要连到 default 库
func ensureMilvusDatabase(ctx context.Context, mc config.MilvusConfig, dbName string) error {
	cli, err := dialMilvus(ctx, mc, "default")
	if err != nil {
		return err
	}
	defer cli.Close()

	dbs, err := cli.ListDatabases(ctx)
	if err != nil {
		return err
	}
	if slices.ContainsFunc(dbs, func(db entity.Database) bool { return db.Name == dbName }) {
		return nil
	}
	zlog.Info("milvus create database", zap.String("db", dbName))
	return cli.CreateDatabase(ctx, dbName)
}

// chunkSchema chunk 集合：id 主键、向量、内容与 JSON 元数据
func chunkSchema(collection string, dim int) *entity.Schema {
	return entity.NewSchema().
		WithName(collection).
		WithDescription("ContextIndex chunk vectors").
		WithField(entity.NewField().WithName("id").WithDataType(entity.FieldTypeVarChar).WithIsPrimaryKey(true).WithMaxLength(64)).
		WithField(entity.NewField().WithName("vector").WithDataType(entity.FieldTypeFloatVector).WithDim(int64(dim))).
		WithField(entity.NewField().WithName("content").WithDataType(entity.FieldTypeVarChar).WithMaxLength(65535)).
		WithField(entity.NewField().WithName("metadata").WithDataType(entity.FieldTypeJSON))
}

func ensureChunkCollection(ctx context.Context, cli mclient.Client, collection string, dim int, metric entity.MetricType) error {
	has, err := cli.HasCollection(ctx, collection)
	if err != nil || has {
		return err
	}
	zlog.Info("milvus create collection", zap.String("collection", collection), zap.Int("dim", dim))
	if err := cli.CreateCollection(ctx, chunkSchema(collection, dim), entity.DefaultShardNumber); err != nil {
		return err
	}
	idx, err := entity.NewIndexAUTOINDEX(metric)
	if err != nil {
		return err
	}
	return cli.CreateIndex(ctx, collection, "vector", idx, false)
}
