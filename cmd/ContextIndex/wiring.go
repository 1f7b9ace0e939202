package main

import (
	"context"
	"errors"
	"fmt"
	"time"

	"ContextIndex/internal/config"
	"ContextIndex/internal/initial"
	"ContextIndex/internal/modules/index/application/service"
	"ContextIndex/internal/modules/index/domain/repository"
	"ContextIndex/internal/modules/index/infrastructure/mq/kafka"
	"ContextIndex/internal/modules/index/infrastructure/queue"
	"ContextIndex/internal/modules/index/infrastructure/vectordb"

	"github.com/cloudwego/eino/components/embedding"
	"gorm.io/gorm"
)

// newVectorStore 按 indexConfig.vectorDriver 选择 sql 或 milvus
func newVectorStore(ctx context.Context, conf *config.Config, db *gorm.DB, embedder embedding.Embedder, dim int) (repository.VectorStore, error) {
	ic := conf.IndexConfig
	switch ic.VectorDriver {
	case "sql":
		if err := vectordb.AutoMigrate(db); err != nil {
			return nil, err
		}
		return vectordb.NewSQLVectorStore(db, embedder, vectordb.SQLVectorStoreConfig{
			Collection:    ic.Collection,
			Dim:           dim,
			Metric:        ic.Metric,
			ParamLimit:    ic.ParamLimit,
			InsertColumns: ic.InsertColumns,
		})
	case "milvus":
		cli, err := initial.InitMilvus(ctx, conf)
		if err != nil {
			return nil, err
		}
		if cli == nil {
			return nil, errors.New("milvus address is empty")
		}
		return vectordb.NewMilvusStore(cli, embedder, ic.Collection, dim, initial.MilvusMetric(conf.MilvusConfig.MetricType), conf.MilvusConfig.ExprBatch)
	default:
		return nil, fmt.Errorf("unknown vector driver: %s", ic.VectorDriver)
	}
}

// newIngestWorker 建好 topic、消费者与重投用的生产者
func newIngestWorker(conf *config.Config, ingestSvc service.IngestService) (*queue.IngestConsumerWorker, func(), error) {
	kc := conf.KafkaConfig
	if err := kafka.EnsureTopic(kafka.TopicSpec{
		Brokers:           kc.Brokers,
		ClientID:          kc.ClientID,
		Topic:             kc.IngestTopic,
		Partitions:        kc.Partitions,
		ReplicationFactor: kc.Replication,
		Retention:         7 * 24 * time.Hour,
	}); err != nil {
		return nil, nil, err
	}
	consumer, err := kafka.NewConsumer(kafka.ConsumerConfig{
		Brokers:  kc.Brokers,
		GroupID:  kc.ConsumerGroupID,
		Topics:   []string{kc.IngestTopic},
		ClientID: kc.ClientID,
	})
	if err != nil {
		return nil, nil, err
	}
	pub, err := kafka.NewPublisher(kafka.PublisherConfig{Brokers: kc.Brokers, ClientID: kc.ClientID})
	if err != nil {
		_ = consumer.Close()
		return nil, nil, err
	}
	worker := queue.NewIngestConsumerWorker(consumer, ingestSvc, pub, kc.IngestTopic, kc.MaxAttempts)
	closeFn := func() {
		_ = consumer.Close()
		_ = pub.Close()
	}
	return worker, closeFn, nil
}
