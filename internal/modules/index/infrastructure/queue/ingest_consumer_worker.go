package queue

import (
	"context"
	"encoding/json"
	"errors"
	"strconv"
	"strings"

	"ContextIndex/internal/modules/index/application/dto/request"
	"ContextIndex/internal/modules/index/domain/index"
	"ContextIndex/internal/modules/index/infrastructure/mq"
	"ContextIndex/pkg/zlog"

	"go.uber.org/zap"
)

// DocumentAdder 摄取入口，由 IngestService 实现
type DocumentAdder interface {
	AddDocuments(ctx context.Context, docs []index.InDocument) ([]string, []string, error)
}

// IngestConsumerWorker 消费摄取 topic；需要重试的文档带上递增的 x-attempt 重新投递
type IngestConsumerWorker struct {
	consumer    mq.Consumer
	adder       DocumentAdder
	pub         mq.Publisher
	retryTopic  string
	maxAttempts int
}

func NewIngestConsumerWorker(consumer mq.Consumer, adder DocumentAdder, pub mq.Publisher, retryTopic string, maxAttempts int) *IngestConsumerWorker {
	if maxAttempts <= 0 {
		maxAttempts = 3
	}
	return &IngestConsumerWorker{
		consumer:    consumer,
		adder:       adder,
		pub:         pub,
		retryTopic:  strings.TrimSpace(retryTopic),
		maxAttempts: maxAttempts,
	}
}

func (w *IngestConsumerWorker) Run(ctx context.Context) error {
	if w == nil || w.consumer == nil {
		return errors.New("consumer is nil")
	}
	if w.adder == nil {
		return errors.New("ingest service is nil")
	}
	return w.consumer.Run(ctx, w)
}

func (w *IngestConsumerWorker) Handle(ctx context.Context, msg mq.Message) error {
	var req request.AddDocumentsRequest
	if err := json.Unmarshal(msg.Value, &req); err != nil {
		zlog.Warn("ingest consumer invalid payload, dropped", zap.String("topic", msg.Topic), zap.Error(err))
		return nil
	}
	if len(req.Documents) == 0 {
		return nil
	}
	attempt := attemptOf(msg)

	added, retry, err := w.adder.AddDocuments(ctx, req.ToInDocuments())
	if err != nil {
		// 未确认，消息会被重新消费
		return err
	}
	zlog.Info("ingest consumer batch done",
		zap.Int("attempt", attempt),
		zap.Int("added", len(added)),
		zap.Int("retry", len(retry)),
	)
	if len(retry) == 0 {
		return nil
	}

	if attempt >= w.maxAttempts || w.pub == nil {
		zlog.Error("ingest consumer gave up",
			zap.Int("attempt", attempt),
			zap.Strings("source_ids", retry),
		)
		return nil
	}
	return w.republish(ctx, msg.Topic, req.Filter(retry), attempt+1)
}

func (w *IngestConsumerWorker) republish(ctx context.Context, topic string, req request.AddDocumentsRequest, attempt int) error {
	if w.retryTopic != "" {
		topic = w.retryTopic
	}
	body, err := json.Marshal(req)
	if err != nil {
		return err
	}
	var key []byte
	if len(req.Documents) == 1 {
		key = []byte(req.Documents[0].SourceID)
	}
	_, err = w.pub.Publish(ctx, mq.Message{
		Topic:   topic,
		Key:     key,
		Value:   body,
		Headers: map[string]string{mq.HeaderAttempt: strconv.Itoa(attempt)},
	})
	if err != nil {
		zlog.Warn("ingest consumer republish failed", zap.Int("attempt", attempt), zap.Error(err))
		return err
	}
	return nil
}

// attemptOf 首次投递没有 header，视为第 1 次
func attemptOf(msg mq.Message) int {
	n, err := strconv.Atoi(strings.TrimSpace(msg.Headers[mq.HeaderAttempt]))
	if err != nil || n <= 0 {
		return 1
	}
	return n
}
