package kafka

import (
	"context"
	"errors"
	"testing"
	"time"

	"ContextIndex/internal/modules/index/infrastructure/mq"

	"github.com/IBM/sarama"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestToProducerMessage(t *testing.T) {
	m, err := toProducerMessage(mq.Message{
		Topic:   "context_index.ingest",
		Key:     []byte("doc-1"),
		Value:   []byte(`{"documents":[]}`),
		Headers: map[string]string{mq.HeaderAttempt: "2", " ": "skip", "b": "x"},
	})
	require.NoError(t, err)
	assert.Equal(t, "context_index.ingest", m.Topic)
	assert.Equal(t, sarama.ByteEncoder("doc-1"), m.Key)
	require.Len(t, m.Headers, 2)
	assert.Equal(t, "b", string(m.Headers[0].Key))
	assert.Equal(t, mq.HeaderAttempt, string(m.Headers[1].Key))

	m, err = toProducerMessage(mq.Message{Topic: "t"})
	require.NoError(t, err)
	assert.Nil(t, m.Key)

	_, err = toProducerMessage(mq.Message{Topic: " "})
	assert.Error(t, err)
}

func TestFromConsumerMessage(t *testing.T) {
	msg := fromConsumerMessage(&sarama.ConsumerMessage{
		Topic: "t",
		Key:   []byte("k"),
		Value: []byte("v"),
		Headers: []*sarama.RecordHeader{
			{Key: []byte(mq.HeaderAttempt), Value: []byte("3")},
			nil,
			{Key: nil, Value: []byte("ignored")},
		},
	})
	assert.Equal(t, "t", msg.Topic)
	assert.Equal(t, map[string]string{mq.HeaderAttempt: "3"}, msg.Headers)
}

func TestTopicDetailDefaults(t *testing.T) {
	td := topicDetail(TopicSpec{Topic: "t"})
	assert.EqualValues(t, 1, td.NumPartitions)
	assert.EqualValues(t, 1, td.ReplicationFactor)
	assert.Equal(t, "604800000", *td.ConfigEntries["retention.ms"])

	td = topicDetail(TopicSpec{Topic: "t", Partitions: 6, ReplicationFactor: 3, Retention: time.Hour})
	assert.EqualValues(t, 6, td.NumPartitions)
	assert.Equal(t, "3600000", *td.ConfigEntries["retention.ms"])
}

func TestEnsureTopicValidates(t *testing.T) {
	assert.Error(t, EnsureTopic(TopicSpec{Topic: "t"}))
	assert.Error(t, EnsureTopic(TopicSpec{Brokers: []string{"127.0.0.1:1"}, Topic: " "}))
}

// scriptedGroup 依次返回预设的 Consume 结果，用完后返回 ErrClosedConsumerGroup
type scriptedGroup struct {
	sarama.ConsumerGroup

	results []error
	calls   int
}

func (g *scriptedGroup) Consume(ctx context.Context, topics []string, handler sarama.ConsumerGroupHandler) error {
	g.calls++
	if len(g.results) == 0 {
		return sarama.ErrClosedConsumerGroup
	}
	err := g.results[0]
	g.results = g.results[1:]
	return err
}

func TestConsumerRunRetriesAfterConsumeErrors(t *testing.T) {
	g := &scriptedGroup{results: []error{
		errors.New("broker unavailable"),
		errors.New("broker unavailable"),
		nil,
		errors.New("rebalance failed"),
	}}
	c := &saramaConsumer{cg: g, topics: []string{"t"}, minBackoff: time.Millisecond, maxBackoff: 2 * time.Millisecond}

	err := c.Run(context.Background(), mq.HandlerFunc(func(context.Context, mq.Message) error { return nil }))
	require.NoError(t, err)
	assert.Equal(t, 5, g.calls)
}

func TestConsumerRunStopsDuringBackoff(t *testing.T) {
	g := &scriptedGroup{results: []error{errors.New("broker unavailable")}}
	c := &saramaConsumer{cg: g, topics: []string{"t"}, minBackoff: time.Hour, maxBackoff: time.Hour}

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	start := time.Now()
	err := c.Run(ctx, mq.HandlerFunc(func(context.Context, mq.Message) error { return nil }))
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.Less(t, time.Since(start), time.Second)
	assert.Equal(t, 1, g.calls)
}
