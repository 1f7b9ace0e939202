package kafka

import (
	"errors"
	"strconv"
	"strings"
	"time"

	"github.com/IBM/sarama"
)

type TopicSpec struct {
	Brokers           []string
	ClientID          string
	Topic             string
	Partitions        int32
	ReplicationFactor int16
	Retention         time.Duration
}

// EnsureTopic 摄取 topic 不存在时创建
func EnsureTopic(spec TopicSpec) error {
	if len(spec.Brokers) == 0 {
		return errors.New("kafka brokers is empty")
	}
	topic := strings.TrimSpace(spec.Topic)
	if topic == "" {
		return errors.New("kafka topic is empty")
	}

	admin, err := sarama.NewClusterAdmin(spec.Brokers, newSaramaConfig(spec.ClientID))
	if err != nil {
		return err
	}
	defer admin.Close()

	topics, err := admin.ListTopics()
	if err != nil {
		return err
	}
	if _, ok := topics[topic]; ok {
		return nil
	}

	if err := admin.CreateTopic(topic, topicDetail(spec), false); err != nil {
		if errors.Is(err, sarama.ErrTopicAlreadyExists) {
			return nil
		}
		return err
	}
	return nil
}

func topicDetail(spec TopicSpec) *sarama.TopicDetail {
	partitions := spec.Partitions
	if partitions <= 0 {
		partitions = 1
	}
	replication := spec.ReplicationFactor
	if replication <= 0 {
		replication = 1
	}
	retention := spec.Retention
	if retention <= 0 {
		retention = 7 * 24 * time.Hour
	}
	retentionMs := strconv.FormatInt(retention.Milliseconds(), 10)
	return &sarama.TopicDetail{
		NumPartitions:     partitions,
		ReplicationFactor: replication,
		ConfigEntries: map[string]*string{
			"retention.ms": &retentionMs,
		},
	}
}

func newSaramaConfig(clientID string) *sarama.Config {
	sc := sarama.NewConfig()
	sc.Version = sarama.V2_8_0_0
	if id := strings.TrimSpace(clientID); id != "" {
		sc.ClientID = id
	}
	return sc
}
