package producer

import (
	"github.com/confluentinc/confluent-kafka-go/v2/kafka"
	"github.com/sirupsen/logrus"

	"github.com/k-code-yt/payment-webhooks/internal/config"
)

type KafkaProducer struct {
	producer *kafka.Producer
	topic    string
}

func NewKafkaProducer(cfg *config.KafkaConfig) (*KafkaProducer, error) {
	p, err := kafka.NewProducer(&kafka.ConfigMap{"bootstrap.servers": cfg.Host})
	if err != nil {
		return nil, err
	}

	go func() {
		for e := range p.Events() {
			switch ev := e.(type) {
			case *kafka.Message:
				if ev.TopicPartition.Error != nil {
					logrus.WithFields(logrus.Fields{
						"PRTN": ev.TopicPartition,
					}).Warn("delivery failed")
				} else {
					logrus.WithFields(logrus.Fields{
						"PRTN":   ev.TopicPartition.Partition,
						"OFFSET": ev.TopicPartition.Offset,
					}).Debug("delivery success")
				}
			}
		}
	}()

	return &KafkaProducer{
		producer: p,
		topic:    cfg.Topic,
	}, nil
}

func (p *KafkaProducer) Produce(key string, msg []byte) error {
	topic := p.topic
	return p.producer.Produce(&kafka.Message{
		TopicPartition: kafka.TopicPartition{Topic: &topic, Partition: kafka.PartitionAny},
		Key:            []byte(key),
		Value:          msg,
	}, nil)
}

func (p *KafkaProducer) Close() {
	p.producer.Flush(5000)
	p.producer.Close()
}
