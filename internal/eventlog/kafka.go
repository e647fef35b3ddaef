package eventlog

import (
	"context"
	"time"

	kgo "github.com/segmentio/kafka-go"
	"go.uber.org/zap"

	"github.com/d60-Lab/feedcore/pkg/logger"
)

// KafkaLog 线上事件日志实现。按 key 哈希分区，分区内保序。
type KafkaLog struct {
	brokers []string
	writer  *kgo.Writer
}

func NewKafkaLog(brokers []string) *KafkaLog {
	w := &kgo.Writer{
		Addr:         kgo.TCP(brokers...),
		Balancer:     &kgo.Hash{},
		RequiredAcks: kgo.RequireOne,
		BatchTimeout: 50 * time.Millisecond,
	}
	return &KafkaLog{brokers: brokers, writer: w}
}

func (l *KafkaLog) Publish(ctx context.Context, topic, key string, payload []byte) error {
	return l.writer.WriteMessages(ctx, kgo.Message{
		Topic: topic,
		Key:   []byte(key),
		Value: payload,
		Time:  time.Now(),
	})
}

func (l *KafkaLog) Consume(ctx context.Context, topic, groupID string, h Handler) error {
	r := kgo.NewReader(kgo.ReaderConfig{
		Brokers:  l.brokers,
		Topic:    topic,
		GroupID:  groupID,
		MinBytes: 1,
		MaxBytes: 10e6,
	})
	defer r.Close()

	for {
		m, err := r.FetchMessage(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			logger.Warn("kafka fetch failed", zap.String("topic", topic), zap.Error(err))
			continue
		}
		msg := Message{
			Seq:       m.Offset,
			Topic:     m.Topic,
			Key:       string(m.Key),
			Payload:   m.Value,
			CreatedAt: m.Time,
		}
		// 同一条消息原地重试到成功为止：FetchMessage 会前移游标，
		// 跳过再提交后续 offset 等于把失败的那条永久确认掉
		if err := retryHandle(ctx, h, msg, kafkaRetryBase, kafkaRetryMax); err != nil {
			return err
		}
		if err := r.CommitMessages(ctx, m); err != nil {
			logger.Warn("commit failed", zap.String("topic", topic), zap.Error(err))
		}
	}
}

const (
	kafkaRetryBase = time.Second
	kafkaRetryMax  = 30 * time.Second
)

// retryHandle 对同一条消息指数退避重投，只在 ctx 取消时放弃。
// 分区内顺序由此保持：后面的 offset 不会越过未处理成功的这条。
func retryHandle(ctx context.Context, h Handler, msg Message, base, max time.Duration) error {
	backoff := base
	for {
		err := h(ctx, msg)
		if err == nil {
			return nil
		}
		logger.Warn("handler failed, redelivering same offset",
			zap.String("topic", msg.Topic), zap.Int64("offset", msg.Seq), zap.Error(err))
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(backoff):
		}
		backoff *= 2
		if backoff > max {
			backoff = max
		}
	}
}

func (l *KafkaLog) Close() error { return l.writer.Close() }
