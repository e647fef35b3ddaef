package eventlog

import (
	"context"
	"time"

	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/d60-Lab/feedcore/internal/model"
	"github.com/d60-Lab/feedcore/pkg/logger"
)

// GormLog DB 实现的事件日志：events 表 + 消费组 offset。
// 本地/单库部署用它，线上换 KafkaLog，写读两端接口一致。
type GormLog struct {
	db           *gorm.DB
	pollInterval time.Duration
	batch        int
}

func NewGormLog(db *gorm.DB, pollInterval time.Duration) *GormLog {
	if pollInterval <= 0 {
		pollInterval = 100 * time.Millisecond
	}
	return &GormLog{db: db, pollInterval: pollInterval, batch: 256}
}

func (l *GormLog) Publish(ctx context.Context, topic, key string, payload []byte) error {
	return l.publishTx(l.db.WithContext(ctx), topic, key, payload)
}

// PublishTx 在调用方事务内追加事件（post + event 同事务落地）
func (l *GormLog) PublishTx(tx *gorm.DB, topic, key string, payload []byte) error {
	return l.publishTx(tx, topic, key, payload)
}

func (l *GormLog) publishTx(tx *gorm.DB, topic, key string, payload []byte) error {
	return tx.Create(&model.Event{
		Topic:        topic,
		PartitionKey: key,
		Payload:      payload,
		CreatedAt:    time.Now(),
	}).Error
}

// Consume 轮询大于组 offset 的事件，逐条交给 handler。
// handler 失败时 offset 不前移，下一轮重放（至少一次）。
func (l *GormLog) Consume(ctx context.Context, topic, groupID string, h Handler) error {
	ticker := time.NewTicker(l.pollInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			if err := l.drain(ctx, topic, groupID, h); err != nil {
				logger.Warn("event drain failed",
					zap.String("topic", topic), zap.String("group", groupID), zap.Error(err))
			}
		}
	}
}

func (l *GormLog) drain(ctx context.Context, topic, groupID string, h Handler) error {
	var off model.ConsumerOffset
	err := l.db.WithContext(ctx).
		Where("group_id = ? AND topic = ?", groupID, topic).
		First(&off).Error
	if err == gorm.ErrRecordNotFound {
		off = model.ConsumerOffset{GroupID: groupID, Topic: topic}
	} else if err != nil {
		return err
	}

	var rows []model.Event
	if err := l.db.WithContext(ctx).
		Where("topic = ? AND seq > ?", topic, off.LastSeq).
		Order("seq").
		Limit(l.batch).
		Find(&rows).Error; err != nil {
		return err
	}

	for _, row := range rows {
		msg := Message{Seq: row.Seq, Topic: row.Topic, Key: row.PartitionKey, Payload: row.Payload, CreatedAt: row.CreatedAt}
		if err := h(ctx, msg); err != nil {
			// 停在失败处，保住分区内顺序
			return err
		}
		off.LastSeq = row.Seq
		off.UpdatedAt = time.Now()
		if err := l.db.WithContext(ctx).Save(&off).Error; err != nil {
			return err
		}
	}
	return nil
}
