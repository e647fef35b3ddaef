package model

import "time"

// Event 事件日志行（DB 实现）。Seq 单调递增，消费组按 Seq 重放。
type Event struct {
	Seq          int64  `gorm:"primaryKey;autoIncrement"`
	Topic        string `gorm:"type:varchar(64);index:idx_event_topic_seq"`
	PartitionKey string `gorm:"type:varchar(64)"`
	Payload      []byte `gorm:"type:bytes"`
	CreatedAt    time.Time
}

func (Event) TableName() string { return "events" }

// ConsumerOffset 每个消费组在某 topic 上的读取进度
type ConsumerOffset struct {
	GroupID   string `gorm:"primaryKey;type:varchar(64)"`
	Topic     string `gorm:"primaryKey;type:varchar(64)"`
	LastSeq   int64
	UpdatedAt time.Time
}

func (ConsumerOffset) TableName() string { return "consumer_offsets" }
