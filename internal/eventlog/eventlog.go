package eventlog

import (
	"context"
	"encoding/json"
	"time"
)

// 订阅主题
const (
	TopicPostCreated = "post-created"
)

// PostEvent 帖子创建事件负载
type PostEvent struct {
	PostID    string    `json:"post_id"`
	AuthorID  string    `json:"author_id"`
	Tags      []string  `json:"tags,omitempty"`
	Locale    string    `json:"locale,omitempty"`
	CreatedAt time.Time `json:"created_at"`
}

func (e PostEvent) Marshal() []byte {
	b, _ := json.Marshal(e)
	return b
}

func UnmarshalPostEvent(b []byte) (PostEvent, error) {
	var e PostEvent
	err := json.Unmarshal(b, &e)
	return e, err
}

// Message 一条已落地的事件
type Message struct {
	Seq       int64
	Topic     string
	Key       string
	Payload   []byte
	CreatedAt time.Time
}

// Handler 返回错误时该条会被重新投递（至少一次语义）
type Handler func(ctx context.Context, msg Message) error

// Publisher 事件写端。同 Key 的事件保序。
type Publisher interface {
	Publish(ctx context.Context, topic, key string, payload []byte) error
}

// Consumer 事件读端；Consume 阻塞直到 ctx 取消
type Consumer interface {
	Consume(ctx context.Context, topic, groupID string, h Handler) error
}
