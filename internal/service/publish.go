package service

import (
	"context"
	"regexp"
	"strings"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/d60-Lab/feedcore/internal/eventlog"
	"github.com/d60-Lab/feedcore/internal/model"
)

var tagPattern = regexp.MustCompile(`#([\p{L}\p{N}_]+)`)

const maxTagsPerPost = 10

// txPublisher 支持在调用方事务内追加事件（DB 实现的事件日志）
type txPublisher interface {
	PublishTx(tx *gorm.DB, topic, key string, payload []byte) error
}

// Publisher 事务内落地 Post 并发布创建事件。
// 事件日志为 DB 实现时与帖子同事务写入；否则提交后发布。
type Publisher struct {
	db     *gorm.DB
	events eventlog.Publisher
}

func NewPublisher(db *gorm.DB, events eventlog.Publisher) *Publisher {
	return &Publisher{db: db, events: events}
}

func (p *Publisher) Publish(ctx context.Context, authorID, payload, locale string) (string, error) {
	postID := uuid.New().String()
	now := time.Now()
	tags := ExtractTags(payload)

	post := &model.Post{
		ID:        postID,
		AuthorID:  authorID,
		Payload:   payload,
		Tags:      strings.Join(tags, " "),
		CreatedAt: now,
		UpdatedAt: now,
	}
	ev := eventlog.PostEvent{
		PostID:    postID,
		AuthorID:  authorID,
		Tags:      tags,
		Locale:    locale,
		CreatedAt: now,
	}

	txp, transactional := p.events.(txPublisher)
	err := p.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(post).Error; err != nil {
			return err
		}
		if transactional {
			return txp.PublishTx(tx, eventlog.TopicPostCreated, authorID, ev.Marshal())
		}
		return nil
	})
	if err != nil {
		return "", err
	}
	if !transactional {
		if err := p.events.Publish(ctx, eventlog.TopicPostCreated, authorID, ev.Marshal()); err != nil {
			return "", err
		}
	}
	return postID, nil
}

// ExtractTags 抽取 hashtag，小写去重，上限截断
func ExtractTags(payload string) []string {
	matches := tagPattern.FindAllStringSubmatch(payload, -1)
	if len(matches) == 0 {
		return nil
	}
	seen := make(map[string]struct{}, len(matches))
	out := make([]string, 0, len(matches))
	for _, m := range matches {
		t := strings.ToLower(m[1])
		if _, ok := seen[t]; ok {
			continue
		}
		seen[t] = struct{}{}
		out = append(out, t)
		if len(out) == maxTagsPerPost {
			break
		}
	}
	return out
}
