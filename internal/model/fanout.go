package model

import "time"

// 作业状态流转: pending -> processing -> done / dead
const (
	JobStatusPending    = "pending"
	JobStatusProcessing = "processing"
	JobStatusDone       = "done"
	JobStatusDead       = "dead"
)

// FanoutJob 扇出作业（outbox 行即事件日志的 DB 实现）。
// 创建后不可变，只有状态与投递簿记会更新。
// PartitionKey 内按 created_at 消费，保证同作者同分片的投递顺序。
type FanoutJob struct {
	ID       string `gorm:"primaryKey;type:varchar(36)"`
	PostID   string `gorm:"type:varchar(36);index:idx_job_post"`
	AuthorID string `gorm:"type:varchar(36);index:idx_job_author"`
	// ShardIndex 指向粉丝集合的第几个分片；ShardSize 为建号时的分片宽度
	ShardIndex int `gorm:"not null;default:0"`
	ShardSize  int `gorm:"not null;default:0"`
	// ActiveOnly 为 hybrid 策略标记：该分片只推活跃粉丝
	ActiveOnly bool `gorm:"not null;default:false"`
	// PostCreatedAt 帖子创建时间，时间线排序基准随作业透传
	PostCreatedAt  time.Time `gorm:"index"`
	PartitionKey   string    `gorm:"type:varchar(64);index:idx_job_partition"`
	IdempotencyKey string    `gorm:"type:varchar(80);uniqueIndex"`
	Status         string    `gorm:"type:varchar(16);index"`
	Attempts       int       `gorm:"not null;default:0"`
	CreatedAt      time.Time `gorm:"index"`
	ProcessedAt    *time.Time
	FanoutCount    int64
}

func (FanoutJob) TableName() string { return "fanout_jobs" }

// DeadLetter 重试耗尽后的落地，供人工对账
type DeadLetter struct {
	ID        string `gorm:"primaryKey;type:varchar(36)"`
	JobID     string `gorm:"type:varchar(36);index"`
	PostID    string `gorm:"type:varchar(36)"`
	AuthorID  string `gorm:"type:varchar(36)"`
	Reason    string `gorm:"type:text"`
	Attempts  int
	CreatedAt time.Time
}

func (DeadLetter) TableName() string { return "dead_letters" }

// ReconcileTask 图存储不可用时记录的补推任务（fail-closed to pull）
type ReconcileTask struct {
	ID        string `gorm:"primaryKey;type:varchar(36)"`
	PostID    string `gorm:"type:varchar(36);uniqueIndex"`
	AuthorID  string `gorm:"type:varchar(36);index"`
	Status    string `gorm:"type:varchar(16);index"` // pending, done, failed
	CreatedAt time.Time
	UpdatedAt time.Time
}

func (ReconcileTask) TableName() string { return "reconcile_tasks" }
