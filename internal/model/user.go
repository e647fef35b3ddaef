package model

import "time"

// User 仅保留扇出与展示所需字段；凭证由外部认证系统持有
type User struct {
	ID        string `gorm:"primaryKey;type:varchar(36)"`
	Username  string `gorm:"type:varchar(64);uniqueIndex"`
	Email     string `gorm:"type:varchar(128)"`
	Locale    string `gorm:"type:varchar(16);default:'global'"`
	CreatedAt time.Time
	UpdatedAt time.Time
}

func (User) TableName() string { return "users" }
