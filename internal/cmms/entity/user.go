package entity

import (
	"time"
)

// User 用户实体，身份由外部签发的JWT携带，这里只存通讯录镜像
type User struct {
	ID        string    `json:"id" gorm:"primaryKey;size:32"`
	Username  string    `json:"username" gorm:"size:64;uniqueIndex"`
	Name      string    `json:"name" gorm:"size:128;not null"`
	Email     string    `json:"email" gorm:"size:128"`
	SiteID    string    `json:"site_id" gorm:"size:32"`
	Status    string    `json:"status" gorm:"size:16;not null;default:active"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

func (User) TableName() string {
	return "users"
}
