package database

import (
	"github.com/lib/pq"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// User 表示系统中的账号信息。邮箱即登录名，大小写敏感。
type User struct {
	gorm.Model
	Email        string  `gorm:"uniqueIndex;size:255"`
	PasswordHash string  `gorm:"size:255"`
	Resume       *Resume `gorm:"constraint:OnDelete:CASCADE"`
}

// Resume 表示用户的简历内容，每个用户至多一份。
// education/experience 以 JSONB 存储，skills 为原生 text[]。
type Resume struct {
	gorm.Model
	UserID     uint           `gorm:"uniqueIndex"`
	FullName   string         `gorm:"size:255"`
	Title      string         `gorm:"size:255"`
	Summary    string         `gorm:"type:text"`
	Education  datatypes.JSON `gorm:"type:jsonb"`
	Experience datatypes.JSON `gorm:"type:jsonb"`
	Skills     pq.StringArray `gorm:"type:text[]"`
	PhotoData  *string        `gorm:"type:text"`

	// PDF 导出状态，由 worker 异步更新。
	PdfObjectKey string `gorm:"size:512"`
	PdfStatus    string `gorm:"size:32"`
}

// Resume 导出状态常量。
const (
	PdfStatusPending   = "pending"
	PdfStatusCompleted = "completed"
	PdfStatusFailed    = "failed"
)
