package models

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
	"time"

	"github.com/AGIOS-UPDATED/midday-test/internal/history/types"
)

// Chat is the GORM model for the chats table
type Chat struct {
	ID          string      `gorm:"primaryKey;type:varchar(32)"`
	Seq         int64       `gorm:"not null;index"`
	URLID       *string     `gorm:"column:url_id;type:varchar(255);uniqueIndex"`
	Description string      `gorm:"type:text"`
	Messages    MessageList `gorm:"type:jsonb;not null"`
	Timestamp   time.Time   `gorm:"not null;index"`
}

// TableName specifies the table name
func (Chat) TableName() string {
	return "chats"
}

// MessageList 以 JSON 存储的消息列表
type MessageList []types.Message

// Scan implements sql.Scanner interface
func (m *MessageList) Scan(value interface{}) error {
	if value == nil {
		*m = MessageList{}
		return nil
	}

	var raw []byte
	switch v := value.(type) {
	case []byte:
		raw = v
	case string:
		raw = []byte(v)
	default:
		return fmt.Errorf("unsupported messages column type %T", value)
	}
	return json.Unmarshal(raw, m)
}

// Value implements driver.Valuer interface
func (m MessageList) Value() (driver.Value, error) {
	if m == nil {
		return "[]", nil
	}
	b, err := json.Marshal(m)
	if err != nil {
		return nil, err
	}
	return string(b), nil
}

// AllModels 需要自动迁移的模型
func AllModels() []any {
	return []any{&Chat{}}
}
