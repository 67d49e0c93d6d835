package history

import (
	"time"

	"github.com/BaSui01/crmflow/types"
)

// Conversation 一次会话
type Conversation struct {
	ID        string    `gorm:"primaryKey;size:36" json:"id"`
	Title     string    `gorm:"size:200" json:"title"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `gorm:"index" json:"updated_at"`

	// 关联
	Messages []Message `gorm:"foreignKey:ConversationID;constraint:OnDelete:CASCADE" json:"messages,omitempty"`
}

func (Conversation) TableName() string {
	return "conversations"
}

// Message 会话中的一条消息。Agent 记录回答该轮的领域，用户消息为空。
type Message struct {
	ID             uint      `gorm:"primaryKey" json:"id"`
	ConversationID string    `gorm:"size:36;not null;index" json:"conversation_id"`
	Role           string    `gorm:"size:16;not null" json:"role"`
	Content        string    `gorm:"type:text" json:"content"`
	Agent          string    `gorm:"size:100" json:"agent,omitempty"`
	CreatedAt      time.Time `json:"created_at"`
}

func (Message) TableName() string {
	return "messages"
}

// ToMessage 转换为生成调用使用的消息
func (m Message) ToMessage() types.Message {
	return types.Message{
		Role:      types.Role(m.Role),
		Content:   m.Content,
		Timestamp: m.CreatedAt,
	}
}
