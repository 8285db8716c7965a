package history

import (
	"time"
)

// SessionMode 会话模式
type SessionMode string

const (
	SessionModeExternal SessionMode = "EXTERNAL" // 外部终端程序
	SessionModeBuiltin  SessionMode = "BUILTIN"  // 内置控制台
	SessionModeBridge   SessionMode = "BRIDGE"   // WebSocket桥接
)

// SessionRecord 终端会话记录
type SessionRecord struct {
	ID        uint        `gorm:"primaryKey" json:"id"`
	SessionID string      `gorm:"type:varchar(36);uniqueIndex" json:"session_id"` // UUID
	Device    string      `gorm:"type:varchar(255);index" json:"device"`          // 设备路径
	BaudRate  int         `json:"baud_rate"`
	Mode      SessionMode `gorm:"type:varchar(16);index" json:"mode"`
	Program   string      `gorm:"type:varchar(255)" json:"program"` // 外部终端程序名
	StartedAt time.Time   `gorm:"index" json:"started_at"`
	EndedAt   *time.Time  `json:"ended_at,omitempty"`
	ExitCode  *int        `json:"exit_code,omitempty"` // 会话结束前为空
	CreatedAt time.Time   `json:"created_at"`
	UpdatedAt time.Time   `json:"updated_at"`
}

// TableName 指定表名
func (SessionRecord) TableName() string {
	return "session_records"
}

// Duration 会话时长，未结束返回0
func (r *SessionRecord) Duration() time.Duration {
	if r.EndedAt == nil {
		return 0
	}
	return r.EndedAt.Sub(r.StartedAt)
}
