package model

import (
	"time"
)

// PollRecord 轮询记录
type PollRecord struct {
	ID         uint      `json:"id" gorm:"primaryKey;autoIncrement"`
	Device     string    `json:"device" gorm:"type:varchar(128);not null;index"`
	Outcome    string    `json:"outcome" gorm:"type:varchar(16);not null"`
	Labels     int       `json:"labels"`
	Duration   int64     `json:"duration"` // 毫秒
	ArchiveURI string    `json:"archive_uri" gorm:"type:varchar(512)"`
	ErrorMsg   string    `json:"error_msg" gorm:"type:text"`
	CreatedAt  time.Time `json:"created_at" gorm:"autoCreateTime;index"`
}

// TableName 表名
func (PollRecord) TableName() string {
	return "poll_records"
}

// 轮询结果
const (
	PollOutcomeSuccess    = "success"
	PollOutcomeSuppressed = "suppressed"
	PollOutcomeNoEnable   = "not_escalated"
	PollOutcomeFailed     = "failed"
)

// ControlAudit 控制操作审计
type ControlAudit struct {
	ID        uint      `json:"id" gorm:"primaryKey;autoIncrement"`
	Device    string    `json:"device" gorm:"type:varchar(128);not null;index"`
	Property  string    `json:"property" gorm:"type:varchar(128);not null"`
	Value     string    `json:"value" gorm:"type:varchar(64)"`
	Outcome   string    `json:"outcome" gorm:"type:varchar(16);not null"`
	State     string    `json:"state" gorm:"type:varchar(16)"`
	ErrorMsg  string    `json:"error_msg" gorm:"type:text"`
	CreatedAt time.Time `json:"created_at" gorm:"autoCreateTime;index"`
}

// TableName 表名
func (ControlAudit) TableName() string {
	return "control_audits"
}

// 控制结果
const (
	ControlOutcomeApplied     = "applied"
	ControlOutcomeDropped     = "dropped"
	ControlOutcomeFailed      = "failed"
	ControlOutcomeIgnored     = "ignored"
	ControlOutcomeUnsupported = "unsupported"
)
