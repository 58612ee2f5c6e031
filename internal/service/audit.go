package service

import (
	"context"

	"github.com/switchctl/switchctl/internal/database"
	"github.com/switchctl/switchctl/internal/model"
	"github.com/switchctl/switchctl/pkg/logger"
	"gorm.io/gorm"
)

// Auditor 轮询与控制的审计记录，只写不读回引擎
type Auditor interface {
	RecordPoll(ctx context.Context, rec *model.PollRecord)
	RecordControl(ctx context.Context, rec *model.ControlAudit)
}

// GormAuditor 写入 SQLite 审计表
type GormAuditor struct {
	db *gorm.DB
}

// NewGormAuditor 创建审计器
func NewGormAuditor(db *gorm.DB) *GormAuditor {
	return &GormAuditor{db: db}
}

// RecordPoll 写入轮询记录，失败仅记录日志
func (a *GormAuditor) RecordPoll(ctx context.Context, rec *model.PollRecord) {
	err := database.WithRetry(a.db, func(tx *gorm.DB) error {
		return tx.WithContext(ctx).Create(rec).Error
	}, 3)
	if err != nil {
		logger.Warnf("Failed to record poll: %v", err)
	}
}

// RecordControl 写入控制审计，失败仅记录日志
func (a *GormAuditor) RecordControl(ctx context.Context, rec *model.ControlAudit) {
	err := database.WithRetry(a.db, func(tx *gorm.DB) error {
		return tx.WithContext(ctx).Create(rec).Error
	}, 3)
	if err != nil {
		logger.Warnf("Failed to record control action: %v", err)
	}
}

// RecentControls 最近的控制审计，供接口查询
func (a *GormAuditor) RecentControls(ctx context.Context, limit int) ([]model.ControlAudit, error) {
	if limit <= 0 || limit > 500 {
		limit = 50
	}
	var out []model.ControlAudit
	err := a.db.WithContext(ctx).Order("id desc").Limit(limit).Find(&out).Error
	return out, err
}
