package history

import (
	"time"

	"github.com/google/uuid"
	"github.com/wfunc/serial-connect/internal/errors"
	"gorm.io/gorm"
)

// SessionRepository 会话记录仓库
type SessionRepository struct {
	db *gorm.DB
}

// NewSessionRepository 创建会话记录仓库
func NewSessionRepository(db *gorm.DB) *SessionRepository {
	return &SessionRepository{
		db: db,
	}
}

// Begin 创建会话记录，返回生成的会话ID
func (r *SessionRepository) Begin(device string, baud int, mode SessionMode, program string) (string, error) {
	record := &SessionRecord{
		SessionID: uuid.New().String(),
		Device:    device,
		BaudRate:  baud,
		Mode:      mode,
		Program:   program,
		StartedAt: time.Now(),
	}

	if err := r.db.Create(record).Error; err != nil {
		return "", errors.Wrap(err, errors.ErrHistoryInsert)
	}

	return record.SessionID, nil
}

// Finish 会话结束时补记结束时间与退出码
func (r *SessionRepository) Finish(sessionID string, exitCode int) error {
	now := time.Now()
	result := r.db.Model(&SessionRecord{}).
		Where("session_id = ?", sessionID).
		Updates(map[string]interface{}{
			"ended_at":  &now,
			"exit_code": &exitCode,
		})

	if result.Error != nil {
		return errors.Wrap(result.Error, errors.ErrHistoryUpdate)
	}
	if result.RowsAffected == 0 {
		return errors.Newf(errors.ErrNotFound, "session: %s", sessionID)
	}

	return nil
}

// GetBySessionID 根据会话ID获取记录
func (r *SessionRepository) GetBySessionID(sessionID string) (*SessionRecord, error) {
	var record SessionRecord
	err := r.db.Where("session_id = ?", sessionID).First(&record).Error
	if err != nil {
		if err == gorm.ErrRecordNotFound {
			return nil, errors.Newf(errors.ErrNotFound, "session: %s", sessionID)
		}
		return nil, errors.Wrap(err, errors.ErrHistoryQuery)
	}
	return &record, nil
}

// Recent 返回最近的会话记录
func (r *SessionRepository) Recent(limit int) ([]*SessionRecord, error) {
	if limit <= 0 {
		limit = 20
	}

	var records []*SessionRecord
	err := r.db.Order("started_at DESC").
		Limit(limit).
		Find(&records).Error
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrHistoryQuery)
	}

	return records, nil
}

// GetByDevice 按设备路径查询会话记录
func (r *SessionRepository) GetByDevice(device string, limit int) ([]*SessionRecord, error) {
	if limit <= 0 {
		limit = 20
	}

	var records []*SessionRecord
	err := r.db.Where("device = ?", device).
		Order("started_at DESC").
		Limit(limit).
		Find(&records).Error
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrHistoryQuery)
	}

	return records, nil
}

// Purge 删除超过保留期的记录，返回删除条数
// keepDays为0时不做任何清理
func (r *SessionRepository) Purge(keepDays int) (int64, error) {
	if keepDays <= 0 {
		return 0, nil
	}

	cutoff := time.Now().AddDate(0, 0, -keepDays)
	result := r.db.Where("started_at < ?", cutoff).Delete(&SessionRecord{})
	if result.Error != nil {
		return 0, errors.Wrap(result.Error, errors.ErrHistoryUpdate)
	}

	return result.RowsAffected, nil
}
