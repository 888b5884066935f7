package db

import (
	"errors"
	"strings"
	"time"

	"gorm.io/gorm"

	"BurnUpgrade/internal/models"
)

var (
	// ErrDuplicateRecord 唯一约束冲突：mint 或升级目标已有记录
	ErrDuplicateRecord = errors.New("duplicate record")
	ErrEmptyInsert     = errors.New("empty insert")
)

// Store 持久化入口：持有一个 *gorm.DB，在进程启动时构造一次并显式传递
// （不使用包级全局连接，索引创建统一走 Migrate）
type Store struct {
	conn *gorm.DB
}

func NewStore(conn *gorm.DB) *Store {
	return &Store{conn: conn}
}

// Migrate 创建表结构和唯一索引，可重复执行
func (s *Store) Migrate() error {
	return s.conn.AutoMigrate(&models.BurnRecord{}, &models.RateLimitTicket{})
}

// Ping 数据库连通性检查（readiness 探针用）
func (s *Store) Ping() error {
	sqlDB, err := s.conn.DB()
	if err != nil {
		return err
	}
	return sqlDB.Ping()
}

// InsertBurnRecords 在一个事务内写入整批记录
// 任何一条的 mint 或非空升级目标撞上唯一索引，整批回滚并返回 ErrDuplicateRecord
// 唯一性靠数据库约束兜底，不做先查后写（并发提交下先查后写会有竞态）
func (s *Store) InsertBurnRecords(records []models.BurnRecord) error {
	if len(records) == 0 {
		return ErrEmptyInsert
	}
	err := s.conn.Transaction(func(tx *gorm.DB) error {
		for i := range records {
			if err := tx.Create(&records[i]).Error; err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		if isDuplicateKeyErr(err) {
			return ErrDuplicateRecord
		}
		return err
	}
	return nil
}

// FindByMints 查询这些 mint 中已有记录的部分（提交前的快速拒绝路径，非正确性依据）
func (s *Store) FindByMints(mints []string) ([]models.BurnRecord, error) {
	if len(mints) == 0 {
		return nil, nil
	}
	var recs []models.BurnRecord
	err := s.conn.Where("mint IN ?", mints).Find(&recs).Error
	return recs, err
}

// FindClaimedUpgradeTargets 查询候选 mint 中已被认领为升级目标的部分
func (s *Store) FindClaimedUpgradeTargets(candidates []string) ([]models.BurnRecord, error) {
	if len(candidates) == 0 {
		return nil, nil
	}
	var recs []models.BurnRecord
	err := s.conn.Where("upgrade_target_mint IN ?", candidates).Find(&recs).Error
	return recs, err
}

// FindUpgradeTargetsForWallet 返回该钱包的销毁记录已认领的升级目标 mint 列表
// （前端用来把已锁定的资产从可选列表里剔除）
func (s *Store) FindUpgradeTargetsForWallet(wallet string) ([]string, error) {
	var mints []string
	err := s.conn.Model(&models.BurnRecord{}).
		Where("burnt_by = ? AND upgrade_target_mint IS NOT NULL", wallet).
		Pluck("upgrade_target_mint", &mints).Error
	return mints, err
}

// AllRecords 全量记录（对账工具用，只读）
func (s *Store) AllRecords() ([]models.BurnRecord, error) {
	var recs []models.BurnRecord
	err := s.conn.Find(&recs).Error
	return recs, err
}

// CountRecentTickets 统计窗口内某 IP 的票据数
func (s *Store) CountRecentTickets(ip string, window time.Duration) (int64, error) {
	var n int64
	cutoff := time.Now().Add(-window)
	err := s.conn.Model(&models.RateLimitTicket{}).
		Where("ip = ? AND created_at > ?", ip, cutoff).
		Count(&n).Error
	return n, err
}

// AddTicket 写入一张票据，顺手清理窗口外的过期票据（模拟 TTL 过期）
func (s *Store) AddTicket(ip string, window time.Duration) error {
	cutoff := time.Now().Add(-window)
	// 清理失败不影响写入，限流本身是尽力而为
	s.conn.Unscoped().Where("created_at <= ?", cutoff).Delete(&models.RateLimitTicket{})
	return s.conn.Create(&models.RateLimitTicket{IP: ip}).Error
}

// isDuplicateKeyErr 识别唯一约束冲突
// gorm 开了 TranslateError 时返回 ErrDuplicatedKey，兜底再按 MySQL/SQLite 错误文本判断
func isDuplicateKeyErr(err error) bool {
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return true
	}
	msg := err.Error()
	return strings.Contains(msg, "Duplicate entry") ||
		strings.Contains(msg, "UNIQUE constraint failed")
}
