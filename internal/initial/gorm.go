package initial

import (
	"fmt"
	"log"
	"os"
	"path/filepath"
	"strings"
	"time"

	"ContextIndex/internal/config"
	"ContextIndex/internal/modules/index/domain/index"

	"github.com/glebarez/sqlite"
	"gorm.io/driver/mysql"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// InitGorm 打开关系库并迁移索引表
func InitGorm(conf *config.Config) (*gorm.DB, error) {
	db, err := OpenDatabase(conf.DatabaseConfig, logger.Warn)
	if err != nil {
		return nil, err
	}
	// 自动迁移，如果没有建表，会自动创建对应的表
	if err := AutoMigrate(db); err != nil {
		return nil, err
	}
	return db, nil
}

// OpenDatabase 按 dialect 打开 MySQL 或 SQLite
func OpenDatabase(dc config.DatabaseConfig, level logger.LogLevel) (*gorm.DB, error) {
	slow := time.Duration(dc.SlowQueryMs) * time.Millisecond
	if slow <= 0 {
		slow = time.Second
	}
	gormLogger := logger.New(
		log.New(os.Stdout, "\r\n", log.LstdFlags),
		logger.Config{
			SlowThreshold:             slow,
			LogLevel:                  level,
			IgnoreRecordNotFoundError: true,
			Colorful:                  false,
		},
	)

	var dialector gorm.Dialector
	switch strings.ToLower(strings.TrimSpace(dc.Dialect)) {
	case "mysql":
		dsn := fmt.Sprintf("%s:%s@tcp(%s:%d)/%s?charset=utf8mb4&parseTime=True&loc=Local", dc.User, dc.Password, dc.Host, dc.Port, dc.DatabaseName)
		dialector = mysql.Open(dsn)
	case "", "sqlite":
		path := strings.TrimSpace(dc.Path)
		if path == "" {
			return nil, fmt.Errorf("sqlite path is empty")
		}
		if dir := filepath.Dir(path); dir != "." {
			if err := os.MkdirAll(dir, 0o755); err != nil {
				return nil, err
			}
		}
		// 外键级联依赖 foreign_keys 打开
		dialector = sqlite.Open(path + "?_pragma=foreign_keys(1)&_pragma=busy_timeout(5000)")
	default:
		return nil, fmt.Errorf("unknown database dialect: %s", dc.Dialect)
	}

	db, err := gorm.Open(dialector, &gorm.Config{Logger: gormLogger})
	if err != nil {
		return nil, err
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, err
	}
	if dc.MaxOpenConns > 0 {
		sqlDB.SetMaxOpenConns(dc.MaxOpenConns)
	}
	if dc.MaxIdleConns > 0 {
		sqlDB.SetMaxIdleConns(dc.MaxIdleConns)
	}
	return db, nil
}

// AutoMigrate 建立 docs 与 access_list（含级联外键）
func AutoMigrate(db *gorm.DB) error {
	return db.AutoMigrate(
		&index.Document{},
		&index.AccessEntry{},
	)
}
