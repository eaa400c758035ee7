// Package storage 解密审计记录持久化
package storage

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"github.com/baozaodexiaojuzi/orange-file-encryption-tool/internal/logger"
)

var (
	db   *gorm.DB
	once sync.Once
)

// Options 数据库初始化选项
type Options struct {
	DataDir         string
	FileName        string
	LogLevel        string        // silent, error, warn, info
	MaxOpenConns    int           // SQLite 建议 1
	MaxIdleConns    int           // SQLite 建议 1
	ConnMaxLifetime time.Duration // 推荐 1h
	JournalMode     string        // WAL
	Synchronous     string        // NORMAL
}

// Setup 初始化数据库
// 重复调用只有第一次生效；失败通过返回值让调用者感知
func Setup(opts Options) error {
	var err error

	once.Do(func() {
		// 1. 创建目录
		if mkErr := os.MkdirAll(opts.DataDir, 0755); mkErr != nil {
			err = fmt.Errorf("failed to create db dir %s: %w", opts.DataDir, mkErr)
			return
		}

		dbPath := filepath.Join(opts.DataDir, opts.FileName)

		// 2. 配置 GORM 日志
		var gormLogLevel gormlogger.LogLevel
		switch strings.ToLower(opts.LogLevel) {
		case "silent":
			gormLogLevel = gormlogger.Silent
		case "error":
			gormLogLevel = gormlogger.Error
		case "info":
			gormLogLevel = gormlogger.Info
		default:
			gormLogLevel = gormlogger.Warn
		}

		gormConfig := &gorm.Config{
			Logger:                 gormlogger.Default.LogMode(gormLogLevel),
			PrepareStmt:            true,
			SkipDefaultTransaction: true, // 禁用默认事务，避免事务冲突
		}

		// 3. 打开连接
		dbConn, openErr := gorm.Open(sqlite.Open(dbPath), gormConfig)
		if openErr != nil {
			err = fmt.Errorf("failed to open sqlite %s: %w", dbPath, openErr)
			return
		}

		// 4. 配置连接池
		sqlDB, sqlErr := dbConn.DB()
		if sqlErr != nil {
			err = fmt.Errorf("failed to get sql.DB: %w", sqlErr)
			return
		}
		sqlDB.SetMaxOpenConns(opts.MaxOpenConns)
		sqlDB.SetMaxIdleConns(opts.MaxIdleConns)
		sqlDB.SetConnMaxLifetime(opts.ConnMaxLifetime)

		// 5. 执行 PRAGMA 优化
		// MaxOpenConns 锁定为 1 时在这里执行一次即可
		pragmas := []string{
			fmt.Sprintf("PRAGMA journal_mode = %s;", opts.JournalMode),
			fmt.Sprintf("PRAGMA synchronous = %s;", opts.Synchronous),
		}
		for _, pragma := range pragmas {
			if execErr := dbConn.Exec(pragma).Error; execErr != nil {
				logger.Warn("PRAGMA 执行失败", "pragma", pragma, "error", execErr)
			}
		}

		db = dbConn
		logger.Info("数据库初始化完成", "path", dbPath)
	})

	return err
}

// GetDB 获取数据库连接
func GetDB() (*gorm.DB, error) {
	if db == nil {
		return nil, fmt.Errorf("database not initialized, call Setup first")
	}
	return db, nil
}

// Close 关闭数据库连接
func Close() error {
	if db == nil {
		return nil
	}
	sqlDB, err := db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}
