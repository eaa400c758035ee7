// Package logger 日志系统封装
// 对外只暴露 Setup 和 Debug/Info/Warn/Error 四个级别函数，
// 业务代码不直接依赖底层日志实现
package logger

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"gopkg.in/natefinch/lumberjack.v2"
)

// Options 日志初始化选项
type Options struct {
	// 日志级别: debug, info, warn, error
	Level string
	// 日志文件路径，为空则只输出到控制台
	FilePath string
	// 单个日志文件上限 (MB)
	MaxSize int
	// 保留的历史文件个数
	MaxBackups int
	// 保留天数
	MaxAge int
	// 是否压缩旧日志
	Compress bool
	// 是否同时输出到控制台
	Stdout bool
}

var (
	log  *slog.Logger
	once sync.Once
)

// Setup 初始化日志系统
// 重复调用只有第一次生效
func Setup(opts Options) error {
	var err error

	once.Do(func() {
		writers := make([]io.Writer, 0, 2)

		// 1. 文件输出 (带轮转)
		if opts.FilePath != "" {
			if mkErr := os.MkdirAll(filepath.Dir(opts.FilePath), 0755); mkErr != nil {
				err = fmt.Errorf("failed to create log dir: %w", mkErr)
				return
			}
			writers = append(writers, &lumberjack.Logger{
				Filename:   opts.FilePath,
				MaxSize:    opts.MaxSize,
				MaxBackups: opts.MaxBackups,
				MaxAge:     opts.MaxAge,
				Compress:   opts.Compress,
			})
		}

		// 2. 控制台输出
		if opts.Stdout || opts.FilePath == "" {
			writers = append(writers, os.Stdout)
		}

		handler := slog.NewTextHandler(io.MultiWriter(writers...), &slog.HandlerOptions{
			Level: parseLevel(opts.Level),
		})
		log = slog.New(handler)
	})

	return err
}

// parseLevel 解析日志级别字符串
func parseLevel(level string) slog.Level {
	switch strings.ToLower(level) {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// get 返回全局 logger
// 未 Setup 时退化为默认控制台输出，保证调试工具可直接使用
func get() *slog.Logger {
	if log == nil {
		return slog.Default()
	}
	return log
}

// Debug 调试日志
func Debug(msg string, kv ...any) {
	get().Debug(msg, kv...)
}

// Info 普通日志
func Info(msg string, kv ...any) {
	get().Info(msg, kv...)
}

// Warn 警告日志
func Warn(msg string, kv ...any) {
	get().Warn(msg, kv...)
}

// Error 错误日志
func Error(msg string, kv ...any) {
	get().Error(msg, kv...)
}
