// Package config
package config

import "time"

// Version 当前程序版本号，用于在线版本检查
const Version = "6.0"

// ==========================================
// 顶层配置结构
// ==========================================

type AppConfig struct {
	Agent    AgentConfig    `mapstructure:"agent" yaml:"agent"`
	Unlock   UnlockConfig   `mapstructure:"unlock" yaml:"unlock"`
	Detector DetectorConfig `mapstructure:"detector" yaml:"detector"`
	Database DatabaseConfig `mapstructure:"database" yaml:"database"`
	Update   UpdateConfig   `mapstructure:"update" yaml:"update"`
}

// ==========================================
// 1. 基础配置
// ==========================================

type AgentConfig struct {
	// 日志级别: debug, info, warn, error
	LogLevel string `mapstructure:"log_level" yaml:"log_level"`
	// 日志文件路径
	LogFile string `mapstructure:"log_file" yaml:"log_file"`
	// 数据存储目录
	DataDir string `mapstructure:"data_dir" yaml:"data_dir"`
	// 日志轮转配置
	LogMaxSize    int  `mapstructure:"log_max_size" yaml:"log_max_size"`       // MB
	LogMaxBackups int  `mapstructure:"log_max_backups" yaml:"log_max_backups"` // 个数
	LogMaxAge     int  `mapstructure:"log_max_age" yaml:"log_max_age"`         // 天数
	LogCompress   bool `mapstructure:"log_compress" yaml:"log_compress"`       // 是否压缩
	LogStdout     bool `mapstructure:"log_stdout" yaml:"log_stdout"`           // 是否打印到控制台
}

// ==========================================
// 2. 解密配置
// ==========================================

type UnlockConfig struct {
	// 外部解密程序路径，未配置时所有解密调用干净地失败
	ProgramPath string `mapstructure:"program_path" yaml:"program_path"`
	// 单次外部程序调用的硬超时
	Timeout time.Duration `mapstructure:"timeout" yaml:"timeout"`
	// 并发解密任务上限
	Workers int `mapstructure:"workers" yaml:"workers"`
	// 守护进程模式下周期扫描的目录
	WatchDirs []string `mapstructure:"watch_dirs" yaml:"watch_dirs"`
	// 守护进程模式下的扫描周期
	ScanInterval time.Duration `mapstructure:"scan_interval" yaml:"scan_interval"`
}

// ==========================================
// 3. 检测规则配置
// ==========================================

// HeaderRule 文件头签名规则
type HeaderRule struct {
	// 文件头 HEX 字符串
	Pattern string `mapstructure:"pattern" yaml:"pattern"`
	// 格式标签
	Label string `mapstructure:"label" yaml:"label"`
	// 规则方向: true 表示该文件头对应加密容器
	Encrypted bool `mapstructure:"encrypted" yaml:"encrypted"`
}

type DetectorConfig struct {
	// 文件头签名表
	Headers []HeaderRule `mapstructure:"headers" yaml:"headers"`
	// 标准扩展名 (视为未加密容器的弱信号)
	Extensions []string `mapstructure:"extensions" yaml:"extensions"`
}

// ==========================================
// 4. 数据库配置
// ==========================================

type DatabaseConfig struct {
	// 数据库文件名
	FileName string `mapstructure:"file_name" yaml:"file_name"`
	// GORM 日志级别: silent, error, warn, info
	LogLevel string `mapstructure:"log_level" yaml:"log_level"`
	// 最大打开连接数 (SQLite 建议 1)
	MaxOpenConns int `mapstructure:"max_open_conns" yaml:"max_open_conns"`
	// 最大空闲连接数
	MaxIdleConns int `mapstructure:"max_idle_conns" yaml:"max_idle_conns"`
	// 连接最大生命周期
	ConnMaxLifetime time.Duration `mapstructure:"conn_max_lifetime" yaml:"conn_max_lifetime"`
	// SQLite Journal 模式
	JournalMode string `mapstructure:"journal_mode" yaml:"journal_mode"`
	// SQLite 同步模式
	Synchronous string `mapstructure:"synchronous" yaml:"synchronous"`
}

// ==========================================
// 5. 版本检查配置
// ==========================================

type UpdateConfig struct {
	// 版本元数据接口地址
	Endpoint string `mapstructure:"endpoint" yaml:"endpoint"`
	// 请求超时
	Timeout time.Duration `mapstructure:"timeout" yaml:"timeout"`
}
