package config

import (
	"fmt"
	"strings"
	"sync"

	"github.com/spf13/viper"
)

// GlobalConfig 全局配置单例
// 在调用 LoadConfig 成功后，该变量会被填充，后续模块直接读取即可
var (
	GlobalConfig *AppConfig
	loadOnce     sync.Once
	v            *viper.Viper
)

// LoadConfig 加载配置
// configPath: 配置文件路径 (e.g., "/etc/orange-unlocker/config.yml")
// 传入空字符串时在默认路径搜索；找不到配置文件则只用默认值跑
func LoadConfig(configPath string) error {
	var err error

	loadOnce.Do(func() {
		v = viper.New()

		// 1. 设置默认值 (兜底策略)
		setDefaults(v)

		// 2. 配置读取规则
		if configPath != "" {
			v.SetConfigFile(configPath)
		} else {
			v.SetConfigName("config")
			v.SetConfigType("yaml")
			v.AddConfigPath("/etc/orange-unlocker/") // 生产环境标准路径
			v.AddConfigPath(".")                     // 当前目录 (开发调试用)
		}

		// 3. 环境变量覆盖
		// 允许通过 OFE_UNLOCK_PROGRAM_PATH 覆盖 unlock.program_path
		v.SetEnvPrefix("OFE")
		v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
		v.AutomaticEnv()

		// 4. 读取配置文件
		// 解密工具允许无配置文件运行（纯默认值 + 命令行），
		// 只有显式指定了路径却读不到时才算错误
		if readErr := v.ReadInConfig(); readErr != nil {
			if _, ok := readErr.(viper.ConfigFileNotFoundError); !ok && configPath != "" {
				err = fmt.Errorf("failed to read config file: %v", readErr)
				return
			}
		}

		// 5. 反序列化到结构体
		var config AppConfig
		if err = v.Unmarshal(&config); err != nil {
			err = fmt.Errorf("failed to unmarshal config: %v", err)
			return
		}

		applyRuleFallback(&config)
		GlobalConfig = &config
	})

	return err
}

// Get 返回全局配置
func Get() *AppConfig {
	return GlobalConfig
}

// SaveRules 持久化检测规则 (文件头签名 + 标准扩展名)
// 设置界面/命令行添加规则后调用，只回写规则相关键，不动其他配置
func SaveRules(headers []HeaderRule, extensions []string) error {
	if v == nil {
		return fmt.Errorf("config not loaded")
	}

	// 回写内存配置
	if GlobalConfig != nil {
		GlobalConfig.Detector.Headers = headers
		GlobalConfig.Detector.Extensions = extensions
	}

	v.Set("detector.headers", headers)
	v.Set("detector.extensions", extensions)

	if v.ConfigFileUsed() == "" {
		// 没有配置文件时写到当前目录，行为与旧版一致
		return v.WriteConfigAs("config.yaml")
	}
	return v.WriteConfig()
}

// setDefaults 定义配置文件的默认行为
func setDefaults(v *viper.Viper) {
	// Agent 基础
	v.SetDefault("agent.log_level", "info")
	v.SetDefault("agent.log_file", "/var/log/orange-unlocker/unlocker.log")
	v.SetDefault("agent.data_dir", "/var/lib/orange-unlocker")
	v.SetDefault("agent.log_max_size", 100)
	v.SetDefault("agent.log_max_backups", 5)
	v.SetDefault("agent.log_max_age", 30)
	v.SetDefault("agent.log_compress", true)
	v.SetDefault("agent.log_stdout", false)

	// Unlock 解密策略
	v.SetDefault("unlock.program_path", "") // 未配置是合法状态，解密调用会干净失败
	v.SetDefault("unlock.timeout", "120s")
	v.SetDefault("unlock.workers", 5)
	v.SetDefault("unlock.watch_dirs", []string{})
	v.SetDefault("unlock.scan_interval", "5m")

	// Detector 默认规则库
	v.SetDefault("detector.headers", defaultHeaders())
	v.SetDefault("detector.extensions", builtinExtensions())

	// Database 数据库配置
	v.SetDefault("database.file_name", "unlocker.db")
	v.SetDefault("database.log_level", "warn")
	v.SetDefault("database.max_open_conns", 1)
	v.SetDefault("database.max_idle_conns", 1)
	v.SetDefault("database.conn_max_lifetime", "1h")
	v.SetDefault("database.journal_mode", "WAL")
	v.SetDefault("database.synchronous", "NORMAL")

	// Update 版本检查
	v.SetDefault("update.endpoint",
		"https://api.github.com/repos/baozaodexiaojuzi/orange-file-encryption-tool/releases/latest")
	v.SetDefault("update.timeout", "10s")
}

// applyRuleFallback 规则库空列表兜底
// 配置文件写了显式空列表 (headers: []) 时，viper 视为已设置，
// 会盖掉 SetDefault 的内置规则库；这里把"显式留空"和"未配置"
// 统一成同一种行为：都落回内置规则库，检测器永远不会空转
func applyRuleFallback(cfg *AppConfig) {
	if len(cfg.Detector.Headers) == 0 {
		cfg.Detector.Headers = builtinHeaderRules()
	}
	if len(cfg.Detector.Extensions) == 0 {
		cfg.Detector.Extensions = builtinExtensions()
	}
}

// builtinHeaderRules 内置文件头签名表
// 方向: encrypted=false 表示已知明文容器，encrypted=true 表示已知密文容器
func builtinHeaderRules() []HeaderRule {
	return []HeaderRule{
		// 已知明文容器
		{Pattern: "504B0304", Label: "zip/ooxml", Encrypted: false},
		{Pattern: "25504446", Label: "pdf", Encrypted: false},
		{Pattern: "7B5C727466", Label: "rtf", Encrypted: false},
		{Pattern: "89504E470D0A1A0A", Label: "png", Encrypted: false},
		{Pattern: "FFD8FF", Label: "jpeg", Encrypted: false},
		{Pattern: "47494638", Label: "gif", Encrypted: false},
		{Pattern: "D0CF11E0A1B11AE1", Label: "ole2", Encrypted: false},
		// 已知密文容器
		{Pattern: "53616C7465645F5F", Label: "openssl-salted", Encrypted: true},
		{Pattern: "41455302", Label: "aescrypt", Encrypted: true},
		{Pattern: "53454346494C45", Label: "secfile", Encrypted: true},
	}
}

// builtinExtensions 内置标准扩展名列表
func builtinExtensions() []string {
	return []string{
		"txt", "md", "csv", "log", "json", "xml", "yaml", "yml", "html",
		"doc", "docx", "xls", "xlsx", "ppt", "pptx", "wps", "et", "dps",
		"jpg", "jpeg", "png", "gif", "bmp",
	}
}

// defaultHeaders 内置签名表的 viper 默认值形式
// viper 的默认值需要 map 形式才能被 Unmarshal 进结构体切片
func defaultHeaders() []map[string]any {
	rules := builtinHeaderRules()
	out := make([]map[string]any, 0, len(rules))
	for _, r := range rules {
		out = append(out, map[string]any{
			"pattern":   r.Pattern,
			"label":     r.Label,
			"encrypted": r.Encrypted,
		})
	}
	return out
}
