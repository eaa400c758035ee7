package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

// TestLoadConfig_Integration 是一个综合集成测试
// 它会创建一个临时配置文件，设置环境变量，然后加载配置并验证结果
func TestLoadConfig_Integration(t *testing.T) {
	// 1. 准备测试数据 (YAML 内容)
	// 故意漏掉 unlock.workers，测试默认值是否生效
	// 故意写一个 unlock.timeout，稍后尝试用环境变量覆盖 program_path
	yamlContent := []byte(`
agent:
  log_level: "warn"
  data_dir: "/tmp/ofe_data"

unlock:
  program_path: "/usr/bin/wps"
  timeout: "30s"

detector:
  headers:
    - pattern: "53616C7465645F5F"
      label: "openssl-salted"
      encrypted: true
  extensions:
    - "txt"
    - "docx"
`)

	// 2. 创建临时配置文件
	tmpDir := t.TempDir()
	tmpFile := filepath.Join(tmpDir, "config_test.yaml")
	if err := os.WriteFile(tmpFile, yamlContent, 0644); err != nil {
		t.Fatalf("Failed to create temp config file: %v", err)
	}

	// 3. 设置环境变量 (测试 Viper 的 Env 覆盖能力)
	// 对应 loader.go 中的 SetEnvPrefix("OFE") 和 Replace(".", "_")
	// unlock.program_path -> OFE_UNLOCK_PROGRAM_PATH
	os.Setenv("OFE_UNLOCK_PROGRAM_PATH", "/opt/wps/bin/wps")
	defer os.Unsetenv("OFE_UNLOCK_PROGRAM_PATH")

	// 4. 执行加载
	// 注意：由于 loader.go 使用了 sync.Once，这个函数在整个测试包中只能有效运行一次
	if err := LoadConfig(tmpFile); err != nil {
		t.Fatalf("LoadConfig failed: %v", err)
	}

	cfg := Get()

	// 验证 A: 配置文件中的值是否正确读取
	if cfg.Agent.LogLevel != "warn" {
		t.Errorf("Expected Agent.LogLevel 'warn', got '%s'", cfg.Agent.LogLevel)
	}
	if cfg.Unlock.Timeout != 30*time.Second {
		t.Errorf("Expected Unlock.Timeout 30s, got %v", cfg.Unlock.Timeout)
	}

	// 验证 B: 默认值是否生效 (文件里没写 workers，默认 5)
	if cfg.Unlock.Workers != 5 {
		t.Errorf("Expected Unlock.Workers default 5, got %d", cfg.Unlock.Workers)
	}

	// 验证 C: 环境变量是否覆盖了配置文件
	// Viper 的优先级：Env > ConfigFile > Default
	if cfg.Unlock.ProgramPath != "/opt/wps/bin/wps" {
		t.Errorf("Expected env override '/opt/wps/bin/wps', got '%s'", cfg.Unlock.ProgramPath)
	}

	// 验证 D: 规则库反序列化
	if len(cfg.Detector.Headers) != 1 {
		t.Fatalf("Expected 1 header rule, got %d", len(cfg.Detector.Headers))
	}
	h := cfg.Detector.Headers[0]
	if h.Pattern != "53616C7465645F5F" || h.Label != "openssl-salted" || !h.Encrypted {
		t.Errorf("Header rule mismatch: %+v", h)
	}
	if len(cfg.Detector.Extensions) != 2 {
		t.Errorf("Expected 2 extensions, got %d", len(cfg.Detector.Extensions))
	}

	// 验证 E: 未在文件中出现的段落走默认值
	if cfg.Database.JournalMode != "WAL" {
		t.Errorf("Expected Database.JournalMode default 'WAL', got '%s'", cfg.Database.JournalMode)
	}
	if cfg.Update.Timeout != 10*time.Second {
		t.Errorf("Expected Update.Timeout default 10s, got %v", cfg.Update.Timeout)
	}
}

// TestApplyRuleFallback_EmptyLists 显式空列表落回内置规则库
// 示例配置写了 headers: [] / extensions: []，viper 会视为已设置并
// 盖掉默认值；兜底后检测器仍有完整规则库，不会把所有文件判成未识别
func TestApplyRuleFallback_EmptyLists(t *testing.T) {
	var cfg AppConfig
	cfg.Detector.Headers = []HeaderRule{}
	cfg.Detector.Extensions = []string{}

	applyRuleFallback(&cfg)

	if len(cfg.Detector.Headers) == 0 {
		t.Fatal("Expected built-in header rules after fallback, got empty list")
	}
	if len(cfg.Detector.Extensions) == 0 {
		t.Fatal("Expected built-in extensions after fallback, got empty list")
	}

	// 内置规则库必须同时包含明文与密文两个方向的签名
	var hasPlain, hasCipher bool
	for _, h := range cfg.Detector.Headers {
		if h.Encrypted {
			hasCipher = true
		} else {
			hasPlain = true
		}
	}
	if !hasPlain || !hasCipher {
		t.Errorf("Built-in rules missing a direction: plain=%v cipher=%v", hasPlain, hasCipher)
	}
}

// TestApplyRuleFallback_KeepsConfigured 非空配置不被兜底覆盖
func TestApplyRuleFallback_KeepsConfigured(t *testing.T) {
	var cfg AppConfig
	cfg.Detector.Headers = []HeaderRule{
		{Pattern: "41455302", Label: "aescrypt", Encrypted: true},
	}
	cfg.Detector.Extensions = []string{"txt"}

	applyRuleFallback(&cfg)

	if len(cfg.Detector.Headers) != 1 || cfg.Detector.Headers[0].Label != "aescrypt" {
		t.Errorf("Configured header rules were replaced: %+v", cfg.Detector.Headers)
	}
	if len(cfg.Detector.Extensions) != 1 || cfg.Detector.Extensions[0] != "txt" {
		t.Errorf("Configured extensions were replaced: %v", cfg.Detector.Extensions)
	}
}
