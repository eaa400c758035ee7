// Package main 文件加密检测与解密命令行工具
package main

import (
	"context"
	"fmt"
	"os"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/baozaodexiaojuzi/orange-file-encryption-tool/internal/config"
	"github.com/baozaodexiaojuzi/orange-file-encryption-tool/internal/detector"
	"github.com/baozaodexiaojuzi/orange-file-encryption-tool/internal/identity"
	"github.com/baozaodexiaojuzi/orange-file-encryption-tool/internal/logger"
	"github.com/baozaodexiaojuzi/orange-file-encryption-tool/internal/model"
	"github.com/baozaodexiaojuzi/orange-file-encryption-tool/internal/processor"
	"github.com/baozaodexiaojuzi/orange-file-encryption-tool/internal/scheduler"
	"github.com/baozaodexiaojuzi/orange-file-encryption-tool/internal/storage"
	"github.com/baozaodexiaojuzi/orange-file-encryption-tool/internal/update"
)

// ==========================================
// 全局变量
// ==========================================

var (
	appName = "unlocker"

	// 命令行参数
	configPath  string
	programPath string
	ruleHex     string
	ruleLabel   string
	ruleIsEnc   bool

	// 颜色输出 (与旧版 GUI 的结果标签颜色一致)
	colorGreen  = color.New(color.FgGreen)
	colorYellow = color.New(color.FgYellow)
	colorRed    = color.New(color.FgRed, color.Bold)
	colorCyan   = color.New(color.FgCyan)

	// 由根命令的 PersistentPreRun 初始化
	det *detector.EncryptionDetector
)

// ==========================================
// 主入口
// ==========================================

func main() {
	if err := rootCmd.Execute(); err != nil {
		colorRed.Fprintf(os.Stderr, "错误: %v\n", err)
		os.Exit(1)
	}
}

// ==========================================
// 根命令
// ==========================================

var rootCmd = &cobra.Command{
	Use:   appName,
	Short: "文件加密检测与解密工具",
	Long: `文件加密检测与解密工具

功能:
  - 检测文件或目录中的文件是否加密或未识别
  - 对已加密文件调用外部程序解密，并复核解密结果
  - 可扩展的文件头签名与扩展名规则库
  - 在线版本检查

示例:
  unlocker check file.docx
  unlocker check /data/docs
  unlocker unlock file.docx
  unlocker unlock /data/docs report.pdf
  unlocker headers add 53616C7465645F5F openssl-salted --encrypted
  unlocker exts add wps`,
	Version:       config.Version,
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		if err := config.LoadConfig(configPath); err != nil {
			return err
		}
		cfg := config.Get()

		// 命令行工具默认静默日志到文件，终端只输出结果
		if err := logger.Setup(logger.Options{
			Level:      cfg.Agent.LogLevel,
			FilePath:   cfg.Agent.LogFile,
			MaxSize:    cfg.Agent.LogMaxSize,
			MaxBackups: cfg.Agent.LogMaxBackups,
			MaxAge:     cfg.Agent.LogMaxAge,
			Compress:   cfg.Agent.LogCompress,
			Stdout:     false,
		}); err != nil {
			// 日志不可用不阻断命令行操作
			fmt.Fprintf(os.Stderr, "警告: 日志系统初始化失败: %v\n", err)
		}

		det = detector.NewFromConfig(cfg.Detector)
		return nil
	},
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "", "配置文件路径")

	rootCmd.AddCommand(checkCmd)
	rootCmd.AddCommand(unlockCmd)
	rootCmd.AddCommand(headersCmd)
	rootCmd.AddCommand(extsCmd)
	rootCmd.AddCommand(updateCmd)
	rootCmd.AddCommand(versionCmd)
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "显示当前版本号",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Printf("%s %s\n", appName, config.Version)
	},
}

// ==========================================
// check 命令 - 检测加密状态
// ==========================================

var checkCmd = &cobra.Command{
	Use:   "check <路径>",
	Short: "检查文件或目录的加密状态",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		path := args[0]

		info, err := os.Stat(path)
		if err == nil && info.IsDir() {
			results, walkErrs := det.ScanDirectory(path)
			for _, r := range results {
				printDetection(r)
			}
			for _, werr := range walkErrs {
				colorRed.Printf("遍历错误: %v\n", werr)
			}

			encrypted := 0
			for _, r := range results {
				if r.Status == model.StatusEncrypted {
					encrypted++
				}
			}
			colorCyan.Printf("总计 %d 个文件，加密 %d 个\n", len(results), encrypted)
			return nil
		}

		printDetection(det.Classify(path))
		return nil
	},
}

// printDetection 按状态着色输出单条检测结果
func printDetection(r model.DetectionResult) {
	line := fmt.Sprintf("%s: %s", r.Status.String(), r.FilePath)
	if r.FileType != "" {
		line += fmt.Sprintf(" (%s)", r.FileType)
	}

	switch r.Status {
	case model.StatusUnencrypted:
		colorGreen.Println(line)
	case model.StatusEncrypted, model.StatusUnrecognized:
		colorYellow.Println(line)
	default:
		colorRed.Println(line)
	}
}

// ==========================================
// unlock 命令 - 解密文件
// ==========================================

var unlockCmd = &cobra.Command{
	Use:   "unlock <路径>...",
	Short: "解密文件或目录 (目录递归处理)",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg := config.Get()

		prog := cfg.Unlock.ProgramPath
		if programPath != "" {
			prog = programPath
		}

		identity.Init()
		store := openStore(cfg)

		proc := processor.NewUnlockProcessor(prog, cfg.Unlock.Timeout)
		sched := scheduler.New(det, proc, scheduler.Options{Workers: cfg.Unlock.Workers})
		sched.Start()
		defer sched.Stop()

		// 入队：目录递归展开，文件直接入队
		total := 0
		for _, path := range args {
			info, err := os.Stat(path)
			if err == nil && info.IsDir() {
				count, walkErrs := sched.EnqueueDirectory(path)
				total += count
				for _, werr := range walkErrs {
					colorRed.Printf("遍历错误: %v\n", werr)
				}
			} else {
				// 不存在的路径同样入队：worker 会产出"文件不存在"结果，
				// 保证每个输入路径都有一条可见报告
				sched.Enqueue(path)
				total++
			}
		}

		// 消费结果
		failed := 0
		for i := 0; i < total; i++ {
			o := <-sched.Outcomes()
			printOutcome(o)
			if o.Err == model.ErrKindDriverFailed || o.Err == model.ErrKindDriverUnavailable {
				failed++
			}
			persistOutcome(store, o)
		}

		if failed > 0 {
			return fmt.Errorf("%d 个文件解密失败", failed)
		}
		return nil
	},
}

func init() {
	unlockCmd.Flags().StringVarP(&programPath, "program", "p", "", "外部解密程序路径 (覆盖配置)")
}

// printOutcome 输出单条解密结果
// 六类结局必须逐条可区分，绝不静默吞掉任何一条
func printOutcome(o model.DecryptOutcome) {
	path := o.Task.FilePath

	switch {
	case o.Status == model.StatusMissing:
		colorRed.Printf("文件不存在: %s\n", path)
	case o.Status == model.StatusUnencrypted:
		colorGreen.Printf("文件未加密，跳过解密: %s\n", path)
	case o.Status == model.StatusUnrecognized:
		colorYellow.Printf("文件未识别，跳过处理: %s\n", path)
	case o.Err == model.ErrKindDriverUnavailable:
		colorRed.Printf("解密失败 (外部程序不可用): %s\n", path)
	case o.Err == model.ErrKindDriverFailed:
		colorRed.Printf("解密失败: %s\n", path)
	case o.Verify == model.VerifyPassed:
		colorGreen.Printf("解密成功且复核通过: %s -> %s\n", path, o.DecryptedPath)
	default:
		colorYellow.Printf("解密完成但复核警告 (文件可能仍为加密状态): %s -> %s\n", path, o.DecryptedPath)
	}
}

// openStore 初始化审计存储，失败时降级为只打日志
func openStore(cfg *config.AppConfig) *storage.UnlockStore {
	if err := storage.Setup(storage.Options{
		DataDir:         cfg.Agent.DataDir,
		FileName:        cfg.Database.FileName,
		LogLevel:        cfg.Database.LogLevel,
		MaxOpenConns:    cfg.Database.MaxOpenConns,
		MaxIdleConns:    cfg.Database.MaxIdleConns,
		ConnMaxLifetime: cfg.Database.ConnMaxLifetime,
		JournalMode:     cfg.Database.JournalMode,
		Synchronous:     cfg.Database.Synchronous,
	}); err != nil {
		logger.Warn("审计存储不可用，本次操作不落库", "error", err)
		return nil
	}

	db, err := storage.GetDB()
	if err != nil {
		return nil
	}
	store, err := storage.NewUnlockStore(db)
	if err != nil {
		logger.Warn("审计存储初始化失败", "error", err)
		return nil
	}
	return store
}

// persistOutcome 落一条审计记录
func persistOutcome(store *storage.UnlockStore, o model.DecryptOutcome) {
	if store == nil {
		return
	}
	id := identity.Get()
	if err := store.Append(model.NewUnlockRecord(o, id.ComputerName, id.UserName)); err != nil {
		logger.Warn("审计记录写入失败", "path", o.Task.FilePath, "error", err)
	}
}

// ==========================================
// headers 命令 - 文件头规则管理
// ==========================================

var headersCmd = &cobra.Command{
	Use:   "headers",
	Short: "文件头签名规则管理",
}

var headersAddCmd = &cobra.Command{
	Use:   "add <HEX> <标签>",
	Short: "添加文件头签名规则",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		ruleHex, ruleLabel = args[0], args[1]

		if err := det.Registry().AddHex(ruleHex, ruleLabel, ruleIsEnc); err != nil {
			return err
		}

		cfg := config.Get()
		headers := append(cfg.Detector.Headers, config.HeaderRule{
			Pattern:   ruleHex,
			Label:     ruleLabel,
			Encrypted: ruleIsEnc,
		})
		if err := config.SaveRules(headers, cfg.Detector.Extensions); err != nil {
			return fmt.Errorf("规则已生效但持久化失败: %w", err)
		}

		colorGreen.Printf("已添加文件头: %s (%s)\n", ruleHex, ruleLabel)
		return nil
	},
}

var headersListCmd = &cobra.Command{
	Use:   "list",
	Short: "查看所有文件头签名规则",
	Run: func(cmd *cobra.Command, args []string) {
		for _, e := range det.Registry().Entries() {
			tag := "明文"
			if e.Encrypted {
				tag = "密文"
			}
			fmt.Printf("%X  %-20s [%s]\n", e.Pattern, e.Label, tag)
		}
	},
}

func init() {
	headersAddCmd.Flags().BoolVar(&ruleIsEnc, "encrypted", false, "该文件头对应加密容器")
	headersCmd.AddCommand(headersAddCmd)
	headersCmd.AddCommand(headersListCmd)
}

// ==========================================
// exts 命令 - 扩展名管理
// ==========================================

var extsCmd = &cobra.Command{
	Use:   "exts",
	Short: "标准扩展名管理",
}

var extsAddCmd = &cobra.Command{
	Use:   "add <扩展名>",
	Short: "添加标准扩展名",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := det.Extensions().Add(args[0]); err != nil {
			return err
		}

		cfg := config.Get()
		if err := config.SaveRules(cfg.Detector.Headers, det.Extensions().List()); err != nil {
			return fmt.Errorf("扩展名已生效但持久化失败: %w", err)
		}

		colorGreen.Printf("已添加扩展名: %s\n", args[0])
		return nil
	},
}

var extsListCmd = &cobra.Command{
	Use:   "list",
	Short: "查看所有标准扩展名",
	Run: func(cmd *cobra.Command, args []string) {
		for _, ext := range det.Extensions().List() {
			fmt.Println(ext)
		}
	},
}

func init() {
	extsCmd.AddCommand(extsAddCmd)
	extsCmd.AddCommand(extsListCmd)
}

// ==========================================
// update 命令 - 在线版本检查
// ==========================================

var updateCmd = &cobra.Command{
	Use:   "update",
	Short: "检查新版本",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg := config.Get()

		colorCyan.Println("正在检查新版本...")
		checker := update.NewChecker(cfg.Update.Endpoint, cfg.Update.Timeout)
		info, err := checker.Check(context.Background())
		if err != nil {
			// 版本检查失败不算命令失败，降级为状态提示
			switch update.Kind(err) {
			case model.ErrKindNetworkTimeout:
				colorYellow.Println("检查超时，请检查网络连接后重试")
			case model.ErrKindNetworkUnreachable:
				colorYellow.Println("无法连接到版本检查服务器")
			default:
				colorYellow.Printf("版本检查失败: %v\n", err)
			}
			return nil
		}

		if info.HasUpdate(config.Version) {
			colorGreen.Printf("发现新版本: %s (当前 %s)\n", info.Version, config.Version)
			if info.Notes != "" {
				fmt.Printf("更新说明:\n%s\n", truncate(info.Notes, 400))
			}
			fmt.Printf("下载页面: %s\n", info.URL)
		} else {
			colorGreen.Printf("当前版本 %s 已是最新版本\n", config.Version)
		}
		return nil
	},
}

// truncate 截断过长的更新说明
func truncate(s string, n int) string {
	runes := []rune(s)
	if len(runes) <= n {
		return s
	}
	return string(runes[:n]) + "..."
}
