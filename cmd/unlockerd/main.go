package main

import (
	"flag"
	"fmt"
	"io/fs"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"sync"
	"syscall"
	"time"

	"github.com/baozaodexiaojuzi/orange-file-encryption-tool/internal/config"
	"github.com/baozaodexiaojuzi/orange-file-encryption-tool/internal/detector"
	"github.com/baozaodexiaojuzi/orange-file-encryption-tool/internal/identity"
	"github.com/baozaodexiaojuzi/orange-file-encryption-tool/internal/logger"
	"github.com/baozaodexiaojuzi/orange-file-encryption-tool/internal/model"
	"github.com/baozaodexiaojuzi/orange-file-encryption-tool/internal/processor"
	"github.com/baozaodexiaojuzi/orange-file-encryption-tool/internal/scheduler"
	"github.com/baozaodexiaojuzi/orange-file-encryption-tool/internal/storage"
)

// ==========================================
// 全局服务实例
// ==========================================

var (
	// 批量解密调度器
	sched *scheduler.BatchScheduler

	// 审计记录存储
	store *storage.UnlockStore

	// 周期扫描退出信号
	watchStop = make(chan struct{})

	// 结果消费协程的退出同步
	consumerDone = make(chan struct{})
)

// ==========================================
// 参数解析
// ==========================================

// parseArgs 解析命令行参数
func parseArgs() string {
	configPath := flag.String("c", "configs/config.yml", "配置文件路径")
	flag.Parse()
	return *configPath
}

// ==========================================
// 配置加载
// ==========================================

// loadConfig 加载配置文件
func loadConfig(configPath string) error {
	fmt.Printf("正在加载配置文件: %s\n", configPath)
	if err := config.LoadConfig(configPath); err != nil {
		return fmt.Errorf("加载配置文件失败: %v", err)
	}
	fmt.Printf("配置文件加载成功: %s\n", configPath)
	return nil
}

// ==========================================
// 基础设施初始化
// ==========================================

// initLogger 初始化日志系统
func initLogger() error {
	cfg := config.Get()
	fmt.Println("正在初始化日志系统...")
	if err := logger.Setup(logger.Options{
		Level:      cfg.Agent.LogLevel,
		FilePath:   cfg.Agent.LogFile,
		MaxSize:    cfg.Agent.LogMaxSize,
		MaxBackups: cfg.Agent.LogMaxBackups,
		MaxAge:     cfg.Agent.LogMaxAge,
		Compress:   cfg.Agent.LogCompress,
		Stdout:     cfg.Agent.LogStdout,
	}); err != nil {
		return fmt.Errorf("日志系统初始化失败: %w", err)
	}
	logger.Info("Daemon initialized", "version", config.Version)
	return nil
}

// initDatabase 初始化数据库
func initDatabase() error {
	fmt.Println("正在初始化数据库...")
	cfg := config.Get()
	dbCfg := cfg.Database

	if err := storage.Setup(storage.Options{
		DataDir:         cfg.Agent.DataDir,
		FileName:        dbCfg.FileName,
		LogLevel:        dbCfg.LogLevel,
		MaxOpenConns:    dbCfg.MaxOpenConns,
		MaxIdleConns:    dbCfg.MaxIdleConns,
		ConnMaxLifetime: dbCfg.ConnMaxLifetime,
		JournalMode:     dbCfg.JournalMode,
		Synchronous:     dbCfg.Synchronous,
	}); err != nil {
		return fmt.Errorf("database setup failed: %w", err)
	}
	logger.Info("数据库初始化成功")
	return nil
}

// initStore 初始化审计记录存储
func initStore() error {
	fmt.Println("正在初始化存储实例...")

	db, err := storage.GetDB()
	if err != nil {
		return fmt.Errorf("failed to get DB instance: %w", err)
	}

	store, err = storage.NewUnlockStore(db)
	if err != nil {
		return fmt.Errorf("failed to setup unlock store: %w", err)
	}
	logger.Info("存储实例初始化成功")
	return nil
}

// ==========================================
// 业务模块初始化
// ==========================================

// initIdentity 初始化身份信息
func initIdentity() {
	fmt.Println("正在初始化身份信息...")
	identity.Init()

	id := identity.Get()
	logger.Info("身份信息加载完成",
		"computer", id.ComputerName,
		"user", id.UserName,
	)
}

// initScheduler 初始化检测器与解密调度器
func initScheduler() {
	fmt.Println("正在初始化解密调度器...")
	cfg := config.Get()

	det := detector.NewFromConfig(cfg.Detector)
	proc := processor.NewUnlockProcessor(cfg.Unlock.ProgramPath, cfg.Unlock.Timeout)
	sched = scheduler.New(det, proc, scheduler.Options{
		Workers: cfg.Unlock.Workers,
	})

	logger.Info("解密调度器初始化成功",
		"workers", cfg.Unlock.Workers,
		"program", cfg.Unlock.ProgramPath,
		"timeout", cfg.Unlock.Timeout,
	)
}

// ==========================================
// 服务启动
// ==========================================

// startScheduler 启动调度器与结果消费协程
func startScheduler() {
	fmt.Println("正在启动解密调度器...")
	sched.Start()

	go consumeOutcomes()
	logger.Info("解密调度器启动成功")
}

// consumeOutcomes 消费解密结果：逐条记日志并落审计库
// 调度器 Stop 排空在途任务后关闭通道，本协程随之退出
func consumeOutcomes() {
	defer close(consumerDone)

	id := identity.Get()
	for o := range sched.Outcomes() {
		logOutcome(o)

		if err := store.Append(model.NewUnlockRecord(o, id.ComputerName, id.UserName)); err != nil {
			logger.Error("审计记录写入失败", "path", o.Task.FilePath, "error", err)
		}
	}
}

// logOutcome 按结局类别记录日志
func logOutcome(o model.DecryptOutcome) {
	fields := []any{
		"task_id", o.Task.ID,
		"path", o.Task.FilePath,
		"status", o.Status.String(),
		"duration", o.Duration,
	}

	switch {
	case o.Err != model.ErrKindNone:
		logger.Warn("解密任务未成功", append(fields, "error_kind", string(o.Err))...)
	case o.Succeeded():
		logger.Info("解密成功", append(fields, "output", o.DecryptedPath)...)
	case o.Skipped():
		logger.Info("文件无需解密", fields...)
	}
}

// startWatchLoop 启动目录周期扫描
// 没有 inotify 之类的事件源，靠固定周期全量扫描加已见路径去重兜底
func startWatchLoop() {
	cfg := config.Get()
	if len(cfg.Unlock.WatchDirs) == 0 {
		logger.Info("未配置监控目录，跳过周期扫描")
		return
	}

	fmt.Println("正在启动目录周期扫描...")
	go watchLoop(cfg.Unlock.WatchDirs, cfg.Unlock.ScanInterval)
	logger.Info("目录周期扫描启动成功",
		"dirs", strings.Join(cfg.Unlock.WatchDirs, ","),
		"interval", cfg.Unlock.ScanInterval,
	)
}

// watchLoop 周期扫描监控目录，新出现的文件入队
func watchLoop(dirs []string, interval time.Duration) {
	if interval <= 0 {
		interval = 5 * time.Minute
	}

	// 已入队路径集合：同一文件跨扫描周期只入队一次
	seen := make(map[string]struct{})
	var mu sync.Mutex

	scan := func() {
		for _, dir := range dirs {
			enqueueNewFiles(dir, seen, &mu)
		}
	}

	scan() // 启动先扫一轮，不等第一个周期

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			scan()
		case <-watchStop:
			return
		}
	}
}

// enqueueNewFiles 把目录下未见过的文件入队
// 解密产物 (含 _unlocked 后缀) 跳过，避免消费自己的输出
func enqueueNewFiles(dir string, seen map[string]struct{}, mu *sync.Mutex) {
	enqueued := 0
	err := filepath.WalkDir(dir, func(path string, entry fs.DirEntry, err error) error {
		if err != nil {
			logger.Warn("监控目录遍历错误", "dir", dir, "error", err)
			return nil
		}
		if !entry.Type().IsRegular() {
			return nil
		}
		if strings.Contains(entry.Name(), "_unlocked") {
			return nil
		}

		mu.Lock()
		_, dup := seen[path]
		if !dup {
			seen[path] = struct{}{}
		}
		mu.Unlock()
		if dup {
			return nil
		}

		sched.Enqueue(path)
		enqueued++
		return nil
	})
	if err != nil {
		logger.Warn("监控目录遍历错误", "dir", dir, "error", err)
	}

	if enqueued > 0 {
		logger.Info("周期扫描入队", "dir", dir, "count", enqueued)
	}
}

// ==========================================
// 服务停止
// ==========================================

// stopWatchLoop 停止目录周期扫描
func stopWatchLoop() {
	fmt.Println("正在停止目录周期扫描...")
	close(watchStop)
}

// stopScheduler 停止调度器并等待结果消费完
func stopScheduler() {
	fmt.Println("正在停止解密调度器 (等待在途任务完成)...")
	sched.Stop()
	<-consumerDone
	logger.Info("解密调度器已停止")
}

// closeStorage 关闭数据库
func closeStorage() {
	fmt.Println("正在关闭数据库...")
	if err := storage.Close(); err != nil {
		logger.Error("数据库关闭失败", "error", err)
	} else {
		logger.Info("数据库已关闭")
	}
}

// ==========================================
// 主入口
// ==========================================

func main() {
	// ==========================================
	// 阶段 1: 参数解析与配置加载
	// ==========================================
	configPath := parseArgs()

	if err := loadConfig(configPath); err != nil {
		panic(fmt.Sprintf("配置加载失败: %v", err))
	}

	// ==========================================
	// 阶段 2: 基础设施初始化
	// ==========================================
	if err := initLogger(); err != nil {
		panic(fmt.Sprintf("日志系统初始化失败: %v", err))
	}

	if err := initDatabase(); err != nil {
		panic(fmt.Sprintf("数据库初始化失败: %v", err))
	}

	if err := initStore(); err != nil {
		panic(fmt.Sprintf("存储实例初始化失败: %v", err))
	}

	// ==========================================
	// 阶段 3: 业务模块初始化
	// ==========================================
	initIdentity()
	initScheduler()

	// ==========================================
	// 阶段 4: 服务启动
	// ==========================================
	startScheduler()
	startWatchLoop()

	// ==========================================
	// 阶段 5: 运行中
	// ==========================================
	fmt.Println("=== 应用已完全启动 (按 Ctrl+C 停止) ===")
	logger.Info("应用启动完成")

	// ==========================================
	// 阶段 6: 优雅退出
	// ==========================================
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	sig := <-sigChan
	fmt.Printf("\n[Main] 收到信号: %v，正在关闭服务...\n", sig)

	// 按依赖顺序停止服务 (后启动的先停止)
	stopWatchLoop()
	stopScheduler()
	closeStorage()

	fmt.Println("[Main] 程序已安全退出")
}
