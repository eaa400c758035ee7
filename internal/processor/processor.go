// Package processor 外部解密程序驱动
// 不理解文档格式本身，只负责正确调用外部程序、限定其运行时间、观察产物
package processor

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"sync/atomic"
	"time"

	"github.com/baozaodexiaojuzi/orange-file-encryption-tool/internal/logger"
)

// 驱动层错误
// 调用方只区分 "程序不可用" 和 "执行失败" 两类，具体原因只进日志
var (
	// ErrUnavailable 外部程序未配置或不存在
	ErrUnavailable = errors.New("unlock program unavailable")
	// ErrFailed 外部程序执行失败、超时或无有效产物
	ErrFailed = errors.New("unlock program failed")
)

// defaultTimeout 外部程序调用的默认硬超时
// 挂死的外部进程会永久占用一个并发槽位，必须有上限
const defaultTimeout = 120 * time.Second

// UnlockProcessor 外部解密程序驱动
// 没有内部状态机：调用、等待、观察产物，复杂度全部在失败兜底上
type UnlockProcessor struct {
	programPath string
	timeout     time.Duration

	// 调用计数，供测试和统计观察
	invocations atomic.Int64
}

// NewUnlockProcessor 创建驱动
// programPath 为空是合法状态，此时每次调用都干净地失败
func NewUnlockProcessor(programPath string, timeout time.Duration) *UnlockProcessor {
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	return &UnlockProcessor{
		programPath: programPath,
		timeout:     timeout,
	}
}

// OutputPath 解密产物的约定路径：与源文件同目录的 <名字>_unlocked<扩展名>
func OutputPath(path string) string {
	ext := filepath.Ext(path)
	stem := strings.TrimSuffix(filepath.Base(path), ext)
	return filepath.Join(filepath.Dir(path), stem+"_unlocked"+ext)
}

// Process 调用外部程序对 path 产出解密副本，返回产物路径
// 任何失败都通过错误返回，不会向调度器抛异常
func (p *UnlockProcessor) Process(ctx context.Context, path string) (string, error) {
	if p.programPath == "" {
		return "", fmt.Errorf("%w: program path not configured", ErrUnavailable)
	}
	if _, err := exec.LookPath(p.programPath); err != nil {
		return "", fmt.Errorf("%w: %v", ErrUnavailable, err)
	}

	output := OutputPath(path)

	runCtx, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()

	// 外部程序约定: <program> <输入文件> <输出文件>
	// 等价于 "打开文档，另存为原生未加密格式"
	cmd := exec.CommandContext(runCtx, p.programPath, path, output)
	p.invocations.Add(1)

	start := time.Now()
	err := cmd.Run()
	elapsed := time.Since(start)

	if err != nil {
		if runCtx.Err() == context.DeadlineExceeded {
			logger.Error("外部解密程序超时", "path", path, "timeout", p.timeout)
			return "", fmt.Errorf("%w: timeout after %v", ErrFailed, p.timeout)
		}
		logger.Error("外部解密程序执行失败", "path", path, "elapsed", elapsed, "error", err)
		return "", fmt.Errorf("%w: %v", ErrFailed, err)
	}

	// 进程正常退出不代表成功，必须观察到非空产物
	info, statErr := os.Stat(output)
	if statErr != nil || info.Size() == 0 {
		logger.Error("外部解密程序无有效产物", "path", path, "expected_output", output)
		return "", fmt.Errorf("%w: no output artifact at %s", ErrFailed, output)
	}

	logger.Info("解密产物生成", "path", path, "output", output, "elapsed", elapsed)
	return output, nil
}

// Invocations 返回累计调用次数
func (p *UnlockProcessor) Invocations() int64 {
	return p.invocations.Load()
}
