package model

import (
	"time"

	"github.com/google/uuid"
)

// ==========================================
// 解密任务
// ==========================================

// DecryptTask 解密任务
// 创建后不可变；调度器只在外部记录任务的执行状态，不修改任务本身
// 每个任务恰好被一个 worker 消费一次，产出一个 DecryptOutcome 后丢弃
type DecryptTask struct {
	// 任务 ID
	ID string `json:"id"`

	// 目标文件路径
	FilePath string `json:"file_path"`

	// 入队时间
	EnqueuedAt time.Time `json:"enqueued_at"`
}

// NewDecryptTask 创建解密任务
func NewDecryptTask(path string) DecryptTask {
	return DecryptTask{
		ID:         uuid.New().String(),
		FilePath:   path,
		EnqueuedAt: time.Now(),
	}
}

// ==========================================
// 解密结果
// ==========================================

// DecryptOutcome 单个解密任务的终态报告
// 跳过、成功、失败都会产生一条结果，批处理 N 个文件必定产生 N 条
type DecryptOutcome struct {
	// 对应的任务
	Task DecryptTask `json:"task"`

	// 检测状态 (worker 内部先检测再决定是否解密)
	Status Status `json:"status"`

	// 检测到的文件类型标签
	FileType string `json:"file_type,omitempty"`

	// 解密产物路径，解密失败或未执行解密时为空
	DecryptedPath string `json:"decrypted_path,omitempty"`

	// 复核状态
	Verify VerifyState `json:"verify"`

	// 错误类别
	Err ErrorKind `json:"error,omitempty"`

	// 任务耗时
	Duration time.Duration `json:"duration_ns"`
}

// Succeeded 是否为 "已解密且复核通过"
func (o DecryptOutcome) Succeeded() bool {
	return o.Status == StatusEncrypted && o.DecryptedPath != "" && o.Verify == VerifyPassed
}

// Skipped 是否为跳过 (文件本身无需解密)
func (o DecryptOutcome) Skipped() bool {
	return o.Status != StatusEncrypted
}
