// Package model 定义检测与解密流程的共享数据结构
package model

// ==========================================
// 文件加密状态枚举
// ==========================================

// Status 文件加密检测状态
type Status int

const (
	// StatusUnencrypted 未加密
	StatusUnencrypted Status = 0
	// StatusEncrypted 已加密
	StatusEncrypted Status = 1
	// StatusUnrecognized 未识别
	StatusUnrecognized Status = 2
	// StatusMissing 文件不存在
	StatusMissing Status = -1
)

// String 返回状态的用户可见文案
// 文案与旧版工具保持一致，上层直接展示
func (s Status) String() string {
	switch s {
	case StatusUnencrypted:
		return "未加密"
	case StatusEncrypted:
		return "已加密"
	case StatusUnrecognized:
		return "未识别"
	case StatusMissing:
		return "文件不存在"
	default:
		return "未知状态"
	}
}

// Code 返回状态码
// 状态码只由 Status 推导，与匹配过程无关
func (s Status) Code() int {
	return int(s)
}

// ==========================================
// 复核状态枚举
// ==========================================

// VerifyState 解密后复核状态
type VerifyState int

const (
	// VerifyNotApplicable 无需复核 (文件未被解密，例如本身未加密)
	VerifyNotApplicable VerifyState = 0
	// VerifyPassed 复核通过 (解密产物确认为未加密)
	VerifyPassed VerifyState = 1
	// VerifyFailed 复核未通过 (解密产物仍为加密或无法识别)
	// 未识别同样计为未通过：复核成功必须有正向确认
	VerifyFailed VerifyState = 2
)

// String 返回复核状态文案
func (v VerifyState) String() string {
	switch v {
	case VerifyNotApplicable:
		return "无需复核"
	case VerifyPassed:
		return "复核通过"
	case VerifyFailed:
		return "复核未通过"
	default:
		return "未知"
	}
}

// ==========================================
// 任务状态枚举
// ==========================================

// TaskState 解密任务执行状态
// 只跟踪在途任务；任务结束的终态由 DecryptOutcome 交付，
// 调度器随即移除跟踪条目，长跑进程不积累历史任务
type TaskState int

const (
	TaskQueued  TaskState = 0 // 排队中
	TaskRunning TaskState = 1 // 执行中
)

// ==========================================
// 错误类别
// ==========================================

// ErrorKind 错误分类
// 批处理中的失败不会中断其余任务，只体现在结果的错误类别上
type ErrorKind string

const (
	ErrKindNone               ErrorKind = ""                    // 无错误
	ErrKindPathNotFound       ErrorKind = "path_not_found"      // 路径不存在
	ErrKindDriverUnavailable  ErrorKind = "driver_unavailable"  // 外部解密程序未配置或不存在
	ErrKindDriverFailed       ErrorKind = "driver_failed"       // 外部解密程序执行失败或无产物
	ErrKindVerifyInconclusive ErrorKind = "verify_inconclusive" // 解密完成但复核未确认
	ErrKindNetworkTimeout     ErrorKind = "network_timeout"     // 网络超时
	ErrKindNetworkUnreachable ErrorKind = "network_unreachable" // 网络不可达
	ErrKindUpdateCheckFailed  ErrorKind = "update_check_failed" // 版本检查失败 (其他原因)
)
