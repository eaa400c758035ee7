package model

// UnlockRecord 解密操作审计记录
// 每条 DecryptOutcome 落一条记录，供事后追溯
type UnlockRecord struct {
	ID uint `json:"id" gorm:"primaryKey;autoIncrement"`

	// 任务 ID
	TaskID string `json:"task_id" gorm:"type:varchar(36);index"`

	// 目标文件路径
	FilePath string `json:"file_path" gorm:"type:text"`

	// 检测状态码
	StatusCode int `json:"status_code" gorm:"type:int;index"`

	// 文件类型标签
	FileType string `json:"file_type" gorm:"type:varchar(64)"`

	// 解密产物路径
	DecryptedPath string `json:"decrypted_path" gorm:"type:text"`

	// 复核状态
	Verify int `json:"verify" gorm:"type:int"`

	// 错误类别
	ErrKind string `json:"err_kind" gorm:"type:varchar(64)"`

	// 任务耗时 (毫秒)
	DurationMS int64 `json:"duration_ms" gorm:"type:bigint"`

	// 主机与操作者信息
	ComputerName string `json:"computer_name" gorm:"type:varchar(128)"`
	UserName     string `json:"user_name" gorm:"type:varchar(128)"`

	// 记录时间
	CreatedAt int64 `json:"created_at" gorm:"autoCreateTime"`
}

// TableName 指定表名
func (UnlockRecord) TableName() string {
	return "unlock_records"
}

// NewUnlockRecord 由解密结果构造审计记录
func NewUnlockRecord(o DecryptOutcome, computer, user string) UnlockRecord {
	return UnlockRecord{
		TaskID:        o.Task.ID,
		FilePath:      o.Task.FilePath,
		StatusCode:    o.Status.Code(),
		FileType:      o.FileType,
		DecryptedPath: o.DecryptedPath,
		Verify:        int(o.Verify),
		ErrKind:       string(o.Err),
		DurationMS:    o.Duration.Milliseconds(),
		ComputerName:  computer,
		UserName:      user,
	}
}
