package model

// DetectionResult 单个文件的加密检测结果
// 每次检测调用产生一个新实例，汇报后即丢弃，没有持久身份
type DetectionResult struct {
	// 文件路径
	FilePath string `json:"file_path"`

	// 检测状态
	Status Status `json:"status"`

	// 状态码 (冗余字段，方便直接序列化给上层；恒等于 Status.Code())
	StatusCode int `json:"status_code"`

	// 文件类型标签
	// 仅当文件头或扩展名命中规则库时填充，只作为展示信息，不参与控制流
	FileType string `json:"file_type,omitempty"`
}

// NewDetectionResult 构造检测结果，状态码由状态推导
func NewDetectionResult(path string, status Status, fileType string) DetectionResult {
	return DetectionResult{
		FilePath:   path,
		Status:     status,
		StatusCode: status.Code(),
		FileType:   fileType,
	}
}
