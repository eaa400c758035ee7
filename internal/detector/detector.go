package detector

import (
	"io"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/h2non/filetype"

	"github.com/baozaodexiaojuzi/orange-file-encryption-tool/internal/config"
	"github.com/baozaodexiaojuzi/orange-file-encryption-tool/internal/logger"
	"github.com/baozaodexiaojuzi/orange-file-encryption-tool/internal/model"
)

// filetype 库的内容嗅探需要前 261 字节
const sniffLen = 261

// EncryptionDetector 文件加密检测器
// Classify 是全函数：文件不存在、不可读都编码在状态里，永远不向上抛错
type EncryptionDetector struct {
	registry   *SignatureRegistry
	extensions *ExtensionSet
}

// NewEncryptionDetector 创建检测器
func NewEncryptionDetector(registry *SignatureRegistry, extensions *ExtensionSet) *EncryptionDetector {
	return &EncryptionDetector{
		registry:   registry,
		extensions: extensions,
	}
}

// NewFromConfig 按配置的规则库构造检测器
// 配置里的非法规则跳过并告警，不阻断启动
func NewFromConfig(cfg config.DetectorConfig) *EncryptionDetector {
	registry := NewSignatureRegistry()
	for _, h := range cfg.Headers {
		if err := registry.AddHex(h.Pattern, h.Label, h.Encrypted); err != nil {
			logger.Warn("跳过非法文件头规则", "pattern", h.Pattern, "error", err)
		}
	}

	extensions := NewExtensionSet()
	for _, ext := range cfg.Extensions {
		if err := extensions.Add(ext); err != nil {
			logger.Warn("跳过非法扩展名", "ext", ext, "error", err)
		}
	}

	return NewEncryptionDetector(registry, extensions)
}

// Registry 返回签名表 (供设置界面/命令行追加规则)
func (d *EncryptionDetector) Registry() *SignatureRegistry {
	return d.registry
}

// Extensions 返回扩展名集合
func (d *EncryptionDetector) Extensions() *ExtensionSet {
	return d.extensions
}

// Classify 检测单个文件的加密状态
// 判定顺序：文件头签名 (最长优先) → 内容嗅探 → 扩展名 → 未识别
func (d *EncryptionDetector) Classify(path string) model.DetectionResult {
	info, err := os.Stat(path)
	if err != nil || info.IsDir() {
		return model.NewDetectionResult(path, model.StatusMissing, "")
	}

	header, err := d.readHeader(path)
	if err != nil {
		// 存在但读不了 (权限等)，对调用方等同于文件不存在
		logger.Warn("文件头读取失败", "path", path, "error", err)
		return model.NewDetectionResult(path, model.StatusMissing, "")
	}

	// 1. 文件头签名，最长规则优先
	if entry, ok := d.registry.Match(header); ok {
		status := model.StatusUnencrypted
		if entry.Encrypted {
			status = model.StatusEncrypted
		}
		return model.NewDetectionResult(path, status, entry.Label)
	}

	// 2. 内容嗅探：已知的图片/文档/压缩包/音视频容器均视为未加密
	if kind, err := filetype.Match(header); err == nil && kind != filetype.Unknown {
		if filetype.IsImage(header) || filetype.IsDocument(header) ||
			filetype.IsArchive(header) || filetype.IsVideo(header) || filetype.IsAudio(header) {
			return model.NewDetectionResult(path, model.StatusUnencrypted, kind.Extension)
		}
	}

	// 3. 扩展名兜底：标准扩展名视为未加密容器
	ext := filepath.Ext(path)
	if d.extensions.Contains(ext) {
		return model.NewDetectionResult(path, model.StatusUnencrypted, normalizeExt(ext))
	}

	// 4. 两类信号都未命中
	return model.NewDetectionResult(path, model.StatusUnrecognized, "")
}

// Verify 复核解密产物
// 只有正向确认为未加密才算通过；未识别保守地计为未通过
func (d *EncryptionDetector) Verify(path string) model.VerifyState {
	if d.Classify(path).Status == model.StatusUnencrypted {
		return model.VerifyPassed
	}
	return model.VerifyFailed
}

// ScanDirectory 递归扫描目录，对每个普通文件产生一条检测结果
// 遍历错误不会中断扫描，收集起来与结果分开返回
func (d *EncryptionDetector) ScanDirectory(root string) ([]model.DetectionResult, []error) {
	results := make([]model.DetectionResult, 0)
	var walkErrs []error

	err := filepath.WalkDir(root, func(path string, entry fs.DirEntry, err error) error {
		if err != nil {
			walkErrs = append(walkErrs, err)
			return nil
		}
		if !entry.Type().IsRegular() {
			return nil
		}
		results = append(results, d.Classify(path))
		return nil
	})
	if err != nil {
		walkErrs = append(walkErrs, err)
	}

	return results, walkErrs
}

// readHeader 一次性读取文件头
// 读取长度取签名表最长规则和内容嗅探需求的较大值；短文件读到多少算多少
func (d *EncryptionDetector) readHeader(path string) ([]byte, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	n := d.registry.MaxPatternLen()
	if n < sniffLen {
		n = sniffLen
	}

	buf := make([]byte, n)
	read, err := io.ReadFull(f, buf)
	if err != nil && err != io.ErrUnexpectedEOF && err != io.EOF {
		return nil, err
	}
	return buf[:read], nil
}
