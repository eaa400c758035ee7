// Package detector 文件加密检测核心实现
package detector

import (
	"bytes"
	"encoding/hex"
	"fmt"
	"sort"
	"strings"
	"sync"
)

// ==========================================
// 文件头签名表
// ==========================================

// SignatureEntry 签名表条目
// Encrypted 标记该文件头对应的是已知密文容器还是已知明文容器
type SignatureEntry struct {
	Pattern   []byte
	Label     string
	Encrypted bool
}

// SignatureRegistry 文件头签名表
// 进程级共享：worker 并发读取，只有显式的添加操作会写入
// 条目按 Pattern 长度降序保存，保证更具体的签名不会被它的前缀规则遮蔽
type SignatureRegistry struct {
	mu      sync.RWMutex
	entries []SignatureEntry
	maxLen  int
}

// NewSignatureRegistry 创建空签名表
func NewSignatureRegistry() *SignatureRegistry {
	return &SignatureRegistry{}
}

// AddHex 添加签名规则
// pattern 为 HEX 字符串；非法 HEX 直接拒绝，不会污染已有规则
// 完全相同的 pattern 若 label 或方向不一致，视为冲突拒绝；完全一致则幂等跳过
func (r *SignatureRegistry) AddHex(pattern, label string, encrypted bool) error {
	pattern = strings.TrimSpace(pattern)
	label = strings.TrimSpace(label)

	if pattern == "" {
		return fmt.Errorf("empty header pattern")
	}
	if label == "" {
		return fmt.Errorf("empty format label")
	}

	raw, err := hex.DecodeString(pattern)
	if err != nil {
		return fmt.Errorf("invalid hex pattern %q: %w", pattern, err)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	for _, e := range r.entries {
		if bytes.Equal(e.Pattern, raw) {
			if e.Label == label && e.Encrypted == encrypted {
				return nil // 重复添加同一条规则，幂等
			}
			return fmt.Errorf("conflicting rule for pattern %s: already registered as %q", pattern, e.Label)
		}
	}

	r.entries = append(r.entries, SignatureEntry{
		Pattern:   raw,
		Label:     label,
		Encrypted: encrypted,
	})

	// 长度降序；等长保持插入顺序
	sort.SliceStable(r.entries, func(i, j int) bool {
		return len(r.entries[i].Pattern) > len(r.entries[j].Pattern)
	})

	if len(raw) > r.maxLen {
		r.maxLen = len(raw)
	}
	return nil
}

// Match 用文件头前缀匹配签名表，最长规则优先，命中即返回
func (r *SignatureRegistry) Match(header []byte) (SignatureEntry, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	for _, e := range r.entries {
		if bytes.HasPrefix(header, e.Pattern) {
			return e, true
		}
	}
	return SignatureEntry{}, false
}

// MaxPatternLen 返回当前最长签名的字节数
// 检测时按这个长度一次性读取文件头，避免逐条规则重复读文件
func (r *SignatureRegistry) MaxPatternLen() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.maxLen
}

// Entries 返回签名表快照
func (r *SignatureRegistry) Entries() []SignatureEntry {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]SignatureEntry, len(r.entries))
	copy(out, r.entries)
	return out
}

// ==========================================
// 标准扩展名集合
// ==========================================

// ExtensionSet 标准扩展名集合
// 作为文件头未命中时的次级弱信号：命中视为未加密容器
type ExtensionSet struct {
	mu  sync.RWMutex
	set map[string]struct{}
}

// NewExtensionSet 创建空扩展名集合
func NewExtensionSet() *ExtensionSet {
	return &ExtensionSet{set: make(map[string]struct{})}
}

// Add 添加扩展名
// 去除空白和前导点并转小写；空输入拒绝
func (s *ExtensionSet) Add(ext string) error {
	ext = normalizeExt(ext)
	if ext == "" {
		return fmt.Errorf("empty extension")
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.set[ext] = struct{}{}
	return nil
}

// Contains 判断扩展名是否为标准扩展名
func (s *ExtensionSet) Contains(ext string) bool {
	ext = normalizeExt(ext)
	if ext == "" {
		return false
	}

	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.set[ext]
	return ok
}

// List 返回排序后的扩展名列表
func (s *ExtensionSet) List() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]string, 0, len(s.set))
	for ext := range s.set {
		out = append(out, ext)
	}
	sort.Strings(out)
	return out
}

// normalizeExt 扩展名归一化：小写、去空白、去前导点
func normalizeExt(ext string) string {
	ext = strings.ToLower(strings.TrimSpace(ext))
	return strings.TrimPrefix(ext, ".")
}
