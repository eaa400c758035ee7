// Package update 在线版本检查
// 对宿主进程永远非致命：任何失败都降级为一条可展示的状态
package update

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/baozaodexiaojuzi/orange-file-encryption-tool/internal/logger"
	"github.com/baozaodexiaojuzi/orange-file-encryption-tool/internal/model"
)

// 版本检查的三类可上报失败
var (
	// ErrTimeout 请求超时
	ErrTimeout = errors.New("update check timed out")
	// ErrUnreachable 无法连接版本检查服务器
	ErrUnreachable = errors.New("update server unreachable")
	// ErrFailed 其他失败 (非 200 状态码、响应解析失败等)
	ErrFailed = errors.New("update check failed")
)

// defaultTimeout 请求超时默认值
const defaultTimeout = 10 * time.Second

// ReleaseInfo 版本元数据
type ReleaseInfo struct {
	// 最新版本号 (已去掉前导 v)
	Version string
	// 更新说明
	Notes string
	// 下载页面地址
	URL string
}

// releasePayload 版本元数据接口的响应体 (GitHub releases 格式)
type releasePayload struct {
	TagName string `json:"tag_name"`
	Body    string `json:"body"`
	HTMLURL string `json:"html_url"`
}

// Checker 版本检查器
type Checker struct {
	endpoint string
	client   *http.Client
}

// NewChecker 创建版本检查器
func NewChecker(endpoint string, timeout time.Duration) *Checker {
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	return &Checker{
		endpoint: endpoint,
		client:   &http.Client{Timeout: timeout},
	}
}

// Check 请求版本元数据接口
func (c *Checker) Check(ctx context.Context) (*ReleaseInfo, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.endpoint, nil)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrFailed, err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, classifyNetErr(err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		logger.Warn("版本检查服务器返回异常状态码", "status", resp.StatusCode)
		return nil, fmt.Errorf("%w: unexpected status %d", ErrFailed, resp.StatusCode)
	}

	var payload releasePayload
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return nil, fmt.Errorf("%w: bad response body: %v", ErrFailed, err)
	}

	return &ReleaseInfo{
		Version: strings.TrimPrefix(payload.TagName, "v"),
		Notes:   payload.Body,
		URL:     payload.HTMLURL,
	}, nil
}

// HasUpdate 判断远端版本是否比当前版本新
func (r *ReleaseInfo) HasUpdate(current string) bool {
	return CompareVersions(r.Version, current) > 0
}

// Kind 把检查错误映射为错误类别
func Kind(err error) model.ErrorKind {
	switch {
	case err == nil:
		return model.ErrKindNone
	case errors.Is(err, ErrTimeout):
		return model.ErrKindNetworkTimeout
	case errors.Is(err, ErrUnreachable):
		return model.ErrKindNetworkUnreachable
	default:
		return model.ErrKindUpdateCheckFailed
	}
}

// classifyNetErr 区分超时和连接失败
func classifyNetErr(err error) error {
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return fmt.Errorf("%w: %v", ErrTimeout, err)
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return fmt.Errorf("%w: %v", ErrTimeout, err)
	}

	var opErr *net.OpError
	if errors.As(err, &opErr) {
		return fmt.Errorf("%w: %v", ErrUnreachable, err)
	}
	return fmt.Errorf("%w: %v", ErrFailed, err)
}

// CompareVersions 比较两个点分版本号
// 返回 1 表示 v1 > v2，-1 表示 v1 < v2，0 表示相等
// 长度不一致时短的一侧按 0 补齐；任何解析失败都返回 0 (视为无更新)，绝不 panic
func CompareVersions(v1, v2 string) int {
	p1, ok1 := parseParts(v1)
	p2, ok2 := parseParts(v2)
	if !ok1 || !ok2 {
		return 0
	}

	for len(p1) < len(p2) {
		p1 = append(p1, 0)
	}
	for len(p2) < len(p1) {
		p2 = append(p2, 0)
	}

	for i := range p1 {
		if p1[i] > p2[i] {
			return 1
		}
		if p1[i] < p2[i] {
			return -1
		}
	}
	return 0
}

// parseParts 把版本号按 . 拆成整数序列
func parseParts(v string) ([]int, bool) {
	fields := strings.Split(v, ".")
	parts := make([]int, 0, len(fields))
	for _, f := range fields {
		n, err := strconv.Atoi(f)
		if err != nil {
			return nil, false
		}
		parts = append(parts, n)
	}
	return parts, true
}
