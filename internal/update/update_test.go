package update

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/baozaodexiaojuzi/orange-file-encryption-tool/internal/model"
)

// TestCompareVersions 版本比较规则
func TestCompareVersions(t *testing.T) {
	tests := []struct {
		v1, v2 string
		want   int
	}{
		{"5.2", "5.1", 1},
		{"5.1", "5.2", -1},
		{"5.1", "5.1.0", 0},
		{"5.1.0", "5.1", 0},
		{"6.0", "5.9.9", 1},
		{"1.0.0", "1.0.0", 0},
		{"10.0", "9.9", 1},
		// 解析失败一律返回 0，绝不 panic
		{"abc", "1.0", 0},
		{"1.0", "abc", 0},
		{"", "1.0", 0},
		{"1..2", "1.0", 0},
	}

	for _, tt := range tests {
		if got := CompareVersions(tt.v1, tt.v2); got != tt.want {
			t.Errorf("CompareVersions(%q, %q) = %d, want %d", tt.v1, tt.v2, got, tt.want)
		}
	}
}

// TestCheck_OK 正常响应解析出版本元数据
func TestCheck_OK(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{
			"tag_name": "v6.2",
			"body": "修复若干问题",
			"html_url": "https://example.com/releases/v6.2"
		}`))
	}))
	defer srv.Close()

	c := NewChecker(srv.URL, 5*time.Second)
	info, err := c.Check(context.Background())
	if err != nil {
		t.Fatalf("Check failed: %v", err)
	}

	if info.Version != "6.2" {
		t.Errorf("Version = %q, want '6.2' (前导 v 去除)", info.Version)
	}
	if info.Notes != "修复若干问题" {
		t.Errorf("Notes = %q", info.Notes)
	}
	if info.URL != "https://example.com/releases/v6.2" {
		t.Errorf("URL = %q", info.URL)
	}

	if !info.HasUpdate("6.0") {
		t.Error("Expected update available against 6.0")
	}
	if info.HasUpdate("6.2") {
		t.Error("Did not expect update against same version")
	}
}

// TestCheck_BadStatus 非 200 归为通用失败
func TestCheck_BadStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	c := NewChecker(srv.URL, 5*time.Second)
	_, err := c.Check(context.Background())
	if !errors.Is(err, ErrFailed) {
		t.Errorf("Expected ErrFailed, got %v", err)
	}
	if Kind(err) != model.ErrKindUpdateCheckFailed {
		t.Errorf("Kind = %q, want update_check_failed", Kind(err))
	}
}

// TestCheck_Timeout 服务器挂起时报超时
func TestCheck_Timeout(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		time.Sleep(2 * time.Second)
	}))
	defer srv.Close()

	c := NewChecker(srv.URL, 100*time.Millisecond)
	_, err := c.Check(context.Background())
	if !errors.Is(err, ErrTimeout) {
		t.Errorf("Expected ErrTimeout, got %v", err)
	}
	if Kind(err) != model.ErrKindNetworkTimeout {
		t.Errorf("Kind = %q, want network_timeout", Kind(err))
	}
}

// TestCheck_Unreachable 连接被拒时报不可达
func TestCheck_Unreachable(t *testing.T) {
	// 先起一个服务器再关掉，拿到一个必然拒绝连接的地址
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	addr := srv.URL
	srv.Close()

	c := NewChecker(addr, 2*time.Second)
	_, err := c.Check(context.Background())
	if err == nil {
		t.Fatal("Expected error for unreachable server")
	}
	if !errors.Is(err, ErrUnreachable) {
		t.Errorf("Expected ErrUnreachable, got %v", err)
	}
	if Kind(err) != model.ErrKindNetworkUnreachable {
		t.Errorf("Kind = %q, want network_unreachable", Kind(err))
	}
}

// TestKind_Nil 无错误映射为空类别
func TestKind_Nil(t *testing.T) {
	if Kind(nil) != model.ErrKindNone {
		t.Errorf("Kind(nil) = %q, want empty", Kind(nil))
	}
}
