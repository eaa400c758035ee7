package scheduler

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/baozaodexiaojuzi/orange-file-encryption-tool/internal/model"
	"github.com/baozaodexiaojuzi/orange-file-encryption-tool/internal/processor"
)

// --- 测试替身 ---

// fakeDetector 按路径关键字返回固定检测结果
// 路径含 "enc" → 已加密，"plain" → 未加密，"miss" → 不存在，其余 → 未识别
// 路径含 "_unlocked" 的复核目标按 verifyState 返回
type fakeDetector struct {
	verifyState model.VerifyState
}

func (d *fakeDetector) Classify(path string) model.DetectionResult {
	name := filepath.Base(path)
	switch {
	case strings.Contains(name, "enc"):
		return model.NewDetectionResult(path, model.StatusEncrypted, "secfile")
	case strings.Contains(name, "plain"):
		return model.NewDetectionResult(path, model.StatusUnencrypted, "pdf")
	case strings.Contains(name, "miss"):
		return model.NewDetectionResult(path, model.StatusMissing, "")
	default:
		return model.NewDetectionResult(path, model.StatusUnrecognized, "")
	}
}

func (d *fakeDetector) Verify(path string) model.VerifyState {
	return d.verifyState
}

// fakeProcessor 记录调用次数和并发峰值的假外部程序驱动
type fakeProcessor struct {
	mu          sync.Mutex
	invocations int64
	current     int32
	peak        int32
	delay       time.Duration
	err         error
}

func (p *fakeProcessor) Process(ctx context.Context, path string) (string, error) {
	atomic.AddInt64(&p.invocations, 1)

	cur := atomic.AddInt32(&p.current, 1)
	defer atomic.AddInt32(&p.current, -1)

	p.mu.Lock()
	if cur > p.peak {
		p.peak = cur
	}
	p.mu.Unlock()

	if p.delay > 0 {
		select {
		case <-time.After(p.delay):
		case <-ctx.Done():
			return "", fmt.Errorf("%w: %v", processor.ErrFailed, ctx.Err())
		}
	}

	if p.err != nil {
		return "", p.err
	}
	return processor.OutputPath(path), nil
}

func (p *fakeProcessor) Invocations() int64 {
	return atomic.LoadInt64(&p.invocations)
}

func (p *fakeProcessor) Peak() int32 {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.peak
}

// collectOutcomes 消费 n 条结果，超时则失败
func collectOutcomes(t *testing.T, s *BatchScheduler, n int) []model.DecryptOutcome {
	t.Helper()

	outcomes := make([]model.DecryptOutcome, 0, n)
	timeout := time.After(10 * time.Second)
	for len(outcomes) < n {
		select {
		case o := <-s.Outcomes():
			outcomes = append(outcomes, o)
		case <-timeout:
			t.Fatalf("Timed out waiting for outcomes: got %d, want %d", len(outcomes), n)
		}
	}
	return outcomes
}

// --- 用例 ---

// TestScheduler_ExactlyNOutcomes 入队 N 个任务必产生恰好 N 条结果，不重不漏
func TestScheduler_ExactlyNOutcomes(t *testing.T) {
	det := &fakeDetector{verifyState: model.VerifyPassed}
	proc := &fakeProcessor{}
	s := New(det, proc, Options{Workers: 4})
	s.Start()
	defer s.Stop()

	const n = 30
	seen := make(map[string]bool, n)
	for i := 0; i < n; i++ {
		// 混合各类状态
		var name string
		switch i % 4 {
		case 0:
			name = fmt.Sprintf("enc_%d.bin", i)
		case 1:
			name = fmt.Sprintf("plain_%d.pdf", i)
		case 2:
			name = fmt.Sprintf("miss_%d.bin", i)
		default:
			name = fmt.Sprintf("other_%d.xyz", i)
		}
		task := s.Enqueue(filepath.Join("/data", name))
		seen[task.ID] = false
	}

	outcomes := collectOutcomes(t, s, n)

	for _, o := range outcomes {
		dup, ok := seen[o.Task.ID]
		if !ok {
			t.Errorf("Outcome for unknown task %s", o.Task.ID)
		}
		if dup {
			t.Errorf("Duplicate outcome for task %s", o.Task.ID)
		}
		seen[o.Task.ID] = true

		// 结果交付即任务结束，跟踪条目随之移除，长跑进程不积累历史任务
		if state, ok := s.TaskState(o.Task.ID); ok {
			t.Errorf("Task %s still tracked after outcome delivery (state=%v)", o.Task.ID, state)
		}
	}
}

// TestScheduler_NeverInvokesDriverForSkipped 非加密文件绝不调用外部程序
func TestScheduler_NeverInvokesDriverForSkipped(t *testing.T) {
	det := &fakeDetector{}
	proc := &fakeProcessor{}
	s := New(det, proc, Options{Workers: 2})
	s.Start()
	defer s.Stop()

	s.Enqueue("/data/plain_a.pdf")
	s.Enqueue("/data/unknown_b.xyz")
	s.Enqueue("/data/miss_c.bin")

	outcomes := collectOutcomes(t, s, 3)

	if got := proc.Invocations(); got != 0 {
		t.Errorf("Driver invocations = %d, want 0", got)
	}
	for _, o := range outcomes {
		if !o.Skipped() {
			t.Errorf("Skipped() = false for %s (status %v), want true", o.Task.FilePath, o.Status)
		}
		if o.Verify != model.VerifyNotApplicable {
			t.Errorf("Verify = %v for %s, want NotApplicable", o.Verify, o.Task.FilePath)
		}
		if o.DecryptedPath != "" {
			t.Errorf("Unexpected decrypted path %q", o.DecryptedPath)
		}
	}
}

// TestScheduler_OutcomeClasses 三类加密文件结局必须可区分
func TestScheduler_OutcomeClasses(t *testing.T) {
	tests := []struct {
		name       string
		verify     model.VerifyState
		procErr    error
		wantVerify model.VerifyState
		wantErr    model.ErrorKind
		wantPath   bool
	}{
		{"已解密且复核通过", model.VerifyPassed, nil, model.VerifyPassed, model.ErrKindNone, true},
		{"已解密但复核未确认", model.VerifyFailed, nil, model.VerifyFailed, model.ErrKindVerifyInconclusive, true},
		{"解密失败", model.VerifyPassed, processor.ErrFailed, model.VerifyNotApplicable, model.ErrKindDriverFailed, false},
		{"程序不可用", model.VerifyPassed, processor.ErrUnavailable, model.VerifyNotApplicable, model.ErrKindDriverUnavailable, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			det := &fakeDetector{verifyState: tt.verify}
			proc := &fakeProcessor{err: tt.procErr}
			s := New(det, proc, Options{Workers: 1})
			s.Start()
			defer s.Stop()

			s.Enqueue("/data/enc_doc.bin")
			o := collectOutcomes(t, s, 1)[0]

			if o.Status != model.StatusEncrypted {
				t.Errorf("Status = %v, want Encrypted", o.Status)
			}
			if o.Skipped() {
				t.Error("Skipped() = true for an encrypted file, want false")
			}
			if wantSucceeded := tt.wantErr == model.ErrKindNone; o.Succeeded() != wantSucceeded {
				t.Errorf("Succeeded() = %v, want %v", o.Succeeded(), wantSucceeded)
			}
			if o.Verify != tt.wantVerify {
				t.Errorf("Verify = %v, want %v", o.Verify, tt.wantVerify)
			}
			if o.Err != tt.wantErr {
				t.Errorf("Err = %q, want %q", o.Err, tt.wantErr)
			}
			if (o.DecryptedPath != "") != tt.wantPath {
				t.Errorf("DecryptedPath = %q, wantPath=%v", o.DecryptedPath, tt.wantPath)
			}
		})
	}
}

// TestScheduler_ConcurrencyBound 并发 worker 数不得超过配置上限
func TestScheduler_ConcurrencyBound(t *testing.T) {
	const workers = 3
	det := &fakeDetector{verifyState: model.VerifyPassed}
	proc := &fakeProcessor{delay: 50 * time.Millisecond}
	s := New(det, proc, Options{Workers: workers})
	s.Start()
	defer s.Stop()

	const n = 20
	done := make(chan struct{})
	go func() {
		defer close(done)
		for i := 0; i < n; i++ {
			<-s.Outcomes()
		}
	}()

	for i := 0; i < n; i++ {
		s.Enqueue(fmt.Sprintf("/data/enc_%d.bin", i))
	}

	// 负载期间采样在跑 worker 数
	sampleTicker := time.NewTicker(5 * time.Millisecond)
	defer sampleTicker.Stop()
	deadline := time.After(10 * time.Second)
	for {
		select {
		case <-done:
			if peak := proc.Peak(); peak > workers {
				t.Errorf("Driver concurrency peak = %d, exceeds limit %d", peak, workers)
			}
			return
		case <-deadline:
			t.Fatal("Timed out waiting for outcomes")
		case <-sampleTicker.C:
			if got := s.Running(); got > workers {
				t.Fatalf("Running workers = %d, exceeds limit %d", got, workers)
			}
		}
	}
}

// TestScheduler_StopClosesOutcomes Stop 排空在途任务后关闭结果通道
func TestScheduler_StopClosesOutcomes(t *testing.T) {
	det := &fakeDetector{verifyState: model.VerifyPassed}
	proc := &fakeProcessor{}
	s := New(det, proc, Options{Workers: 2})
	s.Start()

	s.Enqueue("/data/plain_a.pdf")
	collectOutcomes(t, s, 1)

	s.Stop()

	if _, ok := <-s.Outcomes(); ok {
		t.Error("Expected outcomes channel to be closed after Stop")
	}

	// 重复 Stop 必须安全
	s.Stop()
}

// TestScheduler_EnqueueDirectory 目录入队：每个普通文件一个任务，不做预筛选
func TestScheduler_EnqueueDirectory(t *testing.T) {
	dir := t.TempDir()
	sub := filepath.Join(dir, "nested")
	if err := os.MkdirAll(sub, 0755); err != nil {
		t.Fatal(err)
	}
	for _, name := range []string{"enc_a.bin", "plain_b.pdf", "weird_c.xyz"} {
		if err := os.WriteFile(filepath.Join(dir, name), []byte("x"), 0644); err != nil {
			t.Fatal(err)
		}
	}
	if err := os.WriteFile(filepath.Join(sub, "enc_d.bin"), []byte("x"), 0644); err != nil {
		t.Fatal(err)
	}

	det := &fakeDetector{verifyState: model.VerifyPassed}
	proc := &fakeProcessor{}
	s := New(det, proc, Options{Workers: 2})
	s.Start()
	defer s.Stop()

	count, walkErrs := s.EnqueueDirectory(dir)
	if len(walkErrs) != 0 {
		t.Fatalf("Unexpected walk errors: %v", walkErrs)
	}
	if count != 4 {
		t.Fatalf("Enqueued count = %d, want 4", count)
	}

	outcomes := collectOutcomes(t, s, 4)
	if len(outcomes) != 4 {
		t.Fatalf("Outcomes = %d, want 4", len(outcomes))
	}
}

// TestScheduler_CancelQueued 取消排队中的任务
func TestScheduler_CancelQueued(t *testing.T) {
	det := &fakeDetector{verifyState: model.VerifyPassed}
	proc := &fakeProcessor{}
	// 不 Start：任务停留在队列里
	s := New(det, proc, Options{Workers: 1})

	task := s.Enqueue("/data/enc_a.bin")
	if s.Pending() != 1 {
		t.Fatalf("Pending = %d, want 1", s.Pending())
	}

	if !s.Cancel(task.ID) {
		t.Error("Expected Cancel to succeed for queued task")
	}
	if s.Pending() != 0 {
		t.Errorf("Pending = %d after cancel, want 0", s.Pending())
	}
	if _, ok := s.TaskState(task.ID); ok {
		t.Error("Cancelled task still tracked, want entry removed")
	}
	if s.Cancel("no-such-task") {
		t.Error("Cancel of unknown task should return false")
	}
}
