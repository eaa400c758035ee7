// Package scheduler 批量解密调度器
// 有界并发执行解密任务，结果通过单一有序通道交付给上层，
// worker 不直接接触任何展示层状态
package scheduler

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"path/filepath"
	"sync"
	"sync/atomic"
	"time"

	"github.com/baozaodexiaojuzi/orange-file-encryption-tool/internal/logger"
	"github.com/baozaodexiaojuzi/orange-file-encryption-tool/internal/model"
	"github.com/baozaodexiaojuzi/orange-file-encryption-tool/internal/processor"
)

// Detector 调度器依赖的检测能力
type Detector interface {
	Classify(path string) model.DetectionResult
	Verify(path string) model.VerifyState
}

// Processor 调度器依赖的解密能力
type Processor interface {
	Process(ctx context.Context, path string) (string, error)
}

// Options 调度器配置
type Options struct {
	// 并发 worker 上限，默认 5
	Workers int
	// 结果通道缓冲大小，默认 64
	OutcomeBuffer int
}

// BatchScheduler 批量解密调度器
// 任务状态机: Queued → Running → 结果交付，终态不可回退，不自动重试
// 结果交付后任务的跟踪条目即移除，states 只保存在途任务
// 保证队列的 FIFO 准入顺序，不保证完成顺序
type BatchScheduler struct {
	detector  Detector
	processor Processor

	mu     sync.Mutex
	queue  []model.DecryptTask
	states map[string]model.TaskState

	// 入队通知，替代旧版的定时轮询：
	// 分发协程阻塞在通知上，没有轮询间隔带来的延迟
	notify chan struct{}
	// 并发槽位信号量
	slots chan struct{}
	// 结果交付通道，Stop 排空在途任务后关闭
	outcomes chan model.DecryptOutcome

	// admitCtx 只控制准入；在途任务不受 Stop 影响，会跑到终态
	admitCtx    context.Context
	cancelAdmit context.CancelFunc
	// taskCtx 供显式的单任务取消使用
	taskCancels sync.Map // task ID -> context.CancelFunc

	wg           sync.WaitGroup
	dispatchDone chan struct{}
	startOnce    sync.Once
	stopOnce     sync.Once

	// 当前在跑的 worker 数，供并发上限校验和状态展示
	running atomic.Int32
}

// New 创建调度器，依赖由调用方显式注入
func New(det Detector, proc Processor, opts Options) *BatchScheduler {
	if opts.Workers <= 0 {
		opts.Workers = 5
	}
	if opts.OutcomeBuffer <= 0 {
		opts.OutcomeBuffer = 64
	}

	ctx, cancel := context.WithCancel(context.Background())
	return &BatchScheduler{
		detector:     det,
		processor:    proc,
		states:       make(map[string]model.TaskState),
		notify:       make(chan struct{}, 1),
		slots:        make(chan struct{}, opts.Workers),
		outcomes:     make(chan model.DecryptOutcome, opts.OutcomeBuffer),
		admitCtx:     ctx,
		cancelAdmit:  cancel,
		dispatchDone: make(chan struct{}),
	}
}

// Outcomes 返回结果通道
// 每个入队任务恰好产生一条结果，Stop 之后通道关闭
func (s *BatchScheduler) Outcomes() <-chan model.DecryptOutcome {
	return s.outcomes
}

// Enqueue 入队单个文件，永不阻塞调用方
func (s *BatchScheduler) Enqueue(path string) model.DecryptTask {
	task := model.NewDecryptTask(path)

	s.mu.Lock()
	s.queue = append(s.queue, task)
	s.states[task.ID] = model.TaskQueued
	s.mu.Unlock()

	// 通知分发协程，满了说明已有待处理通知，丢弃即可
	select {
	case s.notify <- struct{}{}:
	default:
	}
	return task
}

// EnqueueDirectory 递归遍历目录，每个普通文件入队一个任务
// 入队时不做加密预筛选：分类留给 worker，避免目录被遍历两次，
// 同时保证批处理 N 个文件必有 N 条结果
func (s *BatchScheduler) EnqueueDirectory(root string) (int, []error) {
	count := 0
	var walkErrs []error

	err := filepath.WalkDir(root, func(path string, entry fs.DirEntry, err error) error {
		if err != nil {
			walkErrs = append(walkErrs, err)
			return nil
		}
		if !entry.Type().IsRegular() {
			return nil
		}
		s.Enqueue(path)
		count++
		return nil
	})
	if err != nil {
		walkErrs = append(walkErrs, err)
	}

	return count, walkErrs
}

// Start 启动分发协程
func (s *BatchScheduler) Start() {
	s.startOnce.Do(func() {
		go s.dispatch()
		logger.Info("解密调度器已启动", "workers", cap(s.slots))
	})
}

// Stop 停止准入并排空在途任务，最后关闭结果通道
// 已入队未被领取的任务被丢弃；在途任务跑到终态，结果照常交付
func (s *BatchScheduler) Stop() {
	s.stopOnce.Do(func() {
		s.cancelAdmit()
		<-s.dispatchDone
		s.wg.Wait()
		close(s.outcomes)

		s.mu.Lock()
		dropped := len(s.queue)
		s.queue = nil
		s.mu.Unlock()

		logger.Info("解密调度器已停止", "dropped_queued", dropped)
	})
}

// Cancel 取消单个任务
// 排队中的任务直接移出队列；执行中的任务取消其上下文，
// 让外部程序调用尽快失败，任务仍会产生一条失败结果
func (s *BatchScheduler) Cancel(taskID string) bool {
	s.mu.Lock()
	for i, task := range s.queue {
		if task.ID == taskID {
			s.queue = append(s.queue[:i], s.queue[i+1:]...)
			delete(s.states, taskID)
			s.mu.Unlock()
			return true
		}
	}
	s.mu.Unlock()

	if cancel, ok := s.taskCancels.Load(taskID); ok {
		cancel.(context.CancelFunc)()
		return true
	}
	return false
}

// Running 当前在跑的 worker 数
func (s *BatchScheduler) Running() int {
	return int(s.running.Load())
}

// Pending 队列中等待的任务数
func (s *BatchScheduler) Pending() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.queue)
}

// TaskState 查询在途任务的执行状态
// 任务结束并交付结果后条目即被移除，此时返回 ok=false
func (s *BatchScheduler) TaskState(taskID string) (model.TaskState, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	state, ok := s.states[taskID]
	return state, ok
}

// dispatch 分发循环
// 槽位有空且队列非空时持续领取任务；两者任一不满足就阻塞等待，
// 不做周期性轮询
func (s *BatchScheduler) dispatch() {
	defer close(s.dispatchDone)

	for {
		task, ok := s.pop()
		if !ok {
			select {
			case <-s.admitCtx.Done():
				return
			case <-s.notify:
				continue
			}
		}

		// 占一个并发槽位，worker 结束时归还
		select {
		case <-s.admitCtx.Done():
			return
		case s.slots <- struct{}{}:
		}

		s.setState(task.ID, model.TaskRunning)
		s.wg.Add(1)
		go s.runTask(task)
	}
}

// pop 按 FIFO 领取一个任务
func (s *BatchScheduler) pop() (model.DecryptTask, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if len(s.queue) == 0 {
		return model.DecryptTask{}, false
	}
	task := s.queue[0]
	s.queue = s.queue[1:]
	return task, true
}

// setState 更新任务执行状态
func (s *BatchScheduler) setState(taskID string, state model.TaskState) {
	s.mu.Lock()
	s.states[taskID] = state
	s.mu.Unlock()
}

// runTask 单任务 worker
// 内部任何失败都折叠成一条结果，绝不影响调度器和其他在途任务
func (s *BatchScheduler) runTask(task model.DecryptTask) {
	defer s.wg.Done()
	defer func() { <-s.slots }()

	s.running.Add(1)
	defer s.running.Add(-1)

	ctx, cancel := context.WithCancel(context.Background())
	s.taskCancels.Store(task.ID, cancel)
	defer func() {
		cancel()
		s.taskCancels.Delete(task.ID)
	}()

	start := time.Now()
	outcome := s.execute(ctx, task)
	outcome.Duration = time.Since(start)

	// 终态不保留跟踪条目，结果即这条任务的全部交付物
	s.mu.Lock()
	delete(s.states, task.ID)
	s.mu.Unlock()
	s.outcomes <- outcome
}

// execute 任务主体：先检测后解密，未加密的文件绝不调用外部程序
// 检测便宜，外部程序启动昂贵，这是批处理的核心省成本策略
func (s *BatchScheduler) execute(ctx context.Context, task model.DecryptTask) (outcome model.DecryptOutcome) {
	outcome = model.DecryptOutcome{
		Task:   task,
		Verify: model.VerifyNotApplicable,
	}

	// 外部依赖的 panic 在此兜底，调度器本身不会被打垮
	defer func() {
		if r := recover(); r != nil {
			logger.Error("解密任务发生panic", "task_id", task.ID, "path", task.FilePath, "panic", fmt.Sprint(r))
			outcome.Err = model.ErrKindDriverFailed
		}
	}()

	res := s.detector.Classify(task.FilePath)
	outcome.Status = res.Status
	outcome.FileType = res.FileType

	switch res.Status {
	case model.StatusMissing:
		outcome.Err = model.ErrKindPathNotFound
		return outcome

	case model.StatusUnencrypted, model.StatusUnrecognized:
		// 跳过：无需解密
		logger.Info("跳过非加密文件", "path", task.FilePath, "status", res.Status.String())
		return outcome

	case model.StatusEncrypted:
		decrypted, err := s.processor.Process(ctx, task.FilePath)
		if err != nil {
			if errors.Is(err, processor.ErrUnavailable) {
				outcome.Err = model.ErrKindDriverUnavailable
			} else {
				outcome.Err = model.ErrKindDriverFailed
			}
			logger.Error("解密失败", "path", task.FilePath, "error", err)
			return outcome
		}

		outcome.DecryptedPath = decrypted
		outcome.Verify = s.detector.Verify(decrypted)
		if outcome.Verify != model.VerifyPassed {
			// 解密产物未能正向确认为未加密
			outcome.Err = model.ErrKindVerifyInconclusive
			logger.Warn("复核未通过: 文件可能仍为加密状态", "path", decrypted)
		} else {
			logger.Info("解密成功且复核通过", "path", task.FilePath, "output", decrypted)
		}
		return outcome
	}

	return outcome
}
