package shutdown

import (
	"context"
	stderrors "errors"
	"fmt"
	"os/signal"
	"sort"
	"sync"
	"syscall"
	"time"

	"github.com/sirupsen/logrus"
)

// 停机顺序，数字越小越早执行
const (
	OrderStopAcceptingRequests = 10 // 停止 HTTP 服务
	OrderFlushProducers        = 30 // 关闭报告输出器
	OrderCleanupResources      = 60 // 其余资源
)

// DefaultTimeout 默认停机超时
const DefaultTimeout = 30 * time.Second

// Hook 停机处理函数
type Hook struct {
	Name  string
	Order int
	Func  func(ctx context.Context) error
}

// GracefulShutdown 优雅停机管理器
type GracefulShutdown struct {
	logger  logrus.FieldLogger
	timeout time.Duration

	mu    sync.Mutex
	hooks []Hook
	once  sync.Once
	done  chan struct{}
	err   error
}

// NewGracefulShutdown 创建优雅停机管理器
func NewGracefulShutdown(timeout time.Duration, logger logrus.FieldLogger) *GracefulShutdown {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	return &GracefulShutdown{
		logger:  logger,
		timeout: timeout,
		done:    make(chan struct{}),
	}
}

// Register 注册停机处理函数
func (gs *GracefulShutdown) Register(name string, order int, fn func(ctx context.Context) error) {
	gs.mu.Lock()
	defer gs.mu.Unlock()
	gs.hooks = append(gs.hooks, Hook{Name: name, Order: order, Func: fn})
	gs.logger.Debugf("注册停机处理函数: %s (order: %d)", name, order)
}

// WaitForSignal 阻塞直到收到 SIGINT/SIGTERM 或 ctx 结束，然后执行停机
func (gs *GracefulShutdown) WaitForSignal(ctx context.Context) error {
	sigCtx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	<-sigCtx.Done()
	gs.logger.Info("收到停机信号")
	return gs.Shutdown()
}

// Shutdown 按顺序执行全部处理函数，只执行一次；重复调用返回第一次的结果
func (gs *GracefulShutdown) Shutdown() error {
	gs.once.Do(func() {
		gs.err = gs.run()
		close(gs.done)
	})
	<-gs.done
	return gs.err
}

// Done 停机完成后关闭
func (gs *GracefulShutdown) Done() <-chan struct{} {
	return gs.done
}

func (gs *GracefulShutdown) run() error {
	gs.mu.Lock()
	hooks := append([]Hook(nil), gs.hooks...)
	gs.mu.Unlock()

	sort.SliceStable(hooks, func(i, j int) bool { return hooks[i].Order < hooks[j].Order })

	ctx, cancel := context.WithTimeout(context.Background(), gs.timeout)
	defer cancel()

	gs.logger.Info("开始优雅停机流程...")
	var errs []error
	for _, h := range hooks {
		if ctx.Err() != nil {
			gs.logger.Warn("停机超时，跳过剩余处理函数")
			errs = append(errs, fmt.Errorf("%s: %w", h.Name, ctx.Err()))
			continue
		}

		start := time.Now()
		if err := h.Func(ctx); err != nil {
			gs.logger.Errorf("停机处理 '%s' 失败 (耗时: %v): %v", h.Name, time.Since(start), err)
			errs = append(errs, fmt.Errorf("%s: %w", h.Name, err))
			continue
		}
		gs.logger.Infof("停机处理 '%s' 完成 (耗时: %v)", h.Name, time.Since(start))
	}

	gs.logger.Info("优雅停机流程完成")
	return stderrors.Join(errs...)
}

// RegisteredHooks 已注册的处理函数名
func (gs *GracefulShutdown) RegisteredHooks() []string {
	gs.mu.Lock()
	defer gs.mu.Unlock()
	names := make([]string, len(gs.hooks))
	for i, h := range gs.hooks {
		names[i] = h.Name
	}
	return names
}
