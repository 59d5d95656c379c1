package service

import (
	"context"
	"sync"
	"time"

	"github.com/user/kshows/internal/logging"
)

// BackfillRunner 一次完整的回填
type BackfillRunner interface {
	Run(ctx context.Context) (BackfillReport, error)
}

// BackfillScheduler 服务内定时回填任务
type BackfillScheduler struct {
	runner BackfillRunner
	every  time.Duration

	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// NewBackfillScheduler 创建定时任务
func NewBackfillScheduler(runner BackfillRunner, every time.Duration) *BackfillScheduler {
	return &BackfillScheduler{runner: runner, every: every}
}

// Start 启动定时任务，启动时先运行一次
func (s *BackfillScheduler) Start(ctx context.Context) {
	ctx, s.cancel = context.WithCancel(ctx)
	ticker := time.NewTicker(s.every)

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		defer ticker.Stop()

		s.runOnce(ctx)
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				s.runOnce(ctx)
			}
		}
	}()
}

// Stop 取消正在进行的回填并等待退出
func (s *BackfillScheduler) Stop() {
	if s.cancel != nil {
		s.cancel()
	}
	s.wg.Wait()
}

func (s *BackfillScheduler) runOnce(ctx context.Context) {
	logging.Info().Msg("[BackfillScheduler] 开始回填向量...")
	if _, err := s.runner.Run(ctx); err != nil && ctx.Err() == nil {
		logging.Error().Err(err).Msg("[BackfillScheduler] 回填失败")
	}
}
