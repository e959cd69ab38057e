package scheduler

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/Fi44er/miniapp_gateway/utils"
	"github.com/robfig/cron/v3"
)

type DuePublisher interface {
	PublishDuePosts(ctx context.Context) (published, failed int, err error)
}

// Scheduler periodically publishes scheduled posts. Runs never overlap: a
// tick that fires while the previous run is still busy is skipped.
type Scheduler struct {
	cron      *cron.Cron
	publisher DuePublisher
	timeout   time.Duration
	logger    *utils.Logger

	mu      sync.Mutex
	running bool
}

func New(spec string, publisher DuePublisher, timeout time.Duration, logger *utils.Logger) (*Scheduler, error) {
	s := &Scheduler{
		cron:      cron.New(),
		publisher: publisher,
		timeout:   timeout,
		logger:    logger,
	}
	if _, err := s.cron.AddFunc(spec, s.Run); err != nil {
		return nil, fmt.Errorf("invalid scheduler spec %q: %w", spec, err)
	}
	return s, nil
}

func (s *Scheduler) Start() {
	s.logger.Info("Starting post scheduler")
	s.cron.Start()
}

// Stop waits for a running job to finish or ctx to expire.
func (s *Scheduler) Stop(ctx context.Context) {
	done := s.cron.Stop()
	select {
	case <-done.Done():
	case <-ctx.Done():
		s.logger.Warn("Scheduler did not finish before shutdown deadline")
	}
}

// Run publishes every due post once.
func (s *Scheduler) Run() {
	s.mu.Lock()
	if s.running {
		s.mu.Unlock()
		s.logger.Debug("Previous scheduler run still in progress, skipping")
		return
	}
	s.running = true
	s.mu.Unlock()

	defer func() {
		if r := recover(); r != nil {
			s.logger.Errorf("Scheduler run panicked: %v", r)
		}
		s.mu.Lock()
		s.running = false
		s.mu.Unlock()
	}()

	ctx := context.Background()
	if s.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.timeout)
		defer cancel()
	}

	published, failed, err := s.publisher.PublishDuePosts(ctx)
	if err != nil {
		s.logger.Errorf("Failed to publish due posts: %v", err)
		return
	}
	if published+failed > 0 {
		s.logger.Infof("Scheduler run done: %d published, %d failed", published, failed)
	}
}
