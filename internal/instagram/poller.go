package instagram

import (
	"context"
	"errors"
	"fmt"
	"time"
)

var ErrProcessingTimeout = errors.New("media container processing timed out")

// ContainerError is returned when Instagram reports a container as failed.
type ContainerError struct {
	ContainerID string
	Code        ContainerStatusCode
	Message     string
}

func (e *ContainerError) Error() string {
	return fmt.Sprintf("media container %s failed with %s: %s", e.ContainerID, e.Code, e.Message)
}

type StatusChecker interface {
	ContainerStatus(ctx context.Context, containerID, token string) (*ContainerStatus, error)
}

// SleepFunc waits for d or until ctx is done.
type SleepFunc func(ctx context.Context, d time.Duration) error

func ContextSleep(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

// Poller waits for containers to leave IN_PROGRESS. At most MaxAttempts
// status calls are made, so the worst-case wait is about MaxAttempts*Delay.
type Poller struct {
	checker     StatusChecker
	MaxAttempts int
	Delay       time.Duration
	Sleep       SleepFunc
}

func NewPoller(checker StatusChecker, maxAttempts int, delay time.Duration) *Poller {
	return &Poller{
		checker:     checker,
		MaxAttempts: maxAttempts,
		Delay:       delay,
		Sleep:       ContextSleep,
	}
}

func (p *Poller) WaitReady(ctx context.Context, containerID, token string) error {
	for attempt := 1; attempt <= p.MaxAttempts; attempt++ {
		status, err := p.checker.ContainerStatus(ctx, containerID, token)
		if err != nil {
			return err
		}

		switch status.Code {
		case StatusFinished, StatusPublished:
			return nil
		case StatusError, StatusExpired:
			return &ContainerError{ContainerID: containerID, Code: status.Code, Message: status.Message}
		}

		if attempt == p.MaxAttempts {
			break
		}
		if err := p.Sleep(ctx, p.Delay); err != nil {
			return err
		}
	}
	return fmt.Errorf("%w: container %s after %d attempts", ErrProcessingTimeout, containerID, p.MaxAttempts)
}
