package services

import (
	"sync"
	"time"

	"rtsview/internal/core/ports"
)

// TaskScheduler runs at most one delayed task at a time.
type TaskScheduler struct {
	mu         sync.Mutex
	timer      *time.Timer
	generation uint64
}

var _ ports.TaskScheduler = (*TaskScheduler)(nil)

func NewTaskScheduler() *TaskScheduler {
	return &TaskScheduler{}
}

// Schedule arms the timer. It returns false when a task is already pending.
func (s *TaskScheduler) Schedule(after time.Duration, task func()) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.timer != nil {
		return false
	}

	gen := s.generation
	s.timer = time.AfterFunc(after, func() {
		s.mu.Lock()
		if s.generation != gen {
			s.mu.Unlock()
			return
		}
		s.timer = nil
		s.generation++
		s.mu.Unlock()

		task()
	})
	return true
}

// Invalidate cancels the pending task, if any.
func (s *TaskScheduler) Invalidate() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.timer != nil {
		s.timer.Stop()
		s.timer = nil
	}
	s.generation++
}

func (s *TaskScheduler) Pending() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.timer != nil
}
