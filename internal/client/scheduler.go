package client

import (
	"context"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"
)

// TaskFunc is one run of a scheduled task. ctx is cancelled when the task is stopped or replaced.
type TaskFunc func(ctx context.Context)

type task struct {
	interval time.Duration
	cancel   context.CancelFunc
}

// Scheduler runs keyed, independently cancellable polling tasks
type Scheduler struct {
	mu     sync.Mutex
	tasks  map[string]*task
	wg     sync.WaitGroup
	logger *zap.Logger
}

// NewScheduler creates an empty scheduler
func NewScheduler(log *zap.Logger) *Scheduler {
	return &Scheduler{
		tasks:  make(map[string]*task),
		logger: log.Named("scheduler"),
	}
}

// Start runs fn now and then every interval until the task is stopped.
// Starting a key that is already running replaces it.
func (s *Scheduler) Start(parent context.Context, key string, interval time.Duration, fn TaskFunc) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if old, ok := s.tasks[key]; ok {
		old.cancel()
	}

	ctx, cancel := context.WithCancel(parent)
	t := &task{interval: interval, cancel: cancel}
	s.tasks[key] = t

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		s.run(ctx, key, t, fn)
	}()

	s.logger.Debug("task started", zap.String("task", key), zap.Duration("interval", interval))
}

func (s *Scheduler) run(ctx context.Context, key string, t *task, fn TaskFunc) {
	ticker := time.NewTicker(t.interval)
	defer ticker.Stop()

	// the key may have been re-registered by the time this task ends
	defer func() {
		s.mu.Lock()
		if s.tasks[key] == t {
			delete(s.tasks, key)
		}
		s.mu.Unlock()
	}()

	for {
		fn(ctx)

		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

// Stop cancels a task; it does not wait for an in-flight run to return
func (s *Scheduler) Stop(key string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if t, ok := s.tasks[key]; ok {
		t.cancel()
		delete(s.tasks, key)
		s.logger.Debug("task stopped", zap.String("task", key))
	}
}

// StopPrefix cancels every task whose key starts with prefix
func (s *Scheduler) StopPrefix(prefix string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for key, t := range s.tasks {
		if strings.HasPrefix(key, prefix) {
			t.cancel()
			delete(s.tasks, key)
		}
	}
}

// StopAll cancels every task and waits for in-flight runs to return
func (s *Scheduler) StopAll() {
	s.mu.Lock()
	for key, t := range s.tasks {
		t.cancel()
		delete(s.tasks, key)
	}
	s.mu.Unlock()

	s.wg.Wait()
}

// Running reports whether a task is registered under key
func (s *Scheduler) Running(key string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.tasks[key]
	return ok
}

// Keys returns the registered task keys
func (s *Scheduler) Keys() []string {
	s.mu.Lock()
	defer s.mu.Unlock()

	keys := make([]string, 0, len(s.tasks))
	for key := range s.tasks {
		keys = append(keys, key)
	}
	return keys
}
