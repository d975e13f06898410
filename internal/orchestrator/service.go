package orchestrator

import (
	"context"
	"errors"

	"go.uber.org/zap"

	"github.com/storyweave/storyd/internal/jobs"
	"github.com/storyweave/storyd/internal/lock"
)

// LockName serializes generation runs across every process that shares
// the store.
const LockName = "story:generate"

// JobKind tags generation jobs in the tracker.
const JobKind = "story.generate"

// Service runs generation jobs under the distributed lock and reports
// their lifecycle to the job tracker.
type Service struct {
	engine  *Engine
	locker  lock.Locker
	tracker *jobs.Tracker
	opts    lock.Options
	logger  *zap.Logger
}

// NewService wires the engine to its lock and tracker.
func NewService(engine *Engine, locker lock.Locker, tracker *jobs.Tracker, opts lock.Options, logger *zap.Logger) (*Service, error) {
	if engine == nil {
		return nil, errors.New("engine is required")
	}
	if locker == nil {
		return nil, errors.New("locker is required")
	}
	if tracker == nil {
		return nil, errors.New("tracker is required")
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Service{engine: engine, locker: locker, tracker: tracker, opts: opts, logger: logger}, nil
}

// GenerateStory runs one generation job end to end. When another
// holder has the lock it returns lock.ErrBusy without touching the
// store; the caller decides whether to retry.
func (s *Service) GenerateStory(ctx context.Context) (Result, error) {
	id := NewJobID()
	s.tracker.Create(id, JobKind)

	result, err := lock.RunWithLock(ctx, s.locker, s.logger, LockName, s.opts,
		func(ctx context.Context) (Result, error) {
			s.tracker.Started(id)
			return s.engine.Run(ctx, id, func(phase Phase) {
				s.tracker.Progress(id, string(phase))
			})
		})
	if err != nil {
		s.tracker.Fail(id, err)
		return result, err
	}

	s.tracker.Complete(id, result)
	return result, nil
}
