package lock

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"
)

// minHeartbeat floors the renewal interval so a tiny TTL cannot spin
// the heartbeat goroutine.
const minHeartbeat = time.Second

// Options configures RunWithLock.
type Options struct {
	// TTL is the lease duration requested on acquire and each renewal.
	TTL time.Duration

	// HeartbeatInterval is the renewal period. Zero means TTL/2,
	// floored at minHeartbeat.
	HeartbeatInterval time.Duration
}

func (o Options) interval() time.Duration {
	interval := o.HeartbeatInterval
	if interval <= 0 {
		interval = o.TTL / 2
	}
	if interval < minHeartbeat {
		interval = minHeartbeat
	}
	return interval
}

// RunWithLock wraps work with acquire, heartbeat renewal, and release.
//
// A denied acquire returns ErrBusy or ErrUnavailable without invoking
// work. Once granted, a background goroutine extends the lease every
// heartbeat interval; extends are strictly sequential because a single
// goroutine issues them. On every exit path, including a panic inside
// work, the heartbeat is signalled, joined, and the lock released
// before control returns.
func RunWithLock[T any](ctx context.Context, locker Locker, logger *zap.Logger, name string, opts Options, work func(context.Context) (T, error)) (T, error) {
	var zero T

	res, err := locker.Acquire(ctx, name, opts.TTL)
	if err != nil {
		logger.Warn("lock store unavailable",
			zap.String("lock", name),
			zap.String("mode", locker.Mode()),
			zap.Error(err))
		return zero, fmt.Errorf("acquire %s: %w", name, ErrUnavailable)
	}
	if !res.Granted {
		if res.Reason == ReasonUnavailable {
			return zero, fmt.Errorf("acquire %s: %w", name, ErrUnavailable)
		}
		// Contention is expected, not an error.
		logger.Info("lock busy",
			zap.String("lock", name),
			zap.String("mode", locker.Mode()))
		return zero, fmt.Errorf("acquire %s: %w", name, ErrBusy)
	}

	logger.Debug("lock acquired",
		zap.String("lock", name),
		zap.String("mode", locker.Mode()),
		zap.Duration("ttl", opts.TTL))

	done := make(chan struct{})
	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		heartbeat(ctx, locker, logger, name, res.Token, opts, done)
	}()

	defer func() {
		close(done)
		wg.Wait()
		// Best effort; TTL expiry is the backstop if this fails.
		if err := locker.Release(context.WithoutCancel(ctx), name, res.Token); err != nil {
			logger.Warn("lock release failed",
				zap.String("lock", name),
				zap.Error(err))
		} else {
			logger.Debug("lock released", zap.String("lock", name))
		}
	}()

	return work(ctx)
}

// heartbeat renews the lease until done is closed.
func heartbeat(ctx context.Context, locker Locker, logger *zap.Logger, name, token string, opts Options, done <-chan struct{}) {
	ticker := time.NewTicker(opts.interval())
	defer ticker.Stop()

	for {
		select {
		case <-done:
			return
		case <-ticker.C:
			ok, err := locker.Extend(ctx, name, token, opts.TTL)
			if err != nil {
				logger.Warn("lock extend failed",
					zap.String("lock", name),
					zap.Error(err))
				continue
			}
			if !ok {
				// Lost the lease: expired or superseded. Keep the
				// work running; the next owner is responsible for
				// its own exclusion window.
				logger.Warn("lock no longer held",
					zap.String("lock", name),
					zap.String("mode", locker.Mode()))
				continue
			}
			logger.Debug("lock extended", zap.String("lock", name))
		}
	}
}
