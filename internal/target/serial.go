package target

import (
	"context"
	"errors"
	"sync"

	"musicsync/internal/services"
)

// ErrStopped is returned for calls made after Serial.Close.
var ErrStopped = errors.New("target access stopped")

type request struct {
	ctx   context.Context
	run   func(context.Context)
	reply chan struct{}
}

// Serial funnels every call to the wrapped store through one goroutine, so at
// most one call is in flight regardless of how many workers share it.
type Serial struct {
	inner    Store
	requests chan request
	done     chan struct{}
	stopped  chan struct{}
	once     sync.Once
}

// NewSerial starts the access goroutine. Call Close to stop it.
func NewSerial(inner Store) *Serial {
	s := &Serial{
		inner:    inner,
		requests: make(chan request),
		done:     make(chan struct{}),
		stopped:  make(chan struct{}),
	}
	go s.loop()
	return s
}

func (s *Serial) loop() {
	defer close(s.stopped)
	for {
		select {
		case req := <-s.requests:
			if req.ctx.Err() == nil {
				req.run(req.ctx)
			}
			close(req.reply)
		case <-s.done:
			return
		}
	}
}

// Close stops the access goroutine after the in-flight call returns.
func (s *Serial) Close() error {
	s.once.Do(func() { close(s.done) })
	<-s.stopped
	return nil
}

// Unwrap returns the wrapped store.
func (s *Serial) Unwrap() Store { return s.inner }

func (s *Serial) Describe() string { return s.inner.Describe() }

func (s *Serial) do(ctx context.Context, run func(context.Context)) error {
	req := request{ctx: ctx, run: run, reply: make(chan struct{})}
	select {
	case s.requests <- req:
	case <-ctx.Done():
		return ctx.Err()
	case <-s.done:
		return services.Wrap(services.ErrTransfer, component, "serial", "", ErrStopped)
	}
	select {
	case <-req.reply:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (s *Serial) Exists(ctx context.Context, targetPath string) (bool, error) {
	var (
		ok  bool
		err error
	)
	if callErr := s.do(ctx, func(ctx context.Context) { ok, err = s.inner.Exists(ctx, targetPath) }); callErr != nil {
		return false, callErr
	}
	return ok, err
}

func (s *Serial) Upload(ctx context.Context, localPath, targetPath string) (int64, error) {
	var (
		n   int64
		err error
	)
	if callErr := s.do(ctx, func(ctx context.Context) { n, err = s.inner.Upload(ctx, localPath, targetPath) }); callErr != nil {
		return 0, callErr
	}
	return n, err
}

func (s *Serial) Download(ctx context.Context, targetPath, localPath string) (int64, error) {
	var (
		n   int64
		err error
	)
	if callErr := s.do(ctx, func(ctx context.Context) { n, err = s.inner.Download(ctx, targetPath, localPath) }); callErr != nil {
		return 0, callErr
	}
	return n, err
}

func (s *Serial) Delete(ctx context.Context, targetPath string) error {
	var err error
	if callErr := s.do(ctx, func(ctx context.Context) { err = s.inner.Delete(ctx, targetPath) }); callErr != nil {
		return callErr
	}
	return err
}
