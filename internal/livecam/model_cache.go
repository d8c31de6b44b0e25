package livecam

import (
	"context"
	"sync"
	"time"

	"github.com/JayjayR89/ai-live-cam/internal/detection"
)

// loadCall is one model load in flight
type loadCall struct {
	opts  detection.LoadOptions
	done  chan struct{}
	model detection.Model
	err   error
}

// sharedLoader loads the model once for every camera. The load runs on the
// service context so a caller giving up never fails the others; a failed
// load is not cached.
type sharedLoader struct {
	parent  context.Context
	loader  detection.Loader
	timeout func() time.Duration
	onLoad  func(ok bool)

	mu    sync.Mutex
	model detection.Model
	opts  detection.LoadOptions
	call  *loadCall
}

// newSharedLoader creates a loader bound to parent. timeout may be nil.
func newSharedLoader(parent context.Context, loader detection.Loader, timeout func() time.Duration, onLoad func(ok bool)) *sharedLoader {
	return &sharedLoader{parent: parent, loader: loader, timeout: timeout, onLoad: onLoad}
}

// Load implements detection.Loader. ctx only bounds how long this caller
// waits.
func (s *sharedLoader) Load(ctx context.Context, opts detection.LoadOptions) (detection.Model, error) {
	for {
		s.mu.Lock()
		if s.model != nil && s.opts == opts {
			m := s.model
			s.mu.Unlock()
			return m, nil
		}
		call := s.call
		if call == nil {
			call = &loadCall{opts: opts, done: make(chan struct{})}
			s.call = call
			go s.load(call)
		}
		s.mu.Unlock()

		select {
		case <-call.done:
		case <-ctx.Done():
			return nil, ctx.Err()
		}

		// A load for other options finished first; start ours
		if call.opts == opts {
			return call.model, call.err
		}
	}
}

func (s *sharedLoader) load(call *loadCall) {
	ctx := s.parent
	if s.timeout != nil {
		if d := s.timeout(); d > 0 {
			var cancel context.CancelFunc
			ctx, cancel = context.WithTimeout(s.parent, d)
			defer cancel()
		}
	}

	call.model, call.err = s.loader.Load(ctx, call.opts)

	s.mu.Lock()
	if call.err == nil {
		s.model = call.model
		s.opts = call.opts
	}
	s.call = nil
	s.mu.Unlock()

	if s.onLoad != nil {
		s.onLoad(call.err == nil)
	}
	close(call.done)
}

// Loaded reports whether a model is cached
func (s *sharedLoader) Loaded() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.model != nil
}
