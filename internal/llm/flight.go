package llm

import (
	"context"
	"sync"

	"golang.org/x/sync/singleflight"

	"github.com/hazyhaar/scribby/internal/study"
)

// sharedCall is the context a deduplicated generation runs under. It is
// detached from any single caller and counts as cancelled only once every
// caller waiting on it has gone.
type sharedCall struct {
	context.Context
	cancel context.CancelFunc

	mu      sync.Mutex
	waiters []context.Context
}

func newSharedCall(ctx context.Context) *sharedCall {
	c, cancel := context.WithCancel(context.WithoutCancel(ctx))
	return &sharedCall{Context: c, cancel: cancel}
}

func (s *sharedCall) join(ctx context.Context) {
	s.mu.Lock()
	s.waiters = append(s.waiters, ctx)
	s.mu.Unlock()
}

func (s *sharedCall) abandoned() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, w := range s.waiters {
		if w.Err() == nil {
			return false
		}
	}
	return len(s.waiters) > 0
}

// Err checks the waiters directly so the fallback chain stops on the
// same candidate boundary as an unshared request would.
func (s *sharedCall) Err() error {
	if err := s.Context.Err(); err != nil {
		return err
	}
	if s.abandoned() {
		s.cancel()
		return s.Context.Err()
	}
	return nil
}

type generated struct {
	doc      study.Document
	provider string
}

// share joins ctx to the in-flight generation for key, starting one when
// none is running or the running one was abandoned.
func (r *Router) share(ctx context.Context, key string, req study.Request) (<-chan singleflight.Result, *sharedCall) {
	r.mu.Lock()
	defer r.mu.Unlock()

	sc := r.sharing[key]
	if sc == nil || sc.Err() != nil {
		if sc != nil {
			r.flight.Forget(key)
		}
		sc = newSharedCall(ctx)
		r.sharing[key] = sc
	}
	sc.join(ctx)

	ch := r.flight.DoChan(key, func() (any, error) {
		defer r.release(key, sc)
		doc, name := r.generate(sc, req)
		if !doc.IsError() && r.cache != nil {
			if err := r.cache.PutStudy(sc, req.Reference, doc, name); err != nil {
				r.logger.Warn("study cache write failed", "reference", req.Reference, "error", err)
			}
		}
		return generated{doc: doc, provider: name}, nil
	})
	return ch, sc
}

func (r *Router) release(key string, sc *sharedCall) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.sharing[key] == sc {
		delete(r.sharing, key)
	}
	sc.cancel()
}

// leave is called by a waiter whose own context ended. The generation is
// aborted once nobody is left to receive it.
func (r *Router) leave(key string, sc *sharedCall) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if !sc.abandoned() {
		return
	}
	sc.cancel()
	if r.sharing[key] == sc {
		delete(r.sharing, key)
		r.flight.Forget(key)
	}
}
