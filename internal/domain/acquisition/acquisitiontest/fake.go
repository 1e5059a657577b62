// Package acquisitiontest provides scripted acquisition sources for tests.
package acquisitiontest

import (
	"context"
	"sync"
	"time"

	"activity_scraper/internal/domain/acquisition"
	"activity_scraper/internal/domain/activity"
)

// Source is a scripted acquisition.Source that records every call made on it.
type Source struct {
	Seq         int // 1-based acquisition attempt that produced this source
	FetchFunc   func(ctx context.Context) ([]activity.Activity, error)
	PersistFunc func(ctx context.Context, activities []activity.Activity) error
	CloseErr    error

	mu           sync.Mutex
	fetchCalls   int
	persistCalls int
	closeCalls   int
	persisted    []activity.Activity
	acquiredAt   time.Time
	releasedAt   time.Time
	onClose      func()
}

func (s *Source) Fetch(ctx context.Context) ([]activity.Activity, error) {
	s.mu.Lock()
	s.fetchCalls++
	fn := s.FetchFunc
	s.mu.Unlock()

	if fn == nil {
		return []activity.Activity{{ExternalID: "a-1", Name: "Climbing"}}, nil
	}
	return fn(ctx)
}

func (s *Source) Persist(ctx context.Context, activities []activity.Activity) error {
	s.mu.Lock()
	s.persistCalls++
	fn := s.PersistFunc
	s.mu.Unlock()

	if fn != nil {
		if err := fn(ctx, activities); err != nil {
			return err
		}
	}
	s.mu.Lock()
	s.persisted = append(s.persisted, activities...)
	s.mu.Unlock()
	return nil
}

func (s *Source) Close() error {
	s.mu.Lock()
	s.closeCalls++
	s.releasedAt = time.Now()
	onClose := s.onClose
	s.mu.Unlock()

	if onClose != nil {
		onClose()
	}
	return s.CloseErr
}

func (s *Source) FetchCalls() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.fetchCalls
}

func (s *Source) PersistCalls() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.persistCalls
}

func (s *Source) CloseCalls() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closeCalls
}

func (s *Source) Persisted() []activity.Activity {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]activity.Activity(nil), s.persisted...)
}

// AcquiredAt and ReleasedAt bracket the lifetime of the handle.
func (s *Source) AcquiredAt() time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.acquiredAt
}

func (s *Source) ReleasedAt() time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.releasedAt
}

// Factory hands out a new Source per call and keeps track of open handles.
type Factory struct {
	// Script configures the source from the n-th acquisition attempt (1-based)
	// before it is handed out. Optional.
	Script func(n int, src *Source)
	// Err makes the n-th acquisition attempt fail. Failed attempts still count,
	// so n keeps increasing across failures. Optional.
	Err func(n int) error

	mu       sync.Mutex
	attempts int
	sources  []*Source
	open    int
	maxOpen int
}

var _ acquisition.Factory = (*Factory)(nil)

func (f *Factory) NewSource(_ context.Context) (acquisition.Source, error) {
	f.mu.Lock()
	f.attempts++
	n := f.attempts
	if f.Err != nil {
		if err := f.Err(n); err != nil {
			f.mu.Unlock()
			return nil, err
		}
	}
	src := &Source{Seq: n, acquiredAt: time.Now()}
	src.onClose = func() {
		f.mu.Lock()
		f.open--
		f.mu.Unlock()
	}
	f.sources = append(f.sources, src)
	f.open++
	if f.open > f.maxOpen {
		f.maxOpen = f.open
	}
	script := f.Script
	f.mu.Unlock()

	if script != nil {
		script(n, src)
	}
	return src, nil
}

// Attempts is the number of NewSource calls, failed ones included.
func (f *Factory) Attempts() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.attempts
}

// Sources returns every source handed out so far, in order.
func (f *Factory) Sources() []*Source {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]*Source(nil), f.sources...)
}

// MaxOpen is the highest number of simultaneously unreleased sources observed.
func (f *Factory) MaxOpen() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.maxOpen
}

// Open is the number of sources not yet released.
func (f *Factory) Open() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.open
}
