package recovery

import (
	"context"
	"fmt"
	"sync"
)

// StrictStrategy fails the whole operation on the first page error.
type StrictStrategy struct{}

func NewStrictStrategy() *StrictStrategy {
	return &StrictStrategy{}
}

func (s *StrictStrategy) OnError(ctx context.Context, err error, location Location) Action {
	return ActionFail
}

// LenientStrategy records every failure and keeps going. Safe for
// concurrent use; page sweeps call it from worker goroutines.
type LenientStrategy struct {
	mu   sync.Mutex
	errs []error
}

func NewLenientStrategy() *LenientStrategy {
	return &LenientStrategy{}
}

func (s *LenientStrategy) OnError(ctx context.Context, err error, location Location) Action {
	s.mu.Lock()
	s.errs = append(s.errs, fmt.Errorf("%s page %d: %w", location.Component, location.Page, err))
	s.mu.Unlock()
	return ActionWarn
}

// Errors returns a copy of everything recorded so far.
func (s *LenientStrategy) Errors() []error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]error(nil), s.errs...)
}
