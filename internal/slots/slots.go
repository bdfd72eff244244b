package slots

import "context"

type Slots struct {
	c chan struct{}
}

// New limits holders to maxParallel at a time, 0 means no limit.
func New(maxParallel int) *Slots {
	var c chan struct{}
	if maxParallel > 0 {
		c = make(chan struct{}, maxParallel)
	}

	return &Slots{c: c}
}

func (s *Slots) Reserve(ctx context.Context) error {
	if s.c == nil {
		return nil // No limit on parallel jobs, no reservation needed
	}

	select {
	case <-ctx.Done():
		return ctx.Err()
	case s.c <- struct{}{}:
		return nil
	}
}

func (s *Slots) Release() {
	if s.c == nil {
		return
	}

	<-s.c
}
