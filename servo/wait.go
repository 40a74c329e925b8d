package servo

import "context"

// Done returns a channel that is closed when the current command completes
// or is superseded. Endless commands close it only when superseded.
func (s *Servo) Done() <-chan struct{} {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.doneCh
}

// WaitDone blocks until the current command completes or is superseded, or
// ctx ends. The control loop must be running on another goroutine.
func (s *Servo) WaitDone(ctx context.Context) error {
	select {
	case <-s.Done():
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
