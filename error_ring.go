package tether

import "sync"

// errorRing keeps the most recent load errors, oldest first.
// A nil ring records nothing.
type errorRing struct {
	mu     sync.RWMutex
	errors []error
	size   int
}

// newErrorRing creates a ring holding up to size errors.
// If size is 0, the ring buffer is disabled.
func newErrorRing(size int) *errorRing {
	if size <= 0 {
		return nil
	}
	return &errorRing{
		errors: make([]error, 0, size),
		size:   size,
	}
}

// push adds an error, evicting the oldest when full.
func (r *errorRing) push(err error) {
	if r == nil || err == nil {
		return
	}
	r.mu.Lock()
	defer r.mu.Unlock()

	if len(r.errors) == r.size {
		copy(r.errors, r.errors[1:])
		r.errors = r.errors[:r.size-1]
	}
	r.errors = append(r.errors, err)
}

// clear forgets every error.
func (r *errorRing) clear() {
	if r == nil {
		return
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	clear(r.errors)
	r.errors = r.errors[:0]
}

// all returns a copy of the retained errors, oldest first.
func (r *errorRing) all() []error {
	if r == nil {
		return nil
	}
	r.mu.RLock()
	defer r.mu.RUnlock()

	if len(r.errors) == 0 {
		return nil
	}
	out := make([]error, len(r.errors))
	copy(out, r.errors)
	return out
}
