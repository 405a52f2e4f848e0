package coord

import "sync"

// JobID identifies the currently valid run. IDs strictly increase.
type JobID uint64

// Supervisor tracks the most recently started job. Starting a job supersedes
// every earlier one; there is no explicit cancel.
type Supervisor struct {
	mu      sync.Mutex
	current JobID
}

// Start issues a new job ID and invalidates all prior ones.
func (s *Supervisor) Start() JobID {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.current++
	return s.current
}

// IsCurrent reports whether id is still the active job.
func (s *Supervisor) IsCurrent(id JobID) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return id == s.current
}

// Current returns the active job ID, or 0 if none has started.
func (s *Supervisor) Current() JobID {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.current
}
