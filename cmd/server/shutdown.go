package main

import "sync"

// shutdownSequence releases run's resources in dependency order: background
// tasks stop first, then the store drains its jobs, then the sync backend
// those jobs push through is closed.
type shutdownSequence struct {
	stop         func()
	background   sync.WaitGroup
	closeStore   func()
	closeBackend func()
}

func (s *shutdownSequence) run() {
	s.stop()
	s.background.Wait()
	if s.closeStore != nil {
		s.closeStore()
	}
	if s.closeBackend != nil {
		s.closeBackend()
	}
}
