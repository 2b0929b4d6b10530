// Package sync keeps a notification store consistent with writes made by
// other instances sharing the same durable key.
//
// Consistency is eventual and whole-collection: on every external change
// the local collection is replaced by the durable one. Concurrent writers
// are not merged; whichever write lands last wins in full.
package sync

import (
	"fmt"
	"log"
	gosync "sync"
	"time"
)

// ChangeSource delivers a signal whenever the durable medium may have
// been changed by someone else. Signals may be spurious or include the
// caller's own writes; Sync filters them.
type ChangeSource interface {
	OnExternalChange(callback func()) (cancel func(), err error)
}

// Reloader replaces local state with durable state.
type Reloader interface {
	Reload() error
}

// Detector reports whether durable state differs from what this
// instance last read or wrote.
type Detector interface {
	Changed() (bool, error)
}

// SyncState represents the current state of the sync loop.
type SyncState int

const (
	SyncIdle SyncState = iota
	SyncRunning
	SyncError
)

func (s SyncState) String() string {
	switch s {
	case SyncRunning:
		return "running"
	case SyncError:
		return "error"
	default:
		return "idle"
	}
}

// SyncStatus holds the outcome of the most recent reload attempt.
type SyncStatus struct {
	State    SyncState
	LastSync time.Time
	Reloads  int
	Error    error
}

// Option configures a Sync.
type Option func(*Sync)

// WithLogger sets the logger used for reload failures.
func WithLogger(l *log.Logger) Option {
	return func(s *Sync) { s.logger = l }
}

// Sync listens to a ChangeSource and reloads the store when another
// instance has written the durable key.
type Sync struct {
	store    Reloader
	detector Detector
	source   ChangeSource
	logger   *log.Logger

	triggerCh chan struct{}
	stopCh    chan struct{}
	doneCh    chan struct{}

	mu      gosync.Mutex
	running bool
	cancel  func()
	status  SyncStatus
}

// New creates a Sync. It does nothing until Start is called.
func New(r Reloader, d Detector, src ChangeSource, opts ...Option) *Sync {
	s := &Sync{
		store:     r,
		detector:  d,
		source:    src,
		logger:    log.Default(),
		triggerCh: make(chan struct{}, 1),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Start registers with the change source and starts the reload loop.
// Calling Start on a running Sync is a no-op.
func (s *Sync) Start() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.running {
		return nil
	}

	cancel, err := s.source.OnExternalChange(s.notify)
	if err != nil {
		return fmt.Errorf("registering change listener: %w", err)
	}

	s.cancel = cancel
	s.stopCh = make(chan struct{})
	s.doneCh = make(chan struct{})
	s.running = true

	go s.loop(s.stopCh, s.doneCh)
	return nil
}

// Stop unregisters from the change source and waits for the loop to exit.
func (s *Sync) Stop() {
	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		return
	}
	s.running = false
	cancel, stopCh, doneCh := s.cancel, s.stopCh, s.doneCh
	s.mu.Unlock()

	cancel()
	close(stopCh)
	<-doneCh
}

// notify queues a check without blocking. Signals arriving while a check
// is already queued are coalesced, since a reload takes the whole
// collection anyway.
func (s *Sync) notify() {
	select {
	case s.triggerCh <- struct{}{}:
	default:
	}
}

func (s *Sync) loop(stopCh <-chan struct{}, doneCh chan<- struct{}) {
	defer close(doneCh)

	for {
		select {
		case <-stopCh:
			return
		case <-s.triggerCh:
			if _, err := s.HandleExternalChange(); err != nil {
				s.logger.Printf("failed to sync notifications: %v", err)
			}
		}
	}
}

// HandleExternalChange reloads the store if the durable key was written
// by another instance. It reports whether a reload happened.
func (s *Sync) HandleExternalChange() (bool, error) {
	changed, err := s.detector.Changed()
	if err != nil {
		s.setStatus(SyncError, err, false)
		return false, fmt.Errorf("checking durable revision: %w", err)
	}
	if !changed {
		return false, nil
	}

	s.setStatus(SyncRunning, nil, false)
	if err := s.store.Reload(); err != nil {
		s.setStatus(SyncError, err, false)
		return false, fmt.Errorf("reloading notifications: %w", err)
	}

	s.setStatus(SyncIdle, nil, true)
	return true, nil
}

// Status returns the outcome of the most recent check.
func (s *Sync) Status() SyncStatus {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.status
}

func (s *Sync) setStatus(state SyncState, err error, reloaded bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.status.State = state
	s.status.Error = err
	if reloaded {
		s.status.LastSync = time.Now()
		s.status.Reloads++
	}
}
