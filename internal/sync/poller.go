package sync

import (
	gosync "sync"
	"time"
)

// defaultPollInterval is used when a Poller is given a non-positive interval.
const defaultPollInterval = 2 * time.Second

// Poller is a ChangeSource for media that offer no change notification.
// It signals every interval and on demand through Refresh.
type Poller struct {
	interval time.Duration

	mu       gosync.Mutex
	triggers map[int]chan struct{}
	nextID   int
}

// NewPoller creates a Poller that signals every interval.
func NewPoller(interval time.Duration) *Poller {
	if interval <= 0 {
		interval = defaultPollInterval
	}
	return &Poller{
		interval: interval,
		triggers: make(map[int]chan struct{}),
	}
}

// OnExternalChange starts a polling goroutine that calls callback on
// every tick until the returned cancel function is called.
func (p *Poller) OnExternalChange(callback func()) (func(), error) {
	p.mu.Lock()
	id := p.nextID
	p.nextID++
	triggerCh := make(chan struct{}, 1)
	p.triggers[id] = triggerCh
	p.mu.Unlock()

	stopCh := make(chan struct{})
	doneCh := make(chan struct{})
	go p.poll(callback, triggerCh, stopCh, doneCh)

	var once gosync.Once
	return func() {
		once.Do(func() {
			p.mu.Lock()
			delete(p.triggers, id)
			p.mu.Unlock()

			close(stopCh)
			<-doneCh
		})
	}, nil
}

// Refresh triggers an immediate signal to every registered callback.
func (p *Poller) Refresh() {
	p.mu.Lock()
	defer p.mu.Unlock()

	for _, ch := range p.triggers {
		select {
		case ch <- struct{}{}:
		default:
			// Channel full; a signal is already pending.
		}
	}
}

// poll runs the polling loop for a single registration.
func (p *Poller) poll(callback func(), triggerCh, stopCh <-chan struct{}, doneCh chan<- struct{}) {
	defer close(doneCh)

	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()

	for {
		select {
		case <-stopCh:
			return
		case <-ticker.C:
			callback()
		case <-triggerCh:
			callback()
		}
	}
}
