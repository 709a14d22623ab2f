package engine

import (
	"time"

	"github.com/nfpgo/nfp/internal/applog"
)

// StartReaper launches a background goroutine that ticks every reapPeriod
// and posts a reap pass onto the worker pool, removing connections whose
// deadline has passed. It runs until StopReaper is called.
func (e *Engine) StartReaper() {
	e.reapStop = make(chan struct{})
	e.reapWG.Add(1)
	go e.reapLoop()
}

func (e *Engine) reapLoop() {
	defer e.reapWG.Done()
	ticker := time.NewTicker(e.reapPeriod)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			e.pool.Submit(e.reapOnceNow)
		case <-e.reapStop:
			return
		}
	}
}

// reapOnceNow removes every connection whose deadline has already passed.
// It runs on the worker pool so reaping serializes with packet handling
// through the same table lock, never racing a HandlePacket call.
func (e *Engine) reapOnceNow() {
	now := time.Now()
	e.mu.Lock()
	var reaped []uint64
	for k, cs := range e.conns {
		if !cs.deadline.After(now) {
			delete(e.conns, k)
			reaped = append(reaped, k)
		}
	}
	e.mu.Unlock()

	for _, k := range reaped {
		e.recordActivity(now, k, applog.EventReap, "")
	}
}

// StopReaper halts the background ticker goroutine. It does not stop the
// worker pool itself.
func (e *Engine) StopReaper() {
	e.reapOnce.Do(func() {
		if e.reapStop != nil {
			close(e.reapStop)
		}
	})
	e.reapWG.Wait()
}
