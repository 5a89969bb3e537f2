package syncstore

import (
	"context"
	"sync"
)

// writeJob is one queued persistence write, or a flush barrier when
// barrier is set.
type writeJob struct {
	encoded []byte
	synced  bool
	barrier chan struct{}
}

// writer runs persistence jobs one at a time, in submission order, on
// its own goroutine.
type writer struct {
	run func(writeJob)

	mu     sync.Mutex
	jobs   []writeJob
	closed bool
	wake   chan struct{}
	done   chan struct{}
}

func newWriter(run func(writeJob)) *writer {
	w := &writer{
		run:  run,
		wake: make(chan struct{}, 1),
		done: make(chan struct{}),
	}
	go w.loop()
	return w
}

// push queues job. It returns false once the writer is closed.
func (w *writer) push(job writeJob) bool {
	w.mu.Lock()
	if w.closed {
		w.mu.Unlock()
		return false
	}
	w.jobs = append(w.jobs, job)
	w.mu.Unlock()

	select {
	case w.wake <- struct{}{}:
	default:
	}
	return true
}

// flush waits until every job queued before the call has run.
func (w *writer) flush(ctx context.Context) error {
	barrier := make(chan struct{})
	if !w.push(writeJob{barrier: barrier}) {
		// Closed writers drain before exiting.
		select {
		case <-w.done:
			return nil
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	select {
	case <-barrier:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// close stops accepting jobs, runs the ones already queued and waits
// for the loop to exit.
func (w *writer) close() {
	w.mu.Lock()
	if w.closed {
		w.mu.Unlock()
		<-w.done
		return
	}
	w.closed = true
	w.mu.Unlock()

	select {
	case w.wake <- struct{}{}:
	default:
	}
	<-w.done
}

func (w *writer) loop() {
	defer close(w.done)
	for {
		w.mu.Lock()
		if len(w.jobs) == 0 {
			closed := w.closed
			w.mu.Unlock()
			if closed {
				return
			}
			<-w.wake
			continue
		}
		job := w.jobs[0]
		w.jobs[0] = writeJob{}
		w.jobs = w.jobs[1:]
		w.mu.Unlock()

		if job.barrier != nil {
			close(job.barrier)
			continue
		}
		w.run(job)
	}
}
