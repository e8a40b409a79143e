// Package worker provides a fixed-size goroutine pool for background
// jobs that must outlive the request that spawned them.
package worker

import "sync"

type Pool struct {
	wg      sync.WaitGroup
	mu      sync.Mutex
	jobs    chan func()
	stopped bool
}

func NewPool(n int) *Pool {
	if n <= 0 {
		n = 1
	}

	p := &Pool{jobs: make(chan func(), 256)}

	for i := 0; i < n; i++ {
		p.wg.Add(1)

		go func() {
			defer p.wg.Done()

			for job := range p.jobs {
				job()
			}
		}()
	}

	return p
}

// Submit queues a job and reports whether it was accepted. Jobs arriving
// after Stop are dropped rather than sent on the closed queue.
func (p *Pool) Submit(job func()) bool {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.stopped {
		return false
	}

	p.jobs <- job
	return true
}

// Stop closes the queue and waits for in-flight jobs to finish.
func (p *Pool) Stop() {
	p.mu.Lock()
	if p.stopped {
		p.mu.Unlock()
		return
	}

	p.stopped = true
	close(p.jobs)
	p.mu.Unlock()

	p.wg.Wait()
}
