package server

import (
	"fmt"
	"sync"

	"github.com/chazu/nother/vm"
)

// request represents a unit of work to be executed on the worker goroutine.
type request struct {
	fn   func(*vm.State) any
	done chan result
}

// result holds the return value from a state operation.
type result struct {
	value any
	err   error
}

// Worker serializes all access to one interpreter state through a single
// goroutine. A vm.State is not safe for concurrent use; every handler
// touching a session goes through its worker.
type Worker struct {
	state    *vm.State
	requests chan request
	quit     chan struct{}
	stopOnce sync.Once
}

// NewWorker creates a Worker and starts the processing goroutine.
func NewWorker(st *vm.State) *Worker {
	w := &Worker{
		state:    st,
		requests: make(chan request, 64),
		quit:     make(chan struct{}),
	}
	go w.loop()
	return w
}

// loop processes requests sequentially on a dedicated goroutine.
func (w *Worker) loop() {
	for {
		select {
		case req := <-w.requests:
			req.done <- w.execute(req.fn)
		case <-w.quit:
			return
		}
	}
}

// execute runs a function on the state, recovering from panics.
func (w *Worker) execute(fn func(*vm.State) any) result {
	var res result
	func() {
		defer func() {
			if r := recover(); r != nil {
				log.Errorf("worker panic: %v", r)
				res.err = fmt.Errorf("%v", r)
			}
		}()
		res.value = fn(w.state)
	}()
	return res
}

// Do submits a function for execution on the worker goroutine and blocks
// until it completes. Returns the result and any error (including panics).
// Do fails once the worker is stopped.
func (w *Worker) Do(fn func(*vm.State) any) (any, error) {
	req := request{
		fn:   fn,
		done: make(chan result, 1),
	}
	select {
	case w.requests <- req:
	case <-w.quit:
		return nil, errStopped
	}
	select {
	case res := <-req.done:
		return res.value, res.err
	case <-w.quit:
		return nil, errStopped
	}
}

// Stop shuts down the worker goroutine. It is safe to call more than once.
func (w *Worker) Stop() {
	w.stopOnce.Do(func() { close(w.quit) })
}
