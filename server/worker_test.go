package server

import (
	"sync"
	"testing"

	"github.com/chazu/nother/vm"
)

func TestWorkerDo(t *testing.T) {
	w := NewWorker(vm.NewState())
	defer w.Stop()

	got, err := w.Do(func(st *vm.State) any {
		st.Push(vm.Num(1), vm.Num(2))
		return len(st.Stack())
	})
	if err != nil {
		t.Fatalf("Do failed: %v", err)
	}
	if got.(int) != 2 {
		t.Errorf("Do returned %v, want 2", got)
	}
}

func TestWorkerRecoversPanic(t *testing.T) {
	w := NewWorker(vm.NewState())
	defer w.Stop()

	_, err := w.Do(func(*vm.State) any { panic("boom") })
	if err == nil || err.Error() != "boom" {
		t.Errorf("expected recovered panic, got %v", err)
	}

	// the worker keeps serving after a panic
	if _, err := w.Do(func(*vm.State) any { return nil }); err != nil {
		t.Errorf("Do after panic failed: %v", err)
	}
}

func TestWorkerSerializes(t *testing.T) {
	w := NewWorker(vm.NewState())
	defer w.Stop()

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			w.Do(func(st *vm.State) any {
				st.Push(vm.Num(1))
				return nil
			})
		}()
	}
	wg.Wait()

	n, _ := w.Do(func(st *vm.State) any { return len(st.Stack()) })
	if n.(int) != 50 {
		t.Errorf("stack depth = %v, want 50", n)
	}
}

func TestWorkerStopped(t *testing.T) {
	w := NewWorker(vm.NewState())
	w.Stop()
	w.Stop()
	if _, err := w.Do(func(*vm.State) any { return nil }); err == nil {
		t.Error("Do on a stopped worker should fail")
	}
}
