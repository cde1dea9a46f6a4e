package riscv

import (
	"testing"
)

func TestTestAndSet(t *testing.T) {
	s := NewSim(1)
	var word uint32
	if old := s.TestAndSet(&word); old != 0 || word != 1 {
		t.Fatalf("first TestAndSet = %d, word %d", old, word)
	}
	if old := s.TestAndSet(&word); old != 1 {
		t.Fatalf("second TestAndSet = %d, want 1", old)
	}
	s.LockRelease(&word)
	if word != 0 {
		t.Fatalf("word = %d after LockRelease", word)
	}
}

func TestIntr(t *testing.T) {
	s := NewSim(2)
	s.IntrOn(1)
	if s.IntrGet(0) || !s.IntrGet(1) {
		t.Fatal("interrupt enable is not per hart")
	}
	s.IntrOff(1)
	if s.IntrGet(1) {
		t.Fatal("IntrOff did not disable")
	}
}

func TestScause(t *testing.T) {
	s := NewSim(2)
	if got := s.Scause(0); got != 0 {
		t.Fatalf("Scause with nothing pending = %#x", got)
	}
	s.Tick()
	if got := s.Scause(0); got != SCAUSE_TIMER {
		t.Fatalf("Scause after Tick = %#x, want %#x", got, uint64(SCAUSE_TIMER))
	}
	if got := s.Scause(0); got != 0 {
		t.Fatalf("timer interrupt not acknowledged: %#x", got)
	}
	if got := s.Scause(1); got != SCAUSE_TIMER {
		t.Fatalf("Tick did not reach hart 1: %#x", got)
	}
}

func TestSwtch(t *testing.T) {
	s := NewSim(1)
	var sched, task Context
	s.NewContext(&sched, 0, nil)

	var trace []string
	exited := make(chan struct{})
	s.NewContext(&task, 0x1000, func() {
		defer close(exited)
		trace = append(trace, "task 1")
		s.Swtch(&task, &sched)
		trace = append(trace, "task 2")
		s.Swtch(&task, &sched)
		trace = append(trace, "never")
	})
	if task.Sp != 0x1000 {
		t.Errorf("Sp = %#x", task.Sp)
	}

	trace = append(trace, "sched 1")
	s.Swtch(&sched, &task)
	trace = append(trace, "sched 2")
	s.Swtch(&sched, &task)
	trace = append(trace, "sched 3")

	s.FreeContext(&task)
	<-exited

	want := []string{"sched 1", "task 1", "sched 2", "task 2", "sched 3"}
	if len(trace) != len(want) {
		t.Fatalf("trace %q, want %q", trace, want)
	}
	for i := range want {
		if trace[i] != want[i] {
			t.Fatalf("trace %q, want %q", trace, want)
		}
	}
}

func TestFreeUnstartedContext(t *testing.T) {
	s := NewSim(1)
	var c Context
	ran := make(chan struct{}, 1)
	s.NewContext(&c, 0, func() { ran <- struct{}{} })
	s.FreeContext(&c)
	s.FreeContext(&c)
	select {
	case <-ran:
		t.Fatal("freed context ran its entry")
	default:
	}
}
