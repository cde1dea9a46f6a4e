package riscv

import (
	"context"
	"runtime"
	"sync/atomic"
	"time"
)

// Sim is a multi-hart machine run on goroutines. Every kernel flow of
// control (a hart's scheduler loop, each process) is its own goroutine, and
// Swtch hands the hart from one to the other so that exactly one of the
// flows bound to a hart is running at any time.
type Sim struct {
	sie   []atomic.Bool // sstatus.SIE per hart
	timer []atomic.Bool // pending timer interrupt per hart
	idle  time.Duration
}

func NewSim(ncpu int) *Sim {
	return &Sim{
		sie:   make([]atomic.Bool, ncpu),
		timer: make([]atomic.Bool, ncpu),
		idle:  50 * time.Microsecond,
	}
}

func (s *Sim) TestAndSet(addr *uint32) uint32 {
	old := atomic.SwapUint32(addr, 1)
	if old != 0 {
		// pause hint; lets the holder's goroutine make progress when
		// there are more harts than Ps.
		runtime.Gosched()
	}
	return old
}

// Synchronize is a no-op: every access the kernel makes to shared lock
// words goes through sync/atomic, which is sequentially consistent.
func (s *Sim) Synchronize() {}

func (s *Sim) LockRelease(addr *uint32) { atomic.StoreUint32(addr, 0) }

func (s *Sim) IntrOn(hart int) { s.sie[hart].Store(true) }
func (s *Sim) IntrOff(hart int) { s.sie[hart].Store(false) }
func (s *Sim) IntrGet(hart int) bool { return s.sie[hart].Load() }

func (s *Sim) Scause(hart int) uint64 {
	if s.timer[hart].Swap(false) {
		return SCAUSE_TIMER
	}
	return 0
}

func (s *Sim) Wfi(hart int) {
	if s.timer[hart].Load() {
		return
	}
	time.Sleep(s.idle)
}

// Tick raises a timer interrupt on every hart.
func (s *Sim) Tick() {
	for i := range s.timer {
		s.timer[i].Store(true)
	}
}

// StartTimer calls Tick every interval until ctx is done.
func (s *Sim) StartTimer(ctx context.Context, interval time.Duration) {
	go func() {
		t := time.NewTicker(interval)
		defer t.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-t.C:
				s.Tick()
			}
		}
	}()
}

func (s *Sim) NewContext(c *Context, sp uintptr, entry func()) {
	wake := make(chan struct{}, 1)
	c.Sp = sp
	c.wake = wake
	if entry == nil {
		return
	}
	go func() {
		if _, ok := <-wake; !ok {
			return
		}
		entry()
	}()
}

func (s *Sim) Swtch(old, new *Context) {
	// Load both before handing the hart over; old may be freed and
	// reinitialized as soon as new runs.
	o, n := old.wake, new.wake
	n <- struct{}{}
	if _, ok := <-o; !ok {
		runtime.Goexit()
	}
}

func (s *Sim) FreeContext(c *Context) {
	if c.wake != nil {
		close(c.wake)
		c.wake = nil
	}
	c.Sp = 0
}
