package kernel

import (
	"context"
	"reflect"

	"github.com/sirupsen/logrus"
)

// Scheduler is the loop of hart c. It scans the process table for a
// RUNNABLE process, switches to it, and gets control back when the
// process calls sched(). It returns ctx.Err() once ctx is done; ctx is
// only looked at between passes, never while a process is switched in.
//
// The goroutine that calls Scheduler becomes hart c; nothing else may use
// c until it returns.
func (k *Kernel) Scheduler(ctx context.Context, c *Cpu) error {
	c.proc = nil
	k.hart(c).Debug("scheduler start")

	for {
		if err := ctx.Err(); err != nil {
			k.hart(c).Debug("scheduler stop")
			return err
		}

		// The most recent process to run may have had interrupts
		// turned off; enable them to avoid a deadlock if all
		// processes are waiting.
		k.arch.IntrOn(c.id)
		k.devintr(c)

		found := false
		for i := range k.procs {
			p := &k.procs[i]
			k.Acquire(c, &p.lock)
			if p.state == RUNNABLE {
				// Switch to chosen process. It is the process's job
				// to release its lock and then reacquire it
				// before jumping back to us.
				p.state = RUNNING
				c.proc = p
				p.cpu = c
				k.arch.Swtch(&c.context, &p.context)

				// Process is done running for now.
				// It should have changed its p.state before coming back.
				c.proc = nil
				found = true
			}
			k.Release(c, &p.lock)
		}
		if !found {
			// nothing to run; stop running on this core until an interrupt.
			k.arch.Wfi(c.id)
		}
	}
}

// Switch to scheduler. Must hold only p.lock and have changed p.state.
// Saves and restores intena because intena is a property of this kernel
// thread, not this CPU. It should be proc.intena and proc.noff, but that
// would break in the few places where a lock is held but there's no
// process.
func (k *Kernel) sched(p *Proc) {
	c := p.cpu
	fields := logrus.Fields{"pid": p.pid, "name": p.name}

	if !k.holding(c, &p.lock) {
		k.kpanic(c, ErrSchedInvariant, fields, "not holding proc lock")
	}
	if c.noff != 1 {
		k.kpanic(c, ErrSchedInvariant, fields, "nesting depth %d", c.noff)
	}
	if p.state == RUNNING {
		k.kpanic(c, ErrSchedInvariant, fields, "running")
	}
	if k.arch.IntrGet(c.id) {
		k.kpanic(c, ErrSchedInvariant, fields, "interruptible")
	}

	intena := c.intena
	k.arch.Swtch(&p.context, &c.context)
	// p may be back on a different hart.
	p.cpu.intena = intena
}

// Yield gives up the hart for one scheduling round.
func (k *Kernel) Yield(p *Proc) {
	k.Acquire(p, &p.lock)
	p.state = RUNNABLE
	k.sched(p)
	k.Release(p, &p.lock)
}

// Sleep atomically releases lk and sleeps on wchan until a Wakeup(wchan);
// lk is held again when it returns. p must be the calling process and hold
// lk, which may be p's own lock. wchan is compared with ==, so it must be
// of a comparable type, typically a pointer to the resource waited on or
// an integer; anything else halts the hart.
//
// Sleep may also return because p was killed; callers recheck their
// condition in a loop.
func (k *Kernel) Sleep(p *Proc, wchan any, lk *SpinLock) {
	if wchan == nil || !reflect.TypeOf(wchan).Comparable() {
		k.kpanic(p.cpu, ErrBadChannel, logrus.Fields{"pid": p.pid}, "%T", wchan)
	}
	own := lk.id == p.lock.id

	// Must acquire p.lock in order to change p.state and then call
	// sched. Once we hold p.lock, we can be guaranteed that we won't
	// miss any wakeup (wakeup locks p.lock), so it's okay to release lk.
	if !own {
		k.Acquire(p, &p.lock)
		k.Release(p, lk)
	}

	// Go to sleep.
	p.wchan = wchan
	p.state = SLEEPING

	k.sched(p)

	// Tidy up.
	p.wchan = nil

	// Reacquire original lock.
	if !own {
		k.Release(p, &p.lock)
		k.Acquire(p, lk)
	}
}

// Wakeup makes every process sleeping on wchan RUNNABLE. It must be
// called without any p.lock held.
func (k *Kernel) Wakeup(h Hart, wchan any) {
	for i := range k.procs {
		p := &k.procs[i]
		k.Acquire(h, &p.lock)
		if p.state == SLEEPING && p.wchan == wchan {
			p.state = RUNNABLE
		}
		k.Release(h, &p.lock)
	}
}
