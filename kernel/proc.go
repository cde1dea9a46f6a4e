package kernel

import (
	"fmt"
	"io"

	"github.com/sirupsen/logrus"
	"golang.org/x/sys/cpu"

	"xv6-sched/kernel/riscv"
)

type ProcState int

const (
	UNUSED ProcState = iota
	SLEEPING
	RUNNABLE
	RUNNING
	ZOMBIE
)

var states = [...]string{
	UNUSED:   "unused",
	SLEEPING: "sleep ",
	RUNNABLE: "runble",
	RUNNING:  "run   ",
	ZOMBIE:   "zombie",
}

func (s ProcState) String() string {
	if s < 0 || int(s) >= len(states) {
		return "???"
	}
	return states[s]
}

// Per-CPU state.
type Cpu struct {
	proc    *Proc         // The process running on this cpu, or nil.
	context riscv.Context // swtch() here to enter scheduler().
	noff    int           // Depth of push_off() nesting.
	intena  bool          // Were interrupts enabled before push_off()?
	id      int

	// noff and intena are written on every lock operation of this hart
	// only; keep them off the neighbours' cache lines.
	_ cpu.CacheLinePad
}

func (c *Cpu) ID() int { return c.id }

// Proc returns the process running on c, or nil. Only code running on c
// may call it.
func (c *Cpu) Proc() *Proc { return c.proc }

// Per-process state.
type Proc struct {
	lock SpinLock

	// p.lock must be held when using these:
	state  ProcState // Process state
	wchan  any       // If non-nil, sleeping on wchan
	killed bool      // If true, have been killed
	xstate int       // Exit status to be returned to parent's wait
	pid    int       // Process ID

	// k.waitLock must be held when using this:
	parent int // Slot of the parent process, or -1

	// these are private to the process, so p.lock need not be held.
	kstack  uintptr       // Physical page of the kernel stack
	context riscv.Context // swtch() here to run process
	name    string        // Process name (debugging)
	task    func(p *Proc)
	cpu     *Cpu // Hart running the process; set by its scheduler before swtch
	slot    int
}

// Pid is safe to call from p itself, or by whoever knows p's slot cannot
// be reaped concurrently.
func (p *Proc) Pid() int { return p.pid }

func (p *Proc) Name() string { return p.name }

func (p *Proc) Slot() int { return p.slot }

// Lock returns p's own lock, for callers that Sleep on it.
func (p *Proc) Lock() *SpinLock { return &p.lock }

// A Hart is the flow of control a kernel routine executes on: a hart's
// own loop (*Cpu), including boot and interrupt code that runs directly on
// the hart, or a process (*Proc), which runs on whichever hart last
// switched into it. A Cpu must be driven by one flow at a time.
type Hart interface {
	mycpu() *Cpu
}

func (c *Cpu) mycpu() *Cpu { return c }

func (p *Proc) mycpu() *Cpu { return p.cpu }

// MyCPU returns the hart h runs on. A process may be on another hart by
// the time it looks at the result, unless it has interrupts off.
func (k *Kernel) MyCPU(h Hart) *Cpu {
	c := k.pushOff(h)
	k.popOff(c)
	return c
}

// MyProc returns the process running on the hart h runs on, or nil.
func (k *Kernel) MyProc(h Hart) *Proc {
	c := k.pushOff(h)
	p := c.proc
	k.popOff(c)
	return p
}

// procinit sets up the process table, giving every slot a kernel stack.
func (k *Kernel) procinit(c *Cpu, nproc int) error {
	k.procs = make([]Proc, nproc)
	for i := range k.procs {
		p := &k.procs[i]
		k.InitLock(&p.lock, "proc")

		kstack := k.Kalloc(c)
		if kstack == 0 {
			return fmt.Errorf("%w: kernel stack for slot %d", ErrOutOfMemory, i)
		}
		p.kstack = kstack
		p.slot = i
		p.parent = -1
		p.state = UNUSED
	}
	return nil
}

func (k *Kernel) allocpid(h Hart) int {
	k.Acquire(h, &k.pidLock)
	pid := k.nextpid
	k.nextpid++
	k.Release(h, &k.pidLock)
	return pid
}

// AllocProc looks in the process table for an UNUSED slot and makes it a
// RUNNABLE process that will run task the first time a scheduler picks
// it, and exit with status 0 if task returns. parent may be nil.
func (k *Kernel) AllocProc(h Hart, parent *Proc, name string, task func(p *Proc)) (*Proc, error) {
	var p *Proc

	// The parent link is published together with RUNNABLE, so an exiting
	// child always finds the parent it has to wake.
	k.Acquire(h, &k.waitLock)
	for i := range k.procs {
		p = &k.procs[i]
		k.Acquire(h, &p.lock)
		if p.state == UNUSED {
			goto found
		}
		k.Release(h, &p.lock)
	}
	k.Release(h, &k.waitLock)
	return nil, ErrNoFreeSlot

found:
	p.pid = k.allocpid(h)
	p.name = name
	p.task = task
	p.killed = false
	p.xstate = 0
	p.wchan = nil
	p.parent = -1
	if parent != nil {
		p.parent = parent.slot
	}

	// Set up new context to start executing at forkret on its own
	// kernel stack.
	k.arch.NewContext(&p.context, p.kstack+riscv.PGSIZE, func() { k.forkret(p) })

	p.state = RUNNABLE
	pid := p.pid

	k.Release(h, &p.lock)
	k.Release(h, &k.waitLock)

	k.hart(h.mycpu()).WithFields(logrus.Fields{"pid": pid, "name": name}).Debug("allocproc")
	return p, nil
}

// A new process's very first scheduling by scheduler() will swtch to
// forkret.
func (k *Kernel) forkret(p *Proc) {
	// Still holding p.lock from scheduler.
	k.Release(p, &p.lock)

	if p.task != nil {
		p.task(p)
	}
	k.Exit(p, 0)
}

// freeproc returns p's slot to UNUSED. p.lock and k.waitLock must be held.
func (k *Kernel) freeproc(p *Proc) {
	k.arch.FreeContext(&p.context)
	p.pid = 0
	p.parent = -1
	p.name = ""
	p.task = nil
	p.cpu = nil
	p.wchan = nil
	p.killed = false
	p.xstate = 0
	p.state = UNUSED
}

// Exit terminates the calling process p with status. It does not return:
// p stays a ZOMBIE until its parent's Wait, or a Reap, frees the slot.
func (k *Kernel) Exit(p *Proc, status int) {
	k.Acquire(p, &k.waitLock)

	// Orphans are reaped by whoever still holds their handle.
	for i := range k.procs {
		if k.procs[i].parent == p.slot {
			k.procs[i].parent = -1
		}
	}

	// Parent might be sleeping in Wait.
	if p.parent >= 0 {
		k.Wakeup(p, &k.procs[p.parent])
	}

	k.Acquire(p, &p.lock)
	p.xstate = status
	p.state = ZOMBIE

	k.Release(p, &k.waitLock)

	k.hart(p.cpu).WithFields(logrus.Fields{"pid": p.pid, "status": status}).Debug("exit")

	// Jump into the scheduler, never to return.
	k.sched(p)
	k.kpanic(p.cpu, ErrSchedInvariant, logrus.Fields{"pid": p.pid}, "zombie exit")
}

// Reap frees the slot of ZOMBIE process p and returns its exit status.
func (k *Kernel) Reap(h Hart, p *Proc) (int, error) {
	k.Acquire(h, &k.waitLock)
	k.Acquire(h, &p.lock)
	if p.state != ZOMBIE {
		state, pid := p.state, p.pid
		k.Release(h, &p.lock)
		k.Release(h, &k.waitLock)
		return 0, fmt.Errorf("%w: pid %d is %s", ErrNotZombie, pid, state)
	}
	xstate := p.xstate
	k.freeproc(p)
	k.Release(h, &p.lock)
	k.Release(h, &k.waitLock)
	return xstate, nil
}

// Wait waits for a child of p to exit, reaps it and returns its pid and
// exit status.
func (k *Kernel) Wait(p *Proc) (pid, xstate int, err error) {
	k.Acquire(p, &k.waitLock)

	for {
		// Scan through table looking for exited children.
		havekids := false
		for i := range k.procs {
			pp := &k.procs[i]
			if pp.parent != p.slot {
				continue
			}
			// make sure the child isn't still in Exit or swtch.
			k.Acquire(p, &pp.lock)
			havekids = true
			if pp.state == ZOMBIE {
				pid, xstate = pp.pid, pp.xstate
				k.freeproc(pp)
				k.Release(p, &pp.lock)
				k.Release(p, &k.waitLock)
				return pid, xstate, nil
			}
			k.Release(p, &pp.lock)
		}

		if !havekids {
			k.Release(p, &k.waitLock)
			return 0, 0, ErrNoChildren
		}
		if k.Killed(p, p) {
			k.Release(p, &k.waitLock)
			return 0, 0, ErrKilled
		}

		// Wait for a child to exit.
		k.Sleep(p, p, &k.waitLock)
	}
}

// Kill marks the process with the given pid killed. A sleeping victim is
// made RUNNABLE so that it notices at its next trap boundary; callers of
// Sleep must be prepared for an early return.
func (k *Kernel) Kill(h Hart, pid int) error {
	for i := range k.procs {
		p := &k.procs[i]
		k.Acquire(h, &p.lock)
		if p.pid == pid && p.state != UNUSED {
			p.killed = true
			if p.state == SLEEPING {
				// Wake process from sleep().
				p.state = RUNNABLE
			}
			k.Release(h, &p.lock)
			return nil
		}
		k.Release(h, &p.lock)
	}
	return fmt.Errorf("%w: pid %d", ErrNoSuchProcess, pid)
}

func (k *Kernel) Killed(h Hart, p *Proc) bool {
	k.Acquire(h, &p.lock)
	killed := p.killed
	k.Release(h, &p.lock)
	return killed
}

func (k *Kernel) State(h Hart, p *Proc) ProcState {
	k.Acquire(h, &p.lock)
	state := p.state
	k.Release(h, &p.lock)
	return state
}

// ProcDump prints a process listing to w, like ^P on the console.
func (k *Kernel) ProcDump(h Hart, w io.Writer) {
	fmt.Fprintln(w)
	for i := range k.procs {
		p := &k.procs[i]
		k.Acquire(h, &p.lock)
		state, pid, name := p.state, p.pid, p.name
		k.Release(h, &p.lock)
		if state == UNUSED {
			continue
		}
		fmt.Fprintf(w, "%d %s %s\n", pid, state, name)
	}
}
