// Package kernel is the process and locking core of an xv6-style kernel for
// a multi-hart RISC-V machine: spinlocks with interrupt-nesting
// bookkeeping, sleep locks, the process table, the per-hart scheduler and
// sleep/wakeup.
//
// There is no global kernel state. Every routine is a method on *Kernel and
// is told which flow of control it runs on through a Hart.
package kernel

import (
	"fmt"
	"sync/atomic"

	"github.com/sirupsen/logrus"

	"xv6-sched/kernel/riscv"
)

type Kernel struct {
	arch riscv.Arch
	log  *logrus.Entry

	cpus  []Cpu
	procs []Proc

	pidLock SpinLock
	nextpid int

	// waitLock keeps a parent's wait from missing the wakeup of an exiting
	// child, and guards every p.parent. Taken before any p.lock.
	waitLock SpinLock

	tickslock SpinLock
	ticks     uint

	kmem kmem

	lockid atomic.Uint64
}

// New boots a kernel on hart 0: physical page allocator first, then the
// process table. No scheduler is running when it returns; start one per
// hart with Scheduler.
func New(cfg Config) (*Kernel, error) {
	cfg.setDefaults()
	if err := cfg.validate(); err != nil {
		return nil, err
	}

	k := &Kernel{
		arch: cfg.Arch,
		log:  cfg.Log.WithField("sys", "kernel"),
	}

	k.cpus = make([]Cpu, cfg.NCPU)
	for i := range k.cpus {
		c := &k.cpus[i]
		c.id = i
		k.arch.NewContext(&c.context, 0, nil)
	}
	c := &k.cpus[0]

	k.hart(c).Info("kinit")
	k.kinit(c)

	k.InitLock(&k.pidLock, "nextpid")
	k.nextpid = 1
	k.InitLock(&k.waitLock, "wait_lock")
	k.InitLock(&k.tickslock, "time")

	k.hart(c).WithField("nproc", cfg.NPROC).Info("procinit")
	if err := k.procinit(c, cfg.NPROC); err != nil {
		return nil, fmt.Errorf("procinit: %w", err)
	}

	k.hart(c).WithField("ncpu", cfg.NCPU).Info("boot ok")
	return k, nil
}

// CPU returns the record of hart id.
func (k *Kernel) CPU(id int) (*Cpu, error) {
	if id < 0 || id >= len(k.cpus) {
		return nil, fmt.Errorf("%w: %d (ncpu %d)", ErrCpuIndexOutOfRange, id, len(k.cpus))
	}
	return &k.cpus[id], nil
}

func (k *Kernel) NCPU() int { return len(k.cpus) }

func (k *Kernel) NPROC() int { return len(k.procs) }

// Proc returns process table slot i, or nil. Slots never move.
func (k *Kernel) Proc(i int) *Proc {
	if i < 0 || i >= len(k.procs) {
		return nil
	}
	return &k.procs[i]
}
