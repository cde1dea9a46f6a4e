package kernel

import (
	"sync/atomic"

	"github.com/sirupsen/logrus"
)

// SpinLock is mutual exclusion for short critical sections. It may be taken
// from interrupt context. It must not be held across Sleep except as the
// condition lock Sleep itself releases.
type SpinLock struct {
	locked uint32 // Is the lock held?

	// For debugging:
	name string
	id   uint64              // identity, compared by value
	cpu  atomic.Pointer[Cpu] // The cpu holding the lock; nil when free.
}

// InitLock names lk and gives it a fresh identity. The zero SpinLock is an
// unlocked, anonymous lock.
func (k *Kernel) InitLock(lk *SpinLock, name string) {
	lk.name = name
	lk.locked = 0
	lk.cpu.Store(nil)
	lk.id = k.lockid.Add(1)
}

func (lk *SpinLock) Name() string { return lk.name }

// Acquire loops (spins) until lk is held by the hart h runs on.
func (k *Kernel) Acquire(h Hart, lk *SpinLock) {
	c := k.pushOff(h) // disable interrupts to avoid deadlock.
	if k.holding(c, lk) {
		k.kpanic(c, ErrLockRecursion, logrus.Fields{"lock": lk.name}, "")
	}

	// amoswap.w.aq; this is why it is called a spinlock.
	for k.arch.TestAndSet(&lk.locked) != 0 {
	}

	// Make sure the critical section's loads and stores happen strictly
	// after the lock is acquired.
	k.arch.Synchronize()

	lk.cpu.Store(c)
}

// Release releases lk, which the hart h runs on must hold.
func (k *Kernel) Release(h Hart, lk *SpinLock) {
	c := h.mycpu()
	if !k.holding(c, lk) {
		k.kpanic(c, ErrReleaseWithoutHold, logrus.Fields{"lock": lk.name}, "")
	}

	lk.cpu.Store(nil)

	// Stores in the critical section become visible to other harts before
	// the lock is seen to be free.
	k.arch.Synchronize()

	k.arch.LockRelease(&lk.locked)

	k.popOff(c)
}

// Holding reports whether the hart h runs on holds lk. It is meant for
// assertions, not for deciding whether to acquire.
func (k *Kernel) Holding(h Hart, lk *SpinLock) bool {
	c := k.pushOff(h)
	r := k.holding(c, lk)
	k.popOff(c)
	return r
}

// holding must be called with interrupts off.
func (k *Kernel) holding(c *Cpu, lk *SpinLock) bool {
	return atomic.LoadUint32(&lk.locked) != 0 && lk.cpu.Load() == c
}

// PushOff and PopOff are like IntrOff/IntrOn except that they are matched:
// it takes two PopOff to undo two PushOff. If interrupts are initially
// off, PushOff then PopOff leaves them off.
func (k *Kernel) PushOff(h Hart) { k.pushOff(h) }

func (k *Kernel) PopOff(h Hart) { k.popOff(h.mycpu()) }

func (k *Kernel) pushOff(h Hart) *Cpu {
	c := h.mycpu()
	old := k.arch.IntrGet(c.id)
	k.arch.IntrOff(c.id)
	if c.noff == 0 {
		c.intena = old
	}
	c.noff++
	return c
}

func (k *Kernel) popOff(c *Cpu) {
	if k.arch.IntrGet(c.id) {
		k.kpanic(c, ErrInterruptible, nil, "")
	}
	if c.noff < 1 {
		k.kpanic(c, ErrNestingUnderflow, nil, "")
	}
	c.noff--
	if c.noff == 0 && c.intena {
		k.arch.IntrOn(c.id)
	}
}
