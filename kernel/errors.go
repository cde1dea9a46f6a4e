package kernel

import (
	"errors"
	"fmt"
)

// Fatal conditions. A broken locking or scheduling invariant halts the
// offending hart: the kernel panics with a *Panic wrapping one of these.
var (
	ErrLockRecursion      = errors.New("acquire")
	ErrReleaseWithoutHold = errors.New("release")
	ErrNestingUnderflow   = errors.New("pop_off")
	ErrInterruptible      = errors.New("pop_off - interruptible")
	ErrSchedInvariant     = errors.New("sched")
	ErrBadFree            = errors.New("kfree")
	ErrBadChannel         = errors.New("sleep: channel not comparable")
)

// Recoverable conditions, returned to the caller.
var (
	ErrNoFreeSlot         = errors.New("no free process slot")
	ErrCpuIndexOutOfRange = errors.New("cpu index out of range")
	ErrNotZombie          = errors.New("process is not a zombie")
	ErrNoChildren         = errors.New("no children")
	ErrNoSuchProcess      = errors.New("no such process")
	ErrKilled             = errors.New("killed")
	ErrOutOfMemory        = errors.New("out of memory")
	ErrBadConfig          = errors.New("bad config")
)

// Panic is the value a hart panics with when a kernel invariant breaks.
type Panic struct {
	Hart int
	Err  error
}

func (p *Panic) Error() string { return fmt.Sprintf("panic: hart %d: %v", p.Hart, p.Err) }

func (p *Panic) Unwrap() error { return p.Err }
