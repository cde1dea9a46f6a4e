// Package riscv is the register-level layer of the kernel: atomics, the
// supervisor interrupt-enable bit, wfi and the context switch.
//
// On hardware each routine reads the calling hart from tp. Here the hart is
// passed explicitly; it is always the id of the Cpu the caller runs on.
package riscv

const PGSIZE = uintptr(4096) // bytes per page

// scause values for a supervisor timer interrupt. The second form is the
// software interrupt forwarded by timervec on machines without sstc.
const (
	SCAUSE_TIMER    = 0x8000000000000005
	SCAUSE_SOFTWARE = 0x8000000000000001
)

func PGROUNDUP(a uintptr) uintptr { return (a + PGSIZE - 1) & ^(PGSIZE - 1) }
func PGROUNDDOWN(a uintptr) uintptr { return a & ^(PGSIZE - 1) }

// Arch is what the kernel consumes from the machine.
type Arch interface {
	// TestAndSet atomically stores 1 in *addr and returns the old value
	// (amoswap.w.aq).
	TestAndSet(addr *uint32) uint32
	// Synchronize is a full memory fence.
	Synchronize()
	// LockRelease atomically stores 0 in *addr with release ordering
	// (amoswap.w.rl zero).
	LockRelease(addr *uint32)

	// IntrOn/IntrOff/IntrGet set, clear and read sstatus.SIE on hart.
	IntrOn(hart int)
	IntrOff(hart int)
	IntrGet(hart int) bool

	// Scause returns the cause of the pending trap on hart, or 0, and
	// acknowledges it (clears sip.SSIP).
	Scause(hart int) uint64
	// Wfi idles hart until something may have changed.
	Wfi(hart int)

	// NewContext prepares c so that the first Swtch into it runs entry on a
	// stack whose top is sp. A nil entry prepares a context that is only
	// ever saved into, such as a scheduler's.
	NewContext(c *Context, sp uintptr, entry func())
	// Swtch saves the current flow of control in old and resumes new.
	// It returns when something later switches back into old.
	Swtch(old, new *Context)
	// FreeContext discards a context that will never be resumed again.
	// The flow suspended in it is terminated.
	FreeContext(c *Context)
}

// Context is the saved register set of a suspended kernel flow. On
// hardware swtch.S stores ra, sp and s0-s11 here.
type Context struct {
	Sp uintptr

	wake chan struct{}
}
