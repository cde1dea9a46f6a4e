package kernel

import "xv6-sched/kernel/riscv"

// Trap is where process code enters the kernel at a trap boundary, such as
// a system call or the end of a time slice. It exits a killed process with
// status -1 and gives up the hart if the timer has fired.
func (k *Kernel) Trap(p *Proc) {
	if k.Killed(p, p) {
		k.Exit(p, -1)
	}

	// give up the CPU if this is a timer interrupt.
	if k.devintr(p) {
		k.Yield(p)
	}

	if k.Killed(p, p) {
		k.Exit(p, -1)
	}
}

// devintr handles a pending interrupt on the hart h runs on, if
// interrupts are enabled there, and reports whether it was the timer.
func (k *Kernel) devintr(h Hart) bool {
	c := h.mycpu()
	if !k.arch.IntrGet(c.id) {
		return false
	}
	switch k.arch.Scause(c.id) {
	case riscv.SCAUSE_TIMER, riscv.SCAUSE_SOFTWARE:
		if c.id == 0 {
			k.clockintr(h)
		}
		return true
	}
	return false
}

func (k *Kernel) clockintr(h Hart) {
	k.Acquire(h, &k.tickslock)
	k.ticks++
	k.Wakeup(h, &k.ticks)
	k.Release(h, &k.tickslock)
}

// Ticks returns the number of timer interrupts hart 0 has taken.
func (k *Kernel) Ticks(h Hart) uint {
	k.Acquire(h, &k.tickslock)
	n := k.ticks
	k.Release(h, &k.tickslock)
	return n
}

// SleepTicks puts p to sleep for n clock ticks.
func (k *Kernel) SleepTicks(p *Proc, n uint) error {
	k.Acquire(p, &k.tickslock)
	ticks0 := k.ticks
	for k.ticks-ticks0 < n {
		if k.Killed(p, p) {
			k.Release(p, &k.tickslock)
			return ErrKilled
		}
		k.Sleep(p, &k.ticks, &k.tickslock)
	}
	k.Release(p, &k.tickslock)
	return nil
}
