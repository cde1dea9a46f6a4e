package kernel

import (
	"github.com/sirupsen/logrus"

	"xv6-sched/kernel/riscv"
)

// Physical memory allocator, for kernel stacks and other whole pages.
// Allocates 4096-byte pages of [end, PHYSTOP).
type kmem struct {
	lock     SpinLock
	freelist []uintptr
}

func (k *Kernel) kinit(c *Cpu) {
	k.InitLock(&k.kmem.lock, "kmem")
	k.kmem.freelist = make([]uintptr, 0, (PHYSTOP-end)/riscv.PGSIZE)
	k.freerange(c, end, PHYSTOP)
}

func (k *Kernel) freerange(h Hart, paStart, paEnd uintptr) {
	k.hart(h.mycpu()).WithFields(logrus.Fields{"start": paStart, "end": paEnd}).Debug("freerange")
	for p := riscv.PGROUNDUP(paStart); p+riscv.PGSIZE <= paEnd; p += riscv.PGSIZE {
		k.Kfree(h, p)
	}
}

// Kfree frees the page of physical memory at pa, which normally should
// have been returned by a call to Kalloc.
func (k *Kernel) Kfree(h Hart, pa uintptr) {
	if pa%riscv.PGSIZE != 0 || pa < end || pa >= PHYSTOP {
		k.kpanic(h.mycpu(), ErrBadFree, nil, "pa %#x", pa)
	}

	k.Acquire(h, &k.kmem.lock)
	k.kmem.freelist = append(k.kmem.freelist, pa)
	k.Release(h, &k.kmem.lock)
}

// Kalloc allocates one 4096-byte page of physical memory. It returns 0 if
// the memory cannot be allocated.
func (k *Kernel) Kalloc(h Hart) uintptr {
	k.Acquire(h, &k.kmem.lock)
	var pa uintptr
	if n := len(k.kmem.freelist); n > 0 {
		pa = k.kmem.freelist[n-1]
		k.kmem.freelist = k.kmem.freelist[:n-1]
	}
	k.Release(h, &k.kmem.lock)
	return pa
}

// Kfreepages returns the number of free pages.
func (k *Kernel) Kfreepages(h Hart) int {
	k.Acquire(h, &k.kmem.lock)
	n := len(k.kmem.freelist)
	k.Release(h, &k.kmem.lock)
	return n
}
