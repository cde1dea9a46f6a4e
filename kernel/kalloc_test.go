package kernel

import (
	"testing"

	"xv6-sched/kernel/riscv"
)

func TestKalloc(t *testing.T) {
	const nproc = 4
	k, _ := newKernel(t, 1, nproc)
	c := &k.cpus[0]

	total := int((PHYSTOP - end) / riscv.PGSIZE)
	if got := k.Kfreepages(c); got != total-nproc {
		t.Fatalf("free pages after procinit = %d, want %d", got, total-nproc)
	}

	seen := make(map[uintptr]bool)
	for i := 0; i < 64; i++ {
		pa := k.Kalloc(c)
		if pa == 0 || pa%riscv.PGSIZE != 0 || pa < end || pa >= PHYSTOP {
			t.Fatalf("Kalloc = %#x", pa)
		}
		if seen[pa] {
			t.Fatalf("Kalloc returned %#x twice", pa)
		}
		seen[pa] = true
	}
	for pa := range seen {
		k.Kfree(c, pa)
	}
	if got := k.Kfreepages(c); got != total-nproc {
		t.Errorf("free pages after Kfree = %d, want %d", got, total-nproc)
	}
}

func TestKallocExhausted(t *testing.T) {
	k, _ := newKernel(t, 1, 1)
	c := &k.cpus[0]
	for k.Kalloc(c) != 0 {
	}
	if k.Kfreepages(c) != 0 {
		t.Fatal("free list not empty after Kalloc returned 0")
	}
}

func TestKallocKstacks(t *testing.T) {
	k, _ := newKernel(t, 1, 3)
	seen := make(map[uintptr]bool)
	for i := range k.procs {
		ks := k.procs[i].kstack
		if ks == 0 || seen[ks] {
			t.Errorf("slot %d: kstack %#x", i, ks)
		}
		seen[ks] = true
	}
}

func TestKfreeBad(t *testing.T) {
	for _, pa := range []uintptr{end + 1, KERNBASE, PHYSTOP} {
		k, _ := newKernel(t, 1, 1)
		mustPanic(t, ErrBadFree, func() { k.Kfree(&k.cpus[0], pa) })
	}
}
