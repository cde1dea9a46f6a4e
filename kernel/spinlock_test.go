package kernel

import (
	"sync"
	"sync/atomic"
	"testing"
)

func TestSpinLockMutualExclusion(t *testing.T) {
	const (
		nharts = 3
		nproc  = 8
		iters  = 500
	)
	k, _ := newKernel(t, nharts+1, nproc)
	startHarts(t, k, nharts)
	obs := &k.cpus[nharts]

	var lk SpinLock
	k.InitLock(&lk, "counter")
	var (
		count   int
		inside  atomic.Int32
		overlap atomic.Bool
		wg      sync.WaitGroup
	)
	for i := 0; i < nproc; i++ {
		wg.Add(1)
		_, err := k.AllocProc(obs, nil, "counter", func(p *Proc) {
			defer wg.Done()
			for j := 0; j < iters; j++ {
				k.Acquire(p, &lk)
				if inside.Add(1) != 1 {
					overlap.Store(true)
				}
				count++
				inside.Add(-1)
				k.Release(p, &lk)
				if j%10 == 0 {
					k.Yield(p)
				}
			}
		})
		if err != nil {
			t.Fatalf("AllocProc: %v", err)
		}
	}
	wg.Wait()

	if overlap.Load() {
		t.Error("two harts were inside the critical section at once")
	}
	k.Acquire(obs, &lk)
	got := count
	k.Release(obs, &lk)
	if got != nproc*iters {
		t.Errorf("count = %d, want %d", got, nproc*iters)
	}
}

func TestAcquireTwice(t *testing.T) {
	k, _ := newKernel(t, 1, 1)
	c := &k.cpus[0]
	var lk SpinLock
	k.InitLock(&lk, "twice")

	k.Acquire(c, &lk)
	mustPanic(t, ErrLockRecursion, func() { k.Acquire(c, &lk) })
}

func TestReleaseWithoutHold(t *testing.T) {
	t.Run("free", func(t *testing.T) {
		k, _ := newKernel(t, 1, 1)
		var lk SpinLock
		k.InitLock(&lk, "free")
		mustPanic(t, ErrReleaseWithoutHold, func() { k.Release(&k.cpus[0], &lk) })
	})
	t.Run("other hart", func(t *testing.T) {
		k, _ := newKernel(t, 2, 1)
		var lk SpinLock
		k.InitLock(&lk, "other")
		k.Acquire(&k.cpus[0], &lk)
		mustPanic(t, ErrReleaseWithoutHold, func() { k.Release(&k.cpus[1], &lk) })
	})
}

func TestSpinLockRoundTrip(t *testing.T) {
	k, sim := newKernel(t, 2, 1)
	c := &k.cpus[0]
	var lk SpinLock
	k.InitLock(&lk, "roundtrip")
	name, id := lk.name, lk.id
	sim.IntrOn(c.id)

	k.Acquire(c, &lk)
	if !k.Holding(c, &lk) {
		t.Error("Holding on the acquiring hart = false")
	}
	if k.Holding(&k.cpus[1], &lk) {
		t.Error("Holding on another hart = true")
	}
	if sim.IntrGet(c.id) {
		t.Error("interrupts enabled while holding a spinlock")
	}
	k.Release(c, &lk)

	if lk.locked != 0 || lk.cpu.Load() != nil || lk.name != name || lk.id != id {
		t.Errorf("after release: locked=%d cpu=%v name=%q id=%d", lk.locked, lk.cpu.Load(), lk.name, lk.id)
	}
	if k.Holding(c, &lk) {
		t.Error("Holding after release = true")
	}
	if c.noff != 0 || !sim.IntrGet(c.id) {
		t.Errorf("after release: noff=%d intr=%v, want 0, true", c.noff, sim.IntrGet(c.id))
	}
}

func TestLockIdentity(t *testing.T) {
	k, _ := newKernel(t, 1, 1)
	var a, b SpinLock
	k.InitLock(&a, "same")
	k.InitLock(&b, "same")
	if a.id == b.id || a.id == 0 {
		t.Errorf("ids %d, %d: want distinct and non-zero", a.id, b.id)
	}
}

func TestPushPopSymmetry(t *testing.T) {
	for _, on := range []bool{true, false} {
		for n := 1; n <= 4; n++ {
			k, sim := newKernel(t, 1, 1)
			c := &k.cpus[0]
			if on {
				sim.IntrOn(0)
			} else {
				sim.IntrOff(0)
			}

			for i := 0; i < n; i++ {
				k.PushOff(c)
				if sim.IntrGet(0) {
					t.Fatalf("on=%v n=%d: enabled after push %d", on, n, i+1)
				}
			}
			for i := 0; i < n; i++ {
				k.PopOff(c)
				if i < n-1 && sim.IntrGet(0) {
					t.Fatalf("on=%v n=%d: enabled after pop %d", on, n, i+1)
				}
			}

			if got := sim.IntrGet(0); got != on {
				t.Errorf("on=%v n=%d: enabled=%v after balanced sequence", on, n, got)
			}
			if c.noff != 0 {
				t.Errorf("on=%v n=%d: noff=%d", on, n, c.noff)
			}
		}
	}
}

func TestPushPopInnerPairs(t *testing.T) {
	k, sim := newKernel(t, 1, 1)
	c := &k.cpus[0]
	sim.IntrOn(0)

	// push push pop push pop pop
	steps := []bool{true, true, false, true, false, false}
	for i, push := range steps {
		if push {
			k.PushOff(c)
		} else {
			k.PopOff(c)
		}
		if i < len(steps)-1 && sim.IntrGet(0) {
			t.Fatalf("enabled inside the outer pair after step %d", i)
		}
	}
	if !sim.IntrGet(0) {
		t.Error("outer pop did not restore interrupts")
	}
}

func TestPopOffUnderflow(t *testing.T) {
	k, _ := newKernel(t, 1, 1)
	mustPanic(t, ErrNestingUnderflow, func() { k.PopOff(&k.cpus[0]) })
}

func TestPopOffInterruptible(t *testing.T) {
	k, sim := newKernel(t, 1, 1)
	c := &k.cpus[0]
	k.PushOff(c)
	sim.IntrOn(0)
	mustPanic(t, ErrInterruptible, func() { k.PopOff(c) })
}
