package kernel

import "github.com/sirupsen/logrus"

// SleepLock is a long-term lock for processes. Its holder may sleep, for
// example waiting for disk I/O, while holding it. It must never be taken
// from interrupt context.
type SleepLock struct {
	locked bool     // Is the lock held?
	lk     SpinLock // spinlock protecting this sleep lock

	// For debugging:
	name string
	pid  int // Process holding lock
}

func (k *Kernel) InitSleepLock(lk *SleepLock, name string) {
	k.InitLock(&lk.lk, "sleep lock")
	lk.name = name
	lk.locked = false
	lk.pid = 0
}

func (lk *SleepLock) Name() string { return lk.name }

func (k *Kernel) AcquireSleep(p *Proc, lk *SleepLock) {
	k.Acquire(p, &lk.lk)
	for lk.locked {
		k.Sleep(p, lk, &lk.lk)
	}
	lk.locked = true
	lk.pid = p.pid
	k.Release(p, &lk.lk)
}

func (k *Kernel) ReleaseSleep(p *Proc, lk *SleepLock) {
	k.Acquire(p, &lk.lk)
	if !lk.locked || lk.pid != p.pid {
		k.kpanic(p.cpu, ErrReleaseWithoutHold, logrus.Fields{"lock": lk.name, "pid": p.pid, "holder": lk.pid}, "sleep lock")
	}
	lk.locked = false
	lk.pid = 0
	k.Wakeup(p, lk)
	k.Release(p, &lk.lk)
}

func (k *Kernel) HoldingSleep(p *Proc, lk *SleepLock) bool {
	k.Acquire(p, &lk.lk)
	r := lk.locked && lk.pid == p.pid
	k.Release(p, &lk.lk)
	return r
}
