// Command xv6 boots a simulated multi-hart machine and runs the lock
// tests: a set of processes increments a spinlock-protected counter and a
// sleeplock-protected counter while a timer preempts them.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"xv6-sched/kernel"
	"xv6-sched/kernel/riscv"
)

type Counter struct {
	lock kernel.SpinLock
	num  int
}

type SleepCounter struct {
	lock kernel.SleepLock
	num  int
}

func main() {
	ncpu := flag.Int("cpus", kernel.NCPU, "number of harts")
	nproc := flag.Int("procs", kernel.NPROC, "size of the process table")
	iters := flag.Int("iters", 1000, "increments per counter process")
	quantum := flag.Duration("quantum", time.Millisecond, "timer interrupt interval")
	verbose := flag.Bool("v", false, "debug logging")
	flag.Parse()

	log := logrus.New()
	if *verbose {
		log.SetLevel(logrus.DebugLevel)
	}

	if err := run(log, *ncpu, *nproc, *iters, *quantum); err != nil {
		log.Fatal(err)
	}
}

func run(log *logrus.Logger, ncpu, nproc, iters int, quantum time.Duration) error {
	if nproc < 2 {
		return fmt.Errorf("need at least 2 process slots, have %d", nproc)
	}

	sim := riscv.NewSim(ncpu)
	k, err := kernel.New(kernel.Config{NCPU: ncpu, NPROC: nproc, Arch: sim, Log: log})
	if err != nil {
		return err
	}
	c0, err := k.CPU(0)
	if err != nil {
		return err
	}

	var count Counter
	var slcount SleepCounter
	k.InitLock(&count.lock, "count")
	k.InitSleepLock(&slcount.lock, "slcount")

	worker := func(p *kernel.Proc) {
		for i := 0; i < iters; i++ {
			k.Acquire(p, &count.lock)
			count.num++
			k.Release(p, &count.lock)

			if i%16 == 0 {
				k.AcquireSleep(p, &slcount.lock)
				slcount.num++
				k.ReleaseSleep(p, &slcount.lock)
			}
			k.Trap(p)
		}
	}

	done := make(chan struct{})
	workers := nproc - 1
	_, err = k.AllocProc(c0, nil, "init", func(p *kernel.Proc) {
		defer close(done)
		for i := 0; i < workers; i++ {
			if _, err := k.AllocProc(p, p, fmt.Sprintf("counter%d", i), worker); err != nil {
				log.WithError(err).Error("allocproc")
			}
		}
		for {
			pid, status, err := k.Wait(p)
			if errors.Is(err, kernel.ErrNoChildren) {
				return
			}
			if err != nil {
				log.WithError(err).Error("wait")
				return
			}
			log.WithFields(logrus.Fields{"pid": pid, "status": status}).Debug("reaped")
		}
	})
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()
	sim.StartTimer(ctx, quantum)

	schedCtx, cancel := context.WithCancel(ctx)
	var wg sync.WaitGroup
	for i := 0; i < k.NCPU(); i++ {
		c, err := k.CPU(i)
		if err != nil {
			cancel()
			return err
		}
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := k.Scheduler(schedCtx, c); err != nil && !errors.Is(err, context.Canceled) {
				log.WithError(err).WithField("hart", c.ID()).Error("scheduler")
			}
		}()
	}

	start := time.Now()
	select {
	case <-done:
	case <-ctx.Done():
	}
	cancel()
	wg.Wait()

	// Every scheduler has returned; hart 0 is ours again.
	k.Acquire(c0, &count.lock)
	got := count.num
	k.Release(c0, &count.lock)

	log.WithFields(logrus.Fields{
		"elapsed": time.Since(start),
		"ticks":   k.Ticks(c0),
	}).Infof("Expected Count: %d, Real Count: %d, Sleeplock Count: %d", workers*iters, got, slcount.num)
	k.ProcDump(c0, os.Stdout)

	if got != workers*iters {
		return fmt.Errorf("lost updates: %d of %d", got, workers*iters)
	}
	return nil
}
