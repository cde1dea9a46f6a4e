package kernel

import (
	"fmt"

	"github.com/sirupsen/logrus"

	"xv6-sched/kernel/riscv"
)

const (
	NCPU  = 3 // default number of harts
	NPROC = 8 // default size of the process table
)

// Config describes the machine a Kernel runs on. The zero value is a
// three-hart simulated machine with an eight-slot process table.
type Config struct {
	NCPU  int
	NPROC int

	// Arch is the register layer. It defaults to riscv.NewSim(NCPU).
	Arch riscv.Arch
	// Log defaults to logrus.StandardLogger().
	Log *logrus.Logger
}

func (cfg *Config) setDefaults() {
	if cfg.NCPU == 0 {
		cfg.NCPU = NCPU
	}
	if cfg.NPROC == 0 {
		cfg.NPROC = NPROC
	}
	if cfg.Arch == nil && cfg.NCPU > 0 {
		cfg.Arch = riscv.NewSim(cfg.NCPU)
	}
	if cfg.Log == nil {
		cfg.Log = logrus.StandardLogger()
	}
}

func (cfg *Config) validate() error {
	if cfg.NCPU < 1 {
		return fmt.Errorf("%w: ncpu %d", ErrBadConfig, cfg.NCPU)
	}
	if cfg.NPROC < 1 {
		return fmt.Errorf("%w: nproc %d", ErrBadConfig, cfg.NPROC)
	}
	if pages := int((PHYSTOP - end) / riscv.PGSIZE); cfg.NPROC > pages {
		return fmt.Errorf("%w: nproc %d exceeds %d kernel stack pages", ErrBadConfig, cfg.NPROC, pages)
	}
	return nil
}
