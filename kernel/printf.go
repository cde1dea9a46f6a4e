package kernel

import (
	"fmt"

	"github.com/sirupsen/logrus"
)

// kpanic halts hart c: it logs the broken invariant and panics with a *Panic
// wrapping err. Extra detail, if any, is appended to err's message.
func (k *Kernel) kpanic(c *Cpu, err error, fields logrus.Fields, format string, args ...any) {
	if format != "" {
		err = fmt.Errorf("%w: %s", err, fmt.Sprintf(format, args...))
	}
	k.log.WithFields(fields).WithField("hart", c.id).Error(err)
	panic(&Panic{Hart: c.id, Err: err})
}

// hart returns the logger for code running on c.
func (k *Kernel) hart(c *Cpu) *logrus.Entry {
	return k.log.WithField("hart", c.id)
}
