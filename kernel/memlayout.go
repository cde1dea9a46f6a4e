package kernel

// Physical memory layout, as qemu -machine virt sets it up.
//
// 80000000 -- boot ROM jumps here in machine mode
//             -kernel loads the kernel here
// end      -- start of kernel page allocation area
// PHYSTOP  -- end RAM used by the kernel
//
// The simulator has no RAM behind these addresses; they only name pages.

const (
	KERNBASE = uintptr(0x80000000)
	PHYSTOP  = KERNBASE + 128*1024*1024
)

// end is the first address after the kernel image (text, data, bss).
const end = KERNBASE + 0x200000
