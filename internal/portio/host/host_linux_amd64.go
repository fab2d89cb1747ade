package host

import (
	"fmt"
	"runtime"

	"golang.org/x/sys/unix"

	"github.com/ehrlich-b/go-ata/internal/portio"
)

// Open grants the process access to ranges with ioperm(2) and returns a Port
// backed by real IN/OUT instructions. ioperm permissions are per thread, so
// the calling goroutine is locked to its OS thread and must do all port I/O.
// Requires CAP_SYS_RAWIO.
func Open(ranges []Range) (portio.Port, error) {
	runtime.LockOSThread()
	for _, r := range ranges {
		if err := unix.Ioperm(int(r.From), int(r.Count), 1); err != nil {
			runtime.UnlockOSThread()
			return nil, fmt.Errorf("host: ioperm 0x%x+%d: %w", r.From, r.Count, err)
		}
	}
	return Ports{}, nil
}
