//go:build !(linux && amd64)

package host

import "github.com/ehrlich-b/go-ata/internal/portio"

// Open is unavailable off linux/amd64
func Open(ranges []Range) (portio.Port, error) {
	return nil, ErrUnsupported
}
