package metrics

import (
	"fmt"

	"github.com/prometheus/procfs"
)

// ResidentMemory returns this process's resident set size in bytes.
func ResidentMemory() (int, error) {
	p, err := procfs.Self()
	if err != nil {
		return 0, fmt.Errorf("open /proc/self: %w", err)
	}
	stat, err := p.Stat()
	if err != nil {
		return 0, fmt.Errorf("read process stat: %w", err)
	}
	return stat.ResidentMemory(), nil
}
