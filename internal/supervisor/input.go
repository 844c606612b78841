package supervisor

import (
	"encoding/json"
	"fmt"
	"io"
)

// Input is what a worker process reads from stdin.
type Input struct {
	Partition   Partition `json:"partition"`
	CounterPath string    `json:"counter_path,omitempty"` // mmap counter file, empty for redis
}

// ReadInput decodes and checks a worker's Input.
func ReadInput(r io.Reader) (Input, error) {
	var in Input
	if err := json.NewDecoder(r).Decode(&in); err != nil {
		return Input{}, fmt.Errorf("decode worker input: %w", err)
	}
	if len(in.Partition.Proxies) == 0 {
		return Input{}, fmt.Errorf("worker %d: %w", in.Partition.Index, ErrNoProxies)
	}
	return in, nil
}
