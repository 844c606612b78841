package supervisor

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"strconv"

	"golang.org/x/sys/unix"
)

// Launcher starts worker processes.
type Launcher interface {
	Launch(ctx context.Context, in Input) (Worker, error)
}

// Worker is a running worker process.
type Worker interface {
	// Done is closed when the worker has exited.
	Done() <-chan struct{}
	// Err is the exit error, valid after Done is closed.
	Err() error
	// Terminate asks the worker to shut down gracefully.
	Terminate() error
	// Kill stops the worker immediately.
	Kill() error
}

// ExecLauncher re-executes a binary as `<Path> [Args...] worker -config <ConfigPath> -index <i>`.
type ExecLauncher struct {
	Path       string   // Executable; os.Executable() when empty
	Args       []string // Inserted before the worker subcommand
	ConfigPath string
	Env        []string // Added to the parent environment
	Stdout     io.Writer
	Stderr     io.Writer
}

// Launch starts one worker and writes its Input to the worker's stdin.
func (l *ExecLauncher) Launch(ctx context.Context, in Input) (Worker, error) {
	path := l.Path
	if path == "" {
		exe, err := os.Executable()
		if err != nil {
			return nil, fmt.Errorf("resolve executable: %w", err)
		}
		path = exe
	}

	payload, err := json.Marshal(in)
	if err != nil {
		return nil, fmt.Errorf("encode worker input: %w", err)
	}

	args := append(append([]string(nil), l.Args...),
		"worker", "-config", l.ConfigPath, "-index", strconv.Itoa(in.Partition.Index))
	cmd := exec.Command(path, args...)
	cmd.Stdin = bytes.NewReader(payload)
	cmd.Stdout = orDefault(l.Stdout, os.Stdout)
	cmd.Stderr = orDefault(l.Stderr, os.Stderr)
	if len(l.Env) > 0 {
		cmd.Env = append(os.Environ(), l.Env...)
	}

	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("start worker %d: %w", in.Partition.Index, err)
	}

	w := &execWorker{cmd: cmd, done: make(chan struct{})}
	go func() {
		w.err = cmd.Wait()
		close(w.done)
	}()
	return w, nil
}

func orDefault(w, def io.Writer) io.Writer {
	if w == nil {
		return def
	}
	return w
}

type execWorker struct {
	cmd  *exec.Cmd
	done chan struct{}
	err  error
}

func (w *execWorker) Done() <-chan struct{} { return w.done }
func (w *execWorker) Err() error            { return w.err }

func (w *execWorker) Terminate() error {
	return w.signal(unix.SIGTERM)
}

func (w *execWorker) Kill() error {
	return w.signal(unix.SIGKILL)
}

func (w *execWorker) signal(sig os.Signal) error {
	select {
	case <-w.done:
		return nil
	default:
	}
	if err := w.cmd.Process.Signal(sig); err != nil && !errors.Is(err, os.ErrProcessDone) {
		return err
	}
	return nil
}
