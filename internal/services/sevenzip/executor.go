package sevenzip

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"os/exec"
)

// LineHandler receives each line of engine output as it is printed.
type LineHandler func(line string)

// CommandExecutor allows mocking exec.Command in tests.
type CommandExecutor interface {
	ExecuteStreaming(ctx context.Context, onLine LineHandler, name string, args ...string) error
}

// DefaultExecutor is the default command executor using os/exec.
type DefaultExecutor struct{}

// ExecuteStreaming runs a command and feeds its combined stdout and stderr to
// onLine while the process runs.
func (e *DefaultExecutor) ExecuteStreaming(ctx context.Context, onLine LineHandler, name string, args ...string) error {
	cmd := exec.CommandContext(ctx, name, args...)
	pr, pw := io.Pipe()
	cmd.Stdout = pw
	cmd.Stderr = pw

	if err := cmd.Start(); err != nil {
		return fmt.Errorf("failed to start %s: %w", name, err)
	}

	waitErr := make(chan error, 1)
	go func() {
		err := cmd.Wait()
		_ = pw.Close()
		waitErr <- err
	}()

	scanner := bufio.NewScanner(pr)
	scanner.Buffer(make([]byte, 64*1024), 1024*1024)
	scanner.Split(scanOutput)
	for scanner.Scan() {
		onLine(scanner.Text())
	}
	scanErr := scanner.Err()
	if scanErr != nil {
		// keep draining so the process is not blocked on a full pipe
		_, _ = io.Copy(io.Discard, pr)
	}

	if err := <-waitErr; err != nil {
		return err
	}
	if scanErr != nil {
		return fmt.Errorf("failed to read %s output: %w", name, scanErr)
	}
	return nil
}
