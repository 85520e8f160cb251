package workerpool

import (
	"context"
	"fmt"
)

// Noop is a WorkerPool that always fails RunCommand, useful for exercising
// the WorkerError path (spec §7) without a real worker backend.
type Noop struct{}

func (Noop) Start(ctx context.Context, instanceID string) error { return nil }

func (Noop) Status(ctx context.Context, instanceID string) (bool, error) { return false, nil }

func (Noop) RunCommand(ctx context.Context, instanceID string, commands []Command) (string, error) {
	return "", fmt.Errorf("workerpool: noop backend cannot run commands (instance %q)", instanceID)
}

func (Noop) FetchOutput(ctx context.Context, commandID, instanceID string) (string, error) {
	return "", fmt.Errorf("workerpool: noop backend has no output for %q", commandID)
}

func (Noop) Stop(ctx context.Context, instanceID string) error { return nil }
