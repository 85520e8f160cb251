// Package workerpool implements the isolated compute worker controller
// (spec §2, §6): start/probe/run-command/fetch-output/stop by instance id.
// The real backend is a provisioned VM per circuit (out of scope here,
// Non-goal); this package provides the interface boundary plus a local
// (os/exec) backend for tests and single-box deployments.
package workerpool

import "context"

// Command is one step of the ordered script the Verifier runs against a
// worker (spec §4.2 step 4): download candidate zkey, run the verification
// tool, upload the transcript, clean up local files.
type Command struct {
	Name string
	Argv []string
}

// WorkerPool is the compute-worker collaborator.
type WorkerPool interface {
	// Start brings the named worker up. Idempotent: starting an
	// already-running worker is not an error.
	Start(ctx context.Context, instanceID string) error

	// Status reports whether the named worker is currently running.
	Status(ctx context.Context, instanceID string) (running bool, err error)

	// RunCommand executes commands in order against the worker and returns
	// an opaque command id used to retrieve output later.
	RunCommand(ctx context.Context, instanceID string, commands []Command) (commandID string, err error)

	// FetchOutput retrieves the combined stdout+stderr of a prior RunCommand.
	FetchOutput(ctx context.Context, commandID, instanceID string) (string, error)

	// Stop tears the named worker down. Must be safe to call unconditionally,
	// including against a worker that failed to start or never ran a command
	// (spec §7: "Worker stop is best-effort and must be attempted on every
	// exit path").
	Stop(ctx context.Context, instanceID string) error
}
