package worker

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"os/exec"
)

// ExecRequest is the JSON document an exec-invoked worker reads on stdin.
type ExecRequest struct {
	Worker    string                     `json:"worker"`
	RunID     string                     `json:"run_id"`
	Workflow  string                     `json:"workflow"`
	Phase     string                     `json:"phase"`
	Iteration int                        `json:"iteration"`
	Inputs    map[string]json.RawMessage `json:"inputs,omitempty"`
	Snapshot  map[string]json.RawMessage `json:"snapshot,omitempty"`
}

// ExecInvoker invokes a worker as an external subprocess. The request is
// written to stdin as JSON; the process prints an Outcome as JSON on
// stdout. A non-zero exit without a parseable outcome is an invocation
// error; stderr is attached to the error for diagnosis.
//
// This is the CLI materialization of the worker boundary: the capability
// implementation stays external and opaque.
type ExecInvoker struct {
	// Command is the argv to run. Command[0] is the binary.
	Command []string

	// Dir is the working directory. Empty inherits the engine's.
	Dir string

	// Env is appended to the inherited environment.
	Env []string
}

// NewExecInvoker builds an ExecInvoker for the given argv.
func NewExecInvoker(command []string) *ExecInvoker {
	return &ExecInvoker{Command: command}
}

// Invoke runs the subprocess and decodes its outcome.
func (e *ExecInvoker) Invoke(ctx context.Context, inv *Invocation) (*Outcome, error) {
	if len(e.Command) == 0 {
		return nil, fmt.Errorf("exec worker %q: empty command", inv.Worker)
	}

	req := ExecRequest{
		Worker:    inv.Worker,
		RunID:     inv.RunID.String(),
		Workflow:  inv.Workflow,
		Phase:     inv.Phase,
		Iteration: inv.Iteration,
		Inputs:    inv.Inputs,
		Snapshot:  inv.Snapshot,
	}
	input, err := json.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("exec worker %q: encode request: %w", inv.Worker, err)
	}

	cmd := exec.CommandContext(ctx, e.Command[0], e.Command[1:]...)
	cmd.Dir = e.Dir
	if len(e.Env) > 0 {
		cmd.Env = append(cmd.Environ(), e.Env...)
	}
	cmd.Stdin = bytes.NewReader(input)

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	runErr := cmd.Run()

	// A worker may report a structured failure outcome and still exit
	// non-zero; prefer the outcome when stdout parses.
	if out, decodeErr := decodeOutcome(stdout.Bytes()); decodeErr == nil {
		return out, nil
	}

	if runErr != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, fmt.Errorf("exec worker %q: %w (stderr: %s)", inv.Worker, runErr, truncate(stderr.String(), 512))
	}
	return nil, fmt.Errorf("exec worker %q: no outcome on stdout", inv.Worker)
}

func decodeOutcome(data []byte) (*Outcome, error) {
	data = bytes.TrimSpace(data)
	if len(data) == 0 {
		return nil, fmt.Errorf("empty stdout")
	}
	var out Outcome
	if err := json.Unmarshal(data, &out); err != nil {
		return nil, err
	}
	if !out.Status.Terminal() {
		return nil, fmt.Errorf("invalid outcome status %q", out.Status)
	}
	return &out, nil
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "…"
}
