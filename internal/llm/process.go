package llm

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"os/exec"
	"strings"
	"time"

	"github.com/lance13c/qarun/internal/logging"
)

// processClient runs a bridge command per prompt. The prompt is written to
// the command's stdin and its stdout is the response.
type processClient struct {
	command string
	args    []string
	timeout time.Duration
}

func newProcessClient(options map[string]interface{}) (Client, error) {
	command := stringOption(options, "command", "")
	if command == "" {
		return nil, fmt.Errorf("process provider requires a command")
	}
	args, _ := options["args"].([]string)
	return &processClient{
		command: command,
		args:    args,
		timeout: durationOption(options, "timeout", 2*time.Minute),
	}, nil
}

// Complete implements the Client interface
func (c *processClient) Complete(ctx context.Context, prompt string) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	cmd := exec.CommandContext(ctx, c.command, c.args...)
	cmd.Stdin = strings.NewReader(prompt)
	cmd.Env = os.Environ()

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	start := time.Now()
	err := cmd.Run()
	if s := strings.TrimSpace(stderr.String()); s != "" {
		logging.Debug("reasoning process stderr: %s", s)
	}
	if err != nil {
		if ctx.Err() != nil {
			return "", fmt.Errorf("%w: %s: %v", ErrProcessFailed, c.command, ctx.Err())
		}
		return "", fmt.Errorf("%w: %s: %v: %s", ErrProcessFailed, c.command, err, strings.TrimSpace(stderr.String()))
	}

	output := strings.TrimSpace(stdout.String())
	logging.Debug("reasoning process finished in %s (%d bytes)", time.Since(start).Round(time.Millisecond), len(output))
	return output, nil
}
