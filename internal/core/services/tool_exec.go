package services

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"strings"
	"time"

	"github.com/getkin/kin-openapi/openapi3"
	"golang.org/x/sync/semaphore"

	"github.com/abhishekraut01/Gen-AI/internal/core/domain"
	"github.com/abhishekraut01/Gen-AI/internal/core/ports"
)

// dangerousCommands is a blocklist of commands that could damage the host system.
var dangerousCommands = []string{
	"rm -rf /",
	"rm -rf /*",
	"mkfs",
	"dd if=",
	"shutdown",
	"reboot",
	"halt",
	"poweroff",
	"init 0",
	"init 6",
	":(){ :|:& };:", // fork bomb
	"format c:",
	"> /dev/sd",
	"mv / ",
	"chmod -R 777 /",
	"chown -R ",
}

// isDangerousCommand checks cmd against the built-in blocklist plus extra patterns.
func isDangerousCommand(cmd string, extra ...string) bool {
	lower := strings.ToLower(strings.TrimSpace(cmd))
	for _, list := range [][]string{dangerousCommands, extra} {
		for _, dangerous := range list {
			if dangerous != "" && strings.Contains(lower, strings.ToLower(dangerous)) {
				return true
			}
		}
	}
	return false
}

// ExecConfig configures the executeCommand tool.
type ExecConfig struct {
	DeniedPatterns []string
	Timeout        time.Duration
	MaxOutputBytes int
	// MaxConcurrent caps commands running at once across all conversations.
	MaxConcurrent int64
	ExecutionType domain.ExecType
}

// DefaultExecConfig returns the limits used when nothing is configured.
func DefaultExecConfig() ExecConfig {
	return ExecConfig{
		Timeout:        30 * time.Second,
		MaxOutputBytes: 8192,
		MaxConcurrent:  4,
		ExecutionType:  domain.ExecNative,
	}
}

// NewExecTool creates executeCommand. It has real side effects and is not
// safe to retry.
func NewExecTool(runner ports.CommandRunner, cfg ExecConfig) *domain.Tool {
	def := DefaultExecConfig()
	if cfg.Timeout <= 0 {
		cfg.Timeout = def.Timeout
	}
	if cfg.MaxOutputBytes <= 0 {
		cfg.MaxOutputBytes = def.MaxOutputBytes
	}
	if cfg.MaxConcurrent <= 0 {
		cfg.MaxConcurrent = def.MaxConcurrent
	}
	if cfg.ExecutionType == "" {
		cfg.ExecutionType = def.ExecutionType
	}
	sem := semaphore.NewWeighted(cfg.MaxConcurrent)

	schema := openapi3.NewStringSchema().WithMinLength(1)
	schema.Description = "A shell command line, e.g. `ls -la` or `mkdir todo-app`."

	return &domain.Tool{
		Name:          "executeCommand",
		Description:   "Executes a shell command and returns its output. Use it to create folders and files or to inspect the environment.",
		InputSchema:   schema,
		ExecutionType: cfg.ExecutionType,
		RetrySafe:     false,
		Execute: func(ctx context.Context, input any) (string, error) {
			command, _ := input.(string)
			if strings.TrimSpace(command) == "" {
				return "", errors.New("command is required and must be a non-empty string")
			}
			if isDangerousCommand(command, cfg.DeniedPatterns...) {
				return "", errors.New("command blocked: matches dangerous command blocklist")
			}

			if err := sem.Acquire(ctx, 1); err != nil {
				return "", fmt.Errorf("waiting for an exec slot: %w", err)
			}
			defer sem.Release(1)

			execCtx, cancel := context.WithTimeout(ctx, cfg.Timeout)
			defer cancel()

			out, err := runner.Run(execCtx, command)
			if err != nil {
				if errors.Is(execCtx.Err(), context.DeadlineExceeded) {
					return "", fmt.Errorf("command timed out after %s", cfg.Timeout)
				}
				return "", fmt.Errorf("command failed: %w", err)
			}

			result := formatCommandOutput(out, cfg.MaxOutputBytes)
			if out.ExitCode != 0 {
				if result == "" {
					return "", fmt.Errorf("command failed (exit %d)", out.ExitCode)
				}
				return "", fmt.Errorf("command failed (exit %d):\n%s", out.ExitCode, result)
			}
			if result == "" {
				return "(command completed with no output)", nil
			}
			return result, nil
		},
	}
}

func formatCommandOutput(out ports.CommandOutput, limit int) string {
	var b strings.Builder
	if out.Stdout != "" {
		b.WriteString(truncate(out.Stdout, limit, "output"))
	}
	if out.Stderr != "" {
		if b.Len() > 0 {
			b.WriteString("\n")
		}
		b.WriteString("STDERR: ")
		b.WriteString(truncate(out.Stderr, limit/2, "stderr"))
	}
	return b.String()
}

func truncate(s string, limit int, what string) string {
	if limit <= 0 || len(s) <= limit {
		return s
	}
	return s[:limit] + fmt.Sprintf("\n... (%s truncated at %d bytes)", what, limit)
}

// LocalRunner runs commands on the host with /bin/sh -c and a scrubbed environment.
type LocalRunner struct {
	WorkDir string
}

// NewLocalRunner creates a runner rooted at workDir (home directory when empty).
func NewLocalRunner(workDir string) *LocalRunner {
	if workDir == "" {
		workDir, _ = os.UserHomeDir()
		if workDir == "" {
			workDir = os.TempDir()
		}
	}
	return &LocalRunner{WorkDir: workDir}
}

func (r *LocalRunner) Run(ctx context.Context, command string) (ports.CommandOutput, error) {
	cmd := exec.CommandContext(ctx, "/bin/sh", "-c", command)
	cmd.Dir = r.WorkDir
	// Children that inherit the pipes must not hold Wait open past the deadline.
	cmd.WaitDelay = time.Second
	cmd.Env = []string{
		"HOME=" + r.WorkDir,
		"PWD=" + r.WorkDir,
		"PATH=/usr/local/sbin:/usr/local/bin:/usr/sbin:/usr/bin:/sbin:/bin",
		"LANG=en_US.UTF-8",
		"TERM=xterm",
	}

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	err := cmd.Run()
	out := ports.CommandOutput{Stdout: stdout.String(), Stderr: stderr.String()}

	var exitErr *exec.ExitError
	switch {
	case err == nil:
	case ctx.Err() != nil:
		return out, ctx.Err()
	case errors.As(err, &exitErr):
		out.ExitCode = exitErr.ExitCode()
	default:
		return out, err
	}
	return out, nil
}
