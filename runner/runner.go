// Copyright 2026 The Atelier Authors
// SPDX-License-Identifier: Apache-2.0

// Package runner executes workspace code on the hub and returns the
// combined result. Execution is best-effort developer tooling, not a
// sandbox: deployments that cannot trust their participants disable
// the endpoint in configuration.
package runner

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"time"

	"github.com/atelier-dev/atelier/protocol"
)

// DefaultTimeout bounds one execution end to end, compile steps
// included.
const DefaultTimeout = 10 * time.Second

// DetectLanguage maps a filename to the language its code runs as.
// Unknown extensions fall back to javascript, matching the editor's
// default document type.
func DetectLanguage(filename string) string {
	switch strings.ToLower(filepath.Ext(filename)) {
	case ".py":
		return "python"
	case ".java":
		return "java"
	case ".c":
		return "c"
	case ".cpp", ".cc", ".cxx":
		return "cpp"
	case ".js", ".ts":
		return "javascript"
	default:
		return "javascript"
	}
}

// step is one command in an execution plan, run in the plan's
// scratch directory.
type step struct {
	name string
	args []string
}

// plan is how one language executes: the filename the code is written
// to and the commands run against it. The final step's stdout is the
// program's output; any earlier step is a compile whose failure aborts
// the run.
type plan struct {
	source string
	steps  []step
}

// buildPlan returns the execution plan for language, with commands
// anchored in directory.
func buildPlan(language, directory string) (plan, error) {
	switch language {
	case "python":
		return plan{
			source: "main.py",
			steps:  []step{{"python3", []string{filepath.Join(directory, "main.py")}}},
		}, nil
	case "javascript":
		return plan{
			source: "main.js",
			steps:  []step{{"node", []string{filepath.Join(directory, "main.js")}}},
		}, nil
	case "c":
		binary := filepath.Join(directory, "program")
		return plan{
			source: "main.c",
			steps: []step{
				{"gcc", []string{filepath.Join(directory, "main.c"), "-o", binary}},
				{binary, nil},
			},
		}, nil
	case "cpp":
		binary := filepath.Join(directory, "program")
		return plan{
			source: "main.cpp",
			steps: []step{
				{"g++", []string{filepath.Join(directory, "main.cpp"), "-o", binary}},
				{binary, nil},
			},
		}, nil
	case "java":
		// The class must be named Main; the source filename follows.
		return plan{
			source: "Main.java",
			steps: []step{
				{"javac", []string{filepath.Join(directory, "Main.java")}},
				{"java", []string{"-cp", directory, "Main"}},
			},
		}, nil
	default:
		return plan{}, fmt.Errorf("unsupported language %q", language)
	}
}

// Runner executes code snippets.
type Runner struct {
	timeout time.Duration
	logger  *slog.Logger
}

// New constructs a Runner. A non-positive timeout falls back to
// DefaultTimeout.
func New(timeout time.Duration, logger *slog.Logger) *Runner {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	return &Runner{timeout: timeout, logger: logger}
}

// Run writes code to a scratch directory and executes it as language.
// The response carries the program's stdout and, separately, whatever
// went wrong: compile errors, stderr output, or a timeout notice.
// Run itself errors only on environmental failures (scratch directory
// creation); a failing program is a normal response.
func (r *Runner) Run(ctx context.Context, code, language string) (protocol.ExecuteResponse, error) {
	if language == "" {
		language = "javascript"
	}

	directory, err := os.MkdirTemp("", "atelier-run-*")
	if err != nil {
		return protocol.ExecuteResponse{}, fmt.Errorf("create scratch directory: %w", err)
	}
	defer os.RemoveAll(directory)

	executionPlan, err := buildPlan(language, directory)
	if err != nil {
		return protocol.ExecuteResponse{Error: err.Error()}, nil
	}
	if err := os.WriteFile(filepath.Join(directory, executionPlan.source), []byte(code), 0o600); err != nil {
		return protocol.ExecuteResponse{}, fmt.Errorf("write source: %w", err)
	}

	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	started := time.Now()
	response := r.execute(ctx, executionPlan, directory)
	r.logger.Info("executed code",
		"language", language,
		"duration", time.Since(started).Round(time.Millisecond),
		"failed", response.Error != "",
	)
	return response, nil
}

// execute runs the plan's steps in order.
func (r *Runner) execute(ctx context.Context, executionPlan plan, directory string) protocol.ExecuteResponse {
	last := len(executionPlan.steps) - 1
	for i, s := range executionPlan.steps {
		command := exec.CommandContext(ctx, s.name, s.args...)
		command.Dir = directory
		var stdout, stderr bytes.Buffer
		command.Stdout = &stdout
		command.Stderr = &stderr

		err := command.Run()
		if errors.Is(ctx.Err(), context.DeadlineExceeded) {
			return protocol.ExecuteResponse{
				Output: stdout.String(),
				Error:  fmt.Sprintf("execution timed out after %s", r.timeout),
			}
		}
		if err != nil {
			detail := strings.TrimSpace(stderr.String())
			if detail == "" {
				detail = err.Error()
			}
			return protocol.ExecuteResponse{
				Output: stdout.String(),
				Error:  detail,
			}
		}
		if i == last {
			return protocol.ExecuteResponse{
				Output: stdout.String(),
				Error:  strings.TrimSpace(stderr.String()),
			}
		}
	}
	// An empty plan cannot be built; buildPlan always returns steps.
	return protocol.ExecuteResponse{}
}
