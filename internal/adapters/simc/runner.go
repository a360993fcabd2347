// Package simc runs the external SimulationCraft binary.
package simc

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"strconv"
	"strings"
	"time"
	"unicode"

	"github.com/okian/simbot/internal/domain/model"
	"github.com/okian/simbot/pkg/logger"
	"github.com/okian/simbot/pkg/metrics"
)

const dpsMarker = "DPS Ranking:"

// Runner executes one simulation per call. Safe for concurrent use; every call owns its process.
type Runner struct {
	path      string
	stderr    bool
	waitDelay time.Duration
	log       logger.Logger
}

// Option configures a Runner.
type Option func(*Runner)

// WithStderr captures the simulator's stderr. Any output there fails the run.
func WithStderr(capture bool) Option {
	return func(r *Runner) {
		r.stderr = capture
	}
}

// WithWaitDelay bounds how long output is drained after the process is killed.
func WithWaitDelay(d time.Duration) Option {
	return func(r *Runner) {
		if d > 0 {
			r.waitDelay = d
		}
	}
}

// WithLogger sets a logger.
func WithLogger(l logger.Logger) Option {
	return func(r *Runner) {
		if l != nil {
			r.log = l
		}
	}
}

// New returns a Runner for the executable at path. It fails with
// ErrConfiguration unless path is an existing regular file with an execute bit.
func New(path string, opts ...Option) (*Runner, error) {
	info, err := os.Stat(path)
	if err != nil {
		return nil, fmt.Errorf("%w: unable to find simulator executable at %s: %w", ErrConfiguration, path, err)
	}
	if !info.Mode().IsRegular() {
		return nil, fmt.Errorf("%w: %s is not a regular file", ErrConfiguration, path)
	}
	if info.Mode().Perm()&0o111 == 0 {
		return nil, fmt.Errorf("%w: %s is not executable", ErrConfiguration, path)
	}

	r := &Runner{
		path:      path,
		waitDelay: 2 * time.Second,
		log:       logger.GetOrNop(),
	}
	for _, opt := range opts {
		opt(r)
	}
	r.log.Info(context.Background(), "found simulator executable", logger.String("path", path))
	return r, nil
}

// Run simulates req and returns the simulated DPS. The process is killed when
// timeout elapses or ctx ends.
func (r *Runner) Run(ctx context.Context, req model.SimulationRequest, timeout time.Duration) (float64, error) {
	runCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	var stdout, stderr bytes.Buffer
	cmd := exec.CommandContext(runCtx, r.path, req.Args()...)
	cmd.Stdout = &stdout
	if r.stderr {
		cmd.Stderr = &stderr
	}
	cmd.WaitDelay = r.waitDelay

	r.log.Debug(ctx, "simming", logger.String("sim", req.String()))
	start := time.Now()
	err := cmd.Run()
	elapsed := time.Since(start)

	switch {
	case ctx.Err() != nil:
		metrics.RecordSimulation("cancelled", elapsed.Seconds())
		return 0, fmt.Errorf("simc: %w", ctx.Err())
	case errors.Is(runCtx.Err(), context.DeadlineExceeded):
		metrics.RecordSimulation("timeout", elapsed.Seconds())
		r.log.Error(ctx, "sim timed out, skipping", logger.String("sim", req.String()), logger.Duration("timeout", timeout))
		return 0, &TimeoutError{Request: req, Timeout: timeout}
	case err != nil:
		metrics.RecordSimulation("process_error", elapsed.Seconds())
		perr := &ProcessError{Request: req, ExitCode: -1, Stderr: strings.TrimSpace(stderr.String()), Err: err}
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) {
			perr.ExitCode = exitErr.ExitCode()
		}
		r.log.Error(ctx, "simulator failed", logger.Int("exit_code", perr.ExitCode), logger.Error(err))
		return 0, perr
	case stderr.Len() > 0:
		metrics.RecordSimulation("process_error", elapsed.Seconds())
		r.log.Error(ctx, "simulator wrote to stderr", logger.String("stderr", stderr.String()))
		return 0, &ProcessError{Request: req, Stderr: strings.TrimSpace(stderr.String())}
	}

	token, err := FindDPS(stdout.String())
	if err != nil {
		metrics.RecordSimulation("parse_error", elapsed.Seconds())
		return 0, err
	}
	dps, err := strconv.ParseFloat(token, 64)
	if err != nil {
		metrics.RecordSimulation("parse_error", elapsed.Seconds())
		return 0, fmt.Errorf("%w: %q: %w", ErrParse, token, err)
	}

	metrics.RecordSimulation("ok", elapsed.Seconds())
	r.log.Debug(ctx, "sim finished",
		logger.String("player", req.Character),
		logger.Float64("dps", dps),
		logger.Duration("elapsed", elapsed),
	)
	return dps, nil
}

// FindDPS returns the first token after the "DPS Ranking:" marker. The figure
// is right-aligned, so six-digit values are preceded by whitespace and
// seven-digit values are not; leading whitespace, including line breaks, is skipped.
func FindDPS(output string) (string, error) {
	idx := strings.Index(output, dpsMarker)
	if idx < 0 {
		return "", ErrParse
	}
	rest := strings.TrimLeftFunc(output[idx+len(dpsMarker):], unicode.IsSpace)
	end := strings.IndexFunc(rest, unicode.IsSpace)
	if end < 0 {
		end = len(rest)
	}
	token := rest[:end]
	if token == "" || !isNumber(token) {
		return "", ErrParse
	}
	return token, nil
}

func isNumber(s string) bool {
	_, err := strconv.ParseFloat(s, 64)
	return err == nil
}
