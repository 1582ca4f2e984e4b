// Package ffmpegutil resolves the ffmpeg/ffprobe binaries once at process
// start and runs them as subprocesses with explicit timeouts and
// UTF-8-decoded stderr, matching SPEC_FULL.md §6's external-process
// contract.
package ffmpegutil

import (
	"bytes"
	"context"
	"fmt"
	"os/exec"
	"time"

	"github.com/clipforge/shorts-worker/internal/werror"
)

// Toolchain holds the resolved ffmpeg/ffprobe paths, constructed once and
// passed by reference into every stage that shells out to them.
type Toolchain struct {
	FFmpegPath  string
	FFprobePath string
}

// NewToolchain resolves both binaries via exec.LookPath, failing fast if
// either is missing.
func NewToolchain() (*Toolchain, error) {
	ffmpegPath, err := exec.LookPath("ffmpeg")
	if err != nil {
		return nil, fmt.Errorf("ffmpegutil: ffmpeg not found in PATH: %w", err)
	}
	ffprobePath, err := exec.LookPath("ffprobe")
	if err != nil {
		return nil, fmt.Errorf("ffmpegutil: ffprobe not found in PATH: %w", err)
	}
	return &Toolchain{FFmpegPath: ffmpegPath, FFprobePath: ffprobePath}, nil
}

// RunFFmpeg runs ffmpeg with args under timeout, returning stdout. stderr is
// captured and attached to the error on failure or timeout.
func (t *Toolchain) RunFFmpeg(ctx context.Context, timeout time.Duration, args ...string) ([]byte, error) {
	return t.run(ctx, timeout, t.FFmpegPath, args...)
}

// RunFFprobe runs ffprobe with args under timeout, returning stdout.
func (t *Toolchain) RunFFprobe(ctx context.Context, timeout time.Duration, args ...string) ([]byte, error) {
	return t.run(ctx, timeout, t.FFprobePath, args...)
}

func (t *Toolchain) run(ctx context.Context, timeout time.Duration, bin string, args ...string) ([]byte, error) {
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	cmd := exec.CommandContext(ctx, bin, args...)
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	err := cmd.Run()
	if ctx.Err() == context.DeadlineExceeded {
		return nil, werror.Wrap(werror.Timeout, "subprocess", ctx.Err(),
			fmt.Sprintf("%s timed out after %s", bin, timeout))
	}
	if err != nil {
		return nil, fmt.Errorf("%s failed: %w: %s", bin, err, stderr.String())
	}
	return stdout.Bytes(), nil
}
