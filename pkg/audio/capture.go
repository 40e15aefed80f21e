package audio

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os/exec"
	"runtime"
	"sync"
)

// Capture is a live microphone stream backed by an OS-level capture
// subprocess. Read returns raw 16-bit mono little-endian PCM at the rate
// reported by Rate. Close terminates the subprocess; it is safe to call more
// than once.
type Capture struct {
	cmd    *exec.Cmd
	stdout io.ReadCloser
	rate   int

	closeOnce sync.Once
	closeErr  error
}

// CaptureConfig configures a capture stream.
type CaptureConfig struct {
	// SampleRate is the rate requested from the device. Zero means
	// [DefaultSampleRate].
	SampleRate int

	// Binary overrides the platform-default capture executable. Used by tests
	// to substitute a script that emits canned PCM.
	Binary string

	// Args overrides the platform-default argument list. Only honoured when
	// Binary is set.
	Args []string
}

// StartCapture launches the capture subprocess and returns a live stream.
// Returns [ErrDeviceUnavailable] (wrapped with detail) when the capture binary
// is not installed or cannot be started — callers must surface this as "mic
// unavailable", never as "no speech". The subprocess is killed when ctx is
// cancelled.
func StartCapture(ctx context.Context, cfg CaptureConfig) (*Capture, error) {
	rate := cfg.SampleRate
	if rate <= 0 {
		rate = DefaultSampleRate
	}

	binary, args := cfg.Binary, cfg.Args
	if binary == "" {
		binary, args = captureCommand(runtime.GOOS, rate)
	}

	if _, err := exec.LookPath(binary); err != nil {
		return nil, fmt.Errorf("%w: %q not found in PATH (install it to enable voice input)", ErrDeviceUnavailable, binary)
	}

	cmd := exec.CommandContext(ctx, binary, args...)
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return nil, fmt.Errorf("audio: stdout pipe: %w", err)
	}
	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("%w: starting %q: %v", ErrDeviceUnavailable, binary, err)
	}

	slog.Debug("capture subprocess started", "binary", binary, "rate", rate, "pid", cmd.Process.Pid)

	return &Capture{cmd: cmd, stdout: stdout, rate: rate}, nil
}

// Read reads raw PCM bytes from the capture subprocess. It blocks until data
// is available, the subprocess exits, or the capture is closed.
func (c *Capture) Read(p []byte) (int, error) {
	return c.stdout.Read(p)
}

// Rate returns the sample rate of the PCM delivered by Read, in Hz.
func (c *Capture) Rate() int {
	return c.rate
}

// Close terminates the capture subprocess and releases the pipe. The process
// is killed rather than signalled: raw stdout capture has no trailer to flush.
func (c *Capture) Close() error {
	c.closeOnce.Do(func() {
		if c.cmd.Process != nil {
			_ = c.cmd.Process.Kill()
		}
		_ = c.stdout.Close()
		c.closeErr = nil
		if err := c.cmd.Wait(); err != nil {
			// Killed processes report an exit error; that is the normal path.
			slog.Debug("capture subprocess exited", "err", err)
		}
	})
	return c.closeErr
}

// captureCommand returns the platform-default capture executable and argument
// list for raw S16LE mono output on stdout at the given rate.
func captureCommand(goos string, rate int) (string, []string) {
	switch goos {
	case "linux":
		return "arecord", []string{
			"-q",
			"-f", "S16_LE",
			"-c", "1",
			"-r", fmt.Sprint(rate),
			"-t", "raw",
			"-",
		}
	default:
		// sox ships on macOS via Homebrew and reads the default input device
		// with -d. Also the fallback for unrecognised platforms.
		return "sox", []string{
			"-q",
			"-d",
			"-t", "raw",
			"-b", "16",
			"-e", "signed-integer",
			"-c", "1",
			"-r", fmt.Sprint(rate),
			"-",
		}
	}
}
