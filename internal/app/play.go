package app

import (
	"bytes"
	"context"
	"fmt"
	"log/slog"
	"os/exec"
	"runtime"

	"github.com/voicewire/voicewire/pkg/provider/tts"
)

// PlayFunc plays synthesised audio to the default output device. Injectable
// for tests; the default implementation shells out to a platform player.
type PlayFunc func(ctx context.Context, a tts.Audio) error

// playAudio pipes the encoded audio into a platform player on stdin. The
// subprocess is killed when ctx is cancelled, which is how stop interrupts
// playback mid-utterance.
func playAudio(ctx context.Context, a tts.Audio) error {
	binary, args := playCommand(runtime.GOOS, a.Format)
	if _, err := exec.LookPath(binary); err != nil {
		return fmt.Errorf("app: player %q not found in PATH (install it to enable voice output)", binary)
	}

	cmd := exec.CommandContext(ctx, binary, args...)
	cmd.Stdin = bytes.NewReader(a.Data)

	slog.Debug("playback subprocess starting", "binary", binary, "bytes", len(a.Data), "format", a.Format)

	if err := cmd.Run(); err != nil {
		if ctx.Err() != nil {
			// Killed by cancellation; the interruption is intentional.
			return ctx.Err()
		}
		return fmt.Errorf("app: player %q: %w", binary, err)
	}
	return nil
}

// playCommand returns the platform-default player executable and argument
// list for encoded audio on stdin.
func playCommand(goos string, format tts.Format) (string, []string) {
	switch goos {
	case "linux":
		if format == tts.FormatMP3 {
			return "mpg123", []string{"-q", "-"}
		}
		return "aplay", []string{"-q", "-"}
	default:
		// ffplay handles both formats and ships with ffmpeg, which Homebrew
		// users on macOS commonly have. Also the fallback for unrecognised
		// platforms.
		return "ffplay", []string{"-nodisp", "-autoexit", "-loglevel", "quiet", "-i", "-"}
	}
}
