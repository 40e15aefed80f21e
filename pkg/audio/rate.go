package audio

import (
	"context"
	"os/exec"
	"regexp"
	"runtime"
	"strconv"
	"time"
)

// rateRe matches the first standalone integer in probe output, e.g. the
// "44100" in arecord's "RATE: 44100" hw-params dump.
var rateRe = regexp.MustCompile(`\b(\d{4,6})\b`)

// DetectNativeRate probes the default input device for its native sample
// rate. Probing is best-effort: on any failure, or when the reported value is
// implausible (outside (0, 192000]), it degrades silently to
// [DefaultSampleRate] rather than aborting the session.
func DetectNativeRate(ctx context.Context) int {
	ctx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()

	var out []byte
	switch runtime.GOOS {
	case "linux":
		// --dump-hw-params prints the device capabilities (including "RATE:")
		// to stderr without recording anything meaningful.
		out, _ = exec.CommandContext(ctx, "arecord", "--dump-hw-params", "-d", "1", "-q", "/dev/null").CombinedOutput()
	default:
		// sox prints the default device rate in its header dump.
		out, _ = exec.CommandContext(ctx, "sox", "-d", "-n", "stat", "trim", "0", "0").CombinedOutput()
	}

	if m := rateRe.Find(out); m != nil {
		if rate, err := strconv.Atoi(string(m)); err == nil && plausibleRate(rate) {
			return rate
		}
	}
	return DefaultSampleRate
}

// plausibleRate reports whether rate is a usable device sample rate.
func plausibleRate(rate int) bool {
	return rate > 0 && rate <= maxPlausibleRate
}
