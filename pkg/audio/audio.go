// Package audio provides microphone capture and PCM utilities for the
// voicewire recording pipeline.
//
// The package normalises whatever the capture device offers into the fixed
// internal format expected by the VAD and STT layers: single-channel 16-bit
// signed little-endian PCM at [DefaultSampleRate]. Capture is delegated to an
// OS-level subprocess (sox, arecord, or ffmpeg depending on platform) whose
// stdout is read as a raw sample stream; rate conversion is a deliberately
// cheap linear-interpolation resampler, not a high-fidelity one.
package audio

import "errors"

const (
	// DefaultSampleRate is the internal sample rate in Hz. All VAD and STT
	// processing happens at this rate.
	DefaultSampleRate = 16000

	// FrameSamples is the number of samples per VAD frame (32 ms at 16 kHz).
	// The Silero classifier requires exactly this window size.
	FrameSamples = 512

	// FrameBytes is the byte length of one frame of 16-bit mono PCM.
	FrameBytes = FrameSamples * 2

	// maxPlausibleRate bounds device-reported sample rates. Anything outside
	// (0, maxPlausibleRate] is treated as a probe failure.
	maxPlausibleRate = 192000
)

// ErrDeviceUnavailable indicates the capture subprocess could not be started,
// typically because the capture binary is not installed. Callers must report
// this distinctly from a recording that simply contained no speech.
var ErrDeviceUnavailable = errors.New("audio: capture device unavailable")
