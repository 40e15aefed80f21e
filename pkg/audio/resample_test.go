package audio

import (
	"bytes"
	"encoding/binary"
	"testing"
)

// pcm16 builds a little-endian PCM byte buffer from int16 samples.
func pcm16(samples ...int16) []byte {
	out := make([]byte, len(samples)*2)
	for i, s := range samples {
		binary.LittleEndian.PutUint16(out[i*2:], uint16(s))
	}
	return out
}

func TestResampleMono16_IdentityWhenRatesEqual(t *testing.T) {
	in := pcm16(100, -200, 300, -400)
	got := ResampleMono16(in, 16000, 16000)
	if !bytes.Equal(got, in) {
		t.Errorf("same-rate resample modified data: got %v, want %v", got, in)
	}
}

func TestResampleMono16_OutputLength(t *testing.T) {
	tests := []struct {
		name       string
		srcSamples int
		srcRate    int
		dstRate    int
		want       int
	}{
		{"downsample 48k to 16k", 480, 48000, 16000, 160},
		{"upsample 16k to 48k", 160, 16000, 48000, 480},
		{"44.1k to 16k", 441, 44100, 16000, 160},
		{"single sample down", 1, 48000, 16000, 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			in := make([]byte, tt.srcSamples*2)
			got := ResampleMono16(in, tt.srcRate, tt.dstRate)
			if len(got)/2 != tt.want {
				t.Errorf("output samples = %d, want %d", len(got)/2, tt.want)
			}
		})
	}
}

func TestResampleMono16_ConstantInputStaysConstant(t *testing.T) {
	const value int16 = 1234
	samples := make([]int16, 480)
	for i := range samples {
		samples[i] = value
	}
	out := ResampleMono16(pcm16(samples...), 48000, 16000)

	for i := 0; i+1 < len(out); i += 2 {
		got := int16(binary.LittleEndian.Uint16(out[i:]))
		if got != value {
			t.Fatalf("sample %d = %d, want %d (linear interpolation must not ring)", i/2, got, value)
		}
	}
}

func TestResampleMono16_InvalidRatesReturnInput(t *testing.T) {
	in := pcm16(1, 2, 3)
	if got := ResampleMono16(in, 0, 16000); !bytes.Equal(got, in) {
		t.Errorf("zero src rate: got %v, want input unchanged", got)
	}
	if got := ResampleMono16(in, 16000, -1); !bytes.Equal(got, in) {
		t.Errorf("negative dst rate: got %v, want input unchanged", got)
	}
}

func TestStereoToMono_AveragesChannels(t *testing.T) {
	in := pcm16(100, 300, -500, -100)
	got := StereoToMono(in)
	want := pcm16(200, -300)
	if !bytes.Equal(got, want) {
		t.Errorf("got %v, want %v", got, want)
	}
}

func TestStereoToMono_ClampsExtremes(t *testing.T) {
	in := pcm16(-32768, -32768)
	got := StereoToMono(in)
	if v := int16(binary.LittleEndian.Uint16(got)); v != -32768 {
		t.Errorf("got %d, want -32768", v)
	}
}
