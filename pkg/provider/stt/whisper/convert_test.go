package whisper

import (
	"encoding/binary"
	"math"
	"testing"
)

func encodePCM(values ...int16) []byte {
	pcm := make([]byte, len(values)*2)
	for i, v := range values {
		binary.LittleEndian.PutUint16(pcm[i*2:], uint16(v))
	}
	return pcm
}

func decodePCM(pcm []byte) []int16 {
	out := make([]int16, len(pcm)/2)
	for i := range out {
		out[i] = int16(binary.LittleEndian.Uint16(pcm[i*2:]))
	}
	return out
}

func TestPcmToFloat32(t *testing.T) {
	tests := []struct {
		name  string
		value int16
		want  float32
	}{
		{"max positive", 32767, 32767.0 / 32768.0},
		{"max negative", -32768, -1.0},
		{"zero", 0, 0.0},
		{"mid positive", 16384, 0.5},
		{"mid negative", -16384, -0.5},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			out := pcmToFloat32(encodePCM(tt.value))
			if len(out) != 1 {
				t.Fatalf("expected 1 sample, got %d", len(out))
			}
			if math.Abs(float64(out[0]-tt.want)) > 1e-6 {
				t.Errorf("pcmToFloat32(%d) = %f; want %f", tt.value, out[0], tt.want)
			}
		})
	}
}

func TestPcmToFloat32_Empty(t *testing.T) {
	if out := pcmToFloat32(nil); len(out) != 0 {
		t.Fatalf("expected 0 samples, got %d", len(out))
	}
}

func TestPcmToFloat32_OddByteCount(t *testing.T) {
	// 3 bytes → only 1 complete sample (trailing byte ignored)
	out := pcmToFloat32([]byte{0x00, 0x40, 0xFF})
	if len(out) != 1 {
		t.Fatalf("expected 1 sample from 3-byte input, got %d", len(out))
	}
}

func TestDownmixMono_SingleChannelPassthrough(t *testing.T) {
	pcm := encodePCM(100, -200, 300)
	out := downmixMono(pcm, 1)
	if &out[0] != &pcm[0] {
		t.Error("channels=1 should return the input unchanged")
	}
}

func TestDownmixMono_Stereo(t *testing.T) {
	// Two frames of stereo: (1000, 3000) and (-2000, -4000)
	got := decodePCM(downmixMono(encodePCM(1000, 3000, -2000, -4000), 2))
	want := []int16{2000, -3000}
	if len(got) != len(want) {
		t.Fatalf("expected %d mono samples, got %d", len(want), len(got))
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("mono[%d] = %d; want %d", i, got[i], want[i])
		}
	}
}

func TestDownmixMono_ThreeChannels(t *testing.T) {
	got := decodePCM(downmixMono(encodePCM(3000, 6000, 9000), 3))
	if len(got) != 1 {
		t.Fatalf("expected 1 mono sample from a 3-channel frame, got %d", len(got))
	}
	if got[0] != 6000 {
		t.Errorf("mono[0] = %d; want 6000", got[0])
	}
}

func TestResampleMono16_SameRateUnchanged(t *testing.T) {
	pcm := encodePCM(1, 2, 3)
	out := resampleMono16(pcm, 16000, 16000)
	if &out[0] != &pcm[0] {
		t.Error("matching rates should return the input unchanged")
	}
}

func TestResampleMono16_48kTo16k(t *testing.T) {
	// 48 kHz → 16 kHz keeps one sample in three.
	src := make([]int16, 48)
	for i := range src {
		src[i] = int16(i * 100)
	}
	got := decodePCM(resampleMono16(encodePCM(src...), 48000, 16000))
	if len(got) != 16 {
		t.Fatalf("expected 16 samples from 48 at a 3:1 ratio, got %d", len(got))
	}
	// Output positions land exactly on every third input sample, so linear
	// interpolation reproduces them without rounding error.
	for i, v := range got {
		if want := src[i*3]; v != want {
			t.Errorf("sample[%d] = %d; want %d", i, v, want)
		}
	}
}

func TestResampleMono16_ConstantSignalPreserved(t *testing.T) {
	src := make([]int16, 160)
	for i := range src {
		src[i] = 8000
	}
	got := decodePCM(resampleMono16(encodePCM(src...), 48000, 16000))
	for i, v := range got {
		if v != 8000 {
			t.Fatalf("sample[%d] = %d; constant amplitude must survive resampling", i, v)
		}
	}
}

func TestResampleMono16_Upsample(t *testing.T) {
	got := decodePCM(resampleMono16(encodePCM(0, 3000), 16000, 48000))
	if len(got) != 6 {
		t.Fatalf("expected 6 samples from 2 at a 1:3 ratio, got %d", len(got))
	}
	// Interpolated values must be monotonic between the two source samples.
	for i := 1; i < 4; i++ {
		if got[i] < got[i-1] {
			t.Errorf("sample[%d] = %d < sample[%d] = %d; interpolation not monotonic",
				i, got[i], i-1, got[i-1])
		}
	}
}
